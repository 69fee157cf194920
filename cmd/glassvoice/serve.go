package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ent0n29/glassvoice/internal/app"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface and device bridge",
		RunE:  runServe,
	}
	flags := cmd.Flags()
	flags.String("addr", "", "listen address (overrides APP_BIND_ADDR)")
	flags.Bool("allow-any-origin", false, "accept device websockets from any Origin")
	flags.Bool("intent-gate", false, "let the client decide when to respond after a pause")
	flags.String("audio-dump-dir", "", "write committed utterances as WAV files here")
	_ = viper.BindPFlag("addr", flags.Lookup("addr"))
	_ = viper.BindPFlag("allow_any_origin", flags.Lookup("allow-any-origin"))
	_ = viper.BindPFlag("intent_gate", flags.Lookup("intent-gate"))
	_ = viper.BindPFlag("audio_dump_dir", flags.Lookup("audio-dump-dir"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	built, err := app.Build(runCtx, cfg)
	if err != nil {
		return err
	}
	if cfg.OpenAIAPIKey == "" {
		log.Printf("OPENAI_API_KEY is not set; sessions will fail to connect")
	}
	log.Printf("threads backend: %s", cfg.ThreadsBackend)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-sigCtx.Done():
		log.Printf("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			runCancel()
			_ = built.Cleanup()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	runCancel()
	if err := built.Cleanup(); err != nil {
		log.Printf("cleanup failed: %v", err)
	}

	log.Printf("shutdown complete")
	return nil
}
