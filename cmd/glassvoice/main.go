package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ent0n29/glassvoice/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "glassvoice",
	Short:         "Realtime voice assistant service for smart glasses",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("threads-backend", "", "thread store backend (json, bolt, postgres)")
	flags.String("threads-path", "", "thread store file for json and bolt backends")
	flags.String("database-url", "", "postgres connection string for memories and threads")
	_ = viper.BindPFlag("threads_backend", flags.Lookup("threads-backend"))
	_ = viper.BindPFlag("threads_path", flags.Lookup("threads-path"))
	_ = viper.BindPFlag("database_url", flags.Lookup("database-url"))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newThreadsCmd())
}

func main() {
	// A missing .env is fine; anything else is worth a warning.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies any flags the user set.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if v := viper.GetString("threads_backend"); v != "" {
		cfg.ThreadsBackend = v
	}
	if v := viper.GetString("threads_path"); v != "" {
		cfg.ThreadsPath = v
	}
	if v := viper.GetString("database_url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.BindAddr = v
	}
	if viper.GetBool("allow_any_origin") {
		cfg.AllowAnyOrigin = true
	}
	if viper.GetBool("intent_gate") {
		cfg.IntentGateEnabled = true
	}
	if v := viper.GetString("audio_dump_dir"); v != "" {
		cfg.AudioDumpDir = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
