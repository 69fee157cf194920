package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/glassvoice/internal/assistant"
	"github.com/ent0n29/glassvoice/internal/audio"
	"github.com/ent0n29/glassvoice/internal/config"
	"github.com/ent0n29/glassvoice/internal/conversation"
	"github.com/ent0n29/glassvoice/internal/device"
	"github.com/ent0n29/glassvoice/internal/httpapi"
	"github.com/ent0n29/glassvoice/internal/memory"
	"github.com/ent0n29/glassvoice/internal/observability"
	"github.com/ent0n29/glassvoice/internal/search"
	"github.com/ent0n29/glassvoice/internal/session"
	"github.com/ent0n29/glassvoice/internal/sessionconfig"
	"github.com/ent0n29/glassvoice/internal/threads"
	"github.com/ent0n29/glassvoice/internal/tools"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Assistant *assistant.Client
	Bridge    *device.Bridge
	Sessions  *session.Manager
	Threads   *threads.Manager
	Metrics   *observability.Metrics

	// Cleanup should be called on shutdown to release external resources (DB, thread store, etc).
	Cleanup func() error
}

// Build wires the service. ctx bounds background workers (session janitor,
// event forwarding); cancel it before calling Cleanup.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	baseStore, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	memoryStore := memory.NewNotifying(baseStore)

	backend, err := threads.OpenBackend(ctx, cfg.ThreadsBackend, cfg.ThreadsPath, cfg.DatabaseURL)
	if err != nil {
		_ = memoryStore.Close()
		return nil, fmt.Errorf("thread store init failed: %w", err)
	}
	threadManager := threads.NewManager(ctx, backend, threads.Options{
		SaveDebounce: cfg.ThreadsSaveDebounce,
		Metrics:      metrics,
	})

	var dumper *audio.Dumper
	if dir := strings.TrimSpace(cfg.AudioDumpDir); dir != "" {
		dumper, err = audio.NewDumper(dir)
		if err != nil {
			_ = threadManager.Close()
			_ = memoryStore.Close()
			return nil, fmt.Errorf("audio dump dir: %w", err)
		}
		log.Printf("audio: dumping committed utterances to %s", dir)
	}

	photos := device.NewPhotoStore(32)
	bridge := device.NewBridge(device.BridgeOptions{
		PacePlayback: true,
		Metrics:      metrics,
	})
	pipeline := audio.NewPipeline(audio.PipelineOptions{
		Microphone:   bridge,
		Speaker:      bridge,
		VADThreshold: cfg.LocalVADThreshold,
		Dumper:       dumper,
	})

	searchClient := search.NewClient(cfg.TavilyAPIKey, search.WithBaseURL(cfg.TavilyBaseURL))
	dispatcher, err := tools.NewDispatcher(cfg.ToolTimeout, metrics,
		tools.NewTakePhoto(bridge, photos, cfg.PhotoTimeout),
		tools.NewManageMemory(memoryStore),
		tools.NewSearchInternet(searchClient),
	)
	if err != nil {
		_ = threadManager.Close()
		_ = memoryStore.Close()
		return nil, err
	}
	for _, t := range dispatcher.Tools() {
		state := "active"
		if !t.Active() {
			state = "inactive"
		}
		log.Printf("tools: %s registered (%s)", t.Name(), state)
	}

	builder := sessionconfig.NewBuilder(sessionconfig.Options{
		Voice:              cfg.RealtimeVoice,
		TranscriptionModel: cfg.RealtimeTranscriptionModel,
		VADThreshold:       cfg.VADThreshold,
		PrefixPadding:      cfg.VADPrefixPadding,
		SilenceDuration:    cfg.VADSilenceDuration,
		IntentGate:         cfg.IntentGateEnabled,
		BaseInstructions:   cfg.BaseInstructions,
	}, memoryStore, dispatcher)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetActiveHook(metrics.SetActiveSessions)

	client := assistant.New(assistant.Options{
		APIKey:         cfg.OpenAIAPIKey,
		URL:            cfg.RealtimeURL,
		Model:          cfg.RealtimeModel,
		ConfigureGrace: cfg.RealtimeConfigureGrace,
		ConfigDebounce: cfg.ConfigDebounce,
		IntentGate:     cfg.IntentGateEnabled,
		IntentTimeout:  cfg.IntentTimeout,
		Classifier:     conversation.HeuristicClassifier{},
		Config:         builder,
		Tools:          dispatcher,
		Audio:          pipeline,
		Threads:        threadManager,
		Changes:        memoryStore,
		Sessions:       sessions,
		Metrics:        metrics,
	})
	bridge.SetController(client)

	sessions.SetExpireHook(func(s *session.Session) {
		metrics.ObserveSessionEvent("expired")
		log.Printf("session: %s expired after inactivity", s.ID)
		if client.SessionID() == s.ID {
			go func() { _ = client.Disconnect() }()
		}
	})
	sessions.StartJanitor(ctx, 5*time.Second)
	go ForwardEvents(ctx, client.Subscribe(), bridge)

	api := httpapi.New(cfg, httpapi.Deps{
		Assistant: client,
		Sessions:  sessions,
		Threads:   threadManager,
		Memory:    memoryStore,
		Tools:     dispatcher,
		Photos:    photos,
		Device:    bridge,
		Metrics:   metrics,
	})

	cleanup := func() error {
		var errs []string
		if err := client.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := pipeline.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := threadManager.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := memoryStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Assistant: client,
		Bridge:    bridge,
		Sessions:  sessions,
		Threads:   threadManager,
		Metrics:   metrics,
		Cleanup:   cleanup,
	}, nil
}
