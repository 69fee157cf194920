package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.RealtimeConfigureGrace != 500*time.Millisecond {
		t.Fatalf("RealtimeConfigureGrace = %v, want 500ms", cfg.RealtimeConfigureGrace)
	}
	if cfg.ConfigDebounce != 500*time.Millisecond {
		t.Fatalf("ConfigDebounce = %v, want 500ms", cfg.ConfigDebounce)
	}
	if cfg.ThreadsBackend != "json" {
		t.Fatalf("ThreadsBackend = %q, want json", cfg.ThreadsBackend)
	}
	if cfg.OpenAIAPIKey != "" {
		t.Fatalf("OpenAIAPIKey = %q, want empty default", cfg.OpenAIAPIKey)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("OPENAI_API_KEY", "  sk-test  ")
	t.Setenv("VAD_THRESHOLD", "0.7")
	t.Setenv("CONFIG_DEBOUNCE", "250ms")
	t.Setenv("INTENT_GATE_ENABLED", "yes")
	t.Setenv("THREADS_BACKEND", "BOLT")
	t.Setenv("THREADS_PATH", "/tmp/threads.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("OpenAIAPIKey = %q, want trimmed key", cfg.OpenAIAPIKey)
	}
	if cfg.VADThreshold != 0.7 {
		t.Fatalf("VADThreshold = %v, want 0.7", cfg.VADThreshold)
	}
	if cfg.ConfigDebounce != 250*time.Millisecond {
		t.Fatalf("ConfigDebounce = %v, want 250ms", cfg.ConfigDebounce)
	}
	if !cfg.IntentGateEnabled {
		t.Fatalf("IntentGateEnabled = false, want true")
	}
	if cfg.ThreadsBackend != "bolt" {
		t.Fatalf("ThreadsBackend = %q, want bolt", cfg.ThreadsBackend)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"VAD_THRESHOLD":                  "1.5",
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"INTENT_GATE_ENABLED":            "maybe",
		"THREADS_BACKEND":                "sqlite",
		"REALTIME_CONFIGURE_GRACE":       "soon",
	}
	for key, value := range cases {
		setCoreEnvEmpty(t)
		t.Setenv(key, value)
		if _, err := Load(); err == nil {
			t.Fatalf("Load() with %s=%q error = nil, want error", key, value)
		}
	}
}

func TestPostgresThreadsRequireDatabaseURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("THREADS_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want DATABASE_URL error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"OPENAI_API_KEY",
		"REALTIME_URL",
		"REALTIME_MODEL",
		"REALTIME_VOICE",
		"REALTIME_TRANSCRIPTION_MODEL",
		"REALTIME_CONFIGURE_GRACE",
		"VAD_THRESHOLD",
		"VAD_PREFIX_PADDING",
		"VAD_SILENCE_DURATION",
		"LOCAL_VAD_THRESHOLD",
		"INTENT_GATE_ENABLED",
		"INTENT_TIMEOUT",
		"CONFIG_DEBOUNCE",
		"ASSISTANT_BASE_INSTRUCTIONS",
		"THREADS_BACKEND",
		"THREADS_PATH",
		"THREADS_SAVE_DEBOUNCE",
		"DATABASE_URL",
		"TAVILY_API_KEY",
		"TAVILY_BASE_URL",
		"TOOL_TIMEOUT",
		"PHOTO_TIMEOUT",
		"AUDIO_DUMP_DIR",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
