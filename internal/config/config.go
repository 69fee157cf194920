package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the glasses voice service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	OpenAIAPIKey               string
	RealtimeURL                string
	RealtimeModel              string
	RealtimeVoice              string
	RealtimeTranscriptionModel string
	// Fallback only: configuration is normally sent as soon as session.created arrives.
	RealtimeConfigureGrace time.Duration

	VADThreshold       float64
	VADPrefixPadding   time.Duration
	VADSilenceDuration time.Duration
	LocalVADThreshold  float64

	IntentGateEnabled bool
	IntentTimeout     time.Duration

	ConfigDebounce   time.Duration
	BaseInstructions string

	ThreadsBackend      string
	ThreadsPath         string
	ThreadsSaveDebounce time.Duration
	DatabaseURL         string

	TavilyAPIKey  string
	TavilyBaseURL string

	ToolTimeout  time.Duration
	PhotoTimeout time.Duration

	AudioDumpDir string
}

const defaultInstructions = "You are a helpful voice assistant running on a pair of smart glasses. " +
	"Keep answers short and conversational; the user hears you through small speakers. " +
	"Use take_photo when the user asks about what they are looking at, manage_memory to remember " +
	"or forget facts about the user, and search_internet for anything current."

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                   envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:           envOrDefault("APP_METRICS_NAMESPACE", "glassvoice"),
		AllowAnyOrigin:             false,
		OpenAIAPIKey:               stringsTrimSpace("OPENAI_API_KEY"),
		RealtimeURL:                envOrDefault("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeModel:              envOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		RealtimeVoice:              envOrDefault("REALTIME_VOICE", "alloy"),
		RealtimeTranscriptionModel: envOrDefault("REALTIME_TRANSCRIPTION_MODEL", "whisper-1"),
		RealtimeConfigureGrace:     500 * time.Millisecond,
		VADThreshold:               0.5,
		VADPrefixPadding:           300 * time.Millisecond,
		VADSilenceDuration:         500 * time.Millisecond,
		// RMS over normalized PCM16; roughly conversational speech at arm's length.
		LocalVADThreshold:        0.04,
		IntentGateEnabled:        false,
		IntentTimeout:            250 * time.Millisecond,
		ConfigDebounce:           500 * time.Millisecond,
		BaseInstructions:         envOrDefault("ASSISTANT_BASE_INSTRUCTIONS", defaultInstructions),
		ThreadsBackend:           strings.ToLower(envOrDefault("THREADS_BACKEND", "json")),
		ThreadsPath:              envOrDefault("THREADS_PATH", "data/threads.json"),
		ThreadsSaveDebounce:      time.Second,
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		TavilyAPIKey:             stringsTrimSpace("TAVILY_API_KEY"),
		TavilyBaseURL:            envOrDefault("TAVILY_BASE_URL", "https://api.tavily.com"),
		ToolTimeout:              20 * time.Second,
		PhotoTimeout:             10 * time.Second,
		AudioDumpDir:             stringsTrimSpace("AUDIO_DUMP_DIR"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RealtimeConfigureGrace, err = durationFromEnv("REALTIME_CONFIGURE_GRACE", cfg.RealtimeConfigureGrace)
	if err != nil {
		return Config{}, err
	}
	cfg.VADThreshold, err = floatFromEnv("VAD_THRESHOLD", cfg.VADThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.VADPrefixPadding, err = durationFromEnv("VAD_PREFIX_PADDING", cfg.VADPrefixPadding)
	if err != nil {
		return Config{}, err
	}
	cfg.VADSilenceDuration, err = durationFromEnv("VAD_SILENCE_DURATION", cfg.VADSilenceDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalVADThreshold, err = floatFromEnv("LOCAL_VAD_THRESHOLD", cfg.LocalVADThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.IntentGateEnabled, err = boolFromEnv("INTENT_GATE_ENABLED", cfg.IntentGateEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.IntentTimeout, err = durationFromEnv("INTENT_TIMEOUT", cfg.IntentTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfigDebounce, err = durationFromEnv("CONFIG_DEBOUNCE", cfg.ConfigDebounce)
	if err != nil {
		return Config{}, err
	}
	cfg.ThreadsSaveDebounce, err = durationFromEnv("THREADS_SAVE_DEBOUNCE", cfg.ThreadsSaveDebounce)
	if err != nil {
		return Config{}, err
	}
	cfg.ToolTimeout, err = durationFromEnv("TOOL_TIMEOUT", cfg.ToolTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PhotoTimeout, err = durationFromEnv("PHOTO_TIMEOUT", cfg.PhotoTimeout)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that env parsing alone cannot enforce. The API key is
// not required; a missing key is reported when a session connects.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.VADThreshold <= 0 || c.VADThreshold >= 1 {
		return fmt.Errorf("VAD_THRESHOLD must be between 0 and 1")
	}
	if c.LocalVADThreshold <= 0 || c.LocalVADThreshold >= 1 {
		return fmt.Errorf("LOCAL_VAD_THRESHOLD must be between 0 and 1")
	}
	if c.ConfigDebounce < 0 {
		return fmt.Errorf("CONFIG_DEBOUNCE must be >= 0")
	}
	if c.RealtimeConfigureGrace <= 0 {
		return fmt.Errorf("REALTIME_CONFIGURE_GRACE must be positive")
	}
	switch c.ThreadsBackend {
	case "json", "bolt":
		if strings.TrimSpace(c.ThreadsPath) == "" {
			return fmt.Errorf("THREADS_PATH is required for THREADS_BACKEND=%s", c.ThreadsBackend)
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for THREADS_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid THREADS_BACKEND: %q (expected json|bolt|postgres)", c.ThreadsBackend)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
