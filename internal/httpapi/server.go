package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/glassvoice/internal/assistant"
	"github.com/ent0n29/glassvoice/internal/config"
	"github.com/ent0n29/glassvoice/internal/device"
	"github.com/ent0n29/glassvoice/internal/memory"
	"github.com/ent0n29/glassvoice/internal/observability"
	"github.com/ent0n29/glassvoice/internal/session"
	"github.com/ent0n29/glassvoice/internal/threads"
	"github.com/ent0n29/glassvoice/internal/tools"
)

// Assistant is the voice session the control surface drives.
type Assistant interface {
	Connect(ctx context.Context, threadID string) error
	Disconnect() error
	StartListening() error
	StopListening() error
	ForceResponse() error
	SetMuted(muted bool) error
	Snapshot() assistant.Snapshot
}

type ThreadStore interface {
	List() []threads.Summary
	Get(id string) (threads.Thread, error)
	DeleteThread(id string) error
}

type ToolCatalog interface {
	Tools() []tools.Tool
}

type PhotoSource interface {
	Get(id string) (device.Photo, error)
}

// DeviceServer takes over an upgraded device websocket until it closes.
type DeviceServer interface {
	Serve(ctx context.Context, conn *websocket.Conn)
}

type Deps struct {
	Assistant Assistant
	Sessions  *session.Manager
	Threads   ThreadStore
	Memory    memory.Store
	Tools     ToolCatalog
	Photos    PhotoSource
	Device    DeviceServer
	Metrics   *observability.Metrics
}

type Server struct {
	cfg      config.Config
	deps     Deps
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:  cfg,
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may attach as a device unless
				// explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// The companion app does not send Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/v1/session", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Post("/", s.handleConnect)
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Post("/listen", s.handleAction(func(a Assistant) error { return a.StartListening() }))
		r.Post("/stop", s.handleAction(func(a Assistant) error { return a.StopListening() }))
		r.Post("/respond", s.handleAction(func(a Assistant) error { return a.ForceResponse() }))
		r.Post("/mute", s.handleAction(func(a Assistant) error { return a.SetMuted(true) }))
		r.Post("/unmute", s.handleAction(func(a Assistant) error { return a.SetMuted(false) }))
	})
	r.Get("/v1/sessions", s.handleListSessions)

	r.Get("/v1/threads", s.handleListThreads)
	r.Get("/v1/threads/{id}", s.handleGetThread)
	r.Delete("/v1/threads/{id}", s.handleDeleteThread)

	r.Get("/v1/memories", s.handleListMemories)
	r.Put("/v1/memories/{key}", s.handlePutMemory)
	r.Delete("/v1/memories/{key}", s.handleDeleteMemory)
	r.Get("/v1/instructions", s.handleGetInstructions)
	r.Put("/v1/instructions", s.handlePutInstructions)

	r.Get("/v1/tools", s.handleListTools)
	r.Get("/v1/photos/{id}", s.handleGetPhoto)
	r.Get("/v1/device/ws", s.handleDeviceWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"threads_backend": s.cfg.ThreadsBackend,
		"memory_store":    s.memoryMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if strings.TrimSpace(s.cfg.OpenAIAPIKey) == "" {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"reason": "OPENAI_API_KEY is not set",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Metrics.LatencySnapshot())
}

func (s *Server) handleDeviceWS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Device == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "device bridge not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.deps.Device.Serve(r.Context(), conn)
}

func (s *Server) memoryMode() string {
	if strings.TrimSpace(s.cfg.DatabaseURL) != "" {
		return "postgres"
	}
	return "in-memory"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
