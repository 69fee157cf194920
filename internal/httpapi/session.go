package httpapi

import (
	"errors"
	"net/http"

	"github.com/ent0n29/glassvoice/internal/assistant"
	"github.com/ent0n29/glassvoice/internal/conversation"
	"github.com/ent0n29/glassvoice/internal/threads"
)

type connectRequest struct {
	ThreadID string `json:"thread_id"`
}

type sessionResponse struct {
	Connection string `json:"connection"`
	assistant.Snapshot
}

func toSessionResponse(snap assistant.Snapshot) sessionResponse {
	if snap.Messages == nil {
		snap.Messages = []threads.Message{}
	}
	return sessionResponse{Connection: snap.Connection.String(), Snapshot: snap}
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Assistant == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "assistant not configured")
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(s.deps.Assistant.Snapshot()))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "assistant not configured")
		return
	}
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.deps.Assistant.Connect(r.Context(), req.ThreadID); err != nil {
		respondAssistantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(s.deps.Assistant.Snapshot()))
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Assistant == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "assistant not configured")
		return
	}
	if err := s.deps.Assistant.Disconnect(); err != nil {
		respondAssistantError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionResponse(s.deps.Assistant.Snapshot()))
}

func (s *Server) handleAction(fn func(Assistant) error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if s.deps.Assistant == nil {
			respondError(w, http.StatusNotImplemented, "unavailable", "assistant not configured")
			return
		}
		if err := fn(s.deps.Assistant); err != nil {
			respondAssistantError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, toSessionResponse(s.deps.Assistant.Snapshot()))
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sessions == nil {
		respondJSON(w, http.StatusOK, map[string]any{"sessions": []any{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": s.deps.Sessions.List(),
		"active":   s.deps.Sessions.ActiveCount(),
	})
}

func respondAssistantError(w http.ResponseWriter, err error) {
	var invalid *conversation.InvalidTransitionError
	switch {
	case errors.Is(err, assistant.ErrMissingAPIKey):
		respondError(w, http.StatusPreconditionFailed, "missing_api_key", err.Error())
	case errors.Is(err, assistant.ErrNotConnected):
		respondError(w, http.StatusConflict, "not_connected", err.Error())
	case errors.As(err, &invalid):
		respondError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, threads.ErrNotFound):
		respondError(w, http.StatusNotFound, "thread_not_found", err.Error())
	case errors.Is(err, assistant.ErrSuperseded):
		respondError(w, http.StatusConflict, "superseded", err.Error())
	default:
		respondError(w, http.StatusBadGateway, "realtime_error", err.Error())
	}
}
