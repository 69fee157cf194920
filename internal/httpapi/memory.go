package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/glassvoice/internal/memory"
)

type memoryRequest struct {
	Value string `json:"value"`
}

type instructionsRequest struct {
	Instructions string `json:"instructions"`
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	if s.deps.Memory == nil {
		respondJSON(w, http.StatusOK, map[string]any{"memories": []memory.Memory{}})
		return
	}
	items, err := s.deps.Memory.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "memory_error", err.Error())
		return
	}
	if items == nil {
		items = []memory.Memory{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": items})
}

func (s *Server) handlePutMemory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Memory == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "memory store not configured")
		return
	}
	var req memoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	key := chi.URLParam(r, "key")
	if req.Value == "" {
		// An empty value deletes, matching manage_memory.
		if _, err := s.deps.Memory.Delete(r.Context(), key); err != nil {
			respondMemoryError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.deps.Memory.Set(r.Context(), key, req.Value); err != nil {
		respondMemoryError(w, err)
		return
	}
	m, err := s.deps.Memory.Get(r.Context(), key)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Memory == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "memory store not configured")
		return
	}
	deleted, err := s.deps.Memory.Delete(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "memory_not_found", memory.ErrNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetInstructions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Memory == nil {
		respondJSON(w, http.StatusOK, instructionsRequest{})
		return
	}
	text, err := s.deps.Memory.Instructions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "memory_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, instructionsRequest{Instructions: text})
}

func (s *Server) handlePutInstructions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Memory == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "memory store not configured")
		return
	}
	var req instructionsRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.deps.Memory.SetInstructions(r.Context(), req.Instructions); err != nil {
		respondError(w, http.StatusInternalServerError, "memory_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func respondMemoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrEmptyKey):
		respondError(w, http.StatusBadRequest, "invalid_key", err.Error())
	case errors.Is(err, memory.ErrNotFound):
		respondError(w, http.StatusNotFound, "memory_not_found", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "memory_error", err.Error())
	}
}
