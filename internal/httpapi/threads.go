package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/glassvoice/internal/threads"
)

func (s *Server) handleListThreads(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Threads == nil {
		respondJSON(w, http.StatusOK, map[string]any{"threads": []threads.Summary{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"threads": s.deps.Threads.List()})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	if s.deps.Threads == nil {
		respondError(w, http.StatusNotFound, "thread_not_found", threads.ErrNotFound.Error())
		return
	}
	t, err := s.deps.Threads.Get(chi.URLParam(r, "id"))
	if errors.Is(err, threads.ErrNotFound) {
		respondError(w, http.StatusNotFound, "thread_not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "thread_error", err.Error())
		return
	}
	if t.Messages == nil {
		t.Messages = []threads.Message{}
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if s.deps.Threads == nil {
		respondError(w, http.StatusNotFound, "thread_not_found", threads.ErrNotFound.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Threads.DeleteThread(id); err != nil {
		if errors.Is(err, threads.ErrNotFound) {
			respondError(w, http.StatusNotFound, "thread_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "thread_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
