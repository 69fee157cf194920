package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/glassvoice/internal/device"
)

type toolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Active      bool            `json:"active"`
	Parameters  json.RawMessage `json:"parameters"`
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	out := []toolInfo{}
	if s.deps.Tools != nil {
		for _, t := range s.deps.Tools.Tools() {
			out = append(out, toolInfo{
				Name:        t.Name(),
				Description: t.Description(),
				Active:      t.Active(),
				Parameters:  t.Parameters(),
			})
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	if s.deps.Photos == nil {
		respondError(w, http.StatusNotFound, "photo_not_found", device.ErrPhotoNotFound.Error())
		return
	}
	p, err := s.deps.Photos.Get(chi.URLParam(r, "id"))
	if errors.Is(err, device.ErrPhotoNotFound) {
		respondError(w, http.StatusNotFound, "photo_not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "photo_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Data)
}
