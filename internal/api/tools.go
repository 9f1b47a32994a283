package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolhub-crawler/internal/toolinfo"
)

// toolName reads {name} and normalizes it the way stored names are built.
func toolName(r *http.Request) string {
	return toolinfo.FixName(chi.URLParam(r, "name"))
}

// getTool handles GET /v1/tools/{name}. Soft-deleted records are returned
// with deleted set.
func (s *Server) getTool(w http.ResponseWriter, r *http.Request) {
	name := toolName(r)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	rec, err := s.deps.Inventory.Lookup(ctx, name)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			writeError(w, status, "tool not found")
			return
		}
		s.logger.Error("lookup tool failed", zap.String("name", name), zap.Error(err))
		writeError(w, status, "failed to load tool")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tool": rec})
}

// getToolHistory handles GET /v1/tools/{name}/history, oldest revision first.
func (s *Server) getToolHistory(w http.ResponseWriter, r *http.Request) {
	name := toolName(r)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	revs, err := s.deps.Inventory.History(ctx, name)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			writeError(w, status, "tool not found")
			return
		}
		s.logger.Error("tool history failed", zap.String("name", name), zap.Error(err))
		writeError(w, status, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "revisions": revs})
}
