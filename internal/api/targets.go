package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
)

type targetRequest struct {
	URL     string `json:"url"`
	Owner   string `json:"owner"`
	Comment string `json:"comment"`
}

// auditFor attributes an API change to the request owner, or to "api".
func auditFor(req targetRequest, verb string) crawler.Audit {
	actor := strings.TrimSpace(req.Owner)
	if actor == "" {
		actor = "api"
	}
	comment := req.Comment
	if comment == "" {
		comment = verb + " via API"
	}
	return crawler.Audit{Actor: actor, Comment: comment}
}

// listTargets handles GET /v1/targets in registration order.
func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	targets, err := s.deps.Targets.ListTargets(ctx)
	if err != nil {
		s.logger.Error("list targets failed", zap.Error(err))
		writeError(w, statusFor(err), "failed to list targets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": targets})
}

// addTarget handles POST /v1/targets with {"url": ..., "owner": ...}.
func (s *Server) addTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	target, err := s.deps.Targets.AddTarget(ctx,
		crawler.Target{URL: req.URL, Owner: req.Owner}, auditFor(req, "registered"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("add target failed", zap.String("url", req.URL), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"target": target})
}

// removeTarget handles DELETE /v1/targets?url=. Tools the target produced
// stay in the inventory.
func (s *Server) removeTarget(w http.ResponseWriter, r *http.Request) {
	req := targetRequest{
		URL:   r.URL.Query().Get("url"),
		Owner: r.URL.Query().Get("owner"),
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := s.deps.Targets.RemoveTarget(ctx, req.URL, auditFor(req, "removed")); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("remove target failed", zap.String("url", req.URL), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
