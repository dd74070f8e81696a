package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcoot/gamesync/internal/api/response"
	"github.com/mcoot/gamesync/internal/services/janitor"
	"github.com/mcoot/gamesync/internal/store"
)

const (
	healthPath    = "meta/health"
	healthTimeout = 2 * time.Second
)

// JanitorHandler serves health and sweep endpoints
type JanitorHandler struct {
	janitor *janitor.Service
	store   store.Store
	logger  *slog.Logger
}

// NewJanitorHandler creates a new janitor handler
func NewJanitorHandler(j *janitor.Service, st store.Store, logger *slog.Logger) *JanitorHandler {
	return &JanitorHandler{janitor: j, store: st, logger: logger}
}

// Health handles GET /api/v1/health. The store is probed with a cheap read.
func (h *JanitorHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if _, err := h.store.Read(ctx, healthPath); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		response.JSON(w, http.StatusServiceUnavailable, response.Health{Status: "degraded", Store: "unavailable"})
		return
	}
	response.OK(w, response.Health{Status: "ok", Store: "ok"})
}

// Stats handles GET /api/v1/janitor
func (h *JanitorHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.janitor.Stats())
}

// Sweep handles POST /api/v1/janitor/sweep
func (h *JanitorHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	applied, err := h.janitor.SweepOnce(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	response.OK(w, response.Sweep{Applied: applied})
}
