// Package handlers implements the admin API endpoints.
package handlers

import (
	"net/http"

	"github.com/marmos91/fixgate/pkg/engine"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	engine *engine.Engine
}

// NewHealthHandler builds the handler.
func NewHealthHandler(eng *engine.Engine) *HealthHandler {
	return &HealthHandler{engine: eng}
}

// Liveness always reports healthy while the process serves HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthyResponse(nil))
}

// Readiness probes the store through the engine.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Health(r.Context()); err != nil {
		JSON(w, http.StatusServiceUnavailable, UnhealthyResponse(err.Error()))
		return
	}
	JSON(w, http.StatusOK, HealthyResponse(map[string]any{
		"sessions": len(h.engine.ListSessions()),
	}))
}
