package api

import (
	"net/http"
	"time"

	"github.com/workmate-hq/workmate/internal/api/respond"
	"github.com/workmate-hq/workmate/internal/health"
)

// HealthReporter exposes the cached service-level health flag.
type HealthReporter interface {
	IsHealthy() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	service HealthReporter
	store   health.HealthPinger
}

func NewHealthHandler(service HealthReporter, store health.HealthPinger) *HealthHandler {
	return &HealthHandler{service: service, store: store}
}

// CheckHealth handles GET /api/health.
// Always returns 200; the body reports healthy/unhealthy.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	if h.service == nil || h.service.IsHealthy() {
		status = "healthy"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// CheckStorageHealth handles GET /api/health/db with a live ping.
func (h *HealthHandler) CheckStorageHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthPing(r.Context()); err != nil {
		respond.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}
