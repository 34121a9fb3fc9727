package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"groupdecide/internal/container"
	"groupdecide/pkg/database"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Version   string              `json:"version"`
	Service   string              `json:"service"`
	Checks    map[string]string   `json:"checks"`
	Pool      *database.PoolStats `json:"pool,omitempty"`
}

// Check handles GET /health. The store is required; a failing cache only
// degrades the service since reads fall back to the store.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   Version,
		Service:   "groupdecide",
		Checks:    map[string]string{"store": "ok"},
	}
	status := http.StatusOK

	if err := h.container.Store.Health(ctx); err != nil {
		logger.WithError(err).Error("Store health check failed")
		response.Status = "unhealthy"
		response.Checks["store"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if h.container.DB != nil {
		stats := h.container.DB.Stats()
		response.Pool = &stats
	}

	cache := h.container.GetCacheService()
	switch {
	case !cache.Enabled():
		response.Checks["cache"] = "disabled"
	case cache.HealthCheck(ctx) != nil:
		logger.Warn("Cache health check failed")
		response.Checks["cache"] = "unavailable"
		if status == http.StatusOK {
			response.Status = "degraded"
		}
	default:
		response.Checks["cache"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.WithError(err).Error("Failed to encode health check response")
	}
}
