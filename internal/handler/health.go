package handler

import (
	"net/http"
)

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	nats ConnectionChecker
}

// NewHealthHandler creates a new health handler. A nil checker means event
// publishing is disabled and does not affect readiness.
func NewHealthHandler(nats ConnectionChecker) *HealthHandler {
	return &HealthHandler{
		nats: nats,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.nats == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ready",
			"nats":   "disabled",
		})
		return
	}

	if !h.nats.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"nats":   "connected",
	})
}
