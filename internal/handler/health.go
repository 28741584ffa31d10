package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/akave-ai/logpipe/internal/consumer"
	"github.com/akave-ai/logpipe/internal/response"
)

// LivenessBody is returned by GET / whenever the process is up.
var LivenessBody = map[string]string{"status": "Consumer is running."}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	Status *consumer.Status
}

// Liveness always answers 200; it does not look at store or broker state (GET /).
func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, LivenessBody)
}

// Readiness answers 200 only while the consumption loop is running with both
// connections up, 503 otherwise (GET /readyz).
func (h *HealthHandler) Readiness(c echo.Context) error {
	snap := h.Status.Snapshot()
	if !snap.Ready {
		return response.Respond(c, http.StatusServiceUnavailable, snap, "not ready")
	}
	return response.OK(c, snap, "ready")
}

// StatusInfo returns the supervisor snapshot (GET /status).
func (h *HealthHandler) StatusInfo(c echo.Context) error {
	return response.OK(c, h.Status.Snapshot(), "")
}
