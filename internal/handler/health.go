package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"devserver/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusResponse describes the running server and its fetch policy.
type statusResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	Root           string `json:"root"`
	MaxAttempts    int    `json:"max_attempts"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	BackoffStepMS  int    `json:"backoff_step_ms"`
	MaxBodyBytes   int64  `json:"max_body_bytes"`
	MetricsEnabled bool   `json:"metrics_enabled"`
}

// Status returns server status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:         "ok",
		Version:        string(h.version),
		Root:           h.cfg.Server.Root,
		MaxAttempts:    h.cfg.Upstream.MaxAttempts,
		TimeoutSeconds: h.cfg.Upstream.TimeoutSeconds,
		BackoffStepMS:  h.cfg.Upstream.BackoffStepMS,
		MaxBodyBytes:   h.cfg.Upstream.MaxBodyBytes,
		MetricsEnabled: h.cfg.Metrics.Enabled,
	})
}
