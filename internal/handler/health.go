package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cors-wrapper-go/internal/config"
	"cors-wrapper-go/internal/model"
)

// Version is a string type for dependency injection of the build version.
type Version string

// ServiceName is reported by the health endpoint.
const ServiceName = "CORS Wrapper Server"

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness checks.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Health reports liveness together with version and deployment metadata.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":      "OK",
		"timestamp":   model.Timestamp(time.Now()),
		"service":     ServiceName,
		"version":     h.cfg.App.Version,
		"build":       string(h.version),
		"environment": h.cfg.App.Environment,
		"serverIP":    h.cfg.ServerIP(),
	})
}
