package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"collage-devserver/internal/config"
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

// StatusResponse is the body of the status endpoint.
type StatusResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Root            string `json:"root"`
	ProxyPrefix     string `json:"proxy_prefix"`
	TimeoutSeconds  int    `json:"proxy_timeout_seconds"`
	ProxyRestricted bool   `json:"proxy_restricted"`
}

// Status returns server status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:          "ok",
		Version:         string(h.version),
		Root:            h.cfg.Server.Root,
		ProxyPrefix:     h.cfg.Proxy.Prefix,
		TimeoutSeconds:  h.cfg.Proxy.TimeoutSeconds,
		ProxyRestricted: h.cfg.Proxy.Restricted(),
	})
}
