package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collage-devserver/internal/config"
	"collage-devserver/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Anything
// not under the proxy prefix or a reserved path falls through to the static
// file server.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, static *StaticHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET(config.HealthzPath, health.Healthz)
	e.GET(config.StatusPath, health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.GET(cfg.Proxy.Prefix+"*", proxy.Handle)
	e.OPTIONS(cfg.Proxy.Prefix+"*", Preflight)

	e.GET("/*", static.Handle)
	e.HEAD("/*", static.Handle)
	e.OPTIONS("/*", Preflight)
}
