package handler

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"collage-devserver/internal/client"
	"collage-devserver/internal/config"
	"collage-devserver/internal/metrics"
	"collage-devserver/internal/middleware"
	"collage-devserver/internal/service"
)

// testConfig returns a fully defaulted config serving root.
func testConfig(root string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8000, Root: root},
		Proxy: config.ProxyConfig{
			Prefix:             "/proxy/",
			TimeoutSeconds:     10,
			UserAgent:          config.DefaultUserAgent,
			CacheMaxAgeSeconds: 3600,
			DefaultContentType: "image/jpeg",
			MaxBodyBytes:       1 << 20,
			IdleConnections:    4,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// writeSite creates files under a temp dir and returns it.
func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func newTestProxyHandler(cfg *config.Config, m *metrics.Metrics) *ProxyHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ic := client.NewImageClient(cfg, logger, m)
	svc := service.NewImageProxyService(ic, cfg, logger)
	return NewProxyHandler(svc, cfg, logger, m)
}

// newTestEcho builds the routed Echo instance with the CORS middleware, the
// way the server does.
func newTestEcho(cfg *config.Config, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.Use(middleware.CORSHeaders())
	RegisterRoutes(e, cfg, newTestProxyHandler(cfg, m), NewStaticHandler(cfg), NewHealthHandler(cfg, "test"), m)
	return e
}
