// Package server owns the Echo instance and its listener: building the
// middleware stack, starting to serve and stopping.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"collage-devserver/internal/config"
	"collage-devserver/internal/metrics"
	"collage-devserver/internal/middleware"
)

// ErrAddrInUse is returned by Start when the listen port is already bound.
var ErrAddrInUse = errors.New("address already in use")

// NewEcho creates the Echo instance with the full middleware stack.
// The metrics parameter is optional.
func NewEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = 30 * time.Second
	// Upstream fetches are bounded by proxy.timeout_seconds; leave headroom
	// for writing the body.
	e.Server.WriteTimeout = time.Duration(cfg.Proxy.TimeoutSeconds)*time.Second + 30*time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger.With("component", "http")))
	if m != nil {
		routes := metrics.NewRouteLabeler(cfg.Proxy.Prefix, config.HealthzPath, config.StatusPath, cfg.Metrics.Path)
		e.Use(middleware.MetricsMiddleware(m, routes))
	}
	e.Use(middleware.CORSHeaders())
	e.Use(middleware.SecurityHeaders())

	return e
}

// Server serves an Echo instance on the configured address.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// New creates a Server. Nothing is bound until Start.
func New(e *echo.Echo, cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		echo:   e,
		addr:   cfg.Server.Addr(),
		logger: logger.With("component", "server"),
	}
}

// Start binds the listener and serves in the background. Bind failures are
// returned synchronously; a port already in use wraps ErrAddrInUse.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("bind %s: %w", s.addr, ErrAddrInUse)
		}
		return fmt.Errorf("bind %s: %w", s.addr, err)
	}
	s.listener = ln
	s.done = make(chan struct{})

	// Echo serves on a pre-bound Listener instead of dialing its own.
	s.echo.Listener = ln

	s.logger.Info("starting server", "addr", ln.Addr().String())
	go func() {
		defer close(s.done)
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	s.logger.Info("shutting down server")
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the address a local browser should open.
func (s *Server) URL() string {
	_, port, err := net.SplitHostPort(s.Addr())
	if err != nil {
		return "http://localhost"
	}
	return "http://localhost:" + port
}
