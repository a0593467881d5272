package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"collage-devserver/internal/client"
	"collage-devserver/internal/config"
	"collage-devserver/internal/handler"
	"collage-devserver/internal/launcher"
	"collage-devserver/internal/metrics"
	"collage-devserver/internal/server"
	"collage-devserver/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("collage-devserver"),
		kong.Description("Local server for the NODES collage maker: static files plus a CORS image proxy."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	var (
		cfg    *config.Config
		logger *slog.Logger
	)
	app := fx.New(
		fx.WithLogger(newFxLogger),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			server.NewEcho,
			server.New,
			newLauncher,
			client.NewImageClient,
			func(c *client.ImageClient) service.Upstream { return c },
			service.NewImageProxyService,
			handler.NewProxyHandler,
			handler.NewStaticHandler,
			handler.NewHealthHandler,
		),
		fx.Populate(&cfg, &logger),
		fx.Invoke(handler.RegisterRoutes, warnOpenRelay, startServer),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error starting server: %v\n", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		reportStartError(logger, cfg, err)
		os.Exit(1)
	}

	sig := <-app.Wait()
	logger.Info("stopping server", "signal", sig.Signal.String())

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("server stopped, thanks for using the collage maker")
}

func reportStartError(logger *slog.Logger, cfg *config.Config, err error) {
	if errors.Is(err, server.ErrAddrInUse) {
		logger.Error("port is already in use; stop the existing server or pick another port",
			"port", cfg.Server.Port,
			"hint", fmt.Sprintf("collage-devserver --port %d", cfg.Server.Port+1),
		)
		return
	}
	logger.Error("error starting server", "err", err)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		h = slog.NewJSONHandler(os.Stdout, opts)
	default:
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

// newFxLogger routes fx lifecycle events through slog at debug level.
func newFxLogger(logger *slog.Logger) fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
	l.UseLogLevel(slog.LevelDebug)
	return l
}

func newLauncher(cfg *config.Config, logger *slog.Logger) *launcher.Launcher {
	return launcher.New(cfg.Server.BrowserEnabled(), logger)
}

func warnOpenRelay(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnOpenRelay(logger)
}

func startServer(lc fx.Lifecycle, srv *server.Server, cfg *config.Config, l *launcher.Launcher, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := srv.Start(ctx); err != nil {
				return err
			}
			logger.Info("collage maker is running",
				"url", srv.URL(),
				"root", cfg.Server.Root,
				"config", cfg.FilePath(),
			)
			logger.Info("press Ctrl+C to stop the server")
			l.Open(srv.URL())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}
