// Package launcher opens the served site in the user's default browser.
package launcher

import (
	"io"
	"log/slog"

	"github.com/pkg/browser"
)

// OpenFunc opens url in a browser.
type OpenFunc func(url string) error

// Launcher opens a browser once the server is up. Failure is only logged:
// the server is useful without it.
type Launcher struct {
	open    OpenFunc
	enabled bool
	logger  *slog.Logger
}

func init() {
	// pkg/browser echoes the spawned command's output; keep the terminal
	// for our own logs.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// New creates a Launcher using the system default browser.
func New(enabled bool, logger *slog.Logger) *Launcher {
	return NewWithOpener(browser.OpenURL, enabled, logger)
}

// NewWithOpener creates a Launcher with a custom opener.
func NewWithOpener(open OpenFunc, enabled bool, logger *slog.Logger) *Launcher {
	return &Launcher{
		open:    open,
		enabled: enabled,
		logger:  logger.With("component", "launcher"),
	}
}

// Open opens url if the launcher is enabled and reports whether a browser
// was started.
func (l *Launcher) Open(url string) bool {
	if !l.enabled {
		l.logger.Debug("browser launch disabled", "url", url)
		return false
	}
	if err := l.open(url); err != nil {
		l.logger.Warn("could not open browser automatically", "url", url, "err", err)
		return false
	}
	l.logger.Info("browser opened", "url", url)
	return true
}
