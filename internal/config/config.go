// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"collage-devserver.toml",
	"configs/config.toml",
}

// executableDir resolves the directory holding the running binary. Tests replace it.
var executableDir = func() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultUserAgent is sent upstream so image hosts that block bots still answer.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string           `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string           `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int              `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Root      string           `kong:"short='r',help='Directory to serve (overrides config).',env='ROOT_DIR'"`
	NoBrowser bool             `kong:"help='Do not open a browser after startup.',env='NO_BROWSER'"`
	LogLevel  string           `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Version   kong.VersionFlag `kong:"short='v',help='Print version and exit.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path, empty when running on defaults
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"` // 0 means "use default" (8000)
	Root        string `toml:"root"`
	OpenBrowser *bool  `toml:"open_browser"`
}

// ProxyConfig holds image proxy settings.
type ProxyConfig struct {
	Prefix             string   `toml:"prefix"`
	TimeoutSeconds     int      `toml:"timeout_seconds"`
	UserAgent          string   `toml:"user_agent"`
	CacheMaxAgeSeconds int      `toml:"cache_max_age_seconds"`
	DefaultContentType string   `toml:"default_content_type"`
	MaxBodyBytes       int64    `toml:"max_body_bytes"`
	IdleConnections    int      `toml:"idle_connections"`
	AllowedSchemes     []string `toml:"allowed_schemes"`
	AllowedHosts       []string `toml:"allowed_hosts"`
	BlockPrivate       bool     `toml:"block_private"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Reserved routes that neither the metrics path nor the proxy prefix may shadow.
const (
	HealthzPath = "/healthz"
	StatusPath  = "/_/status"
)

// Load reads the TOML config file (if any) and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// collage-devserver.toml then configs/config.toml. Finding neither is fine:
// the server runs on defaults.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if err := cfg.checkRoot(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Root != "" {
		c.Server.Root = cli.Root
	}
	if cli.NoBrowser {
		off := false
		c.Server.OpenBrowser = &off
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Proxy.TimeoutSeconds < 0 {
		return fmt.Errorf("proxy.timeout_seconds must be non-negative; got %d", c.Proxy.TimeoutSeconds)
	}
	if c.Proxy.CacheMaxAgeSeconds < 0 {
		return fmt.Errorf("proxy.cache_max_age_seconds must be non-negative; got %d", c.Proxy.CacheMaxAgeSeconds)
	}
	if c.Proxy.MaxBodyBytes < 0 {
		return fmt.Errorf("proxy.max_body_bytes must be non-negative; got %d", c.Proxy.MaxBodyBytes)
	}
	if c.Proxy.IdleConnections < 0 {
		return fmt.Errorf("proxy.idle_connections must be non-negative; got %d", c.Proxy.IdleConnections)
	}

	// Proxy prefix: a rooted path segment ending in a slash.
	if p := c.Proxy.Prefix; p != "" {
		if p == "/" || !strings.HasPrefix(p, "/") || !strings.HasSuffix(p, "/") {
			return fmt.Errorf("proxy.prefix must start and end with '/' and not be '/'; got %q", p)
		}
	}

	for _, s := range c.Proxy.AllowedSchemes {
		switch strings.ToLower(s) {
		case "http", "https":
		default:
			return fmt.Errorf("proxy.allowed_schemes may only contain http or https; got %q", s)
		}
	}
	for _, h := range c.Proxy.AllowedHosts {
		if h == "" || strings.ContainsAny(h, "/:") {
			return fmt.Errorf("proxy.allowed_hosts entries must be bare host names; got %q", h)
		}
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		prefix := strings.TrimSuffix(c.Proxy.Prefix, "/")
		if prefix == "" {
			prefix = "/proxy"
		}
		for _, reserved := range []string{prefix, HealthzPath, StatusPath} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() error {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Root == "" {
		dir, err := executableDir()
		if err != nil {
			return fmt.Errorf("resolve executable directory: %w", err)
		}
		c.Server.Root = dir
	}
	if c.Server.OpenBrowser == nil {
		on := true
		c.Server.OpenBrowser = &on
	}
	if c.Proxy.Prefix == "" {
		c.Proxy.Prefix = "/proxy/"
	}
	if c.Proxy.TimeoutSeconds == 0 {
		c.Proxy.TimeoutSeconds = 10
	}
	if c.Proxy.UserAgent == "" {
		c.Proxy.UserAgent = DefaultUserAgent
	}
	if c.Proxy.CacheMaxAgeSeconds == 0 {
		c.Proxy.CacheMaxAgeSeconds = 3600
	}
	if c.Proxy.DefaultContentType == "" {
		c.Proxy.DefaultContentType = "image/jpeg"
	}
	if c.Proxy.MaxBodyBytes == 0 {
		c.Proxy.MaxBodyBytes = 32 * 1024 * 1024 // 32 MB
	}
	if c.Proxy.IdleConnections == 0 {
		c.Proxy.IdleConnections = 16
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	return nil
}

// checkRoot makes the served directory absolute and verifies it exists.
func (c *Config) checkRoot() error {
	abs, err := filepath.Abs(c.Server.Root)
	if err != nil {
		return fmt.Errorf("server.root %q: %w", c.Server.Root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("server.root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("server.root %q: %w", abs, errors.New("not a directory"))
	}
	c.Server.Root = abs
	return nil
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BrowserEnabled reports whether a browser should be opened after startup.
func (c *ServerConfig) BrowserEnabled() bool {
	return c.OpenBrowser == nil || *c.OpenBrowser
}

// Restricted reports whether any upstream host policy is configured.
func (c *ProxyConfig) Restricted() bool {
	return len(c.AllowedSchemes) > 0 || len(c.AllowedHosts) > 0 || c.BlockPrivate
}

// FilePath returns the config file the values were read from, or "" when
// running on defaults.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnOpenRelay logs a warning when the proxy accepts any upstream URL.
func (c *Config) WarnOpenRelay(logger *slog.Logger) {
	if c.Proxy.Restricted() {
		return
	}
	logger.Warn("image proxy accepts any upstream URL; set proxy.allowed_hosts or proxy.block_private to restrict it",
		"prefix", c.Proxy.Prefix,
		"listen", c.Server.Addr(),
	)
}
