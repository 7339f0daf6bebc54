// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"dispatch-proxy-go/internal/model"
	"dispatch-proxy-go/internal/route"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/dispatch-proxy/config.toml",
	"configs/config.toml",
}

// reservedPaths are served by the proxy itself and cannot host the metrics endpoint.
var reservedPaths = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config           string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host             string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port             int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel         string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	APIServerURL     string `kong:"name='api-server-url',help='Target for paths under /api (overrides config).',env='API_SERVER_URL'"`
	APIMode          string `kong:"name='api-mode',help='PROXY or REDIRECT for the /api route (overrides config).',env='API_MODE'"`
	DefaultServerURL string `kong:"name='default-server-url',help='Fallback target (overrides config).',env='DEFAULT_SERVER_URL'"`
	DefaultMode      string `kong:"name='default-mode',help='PROXY or REDIRECT for the fallback (overrides config).',env='DEFAULT_MODE'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	API      TargetConfig   `toml:"api"`
	Fallback TargetConfig   `toml:"fallback"`
	Routes   []RouteConfig  `toml:"routes"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Event    EventConfig    `toml:"event"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// TargetConfig configures one of the fixed routes (api, fallback).
type TargetConfig struct {
	TargetURL string `toml:"target_url"`
	Mode      string `toml:"mode"`
}

// RouteConfig is one dynamic route. Order in the file is match priority.
type RouteConfig struct {
	Path      string `toml:"path"`
	TargetURL string `toml:"target_url"`
	Mode      string `toml:"mode"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	IdleConnections int      `toml:"idle_connections"`
	FollowRedirects bool     `toml:"follow_redirects"`
	StripHeaders    []string `toml:"strip_headers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"` // stdout (default) or stderr
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// EventConfig holds settings for the serverless event adapter.
type EventConfig struct {
	FunctionPrefix string `toml:"function_prefix"`
}

// Load reads the TOML config file, applies environment routes and CLI
// overrides, and validates the result.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/dispatch-proxy/config.toml then configs/config.toml; if neither exists
// the defaults plus environment are used.
func Load(cli *CLI) (*Config, error) {
	return load(cli, os.LookupEnv)
}

func load(cli *CLI, lookup func(string) (string, bool)) (*Config, error) {
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

	if envRoutes := RoutesFromEnv(lookup); len(envRoutes) > 0 {
		cfg.Routes = envRoutes
	}
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
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
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.APIServerURL != "" {
		c.API.TargetURL = cli.APIServerURL
	}
	if cli.APIMode != "" {
		c.API.Mode = cli.APIMode
	}
	if cli.DefaultServerURL != "" {
		c.Fallback.TargetURL = cli.DefaultServerURL
	}
	if cli.DefaultMode != "" {
		c.Fallback.Mode = cli.DefaultMode
	}
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 30
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Event.FunctionPrefix == "" {
		c.Event.FunctionPrefix = "/.netlify/functions/proxy"
	}
}

// RouteTable builds the immutable route table described by c.
func (c *Config) RouteTable() *route.Table {
	entries := make([]route.Entry, 0, len(c.Routes))
	for _, r := range c.Routes {
		entries = append(entries, route.Entry{Path: r.Path, Target: r.TargetURL, Mode: r.Mode})
	}
	return route.Build(entries,
		route.Target{URL: c.API.TargetURL, Mode: model.ParseMode(c.API.Mode)},
		route.Target{URL: c.Fallback.TargetURL, Mode: model.ParseMode(c.Fallback.Mode)},
	)
}

// activeRoutes returns the routes before the first entry missing its path or
// target. Those are the only entries the route table consults.
func (c *Config) activeRoutes() []RouteConfig {
	for i, r := range c.Routes {
		if r.Path == "" || r.TargetURL == "" {
			return c.Routes[:i]
		}
	}
	return c.Routes
}

// WarnGaps logs configured routes that follow a gap and are therefore never
// consulted by the route table.
func (c *Config) WarnGaps(logger *slog.Logger) {
	n := len(c.activeRoutes())
	if skipped := len(c.Routes) - n - 1; skipped > 0 {
		logger.Warn("route list ends at incomplete entry; later routes are ignored",
			"index", n+1,
			"ignored", skipped,
		)
	}
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

// FilePath returns the config file that was loaded, or "" when running from
// defaults and environment only.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

var errMetricsPathReserved = errors.New("conflicts with a reserved route")

func isReserved(p string) bool {
	for _, reserved := range reservedPaths {
		if p == reserved || strings.HasPrefix(p, reserved+"/") {
			return true
		}
	}
	return false
}
