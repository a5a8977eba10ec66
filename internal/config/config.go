// Package config handles TOML/YAML configuration loading and validation.
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
	"gopkg.in/yaml.v3"
)

// Deployment modes.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// LoopbackHost is blocked in every deployment mode.
const LoopbackHost = "127.0.0.1"

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/cors-wrapper/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string           `kong:"short='c',help='Path to TOML or YAML config file.',env='CONFIG_PATH'"`
	Host        string           `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port        int              `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Environment string           `kong:"short='e',help='Deployment mode: development|production (overrides config).',env='APP_ENVIRONMENT'"`
	LogLevel    string           `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Version     kong.VersionFlag `kong:"help='Print version and exit.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" yaml:"server"`
	App      AppConfig      `toml:"app" yaml:"app"`
	Guard    GuardConfig    `toml:"guard" yaml:"guard"`
	Upstream UpstreamConfig `toml:"upstream" yaml:"upstream"`
	CORS     CORSConfig     `toml:"cors" yaml:"cors"`
	Log      LogConfig      `toml:"log" yaml:"log"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
	Tracing  TracingConfig  `toml:"tracing" yaml:"tracing"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host" yaml:"host"`
	Port         int    `toml:"port" yaml:"port"` // 0 means "use default" (3001)
	BodyMaxBytes int64  `toml:"body_max_bytes" yaml:"body_max_bytes"`
}

// AppConfig identifies the deployment.
type AppConfig struct {
	Environment string         `toml:"environment" yaml:"environment"`
	Name        string         `toml:"name" yaml:"name"`
	Version     string         `toml:"version" yaml:"version"`
	ServerIP    ServerIPConfig `toml:"server_ip" yaml:"server_ip"`
}

// ServerIPConfig holds the advertised server address per deployment mode.
type ServerIPConfig struct {
	Development string `toml:"development" yaml:"development"`
	Production  string `toml:"production" yaml:"production"`
}

// GuardConfig lists hostnames that may never be forwarded to, per deployment mode.
// The loopback address is always blocked on top of these.
type GuardConfig struct {
	Development []string `toml:"development" yaml:"development"`
	Production  []string `toml:"production" yaml:"production"`
}

// UpstreamConfig holds outbound connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds" yaml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections" yaml:"idle_connections"`
	// MaxBodyBytes caps an upstream response body, both as received and
	// after Content-Encoding is removed.
	MaxBodyBytes       int64 `toml:"max_body_bytes" yaml:"max_body_bytes"`
	InsecureSkipVerify *bool `toml:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// DefaultUpstreamMaxBodyBytes is the upstream body cap when none is configured.
const DefaultUpstreamMaxBodyBytes = 32 * 1024 * 1024

// CORSConfig holds the allowed browser origins per deployment mode.
type CORSConfig struct {
	DevelopmentOrigins []string `toml:"development_origins" yaml:"development_origins"`
	ProductionOrigins  []string `toml:"production_origins" yaml:"production_origins"`
	MaxAgeSeconds      int      `toml:"max_age_seconds" yaml:"max_age_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool     `toml:"enabled" yaml:"enabled"`
	Endpoint     string   `toml:"endpoint" yaml:"endpoint"`
	ServiceName  string   `toml:"service_name" yaml:"service_name"`
	SamplingRate *float64 `toml:"sampling_rate" yaml:"sampling_rate"`
}

// Load reads the config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/cors-wrapper/config.toml then configs/config.toml, and falls back to
// built-in defaults if neither exists.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// decode picks the decoder from the file extension; anything that is not
// YAML is treated as TOML.
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return toml.Unmarshal(data, cfg)
	}
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Environment != "" {
		c.App.Environment = cli.Environment
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.App.Environment) {
	case EnvDevelopment, EnvProduction, "":
		// valid
	default:
		return fmt.Errorf("app.environment must be one of: development, production; got %q", c.App.Environment)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Upstream.MaxBodyBytes < 0 {
		return fmt.Errorf("upstream.max_body_bytes must be non-negative; got %d", c.Upstream.MaxBodyBytes)
	}
	if c.CORS.MaxAgeSeconds < 0 {
		return fmt.Errorf("cors.max_age_seconds must be non-negative; got %d", c.CORS.MaxAgeSeconds)
	}

	for _, h := range append(append([]string{}, c.Guard.Development...), c.Guard.Production...) {
		if strings.TrimSpace(h) == "" {
			return errors.New("guard: blocked hostnames must not be empty")
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
		for _, reserved := range []string{"/api", "/proxy", "/health", "/healthz"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	if c.Tracing.SamplingRate != nil {
		if r := *c.Tracing.SamplingRate; r < 0 || r > 1 {
			return fmt.Errorf("tracing.sampling_rate must be within 0–1; got %v", r)
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key. Lists that are absent (nil) get
// their defaults; an explicit empty list is kept as is.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}

	c.App.Environment = strings.ToLower(c.App.Environment)
	if c.App.Environment == "" {
		c.App.Environment = EnvProduction
	}
	if c.App.Name == "" {
		c.App.Name = "API-Tester-Pro-Wrapper"
	}
	if c.App.Version == "" {
		c.App.Version = "1.0.0"
	}
	if c.App.ServerIP.Development == "" {
		c.App.ServerIP.Development = "localhost"
	}
	if c.App.ServerIP.Production == "" {
		c.App.ServerIP.Production = "192.168.120.4"
	}

	if c.Guard.Development == nil {
		c.Guard.Development = []string{"localhost"}
	}
	if c.Guard.Production == nil {
		c.Guard.Production = []string{"10.106.246.81"}
	}

	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 60
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Upstream.MaxBodyBytes == 0 {
		c.Upstream.MaxBodyBytes = DefaultUpstreamMaxBodyBytes
	}
	if c.Upstream.InsecureSkipVerify == nil {
		relaxed := true
		c.Upstream.InsecureSkipVerify = &relaxed
	}

	if c.CORS.DevelopmentOrigins == nil {
		c.CORS.DevelopmentOrigins = []string{
			"http://localhost:8080",
			"http://localhost:8081",
			"http://localhost:8082",
			"http://localhost:3000",
		}
	}
	if c.CORS.ProductionOrigins == nil {
		c.CORS.ProductionOrigins = []string{"*"}
	}
	if c.CORS.MaxAgeSeconds == 0 {
		c.CORS.MaxAgeSeconds = 3600
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "cors-wrapper"
	}
	if c.Tracing.SamplingRate == nil {
		full := 1.0
		c.Tracing.SamplingRate = &full
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

// IsDevelopment reports whether the active deployment mode is development.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.App.Environment, EnvDevelopment)
}

// ServerIP returns the advertised server address for the active mode.
func (c *Config) ServerIP() string {
	if c.IsDevelopment() {
		return c.App.ServerIP.Development
	}
	return c.App.ServerIP.Production
}

// BlockedHosts returns the loopback address plus the active mode's blocked hostnames.
func (c *Config) BlockedHosts() []string {
	extra := c.Guard.Production
	if c.IsDevelopment() {
		extra = c.Guard.Development
	}
	hosts := make([]string, 0, len(extra)+1)
	hosts = append(hosts, LoopbackHost)
	return append(hosts, extra...)
}

// AllowedOrigins returns the CORS origins for the active mode.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return c.CORS.DevelopmentOrigins
	}
	return c.CORS.ProductionOrigins
}

// UserAgent returns the product token sent on every outbound request.
func (c *Config) UserAgent() string {
	return c.App.Name + "/" + c.App.Version
}

// SkipVerify reports whether upstream TLS certificate checks are relaxed.
// Unset means relaxed, so self-signed targets work out of the box.
func (u *UpstreamConfig) SkipVerify() bool {
	return u.InsecureSkipVerify == nil || *u.InsecureSkipVerify
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
