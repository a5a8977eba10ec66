package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to name inside a fresh temp dir and returns its path.
func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[app]
environment = "development"
name = "Wrapper"
version = "2.1.0"

[guard]
development = ["localhost", "internal.example"]
production = ["10.0.0.1"]

[upstream]
timeout_seconds = 30
idle_connections = 50
max_body_bytes = 1048576
insecure_skip_verify = false

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if !cfg.IsDevelopment() {
		t.Errorf("IsDevelopment() = false, want true")
	}
	if cfg.UserAgent() != "Wrapper/2.1.0" {
		t.Errorf("UserAgent() = %q, want %q", cfg.UserAgent(), "Wrapper/2.1.0")
	}
	if cfg.Upstream.TimeoutSeconds != 30 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 30)
	}
	if cfg.Upstream.MaxBodyBytes != 1048576 {
		t.Errorf("Upstream.MaxBodyBytes = %d, want %d", cfg.Upstream.MaxBodyBytes, 1048576)
	}
	if cfg.Upstream.SkipVerify() {
		t.Error("Upstream.SkipVerify() = true, want false")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	want := []string{"127.0.0.1", "localhost", "internal.example"}
	if got := cfg.BlockedHosts(); !slices.Equal(got, want) {
		t.Errorf("BlockedHosts() = %v, want %v", got, want)
	}
}

func TestLoad_YAMLConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  port: 4000
app:
  environment: production
guard:
  production:
    - blocked.example
cors:
  production_origins:
    - https://app.example
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 4000)
	}
	want := []string{"127.0.0.1", "blocked.example"}
	if got := cfg.BlockedHosts(); !slices.Equal(got, want) {
		t.Errorf("BlockedHosts() = %v, want %v", got, want)
	}
	if got := cfg.AllowedOrigins(); !slices.Equal(got, []string{"https://app.example"}) {
		t.Errorf("AllowedOrigins() = %v, want [https://app.example]", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "config.toml", "# empty\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 3001 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 3001)
	}
	if cfg.Server.BodyMaxBytes != 10*1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 10*1024*1024)
	}
	if cfg.App.Environment != EnvProduction {
		t.Errorf("default App.Environment = %q, want %q", cfg.App.Environment, EnvProduction)
	}
	if cfg.UserAgent() != "API-Tester-Pro-Wrapper/1.0.0" {
		t.Errorf("default UserAgent() = %q, want %q", cfg.UserAgent(), "API-Tester-Pro-Wrapper/1.0.0")
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("default Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Upstream.MaxBodyBytes != DefaultUpstreamMaxBodyBytes {
		t.Errorf("default Upstream.MaxBodyBytes = %d, want %d", cfg.Upstream.MaxBodyBytes, DefaultUpstreamMaxBodyBytes)
	}
	if !cfg.Upstream.SkipVerify() {
		t.Error("default Upstream.SkipVerify() = false, want true")
	}
	if cfg.ServerIP() != "192.168.120.4" {
		t.Errorf("default ServerIP() = %q, want %q", cfg.ServerIP(), "192.168.120.4")
	}
	if got := cfg.BlockedHosts(); !slices.Equal(got, []string{"127.0.0.1", "10.106.246.81"}) {
		t.Errorf("default BlockedHosts() = %v", got)
	}
	if got := cfg.AllowedOrigins(); !slices.Equal(got, []string{"*"}) {
		t.Errorf("default AllowedOrigins() = %v, want [*]", got)
	}
	if cfg.CORS.MaxAgeSeconds != 3600 {
		t.Errorf("default CORS.MaxAgeSeconds = %d, want %d", cfg.CORS.MaxAgeSeconds, 3600)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Tracing.ServiceName != "cors-wrapper" {
		t.Errorf("default Tracing.ServiceName = %q, want %q", cfg.Tracing.ServiceName, "cors-wrapper")
	}
	if *cfg.Tracing.SamplingRate != 1.0 {
		t.Errorf("default Tracing.SamplingRate = %v, want 1", *cfg.Tracing.SamplingRate)
	}
}

func TestLoad_DevelopmentDefaults(t *testing.T) {
	cfg, err := Load(&CLI{Config: writeConfig(t, "config.toml", ""), Environment: "Development"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Environment != EnvDevelopment {
		t.Errorf("App.Environment = %q, want %q", cfg.App.Environment, EnvDevelopment)
	}
	if cfg.ServerIP() != "localhost" {
		t.Errorf("ServerIP() = %q, want %q", cfg.ServerIP(), "localhost")
	}
	if got := cfg.BlockedHosts(); !slices.Equal(got, []string{"127.0.0.1", "localhost"}) {
		t.Errorf("BlockedHosts() = %v, want [127.0.0.1 localhost]", got)
	}
	if got := cfg.AllowedOrigins(); len(got) != 4 || got[0] != "http://localhost:8080" {
		t.Errorf("AllowedOrigins() = %v, want the localhost origins", got)
	}
}

func TestLoad_EmptyGuardListKept(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[guard]
production = []
`)
	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.BlockedHosts(); !slices.Equal(got, []string{"127.0.0.1"}) {
		t.Errorf("BlockedHosts() = %v, want loopback only", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(cliWithPath(writeConfig(t, "config.toml", "[server\nport = ")))
	if err == nil {
		t.Fatal("Load() expected error for malformed TOML, got nil")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want config: parse prefix", err)
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[server]
host = "0.0.0.0"
port = 8000

[app]
environment = "production"

[log]
level = "info"
`)

	cli := &CLI{
		Config:      path,
		Host:        "127.0.0.1",
		Port:        3000,
		Environment: "development",
		LogLevel:    "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.App.Environment != EnvDevelopment {
		t.Errorf("App.Environment = %q, want %q (CLI override)", cfg.App.Environment, EnvDevelopment)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"unknown environment", "[app]\nenvironment = \"staging\"\n", "app.environment"},
		{"negative port", "[server]\nport = -1\n", "server.port"},
		{"port too large", "[server]\nport = 70000\n", "server.port"},
		{"negative body_max_bytes", "[server]\nbody_max_bytes = -1\n", "server.body_max_bytes"},
		{"negative timeout", "[upstream]\ntimeout_seconds = -5\n", "upstream.timeout_seconds"},
		{"negative idle connections", "[upstream]\nidle_connections = -1\n", "upstream.idle_connections"},
		{"negative upstream body cap", "[upstream]\nmax_body_bytes = -1\n", "upstream.max_body_bytes"},
		{"negative cors max age", "[cors]\nmax_age_seconds = -1\n", "cors.max_age_seconds"},
		{"blank blocked host", "[guard]\nproduction = [\" \"]\n", "guard"},
		{"invalid log level", "[log]\nlevel = \"verbose\"\n", "log.level"},
		{"invalid log format", "[log]\nformat = \"xml\"\n", "log.format"},
		{"sampling rate above one", "[tracing]\nsampling_rate = 1.5\n", "tracing.sampling_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, "config.toml", tt.data)))
			if err == nil {
				t.Fatalf("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths_Found(t *testing.T) {
	path := writeConfig(t, "config.toml", "[server]\nport = 3001\n")

	got := findConfigInPaths([]string{path})
	if got != path {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path)
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"})
	if got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestFindConfigInPaths_Priority(t *testing.T) {
	path1 := writeConfig(t, "config.toml", "[server]\nport = 3001\n")
	path2 := writeConfig(t, "config.toml", "[server]\nport = 3002\n")

	got := findConfigInPaths([]string{path1, path2})
	if got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
}

func TestLoad_MetricsPathDefault(t *testing.T) {
	path := writeConfig(t, "config.toml", "[metrics]\nenabled = true\n")

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_MetricsPathNoLeadingSlash(t *testing.T) {
	path := writeConfig(t, "config.toml", "[metrics]\nenabled = true\npath = \"metrics\"\n")

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for metrics.path without leading slash, got nil")
	}
	if !strings.Contains(err.Error(), "metrics.path") {
		t.Errorf("error = %q, want mention of metrics.path", err)
	}
}

func TestLoad_MetricsPathConflictsWithRoute(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"api exact", "/api"},
		{"api wrapper", "/api/wrapper"},
		{"proxy", "/proxy"},
		{"health", "/health"},
		{"healthz", "/healthz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeConfig(t, "config.toml", "[metrics]\nenabled = true\npath = \""+tt.path+"\"\n")

			_, err := Load(cliWithPath(cfgPath))
			if err == nil {
				t.Fatalf("Load() expected error for metrics.path=%q conflicting with route, got nil", tt.path)
			}
			if !strings.Contains(err.Error(), "conflicts") {
				t.Errorf("error = %q, want mention of conflict", err)
			}
		})
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, "config.toml", "[metrics]\nenabled = false\npath = \"bad-no-slash\"\n")

	_, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v; disabled metrics should skip path validation", err)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
