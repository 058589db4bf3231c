package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[client]
base_url = "https://api.example.com"
dedup_window = "500ms"
call_timeout = "10s"
user_agent = "myapp/1.0"
cookie_name = "sid"

[auth]
login_path = "/v1/login"
register_path = "/v1/signup"
refresh_path = "/v1/token/refresh"
logout_path = "/v1/logout"
refresh_timeout = "5s"
refresh_mode = "oauth2"

[auth.oauth2]
client_id = "cli"
token_url = "https://id.example.com/oauth/token"
scopes = ["openid", "offline_access"]

[session]
store = "redis"
redis_addr = "localhost:6379"
redis_key = "myapp:session"
redis_ttl = "24h"
login_route = "/signin"
public_routes = ["/signin", "/help"]

[logging]
log_level = "debug"
log_format = "json"

[metrics]
listen = ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Client.BaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.DedupWindowDuration())
	assert.Equal(t, 10*time.Second, cfg.Client.CallTimeoutDuration())
	assert.Equal(t, "sid", cfg.Client.CookieName)
	assert.Equal(t, "/v1/token/refresh", cfg.Auth.RefreshPath)
	assert.Equal(t, 5*time.Second, cfg.Auth.RefreshTimeoutDuration())
	assert.Equal(t, RefreshModeOAuth2, cfg.Auth.RefreshMode)
	assert.Equal(t, []string{"openid", "offline_access"}, cfg.Auth.OAuth2.Scopes)
	assert.Equal(t, StoreRedis, cfg.Session.Store)
	assert.Equal(t, 24*time.Hour, cfg.Session.RedisTTLDuration())
	assert.Equal(t, []string{"/signin", "/help"}, cfg.Session.PublicRoutes)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `
[client]
base_url = "http://localhost:8080"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Client.BaseURL)
	assert.Equal(t, time.Second, cfg.Client.DedupWindowDuration())
	assert.Equal(t, 25*time.Second, cfg.Client.CallTimeoutDuration())
	assert.Equal(t, "/auth/refresh", cfg.Auth.RefreshPath)
	assert.Equal(t, StoreFile, cfg.Session.Store)
	assert.Equal(t, "info", cfg.Logging.LogLevel)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[client\nbase_url = ")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrors(t *testing.T) {
	path := writeTestConfig(t, `
[client]
dedup_window = "forever"

[session]
store = "postgres"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup_window")
	assert.Contains(t, err.Error(), "store")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Precedence(t *testing.T) {
	path := writeTestConfig(t, `
[client]
base_url = "https://file.example.com"

[session]
store = "memory"
`)

	tests := []struct {
		name      string
		env       EnvOverrides
		cli       CLIOverrides
		wantURL   string
		wantStore string
	}{
		{
			name:      "file only",
			env:       EnvOverrides{ConfigPath: path},
			wantURL:   "https://file.example.com",
			wantStore: StoreMemory,
		},
		{
			name:      "env beats file",
			env:       EnvOverrides{ConfigPath: path, BaseURL: "https://env.example.com", Store: StoreFile},
			wantURL:   "https://env.example.com",
			wantStore: StoreFile,
		},
		{
			name:      "cli beats env",
			env:       EnvOverrides{ConfigPath: path, BaseURL: "https://env.example.com"},
			cli:       CLIOverrides{BaseURL: ptr("https://cli.example.com"), Store: ptr(StoreMemory)},
			wantURL:   "https://cli.example.com",
			wantStore: StoreMemory,
		},
		{
			name:      "cli config path beats env",
			env:       EnvOverrides{ConfigPath: filepath.Join(t.TempDir(), "absent.toml")},
			cli:       CLIOverrides{ConfigPath: path},
			wantURL:   "https://file.example.com",
			wantStore: StoreMemory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Resolve(tt.env, tt.cli)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, cfg.Client.BaseURL)
			assert.Equal(t, tt.wantStore, cfg.Session.Store)
		})
	}
}

func TestResolve_InvalidOverride(t *testing.T) {
	path := writeTestConfig(t, "")

	_, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{BaseURL: ptr("ftp://nope")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/authwire.toml")
	t.Setenv(EnvBaseURL, "https://env.example.com")
	t.Setenv(EnvStore, StoreSQLite)
	t.Setenv(EnvLogLevel, "debug")

	assert.Equal(t, EnvOverrides{
		ConfigPath: "/etc/authwire.toml",
		BaseURL:    "https://env.example.com",
		Store:      StoreSQLite,
		LogLevel:   "debug",
	}, ReadEnvOverrides())
}

func TestResolve_EnvLogLevel(t *testing.T) {
	path := writeTestConfig(t, "[logging]\nlog_level = \"warn\"\n")

	cfg, err := Resolve(EnvOverrides{ConfigPath: path, LogLevel: "debug"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)

	_, err = Resolve(EnvOverrides{ConfigPath: path, LogLevel: "loud"}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/cli.toml", ResolvePath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{ConfigPath: "/cli.toml"}))
	assert.Equal(t, "/env.toml", ResolvePath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{}))
	assert.Equal(t, DefaultConfigPath(), ResolvePath(EnvOverrides{}, CLIOverrides{}))
}

func TestDefaultPaths_RespectXDG(t *testing.T) {
	if DefaultConfigDir() == "" {
		t.Skip("no home directory")
	}

	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_DATA_HOME", "/xdg/data")

	if filepath.Dir(DefaultConfigDir()) != "/xdg/config" {
		t.Skip("platform does not use XDG directories")
	}

	assert.Equal(t, "/xdg/config/authwire/config.toml", DefaultConfigPath())
	assert.Equal(t, "/xdg/data/authwire/token.json", DefaultTokenPath())
	assert.Equal(t, "/xdg/data/authwire/sessions.db", DefaultSQLitePath())
}

func ptr[T any](v T) *T { return &v }
