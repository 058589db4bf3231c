// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for authwire. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Client  ClientConfig  `toml:"client"`
	Auth    AuthConfig    `toml:"auth"`
	Session SessionConfig `toml:"session"`
	Logging LoggingConfig `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`
}

// ClientConfig controls the dispatch pipeline: where calls go, how long
// identical calls are coalesced, and how long one call may take.
type ClientConfig struct {
	BaseURL     string `toml:"base_url"`
	DedupWindow string `toml:"dedup_window"`
	CallTimeout string `toml:"call_timeout"`
	UserAgent   string `toml:"user_agent"`
	// CookieName, when set, also sends the credential as a cookie.
	CookieName string `toml:"cookie_name"`
}

// Refresh modes.
const (
	RefreshModeEndpoint = "endpoint"
	RefreshModeOAuth2   = "oauth2"
)

// AuthConfig locates the backend auth endpoints and selects how expired
// sessions are renewed.
type AuthConfig struct {
	LoginPath      string       `toml:"login_path"`
	RegisterPath   string       `toml:"register_path"`
	RefreshPath    string       `toml:"refresh_path"`
	LogoutPath     string       `toml:"logout_path"`
	RefreshTimeout string       `toml:"refresh_timeout"`
	RefreshMode    string       `toml:"refresh_mode"`
	OAuth2         OAuth2Config `toml:"oauth2"`
}

// OAuth2Config is used when refresh_mode = "oauth2".
type OAuth2Config struct {
	ClientID string   `toml:"client_id"`
	TokenURL string   `toml:"token_url"`
	Scopes   []string `toml:"scopes"`
}

// Session stores.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// SessionConfig selects where credential material is persisted and how
// teardown navigates.
type SessionConfig struct {
	Store        string   `toml:"store"`
	TokenPath    string   `toml:"token_path"`
	RedisAddr    string   `toml:"redis_addr"`
	RedisKey     string   `toml:"redis_key"`
	RedisTTL     string   `toml:"redis_ttl"`
	SQLitePath   string   `toml:"sqlite_path"`
	LoginRoute   string   `toml:"login_route"`
	PublicRoutes []string `toml:"public_routes"`
	// Watch reloads the session when the token file changes on disk.
	Watch bool `toml:"watch"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	BaseURL    *string // --base-url flag
	Store      *string // --store flag
}

// DedupWindowDuration returns the parsed dedup window.
func (c *ClientConfig) DedupWindowDuration() time.Duration {
	return durationOr(c.DedupWindow, defaultDedupWindow)
}

// CallTimeoutDuration returns the parsed per-call timeout.
func (c *ClientConfig) CallTimeoutDuration() time.Duration {
	return durationOr(c.CallTimeout, defaultCallTimeout)
}

// RefreshTimeoutDuration returns the parsed refresh guard.
func (a *AuthConfig) RefreshTimeoutDuration() time.Duration {
	return durationOr(a.RefreshTimeout, defaultRefreshTimeout)
}

// RedisTTLDuration returns the session key TTL; zero means no expiry.
func (s *SessionConfig) RedisTTLDuration() time.Duration {
	return durationOr(s.RedisTTL, 0)
}

// durationOr parses s, falling back to def for empty or invalid values.
// Validate rejects invalid values before they get here.
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}

	return d
}
