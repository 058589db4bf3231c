package config

import "time"

// Default values for configuration options. These are "layer 0" of the
// four-layer override chain.
const (
	defaultDedupWindowStr    = "1s"
	defaultCallTimeoutStr    = "25s"
	defaultRefreshTimeoutStr = "25s"
	defaultUserAgent         = "authwire/0.1"
	defaultLoginPath         = "/auth/login"
	defaultRegisterPath      = "/auth/register"
	defaultRefreshPath       = "/auth/refresh"
	defaultLogoutPath        = "/auth/logout"
	defaultRedisKey          = "authwire:session"
	defaultLoginRoute        = "/login"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"

	defaultDedupWindow    = time.Second
	defaultCallTimeout    = 25 * time.Second
	defaultRefreshTimeout = 25 * time.Second
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			DedupWindow: defaultDedupWindowStr,
			CallTimeout: defaultCallTimeoutStr,
			UserAgent:   defaultUserAgent,
		},
		Auth: AuthConfig{
			LoginPath:      defaultLoginPath,
			RegisterPath:   defaultRegisterPath,
			RefreshPath:    defaultRefreshPath,
			LogoutPath:     defaultLogoutPath,
			RefreshTimeout: defaultRefreshTimeoutStr,
			RefreshMode:    RefreshModeEndpoint,
		},
		Session: SessionConfig{
			Store:        StoreFile,
			TokenPath:    DefaultTokenPath(),
			RedisKey:     defaultRedisKey,
			SQLitePath:   DefaultSQLitePath(),
			LoginRoute:   defaultLoginRoute,
			PublicRoutes: []string{"/login", "/register", "/forgot-password"},
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
