package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Validation range constants.
const (
	minDedupWindow    = 10 * time.Millisecond
	maxDedupWindow    = time.Minute
	minCallTimeout    = time.Second
	minRefreshTimeout = time.Second
)

var (
	validStores     = []string{StoreFile, StoreRedis, StoreSQLite, StoreMemory}
	validModes      = []string{RefreshModeEndpoint, RefreshModeOAuth2}
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateClient(&cfg.Client)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateClient(c *ClientConfig) []error {
	var errs []error

	if c.BaseURL != "" {
		if err := validateAbsoluteURL(c.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("base_url: %w", err))
		}
	}

	errs = appendDurationErr(errs, "dedup_window", c.DedupWindow, minDedupWindow, maxDedupWindow)
	errs = appendDurationErr(errs, "call_timeout", c.CallTimeout, minCallTimeout, 0)

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	for name, p := range map[string]string{
		"login_path":    a.LoginPath,
		"register_path": a.RegisterPath,
		"refresh_path":  a.RefreshPath,
		"logout_path":   a.LogoutPath,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s: must start with /, got %q", name, p))
		}
	}

	errs = appendDurationErr(errs, "refresh_timeout", a.RefreshTimeout, minRefreshTimeout, 0)

	if !slices.Contains(validModes, a.RefreshMode) {
		errs = append(errs, fmt.Errorf("refresh_mode: must be one of %s, got %q",
			strings.Join(validModes, ", "), a.RefreshMode))
	}

	if a.RefreshMode == RefreshModeOAuth2 {
		if a.OAuth2.ClientID == "" {
			errs = append(errs, errors.New("oauth2.client_id: required when refresh_mode is oauth2"))
		}

		if err := validateAbsoluteURL(a.OAuth2.TokenURL); err != nil {
			errs = append(errs, fmt.Errorf("oauth2.token_url: %w", err))
		}
	}

	return errs
}

func validateSession(s *SessionConfig) []error {
	var errs []error

	if !slices.Contains(validStores, s.Store) {
		errs = append(errs, fmt.Errorf("store: must be one of %s, got %q",
			strings.Join(validStores, ", "), s.Store))
	}

	switch s.Store {
	case StoreFile:
		if s.TokenPath == "" {
			errs = append(errs, errors.New("token_path: required for the file store"))
		}
	case StoreRedis:
		if s.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr: required for the redis store"))
		}

		if s.RedisKey == "" {
			errs = append(errs, errors.New("redis_key: must not be empty"))
		}
	case StoreSQLite:
		if s.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite_path: required for the sqlite store"))
		}
	}

	if s.RedisTTL != "" {
		errs = appendDurationErr(errs, "redis_ttl", s.RedisTTL, time.Second, 0)
	}

	if s.Watch && s.Store != StoreFile {
		errs = append(errs, errors.New("watch: only supported with the file store"))
	}

	if !strings.HasPrefix(s.LoginRoute, "/") {
		errs = append(errs, fmt.Errorf("login_route: must start with /, got %q", s.LoginRoute))
	}

	for _, r := range s.PublicRoutes {
		if !strings.HasPrefix(r, "/") {
			errs = append(errs, fmt.Errorf("public_routes: route %q must start with /", r))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !slices.Contains(validLogLevels, l.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %s, got %q",
			strings.Join(validLogLevels, ", "), l.LogLevel))
	}

	if !slices.Contains(validLogFormats, l.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format: must be one of %s, got %q",
			strings.Join(validLogFormats, ", "), l.LogFormat))
	}

	return errs
}

// appendDurationErr validates a duration string against [minD, maxD]. A zero
// maxD means unbounded.
func appendDurationErr(errs []error, name, value string, minD, maxD time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, fmt.Errorf("%s: invalid duration %q: %w", name, value, err))
	}

	if d < minD {
		return append(errs, fmt.Errorf("%s: must be at least %s, got %s", name, minD, d))
	}

	if maxD > 0 && d > maxD {
		return append(errs, fmt.Errorf("%s: must be at most %s, got %s", name, maxD, d))
	}

	return errs
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http or https URL, got %q", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}

	return nil
}
