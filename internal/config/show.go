package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w. This powers the "config show" command.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")

	renderClientSection(ew, &cfg.Client)
	renderAuthSection(ew, &cfg.Auth)
	renderSessionSection(ew, &cfg.Session)
	renderLoggingSection(ew, &cfg.Logging)
	renderMetricsSection(ew, &cfg.Metrics)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderClientSection(ew *errWriter, c *ClientConfig) {
	ew.printf("[client]\n")
	ew.printf("  base_url      = %q\n", c.BaseURL)
	ew.printf("  dedup_window  = %q\n", c.DedupWindow)
	ew.printf("  call_timeout  = %q\n", c.CallTimeout)
	ew.printf("  user_agent    = %q\n", c.UserAgent)

	if c.CookieName != "" {
		ew.printf("  cookie_name   = %q\n", c.CookieName)
	}

	ew.printf("\n")
}

func renderAuthSection(ew *errWriter, a *AuthConfig) {
	ew.printf("[auth]\n")
	ew.printf("  login_path      = %q\n", a.LoginPath)
	ew.printf("  register_path   = %q\n", a.RegisterPath)
	ew.printf("  refresh_path    = %q\n", a.RefreshPath)
	ew.printf("  logout_path     = %q\n", a.LogoutPath)
	ew.printf("  refresh_timeout = %q\n", a.RefreshTimeout)
	ew.printf("  refresh_mode    = %q\n", a.RefreshMode)

	if a.RefreshMode == RefreshModeOAuth2 {
		ew.printf("\n[auth.oauth2]\n")
		ew.printf("  client_id = %q\n", a.OAuth2.ClientID)
		ew.printf("  token_url = %q\n", a.OAuth2.TokenURL)

		if len(a.OAuth2.Scopes) > 0 {
			ew.printf("  scopes    = [%s]\n", joinQuoted(a.OAuth2.Scopes))
		}
	}

	ew.printf("\n")
}

func renderSessionSection(ew *errWriter, s *SessionConfig) {
	ew.printf("[session]\n")
	ew.printf("  store         = %q\n", s.Store)

	switch s.Store {
	case StoreFile:
		ew.printf("  token_path    = %q\n", s.TokenPath)
		ew.printf("  watch         = %t\n", s.Watch)
	case StoreRedis:
		ew.printf("  redis_addr    = %q\n", s.RedisAddr)
		ew.printf("  redis_key     = %q\n", s.RedisKey)

		if s.RedisTTL != "" {
			ew.printf("  redis_ttl     = %q\n", s.RedisTTL)
		}
	case StoreSQLite:
		ew.printf("  sqlite_path   = %q\n", s.SQLitePath)
	}

	ew.printf("  login_route   = %q\n", s.LoginRoute)
	ew.printf("  public_routes = [%s]\n", joinQuoted(s.PublicRoutes))
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)
	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderMetricsSection(ew *errWriter, m *MetricsConfig) {
	ew.printf("[metrics]\n")
	ew.printf("  listen = %q\n", m.Listen)
}

func joinQuoted(ss []string) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}
