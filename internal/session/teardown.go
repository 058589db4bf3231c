package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/tonimelisma/authwire/internal/failure"
)

// DefaultLoginRoute is where teardown sends the user.
const DefaultLoginRoute = "/login"

// DefaultPublicRoutes are reachable without a session; teardown does not
// redirect away from them.
var DefaultPublicRoutes = []string{"/login", "/register", "/forgot-password"}

// Navigator is the navigation layer that receives redirect instructions.
type Navigator interface {
	// CurrentRoute returns the route the user is on, "" if unknown.
	CurrentRoute() string
	// Redirect sends the user to route.
	Redirect(ctx context.Context, route string) error
}

// TeardownMetrics receives teardown events. A nil value is ignored.
type TeardownMetrics interface {
	RecordTeardown(reason string)
}

// TeardownConfig wires a Teardown.
type TeardownConfig struct {
	Sessions     *Manager
	Navigator    Navigator
	LoginRoute   string
	PublicRoutes []string
	Logger       *slog.Logger
	Metrics      TeardownMetrics
}

type teardownState int

const (
	armed teardownState = iota
	tearingDown
	tornDown
)

// Teardown destroys the session once. Concurrent and repeated Destroy calls
// after the first are no-ops until a new session is established.
type Teardown struct {
	sessions     *Manager
	navigator    Navigator
	loginRoute   string
	publicRoutes []string
	logger       *slog.Logger
	metrics      TeardownMetrics

	mu    sync.Mutex
	state teardownState
}

// NewTeardown returns an armed Teardown. It re-arms itself whenever
// cfg.Sessions establishes a new session.
func NewTeardown(cfg TeardownConfig) *Teardown {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.LoginRoute == "" {
		cfg.LoginRoute = DefaultLoginRoute
	}

	if cfg.PublicRoutes == nil {
		cfg.PublicRoutes = DefaultPublicRoutes
	}

	t := &Teardown{
		sessions:     cfg.Sessions,
		navigator:    cfg.Navigator,
		loginRoute:   cfg.LoginRoute,
		publicRoutes: cfg.PublicRoutes,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}

	if cfg.Sessions != nil {
		cfg.Sessions.OnEstablish(t.Arm)
	}

	return t
}

// Arm allows the next Destroy to run. A teardown in progress is unaffected.
func (t *Teardown) Arm() {
	t.mu.Lock()
	if t.state == tornDown {
		t.state = armed
	}
	t.mu.Unlock()
}

// Destroy clears credential material and the cached identity, then
// redirects to the login route unless the user is on a public route.
// Returns true if this call performed the teardown.
func (t *Teardown) Destroy(ctx context.Context, reason error) bool {
	t.mu.Lock()
	if t.state != armed {
		t.mu.Unlock()
		return false
	}

	t.state = tearingDown
	t.mu.Unlock()

	why := "unknown"
	if reason != nil {
		why = reason.Error()
	}

	t.logger.Warn("session teardown", slog.String("reason", why))

	if t.sessions != nil {
		if err := t.sessions.Clear(ctx); err != nil {
			t.logger.Error("session teardown: clearing credentials",
				slog.String("error", err.Error()),
			)
		}
	}

	t.redirect(ctx)

	if t.metrics != nil {
		t.metrics.RecordTeardown(reasonLabel(reason))
	}

	t.mu.Lock()
	t.state = tornDown
	t.mu.Unlock()

	return true
}

func (t *Teardown) redirect(ctx context.Context) {
	if t.navigator == nil {
		return
	}

	from := t.navigator.CurrentRoute()
	if t.isPublic(from) {
		t.logger.Debug("session teardown: already on public route",
			slog.String("route", from),
		)

		return
	}

	if err := t.navigator.Redirect(ctx, t.loginRoute); err != nil {
		t.logger.Error("session teardown: redirect failed",
			slog.String("route", t.loginRoute),
			slog.String("error", err.Error()),
		)
	}
}

// isPublic matches route against the public routes, ignoring query and
// trailing slash.
func (t *Teardown) isPublic(route string) bool {
	route, _, _ = strings.Cut(route, "?")
	if route != "/" {
		route = strings.TrimSuffix(route, "/")
	}

	for _, p := range t.publicRoutes {
		if route == p {
			return true
		}
	}

	return false
}

// reasonLabel maps a teardown reason to a low-cardinality metric label.
func reasonLabel(reason error) string {
	switch {
	case errors.Is(reason, ErrLoggedOut):
		return "logout"
	case errors.Is(reason, failure.ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(reason, failure.ErrRefreshFailed):
		return "refresh_failed"
	default:
		return "other"
	}
}
