package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

var errNilToken = errors.New("session: nil token")

// ErrSessionEnded is returned by Replace when the session being renewed was
// cleared or superseded while the renewal was in flight.
var ErrSessionEnded = errors.New("session: ended during refresh")

// Manager caches the current session in front of a Store. It is the only
// writer of credential material; the dispatcher reads through it and the
// refresher replaces the session in place.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu          sync.Mutex
	cached      *Session
	loaded      bool
	epoch       uint64
	onEstablish []func()
}

// NewManager returns a Manager over store.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{store: store, logger: logger}
}

// OnEstablish registers fn to run after every successful Establish.
func (m *Manager) OnEstablish(fn func()) {
	m.mu.Lock()
	m.onEstablish = append(m.onEstablish, fn)
	m.mu.Unlock()
}

// Current returns the current session, loading it from the store on first
// use. Returns ErrNotLoggedIn when nothing is stored.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return nil, err
	}

	if m.cached == nil {
		return nil, ErrNotLoggedIn
	}

	return m.cached, nil
}

func (m *Manager) loadLocked(ctx context.Context) error {
	if m.loaded {
		return nil
	}

	s, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("session: loading: %w", err)
	}

	if s != nil {
		s.epoch = m.epoch

		m.logger.Debug("session loaded from store",
			slog.Time("expiry", s.Expiry()),
			slog.String("subject", s.Identity.Subject),
		)
	}

	m.cached = s
	m.loaded = true

	return nil
}

// AccessToken returns the current bearer credential, or "" when no session
// exists. Calls without a credential still go out; the server decides.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	s, err := m.Current(ctx)
	if errors.Is(err, ErrNotLoggedIn) {
		return "", nil
	}

	if err != nil {
		return "", err
	}

	return s.AccessToken(), nil
}

// Establish persists a freshly issued token as the new session.
func (m *Manager) Establish(ctx context.Context, tok *oauth2.Token) (*Session, error) {
	if tok == nil {
		return nil, errNilToken
	}

	cp := *tok
	s := New(&cp)

	m.mu.Lock()

	if err := m.store.Save(ctx, s); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("session: saving: %w", err)
	}

	m.epoch++
	s.epoch = m.epoch
	m.cached = s
	m.loaded = true
	hooks := append([]func(){}, m.onEstablish...)
	m.mu.Unlock()

	m.logger.Info("session established",
		slog.Time("expiry", s.Expiry()),
		slog.String("subject", s.Identity.Subject),
	)

	for _, fn := range hooks {
		fn()
	}

	return s, nil
}

// Replace renews from in place with tok. A renewed token without a refresh
// token keeps the previous one, and an access token without identity
// claims keeps the cached identity. Returns ErrSessionEnded when from was
// cleared or superseded by another login (here or, via a reload, in another
// process) since it was read; nothing is saved then.
func (m *Manager) Replace(ctx context.Context, from *Session, tok *oauth2.Token) (*Session, error) {
	if tok == nil {
		return nil, errNilToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return nil, err
	}

	prev := m.cached
	if from == nil || prev == nil || from.epoch != m.epoch || from.RefreshToken() != prev.RefreshToken() {
		m.logger.Warn("session ended while refreshing, discarding renewed token")
		return nil, ErrSessionEnded
	}

	cp := *tok
	next := New(&cp)
	next.epoch = m.epoch

	if next.Token.RefreshToken == "" {
		next.Token.RefreshToken = prev.RefreshToken()
	}

	if next.Identity.IsZero() {
		next.Identity = prev.Identity
	}

	if err := m.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("session: saving refreshed session: %w", err)
	}

	m.cached = next

	m.logger.Info("session refreshed",
		slog.Time("expiry", next.Expiry()),
	)

	return next, nil
}

// Clear removes persisted credential material and the cached identity. The
// cache is dropped even when the store fails, and renewals of the cleared
// session are refused.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.cached = nil
	m.loaded = true

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("session: clearing: %w", err)
	}

	return nil
}

// Invalidate drops the cache so the next Current reloads from the store.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.loaded = false
	m.mu.Unlock()
}
