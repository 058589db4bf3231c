package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/authwire/internal/authapi"
	"github.com/tonimelisma/authwire/internal/client"
	"github.com/tonimelisma/authwire/internal/config"
	"github.com/tonimelisma/authwire/internal/metrics"
	"github.com/tonimelisma/authwire/internal/refresh"
	"github.com/tonimelisma/authwire/internal/session"
)

// sqliteSessionName is the row the CLI keeps its session under.
const sqliteSessionName = "default"

var errNoBaseURL = errors.New("no backend configured: set [client] base_url, AUTHWIRE_BASE_URL or --base-url")

// stack is the wired client for one CLI invocation.
type stack struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    session.Store
	sessions *session.Manager
	teardown *session.Teardown
	auth     *authapi.Client
	client   *client.Client
	registry *prometheus.Registry
	metrics  *metrics.Collector

	closers []io.Closer
}

// buildStack wires stores, teardown, refresher and dispatcher from cfg.
func buildStack(ctx context.Context, cfg *config.Config, logger *slog.Logger, nav session.Navigator) (*stack, error) {
	if cfg.Client.BaseURL == "" {
		return nil, errNoBaseURL
	}

	s := &stack{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	s.metrics = metrics.New(s.registry)

	store, closer, err := openStore(ctx, &cfg.Session, logger)
	if err != nil {
		return nil, err
	}

	if closer != nil {
		s.closers = append(s.closers, closer)
	}

	s.store = store
	s.sessions = session.NewManager(store, logger)
	s.teardown = session.NewTeardown(session.TeardownConfig{
		Sessions:     s.sessions,
		Navigator:    nav,
		LoginRoute:   cfg.Session.LoginRoute,
		PublicRoutes: cfg.Session.PublicRoutes,
		Logger:       logger,
		Metrics:      s.metrics,
	})

	httpClient := &http.Client{Timeout: cfg.Client.CallTimeoutDuration()}

	paths := authapi.Paths{
		Login:    cfg.Auth.LoginPath,
		Register: cfg.Auth.RegisterPath,
		Refresh:  cfg.Auth.RefreshPath,
		Logout:   cfg.Auth.LogoutPath,
	}

	s.auth = authapi.New(authapi.Config{
		BaseURL:    cfg.Client.BaseURL,
		HTTPClient: httpClient,
		UserAgent:  cfg.Client.UserAgent,
		Paths:      paths,
		Sessions:   s.sessions,
		Teardown:   s.teardown,
		Logger:     logger,
	})

	var refresher refresh.Refresher = s.auth
	if cfg.Auth.RefreshMode == config.RefreshModeOAuth2 {
		oc := &oauth2.Config{
			ClientID: cfg.Auth.OAuth2.ClientID,
			Scopes:   cfg.Auth.OAuth2.Scopes,
			Endpoint: oauth2.Endpoint{TokenURL: cfg.Auth.OAuth2.TokenURL},
		}

		refresher = authapi.NewOAuth2Refresher(oc, s.sessions, httpClient, logger)
	}

	s.client = client.New(client.Config{
		BaseURL:        cfg.Client.BaseURL,
		HTTPClient:     httpClient,
		UserAgent:      cfg.Client.UserAgent,
		CookieName:     cfg.Client.CookieName,
		Credentials:    s.sessions,
		Refresher:      refresher,
		Teardown:       s.teardown,
		AuthPaths:      paths.AuthCalls(),
		DedupWindow:    cfg.Client.DedupWindowDuration(),
		CallTimeout:    cfg.Client.CallTimeoutDuration(),
		RefreshTimeout: cfg.Auth.RefreshTimeoutDuration(),
		Logger:         logger,
		Metrics:        s.metrics,
	})

	return s, nil
}

// watch reloads the cached session when the token file changes, until ctx
// is done. It is a no-op unless the file store is used with watch = true.
func (s *stack) watch(ctx context.Context, wg *sync.WaitGroup) {
	fs, ok := s.store.(*session.FileStore)
	if !ok || !s.cfg.Session.Watch {
		return
	}

	w := session.NewWatcher(fs.Path(), s.sessions, s.logger)

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := w.Run(ctx); err != nil {
			s.logger.Warn("session watcher stopped", slog.String("error", err.Error()))
		}
	}()
}

// Close releases store connections.
func (s *stack) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}

	return errors.Join(errs...)
}

// openStore opens the configured session store. The closer is nil for
// stores that hold no connection.
func openStore(ctx context.Context, cfg *config.SessionConfig, logger *slog.Logger) (session.Store, io.Closer, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return session.NewMemoryStore(), nil, nil

	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}

		return session.NewRedisStore(rdb, cfg.RedisKey, cfg.RedisTTLDuration()), rdb, nil

	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating session directory: %w", err)
		}

		st, err := session.OpenSQLiteStore(ctx, cfg.SQLitePath, sqliteSessionName, logger)
		if err != nil {
			return nil, nil, err
		}

		return st, st, nil

	default:
		return session.NewFileStore(cfg.TokenPath), nil, nil
	}
}
