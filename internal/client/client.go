// Package client is the authenticated dispatch pipeline every outbound call
// goes through. Identical calls are coalesced, credentials attached, and
// failures classified: expired sessions are refreshed once and replayed,
// terminal failures end the session.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tonimelisma/authwire/internal/dedup"
	"github.com/tonimelisma/authwire/internal/failure"
	"github.com/tonimelisma/authwire/internal/refresh"
)

// Defaults for Config fields left zero.
const (
	DefaultCallTimeout    = 25 * time.Second
	DefaultRefreshTimeout = 25 * time.Second
	defaultUserAgent      = "authwire/0.1"
)

// CredentialSource supplies the current bearer credential. "" means no
// session; the call still goes out.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Metrics receives dispatch and refresh events. A nil Metrics is ignored.
type Metrics interface {
	refresh.Metrics
	RecordCall(operation string, status int, d time.Duration)
	RecordFailure(class string)
	RecordDedupHit(operation string)
	RecordReplay(operation string)
}

// Config wires a Client.
type Config struct {
	BaseURL     string
	HTTPClient  *http.Client
	UserAgent   string
	CookieName  string
	Credentials CredentialSource
	Refresher   refresh.Refresher
	Teardown    refresh.Terminator
	// AuthPaths identify login, register and refresh calls. Nil selects
	// failure.DefaultAuthPaths.
	AuthPaths      []string
	DedupWindow    time.Duration
	CallTimeout    time.Duration
	RefreshTimeout time.Duration
	Logger         *slog.Logger
	Metrics        Metrics
}

// Client owns one deduplicator, one classifier and one refresh coordinator.
// Safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	userAgent   string
	cookieName  string
	credentials CredentialSource
	teardown    refresh.Terminator
	callTimeout time.Duration
	logger      *slog.Logger
	metrics     Metrics

	classifier  *failure.Classifier
	coordinator *refresh.Coordinator
	dedup       *dedup.Deduplicator[*Response]
}

// New returns a Client with its own coordinator and dedup cache.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}

	c := &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  cfg.HTTPClient,
		userAgent:   cfg.UserAgent,
		cookieName:  cfg.CookieName,
		credentials: cfg.Credentials,
		teardown:    cfg.Teardown,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		classifier:  failure.NewClassifier(cfg.AuthPaths),
	}

	rc := refresh.Config{
		Refresher: cfg.Refresher,
		Teardown:  cfg.Teardown,
		Timeout:   cfg.RefreshTimeout,
		Logger:    cfg.Logger,
	}

	opts := dedup.Options{Window: cfg.DedupWindow, Logger: cfg.Logger}

	if cfg.Metrics != nil {
		rc.Metrics = cfg.Metrics
		opts.OnHit = cfg.Metrics.RecordDedupHit
	}

	c.coordinator = refresh.New(rc)
	c.dedup = dedup.New[*Response](opts)

	return c
}

// Coordinator exposes the refresh coordinator for status reporting.
func (c *Client) Coordinator() *refresh.Coordinator {
	return c.coordinator
}

// Send dispatches a call through the pipeline. Identical calls within the
// dedup window share one dispatch and its outcome. The shared dispatch is
// bounded by the call timeout, not by ctx; ctx only bounds this caller's
// wait.
func (c *Client) Send(ctx context.Context, operationID string, args any, issue Issuer) (*Response, error) {
	call := newCall(operationID, args)

	h := c.dedup.Submit(operationID, args, func() (*Response, error) {
		dctx, cancel := c.detach(ctx)
		defer cancel()

		return c.dispatch(dctx, call, issue)
	})

	return h.Wait(ctx)
}

func (c *Client) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	dctx := context.WithoutCancel(ctx)
	if c.callTimeout > 0 {
		return context.WithTimeout(dctx, c.callTimeout)
	}

	return context.WithCancel(dctx)
}

// dispatch runs one attempt and routes its failure. A replay re-enters
// dispatch directly, never the deduplicator.
func (c *Client) dispatch(ctx context.Context, call Call, issue Issuer) (*Response, error) {
	resp, err := c.attempt(ctx, call, issue)
	if err == nil {
		return resp, nil
	}

	class := c.classifier.Classify(call.OperationID, call.IsRetry, err)
	if class != failure.Other && c.metrics != nil {
		c.metrics.RecordFailure(class.String())
	}

	switch class {
	case failure.AuthExpired:
		// Queued calls wait until the coordinator settles; the refresh
		// timeout bounds the wait, not this call's deadline.
		if rerr := c.coordinator.HandleAuthFailure(context.WithoutCancel(ctx), call.OperationID); rerr != nil {
			return nil, rerr
		}

		retry := call.Retry()

		c.logger.Debug("replaying call after refresh",
			slog.String("operation", call.OperationID),
			slog.String("request_id", retry.RequestID),
		)

		if c.metrics != nil {
			c.metrics.RecordReplay(call.OperationID)
		}

		rctx, cancel := c.detach(ctx)
		defer cancel()

		return c.dispatch(rctx, retry, issue)

	case failure.SignatureInvalid:
		terminal := failure.Terminal(class, err)

		c.logger.Warn("token signature rejected, ending session",
			slog.String("operation", call.OperationID),
		)

		if c.teardown != nil {
			c.teardown.Destroy(context.WithoutCancel(ctx), terminal)
		}

		return nil, terminal

	case failure.InvalidCredentials:
		return nil, failure.Terminal(class, err)

	default:
		return nil, err
	}
}

// attempt attaches the current credential and issues the call once.
func (c *Client) attempt(ctx context.Context, call Call, issue Issuer) (*Response, error) {
	cred := Credential{CookieName: c.cookieName}

	if c.credentials != nil {
		tok, err := c.credentials.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("client: reading credential: %w", err)
		}

		cred.AccessToken = tok
	}

	start := time.Now()
	resp, err := issue(ctx, call, cred)
	elapsed := time.Since(start)

	status := 0

	var callErr *failure.CallError

	switch {
	case resp != nil:
		status = resp.StatusCode
	case errors.As(err, &callErr):
		status = callErr.StatusCode
	}

	if c.metrics != nil {
		c.metrics.RecordCall(call.OperationID, status, elapsed)
	}

	c.logger.Debug("call attempt finished",
		slog.String("operation", call.OperationID),
		slog.Int("attempt", call.Attempt),
		slog.Int("status", status),
		slog.Duration("elapsed", elapsed),
	)

	return resp, err
}
