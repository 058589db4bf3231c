// Package refresh serializes token refresh attempts. One Coordinator owns
// the refresh state and the queue of calls waiting on it; at most one
// refresh is in flight at any time.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tonimelisma/authwire/internal/failure"
)

// State is the coordinator's refresh state.
type State int

const (
	Idle State = iota
	Refreshing
)

func (s State) String() string {
	if s == Refreshing {
		return "refreshing"
	}

	return "idle"
}

// Refresher performs the refresh call against the backend and stores the
// renewed credential.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Terminator ends the session after an unrecoverable refresh failure.
// Implementations must be idempotent.
type Terminator interface {
	Destroy(ctx context.Context, reason error) bool
}

// Metrics receives refresh lifecycle events. A nil Metrics is ignored.
type Metrics interface {
	RecordRefresh(outcome string, d time.Duration)
	RecordWaiters(n int)
}

// Config wires a Coordinator.
type Config struct {
	Refresher Refresher
	Teardown  Terminator
	// Timeout bounds one refresh call. Zero leaves it unbounded.
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics Metrics
}

// Coordinator is a single-flight state machine over token refresh.
type Coordinator struct {
	refresher Refresher
	teardown  Terminator
	timeout   time.Duration
	logger    *slog.Logger
	metrics   Metrics

	mu      sync.Mutex
	state   State
	waiters []chan error
}

// New returns an Idle Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Coordinator{
		refresher: cfg.Refresher,
		teardown:  cfg.Teardown,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// State returns the current refresh state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Pending returns the number of queued waiters.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.waiters)
}

// HandleAuthFailure is called when operationID failed with an expired
// session on its first attempt. It returns nil once a refresh succeeded and
// the caller should replay the call, or an error wrapping
// failure.ErrRefreshFailed. The first caller while Idle performs the
// refresh; callers arriving during it queue behind it.
//
// A caller whose ctx ends stops waiting; the refresh itself is not
// canceled.
func (c *Coordinator) HandleAuthFailure(ctx context.Context, operationID string) error {
	c.mu.Lock()

	if c.state == Refreshing {
		w := make(chan error, 1)
		c.waiters = append(c.waiters, w)
		depth := len(c.waiters)
		c.mu.Unlock()

		c.logger.Debug("refresh: queued behind in-flight refresh",
			slog.String("operation", operationID),
			slog.Int("depth", depth),
		)

		if c.metrics != nil {
			c.metrics.RecordWaiters(depth)
		}

		select {
		case err := <-w:
			return err
		case <-ctx.Done():
			return fmt.Errorf("refresh: stopped waiting for %s: %w", operationID, ctx.Err())
		}
	}

	c.state = Refreshing
	c.mu.Unlock()

	return c.run(ctx, operationID)
}

// run performs the refresh and settles every waiter queued meanwhile.
func (c *Coordinator) run(ctx context.Context, operationID string) error {
	c.logger.Info("refresh: session expired, refreshing",
		slog.String("operation", operationID),
	)

	start := time.Now()
	err := c.refresh(ctx)
	elapsed := time.Since(start)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = Idle
	c.mu.Unlock()

	if err != nil {
		result := failure.RefreshFailed(err)

		c.logger.Warn("refresh: failed, ending session",
			slog.String("operation", operationID),
			slog.Int("waiters", len(waiters)),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)

		if c.metrics != nil {
			c.metrics.RecordRefresh("failure", elapsed)
		}

		if c.teardown != nil {
			c.teardown.Destroy(context.WithoutCancel(ctx), result)
		}

		release(waiters, result)

		return result
	}

	c.logger.Info("refresh: succeeded, replaying queued calls",
		slog.Int("waiters", len(waiters)),
		slog.Duration("elapsed", elapsed),
	)

	if c.metrics != nil {
		c.metrics.RecordRefresh("success", elapsed)
	}

	release(waiters, nil)

	return nil
}

// refresh calls the refresher on a context detached from the triggering
// caller, bounded by the configured timeout.
func (c *Coordinator) refresh(ctx context.Context) error {
	if c.refresher == nil {
		return fmt.Errorf("refresh: no refresher configured")
	}

	rctx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(rctx, c.timeout)

		defer cancel()
	}

	return c.refresher.Refresh(rctx)
}

// release settles waiters in enqueue order. Channels are buffered, so an
// abandoned waiter never blocks the release.
func release(waiters []chan error, err error) {
	for _, w := range waiters {
		w <- err
	}
}
