// Package dedup coalesces identical calls issued within a short window into
// one underlying call whose outcome every caller shares.
package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tonimelisma/authwire/internal/fingerprint"
)

// DefaultWindow is how long an issued call absorbs identical calls.
const DefaultWindow = 1000 * time.Millisecond

// Handle is the shared result of one underlying call.
type Handle[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newHandle[T any]() *Handle[T] {
	return &Handle[T]{done: make(chan struct{})}
}

func (h *Handle[T]) settle(val T, err error) {
	h.val = val
	h.err = err
	close(h.done)
}

// Done is closed when the underlying call completes.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the underlying call completes or ctx is done. Giving up
// on ctx does not cancel the call for other holders of the handle.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.val, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// pendingEntry is one coalescing slot.
type pendingEntry[T any] struct {
	createdAt time.Time
	handle    *Handle[T]
	settled   bool
}

// Options configures a Deduplicator.
type Options struct {
	// Window defaults to DefaultWindow when zero.
	Window time.Duration
	Logger *slog.Logger
	// OnHit is called when a submission joins an existing call.
	OnHit func(operationID string)
}

// Deduplicator tracks recently issued calls by fingerprint. Safe for
// concurrent use.
type Deduplicator[T any] struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry[T]
	window  time.Duration
	logger  *slog.Logger
	onHit   func(string)

	// now is replaced in tests.
	now func() time.Time
}

// New returns an empty Deduplicator.
func New[T any](opts Options) *Deduplicator[T] {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Deduplicator[T]{
		entries: make(map[string]*pendingEntry[T]),
		window:  opts.Window,
		logger:  opts.Logger,
		onHit:   opts.OnHit,
		now:     time.Now,
	}
}

// Window returns the configured dedup window.
func (d *Deduplicator[T]) Window() time.Duration {
	return d.window
}

// Submit returns the handle of a live call with the same fingerprint, or
// starts issue in a new goroutine and registers it. Calls whose arguments
// cannot be fingerprinted are issued without coalescing.
func (d *Deduplicator[T]) Submit(operationID string, args any, issue func() (T, error)) *Handle[T] {
	key, err := fingerprint.Of(operationID, args)
	if err != nil {
		d.logger.Warn("dedup: issuing without coalescing",
			slog.String("operation", operationID),
			slog.String("error", err.Error()),
		)

		h := newHandle[T]()
		go func() { h.settle(issue()) }()

		return h
	}

	d.mu.Lock()

	now := d.now()
	if e, ok := d.entries[key]; ok {
		if now.Sub(e.createdAt) < d.window {
			d.mu.Unlock()

			d.logger.Debug("dedup: joined in-flight call",
				slog.String("operation", operationID),
				slog.Bool("settled", e.settled),
			)

			if d.onHit != nil {
				d.onHit(operationID)
			}

			return e.handle
		}

		// Outside the window the entry no longer coalesces, settled or not.
		if !e.settled {
			d.logger.Debug("dedup: evicting stale in-flight call",
				slog.String("operation", operationID),
				slog.Duration("age", now.Sub(e.createdAt)),
			)
		}

		delete(d.entries, key)
	}

	e := &pendingEntry[T]{createdAt: now, handle: newHandle[T]()}
	d.entries[key] = e
	d.mu.Unlock()

	go d.run(key, e, issue)

	return e.handle
}

// run executes issue and schedules eviction once it settles.
func (d *Deduplicator[T]) run(key string, e *pendingEntry[T], issue func() (T, error)) {
	val, err := issue()

	d.mu.Lock()
	e.settled = true
	d.mu.Unlock()

	e.handle.settle(val, err)

	time.AfterFunc(d.window, func() {
		d.evict(key, e)
	})
}

// evict removes e only if it is still the registered entry for key.
func (d *Deduplicator[T]) evict(key string, e *pendingEntry[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.entries[key] == e {
		delete(d.entries, key)
	}
}

// Len reports the number of registered entries, settled or not.
func (d *Deduplicator[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.entries)
}
