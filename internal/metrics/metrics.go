// Package metrics exposes Prometheus metrics for the authenticated client:
// calls, classified failures, dedup coalescing, token refreshes and session
// teardowns. A nil *Collector is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authwire"

// Collector records client lifecycle metrics. Safe for concurrent use.
type Collector struct {
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	failuresTotal *prometheus.CounterVec
	dedupHits     *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec

	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	refreshWaiters  prometheus.Gauge

	teardownsTotal *prometheus.CounterVec
}

// New registers the collector's metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		callsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Dispatched call attempts by operation and HTTP status",
			},
			[]string{"operation", "status_code"},
		),
		callDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Duration of dispatched call attempts",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		failuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Failed call attempts by classification",
			},
			[]string{"class"},
		),
		dedupHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedup_hits_total",
				Help:      "Calls served by joining an identical in-flight call",
			},
			[]string{"operation"},
		),
		retriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replays_total",
				Help:      "Calls replayed after a successful token refresh",
			},
			[]string{"operation"},
		),
		refreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "Token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		refreshDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Duration of token refresh calls",
				Buckets:   prometheus.DefBuckets,
			},
		),
		refreshWaiters: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "refresh_waiters",
				Help:      "Queue depth most recently observed behind an in-flight refresh",
			},
		),
		teardownsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "teardowns_total",
				Help:      "Session teardowns by reason",
			},
			[]string{"reason"},
		),
	}
}

// RecordCall records one dispatched attempt. status 0 means no response.
func (c *Collector) RecordCall(operation string, status int, d time.Duration) {
	if c == nil {
		return
	}

	c.callsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	c.callDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordFailure records a classified failure.
func (c *Collector) RecordFailure(class string) {
	if c == nil {
		return
	}

	c.failuresTotal.WithLabelValues(class).Inc()
}

// RecordDedupHit records a coalesced call.
func (c *Collector) RecordDedupHit(operation string) {
	if c == nil {
		return
	}

	c.dedupHits.WithLabelValues(operation).Inc()
}

// RecordReplay records a post-refresh replay.
func (c *Collector) RecordReplay(operation string) {
	if c == nil {
		return
	}

	c.retriesTotal.WithLabelValues(operation).Inc()
}

// RecordRefresh records a settled refresh.
func (c *Collector) RecordRefresh(outcome string, d time.Duration) {
	if c == nil {
		return
	}

	c.refreshTotal.WithLabelValues(outcome).Inc()
	c.refreshDuration.Observe(d.Seconds())
}

// RecordWaiters records the refresh queue depth.
func (c *Collector) RecordWaiters(n int) {
	if c == nil {
		return
	}

	c.refreshWaiters.Set(float64(n))
}

// RecordTeardown records a session teardown.
func (c *Collector) RecordTeardown(reason string) {
	if c == nil {
		return
	}

	c.teardownsTotal.WithLabelValues(reason).Inc()
}
