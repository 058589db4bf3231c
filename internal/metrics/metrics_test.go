package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Records(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RecordCall("GET /profile", 200, 10*time.Millisecond)
	c.RecordCall("GET /profile", 200, 20*time.Millisecond)
	c.RecordCall("GET /profile", 401, 5*time.Millisecond)
	c.RecordFailure("auth_expired")
	c.RecordDedupHit("GET /profile")
	c.RecordReplay("GET /profile")
	c.RecordRefresh("success", 50*time.Millisecond)
	c.RecordRefresh("failure", 50*time.Millisecond)
	c.RecordWaiters(4)
	c.RecordTeardown("refresh_failed")

	assert.InDelta(t, 2, testutil.ToFloat64(c.callsTotal.WithLabelValues("GET /profile", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.callsTotal.WithLabelValues("GET /profile", "401")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.failuresTotal.WithLabelValues("auth_expired")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.dedupHits.WithLabelValues("GET /profile")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.retriesTotal.WithLabelValues("GET /profile")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.refreshTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.refreshTotal.WithLabelValues("failure")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(c.refreshWaiters), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.teardownsTotal.WithLabelValues("refresh_failed")), 0)
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordCall("GET /x", 200, time.Millisecond)
		c.RecordFailure("other")
		c.RecordDedupHit("GET /x")
		c.RecordReplay("GET /x")
		c.RecordRefresh("success", time.Millisecond)
		c.RecordWaiters(1)
		c.RecordTeardown("logout")
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
