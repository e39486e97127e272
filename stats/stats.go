package stats

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// latencyAlpha is the smoothing factor for the exponentially weighted
// moving average of operation latency.
const latencyAlpha = 0.1

// DefaultResetInterval is how often flow counters are zeroed. Gauges
// (such as active sessions) survive the reset.
const DefaultResetInterval = 24 * time.Hour

// Collector accumulates process-wide counters for the coordination layer.
// All methods are safe for concurrent use and never block; counters are
// plain atomics, not store round-trips. Flow counters are zeroed on a
// fixed schedule, gauges are not.
type Collector struct {
	hits          atomic.Int64
	misses        atomic.Int64
	sets          atomic.Int64
	deletes       atomic.Int64
	locksAcquired atomic.Int64
	lockFailures  atomic.Int64
	storeErrors   atomic.Int64

	// avgLatency holds math.Float64bits of the smoothed latency in
	// milliseconds. Updated with a CAS loop.
	avgLatency atomic.Uint64

	// activeSessions is a gauge and survives ResetFlowCounters.
	activeSessions atomic.Int64

	lastReset atomic.Int64 // unix seconds

	resetInterval time.Duration
}

// Snapshot is a point-in-time copy of the collector's counters.
type Snapshot struct {
	Hits           int64     `json:"hits"`
	Misses         int64     `json:"misses"`
	Sets           int64     `json:"sets"`
	Deletes        int64     `json:"deletes"`
	LocksAcquired  int64     `json:"locksAcquired"`
	LockFailures   int64     `json:"lockFailures"`
	StoreErrors    int64     `json:"storeErrors"`
	AvgLatencyMs   float64   `json:"avgLatencyMs"`
	ActiveSessions int64     `json:"activeSessions"`
	LastReset      time.Time `json:"lastReset"`
}

// Option configures a Collector.
type Option func(*Collector)

// WithResetInterval overrides the flow counter reset schedule used by
// RunPeriodicReset. Defaults to DefaultResetInterval (24 hours).
func WithResetInterval(d time.Duration) Option {
	return func(c *Collector) { c.resetInterval = d }
}

// NewCollector returns a Collector with the reset clock started now.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{resetInterval: DefaultResetInterval}
	for _, opt := range opts {
		opt(c)
	}
	c.lastReset.Store(time.Now().Unix())
	return c
}

func (c *Collector) Hit()          { c.hits.Add(1) }
func (c *Collector) Miss()         { c.misses.Add(1) }
func (c *Collector) Set()          { c.sets.Add(1) }
func (c *Collector) Delete()       { c.deletes.Add(1) }
func (c *Collector) LockAcquired() { c.locksAcquired.Add(1) }
func (c *Collector) LockFailed()   { c.lockFailures.Add(1) }
func (c *Collector) StoreError()   { c.storeErrors.Add(1) }

// AddDeletes records a bulk delete of n keys in one increment.
func (c *Collector) AddDeletes(n int64) { c.deletes.Add(n) }

// SetActiveSessions records the current live session gauge. The value
// survives flow counter resets.
func (c *Collector) SetActiveSessions(n int64) { c.activeSessions.Store(n) }

// AddActiveSessions adjusts the live session gauge by delta.
func (c *Collector) AddActiveSessions(delta int64) { c.activeSessions.Add(delta) }

// ObserveLatency folds a store round-trip duration into the smoothed
// average: avg = avg*(1-alpha) + sample*alpha. The first observation
// seeds the average directly.
func (c *Collector) ObserveLatency(d time.Duration) {
	sample := float64(d.Microseconds()) / 1000.0
	for {
		old := c.avgLatency.Load()
		prev := math.Float64frombits(old)
		next := sample
		if old != 0 {
			next = prev*(1-latencyAlpha) + sample*latencyAlpha
		}
		if c.avgLatency.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}

// Snapshot returns a consistent-enough copy of all counters. Individual
// loads are atomic; the snapshot as a whole is not a transaction, which
// is fine for observability use.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Sets:           c.sets.Load(),
		Deletes:        c.deletes.Load(),
		LocksAcquired:  c.locksAcquired.Load(),
		LockFailures:   c.lockFailures.Load(),
		StoreErrors:    c.storeErrors.Load(),
		AvgLatencyMs:   math.Float64frombits(c.avgLatency.Load()),
		ActiveSessions: c.activeSessions.Load(),
		LastReset:      time.Unix(c.lastReset.Load(), 0),
	}
}

// ResetFlowCounters zeroes hit/miss/set/delete/lock/error counters and
// the latency average, records the reset time, and leaves gauges alone.
func (c *Collector) ResetFlowCounters() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.deletes.Store(0)
	c.locksAcquired.Store(0)
	c.lockFailures.Store(0)
	c.storeErrors.Store(0)
	c.avgLatency.Store(0)
	c.lastReset.Store(time.Now().Unix())
}

// RunPeriodicReset blocks, resetting flow counters on the configured
// interval until ctx is cancelled. Run it in its own goroutine.
func (c *Collector) RunPeriodicReset(ctx context.Context) {
	ticker := time.NewTicker(c.resetInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ResetFlowCounters()
		}
	}
}
