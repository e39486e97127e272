package stats

import "github.com/prometheus/client_golang/prometheus"

// Register mirrors the collector's counters onto a prometheus registry as
// gauges. Gauges rather than counters because flow counters are zeroed on
// a schedule and prometheus counters must be monotonic.
func (c *Collector) Register(reg prometheus.Registerer) error {
	gauges := []struct {
		name string
		help string
		fn   func() float64
	}{
		{"coord_cache_hits", "Cache hits since last reset", func() float64 { return float64(c.hits.Load()) }},
		{"coord_cache_misses", "Cache misses since last reset", func() float64 { return float64(c.misses.Load()) }},
		{"coord_cache_sets", "Cache writes since last reset", func() float64 { return float64(c.sets.Load()) }},
		{"coord_cache_deletes", "Cache deletes since last reset", func() float64 { return float64(c.deletes.Load()) }},
		{"coord_locks_acquired", "Distributed locks acquired since last reset", func() float64 { return float64(c.locksAcquired.Load()) }},
		{"coord_lock_failures", "Lock acquisition failures since last reset", func() float64 { return float64(c.lockFailures.Load()) }},
		{"coord_store_errors", "Backing store errors since last reset", func() float64 { return float64(c.storeErrors.Load()) }},
		{"coord_store_latency_avg_ms", "Smoothed average store round-trip latency", func() float64 { return c.Snapshot().AvgLatencyMs }},
		{"coord_active_sessions", "Current live session count", func() float64 { return float64(c.activeSessions.Load()) }},
	}
	for _, g := range gauges {
		if err := reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: g.name,
			Help: g.help,
		}, g.fn)); err != nil {
			return err
		}
	}
	return nil
}
