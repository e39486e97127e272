package coord

import (
	"context"
	"time"

	"github.com/choukidar/go-coord/stats"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Health is the liveness report for the coordination layer.
type Health struct {
	Status    string         `json:"status"`
	LatencyMs float64        `json:"latencyMs"`
	Counters  stats.Snapshot `json:"counters"`
	CheckedAt time.Time      `json:"checkedAt"`
	Error     string         `json:"error,omitempty"`
}

// Health round-trips a liveness probe against the store and returns the
// result with the current counters. It never fails: an unreachable store
// yields a degraded report, not an error.
func (c *Coord) Health(ctx context.Context) Health {
	h := Health{Status: StatusHealthy, CheckedAt: time.Now()}
	latency, err := c.Store.Ping(ctx)
	h.LatencyMs = float64(latency.Microseconds()) / 1000.0
	if err != nil {
		h.Status = StatusDegraded
		h.Error = err.Error()
		c.logger.Warn().Err(err).Msg("health probe failed")
	}
	h.Counters = c.Stats.Snapshot()
	return h
}
