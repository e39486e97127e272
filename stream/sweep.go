package stream

import (
	"context"
	"fmt"
	"time"
)

// sweepBatch bounds each SCAN step while walking index keys.
const sweepBatch = 100

// Run sweeps the stream's indexes on the configured interval until ctx
// is cancelled. Run it in its own goroutine next to the process lifecycle.
func (s *Stream) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.Sweep(ctx)
			if removed > 0 {
				s.logger.Debug().Int64("removed", removed).Msg("stream sweep complete")
			}
		}
	}
}

// Sweep removes index entries older than the retention window and returns
// how many were dropped. Entries are removed by score, so boosted events
// survive the cut until capacity trimming or body expiry takes them —
// urgent alerts are the last thing the stream forgets.
//
// Indexes are walked with a bounded cursor scan. A key that is not a
// sorted set is never mutated as one: list-typed feeds left by older
// deployments are capped and expired, anything else just gets an expiry
// so it drains on its own.
func (s *Stream) Sweep(ctx context.Context) int64 {
	cutoff := time.Now().Add(-s.cfg.retention).UnixMilli()
	match := s.cfg.prefix + ":events:*"

	var removed int64
	var cursor uint64
	for {
		keys, next, err := s.st.Scan(ctx, cursor, match, sweepBatch)
		if err != nil {
			s.logger.Warn().Err(err).Msg("stream sweep stopped early")
			break
		}
		for _, key := range keys {
			removed += s.sweepKey(ctx, key, cutoff)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed
}

func (s *Stream) sweepKey(ctx context.Context, key string, cutoff int64) int64 {
	typ, err := s.st.Type(ctx, key)
	if err != nil {
		return 0
	}
	switch typ {
	case "zset":
		n, err := s.st.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff))
		if err != nil {
			return 0
		}
		return n
	case "list":
		// Legacy list-typed feed: cap it and let it expire.
		if err := s.st.LTrim(ctx, key, 0, s.cfg.capacity-1); err != nil {
			return 0
		}
		s.ensureExpiry(ctx, key)
		return 0
	case "none":
		return 0
	default:
		s.logger.Warn().Str("key", key).Str("type", typ).Msg("index key has unexpected type, expiring instead of trimming")
		s.ensureExpiry(ctx, key)
		return 0
	}
}

func (s *Stream) ensureExpiry(ctx context.Context, key string) {
	if _, ok, err := s.st.TTL(ctx, key); err == nil && !ok {
		if _, err := s.st.Expire(ctx, key, s.cfg.retention); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("expiry not set during sweep")
		}
	}
}
