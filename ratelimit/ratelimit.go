// Package ratelimit implements fixed-window request counting on the
// shared store. Counting is a single atomic increment, so the limit holds
// across every process replica without coordination beyond the store
// itself.
//
// Fixed windows are deliberate: traffic straddling a window boundary can
// briefly reach about twice the nominal limit. That trade-off is part of
// the documented behavior; do not swap in a sliding window here without
// revisiting the limits configured by callers.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/choukidar/go-coord/store"
)

// Limiter enforces per-identifier request limits.
type Limiter struct {
	st     *store.Store
	cfg    config
	logger zerolog.Logger
}

type config struct {
	prefix string
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithPrefix sets the counter key namespace. Defaults to "ratelimit".
func WithPrefix(p string) Option {
	return func(l *Limiter) { l.cfg.prefix = p }
}

// WithLogger attaches a logger for degradation reporting.
func WithLogger(lg zerolog.Logger) Option {
	return func(l *Limiter) { l.logger = lg.With().Str("component", "ratelimit").Logger() }
}

// New returns a Limiter over st.
func New(st *store.Store, opts ...Option) *Limiter {
	l := &Limiter{st: st, cfg: config{prefix: "ratelimit"}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result is the outcome of one limit check.
type Result struct {
	// Allowed is whether this call is within the limit.
	Allowed bool
	// Limit echoes the configured ceiling for the window.
	Limit int64
	// Remaining is how many further calls the window admits, never negative.
	Remaining int64
	// Current is the count this call brought the window to.
	Current int64
	// ResetAt is when the window expires and the count restarts at zero.
	ResetAt time.Time
	// Degraded is true when the store was unreachable and the check
	// failed open.
	Degraded bool
}

// Check counts one call for identifier under kind and reports whether it
// is within limit for the current window. The first call in a window
// creates the counter and starts the window clock; counts never carry
// across windows.
//
// If the store is unreachable the check fails open: Allowed true with the
// full limit remaining. Availability beats strict enforcement during an
// infrastructure failure.
func (l *Limiter) Check(ctx context.Context, kind, identifier string, limit int64, window time.Duration) Result {
	key := l.cfg.prefix + ":" + kind + ":" + identifier
	now := time.Now()

	count, err := l.st.Incr(ctx, key)
	if err != nil {
		l.logger.Warn().Err(err).Str("kind", kind).Msg("rate limit check failed open")
		return Result{Allowed: true, Limit: limit, Remaining: limit, ResetAt: now.Add(window), Degraded: true}
	}

	resetAt := now.Add(window)
	if count == 1 {
		// This call created the counter; its expiry defines the window.
		if _, err := l.st.Expire(ctx, key, window); err != nil {
			l.logger.Warn().Err(err).Str("kind", kind).Msg("window expiry not set")
		}
	} else if ttl, ok, err := l.st.TTL(ctx, key); err == nil && ok {
		resetAt = now.Add(ttl)
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		Current:   count,
		ResetAt:   resetAt,
	}
}
