package store

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Guard is the single place the "absorb store failures" policy lives.
// It runs fn and returns its value, or fallback when fn fails. The layer's
// public operations must never surface a store outage to a request-handling
// worker; each documents a safe default (nil value, false, allowed=true)
// and routes the call through Guard with that default.
//
// Context cancellation from the caller is passed through untouched: a
// cancelled request still gets the fallback, it just stops waiting.
func Guard[T any](ctx context.Context, s *Store, op string, fallback T, fn func(context.Context) (T, error)) T {
	v, err := fn(ctx)
	if err == nil {
		return v
	}
	if errors.Is(err, context.Canceled) {
		s.logger.Debug().Err(err).Str("op", op).Msg("store operation cancelled, using fallback")
	} else {
		s.logger.Warn().Err(err).Str("op", op).Msg("store operation degraded to fallback")
	}
	return fallback
}
