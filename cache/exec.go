package cache

import (
	"context"
	"time"
)

// Invoker produces a value on cache miss. The bool return distinguishes
// "not found" from "found a zero value"; when it is false nothing is
// cached, so absent records are not served stale as empty results.
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Exec is the cache-aside helper. It checks key first; on a hit the
// cached value is decoded and returned. On a miss invoke runs, and a
// found result is written back with ttl (<= 0 uses the default TTL class)
// before being returned. Cache failures on either side never mask the
// invoked value — the only error Exec returns is the invoker's own.
func Exec[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, invoke Invoker[T]) (T, bool, error) {
	if v, ok := GetAs[T](ctx, c, key); ok {
		return v, true, nil
	}

	v, ok, err := invoke(ctx)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}

	if ttl <= 0 {
		ttl = c.cfg.defaultTTL
	}
	c.Set(ctx, key, v, ttl)
	return v, true, nil
}
