package cache

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/choukidar/go-coord/store"
)

// TTL classes. Short covers volatile lookups (feeds, counts), Default
// covers ordinary read models, Long covers data that only changes by
// explicit invalidation (reference data, safe zone geometry).
const (
	DefaultTTL = 5 * time.Minute
	ShortTTL   = time.Minute
	LongTTL    = 24 * time.Hour
)

// scanBatch bounds each SCAN step in DeletePattern so pattern deletes
// never turn into one unbounded blocking sweep.
const scanBatch = 100

// Cache is a namespaced view over the shared store. Construct one per
// process next to the store and inject it.
type Cache struct {
	st     *store.Store
	cfg    config
	logger zerolog.Logger
}

type config struct {
	prefix     string
	defaultTTL time.Duration
	shortTTL   time.Duration
	longTTL    time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix sets the application namespace prepended to every key.
// Defaults to "choukidar".
func WithPrefix(p string) Option {
	return func(c *Cache) { c.cfg.prefix = p }
}

// WithDefaultTTL overrides the default TTL class (5 minutes).
func WithDefaultTTL(d time.Duration) Option {
	return func(c *Cache) { c.cfg.defaultTTL = d }
}

// WithShortTTL overrides the short TTL class (1 minute).
func WithShortTTL(d time.Duration) Option {
	return func(c *Cache) { c.cfg.shortTTL = d }
}

// WithLongTTL overrides the long TTL class (24 hours).
func WithLongTTL(d time.Duration) Option {
	return func(c *Cache) { c.cfg.longTTL = d }
}

// WithLogger attaches a logger for degraded-operation reporting.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.logger = l.With().Str("component", "cache").Logger() }
}

// New returns a Cache over st.
func New(st *store.Store, opts ...Option) *Cache {
	c := &Cache{
		st: st,
		cfg: config{
			prefix:     "choukidar",
			defaultTTL: DefaultTTL,
			shortTTL:   ShortTTL,
			longTTL:    LongTTL,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultTTL returns the configured default TTL class.
func (c *Cache) DefaultTTL() time.Duration { return c.cfg.defaultTTL }

// ShortTTL returns the configured short TTL class.
func (c *Cache) ShortTTL() time.Duration { return c.cfg.shortTTL }

// LongTTL returns the configured long TTL class.
func (c *Cache) LongTTL() time.Duration { return c.cfg.longTTL }

// Key builds the namespaced key app:kind:id[:suffix...]. Pure function.
func (c *Cache) Key(kind, id string, suffix ...string) string {
	parts := make([]string, 0, 3+len(suffix))
	parts = append(parts, c.cfg.prefix, kind, id)
	parts = append(parts, suffix...)
	return strings.Join(parts, ":")
}

// Get returns the raw cached bytes for key. Any store failure is a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	type result struct {
		data  []byte
		found bool
	}
	r := store.Guard(ctx, c.st, "cache.get", result{}, func(ctx context.Context) (result, error) {
		data, found, err := c.st.Get(ctx, key)
		return result{data, found}, err
	})
	if r.found {
		c.st.Stats().Hit()
	} else {
		c.st.Stats().Miss()
	}
	return r.data, r.found
}

// GetAs decodes the cached value at key into T. Decode failures count as
// misses, same as store failures.
func GetAs[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	data, found := c.Get(ctx, key)
	if !found {
		return zero, false
	}
	var out T
	if err := msgpack.Unmarshal(data, &out); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cached value failed to decode, treating as miss")
		return zero, false
	}
	return out, true
}

// Set encodes value and writes it under key. ttl <= 0 writes a persistent
// entry. Returns whether the write succeeded; encode and store failures
// both report false without surfacing an error.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, ok := value.([]byte)
	if !ok {
		var err error
		data, err = msgpack.Marshal(value)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("value not serializable, skipping cache write")
			return false
		}
	}
	return c.SetRaw(ctx, key, data, ttl)
}

// SetRaw writes pre-encoded bytes under key.
func (c *Cache) SetRaw(ctx context.Context, key string, data []byte, ttl time.Duration) bool {
	ok := store.Guard(ctx, c.st, "cache.set", false, func(ctx context.Context) (bool, error) {
		return true, c.st.Set(ctx, key, data, ttl)
	})
	if ok {
		c.st.Stats().Set()
	}
	return ok
}

// Delete removes key and reports whether it existed.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	removed := store.Guard(ctx, c.st, "cache.delete", false, func(ctx context.Context) (bool, error) {
		n, err := c.st.Del(ctx, key)
		return n > 0, err
	})
	if removed {
		c.st.Stats().Delete()
	}
	return removed
}

// DeletePattern removes every key matching pattern using a cursor scan in
// batches of at most scanBatch keys, and returns how many were removed.
// A store failure mid-scan stops the sweep and returns the count so far.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) int {
	var removed int64
	var cursor uint64
	for {
		keys, next, err := c.st.Scan(ctx, cursor, pattern, scanBatch)
		if err != nil {
			c.logger.Warn().Err(err).Str("pattern", pattern).Msg("pattern delete stopped early")
			break
		}
		if len(keys) > 0 {
			n, err := c.st.Del(ctx, keys...)
			if err != nil {
				c.logger.Warn().Err(err).Str("pattern", pattern).Msg("pattern delete stopped early")
				break
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.st.Stats().AddDeletes(removed)
	return int(removed)
}
