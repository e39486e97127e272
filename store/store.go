// Package store adapts the redis client into the small set of atomic
// primitives the coordination layer is built on: plain key/value access,
// conditional set, atomic increment, expiry, bounded pattern scans, sorted
// set and list manipulation, type introspection, and an atomic
// compare-and-delete. Every exclusivity or counting guarantee upstream
// (cache versioning, locks, rate limits, stream trimming) reduces to one
// of these primitives, so nothing above this package talks to redis
// directly.
//
// All methods are context-first and apply a per-operation timeout derived
// from the calling context, so a slow or dead store cannot hang a worker.
// Errors are classified into the package's taxonomy (see errors.go);
// callers that want the documented fail-open behavior wrap calls in
// [Guard].
package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/choukidar/go-coord/stats"
)

// DefaultQueryTimeout bounds every store round-trip. Prevents indefinite
// hangs on an unresponsive backing store.
const DefaultQueryTimeout = 5 * time.Second

// compareAndDelete deletes KEYS[1] only if its current value equals
// ARGV[1]. Runs server-side so the check and the delete are atomic; this
// is what makes lock release safe against expiry races.
var compareAndDelete = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// Store is a thin wrapper around one shared redis client. Construct one
// per process and inject it; the caller owns the client lifecycle.
type Store struct {
	client *redis.Client
	cfg    config
	stats  *stats.Collector
	logger zerolog.Logger
}

type config struct {
	queryTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithQueryTimeout overrides the per-operation timeout. Defaults to
// DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) { s.cfg.queryTimeout = d }
}

// WithStats attaches a collector; every operation records latency and
// store errors on it.
func WithStats(c *stats.Collector) Option {
	return func(s *Store) { s.stats = c }
}

// WithLogger attaches a logger used for store error reporting.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New wraps client. The zero-value options give a silent store with its
// own private collector.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		cfg:    config{queryTimeout: DefaultQueryTimeout},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = stats.NewCollector()
	}
	return s
}

// Stats returns the collector observing this store.
func (s *Store) Stats() *stats.Collector { return s.stats }

// Client exposes the underlying redis client for test harnesses only;
// production callers stay behind the primitive methods.
func (s *Store) Client() *redis.Client { return s.client }

func (s *Store) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.queryTimeout)
}

// observe records latency and error counters for one round-trip and
// returns the classified error.
func (s *Store) observe(op string, start time.Time, err error) error {
	s.stats.ObserveLatency(time.Since(start))
	cerr := classify(op, err)
	if cerr != nil {
		s.stats.StoreError()
	}
	return cerr
}

// Get returns the raw value of key, with found=false on a missing key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	data, err := s.client.Get(qctx, key).Bytes()
	if cerr := s.observe("get", start, err); cerr != nil {
		return nil, false, cerr
	}
	if err == redis.Nil {
		return nil, false, nil
	}
	return data, true, nil
}

// Set writes key with a ttl; ttl <= 0 writes a persistent key.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	start := time.Now()
	err := s.client.Set(qctx, key, value, ttl).Err()
	return s.observe("set", start, err)
}

// SetNX writes key only if it does not exist, with the given ttl.
// Returns whether the write happened. This is the lock acquisition
// primitive.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	ok, err := s.client.SetNX(qctx, key, value, ttl).Result()
	if cerr := s.observe("setnx", start, err); cerr != nil {
		return false, cerr
	}
	return ok, nil
}

// Del removes keys and returns how many existed.
func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	n, err := s.client.Del(qctx, keys...).Result()
	if cerr := s.observe("del", start, err); cerr != nil {
		return 0, cerr
	}
	return n, nil
}

// Incr atomically increments the integer at key, creating it at 1.
// A key holding a non-integer yields an ErrInvalidState-marked error.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	n, err := s.client.Incr(qctx, key).Result()
	if cerr := s.observe("incr", start, err); cerr != nil {
		return 0, cerr
	}
	return n, nil
}

// Expire sets a ttl on an existing key. Returns whether the key existed.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	ok, err := s.client.Expire(qctx, key, ttl).Result()
	if cerr := s.observe("expire", start, err); cerr != nil {
		return false, cerr
	}
	return ok, nil
}

// TTL reports the remaining lifetime of key. Missing keys and keys with
// no expiry return ok=false.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	d, err := s.client.TTL(qctx, key).Result()
	if cerr := s.observe("ttl", start, err); cerr != nil {
		return 0, false, cerr
	}
	if d < 0 {
		return 0, false, nil
	}
	return d, true, nil
}

// Scan performs one bounded step of a cursor scan. Callers loop until the
// returned cursor is zero; no call blocks the store the way KEYS would.
func (s *Store) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	keys, next, err := s.client.Scan(qctx, cursor, match, count).Result()
	if cerr := s.observe("scan", start, err); cerr != nil {
		return nil, 0, cerr
	}
	return keys, next, nil
}

// Type reports the redis type of key ("string", "zset", "list", "none", ...).
func (s *Store) Type(ctx context.Context, key string) (string, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	typ, err := s.client.Type(qctx, key).Result()
	if cerr := s.observe("type", start, err); cerr != nil {
		return "", cerr
	}
	return typ, nil
}

// CompareAndDelete deletes key only if its current value equals token,
// atomically. Returns whether the delete happened.
func (s *Store) CompareAndDelete(ctx context.Context, key, token string) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	n, err := compareAndDelete.Run(qctx, s.client, []string{key}, token).Int()
	if cerr := s.observe("cad", start, err); cerr != nil {
		return false, cerr
	}
	return n == 1, nil
}

// Ping round-trips a liveness probe and returns its latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	err := s.client.Ping(qctx).Err()
	latency := time.Since(start)
	return latency, s.observe("ping", start, err)
}
