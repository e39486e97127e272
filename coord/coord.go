// Package coord wires the coordination layer together: one store over one
// redis client, and on top of it the namespaced cache, distributed locks,
// the rate limiter, the priority event stream, and the stats collector.
// Construct a single Coord at process startup and inject it wherever the
// layer is needed; there is no package-level state.
package coord

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/choukidar/go-coord/cache"
	"github.com/choukidar/go-coord/lock"
	"github.com/choukidar/go-coord/ratelimit"
	"github.com/choukidar/go-coord/stats"
	"github.com/choukidar/go-coord/store"
	"github.com/choukidar/go-coord/stream"
)

// Coord is the assembled coordination layer.
type Coord struct {
	Store   *store.Store
	Cache   *cache.Cache
	Locks   *lock.Locker
	Limiter *ratelimit.Limiter
	Events  *stream.Stream
	Stats   *stats.Collector

	logger zerolog.Logger
}

type config struct {
	prefix        string
	queryTimeout  time.Duration
	defaultTTL    time.Duration
	shortTTL      time.Duration
	longTTL       time.Duration
	streamOpts    []stream.Option
	lockOpts      []lock.Option
	resetInterval time.Duration
}

// Option configures the assembled layer.
type Option func(*config)

// WithPrefix sets the application key namespace. Defaults to "choukidar".
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// WithQueryTimeout bounds each store round-trip.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithTTLClasses sets the default, short, and long cache TTL classes in
// one shot. Zero values keep the package defaults.
func WithTTLClasses(def, short, long time.Duration) Option {
	return func(c *config) {
		c.defaultTTL, c.shortTTL, c.longTTL = def, short, long
	}
}

// WithStreamOptions forwards options to the event stream (capacity,
// retention, boosts, sweep interval).
func WithStreamOptions(opts ...stream.Option) Option {
	return func(c *config) { c.streamOpts = append(c.streamOpts, opts...) }
}

// WithLockOptions forwards options to the locker (default ttl, retry
// budget, retry delay).
func WithLockOptions(opts ...lock.Option) Option {
	return func(c *config) { c.lockOpts = append(c.lockOpts, opts...) }
}

// WithStatsResetInterval sets how often flow counters are zeroed.
// Defaults to daily.
func WithStatsResetInterval(d time.Duration) Option {
	return func(c *config) { c.resetInterval = d }
}

// New assembles the layer over client. The caller owns the client's
// lifecycle; closing it shuts the layer's store access down.
func New(client *redis.Client, logger zerolog.Logger, opts ...Option) *Coord {
	cfg := config{
		prefix:        "choukidar",
		queryTimeout:  store.DefaultQueryTimeout,
		resetInterval: stats.DefaultResetInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	collector := stats.NewCollector(stats.WithResetInterval(cfg.resetInterval))
	st := store.New(client,
		store.WithQueryTimeout(cfg.queryTimeout),
		store.WithStats(collector),
		store.WithLogger(logger),
	)

	cacheOpts := []cache.Option{cache.WithPrefix(cfg.prefix), cache.WithLogger(logger)}
	if cfg.defaultTTL > 0 {
		cacheOpts = append(cacheOpts, cache.WithDefaultTTL(cfg.defaultTTL))
	}
	if cfg.shortTTL > 0 {
		cacheOpts = append(cacheOpts, cache.WithShortTTL(cfg.shortTTL))
	}
	if cfg.longTTL > 0 {
		cacheOpts = append(cacheOpts, cache.WithLongTTL(cfg.longTTL))
	}

	return &Coord{
		Store:   st,
		Cache:   cache.New(st, cacheOpts...),
		Locks:   lock.New(st, append([]lock.Option{lock.WithLogger(logger)}, cfg.lockOpts...)...),
		Limiter: ratelimit.New(st, ratelimit.WithLogger(logger)),
		Events:  stream.New(st, append([]stream.Option{stream.WithLogger(logger)}, cfg.streamOpts...)...),
		Stats:   collector,
		logger:  logger.With().Str("component", "coord").Logger(),
	}
}

// Run starts the background workers (stream sweep, periodic stats reset)
// and blocks until ctx is cancelled.
func (c *Coord) Run(ctx context.Context) {
	done := make(chan struct{}, 2)
	go func() {
		c.Events.Run(ctx)
		done <- struct{}{}
	}()
	go func() {
		c.Stats.RunPeriodicReset(ctx)
		done <- struct{}{}
	}()
	<-done
	<-done
}
