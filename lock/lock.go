// Package lock provides advisory, time-bounded mutual exclusion across
// every process replica sharing the backing store. Exclusivity comes
// entirely from the store's conditional set: a lock is a key that only
// one writer can create, holding a token only its creator knows. Release
// is an atomic compare-and-delete on that token, so a holder whose ttl
// already lapsed cannot release a successor's lock.
//
// There is no renewal or heartbeat. A critical section that outlives its
// ttl silently loses exclusivity; size the ttl generously for the work
// done under the lock.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/choukidar/go-coord/store"
)

// Defaults for the constructor-time configuration surface.
const (
	// DefaultTTL is the lock lifetime when Acquire is called with ttl <= 0.
	DefaultTTL = 30 * time.Second
	// DefaultMaxRetries is how many times Acquire re-attempts a contended
	// lock when called with maxRetries < 0.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base delay between attempts; attempt n
	// waits n times this long, so the total wait grows linearly.
	DefaultRetryDelay = 100 * time.Millisecond
)

// Locker acquires and releases distributed locks on the shared store.
type Locker struct {
	st     *store.Store
	cfg    config
	logger zerolog.Logger
}

type config struct {
	prefix     string
	defaultTTL time.Duration
	maxRetries int
	retryDelay time.Duration
}

// Option configures a Locker.
type Option func(*Locker)

// WithPrefix sets the key namespace for locks. Defaults to "lock".
func WithPrefix(p string) Option {
	return func(l *Locker) { l.cfg.prefix = p }
}

// WithDefaultTTL sets the lock lifetime used when Acquire receives
// ttl <= 0. Defaults to DefaultTTL.
func WithDefaultTTL(d time.Duration) Option {
	return func(l *Locker) { l.cfg.defaultTTL = d }
}

// WithMaxRetries sets the retry budget used when Acquire receives
// maxRetries < 0. Defaults to DefaultMaxRetries.
func WithMaxRetries(n int) Option {
	return func(l *Locker) { l.cfg.maxRetries = n }
}

// WithRetryDelay sets the base inter-attempt delay. Defaults to
// DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(l *Locker) { l.cfg.retryDelay = d }
}

// WithLogger attaches a logger for contention and degradation reporting.
func WithLogger(lg zerolog.Logger) Option {
	return func(l *Locker) { l.logger = lg.With().Str("component", "lock").Logger() }
}

// New returns a Locker over st.
func New(st *store.Store, opts ...Option) *Locker {
	l := &Locker{
		st: st,
		cfg: config{
			prefix:     "lock",
			defaultTTL: DefaultTTL,
			maxRetries: DefaultMaxRetries,
			retryDelay: DefaultRetryDelay,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result reports one acquisition attempt. When Acquired is true the
// holder owns Key with Token until TTL elapses or Release succeeds.
// When false, Err carries store.ErrContention if every retry found the
// lock held, or store.ErrStoreUnavailable if the final attempt could not
// reach the store. It is a structured result, not a thrown failure:
// callers decide whether to proceed without the lock or abort.
type Result struct {
	Acquired bool
	Key      string
	Token    string
	TTL      time.Duration
	Err      error
}

func (l *Locker) key(resource string) string {
	return l.cfg.prefix + ":" + resource
}

// Acquire attempts to take the lock for resource. ttl <= 0 uses the
// configured default, maxRetries < 0 uses the configured retry budget.
// Contended attempts retry with linearly increasing delay; total wait is
// bounded by maxRetries and the delay, there is no separate deadline.
// Context cancellation between attempts stops early.
func (l *Locker) Acquire(ctx context.Context, resource string, ttl time.Duration, maxRetries int) Result {
	if ttl <= 0 {
		ttl = l.cfg.defaultTTL
	}
	if maxRetries < 0 {
		maxRetries = l.cfg.maxRetries
	}

	key := l.key(resource)
	token := uuid.NewString()
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				l.st.Stats().LockFailed()
				return Result{Key: key, Err: ctx.Err()}
			case <-time.After(l.cfg.retryDelay * time.Duration(attempt)):
			}
		}

		ok, err := l.st.SetNX(ctx, key, []byte(token), ttl)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			l.st.Stats().LockAcquired()
			return Result{Acquired: true, Key: key, Token: token, TTL: ttl}
		}
		lastErr = store.ErrContention
	}

	l.st.Stats().LockFailed()
	l.logger.Debug().Err(lastErr).Str("resource", resource).Int("retries", maxRetries).
		Msg("lock not acquired")
	return Result{Key: key, Err: lastErr}
}

// Release frees the lock described by r, and reports whether the delete
// actually happened. It returns false when r was never acquired, when the
// lock already expired and another holder took it (the token no longer
// matches), or when the store is unreachable.
func (l *Locker) Release(ctx context.Context, r Result) bool {
	if !r.Acquired {
		return false
	}
	return store.Guard(ctx, l.st, "lock.release", false, func(ctx context.Context) (bool, error) {
		return l.st.CompareAndDelete(ctx, r.Key, r.Token)
	})
}
