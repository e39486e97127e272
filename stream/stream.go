// Package stream is the ephemeral priority event stream used for fan-out
// notifications: new incident alerts, moderation decisions, safe zone
// changes. Each event type keeps a bounded, priority-ordered ring of
// references in a sorted set, with full event bodies stored under their
// own TTL'd keys. Nothing here is durable — consumers that miss the
// retention window miss the event.
package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/codes"

	"github.com/choukidar/go-coord/store"
)

// Defaults for the constructor-time configuration surface.
const (
	// DefaultCapacity is the most references one event type's index
	// retains; the lowest-priority entries are evicted first.
	DefaultCapacity = 100
	// DefaultRetention is how long events stay readable.
	DefaultRetention = time.Hour
	// DefaultSweepInterval is how often the background sweeper trims
	// indexes by score.
	DefaultSweepInterval = 10 * time.Minute
)

// Event is one stream entry. Priority combines the emission timestamp in
// unix milliseconds with the additive category boosts; see Boosts for the
// ordering guarantee.
type Event struct {
	ID         string   `msgpack:"id" json:"id"`
	Type       string   `msgpack:"type" json:"type"`
	Payload    any      `msgpack:"payload" json:"payload"`
	Categories []string `msgpack:"categories,omitempty" json:"categories,omitempty"`
	Priority   float64  `msgpack:"priority" json:"priority"`
	EmittedAt  int64    `msgpack:"emittedAt" json:"emittedAt"` // unix ms
}

// Stream publishes and reads priority-ordered ephemeral events.
type Stream struct {
	st     *store.Store
	cfg    config
	logger zerolog.Logger
}

type config struct {
	prefix        string
	capacity      int64
	retention     time.Duration
	sweepInterval time.Duration
	boosts        Boosts
}

// Option configures a Stream.
type Option func(*Stream)

// WithPrefix sets the key namespace. Defaults to "realtime".
func WithPrefix(p string) Option {
	return func(s *Stream) { s.cfg.prefix = p }
}

// WithCapacity bounds each event type's index. Defaults to
// DefaultCapacity.
func WithCapacity(n int) Option {
	return func(s *Stream) { s.cfg.capacity = int64(n) }
}

// WithRetention sets how long events stay readable and how far back the
// sweeper keeps unboosted entries. Defaults to DefaultRetention.
func WithRetention(d time.Duration) Option {
	return func(s *Stream) { s.cfg.retention = d }
}

// WithSweepInterval sets the background sweep cadence. Defaults to
// DefaultSweepInterval.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Stream) { s.cfg.sweepInterval = d }
}

// WithBoosts replaces the category weight table. Weights below the
// retention window break the ordering contract and are reported at
// construction.
func WithBoosts(b Boosts) Option {
	return func(s *Stream) { s.cfg.boosts = b }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Stream) { s.logger = l.With().Str("component", "stream").Logger() }
}

// New returns a Stream over st.
func New(st *store.Store, opts ...Option) *Stream {
	s := &Stream{
		st: st,
		cfg: config{
			prefix:        "realtime",
			capacity:      DefaultCapacity,
			retention:     DefaultRetention,
			sweepInterval: DefaultSweepInterval,
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.boosts == nil {
		s.cfg.boosts = DefaultBoosts(s.cfg.retention)
	}
	if bad := s.cfg.boosts.violations(s.cfg.retention); len(bad) > 0 {
		s.logger.Warn().Strs("categories", bad).
			Msg("boost weights below retention window, boosted events may not outrank recent unboosted ones")
	}
	return s
}

func (s *Stream) indexKey(eventType string) string {
	return s.cfg.prefix + ":events:" + eventType
}

func (s *Stream) bodyKey(id string) string {
	return s.cfg.prefix + ":event:" + id
}

// Emit publishes one event of eventType. ttl <= 0 uses the retention
// window. Categories add their boost weights to the priority. The index
// is trimmed to capacity in the same call, dropping the lowest-priority
// references.
//
// Emit reports failures as classified errors rather than absorbing them:
// emission is a producer-side operation, and callers (moderation hooks,
// incident ingestion) decide whether a lost notification matters. No
// failure here ever panics or blocks beyond the store timeout.
func (s *Stream) Emit(ctx context.Context, eventType string, payload any, ttl time.Duration, categories ...string) (*Event, error) {
	ctx, span := tracer.Start(ctx, "Emit")
	defer span.End()

	if ttl <= 0 {
		ttl = s.cfg.retention
	}
	now := time.Now().UnixMilli()
	ev := &Event{
		ID:         fmt.Sprintf("%d-%s", now, strings.SplitN(uuid.NewString(), "-", 2)[0]),
		Type:       eventType,
		Payload:    payload,
		Categories: categories,
		Priority:   float64(now + s.cfg.boosts.weight(categories)),
		EmittedAt:  now,
	}

	body, err := msgpack.Marshal(ev)
	if err != nil {
		err = errors.Mark(errors.Wrap(err, "stream: encode event"), store.ErrSerialization)
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}

	if err := s.st.Set(ctx, s.bodyKey(ev.ID), body, ttl); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}

	idx := s.indexKey(eventType)
	if err := s.st.ZAdd(ctx, idx, store.Member{Value: ev.ID, Score: ev.Priority}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}

	// Keep only the top capacity references; rank 0 is the lowest score.
	if _, err := s.st.ZRemRangeByRank(ctx, idx, 0, -(s.cfg.capacity + 1)); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("index trim failed")
	}
	// The index itself must not outlive an idle stream.
	if _, err := s.st.Expire(ctx, idx, s.cfg.retention); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("index expiry not set")
	}

	span.SetStatus(codes.Ok, "event emitted")
	return ev, nil
}

// Recent returns up to limit events of eventType, highest priority first,
// skipping references below minPriority and references whose bodies have
// already expired. Expired references found along the way are removed
// from the index opportunistically. Any store failure yields an empty
// slice — readers are request-path consumers and must not fail with the
// store.
func (s *Stream) Recent(ctx context.Context, eventType string, limit int, minPriority float64) []*Event {
	ctx, span := tracer.Start(ctx, "Recent")
	defer span.End()

	if limit <= 0 {
		limit = int(s.cfg.capacity)
	}
	idx := s.indexKey(eventType)

	refs := store.Guard(ctx, s.st, "stream.recent", nil, func(ctx context.Context) ([]store.Member, error) {
		return s.st.ZRevRangeWithScores(ctx, idx, 0, int64(limit-1))
	})

	events := make([]*Event, 0, len(refs))
	var stale []string
	for _, ref := range refs {
		if ref.Score < minPriority {
			// Refs are in descending score order; everything after is lower.
			break
		}
		body, found, err := s.st.Get(ctx, s.bodyKey(ref.Value))
		if err != nil {
			continue
		}
		if !found {
			stale = append(stale, ref.Value)
			continue
		}
		var ev Event
		if err := msgpack.Unmarshal(body, &ev); err != nil {
			s.logger.Warn().Err(err).Str("id", ref.Value).Msg("event body failed to decode, skipping")
			continue
		}
		events = append(events, &ev)
	}

	if len(stale) > 0 {
		if _, err := s.st.ZRem(ctx, idx, stale...); err == nil {
			s.logger.Debug().Int("count", len(stale)).Str("type", eventType).Msg("pruned expired event refs")
		}
	}

	span.SetStatus(codes.Ok, "events read")
	return events
}
