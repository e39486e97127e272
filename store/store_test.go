package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(client)
}

// newDeadStore returns a store whose client points at a closed server.
func newDeadStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return New(client, WithQueryTimeout(200*time.Millisecond))
}

func TestGetSetDel(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	_, found, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, st.Set(ctx, "k", []byte("v"), time.Minute))
	data, found, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), data)

	n, err := st.Del(ctx, "k", "absent")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestSetPersistent(t *testing.T) {
	mr, st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("v"), 0))
	mr.FastForward(24 * time.Hour)

	_, found, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSetNX(t *testing.T) {
	mr, st := newTestStore(t)
	ctx := context.Background()

	ok, err := st.SetNX(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.SetNX(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = st.SetNX(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIncrInvalidState(t *testing.T) {
	mr, st := newTestStore(t)
	ctx := context.Background()

	n, err := st.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	mr.Set("counter", "corrupted")
	_, err = st.Incr(ctx, "counter")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrStoreUnavailable))
}

func TestExpireAndTTL(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("v"), 0))
	_, ok, err := st.TTL(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "persistent key has no ttl")

	set, err := st.Expire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	d, ok, err := st.TTL(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, d)

	set, err = st.Expire(ctx, "absent", time.Minute)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestScanBounded(t *testing.T) {
	mr, st := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"app:report:1", "app:report:2", "app:user:1"} {
		mr.Set(k, "x")
	}

	var keys []string
	var cursor uint64
	for {
		batch, next, err := st.Scan(ctx, cursor, "app:report:*", 2)
		require.NoError(t, err)
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	assert.ElementsMatch(t, []string{"app:report:1", "app:report:2"}, keys)
}

func TestTypeIntrospection(t *testing.T) {
	mr, st := newTestStore(t)
	ctx := context.Background()

	mr.Set("str", "x")
	require.NoError(t, st.ZAdd(ctx, "zs", Member{Value: "a", Score: 1}))

	typ, err := st.Type(ctx, "str")
	require.NoError(t, err)
	assert.Equal(t, "string", typ)

	typ, err = st.Type(ctx, "zs")
	require.NoError(t, err)
	assert.Equal(t, "zset", typ)

	typ, err = st.Type(ctx, "absent")
	require.NoError(t, err)
	assert.Equal(t, "none", typ)
}

func TestCompareAndDelete(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "lock", []byte("token-a"), time.Minute))

	ok, err := st.CompareAndDelete(ctx, "lock", "token-b")
	require.NoError(t, err)
	assert.False(t, ok, "mismatched token must not delete")

	_, found, _ := st.Get(ctx, "lock")
	assert.True(t, found)

	ok, err = st.CompareAndDelete(ctx, "lock", "token-a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, _ = st.Get(ctx, "lock")
	assert.False(t, found)
}

func TestZSetOps(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ZAdd(ctx, "idx",
		Member{Value: "low", Score: 1},
		Member{Value: "mid", Score: 2},
		Member{Value: "high", Score: 3},
	))

	n, err := st.ZCard(ctx, "idx")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	top, err := st.ZRevRangeWithScores(ctx, "idx", 0, 1)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "high", top[0].Value)
	assert.Equal(t, "mid", top[1].Value)

	within, err := st.ZRangeByScoreWithScores(ctx, "idx", "2", "+inf")
	require.NoError(t, err)
	assert.Len(t, within, 2)

	// Trim to the top 2 by removing everything below rank -3.
	removed, err := st.ZRemRangeByRank(ctx, "idx", 0, -3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = st.ZRemRangeByScore(ctx, "idx", "-inf", "2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	removed, err = st.ZRem(ctx, "idx", "high")
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

func TestListOps(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	n, err := st.LPush(ctx, "feed", "a", "b", "c")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	vals, err := st.LRange(ctx, "feed", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, vals)

	_, err = st.LRem(ctx, "feed", 1, "b")
	require.NoError(t, err)

	require.NoError(t, st.LTrim(ctx, "feed", 0, 0))
	vals, err = st.LRange(ctx, "feed", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, vals)
}

func TestPing(t *testing.T) {
	_, st := newTestStore(t)
	latency, err := st.Ping(context.Background())
	require.NoError(t, err)
	assert.Greater(t, latency, time.Duration(0))
}

func TestUnavailableClassification(t *testing.T) {
	st := newDeadStore(t)
	ctx := context.Background()

	_, _, err := st.Get(ctx, "k")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))

	_, err = st.Ping(ctx)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
}

func TestGuardFallback(t *testing.T) {
	st := newDeadStore(t)
	ctx := context.Background()

	got := Guard(ctx, st, "get", []byte(nil), func(ctx context.Context) ([]byte, error) {
		data, _, err := st.Get(ctx, "k")
		return data, err
	})
	assert.Nil(t, got)

	allowed := Guard(ctx, st, "check", true, func(ctx context.Context) (bool, error) {
		_, err := st.Incr(ctx, "counter")
		return false, err
	})
	assert.True(t, allowed, "guard must fail open with the documented default")
}

func TestGuardPassThrough(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	n := Guard(ctx, st, "incr", int64(0), func(ctx context.Context) (int64, error) {
		return st.Incr(ctx, "counter")
	})
	assert.EqualValues(t, 1, n)
}

func TestStatsObserved(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("v"), 0))
	snap := st.Stats().Snapshot()
	assert.Greater(t, snap.AvgLatencyMs, 0.0)

	dead := newDeadStore(t)
	_, _, _ = dead.Get(ctx, "k")
	assert.EqualValues(t, 1, dead.Stats().Snapshot().StoreErrors)
}
