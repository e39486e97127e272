package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choukidar/go-coord/store"
)

func newTestCache(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(store.New(client), opts...)
}

func newDeadCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return New(store.New(client, store.WithQueryTimeout(200*time.Millisecond)))
}

type report struct {
	ID       string  `msgpack:"id"`
	Category string  `msgpack:"category"`
	Lat      float64 `msgpack:"lat"`
	Lng      float64 `msgpack:"lng"`
	Verified bool    `msgpack:"verified"`
}

func TestKeyComposition(t *testing.T) {
	_, c := newTestCache(t)
	assert.Equal(t, "choukidar:report:42", c.Key("report", "42"))
	assert.Equal(t, "choukidar:report:42:summary", c.Key("report", "42", "summary"))
	assert.Equal(t, "choukidar:zone:dhaka:geo:v2", c.Key("zone", "dhaka", "geo", "v2"))

	_, custom := newTestCache(t, WithPrefix("app"))
	assert.Equal(t, "app:user:7", custom.Key("user", "7"))
}

func TestSetGetRoundTrip(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	in := report{ID: "r1", Category: "theft", Lat: 23.81, Lng: 90.41, Verified: true}
	key := c.Key("report", in.ID)

	assert.True(t, c.Set(ctx, key, in, time.Minute))

	out, found := GetAs[report](ctx, c, key)
	require.True(t, found)
	assert.Equal(t, in, out)
}

func TestGetMissAndCounters(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	_, found := c.Get(ctx, c.Key("report", "absent"))
	assert.False(t, found)

	c.Set(ctx, c.Key("report", "r1"), []byte("raw"), time.Minute)
	_, found = c.Get(ctx, c.Key("report", "r1"))
	assert.True(t, found)

	snap := c.st.Stats().Snapshot()
	assert.EqualValues(t, 1, snap.Hits)
	assert.EqualValues(t, 1, snap.Misses)
	assert.EqualValues(t, 1, snap.Sets)
}

func TestSetPersistentAndExpiry(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	assert.True(t, c.Set(ctx, "persist", []byte("v"), 0))
	assert.True(t, c.Set(ctx, "short", []byte("v"), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, found := c.Get(ctx, "persist")
	assert.True(t, found)
	_, found = c.Get(ctx, "short")
	assert.False(t, found)
}

func TestSetUnserializable(t *testing.T) {
	_, c := newTestCache(t)
	ok := c.Set(context.Background(), "bad", func() {}, time.Minute)
	assert.False(t, ok, "unserializable value must report failure, not panic")
}

func TestDelete(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	assert.True(t, c.Delete(ctx, "k"))
	assert.False(t, c.Delete(ctx, "k"), "second delete finds nothing")
}

func TestDeletePattern(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	for i := range 250 {
		c.Set(ctx, c.Key("report", fmt.Sprintf("%d", i)), []byte("v"), time.Minute)
	}
	c.Set(ctx, c.Key("user", "1"), []byte("v"), time.Minute)

	removed := c.DeletePattern(ctx, "choukidar:report:*")
	assert.Equal(t, 250, removed)

	_, found := c.Get(ctx, c.Key("user", "1"))
	assert.True(t, found, "non-matching keys survive")
}

func TestFailOpenOnDeadStore(t *testing.T) {
	c := newDeadCache(t)
	ctx := context.Background()

	_, found := c.Get(ctx, "k")
	assert.False(t, found)
	assert.False(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	assert.False(t, c.Delete(ctx, "k"))
	assert.Zero(t, c.DeletePattern(ctx, "*"))
}

func TestExecCacheAside(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	calls := 0
	invoke := func(ctx context.Context) (report, bool, error) {
		calls++
		return report{ID: "r9", Category: "harassment"}, true, nil
	}

	v, found, err := Exec(ctx, c, "report:r9", time.Minute, invoke)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "r9", v.ID)
	assert.Equal(t, 1, calls)

	// Second call is served from cache.
	v, found, err = Exec(ctx, c, "report:r9", time.Minute, invoke)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "harassment", v.Category)
	assert.Equal(t, 1, calls)
}

func TestExecNotFoundNotCached(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	calls := 0
	invoke := func(ctx context.Context) (report, bool, error) {
		calls++
		return report{}, false, nil
	}

	_, found, err := Exec(ctx, c, "report:missing", time.Minute, invoke)
	require.NoError(t, err)
	assert.False(t, found)

	_, _, _ = Exec(ctx, c, "report:missing", time.Minute, invoke)
	assert.Equal(t, 2, calls, "absent records are re-invoked, never cached")
}

func TestExecInvokerError(t *testing.T) {
	_, c := newTestCache(t)

	wantErr := fmt.Errorf("query failed")
	_, found, err := Exec(context.Background(), c, "k", time.Minute, func(ctx context.Context) (report, bool, error) {
		return report{}, false, wantErr
	})
	assert.False(t, found)
	assert.ErrorIs(t, err, wantErr)
}
