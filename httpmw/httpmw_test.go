package httpmw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choukidar/go-coord/cache"
	"github.com/choukidar/go-coord/ratelimit"
	"github.com/choukidar/go-coord/store"
)

func newTestBackend(t *testing.T) (*miniredis.Miniredis, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, store.New(client)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.3")
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}

func TestResponseCacheHitMiss(t *testing.T) {
	_, st := newTestBackend(t)
	c := cache.New(st)

	var calls atomic.Int64
	router := chi.NewRouter()
	router.Use(ResponseCache(c, WithTTL(time.Minute)))
	router.Get("/reports", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reports":[]}`))
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/reports")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.EqualValues(t, 1, calls.Load())

	resp, err = http.Get(srv.URL + "/reports")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.EqualValues(t, 1, calls.Load(), "hit does not invoke the handler")
}

func TestResponseCacheSkipsNonGet(t *testing.T) {
	_, st := newTestBackend(t)
	c := cache.New(st)

	handler := ResponseCache(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reports", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestResponseCacheSkipsErrors(t *testing.T) {
	_, st := newTestBackend(t)
	c := cache.New(st)

	var calls atomic.Int64
	handler := ResponseCache(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/broken", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}
	assert.EqualValues(t, 2, calls.Load(), "error responses are never cached")
}

func TestResponseCacheVersionedNamespace(t *testing.T) {
	_, st := newTestBackend(t)
	c := cache.New(st)
	ctx := context.Background()

	var calls atomic.Int64
	handler := ResponseCache(c, WithNamespace("feed"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprintf(w, "generation %d", calls.Load())
	}))

	get := func() string {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed", nil))
		return rec.Body.String()
	}

	assert.Equal(t, "generation 1", get())
	assert.Equal(t, "generation 1", get(), "second read is cached")

	// Bumping the namespace version orphans the cached response.
	c.BumpVersion(ctx, "feed")
	assert.Equal(t, "generation 2", get())
}

func TestResponseCacheCollapsesConcurrentMisses(t *testing.T) {
	_, st := newTestBackend(t)
	c := cache.New(st)

	var calls atomic.Int64
	release := make(chan struct{})
	handler := ResponseCache(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Write([]byte("shared"))
	}))

	const n = 8
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))
			assert.Equal(t, "shared", rec.Body.String())
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load(), "concurrent misses share one handler run")
}

func TestRateLimitHeaders(t *testing.T) {
	_, st := newTestBackend(t)
	l := ratelimit.New(st)

	router := chi.NewRouter()
	router.Use(RateLimit(l, WithLimit(2, time.Minute), WithKind("report")))
	router.Post("/reports", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	do := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/reports", nil)
		req.RemoteAddr = "10.0.0.1:555"
		router.ServeHTTP(rec, req)
		return rec
	}

	first := do()
	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, first.Header().Get("X-RateLimit-Reset"))

	second := do()
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))

	third := do()
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "0", third.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, third.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(third.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded", body["error"])
	assert.NotZero(t, body["retryAfter"])
}

func TestRateLimitIsolatesClients(t *testing.T) {
	_, st := newTestBackend(t)
	l := ratelimit.New(st)

	handler := RateLimit(l, WithLimit(1, time.Minute))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(ip string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip)
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("203.0.113.1"))
	assert.Equal(t, http.StatusOK, do("203.0.113.2"), "other clients unaffected")
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	l := ratelimit.New(store.New(client, store.WithQueryTimeout(200*time.Millisecond)))

	handler := RateLimit(l, WithLimit(1, time.Minute))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 5 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "store outage must not reject traffic")
	}
}
