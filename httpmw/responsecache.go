package httpmw

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/choukidar/go-coord/cache"
)

// cachedResponse is the stored shape of a captured response.
type cachedResponse struct {
	Status      int    `msgpack:"status"`
	ContentType string `msgpack:"contentType"`
	Body        []byte `msgpack:"body"`
}

type responseCacheConfig struct {
	ttl       time.Duration
	namespace string
	keyFunc   func(*http.Request) string
}

// ResponseCacheOption configures ResponseCache.
type ResponseCacheOption func(*responseCacheConfig)

// WithTTL sets how long captured responses stay cached. Defaults to the
// cache's default TTL class.
func WithTTL(d time.Duration) ResponseCacheOption {
	return func(c *responseCacheConfig) { c.ttl = d }
}

// WithNamespace composes cache keys with the version of the given
// namespace, so a BumpVersion on it drops every cached response at once.
func WithNamespace(ns string) ResponseCacheOption {
	return func(c *responseCacheConfig) { c.namespace = ns }
}

// WithCacheKeyFunc replaces how the cache key is derived from a request.
// The default hashes method, path, and query.
func WithCacheKeyFunc(fn func(*http.Request) string) ResponseCacheOption {
	return func(c *responseCacheConfig) { c.keyFunc = fn }
}

func hashRequest(r *http.Request) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery))
}

// ResponseCache serves GET responses from the shared cache. Hits carry
// "X-Cache: HIT" and the captured content type; misses run the handler,
// capture bodies with a 2xx status, and carry "X-Cache: MISS". Concurrent
// misses for one key are collapsed — one request runs the handler, the
// rest wait and share its response.
//
// Only mount it on routes whose responses do not vary by caller: the
// cached body is shared verbatim, response headers other than the content
// type are not preserved.
func ResponseCache(c *cache.Cache, opts ...ResponseCacheOption) func(http.Handler) http.Handler {
	cfg := responseCacheConfig{keyFunc: hashRequest}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = c.DefaultTTL()
	}
	var flight singleflight.Group

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			key := c.Key("route", cfg.keyFunc(r))
			if cfg.namespace != "" {
				key = c.VersionedKey(ctx, cfg.namespace, key)
			}

			if entry, ok := cache.GetAs[cachedResponse](ctx, c, key); ok {
				writeCached(w, entry, "HIT")
				return
			}

			v, _, _ := flight.Do(key, func() (interface{}, error) {
				rec := newRecorder()
				next.ServeHTTP(rec, r)
				entry := cachedResponse{
					Status:      rec.status,
					ContentType: rec.header.Get("Content-Type"),
					Body:        rec.buf.Bytes(),
				}
				if entry.Status >= 200 && entry.Status < 300 {
					c.Set(ctx, key, entry, cfg.ttl)
				}
				return entry, nil
			})
			writeCached(w, v.(cachedResponse), "MISS")
		})
	}
}

func writeCached(w http.ResponseWriter, entry cachedResponse, status string) {
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set("X-Cache", status)
	w.WriteHeader(entry.Status)
	_, _ = w.Write(entry.Body)
}

// recorder buffers a handler's response so it can be cached and replayed.
type recorder struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) { r.status = status }

func (r *recorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
