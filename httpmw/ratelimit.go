package httpmw

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/choukidar/go-coord/ratelimit"
)

type rateLimitConfig struct {
	kind    string
	limit   int64
	window  time.Duration
	keyFunc func(*http.Request) string
}

// RateLimitOption configures RateLimit.
type RateLimitOption func(*rateLimitConfig)

// WithLimit sets the per-window ceiling and the window length.
// Defaults to 60 requests per minute.
func WithLimit(limit int64, window time.Duration) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.limit = limit
		c.window = window
	}
}

// WithKind names the limit class, keeping e.g. report submission and
// general API traffic in separate windows. Defaults to "api".
func WithKind(kind string) RateLimitOption {
	return func(c *rateLimitConfig) { c.kind = kind }
}

// WithIdentifierFunc replaces how the limited identity is derived from a
// request. Defaults to ClientIP.
func WithIdentifierFunc(fn func(*http.Request) string) RateLimitOption {
	return func(c *rateLimitConfig) { c.keyFunc = fn }
}

// RateLimit enforces the limiter on every request, annotating responses
// with X-RateLimit-Limit, X-RateLimit-Remaining, and X-RateLimit-Reset.
// Over-limit requests get 429 with a Retry-After header and a JSON body
// carrying the same guidance. When the store is down the limiter fails
// open and traffic passes unthrottled.
func RateLimit(l *ratelimit.Limiter, opts ...RateLimitOption) func(http.Handler) http.Handler {
	cfg := rateLimitConfig{
		kind:    "api",
		limit:   60,
		window:  time.Minute,
		keyFunc: ClientIP,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Check(r.Context(), cfg.kind, cfg.keyFunc(r), cfg.limit, cfg.window)

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				retryAfter := int64(time.Until(res.ResetAt).Seconds()) + 1
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":      "rate limit exceeded",
					"retryAfter": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
