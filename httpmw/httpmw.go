// Package httpmw adapts the coordination layer to the HTTP edge. These
// middlewares are the only objects route handlers touch: they translate
// requests into cache keys and rate-limit identifiers and call down into
// the cache and limiter, which in turn own the store. Handlers never talk
// to the store directly.
package httpmw

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP derives the rate-limit identifier for a request: the first
// X-Forwarded-For hop when present, then X-Real-IP, then the socket peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
