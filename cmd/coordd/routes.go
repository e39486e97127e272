package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/choukidar/go-coord/coord"
	"github.com/choukidar/go-coord/httpmw"
)

func newRouter(c *coord.Coord, reg *prometheus.Registry, limit int64, window time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		h := c.Health(req.Context())
		status := http.StatusOK
		if h.Status != coord.StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, c.Stats.Snapshot())
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(httpmw.RateLimit(c.Limiter, httpmw.WithLimit(limit, window)))

		// The event feed is cached under the "feed" namespace; posting a
		// report bumps the version, so readers see it on the next request
		// without any key deletes.
		r.Group(func(r chi.Router) {
			r.Use(httpmw.ResponseCache(c.Cache, httpmw.WithNamespace("feed")))
			r.Get("/events/{type}", func(w http.ResponseWriter, req *http.Request) {
				events := c.Events.Recent(req.Context(), chi.URLParam(req, "type"), 50, 0)
				writeJSON(w, http.StatusOK, map[string]any{"events": events})
			})
		})

		r.Post("/events/{type}", func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()

			var payload map[string]any
			if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
				return
			}

			var categories []string
			if sev, ok := payload["severity"].(string); ok && sev != "" {
				categories = append(categories, sev)
			}

			ev, err := c.Events.Emit(ctx, chi.URLParam(req, "type"), payload, 0, categories...)
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "event not recorded"})
				return
			}
			c.Cache.BumpVersion(ctx, "feed")
			writeJSON(w, http.StatusCreated, ev)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
