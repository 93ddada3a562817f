package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tundeoa/sokohub-backend/pkg/metrics"
)

// Metrics records request counts and latency per route pattern.
func Metrics(m *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			pattern := r.URL.Path
			if route := chi.RouteContext(r.Context()); route != nil {
				if p := route.RoutePattern(); p != "" {
					pattern = p
				}
			}
			m.ObserveRequest(pattern, r.Method, strconv.Itoa(rec.status), time.Since(start))
		})
	}
}
