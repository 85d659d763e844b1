// Package logger: HTTP access logging middleware recording method, path, route
// pattern, status, duration, bytes and remote address of every request.
package logger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// statusWriter captures the status code and body size written by a handler.
// Background: net/http does not expose what a handler wrote, so the middleware wraps
// the writer to observe it.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

// WriteHeader records the status and passes it through.
func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Write counts written bytes and passes them through.
func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// AccessMiddleware logs one debug line per request and feeds the request metrics.
// Background: chi resolves the route pattern only after routing, so the pattern is
// read once the handler has returned; metrics are labelled by pattern, not raw path,
// to keep session ids out of label values.
// Constraint: the request body is never read; a handler that never writes a status is
// recorded as 200.
func AccessMiddleware(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(sw.status/100)+"xx").Inc()
			metrics.RequestDurationMs.Observe(float64(dur.Milliseconds()))
			l.Debug("http_access",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration_ms", dur.Milliseconds(),
				"ip", r.RemoteAddr,
			)
		})
	}
}
