// Package middleware: request admission and edge metadata for the HTTP API.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/brandonxu360/utility-watershed-analytics-sub001/internal/logger"
)

// TokenBucket is a per-second token bucket.
// Background: the API is cheap per request, so a coarse process-wide limit is enough
// to protect the session registry from floods.
// Constraint: tokens refill all at once on a new wall-clock second; requests over the
// limit are dropped, not queued.
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	now      func() time.Time
	mu       sync.Mutex
}

func NewTokenBucket(qps int) *TokenBucket {
	tb := &TokenBucket{capacity: qps, tokens: qps, now: time.Now}
	tb.lastSec = tb.now().Unix()
	return tb
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// RateLimit answers 429 once the bucket is empty. qps <= 0 disables limiting.
func RateLimit(qps int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if qps <= 0 {
			return next
		}
		tb := NewTokenBucket(qps)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tb.Allow() {
				logger.L().Debug("rate_limited", "path", r.URL.Path, "remote", r.RemoteAddr)
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type ctxKey struct{}

// EdgeGeo injects the visitor position a CDN reports in X-Geo-Latitude and
// X-Geo-Longitude headers. Absent or unparsable headers inject nothing.
func EdgeGeo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pt, ok := parseEdgeGeo(r.Header); ok {
			logger.L().Debug("edge_geo_inject", "lon", pt.Lon(), "lat", pt.Lat())
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, pt))
		}
		next.ServeHTTP(w, r)
	})
}

// EdgeGeoFrom returns the position injected by EdgeGeo.
func EdgeGeoFrom(ctx context.Context) (orb.Point, bool) {
	pt, ok := ctx.Value(ctxKey{}).(orb.Point)
	return pt, ok
}

func parseEdgeGeo(h http.Header) (orb.Point, bool) {
	lat, err := strconv.ParseFloat(h.Get("X-Geo-Latitude"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return orb.Point{}, false
	}
	lon, err := strconv.ParseFloat(h.Get("X-Geo-Longitude"), 64)
	if err != nil || lon < -180 || lon > 180 {
		return orb.Point{}, false
	}
	return orb.Point{lon, lat}, true
}
