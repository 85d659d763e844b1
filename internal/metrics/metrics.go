// Package metrics: process-wide Prometheus collectors for the HTTP layer, the dataset
// cache and the map sessions.
// Background: collectors are package variables so any package can record without
// plumbing a registry through constructors.
// Constraint: every collector is registered once in init; names carry the watershed_
// prefix and label sets stay small (route pattern, status class, result).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors. Counters only grow; ActiveSessions is the only gauge and is balanced by
// session Mount/Unmount.
var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watershed_http_requests_total",
		Help: "Total HTTP requests by route and status class",
	}, []string{"route", "class"})
	RequestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "watershed_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	DatasetFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watershed_dataset_fetch_total",
		Help: "Dataset fetches issued by the cache, by result",
	}, []string{"result"})
	DatasetFetchDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "watershed_dataset_fetch_duration_ms",
		Help:    "Dataset fetch and decode duration in milliseconds",
		Buckets: []float64{5, 20, 50, 100, 250, 500, 1000, 2500, 5000},
	})
	DatasetSkippedFeatures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watershed_dataset_skipped_features_total",
		Help: "Features dropped at decode time because of malformed geometry or id",
	})
	RedisHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watershed_redis_hits_total",
		Help: "Total redis dataset cache hits",
	})
	RedisMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watershed_redis_misses_total",
		Help: "Total redis dataset cache misses",
	})
	OverlayLayersCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watershed_overlay_layers_created_total",
		Help: "Overlay layers created after a collection change",
	})
	OverlayLayersRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watershed_overlay_layers_removed_total",
		Help: "Overlay layers detached from a map surface",
	})
	LabelPassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watershed_label_passes_total",
		Help: "Zoom-settle label recomputation passes",
	})
	ViewportCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watershed_viewport_commands_total",
		Help: "Viewport commands issued by kind",
	}, []string{"kind"})
	NavigatorMissTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watershed_navigator_miss_total",
		Help: "Selected identifiers that matched no feature",
	})
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "watershed_active_sessions",
		Help: "Mounted map sessions",
	})
)

// init registers every collector on the default registry.
// Constraint: MustRegister panics on a duplicate name, so collectors are never
// registered anywhere else.
func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(DatasetFetchTotal)
	prometheus.MustRegister(DatasetFetchDurationMs)
	prometheus.MustRegister(DatasetSkippedFeatures)
	prometheus.MustRegister(RedisHitsTotal)
	prometheus.MustRegister(RedisMissesTotal)
	prometheus.MustRegister(OverlayLayersCreated)
	prometheus.MustRegister(OverlayLayersRemoved)
	prometheus.MustRegister(LabelPassesTotal)
	prometheus.MustRegister(ViewportCommandsTotal)
	prometheus.MustRegister(NavigatorMissTotal)
	prometheus.MustRegister(ActiveSessions)
}

// Handler exposes every registered collector for Prometheus scraping.
func Handler() http.Handler { return promhttp.Handler() }
