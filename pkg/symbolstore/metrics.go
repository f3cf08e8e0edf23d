package symbolstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultHit         = "hit"
	resultMiss        = "miss"
	resultNegativeHit = "negative_hit"
	resultShared      = "shared"

	statusSuccess = "success"
	statusError   = "error"
	statusPanic   = "panic"
)

type cacheMetrics struct {
	lookups       *prometheus.CounterVec
	evictions     prometheus.Counter
	heldBytes     prometheus.Gauge
	entries       *prometheus.GaugeVec
	fetchDuration *prometheus.HistogramVec
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	f := promauto.With(reg)
	return &cacheMetrics{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cymbal_symbol_cache_lookups_total",
			Help: "Total number of symbol cache lookups by result.",
		}, []string{"result"}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Name: "cymbal_symbol_cache_evictions_total",
			Help: "Total number of symbol sets evicted to stay under the byte quota.",
		}),
		heldBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "cymbal_symbol_cache_held_bytes",
			Help: "Approximate number of bytes held by cached symbol sets.",
		}),
		entries: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cymbal_symbol_cache_entries",
			Help: "Number of cache entries by state.",
		}, []string{"state"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cymbal_symbol_cache_fetch_duration_seconds",
			Help:    "Time spent fetching symbol sets on cache misses by status.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		}, []string{"status"}),
	}
}
