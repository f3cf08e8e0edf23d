package sourcemap

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/posthog/cymbal/pkg/symbolstore"
)

const (
	statusSuccess        = "success"
	statusNotFound       = "not_found"
	statusRateLimited    = "rate_limited"
	statusClientError    = "client_error"
	statusServerError    = "server_error"
	statusForbidden      = "forbidden"
	statusTooLarge       = "too_large"
	statusTimeout        = "timeout"
	statusCanceled       = "canceled"
	statusTransportError = "transport_error"

	storeHit   = "hit"
	storeMiss  = "miss"
	storeError = "error"
)

type metrics struct {
	requestDuration *prometheus.HistogramVec
	fetchedBytes    prometheus.Histogram
	storeLookups    *prometheus.CounterVec
	storeWrites     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cymbal_sourcemap_request_duration_seconds",
			Help:    "Duration of source and map requests by status.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"status"}),
		fetchedBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cymbal_sourcemap_fetched_bytes",
			Help:    "Size of fetched sources and maps.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		storeLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cymbal_sourcemap_store_lookups_total",
			Help: "Total number of symbol data store lookups by result.",
		}, []string{"result"}),
		storeWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cymbal_sourcemap_store_writes_total",
			Help: "Total number of symbol data store writes by status.",
		}, []string{"status"}),
	}
}

// requestStatus maps a request outcome to a metric label.
func requestStatus(err error) string {
	if err == nil {
		return statusSuccess
	}
	var forbidden *symbolstore.ForbiddenDestinationError
	if errors.As(err, &forbidden) {
		return statusForbidden
	}
	if errors.Is(err, symbolstore.ErrBodyTooLarge) {
		return statusTooLarge
	}
	if errors.Is(err, context.Canceled) {
		return statusCanceled
	}
	var timeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout()) {
		return statusTimeout
	}
	var fetchErr *symbolstore.FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
		switch code := fetchErr.StatusCode; {
		case code == http.StatusNotFound:
			return statusNotFound
		case code == http.StatusTooManyRequests:
			return statusRateLimited
		case code >= 500:
			return statusServerError
		default:
			return statusClientError
		}
	}
	return statusTransportError
}
