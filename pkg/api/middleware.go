package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/posthog/cymbal/pkg/util"
)

const requestIDHeader = "X-Request-Id"

type middlewareMetrics struct {
	requestDuration *prometheus.HistogramVec
	responseBytes   *prometheus.HistogramVec
}

// InstrumentMiddleware records request metrics per route and tags every
// request with an ID that is echoed back and logged.
func InstrumentMiddleware(logger log.Logger, reg prometheus.Registerer) mux.MiddlewareFunc {
	f := promauto.With(reg)
	m := &middlewareMetrics{
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cymbal_http_request_duration_seconds",
			Help:    "Time spent serving HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
		responseBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cymbal_http_response_size_bytes",
			Help:    "Size of HTTP responses.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"method", "route"}),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			route := routeName(r)
			stats := httpsnoop.CaptureMetrics(next, w, r)
			m.requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(stats.Code)).Observe(stats.Duration.Seconds())
			m.responseBytes.WithLabelValues(r.Method, route).Observe(float64(stats.Written))

			if stats.Code >= http.StatusInternalServerError {
				level.Warn(logger).Log("msg", "request failed", "request_id", id, "method", r.Method, "route", route, "status", stats.Code, "duration", stats.Duration)
			} else {
				level.Debug(logger).Log("msg", "request served", "request_id", id, "method", r.Method, "route", route, "status", stats.Code, "duration", stats.Duration)
			}
		})
	}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "other"
}

// RecoveryMiddleware turns a panicking handler into a 500 response.
func RecoveryMiddleware(logger log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := util.RecoverPanic(func() error {
				next.ServeHTTP(w, r)
				return nil
			})()
			var p *util.PanicError
			if errors.As(err, &p) {
				level.Error(logger).Log("msg", "panic while serving request", "route", routeName(r), "err", err, "stack", string(p.Stack))
				Error(w, err)
			}
		})
	}
}
