package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeResolved     = "resolved"
	outcomeDegraded     = "degraded"
	outcomeUnresolvable = "unresolvable"
	outcomeUnavailable  = "unavailable"
	outcomeUnsupported  = "unsupported"
)

type metrics struct {
	frames *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		frames: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "cymbal_frames_resolved_total",
			Help: "Total number of frames processed by platform and outcome.",
		}, []string{"platform", "outcome"}),
	}
}
