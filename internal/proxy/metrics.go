package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for dispatch operations.
type Metrics struct {
	dispatchTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	healthStatus    *prometheus.GaugeVec
}

// NewMetrics registers proxy collectors with reg. A nil registerer gets
// a private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "proxy",
				Name:      "dispatch_total",
				Help:      "Total number of dispatched calls by outcome",
			},
			[]string{"backend", "outcome"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "proxy",
				Name:      "errors_total",
				Help:      "Total number of proxy errors",
			},
			[]string{"backend", "error_type"},
		),
		backendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "proxy",
				Name:      "backend_duration_seconds",
				Help:      "Duration of backend proxy requests",
				Buckets: []float64{
					.001, .005, .01, .025,
					.05, .1, .25, .5,
					1, 2.5, 5, 10,
				},
			},
			[]string{"backend"},
		),
		healthStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Subsystem: "proxy",
				Name:      "backend_healthy",
				Help:      "Result of the last backend health check (1=healthy)",
			},
			[]string{"backend"},
		),
	}
}

func errorType(err error) string {
	switch {
	case IsTimeout(err):
		return "timeout"
	case IsUnknownBackend(err):
		return "unknown_backend"
	case IsUnavailable(err):
		return "unavailable"
	default:
		return "other"
	}
}
