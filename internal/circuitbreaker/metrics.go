package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the circuit breaker collectors of one engine.
type Metrics struct {
	state        *prometheus.GaugeVec
	requests     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	stateChanges *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
}

// NewMetrics registers circuit breaker collectors with reg. A nil
// registerer gets a private registry so engines never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		state: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_requests_total",
				Help: "Total number of guarded calls by outcome",
			},
			[]string{"name", "result"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_failures_total",
				Help: "Total number of failures recorded by circuit breakers",
			},
			[]string{"name"},
		),
		stateChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_state_changes_total",
				Help: "Total number of circuit breaker state changes",
			},
			[]string{"name", "from", "to"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_rejected_total",
				Help: "Total number of calls rejected without attempting the operation",
			},
			[]string{"name"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_fallbacks_total",
				Help: "Total number of fallback invocations by result",
			},
			[]string{"name", "result"},
		),
	}
}

func (m *Metrics) recordOutcome(name string, kind OutcomeKind) {
	m.requests.WithLabelValues(name, kind.String()).Inc()
}

func (m *Metrics) recordFailure(name string) {
	m.failures.WithLabelValues(name).Inc()
}

func (m *Metrics) recordRejected(name string) {
	m.rejected.WithLabelValues(name).Inc()
}

func (m *Metrics) recordFallback(name string, used bool) {
	result := "used"
	if !used {
		result = "unavailable"
	}
	m.fallbacks.WithLabelValues(name, result).Inc()
}

func (m *Metrics) recordStateChange(name string, from, to State) {
	m.stateChanges.WithLabelValues(name, from.String(), to.String()).Inc()
	m.state.WithLabelValues(name).Set(float64(to))
}

// forget drops the per-key series of an evicted or reset circuit.
func (m *Metrics) forget(name string) {
	m.state.DeleteLabelValues(name)
}
