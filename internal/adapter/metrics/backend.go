package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackendMetrics tracks requests to the generation and minting backends.
type BackendMetrics struct {
	RequestDuration     *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec
}

func NewBackendMetrics(reg prometheus.Registerer) *BackendMetrics {
	m := &BackendMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of backend requests in seconds, by backend, operation and outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"backend", "operation", "outcome"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state by component (0=closed, 1=half-open, 2=open).",
		}, []string{"component"}),
	}

	reg.MustRegister(m.RequestDuration, m.CircuitBreakerState)
	return m
}

func (m *BackendMetrics) ObserveRequest(backend, operation, outcome string, d time.Duration) {
	m.RequestDuration.WithLabelValues(backend, operation, outcome).Observe(d.Seconds())
}

func (m *BackendMetrics) SetBreakerState(component string, state float64) {
	m.CircuitBreakerState.WithLabelValues(component).Set(state)
}
