package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics tracks the generation and mint state machines.
type SessionMetrics struct {
	GenerationSubmits *prometheus.CounterVec
	MintSubmits       *prometheus.CounterVec
	Replenishments    prometheus.Counter
	ActiveSessions    prometheus.Gauge
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		GenerationSubmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_submits_total",
			Help:      "Total generation submits, by outcome (succeeded, failed, exhausted, rejected).",
		}, []string{"outcome"}),
		MintSubmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mint_submits_total",
			Help:      "Total mint submits, by outcome (succeeded, rejected, unreachable, invalid).",
		}, []string{"outcome"}),
		Replenishments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_replenishments_total",
			Help:      "Total quota refills after a successful mint.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Browser sessions currently held in memory.",
		}),
	}

	reg.MustRegister(m.GenerationSubmits, m.MintSubmits, m.Replenishments, m.ActiveSessions)
	return m
}

func (m *SessionMetrics) GenerationSubmitted(outcome string) {
	m.GenerationSubmits.WithLabelValues(outcome).Inc()
}

func (m *SessionMetrics) MintSubmitted(outcome string) {
	m.MintSubmits.WithLabelValues(outcome).Inc()
}

func (m *SessionMetrics) QuotaReplenished() {
	m.Replenishments.Inc()
}

func (m *SessionMetrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}
