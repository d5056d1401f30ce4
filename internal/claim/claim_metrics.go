package claim

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for ownership transitions.
type Metrics struct {
	Transitions *prometheus.CounterVec
}

// NewMetrics registers and returns claim metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_claim_transitions_total",
			Help: "Ownership transitions by action and outcome.",
		}, []string{"action", "outcome"}),
	}
	reg.MustRegister(m.Transitions)
	return m
}
