package bulk

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for batch operations.
type Metrics struct {
	Batches *prometheus.CounterVec
	Items   *prometheus.CounterVec
}

// NewMetrics registers and returns bulk metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_bulk_batches_total",
			Help: "Bulk batches dispatched by action.",
		}, []string{"action"}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_bulk_items_total",
			Help: "Per-item bulk outcomes by action and result.",
		}, []string{"action", "result"}),
	}
	reg.MustRegister(m.Batches, m.Items)
	return m
}
