package feed

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the synchronizer.
type Metrics struct {
	Seeds         prometheus.Counter
	EventsApplied *prometheus.CounterVec
	Active        prometheus.Gauge
}

// NewMetrics registers and returns feed metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Seeds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_feed_seeds_total",
			Help: "Snapshot seeds applied to the synchronizer.",
		}),
		EventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_feed_events_applied_total",
			Help: "Stream events merged into the view by type.",
		}, []string{"type"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_feed_active_alerts",
			Help: "Alerts currently in the active materialized view.",
		}),
	}

	reg.MustRegister(m.Seeds, m.EventsApplied, m.Active)
	return m
}
