package stream

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the event stream.
type Metrics struct {
	Connects      prometheus.Counter
	Disconnects   prometheus.Counter
	Events        *prometheus.CounterVec
	EventsDropped prometheus.Counter
	ConnState     *prometheus.GaugeVec
}

// NewMetrics registers and returns stream metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_stream_connects_total",
			Help: "Successful stream connections (first message received).",
		}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_stream_disconnects_total",
			Help: "Stream disconnects, including watchdog-forced reconnects.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_stream_events_total",
			Help: "Events received by type.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_stream_events_dropped_total",
			Help: "Malformed events dropped without dispatch.",
		}),
		ConnState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_stream_connection_state",
			Help: "Current connection state (1 for the active state, 0 otherwise).",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.Connects,
		m.Disconnects,
		m.Events,
		m.EventsDropped,
		m.ConnState,
	)

	return m
}

// SetState flips the state gauge so exactly one state reads 1.
func (m *Metrics) SetState(s State) {
	for _, st := range []State{StateDisconnected, StateConnecting, StateConnected, StateError} {
		v := 0.0
		if st == s {
			v = 1.0
		}
		m.ConnState.WithLabelValues(string(st)).Set(v)
	}
}
