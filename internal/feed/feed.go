// Package feed reconciles the two sources of alert truth a session
// sees: periodic snapshot fetches and inbound push events. It keeps a
// single deduplicated map keyed by alert id and materializes it as a
// stably ordered, SLA-annotated list.
package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/pulse/internal/alert"
	"github.com/linnemanlabs/pulse/internal/sla"
)

// Synchronizer merges snapshots and events into one consistent view.
// The map has a single logical writer; the mutex makes reads from
// other goroutines safe.
type Synchronizer struct {
	mu      sync.RWMutex
	alerts  map[string]*alert.Alert
	metrics *Metrics
}

// New creates an empty synchronizer. Metrics may be nil.
func New(metrics *Metrics) *Synchronizer {
	return &Synchronizer{
		alerts:  make(map[string]*alert.Alert),
		metrics: metrics,
	}
}

// Seed replaces the baseline with a fresh snapshot. Terminal alerts in
// the snapshot are skipped; they have already left the active queue.
func (s *Synchronizer) Seed(items []alert.Alert) {
	next := make(map[string]*alert.Alert, len(items))
	for i := range items {
		a := items[i]
		if a.ID == "" || a.Status.Terminal() {
			continue
		}
		next[a.ID] = &a
	}

	s.mu.Lock()
	s.alerts = next
	n := len(next)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Seeds.Inc()
		s.metrics.Active.Set(float64(n))
	}
}

// ApplyEvent overlays one stream event. Create and update events upsert
// the full projection (last-applied wins; no event-timestamp
// comparison, correctness relies on in-order delivery from the single
// stream). Resolve events remove the alert from the active view.
// Re-applying an identical event does not change observable state.
func (s *Synchronizer) ApplyEvent(ev alert.Event) {
	switch ev.Type {
	case alert.EventAlert, alert.EventAlertUpdate:
		if ev.Alert == nil {
			return
		}
		cp := *ev.Alert
		s.mu.Lock()
		if cp.Status.Terminal() {
			// an update that lands in a terminal status leaves the queue
			delete(s.alerts, cp.ID)
		} else {
			s.alerts[cp.ID] = &cp
		}
		n := len(s.alerts)
		s.mu.Unlock()
		s.observe(ev.Type, n)

	case alert.EventAlertResolved:
		if ev.Alert == nil {
			return
		}
		s.mu.Lock()
		delete(s.alerts, ev.Alert.ID)
		n := len(s.alerts)
		s.mu.Unlock()
		s.observe(ev.Type, n)

	case alert.EventHeartbeat:
		// nothing to merge
	}
}

// Overlay applies an authoritative projection returned by a mutation
// response, exactly as if it had arrived as an update event. The next
// stream event for the id replaces it wholesale.
func (s *Synchronizer) Overlay(a *alert.Alert) {
	if a == nil {
		return
	}
	s.ApplyEvent(alert.Event{Type: alert.EventAlertUpdate, Alert: a})
}

// Get returns a copy of one alert by id.
func (s *Synchronizer) Get(id string) (*alert.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// Len returns the number of active alerts.
func (s *Synchronizer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// Materialize returns the active queue annotated at the given instant,
// ordered by server-assigned priority rank ascending with triggeredAt
// (then id) as tie-breaks, so repeated calls with no intervening events
// yield the same sequence. Alerts whose snooze expired are presented as
// PENDING again; the authoritative revert arrives via the store.
func (s *Synchronizer) Materialize(now time.Time) []alert.Annotated {
	s.mu.RLock()
	out := make([]alert.Annotated, 0, len(s.alerts))
	for _, a := range s.alerts {
		cp := *a
		if cp.Status == alert.StatusSnoozed && cp.SnoozeUntil != nil && !now.Before(*cp.SnoozeUntil) {
			cp.Status = alert.StatusPending
			cp.SnoozeUntil = nil
		}
		out = append(out, sla.Annotate(&cp, now))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityRank != out[j].PriorityRank {
			return out[i].PriorityRank < out[j].PriorityRank
		}
		if !out[i].TriggeredAt.Equal(out[j].TriggeredAt) {
			return out[i].TriggeredAt.Before(out[j].TriggeredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Synchronizer) observe(t alert.EventType, active int) {
	if s.metrics == nil {
		return
	}
	s.metrics.EventsApplied.WithLabelValues(string(t)).Inc()
	s.metrics.Active.Set(float64(active))
}
