package alert

import (
	"encoding/json"
	"fmt"
)

// EventType names the stream envelopes the Alert Store pushes.
type EventType string

const (
	// EventAlert announces a newly created alert.
	EventAlert EventType = "alert"

	// EventAlertUpdate carries a full re-projection of an existing alert.
	EventAlertUpdate EventType = "alert_update"

	// EventAlertResolved removes an alert from the active queue.
	EventAlertResolved EventType = "alert_resolved"

	// EventHeartbeat is a keepalive carrying only a timestamp.
	EventHeartbeat EventType = "heartbeat"
)

// Event is one envelope off the push stream. Non-heartbeat payloads are
// full current projections of the alert, never diffs.
type Event struct {
	Type  EventType
	Alert *Alert
}

// ParseEvent decodes a named stream event into an Event. Heartbeats
// carry no alert payload; everything else must decode to a projection
// with a non-empty id.
func ParseEvent(name string, data []byte) (Event, error) {
	t := EventType(name)
	switch t {
	case EventHeartbeat:
		return Event{Type: t}, nil
	case EventAlert, EventAlertUpdate, EventAlertResolved:
		var a Alert
		if err := json.Unmarshal(data, &a); err != nil {
			return Event{}, fmt.Errorf("decode %s event: %w", name, err)
		}
		if a.ID == "" {
			return Event{}, fmt.Errorf("%s event missing alert id", name)
		}
		return Event{Type: t, Alert: &a}, nil
	default:
		return Event{}, fmt.Errorf("unknown event type %q", name)
	}
}
