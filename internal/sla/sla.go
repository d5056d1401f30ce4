// Package sla derives breach and escalation state from an alert's
// fixed deadline and the current wall clock. Everything here is pure:
// no caching, no stored output, safe for any number of concurrent
// readers.
package sla

import (
	"time"

	"github.com/linnemanlabs/pulse/internal/alert"
)

// WarnWindow is how close to the deadline an alert flips to "approaching".
const WarnWindow = 30 * time.Minute

// grace periods before a breached alert escalates to a supervisor.
// LOW never escalates.
var grace = map[alert.Severity]time.Duration{
	alert.SeverityCritical: 30 * time.Minute,
	alert.SeverityHigh:     120 * time.Minute,
	alert.SeverityMedium:   240 * time.Minute,
}

// ComputeStatus returns the alert's SLA position at the given instant.
// For a fixed deadline the result only progresses ok -> approaching ->
// breached as now increases.
func ComputeStatus(a *alert.Alert, now time.Time) alert.SLAStatus {
	if now.After(a.SLADeadline) {
		return alert.SLABreached
	}
	if a.SLADeadline.Sub(now) <= WarnWindow {
		return alert.SLAApproaching
	}
	return alert.SLAOK
}

// ComputeEscalation reports whether a breached alert has exceeded its
// severity-specific grace period and needs supervisor attention.
func ComputeEscalation(a *alert.Alert, now time.Time) bool {
	g, ok := grace[a.Severity]
	if !ok {
		return false
	}
	if !now.After(a.SLADeadline) {
		return false
	}
	return now.Sub(a.SLADeadline) >= g
}

// TimeRemaining returns whole minutes until the deadline, negative
// once breached.
func TimeRemaining(a *alert.Alert, now time.Time) int {
	return int(a.SLADeadline.Sub(now) / time.Minute)
}

// Annotate decorates an alert with its derived SLA fields.
func Annotate(a *alert.Alert, now time.Time) alert.Annotated {
	return alert.Annotated{
		Alert:                *a,
		SLAStatus:            ComputeStatus(a, now),
		Escalated:            ComputeEscalation(a, now),
		TimeRemainingMinutes: TimeRemaining(a, now),
	}
}
