package alert

import "time"

// Severity ranks how urgent an alert is. It is assigned by the rule
// that fired and fixes the SLA window at creation.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Status tracks where an alert is in its lifecycle.
type Status string

const (
	// StatusPending means the alert is waiting to be worked.
	StatusPending Status = "PENDING"

	// StatusAcknowledged means a clinician has seen the alert and is on it.
	StatusAcknowledged Status = "ACKNOWLEDGED"

	// StatusResolved is terminal: the alert was addressed.
	StatusResolved Status = "RESOLVED"

	// StatusDismissed is terminal: the alert was closed without action.
	StatusDismissed Status = "DISMISSED"

	// StatusSnoozed means the alert is out of the queue until SnoozeUntil.
	StatusSnoozed Status = "SNOOZED"

	// StatusSuppressed means a suppression scope is blocking recurrence.
	StatusSuppressed Status = "SUPPRESSED"
)

// Terminal reports whether no further status transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed
}

// Alert is a full projection of one clinical alert as owned by the
// authoritative Alert Store. pulse never invents these fields; every
// value here comes from a snapshot fetch, a stream event, or a
// mutation response.
type Alert struct {
	ID           string    `json:"id"`
	Severity     Severity  `json:"severity"`
	Status       Status    `json:"status"`
	Message      string    `json:"message"`
	RuleRef      string    `json:"rule_ref"`
	PatientRef   string    `json:"patient_ref"`
	RiskScore    float64   `json:"risk_score"`
	PriorityRank int       `json:"priority_rank"`
	TriggeredAt  time.Time `json:"triggered_at"`

	// SLADeadline is fixed at creation from severity and never changes.
	// All breach/escalation values are derived from it on read.
	SLADeadline time.Time `json:"sla_deadline"`

	ClaimedBy   string     `json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	SnoozeUntil *time.Time `json:"snooze_until,omitempty"`
}

// Claimed reports whether the alert currently has an owner.
func (a *Alert) Claimed() bool { return a.ClaimedBy != "" }

// SLAStatus is the derived position of an alert relative to its deadline.
type SLAStatus string

const (
	SLAOK          SLAStatus = "ok"
	SLAApproaching SLAStatus = "approaching"
	SLABreached    SLAStatus = "breached"
)

// Annotated is an Alert decorated with time-derived fields for the
// consumer. The annotations are recomputed on every read and never
// stored, so they cannot drift from wall-clock truth.
type Annotated struct {
	Alert
	SLAStatus            SLAStatus `json:"sla_status"`
	Escalated            bool      `json:"escalated"`
	TimeRemainingMinutes int       `json:"time_remaining_minutes"`
}

// Role is a clinician's privilege level as asserted by the caller's
// identity layer. Only supervisors and org admins may force-claim.
type Role string

const (
	RoleClinician  Role = "CLINICIAN"
	RoleSupervisor Role = "SUPERVISOR"
	RoleOrgAdmin   Role = "ORG_ADMIN"
)

// Actor identifies who is performing a claim or bulk operation.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// CanForceClaim reports whether the actor's role permits overriding
// another clinician's claim.
func (a Actor) CanForceClaim() bool {
	return a.Role == RoleSupervisor || a.Role == RoleOrgAdmin
}
