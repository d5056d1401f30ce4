package alertstore

import (
	"time"

	"github.com/linnemanlabs/pulse/internal/alert"
)

// Page selects one page of the snapshot.
type Page struct {
	Number  int `json:"number"`
	PerPage int `json:"per_page"`
}

// Pagination describes the snapshot page that came back.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_items"`
}

// Summary is the Alert Store's server-side tally for the current filters.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity,omitempty"`
	ByStatus   map[string]int `json:"by_status,omitempty"`
}

// Snapshot is one paginated fetch of the active alert queue.
type Snapshot struct {
	Items      []alert.Alert `json:"items"`
	Pagination Pagination    `json:"pagination"`
	Summary    Summary       `json:"summary"`
}

// ForceClaimPayload justifies a privileged claim override.
type ForceClaimPayload struct {
	Reason string `json:"reason"`
}

// ResolvePayload closes out an alert. When resolving a batch the same
// payload is shared across every id by design.
type ResolvePayload struct {
	Notes        string `json:"notes"`
	CPTCode      string `json:"cpt_code,omitempty"`
	Outcome      string `json:"outcome"`
	FollowUpTask string `json:"follow_up_task,omitempty"`
}

// SnoozePayload removes an alert from the queue until a future time.
type SnoozePayload struct {
	Until  time.Time `json:"until"`
	Reason string    `json:"reason"`
}

// SuppressPayload blocks recurrence of alerts matching a rule+patient
// scope until an expiry condition the Alert Store owns.
type SuppressPayload struct {
	Scope  SuppressScope `json:"scope"`
	Reason string        `json:"reason"`
}

// SuppressScope names the rule+patient pair a suppression covers.
type SuppressScope struct {
	RuleRef    string `json:"rule_ref"`
	PatientRef string `json:"patient_ref"`
}

// AssignPayload hands an alert to another clinician.
type AssignPayload struct {
	ClinicianID string `json:"clinician_id"`
}

// BulkAction names the operations that fan out over multiple ids.
type BulkAction string

const (
	BulkAcknowledge BulkAction = "acknowledge"
	BulkResolve     BulkAction = "resolve"
	BulkSnooze      BulkAction = "snooze"
	BulkAssign      BulkAction = "assign"
)

// BulkItemResult is the per-id outcome of a bulk action. Results come
// back in no particular order.
type BulkItemResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BulkResponse is the Alert Store's reply to one bulk request.
type BulkResponse struct {
	Results []BulkItemResult `json:"results"`
}

// CPTCode is one billing code the external eligibility algorithm says
// is available for the month. pulse passes these through untouched.
type CPTCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Recommended bool   `json:"recommended"`
}
