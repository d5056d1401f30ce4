// Package audit records every ownership transition on a clinical
// alert. Losing track of who held an alert is a safety hazard, so
// claims, releases, and privileged overrides each leave a record.
package audit

import (
	"context"
	"time"
)

// Action names an ownership transition.
type Action string

const (
	ActionClaim      Action = "claim"
	ActionUnclaim    Action = "unclaim"
	ActionForceClaim Action = "force_claim"
)

// Record is one audit entry.
type Record struct {
	ID            string    `json:"id"`
	AlertID       string    `json:"alert_id"`
	Action        Action    `json:"action"`
	ActorID       string    `json:"actor_id"`
	PreviousOwner string    `json:"previous_owner,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

// Store is the persistence interface for the audit trail.
type Store interface {
	Append(ctx context.Context, r *Record) error
	ListByAlert(ctx context.Context, alertID string) ([]Record, error)
}
