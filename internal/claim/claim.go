// Package claim coordinates exclusive ownership of alerts. An alert's
// owner never changes without an explicit, audited action: claims
// conflict rather than reassign, releases are owner-only, and
// overrides require a privileged role and a written justification.
package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/pulse/internal/alert"
	"github.com/linnemanlabs/pulse/internal/alertstore"
	"github.com/linnemanlabs/pulse/internal/audit"
	"github.com/linnemanlabs/pulse/internal/feed"
)

var tracer = otel.Tracer("github.com/linnemanlabs/pulse/internal/claim")

// MinForceReasonLen is the shortest acceptable force-claim justification.
const MinForceReasonLen = 10

// ErrForbidden means the actor may not perform the transition.
var ErrForbidden = errors.New("claim: forbidden")

// ErrReasonTooShort rejects a force-claim justification before dispatch.
var ErrReasonTooShort = fmt.Errorf("claim: force-claim reason must be at least %d characters", MinForceReasonLen)

// ConflictError means another clinician already owns the alert. The
// caller should show the current owner and offer an explicit
// force-claim; the conflict is never auto-resolved.
type ConflictError struct {
	AlertID      string
	CurrentOwner string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("claim: alert %s already claimed by %s", e.AlertID, e.CurrentOwner)
}

// API is the subset of the Alert Store the coordinator dispatches to.
type API interface {
	Claim(ctx context.Context, alertID string, actor alert.Actor) (*alert.Alert, error)
	Unclaim(ctx context.Context, alertID string, actor alert.Actor) (*alert.Alert, error)
	ForceClaim(ctx context.Context, alertID string, actor alert.Actor, p alertstore.ForceClaimPayload) (*alert.Alert, error)
}

// TimerStarter starts the billing care-time timer on a successful claim.
type TimerStarter interface {
	StartTimer(ctx context.Context, patientRef string, actor alert.Actor) error
}

// Notifier tells a clinician their claim was overridden. Delivery is
// delegated to an external collaborator.
type Notifier interface {
	NotifyClaimOverridden(ctx context.Context, alertID, previousOwner string, by alert.Actor, reason string) error
}

// Coordinator validates ownership transitions, dispatches them to the
// Alert Store, overlays the authoritative result into the local view,
// and appends an audit record per transition.
type Coordinator struct {
	api      API
	view     *feed.Synchronizer
	audits   audit.Store
	timers   TimerStarter
	notifier Notifier
	logger   log.Logger
	metrics  *Metrics
}

// New creates a coordinator. timers, notifier, and metrics may be nil.
func New(api API, view *feed.Synchronizer, audits audit.Store, timers TimerStarter, notifier Notifier, logger log.Logger, metrics *Metrics) *Coordinator {
	if logger == nil {
		logger = log.Nop()
	}
	return &Coordinator{
		api:      api,
		view:     view,
		audits:   audits,
		timers:   timers,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// Claim takes exclusive ownership of an alert for the actor.
// Re-claiming by the current owner is a no-op success. A claim held by
// anyone else fails with *ConflictError.
func (c *Coordinator) Claim(ctx context.Context, alertID string, actor alert.Actor) (a *alert.Alert, err error) {
	ctx, span := tracer.Start(ctx, "claim.Claim", trace.WithAttributes(
		attribute.String("pulse.alert.id", alertID),
		attribute.String("pulse.actor.role", string(actor.Role)),
	))
	defer func() { endSpan(span, err) }()

	if cur, ok := c.view.Get(alertID); ok && cur.Claimed() {
		if cur.ClaimedBy == actor.ID {
			c.count(audit.ActionClaim, "noop")
			return cur, nil
		}
		c.count(audit.ActionClaim, "conflict")
		return nil, &ConflictError{AlertID: alertID, CurrentOwner: cur.ClaimedBy}
	}

	updated, err := c.api.Claim(ctx, alertID, actor)
	if err != nil {
		return nil, c.mapClaimErr(alertID, audit.ActionClaim, err)
	}

	c.view.Overlay(updated)
	c.record(ctx, audit.ActionClaim, alertID, actor, "", "")
	c.count(audit.ActionClaim, "ok")

	// Timer start is best effort: a billing hiccup must not roll back
	// ownership of a clinical alert.
	if c.timers != nil && updated.PatientRef != "" {
		if terr := c.timers.StartTimer(ctx, updated.PatientRef, actor); terr != nil {
			c.logger.Warn(ctx, "start timer failed after claim",
				"alert_id", alertID,
				"patient_ref", updated.PatientRef,
				"error", terr,
			)
		}
	}

	return updated, nil
}

// Unclaim releases ownership. Only the current owner may release.
func (c *Coordinator) Unclaim(ctx context.Context, alertID string, actor alert.Actor) (a *alert.Alert, err error) {
	ctx, span := tracer.Start(ctx, "claim.Unclaim", trace.WithAttributes(
		attribute.String("pulse.alert.id", alertID),
		attribute.String("pulse.actor.role", string(actor.Role)),
	))
	defer func() { endSpan(span, err) }()

	if cur, ok := c.view.Get(alertID); ok && cur.Claimed() && cur.ClaimedBy != actor.ID {
		c.count(audit.ActionUnclaim, "forbidden")
		return nil, fmt.Errorf("%w: %s is not the owner of alert %s", ErrForbidden, actor.ID, alertID)
	}

	updated, err := c.api.Unclaim(ctx, alertID, actor)
	if err != nil {
		return nil, c.mapClaimErr(alertID, audit.ActionUnclaim, err)
	}

	c.view.Overlay(updated)
	c.record(ctx, audit.ActionUnclaim, alertID, actor, "", "")
	c.count(audit.ActionUnclaim, "ok")
	return updated, nil
}

// ForceClaim overrides an existing claim. The actor must hold a
// supervisor or org-admin role and justify the override; the previous
// owner is notified.
func (c *Coordinator) ForceClaim(ctx context.Context, alertID string, actor alert.Actor, reason string) (a *alert.Alert, err error) {
	ctx, span := tracer.Start(ctx, "claim.ForceClaim", trace.WithAttributes(
		attribute.String("pulse.alert.id", alertID),
		attribute.String("pulse.actor.role", string(actor.Role)),
	))
	defer func() { endSpan(span, err) }()

	if !actor.CanForceClaim() {
		c.count(audit.ActionForceClaim, "forbidden")
		return nil, fmt.Errorf("%w: role %s may not force-claim", ErrForbidden, actor.Role)
	}
	if len(reason) < MinForceReasonLen {
		c.count(audit.ActionForceClaim, "invalid")
		return nil, ErrReasonTooShort
	}

	var previousOwner string
	if cur, ok := c.view.Get(alertID); ok {
		previousOwner = cur.ClaimedBy
	}

	updated, err := c.api.ForceClaim(ctx, alertID, actor, alertstore.ForceClaimPayload{Reason: reason})
	if err != nil {
		return nil, c.mapClaimErr(alertID, audit.ActionForceClaim, err)
	}

	c.view.Overlay(updated)
	c.record(ctx, audit.ActionForceClaim, alertID, actor, previousOwner, reason)
	c.count(audit.ActionForceClaim, "ok")

	if c.notifier != nil && previousOwner != "" && previousOwner != actor.ID {
		if nerr := c.notifier.NotifyClaimOverridden(ctx, alertID, previousOwner, actor, reason); nerr != nil {
			c.logger.Warn(ctx, "previous owner notification failed",
				"alert_id", alertID,
				"previous_owner", previousOwner,
				"error", nerr,
			)
		}
	}

	return updated, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// mapClaimErr converts Alert Store failures into the coordinator's
// typed errors, keeping the current owner visible on conflicts.
func (c *Coordinator) mapClaimErr(alertID string, action audit.Action, err error) error {
	var ae *alertstore.Error
	if errors.As(err, &ae) {
		switch {
		case alertstore.IsConflict(err):
			c.count(action, "conflict")
			return &ConflictError{AlertID: alertID, CurrentOwner: ae.CurrentOwner}
		case alertstore.IsForbidden(err):
			c.count(action, "forbidden")
			return fmt.Errorf("%w: %s", ErrForbidden, ae.Message)
		}
	}
	c.count(action, "error")
	return err
}

func (c *Coordinator) record(ctx context.Context, action audit.Action, alertID string, actor alert.Actor, previousOwner, reason string) {
	if c.audits == nil {
		return
	}
	rec := &audit.Record{
		ID:            ulid.Make().String(),
		AlertID:       alertID,
		Action:        action,
		ActorID:       actor.ID,
		PreviousOwner: previousOwner,
		Reason:        reason,
		At:            time.Now().UTC(),
	}
	if err := c.audits.Append(ctx, rec); err != nil {
		// the transition already happened upstream; losing the local
		// audit row is logged loudly but cannot be rolled back
		c.logger.Error(ctx, err, "audit append failed",
			"alert_id", alertID,
			"action", string(action),
		)
	}
}

func (c *Coordinator) count(action audit.Action, outcome string) {
	if c.metrics != nil {
		c.metrics.Transitions.WithLabelValues(string(action), outcome).Inc()
	}
}
