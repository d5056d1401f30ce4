// Package bulk applies one action to many alerts as an independent,
// partially-failable batch. A batch is explicitly not atomic: one
// already-resolved alert must not block the other N-1 valid
// operations, and partial success is never rolled back.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/pulse/internal/alert"
	"github.com/linnemanlabs/pulse/internal/alertstore"
	"github.com/linnemanlabs/pulse/internal/feed"
)

// ErrEmptyBatch rejects a bulk request with no alert ids.
var ErrEmptyBatch = errors.New("bulk: no alert ids")

// ErrUnknownAction rejects an action the executor does not fan out.
var ErrUnknownAction = errors.New("bulk: unknown action")

// ErrInvalid wraps request validation failures caught before dispatch.
var ErrInvalid = errors.New("bulk: invalid request")

// API is the subset of the Alert Store the executor dispatches to.
type API interface {
	BulkAction(ctx context.Context, action alertstore.BulkAction, ids []string, payload any, actor alert.Actor) (*alertstore.BulkResponse, error)
	Snooze(ctx context.Context, alertID string, actor alert.Actor, p alertstore.SnoozePayload) (*alert.Alert, error)
	Suppress(ctx context.Context, alertID string, actor alert.Actor, p alertstore.SuppressPayload) (*alert.Alert, error)
}

// IdentityResolver answers whether a clinician has a linked user
// identity. Assign targets without one fail per-item before dispatch.
type IdentityResolver interface {
	HasLinkedUser(ctx context.Context, clinicianID string) (bool, error)
}

// Failure is one failed item with the reason it failed. Reasons are
// never silently dropped.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Result splits a batch into per-item outcomes. The Alert Store fans
// out server-side, so item order in either slice is unspecified.
type Result struct {
	OpID      string    `json:"op_id"`
	Succeeded []string  `json:"succeeded"`
	Failed    []Failure `json:"failed"`
}

// Executor validates and dispatches batch operations.
type Executor struct {
	api        API
	view       *feed.Synchronizer
	identities IdentityResolver
	logger     log.Logger
	metrics    *Metrics
}

// New creates an executor. identities and metrics may be nil.
func New(api API, view *feed.Synchronizer, identities IdentityResolver, logger log.Logger, metrics *Metrics) *Executor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Executor{
		api:        api,
		view:       view,
		identities: identities,
		logger:     logger,
		metrics:    metrics,
	}
}

// Apply runs one action over the ids. The same payload is shared by
// every item by design. Validation failures that can be caught locally
// (bad snooze time, unlinked assignee) are rejected before dispatch;
// everything else comes back per-item from the store.
func (e *Executor) Apply(ctx context.Context, action alertstore.BulkAction, ids []string, payload any, actor alert.Actor) (*Result, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}

	res := &Result{OpID: ulid.Make().String()}

	switch action {
	case alertstore.BulkAcknowledge, alertstore.BulkResolve:
		// no local pre-validation; the store knows current statuses
	case alertstore.BulkSnooze:
		p, ok := payload.(alertstore.SnoozePayload)
		if !ok {
			return nil, fmt.Errorf("%w: snooze requires a snooze payload", ErrInvalid)
		}
		if !p.Until.After(time.Now()) {
			return nil, fmt.Errorf("%w: snooze until must be in the future", ErrInvalid)
		}
	case alertstore.BulkAssign:
		p, ok := payload.(alertstore.AssignPayload)
		if !ok {
			return nil, fmt.Errorf("%w: assign requires an assign payload", ErrInvalid)
		}
		if failed, checked := e.checkAssignee(ctx, p.ClinicianID, ids); checked && failed != nil {
			// target has no linked identity: every item fails, nothing
			// is dispatched
			res.Failed = failed
			e.observe(action, res)
			return res, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	resp, err := e.api.BulkAction(ctx, action, ids, payload, actor)
	if err != nil {
		return nil, fmt.Errorf("bulk %s: %w", action, err)
	}

	for _, item := range resp.Results {
		if item.OK {
			res.Succeeded = append(res.Succeeded, item.ID)
			continue
		}
		reason := item.Error
		if reason == "" {
			reason = "rejected by alert store"
		}
		res.Failed = append(res.Failed, Failure{ID: item.ID, Reason: reason})
	}

	e.observe(action, res)
	e.logger.Info(ctx, "bulk action applied",
		"op_id", res.OpID,
		"action", string(action),
		"requested", len(ids),
		"succeeded", len(res.Succeeded),
		"failed", len(res.Failed),
	)
	return res, nil
}

// Snooze moves one PENDING alert out of the queue until a future time.
// The lazy revert back to PENDING happens on the next materialized read
// once now >= until.
func (e *Executor) Snooze(ctx context.Context, alertID string, actor alert.Actor, p alertstore.SnoozePayload) (*alert.Alert, error) {
	if !p.Until.After(time.Now()) {
		return nil, fmt.Errorf("%w: snooze until must be in the future", ErrInvalid)
	}
	updated, err := e.api.Snooze(ctx, alertID, actor, p)
	if err != nil {
		return nil, err
	}
	e.view.Overlay(updated)
	return updated, nil
}

// Suppress blocks recurrence of alerts matching a rule+patient scope
// until an expiry condition the store owns. Rule re-evaluation is the
// store's concern.
func (e *Executor) Suppress(ctx context.Context, alertID string, actor alert.Actor, p alertstore.SuppressPayload) (*alert.Alert, error) {
	if p.Reason == "" {
		return nil, fmt.Errorf("%w: suppress requires a reason", ErrInvalid)
	}
	updated, err := e.api.Suppress(ctx, alertID, actor, p)
	if err != nil {
		return nil, err
	}
	e.view.Overlay(updated)
	return updated, nil
}

// checkAssignee pre-validates the assign target. checked is false when
// no resolver is wired or the lookup itself failed, in which case the
// store's own per-item validation is the fallback.
func (e *Executor) checkAssignee(ctx context.Context, clinicianID string, ids []string) (failed []Failure, checked bool) {
	if e.identities == nil {
		return nil, false
	}
	linked, err := e.identities.HasLinkedUser(ctx, clinicianID)
	if err != nil {
		e.logger.Warn(ctx, "assignee identity lookup failed, deferring to store",
			"clinician_id", clinicianID,
			"error", err,
		)
		return nil, false
	}
	if linked {
		return nil, true
	}
	failed = make([]Failure, 0, len(ids))
	for _, id := range ids {
		failed = append(failed, Failure{
			ID:     id,
			Reason: fmt.Sprintf("clinician %s has no linked user identity", clinicianID),
		})
	}
	return failed, true
}

func (e *Executor) observe(action alertstore.BulkAction, res *Result) {
	if e.metrics == nil {
		return
	}
	e.metrics.Items.WithLabelValues(string(action), "ok").Add(float64(len(res.Succeeded)))
	e.metrics.Items.WithLabelValues(string(action), "failed").Add(float64(len(res.Failed)))
	e.metrics.Batches.WithLabelValues(string(action)).Inc()
}
