// Package feedapi exposes the merged triage view and its commands over
// HTTP: the annotated alert list, claim/unclaim/force-claim, single
// and bulk alert actions, and the stream connection indicator.
package feedapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/pulse/internal/alert"
	"github.com/linnemanlabs/pulse/internal/alertstore"
	"github.com/linnemanlabs/pulse/internal/bulk"
	"github.com/linnemanlabs/pulse/internal/stream"
)

// SessionView is the read side of the clinician session.
type SessionView interface {
	Alerts(now time.Time) []alert.Annotated
	Summary() alertstore.Summary
	ConnectionStatus() stream.Status
	Reconnect(ctx context.Context)
	Overlay(a *alert.Alert)
}

// ClaimService defines the ownership operations feedapi dispatches.
type ClaimService interface {
	Claim(ctx context.Context, alertID string, actor alert.Actor) (*alert.Alert, error)
	Unclaim(ctx context.Context, alertID string, actor alert.Actor) (*alert.Alert, error)
	ForceClaim(ctx context.Context, alertID string, actor alert.Actor, reason string) (*alert.Alert, error)
}

// BulkService defines the batch and queue-removal operations.
type BulkService interface {
	Apply(ctx context.Context, action alertstore.BulkAction, ids []string, payload any, actor alert.Actor) (*bulk.Result, error)
	Snooze(ctx context.Context, alertID string, actor alert.Actor, p alertstore.SnoozePayload) (*alert.Alert, error)
	Suppress(ctx context.Context, alertID string, actor alert.Actor, p alertstore.SuppressPayload) (*alert.Alert, error)
}

// StoreActions are the single-alert operations passed straight through
// to the Alert Store, plus the billing collaborator contract.
type StoreActions interface {
	Acknowledge(ctx context.Context, alertID string, actor alert.Actor) (*alert.Alert, error)
	Resolve(ctx context.Context, alertID string, actor alert.Actor, p alertstore.ResolvePayload) (*alert.Alert, error)
	GetAvailableCPTCodes(ctx context.Context, enrollmentID, billingMonth string, minutes int) ([]alertstore.CPTCode, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	session SessionView
	claims  ClaimService
	bulk    BulkService
	store   StoreActions
}

// New creates a new API handler.
func New(logger log.Logger, session SessionView, claims ClaimService, bulkSvc BulkService, store StoreActions) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if session == nil {
		panic(xerrors.New("session view is required"))
	}
	if claims == nil {
		panic(xerrors.New("claim service is required"))
	}
	if bulkSvc == nil {
		panic(xerrors.New("bulk service is required"))
	}
	if store == nil {
		panic(xerrors.New("store actions are required"))
	}
	return &API{
		logger:  logger,
		session: session,
		claims:  claims,
		bulk:    bulkSvc,
		store:   store,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/alerts", a.handleListAlerts)
		r.Post("/alerts/bulk", a.handleBulk)

		r.Route("/alerts/{id}", func(r chi.Router) {
			r.Post("/claim", a.handleClaim)
			r.Post("/unclaim", a.handleUnclaim)
			r.Post("/force-claim", a.handleForceClaim)
			r.Post("/acknowledge", a.handleAcknowledge)
			r.Post("/resolve", a.handleResolve)
			r.Post("/snooze", a.handleSnooze)
			r.Post("/suppress", a.handleSuppress)
		})

		r.Get("/connection", a.handleConnection)
		r.Post("/connection/reconnect", a.handleReconnect)

		r.Get("/billing/cpt-codes", a.handleCPTCodes)
	})
}

// actorFromRequest reads the acting clinician's identity as asserted
// by the upstream auth layer.
func actorFromRequest(r *http.Request) (alert.Actor, bool) {
	actor := alert.Actor{
		ID:   r.Header.Get("X-Actor-Id"),
		Name: r.Header.Get("X-Actor-Name"),
		Role: alert.Role(r.Header.Get("X-Actor-Role")),
	}
	if actor.Role == "" {
		actor.Role = alert.RoleClinician
	}
	return actor, actor.ID != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
