package feedapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/pulse/internal/alertstore"
	"github.com/linnemanlabs/pulse/internal/bulk"
	"github.com/linnemanlabs/pulse/internal/claim"
)

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	alerts := a.session.Alerts(now)

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("pulse.alerts.count", len(alerts)))

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts":     alerts,
		"summary":    a.session.Summary(),
		"connection": a.session.ConnectionStatus(),
		"as_of":      now.UTC(),
	})
}

func (a *API) handleConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.session.ConnectionStatus())
}

func (a *API) handleReconnect(w http.ResponseWriter, r *http.Request) {
	a.session.Reconnect(r.Context())
	writeJSON(w, http.StatusAccepted, a.session.ConnectionStatus())
}

func (a *API) handleClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor, ok := actorFromRequest(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "missing actor identity")
		return
	}

	updated, err := a.claims.Claim(r.Context(), id, actor)
	if err != nil {
		a.writeClaimErr(w, r, "claim", id, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleUnclaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor, ok := actorFromRequest(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "missing actor identity")
		return
	}

	updated, err := a.claims.Unclaim(r.Context(), id, actor)
	if err != nil {
		a.writeClaimErr(w, r, "unclaim", id, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleForceClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor, ok := actorFromRequest(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "missing actor identity")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid payload")
		return
	}

	updated, err := a.claims.ForceClaim(r.Context(), id, actor, body.Reason)
	if err != nil {
		a.writeClaimErr(w, r, "force-claim", id, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor, ok := actorFromRequest(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "missing actor identity")
		return
	}

	updated, err := a.store.Acknowledge(r.Context(), id, actor)
	if err != nil {
		a.writeStoreErr(w, r, "acknowledge", id, err)
		return
	}
	a.session.Overlay(updated)
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor, ok := actorFromRequest(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "missing actor identity")
		return
	}

	var p alertstore.ResolvePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if p.Outcome == "" {
		writeErr(w, http.StatusUnprocessableEntity, "resolve requires an outcome")
		return
	}

	updated, err := a.store.Resolve(r.Context(), id, actor, p)
	if err != nil {
		a.writeStoreErr(w, r, "resolve", id, err)
		return
	}
	a.session.Overlay(updated)
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleSnooze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor, ok := actorFromRequest(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "missing actor identity")
		return
	}

	var p alertstore.SnoozePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid payload")
		return
	}

	updated, err := a.bulk.Snooze(r.Context(), id, actor, p)
	if err != nil {
		a.writeStoreErr(w, r, "snooze", id, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleSuppress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor, ok := actorFromRequest(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "missing actor identity")
		return
	}

	var p alertstore.SuppressPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid payload")
		return
	}

	updated, err := a.bulk.Suppress(r.Context(), id, actor, p)
	if err != nil {
		a.writeStoreErr(w, r, "suppress", id, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleBulk(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "missing actor identity")
		return
	}

	var body struct {
		Action   alertstore.BulkAction `json:"action"`
		AlertIDs []string              `json:"alert_ids"`
		Payload  json.RawMessage       `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid payload")
		return
	}

	payload, err := decodeBulkPayload(body.Action, body.Payload)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := a.bulk.Apply(r.Context(), body.Action, body.AlertIDs, payload, actor)
	if err != nil {
		if errors.Is(err, bulk.ErrInvalid) || errors.Is(err, bulk.ErrEmptyBatch) || errors.Is(err, bulk.ErrUnknownAction) {
			writeErr(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		a.logger.Error(r.Context(), err, "bulk action failed", "action", string(body.Action))
		writeErr(w, http.StatusBadGateway, err.Error())
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("pulse.bulk.action", string(body.Action)),
		attribute.Int("pulse.bulk.succeeded", len(res.Succeeded)),
		attribute.Int("pulse.bulk.failed", len(res.Failed)),
	)

	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleCPTCodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	enrollmentID := q.Get("enrollment_id")
	billingMonth := q.Get("billing_month")
	minutes, _ := strconv.Atoi(q.Get("minutes"))
	if enrollmentID == "" || billingMonth == "" {
		writeErr(w, http.StatusBadRequest, "enrollment_id and billing_month are required")
		return
	}

	codes, err := a.store.GetAvailableCPTCodes(r.Context(), enrollmentID, billingMonth, minutes)
	if err != nil {
		a.logger.Error(r.Context(), err, "cpt code lookup failed", "enrollment_id", enrollmentID)
		writeErr(w, http.StatusBadGateway, "billing lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"codes": codes})
}

// decodeBulkPayload maps the action to its typed payload shape.
func decodeBulkPayload(action alertstore.BulkAction, raw json.RawMessage) (any, error) {
	switch action {
	case alertstore.BulkAcknowledge:
		return nil, nil
	case alertstore.BulkResolve:
		var p alertstore.ResolvePayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if p.Outcome == "" {
			return nil, errors.New("resolve requires an outcome")
		}
		return p, nil
	case alertstore.BulkSnooze:
		var p alertstore.SnoozePayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case alertstore.BulkAssign:
		var p alertstore.AssignPayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if p.ClinicianID == "" {
			return nil, errors.New("assign requires a clinician_id")
		}
		return p, nil
	default:
		return nil, errors.New("unknown bulk action")
	}
}

func unmarshalPayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.New("invalid payload")
	}
	return nil
}

// writeClaimErr maps coordinator failures onto HTTP. Conflicts carry
// the current owner so the UI can offer an explicit force-claim.
func (a *API) writeClaimErr(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	var conflict *claim.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":         "already claimed",
			"current_owner": conflict.CurrentOwner,
		})
	case errors.Is(err, claim.ErrForbidden):
		writeErr(w, http.StatusForbidden, err.Error())
	case errors.Is(err, claim.ErrReasonTooShort):
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
	case alertstore.IsNotFound(err):
		writeErr(w, http.StatusNotFound, "alert not found")
	default:
		a.logger.Error(r.Context(), err, op+" failed", "alert_id", id)
		writeErr(w, http.StatusBadGateway, op+" failed")
	}
}

// writeStoreErr maps Alert Store failures for pass-through operations.
func (a *API) writeStoreErr(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	switch {
	case errors.Is(err, bulk.ErrInvalid):
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
	case alertstore.IsNotFound(err):
		writeErr(w, http.StatusNotFound, "alert not found")
	case alertstore.IsValidation(err):
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
	case alertstore.IsForbidden(err):
		writeErr(w, http.StatusForbidden, err.Error())
	case alertstore.IsConflict(err):
		writeErr(w, http.StatusConflict, err.Error())
	default:
		a.logger.Error(r.Context(), err, op+" failed", "alert_id", id)
		writeErr(w, http.StatusBadGateway, op+" failed")
	}
}
