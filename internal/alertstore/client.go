// Package alertstore is the HTTP client for the authoritative Alert
// Store. The store owns every alert record; pulse only reads snapshots
// and submits mutations, then trusts the event stream to report the
// outcome.
package alertstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/linnemanlabs/pulse/internal/alert"
)

const (
	httpTimeout    = 15 * time.Second
	defaultPerPage = 100
)

// Client talks to the Alert Store REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates an Alert Store client for the given base URL. The token,
// if non-empty, is sent as a bearer credential on every request.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: httpTimeout,
		},
	}
}

// FetchAlerts retrieves one page of the active alert queue.
func (c *Client) FetchAlerts(ctx context.Context, filters alert.Filters, page Page) (*Snapshot, error) {
	if page.Number <= 0 {
		page.Number = 1
	}
	if page.PerPage <= 0 {
		page.PerPage = defaultPerPage
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page.Number))
	q.Set("per_page", strconv.Itoa(page.PerPage))
	filters.EncodeQuery(q)

	var snap Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/alerts?"+q.Encode(), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Claim requests exclusive ownership of an alert for the actor. A 409
// response means someone else holds it; the error carries the owner.
func (c *Client) Claim(ctx context.Context, alertID string, actor alert.Actor) (*alert.Alert, error) {
	return c.mutate(ctx, alertID, "claim", map[string]any{"actor_id": actor.ID})
}

// Unclaim releases the actor's ownership of an alert.
func (c *Client) Unclaim(ctx context.Context, alertID string, actor alert.Actor) (*alert.Alert, error) {
	return c.mutate(ctx, alertID, "unclaim", map[string]any{"actor_id": actor.ID})
}

// ForceClaim overrides an existing claim with a justification.
func (c *Client) ForceClaim(ctx context.Context, alertID string, actor alert.Actor, p ForceClaimPayload) (*alert.Alert, error) {
	return c.mutate(ctx, alertID, "force-claim", map[string]any{
		"actor_id": actor.ID,
		"reason":   p.Reason,
	})
}

// Acknowledge marks an alert as seen by its owner.
func (c *Client) Acknowledge(ctx context.Context, alertID string, actor alert.Actor) (*alert.Alert, error) {
	return c.mutate(ctx, alertID, "acknowledge", map[string]any{"actor_id": actor.ID})
}

// Resolve closes out an alert with notes and an optional CPT code.
func (c *Client) Resolve(ctx context.Context, alertID string, actor alert.Actor, p ResolvePayload) (*alert.Alert, error) {
	return c.mutate(ctx, alertID, "resolve", map[string]any{
		"actor_id":       actor.ID,
		"notes":          p.Notes,
		"cpt_code":       p.CPTCode,
		"outcome":        p.Outcome,
		"follow_up_task": p.FollowUpTask,
	})
}

// Snooze removes an alert from the active queue until a future time.
func (c *Client) Snooze(ctx context.Context, alertID string, actor alert.Actor, p SnoozePayload) (*alert.Alert, error) {
	return c.mutate(ctx, alertID, "snooze", map[string]any{
		"actor_id": actor.ID,
		"until":    p.Until,
		"reason":   p.Reason,
	})
}

// Suppress blocks recurrence of alerts in a rule+patient scope.
func (c *Client) Suppress(ctx context.Context, alertID string, actor alert.Actor, p SuppressPayload) (*alert.Alert, error) {
	return c.mutate(ctx, alertID, "suppress", map[string]any{
		"actor_id":    actor.ID,
		"rule_ref":    p.Scope.RuleRef,
		"patient_ref": p.Scope.PatientRef,
		"reason":      p.Reason,
	})
}

// BulkAction applies one action to many ids in a single request. The
// store fans out server-side and reports per-item outcomes; the result
// order is unspecified.
func (c *Client) BulkAction(ctx context.Context, action BulkAction, ids []string, payload any, actor alert.Actor) (*BulkResponse, error) {
	body := map[string]any{
		"action":    action,
		"alert_ids": ids,
		"payload":   payload,
		"actor_id":  actor.ID,
	}
	var resp BulkResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/alerts/bulk", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartTimer begins a care-time timer for a patient. Billing owns the
// timer semantics; pulse only triggers it.
func (c *Client) StartTimer(ctx context.Context, patientRef string, actor alert.Actor) error {
	body := map[string]any{"patient_ref": patientRef, "actor_id": actor.ID}
	return c.do(ctx, http.MethodPost, "/api/v1/timers/start", body, nil)
}

// StopTimer ends the care-time timer for a patient.
func (c *Client) StopTimer(ctx context.Context, patientRef string, actor alert.Actor) error {
	body := map[string]any{"patient_ref": patientRef, "actor_id": actor.ID}
	return c.do(ctx, http.MethodPost, "/api/v1/timers/stop", body, nil)
}

// GetAvailableCPTCodes asks the billing collaborator which codes are
// still eligible this month. The monthly-cap algorithm lives entirely
// behind this contract.
func (c *Client) GetAvailableCPTCodes(ctx context.Context, enrollmentID, billingMonth string, minutes int) ([]CPTCode, error) {
	q := url.Values{}
	q.Set("enrollment_id", enrollmentID)
	q.Set("billing_month", billingMonth)
	q.Set("minutes", strconv.Itoa(minutes))

	var out struct {
		Codes []CPTCode `json:"codes"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/billing/cpt-codes?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Codes, nil
}

// HasLinkedUser reports whether a clinician record is linked to a user
// identity. Assignment to an unlinked clinician is rejected upstream,
// so callers use this to fail fast before dispatch.
func (c *Client) HasLinkedUser(ctx context.Context, clinicianID string) (bool, error) {
	var out struct {
		LinkedUserID string `json:"linked_user_id"`
	}
	path := "/api/v1/clinicians/" + url.PathEscape(clinicianID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.LinkedUserID != "", nil
}

// mutate posts one alert action and decodes the returned projection.
func (c *Client) mutate(ctx context.Context, alertID, action string, body map[string]any) (*alert.Alert, error) {
	var a alert.Alert
	path := fmt.Sprintf("/api/v1/alerts/%s/%s", url.PathEscape(alertID), action)
	if err := c.do(ctx, http.MethodPost, path, body, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: base URL is set at construction from config, not request input
	if err != nil {
		return fmt.Errorf("alertstore %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError maps a non-2xx response into a typed *Error. Bodies that
// are not the documented error shape still produce a usable error.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error Error `json:"error"`
	}
	ae := &Error{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
		*ae = envelope.Error
		ae.StatusCode = resp.StatusCode
		return ae
	}

	ae.Code = http.StatusText(resp.StatusCode)
	ae.Message = string(raw)
	return ae
}
