// Package slack delivers clinician-facing notifications to Slack via
// incoming webhooks: claim overrides for the displaced owner, and
// supervisor escalations for alerts breached past their grace period.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/pulse/internal/alert"
)

const (
	maxTextLen  = 500
	httpTimeout = 10 * time.Second
)

// Notifier sends pulse notifications to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, sends are no-ops.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// NotifyClaimOverridden tells the previous owner their claim on an
// alert was taken over by a privileged actor, and why.
func (n *Notifier) NotifyClaimOverridden(ctx context.Context, alertID, previousOwner string, by alert.Actor, reason string) error {
	msg := map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": "⚠️ Alert claim overridden",
				},
			},
			{"type": "divider"},
			{
				"type": "section",
				"fields": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Alert:* %s", alertID)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Previous owner:* %s", previousOwner)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Taken over by:* %s (%s)", by.Name, by.Role)},
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Reason*\n\n%s", truncate(reason, maxTextLen)),
				},
			},
			contextBlock(),
		},
	}
	return n.post(ctx, msg)
}

// NotifyEscalated flags a breached alert that exceeded its grace period
// and now needs supervisor attention.
func (n *Notifier) NotifyEscalated(ctx context.Context, a alert.Annotated) error {
	msg := map[string]any{
		"blocks": []map[string]any{
			{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("\U0001f534 Escalated: %s alert %s", a.Severity, a.ID),
				},
			},
			{"type": "divider"},
			{
				"type": "section",
				"fields": []map[string]any{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Patient:* %s", a.PatientRef)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Rule:* %s", a.RuleRef)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Owner:* %s", ownerOrUnclaimed(a.ClaimedBy))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Overdue:* %d min", -a.TimeRemainingMinutes)},
				},
			},
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": truncate(a.Message, maxTextLen),
				},
			},
			contextBlock(),
		},
	}
	return n.post(ctx, msg)
}

// post delivers one message to the configured webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) post(ctx context.Context, msg map[string]any) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func contextBlock() map[string]any {
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("pulse • %s", time.Now().UTC().Format("2006-01-02 15:04 UTC")),
			},
		},
	}
}

func ownerOrUnclaimed(owner string) string {
	if owner == "" {
		return "_unclaimed_"
	}
	return owner
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
