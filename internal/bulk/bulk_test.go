package bulk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linnemanlabs/pulse/internal/alert"
	"github.com/linnemanlabs/pulse/internal/alertstore"
	"github.com/linnemanlabs/pulse/internal/feed"
)

var testActor = alert.Actor{ID: "clin-1", Name: "Dana", Role: alert.RoleClinician}

type mockAPI struct {
	bulkCalls  int
	lastAction alertstore.BulkAction
	lastIDs    []string
	resp       *alertstore.BulkResponse
	err        error

	snoozeResp   *alert.Alert
	suppressResp *alert.Alert
}

func (m *mockAPI) BulkAction(_ context.Context, action alertstore.BulkAction, ids []string, _ any, _ alert.Actor) (*alertstore.BulkResponse, error) {
	m.bulkCalls++
	m.lastAction = action
	m.lastIDs = ids
	return m.resp, m.err
}

func (m *mockAPI) Snooze(_ context.Context, _ string, _ alert.Actor, _ alertstore.SnoozePayload) (*alert.Alert, error) {
	return m.snoozeResp, m.err
}

func (m *mockAPI) Suppress(_ context.Context, _ string, _ alert.Actor, _ alertstore.SuppressPayload) (*alert.Alert, error) {
	return m.suppressResp, m.err
}

type mockIdentities struct {
	linked map[string]bool
	err    error
}

func (m *mockIdentities) HasLinkedUser(_ context.Context, clinicianID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.linked[clinicianID], nil
}

func TestApplyPartialFailure(t *testing.T) {
	t.Parallel()

	ids := []string{"a-1", "a-2", "a-3", "a-4", "a-5"}
	api := &mockAPI{resp: &alertstore.BulkResponse{Results: []alertstore.BulkItemResult{
		{ID: "a-1", OK: true},
		{ID: "a-2", OK: true},
		{ID: "a-3", OK: false, Error: "already resolved"},
		{ID: "a-4", OK: true},
		{ID: "a-5", OK: true},
	}}}

	e := New(api, feed.New(nil), nil, nil, nil)

	res, err := e.Apply(context.Background(), alertstore.BulkResolve, ids,
		alertstore.ResolvePayload{Notes: "weekly review", Outcome: "stable"}, testActor)
	if err != nil {
		t.Fatalf("Apply() error: %v, a partial failure is not a batch error", err)
	}

	if len(res.Succeeded) != 4 {
		t.Errorf("succeeded = %v, want 4 items", res.Succeeded)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("failed = %v, want 1 item", res.Failed)
	}
	if res.Failed[0].ID != "a-3" || res.Failed[0].Reason != "already resolved" {
		t.Errorf("failure = %+v", res.Failed[0])
	}
	if res.OpID == "" {
		t.Error("OpID is empty")
	}
}

func TestApplyEmptyBatch(t *testing.T) {
	t.Parallel()

	e := New(&mockAPI{}, feed.New(nil), nil, nil, nil)

	if _, err := e.Apply(context.Background(), alertstore.BulkAcknowledge, nil, nil, testActor); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("error = %v, want ErrEmptyBatch", err)
	}
}

func TestApplyUnknownAction(t *testing.T) {
	t.Parallel()

	e := New(&mockAPI{}, feed.New(nil), nil, nil, nil)

	_, err := e.Apply(context.Background(), alertstore.BulkAction("escalate"), []string{"a-1"}, nil, testActor)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("error = %v, want ErrUnknownAction", err)
	}
}

func TestApplySnoozeRejectsPastUntil(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	e := New(api, feed.New(nil), nil, nil, nil)

	_, err := e.Apply(context.Background(), alertstore.BulkSnooze, []string{"a-1"},
		alertstore.SnoozePayload{Until: time.Now().Add(-time.Hour), Reason: "stale"}, testActor)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("error = %v, want ErrInvalid", err)
	}
	if api.bulkCalls != 0 {
		t.Error("invalid snooze batch should not be dispatched")
	}
}

func TestApplyAssignUnlinkedClinician(t *testing.T) {
	t.Parallel()

	ids := []string{"a-1", "a-2"}
	api := &mockAPI{}
	idents := &mockIdentities{linked: map[string]bool{}}
	e := New(api, feed.New(nil), idents, nil, nil)

	res, err := e.Apply(context.Background(), alertstore.BulkAssign, ids,
		alertstore.AssignPayload{ClinicianID: "clin-ghost"}, testActor)
	if err != nil {
		t.Fatalf("Apply() error: %v, unlinked assignee fails per-item", err)
	}
	if len(res.Succeeded) != 0 || len(res.Failed) != 2 {
		t.Fatalf("result = %+v, want every item failed", res)
	}
	for _, f := range res.Failed {
		if f.Reason == "" {
			t.Errorf("failure %s has no reason", f.ID)
		}
	}
	if api.bulkCalls != 0 {
		t.Error("nothing should be dispatched for an unlinked assignee")
	}
}

func TestApplyAssignLinkedClinician(t *testing.T) {
	t.Parallel()

	api := &mockAPI{resp: &alertstore.BulkResponse{Results: []alertstore.BulkItemResult{{ID: "a-1", OK: true}}}}
	idents := &mockIdentities{linked: map[string]bool{"clin-2": true}}
	e := New(api, feed.New(nil), idents, nil, nil)

	res, err := e.Apply(context.Background(), alertstore.BulkAssign, []string{"a-1"},
		alertstore.AssignPayload{ClinicianID: "clin-2"}, testActor)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if api.bulkCalls != 1 {
		t.Errorf("bulk calls = %d, want 1", api.bulkCalls)
	}
	if len(res.Succeeded) != 1 {
		t.Errorf("succeeded = %v", res.Succeeded)
	}
}

func TestApplyAssignLookupFailureDefersToStore(t *testing.T) {
	t.Parallel()

	api := &mockAPI{resp: &alertstore.BulkResponse{Results: []alertstore.BulkItemResult{
		{ID: "a-1", OK: false, Error: "clinician not linked"},
	}}}
	idents := &mockIdentities{err: errors.New("identity service down")}
	e := New(api, feed.New(nil), idents, nil, nil)

	res, err := e.Apply(context.Background(), alertstore.BulkAssign, []string{"a-1"},
		alertstore.AssignPayload{ClinicianID: "clin-2"}, testActor)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if api.bulkCalls != 1 {
		t.Error("lookup failure should fall through to the store's own validation")
	}
	if len(res.Failed) != 1 || res.Failed[0].Reason != "clinician not linked" {
		t.Errorf("failed = %+v", res.Failed)
	}
}

func TestApplyFillsMissingFailureReason(t *testing.T) {
	t.Parallel()

	api := &mockAPI{resp: &alertstore.BulkResponse{Results: []alertstore.BulkItemResult{
		{ID: "a-1", OK: false},
	}}}
	e := New(api, feed.New(nil), nil, nil, nil)

	res, err := e.Apply(context.Background(), alertstore.BulkAcknowledge, []string{"a-1"}, nil, testActor)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if res.Failed[0].Reason != "rejected by alert store" {
		t.Errorf("reason = %q", res.Failed[0].Reason)
	}
}

func TestSnoozeOverlaysView(t *testing.T) {
	t.Parallel()

	until := time.Now().Add(time.Hour).UTC()
	snoozed := alert.Alert{ID: "a-1", Status: alert.StatusSnoozed, SnoozeUntil: &until}
	api := &mockAPI{snoozeResp: &snoozed}

	view := feed.New(nil)
	view.Seed([]alert.Alert{{ID: "a-1", Status: alert.StatusPending}})

	e := New(api, view, nil, nil, nil)

	got, err := e.Snooze(context.Background(), "a-1", testActor, alertstore.SnoozePayload{Until: until, Reason: "family meeting"})
	if err != nil {
		t.Fatalf("Snooze() error: %v", err)
	}
	if got.Status != alert.StatusSnoozed {
		t.Errorf("status = %q", got.Status)
	}

	cur, _ := view.Get("a-1")
	if cur.Status != alert.StatusSnoozed {
		t.Errorf("view status = %q, want overlay applied", cur.Status)
	}
}

func TestSnoozeRejectsPastUntil(t *testing.T) {
	t.Parallel()

	e := New(&mockAPI{}, feed.New(nil), nil, nil, nil)

	_, err := e.Snooze(context.Background(), "a-1", testActor,
		alertstore.SnoozePayload{Until: time.Now().Add(-time.Minute)})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("error = %v, want ErrInvalid", err)
	}
}

func TestSuppressRequiresReason(t *testing.T) {
	t.Parallel()

	e := New(&mockAPI{}, feed.New(nil), nil, nil, nil)

	_, err := e.Suppress(context.Background(), "a-1", testActor, alertstore.SuppressPayload{
		Scope: alertstore.SuppressScope{RuleRef: "rule-1", PatientRef: "pat-1"},
	})
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("error = %v, want ErrInvalid", err)
	}
}

func TestSuppressOverlaysView(t *testing.T) {
	t.Parallel()

	suppressed := alert.Alert{ID: "a-1", Status: alert.StatusSuppressed}
	api := &mockAPI{suppressResp: &suppressed}

	view := feed.New(nil)
	view.Seed([]alert.Alert{{ID: "a-1", Status: alert.StatusPending}})

	e := New(api, view, nil, nil, nil)

	_, err := e.Suppress(context.Background(), "a-1", testActor, alertstore.SuppressPayload{
		Scope:  alertstore.SuppressScope{RuleRef: "rule-1", PatientRef: "pat-1"},
		Reason: "known false positive for this patient",
	})
	if err != nil {
		t.Fatalf("Suppress() error: %v", err)
	}

	cur, _ := view.Get("a-1")
	if cur.Status != alert.StatusSuppressed {
		t.Errorf("view status = %q, want SUPPRESSED", cur.Status)
	}
}
