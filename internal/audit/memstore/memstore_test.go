package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/linnemanlabs/pulse/internal/audit"
)

func TestAppendAndList(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	recs := []audit.Record{
		{ID: "r-1", AlertID: "a-1", Action: audit.ActionClaim, ActorID: "clin-1", At: now},
		{ID: "r-2", AlertID: "a-1", Action: audit.ActionUnclaim, ActorID: "clin-1", At: now.Add(time.Minute)},
		{ID: "r-3", AlertID: "a-2", Action: audit.ActionForceClaim, ActorID: "sup-1", PreviousOwner: "clin-1", Reason: "coverage handoff", At: now},
	}
	for i := range recs {
		if err := s.Append(ctx, &recs[i]); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	got, err := s.ListByAlert(ctx, "a-1")
	if err != nil {
		t.Fatalf("ListByAlert() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records for a-1 = %d, want 2", len(got))
	}
	if got[0].ID != "r-1" || got[1].ID != "r-2" {
		t.Errorf("order = %s, %s, want append order", got[0].ID, got[1].ID)
	}

	other, err := s.ListByAlert(ctx, "a-2")
	if err != nil {
		t.Fatalf("ListByAlert() error: %v", err)
	}
	if len(other) != 1 || other[0].PreviousOwner != "clin-1" {
		t.Errorf("record for a-2 = %+v", other)
	}
}

func TestListUnknownAlert(t *testing.T) {
	t.Parallel()

	got, err := New().ListByAlert(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ListByAlert() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("records = %d, want 0", len(got))
	}
}

func TestListReturnsCopies(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	_ = s.Append(ctx, &audit.Record{ID: "r-1", AlertID: "a-1", Action: audit.ActionClaim})

	got, _ := s.ListByAlert(ctx, "a-1")
	got[0].ActorID = "tampered"

	again, _ := s.ListByAlert(ctx, "a-1")
	if again[0].ActorID == "tampered" {
		t.Error("mutating a returned record leaked into the store")
	}
}
