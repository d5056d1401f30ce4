package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/pulse/internal/audit"
	"github.com/linnemanlabs/pulse/internal/audit/pgstore"
	"github.com/linnemanlabs/pulse/internal/postgres"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("PULSE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PULSE_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func TestAppendAndListByAlert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	alertID := "it-" + ulid.Make().String()
	now := time.Now().Truncate(time.Microsecond).UTC()

	recs := []audit.Record{
		{
			ID:      ulid.Make().String(),
			AlertID: alertID,
			Action:  audit.ActionClaim,
			ActorID: "clin-1",
			At:      now,
		},
		{
			ID:            ulid.Make().String(),
			AlertID:       alertID,
			Action:        audit.ActionForceClaim,
			ActorID:       "sup-1",
			PreviousOwner: "clin-1",
			Reason:        "owner unreachable during handoff",
			At:            now.Add(time.Minute),
		},
	}
	for i := range recs {
		if err := s.Append(ctx, &recs[i]); err != nil {
			t.Fatalf("Append[%d]: %v", i, err)
		}
	}

	got, err := s.ListByAlert(ctx, alertID)
	if err != nil {
		t.Fatalf("ListByAlert: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListByAlert returned %d records, want 2", len(got))
	}

	// oldest first
	if got[0].Action != audit.ActionClaim || got[1].Action != audit.ActionForceClaim {
		t.Errorf("order = [%s, %s], want [claim, force_claim]", got[0].Action, got[1].Action)
	}
	if got[1].PreviousOwner != "clin-1" || got[1].Reason != recs[1].Reason {
		t.Errorf("force_claim record = %+v", got[1])
	}
	if !got[0].At.Equal(now) {
		t.Errorf("At = %v, want %v", got[0].At, now)
	}
}

func TestListByAlert_Empty(t *testing.T) {
	s := openStore(t)

	got, err := s.ListByAlert(context.Background(), "it-no-such-alert")
	if err != nil {
		t.Fatalf("ListByAlert: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}
