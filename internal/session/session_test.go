package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/pulse/internal/alert"
	"github.com/linnemanlabs/pulse/internal/alertstore"
	"github.com/linnemanlabs/pulse/internal/feed"
	"github.com/linnemanlabs/pulse/internal/stream"
)

var t0 = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

type mockFetcher struct {
	mu    sync.Mutex
	pages map[int]*alertstore.Snapshot
	err   error
	calls int
}

func (m *mockFetcher) FetchAlerts(_ context.Context, _ alert.Filters, page alertstore.Page) (*alertstore.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	snap, ok := m.pages[page.Number]
	if !ok {
		return &alertstore.Snapshot{}, nil
	}
	return snap, nil
}

type mockEscalations struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (m *mockEscalations) NotifyEscalated(_ context.Context, a alert.Annotated) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.ids = append(m.ids, a.ID)
	return m.err
}

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprint(w, f)
			fl.Flush()
		}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func pending(id string, rank int) alert.Alert {
	return alert.Alert{
		ID:           id,
		Severity:     alert.SeverityHigh,
		Status:       alert.StatusPending,
		PriorityRank: rank,
		TriggeredAt:  t0,
		SLADeadline:  t0.Add(2 * time.Hour),
	}
}

func TestSessionSeedsAndStreams(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{pages: map[int]*alertstore.Snapshot{
		1: {
			Items:      []alert.Alert{pending("a-1", 1)},
			Pagination: alertstore.Pagination{Page: 1, TotalPages: 2},
			Summary:    alertstore.Summary{Total: 2, BySeverity: map[string]int{"HIGH": 2}},
		},
		2: {
			Items:      []alert.Alert{pending("a-2", 2)},
			Pagination: alertstore.Pagination{Page: 2, TotalPages: 2},
		},
	}}

	srv := sseServer(t,
		"event: heartbeat\ndata: {}\n\n",
		"event: alert\ndata: {\"id\":\"a-3\",\"severity\":\"CRITICAL\",\"status\":\"PENDING\",\"priority_rank\":0,\"sla_deadline\":\"2026-08-30T10:30:00Z\"}\n\n",
	)

	view := feed.New(nil)
	sc := stream.New(srv.URL, "", func(ev alert.Event) { view.ApplyEvent(ev) }, nil, nil, stream.Options{})

	sess := New(fetcher, view, sc, nil, nil, Options{PerPage: 1})

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer sess.Stop()

	// both pages were seeded synchronously during Start
	got := sess.Alerts(t0)
	if len(got) != 2 {
		t.Fatalf("alerts after start = %d, want 2", len(got))
	}

	if sum := sess.Summary(); sum.Total != 2 || sum.BySeverity["HIGH"] != 2 {
		t.Errorf("summary = %+v", sum)
	}

	// the streamed alert lands in the view and sorts first by rank
	waitFor(t, 5*time.Second, func() bool { return len(sess.Alerts(t0)) == 3 })
	if got := sess.Alerts(t0); got[0].ID != "a-3" {
		t.Errorf("first alert = %s, want streamed a-3 at rank 0", got[0].ID)
	}

	waitFor(t, 5*time.Second, func() bool {
		return sess.ConnectionStatus().State == stream.StateConnected
	})

	sess.Stop()
	sess.Stop() // idempotent

	if st := sess.ConnectionStatus(); st.State != stream.StateDisconnected {
		t.Errorf("state after stop = %q", st.State)
	}
}

func TestSessionStartTwice(t *testing.T) {
	t.Parallel()

	srv := sseServer(t, "event: heartbeat\ndata: {}\n\n")

	view := feed.New(nil)
	sc := stream.New(srv.URL, "", nil, nil, nil, stream.Options{})
	sess := New(&mockFetcher{}, view, sc, nil, nil, Options{})

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer sess.Stop()

	if err := sess.Start(context.Background()); err == nil {
		t.Fatal("second Start() = nil error, want error")
	}
}

func TestSessionStartsDespiteSnapshotFailure(t *testing.T) {
	t.Parallel()

	srv := sseServer(t,
		"event: alert\ndata: {\"id\":\"a-1\",\"status\":\"PENDING\"}\n\n",
	)

	view := feed.New(nil)
	sc := stream.New(srv.URL, "", func(ev alert.Event) { view.ApplyEvent(ev) }, nil, nil, stream.Options{})
	sess := New(&mockFetcher{err: errors.New("store down")}, view, sc, nil, nil, Options{})

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v, snapshot failure must not block the stream", err)
	}
	defer sess.Stop()

	waitFor(t, 5*time.Second, func() bool { return len(sess.Alerts(time.Now())) == 1 })
}

func TestSessionRefreshLoop(t *testing.T) {
	t.Parallel()

	fetcher := &mockFetcher{pages: map[int]*alertstore.Snapshot{
		1: {
			Items:      []alert.Alert{pending("a-1", 1)},
			Pagination: alertstore.Pagination{Page: 1, TotalPages: 1},
		},
	}}

	srv := sseServer(t, "event: heartbeat\ndata: {}\n\n")

	view := feed.New(nil)
	sc := stream.New(srv.URL, "", nil, nil, nil, stream.Options{})
	sess := New(fetcher, view, sc, nil, nil, Options{RefreshInterval: 50 * time.Millisecond})

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer sess.Stop()

	waitFor(t, 5*time.Second, func() bool {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		return fetcher.calls >= 3
	})
}

func TestSweepEscalationsNotifiesOnce(t *testing.T) {
	t.Parallel()

	// breached 35 minutes ago with a 30 minute grace: escalated
	escalated := alert.Alert{
		ID:          "a-1",
		Severity:    alert.SeverityCritical,
		Status:      alert.StatusPending,
		TriggeredAt: time.Now().Add(-65 * time.Minute),
		SLADeadline: time.Now().Add(-35 * time.Minute),
	}
	calm := pending("a-2", 2)
	calm.SLADeadline = time.Now().Add(2 * time.Hour)

	view := feed.New(nil)
	view.Seed([]alert.Alert{escalated, calm})

	notifier := &mockEscalations{}
	sc := stream.New("http://unused", "", nil, nil, nil, stream.Options{})
	sess := New(&mockFetcher{}, view, sc, notifier, nil, Options{})

	sess.sweepEscalations(context.Background())
	sess.sweepEscalations(context.Background())

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.calls != 1 {
		t.Fatalf("notifications = %d, want exactly 1 across repeated sweeps", notifier.calls)
	}
	if notifier.ids[0] != "a-1" {
		t.Errorf("notified = %v, want a-1", notifier.ids)
	}
}

func TestSweepEscalationsForgetsDepartedAlerts(t *testing.T) {
	t.Parallel()

	escalated := alert.Alert{
		ID:          "a-1",
		Severity:    alert.SeverityCritical,
		Status:      alert.StatusPending,
		TriggeredAt: time.Now().Add(-2 * time.Hour),
		SLADeadline: time.Now().Add(-time.Hour),
	}

	view := feed.New(nil)
	view.Seed([]alert.Alert{escalated})

	notifier := &mockEscalations{}
	sc := stream.New("http://unused", "", nil, nil, nil, stream.Options{})
	sess := New(&mockFetcher{}, view, sc, notifier, nil, Options{})

	sess.sweepEscalations(context.Background())

	// the alert resolves and leaves the queue, then recurs
	view.ApplyEvent(alert.Event{Type: alert.EventAlertResolved, Alert: &escalated})
	sess.sweepEscalations(context.Background())

	view.Seed([]alert.Alert{escalated})
	sess.sweepEscalations(context.Background())

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.calls != 2 {
		t.Errorf("notifications = %d, want 2 (one per occurrence)", notifier.calls)
	}
}
