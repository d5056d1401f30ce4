// Package session owns the live triage state for one signed-in
// clinician: one synchronizer, one stream connection, a periodic
// snapshot refresher, and an escalation sweep. State is injected and
// explicitly torn down at logout; nothing here is a module global.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/pulse/internal/alert"
	"github.com/linnemanlabs/pulse/internal/alertstore"
	"github.com/linnemanlabs/pulse/internal/feed"
	"github.com/linnemanlabs/pulse/internal/stream"
)

const (
	defaultRefreshInterval = 60 * time.Second
	defaultSweepInterval   = 60 * time.Second
	maxSnapshotPages       = 50
)

// Fetcher retrieves snapshot pages from the Alert Store.
type Fetcher interface {
	FetchAlerts(ctx context.Context, filters alert.Filters, page alertstore.Page) (*alertstore.Snapshot, error)
}

// EscalationNotifier is told once per alert when it crosses into
// escalated state.
type EscalationNotifier interface {
	NotifyEscalated(ctx context.Context, a alert.Annotated) error
}

// Options tunes the session's background cadence.
type Options struct {
	Filters         alert.Filters
	PerPage         int
	RefreshInterval time.Duration
	SweepInterval   time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.RefreshInterval <= 0 {
		out.RefreshInterval = defaultRefreshInterval
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = defaultSweepInterval
	}
	return out
}

// Session wires the snapshot source and the push stream into one
// consistent view and keeps it fresh until Stop.
type Session struct {
	store    Fetcher
	view     *feed.Synchronizer
	stream   *stream.Client
	notifier EscalationNotifier
	logger   log.Logger
	opts     Options

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
	summary   alertstore.Summary
	escalated map[string]bool // alert id -> already notified
}

// New creates a session. notifier may be nil.
func New(store Fetcher, view *feed.Synchronizer, sc *stream.Client, notifier EscalationNotifier, logger log.Logger, opts Options) *Session {
	if logger == nil {
		logger = log.Nop()
	}
	return &Session{
		store:     store,
		view:      view,
		stream:    sc,
		notifier:  notifier,
		logger:    logger,
		opts:      opts.withDefaults(),
		escalated: make(map[string]bool),
	}
}

// Start seeds the view from a full snapshot, opens the stream, and
// launches the refresh and sweep loops. Calling Start twice is an error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.refresh(runCtx); err != nil {
		// the stream still starts: stale-free data will arrive as
		// events, and the refresher retries on its next tick
		s.logger.Error(runCtx, err, "initial snapshot fetch failed")
	}

	s.stream.Connect(runCtx)

	go s.run(runCtx)
	return nil
}

// Stop tears the session down: the stream, the refresh loop, and the
// sweep all end before Stop returns. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	s.stream.Close()
	<-done
}

// Alerts returns the annotated materialized queue at the given instant.
func (s *Session) Alerts(now time.Time) []alert.Annotated {
	return s.view.Materialize(now)
}

// Overlay applies an authoritative projection from a mutation response
// into the view, to be replaced wholesale by the next stream event.
func (s *Session) Overlay(a *alert.Alert) {
	s.view.Overlay(a)
}

// Summary returns the server-side tally from the latest snapshot.
func (s *Session) Summary() alertstore.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// ConnectionStatus exposes the stream state for the UI's indicator.
func (s *Session) ConnectionStatus() stream.Status {
	return s.stream.Status()
}

// Reconnect resets the stream's attempt counter and retries now. It is
// the explicit recovery path once the stream has given up.
func (s *Session) Reconnect(ctx context.Context) {
	s.stream.Reconnect(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	refresh := time.NewTicker(s.opts.RefreshInterval)
	defer refresh.Stop()
	sweep := time.NewTicker(s.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			if err := s.refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn(ctx, "snapshot refresh failed", "error", err)
			}
		case <-sweep.C:
			s.sweepEscalations(ctx)
		}
	}
}

// refresh fetches every snapshot page and reseeds the view, so any
// event the stream missed self-heals within one interval.
func (s *Session) refresh(ctx context.Context) error {
	var items []alert.Alert

	page := 1
	for {
		snap, err := s.store.FetchAlerts(ctx, s.opts.Filters, alertstore.Page{Number: page, PerPage: s.opts.PerPage})
		if err != nil {
			return fmt.Errorf("fetch snapshot page %d: %w", page, err)
		}
		items = append(items, snap.Items...)

		if page == 1 {
			s.mu.Lock()
			s.summary = snap.Summary
			s.mu.Unlock()
		}

		if page >= snap.Pagination.TotalPages || page >= maxSnapshotPages {
			break
		}
		page++
	}

	s.view.Seed(items)
	s.logger.Info(ctx, "snapshot seeded", "alerts", len(items), "pages", page)
	return nil
}

// sweepEscalations notifies once per alert as it crosses into the
// escalated state, and forgets alerts that left the queue.
func (s *Session) sweepEscalations(ctx context.Context) {
	if s.notifier == nil {
		return
	}

	now := time.Now()
	current := s.view.Materialize(now)

	active := make(map[string]bool, len(current))
	for _, a := range current {
		active[a.ID] = true
		if !a.Escalated || s.alreadyNotified(a.ID) {
			continue
		}
		s.markNotified(a.ID)
		if err := s.notifier.NotifyEscalated(ctx, a); err != nil {
			s.logger.Warn(ctx, "escalation notification failed",
				"alert_id", a.ID,
				"error", err,
			)
		}
	}

	s.mu.Lock()
	for id := range s.escalated {
		if !active[id] {
			delete(s.escalated, id)
		}
	}
	s.mu.Unlock()
}

func (s *Session) alreadyNotified(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escalated[id]
}

func (s *Session) markNotified(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalated[id] = true
}
