// Package memstore provides an in-memory implementation of audit.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/linnemanlabs/pulse/internal/audit"
)

// Store holds audit records in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	byAlert map[string][]audit.Record // alert ID -> records in append order
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		byAlert: make(map[string][]audit.Record),
	}
}

// Append stores a copy of the record.
func (s *Store) Append(_ context.Context, r *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAlert[r.AlertID] = append(s.byAlert[r.AlertID], *r)
	return nil
}

// ListByAlert returns the records for an alert in append order. Returns copies.
func (s *Store) ListByAlert(_ context.Context, alertID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.byAlert[alertID]
	out := make([]audit.Record, len(recs))
	copy(out, recs)
	return out, nil
}
