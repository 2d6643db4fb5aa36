// Package memstore provides an in-memory store.History, the default
// when no database URL is configured (mirroring vigil's
// internal/triage/memstore fallback, and matching spec.md section 6's
// base contract that alert history needs no durable backing store).
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/nightwatch/internal/store"
)

// Store holds session and alert history in memory.
type Store struct {
	mu       sync.RWMutex
	sessions []*store.SessionRecord
	alerts   []*store.AlertRecord
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{}
}

// PutSession appends a copy of rec, replacing any prior record with the
// same ID.
func (s *Store) PutSession(_ context.Context, rec *store.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	for i, r := range s.sessions {
		if r.ID == cp.ID {
			s.sessions[i] = &cp
			return nil
		}
	}
	s.sessions = append(s.sessions, &cp)
	return nil
}

// ListSessions returns up to limit sessions, most recently started
// first. limit <= 0 means no limit.
func (s *Store) ListSessions(_ context.Context, limit int) ([]*store.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*store.SessionRecord, len(s.sessions))
	copy(out, s.sessions)
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PutAlert appends a copy of rec, replacing any prior record with the
// same ID (e.g. an acknowledgment update).
func (s *Store) PutAlert(_ context.Context, rec *store.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	for i, r := range s.alerts {
		if r.ID == cp.ID {
			s.alerts[i] = &cp
			return nil
		}
	}
	s.alerts = append(s.alerts, &cp)
	return nil
}

// ListAlerts returns up to limit alerts, most recent first. limit <= 0
// means no limit.
func (s *Store) ListAlerts(_ context.Context, limit int) ([]*store.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*store.AlertRecord, len(s.alerts))
	copy(out, s.alerts)
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ store.History = (*Store)(nil)
