// Package memstore provides an in-memory implementation of runs.Store.
package memstore

import (
	"context"
	"sync"

	"github.com/mdwatch/mdwatch/internal/runs"
)

// Store holds run records in memory. Suitable for dev and for deployments
// without a database.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*runs.Run
	order []string // insertion order, newest last
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{byID: make(map[string]*runs.Run)}
}

// Get retrieves a run by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*runs.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

// List returns up to limit runs, newest first.
func (s *Store) List(_ context.Context, limit int) ([]*runs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*runs.Run, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.byID[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

// Put stores a copy of the run record.
func (s *Store) Put(_ context.Context, r *runs.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	cp := *r
	s.byID[r.ID] = &cp
	return nil
}
