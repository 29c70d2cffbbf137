// Package memory is a process-local filing store for tests and throwaway runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

// Store keeps filings in a map with their first-insert order.
type Store struct {
	mu      sync.RWMutex
	filings map[string]domain.Filing
	order   []string
	closed  bool
}

// New returns an empty store.
func New() *Store {
	return &Store{filings: make(map[string]domain.Filing)}
}

// Upsert implements domain.Store. Overwrites keep the original position.
func (s *Store) Upsert(_ context.Context, f domain.Filing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", domain.ErrStorageWrite)
	}
	if f.ID == "" {
		return fmt.Errorf("%w: empty filing id", domain.ErrStorageWrite)
	}
	if _, ok := s.filings[f.ID]; !ok {
		s.order = append(s.order, f.ID)
	}
	s.filings[f.ID] = clone(f)
	return nil
}

// ListKnownIDs implements domain.Store.
func (s *Store) ListKnownIDs(context.Context) (domain.IDSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(domain.IDSet, len(s.filings))
	for id := range s.filings {
		ids.Add(id)
	}
	return ids, nil
}

// QueryByPeriod implements domain.Store.
func (s *Store) QueryByPeriod(_ context.Context, period domain.Period, year int, relevantOnly bool) ([]domain.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Filing
	for _, id := range s.order {
		f := s.filings[id]
		if f.Period != period || f.Year != year {
			continue
		}
		if relevantOnly && !f.Relevant {
			continue
		}
		out = append(out, clone(f))
	}
	return out, nil
}

// Len returns the number of stored filings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filings)
}

// Snapshot returns all filings in insertion order.
func (s *Store) Snapshot() []domain.Filing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Filing, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.filings[id]))
	}
	return out
}

// Close implements domain.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func clone(f domain.Filing) domain.Filing {
	if f.PostedAt != nil {
		t := *f.PostedAt
		f.PostedAt = &t
	}
	return f
}
