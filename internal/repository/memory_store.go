package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-academy/internal/model"
)

// MemoryStore is an in-process Test Catalog and Result Store. Tests keep
// their insertion order; results are append-only.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []uuid.UUID
	tests   map[uuid.UUID]model.Test
	results []model.Result
}

// NewMemoryStore creates an empty MemoryStore seeded with tests.
func NewMemoryStore(tests ...model.Test) *MemoryStore {
	s := &MemoryStore{tests: make(map[uuid.UUID]model.Test)}
	for _, t := range tests {
		s.PutTest(t)
	}
	return s
}

// PutTest adds or replaces a test definition.
func (s *MemoryStore) PutTest(t model.Test) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.tests[t.ID] = t
}

// GetTest returns the test with the given id.
func (s *MemoryStore) GetTest(_ context.Context, id uuid.UUID) (*model.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tests[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &t, nil
}

// ListTests returns all tests in insertion order.
func (s *MemoryStore) ListTests(_ context.Context) ([]model.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Test, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tests[id])
	}
	return out, nil
}

// Append records a result. A second result for the same test and taker is
// rejected with ErrDuplicateResult.
func (s *MemoryStore) Append(_ context.Context, r *model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.results {
		if s.results[i].TestID == r.TestID && s.results[i].TakerID == r.TakerID {
			return model.ErrDuplicateResult
		}
	}
	s.results = append(s.results, cloneResult(r))
	return nil
}

// Query returns the results matching filter in append order.
func (s *MemoryStore) Query(_ context.Context, filter model.ResultFilter) ([]model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Result
	for i := range s.results {
		if filter.Matches(&s.results[i]) {
			out = append(out, cloneResult(&s.results[i]))
		}
	}
	return out, nil
}

func cloneResult(r *model.Result) model.Result {
	c := *r
	c.Answers = make(map[int]string, len(r.Answers))
	for k, v := range r.Answers {
		c.Answers[k] = v
	}
	return c
}
