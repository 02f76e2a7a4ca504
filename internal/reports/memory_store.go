package reports

import (
	"context"
	"sort"
	"sync"

	"github.com/mbd888/riskline/internal/fraud"
)

// MemoryStore is an in-memory report store for dev/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*fraud.Report
}

// NewMemoryStore creates an in-memory report store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string]*fraud.Report)}
}

func (s *MemoryStore) Create(ctx context.Context, report *fraud.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *report
	s.reports[report.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*fraud.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) Update(ctx context.Context, report *fraud.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[report.ID]; !ok {
		return ErrNotFound
	}
	cp := *report
	s.reports[report.ID] = &cp
	return nil
}

func (s *MemoryStore) ListByCustomer(ctx context.Context, customerID string) ([]*fraud.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*fraud.Report
	for _, r := range s.reports {
		if r.CustomerID == customerID {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) CountConfirmed(ctx context.Context, customerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.reports {
		if r.CustomerID == customerID && r.Status == fraud.ReportConfirmed {
			count++
		}
	}
	return count, nil
}
