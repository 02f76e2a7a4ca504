package history

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/riskline/internal/fraud"
)

// MemoryStore is an in-memory implementation of Store for dev/test use.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*fraud.Evaluation
	byCust    map[string][]*fraud.Evaluation // customer id → evaluations, oldest first
	devices   map[string]map[string]struct{} // fingerprint → customer ids
	locations map[string]*fraud.Location     // customer id → last location
}

// NewMemoryStore creates an in-memory evaluation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*fraud.Evaluation),
		byCust:    make(map[string][]*fraud.Evaluation),
		devices:   make(map[string]map[string]struct{}),
		locations: make(map[string]*fraud.Location),
	}
}

func (s *MemoryStore) Record(ctx context.Context, eval *fraud.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := copyEvaluation(eval)
	s.byID[e.ID] = e
	s.byCust[e.CustomerID] = append(s.byCust[e.CustomerID], e)

	if e.DeviceFingerprint != "" {
		if s.devices[e.DeviceFingerprint] == nil {
			s.devices[e.DeviceFingerprint] = make(map[string]struct{})
		}
		s.devices[e.DeviceFingerprint][e.CustomerID] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*fraud.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEvaluation(e), nil
}

func (s *MemoryStore) ListByCustomer(ctx context.Context, customerID string, since time.Time) ([]*fraud.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*fraud.Evaluation
	for _, e := range s.byCust[customerID] {
		if e.CreatedAt.Before(since) {
			continue
		}
		result = append(result, copyEvaluation(e))
	}
	return result, nil
}

func (s *MemoryStore) Profile(ctx context.Context, customerID string) (*fraud.CustomerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evals := s.byCust[customerID]
	profile := &fraud.CustomerProfile{CustomerID: customerID}
	if len(evals) == 0 {
		return profile, nil
	}

	sum := decimal.Zero
	for _, e := range evals {
		sum = sum.Add(e.Amount)
		if profile.FirstSeen.IsZero() || e.CreatedAt.Before(profile.FirstSeen) {
			profile.FirstSeen = e.CreatedAt
		}
		if e.CreatedAt.After(profile.LastTransaction) {
			profile.LastTransaction = e.CreatedAt
		}
	}
	profile.TransactionCount = len(evals)
	profile.AvgAmount = sum.DivRound(decimal.NewFromInt(int64(len(evals))), 2)
	return profile, nil
}

func (s *MemoryStore) SeenDevice(ctx context.Context, customerID, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers, ok := s.devices[fingerprint]
	if !ok {
		return false, nil
	}
	_, seen := customers[customerID]
	return seen, nil
}

func (s *MemoryStore) DeviceCustomers(ctx context.Context, fingerprint string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices[fingerprint]), nil
}

func (s *MemoryStore) SessionCount(ctx context.Context, customerID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make(map[string]struct{})
	for _, e := range s.byCust[customerID] {
		if e.SessionID == "" || e.CreatedAt.Before(since) {
			continue
		}
		sessions[e.SessionID] = struct{}{}
	}
	return len(sessions), nil
}

func (s *MemoryStore) LastLocation(ctx context.Context, customerID string) (*fraud.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[customerID]
	if !ok {
		return nil, nil
	}
	l := *loc
	return &l, nil
}

func (s *MemoryStore) RecordLocation(ctx context.Context, customerID string, loc *fraud.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := *loc
	s.locations[customerID] = &l
	return nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, e := range s.byID {
		if e.ExpiresAt.IsZero() || e.ExpiresAt.After(now) {
			continue
		}
		delete(s.byID, id)
		deleted++
	}
	if deleted == 0 {
		return 0, nil
	}

	// Rebuild the secondary indexes from the surviving records.
	s.byCust = make(map[string][]*fraud.Evaluation)
	s.devices = make(map[string]map[string]struct{})
	for _, e := range s.byID {
		s.byCust[e.CustomerID] = append(s.byCust[e.CustomerID], e)
		if e.DeviceFingerprint != "" {
			if s.devices[e.DeviceFingerprint] == nil {
				s.devices[e.DeviceFingerprint] = make(map[string]struct{})
			}
			s.devices[e.DeviceFingerprint][e.CustomerID] = struct{}{}
		}
	}
	for _, evals := range s.byCust {
		sortByCreatedAt(evals)
	}
	return deleted, nil
}

func sortByCreatedAt(evals []*fraud.Evaluation) {
	for i := 1; i < len(evals); i++ {
		for j := i; j > 0 && evals[j].CreatedAt.Before(evals[j-1].CreatedAt); j-- {
			evals[j], evals[j-1] = evals[j-1], evals[j]
		}
	}
}

// copyEvaluation deep-copies the slices and maps so callers cannot
// mutate stored records.
func copyEvaluation(in *fraud.Evaluation) *fraud.Evaluation {
	e := *in
	e.RuleMatches = append([]fraud.RuleMatch(nil), in.RuleMatches...)
	e.ReasonCodes = append([]string(nil), in.ReasonCodes...)
	e.Actions = append([]string(nil), in.Actions...)
	e.Velocity = copySubScore(in.Velocity)
	e.Device = copySubScore(in.Device)
	e.Geo = copySubScore(in.Geo)
	return &e
}

func copySubScore(in fraud.SubScore) fraud.SubScore {
	out := in
	out.Flags = append([]string(nil), in.Flags...)
	if in.Details != nil {
		out.Details = make(map[string]any, len(in.Details))
		for k, v := range in.Details {
			out.Details[k] = v
		}
	}
	return out
}
