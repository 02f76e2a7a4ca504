package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/riskline/internal/fraud"
)

var storeNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func storedEval(id, customerID string, amount int64, at time.Time) *fraud.Evaluation {
	return &fraud.Evaluation{
		ID:                id,
		CustomerID:        customerID,
		Amount:            decimal.NewFromInt(amount),
		DeviceFingerprint: "fp_" + customerID,
		SessionID:         "sess_" + id,
		Score:             120,
		Level:             fraud.LevelLow,
		Recommendation:    fraud.RecommendApprove,
		CreatedAt:         at,
		ExpiresAt:         at.Add(90 * 24 * time.Hour),
	}
}

func TestMemoryStore_RecordAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	eval := storedEval("eval_1", "cust_1", 100, storeNow)
	eval.ReasonCodes = []string{"low_risk"}
	if err := s.Record(ctx, eval); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := s.Get(ctx, "eval_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CustomerID != "cust_1" || got.Score != 120 {
		t.Errorf("Unexpected record: %+v", got)
	}

	// Returned record is a copy: mutating it must not affect the store.
	got.ReasonCodes[0] = "mutated"
	again, _ := s.Get(ctx, "eval_1")
	if again.ReasonCodes[0] != "low_risk" {
		t.Error("Store returned a shared reference")
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListByCustomer(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i, offset := range []time.Duration{-3 * time.Hour, -2 * time.Hour, -30 * time.Minute} {
		s.Record(ctx, storedEval("eval_"+string(rune('a'+i)), "cust_1", 100, storeNow.Add(offset)))
	}
	s.Record(ctx, storedEval("eval_other", "cust_2", 100, storeNow))

	got, err := s.ListByCustomer(ctx, "cust_1", storeNow.Add(-150*time.Minute))
	if err != nil {
		t.Fatalf("ListByCustomer failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 records in range, got %d", len(got))
	}
	if !got[0].CreatedAt.Before(got[1].CreatedAt) {
		t.Error("Expected oldest-first ordering")
	}
}

func TestMemoryStore_Profile(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Record(ctx, storedEval("eval_1", "cust_1", 100, storeNow.Add(-48*time.Hour)))
	s.Record(ctx, storedEval("eval_2", "cust_1", 200, storeNow))

	p, err := s.Profile(ctx, "cust_1")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if p.TransactionCount != 2 {
		t.Errorf("Expected 2 transactions, got %d", p.TransactionCount)
	}
	if !p.AvgAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected avg 150, got %s", p.AvgAmount)
	}
	if !p.FirstSeen.Equal(storeNow.Add(-48*time.Hour)) || !p.LastTransaction.Equal(storeNow) {
		t.Errorf("Unexpected time range: %v..%v", p.FirstSeen, p.LastTransaction)
	}

	empty, err := s.Profile(ctx, "cust_unknown")
	if err != nil {
		t.Fatalf("Profile failed for unknown customer: %v", err)
	}
	if empty.TransactionCount != 0 {
		t.Errorf("Expected empty profile, got %+v", empty)
	}
}

func TestMemoryStore_DeviceLookups(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	shared := storedEval("eval_1", "cust_1", 100, storeNow)
	shared.DeviceFingerprint = "fp_shared"
	s.Record(ctx, shared)

	other := storedEval("eval_2", "cust_2", 100, storeNow)
	other.DeviceFingerprint = "fp_shared"
	s.Record(ctx, other)

	seen, err := s.SeenDevice(ctx, "cust_1", "fp_shared")
	if err != nil || !seen {
		t.Errorf("Expected device seen for cust_1, got %v/%v", seen, err)
	}
	seen, _ = s.SeenDevice(ctx, "cust_3", "fp_shared")
	if seen {
		t.Error("Device not seen for cust_3")
	}

	n, err := s.DeviceCustomers(ctx, "fp_shared")
	if err != nil || n != 2 {
		t.Errorf("Expected 2 customers on fingerprint, got %d/%v", n, err)
	}
}

func TestMemoryStore_SessionCount(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Two distinct sessions plus a repeat of the first.
	a := storedEval("eval_1", "cust_1", 100, storeNow)
	a.SessionID = "sess_a"
	b := storedEval("eval_2", "cust_1", 100, storeNow)
	b.SessionID = "sess_b"
	c := storedEval("eval_3", "cust_1", 100, storeNow)
	c.SessionID = "sess_a"
	old := storedEval("eval_4", "cust_1", 100, storeNow.Add(-2*time.Hour))
	old.SessionID = "sess_old"
	for _, e := range []*fraud.Evaluation{a, b, c, old} {
		s.Record(ctx, e)
	}

	n, err := s.SessionCount(ctx, "cust_1", storeNow.Add(-time.Hour))
	if err != nil {
		t.Fatalf("SessionCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 distinct sessions in window, got %d", n)
	}
}

func TestMemoryStore_Locations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	loc, err := s.LastLocation(ctx, "cust_1")
	if err != nil || loc != nil {
		t.Errorf("Expected (nil, nil) with no history, got %v/%v", loc, err)
	}

	want := &fraud.Location{Latitude: 40.7, Longitude: -74.0, Country: "US", SeenAt: storeNow}
	if err := s.RecordLocation(ctx, "cust_1", want); err != nil {
		t.Fatalf("RecordLocation failed: %v", err)
	}

	got, err := s.LastLocation(ctx, "cust_1")
	if err != nil {
		t.Fatalf("LastLocation failed: %v", err)
	}
	if got.Country != "US" || got.Latitude != 40.7 {
		t.Errorf("Unexpected location: %+v", got)
	}
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	expired := storedEval("eval_old", "cust_1", 100, storeNow.Add(-100*24*time.Hour))
	expired.ExpiresAt = storeNow.Add(-10 * 24 * time.Hour)
	live := storedEval("eval_new", "cust_1", 100, storeNow)
	s.Record(ctx, expired)
	s.Record(ctx, live)

	deleted, err := s.DeleteExpired(ctx, storeNow)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}

	if _, err := s.Get(ctx, "eval_old"); !errors.Is(err, ErrNotFound) {
		t.Error("Expired record must be gone")
	}
	if _, err := s.Get(ctx, "eval_new"); err != nil {
		t.Errorf("Live record must survive: %v", err)
	}

	// Secondary indexes rebuilt: the expired record no longer counts.
	evals, _ := s.ListByCustomer(ctx, "cust_1", time.Time{})
	if len(evals) != 1 {
		t.Errorf("Expected 1 record after sweep, got %d", len(evals))
	}
}
