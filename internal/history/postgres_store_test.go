package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/testutil"
)

func TestPostgresStore_RoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	eval := &fraud.Evaluation{
		ID:                "eval_pg_1",
		CorrelationID:     "req_1",
		CustomerID:        "cust_pg",
		Amount:            decimal.RequireFromString("149.99"),
		Currency:          "USD",
		IPAddress:         "203.0.113.9",
		DeviceFingerprint: "fp_pg",
		SessionID:         "sess_1",
		Score:             870,
		Level:             fraud.LevelHigh,
		Recommendation:    fraud.RecommendBlock,
		RuleMatches:       []fraud.RuleMatch{{RuleID: "stolen_card_bin", Severity: fraud.SeverityBlock}},
		ReasonCodes:       []string{"high_ml_score", "rule_stolen_card_bin"},
		ModelScore:        910,
		ModelVersion:      "fraud-model-v4",
		Velocity:          fraud.SubScore{Score: 300, Tier: fraud.TierLow, Flags: []string{"excessive_hourly_transactions"}},
		Confidence:        90,
		ComplianceScore:   75,
		Actions:           []string{fraud.ActionBlockTransaction},
		EvaluationTimeMs:  42,
		CreatedAt:         now,
		ExpiresAt:         now.Add(90 * 24 * time.Hour),
	}

	if err := s.Record(ctx, eval); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := s.Get(ctx, "eval_pg_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Score != 870 || got.Level != fraud.LevelHigh {
		t.Errorf("Unexpected record: score=%d level=%s", got.Score, got.Level)
	}
	if !got.Amount.Equal(eval.Amount) {
		t.Errorf("Amount mismatch: got %s want %s", got.Amount, eval.Amount)
	}
	if len(got.RuleMatches) != 1 || got.RuleMatches[0].RuleID != "stolen_card_bin" {
		t.Errorf("Rule matches lost: %v", got.RuleMatches)
	}
	if len(got.Velocity.Flags) != 1 {
		t.Errorf("Sub-score flags lost: %+v", got.Velocity)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_WindowsAndProfile(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	amounts := []string{"100.00", "300.00"}
	for i, a := range amounts {
		eval := &fraud.Evaluation{
			ID:                "eval_w_" + string(rune('a'+i)),
			CustomerID:        "cust_w",
			Amount:            decimal.RequireFromString(a),
			DeviceFingerprint: "fp_w",
			SessionID:         "sess_" + string(rune('a'+i)),
			Score:             100,
			Level:             fraud.LevelLow,
			Recommendation:    fraud.RecommendApprove,
			CreatedAt:         now.Add(-time.Duration(i) * 30 * time.Minute),
			ExpiresAt:         now.Add(24 * time.Hour),
		}
		if err := s.Record(ctx, eval); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	evals, err := s.ListByCustomer(ctx, "cust_w", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListByCustomer failed: %v", err)
	}
	if len(evals) != 2 {
		t.Errorf("Expected 2 records, got %d", len(evals))
	}

	profile, err := s.Profile(ctx, "cust_w")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if profile.TransactionCount != 2 || !profile.AvgAmount.Equal(decimal.RequireFromString("200.00")) {
		t.Errorf("Unexpected profile: %+v", profile)
	}

	seen, err := s.SeenDevice(ctx, "cust_w", "fp_w")
	if err != nil || !seen {
		t.Errorf("Expected seen device, got %v/%v", seen, err)
	}
	n, err := s.DeviceCustomers(ctx, "fp_w")
	if err != nil || n != 1 {
		t.Errorf("Expected 1 device customer, got %d/%v", n, err)
	}
	sessions, err := s.SessionCount(ctx, "cust_w", now.Add(-time.Hour))
	if err != nil || sessions != 2 {
		t.Errorf("Expected 2 sessions, got %d/%v", sessions, err)
	}
}

func TestPostgresStore_LocationsAndExpiry(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	loc, err := s.LastLocation(ctx, "cust_loc")
	if err != nil || loc != nil {
		t.Errorf("Expected (nil, nil), got %v/%v", loc, err)
	}

	want := &fraud.Location{Latitude: 40.7128, Longitude: -74.0060, Country: "US", City: "New York", SeenAt: now}
	if err := s.RecordLocation(ctx, "cust_loc", want); err != nil {
		t.Fatalf("RecordLocation failed: %v", err)
	}
	// Upsert: second write replaces the first.
	want.City = "Boston"
	if err := s.RecordLocation(ctx, "cust_loc", want); err != nil {
		t.Fatalf("RecordLocation upsert failed: %v", err)
	}
	got, err := s.LastLocation(ctx, "cust_loc")
	if err != nil || got.City != "Boston" {
		t.Errorf("Expected upserted location, got %+v/%v", got, err)
	}

	expired := &fraud.Evaluation{
		ID:             "eval_exp",
		CustomerID:     "cust_loc",
		Amount:         decimal.NewFromInt(10),
		Score:          100,
		Level:          fraud.LevelLow,
		Recommendation: fraud.RecommendApprove,
		CreatedAt:      now.Add(-100 * 24 * time.Hour),
		ExpiresAt:      now.Add(-10 * 24 * time.Hour),
	}
	if err := s.Record(ctx, expired); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	deleted, err := s.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}
}
