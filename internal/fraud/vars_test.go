package fraud

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBuildEventVariables_TemporalFields(t *testing.T) {
	tx := testTx()
	// 2026-03-04 is a Wednesday.
	tx.Timestamp = time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC)

	v := BuildEventVariables(tx, nil)

	if v.HourOfDay != 14 {
		t.Errorf("Expected hour 14, got %d", v.HourOfDay)
	}
	if v.DayOfWeek != time.Wednesday {
		t.Errorf("Expected Wednesday, got %s", v.DayOfWeek)
	}
	if v.IsWeekend {
		t.Error("Wednesday is not a weekend")
	}

	tx.Timestamp = time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC) // Saturday
	if v := BuildEventVariables(tx, nil); !v.IsWeekend {
		t.Error("Expected Saturday to be a weekend")
	}
}

func TestBuildEventVariables_NilProfile(t *testing.T) {
	v := BuildEventVariables(testTx(), nil)

	if v.HistoricalTxCount != 0 || v.ChargebackCount != 0 || v.CustomerAgeDays != 0 {
		t.Errorf("Expected zero history fields, got %+v", v)
	}
	if v.TimeSinceLastTx != 0 {
		t.Errorf("Expected zero time since last tx, got %v", v.TimeSinceLastTx)
	}
	if v.CustomerID != "cust_1" || !v.Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Expected transaction fields copied, got %+v", v)
	}
}

func TestBuildEventVariables_ProfileFields(t *testing.T) {
	tx := testTx()
	now := tx.Timestamp

	profile := &CustomerProfile{
		CustomerID:       "cust_1",
		FirstSeen:        now.Add(-45 * 24 * time.Hour),
		LastTransaction:  now.Add(-90 * time.Minute),
		TransactionCount: 12,
		AvgAmount:        decimal.NewFromInt(75),
		ChargebackCount:  2,
	}

	v := BuildEventVariables(tx, profile)

	if v.CustomerAgeDays != 45 {
		t.Errorf("Expected customer age 45 days, got %d", v.CustomerAgeDays)
	}
	if v.TimeSinceLastTx != 90*time.Minute {
		t.Errorf("Expected 90m since last tx, got %v", v.TimeSinceLastTx)
	}
	if v.HistoricalTxCount != 12 || v.ChargebackCount != 2 {
		t.Errorf("Expected history counts copied, got %+v", v)
	}
	if !v.AvgTxAmount.Equal(decimal.NewFromInt(75)) {
		t.Errorf("Expected avg amount 75, got %s", v.AvgTxAmount)
	}
}

func TestBuildEventVariables_BillingCountry(t *testing.T) {
	tx := testTx()
	tx.BillingAddress = &Address{Country: "GB"}

	if v := BuildEventVariables(tx, nil); v.BillingCountry != "GB" {
		t.Errorf("Expected GB, got %q", v.BillingCountry)
	}

	tx.BillingAddress = nil
	if v := BuildEventVariables(tx, nil); v.BillingCountry != "" {
		t.Errorf("Expected empty billing country, got %q", v.BillingCountry)
	}
}
