package fraud

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventVariables is the typed feature vector handed to the external model.
// Explicit named fields instead of an open key/value bag, so a missing
// feature is visible in the type rather than a silent absent key.
type EventVariables struct {
	Amount   decimal.Decimal
	Currency string

	CustomerID        string
	Email             string
	IPAddress         string
	UserAgent         string
	DeviceFingerprint string
	CardBIN           string
	BillingCountry    string

	HourOfDay int
	DayOfWeek time.Weekday
	IsWeekend bool

	TimeSinceLastTx   time.Duration
	CustomerAgeDays   int
	HistoricalTxCount int
	ChargebackCount   int
	AvgTxAmount       decimal.Decimal
}

// BuildEventVariables derives the feature vector from the transaction and
// the customer's profile. A nil profile leaves the historical fields zero;
// temporal fields come from the transaction timestamp so the vector is
// reproducible for the same event.
func BuildEventVariables(tx *Transaction, profile *CustomerProfile) EventVariables {
	v := EventVariables{
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		CustomerID:        tx.CustomerID,
		Email:             tx.Email,
		IPAddress:         tx.IPAddress,
		UserAgent:         tx.UserAgent,
		DeviceFingerprint: tx.DeviceFingerprint,
		CardBIN:           tx.CardBIN,
		HourOfDay:         tx.Timestamp.Hour(),
		DayOfWeek:         tx.Timestamp.Weekday(),
	}
	v.IsWeekend = v.DayOfWeek == time.Saturday || v.DayOfWeek == time.Sunday

	if tx.BillingAddress != nil {
		v.BillingCountry = tx.BillingAddress.Country
	}

	if profile != nil {
		if !profile.LastTransaction.IsZero() && tx.Timestamp.After(profile.LastTransaction) {
			v.TimeSinceLastTx = tx.Timestamp.Sub(profile.LastTransaction)
		}
		if !profile.FirstSeen.IsZero() && tx.Timestamp.After(profile.FirstSeen) {
			v.CustomerAgeDays = int(tx.Timestamp.Sub(profile.FirstSeen).Hours() / 24)
		}
		v.HistoricalTxCount = profile.TransactionCount
		v.ChargebackCount = profile.ChargebackCount
		v.AvgTxAmount = profile.AvgAmount
	}

	return v
}
