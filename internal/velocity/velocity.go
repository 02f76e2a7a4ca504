// Package velocity scores a customer's transaction rate and volume
// against configured limits over a 24-hour lookback window.
package velocity

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/riskline/internal/fraud"
)

// Flags raised by the velocity checks.
const (
	FlagExcessiveHourlyTx     = "excessive_hourly_transactions"
	FlagExcessiveDailyTx      = "excessive_daily_transactions"
	FlagExcessiveHourlyAmount = "excessive_hourly_amount"
	FlagExcessiveDailyAmount  = "excessive_daily_amount"
	FlagRapidTransactions     = "rapid_successive_transactions"
	FlagUnavailable           = "velocity_check_unavailable"
)

// History is the slice of the evaluation store the analyzer reads.
type History interface {
	ListByCustomer(ctx context.Context, customerID string, since time.Time) ([]*fraud.Evaluation, error)
}

// Analyzer computes the velocity signal from the customer's recorded
// evaluation history.
type Analyzer struct {
	history History
	limits  fraud.VelocityLimits
	logger  *slog.Logger
}

// NewAnalyzer creates a velocity analyzer.
func NewAnalyzer(history History, limits fraud.VelocityLimits, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{history: history, limits: limits, logger: logger.With("component", "velocity")}
}

// Analyze scores the transaction against the customer's trailing history.
// A failed history lookup degrades to the zero signal; it never fails the
// evaluation.
func (a *Analyzer) Analyze(ctx context.Context, tx *fraud.Transaction) fraud.SubScore {
	if tx.CustomerID == "" {
		return fraud.NewSubScore(0, nil)
	}

	now := tx.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	history, err := a.history.ListByCustomer(ctx, tx.CustomerID, now.Add(-a.limits.Lookback))
	if err != nil {
		a.logger.Warn("history lookup failed, degrading to zero signal",
			"customer_id", tx.CustomerID, "error", err)
		return fraud.UnavailableSubScore(FlagUnavailable)
	}

	w := measure(history, now, a.limits.BurstWindow)

	score := 0
	var flags []string

	if w.hourlyCount > a.limits.HourlyTxLimit {
		score += 300
		flags = append(flags, FlagExcessiveHourlyTx)
	}
	if w.dailyCount > a.limits.DailyTxLimit {
		score += 200
		flags = append(flags, FlagExcessiveDailyTx)
	}
	if w.hourlyAmount.Cmp(a.limits.HourlyAmountLimit) > 0 {
		score += 400
		flags = append(flags, FlagExcessiveHourlyAmount)
	}
	if w.dailyAmount.Cmp(a.limits.DailyAmountLimit) > 0 {
		score += 250
		flags = append(flags, FlagExcessiveDailyAmount)
	}
	if w.burstCount > a.limits.BurstMax {
		score += 500
		flags = append(flags, FlagRapidTransactions)
	}

	result := fraud.NewSubScore(score, flags)
	result.Details = map[string]any{
		"hourly_count":  w.hourlyCount,
		"daily_count":   w.dailyCount,
		"hourly_amount": w.hourlyAmount.String(),
		"daily_amount":  w.dailyAmount.String(),
		"burst_count":   w.burstCount,
	}
	return result
}

// windows aggregates the trailing 1h/24h/burst measurements.
type windows struct {
	hourlyCount  int
	dailyCount   int
	hourlyAmount decimal.Decimal
	dailyAmount  decimal.Decimal
	burstCount   int
}

// measure counts only records strictly before now, so the transaction
// under evaluation never counts against itself.
func measure(history []*fraud.Evaluation, now time.Time, burstWindow time.Duration) windows {
	hourAgo := now.Add(-time.Hour)
	burstCutoff := now.Add(-burstWindow)

	w := windows{
		hourlyAmount: decimal.Zero,
		dailyAmount:  decimal.Zero,
	}
	for _, e := range history {
		if !e.CreatedAt.Before(now) {
			continue
		}
		w.dailyCount++
		w.dailyAmount = w.dailyAmount.Add(e.Amount)
		if e.CreatedAt.After(hourAgo) {
			w.hourlyCount++
			w.hourlyAmount = w.hourlyAmount.Add(e.Amount)
		}
		if e.CreatedAt.After(burstCutoff) {
			w.burstCount++
		}
	}
	return w
}
