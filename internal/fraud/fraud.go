// Package fraud defines the domain model for transaction risk scoring.
//
// A transaction is evaluated by three local signal analyzers (velocity,
// device, geographic) plus an external model score. The aggregation policy
// in this package folds the four signals into a composite 0-1000 score, a
// risk level, a recommendation, and the automated actions to dispatch.
// Scoring is availability-first: infrastructure failures degrade to the
// least restrictive outcome instead of blocking the transaction.
package fraud

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Level classifies the overall risk of an evaluation.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Recommendation is the engine's verdict on a transaction.
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReview  Recommendation = "REVIEW"
	RecommendBlock   Recommendation = "BLOCK"
	// RecommendManualReview is reserved for human case workflows; the
	// classifier never assigns it.
	RecommendManualReview Recommendation = "MANUAL_REVIEW"
)

// Tier is the analyzer-local classification of a single signal.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

// Severity classifies an external rule match.
type Severity string

const (
	SeverityReview   Severity = "review"
	SeverityBlock    Severity = "block"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for highest-wins comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityBlock:
		return 2
	case SeverityReview:
		return 1
	default:
		return 0
	}
}

// Signal score boundaries shared by every analyzer.
const (
	MaxScore = 1000

	tierHighOver   = 600
	tierMediumOver = 300

	adviseBlockOver  = 800
	adviseReviewOver = 500
)

// RuleMatch is a single external rule-engine hit.
type RuleMatch struct {
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
}

// ModelScore is the external scorer's contribution to an evaluation.
type ModelScore struct {
	Score        int         `json:"score"`
	RuleMatches  []RuleMatch `json:"ruleMatches,omitempty"`
	ModelVersion string      `json:"modelVersion,omitempty"`
}

// SubScore is the result of a single signal analyzer: a clamped additive
// score, the tier it maps to, the named flags that fired, and an advisory
// recommendation local to the analyzer.
type SubScore struct {
	Score          int            `json:"score"`
	Tier           Tier           `json:"tier"`
	Flags          []string       `json:"flags,omitempty"`
	Recommendation Recommendation `json:"recommendation"`
	Unavailable    bool           `json:"unavailable,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

// NewSubScore clamps the raw score and derives the tier and the
// analyzer-local advisory recommendation.
func NewSubScore(score int, flags []string) SubScore {
	score = ClampScore(score)
	return SubScore{
		Score:          score,
		Tier:           TierForScore(score),
		Flags:          dedupeStrings(flags),
		Recommendation: advisoryForScore(score),
	}
}

// UnavailableSubScore is the zero signal substituted when an analyzer
// cannot run at all: no score, LOW tier, a single marker flag.
func UnavailableSubScore(flag string) SubScore {
	s := NewSubScore(0, []string{flag})
	s.Unavailable = true
	return s
}

// ClampScore bounds a score to [0, MaxScore].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// TierForScore maps a signal score to its risk tier.
func TierForScore(score int) Tier {
	switch {
	case score > tierHighOver:
		return TierHigh
	case score > tierMediumOver:
		return TierMedium
	default:
		return TierLow
	}
}

func advisoryForScore(score int) Recommendation {
	switch {
	case score > adviseBlockOver:
		return RecommendBlock
	case score > adviseReviewOver:
		return RecommendReview
	default:
		return RecommendApprove
	}
}

// Address is a customer billing address.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"` // ISO 3166-1 alpha-2
	PostalCode string `json:"postalCode,omitempty"`
}

// Location is a resolved geographic point tied to a customer transaction.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
	SeenAt    time.Time `json:"seenAt"`
}

// Transaction carries the full context of a payment event under
// evaluation. Constructed once per request; never mutated by the pipeline.
type Transaction struct {
	TransactionID     string            `json:"transactionId,omitempty"`
	CustomerID        string            `json:"customerId"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency,omitempty"`
	Email             string            `json:"email"`
	IPAddress         string            `json:"ipAddress,omitempty"`
	UserAgent         string            `json:"userAgent,omitempty"`
	DeviceFingerprint string            `json:"deviceFingerprint,omitempty"`
	SessionID         string            `json:"sessionId,omitempty"`
	PaymentMethod     string            `json:"paymentMethod,omitempty"`
	CardBIN           string            `json:"cardBin,omitempty"`
	CardCountry       string            `json:"cardCountry,omitempty"`
	MerchantCategory  string            `json:"merchantCategory,omitempty"`
	BillingAddress    *Address          `json:"billingAddress,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate checks the caller-required fields. Violations are caller
// errors, not fail-open cases: the evaluation aborts before any signal
// collection.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.CustomerID) == "" {
		return ErrMissingCustomer
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !emailRe.MatchString(t.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// Placeholder values callers send when no client IP was captured.
var placeholderIPs = map[string]struct{}{
	"":        {},
	"0.0.0.0": {},
	"::":      {},
	"unknown": {},
	"null":    {},
}

// IsPlaceholderIP reports whether the IP field is missing or a known
// placeholder rather than a real client address.
func IsPlaceholderIP(ip string) bool {
	_, ok := placeholderIPs[strings.ToLower(strings.TrimSpace(ip))]
	return ok
}

// Evaluation is the persisted outcome of one risk evaluation. Written
// once, never updated; queryable by customer and creation time so that
// later evaluations can use it as velocity history.
type Evaluation struct {
	ID                string          `json:"id"`
	CorrelationID     string          `json:"correlationId"`
	TransactionID     string          `json:"transactionId,omitempty"`
	CustomerID        string          `json:"customerId"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	IPAddress         string          `json:"ipAddress,omitempty"`
	DeviceFingerprint string          `json:"deviceFingerprint,omitempty"`
	SessionID         string          `json:"sessionId,omitempty"`

	Score          int            `json:"fraudScore"`
	Level          Level          `json:"riskLevel"`
	Recommendation Recommendation `json:"recommendation"`
	RuleMatches    []RuleMatch    `json:"ruleMatches,omitempty"`
	ReasonCodes    []string       `json:"reasonCodes"`

	ModelScore   int      `json:"mlScore"`
	ModelVersion string   `json:"modelVersion,omitempty"`
	Velocity     SubScore `json:"velocity"`
	Device       SubScore `json:"device"`
	Geo          SubScore `json:"geographic"`

	Confidence      int `json:"confidence"`
	ComplianceScore int `json:"complianceScore"`

	Actions          []string  `json:"automatedActions"`
	Fallback         bool      `json:"fallback,omitempty"`
	EvaluationTimeMs int64     `json:"evaluationTimeMs"`
	CreatedAt        time.Time `json:"createdAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// CustomerProfile aggregates a customer's history into the fields the
// external model consumes.
type CustomerProfile struct {
	CustomerID       string          `json:"customerId"`
	FirstSeen        time.Time       `json:"firstSeen"`
	LastTransaction  time.Time       `json:"lastTransaction"`
	TransactionCount int             `json:"transactionCount"`
	AvgAmount        decimal.Decimal `json:"avgAmount"`
	ChargebackCount  int             `json:"chargebackCount"`
}

// ReportStatus tracks a fraud report through its lifecycle.
type ReportStatus string

const (
	ReportUnderInvestigation ReportStatus = "UNDER_INVESTIGATION"
	ReportConfirmed          ReportStatus = "CONFIRMED"
	ReportDismissed          ReportStatus = "DISMISSED"
)

// Report is a customer- or analyst-filed claim of confirmed fraud.
// Confirmed reports feed the customer's chargeback count and are posted
// back to the model as labeled examples.
type Report struct {
	ID           string       `json:"id"`
	EvaluationID string       `json:"evaluationId,omitempty"`
	CustomerID   string       `json:"customerId"`
	ReportedBy   string       `json:"reportedBy,omitempty"`
	Reason       string       `json:"reason"`
	Status       ReportStatus `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// dedupeStrings removes duplicates preserving first-seen order.
func dedupeStrings(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
