// Package riskclient is a typed Go client for the Riskline fraud
// evaluation API. It mirrors the wire format of the /v1 endpoints so
// integrators do not need to hand-roll request and response structs.
package riskclient

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Address is the customer's billing address.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"` // ISO 3166-1 alpha-2
	PostalCode string `json:"postalCode,omitempty"`
}

// Transaction is the evaluation input. CustomerID, Amount, and Email
// are required; everything else raises confidence when present.
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
	Timestamp         time.Time         `json:"timestamp,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// RuleMatch records a scoring rule that fired.
type RuleMatch struct {
	RuleID   string `json:"ruleId"`
	Severity string `json:"severity"`
}

// SubScore is one analyzer's contribution to the final score.
type SubScore struct {
	Score          int            `json:"score"`
	Tier           string         `json:"tier"`
	Flags          []string       `json:"flags,omitempty"`
	Recommendation string         `json:"recommendation"`
	Unavailable    bool           `json:"unavailable,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

// Evaluation is a scored transaction.
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

	Score          int         `json:"fraudScore"`
	Level          string      `json:"riskLevel"`
	Recommendation string      `json:"recommendation"`
	RuleMatches    []RuleMatch `json:"ruleMatches,omitempty"`
	ReasonCodes    []string    `json:"reasonCodes"`

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

// BatchResult is one slot of a batch evaluation response. Exactly one
// of Evaluation or Error is set; a failed item never fails the batch.
type BatchResult struct {
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// CustomerProfile is the aggregate the server keeps per customer.
type CustomerProfile struct {
	CustomerID       string          `json:"customerId"`
	FirstSeen        time.Time       `json:"firstSeen"`
	LastTransaction  time.Time       `json:"lastTransaction"`
	TransactionCount int             `json:"transactionCount"`
	AvgAmount        decimal.Decimal `json:"avgAmount"`
	ChargebackCount  int             `json:"chargebackCount"`
}

// CustomerRisk is the /v1/customers/:id/risk response.
type CustomerRisk struct {
	Profile          CustomerProfile `json:"profile"`
	LatestEvaluation *Evaluation     `json:"latestEvaluation,omitempty"`
}

// Report statuses.
const (
	ReportUnderInvestigation = "UNDER_INVESTIGATION"
	ReportConfirmed          = "CONFIRMED"
	ReportDismissed          = "DISMISSED"
)

// Report is a filed fraud report.
type Report struct {
	ID           string    `json:"id"`
	EvaluationID string    `json:"evaluationId,omitempty"`
	CustomerID   string    `json:"customerId"`
	ReportedBy   string    `json:"reportedBy,omitempty"`
	Reason       string    `json:"reason"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// APIError is an error response from the server.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("riskline: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("riskline: %s (%d)", e.Code, e.StatusCode)
}
