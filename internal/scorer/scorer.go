// Package scorer adapts external and local fraud models to the
// evaluation pipeline. The HTTP adapter calls a remote model service
// behind a circuit breaker; the local adapter is a deterministic
// in-process rule engine used as the default and as a development stand-in.
package scorer

import (
	"context"
	"errors"

	"github.com/mbd888/riskline/internal/fraud"
)

// ErrUnavailable is returned when the model cannot be reached, including
// when the circuit breaker is open. The orchestrator converts it into the
// fail-open evaluation result.
var ErrUnavailable = errors.New("scorer unavailable")

// Outcome labels a fraud report for model feedback.
type Outcome string

const (
	OutcomeConfirmedFraud Outcome = "confirmed_fraud"
	OutcomeFalsePositive  Outcome = "false_positive"
)

// Scorer produces a model score for a transaction.
type Scorer interface {
	Score(ctx context.Context, tx *fraud.Transaction, vars fraud.EventVariables) (*fraud.ModelScore, error)
}

// FeedbackSender posts labeled outcomes back to the model. Best-effort;
// callers never block on it.
type FeedbackSender interface {
	Feedback(ctx context.Context, reportID, evaluationID string, outcome Outcome) error
}
