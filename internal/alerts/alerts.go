// Package alerts notifies downstream consumers about HIGH and CRITICAL
// evaluations. Emitting an alert is a side channel: emitters log their
// own failures and never propagate errors into the evaluation pipeline.
package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/metrics"
)

// Severity of an alert, derived from the evaluation's risk level.
type Severity string

const (
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is the notification payload for a high-risk evaluation.
type Alert struct {
	AlertType      string                `json:"alertType"`
	EvaluationID   string                `json:"evaluationId"`
	CorrelationID  string                `json:"correlationId,omitempty"`
	CustomerID     string                `json:"customerId"`
	Score          int                   `json:"score"`
	ModelScore     int                   `json:"modelScore"`
	SubScores      map[string]int        `json:"subScores"`
	Level          fraud.Level           `json:"riskLevel"`
	Recommendation fraud.Recommendation  `json:"recommendation"`
	ReasonCodes    []string              `json:"reasonCodes"`
	RiskFactors    map[string][]string   `json:"riskFactors"`
	Severity       Severity              `json:"severity"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// NewFromEvaluation builds the alert payload for an evaluation. Returns
// nil for levels below HIGH; those never alert.
func NewFromEvaluation(eval *fraud.Evaluation) *Alert {
	var sev Severity
	switch eval.Level {
	case fraud.LevelCritical:
		sev = SeverityCritical
	case fraud.LevelHigh:
		sev = SeverityHigh
	default:
		return nil
	}

	return &Alert{
		AlertType:      "fraud_risk",
		EvaluationID:   eval.ID,
		CorrelationID:  eval.CorrelationID,
		CustomerID:     eval.CustomerID,
		Score:          eval.Score,
		ModelScore:     eval.ModelScore,
		SubScores: map[string]int{
			"velocity":   eval.Velocity.Score,
			"device":     eval.Device.Score,
			"geographic": eval.Geo.Score,
		},
		Level:          eval.Level,
		Recommendation: eval.Recommendation,
		ReasonCodes:    eval.ReasonCodes,
		RiskFactors: map[string][]string{
			"velocity":   eval.Velocity.Flags,
			"device":     eval.Device.Flags,
			"geographic": eval.Geo.Flags,
		},
		Severity:  sev,
		CreatedAt: time.Now().UTC(),
	}
}

// Emitter delivers alerts to one channel. Implementations log and swallow
// their own failures.
type Emitter interface {
	Emit(ctx context.Context, alert *Alert)
}

// LogEmitter writes alerts to the structured log.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a log-backed emitter.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger.With("component", "alerts")}
}

// Emit logs the alert at warn for HIGH and error for CRITICAL.
func (e *LogEmitter) Emit(ctx context.Context, alert *Alert) {
	level := slog.LevelWarn
	if alert.Severity == SeverityCritical {
		level = slog.LevelError
	}
	e.logger.Log(ctx, level, "fraud alert",
		"evaluation_id", alert.EvaluationID,
		"customer_id", alert.CustomerID,
		"score", alert.Score,
		"risk_level", string(alert.Level),
		"recommendation", string(alert.Recommendation),
		"reason_codes", alert.ReasonCodes,
	)
	metrics.AlertsTotal.WithLabelValues(string(alert.Severity), "log").Inc()
}

// MultiEmitter fans an alert out to every configured channel.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates a fan-out emitter.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit delivers to each channel in turn.
func (e *MultiEmitter) Emit(ctx context.Context, alert *Alert) {
	for _, emitter := range e.emitters {
		emitter.Emit(ctx, alert)
	}
}

// Publisher is the realtime feed surface the hub emitter pushes to.
type Publisher interface {
	Publish(alert *Alert)
}

// HubEmitter pushes alerts to the realtime websocket hub.
type HubEmitter struct {
	hub Publisher
}

// NewHubEmitter creates a hub-backed emitter.
func NewHubEmitter(hub Publisher) *HubEmitter {
	return &HubEmitter{hub: hub}
}

// Emit publishes to connected websocket clients.
func (e *HubEmitter) Emit(ctx context.Context, alert *Alert) {
	e.hub.Publish(alert)
	metrics.AlertsTotal.WithLabelValues(string(alert.Severity), "stream").Inc()
}
