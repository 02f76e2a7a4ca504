// Package evaluator orchestrates the fraud evaluation pipeline: signal
// collection, external scoring, aggregation, persistence, alerting and
// action dispatch.
//
// The pipeline is availability-first. Validation failures are the only
// errors a caller sees; everything downstream either degrades per signal
// or collapses to the fail-open result. A risk engine that blocks
// payments because its own infrastructure is down costs more than the
// fraud it would have caught.
package evaluator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/riskline/internal/actions"
	"github.com/mbd888/riskline/internal/alerts"
	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/history"
	"github.com/mbd888/riskline/internal/idgen"
	"github.com/mbd888/riskline/internal/logging"
	"github.com/mbd888/riskline/internal/metrics"
	"github.com/mbd888/riskline/internal/scorer"
	"github.com/mbd888/riskline/internal/traces"
)

// Analyzer is one local signal source.
type Analyzer interface {
	Analyze(ctx context.Context, tx *fraud.Transaction) fraud.SubScore
}

// ChargebackCounter layers confirmed-report counts onto the history
// profile before it reaches the model.
type ChargebackCounter interface {
	ChargebackCount(ctx context.Context, customerID string) (int, error)
}

// Service runs the evaluation pipeline.
type Service struct {
	policy      fraud.Policy
	velocity    Analyzer
	device      Analyzer
	geo         Analyzer
	scorer      scorer.Scorer
	store       history.Store
	dispatcher  *actions.Dispatcher
	alerts      alerts.Emitter
	chargebacks ChargebackCounter
	retention   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithChargebackCounter wires confirmed-report counts into the profile.
func WithChargebackCounter(c ChargebackCounter) Option {
	return func(s *Service) { s.chargebacks = c }
}

// WithRetention overrides how long evaluation records live.
func WithRetention(d time.Duration) Option {
	return func(s *Service) { s.retention = d }
}

// NewService creates the orchestrator.
func NewService(
	policy fraud.Policy,
	velocity, device, geo Analyzer,
	sc scorer.Scorer,
	store history.Store,
	dispatcher *actions.Dispatcher,
	emitter alerts.Emitter,
	opts ...Option,
) *Service {
	s := &Service{
		policy:     policy,
		velocity:   velocity,
		device:     device,
		geo:        geo,
		scorer:     sc,
		store:      store,
		dispatcher: dispatcher,
		alerts:     emitter,
		retention:  90 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate runs the full pipeline for one transaction.
func (s *Service) Evaluate(ctx context.Context, tx *fraud.Transaction) (*fraud.Evaluation, error) {
	start := time.Now()
	log := logging.L(ctx)

	ctx, span := traces.StartSpan(ctx, "evaluator.Evaluate", traces.CustomerID(tx.CustomerID))
	defer span.End()

	if err := tx.Validate(); err != nil {
		metrics.EvaluationFailuresTotal.WithLabelValues("validate").Inc()
		return nil, err
	}
	// Default a missing timestamp on a copy; the caller's transaction is
	// never written to.
	if tx.Timestamp.IsZero() {
		txc := *tx
		txc.Timestamp = start.UTC()
		tx = &txc
	}

	eval := s.evaluate(ctx, tx)

	eval.ID = idgen.WithPrefix("eval_")
	if eval.CorrelationID == "" {
		if rid := logging.RequestID(ctx); rid != "" {
			eval.CorrelationID = rid
		} else {
			eval.CorrelationID = uuid.NewString()
		}
	}
	eval.CreatedAt = start.UTC()
	eval.ExpiresAt = eval.CreatedAt.Add(s.retention)
	eval.EvaluationTimeMs = time.Since(start).Milliseconds()

	s.finish(ctx, eval)

	span.SetAttributes(
		traces.EvaluationID(eval.ID),
		traces.FraudScore(eval.Score),
		traces.RiskLevel(string(eval.Level)),
		traces.Recommendation(string(eval.Recommendation)),
		traces.Fallback(eval.Fallback),
	)

	log.Info("transaction evaluated",
		"evaluation_id", eval.ID,
		"customer_id", eval.CustomerID,
		"score", eval.Score,
		"risk_level", string(eval.Level),
		"recommendation", string(eval.Recommendation),
		"fallback", eval.Fallback,
		"duration_ms", eval.EvaluationTimeMs,
	)
	return eval, nil
}

// evaluate produces the scored result or the fail-open fallback. Never
// returns nil.
func (s *Service) evaluate(ctx context.Context, tx *fraud.Transaction) *fraud.Evaluation {
	log := logging.L(ctx)

	sig := s.collectSignals(ctx, tx)

	vars := s.buildVariables(ctx, tx)

	model, err := s.scorer.Score(ctx, tx, vars)
	if err != nil {
		log.Error("external scoring failed, returning fail-open result",
			"customer_id", tx.CustomerID, "error", err)
		metrics.EvaluationFailuresTotal.WithLabelValues("score_external").Inc()
		return fraud.FallbackResult(tx)
	}
	sig.Model = *model

	return s.aggregate(ctx, tx, sig)
}

// collectSignals runs the three analyzers concurrently. A panicking
// branch yields that analyzer's unavailable result; the others proceed.
func (s *Service) collectSignals(ctx context.Context, tx *fraud.Transaction) fraud.Signals {
	type branch struct {
		name     string
		analyzer Analyzer
		out      *fraud.SubScore
	}

	var sig fraud.Signals
	branches := []branch{
		{"velocity", s.velocity, &sig.Velocity},
		{"device", s.device, &sig.Device},
		{"geo", s.geo, &sig.Geo},
	}

	done := make(chan struct{}, len(branches))
	for i := range branches {
		b := branches[i]
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logging.L(ctx).Error("analyzer panicked, substituting zero signal",
						"analyzer", b.name, "panic", r)
					metrics.EvaluationFailuresTotal.WithLabelValues(b.name).Inc()
					*b.out = fraud.UnavailableSubScore(b.name + "_check_unavailable")
				}
				done <- struct{}{}
			}()
			*b.out = b.analyzer.Analyze(ctx, tx)
		}()
	}
	for range branches {
		<-done
	}
	return sig
}

// buildVariables loads the customer profile best-effort and derives the
// feature vector. A missing profile just leaves the historical fields
// zero.
func (s *Service) buildVariables(ctx context.Context, tx *fraud.Transaction) fraud.EventVariables {
	var profile *fraud.CustomerProfile
	p, err := s.store.Profile(ctx, tx.CustomerID)
	if err != nil {
		logging.L(ctx).Warn("profile load failed, scoring without history",
			"customer_id", tx.CustomerID, "error", err)
	} else {
		profile = p
		if s.chargebacks != nil {
			if n, err := s.chargebacks.ChargebackCount(ctx, tx.CustomerID); err == nil {
				profile.ChargebackCount = n
			}
		}
	}
	return fraud.BuildEventVariables(tx, profile)
}

// aggregate wraps the pure fold so a panic (malformed policy, rule bug)
// still resolves to the fail-open result.
func (s *Service) aggregate(ctx context.Context, tx *fraud.Transaction, sig fraud.Signals) (eval *fraud.Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			logging.L(ctx).Error("aggregation panicked, returning fail-open result", "panic", r)
			metrics.EvaluationFailuresTotal.WithLabelValues("aggregate").Inc()
			eval = fraud.FallbackResult(tx)
		}
	}()
	return fraud.Aggregate(s.policy, tx, sig)
}

// finish runs the best-effort side channels: persist, metrics, alert,
// dispatch. None of them can alter the returned result.
func (s *Service) finish(ctx context.Context, eval *fraud.Evaluation) {
	log := logging.L(ctx)

	if err := s.store.Record(ctx, eval); err != nil {
		log.Error("evaluation persist failed", "evaluation_id", eval.ID, "error", err)
		metrics.EvaluationFailuresTotal.WithLabelValues("persist").Inc()
	}

	metrics.ObserveEvaluation(string(eval.Level), string(eval.Recommendation),
		eval.Score, eval.Confidence, time.Duration(eval.EvaluationTimeMs)*time.Millisecond)

	if alert := alerts.NewFromEvaluation(eval); alert != nil {
		s.alerts.Emit(ctx, alert)
	}

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, eval, eval.Actions)
	}
}
