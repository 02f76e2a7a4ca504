// Package actions executes the automated actions an evaluation assigns:
// blocking, account freezes, verification requirements, review flags and
// logging. Execution is side-effect isolation territory: one action
// failing never prevents the rest, and dispatch as a whole never fails
// the evaluation.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/logging"
	"github.com/mbd888/riskline/internal/metrics"
)

// Handler executes one named action for an evaluation.
type Handler func(ctx context.Context, eval *fraud.Evaluation) error

// AuditRecord is one executed action, persisted for compliance review.
type AuditRecord struct {
	ID           string    `json:"id"`
	EvaluationID string    `json:"evaluationId"`
	CustomerID   string    `json:"customerId"`
	Action       string    `json:"action"`
	Result       string    `json:"result"` // ok | error | skipped
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Recorder persists audit records. Writes are best-effort.
type Recorder interface {
	RecordAction(ctx context.Context, rec *AuditRecord) error
}

// Dispatcher maps action names to handlers and runs them with per-action
// failure isolation.
type Dispatcher struct {
	handlers map[string]Handler
	recorder Recorder
	newID    func() string
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with the eight standard actions
// registered. The recorder may be nil; audit writes are then skipped.
func NewDispatcher(recorder Recorder, newID func() string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		recorder: recorder,
		newID:    newID,
		logger:   logger.With("component", "actions"),
	}
	d.registerDefaults()
	return d
}

// Register adds or replaces a handler for an action name. Integrations
// override the log-only defaults with real side effects here.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// Dispatch executes the named actions in order. Unknown names are logged
// and skipped; a panicking or failing handler is contained to its action.
func (d *Dispatcher) Dispatch(ctx context.Context, eval *fraud.Evaluation, names []string) {
	log := logging.L(ctx)
	for _, name := range names {
		h, ok := d.handlers[name]
		if !ok {
			log.Warn("unknown automated action, skipping", "action", name, "evaluation_id", eval.ID)
			d.audit(ctx, eval, name, "skipped", "unknown action")
			metrics.ActionsTotal.WithLabelValues(name, "skipped").Inc()
			continue
		}

		err := d.run(ctx, h, eval)
		if err != nil {
			log.Error("automated action failed", "action", name, "evaluation_id", eval.ID, "error", err)
			d.audit(ctx, eval, name, "error", err.Error())
			metrics.ActionsTotal.WithLabelValues(name, "error").Inc()
			continue
		}
		d.audit(ctx, eval, name, "ok", "")
		metrics.ActionsTotal.WithLabelValues(name, "ok").Inc()
	}
}

// run contains handler panics so one bad integration cannot take down the
// evaluation pipeline.
func (d *Dispatcher) run(ctx context.Context, h Handler, eval *fraud.Evaluation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return h(ctx, eval)
}

func (d *Dispatcher) audit(ctx context.Context, eval *fraud.Evaluation, action, result, errMsg string) {
	if d.recorder == nil {
		return
	}
	rec := &AuditRecord{
		EvaluationID: eval.ID,
		CustomerID:   eval.CustomerID,
		Action:       action,
		Result:       result,
		Error:        errMsg,
		CreatedAt:    time.Now().UTC(),
	}
	if d.newID != nil {
		rec.ID = d.newID()
	}
	if err := d.recorder.RecordAction(ctx, rec); err != nil {
		d.logger.Warn("action audit write failed", "action", action, "error", err)
	}
}

// registerDefaults wires the standard actions. Outside the log-emitting
// ones these are integration points: deployments replace them via
// Register with calls into their payment switch and case systems.
func (d *Dispatcher) registerDefaults() {
	logAction := func(level slog.Level, msg string) Handler {
		return func(ctx context.Context, eval *fraud.Evaluation) error {
			logging.L(ctx).Log(ctx, level, msg,
				"evaluation_id", eval.ID,
				"customer_id", eval.CustomerID,
				"score", eval.Score,
				"risk_level", string(eval.Level),
			)
			return nil
		}
	}

	d.Register(fraud.ActionBlockTransaction, logAction(slog.LevelWarn, "transaction blocked"))
	d.Register(fraud.ActionFreezeAccount, logAction(slog.LevelWarn, "customer account frozen"))
	d.Register(fraud.ActionAlertSecurity, logAction(slog.LevelWarn, "security team alerted"))
	d.Register(fraud.ActionRequireVerification, logAction(slog.LevelInfo, "additional verification required"))
	d.Register(fraud.ActionFlagForReview, logAction(slog.LevelInfo, "transaction flagged for review"))
	d.Register(fraud.ActionIncreaseMonitoring, logAction(slog.LevelInfo, "customer monitoring increased"))
	d.Register(fraud.ActionLogTransaction, logAction(slog.LevelInfo, "transaction logged"))
	d.Register(fraud.ActionLogSystemFailure, logAction(slog.LevelError, "evaluation fell back to fail-open result"))
}
