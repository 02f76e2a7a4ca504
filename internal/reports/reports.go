// Package reports manages confirmed-fraud reports filed by customers and
// analysts. Reports feed two loops: confirmed reports raise the
// customer's chargeback count in the profile the model consumes, and
// every filed report is posted back to the model as a labeled example.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/scorer"
)

// ErrNotFound is returned when a report id has no record.
var ErrNotFound = errors.New("report not found")

// ErrInvalidStatus is returned for status transitions outside the
// lifecycle.
var ErrInvalidStatus = errors.New("invalid report status")

// Store persists fraud reports.
type Store interface {
	Create(ctx context.Context, report *fraud.Report) error
	Get(ctx context.Context, id string) (*fraud.Report, error)
	Update(ctx context.Context, report *fraud.Report) error
	ListByCustomer(ctx context.Context, customerID string) ([]*fraud.Report, error)
	CountConfirmed(ctx context.Context, customerID string) (int, error)
}

// Service files reports and walks them through their lifecycle.
type Service struct {
	store    Store
	feedback scorer.FeedbackSender
	newID    func() string
	logger   *slog.Logger
}

// NewService creates a report service. The feedback sender may be nil;
// labels are then not posted back to the model.
func NewService(store Store, feedback scorer.FeedbackSender, newID func() string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		feedback: feedback,
		newID:    newID,
		logger:   logger.With("component", "reports"),
	}
}

// File creates a report in UNDER_INVESTIGATION and posts the label to
// the model in the background. Feedback failure never fails the filing.
func (s *Service) File(ctx context.Context, evaluationID, customerID, reportedBy, reason string) (*fraud.Report, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customer id is required")
	}
	if reason == "" {
		return nil, fmt.Errorf("reason is required")
	}

	now := time.Now().UTC()
	report := &fraud.Report{
		ID:           s.newID(),
		EvaluationID: evaluationID,
		CustomerID:   customerID,
		ReportedBy:   reportedBy,
		Reason:       reason,
		Status:       fraud.ReportUnderInvestigation,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	s.sendFeedback(report.ID, report.EvaluationID, scorer.OutcomeConfirmedFraud)

	s.logger.Info("fraud report filed",
		"report_id", report.ID, "customer_id", customerID, "evaluation_id", evaluationID)
	return report, nil
}

// Get returns one report by id.
func (s *Service) Get(ctx context.Context, id string) (*fraud.Report, error) {
	return s.store.Get(ctx, id)
}

// ListByCustomer returns the customer's reports, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*fraud.Report, error) {
	return s.store.ListByCustomer(ctx, customerID)
}

// UpdateStatus moves a report to CONFIRMED or DISMISSED. A dismissal is
// posted back to the model as a false-positive label.
func (s *Service) UpdateStatus(ctx context.Context, id string, status fraud.ReportStatus) (*fraud.Report, error) {
	if status != fraud.ReportConfirmed && status != fraud.ReportDismissed {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	report, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	report.Status = status
	report.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, report); err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}

	if status == fraud.ReportDismissed {
		s.sendFeedback(report.ID, report.EvaluationID, scorer.OutcomeFalsePositive)
	}

	s.logger.Info("fraud report updated", "report_id", id, "status", string(status))
	return report, nil
}

// ChargebackCount is the customer's confirmed-report count, layered onto
// the history profile aggregate.
func (s *Service) ChargebackCount(ctx context.Context, customerID string) (int, error) {
	return s.store.CountConfirmed(ctx, customerID)
}

// sendFeedback runs off the request context: the filing response never
// waits on the model endpoint.
func (s *Service) sendFeedback(reportID, evaluationID string, outcome scorer.Outcome) {
	if s.feedback == nil || evaluationID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.feedback.Feedback(ctx, reportID, evaluationID, outcome); err != nil {
			s.logger.Warn("model feedback failed", "report_id", reportID, "error", err)
		}
	}()
}
