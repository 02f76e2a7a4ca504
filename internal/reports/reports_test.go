package reports

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/scorer"
)

type recordingFeedback struct {
	mu       sync.Mutex
	outcomes []scorer.Outcome
	done     chan struct{}
}

func newRecordingFeedback() *recordingFeedback {
	return &recordingFeedback{done: make(chan struct{}, 4)}
}

func (f *recordingFeedback) Feedback(ctx context.Context, reportID, evaluationID string, outcome scorer.Outcome) error {
	f.mu.Lock()
	f.outcomes = append(f.outcomes, outcome)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *recordingFeedback) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for feedback")
	}
}

func (f *recordingFeedback) recorded() []scorer.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scorer.Outcome(nil), f.outcomes...)
}

func idSeq() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("rpt_%d", n)
	}
}

func newTestService(feedback scorer.FeedbackSender) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store, feedback, idSeq(), nil), store
}

func TestFile(t *testing.T) {
	feedback := newRecordingFeedback()
	svc, _ := newTestService(feedback)

	report, err := svc.File(context.Background(), "eval_1", "cust_1", "analyst_9", "card reported stolen")
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}

	if report.ID != "rpt_1" || report.Status != fraud.ReportUnderInvestigation {
		t.Errorf("Unexpected report: %+v", report)
	}
	if report.CreatedAt.IsZero() || !report.UpdatedAt.Equal(report.CreatedAt) {
		t.Errorf("Expected matching timestamps, got %v/%v", report.CreatedAt, report.UpdatedAt)
	}

	feedback.wait(t)
	if got := feedback.recorded(); len(got) != 1 || got[0] != scorer.OutcomeConfirmedFraud {
		t.Errorf("Expected confirmed-fraud label, got %v", got)
	}

	got, err := svc.Get(context.Background(), "rpt_1")
	if err != nil || got.Reason != "card reported stolen" {
		t.Errorf("Get after File: %+v/%v", got, err)
	}
}

func TestFile_Validation(t *testing.T) {
	svc, _ := newTestService(nil)

	if _, err := svc.File(context.Background(), "", "", "", "reason"); err == nil {
		t.Error("Expected error for missing customer id")
	}
	if _, err := svc.File(context.Background(), "", "cust_1", "", ""); err == nil {
		t.Error("Expected error for missing reason")
	}
}

func TestFile_NoEvaluationSkipsFeedback(t *testing.T) {
	feedback := newRecordingFeedback()
	svc, _ := newTestService(feedback)

	if _, err := svc.File(context.Background(), "", "cust_1", "", "chargeback received"); err != nil {
		t.Fatalf("File failed: %v", err)
	}

	select {
	case <-feedback.done:
		t.Error("Feedback must not be sent without an evaluation id")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUpdateStatus(t *testing.T) {
	feedback := newRecordingFeedback()
	svc, _ := newTestService(feedback)

	report, _ := svc.File(context.Background(), "eval_1", "cust_1", "", "chargeback")
	feedback.wait(t)

	updated, err := svc.UpdateStatus(context.Background(), report.ID, fraud.ReportConfirmed)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != fraud.ReportConfirmed {
		t.Errorf("Expected CONFIRMED, got %s", updated.Status)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Error("Expected UpdatedAt to advance")
	}
}

func TestUpdateStatus_DismissalSendsFalsePositive(t *testing.T) {
	feedback := newRecordingFeedback()
	svc, _ := newTestService(feedback)

	report, _ := svc.File(context.Background(), "eval_1", "cust_1", "", "chargeback")
	feedback.wait(t)

	if _, err := svc.UpdateStatus(context.Background(), report.ID, fraud.ReportDismissed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	feedback.wait(t)

	got := feedback.recorded()
	if len(got) != 2 || got[1] != scorer.OutcomeFalsePositive {
		t.Errorf("Expected false-positive label on dismissal, got %v", got)
	}
}

func TestUpdateStatus_Invalid(t *testing.T) {
	svc, _ := newTestService(nil)
	report, _ := svc.File(context.Background(), "", "cust_1", "", "chargeback")

	if _, err := svc.UpdateStatus(context.Background(), report.ID, fraud.ReportUnderInvestigation); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), "missing", fraud.ReportConfirmed); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestChargebackCount(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	a, _ := svc.File(ctx, "", "cust_1", "", "chargeback one")
	b, _ := svc.File(ctx, "", "cust_1", "", "chargeback two")
	c, _ := svc.File(ctx, "", "cust_1", "", "looks legitimate")
	svc.File(ctx, "", "cust_2", "", "other customer")

	svc.UpdateStatus(ctx, a.ID, fraud.ReportConfirmed)
	svc.UpdateStatus(ctx, b.ID, fraud.ReportConfirmed)
	svc.UpdateStatus(ctx, c.ID, fraud.ReportDismissed)

	count, err := svc.ChargebackCount(ctx, "cust_1")
	if err != nil {
		t.Fatalf("ChargebackCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 confirmed, got %d", count)
	}
}

func TestListByCustomer_NewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		store.Create(ctx, &fraud.Report{
			ID:         fmt.Sprintf("rpt_%d", i),
			CustomerID: "cust_1",
			Reason:     "r",
			Status:     fraud.ReportUnderInvestigation,
			CreatedAt:  time.Date(2026, 3, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}

	got, err := store.ListByCustomer(ctx, "cust_1")
	if err != nil {
		t.Fatalf("ListByCustomer failed: %v", err)
	}
	if len(got) != 3 || got[0].ID != "rpt_2" {
		t.Errorf("Expected newest first, got %v", got)
	}
}
