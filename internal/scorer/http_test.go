package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/riskline/internal/fraud"
)

func httpTx() *fraud.Transaction {
	return &fraud.Transaction{
		TransactionID: "txn_1",
		CustomerID:    "cust_1",
		Amount:        decimal.NewFromInt(250),
		Email:         "a@example.com",
		IPAddress:     "203.0.113.9",
		Timestamp:     time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC),
	}
}

func TestHTTPScorer_Score(t *testing.T) {
	var gotAuth string
	var gotBody scoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/score" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(scoreResponse{
			Score:        720,
			RuleMatches:  []fraud.RuleMatch{{RuleID: "stolen_card_bin", Severity: fraud.SeverityBlock}},
			ModelVersion: "fraud-model-v4",
		})
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "sk_test_123", 2*time.Second, nil)
	vars := fraud.EventVariables{Amount: decimal.NewFromInt(250), HourOfDay: 14, HistoricalTxCount: 3}

	result, err := s.Score(context.Background(), httpTx(), vars)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if gotAuth != "Bearer sk_test_123" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotBody.CustomerID != "cust_1" || gotBody.Variables.HistoricalTxCount != 3 {
		t.Errorf("Unexpected request body: %+v", gotBody)
	}
	if result.Score != 720 || result.ModelVersion != "fraud-model-v4" {
		t.Errorf("Unexpected result: %+v", result)
	}
	if len(result.RuleMatches) != 1 || result.RuleMatches[0].Severity != fraud.SeverityBlock {
		t.Errorf("Unexpected rule matches: %v", result.RuleMatches)
	}
}

func TestHTTPScorer_ScoreClamped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scoreResponse{Score: 4200})
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "", time.Second, nil)
	result, err := s.Score(context.Background(), httpTx(), fraud.EventVariables{})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if result.Score != fraud.MaxScore {
		t.Errorf("Expected clamp to %d, got %d", fraud.MaxScore, result.Score)
	}
}

func TestHTTPScorer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "", time.Second, nil)

	if _, err := s.Score(context.Background(), httpTx(), fraud.EventVariables{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPScorer_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "", time.Second, nil)

	if _, err := s.Score(context.Background(), httpTx(), fraud.EventVariables{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPScorer_BreakerOpensAfterFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "", time.Second, nil)
	for i := 0; i < 5; i++ {
		s.Score(context.Background(), httpTx(), fraud.EventVariables{})
	}
	callsBefore := calls

	// Breaker is open now: this call must fail fast without hitting the server.
	if _, err := s.Score(context.Background(), httpTx(), fraud.EventVariables{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable while open, got %v", err)
	}
	if calls != callsBefore {
		t.Errorf("Expected no request while breaker open, server saw %d extra", calls-callsBefore)
	}
}

func TestHTTPScorer_Feedback(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/feedback" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "", time.Second, nil)
	if err := s.Feedback(context.Background(), "rpt_1", "eval_1", OutcomeConfirmedFraud); err != nil {
		t.Fatalf("Feedback failed: %v", err)
	}
	if gotBody["outcome"] != string(OutcomeConfirmedFraud) || gotBody["reportId"] != "rpt_1" {
		t.Errorf("Unexpected feedback body: %v", gotBody)
	}
}
