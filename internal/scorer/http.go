package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/riskline/internal/circuitbreaker"
	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/metrics"
)

const breakerKey = "scorer"

// HTTPScorer calls a remote model service. All calls run behind a circuit
// breaker: after repeated failures the breaker opens and calls fail fast
// with ErrUnavailable until the probe window elapses.
type HTTPScorer struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewHTTPScorer creates an HTTP model adapter.
func NewHTTPScorer(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPScorer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.New(5, 30*time.Second)
	breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		if to == circuitbreaker.StateOpen {
			metrics.ScorerBreakerOpen.Set(1)
		} else {
			metrics.ScorerBreakerOpen.Set(0)
		}
	})
	return &HTTPScorer{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger.With("component", "scorer"),
	}
}

// scoreRequest is the wire form of a scoring call.
type scoreRequest struct {
	TransactionID     string          `json:"transactionId,omitempty"`
	CustomerID        string          `json:"customerId"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency,omitempty"`
	Email             string          `json:"email"`
	IPAddress         string          `json:"ipAddress,omitempty"`
	UserAgent         string          `json:"userAgent,omitempty"`
	DeviceFingerprint string          `json:"deviceFingerprint,omitempty"`
	CardBIN           string          `json:"cardBin,omitempty"`
	BillingCountry    string          `json:"billingCountry,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`

	Variables eventVariablesWire `json:"eventVariables"`
}

// eventVariablesWire flattens the typed feature vector for the model API.
type eventVariablesWire struct {
	HourOfDay         int     `json:"hourOfDay"`
	DayOfWeek         int     `json:"dayOfWeek"`
	IsWeekend         bool    `json:"isWeekend"`
	TimeSinceLastTxMs int64   `json:"timeSinceLastTxMs"`
	CustomerAgeDays   int     `json:"customerAgeDays"`
	HistoricalTxCount int     `json:"historicalTxCount"`
	ChargebackCount   int     `json:"chargebackCount"`
	AvgTxAmount       string  `json:"avgTxAmount"`
	Amount            string  `json:"amount"`
	AmountRatio       float64 `json:"amountRatio,omitempty"`
}

type scoreResponse struct {
	Score        int               `json:"score"`
	RuleMatches  []fraud.RuleMatch `json:"ruleMatches"`
	ModelVersion string            `json:"modelVersion"`
}

// Score posts the transaction and feature vector to the model endpoint.
func (s *HTTPScorer) Score(ctx context.Context, tx *fraud.Transaction, vars fraud.EventVariables) (*fraud.ModelScore, error) {
	if !s.breaker.Allow(breakerKey) {
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	body := scoreRequest{
		TransactionID:     tx.TransactionID,
		CustomerID:        tx.CustomerID,
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		Email:             tx.Email,
		IPAddress:         tx.IPAddress,
		UserAgent:         tx.UserAgent,
		DeviceFingerprint: tx.DeviceFingerprint,
		CardBIN:           tx.CardBIN,
		BillingCountry:    vars.BillingCountry,
		Timestamp:         tx.Timestamp,
		Variables:         flattenVariables(vars),
	}

	var decoded scoreResponse
	if err := s.doJSON(ctx, http.MethodPost, "/v1/score", body, &decoded); err != nil {
		s.breaker.RecordFailure(breakerKey)
		return nil, err
	}
	s.breaker.RecordSuccess(breakerKey)

	return &fraud.ModelScore{
		Score:        fraud.ClampScore(decoded.Score),
		RuleMatches:  decoded.RuleMatches,
		ModelVersion: decoded.ModelVersion,
	}, nil
}

// Feedback posts a labeled outcome. Failures are logged, never retried.
func (s *HTTPScorer) Feedback(ctx context.Context, reportID, evaluationID string, outcome Outcome) error {
	body := map[string]string{
		"reportId":     reportID,
		"evaluationId": evaluationID,
		"outcome":      string(outcome),
	}
	if err := s.doJSON(ctx, http.MethodPost, "/v1/feedback", body, nil); err != nil {
		s.logger.Warn("model feedback failed", "report_id", reportID, "error", err)
		return err
	}
	return nil
}

func (s *HTTPScorer) doJSON(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: model returned status %d", ErrUnavailable, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}

func flattenVariables(vars fraud.EventVariables) eventVariablesWire {
	w := eventVariablesWire{
		HourOfDay:         vars.HourOfDay,
		DayOfWeek:         int(vars.DayOfWeek),
		IsWeekend:         vars.IsWeekend,
		TimeSinceLastTxMs: vars.TimeSinceLastTx.Milliseconds(),
		CustomerAgeDays:   vars.CustomerAgeDays,
		HistoricalTxCount: vars.HistoricalTxCount,
		ChargebackCount:   vars.ChargebackCount,
		AvgTxAmount:       vars.AvgTxAmount.String(),
		Amount:            vars.Amount.String(),
	}
	if vars.AvgTxAmount.IsPositive() {
		ratio, _ := vars.Amount.Div(vars.AvgTxAmount).Float64()
		w.AmountRatio = ratio
	}
	return w
}
