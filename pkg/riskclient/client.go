package riskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a Riskline server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer key sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a client for the given base URL, e.g. "https://risk.example.com".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = "unexpected_response"
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type evaluateResponse struct {
	Evaluation *Evaluation `json:"evaluation"`
}

// Evaluate scores one transaction.
func (c *Client) Evaluate(ctx context.Context, tx Transaction) (*Evaluation, error) {
	var resp evaluateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/evaluations", tx, &resp); err != nil {
		return nil, err
	}
	return resp.Evaluation, nil
}

type batchRequest struct {
	Transactions []Transaction `json:"transactions"`
}

type batchResponse struct {
	Count   int           `json:"count"`
	Results []BatchResult `json:"results"`
}

// EvaluateBatch scores up to the server's batch limit of transactions.
// Per-item failures come back as BatchResult.Error in the same slot as
// the input; the call errors only when the whole request is rejected.
func (c *Client) EvaluateBatch(ctx context.Context, txs []Transaction) ([]BatchResult, error) {
	var resp batchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/evaluations/batch", batchRequest{Transactions: txs}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetEvaluation fetches a past evaluation by id.
func (c *Client) GetEvaluation(ctx context.Context, id string) (*Evaluation, error) {
	var eval Evaluation
	if err := c.do(ctx, http.MethodGet, "/v1/evaluations/"+url.PathEscape(id), nil, &eval); err != nil {
		return nil, err
	}
	return &eval, nil
}

type listEvaluationsResponse struct {
	Count       int          `json:"count"`
	Evaluations []Evaluation `json:"evaluations"`
}

// ListCustomerEvaluations returns a customer's evaluations since the
// given time, oldest first. A zero since uses the server default of the
// last 24 hours.
func (c *Client) ListCustomerEvaluations(ctx context.Context, customerID string, since time.Time) ([]Evaluation, error) {
	path := "/v1/customers/" + url.PathEscape(customerID) + "/evaluations"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.Format(time.RFC3339))
	}
	var resp listEvaluationsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Evaluations, nil
}

// CustomerRisk returns the aggregate profile for a customer.
func (c *Client) CustomerRisk(ctx context.Context, customerID string) (*CustomerRisk, error) {
	var risk CustomerRisk
	if err := c.do(ctx, http.MethodGet, "/v1/customers/"+url.PathEscape(customerID)+"/risk", nil, &risk); err != nil {
		return nil, err
	}
	return &risk, nil
}

type fileReportRequest struct {
	EvaluationID string `json:"evaluationId,omitempty"`
	CustomerID   string `json:"customerId"`
	ReportedBy   string `json:"reportedBy,omitempty"`
	Reason       string `json:"reason"`
}

// FileReport files a fraud report against a customer.
func (c *Client) FileReport(ctx context.Context, evaluationID, customerID, reportedBy, reason string) (*Report, error) {
	body := fileReportRequest{
		EvaluationID: evaluationID,
		CustomerID:   customerID,
		ReportedBy:   reportedBy,
		Reason:       reason,
	}
	var report Report
	if err := c.do(ctx, http.MethodPost, "/v1/reports", body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GetReport fetches a report by id.
func (c *Client) GetReport(ctx context.Context, id string) (*Report, error) {
	var report Report
	if err := c.do(ctx, http.MethodGet, "/v1/reports/"+url.PathEscape(id), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// UpdateReportStatus resolves a report to CONFIRMED or DISMISSED.
func (c *Client) UpdateReportStatus(ctx context.Context, id, status string) (*Report, error) {
	var report Report
	if err := c.do(ctx, http.MethodPost, "/v1/reports/"+url.PathEscape(id)+"/status", map[string]string{"status": status}, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
