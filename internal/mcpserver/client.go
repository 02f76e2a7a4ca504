package mcpserver

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

// Config holds the configuration for connecting to the Riskline API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // API key, e.g. "rk_..."
}

// RisklineClient is a pure HTTP client for the Riskline API.
type RisklineClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewRisklineClient creates a new client for the Riskline API.
func NewRisklineClient(cfg Config) *RisklineClient {
	return &RisklineClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *RisklineClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// Evaluate scores a single transaction.
func (c *RisklineClient) Evaluate(ctx context.Context, tx map[string]any) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/evaluations", nil, tx)
}

// GetEvaluation fetches a past evaluation by id.
func (c *RisklineClient) GetEvaluation(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/evaluations/"+url.PathEscape(id), nil, nil)
}

// CustomerRisk returns the aggregated risk profile for a customer.
func (c *RisklineClient) CustomerRisk(ctx context.Context, customerID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/customers/"+url.PathEscape(customerID)+"/risk", nil, nil)
}

// FileReport files a fraud report.
func (c *RisklineClient) FileReport(ctx context.Context, evaluationID, customerID, reportedBy, reason string) (json.RawMessage, error) {
	body := map[string]string{
		"evaluationId": evaluationID,
		"customerId":   customerID,
		"reportedBy":   reportedBy,
		"reason":       reason,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/reports", nil, body)
}

// UpdateReportStatus confirms or dismisses a report.
func (c *RisklineClient) UpdateReportStatus(ctx context.Context, reportID, status string) (json.RawMessage, error) {
	body := map[string]string{"status": status}
	return c.doRequest(ctx, http.MethodPost, "/v1/reports/"+url.PathEscape(reportID)+"/status", nil, body)
}
