package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mbd888/riskline/internal/metrics"
	"github.com/mbd888/riskline/internal/retry"
	"github.com/mbd888/riskline/internal/security"
)

// WebhookEmitter POSTs alerts to a configured endpoint, signed with a
// shared secret so the receiver can verify origin.
type WebhookEmitter struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookEmitter creates a webhook emitter. The URL is validated
// against internal address ranges up front.
func NewWebhookEmitter(url, secret string, logger *slog.Logger) (*WebhookEmitter, error) {
	if err := security.ValidateEndpointURL(url); err != nil {
		return nil, fmt.Errorf("invalid alert webhook url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookEmitter{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("component", "alerts"),
	}, nil
}

// Emit sends the alert, retrying transient failures with backoff. A 4xx
// from the receiver is permanent; failures are logged and swallowed.
func (e *WebhookEmitter) Emit(ctx context.Context, alert *Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		e.logger.Error("failed to marshal alert", "error", err)
		return
	}

	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Riskline-Event", alert.AlertType)
		req.Header.Set("X-Riskline-Timestamp", fmt.Sprintf("%d", alert.CreatedAt.Unix()))
		if e.secret != "" {
			req.Header.Set("X-Riskline-Signature", sign(payload, e.secret))
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Permanent(fmt.Errorf("webhook rejected alert: status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("alert webhook delivery failed",
			"evaluation_id", alert.EvaluationID, "error", err)
		return
	}
	metrics.AlertsTotal.WithLabelValues(string(alert.Severity), "webhook").Inc()
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
