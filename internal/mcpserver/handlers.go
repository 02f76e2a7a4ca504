package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *RisklineClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *RisklineClient) *Handlers {
	return &Handlers{client: client}
}

// HandleEvaluateTransaction scores one transaction.
func (h *Handlers) HandleEvaluateTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID := req.GetString("customer_id", "")
	if customerID == "" {
		return mcp.NewToolResultError("customer_id is required"), nil
	}
	amount := req.GetString("amount", "")
	if amount == "" {
		return mcp.NewToolResultError("amount is required"), nil
	}
	email := req.GetString("email", "")
	if email == "" {
		return mcp.NewToolResultError("email is required"), nil
	}

	tx := map[string]any{
		"customerId": customerID,
		"amount":     amount,
		"email":      email,
	}
	if v := req.GetString("currency", ""); v != "" {
		tx["currency"] = v
	}
	if v := req.GetString("ip_address", ""); v != "" {
		tx["ipAddress"] = v
	}
	if v := req.GetString("user_agent", ""); v != "" {
		tx["userAgent"] = v
	}
	if v := req.GetString("device_fingerprint", ""); v != "" {
		tx["deviceFingerprint"] = v
	}
	if v := req.GetString("billing_country", ""); v != "" {
		tx["billingAddress"] = map[string]any{"country": v}
	}

	raw, err := h.client.Evaluate(ctx, tx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Evaluation failed: %v", err)), nil
	}

	text, err := formatEvaluation(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse evaluation: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetEvaluation fetches a past evaluation.
func (h *Handlers) HandleGetEvaluation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("evaluation_id", "")
	if id == "" {
		return mcp.NewToolResultError("evaluation_id is required"), nil
	}

	raw, err := h.client.GetEvaluation(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get evaluation: %v", err)), nil
	}

	text, err := formatEvaluation(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse evaluation: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleCustomerRisk returns the aggregated profile for a customer.
func (h *Handlers) HandleCustomerRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID := req.GetString("customer_id", "")
	if customerID == "" {
		return mcp.NewToolResultError("customer_id is required"), nil
	}

	raw, err := h.client.CustomerRisk(ctx, customerID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get customer risk: %v", err)), nil
	}

	text, err := formatCustomerRisk(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse customer risk: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleFileFraudReport files a fraud report.
func (h *Handlers) HandleFileFraudReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID := req.GetString("customer_id", "")
	if customerID == "" {
		return mcp.NewToolResultError("customer_id is required"), nil
	}
	reason := req.GetString("reason", "")
	if reason == "" {
		return mcp.NewToolResultError("reason is required"), nil
	}
	evaluationID := req.GetString("evaluation_id", "")
	reportedBy := req.GetString("reported_by", "")

	raw, err := h.client.FileReport(ctx, evaluationID, customerID, reportedBy, reason)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to file report: %v", err)), nil
	}

	var rpt map[string]any
	if err := json.Unmarshal(raw, &rpt); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse report: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Fraud report filed.\n"+
			"Report ID: %s\n"+
			"Customer: %s\n"+
			"Status: %s\n\n"+
			"Use update_report_status with this report_id once the investigation resolves.",
		getString(rpt, "id"), getString(rpt, "customerId"), getString(rpt, "status"))), nil
}

// HandleUpdateReportStatus confirms or dismisses a report.
func (h *Handlers) HandleUpdateReportStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reportID := req.GetString("report_id", "")
	if reportID == "" {
		return mcp.NewToolResultError("report_id is required"), nil
	}
	status := req.GetString("status", "")
	if status != "CONFIRMED" && status != "DISMISSED" {
		return mcp.NewToolResultError("status must be CONFIRMED or DISMISSED"), nil
	}

	raw, err := h.client.UpdateReportStatus(ctx, reportID, status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update report: %v", err)), nil
	}

	var rpt map[string]any
	if err := json.Unmarshal(raw, &rpt); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse report: %v", err)), nil
	}

	outcome := "confirmed as fraud; the customer's chargeback count now includes it"
	if status == "DISMISSED" {
		outcome = "dismissed as a false positive; the model receives a correcting label"
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Report %s %s.\nStatus: %s",
		getString(rpt, "id"), outcome, getString(rpt, "status"))), nil
}

// --- Formatting helpers ---

func formatEvaluation(raw json.RawMessage) (string, error) {
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	// Evaluate responses wrap the record; GET returns it bare.
	eval := resp
	if e, ok := resp["evaluation"].(map[string]any); ok {
		eval = e
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Evaluation %s\n", getString(eval, "id"))
	fmt.Fprintf(&sb, "  Customer: %s\n", getString(eval, "customerId"))
	fmt.Fprintf(&sb, "  Amount: %s %s\n", getString(eval, "amount"), getString(eval, "currency"))
	fmt.Fprintf(&sb, "  Fraud score: %s / 1000\n", getString(eval, "fraudScore"))
	fmt.Fprintf(&sb, "  Risk level: %s\n", getString(eval, "riskLevel"))
	fmt.Fprintf(&sb, "  Recommendation: %s\n", getString(eval, "recommendation"))
	if v := getString(eval, "confidence"); v != "" {
		fmt.Fprintf(&sb, "  Confidence: %s%%\n", v)
	}
	if fallback, ok := eval["fallback"].(bool); ok && fallback {
		sb.WriteString("  NOTE: fail-open fallback result, scoring infrastructure was unavailable\n")
	}

	if sub, ok := eval["velocity"].(map[string]any); ok {
		fmt.Fprintf(&sb, "\nSignals:\n")
		fmt.Fprintf(&sb, "  Velocity:   %s (%s)\n", getString(sub, "score"), getString(sub, "tier"))
		if d, ok := eval["device"].(map[string]any); ok {
			fmt.Fprintf(&sb, "  Device:     %s (%s)\n", getString(d, "score"), getString(d, "tier"))
		}
		if g, ok := eval["geographic"].(map[string]any); ok {
			fmt.Fprintf(&sb, "  Geographic: %s (%s)\n", getString(g, "score"), getString(g, "tier"))
		}
		fmt.Fprintf(&sb, "  Model:      %s\n", getString(eval, "mlScore"))
	}

	if codes, ok := eval["reasonCodes"].([]any); ok && len(codes) > 0 {
		sb.WriteString("\nReasons:\n")
		for _, c := range codes {
			fmt.Fprintf(&sb, "  - %v\n", c)
		}
	}
	if acts, ok := eval["automatedActions"].([]any); ok && len(acts) > 0 {
		sb.WriteString("\nAutomated actions:\n")
		for _, a := range acts {
			fmt.Fprintf(&sb, "  - %v\n", a)
		}
	}

	return sb.String(), nil
}

func formatCustomerRisk(raw json.RawMessage) (string, error) {
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	profile := resp
	if p, ok := resp["profile"].(map[string]any); ok {
		profile = p
	}

	var sb strings.Builder
	sb.WriteString("Customer risk profile:\n")
	fmt.Fprintf(&sb, "  Customer: %s\n", getString(profile, "customerId"))
	fmt.Fprintf(&sb, "  Transactions: %s\n", getString(profile, "transactionCount"))
	if v := getString(profile, "avgAmount"); v != "" {
		fmt.Fprintf(&sb, "  Average amount: %s\n", v)
	}
	if v := getString(profile, "firstSeen"); v != "" {
		fmt.Fprintf(&sb, "  First seen: %s\n", v)
	}
	if v := getString(profile, "lastTransaction"); v != "" {
		fmt.Fprintf(&sb, "  Last transaction: %s\n", v)
	}
	if v := getString(profile, "chargebackCount"); v != "" && v != "0" {
		fmt.Fprintf(&sb, "  Chargebacks: %s\n", v)
	}

	if latest, ok := resp["latestEvaluation"].(map[string]any); ok {
		sb.WriteString("\nLatest evaluation:\n")
		fmt.Fprintf(&sb, "  Score: %s | Level: %s | Recommendation: %s\n",
			getString(latest, "fraudScore"), getString(latest, "riskLevel"), getString(latest, "recommendation"))
	}

	return sb.String(), nil
}

// getString extracts a string value from a map, formatting numbers too.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case string:
				return t
			case float64:
				return fmt.Sprintf("%g", t)
			}
		}
	}
	return ""
}
