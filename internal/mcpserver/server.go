package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Riskline tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("riskline", "1.0.0")
	client := NewRisklineClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolEvaluateTransaction, h.HandleEvaluateTransaction)
	s.AddTool(ToolGetEvaluation, h.HandleGetEvaluation)
	s.AddTool(ToolCustomerRisk, h.HandleCustomerRisk)
	s.AddTool(ToolFileFraudReport, h.HandleFileFraudReport)
	s.AddTool(ToolUpdateReportStatus, h.HandleUpdateReportStatus)

	return s
}
