package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Riskline MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolEvaluateTransaction = mcp.NewTool("evaluate_transaction",
	mcp.WithDescription(
		"Score a payment transaction for fraud risk. "+
			"Returns a 0-1000 fraud score, a risk level (LOW/MEDIUM/HIGH/CRITICAL), "+
			"a recommendation (APPROVE/REVIEW/BLOCK), and the signal breakdown "+
			"(velocity, device, geographic, model). More context fields mean a "+
			"higher-confidence result."),
	mcp.WithString("customer_id",
		mcp.Required(),
		mcp.Description("The customer making the payment (e.g. 'cust_1234')")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Transaction amount as a decimal string (e.g. '149.99')")),
	mcp.WithString("email",
		mcp.Required(),
		mcp.Description("Customer email address")),
	mcp.WithString("currency",
		mcp.Description("ISO 4217 currency code (e.g. 'USD')")),
	mcp.WithString("ip_address",
		mcp.Description("Client IP address, used for geographic and network checks")),
	mcp.WithString("user_agent",
		mcp.Description("Client user agent string, used for bot and headless-browser detection")),
	mcp.WithString("device_fingerprint",
		mcp.Description("Device fingerprint hash, used for device sharing checks")),
	mcp.WithString("billing_country",
		mcp.Description("Billing address country as ISO 3166-1 alpha-2 (e.g. 'US')")),
)

var ToolGetEvaluation = mcp.NewTool("get_evaluation",
	mcp.WithDescription(
		"Fetch a past fraud evaluation by its id. "+
			"Returns the full scored result including reason codes and dispatched actions."),
	mcp.WithString("evaluation_id",
		mcp.Required(),
		mcp.Description("The evaluation id (e.g. 'eval_a1b2c3')")),
)

var ToolCustomerRisk = mcp.NewTool("customer_risk",
	mcp.WithDescription(
		"Get the aggregated risk profile for a customer: transaction count, "+
			"average amount, first/last seen, and the latest evaluation verdict. "+
			"Use this before manually reviewing a flagged customer."),
	mcp.WithString("customer_id",
		mcp.Required(),
		mcp.Description("The customer id (e.g. 'cust_1234')")),
)

var ToolFileFraudReport = mcp.NewTool("file_fraud_report",
	mcp.WithDescription(
		"File a fraud report against a customer or a specific evaluation. "+
			"Reports start UNDER_INVESTIGATION; once confirmed they raise the "+
			"customer's chargeback count and feed the scoring model as labeled fraud."),
	mcp.WithString("customer_id",
		mcp.Required(),
		mcp.Description("The customer the report is about")),
	mcp.WithString("reason",
		mcp.Required(),
		mcp.Description("Why this is believed to be fraud (e.g. 'cardholder reported unauthorized charge')")),
	mcp.WithString("evaluation_id",
		mcp.Description("The evaluation this report refers to, if known")),
	mcp.WithString("reported_by",
		mcp.Description("Who is filing the report (analyst id, system name)")),
)

var ToolUpdateReportStatus = mcp.NewTool("update_report_status",
	mcp.WithDescription(
		"Resolve a fraud report: CONFIRMED marks it as real fraud, "+
			"DISMISSED marks it as a false positive. Both outcomes are sent "+
			"back to the scoring model as feedback labels."),
	mcp.WithString("report_id",
		mcp.Required(),
		mcp.Description("The report id (e.g. 'rpt_a1b2c3')")),
	mcp.WithString("status",
		mcp.Required(),
		mcp.Description("The resolution: CONFIRMED or DISMISSED"),
		mcp.Enum("CONFIRMED", "DISMISSED")),
)
