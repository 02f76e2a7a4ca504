package fraud

import "math"

// Automated action identifiers assigned by classification and executed by
// the action dispatcher.
const (
	ActionBlockTransaction    = "block_transaction"
	ActionFreezeAccount       = "freeze_customer_account"
	ActionAlertSecurity       = "alert_security_team"
	ActionRequireVerification = "require_additional_verification"
	ActionFlagForReview       = "flag_for_review"
	ActionIncreaseMonitoring  = "increase_monitoring"
	ActionLogTransaction      = "log_transaction"
	ActionLogSystemFailure    = "log_system_failure"
)

// Fail-open fallback constants. 100 is deliberate: it lands inside LOW
// under every sane threshold configuration, so the fallback path always
// resolves to APPROVE.
const (
	FallbackScore      = 100
	FallbackCompliance = 95
)

var fallbackReasonCodes = []string{"evaluation_failed", "fallback_mode"}

// Signals bundles the four inputs to aggregation.
type Signals struct {
	Model    ModelScore
	Velocity SubScore
	Device   SubScore
	Geo      SubScore
}

// Aggregate folds the four risk signals into the composite result: the
// weighted sum of the scores, amplified by the count of distinct flags,
// clamped to [0, MaxScore], then classified. Pure: the same transaction,
// policy and signals always produce the same result.
func Aggregate(p Policy, tx *Transaction, sig Signals) *Evaluation {
	flags := dedupeStrings(concatStrings(sig.Velocity.Flags, sig.Device.Flags, sig.Geo.Flags))

	weighted := float64(sig.Model.Score)*p.MLWeight +
		float64(sig.Velocity.Score)*p.VelocityWeight +
		float64(sig.Device.Score)*p.DeviceWeight +
		float64(sig.Geo.Score)*p.GeoWeight

	weighted *= 1 + p.FlagMultiplier*float64(len(flags))

	score := ClampScore(int(math.Round(weighted)))

	level, rec, actions := classify(p, score, sig.Model.RuleMatches)

	return &Evaluation{
		TransactionID:     tx.TransactionID,
		CustomerID:        tx.CustomerID,
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		IPAddress:         tx.IPAddress,
		DeviceFingerprint: tx.DeviceFingerprint,
		SessionID:         tx.SessionID,
		Score:             score,
		Level:             level,
		Recommendation:    rec,
		RuleMatches:       sig.Model.RuleMatches,
		ReasonCodes:       reasonCodes(sig, flags),
		ModelScore:        sig.Model.Score,
		ModelVersion:      sig.Model.ModelVersion,
		Velocity:          sig.Velocity,
		Device:            sig.Device,
		Geo:               sig.Geo,
		Confidence:        confidence(tx, sig.Model),
		ComplianceScore:   compliance(tx, level),
		Actions:           actions,
	}
}

// classify maps the composite score and hard rule matches to the final
// level, recommendation and action list. Evaluated in priority order,
// first match wins; a critical or block rule forces its level regardless
// of the numeric score.
func classify(p Policy, score int, matches []RuleMatch) (Level, Recommendation, []string) {
	switch {
	case hasSeverity(matches, SeverityCritical) || score > p.CriticalThreshold:
		return LevelCritical, RecommendBlock,
			[]string{ActionBlockTransaction, ActionFreezeAccount, ActionAlertSecurity}
	case hasSeverity(matches, SeverityBlock) || score > p.BlockThreshold:
		return LevelHigh, RecommendBlock,
			[]string{ActionBlockTransaction, ActionRequireVerification}
	case hasSeverity(matches, SeverityReview) || score > p.ReviewThreshold:
		return LevelMedium, RecommendReview,
			[]string{ActionFlagForReview, ActionIncreaseMonitoring}
	default:
		return LevelLow, RecommendApprove, []string{ActionLogTransaction}
	}
}

func hasSeverity(matches []RuleMatch, sev Severity) bool {
	for _, m := range matches {
		if m.Severity == sev {
			return true
		}
	}
	return false
}

// confidence estimates how much to trust the classification: model
// certainty, rule corroboration, and input completeness.
func confidence(tx *Transaction, model ModelScore) int {
	c := 50
	if model.Score > 800 || model.Score < 200 {
		c += 30
	} else {
		c += 10
	}
	if len(model.RuleMatches) > 0 {
		c += 20
	}
	c += int(math.Round(30 * completeness(tx)))
	if c > 100 {
		c = 100
	}
	return c
}

// completenessFields is the number of inputs counted toward confidence:
// customer id, amount, email, IP, user agent, fingerprint, BIN, billing.
const completenessFields = 8

func completeness(tx *Transaction) float64 {
	present := 0
	if tx.CustomerID != "" {
		present++
	}
	if tx.Amount.IsPositive() {
		present++
	}
	if tx.Email != "" {
		present++
	}
	if !IsPlaceholderIP(tx.IPAddress) {
		present++
	}
	if tx.UserAgent != "" {
		present++
	}
	if tx.DeviceFingerprint != "" {
		present++
	}
	if tx.CardBIN != "" {
		present++
	}
	if tx.BillingAddress != nil {
		present++
	}
	return float64(present) / completenessFields
}

// compliance starts from a perfect audit posture and deducts for missing
// identity data, then for the severity of the outcome.
func compliance(tx *Transaction, level Level) int {
	c := 100
	if tx.DeviceFingerprint == "" {
		c -= 5
	}
	if IsPlaceholderIP(tx.IPAddress) {
		c -= 10
	}
	if tx.BillingAddress == nil {
		c -= 5
	}
	switch level {
	case LevelCritical:
		c -= 30
	case LevelHigh:
		c -= 20
	case LevelMedium:
		c -= 10
	}
	if c < 0 {
		c = 0
	}
	return c
}

// reasonCodes emits high_<signal> for every sub-score past the MEDIUM
// tier boundary, rule_<id> per external match, and risk_<flag> per
// distinct flag. A quiet evaluation reports low_risk.
func reasonCodes(sig Signals, flags []string) []string {
	codes := make([]string, 0, 4+len(sig.Model.RuleMatches)+len(flags))

	signals := []struct {
		name  string
		score int
	}{
		{"ml_score", sig.Model.Score},
		{"velocity_score", sig.Velocity.Score},
		{"device_score", sig.Device.Score},
		{"geographic_score", sig.Geo.Score},
	}
	for _, s := range signals {
		if s.score > tierMediumOver {
			codes = append(codes, "high_"+s.name)
		}
	}

	for _, m := range sig.Model.RuleMatches {
		codes = append(codes, "rule_"+m.RuleID)
	}
	for _, f := range flags {
		codes = append(codes, "risk_"+f)
	}

	if len(codes) == 0 {
		return []string{"low_risk"}
	}
	return codes
}

// FallbackResult is the synthetic low-risk result returned when the
// pipeline fails before a real result exists.
func FallbackResult(tx *Transaction) *Evaluation {
	return &Evaluation{
		TransactionID:   tx.TransactionID,
		CustomerID:      tx.CustomerID,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		Score:           FallbackScore,
		Level:           LevelLow,
		Recommendation:  RecommendApprove,
		ReasonCodes:     append([]string(nil), fallbackReasonCodes...),
		Confidence:      0,
		ComplianceScore: FallbackCompliance,
		Actions:         []string{ActionLogSystemFailure},
		Fallback:        true,
	}
}

func concatStrings(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
