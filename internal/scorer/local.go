package scorer

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/riskline/internal/fraud"
)

// LocalModelVersion identifies results produced by the in-process rules.
const LocalModelVersion = "local-rules-v1"

// Rule is one entry in the local rule list. Higher priority rules are
// evaluated first; the first match wins and evaluation stops.
type Rule struct {
	ID       string
	Priority int
	Severity fraud.Severity
	Score    int
	Match    func(tx *fraud.Transaction, vars fraud.EventVariables) bool
}

// disposable email providers seen in confirmed-fraud reports.
var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"throwaway.email":   {},
	"yopmail.com":       {},
	"sharklasers.com":   {},
}

// LocalScorer is the deterministic in-process model: a heuristic base
// score from the feature vector plus a priority-ordered rule list.
type LocalScorer struct {
	rules []Rule
}

// NewLocalScorer creates the local model with the built-in rule set plus
// any extra rules, sorted once by descending priority.
func NewLocalScorer(extra ...Rule) *LocalScorer {
	rules := append(builtinRules(), extra...)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
	return &LocalScorer{rules: rules}
}

func builtinRules() []Rule {
	return []Rule{
		{
			ID:       "chargeback_history",
			Priority: 100,
			Severity: fraud.SeverityCritical,
			Score:    600,
			Match: func(tx *fraud.Transaction, vars fraud.EventVariables) bool {
				return vars.ChargebackCount > 0
			},
		},
		{
			ID:       "very_large_amount",
			Priority: 90,
			Severity: fraud.SeverityBlock,
			Score:    500,
			Match: func(tx *fraud.Transaction, vars fraud.EventVariables) bool {
				return tx.Amount.Cmp(decimal.NewFromInt(10000)) > 0
			},
		},
		{
			ID:       "burst_velocity",
			Priority: 80,
			Severity: fraud.SeverityReview,
			Score:    300,
			Match: func(tx *fraud.Transaction, vars fraud.EventVariables) bool {
				return vars.HistoricalTxCount > 0 &&
					vars.TimeSinceLastTx > 0 && vars.TimeSinceLastTx < time.Minute
			},
		},
		{
			ID:       "disposable_email",
			Priority: 70,
			Severity: fraud.SeverityReview,
			Score:    250,
			Match: func(tx *fraud.Transaction, vars fraud.EventVariables) bool {
				at := strings.LastIndex(tx.Email, "@")
				if at < 0 {
					return false
				}
				_, ok := disposableDomains[strings.ToLower(tx.Email[at+1:])]
				return ok
			},
		},
	}
}

// Score computes the heuristic base plus the first matching rule's
// contribution. Never fails.
func (s *LocalScorer) Score(ctx context.Context, tx *fraud.Transaction, vars fraud.EventVariables) (*fraud.ModelScore, error) {
	score := baseScore(tx, vars)

	var matches []fraud.RuleMatch
	for _, r := range s.rules {
		if r.Match(tx, vars) {
			score += r.Score
			matches = append(matches, fraud.RuleMatch{RuleID: r.ID, Severity: r.Severity})
			break
		}
	}

	return &fraud.ModelScore{
		Score:        fraud.ClampScore(score),
		RuleMatches:  matches,
		ModelVersion: LocalModelVersion,
	}, nil
}

// baseScore is the rule-independent heuristic component.
func baseScore(tx *fraud.Transaction, vars fraud.EventVariables) int {
	score := 0

	// Off-hours activity.
	if vars.HourOfDay < 6 {
		score += 50
	}

	// Brand-new customers carry more risk than established ones.
	switch {
	case vars.HistoricalTxCount == 0:
		score += 100
	case vars.CustomerAgeDays < 7:
		score += 50
	}

	// Amount far above the customer's historical average.
	if vars.AvgTxAmount.IsPositive() {
		ratio := tx.Amount.Div(vars.AvgTxAmount)
		switch {
		case ratio.Cmp(decimal.NewFromInt(10)) > 0:
			score += 200
		case ratio.Cmp(decimal.NewFromInt(5)) > 0:
			score += 100
		}
	}

	// Large absolute amounts, below the hard rule cutoff.
	if tx.Amount.Cmp(decimal.NewFromInt(5000)) > 0 {
		score += 100
	}

	return score
}
