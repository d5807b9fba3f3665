// Package gate is the final authority over a council recommendation: a
// terminal state machine applied once per decision, after aggregation and
// before the record is written.
package gate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/normanking/divan/pkg/types"
)

// State names the machine's checkpoints. The walk is strictly ordered; the
// first failing check terminates it.
type State string

const (
	StateConstraintCheck   State = "constraint_check"
	StateDistortionCheck   State = "distortion_check"
	StatePatternCheck      State = "pattern_check"
	StateOutcomeEvaluation State = "outcome_evaluation"
)

// Distortion bars: high stated confidence over weak actual agreement reads
// as emotional distortion, not conviction.
const (
	distortionConfidenceBar = 0.7
	distortionStrengthBar   = 0.3
)

// moralizingMarkers flag judgment language in council reasoning. Scanned
// only when doctrine forbids moralizing.
var moralizingMarkers = []string{
	"morally", "immoral", "unethical", "shameful", "ashamed",
	"virtuous", "righteous", "sinful", "dishonorable", "wicked",
}

// rationalizationConnectives are counted as whole words across the
// council's reasoning; too many reads as talking itself into it.
var rationalizationConnectives = []string{
	"but", "however", "despite", "although", "though",
	"nevertheless", "nonetheless", "except",
}

// Config tunes the gate.
type Config struct {
	// RiskThreshold gates acceptance on average confidence and arms the
	// risk-minister veto.
	RiskThreshold float64

	// RationalizationLimit is the connective count above which the gate
	// defers for pattern recurrence.
	RationalizationLimit int

	// ForbidMoralizing mirrors the loaded doctrine set.
	ForbidMoralizing bool
}

// DefaultConfig returns the standing gate tuning.
func DefaultConfig() Config {
	return Config{
		RiskThreshold:        0.7,
		RationalizationLimit: 2,
	}
}

// Gate evaluates recommendations. Stateless across decisions; safe for
// concurrent use.
type Gate struct {
	cfg Config
}

// New builds a gate, zero-filling config from defaults.
func New(cfg Config) *Gate {
	def := DefaultConfig()
	if cfg.RiskThreshold <= 0 {
		cfg.RiskThreshold = def.RiskThreshold
	}
	if cfg.RationalizationLimit <= 0 {
		cfg.RationalizationLimit = def.RationalizationLimit
	}
	return &Gate{cfg: cfg}
}

// Evaluate walks the machine over one recommendation and the positions
// behind it. The returned state is the checkpoint that terminated the walk.
func (g *Gate) Evaluate(rec types.CouncilRecommendation, positions map[string]types.Position) types.GateResult {
	corpus := reasoningCorpus(rec, positions)

	st := StateConstraintCheck
	for {
		switch st {
		case StateConstraintCheck:
			if g.cfg.ForbidMoralizing {
				if marker := firstMarker(corpus, moralizingMarkers); marker != "" {
					return terminal(st, types.VerdictDefer,
						fmt.Sprintf("moralizing language (%q) where doctrine forbids it", marker))
				}
			}
			st = StateDistortionCheck

		case StateDistortionCheck:
			if rec.AvgConfidence > distortionConfidenceBar && rec.ConsensusStrength < distortionStrengthBar {
				return terminal(st, types.VerdictDefer,
					fmt.Sprintf("emotional distortion: confidence %.2f over consensus %.2f",
						rec.AvgConfidence, rec.ConsensusStrength))
			}
			st = StatePatternCheck

		case StatePatternCheck:
			if n := countConnectives(corpus); n > g.cfg.RationalizationLimit {
				return terminal(st, types.VerdictDefer,
					fmt.Sprintf("pattern recurrence: %d rationalization connectives", n))
			}
			st = StateOutcomeEvaluation

		case StateOutcomeEvaluation:
			return g.evaluateOutcome(rec, positions)
		}
	}
}

// evaluateOutcome applies the risk-threshold rule. The risk minister's veto
// comes first: it overrides whatever the rest of the council concluded.
func (g *Gate) evaluateOutcome(rec types.CouncilRecommendation, positions map[string]types.Position) types.GateResult {
	if risk, ok := positions["risk"]; ok {
		if risk.RedLineTriggered {
			return terminal(StateOutcomeEvaluation, types.VerdictReject,
				fmt.Sprintf("risk veto: %s", risk.Reasoning))
		}
		if risk.Stance == types.StanceOppose && risk.Confidence >= g.cfg.RiskThreshold {
			return terminal(StateOutcomeEvaluation, types.VerdictReject,
				fmt.Sprintf("risk veto: oppose at confidence %.2f", risk.Confidence))
		}
	}

	switch {
	case rec.Outcome == types.OutcomeConsensusReached &&
		rec.Recommendation == types.RecommendSupport &&
		rec.AvgConfidence >= g.cfg.RiskThreshold:
		return terminal(StateOutcomeEvaluation, types.VerdictAccept,
			fmt.Sprintf("consensus support at confidence %.2f", rec.AvgConfidence))

	case rec.Outcome == types.OutcomeBoundedRiskTradeoff &&
		rec.AvgConfidence >= g.cfg.RiskThreshold:
		return terminal(StateOutcomeEvaluation, types.VerdictAcceptWithMitigation,
			fmt.Sprintf("bounded tradeoff at confidence %.2f", rec.AvgConfidence))

	default:
		return terminal(StateOutcomeEvaluation, types.VerdictDefer,
			fmt.Sprintf("no acceptance path: %s/%s at confidence %.2f",
				rec.Outcome, rec.Recommendation, rec.AvgConfidence))
	}
}

func terminal(from State, verdict types.Verdict, reason string) types.GateResult {
	return types.GateResult{
		FinalOutcome: verdict,
		Reason:       reason,
		State:        string(from),
	}
}

// reasoningCorpus joins the recommendation's reasoning with every
// position's, lowercased, in stable domain order.
func reasoningCorpus(rec types.CouncilRecommendation, positions map[string]types.Position) string {
	parts := []string{rec.Reasoning}

	domains := make([]string, 0, len(positions))
	for d := range positions {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		parts = append(parts, positions[d].Reasoning)
	}

	return strings.ToLower(strings.Join(parts, " "))
}

// firstMarker returns the first marker present in the corpus, or "".
func firstMarker(corpus string, markers []string) string {
	for _, m := range markers {
		if strings.Contains(corpus, m) {
			return m
		}
	}
	return ""
}

// countConnectives counts whole-word connective occurrences, so "but"
// inside "attribute" never counts.
func countConnectives(corpus string) int {
	count := 0
	for _, token := range strings.FieldsFunc(corpus, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
	}) {
		for _, c := range rationalizationConnectives {
			if token == c {
				count++
				break
			}
		}
	}
	return count
}
