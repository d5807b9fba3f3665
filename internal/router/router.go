// Package router maps a decision mode to the minister subset that sits for
// it and translates the aggregated recommendation into the mode's
// interpretation vocabulary. Pure mapping; the router holds no state.
package router

import (
	"github.com/normanking/divan/pkg/types"
)

// Interpretation strings per mode. Each mode owns a closed vocabulary.
const (
	InterpretDirectResponse = "direct_response"

	// war
	InterpretAggressiveProceed = "aggressive_proceed"
	InterpretDefensiveHold     = "defensive_hold_or_pivot"
	InterpretRedLineOverride   = "red_line_block_override_needed"

	// meeting
	InterpretStrongSupport  = "strong_consensus_support"
	InterpretStrongOppose   = "strong_consensus_oppose"
	InterpretMixedTradeoffs = "mixed_consensus_with_tradeoffs"

	// darbar
	InterpretDoctrineConsensus = "strong_doctrine_aligned_consensus"
	InterpretNotedDissent      = "consensus_with_noted_dissent"
	InterpretDeepDisagreement  = "deep_disagreement_defer_decision"
	InterpretRedLineBlocks     = "red_line_blocks_recommendation"
)

// Darbar consensus-strength thresholds.
const (
	darbarStrongBar  = 0.8
	darbarDissentBar = 0.6
)

// warMinisters is the fixed war-council bench.
var warMinisters = []string{"risk", "power", "grand_strategy", "technology", "timing"}

// domainMinisters maps a classified situation domain to the ministers who
// hear it in meeting mode.
var domainMinisters = map[string][]string{
	"finance":    {"finance", "commerce"},
	"legal":      {"law", "diplomacy"},
	"technical":  {"technology", "continuity"},
	"people":     {"personnel", "wellbeing"},
	"market":     {"commerce", "narrative", "reputation"},
	"security":   {"security", "intelligence"},
	"strategy":   {"grand_strategy", "power", "timing"},
	"health":     {"wellbeing"},
	"creative":   {"innovation", "narrative"},
	"operations": {"logistics", "continuity"},
	"general":    {"grand_strategy", "timing"},
}

// meetingPad fills a thin meeting up to the three-minister minimum.
var meetingPad = []string{"timing", "grand_strategy"}

const (
	meetingMin = 3
	meetingCap = 5
)

// RoutePlan names who sits for one decision.
type RoutePlan struct {
	Mode types.Mode

	// Direct marks quick mode: no council, answer immediately.
	Direct bool

	// All marks darbar: every voting minister, resolved by the caller
	// against the registry.
	All bool

	// IncludeJudges seats the non-voting judges for the record.
	IncludeJudges bool

	// Ministers is the explicit bench for war and meeting modes.
	Ministers []string
}

// Plan selects the bench for a mode. activeDomains are the classified
// situation domains, consumed by meeting mode only.
func Plan(mode types.Mode, activeDomains []string) RoutePlan {
	switch mode {
	case types.ModeQuick:
		return RoutePlan{Mode: mode, Direct: true}

	case types.ModeWar:
		bench := make([]string, len(warMinisters))
		copy(bench, warMinisters)
		return RoutePlan{Mode: mode, Ministers: bench}

	case types.ModeDarbar:
		return RoutePlan{Mode: mode, All: true, IncludeJudges: true}

	default:
		// Meeting, and the fallback for anything unrecognized: a small
		// bench with the risk minister always seated.
		return RoutePlan{Mode: types.ModeMeeting, Ministers: meetingBench(activeDomains)}
	}
}

// meetingBench maps active domains through the lookup table, dedupes,
// caps at five, and pads thin benches to three. Risk always sits.
func meetingBench(activeDomains []string) []string {
	bench := []string{"risk"}
	seated := map[string]bool{"risk": true}

	seat := func(domain string) {
		if len(bench) >= meetingCap || seated[domain] {
			return
		}
		seated[domain] = true
		bench = append(bench, domain)
	}

	for _, active := range activeDomains {
		for _, minister := range domainMinisters[active] {
			seat(minister)
		}
	}
	for _, minister := range meetingPad {
		if len(bench) >= meetingMin {
			break
		}
		seat(minister)
	}

	return bench
}

// Interpret translates the aggregated recommendation into the mode's
// vocabulary. Red lines dominate wherever the mode can express them.
func Interpret(mode types.Mode, rec types.CouncilRecommendation) string {
	switch mode {
	case types.ModeQuick:
		return InterpretDirectResponse

	case types.ModeWar:
		if len(rec.RedLineConcerns) > 0 {
			return InterpretRedLineOverride
		}
		if rec.Outcome == types.OutcomeConsensusReached && rec.Recommendation == types.RecommendSupport {
			return InterpretAggressiveProceed
		}
		// Splits and deadlocks hold: a war council does not advance on a
		// divided vote.
		return InterpretDefensiveHold

	case types.ModeDarbar:
		if len(rec.RedLineConcerns) > 0 {
			return InterpretRedLineBlocks
		}
		switch {
		case rec.ConsensusStrength >= darbarStrongBar:
			return InterpretDoctrineConsensus
		case rec.ConsensusStrength >= darbarDissentBar:
			return InterpretNotedDissent
		default:
			return InterpretDeepDisagreement
		}

	default: // meeting
		if rec.Outcome == types.OutcomeConsensusReached {
			if rec.Recommendation == types.RecommendSupport {
				return InterpretStrongSupport
			}
			return InterpretStrongOppose
		}
		return InterpretMixedTradeoffs
	}
}
