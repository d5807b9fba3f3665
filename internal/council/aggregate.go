package council

import (
	"fmt"
	"sort"
	"strings"

	"github.com/normanking/divan/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// AGGREGATION
// Ordered rules over the voting positions. Rule order is load-bearing: a red
// line pre-empts vote counting entirely.
// ═══════════════════════════════════════════════════════════════════════════════

// defaultSupermajority is the consensus fraction used when the caller
// passes no threshold.
const defaultSupermajority = 0.6

// Aggregate folds the voting positions into a single recommendation.
// threshold is the vote fraction a stance needs for consensus; zero or
// below falls back to the 0.6 default. Judges and omitted ministers never
// reach this function.
func Aggregate(positions map[string]types.Position, threshold float64) types.CouncilRecommendation {
	if threshold <= 0 {
		threshold = defaultSupermajority
	}

	involved := make([]string, 0, len(positions))
	for domain := range positions {
		involved = append(involved, domain)
	}
	sort.Strings(involved)

	rec := types.CouncilRecommendation{
		AvgConfidence:     averageConfidence(positions),
		MinistersInvolved: involved,
	}

	// Rule 1: any red line blocks outright. No vote is counted.
	if triggering := redLineDomains(positions); len(triggering) > 0 {
		rec.Outcome = types.OutcomeConsensusReached
		rec.Recommendation = types.RecommendOppose
		rec.ConsensusStrength = 0.95
		rec.Reasoning = fmt.Sprintf("red line raised by %s", strings.Join(triggering, ", "))
		for _, domain := range triggering {
			rec.RedLineConcerns = append(rec.RedLineConcerns,
				fmt.Sprintf("%s: %s", domain, positions[domain].Reasoning))
		}
		rec.DissentingMinisters = dissenters(positions, rec.Recommendation)
		return rec
	}

	var support, oppose, neutral int
	for _, pos := range positions {
		switch pos.Stance {
		case types.StanceSupport:
			support++
		case types.StanceOppose:
			oppose++
		default:
			neutral++
		}
	}
	total := len(positions)

	switch {
	// Rule 2: support supermajority.
	case support > oppose && float64(support) >= threshold*float64(total):
		rec.Outcome = types.OutcomeConsensusReached
		rec.Recommendation = types.RecommendSupport
		rec.ConsensusStrength = float64(support) / float64(total)
		rec.Reasoning = fmt.Sprintf("support %d of %d (oppose %d, neutral %d)", support, total, oppose, neutral)

	// Rule 3: oppose supermajority.
	case oppose > support && float64(oppose) >= threshold*float64(total):
		rec.Outcome = types.OutcomeConsensusReached
		rec.Recommendation = types.RecommendOppose
		rec.ConsensusStrength = float64(oppose) / float64(total)
		rec.Reasoning = fmt.Sprintf("oppose %d of %d (support %d, neutral %d)", oppose, total, support, neutral)

	// Rule 4: a genuine split is a tradeoff, not a deadlock.
	case support > 0 && oppose > 0:
		rec.Outcome = types.OutcomeBoundedRiskTradeoff
		rec.Recommendation = types.RecommendSupportWithCaution
		rec.ConsensusStrength = float64(max(support, oppose)) / float64(total)
		rec.Reasoning = fmt.Sprintf("split council: support %d vs oppose %d of %d", support, oppose, total)

	// Rule 5: nothing decisive either way.
	default:
		rec.Outcome = types.OutcomeDeadlocked
		rec.Recommendation = types.RecommendDefer
		rec.ConsensusStrength = 0
		rec.Reasoning = fmt.Sprintf("no decisive signal from %d ministers (support %d, oppose %d, neutral %d)",
			total, support, oppose, neutral)
	}

	rec.DissentingMinisters = dissenters(positions, rec.Recommendation)
	return rec
}

// averageConfidence is the mean over every position, or 0.5 when the
// council returned nothing.
func averageConfidence(positions map[string]types.Position) float64 {
	if len(positions) == 0 {
		return 0.5
	}
	var sum float64
	for _, pos := range positions {
		sum += pos.Confidence
	}
	return sum / float64(len(positions))
}

// redLineDomains returns the triggering domains, sorted.
func redLineDomains(positions map[string]types.Position) []string {
	var domains []string
	for domain, pos := range positions {
		if pos.RedLineTriggered {
			domains = append(domains, domain)
		}
	}
	sort.Strings(domains)
	return domains
}

// dissenters lists the ministers whose stance opposes the final
// recommendation. Nobody dissents from a deferral.
func dissenters(positions map[string]types.Position, rec types.Recommendation) []string {
	var against types.Stance
	switch rec {
	case types.RecommendSupport, types.RecommendSupportWithCaution:
		against = types.StanceOppose
	case types.RecommendOppose:
		against = types.StanceSupport
	default:
		return nil
	}

	var out []string
	for domain, pos := range positions {
		if pos.Stance == against {
			out = append(out, domain)
		}
	}
	sort.Strings(out)
	return out
}
