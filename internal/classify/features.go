package classify

import (
	"regexp"
	"strings"

	"github.com/normanking/divan/pkg/types"
)

// Feature markers. Each set is a whole-word alternation matched against
// lowercased text; hit counts drive both the discrete classes and the
// numeric scores.
var (
	irreversibleMarkers = markerSet(
		"permanent", "permanently", "irreversible", "forever",
		"no going back", "no way back", "cannot undo", "can't undo",
		"one way door", "one-way door", "final", "burn the boats",
		"demolish", "for good")
	reversibleMarkers = markerSet(
		"trial", "pilot", "experiment", "reversible", "undo",
		"roll back", "rollback", "temporary", "test run", "prototype",
		"try it out", "see how it goes")

	riskHighMarkers = markerSet(
		"bet the company", "all in", "everything we have", "bankrupt",
		"bankruptcy", "ruin", "catastrophic", "existential",
		"life savings", "cannot afford to lose")
	riskLowMarkers = markerSet(
		"low risk", "low-risk", "small bet", "minor", "trivial",
		"cheap", "pocket change", "safe")

	downsideMarkers = markerSet(
		"lose everything", "wipe out", "wiped out", "unrecoverable",
		"cannot recover", "no second chance", "career ending",
		"career-ending", "point of no return")

	fragilityMarkers = markerSet(
		"fragile", "thin margin", "thin margins", "no slack", "no buffer",
		"single point of failure", "overextended", "stretched thin",
		"one supplier", "one customer", "living paycheck to paycheck")

	pressureMarkers = markerSet(
		"deadline", "today", "tonight", "immediately", "urgent",
		"urgently", "asap", "now or never", "expires", "expiring",
		"closing window", "last chance", "by tomorrow")
)

// Score bases and per-hit steps. Scores start neutral and move a fixed
// step per marker hit, clamped to [0,1].
const (
	irreversibilityBase = 0.3
	downsideBase        = 0.3
	fragilityBase       = 0.2
	pressureBase        = 0.2

	markerStep     = 0.3
	reversibleStep = 0.2

	// loadStep scales how much frame emotional load feeds time pressure.
	loadStep = 0.2

	// highIrreversibility is the score at which a situation counts as
	// effectively irreversible even when no class marker said so.
	highIrreversibility = 0.7
)

// ExtractFeatures reads reversibility, risk, downside, fragility, and
// pressure signals out of raw text. The frame contributes emotional load
// to time pressure; everything else is text-driven.
func ExtractFeatures(text string, frame types.SituationFrame) types.SituationFeatures {
	lower := strings.ToLower(text)

	irrHits := countHits(irreversibleMarkers, lower)
	revHits := countHits(reversibleMarkers, lower)
	highHits := countHits(riskHighMarkers, lower)
	lowHits := countHits(riskLowMarkers, lower)
	downHits := countHits(downsideMarkers, lower)
	fragHits := countHits(fragilityMarkers, lower)
	pressHits := countHits(pressureMarkers, lower)

	return types.SituationFeatures{
		Reversibility:        reversibilityClass(irrHits, revHits),
		RiskLevel:            riskClass(highHits, lowHits),
		IrreversibilityScore: clamp01(irreversibilityBase + markerStep*float64(irrHits) - reversibleStep*float64(revHits)),
		DownsideAsymmetry:    clamp01(downsideBase + markerStep*float64(downHits)),
		Fragility:            clamp01(fragilityBase + markerStep*float64(fragHits)),
		TimePressure:         clamp01(pressureBase + markerStep*float64(pressHits) + loadStep*frame.EmotionalLoad),
	}
}

func countHits(re *regexp.Regexp, lower string) int {
	return len(re.FindAllString(lower, -1))
}

// reversibilityClass resolves competing markers. Irreversible language wins
// ties; no markers at all reads as partial.
func reversibilityClass(irrHits, revHits int) string {
	switch {
	case irrHits == 0 && revHits == 0:
		return types.ReversibilityPartial
	case irrHits >= revHits:
		return types.ReversibilityIrreversible
	default:
		return types.ReversibilityReversible
	}
}

// riskClass mirrors reversibilityClass: high-risk language wins ties, no
// markers reads as medium.
func riskClass(highHits, lowHits int) string {
	switch {
	case highHits == 0 && lowHits == 0:
		return types.RiskMedium
	case highHits >= lowHits:
		return types.RiskHigh
	default:
		return types.RiskLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
