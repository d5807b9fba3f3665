// Package learning turns observed decision outcomes into bounded
// knowledge-type priors. Every weight it produces stays inside
// [types.WeightFloor, types.WeightCeil]; nothing downstream re-checks.
package learning

import (
	"github.com/normanking/divan/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// OUTCOME INTERPRETATION
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// recoveryLongDays marks a recovery horizon as long.
	recoveryLongDays = 90

	// regretHighBar marks an outcome as high-regret.
	regretHighBar = 0.6
)

// OutcomeInterpretation is the label extracted from one recorded outcome.
type OutcomeInterpretation struct {
	Success         bool
	Regret          float64 // clamped to [0, 1]
	RecoveryLong    bool
	SecondaryDamage bool
}

// InterpretOutcome reduces a raw outcome record to the flags the weight
// rules consume.
func InterpretOutcome(o types.OutcomeRecord) OutcomeInterpretation {
	return OutcomeInterpretation{
		Success:         o.Success,
		Regret:          clamp01(o.RegretScore),
		RecoveryLong:    o.RecoveryTimeDays > recoveryLongDays,
		SecondaryDamage: o.SecondaryDamage,
	}
}

// Severity scores how much a situation's outcome should move the weights.
// Irreversibility dominates; time pressure barely registers.
func Severity(f types.SituationFeatures) float64 {
	s := 0.4*f.IrreversibilityScore +
		0.3*f.DownsideAsymmetry +
		0.2*f.Fragility +
		0.1*f.TimePressure
	return clamp01(s)
}

// ═══════════════════════════════════════════════════════════════════════════════
// WEIGHT GENERATION
// ═══════════════════════════════════════════════════════════════════════════════

// GenerateTypeWeights labels one (situation, usage, outcome) observation
// with the type weights it argues for. Rules run in a fixed order, each
// delta scaled by situation severity, and the result is clamped into the
// safety band before it leaves this function. A zero-severity situation
// teaches nothing.
func GenerateTypeWeights(features types.SituationFeatures, usage types.KnowledgeUsage, outcome types.OutcomeRecord) types.TypeWeights {
	w := types.NeutralTypeWeights()
	interp := InterpretOutcome(outcome)
	sev := Severity(features)
	irrev := irreversible(features)
	failed := !interp.Success

	// Failure in an irreversible situation argues for more caution.
	if failed && irrev {
		w.Warning += 0.30 * sev
		w.Principle += 0.20 * sev
	}
	// Rules that led into an irreversible failure were too rigid.
	if failed && irrev && usage.RuleHeavy {
		w.Rule -= 0.20 * sev
	}
	// Advice that led a failure was bad advice.
	if failed && usage.AdviceLed {
		w.Advice -= 0.20 * sev
	}
	// Failing with almost nothing to go on discounts unverified claims.
	if failed && usage.LowInformation {
		w.Claim -= 0.20 * sev
	}
	// Surviving an irreversible situation credits the principles used.
	if interp.Success && irrev {
		w.Principle += 0.15 * sev
	}
	// Warnings that paid off over a long horizon earn weight.
	if interp.Success && usage.WarningAided && interp.RecoveryLong {
		w.Warning += 0.15 * sev
	}
	// Rule-led success in a low-risk setting credits the rules.
	if interp.Success && features.RiskLevel == types.RiskLow && usage.RuleHeavy {
		w.Rule += 0.15 * sev
	}
	// High regret discounts the prescriptive types.
	if interp.Regret > regretHighBar {
		w.Advice -= 0.15 * sev
		w.Rule -= 0.15 * sev
	}
	// A long recovery argues for caution next time.
	if interp.RecoveryLong {
		w.Warning += 0.20 * sev
		w.Principle += 0.15 * sev
	}
	// Secondary damage means the guiding principles missed something.
	if interp.SecondaryDamage {
		w.Principle -= 0.10 * sev
	}

	w.Clamp()
	return w
}

// irreversible treats either the discrete class or a high irreversibility
// score as the irreversible case.
func irreversible(f types.SituationFeatures) bool {
	return f.Reversibility == types.ReversibilityIrreversible ||
		f.IrreversibilityScore >= irreversibilityHighBar
}

// ═══════════════════════════════════════════════════════════════════════════════
// SITUATION BUCKETS
// ═══════════════════════════════════════════════════════════════════════════════

// irreversibilityHighBar splits the irreversibility score into the hash's
// high/low axis.
const irreversibilityHighBar = 0.7

// SituationHash buckets a situation on three discretized axes:
// reversibility class, risk class, and irreversibility score above or
// below the high bar. Unrecognized classes fall to the middle so a
// malformed record still lands in a real bucket.
func SituationHash(f types.SituationFeatures) string {
	rev := f.Reversibility
	switch rev {
	case types.ReversibilityReversible, types.ReversibilityPartial, types.ReversibilityIrreversible:
	default:
		rev = types.ReversibilityPartial
	}

	risk := f.RiskLevel
	switch risk {
	case types.RiskLow, types.RiskMedium, types.RiskHigh:
	default:
		risk = types.RiskMedium
	}

	irrev := "irrev_low"
	if f.IrreversibilityScore >= irreversibilityHighBar {
		irrev = "irrev_high"
	}

	return rev + "|" + risk + "|" + irrev
}

// ═══════════════════════════════════════════════════════════════════════════════
// USAGE RECONSTRUCTION
// ═══════════════════════════════════════════════════════════════════════════════

// UsageFromTypes derives the usage flags from per-type counts of the
// knowledge a decision consumed. Rule-heavy means rules are at least half
// the pull; advice-led means advice strictly outnumbers every other type.
func UsageFromTypes(counts map[types.KnowledgeType]int) types.KnowledgeUsage {
	total := 0
	for _, n := range counts {
		total += n
	}

	usage := types.KnowledgeUsage{
		TypeCounts:     counts,
		LowInformation: total <= 1,
	}
	if total == 0 {
		return usage
	}

	rules := counts[types.TypeRule]
	usage.RuleHeavy = rules > 0 && rules*2 >= total
	usage.WarningAided = counts[types.TypeWarning] > 0

	advice := counts[types.TypeAdvice]
	led := advice > 0
	for t, n := range counts {
		if t != types.TypeAdvice && n >= advice {
			led = false
			break
		}
	}
	usage.AdviceLed = led

	return usage
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
