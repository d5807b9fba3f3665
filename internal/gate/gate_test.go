package gate

import (
	"strings"
	"testing"

	"github.com/normanking/divan/pkg/types"
)

func supportRec(avgConf, strength float64) types.CouncilRecommendation {
	return types.CouncilRecommendation{
		Outcome:           types.OutcomeConsensusReached,
		Recommendation:    types.RecommendSupport,
		AvgConfidence:     avgConf,
		ConsensusStrength: strength,
		Reasoning:         "support 12 of 19 (oppose 4, neutral 3)",
	}
}

func riskSupport() map[string]types.Position {
	return map[string]types.Position{
		"risk": {Domain: "risk", Stance: types.StanceSupport, Confidence: 0.7, Reasoning: "downside is bounded"},
	}
}

func TestGateAccept(t *testing.T) {
	g := New(DefaultConfig())

	res := g.Evaluate(supportRec(0.75, 0.7), riskSupport())

	if res.FinalOutcome != types.VerdictAccept {
		t.Fatalf("verdict = %s, want accept (%s)", res.FinalOutcome, res.Reason)
	}
	if res.State != string(StateOutcomeEvaluation) {
		t.Errorf("state = %s", res.State)
	}
	if !strings.Contains(res.Reason, "consensus support") {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestGateRiskVeto(t *testing.T) {
	g := New(DefaultConfig())

	t.Run("red line forces reject", func(t *testing.T) {
		positions := map[string]types.Position{
			"risk": {Domain: "risk", Stance: types.StanceOppose, Confidence: 0.95,
				Reasoning: "prohibition present", RedLineTriggered: true},
		}

		res := g.Evaluate(supportRec(0.9, 0.8), positions)

		if res.FinalOutcome != types.VerdictReject {
			t.Fatalf("verdict = %s, want reject", res.FinalOutcome)
		}
		if !strings.Contains(res.Reason, "risk veto") {
			t.Errorf("reason = %q", res.Reason)
		}
	})

	t.Run("confident oppose forces reject", func(t *testing.T) {
		positions := map[string]types.Position{
			"risk": {Domain: "risk", Stance: types.StanceOppose, Confidence: 0.8,
				Reasoning: "loss is unbounded"},
		}

		res := g.Evaluate(supportRec(0.9, 0.8), positions)

		if res.FinalOutcome != types.VerdictReject {
			t.Fatalf("verdict = %s, want reject over the council's support", res.FinalOutcome)
		}
	})

	t.Run("soft oppose does not veto", func(t *testing.T) {
		positions := map[string]types.Position{
			"risk": {Domain: "risk", Stance: types.StanceOppose, Confidence: 0.5,
				Reasoning: "mild reservations"},
		}

		res := g.Evaluate(supportRec(0.8, 0.7), positions)

		if res.FinalOutcome != types.VerdictAccept {
			t.Fatalf("verdict = %s, want accept (%s)", res.FinalOutcome, res.Reason)
		}
	})

	t.Run("only the risk minister vetoes", func(t *testing.T) {
		positions := map[string]types.Position{
			"security": {Domain: "security", Stance: types.StanceOppose, Confidence: 0.95,
				Reasoning: "access concerns"},
		}

		res := g.Evaluate(supportRec(0.8, 0.7), positions)

		if res.FinalOutcome != types.VerdictAccept {
			t.Fatalf("verdict = %s, want accept", res.FinalOutcome)
		}
	})
}

func TestGateMitigation(t *testing.T) {
	g := New(DefaultConfig())
	rec := types.CouncilRecommendation{
		Outcome:           types.OutcomeBoundedRiskTradeoff,
		Recommendation:    types.RecommendSupportWithCaution,
		AvgConfidence:     0.7,
		ConsensusStrength: 0.4,
		Reasoning:         "split council: support 2 vs oppose 2 of 5",
	}

	res := g.Evaluate(rec, riskSupport())
	if res.FinalOutcome != types.VerdictAcceptWithMitigation {
		t.Fatalf("verdict = %s, want accept_with_mitigation (%s)", res.FinalOutcome, res.Reason)
	}

	rec.AvgConfidence = 0.69
	res = g.Evaluate(rec, riskSupport())
	if res.FinalOutcome != types.VerdictDefer {
		t.Fatalf("verdict = %s, want defer below the threshold", res.FinalOutcome)
	}
}

func TestGateDefer(t *testing.T) {
	g := New(DefaultConfig())

	t.Run("consensus oppose defers without a veto", func(t *testing.T) {
		rec := types.CouncilRecommendation{
			Outcome:           types.OutcomeConsensusReached,
			Recommendation:    types.RecommendOppose,
			AvgConfidence:     0.8,
			ConsensusStrength: 0.7,
			Reasoning:         "oppose 13 of 19 (support 3, neutral 3)",
		}

		res := g.Evaluate(rec, nil)

		if res.FinalOutcome != types.VerdictDefer {
			t.Fatalf("verdict = %s, want defer", res.FinalOutcome)
		}
		if !strings.Contains(res.Reason, "no acceptance path") {
			t.Errorf("reason = %q", res.Reason)
		}
	})

	t.Run("deadlock defers", func(t *testing.T) {
		rec := types.CouncilRecommendation{
			Outcome:           types.OutcomeDeadlocked,
			Recommendation:    types.RecommendDefer,
			AvgConfidence:     0.5,
			ConsensusStrength: 0,
			Reasoning:         "no decisive signal from 5 ministers",
		}

		if res := g.Evaluate(rec, nil); res.FinalOutcome != types.VerdictDefer {
			t.Fatalf("verdict = %s, want defer", res.FinalOutcome)
		}
	})

	t.Run("weak confidence defers a supported consensus", func(t *testing.T) {
		if res := g.Evaluate(supportRec(0.6, 0.7), riskSupport()); res.FinalOutcome != types.VerdictDefer {
			t.Fatalf("verdict = %s, want defer", res.FinalOutcome)
		}
	})
}

func TestGateConstraintCheck(t *testing.T) {
	positions := map[string]types.Position{
		"risk": {Domain: "risk", Stance: types.StanceSupport, Confidence: 0.8,
			Reasoning: "anyone opposing this should be ashamed of their timidity"},
	}

	t.Run("moralizing deferred when doctrine forbids it", func(t *testing.T) {
		g := New(Config{ForbidMoralizing: true})

		res := g.Evaluate(supportRec(0.8, 0.7), positions)

		if res.FinalOutcome != types.VerdictDefer {
			t.Fatalf("verdict = %s, want defer", res.FinalOutcome)
		}
		if res.State != string(StateConstraintCheck) {
			t.Errorf("state = %s", res.State)
		}
		if !strings.Contains(res.Reason, "ashamed") {
			t.Errorf("reason %q does not cite the marker", res.Reason)
		}
	})

	t.Run("same language passes when doctrine allows it", func(t *testing.T) {
		g := New(DefaultConfig())

		res := g.Evaluate(supportRec(0.8, 0.7), positions)

		if res.FinalOutcome != types.VerdictAccept {
			t.Fatalf("verdict = %s, want accept (%s)", res.FinalOutcome, res.Reason)
		}
	})

	t.Run("recommendation reasoning scanned too", func(t *testing.T) {
		g := New(Config{ForbidMoralizing: true})
		rec := supportRec(0.8, 0.7)
		rec.Reasoning = "the righteous course is obvious"

		res := g.Evaluate(rec, riskSupport())

		if res.FinalOutcome != types.VerdictDefer || res.State != string(StateConstraintCheck) {
			t.Fatalf("got %s at %s, want defer at constraint_check", res.FinalOutcome, res.State)
		}
	})
}

func TestGateDistortionCheck(t *testing.T) {
	g := New(DefaultConfig())

	t.Run("confident disagreement defers", func(t *testing.T) {
		res := g.Evaluate(supportRec(0.8, 0.2), riskSupport())

		if res.FinalOutcome != types.VerdictDefer {
			t.Fatalf("verdict = %s, want defer", res.FinalOutcome)
		}
		if res.State != string(StateDistortionCheck) {
			t.Errorf("state = %s", res.State)
		}
		if !strings.Contains(res.Reason, "emotional distortion") {
			t.Errorf("reason = %q", res.Reason)
		}
	})

	t.Run("bars are strict", func(t *testing.T) {
		// Exactly 0.7 confidence is not "over" the bar.
		if res := g.Evaluate(supportRec(0.7, 0.2), riskSupport()); res.FinalOutcome != types.VerdictAccept {
			t.Errorf("confidence at the bar: verdict = %s, want accept (%s)", res.FinalOutcome, res.Reason)
		}
		// Exactly 0.3 strength is not "under" it.
		if res := g.Evaluate(supportRec(0.9, 0.3), riskSupport()); res.FinalOutcome != types.VerdictAccept {
			t.Errorf("strength at the bar: verdict = %s, want accept", res.FinalOutcome)
		}
	})
}

func TestGatePatternCheck(t *testing.T) {
	g := New(DefaultConfig())

	t.Run("three connectives defer", func(t *testing.T) {
		rec := supportRec(0.8, 0.7)
		rec.Reasoning = "the case is strong but the timing is tight"
		positions := map[string]types.Position{
			"risk": {Domain: "risk", Stance: types.StanceSupport, Confidence: 0.8,
				Reasoning: "however the hedge holds despite the spread"},
		}

		res := g.Evaluate(rec, positions)

		if res.FinalOutcome != types.VerdictDefer {
			t.Fatalf("verdict = %s, want defer", res.FinalOutcome)
		}
		if res.State != string(StatePatternCheck) {
			t.Errorf("state = %s", res.State)
		}
		if !strings.Contains(res.Reason, "pattern recurrence") {
			t.Errorf("reason = %q", res.Reason)
		}
	})

	t.Run("two connectives pass", func(t *testing.T) {
		rec := supportRec(0.8, 0.7)
		rec.Reasoning = "strong support but thin margins; however the floor holds"

		if res := g.Evaluate(rec, riskSupport()); res.FinalOutcome != types.VerdictAccept {
			t.Fatalf("verdict = %s, want accept (%s)", res.FinalOutcome, res.Reason)
		}
	})

	t.Run("whole words only", func(t *testing.T) {
		rec := supportRec(0.8, 0.7)
		rec.Reasoning = "the rebuttal lists butter attributes and exceptions in buts"

		res := g.Evaluate(rec, riskSupport())

		if res.FinalOutcome != types.VerdictAccept {
			t.Fatalf("verdict = %s, embedded substrings must not count (%s)", res.FinalOutcome, res.Reason)
		}
	})

	t.Run("limit configurable", func(t *testing.T) {
		loose := New(Config{RationalizationLimit: 5})
		rec := supportRec(0.8, 0.7)
		rec.Reasoning = "but however despite although"

		if res := loose.Evaluate(rec, riskSupport()); res.FinalOutcome != types.VerdictAccept {
			t.Fatalf("verdict = %s, want accept under the loose limit", res.FinalOutcome)
		}
	})
}

func TestGateCustomThreshold(t *testing.T) {
	g := New(Config{RiskThreshold: 0.9})

	if res := g.Evaluate(supportRec(0.8, 0.7), riskSupport()); res.FinalOutcome != types.VerdictDefer {
		t.Errorf("verdict = %s, want defer under the raised threshold", res.FinalOutcome)
	}

	// An oppose below the raised threshold no longer vetoes.
	positions := map[string]types.Position{
		"risk": {Domain: "risk", Stance: types.StanceOppose, Confidence: 0.85, Reasoning: "reservations"},
	}
	if res := g.Evaluate(supportRec(0.95, 0.8), positions); res.FinalOutcome != types.VerdictAccept {
		t.Errorf("verdict = %s, want accept (%s)", res.FinalOutcome, res.Reason)
	}
}
