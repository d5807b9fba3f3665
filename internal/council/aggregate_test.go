package council

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/normanking/divan/pkg/types"
)

// votes builds a position map with the given stance counts. Domains are
// synthetic but stable: s00.., o00.., n00..
func votes(support, oppose, neutral int) map[string]types.Position {
	positions := make(map[string]types.Position)
	for i := 0; i < support; i++ {
		d := fmt.Sprintf("s%02d", i)
		positions[d] = types.Position{Domain: d, Stance: types.StanceSupport, Confidence: 0.8}
	}
	for i := 0; i < oppose; i++ {
		d := fmt.Sprintf("o%02d", i)
		positions[d] = types.Position{Domain: d, Stance: types.StanceOppose, Confidence: 0.7}
	}
	for i := 0; i < neutral; i++ {
		d := fmt.Sprintf("n%02d", i)
		positions[d] = types.Position{Domain: d, Stance: types.StanceNeutral, Confidence: 0.5}
	}
	return positions
}

func TestAggregate(t *testing.T) {
	t.Run("support supermajority", func(t *testing.T) {
		// 12 of 19 supporting clears the 0.6 bar.
		rec := Aggregate(votes(12, 4, 3), 0)

		if rec.Outcome != types.OutcomeConsensusReached {
			t.Errorf("outcome = %s", rec.Outcome)
		}
		if rec.Recommendation != types.RecommendSupport {
			t.Errorf("recommendation = %s", rec.Recommendation)
		}
		if want := 12.0 / 19.0; math.Abs(rec.ConsensusStrength-want) > 1e-9 {
			t.Errorf("strength = %v, want %v", rec.ConsensusStrength, want)
		}
		if want := (12*0.8 + 4*0.7 + 3*0.5) / 19.0; math.Abs(rec.AvgConfidence-want) > 1e-9 {
			t.Errorf("avg confidence = %v, want %v", rec.AvgConfidence, want)
		}
		if len(rec.DissentingMinisters) != 4 {
			t.Errorf("dissenting = %v, want the 4 opposers", rec.DissentingMinisters)
		}
		if len(rec.MinistersInvolved) != 19 {
			t.Errorf("involved = %d, want 19", len(rec.MinistersInvolved))
		}
	})

	t.Run("oppose supermajority", func(t *testing.T) {
		rec := Aggregate(votes(3, 13, 3), 0)

		if rec.Outcome != types.OutcomeConsensusReached || rec.Recommendation != types.RecommendOppose {
			t.Errorf("got %s/%s", rec.Outcome, rec.Recommendation)
		}
		if want := 13.0 / 19.0; math.Abs(rec.ConsensusStrength-want) > 1e-9 {
			t.Errorf("strength = %v, want %v", rec.ConsensusStrength, want)
		}
		if len(rec.DissentingMinisters) != 3 {
			t.Errorf("dissenting = %v, want the 3 supporters", rec.DissentingMinisters)
		}
	})

	t.Run("split becomes tradeoff", func(t *testing.T) {
		rec := Aggregate(votes(2, 2, 1), 0)

		if rec.Outcome != types.OutcomeBoundedRiskTradeoff {
			t.Errorf("outcome = %s", rec.Outcome)
		}
		if rec.Recommendation != types.RecommendSupportWithCaution {
			t.Errorf("recommendation = %s", rec.Recommendation)
		}
		if want := 2.0 / 5.0; math.Abs(rec.ConsensusStrength-want) > 1e-9 {
			t.Errorf("strength = %v, want %v", rec.ConsensusStrength, want)
		}
		if len(rec.DissentingMinisters) != 2 {
			t.Errorf("dissenting = %v, want the 2 opposers", rec.DissentingMinisters)
		}
	})

	t.Run("all neutral deadlocks", func(t *testing.T) {
		rec := Aggregate(votes(0, 0, 5), 0)

		if rec.Outcome != types.OutcomeDeadlocked || rec.Recommendation != types.RecommendDefer {
			t.Errorf("got %s/%s", rec.Outcome, rec.Recommendation)
		}
		if rec.ConsensusStrength != 0 {
			t.Errorf("strength = %v, want 0", rec.ConsensusStrength)
		}
		if len(rec.DissentingMinisters) != 0 {
			t.Errorf("dissenting = %v, nobody dissents from a deferral", rec.DissentingMinisters)
		}
	})

	t.Run("weak one-sided vote deadlocks", func(t *testing.T) {
		// A lone supporter among neutrals is not consensus and not a split.
		rec := Aggregate(votes(1, 0, 4), 0)

		if rec.Outcome != types.OutcomeDeadlocked || rec.Recommendation != types.RecommendDefer {
			t.Errorf("got %s/%s", rec.Outcome, rec.Recommendation)
		}
	})

	t.Run("empty council", func(t *testing.T) {
		rec := Aggregate(map[string]types.Position{}, 0)

		if rec.Outcome != types.OutcomeDeadlocked || rec.Recommendation != types.RecommendDefer {
			t.Errorf("got %s/%s", rec.Outcome, rec.Recommendation)
		}
		if rec.AvgConfidence != 0.5 {
			t.Errorf("avg confidence = %v, want the 0.5 default", rec.AvgConfidence)
		}
		if rec.MinistersInvolved == nil || len(rec.MinistersInvolved) != 0 {
			t.Errorf("involved = %#v, want an empty non-nil slice", rec.MinistersInvolved)
		}
	})

	t.Run("ministers involved sorted", func(t *testing.T) {
		positions := map[string]types.Position{
			"timing":  {Domain: "timing", Stance: types.StanceSupport, Confidence: 0.8},
			"finance": {Domain: "finance", Stance: types.StanceSupport, Confidence: 0.8},
			"risk":    {Domain: "risk", Stance: types.StanceSupport, Confidence: 0.8},
		}

		rec := Aggregate(positions, 0)

		want := []string{"finance", "risk", "timing"}
		for i := range want {
			if rec.MinistersInvolved[i] != want[i] {
				t.Fatalf("involved = %v, want %v", rec.MinistersInvolved, want)
			}
		}
	})
}

func TestAggregateConfiguredThreshold(t *testing.T) {
	// 12 of 19 is 0.63: consensus under the default bar, not under 0.75.
	positions := votes(12, 4, 3)

	rec := Aggregate(positions, 0.75)
	if rec.Outcome != types.OutcomeBoundedRiskTradeoff {
		t.Errorf("outcome = %s, 0.63 support must not clear a 0.75 bar", rec.Outcome)
	}
	if rec.Recommendation != types.RecommendSupportWithCaution {
		t.Errorf("recommendation = %s", rec.Recommendation)
	}

	rec = Aggregate(positions, 0.6)
	if rec.Outcome != types.OutcomeConsensusReached || rec.Recommendation != types.RecommendSupport {
		t.Errorf("got %s/%s, want consensus support at the explicit 0.6 bar", rec.Outcome, rec.Recommendation)
	}

	// A lowered bar promotes a plurality that the default would call a split.
	rec = Aggregate(votes(5, 4, 1), 0.5)
	if rec.Outcome != types.OutcomeConsensusReached || rec.Recommendation != types.RecommendSupport {
		t.Errorf("got %s/%s, want consensus support at a 0.5 bar", rec.Outcome, rec.Recommendation)
	}
}

func TestAggregateRedLine(t *testing.T) {
	t.Run("one red line blocks a majority", func(t *testing.T) {
		positions := votes(12, 0, 2)
		positions["risk"] = types.Position{
			Domain:           "risk",
			Stance:           types.StanceOppose,
			Confidence:       0.95,
			Reasoning:        `doctrine prohibition "bet the company" present in the input`,
			RedLineTriggered: true,
		}

		rec := Aggregate(positions, 0)

		if rec.Outcome != types.OutcomeConsensusReached {
			t.Errorf("outcome = %s", rec.Outcome)
		}
		if rec.Recommendation != types.RecommendOppose {
			t.Errorf("recommendation = %s, a red line must override the majority", rec.Recommendation)
		}
		if rec.ConsensusStrength != 0.95 {
			t.Errorf("strength = %v, want 0.95", rec.ConsensusStrength)
		}
		if !strings.Contains(rec.Reasoning, "risk") {
			t.Errorf("reasoning %q does not name the triggering minister", rec.Reasoning)
		}
		if len(rec.RedLineConcerns) != 1 || !strings.Contains(rec.RedLineConcerns[0], "bet the company") {
			t.Errorf("red line concerns = %v", rec.RedLineConcerns)
		}
		if len(rec.DissentingMinisters) != 12 {
			t.Errorf("dissenting = %d, want the 12 supporters", len(rec.DissentingMinisters))
		}
	})

	t.Run("all triggering ministers listed", func(t *testing.T) {
		positions := votes(5, 0, 0)
		for _, d := range []string{"security", "risk"} {
			positions[d] = types.Position{
				Domain: d, Stance: types.StanceOppose, Confidence: 0.95,
				Reasoning: "prohibition present", RedLineTriggered: true,
			}
		}

		rec := Aggregate(positions, 0)

		if len(rec.RedLineConcerns) != 2 {
			t.Fatalf("red line concerns = %v, want both ministers", rec.RedLineConcerns)
		}
		// Sorted by domain.
		if !strings.HasPrefix(rec.RedLineConcerns[0], "risk:") || !strings.HasPrefix(rec.RedLineConcerns[1], "security:") {
			t.Errorf("red line concerns = %v", rec.RedLineConcerns)
		}
		if !strings.Contains(rec.Reasoning, "risk") || !strings.Contains(rec.Reasoning, "security") {
			t.Errorf("reasoning %q", rec.Reasoning)
		}
	})
}

// TestCouncilRedLineEndToEnd drives the real roster through consultation and
// aggregation: two prohibitions in the input must block everything else.
func TestCouncilRedLineEndToEnd(t *testing.T) {
	reg := testRegistry(t)

	in := Input{Text: "We should bet the company and share credentials to hit the deadline."}
	res := Consult(context.Background(), reg.Voting(), in,
		ConsultConfig{PoolSize: 8, AdvisorTimeout: time.Second})

	if len(res.Omitted) != 0 {
		t.Fatalf("omitted = %v, want none", res.Omitted)
	}
	if len(res.Positions) != 19 {
		t.Fatalf("positions = %d, want 19", len(res.Positions))
	}

	rec := Aggregate(res.Positions, 0)

	if rec.Recommendation != types.RecommendOppose {
		t.Errorf("recommendation = %s, want oppose", rec.Recommendation)
	}
	if rec.ConsensusStrength != 0.95 {
		t.Errorf("strength = %v, want 0.95", rec.ConsensusStrength)
	}

	joined := strings.Join(rec.RedLineConcerns, " | ")
	if !strings.Contains(joined, "bet the company") || !strings.Contains(joined, "share credentials") {
		t.Errorf("red line concerns = %v, want both prohibitions cited", rec.RedLineConcerns)
	}
}
