package router

import (
	"testing"

	"github.com/normanking/divan/pkg/types"
)

func benchEquals(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("bench = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bench = %v, want %v", got, want)
		}
	}
}

func TestPlanQuick(t *testing.T) {
	plan := Plan(types.ModeQuick, []string{"finance"})

	if !plan.Direct {
		t.Error("quick mode must be direct")
	}
	if len(plan.Ministers) != 0 || plan.All || plan.IncludeJudges {
		t.Errorf("quick mode seats nobody, got %+v", plan)
	}
}

func TestPlanWar(t *testing.T) {
	plan := Plan(types.ModeWar, []string{"health"})

	benchEquals(t, plan.Ministers, []string{"risk", "power", "grand_strategy", "technology", "timing"})
	if plan.Direct || plan.All || plan.IncludeJudges {
		t.Errorf("war bench is fixed and judge-free, got %+v", plan)
	}
}

func TestPlanDarbar(t *testing.T) {
	plan := Plan(types.ModeDarbar, nil)

	if !plan.All || !plan.IncludeJudges {
		t.Errorf("darbar seats the full court, got %+v", plan)
	}
	if plan.Direct || len(plan.Ministers) != 0 {
		t.Errorf("darbar has no explicit bench, got %+v", plan)
	}
}

func TestPlanMeeting(t *testing.T) {
	cases := []struct {
		name    string
		domains []string
		want    []string
	}{
		{
			name:    "two domains fill the bench",
			domains: []string{"finance", "legal"},
			want:    []string{"risk", "finance", "commerce", "law", "diplomacy"},
		},
		{
			name:    "thin domain padded to three",
			domains: []string{"health"},
			want:    []string{"risk", "wellbeing", "timing"},
		},
		{
			name:    "no domains falls back to the pad",
			domains: nil,
			want:    []string{"risk", "timing", "grand_strategy"},
		},
		{
			name:    "unknown domain ignored",
			domains: []string{"astrology"},
			want:    []string{"risk", "timing", "grand_strategy"},
		},
		{
			name:    "bench capped at five",
			domains: []string{"strategy", "market"},
			want:    []string{"risk", "grand_strategy", "power", "timing", "commerce"},
		},
		{
			name:    "duplicate ministers seated once",
			domains: []string{"strategy", "general"},
			want:    []string{"risk", "grand_strategy", "power", "timing"},
		},
		{
			name:    "risk seated even when unmapped",
			domains: []string{"security"},
			want:    []string{"risk", "security", "intelligence"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := Plan(types.ModeMeeting, tc.domains)

			if plan.Mode != types.ModeMeeting || plan.Direct || plan.All || plan.IncludeJudges {
				t.Errorf("plan flags wrong: %+v", plan)
			}
			benchEquals(t, plan.Ministers, tc.want)

			if n := len(plan.Ministers); n < 3 || n > 5 {
				t.Errorf("bench size = %d, want 3..5", n)
			}
		})
	}
}

func TestInterpret(t *testing.T) {
	support := types.CouncilRecommendation{
		Outcome:           types.OutcomeConsensusReached,
		Recommendation:    types.RecommendSupport,
		ConsensusStrength: 0.7,
	}
	oppose := types.CouncilRecommendation{
		Outcome:           types.OutcomeConsensusReached,
		Recommendation:    types.RecommendOppose,
		ConsensusStrength: 0.7,
	}
	redLine := types.CouncilRecommendation{
		Outcome:           types.OutcomeConsensusReached,
		Recommendation:    types.RecommendOppose,
		ConsensusStrength: 0.95,
		RedLineConcerns:   []string{"risk: prohibition present"},
	}
	tradeoff := types.CouncilRecommendation{
		Outcome:           types.OutcomeBoundedRiskTradeoff,
		Recommendation:    types.RecommendSupportWithCaution,
		ConsensusStrength: 0.5,
	}
	deadlock := types.CouncilRecommendation{
		Outcome:           types.OutcomeDeadlocked,
		Recommendation:    types.RecommendDefer,
		ConsensusStrength: 0,
	}

	strong := support
	strong.ConsensusStrength = 0.85
	dissent := support
	dissent.ConsensusStrength = 0.65
	atStrongBar := support
	atStrongBar.ConsensusStrength = 0.8
	atDissentBar := support
	atDissentBar.ConsensusStrength = 0.6

	cases := []struct {
		name string
		mode types.Mode
		rec  types.CouncilRecommendation
		want string
	}{
		{"quick is always direct", types.ModeQuick, support, InterpretDirectResponse},

		{"war red line needs an override", types.ModeWar, redLine, InterpretRedLineOverride},
		{"war consensus support proceeds", types.ModeWar, support, InterpretAggressiveProceed},
		{"war consensus oppose holds", types.ModeWar, oppose, InterpretDefensiveHold},
		{"war tradeoff holds", types.ModeWar, tradeoff, InterpretDefensiveHold},
		{"war deadlock holds", types.ModeWar, deadlock, InterpretDefensiveHold},

		{"meeting support", types.ModeMeeting, support, InterpretStrongSupport},
		{"meeting oppose", types.ModeMeeting, oppose, InterpretStrongOppose},
		{"meeting tradeoff", types.ModeMeeting, tradeoff, InterpretMixedTradeoffs},
		{"meeting deadlock", types.ModeMeeting, deadlock, InterpretMixedTradeoffs},

		{"darbar red line blocks", types.ModeDarbar, redLine, InterpretRedLineBlocks},
		{"darbar strong consensus", types.ModeDarbar, strong, InterpretDoctrineConsensus},
		{"darbar noted dissent", types.ModeDarbar, dissent, InterpretNotedDissent},
		{"darbar deep disagreement", types.ModeDarbar, deadlock, InterpretDeepDisagreement},
		{"darbar strong bar inclusive", types.ModeDarbar, atStrongBar, InterpretDoctrineConsensus},
		{"darbar dissent bar inclusive", types.ModeDarbar, atDissentBar, InterpretNotedDissent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Interpret(tc.mode, tc.rec); got != tc.want {
				t.Errorf("Interpret(%s) = %q, want %q", tc.mode, got, tc.want)
			}
		})
	}
}
