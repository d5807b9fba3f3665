package classify

import (
	"reflect"
	"testing"

	"github.com/normanking/divan/pkg/types"
)

func frameOf(st types.SituationType, clarity, load float64) types.SituationFrame {
	return types.SituationFrame{SituationType: st, Clarity: clarity, EmotionalLoad: load}
}

func TestGuessDomains(t *testing.T) {
	t.Run("single domain by vocabulary", func(t *testing.T) {
		got := GuessDomains("We need to review the budget before we invest in new funding rounds")
		want := []string{"finance"}
		if !reflect.DeepEqual(got.Domains, want) {
			t.Fatalf("domains = %v, want %v", got.Domains, want)
		}
		if got.Confidence != heuristicConfidence {
			t.Fatalf("confidence = %.2f, want %.2f", got.Confidence, heuristicConfidence)
		}
	})

	t.Run("domains ordered by hit count", func(t *testing.T) {
		got := GuessDomains("The contract with our supplier is a liability; legal says the vendor lawsuit will drag on")
		want := []string{"legal", "operations"}
		if !reflect.DeepEqual(got.Domains, want) {
			t.Fatalf("domains = %v, want %v", got.Domains, want)
		}
	})

	t.Run("ties break alphabetically", func(t *testing.T) {
		got := GuessDomains("the contract price")
		want := []string{"finance", "legal"}
		if !reflect.DeepEqual(got.Domains, want) {
			t.Fatalf("domains = %v, want %v", got.Domains, want)
		}
	})

	t.Run("nothing matching falls back to general", func(t *testing.T) {
		got := GuessDomains("should I tell her how I really feel about all this")
		want := []string{"general"}
		if !reflect.DeepEqual(got.Domains, want) {
			t.Fatalf("domains = %v, want %v", got.Domains, want)
		}
		if got.Confidence != heuristicConfidence {
			t.Fatalf("confidence = %.2f, want %.2f", got.Confidence, heuristicConfidence)
		}
	})

	t.Run("matching ignores case", func(t *testing.T) {
		got := GuessDomains("BUDGET REVIEW AND PAYROLL PLANNING")
		want := []string{"finance"}
		if !reflect.DeepEqual(got.Domains, want) {
			t.Fatalf("domains = %v, want %v", got.Domains, want)
		}
	})

	t.Run("markers match whole words only", func(t *testing.T) {
		got := GuessDomains("we pursued the opportunity with costume designers")
		want := []string{"general"}
		if !reflect.DeepEqual(got.Domains, want) {
			t.Fatalf("substring matched as a whole word: %v", got.Domains)
		}
	})
}

func TestDefaultFrame(t *testing.T) {
	if got, want := DefaultFrame(), types.DefaultSituationFrame(); got != want {
		t.Fatalf("DefaultFrame() = %+v, want %+v", got, want)
	}
}

func TestSelectMode(t *testing.T) {
	metrics := types.DefaultEmotionalMetrics()
	calm := types.SituationFeatures{
		Reversibility:        types.ReversibilityPartial,
		RiskLevel:            types.RiskMedium,
		IrreversibilityScore: 0.3,
	}
	severe := types.SituationFeatures{
		Reversibility:        types.ReversibilityIrreversible,
		RiskLevel:            types.RiskHigh,
		IrreversibilityScore: 0.9,
	}
	scoreOnly := types.SituationFeatures{
		Reversibility:        types.ReversibilityPartial,
		RiskLevel:            types.RiskMedium,
		IrreversibilityScore: 0.75,
	}
	narrow := types.DomainClassification{Domains: []string{"finance"}, Confidence: 0.4}
	broad := types.DomainClassification{Domains: []string{"finance", "legal", "operations"}, Confidence: 0.4}

	cases := []struct {
		name     string
		frame    types.SituationFrame
		domains  types.DomainClassification
		features types.SituationFeatures
		explicit types.Mode
		want     types.Mode
	}{
		{
			name:     "explicit mode wins",
			frame:    frameOf(types.SituationEmotional, 0.9, 0.9),
			domains:  narrow,
			features: severe,
			explicit: types.ModeWar,
			want:     types.ModeWar,
		},
		{
			name:     "invalid explicit mode is ignored",
			frame:    frameOf(types.SituationDecision, 0.5, 0.2),
			domains:  narrow,
			features: calm,
			explicit: types.Mode("council"),
			want:     types.ModeMeeting,
		},
		{
			name:     "emotional situations stay quick",
			frame:    frameOf(types.SituationEmotional, 0.9, 0.1),
			domains:  broad,
			features: severe,
			want:     types.ModeQuick,
		},
		{
			name:     "emotional load at the threshold stays quick",
			frame:    frameOf(types.SituationDecision, 0.9, 0.7),
			domains:  narrow,
			features: severe,
			want:     types.ModeQuick,
		},
		{
			name:     "clear high stakes decision goes to war",
			frame:    frameOf(types.SituationDecision, 0.8, 0.2),
			domains:  narrow,
			features: severe,
			want:     types.ModeWar,
		},
		{
			name:     "broad high stakes decision convenes a darbar",
			frame:    frameOf(types.SituationDecision, 0.8, 0.2),
			domains:  broad,
			features: severe,
			want:     types.ModeDarbar,
		},
		{
			name:     "murky high stakes decision stays a meeting",
			frame:    frameOf(types.SituationDecision, 0.6, 0.2),
			domains:  narrow,
			features: severe,
			want:     types.ModeMeeting,
		},
		{
			name:     "routine decision is a meeting",
			frame:    frameOf(types.SituationDecision, 0.8, 0.2),
			domains:  narrow,
			features: calm,
			want:     types.ModeMeeting,
		},
		{
			name:     "irreversibility score alone raises the stakes",
			frame:    frameOf(types.SituationDecision, 0.8, 0.2),
			domains:  narrow,
			features: scoreOnly,
			want:     types.ModeWar,
		},
		{
			name:     "casual chat stays quick",
			frame:    frameOf(types.SituationCasual, 0.8, 0.2),
			domains:  narrow,
			features: calm,
			want:     types.ModeQuick,
		},
		{
			name:     "unclear situations stay quick",
			frame:    frameOf(types.SituationUnclear, 0.8, 0.2),
			domains:  narrow,
			features: calm,
			want:     types.ModeQuick,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectMode(tc.frame, metrics, tc.domains, tc.features, tc.explicit)
			if got != tc.want {
				t.Fatalf("SelectMode() = %s, want %s", got, tc.want)
			}
		})
	}
}
