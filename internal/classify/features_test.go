package classify

import (
	"math"
	"testing"

	"github.com/normanking/divan/pkg/types"
)

func near(t *testing.T, field string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %.6f, want %.6f", field, got, want)
	}
}

func TestExtractFeatures(t *testing.T) {
	t.Run("neutral text reads as partial medium stakes", func(t *testing.T) {
		f := ExtractFeatures("thinking about options for the product", frameOf(types.SituationUnclear, 0.5, 0.5))
		if f.Reversibility != types.ReversibilityPartial {
			t.Fatalf("reversibility = %s, want partial", f.Reversibility)
		}
		if f.RiskLevel != types.RiskMedium {
			t.Fatalf("risk = %s, want medium", f.RiskLevel)
		}
		near(t, "irreversibility", f.IrreversibilityScore, irreversibilityBase)
		near(t, "downside", f.DownsideAsymmetry, downsideBase)
		near(t, "fragility", f.Fragility, fragilityBase)
		near(t, "pressure", f.TimePressure, pressureBase+loadStep*0.5)
	})

	t.Run("irreversible language raises every axis it names", func(t *testing.T) {
		text := "Selling the house is permanent, no going back; if it fails we lose everything and bankruptcy follows. Margins are stretched thin and the deadline is tonight."
		f := ExtractFeatures(text, frameOf(types.SituationDecision, 0.8, 0.0))
		if f.Reversibility != types.ReversibilityIrreversible {
			t.Fatalf("reversibility = %s, want irreversible", f.Reversibility)
		}
		if f.RiskLevel != types.RiskHigh {
			t.Fatalf("risk = %s, want high", f.RiskLevel)
		}
		near(t, "irreversibility", f.IrreversibilityScore, 0.9)
		near(t, "downside", f.DownsideAsymmetry, 0.6)
		near(t, "fragility", f.Fragility, 0.5)
		near(t, "pressure", f.TimePressure, 0.8)
	})

	t.Run("reversible cheap pilots floor the scores", func(t *testing.T) {
		text := "It is a cheap low risk pilot we can roll back anytime as a temporary experiment."
		f := ExtractFeatures(text, frameOf(types.SituationDecision, 0.8, 0.0))
		if f.Reversibility != types.ReversibilityReversible {
			t.Fatalf("reversibility = %s, want reversible", f.Reversibility)
		}
		if f.RiskLevel != types.RiskLow {
			t.Fatalf("risk = %s, want low", f.RiskLevel)
		}
		near(t, "irreversibility", f.IrreversibilityScore, 0)
		near(t, "pressure", f.TimePressure, pressureBase)
	})

	t.Run("irreversible language wins ties", func(t *testing.T) {
		f := ExtractFeatures("a permanent change we might undo", frameOf(types.SituationDecision, 0.8, 0.0))
		if f.Reversibility != types.ReversibilityIrreversible {
			t.Fatalf("reversibility = %s, want irreversible", f.Reversibility)
		}
		near(t, "irreversibility", f.IrreversibilityScore, 0.4)
	})

	t.Run("high risk language wins ties", func(t *testing.T) {
		f := ExtractFeatures("a safe move that could ruin us", frameOf(types.SituationDecision, 0.8, 0.0))
		if f.RiskLevel != types.RiskHigh {
			t.Fatalf("risk = %s, want high", f.RiskLevel)
		}
	})

	t.Run("scores clamp to the unit interval", func(t *testing.T) {
		f := ExtractFeatures("deadline today tonight immediately urgent asap", frameOf(types.SituationDecision, 0.8, 1.0))
		near(t, "pressure", f.TimePressure, 1.0)
	})

	t.Run("emotional load feeds time pressure", func(t *testing.T) {
		calm := ExtractFeatures("weighing the options", frameOf(types.SituationUnclear, 0.5, 0.0))
		agitated := ExtractFeatures("weighing the options", frameOf(types.SituationUnclear, 0.5, 1.0))
		near(t, "calm pressure", calm.TimePressure, pressureBase)
		near(t, "agitated pressure", agitated.TimePressure, pressureBase+loadStep)
	})

	t.Run("markers need whole words", func(t *testing.T) {
		f := ExtractFeatures("the finalist trials start soon", frameOf(types.SituationUnclear, 0.5, 0.0))
		if f.Reversibility != types.ReversibilityPartial {
			t.Fatalf("reversibility = %s, want partial", f.Reversibility)
		}
		near(t, "irreversibility", f.IrreversibilityScore, irreversibilityBase)
	})
}
