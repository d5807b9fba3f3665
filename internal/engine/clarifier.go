package engine

import (
	"fmt"
	"strings"

	"github.com/normanking/divan/internal/classify"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CLARIFIER
// Bounded state machine for low-quality inputs: ask, absorb the answer,
// rescore, repeat until the candidate pool is good enough or the round
// budget runs out. Owns its own transcript copy; never mutates shared
// conversation state.
// ═══════════════════════════════════════════════════════════════════════════════

// ClarifierState is one state of the clarification machine.
type ClarifierState string

const (
	ClarifierAsking         ClarifierState = "asking"
	ClarifierAwaitingAnswer ClarifierState = "awaiting_answer"
	ClarifierRescoring      ClarifierState = "rescoring"
	ClarifierSatisfied      ClarifierState = "satisfied"
	ClarifierExhausted      ClarifierState = "exhausted"
)

// Terminal reports whether the state accepts no further transitions.
func (s ClarifierState) Terminal() bool {
	return s == ClarifierSatisfied || s == ClarifierExhausted
}

// ClarifierConfig bounds one clarification session.
type ClarifierConfig struct {
	// MaxRounds is the question budget before the machine gives up.
	MaxRounds int

	// QualityThreshold is the candidate quality that ends the session.
	QualityThreshold float64
}

// DefaultClarifierConfig returns the standing bounds.
func DefaultClarifierConfig() ClarifierConfig {
	return ClarifierConfig{
		MaxRounds:        3,
		QualityThreshold: 0.55,
	}
}

// QualityFunc scores the accumulated transcript, 0.0 - 1.0.
type QualityFunc func(text string) float64

// Clarifier runs one clarification session over one input.
type Clarifier struct {
	cfg        ClarifierConfig
	score      QualityFunc
	state      ClarifierState
	round      int
	quality    float64
	transcript []string
}

// NewClarifier scores the initial input and starts the machine: satisfied
// immediately when the input already clears the threshold, asking
// otherwise.
func NewClarifier(input string, score QualityFunc, cfg ClarifierConfig) *Clarifier {
	def := DefaultClarifierConfig()
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = def.QualityThreshold
	}

	c := &Clarifier{
		cfg:        cfg,
		score:      score,
		transcript: []string{input},
	}
	c.quality = score(input)
	if c.quality >= cfg.QualityThreshold {
		c.state = ClarifierSatisfied
	} else {
		c.state = ClarifierAsking
	}
	return c
}

// State returns the current machine state.
func (c *Clarifier) State() ClarifierState { return c.state }

// Round returns how many questions have been asked.
func (c *Clarifier) Round() int { return c.round }

// Quality returns the candidate quality after the latest scoring pass.
func (c *Clarifier) Quality() float64 { return c.quality }

// Transcript returns the input plus every answer so far, joined.
func (c *Clarifier) Transcript() string {
	return strings.Join(c.transcript, "\n")
}

// Ask emits the next clarifying question and moves to awaiting_answer.
// Only valid in the asking state.
func (c *Clarifier) Ask() (string, error) {
	if c.state != ClarifierAsking {
		return "", fmt.Errorf("clarifier: ask in state %q", c.state)
	}
	c.round++
	c.state = ClarifierAwaitingAnswer
	return fmt.Sprintf("The available knowledge covers this weakly (quality %.2f). What constraints, stakes, or deadlines matter most here? (question %d of %d)",
		c.quality, c.round, c.cfg.MaxRounds), nil
}

// Next absorbs an answer, rescores the combined transcript, and settles
// into the next state: satisfied on threshold, asking while rounds remain,
// exhausted otherwise. Only valid in awaiting_answer.
func (c *Clarifier) Next(answer string) error {
	if c.state != ClarifierAwaitingAnswer {
		return fmt.Errorf("clarifier: answer in state %q", c.state)
	}

	c.state = ClarifierRescoring
	if strings.TrimSpace(answer) != "" {
		c.transcript = append(c.transcript, answer)
	}
	c.quality = c.score(c.Transcript())

	switch {
	case c.quality >= c.cfg.QualityThreshold:
		c.state = ClarifierSatisfied
	case c.round >= c.cfg.MaxRounds:
		c.state = ClarifierExhausted
	default:
		c.state = ClarifierAsking
	}
	return nil
}

// NewClarifier builds a clarification session for one input, scored
// against the engine's live library and learned priors.
func (e *Engine) NewClarifier(input string) *Clarifier {
	return NewClarifier(input, e.transcriptQuality, ClarifierConfig{})
}

// transcriptQuality reclassifies the accumulated transcript and measures
// the mean candidate quality a full bench would see for it.
func (e *Engine) transcriptQuality(text string) float64 {
	domains := classify.GuessDomains(text)
	features := classify.ExtractFeatures(text, classify.DefaultFrame())

	retrievals := e.retrieveAll(e.ministers.Voting(), text, domains, features)
	_, quality := summarizeRetrievals(retrievals)
	return quality
}
