// Package types defines shared types used across all Divan modules.
package types

import (
	"math"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// KnowledgeType defines the category of a knowledge entry.
type KnowledgeType string

const (
	TypePrinciple KnowledgeType = "principle" // Foundational, slow-changing truths
	TypeRule      KnowledgeType = "rule"      // Concrete if/then prescriptions
	TypeWarning   KnowledgeType = "warning"   // Failure modes to watch for
	TypeClaim     KnowledgeType = "claim"     // Factual assertions, falsifiable
	TypeAdvice    KnowledgeType = "advice"    // Situational suggestions
)

// KnowledgeTypes lists every valid knowledge type in canonical order.
func KnowledgeTypes() []KnowledgeType {
	return []KnowledgeType{TypePrinciple, TypeRule, TypeWarning, TypeClaim, TypeAdvice}
}

// Applicability constrains the situations an entry may score in.
// Zero values mean unconstrained.
type Applicability struct {
	RequiredDomains []string `json:"required_domains,omitempty"`
	ExcludedDomains []string `json:"excluded_domains,omitempty"`
	MinStakes       float64  `json:"min_stakes,omitempty"`
	MaxTimePressure float64  `json:"max_time_pressure,omitempty"`
}

// KnowledgeEntry is a typed statement with provenance and reinforcement memory.
// Entries are immutable except for the memory stats, which are mutated only by
// the learning loop or explicit reinforcement calls.
type KnowledgeEntry struct {
	ID      string        `json:"id"`
	Domain  string        `json:"domain"`
	Type    KnowledgeType `json:"type"`
	Content string        `json:"content"`
	Source  string        `json:"source,omitempty"`

	// Memory stats
	ReinforcementCount int       `json:"reinforcement_count"`
	PenaltyCount       int       `json:"penalty_count"`
	LastReinforced     time.Time `json:"last_reinforced,omitempty"`

	// Optional semantic tags
	ConceptTags []string `json:"concept_tags,omitempty"`
	GoalTags    []string `json:"goal_tags,omitempty"`

	Applicability *Applicability `json:"applicability,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgeDays returns the days since the entry was last reinforced, or -1 when
// the entry carries no reinforcement timestamp.
func (e *KnowledgeEntry) AgeDays(now time.Time) float64 {
	if e.LastReinforced.IsZero() {
		return -1
	}
	return now.Sub(e.LastReinforced).Hours() / 24
}

// ═══════════════════════════════════════════════════════════════════════════════
// COUNCIL TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Stance is an advisor's position on a decision.
type Stance string

const (
	StanceSupport Stance = "support"
	StanceOppose  Stance = "oppose"
	StanceNeutral Stance = "neutral"
)

// Position is the output of one minister's analysis. Created fresh per
// decision and persisted only inside the decision record.
type Position struct {
	Domain           string   `json:"domain"`
	Stance           Stance   `json:"stance"`
	Confidence       float64  `json:"confidence"` // 0.0 - 1.0
	Reasoning        string   `json:"reasoning"`
	RedLineTriggered bool     `json:"red_line_triggered"`
	Concerns         []string `json:"concerns,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// CouncilOutcome classifies how the vote resolved.
type CouncilOutcome string

const (
	OutcomeConsensusReached    CouncilOutcome = "consensus_reached"
	OutcomeBoundedRiskTradeoff CouncilOutcome = "bounded_risk_tradeoff"
	OutcomeDeadlocked          CouncilOutcome = "deadlocked"
)

// Recommendation is the council's collective advice.
type Recommendation string

const (
	RecommendSupport            Recommendation = "support"
	RecommendOppose             Recommendation = "oppose"
	RecommendDefer              Recommendation = "defer"
	RecommendSupportWithCaution Recommendation = "support_with_caution"
)

// CouncilRecommendation is the aggregated result of one council session.
// Derived purely from the positions of one decision; stateless.
type CouncilRecommendation struct {
	Outcome             CouncilOutcome `json:"outcome"`
	Recommendation      Recommendation `json:"recommendation"`
	AvgConfidence       float64        `json:"avg_confidence"`
	ConsensusStrength   float64        `json:"consensus_strength"`
	Reasoning           string         `json:"reasoning"`
	DissentingMinisters []string       `json:"dissenting_ministers,omitempty"`
	RedLineConcerns     []string       `json:"red_line_concerns,omitempty"`
	MinistersInvolved   []string       `json:"ministers_involved"`
	OmittedMinisters    []string       `json:"omitted_ministers,omitempty"`
	Interpretation      string         `json:"interpretation,omitempty"`
}

// Mode is the routing policy for one decision.
type Mode string

const (
	ModeQuick   Mode = "quick"   // No council, direct response
	ModeWar     Mode = "war"     // Five fixed strategic ministers
	ModeMeeting Mode = "meeting" // 3-5 ministers by active domain
	ModeDarbar  Mode = "darbar"  // Full court, judges included
)

// ValidMode reports whether m is one of the four routing modes.
func ValidMode(m Mode) bool {
	switch m {
	case ModeQuick, ModeWar, ModeMeeting, ModeDarbar:
		return true
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════════
// TYPE WEIGHTS
// ═══════════════════════════════════════════════════════════════════════════════

// Weight bounds for learned type weights. Every write path clamps into this
// band; reads never re-clamp.
const (
	WeightFloor = 0.7
	WeightCeil  = 1.3
)

// TypeWeights holds one multiplier per knowledge type. All fields stay
// within [WeightFloor, WeightCeil] after any mutation.
type TypeWeights struct {
	Principle float64 `json:"principle_weight"`
	Rule      float64 `json:"rule_weight"`
	Warning   float64 `json:"warning_weight"`
	Claim     float64 `json:"claim_weight"`
	Advice    float64 `json:"advice_weight"`
}

// NeutralTypeWeights returns the identity weights (all 1.0).
func NeutralTypeWeights() TypeWeights {
	return TypeWeights{Principle: 1.0, Rule: 1.0, Warning: 1.0, Claim: 1.0, Advice: 1.0}
}

// Clamp forces every field into [WeightFloor, WeightCeil].
func (w *TypeWeights) Clamp() {
	w.Principle = clampWeight(w.Principle)
	w.Rule = clampWeight(w.Rule)
	w.Warning = clampWeight(w.Warning)
	w.Claim = clampWeight(w.Claim)
	w.Advice = clampWeight(w.Advice)
}

// For returns the weight for a knowledge type (1.0 for unknown types).
func (w TypeWeights) For(t KnowledgeType) float64 {
	switch t {
	case TypePrinciple:
		return w.Principle
	case TypeRule:
		return w.Rule
	case TypeWarning:
		return w.Warning
	case TypeClaim:
		return w.Claim
	case TypeAdvice:
		return w.Advice
	}
	return 1.0
}

// Set assigns the weight for a knowledge type.
func (w *TypeWeights) Set(t KnowledgeType, v float64) {
	switch t {
	case TypePrinciple:
		w.Principle = v
	case TypeRule:
		w.Rule = v
	case TypeWarning:
		w.Warning = v
	case TypeClaim:
		w.Claim = v
	case TypeAdvice:
		w.Advice = v
	}
}

func clampWeight(v float64) float64 {
	return math.Min(WeightCeil, math.Max(WeightFloor, v))
}

// ═══════════════════════════════════════════════════════════════════════════════
// SITUATION FRAME (external text-understanding contract)
// ═══════════════════════════════════════════════════════════════════════════════

// SituationType classifies the conversational situation.
type SituationType string

const (
	SituationCasual    SituationType = "casual"
	SituationEmotional SituationType = "emotional"
	SituationDecision  SituationType = "decision"
	SituationUnclear   SituationType = "unclear"
)

// SituationFrame is the parsed situation delivered by the upstream
// text-understanding service.
type SituationFrame struct {
	SituationType SituationType `json:"situation_type"`
	Clarity       float64       `json:"clarity"`        // 0.0 - 1.0
	EmotionalLoad float64       `json:"emotional_load"` // 0.0 - 1.0
}

// DefaultSituationFrame is the neutral fallback when upstream analysis is
// unavailable.
func DefaultSituationFrame() SituationFrame {
	return SituationFrame{SituationType: SituationUnclear, Clarity: 0.5, EmotionalLoad: 0.5}
}

// DomainClassification is the upstream domain analysis for one input.
type DomainClassification struct {
	Domains    []string `json:"domains"`
	Confidence float64  `json:"confidence"` // 0.0 - 1.0
}

// EmotionalMetrics are the upstream user-state estimates. All values 0.0 - 1.0.
type EmotionalMetrics struct {
	EmotionalMaturity float64 `json:"emotional_maturity"`
	Volatility        float64 `json:"volatility"`
	Stress            float64 `json:"stress"`
	Confidence        float64 `json:"confidence"`
	ModeThreshold     float64 `json:"mode_threshold"`
	AdviceThreshold   float64 `json:"advice_threshold"`
}

// DefaultEmotionalMetrics returns mid-scale estimates with the standard
// routing thresholds.
func DefaultEmotionalMetrics() EmotionalMetrics {
	return EmotionalMetrics{
		EmotionalMaturity: 0.5,
		Volatility:        0.5,
		Stress:            0.5,
		Confidence:        0.5,
		ModeThreshold:     0.7,
		AdviceThreshold:   0.6,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SITUATION FEATURES (learning axes)
// ═══════════════════════════════════════════════════════════════════════════════

// Reversibility classes for a decision.
const (
	ReversibilityReversible   = "reversible"
	ReversibilityPartial      = "partial"
	ReversibilityIrreversible = "irreversible"
)

// Risk level classes for a decision.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// SituationFeatures are the coarse axes a decision is classified on for
// learning. Classes are discrete; scores are 0.0 - 1.0.
type SituationFeatures struct {
	Reversibility        string  `json:"reversibility"`
	RiskLevel            string  `json:"risk_level"`
	IrreversibilityScore float64 `json:"irreversibility_score"`
	DownsideAsymmetry    float64 `json:"downside_asymmetry"`
	Fragility            float64 `json:"fragility"`
	TimePressure         float64 `json:"time_pressure"`
}

// KnowledgeUsage flags which knowledge types informed a decision.
type KnowledgeUsage struct {
	RuleHeavy      bool                  `json:"rule_heavy"`
	AdviceLed      bool                  `json:"advice_led"`
	WarningAided   bool                  `json:"warning_aided"`
	LowInformation bool                  `json:"low_information"`
	TypeCounts     map[KnowledgeType]int `json:"type_counts,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// GATE AND DECISION RECORDS
// ═══════════════════════════════════════════════════════════════════════════════

// Verdict is the final-authority outcome for a decision.
type Verdict string

const (
	VerdictAccept               Verdict = "accept"
	VerdictAcceptWithMitigation Verdict = "accept_with_mitigation"
	VerdictDefer                Verdict = "defer"
	VerdictReject               Verdict = "reject"
)

// GateResult records the final-authority evaluation.
type GateResult struct {
	FinalOutcome Verdict `json:"final_outcome"`
	Reason       string  `json:"reason"`
	State        string  `json:"state"` // terminal state name, for audit
}

// DecisionRecord is the persisted unit of one decision, keyed by a stable ID.
type DecisionRecord struct {
	ID               string                `json:"id"`
	Input            string                `json:"input"`
	Mode             Mode                  `json:"mode"`
	Frame            SituationFrame        `json:"frame"`
	Domains          DomainClassification  `json:"domains"`
	Council          CouncilRecommendation `json:"council"`
	Judges           []Position            `json:"judges,omitempty"` // advisory only, never counted
	Gate             GateResult            `json:"gate"`
	CandidateQuality float64               `json:"candidate_quality"`
	KnowledgeIDs     []string              `json:"knowledge_ids,omitempty"`
	Features         SituationFeatures     `json:"features"`
	CreatedAt        time.Time             `json:"created_at"`
}

// OutcomeRecord is the later-observed real-world result of a decision.
// At most one outcome exists per decision ID; recording again updates in
// place rather than appending.
type OutcomeRecord struct {
	DecisionID       string    `json:"decision_id"`
	Success          bool      `json:"success"`
	RegretScore      float64   `json:"regret_score"` // 0.0 - 1.0
	RecoveryTimeDays float64   `json:"recovery_time_days"`
	SecondaryDamage  bool      `json:"secondary_damage"`
	Notes            string    `json:"notes,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
}
