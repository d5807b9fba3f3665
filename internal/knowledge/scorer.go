package knowledge

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/normanking/divan/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE IMPORTANCE SCORER
// Multiplicative composition of five independent factors: domain activation,
// knowledge type, reinforcement memory, context overlap, and goal horizon.
// Principle: WEIGH, DON'T GUESS - every factor is auditable in the breakdown.
// ═══════════════════════════════════════════════════════════════════════════════

// ScorerConfig tunes the scorer. Zero values take the defaults.
type ScorerConfig struct {
	// TopK is the default rank cutoff.
	TopK int

	// RecencyHalfLifeDays controls how fast unreinforced memory decays.
	RecencyHalfLifeDays float64

	// PenaltyDecay is the exponential penalty rate per recorded failure.
	PenaltyDecay float64

	// MemoryFloor is the minimum memory factor, whatever the decay says.
	MemoryFloor float64
}

// DefaultScorerConfig returns the standard tuning.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		TopK:                5,
		RecencyHalfLifeDays: 180,
		PenaltyDecay:        0.3,
		MemoryFloor:         0.01,
	}
}

// Scorer computes relevance scores for knowledge entries.
// Scoring is pure: no I/O, no mutation, safe for concurrent use.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a scorer, filling zero config fields with defaults.
func NewScorer(cfg ScorerConfig) *Scorer {
	def := DefaultScorerConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.RecencyHalfLifeDays <= 0 {
		cfg.RecencyHalfLifeDays = def.RecencyHalfLifeDays
	}
	if cfg.PenaltyDecay <= 0 {
		cfg.PenaltyDecay = def.PenaltyDecay
	}
	if cfg.MemoryFloor <= 0 {
		cfg.MemoryFloor = def.MemoryFloor
	}
	return &Scorer{cfg: cfg}
}

// ScoreInput carries everything one scoring pass depends on.
type ScoreInput struct {
	// Domain is the domain being scored for (usually the asking minister's).
	// Empty falls back to the entry's own domain.
	Domain string

	// ActiveDomains and DomainConfidence come from domain classification.
	ActiveDomains    []string
	DomainConfidence float64

	// ContextText is the conversation context keywords are extracted from.
	ContextText string

	// Posture optionally biases type weights (cautious, bold, analytical,
	// creative, empathetic).
	Posture string

	// Stakes and TimePressure feed the applicability pre-filter.
	Stakes       float64
	TimePressure float64

	// Priors is the learned type-weight snapshot, already confidence-gated
	// by the learning layer. Nil means no learned bias.
	Priors *types.TypeWeights

	// Now anchors recency decay; zero means time.Now().
	Now time.Time
}

// Factors is the per-factor breakdown kept for audit.
type Factors struct {
	Domain  float64 `json:"domain"`
	Type    float64 `json:"type"`
	Memory  float64 `json:"memory"`
	Context float64 `json:"context"`
	Goal    float64 `json:"goal"`
}

// ScoredEntry pairs an entry with its score and breakdown.
type ScoredEntry struct {
	Entry   *types.KnowledgeEntry `json:"entry"`
	Score   float64               `json:"score"`
	Factors Factors               `json:"factors"`
}

// Contradiction flags two selected entries that appear to disagree.
type Contradiction struct {
	EntryA string `json:"entry_a"`
	EntryB string `json:"entry_b"`
	Reason string `json:"reason"`
}

// Retrieval bundles what one minister consumes: the ranked entries for its
// domain, the aggregate candidate quality, and any detected contradictions.
type Retrieval struct {
	Domain         string          `json:"domain"`
	Entries        []ScoredEntry   `json:"entries"`
	Quality        float64         `json:"quality"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// MAIN API
// ═══════════════════════════════════════════════════════════════════════════════

// Score computes the relevance score for one entry. Returns 0 when the
// entry's applicability constraints exclude the current situation.
func (s *Scorer) Score(entry *types.KnowledgeEntry, in ScoreInput) float64 {
	score, _ := s.scoreWithFactors(entry, in)
	return score
}

// Rank scores all entries and returns the top k by score, descending.
// The sort is stable: equal scores keep insertion order.
func (s *Scorer) Rank(entries []*types.KnowledgeEntry, in ScoreInput, k int) []ScoredEntry {
	if k <= 0 {
		k = s.cfg.TopK
	}

	scored := make([]ScoredEntry, 0, len(entries))
	for _, e := range entries {
		score, factors := s.scoreWithFactors(e, in)
		scored = append(scored, ScoredEntry{Entry: e, Score: score, Factors: factors})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// Retrieve ranks entries for a domain and assembles the full retrieval
// bundle: top-K, candidate quality, contradiction flags.
func (s *Scorer) Retrieve(domain string, entries []*types.KnowledgeEntry, in ScoreInput, k int) *Retrieval {
	in.Domain = domain
	ranked := s.Rank(entries, in, k)

	return &Retrieval{
		Domain:         domain,
		Entries:        ranked,
		Quality:        CandidateQuality(ranked),
		Contradictions: DetectContradictions(ranked),
	}
}

// CandidateQuality maps the mean top-K score into a saturating 0..1 signal:
// avg / (1 + avg). Zero when nothing was selected.
func CandidateQuality(ranked []ScoredEntry) float64 {
	if len(ranked) == 0 {
		return 0
	}

	sum := 0.0
	for _, se := range ranked {
		sum += se.Score
	}
	avg := sum / float64(len(ranked))
	return avg / (1 + avg)
}

// DetectContradictions flags selected pairs that appear to disagree: the
// entries' domains are similar (≥ 0.4) and exactly one side carries a
// negation marker.
func DetectContradictions(ranked []ScoredEntry) []Contradiction {
	var found []Contradiction

	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			a, b := ranked[i].Entry, ranked[j].Entry
			if labelSimilarity(a.Domain, b.Domain) < 0.4 {
				continue
			}
			negA := hasNegationMarker(a.Content)
			negB := hasNegationMarker(b.Content)
			if negA == negB {
				continue
			}
			found = append(found, Contradiction{
				EntryA: a.ID,
				EntryB: b.ID,
				Reason: "related domains, one side negates",
			})
		}
	}

	return found
}

// ═══════════════════════════════════════════════════════════════════════════════
// FACTOR COMPUTATION
// ═══════════════════════════════════════════════════════════════════════════════

func (s *Scorer) scoreWithFactors(entry *types.KnowledgeEntry, in ScoreInput) (float64, Factors) {
	if applicabilityViolated(entry, in) {
		return 0, Factors{}
	}

	f := Factors{
		Domain:  domainWeight(entry, in),
		Type:    typeWeight(entry, in),
		Memory:  s.memoryWeight(entry, in.Now),
		Context: contextWeight(entry, in.ContextText),
		Goal:    goalWeight(entry.Content),
	}

	return f.Domain * f.Type * f.Memory * f.Context * f.Goal, f
}

// applicabilityViolated applies the pre-filter: entries may declare the
// situations they are allowed to score in.
func applicabilityViolated(entry *types.KnowledgeEntry, in ScoreInput) bool {
	app := entry.Applicability
	if app == nil {
		return false
	}

	if len(app.RequiredDomains) > 0 {
		active := false
		for _, req := range app.RequiredDomains {
			if containsString(in.ActiveDomains, req) {
				active = true
				break
			}
		}
		if !active {
			return true
		}
	}

	for _, excl := range app.ExcludedDomains {
		if containsString(in.ActiveDomains, excl) {
			return true
		}
	}

	if app.MinStakes > 0 && in.Stakes < app.MinStakes {
		return true
	}
	if app.MaxTimePressure > 0 && in.TimePressure > app.MaxTimePressure {
		return true
	}

	return false
}

// domainWeight activates entries whose domain is in play. Concept tags can
// rescue an entry whose literal domain missed but whose tags are close to
// an active domain.
func domainWeight(entry *types.KnowledgeEntry, in ScoreInput) float64 {
	domain := in.Domain
	if domain == "" {
		domain = entry.Domain
	}

	weight := 0.25
	if containsString(in.ActiveDomains, domain) {
		weight = math.Max(in.DomainConfidence, 0.5)
	}

	for _, tag := range entry.ConceptTags {
		for _, active := range in.ActiveDomains {
			if sim := labelSimilarity(tag, active); sim > weight {
				weight = sim
			}
		}
	}

	return weight
}

// Fixed per-type bases. Rules outrank principles slightly: they are
// prescriptive where principles are orienting.
var baseTypeWeights = map[types.KnowledgeType]float64{
	types.TypePrinciple: 1.0,
	types.TypeRule:      1.1,
	types.TypeWarning:   1.05,
	types.TypeClaim:     0.95,
	types.TypeAdvice:    0.9,
}

// postureBias shifts type emphasis per advisor posture.
var postureBias = map[string]map[types.KnowledgeType]float64{
	"cautious": {
		types.TypePrinciple: 1.1,
		types.TypeRule:      1.2,
		types.TypeWarning:   1.3,
		types.TypeClaim:     1.0,
		types.TypeAdvice:    0.8,
	},
	"bold": {
		types.TypePrinciple: 1.0,
		types.TypeRule:      0.9,
		types.TypeWarning:   0.8,
		types.TypeClaim:     1.1,
		types.TypeAdvice:    1.2,
	},
	"analytical": {
		types.TypePrinciple: 1.15,
		types.TypeRule:      1.05,
		types.TypeWarning:   1.0,
		types.TypeClaim:     1.3,
		types.TypeAdvice:    0.85,
	},
	"creative": {
		types.TypePrinciple: 1.1,
		types.TypeRule:      0.85,
		types.TypeWarning:   0.9,
		types.TypeClaim:     1.0,
		types.TypeAdvice:    1.25,
	},
	"empathetic": {
		types.TypePrinciple: 1.05,
		types.TypeRule:      0.9,
		types.TypeWarning:   1.1,
		types.TypeClaim:     0.9,
		types.TypeAdvice:    1.15,
	},
}

// typeWeight composes the fixed base, the posture bias, and the learned
// prior for the entry's type.
func typeWeight(entry *types.KnowledgeEntry, in ScoreInput) float64 {
	weight, ok := baseTypeWeights[entry.Type]
	if !ok {
		weight = 1.0
	}

	if in.Posture != "" {
		if bias, ok := postureBias[strings.ToLower(in.Posture)]; ok {
			if m, ok := bias[entry.Type]; ok {
				weight *= m
			}
		}
	}

	if in.Priors != nil {
		weight *= in.Priors.For(entry.Type)
	}

	return weight
}

// memoryWeight rewards reinforcement, decays penalties exponentially, and
// decays stale memory on the configured half-life. Floored so heavily
// penalized entries stay rankable, just last.
func (s *Scorer) memoryWeight(entry *types.KnowledgeEntry, now time.Time) float64 {
	if now.IsZero() {
		now = time.Now()
	}

	weight := 1 + math.Log(1+float64(entry.ReinforcementCount))

	if entry.PenaltyCount > 0 {
		weight *= math.Exp(-s.cfg.PenaltyDecay * float64(entry.PenaltyCount))
	}

	if age := entry.AgeDays(now); age >= 0 {
		weight *= math.Exp(-age / s.cfg.RecencyHalfLifeDays)
	}

	return math.Max(weight, s.cfg.MemoryFloor)
}

// contextWeight measures keyword overlap between the conversation context
// and the entry content. Goal tags offer a similarity-based alternative;
// the larger signal wins.
func contextWeight(entry *types.KnowledgeEntry, contextText string) float64 {
	keywords := extractKeywords(contextText)
	content := strings.ToLower(entry.Content)

	weight := 0.8
	if len(keywords) > 0 && content != "" {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(content, kw) {
				hits++
			}
		}
		switch {
		case hits >= 2:
			weight = 1.4
		case hits == 1:
			weight = 1.2
		default:
			weight = 0.85
		}
	}

	// Goal-tag alternative: the best tag-to-keyword similarity.
	for _, tag := range entry.GoalTags {
		for _, kw := range keywords {
			if sim := labelSimilarity(tag, kw); sim > weight {
				weight = sim
			}
		}
	}

	return weight
}

// Long-horizon and control language earns a premium; short-term-relief
// language is discounted.
var (
	longHorizonMarkers = []string{
		"long-term", "long term", "compound", "sustain", "durable",
		"foundation", "control", "discipline", "patience", "position",
	}
	shortReliefMarkers = []string{
		"quick fix", "short-term", "short term", "relief", "comfort",
		"feel better", "right away", "instant",
	}
)

func goalWeight(content string) float64 {
	lower := strings.ToLower(content)

	for _, m := range longHorizonMarkers {
		if strings.Contains(lower, m) {
			return 1.2
		}
	}
	for _, m := range shortReliefMarkers {
		if strings.Contains(lower, m) {
			return 0.7
		}
	}
	return 1.0
}

// ═══════════════════════════════════════════════════════════════════════════════
// TEXT HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

// labelSimilarity compares two short labels: exact or substring containment
// scores 0.95, otherwise the token-overlap Jaccard index.
func labelSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b || strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.95
	}
	return tokenJaccard(tokenize(a), tokenize(b))
}

// tokenJaccard computes |A∩B| / |A∪B| over token sets.
func tokenJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}

	union := make(map[string]struct{}, len(a)+len(b))
	for t := range setA {
		union[t] = struct{}{}
	}

	intersection := 0
	for _, t := range b {
		if _, inA := setA[t]; inA {
			intersection++
			delete(setA, t) // count each shared token once
		}
		union[t] = struct{}{}
	}

	return float64(intersection) / float64(len(union))
}

// extractKeywords lowercases, tokenizes, and keeps tokens of length >= 4.
func extractKeywords(text string) []string {
	tokens := tokenize(strings.ToLower(text))
	keywords := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) >= 4 {
			keywords = append(keywords, t)
		}
	}
	return keywords
}

// tokenize splits on any non-letter/digit except apostrophes, so "don't"
// survives as one token.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		if r == '\'' {
			return false
		}
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
}

// Negation markers used by the contradiction heuristic.
var negationMarkers = []string{"not", "never", "avoid", "don't"}

func hasNegationMarker(content string) bool {
	for _, token := range tokenize(strings.ToLower(content)) {
		for _, marker := range negationMarkers {
			if token == marker {
				return true
			}
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
