// Package council implements the minister roster, the concurrent
// consultation fan-out, and the vote aggregation that turns individual
// positions into one recommendation.
package council

import (
	"context"
	"fmt"
	"strings"

	"github.com/normanking/divan/internal/doctrine"
	"github.com/normanking/divan/internal/knowledge"
	"github.com/normanking/divan/pkg/types"
)

// Input is the shared read-only context every consulted minister sees.
type Input struct {
	// Text is the raw decision input.
	Text string

	// Frame and Domains come from upstream classification (or the local
	// fallback when upstream is unavailable).
	Frame   types.SituationFrame
	Domains types.DomainClassification

	// Retrieval holds the scored knowledge for this minister's domain.
	// When consulting a bench, Retrievals supplies the per-domain bundles
	// instead and Consult resolves this field for each minister.
	Retrieval *knowledge.Retrieval

	// Retrievals maps minister domain to that minister's retrieval bundle.
	Retrievals map[string]*knowledge.Retrieval

	// Metrics are the upstream user-state estimates.
	Metrics types.EmotionalMetrics
}

// Minister is one advisor on the council.
type Minister interface {
	// Domain is the fixed identifier the minister is registered under.
	Domain() string

	// Voting reports whether the minister's position counts in aggregation.
	// Judges return false: they are recorded for audit only.
	Voting() bool

	// Posture biases knowledge scoring for this minister.
	Posture() string

	// Analyze evaluates the input and returns the minister's position.
	Analyze(ctx context.Context, in Input) (types.Position, error)
}

// ═══════════════════════════════════════════════════════════════════════════════
// ROSTER
// Fixed at compile time: 19 voting ministers and 2 judges. Doctrine supplies
// worldview and prohibitions; the marker sets below are each minister's own
// fallback heuristic.
// ═══════════════════════════════════════════════════════════════════════════════

type ministerSpec struct {
	domain         string
	voting         bool
	posture        string
	opposeMarkers  []string
	supportMarkers []string
}

var roster = []ministerSpec{
	{
		domain: "risk", voting: true, posture: "cautious",
		opposeMarkers:  []string{"catastrophic", "unrecoverable", "existential", "wipe out", "double down"},
		supportMarkers: []string{"hedged", "capped", "insured", "reversible", "pilot"},
	},
	{
		domain: "power", voting: true, posture: "bold",
		opposeMarkers:  []string{"dependent on", "beholden", "locked in", "hostage"},
		supportMarkers: []string{"leverage", "independent", "self-sufficient", "upper hand"},
	},
	{
		domain: "grand_strategy", voting: true, posture: "analytical",
		opposeMarkers:  []string{"short-sighted", "distraction", "off-mission"},
		supportMarkers: []string{"compounding", "strategic", "durable", "flagship"},
	},
	{
		domain: "technology", voting: true, posture: "analytical",
		opposeMarkers:  []string{"unmaintainable", "big bang rewrite", "untested", "no rollback"},
		supportMarkers: []string{"incremental", "modular", "proven", "rollback"},
	},
	{
		domain: "timing", voting: true, posture: "analytical",
		opposeMarkers:  []string{"premature", "too late", "rushed"},
		supportMarkers: []string{"window", "ripe", "well-timed", "momentum"},
	},
	{
		domain: "optionality", voting: true, posture: "cautious",
		opposeMarkers:  []string{"irrevocable", "permanent", "one-way", "locks us"},
		supportMarkers: []string{"reversible", "trial", "optional", "two-way"},
	},
	{
		domain: "finance", voting: true, posture: "analytical",
		opposeMarkers:  []string{"unfunded", "over budget", "cash crunch", "debt-financed"},
		supportMarkers: []string{"funded", "profitable", "cash-positive", "within budget"},
	},
	{
		domain: "law", voting: true, posture: "cautious",
		opposeMarkers:  []string{"unlicensed", "infringe", "breach", "lawsuit"},
		supportMarkers: []string{"compliant", "licensed", "vetted", "contracted"},
	},
	{
		domain: "diplomacy", voting: true, posture: "empathetic",
		opposeMarkers:  []string{"alienate", "insult", "unilateral", "betray"},
		supportMarkers: []string{"goodwill", "mutual", "joint", "aligned"},
	},
	{
		domain: "intelligence", voting: true, posture: "analytical",
		opposeMarkers:  []string{"unverified", "rumor", "hearsay", "blind spot"},
		supportMarkers: []string{"confirmed", "corroborated", "firsthand"},
	},
	{
		domain: "logistics", voting: true, posture: "analytical",
		opposeMarkers:  []string{"overcommitted", "backlog", "shortage", "bottleneck"},
		supportMarkers: []string{"in stock", "spare capacity", "buffer", "staged"},
	},
	{
		domain: "commerce", voting: true, posture: "bold",
		opposeMarkers:  []string{"shrinking market", "churn", "price war"},
		supportMarkers: []string{"demand", "waitlist", "upsell", "recurring revenue"},
	},
	{
		domain: "personnel", voting: true, posture: "empathetic",
		opposeMarkers:  []string{"attrition", "overworked", "understaffed", "demoralized"},
		supportMarkers: []string{"staffed", "mentored", "retained", "motivated"},
	},
	{
		domain: "security", voting: true, posture: "cautious",
		opposeMarkers:  []string{"exposed", "unpatched", "plaintext", "privileged access"},
		supportMarkers: []string{"encrypted", "audited", "least privilege", "isolated"},
	},
	{
		domain: "reputation", voting: true, posture: "empathetic",
		opposeMarkers:  []string{"scandal", "backlash", "embarrassing", "deceptive"},
		supportMarkers: []string{"transparent", "praised", "trusted", "endorsed"},
	},
	{
		domain: "narrative", voting: true, posture: "creative",
		opposeMarkers:  []string{"mixed messages", "contradicts", "buried"},
		supportMarkers: []string{"clear story", "consistent", "compelling"},
	},
	{
		domain: "continuity", voting: true, posture: "cautious",
		opposeMarkers:  []string{"single point", "no fallback", "fragile"},
		supportMarkers: []string{"redundant", "rehearsed", "failover", "documented"},
	},
	{
		domain: "innovation", voting: true, posture: "creative",
		opposeMarkers:  []string{"stagnant", "me-too", "copycat"},
		supportMarkers: []string{"novel", "breakthrough", "differentiated", "experiment"},
	},
	{
		domain: "wellbeing", voting: true, posture: "empathetic",
		opposeMarkers:  []string{"burnout", "exhausted", "overtime", "crunch"},
		supportMarkers: []string{"rested", "sustainable", "balanced"},
	},

	// Judges: advisory only, never counted.
	{
		domain: "historian", voting: false, posture: "analytical",
		opposeMarkers:  []string{"failed before", "repeating", "ignored precedent"},
		supportMarkers: []string{"worked before", "precedent supports", "proven pattern"},
	},
	{
		domain: "devils_advocate", voting: false, posture: "analytical",
		opposeMarkers:  []string{"unanimous", "no downside", "obvious", "cannot fail"},
		supportMarkers: []string{"stress-tested", "challenged", "red-teamed"},
	},
}

// ═══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ═══════════════════════════════════════════════════════════════════════════════

// Registry holds the constructed ministers. Registration is static; there is
// no runtime mutation.
type Registry struct {
	byDomain map[string]Minister
	voting   []Minister
	judges   []Minister
}

// NewRegistry builds the full roster, binding each minister to its doctrine.
// A roster domain without a doctrine is a configuration error.
func NewRegistry(doctrines *doctrine.Registry) (*Registry, error) {
	r := &Registry{byDomain: make(map[string]Minister, len(roster))}

	for _, spec := range roster {
		doc, ok := doctrines.ForDomain(spec.domain)
		if !ok {
			return nil, fmt.Errorf("no doctrine for minister %s", spec.domain)
		}

		m := &baseMinister{spec: spec, doctrine: doc}
		r.byDomain[spec.domain] = m
		if spec.voting {
			r.voting = append(r.voting, m)
		} else {
			r.judges = append(r.judges, m)
		}
	}

	return r, nil
}

// Get returns the minister registered under domain.
func (r *Registry) Get(domain string) (Minister, bool) {
	m, ok := r.byDomain[domain]
	return m, ok
}

// Voting returns the voting ministers in roster order.
func (r *Registry) Voting() []Minister {
	out := make([]Minister, len(r.voting))
	copy(out, r.voting)
	return out
}

// Judges returns the non-voting judges in roster order.
func (r *Registry) Judges() []Minister {
	out := make([]Minister, len(r.judges))
	copy(out, r.judges)
	return out
}

// Domains returns every registered domain, voting first, in roster order.
func (r *Registry) Domains() []string {
	out := make([]string, 0, len(r.voting)+len(r.judges))
	for _, m := range r.voting {
		out = append(out, m.Domain())
	}
	for _, m := range r.judges {
		out = append(out, m.Domain())
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════════
// BASE MINISTER
// Shared evaluation order: doctrine prohibition, then worldview match, then
// the minister's own marker heuristic.
// ═══════════════════════════════════════════════════════════════════════════════

type baseMinister struct {
	spec     ministerSpec
	doctrine *doctrine.Doctrine
}

func (m *baseMinister) Domain() string  { return m.spec.domain }
func (m *baseMinister) Voting() bool    { return m.spec.voting }
func (m *baseMinister) Posture() string { return m.spec.posture }

func (m *baseMinister) Analyze(ctx context.Context, in Input) (types.Position, error) {
	input := strings.ToLower(in.Text)

	// 1. Doctrine prohibition: a red line bypasses every other heuristic.
	for _, p := range m.doctrine.Prohibitions {
		if strings.Contains(input, strings.ToLower(p)) {
			return m.position(types.StanceOppose, 0.95, true,
				fmt.Sprintf("doctrine prohibition %q present in the input", p), in), nil
		}
	}

	// 2. Worldview match: stance from the keyword match ratio.
	if hits := matchedKeywords(input, m.doctrine.Worldview); len(hits) > 0 {
		ratio := float64(len(hits)) / float64(len(m.doctrine.Worldview))
		confidence := 0.5 + 0.45*ratio
		if confidence > 0.95 {
			confidence = 0.95
		}

		stance := types.StanceNeutral
		if ratio > 0.3 {
			stance = types.StanceSupport
		}
		return m.position(stance, confidence, false,
			fmt.Sprintf("worldview match %d/%d (%s)", len(hits), len(m.doctrine.Worldview), strings.Join(hits, ", ")), in), nil
	}

	// 3. Fallback heuristic on the minister's own markers. Oppose markers
	// are checked first: caution outranks enthusiasm on equal evidence.
	if hits := matchedKeywords(input, m.spec.opposeMarkers); len(hits) > 0 {
		return m.position(types.StanceOppose, markerConfidence(len(hits)), false,
			fmt.Sprintf("%s signal: %s", m.spec.domain, strings.Join(hits, ", ")), in), nil
	}
	if hits := matchedKeywords(input, m.spec.supportMarkers); len(hits) > 0 {
		return m.position(types.StanceSupport, markerConfidence(len(hits)), false,
			fmt.Sprintf("%s signal: %s", m.spec.domain, strings.Join(hits, ", ")), in), nil
	}

	return m.position(types.StanceNeutral, 0.5, false, "no doctrine or marker signal", in), nil
}

// position assembles the final Position, folding in what the minister's
// knowledge retrieval contributed.
func (m *baseMinister) position(stance types.Stance, confidence float64, redLine bool, reasoning string, in Input) types.Position {
	pos := types.Position{
		Domain:           m.spec.domain,
		Stance:           stance,
		Confidence:       confidence,
		Reasoning:        reasoning,
		RedLineTriggered: redLine,
	}

	if in.Retrieval != nil && len(in.Retrieval.Entries) > 0 {
		top := in.Retrieval.Entries[0].Entry
		pos.Reasoning = fmt.Sprintf("%s; weighed %q", reasoning, top.Content)
		if stance != types.StanceNeutral {
			pos.Recommendations = append(pos.Recommendations, top.Content)
		}
		for _, c := range in.Retrieval.Contradictions {
			pos.Concerns = append(pos.Concerns,
				fmt.Sprintf("knowledge conflict between %s and %s: %s", c.EntryA, c.EntryB, c.Reason))
		}
	}

	if redLine {
		pos.Concerns = append(pos.Concerns, reasoning)
	}

	return pos
}

// markerConfidence scales with evidence: one marker 0.6, each further
// marker +0.1, capped at 0.8.
func markerConfidence(hits int) float64 {
	confidence := 0.6 + 0.1*float64(hits-1)
	if confidence > 0.8 {
		confidence = 0.8
	}
	return confidence
}

// matchedKeywords returns the keywords present in the lowercased input.
func matchedKeywords(input string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(input, strings.ToLower(kw)) {
			hits = append(hits, kw)
		}
	}
	return hits
}
