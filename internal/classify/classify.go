// Package classify provides the local heuristics the engine falls back on
// when a request arrives without upstream analysis: domain guessing, mode
// selection, and situation-feature extraction. Everything here is pure
// string matching over marker tables; nothing touches the network or the
// store.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/normanking/divan/pkg/types"
)

// heuristicConfidence is the fixed confidence assigned to keyword-table
// guesses. Downstream consumers treat these as hints, not verdicts.
const heuristicConfidence = 0.4

// domainMarkers maps each advisory domain to a whole-word alternation over
// the vocabulary that signals it. Matching runs on lowercased input.
var domainMarkers = buildDomainMarkers()

func buildDomainMarkers() map[string]*regexp.Regexp {
	return map[string]*regexp.Regexp{
		"finance": markerSet(
			"budget", "cash", "revenue", "cost", "costs", "invest",
			"investment", "funding", "loan", "debt", "price", "pricing",
			"margin", "margins", "capital", "runway", "payroll"),
		"legal": markerSet(
			"contract", "contracts", "lawsuit", "liability", "compliance",
			"regulation", "regulator", "license", "lawyer", "legal",
			"sue", "sued", "terms of service", "nda"),
		"technical": markerSet(
			"architecture", "deploy", "deployment", "database", "migration",
			"infrastructure", "api", "codebase", "outage", "latency",
			"refactor", "rewrite", "tech stack", "framework"),
		"people": markerSet(
			"hire", "hiring", "fire", "firing", "layoff", "layoffs",
			"team", "morale", "manager", "employee", "employees",
			"promotion", "cofounder", "co-founder", "recruit"),
		"market": markerSet(
			"competitor", "competitors", "customer", "customers", "demand",
			"launch", "brand", "marketing", "campaign", "churn",
			"positioning", "market share", "users"),
		"security": markerSet(
			"breach", "credential", "credentials", "attack", "attacker",
			"vulnerability", "encryption", "audit", "phishing", "leak",
			"leaked", "ransomware", "intrusion"),
		"strategy": markerSet(
			"roadmap", "pivot", "acquisition", "acquire", "merger",
			"expansion", "expand", "long term", "long-term", "vision",
			"moat", "strategic", "strategy"),
		"health": markerSet(
			"burnout", "burned out", "sleep", "illness", "sick",
			"exhausted", "exhaustion", "therapy", "doctor", "health"),
		"creative": markerSet(
			"design", "story", "novel", "album", "script", "artwork",
			"creative", "aesthetic", "portfolio", "manuscript"),
		"operations": markerSet(
			"supply", "supplier", "suppliers", "vendor", "vendors",
			"shipping", "warehouse", "capacity", "logistics", "inventory",
			"production line", "procurement"),
	}
}

// markerSet compiles the given phrases into a single whole-word alternation.
func markerSet(phrases ...string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// GuessDomains scans text for domain vocabulary and returns every domain
// with at least one hit, strongest first. Nothing matching falls back to
// general so the router always has a bench to seat.
func GuessDomains(text string) types.DomainClassification {
	lower := strings.ToLower(text)

	type domainHits struct {
		domain string
		hits   int
	}
	var matched []domainHits
	for domain, re := range domainMarkers {
		if n := len(re.FindAllString(lower, -1)); n > 0 {
			matched = append(matched, domainHits{domain: domain, hits: n})
		}
	}
	if len(matched) == 0 {
		return types.DomainClassification{
			Domains:    []string{"general"},
			Confidence: heuristicConfidence,
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].hits != matched[j].hits {
			return matched[i].hits > matched[j].hits
		}
		return matched[i].domain < matched[j].domain
	})
	domains := make([]string, len(matched))
	for i, m := range matched {
		domains[i] = m.domain
	}
	return types.DomainClassification{
		Domains:    domains,
		Confidence: heuristicConfidence,
	}
}

// DefaultFrame returns the neutral frame used when no upstream analysis
// arrived with the request.
func DefaultFrame() types.SituationFrame {
	return types.DefaultSituationFrame()
}

const (
	// highClarityBar is the minimum frame clarity for convening a full
	// council instead of a routine meeting.
	highClarityBar = 0.7

	// broadDarbarDomains is how many distinct domains push a high-stakes
	// decision from war mode to a full darbar.
	broadDarbarDomains = 3
)

// SelectMode picks a routing mode when the caller did not. A valid explicit
// mode always wins. Emotional situations and high emotional load short-
// circuit to quick regardless of stakes; councils convene only for clear
// decisions.
func SelectMode(frame types.SituationFrame, metrics types.EmotionalMetrics, domains types.DomainClassification, features types.SituationFeatures, explicit types.Mode) types.Mode {
	if explicit != "" && types.ValidMode(explicit) {
		return explicit
	}
	if frame.SituationType == types.SituationEmotional || frame.EmotionalLoad >= metrics.ModeThreshold {
		return types.ModeQuick
	}
	if frame.SituationType == types.SituationDecision {
		if frame.Clarity >= highClarityBar && highStakes(features) {
			if len(domains.Domains) >= broadDarbarDomains {
				return types.ModeDarbar
			}
			return types.ModeWar
		}
		return types.ModeMeeting
	}
	return types.ModeQuick
}

// highStakes reports whether the extracted features justify a war footing.
func highStakes(f types.SituationFeatures) bool {
	return f.RiskLevel == types.RiskHigh ||
		f.Reversibility == types.ReversibilityIrreversible ||
		f.IrreversibilityScore >= highIrreversibility
}
