// Package doctrine holds the ministers' static configuration: per-domain
// worldview keywords, hard prohibitions, and the typed principles that seed
// the knowledge library on first run. Doctrines are loaded once at startup
// and never mutated afterwards.
package doctrine

import (
	"fmt"

	"github.com/normanking/divan/pkg/types"
)

// Principle is one typed statement of doctrine, seedable as knowledge.
type Principle struct {
	Type    types.KnowledgeType `yaml:"type" json:"type"`
	Content string              `yaml:"content" json:"content"`
}

// Doctrine is one minister's standing orders.
type Doctrine struct {
	// Domain names the minister this doctrine binds.
	Domain string `yaml:"domain" json:"domain"`

	// Title is the minister's display name.
	Title string `yaml:"title" json:"title"`

	// Worldview keywords signal situations the minister cares about.
	Worldview []string `yaml:"worldview" json:"worldview"`

	// Prohibitions are red lines: any appearing in a decision input forces
	// the minister to oppose at full confidence.
	Prohibitions []string `yaml:"prohibitions" json:"prohibitions,omitempty"`

	// ForbidMoralizing marks doctrines that bar preachy recommendations;
	// the gate defers any recommendation that moralizes while this is set.
	ForbidMoralizing bool `yaml:"forbid_moralizing" json:"forbid_moralizing,omitempty"`

	// Principles seed the knowledge library.
	Principles []Principle `yaml:"principles" json:"principles,omitempty"`
}

// ═══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ═══════════════════════════════════════════════════════════════════════════════

// Registry is the immutable doctrine set, built once by the loader and
// passed by reference into minister constructors.
type Registry struct {
	byDomain          map[string]*Doctrine
	domains           []string // insertion order, so All() is deterministic
	forbidsMoralizing bool
}

func newRegistry(doctrines []*Doctrine) *Registry {
	r := &Registry{byDomain: make(map[string]*Doctrine, len(doctrines))}
	for _, d := range doctrines {
		r.put(d)
	}
	return r
}

// NewRegistry builds a registry from already-validated doctrines. Most
// callers want Load or LoadDir, which validate and cache.
func NewRegistry(doctrines []*Doctrine) *Registry {
	return newRegistry(doctrines)
}

// put inserts or overrides one doctrine, keeping first-seen domain order.
func (r *Registry) put(d *Doctrine) {
	if _, exists := r.byDomain[d.Domain]; !exists {
		r.domains = append(r.domains, d.Domain)
	}
	r.byDomain[d.Domain] = d

	// Recompute: an override may clear the flag its default had set.
	r.forbidsMoralizing = false
	for _, doc := range r.byDomain {
		if doc.ForbidMoralizing {
			r.forbidsMoralizing = true
			break
		}
	}
}

// ForDomain returns the doctrine binding one minister domain.
func (r *Registry) ForDomain(domain string) (*Doctrine, bool) {
	d, ok := r.byDomain[domain]
	return d, ok
}

// All returns every doctrine in load order.
func (r *Registry) All() []*Doctrine {
	out := make([]*Doctrine, 0, len(r.domains))
	for _, domain := range r.domains {
		out = append(out, r.byDomain[domain])
	}
	return out
}

// Domains returns the doctrine domains in load order.
func (r *Registry) Domains() []string {
	out := make([]string, len(r.domains))
	copy(out, r.domains)
	return out
}

// ForbidsMoralizing reports whether any loaded doctrine bars moralizing.
func (r *Registry) ForbidsMoralizing() bool {
	return r.forbidsMoralizing
}

// Len returns the number of loaded doctrines.
func (r *Registry) Len() int {
	return len(r.byDomain)
}

// SeedEntries converts every doctrine principle into a knowledge entry for
// first-run library population. IDs are deterministic (<domain>-NN) so
// repeated seeding upserts instead of duplicating.
func (r *Registry) SeedEntries() []*types.KnowledgeEntry {
	var entries []*types.KnowledgeEntry
	for _, domain := range r.domains {
		d := r.byDomain[domain]
		for i, p := range d.Principles {
			entries = append(entries, &types.KnowledgeEntry{
				ID:      fmt.Sprintf("%s-%02d", d.Domain, i+1),
				Domain:  d.Domain,
				Type:    p.Type,
				Content: p.Content,
				Source:  "doctrine",
			})
		}
	}
	return entries
}

// validate rejects doctrines that would misbehave downstream: missing
// domains, unknown principle types, empty principle content.
func validate(doctrines []*Doctrine) error {
	valid := make(map[types.KnowledgeType]bool)
	for _, t := range types.KnowledgeTypes() {
		valid[t] = true
	}

	for _, d := range doctrines {
		if d.Domain == "" {
			return fmt.Errorf("doctrine %q has no domain", d.Title)
		}
		for i, p := range d.Principles {
			if !valid[p.Type] {
				return fmt.Errorf("doctrine %s principle %d: unknown type %q", d.Domain, i+1, p.Type)
			}
			if p.Content == "" {
				return fmt.Errorf("doctrine %s principle %d: empty content", d.Domain, i+1)
			}
		}
	}
	return nil
}
