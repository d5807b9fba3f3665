// Package knowledge holds the knowledge library and the multi-factor
// scoring engine that ranks entries for the ministers.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/normanking/divan/internal/logging"
	"github.com/normanking/divan/pkg/types"
)

// Store defines the persistence interface the library needs.
// Implemented by the SQLite data layer; faked in tests.
type Store interface {
	// ListKnowledge returns every stored entry.
	ListKnowledge(ctx context.Context) ([]*types.KnowledgeEntry, error)

	// ListKnowledgeByDomain returns the entries for one domain.
	ListKnowledgeByDomain(ctx context.Context, domain string) ([]*types.KnowledgeEntry, error)

	// ReinforceKnowledge bumps the reinforcement counter and stamps the time.
	ReinforceKnowledge(ctx context.Context, id string) error

	// PenalizeKnowledge bumps the penalty counter.
	PenalizeKnowledge(ctx context.Context, id string) error

	// SearchKnowledge runs a full-text search, best match first.
	SearchKnowledge(ctx context.Context, query string, limit int) ([]*types.KnowledgeEntry, error)
}

// Library serves knowledge entries from an in-memory snapshot loaded at
// startup. If the backing store is empty or unavailable it degrades to a
// small built-in fallback set — scoring never hard-fails for lack of
// knowledge.
type Library struct {
	mu       sync.RWMutex
	store    Store // nil means in-memory only
	entries  []*types.KnowledgeEntry
	byDomain map[string][]*types.KnowledgeEntry
	fallback bool

	log *logging.Logger
}

// NewLibrary creates a library backed by store. A nil store yields a
// fallback-only library.
func NewLibrary(store Store) *Library {
	return &Library{
		store: store,
		log:   logging.Global().WithComponent("knowledge"),
	}
}

// Load replaces the snapshot with the store's current contents. A missing,
// failing, or empty store activates the fallback set instead of returning
// an error.
func (l *Library) Load(ctx context.Context) error {
	var entries []*types.KnowledgeEntry

	if l.store != nil {
		loaded, err := l.store.ListKnowledge(ctx)
		if err != nil {
			l.log.Warn("knowledge store unavailable, serving fallback set: %v", err)
		} else {
			entries = loaded
		}
	}

	usingFallback := len(entries) == 0
	if usingFallback {
		entries = fallbackEntries()
		l.log.Warn("knowledge store empty, serving %d fallback entries", len(entries))
	} else {
		l.log.Debug("loaded %d knowledge entries", len(entries))
	}

	byDomain := make(map[string][]*types.KnowledgeEntry)
	for _, e := range entries {
		byDomain[e.Domain] = append(byDomain[e.Domain], e)
	}

	l.mu.Lock()
	l.entries = entries
	l.byDomain = byDomain
	l.fallback = usingFallback
	l.mu.Unlock()

	return nil
}

// EntriesForDomain returns the snapshot entries for one domain.
// The returned slice is a copy; entries are shared.
func (l *Library) EntriesForDomain(domain string) []*types.KnowledgeEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	src := l.byDomain[domain]
	out := make([]*types.KnowledgeEntry, len(src))
	copy(out, src)
	return out
}

// AllEntries returns a copy of the full snapshot.
func (l *Library) AllEntries() []*types.KnowledgeEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*types.KnowledgeEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the snapshot size.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// TypeOf returns the knowledge type of a snapshot entry.
func (l *Library) TypeOf(id string) (types.KnowledgeType, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if e.ID == id {
			return e.Type, true
		}
	}
	return "", false
}

// UsingFallback reports whether the built-in set is being served.
func (l *Library) UsingFallback() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fallback
}

// Reinforce bumps an entry's reinforcement memory, writing through to the
// store when one is attached. Fallback entries are memory-only.
func (l *Library) Reinforce(ctx context.Context, id string) error {
	l.mu.Lock()
	for _, e := range l.entries {
		if e.ID == id {
			e.ReinforcementCount++
			e.LastReinforced = time.Now()
			break
		}
	}
	writeThrough := l.store != nil && !l.fallback
	l.mu.Unlock()

	if writeThrough {
		return l.store.ReinforceKnowledge(ctx, id)
	}
	return nil
}

// Search finds entries matching the query, best match first. Store-backed
// libraries use the FTS index; fallback mode degrades to an in-memory token
// scan so search works even without a database.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]*types.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	l.mu.RLock()
	storeBacked := l.store != nil && !l.fallback
	l.mu.RUnlock()

	if storeBacked {
		return l.store.SearchKnowledge(ctx, query, limit)
	}
	return scanEntries(l.AllEntries(), query, limit), nil
}

// scanEntries is the fallback search: rank entries by how many query tokens
// their content and tags contain.
func scanEntries(entries []*types.KnowledgeEntry, query string, limit int) []*types.KnowledgeEntry {
	terms := extractKeywords(query)
	if len(terms) == 0 {
		return nil
	}

	type hit struct {
		entry *types.KnowledgeEntry
		count int
	}

	var hits []hit
	for _, e := range entries {
		haystack := strings.ToLower(e.Content + " " + strings.Join(e.ConceptTags, " ") + " " + strings.Join(e.GoalTags, " "))
		count := 0
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				count++
			}
		}
		if count > 0 {
			hits = append(hits, hit{entry: e, count: count})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].count > hits[j].count })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]*types.KnowledgeEntry, len(hits))
	for i, h := range hits {
		out[i] = h.entry
	}
	return out
}

// Penalize bumps an entry's penalty memory, writing through to the store
// when one is attached. The reinforcement timestamp is never touched.
func (l *Library) Penalize(ctx context.Context, id string) error {
	l.mu.Lock()
	for _, e := range l.entries {
		if e.ID == id {
			e.PenaltyCount++
			break
		}
	}
	writeThrough := l.store != nil && !l.fallback
	l.mu.Unlock()

	if writeThrough {
		return l.store.PenalizeKnowledge(ctx, id)
	}
	return nil
}

// fallbackEntries is the built-in set served when no store is available.
// Deliberately small: enough coverage that every common domain scores
// something, never a substitute for a seeded knowledge base.
func fallbackEntries() []*types.KnowledgeEntry {
	return []*types.KnowledgeEntry{
		{
			ID: "fallback-risk-1", Domain: "risk", Type: types.TypeRule,
			Content: "Never accept a position that risks total ruin, whatever the expected value",
			Source:  "builtin",
		},
		{
			ID: "fallback-risk-2", Domain: "risk", Type: types.TypeWarning,
			Content: "Irreversible commitments made under time pressure are where catastrophic losses hide",
			Source:  "builtin",
		},
		{
			ID: "fallback-power-1", Domain: "power", Type: types.TypePrinciple,
			Content: "Control over your own options is worth more than apparent advantage",
			Source:  "builtin",
		},
		{
			ID: "fallback-timing-1", Domain: "timing", Type: types.TypeAdvice,
			Content: "When the case for acting now is urgency alone, wait one cycle and look again",
			Source:  "builtin",
		},
		{
			ID: "fallback-grand-strategy-1", Domain: "grand_strategy", Type: types.TypePrinciple,
			Content: "Preserve long-term strategic position before chasing short-term gains",
			Source:  "builtin",
		},
		{
			ID: "fallback-finance-1", Domain: "finance", Type: types.TypeRule,
			Content: "Size every commitment so a single failure cannot break the whole",
			Source:  "builtin",
		},
		{
			ID: "fallback-optionality-1", Domain: "optionality", Type: types.TypeWarning,
			Content: "Avoid plans whose first step closes every door behind you",
			Source:  "builtin",
		},
		{
			ID: "fallback-general-1", Domain: "general", Type: types.TypePrinciple,
			Content: "Decide slowly on what cannot be undone, quickly on what can",
			Source:  "builtin",
		},
	}
}
