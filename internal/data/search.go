package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/normanking/divan/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE FULL-TEXT SEARCH
// FTS5 index over entry content and tags, maintained by schema triggers.
// ═══════════════════════════════════════════════════════════════════════════════

const searchKnowledgeSQL = `
	SELECT
		k.id, k.domain, k.type, k.content, k.source,
		k.reinforcement_count, k.penalty_count, k.last_reinforced,
		k.concept_tags, k.goal_tags, k.applicability,
		k.created_at, k.updated_at
	FROM knowledge_fts f
	JOIN knowledge_entries k ON f.rowid = k.rowid
	WHERE f MATCH ?
	ORDER BY bm25(f)
	LIMIT ?`

// SearchKnowledge runs a full-text search over knowledge content and tags,
// best bm25 match first. Limit <= 0 falls back to 10.
func (s *Store) SearchKnowledge(ctx context.Context, query string, limit int) ([]*types.KnowledgeEntry, error) {
	match, err := prepareMatchQuery(query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, searchKnowledgeSQL, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	defer rows.Close()

	return collectKnowledge(rows)
}

// OptimizeSearchIndex merges the FTS index's incremental b-trees. Worth
// calling after bulk seeding; the triggers keep correctness either way.
func (s *Store) OptimizeSearchIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO knowledge_fts(knowledge_fts) VALUES('optimize')")
	if err != nil {
		return fmt.Errorf("optimize search index: %w", err)
	}
	return nil
}

// prepareMatchQuery converts free text into an FTS5 MATCH expression. Every
// term is double-quoted so input cannot inject FTS5 operators, and terms are
// OR-joined: a bare multi-term query widens for recall rather than narrowing.
func prepareMatchQuery(query string) (string, error) {
	terms := strings.Fields(strings.ReplaceAll(query, `"`, " "))
	if len(terms) == 0 {
		return "", fmt.Errorf("search query cannot be empty")
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR "), nil
}
