package knowledge_test

import (
	"fmt"

	"github.com/normanking/divan/internal/knowledge"
	"github.com/normanking/divan/pkg/types"
)

func ExampleScorer_Rank() {
	scorer := knowledge.NewScorer(knowledge.DefaultScorerConfig())

	entries := []*types.KnowledgeEntry{
		{
			ID: "budget-discipline", Domain: "finance", Type: types.TypeRule,
			Content: "Keep the budget under firm control every quarter",
		},
		{
			ID: "consultant", Domain: "finance", Type: types.TypeAdvice,
			Content: "Consider hiring a consultant",
		},
	}

	in := knowledge.ScoreInput{
		ActiveDomains:    []string{"finance"},
		DomainConfidence: 0.8,
		ContextText:      "how should we manage the budget this quarter",
	}

	ranked := scorer.Rank(entries, in, 5)
	for i, se := range ranked {
		fmt.Printf("%d. %s (%s)\n", i+1, se.Entry.ID, se.Entry.Type)
	}
	fmt.Printf("quality: %.2f\n", knowledge.CandidateQuality(ranked))

	// Output:
	// 1. budget-discipline (rule)
	// 2. consultant (advice)
	// quality: 0.51
}
