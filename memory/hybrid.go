package memory

import (
	"context"
	"fmt"
)

// Hybrid keeps the most recent groups, adds older groups relevant to the
// latest user message and summarizes whatever is left.
type Hybrid struct {
	// RecentGroups is the number of newest groups kept first (default 4).
	RecentGroups int
	Semantic     Semantic
	Summarizer   Summarizer
	// ReserveTokens is the space set aside for the summary, see Summarization.
	ReserveTokens int
}

// Name implements Strategy.
func (h Hybrid) Name() string { return "hybrid" }

// Select implements Strategy.
func (h Hybrid) Select(ctx context.Context, req Request) (Selection, error) {
	cands := req.Candidates
	if sumTokens(cands) <= req.Budget {
		return Selection{Keep: allIndexes(len(cands))}, nil
	}

	recent := h.RecentGroups
	if recent <= 0 {
		recent = 4
	}

	reserve := reserveFor(h.ReserveTokens, req.Budget)
	budget := req.Budget - reserve

	var sel Selection
	kept := map[int]bool{}
	used := 0
	for i := len(cands) - 1; i >= 0 && len(kept) < recent; i-- {
		if used+cands[i].Tokens > budget {
			break
		}
		used += cands[i].Tokens
		kept[i] = true
		sel.Keep = append(sel.Keep, i)
	}

	boundary := len(cands) - len(kept)
	older := cands[:boundary]
	if len(older) > 0 && req.Query != "" {
		ranked, err := h.Semantic.rank(ctx, req.Query, older)
		if err != nil {
			sel.Warnings = append(sel.Warnings, fmt.Sprintf("semantic selection skipped: %v", err))
		} else {
			for _, pos := range fillRanked(ranked, older, budget-used, h.Semantic.MaxGroups) {
				used += older[pos].Tokens
				kept[pos] = true
				sel.Keep = append(sel.Keep, pos)
			}
		}
	}

	var rest []Group
	for i, g := range cands {
		if !kept[i] {
			rest = append(rest, g)
		}
	}

	summary, warn := summarizeInto(ctx, h.Summarizer, flattenGroups(rest), reserve+(budget-used), req.Estimator)
	if warn != "" {
		sel.Warnings = append(sel.Warnings, warn)
	}
	sel.Summary = summary
	return sel, nil
}
