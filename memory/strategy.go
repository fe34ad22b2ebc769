package memory

import (
	"context"

	"github.com/hupe1980/raaf/core"
)

// Request is what a Strategy chooses from: the older, non-pinned groups of a
// session (oldest first) and the tokens left after the required context and
// pinned groups were placed.
type Request struct {
	Candidates []Group
	Budget     int
	// ReservedMessages counts non-system messages already placed in the window.
	ReservedMessages int
	// Query is the latest user message, used by relevance based strategies.
	Query     string
	Estimator TokenEstimator
}

// Selection is a Strategy's answer. Keep holds positions into
// Request.Candidates; the manager restores chronological order.
type Selection struct {
	Keep     []int
	Summary  *core.Message
	Warnings []string
}

// Strategy decides which older groups enter the window.
type Strategy interface {
	Name() string
	Select(ctx context.Context, req Request) (Selection, error)
}

// SlidingWindow keeps the most recent contiguous groups that fit the budget.
type SlidingWindow struct {
	// MaxMessages caps the number of non-system messages in the window
	// (zero means no cap).
	MaxMessages int
}

// Name implements Strategy.
func (s SlidingWindow) Name() string { return "sliding_window" }

// Select implements Strategy.
func (s SlidingWindow) Select(_ context.Context, req Request) (Selection, error) {
	return Selection{Keep: newestFit(req.Candidates, req.Budget, s.MaxMessages, req.ReservedMessages)}, nil
}

// newestFit walks candidates newest-first and stops at the first group that
// does not fit, so the kept range is contiguous with the latest messages.
func newestFit(cands []Group, budget, maxMessages, reserved int) []int {
	var keep []int
	used, count := 0, reserved
	for i := len(cands) - 1; i >= 0; i-- {
		g := cands[i]
		if used+g.Tokens > budget {
			break
		}
		if maxMessages > 0 && count+len(g.Messages) > maxMessages {
			break
		}
		used += g.Tokens
		count += len(g.Messages)
		keep = append(keep, i)
	}
	return keep
}
