package memory

import (
	"unicode/utf8"

	"github.com/hupe1980/raaf/core"
)

// TokenEstimator estimates the token cost of a message.
type TokenEstimator interface {
	Estimate(msg core.Message) int
}

// EstimatorFunc adapts a function to TokenEstimator.
type EstimatorFunc func(msg core.Message) int

// Estimate implements TokenEstimator.
func (f EstimatorFunc) Estimate(msg core.Message) int { return f(msg) }

// HeuristicEstimator approximates tokens as one per four characters plus a
// fixed per-message overhead for role and framing.
type HeuristicEstimator struct {
	Overhead int
}

// DefaultEstimator is the estimator used when none is configured.
var DefaultEstimator TokenEstimator = HeuristicEstimator{Overhead: 4}

// Estimate implements TokenEstimator.
func (h HeuristicEstimator) Estimate(msg core.Message) int {
	chars := utf8.RuneCountInString(msg.Content)
	for _, tc := range msg.ToolCalls {
		chars += utf8.RuneCountInString(tc.Name) + utf8.RuneCount(tc.Arguments)
	}
	if msg.Role == core.RoleTool {
		chars += utf8.RuneCountInString(msg.Name)
	}
	return h.Overhead + (chars+3)/4
}

// EstimateAll sums the estimate over msgs.
func EstimateAll(e TokenEstimator, msgs []core.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.Estimate(m)
	}
	return total
}
