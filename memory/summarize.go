package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/raaf/core"
)

// Summarizer compresses messages into a text of at most maxTokens (estimated).
type Summarizer interface {
	Summarize(ctx context.Context, msgs []core.Message, maxTokens int) (string, error)
}

// ExtractiveSummarizer keeps the first line of each message, prefixed by its
// role. It is deterministic and needs no provider.
type ExtractiveSummarizer struct {
	// LineChars caps each extracted line (default 160).
	LineChars int
}

// Summarize implements Summarizer.
func (e ExtractiveSummarizer) Summarize(_ context.Context, msgs []core.Message, maxTokens int) (string, error) {
	lineChars := e.LineChars
	if lineChars <= 0 {
		lineChars = 160
	}
	limit := maxTokens * 4

	var b strings.Builder
	fmt.Fprintf(&b, "Summary of %d earlier messages:", len(msgs))
	for _, m := range msgs {
		line := firstLine(m)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > lineChars {
			line = string(r[:lineChars-3]) + "..."
		}
		entry := fmt.Sprintf("\n- %s: %s", m.Role, line)
		if b.Len()+len(entry) > limit {
			break
		}
		b.WriteString(entry)
	}
	return b.String(), nil
}

func firstLine(m core.Message) string {
	if m.HasToolCalls() {
		names := make([]string, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			names = append(names, tc.Name)
		}
		return "called " + strings.Join(names, ", ")
	}
	text := strings.TrimSpace(m.Content)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if m.IsToolResult() && text != "" {
		return m.Name + " -> " + text
	}
	return text
}

// CompletionFunc turns a prompt into model text. The runner adapts a provider
// into one.
type CompletionFunc func(ctx context.Context, prompt string) (string, error)

// LLMSummarizer asks a model for the summary and memoizes the answer per
// message content, which keeps BuildContext deterministic for an unchanged
// session.
type LLMSummarizer struct {
	complete CompletionFunc
	mu       sync.Mutex
	cache    map[string]string
}

// NewLLMSummarizer creates a model-backed summarizer.
func NewLLMSummarizer(fn CompletionFunc) *LLMSummarizer {
	return &LLMSummarizer{complete: fn, cache: map[string]string{}}
}

// Summarize implements Summarizer.
func (s *LLMSummarizer) Summarize(ctx context.Context, msgs []core.Message, maxTokens int) (string, error) {
	key := contentKey(msgs, maxTokens)

	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following conversation in at most %d words. "+
		"Keep decisions, facts about the user and open tasks.\n\n", maxTokens*3/4)
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, firstLine(m))
	}

	out, err := s.complete(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	out = strings.TrimSpace(out)

	s.mu.Lock()
	s.cache[key] = out
	s.mu.Unlock()
	return out, nil
}

func contentKey(msgs []core.Message, maxTokens int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d", maxTokens)
	for _, m := range msgs {
		fmt.Fprintf(h, "\x00%s\x00%s\x00%s", m.ID, m.Role, m.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Summarization keeps recent groups and compresses the older ones that do
// not fit into one synthetic summary message.
type Summarization struct {
	Summarizer Summarizer
	// ReserveTokens is the space set aside for the summary. Zero means a
	// third of the available budget, capped at 512.
	ReserveTokens int
}

// Name implements Strategy.
func (s Summarization) Name() string { return "summarization" }

// Select implements Strategy.
func (s Summarization) Select(ctx context.Context, req Request) (Selection, error) {
	if sumTokens(req.Candidates) <= req.Budget {
		return Selection{Keep: allIndexes(len(req.Candidates))}, nil
	}

	reserve := reserveFor(s.ReserveTokens, req.Budget)
	keep := newestFit(req.Candidates, req.Budget-reserve, 0, req.ReservedMessages)
	older := req.Candidates[:len(req.Candidates)-len(keep)]

	summary, warn := summarizeInto(ctx, s.Summarizer, flattenGroups(older), reserve, req.Estimator)
	if summary == nil {
		sel := Selection{Keep: newestFit(req.Candidates, req.Budget, 0, req.ReservedMessages)}
		if warn != "" {
			sel.Warnings = append(sel.Warnings, warn)
		}
		return sel, nil
	}
	return Selection{Keep: keep, Summary: summary}, nil
}

func reserveFor(configured, budget int) int {
	if configured > 0 {
		if configured > budget {
			return budget
		}
		return configured
	}
	r := budget / 3
	if r > 512 {
		r = 512
	}
	return r
}

func allIndexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// summarizeInto produces a summary message no larger than reserve tokens. A
// nil message with a warning means summarization was skipped.
func summarizeInto(ctx context.Context, sum Summarizer, msgs []core.Message, reserve int, est TokenEstimator) (*core.Message, string) {
	if len(msgs) == 0 {
		return nil, ""
	}
	if sum == nil {
		sum = ExtractiveSummarizer{}
	}
	if est == nil {
		est = DefaultEstimator
	}

	overhead := est.Estimate(core.Message{Role: core.RoleAssistant})
	if reserve <= overhead {
		return nil, fmt.Sprintf("summary skipped: %d tokens reserved, %d needed for framing", reserve, overhead)
	}

	text, err := sum.Summarize(ctx, msgs, reserve-overhead)
	if err != nil {
		return nil, fmt.Sprintf("summary skipped: %v", err)
	}

	msg := core.NewSummaryMessage(text, len(msgs))
	msg.ID = "summary-" + contentKey(msgs, reserve)[:16]
	msg.Created = msgs[len(msgs)-1].Created

	runes := []rune(text)
	for est.Estimate(msg) > reserve {
		if len(runes) == 0 {
			return nil, "summary skipped: does not fit the reserved budget"
		}
		runes = runes[:len(runes)*9/10]
		msg.Content = string(runes)
	}
	return &msg, ""
}
