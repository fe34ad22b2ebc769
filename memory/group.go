package memory

import (
	"strings"

	"github.com/hupe1980/raaf/core"
)

// Group is an atomic run of messages that is kept or dropped as a whole: a
// user message, a plain assistant message, or an assistant tool-call message
// together with its tool results.
type Group struct {
	Index    int
	Messages []core.Message
	Tokens   int
	Pinned   bool
}

// Text joins the textual content of the group.
func (g Group) Text() string {
	parts := make([]string, 0, len(g.Messages))
	for _, m := range g.Messages {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// groupMessages partitions non-system messages into atomic groups.
func groupMessages(msgs []core.Message, est TokenEstimator) []Group {
	groups := make([]Group, 0, len(msgs))
	pending := map[string]bool{}

	for _, m := range msgs {
		tokens := est.Estimate(m)

		if m.IsToolResult() && len(groups) > 0 && pending[m.ToolCallID] {
			g := &groups[len(groups)-1]
			g.Messages = append(g.Messages, m)
			g.Tokens += tokens
			g.Pinned = g.Pinned || m.Pinned
			delete(pending, m.ToolCallID)
			continue
		}

		pending = map[string]bool{}
		if m.HasToolCalls() {
			for _, tc := range m.ToolCalls {
				pending[tc.ID] = true
			}
		}
		groups = append(groups, Group{
			Index:    len(groups),
			Messages: []core.Message{m},
			Tokens:   tokens,
			Pinned:   m.Pinned,
		})
	}
	return groups
}

func flattenGroups(groups []Group) []core.Message {
	n := 0
	for _, g := range groups {
		n += len(g.Messages)
	}
	out := make([]core.Message, 0, n)
	for _, g := range groups {
		out = append(out, g.Messages...)
	}
	return out
}

func sumTokens(groups []Group) int {
	total := 0
	for _, g := range groups {
		total += g.Tokens
	}
	return total
}

func countMessages(groups []Group) int {
	n := 0
	for _, g := range groups {
		n += len(g.Messages)
	}
	return n
}

// latestUserText returns the content of the most recent user message.
func latestUserText(msgs []core.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
