package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/raaf/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("sess-1").System("You are terse.").Var("k", "v").User("hi").Assistant("hello").Build()
type SessionBuilder struct {
	id     string
	system string
	vars   map[string]any
	msgs   []core.Message
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, vars: map[string]any{}}
}

// System sets the leading system message (chainable).
func (b *SessionBuilder) System(text string) *SessionBuilder { b.system = text; return b }

// Var sets or overwrites a context variable (chainable).
func (b *SessionBuilder) Var(key string, val any) *SessionBuilder {
	b.vars[key] = val
	return b
}

// User appends user messages (chainable).
func (b *SessionBuilder) User(texts ...string) *SessionBuilder {
	for _, t := range texts {
		b.msgs = append(b.msgs, core.NewUserMessage(t))
	}
	return b
}

// Assistant appends plain assistant messages (chainable).
func (b *SessionBuilder) Assistant(texts ...string) *SessionBuilder {
	for _, t := range texts {
		b.msgs = append(b.msgs, core.NewAssistantMessage("assistant", t))
	}
	return b
}

// Pinned appends a pinned user message (chainable).
func (b *SessionBuilder) Pinned(text string) *SessionBuilder {
	m := core.NewUserMessage(text)
	m.Pinned = true
	b.msgs = append(b.msgs, m)
	return b
}

// ToolExchange appends an assistant tool call plus its result (chainable).
func (b *SessionBuilder) ToolExchange(callID, tool, args, result string) *SessionBuilder {
	b.msgs = append(b.msgs,
		core.NewToolCallMessage("assistant", "", []core.ToolCall{{ID: callID, Name: tool, Arguments: json.RawMessage(args)}}),
		core.NewToolResultMessage(callID, tool, result, result),
	)
	return b
}

// Turns appends n alternating user/assistant messages (chainable).
func (b *SessionBuilder) Turns(n int) *SessionBuilder {
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			b.User(fmt.Sprintf("question %d", i))
		} else {
			b.Assistant(fmt.Sprintf("answer %d", i))
		}
	}
	return b
}

// Build returns a *core.Session with the configured content. It panics when
// the messages violate the session invariants.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id)
	s.ApplyVars(b.vars)
	if b.system != "" {
		if err := s.SetSystemMessage(core.NewSystemMessage(b.system)); err != nil {
			panic(err)
		}
	}
	for _, m := range b.msgs {
		if err := s.AddMessage(m); err != nil {
			panic(err)
		}
	}
	return s
}
