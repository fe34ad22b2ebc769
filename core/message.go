package core

import (
	"encoding/json"
	"time"
)

// Role identifies the author class of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four conversation roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ToolCall is a provider request to invoke a named tool. Arguments hold the
// raw JSON object produced by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is a single entry of a conversation. Messages are append-only inside
// a Session: pruning builds views over them and never edits one in place.
//
// An assistant message carrying ToolCalls is a tool-call descriptor; a tool
// message answers exactly one of those calls through ToolCallID.
type Message struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Data       any            `json:"data,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Agent      string         `json:"agent,omitempty"`
	Pinned     bool           `json:"pinned,omitempty"`
	Summary    bool           `json:"summary,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Created    time.Time      `json:"created"`
}

func newMessage(role Role, content string) Message {
	return Message{ID: NewID(), Role: role, Content: content, Created: time.Now().UTC()}
}

// NewSystemMessage creates the instruction message placed first in a session.
func NewSystemMessage(content string) Message { return newMessage(RoleSystem, content) }

// NewUserMessage creates a user-authored text message.
func NewUserMessage(content string) Message { return newMessage(RoleUser, content) }

// NewAssistantMessage creates a plain assistant reply authored by agent.
func NewAssistantMessage(agent, content string) Message {
	m := newMessage(RoleAssistant, content)
	m.Agent = agent
	return m
}

// NewToolCallMessage creates an assistant message requesting tool calls.
// Content carries any text the model produced alongside the calls.
func NewToolCallMessage(agent, content string, calls []ToolCall) Message {
	m := newMessage(RoleAssistant, content)
	m.Agent = agent
	m.ToolCalls = append([]ToolCall(nil), calls...)
	return m
}

// NewToolResultMessage creates the answer to a single tool call. Content is
// the textual payload handed back to the model; data keeps the structured form.
func NewToolResultMessage(callID, toolName, content string, data any) Message {
	m := newMessage(RoleTool, content)
	m.ToolCallID = callID
	m.Name = toolName
	m.Data = data
	return m
}

// NewSummaryMessage creates a synthetic assistant message standing in for
// older content removed by summarization.
func NewSummaryMessage(content string, covered int) Message {
	m := newMessage(RoleAssistant, content)
	m.Summary = true
	m.Metadata = map[string]any{"summary": true, "covered_messages": covered}
	return m
}

// HasToolCalls reports whether m is an assistant tool-call descriptor.
func (m Message) HasToolCalls() bool { return m.Role == RoleAssistant && len(m.ToolCalls) > 0 }

// IsToolResult reports whether m answers a tool call.
func (m Message) IsToolResult() bool { return m.Role == RoleTool }

// Clone returns a copy that shares no slices or maps with m. Data is copied
// shallowly.
func (m Message) Clone() Message {
	c := m
	if m.ToolCalls != nil {
		c.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			c.ToolCalls[i] = ToolCall{ID: tc.ID, Name: tc.Name, Arguments: append(json.RawMessage(nil), tc.Arguments...)}
		}
	}
	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
