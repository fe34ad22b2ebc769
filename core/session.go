package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Session represents a conversational container tracking an ordered message
// history plus mutable context variables. It is safe for concurrent access.
//
// Contract:
//   - AddMessage enforces the conversation invariants (single leading system
//     message, no orphan tool results) and updates Updated
//   - Messages returns a defensive copy
//   - Clone performs deep copies of maps/slices for safe divergence
type Session struct {
	ID            string         `json:"id"`
	Messages      []Message      `json:"messages"`
	Vars          map[string]any `json:"vars"`
	TokenEstimate int            `json:"token_estimate"`
	Created       time.Time      `json:"created"`
	Updated       time.Time      `json:"updated"`
	ExpiresAt     time.Time      `json:"expires_at,omitempty"`
	mu            sync.RWMutex
}

// NewSession creates a new empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, Messages: []Message{}, Vars: map[string]any{}, Created: now, Updated: now}
}

// Expired reports whether the session TTL has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Touch pushes the expiry ttl past now. A zero ttl clears the expiry.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl <= 0 {
		s.ExpiresAt = time.Time{}
		return
	}
	s.ExpiresAt = now.Add(ttl)
}

// GetVar returns the value and existence flag for a context variable.
func (s *Session) GetVar(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.Vars[key]
	return v, ok
}

// SetVar sets a context variable updating the Updated timestamp.
func (s *Session) SetVar(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Vars[key] = value
	s.Updated = time.Now().UTC()
}

// ApplyVars merges the provided key/value pairs into Vars.
func (s *Session) ApplyVars(delta map[string]any) {
	if len(delta) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		s.Vars[k] = v
	}
	s.Updated = time.Now().UTC()
}

// VarsSnapshot returns a shallow copy of the context variables.
func (s *Session) VarsSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.Vars))
	for k, v := range s.Vars {
		out[k] = v
	}
	return out
}

// SystemMessage returns the leading system message, if any.
func (s *Session) SystemMessage() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Messages) > 0 && s.Messages[0].Role == RoleSystem {
		return s.Messages[0].Clone(), true
	}
	return Message{}, false
}

// SetSystemMessage installs msg as the leading system message, replacing an
// existing one as a whole. It is a no-op when the content is unchanged.
func (s *Session) SetSystemMessage(msg Message) error {
	if msg.Role != RoleSystem {
		return fmt.Errorf("%w: role %q is not system", ErrInvalidMessage, msg.Role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Messages) > 0 && s.Messages[0].Role == RoleSystem {
		if s.Messages[0].Content == msg.Content {
			return nil
		}
		s.Messages[0] = msg.Clone()
	} else {
		s.Messages = append([]Message{msg.Clone()}, s.Messages...)
	}
	s.Updated = time.Now().UTC()
	return nil
}

// AddMessage appends msg after checking the conversation invariants:
//   - system messages are only accepted through SetSystemMessage
//   - a tool result must answer an earlier, still unanswered tool call
func (s *Session) AddMessage(msg Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, msg.Role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Role {
	case RoleSystem:
		return fmt.Errorf("%w: system message must lead the session", ErrInvalidMessage)
	case RoleTool:
		if !s.awaitsResultLocked(msg.ToolCallID) {
			return fmt.Errorf("%w: tool result %q has no matching tool call", ErrInvalidMessage, msg.ToolCallID)
		}
	}
	s.Messages = append(s.Messages, msg.Clone())
	s.Updated = time.Now().UTC()
	return nil
}

// awaitsResultLocked reports whether callID belongs to an assistant tool call
// that has not been answered yet. Caller holds the lock.
func (s *Session) awaitsResultLocked(callID string) bool {
	if callID == "" {
		return false
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == RoleTool && m.ToolCallID == callID {
			return false
		}
		if m.HasToolCalls() {
			for _, tc := range m.ToolCalls {
				if tc.ID == callID {
					return true
				}
			}
		}
	}
	return false
}

// GetMessages returns a defensive copy of the full message history.
func (s *Session) GetMessages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneMessages(s.Messages)
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Messages)
}

// SetTokenEstimate records the accumulated token estimate of the history.
func (s *Session) SetTokenEstimate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokenEstimate = n
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:            s.ID,
		Messages:      CloneMessages(s.Messages),
		Vars:          make(map[string]any, len(s.Vars)),
		TokenEstimate: s.TokenEstimate,
		Created:       s.Created,
		Updated:       s.Updated,
		ExpiresAt:     s.ExpiresAt,
	}
	if clone.Messages == nil {
		clone.Messages = []Message{}
	}
	for k, v := range s.Vars {
		clone.Vars[k] = v
	}
	return clone
}

// SessionStore persists sessions keyed by id. Get returns ErrSessionNotFound
// for unknown or expired sessions. Implementations must return copies so
// callers can mutate what they receive without a lock.
type SessionStore interface {
	Create(ctx context.Context, id string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id string) error
}

// SearchResult represents a retrieved memory item with a relevance score and arbitrary metadata.
type SearchResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MemoryStore defines persistence + retrieval (search) for long-term memory
// snippets that outlive a single context window.
type MemoryStore interface {
	Get(sessionID string) (map[string]any, error)
	Put(sessionID string, delta map[string]any) error
	Search(ctx context.Context, sessionID, query string, limit int) ([]SearchResult, error)
	Store(ctx context.Context, sessionID, content string, metadata map[string]any) (string, error)
	Delete(sessionID, memoryID string) error
}
