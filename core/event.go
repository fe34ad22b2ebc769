package core

import "time"

// EventType classifies run lifecycle events delivered to observers.
type EventType string

const (
	EventRunStarted     EventType = "run.started"
	EventMessageAdded   EventType = "message.added"
	EventToolDispatched EventType = "tool.dispatched"
	EventHandoff        EventType = "agent.handoff"
	EventRunFinished    EventType = "run.finished"
)

// Event is an immutable notification emitted while a run progresses. It
// captures correlation (RunID, SessionID, Author), the message appended (if
// any) and, for run.finished, the final result.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	Author    string    `json:"author"`
	Turn      int       `json:"turn"`
	Message   *Message  `json:"message,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates a bare event bound to a run.
func NewEvent(typ EventType, runID, sessionID, author string) Event {
	return Event{
		ID:        NewID(),
		Type:      typ,
		RunID:     runID,
		SessionID: sessionID,
		Author:    author,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageEvent reports a message appended to the session during a run.
func NewMessageEvent(runID, sessionID string, turn int, msg Message) Event {
	author := msg.Agent
	if author == "" {
		author = string(msg.Role)
	}
	e := NewEvent(EventMessageAdded, runID, sessionID, author)
	e.Turn = turn
	m := msg.Clone()
	e.Message = &m
	return e
}

// IsFinal reports whether the event closes a run.
func (e Event) IsFinal() bool { return e.Type == EventRunFinished }

// Observer receives run events. Implementations must not block.
type Observer func(Event)
