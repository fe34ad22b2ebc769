package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_VarsAndClone(t *testing.T) {
	s := NewSession("s1")

	s.ApplyVars(map[string]any{"a": 1, "b": "x"})
	v, ok := s.GetVar("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clone := s.Clone()
	assert.NotSame(t, s, clone)

	clone.SetVar("c", 2)
	_, exists := s.GetVar("c")
	assert.False(t, exists, "original should not see clone's new key")
}

func TestSession_SystemMessageLeadsAndIsReplaced(t *testing.T) {
	s := NewSession("s1")
	require.NoError(t, s.AddMessage(NewUserMessage("hi")))
	require.NoError(t, s.SetSystemMessage(NewSystemMessage("You are terse.")))

	msgs := s.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)

	require.NoError(t, s.SetSystemMessage(NewSystemMessage("You are verbose.")))
	msgs = s.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "You are verbose.", msgs[0].Content)

	err := s.AddMessage(NewSystemMessage("again"))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSession_RejectsOrphanToolResult(t *testing.T) {
	s := NewSession("s1")

	err := s.AddMessage(NewToolResultMessage("call-1", "get_weather", "sunny", nil))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	call := ToolCall{ID: "call-1", Name: "get_weather", Arguments: json.RawMessage(`{"location":"Paris"}`)}
	require.NoError(t, s.AddMessage(NewToolCallMessage("agent", "", []ToolCall{call})))
	require.NoError(t, s.AddMessage(NewToolResultMessage("call-1", "get_weather", "sunny", nil)))

	// a second answer for the same call is an orphan as well
	err = s.AddMessage(NewToolResultMessage("call-1", "get_weather", "rainy", nil))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSession_GetMessagesIsCopy(t *testing.T) {
	s := NewSession("s1")
	require.NoError(t, s.AddMessage(NewUserMessage("hello")))

	msgs := s.GetMessages()
	msgs[0].Content = "changed"

	assert.Equal(t, "hello", s.GetMessages()[0].Content)
}

func TestSession_Expiry(t *testing.T) {
	s := NewSession("s1")
	now := time.Now()
	assert.False(t, s.Expired(now), "sessions without ttl never expire")

	s.Touch(now, time.Minute)
	assert.False(t, s.Expired(now.Add(30*time.Second)))
	assert.True(t, s.Expired(now.Add(time.Minute)))

	s.Touch(now, 0)
	assert.False(t, s.Expired(now.Add(time.Hour)))
}
