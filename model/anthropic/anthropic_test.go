package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/model"
)

const toolUseMessage = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-5-sonnet-20241022",
  "content": [
    {"type": "text", "text": "Let me check."},
    {"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"location": "Paris"}}
  ],
  "stop_reason": "tool_use",
  "stop_sequence": null,
  "usage": {"input_tokens": 12, "output_tokens": 7}
}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewProvider(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
	})
}

func TestProvider_ToolUse(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolUseMessage)
	})

	resp, err := p.Complete(context.Background(), model.Request{
		Messages: []core.Message{core.NewSystemMessage("You are terse."), core.NewUserMessage("weather?")},
		Tools:    []model.ToolDefinition{{Name: "get_weather", Description: "weather", Parameters: map[string]any{"type": "object", "required": []any{"location"}}}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.KindToolCalls, resp.Kind)
	assert.Equal(t, "Let me check.", resp.Content)
	assert.Equal(t, "tool_use", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"location":"Paris"}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, core.Usage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19}, resp.Usage)

	assert.NotNil(t, body["system"])
	assert.Len(t, body["messages"], 1)
}

func TestBuildMessages_ToolResultsFollowToolUse(t *testing.T) {
	call := core.NewToolCallMessage("a", "", []core.ToolCall{
		{ID: "t1", Name: "a", Arguments: json.RawMessage(`{"x":1}`)},
		{ID: "t2", Name: "b"},
	})
	failed := core.NewToolResultMessage("t2", "b", "ToolExecutionError: boom", nil)
	failed.Metadata = map[string]any{"status": "error"}

	system, msgs := buildMessages([]core.Message{
		core.NewSystemMessage("sys"),
		core.NewSummaryMessage("earlier summary", 3),
		core.NewUserMessage("go"),
		call,
		core.NewToolResultMessage("t1", "a", "ok", nil),
		failed,
		core.NewAssistantMessage("a", "done"),
	})

	require.Len(t, system, 2)
	assert.Equal(t, "earlier summary", system[1].Text)
	require.Len(t, msgs, 4)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
	assert.Len(t, msgs[2].Content, 2, "both results in one user message")
	assert.Equal(t, "assistant", string(msgs[3].Role))
}

func TestProvider_ErrorClassification(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "4")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	})
	_, err := p.Complete(context.Background(), model.Request{Messages: []core.Message{core.NewUserMessage("hi")}})
	require.ErrorIs(t, err, core.ErrRateLimited)
	d, ok := core.RetryAfterHint(err)
	require.True(t, ok)
	assert.Equal(t, "4s", d.String())
}
