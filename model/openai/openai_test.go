package openai

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

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": null,
      "refusal": null,
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "get_weather", "arguments": "{\"location\":\"Paris\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
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

func TestProvider_ToolCalls(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallCompletion)
	})

	call := core.NewToolCallMessage("a", "", []core.ToolCall{{ID: "call_0", Name: "noop"}})
	resp, err := p.Complete(context.Background(), model.Request{
		Messages: []core.Message{
			core.NewSystemMessage("You are terse."),
			core.NewUserMessage("weather in Paris?"),
			call,
			core.NewToolResultMessage("call_0", "noop", "done", nil),
		},
		Tools: []model.ToolDefinition{{
			Name:        "get_weather",
			Description: "Look up the weather",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{"location": map[string]any{"type": "string"}}},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.KindToolCalls, resp.Kind)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"location":"Paris"}`, string(resp.ToolCalls[0].Arguments))
	assert.Equal(t, core.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, resp.Usage)

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "tool", msgs[3].(map[string]any)["role"])
	assert.Equal(t, "call_0", msgs[3].(map[string]any)["tool_call_id"])
	assert.Len(t, body["tools"], 1)
}

func TestProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   string
	}{
		{"auth", http.StatusUnauthorized, "AuthenticationFailed"},
		{"rate", http.StatusTooManyRequests, "RateLimited"},
		{"unavailable", http.StatusServiceUnavailable, "ProviderUnavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"x"}}`)
			})
			_, err := p.Complete(context.Background(), model.Request{Messages: []core.Message{core.NewUserMessage("hi")}})
			require.Error(t, err)
			assert.Equal(t, tt.kind, core.KindOf(err))
		})
	}
}

func TestBuildParams_RequestOverrides(t *testing.T) {
	p := NewProviderFromClient(nil, func(o *Options) { o.Model = "gpt-4o" })
	temp := 0.1
	params := p.buildParams(model.Request{Model: "gpt-4.1", Temperature: &temp, MaxOutputTokens: 99})
	assert.Equal(t, "gpt-4.1", params.Model)
	assert.Equal(t, 0.1, params.Temperature.Value)
	assert.Equal(t, int64(99), params.MaxCompletionTokens.Value)
	assert.Equal(t, "openai", p.Info().Provider)
}
