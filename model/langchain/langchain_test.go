package langchain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/model"
)

type fakeLLM struct {
	got  []llms.MessageContent
	opts llms.CallOptions
	resp *llms.ContentResponse
	err  error
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = messages
	for _, o := range options {
		o(&f.opts)
	}
	return f.resp, f.err
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestProvider_ToolCalls(t *testing.T) {
	llm := &fakeLLM{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		StopReason: "tool_calls",
		ToolCalls: []llms.ToolCall{{
			ID:           "c1",
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: "get_weather", Arguments: `{"location":"Paris"}`},
		}},
		GenerationInfo: map[string]any{"InputTokens": 11, "OutputTokens": 3},
	}}}}
	p := NewProvider(llm, func(o *Options) { o.Model = "llama3.1" })

	call := core.NewToolCallMessage("a", "thinking", []core.ToolCall{{ID: "c0", Name: "noop"}})
	resp, err := p.Complete(context.Background(), model.Request{
		Messages: []core.Message{
			core.NewSystemMessage("sys"),
			core.NewUserMessage("hi"),
			call,
			core.NewToolResultMessage("c0", "noop", "ok", nil),
		},
		Tools: []model.ToolDefinition{{Name: "get_weather", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.KindToolCalls, resp.Kind)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.Equal(t, core.Usage{PromptTokens: 11, CompletionTokens: 3, TotalTokens: 14}, resp.Usage)

	require.Len(t, llm.got, 4)
	assert.Equal(t, llms.ChatMessageTypeAI, llm.got[2].Role)
	assert.Len(t, llm.got[2].Parts, 2)
	assert.Equal(t, llms.ChatMessageTypeTool, llm.got[3].Role)
	assert.Equal(t, "llama3.1", llm.opts.Model)
	assert.Len(t, llm.opts.Tools, 1)
}

func TestProvider_Text(t *testing.T) {
	llm := &fakeLLM{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        "hello",
		GenerationInfo: map[string]any{"PromptTokens": 5, "CompletionTokens": 1, "TotalTokens": 6},
	}}}}
	resp, err := NewProvider(llm).Complete(context.Background(), model.Request{Messages: []core.Message{core.NewUserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, model.KindText, resp.Kind)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
}

func TestProvider_Errors(t *testing.T) {
	_, err := NewProvider(&fakeLLM{err: errors.New("dial tcp: connection refused")}).
		Complete(context.Background(), model.Request{})
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)

	_, err = NewProvider(&fakeLLM{resp: &llms.ContentResponse{}}).Complete(context.Background(), model.Request{})
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)
}
