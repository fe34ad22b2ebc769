package model

import (
	"context"

	"github.com/hupe1980/raaf/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is the normalized model input produced by the runner.
type Request struct {
	// Model overrides the adapter's default model when non-empty.
	Model           string           `json:"model,omitempty"`
	Messages        []core.Message   `json:"messages"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
}

// ResponseKind discriminates Response.
type ResponseKind string

const (
	KindText      ResponseKind = "text"
	KindToolCalls ResponseKind = "tool_calls"
)

// Response is a completed model turn: either text or tool calls. Content may
// carry text the model produced alongside tool calls.
type Response struct {
	Kind         ResponseKind    `json:"kind"`
	Content      string          `json:"content,omitempty"`
	ToolCalls    []core.ToolCall `json:"tool_calls,omitempty"`
	Usage        core.Usage      `json:"usage"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Model        string          `json:"model,omitempty"`
}

// NewResponse builds a Response, deriving Kind from the presence of calls.
func NewResponse(content string, calls []core.ToolCall, usage core.Usage, finishReason string) *Response {
	kind := KindText
	if len(calls) > 0 {
		kind = KindToolCalls
	}
	return &Response{
		Kind:         kind,
		Content:      content,
		ToolCalls:    calls,
		Usage:        usage,
		FinishReason: finishReason,
	}
}

// TextResponse is shorthand for a plain text Response.
func TextResponse(content string) *Response {
	return NewResponse(content, nil, core.Usage{}, "stop")
}

// ToolCallResponse is shorthand for a tool-call Response.
func ToolCallResponse(calls ...core.ToolCall) *Response {
	return NewResponse("", calls, core.Usage{}, "tool_calls")
}

// Info contains metadata about a provider implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "langchain", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Provider is the minimal interface the runner needs to drive a model. It must
// be safe for concurrent use across sessions.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the provider implementation.
	Info() Info
}

// ProviderFunc adapts a function into a Provider.
type ProviderFunc func(ctx context.Context, req Request) (*Response, error)

// Complete implements Provider.
func (f ProviderFunc) Complete(ctx context.Context, req Request) (*Response, error) { return f(ctx, req) }

// Info implements Provider.
func (f ProviderFunc) Info() Info { return Info{Name: "func", Provider: "func", SupportsTools: true} }

// CompletionFunc adapts p into a prompt-in/text-out function, used by
// model-backed summarizers.
func CompletionFunc(p Provider) func(ctx context.Context, prompt string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		resp, err := p.Complete(ctx, Request{Messages: []core.Message{core.NewUserMessage(prompt)}})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
}
