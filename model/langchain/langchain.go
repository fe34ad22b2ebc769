// Package langchain adapts any langchaingo llms.Model (OpenAI compatible
// endpoints, Ollama, Bedrock, Google AI, ...) into a model.Provider.
//
// Example usage:
//
//	llm, _ := ollama.New(ollama.WithModel("llama3.1"))
//	p := langchain.NewProvider(llm, func(o *langchain.Options) { o.Model = "llama3.1" })
package langchain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/model"
)

// Options configure the langchaingo provider.
type Options struct {
	// Model is reported by Info and sent as llms.WithModel when set.
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider wraps an llms.Model.
type Provider struct {
	llm  llms.Model
	opts Options
}

// NewProvider creates a new Provider wrapping llm.
func NewProvider(llm llms.Model, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{llm: llm, opts: opts}
}

// Unwrap returns the underlying llms.Model.
func (p *Provider) Unwrap() llms.Model { return p.llm }

// Complete implements model.Provider.
func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	resp, err := p.llm.GenerateContent(ctx, buildMessages(req.Messages), p.callOptions(req)...)
	if err != nil {
		return nil, model.ClassifyError(fmt.Errorf("langchaingo: %w", err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: langchaingo returned no choices", core.ErrProviderUnavailable)
	}

	choice := resp.Choices[0]
	calls := make([]core.ToolCall, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args := json.RawMessage("{}")
		if tc.FunctionCall.Arguments != "" {
			args = json.RawMessage(tc.FunctionCall.Arguments)
		}
		calls = append(calls, core.ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, Arguments: args})
	}

	finish := choice.StopReason
	if finish == "" {
		finish = "stop"
	}
	out := model.NewResponse(choice.Content, calls, usageFrom(choice.GenerationInfo), finish)
	out.Model = p.opts.Model
	return out, nil
}

func (p *Provider) callOptions(req model.Request) []llms.CallOption {
	temperature := p.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := p.opts.MaxTokens
	if req.MaxOutputTokens > 0 {
		maxTokens = req.MaxOutputTokens
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	name := p.opts.Model
	if req.Model != "" {
		name = req.Model
	}
	if name != "" {
		opts = append(opts, llms.WithModel(name))
	}
	if len(req.Tools) > 0 {
		tools := make([]llms.Tool, len(req.Tools))
		for i, t := range req.Tools {
			tools[i] = llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
		opts = append(opts, llms.WithTools(tools))
	}
	return opts
}

// buildMessages converts RAAF messages into langchaingo message contents. Each
// tool result becomes its own tool message.
func buildMessages(msgs []core.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case core.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case core.RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:           tc.ID,
					Type:         "function",
					FunctionCall: &llms.FunctionCall{Name: tc.Name, Arguments: args},
				})
			}
			out = append(out, mc)
		case core.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		}
	}
	return out
}

// usageFrom normalizes the token counters providers put into GenerationInfo
// under different keys.
func usageFrom(info map[string]any) core.Usage {
	if info == nil {
		return core.Usage{}
	}
	u := core.Usage{
		PromptTokens:     firstInt(info, "PromptTokens", "InputTokens", "input_tokens"),
		CompletionTokens: firstInt(info, "CompletionTokens", "OutputTokens", "output_tokens"),
		TotalTokens:      firstInt(info, "TotalTokens", "total_tokens"),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func firstInt(m map[string]any, keys ...string) int {
	for _, k := range keys {
		switch n := m[k].(type) {
		case int:
			if n > 0 {
				return n
			}
		case int32:
			if n > 0 {
				return int(n)
			}
		case int64:
			if n > 0 {
				return int(n)
			}
		case float64:
			if n > 0 {
				return int(n)
			}
		}
	}
	return 0
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{Name: p.opts.Model, Provider: "langchain", SupportsTools: true}
}

var _ model.Provider = (*Provider)(nil)
