package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/raaf/core"
)

// Step is one scripted MockProvider turn. Exactly one of Response or Err is
// normally set; Delay simulates latency and honors cancellation.
type Step struct {
	Response *Response
	Err      error
	Delay    time.Duration
}

// MockProvider is a lightweight in‑memory Provider useful for tests & examples.
// Scripted steps are consumed in order; once exhausted it echoes the last user
// message ("Mock response to: ...").
type MockProvider struct {
	info     Info
	mu       sync.Mutex
	steps    []Step
	repeat   *Step
	requests []Request
}

// NewMockProvider constructs a MockProvider with tool support enabled.
func NewMockProvider(name string, steps ...Step) *MockProvider {
	return &MockProvider{
		info:  Info{Name: name, Provider: "mock", SupportsTools: true},
		steps: steps,
	}
}

// Then appends a scripted step.
func (m *MockProvider) Then(step Step) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, step)
	return m
}

// ThenText appends a plain text step.
func (m *MockProvider) ThenText(content string) *MockProvider {
	return m.Then(Step{Response: TextResponse(content)})
}

// ThenToolCalls appends a tool-call step.
func (m *MockProvider) ThenToolCalls(calls ...core.ToolCall) *MockProvider {
	return m.Then(Step{Response: ToolCallResponse(calls...)})
}

// ThenError appends a failing step.
func (m *MockProvider) ThenError(err error) *MockProvider {
	return m.Then(Step{Err: err})
}

// Always makes every call after the scripted steps return step.
func (m *MockProvider) Always(step Step) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repeat = &step
	return m
}

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, cloneRequest(req))
	var step *Step
	if len(m.steps) > 0 {
		s := m.steps[0]
		m.steps = m.steps[1:]
		step = &s
	} else if m.repeat != nil {
		s := *m.repeat
		step = &s
	}
	m.mu.Unlock()

	if step == nil {
		return m.echo(req)
	}
	if step.Delay > 0 {
		t := time.NewTimer(step.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response == nil {
		return m.echo(req)
	}
	resp := *step.Response
	resp.ToolCalls = append([]core.ToolCall(nil), step.Response.ToolCalls...)
	if resp.Model == "" {
		resp.Model = m.info.Name
	}
	return &resp, nil
}

func (m *MockProvider) echo(req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages provided", core.ErrInvalidArgument)
	}
	var input string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			input = req.Messages[i].Content
			break
		}
	}
	resp := TextResponse(fmt.Sprintf("Mock response to: %s", input))
	resp.Model = m.info.Name
	return resp, nil
}

// Requests returns copies of every request received so far.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	for i, r := range m.requests {
		out[i] = cloneRequest(r)
	}
	return out
}

// Calls returns how many times Complete was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }

func cloneRequest(req Request) Request {
	c := req
	c.Messages = core.CloneMessages(req.Messages)
	c.Tools = append([]ToolDefinition(nil), req.Tools...)
	return c
}

var _ Provider = (*MockProvider)(nil)
