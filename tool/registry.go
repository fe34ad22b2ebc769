package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/raaf/core"
)

// Status of a tool invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the structured outcome of Registry.Invoke. Payload is the tool's
// return value on success and the error text on failure.
type Result struct {
	Status   Status        `json:"status"`
	Payload  any           `json:"payload"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"-"`
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Content renders the payload as text for a tool result message.
func (r Result) Content() string {
	switch v := r.Payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return fmt.Sprintf("%v", r.Payload)
	}
	return string(b)
}

// ErrorResult builds an error Result from err.
func ErrorResult(err error) Result {
	return Result{Status: StatusError, Payload: err.Error(), Err: err}
}

// Registry maps tool names to tools. It keeps registration order so tool
// declarations reach the provider deterministically. A frozen registry
// rejects further registrations.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]Tool
	frozen bool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. It fails with core.ErrDuplicateToolName when a tool
// of the same name is already present and with core.ErrInvalidArgument once
// the registry is frozen.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("register tool: nil tool")
	}
	name := t.Name()
	if !namePattern.MatchString(name) {
		return fmt.Errorf("register tool: invalid name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: register tool %s: registry is frozen", core.ErrInvalidArgument, name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", core.ErrDuplicateToolName, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.tools[n])
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Invoke validates args and calls the named tool. It never panics and never
// returns a Go error: unknown tools, validation failures, tool errors and tool
// panics all become an error Result whose payload names the failure kind.
// The tool is not called when validation fails.
func (r *Registry) Invoke(tc *core.ToolContext, name string, args map[string]any) (res Result) {
	start := time.Now()
	if tc == nil {
		tc = core.NewToolContext(context.Background(), core.ToolContextConfig{ToolName: name})
	}
	logger := tc.Logger()

	defer func() {
		res.Duration = time.Since(start)
	}()

	t, ok := r.Get(name)
	if !ok {
		err := NewToolError(name, core.ErrToolExecution, fmt.Sprintf("unknown tool %q", name))
		logger.Warn("tool.call.unknown", "tool", name, "call_id", tc.CallID())
		return ErrorResult(err)
	}

	validated, err := t.Schema().Validate(name, args)
	if err != nil {
		logger.Warn("tool.call.validation_failed", "tool", name, "call_id", tc.CallID(), "error", err.Error())
		return ErrorResult(err)
	}

	logger.Debug("tool.call.start", "tool", name, "call_id", tc.CallID())

	out, err := safeCall(t, tc, validated)
	if err != nil {
		te := asToolError(name, err)
		logger.Error("tool.call.error", "tool", name, "call_id", tc.CallID(), "error", te.Error(),
			"duration_ms", time.Since(start).Milliseconds())
		return ErrorResult(te)
	}

	logger.Debug("tool.call.success", "tool", name, "call_id", tc.CallID(),
		"duration_ms", time.Since(start).Milliseconds())
	return Result{Status: StatusSuccess, Payload: out}
}

// InvokeJSON decodes raw JSON arguments and invokes the named tool. An empty
// payload is treated as an empty object.
func (r *Registry) InvokeJSON(tc *core.ToolContext, name string, raw json.RawMessage) Result {
	args := map[string]any{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return ErrorResult(NewToolError(name, core.ErrInvalidArgument,
				fmt.Sprintf("arguments are not a JSON object: %v", err)))
		}
	}
	return r.Invoke(tc, name, args)
}

func safeCall(t Tool, tc *core.ToolContext, args map[string]any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			tc.Logger().Error("tool.call.panic", "tool", t.Name(), "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return t.Call(tc, args)
}
