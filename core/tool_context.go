package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/raaf/logging"
)

// ToolActions collects side effects a tool requested during one invocation.
// They are applied by the runner after the whole batch of calls completes, in
// the order the calls were requested.
type ToolActions struct {
	VarsDelta       map[string]any `json:"vars_delta,omitempty"`
	TransferToAgent *string        `json:"transfer_to_agent,omitempty"`
}

// ToolContextConfig carries everything a ToolContext exposes.
type ToolContextConfig struct {
	RunID     string
	SessionID string
	AgentName string
	CallID    string
	ToolName  string
	Vars      map[string]any
	Memory    MemoryStore
	Logger    logging.Logger
}

// ToolContext provides a constrained, auditable surface for tool
// implementations. State changes are accumulated in ToolActions instead of
// mutating the session directly.
type ToolContext struct {
	ctx     context.Context
	cfg     ToolContextConfig
	actions ToolActions
	logger  logging.Logger
}

// NewToolContext constructs a tool context for a single call.
func NewToolContext(ctx context.Context, cfg ToolContextConfig) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	l := cfg.Logger
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &ToolContext{ctx: ctx, cfg: cfg, logger: l}
}

// Context returns the context bound to the invocation (carries the tool timeout).
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionID returns the session the tool runs for.
func (tc *ToolContext) SessionID() string { return tc.cfg.SessionID }

// RunID returns the run the tool runs for.
func (tc *ToolContext) RunID() string { return tc.cfg.RunID }

// AgentName returns the agent that requested the call.
func (tc *ToolContext) AgentName() string { return tc.cfg.AgentName }

// CallID returns the provider-assigned tool call identifier.
func (tc *ToolContext) CallID() string { return tc.cfg.CallID }

// ToolName returns the invoked tool name.
func (tc *ToolContext) ToolName() string { return tc.cfg.ToolName }

// Logger returns the logger associated with the invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// GetVar reads a session context variable, seeing this call's own writes first.
func (tc *ToolContext) GetVar(k string) (any, bool) {
	if v, ok := tc.actions.VarsDelta[k]; ok {
		return v, true
	}
	v, ok := tc.cfg.Vars[k]
	return v, ok
}

// SetVar records a context variable write in the action delta.
func (tc *ToolContext) SetVar(k string, v any) {
	if tc.actions.VarsDelta == nil {
		tc.actions.VarsDelta = map[string]any{}
	}
	tc.actions.VarsDelta[k] = v
}

// TransferToAgent requests a hand-off to another agent after this turn.
func (tc *ToolContext) TransferToAgent(name string) {
	tc.actions.TransferToAgent = &name
	tc.logger.Info("tool.transfer.request", "from_agent", tc.cfg.AgentName, "to_agent", name, "call_id", tc.cfg.CallID)
}

// Actions returns the accumulated actions.
func (tc *ToolContext) Actions() ToolActions { return tc.actions }

// SearchMemory performs a recall query against the configured MemoryStore.
func (tc *ToolContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	if tc.cfg.Memory == nil {
		return nil, fmt.Errorf("memory store not configured")
	}
	return tc.cfg.Memory.Search(tc.ctx, tc.cfg.SessionID, q, limit)
}

// StoreMemory appends content to the session's long-term memory.
func (tc *ToolContext) StoreMemory(content string, md map[string]any) (string, error) {
	if tc.cfg.Memory == nil {
		return "", fmt.Errorf("memory store not configured")
	}
	return tc.cfg.Memory.Store(tc.ctx, tc.cfg.SessionID, content, md)
}
