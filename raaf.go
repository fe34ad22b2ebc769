// Package raaf provides a high-level façade over the runner and its services
// (sessions, long-term memory, context management and logging). Most
// applications interact with this package by:
//  1. Creating a RAAF via New() (optionally overriding default in‑memory services)
//  2. Registering one or more agent specs
//  3. Running messages against a session with Run
//
// The façade delegates orchestration to runner.Runner while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a real provider, a durable
// session store and a structured logger.
package raaf

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/raaf/agent"
	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/guardrail"
	"github.com/hupe1980/raaf/logging"
	"github.com/hupe1980/raaf/memory"
	"github.com/hupe1980/raaf/model"
	"github.com/hupe1980/raaf/runner"
	"github.com/hupe1980/raaf/session"
)

// ErrAgentNotFound is returned by Run when no agent is registered under the
// requested name.
var ErrAgentNotFound = errors.New("agent not found")

// Options configures the RAAF instance.
type Options struct {
	// Provider drives every agent. Defaults to an echoing mock provider.
	Provider model.Provider

	// DefaultAgent is used when Run is called without an agent name. When
	// empty and exactly one agent is registered, that agent is used.
	DefaultAgent string

	MaxTurns        int
	ContextBudget   int
	ToolParallelism int
	ToolTimeout     time.Duration
	RunTimeout      time.Duration

	// Retrier wraps the provider; nil keeps the runner default.
	Retrier        *model.Retrier
	ToolGuardrails *guardrail.Chain
	Observer       core.Observer

	// Stores (defaults to in-memory implementations if not provided)
	SessionStore core.SessionStore
	MemoryStore  core.MemoryStore
	Memory       *memory.Manager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// RAAF is the high-level façade aggregating the runner and registered agents.
type RAAF struct {
	opts   Options
	runner *runner.Runner

	mu     sync.RWMutex
	agents map[string]*agent.Spec
}

// New creates a new RAAF instance with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *RAAF {
	opts := Options{
		Provider:     model.NewMockProvider("mock"),
		SessionStore: session.NewInMemoryStore(),
		MemoryStore:  memory.NewInMemoryStore(memory.WithEmbedder(memory.NewCachedEmbedder(memory.NewHashingEmbedder(0)))),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := runner.New(opts.Provider, func(o *runner.Options) {
		if opts.MaxTurns > 0 {
			o.MaxTurns = opts.MaxTurns
		}
		if opts.ContextBudget > 0 {
			o.ContextBudget = opts.ContextBudget
		}
		if opts.ToolParallelism > 0 {
			o.ToolParallelism = opts.ToolParallelism
		}
		if opts.ToolTimeout > 0 {
			o.ToolTimeout = opts.ToolTimeout
		}
		if opts.Retrier != nil {
			o.Retrier = opts.Retrier
		}
		o.RunTimeout = opts.RunTimeout
		o.ToolGuardrails = opts.ToolGuardrails
		o.Observer = opts.Observer
		o.SessionStore = opts.SessionStore
		o.MemoryStore = opts.MemoryStore
		o.Memory = opts.Memory
		o.Logger = opts.Logger
	})

	return &RAAF{opts: opts, runner: r, agents: make(map[string]*agent.Spec)}
}

// RegisterAgent adds specs to the registry, replacing specs with the same
// name. Hand-off targets are registered too so they can be addressed directly.
func (m *RAAF) RegisterAgent(specs ...*agent.Spec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var add func(s *agent.Spec)
	add = func(s *agent.Spec) {
		if s == nil {
			return
		}
		if cur, ok := m.agents[s.Name()]; ok && cur == s {
			return
		}
		m.agents[s.Name()] = s
		for _, h := range s.Handoffs() {
			if _, ok := m.agents[h.Name()]; !ok {
				add(h)
			}
		}
	}
	for _, s := range specs {
		add(s)
	}
}

// Agent retrieves a registered agent by name.
func (m *RAAF) Agent(name string) (*agent.Spec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.agents[name]
	return s, ok
}

// Agents returns the registered agent names in lexical order.
func (m *RAAF) Agents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.agents))
	for n := range m.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run sends message to the named agent (or the default agent when name is
// empty) within the given session. Like runner.Runner.Run it always returns a
// non-nil Result.
func (m *RAAF) Run(ctx context.Context, sessionID, agentName, message string, optFns ...func(o *runner.RunOptions)) (*core.Result, error) {
	spec, err := m.resolve(agentName)
	if err != nil {
		res := &core.Result{RunID: core.NewID(), SessionID: sessionID, AgentName: agentName}
		res.Fail(err)
		return res, err
	}
	return m.runner.Run(ctx, sessionID, message, spec, optFns...)
}

func (m *RAAF) resolve(name string) (*agent.Spec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == "" {
		name = m.opts.DefaultAgent
	}
	if name == "" && len(m.agents) == 1 {
		for _, s := range m.agents {
			return s, nil
		}
	}
	if s, ok := m.agents[name]; ok {
		return s, nil
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no agent named and no default agent configured", ErrAgentNotFound)
	}
	return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
}

// Session returns a snapshot of the stored session.
func (m *RAAF) Session(ctx context.Context, sessionID string) (*core.Session, error) {
	return m.runner.SessionStore().Get(ctx, sessionID)
}

// ClearSession deletes the session. It fails with core.ErrSessionLocked while
// a run owns the session.
func (m *RAAF) ClearSession(ctx context.Context, sessionID string) error {
	unlock, err := m.runner.Locker().TryLock(sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return m.runner.SessionStore().Delete(ctx, sessionID)
}

// Runner exposes the underlying runner.
func (m *RAAF) Runner() *runner.Runner { return m.runner }
