package agent

import (
	"fmt"
	"regexp"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/guardrail"
	"github.com/hupe1980/raaf/model"
	"github.com/hupe1980/raaf/tool"
)

var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Options configures a Spec. Use functional options with New to override
// defaults.
type Options struct {
	Description string
	Instruction Instruction
	// Model overrides the provider's default model id when non-empty.
	Model string
	// Temperature is nil to use the provider default; otherwise in [0,2].
	Temperature      *float64
	MaxOutputTokens  int
	Tools            []tool.Tool
	Handoffs         []*Spec
	InputGuardrails  *guardrail.Chain
	OutputGuardrails *guardrail.Chain
}

// Spec is an immutable agent definition: instructions, model parameters,
// tools and hand-off targets. It is validated once by New and safe to share
// across concurrent runs.
type Spec struct {
	name             string
	description      string
	instruction      Instruction
	model            string
	temperature      *float64
	maxOutputTokens  int
	tools            *tool.Registry
	handoffs         []*Spec
	inputGuardrails  *guardrail.Chain
	outputGuardrails *guardrail.Chain
}

// New builds and validates a Spec.
//
// The default instruction is "You are <name>, a helpful AI assistant.". When
// hand-off targets are configured the transfer_to_agent tool is registered
// automatically, restricted to the target names.
func New(name string, optFns ...func(o *Options)) (*Spec, error) {
	opts := Options{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s, err := newSpec(name, opts)
	if err != nil {
		return nil, err
	}
	if err := s.setHandoffs(opts.Handoffs); err != nil {
		return nil, err
	}
	s.tools.Freeze()
	return s, nil
}

// MustNew is like New but panics on error. Intended for examples and tests.
func MustNew(name string, optFns ...func(o *Options)) *Spec {
	s, err := New(name, optFns...)
	if err != nil {
		panic(err)
	}
	return s
}

func newSpec(name string, opts Options) (*Spec, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid agent name %q", core.ErrInvalidArgument, name)
	}
	if opts.Temperature != nil && (*opts.Temperature < 0 || *opts.Temperature > 2) {
		return nil, fmt.Errorf("%w: agent %s: temperature %v outside [0,2]", core.ErrInvalidArgument, name, *opts.Temperature)
	}
	if opts.MaxOutputTokens < 0 {
		return nil, fmt.Errorf("%w: agent %s: max output tokens must be >= 0", core.ErrInvalidArgument, name)
	}
	if opts.Instruction.IsZero() {
		return nil, fmt.Errorf("%w: agent %s: empty instructions", core.ErrInvalidArgument, name)
	}

	reg, err := tool.NewRegistry(opts.Tools...)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", name, err)
	}

	s := &Spec{
		name:             name,
		description:      opts.Description,
		instruction:      opts.Instruction,
		model:            opts.Model,
		maxOutputTokens:  opts.MaxOutputTokens,
		tools:            reg,
		inputGuardrails:  opts.InputGuardrails,
		outputGuardrails: opts.OutputGuardrails,
	}
	if opts.Temperature != nil {
		t := *opts.Temperature
		s.temperature = &t
	}
	return s, nil
}

// setHandoffs wires hand-off targets and registers the transfer tool. It is
// only called while the Spec is still private to this package.
func (s *Spec) setHandoffs(targets []*Spec) error {
	if len(targets) == 0 {
		return nil
	}
	names := make([]string, 0, len(targets))
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t == nil {
			return fmt.Errorf("%w: agent %s: nil hand-off target", core.ErrInvalidArgument, s.name)
		}
		if t.name == s.name {
			return fmt.Errorf("%w: agent %s: cannot hand off to itself", core.ErrInvalidArgument, s.name)
		}
		if seen[t.name] {
			return fmt.Errorf("%w: agent %s: duplicate hand-off target %s", core.ErrInvalidArgument, s.name, t.name)
		}
		seen[t.name] = true
		names = append(names, t.name)
	}
	transfer, err := tool.NewTransferToAgentTool(names...)
	if err != nil {
		return fmt.Errorf("agent %s: %w", s.name, err)
	}
	if err := s.tools.Register(transfer); err != nil {
		return fmt.Errorf("agent %s: %w", s.name, err)
	}
	s.handoffs = append([]*Spec(nil), targets...)
	return nil
}

// Name returns the agent's unique name.
func (s *Spec) Name() string { return s.name }

// Description returns the human-readable description.
func (s *Spec) Description() string { return s.description }

// Model returns the model id override ("" for the provider default).
func (s *Spec) Model() string { return s.model }

// Temperature returns the configured temperature, or nil.
func (s *Spec) Temperature() *float64 {
	if s.temperature == nil {
		return nil
	}
	t := *s.temperature
	return &t
}

// MaxOutputTokens returns the output token limit (0 for the provider default).
func (s *Spec) MaxOutputTokens() int { return s.maxOutputTokens }

// Tools returns the agent's tool registry. It is frozen: Register fails.
func (s *Spec) Tools() *tool.Registry { return s.tools }

// Handoffs returns the hand-off targets in declaration order.
func (s *Spec) Handoffs() []*Spec { return append([]*Spec(nil), s.handoffs...) }

// Handoff looks up a hand-off target by name.
func (s *Spec) Handoff(name string) (*Spec, bool) {
	for _, h := range s.handoffs {
		if h.name == name {
			return h, true
		}
	}
	return nil, false
}

// InputGuardrails returns the chain applied to user messages (may be nil).
func (s *Spec) InputGuardrails() *guardrail.Chain { return s.inputGuardrails }

// OutputGuardrails returns the chain applied to the final answer (may be nil).
func (s *Spec) OutputGuardrails() *guardrail.Chain { return s.outputGuardrails }

// Instructions resolves the system prompt for a session.
func (s *Spec) Instructions(ic InstructionContext) (string, error) {
	ic.AgentName = s.name
	text, err := s.instruction.Resolve(ic)
	if err != nil {
		return "", fmt.Errorf("agent %s: resolve instructions: %w", s.name, err)
	}
	return text, nil
}

// ToolDefinitions describes the agent's tools for a provider request.
func (s *Spec) ToolDefinitions() []model.ToolDefinition {
	tools := s.tools.Tools()
	if len(tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema().JSONSchema(),
		}
	}
	return defs
}
