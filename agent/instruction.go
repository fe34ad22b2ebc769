package agent

import (
	"github.com/hupe1980/raaf/internal/util"
)

// InstructionContext is what an instruction provider can see when the
// system message is (re)built for a turn.
type InstructionContext struct {
	SessionID string
	AgentName string
	Vars      map[string]any
}

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from session vars, environment, etc.
type Provider interface {
	Instruction(ic InstructionContext) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ic InstructionContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ic InstructionContext) (string, error) { return f(ic) }

// Instruction represents either a static instruction template or a dynamic provider.
// This mirrors a union of string | provider in a Go-idiomatic way.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
// Session vars are available as {{ .name }}.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ic InstructionContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether neither text nor a provider is set.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text, invoking the provider or rendering
// the template with the session vars.
func (i Instruction) Resolve(ic InstructionContext) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ic)
	}
	return util.RenderTemplate(i.text, ic.Vars)
}
