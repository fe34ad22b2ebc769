// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side effects) with schema
// validated arguments and consistent error payloads.
package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/raaf/core"
)

// Tool is a statically declared capability an agent may request.
//
// Tool implementations should:
//   - Provide a stable snake_case name and a description aimed at the model
//   - Declare every parameter in Schema; arguments are validated before Call
//   - Be safe for concurrent use, calls of one turn may run in parallel
//   - Honor tc.Context() cancellation when performing I/O
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description provided to the model.
	Description() string

	// Schema returns the validated parameter schema.
	Schema() *Schema

	// Call executes the tool with validated arguments (defaults applied).
	Call(tc *core.ToolContext, args map[string]any) (any, error)
}

// ToolError is the error a failed invocation produces. Its message is the
// payload handed back to the model, e.g. "MissingRequiredParameter: location".
type ToolError struct {
	Tool   string `json:"tool"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
	Err    error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Detail == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap exposes the taxonomy sentinel so errors.Is works on tool failures.
func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a ToolError for the given taxonomy sentinel.
func NewToolError(tool string, sentinel error, detail string) *ToolError {
	return &ToolError{
		Tool:   tool,
		Kind:   core.KindOf(sentinel),
		Detail: detail,
		Err:    sentinel,
	}
}

// asToolError converts any tool failure into a ToolError, keeping the kind of
// errors that already carry one.
func asToolError(tool string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		if te.Tool == "" {
			te.Tool = tool
		}
		return te
	}
	return &ToolError{
		Tool:   tool,
		Kind:   core.KindOf(core.ErrToolExecution),
		Detail: fmt.Sprintf("%s: %v", tool, err),
		Err:    fmt.Errorf("%w: %w", core.ErrToolExecution, err),
	}
}
