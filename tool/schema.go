package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/internal/util"
)

var (
	namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	knownTypes  = map[string]bool{
		"string": true, "integer": true, "number": true, "boolean": true, "array": true, "object": true,
	}
)

// Param declares one tool parameter.
type Param struct {
	Name        string
	Type        string
	Required    bool
	Default     any
	Description string
	Enum        []any
}

// Schema is an ordered parameter list plus its compiled JSON schema. It is
// immutable once built.
type Schema struct {
	params   []Param
	raw      map[string]any
	compiled *jsonschema.Schema
}

// NewSchema validates the parameter declarations and compiles them.
func NewSchema(params ...Param) (*Schema, error) {
	seen := make(map[string]bool, len(params))
	props := make(map[string]any, len(params))
	required := []string{}

	for _, p := range params {
		if !namePattern.MatchString(p.Name) {
			return nil, fmt.Errorf("invalid parameter name %q", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true

		if !knownTypes[p.Type] {
			return nil, fmt.Errorf("parameter %q: unknown type %q", p.Name, p.Type)
		}
		if p.Default != nil {
			if p.Required {
				return nil, fmt.Errorf("parameter %q: required parameters cannot have a default", p.Name)
			}
			if !util.MatchesType(p.Default, p.Type) {
				return nil, fmt.Errorf("parameter %q: default %v is not a %s", p.Name, p.Default, p.Type)
			}
		}
		for _, e := range p.Enum {
			if !util.MatchesType(e, p.Type) {
				return nil, fmt.Errorf("parameter %q: enum value %v is not a %s", p.Name, e, p.Type)
			}
		}

		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Type == "array" {
			prop["items"] = map[string]any{}
		}
		props[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	raw := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}

	compiled, err := compile(raw)
	if err != nil {
		return nil, err
	}

	return &Schema{params: append([]Param(nil), params...), raw: raw, compiled: compiled}, nil
}

func compile(raw map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("params.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("params.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// Params returns a copy of the declared parameters in declaration order.
func (s *Schema) Params() []Param {
	if s == nil {
		return nil
	}
	return append([]Param(nil), s.params...)
}

// JSONSchema returns the JSON schema object handed to providers.
func (s *Schema) JSONSchema() map[string]any {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return s.raw
}

// Validate checks args against the declared parameters and returns a new map
// with defaults applied. Checks run in a fixed order: required parameters in
// declaration order, then types, then the remaining schema constraints.
func (s *Schema) Validate(tool string, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if s == nil {
		return out, nil
	}

	for _, p := range s.params {
		if v, ok := out[p.Name]; p.Required && (!ok || v == nil) {
			return nil, NewToolError(tool, core.ErrMissingRequiredParameter, p.Name)
		}
	}

	for _, p := range s.params {
		v, ok := out[p.Name]
		if !ok || v == nil {
			continue
		}
		if !util.MatchesType(v, p.Type) {
			return nil, NewToolError(tool, core.ErrTypeMismatch,
				fmt.Sprintf("%s: expected %s, got %s", p.Name, p.Type, util.DescribeType(v)))
		}
	}

	for _, p := range s.params {
		if v, ok := out[p.Name]; (!ok || v == nil) && p.Default != nil {
			out[p.Name] = p.Default
		}
	}

	if s.compiled != nil {
		doc, err := normalize(out)
		if err != nil {
			return nil, NewToolError(tool, core.ErrInvalidArgument, err.Error())
		}
		if err := s.compiled.Validate(doc); err != nil {
			return nil, NewToolError(tool, core.ErrInvalidArgument, flatten(err.Error()))
		}
	}

	return out, nil
}

// normalize round-trips args through JSON so the validator sees the same value
// shapes a decoded provider payload would have.
func normalize(args map[string]any) (any, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("arguments are not JSON serializable: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

func flatten(msg string) string {
	lines := strings.Split(msg, "\n")
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "- "))
		if l == "" || strings.HasPrefix(l, "jsonschema validation failed") {
			continue
		}
		parts = append(parts, l)
	}
	if len(parts) == 0 {
		return strings.TrimSpace(msg)
	}
	return strings.Join(parts, "; ")
}
