package tool

import (
	"fmt"
	"strconv"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/internal/util"
)

// Func is the signature of a function backing a FunctionTool.
type Func func(tc *core.ToolContext, args map[string]any) (any, error)

// FunctionTool exposes a plain Go function as a tool.
//
// The name, parameter schema and function are fixed at construction, so a
// FunctionTool has no mutable state and is safe for concurrent use.
type FunctionTool struct {
	name        string
	description string
	schema      *Schema
	fn          Func
}

// NewFunctionTool constructs a FunctionTool from explicit parameters.
//
// Example:
//
//	weather, err := tool.NewFunctionTool(
//	  "get_weather",
//	  "Get the current weather for a location",
//	  []tool.Param{{Name: "location", Type: "string", Required: true}},
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return lookup(tc.Context(), args["location"].(string))
//	  },
//	)
func NewFunctionTool(name, description string, params []Param, fn Func) (*FunctionTool, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid tool name %q", name)
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %s: nil function", name)
	}
	schema, err := NewSchema(params...)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return &FunctionTool{
		name:        name,
		description: description,
		schema:      schema,
		fn:          fn,
	}, nil
}

// NewFunctionToolFromStruct derives the parameters from a struct's json,
// description, default and enum tags.
//
//	type WeatherArgs struct {
//	  Location string `json:"location" description:"City name"`
//	  Units    string `json:"units,omitempty" enum:"metric,imperial" default:"metric"`
//	}
func NewFunctionToolFromStruct(name, description string, structType any, fn Func) (*FunctionTool, error) {
	fields, err := util.StructFields(structType)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}

	params := make([]Param, 0, len(fields))
	for _, f := range fields {
		p := Param{
			Name:        f.Name,
			Type:        f.Type,
			Required:    f.Required,
			Description: f.Description,
		}
		if f.Default != "" {
			if p.Default, err = parseLiteral(f.Default, f.Type); err != nil {
				return nil, fmt.Errorf("tool %s: parameter %s: %w", name, f.Name, err)
			}
		}
		for _, e := range f.Enum {
			v, err := parseLiteral(e, f.Type)
			if err != nil {
				return nil, fmt.Errorf("tool %s: parameter %s: %w", name, f.Name, err)
			}
			p.Enum = append(p.Enum, v)
		}
		params = append(params, p)
	}
	return NewFunctionTool(name, description, params, fn)
}

// MustFunctionTool is like NewFunctionTool but panics on error. Use it for
// tools declared at package init.
func MustFunctionTool(name, description string, params []Param, fn Func) *FunctionTool {
	t, err := NewFunctionTool(name, description, params, fn)
	if err != nil {
		panic(err)
	}
	return t
}

func parseLiteral(s, typ string) (any, error) {
	switch typ {
	case "integer":
		return strconv.ParseInt(s, 10, 64)
	case "number":
		return strconv.ParseFloat(s, 64)
	case "boolean":
		return strconv.ParseBool(s)
	case "string":
		return s, nil
	default:
		return nil, fmt.Errorf("tag literals are not supported for %s", typ)
	}
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Schema returns the parameter schema.
func (t *FunctionTool) Schema() *Schema { return t.schema }

// Call invokes the wrapped function. Arguments are validated by the Registry
// before Call is reached.
func (t *FunctionTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	return t.fn(tc, args)
}
