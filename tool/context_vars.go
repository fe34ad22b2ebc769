package tool

import (
	"fmt"

	"github.com/hupe1980/raaf/core"
)

// ContextVarsName is the name of the built-in context variable tool.
const ContextVarsName = "context_vars"

// ContextVarsTool lets the model read and write session context variables
// and recall or store long-term memories through the ToolContext.
type ContextVarsTool struct {
	schema *Schema
}

// NewContextVarsTool creates the context variable tool.
func NewContextVarsTool() *ContextVarsTool {
	schema, err := NewSchema(
		Param{
			Name:        "operation",
			Type:        "string",
			Required:    true,
			Enum:        []any{"get_var", "set_var", "search_memory", "store_memory"},
			Description: "The operation to perform",
		},
		Param{Name: "key", Type: "string", Description: "Variable name for get_var/set_var"},
		Param{Name: "value", Type: "string", Description: "Value for set_var"},
		Param{Name: "query", Type: "string", Description: "Search query for search_memory"},
		Param{Name: "content", Type: "string", Description: "Content for store_memory"},
		Param{Name: "metadata", Type: "object", Description: "Metadata for store_memory"},
		Param{Name: "limit", Type: "integer", Default: 5, Description: "Maximum search results"},
	)
	if err != nil {
		panic(err)
	}
	return &ContextVarsTool{schema: schema}
}

// Name returns the tool identifier.
func (t *ContextVarsTool) Name() string { return ContextVarsName }

// Description returns the tool description.
func (t *ContextVarsTool) Description() string {
	return "Reads and writes session context variables and searches or stores long-term memories. " +
		"Operations: get_var, set_var, search_memory, store_memory."
}

// Schema returns the parameter schema.
func (t *ContextVarsTool) Schema() *Schema { return t.schema }

// Call dispatches on the operation argument.
func (t *ContextVarsTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	switch op, _ := args["operation"].(string); op {
	case "get_var":
		key, err := requireString(args, "key", op)
		if err != nil {
			return nil, err
		}
		value, exists := tc.GetVar(key)
		return map[string]any{"key": key, "exists": exists, "value": value}, nil
	case "set_var":
		key, err := requireString(args, "key", op)
		if err != nil {
			return nil, err
		}
		tc.SetVar(key, args["value"])
		return map[string]any{"key": key, "value": args["value"], "success": true}, nil
	case "search_memory":
		query, err := requireString(args, "query", op)
		if err != nil {
			return nil, err
		}
		results, err := tc.SearchMemory(query, toInt(args["limit"], 5))
		if err != nil {
			return nil, err
		}
		return map[string]any{"query": query, "results": results, "count": len(results)}, nil
	case "store_memory":
		content, err := requireString(args, "content", op)
		if err != nil {
			return nil, err
		}
		md, _ := args["metadata"].(map[string]any)
		id, err := tc.StoreMemory(content, md)
		if err != nil {
			return nil, err
		}
		return map[string]any{"memory_id": id, "success": true}, nil
	default:
		return nil, fmt.Errorf("unknown operation: %s", op)
	}
}

func requireString(args map[string]any, key, op string) (string, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", NewToolError(ContextVarsName, core.ErrMissingRequiredParameter, fmt.Sprintf("%s (for %s)", key, op))
	}
	return v, nil
}

func toInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}
