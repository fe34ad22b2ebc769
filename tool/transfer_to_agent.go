package tool

import (
	"fmt"

	"github.com/hupe1980/raaf/core"
)

// TransferToAgentName is the name of the built-in hand-off tool.
const TransferToAgentName = "transfer_to_agent"

// transferToAgentTool requests a hand-off to another agent.
type transferToAgentTool struct {
	schema *Schema
}

// NewTransferToAgentTool constructs the hand-off tool. When targets are given
// the agent argument is restricted to them.
func NewTransferToAgentTool(targets ...string) (Tool, error) {
	p := Param{Name: "agent", Type: "string", Required: true, Description: "Target agent name"}
	for _, t := range targets {
		p.Enum = append(p.Enum, t)
	}
	schema, err := NewSchema(p)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", TransferToAgentName, err)
	}
	return &transferToAgentTool{schema: schema}, nil
}

func (t *transferToAgentTool) Name() string { return TransferToAgentName }

func (t *transferToAgentTool) Description() string {
	return "Transfer the conversation to another agent by name. Use when another agent is better suited."
}

func (t *transferToAgentTool) Schema() *Schema { return t.schema }

func (t *transferToAgentTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	agentName, _ := args["agent"].(string)
	if agentName == "" {
		return nil, NewToolError(TransferToAgentName, core.ErrInvalidArgument, "agent must be a non-empty string")
	}
	if agentName == tc.AgentName() {
		return nil, fmt.Errorf("already talking to %s", agentName)
	}
	tc.TransferToAgent(agentName)
	return map[string]any{"transferred": true, "agent": agentName}, nil
}
