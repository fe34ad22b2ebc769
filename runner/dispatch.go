package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/guardrail"
	"github.com/hupe1980/raaf/logging"
	"github.com/hupe1980/raaf/tool"
)

// callScope is what every call of one batch shares.
type callScope struct {
	runID     string
	sessionID string
	agentName string
	tools     *tool.Registry
	// vars is a snapshot taken before the batch; calls only read it.
	vars map[string]any
}

// callOutcome is the result of one tool call plus the actions it requested.
type callOutcome struct {
	call    core.ToolCall
	result  tool.Result
	actions core.ToolActions
}

// dispatcher executes the tool calls of one turn with bounded parallelism.
// Results land in per-index slots so they can be appended in request order
// regardless of completion order.
type dispatcher struct {
	parallelism int
	timeout     time.Duration
	guard       *guardrail.Chain
	memory      core.MemoryStore
	logger      logging.Logger
}

func (d *dispatcher) dispatch(ctx context.Context, scope callScope, calls []core.ToolCall) []callOutcome {
	n := len(calls)
	out := make([]callOutcome, n)
	if n == 0 {
		return out
	}

	// Single call, execute inline.
	if n == 1 {
		out[0] = d.invoke(ctx, scope, calls[0])
		return out
	}

	maxPar := d.parallelism
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	start := time.Now()
	p := pool.New().WithMaxGoroutines(maxPar)
	for i, c := range calls {
		p.Go(func() {
			out[i] = d.invoke(ctx, scope, c)
		})
	}
	p.Wait()

	d.logger.Debug("runner.tools.batch.complete",
		"agent", scope.agentName,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// invoke runs one call under the tool timeout. A tool that ignores
// cancellation is abandoned: its eventual result and actions are discarded.
func (d *dispatcher) invoke(ctx context.Context, scope callScope, call core.ToolCall) callOutcome {
	oc := callOutcome{call: call}

	if err := ctx.Err(); err != nil {
		oc.result = tool.ErrorResult(tool.NewToolError(call.Name, core.ErrToolExecution, fmt.Sprintf("not started: %v", err)))
		return oc
	}

	if d.guard != nil {
		dec := d.guard.Evaluate(ctx, guardrail.Input{
			Stage:     guardrail.StageToolCall,
			Content:   string(call.Arguments),
			ToolName:  call.Name,
			AgentName: scope.agentName,
			SessionID: scope.sessionID,
		})
		if err := dec.Err(); err != nil {
			d.logger.Warn("runner.tool.blocked", "tool", call.Name, "call_id", call.ID, "filter", dec.Filter, "reason", dec.Reason)
			oc.result = tool.ErrorResult(tool.NewToolError(call.Name, core.ErrGuardrailTripped, fmt.Sprintf("%s: %s", dec.Filter, dec.Reason)))
			return oc
		}
		if dec.Action == guardrail.Redact {
			if !json.Valid([]byte(dec.Content)) {
				d.logger.Warn("runner.tool.guardrail.invalid_redaction", "tool", call.Name, "call_id", call.ID, "filter", dec.Filter)
				oc.result = tool.ErrorResult(tool.NewToolError(call.Name, core.ErrGuardrailTripped, fmt.Sprintf("%s: redacted arguments are not valid JSON", dec.Filter)))
				return oc
			}
			call.Arguments = json.RawMessage(dec.Content)
		}
	}

	tctx, cancel := ctx, context.CancelFunc(func() {})
	if d.timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	tc := core.NewToolContext(tctx, core.ToolContextConfig{
		RunID:     scope.runID,
		SessionID: scope.sessionID,
		AgentName: scope.agentName,
		CallID:    call.ID,
		ToolName:  call.Name,
		Vars:      scope.vars,
		Memory:    d.memory,
		Logger:    d.logger,
	})

	done := make(chan tool.Result, 1)
	go func() {
		done <- scope.tools.InvokeJSON(tc, call.Name, call.Arguments)
	}()

	select {
	case res := <-done:
		oc.result = res
		oc.actions = tc.Actions()
	case <-tctx.Done():
		d.logger.Error("runner.tool.abandoned", "tool", call.Name, "call_id", call.ID, "timeout", d.timeout)
		oc.result = tool.ErrorResult(tool.NewToolError(call.Name, core.ErrToolExecution,
			fmt.Sprintf("%s: no result within %s", call.Name, d.timeout)))
	}

	if sl, ok := d.logger.(interface {
		LogToolCall(string, time.Duration, bool, error)
	}); ok {
		sl.LogToolCall(call.Name, oc.result.Duration, oc.result.OK(), oc.result.Err)
	}
	return oc
}
