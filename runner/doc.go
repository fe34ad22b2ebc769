// Package runner implements the execution engine of RAAF.
//
// A Runner takes a user message, a session id and an immutable agent.Spec
// and drives the provider through a bounded loop:
//
//  1. lock the session (a concurrent run on the same id fails fast with
//     core.ErrSessionLocked), load or create it, merge run context vars
//  2. run the agent's input guardrails, (re)install the system message and
//     append the user message
//  3. per turn: build a token-bounded window through the memory manager,
//     call the provider (retried with backoff for transient failures) and
//     either finish on plain text or dispatch the requested tool calls
//  4. tool calls of a turn run in parallel (bounded), each under its own
//     timeout; results are appended in request order and their actions
//     (var deltas, hand-offs) applied in the same order
//  5. stop on a text answer (after output guardrails) or after max_turns
//     provider calls with core.ErrTurnLimitExceeded
//
// Tool failures never abort a run; they become tool messages carrying an
// error payload the model can react to. Every Run returns a non-nil
// core.Result, including partial progress when it fails.
package runner
