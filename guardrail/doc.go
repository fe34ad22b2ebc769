// Package guardrail implements content filters that run on user input, final
// assistant output and tool call arguments.
//
// Filters return one of three verdicts: Allow, Redact (with rewritten
// content) or Block. A Chain composes filters in order and resolves them
// most-restrictive-wins, either sequentially or in parallel.
package guardrail
