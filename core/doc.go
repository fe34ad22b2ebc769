// Package core provides the foundational domain types and interfaces shared by
// every RAAF package:
//
//   - Messages and tool calls (the append-only conversation record)
//   - Sessions (per-conversation history plus context variables)
//   - Results and usage counters returned by a run
//   - The error taxonomy (sentinels matched with errors.Is)
//   - ToolContext (the scoped surface tools use during a dispatch)
//   - Pluggable store contracts for sessions and long-term memory
//
// Implementation concerns (persistence backends, provider SDKs, the turn loop)
// live in their own packages and depend on core, never the other way round.
package core
