// Package agent defines agent specifications for RAAF.
//
// A Spec bundles everything the runner needs to drive one agent:
//
//  1. Identity and model parameters (name, model override, temperature, output cap)
//  2. An Instruction rendered against the session context variables
//  3. A tool registry and hand-off targets (the transfer_to_agent tool is
//     registered automatically when hand-offs exist)
//  4. Optional input and output guardrail chains
//
// Specs are validated once by New and are immutable afterwards, so a single
// Spec can serve many concurrent runs. Definitions loaded from YAML
// (LoadDefinitions, ParseDefinitions) are turned into Specs by Build, which
// resolves tool names through a Catalog and hand-offs by agent name.
//
// Execution lives in the runner package; this package holds no run state.
package agent
