package guardrail

import (
	"context"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/logging"
)

// Action is the verdict of a filter. Higher values are more restrictive.
type Action int

const (
	Allow Action = iota
	Redact
	Block
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case Redact:
		return "redact"
	case Block:
		return "block"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Stage identifies where a chain runs.
type Stage string

const (
	StageInput    Stage = "input"
	StageOutput   Stage = "output"
	StageToolCall Stage = "tool_call"
)

// Input is the content a filter inspects.
type Input struct {
	Stage     Stage
	Content   string
	ToolName  string
	AgentName string
	SessionID string
}

// Decision is a filter verdict. Content carries the rewritten text when
// Action is Redact.
type Decision struct {
	Action  Action `json:"action"`
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Filter  string `json:"filter,omitempty"`
}

// Err returns a core.ErrGuardrailTripped error for blocking decisions and nil
// otherwise.
func (d Decision) Err() error {
	if d.Action != Block {
		return nil
	}
	return fmt.Errorf("%w: %s: %s", core.ErrGuardrailTripped, d.Filter, d.Reason)
}

// Filter inspects content and returns a Decision.
type Filter interface {
	Name() string
	Check(ctx context.Context, in Input) (Decision, error)
}

// FilterFunc adapts a function into a Filter.
type FilterFunc struct {
	FilterName string
	Fn         func(ctx context.Context, in Input) (Decision, error)
}

func (f FilterFunc) Name() string { return f.FilterName }

func (f FilterFunc) Check(ctx context.Context, in Input) (Decision, error) { return f.Fn(ctx, in) }

// ChainOptions configure a Chain.
type ChainOptions struct {
	// Parallel evaluates every filter concurrently on the original content.
	Parallel       bool
	MaxConcurrency int
	Logger         logging.Logger
}

// Chain is an ordered list of filters resolved most-restrictive-wins
// (Block > Redact > Allow).
//
// Sequential chains feed redacted content into later filters and stop at the
// first Block. Parallel chains run every filter on the original content and
// pick the most restrictive verdict; ties go to the earliest filter. When the
// verdict is Redact, the redacting filters are applied in order so every
// rewrite lands in the returned Content.
//
// A filter that returns an error blocks. A nil *Chain allows everything.
type Chain struct {
	filters []Filter
	opts    ChainOptions
}

// NewChain creates a Chain.
func NewChain(filters []Filter, optFns ...func(o *ChainOptions)) *Chain {
	opts := ChainOptions{MaxConcurrency: 4, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Chain{filters: append([]Filter(nil), filters...), opts: opts}
}

// Len returns the number of filters.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.filters)
}

// Names returns filter names in order.
func (c *Chain) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.filters))
	for i, f := range c.filters {
		out[i] = f.Name()
	}
	return out
}

// Evaluate runs the chain and returns the resolved decision. The returned
// Content is always the text to use going forward.
func (c *Chain) Evaluate(ctx context.Context, in Input) Decision {
	if c == nil || len(c.filters) == 0 {
		return Decision{Action: Allow, Content: in.Content}
	}
	var d Decision
	if c.opts.Parallel {
		d = c.evaluateParallel(ctx, in)
	} else {
		d = c.evaluateSequential(ctx, in)
	}
	if d.Action != Allow {
		c.opts.Logger.Info("guardrail.decision",
			"stage", string(in.Stage), "action", d.Action.String(), "filter", d.Filter, "reason", d.Reason)
	}
	return d
}

func (c *Chain) evaluateSequential(ctx context.Context, in Input) Decision {
	result := Decision{Action: Allow, Content: in.Content}
	for _, f := range c.filters {
		d := check(ctx, f, in)
		switch d.Action {
		case Block:
			d.Content = ""
			return d
		case Redact:
			in.Content = d.Content
			result = Decision{Action: Redact, Content: d.Content, Reason: d.Reason, Filter: d.Filter}
		}
	}
	return result
}

func (c *Chain) evaluateParallel(ctx context.Context, in Input) Decision {
	decisions := make([]Decision, len(c.filters))
	p := pool.New().WithMaxGoroutines(c.opts.MaxConcurrency)
	for i, f := range c.filters {
		p.Go(func() {
			decisions[i] = check(ctx, f, in)
		})
	}
	p.Wait()

	result := Decision{Action: Allow, Content: in.Content}
	for _, d := range decisions {
		if d.Action > result.Action {
			result = d
		}
	}
	switch result.Action {
	case Block:
		result.Content = ""
	case Redact:
		result = c.composeRedactions(ctx, in, decisions)
	}
	return result
}

// composeRedactions reapplies every filter that redacted the original content,
// in chain order, each one on the output of the previous.
func (c *Chain) composeRedactions(ctx context.Context, in Input, decisions []Decision) Decision {
	var reasons, names []string
	for i, f := range c.filters {
		if decisions[i].Action != Redact {
			continue
		}
		d := decisions[i]
		if len(names) > 0 {
			d = check(ctx, f, in)
		}
		switch d.Action {
		case Block:
			d.Content = ""
			return d
		case Redact:
			in.Content = d.Content
			reasons = append(reasons, d.Reason)
			names = append(names, d.Filter)
		}
	}
	return Decision{Action: Redact, Content: in.Content, Reason: strings.Join(reasons, "; "), Filter: strings.Join(names, ",")}
}

func check(ctx context.Context, f Filter, in Input) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = Decision{Action: Block, Reason: fmt.Sprintf("filter panic: %v", r), Filter: f.Name()}
		}
	}()
	d, err := f.Check(ctx, in)
	if err != nil {
		return Decision{Action: Block, Reason: fmt.Sprintf("filter error: %v", err), Filter: f.Name()}
	}
	if d.Filter == "" {
		d.Filter = f.Name()
	}
	if d.Action == Allow {
		d.Content = in.Content
	}
	return d
}
