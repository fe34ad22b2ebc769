package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/logging"
)

// Window is the result of BuildContext.
type Window struct {
	Messages []core.Message
	Tokens   int
	Budget   int
	// Overflow is set when the system message plus the current exchange
	// (latest user message, its newest group and whatever tool exchanges
	// fit between them) still exceed the budget.
	Overflow bool
	// Dropped counts session messages left out of the window.
	Dropped int
	// Summarized counts session messages replaced by the summary message.
	Summarized int
	Strategy   string
	Warnings   []string
}

// Options configures a Manager.
type Options struct {
	Strategy  Strategy
	Estimator TokenEstimator
	Logger    logging.Logger
}

// Manager builds bounded context windows from sessions. It holds no
// per-session state and is safe for concurrent use.
type Manager struct {
	opts Options
}

// NewManager creates a Manager. The default strategy is SlidingWindow.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{
		Strategy:  SlidingWindow{},
		Estimator: DefaultEstimator,
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Strategy == nil {
		opts.Strategy = SlidingWindow{}
	}
	if opts.Estimator == nil {
		opts.Estimator = DefaultEstimator
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Manager{opts: opts}
}

// Estimator returns the configured token estimator.
func (m *Manager) Estimator() TokenEstimator { return m.opts.Estimator }

// Estimate returns the estimated token count of msgs.
func (m *Manager) Estimate(msgs []core.Message) int { return EstimateAll(m.opts.Estimator, msgs) }

// BuildContext returns the ordered messages to send for sess within budget
// tokens. The output depends only on the session snapshot and budget.
func (m *Manager) BuildContext(ctx context.Context, sess *core.Session, budget int) (*Window, error) {
	if sess == nil {
		return nil, fmt.Errorf("%w: nil session", core.ErrInvalidArgument)
	}
	if budget <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive, got %d", core.ErrInvalidArgument, budget)
	}

	est := m.opts.Estimator
	msgs := sess.GetMessages()

	var system []core.Message
	if len(msgs) > 0 && msgs[0].Role == core.RoleSystem {
		system, msgs = msgs[:1], msgs[1:]
	}

	w := &Window{Budget: budget, Strategy: m.opts.Strategy.Name()}
	groups := groupMessages(msgs, est)
	if len(groups) == 0 {
		w.Messages = core.CloneMessages(system)
		w.Tokens = EstimateAll(est, system)
		if w.Tokens > budget {
			w.overflow()
		}
		return w, nil
	}

	// The current exchange (latest user message and everything after it)
	// is always sent; only older groups compete for the rest of the budget.
	start := currentExchange(groups)
	older, tail := groups[:start], groups[start:]

	sysTokens := EstimateAll(est, system)
	required := sysTokens + sumTokens(tail)
	if required > budget {
		kept := trimExchange(tail, budget-sysTokens)
		w.Messages = append(core.CloneMessages(system), flattenGroups(kept)...)
		w.Tokens = sysTokens + sumTokens(kept)
		w.Dropped = countMessages(older) + countMessages(tail) - countMessages(kept)
		if w.Tokens > budget {
			w.overflow()
			m.opts.Logger.Warn("memory.context.overflow", "session_id", sess.ID, "budget", budget, "required", w.Tokens)
		} else {
			w.Warnings = append(w.Warnings, fmt.Sprintf("%d tool exchange(s) of the current turn dropped to fit the budget", len(tail)-len(kept)))
		}
		return w, nil
	}
	remaining := budget - required

	// Pinned groups go first; oldest are dropped while they do not fit.
	var pinned, candidates []Group
	for _, g := range older {
		if g.Pinned {
			pinned = append(pinned, g)
		} else {
			candidates = append(candidates, g)
		}
	}
	for sumTokens(pinned) > remaining {
		w.Warnings = append(w.Warnings, fmt.Sprintf("pinned message %s dropped: budget exhausted", pinned[0].Messages[0].ID))
		pinned = pinned[1:]
	}
	remaining -= sumTokens(pinned)

	req := Request{
		Candidates:       candidates,
		Budget:           remaining,
		ReservedMessages: countMessages(tail) + countMessages(pinned),
		Query:            latestUserText(msgs),
		Estimator:        est,
	}
	sel, err := m.opts.Strategy.Select(ctx, req)
	if err != nil {
		w.Warnings = append(w.Warnings, fmt.Sprintf("%s strategy failed, using sliding window: %v", w.Strategy, err))
		m.opts.Logger.Warn("memory.strategy.failed", "strategy", w.Strategy, "error", err.Error())
		sel, _ = SlidingWindow{}.Select(ctx, req)
	}
	w.Warnings = append(w.Warnings, sel.Warnings...)

	kept, summary := m.enforce(candidates, sel, remaining, &w.Warnings)

	chosen := make([]Group, 0, len(pinned)+len(kept)+len(tail))
	chosen = append(chosen, pinned...)
	chosen = append(chosen, kept...)
	sort.SliceStable(chosen, func(i, j int) bool { return chosen[i].Index < chosen[j].Index })
	history := countMessages(chosen)
	chosen = append(chosen, tail...)

	out := core.CloneMessages(system)
	if summary != nil {
		out = append(out, summary.Clone())
		if n, ok := summary.Metadata["covered_messages"].(int); ok {
			w.Summarized = n
		}
	}
	out = append(out, flattenGroups(chosen)...)

	w.Messages = out
	w.Tokens = EstimateAll(est, out)
	w.Dropped = countMessages(older) - history
	return w, nil
}

// currentExchange returns the index of the group holding the latest user
// message, or of the last group when there is none.
func currentExchange(groups []Group) int {
	for i := len(groups) - 1; i >= 0; i-- {
		if groups[i].Messages[0].Role == core.RoleUser {
			return i
		}
	}
	return len(groups) - 1
}

// trimExchange fits the current exchange into budget by dropping the oldest
// groups between its first and last group. The opening user message and the
// newest group are never dropped.
func trimExchange(tail []Group, budget int) []Group {
	if len(tail) <= 2 {
		return tail
	}
	first, middle, last := tail[0], tail[1:len(tail)-1], tail[len(tail)-1]
	for len(middle) > 0 && first.Tokens+sumTokens(middle)+last.Tokens > budget {
		middle = middle[1:]
	}
	out := make([]Group, 0, len(middle)+2)
	out = append(out, first)
	out = append(out, middle...)
	return append(out, last)
}

// enforce turns a Selection into groups and trims it, oldest first, if a
// strategy overshot its budget.
func (m *Manager) enforce(cands []Group, sel Selection, budget int, warnings *[]string) ([]Group, *core.Message) {
	seen := map[int]bool{}
	var kept []Group
	for _, pos := range sel.Keep {
		if pos < 0 || pos >= len(cands) || seen[pos] {
			continue
		}
		seen[pos] = true
		kept = append(kept, cands[pos])
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Index < kept[j].Index })

	summary := sel.Summary
	limit := budget
	if summary != nil {
		if t := m.opts.Estimator.Estimate(*summary); t <= budget {
			limit -= t
		} else {
			summary = nil
			*warnings = append(*warnings, "summary dropped: larger than the remaining budget")
		}
	}
	trimmed := false
	for len(kept) > 0 && sumTokens(kept) > limit {
		kept = kept[1:]
		trimmed = true
	}
	if trimmed {
		*warnings = append(*warnings, "strategy selection exceeded budget and was trimmed")
	}
	return kept, summary
}

func (w *Window) overflow() {
	w.Overflow = true
	w.Warnings = append(w.Warnings, fmt.Sprintf("%s: required context needs %d tokens, budget is %d",
		core.KindOf(core.ErrContextOverflow), w.Tokens, w.Budget))
}
