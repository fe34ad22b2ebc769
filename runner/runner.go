package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/raaf/agent"
	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/guardrail"
	"github.com/hupe1980/raaf/logging"
	"github.com/hupe1980/raaf/memory"
	"github.com/hupe1980/raaf/model"
	"github.com/hupe1980/raaf/session"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxTurns is the default cap on provider calls per run.
	MaxTurns int
	// ContextBudget is the token budget handed to the memory manager.
	ContextBudget int
	// ToolParallelism bounds concurrent tool calls within one turn.
	ToolParallelism int
	// ToolTimeout bounds a single tool invocation; zero disables it.
	ToolTimeout time.Duration
	// RunTimeout bounds a whole run when the caller's context has no
	// earlier deadline; zero disables it.
	RunTimeout time.Duration
	// Retrier wraps the provider; nil disables retries.
	Retrier *model.Retrier
	// ToolGuardrails inspects the arguments of every tool call.
	ToolGuardrails *guardrail.Chain
	// Observer receives run events from every run.
	Observer core.Observer

	SessionStore core.SessionStore
	MemoryStore  core.MemoryStore
	Memory       *memory.Manager
	Locker       *session.Locker
	Logger       logging.Logger
}

// RunOptions tunes a single run.
type RunOptions struct {
	// MaxTurns overrides the runner default when > 0.
	MaxTurns int
	// Context is merged into the session vars before the run.
	Context map[string]any
	// Observer receives this run's events in addition to the runner's.
	Observer core.Observer
}

// Runner drives an agent through the bounded turn loop: build context, call
// the provider, dispatch tool calls, repeat until a plain text answer or the
// turn limit. Public methods are safe for concurrent use; runs on the same
// session are mutually exclusive.
type Runner struct {
	provider model.Provider
	opts     Options
	tools    *dispatcher
}

// New constructs a Runner with optional overrides.
func New(provider model.Provider, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxTurns:        10,
		ContextBudget:   8000,
		ToolParallelism: 4,
		ToolTimeout:     30 * time.Second,
		Retrier:         model.NewRetrier(),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewInMemoryStore()
	}
	if opts.MemoryStore == nil {
		opts.MemoryStore = memory.NewInMemoryStore()
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewManager(func(o *memory.Options) { o.Logger = opts.Logger })
	}
	if opts.Locker == nil {
		opts.Locker = session.NewLocker()
	}
	if opts.Retrier != nil {
		provider = model.WithRetry(provider, opts.Retrier)
	}

	return &Runner{
		provider: provider,
		opts:     opts,
		tools: &dispatcher{
			parallelism: opts.ToolParallelism,
			timeout:     opts.ToolTimeout,
			guard:       opts.ToolGuardrails,
			memory:      opts.MemoryStore,
			logger:      opts.Logger,
		},
	}
}

// SessionStore returns the store sessions are persisted in.
func (r *Runner) SessionStore() core.SessionStore { return r.opts.SessionStore }

// MemoryStore returns the long-term memory store exposed to tools.
func (r *Runner) MemoryStore() core.MemoryStore { return r.opts.MemoryStore }

// Locker returns the session locker guarding runs.
func (r *Runner) Locker() *session.Locker { return r.opts.Locker }

// Run executes spec against the session identified by sessionID, creating the
// session on first use. It always returns a non-nil Result; on failure the
// Result carries the messages produced so far and the same error is returned.
func (r *Runner) Run(ctx context.Context, sessionID, message string, spec *agent.Spec, optFns ...func(o *RunOptions)) (*core.Result, error) {
	ro := RunOptions{MaxTurns: r.opts.MaxTurns}
	for _, fn := range optFns {
		fn(&ro)
	}
	if ro.MaxTurns <= 0 {
		ro.MaxTurns = r.opts.MaxTurns
	}

	st := &runState{
		r:      r,
		ro:     ro,
		start:  time.Now(),
		res:    &core.Result{RunID: core.NewID(), SessionID: sessionID},
		logger: r.opts.Logger,
	}
	if sl, ok := r.opts.Logger.(*logging.StructuredLogger); ok {
		st.logger = sl.WithSession(sessionID, st.res.RunID)
	}

	if spec == nil {
		return st.fail(fmt.Errorf("%w: nil agent spec", core.ErrInvalidArgument))
	}
	st.spec = spec
	st.res.AgentName = spec.Name()

	if sessionID == "" {
		return st.fail(fmt.Errorf("%w: empty session id", core.ErrInvalidArgument))
	}

	unlock, err := r.opts.Locker.TryLock(sessionID)
	if err != nil {
		return st.fail(err)
	}
	defer unlock()

	if r.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
	}

	sess, err := r.loadSession(ctx, sessionID)
	if err != nil {
		return st.fail(err)
	}
	st.sess = sess
	defer st.save(ctx)

	st.emit(core.NewEvent(core.EventRunStarted, st.res.RunID, sessionID, spec.Name()))
	st.logger.Info("runner.run.start", "agent", spec.Name(), "max_turns", ro.MaxTurns)

	sess.ApplyVars(ro.Context)

	content, err := st.runGuardrail(ctx, spec.InputGuardrails(), guardrail.StageInput, message)
	if err != nil {
		return st.fail(err)
	}

	if err := st.installInstructions(); err != nil {
		return st.fail(err)
	}
	if err := st.append(core.NewUserMessage(content), false); err != nil {
		return st.fail(err)
	}

	return st.loop(ctx)
}

func (r *Runner) loadSession(ctx context.Context, id string) (*core.Session, error) {
	sess, err := r.opts.SessionStore.Get(ctx, id)
	if errors.Is(err, core.ErrSessionNotFound) {
		return r.opts.SessionStore.Create(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return sess, nil
}

// runState carries one run through the loop.
type runState struct {
	r      *Runner
	ro     RunOptions
	spec   *agent.Spec
	sess   *core.Session
	res    *core.Result
	turn   int
	start  time.Time
	logger logging.Logger
}

func (st *runState) loop(ctx context.Context) (*core.Result, error) {
	limiter := core.NewTurnLimiter(st.ro.MaxTurns)

	for {
		turn, err := limiter.Next()
		if err != nil {
			return st.fail(err)
		}
		st.turn = turn
		st.res.Turns = turn

		resp, err := st.complete(ctx)
		if err != nil {
			return st.fail(err)
		}

		if resp.Kind != model.KindToolCalls || len(resp.ToolCalls) == 0 {
			return st.finish(ctx, resp.Content)
		}

		calls := withCallIDs(resp.ToolCalls)
		if err := st.append(core.NewToolCallMessage(st.spec.Name(), resp.Content, calls), true); err != nil {
			return st.fail(err)
		}

		target, err := st.runTools(ctx, calls)
		if err != nil {
			return st.fail(err)
		}
		if target != "" {
			if err := st.handoff(target); err != nil {
				return st.fail(err)
			}
		}

		if err := ctx.Err(); err != nil {
			return st.fail(abortErr(err))
		}
	}
}

// complete builds the context window and calls the provider once (retries
// happen inside the wrapped provider).
func (st *runState) complete(ctx context.Context) (*model.Response, error) {
	w, err := st.r.opts.Memory.BuildContext(ctx, st.sess, st.r.opts.ContextBudget)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}
	if w.Overflow {
		st.res.Warn(fmt.Sprintf("%s: %d tokens required, budget %d", core.ErrContextOverflow, w.Tokens, w.Budget))
	}
	for _, warn := range w.Warnings {
		st.res.Warn(warn)
	}
	st.sess.SetTokenEstimate(w.Tokens)

	req := model.Request{
		Model:           st.spec.Model(),
		Messages:        w.Messages,
		Tools:           st.spec.ToolDefinitions(),
		Temperature:     st.spec.Temperature(),
		MaxOutputTokens: st.spec.MaxOutputTokens(),
	}

	st.logger.Debug("runner.turn.start", "turn", st.turn, "agent", st.spec.Name(),
		"window_messages", len(w.Messages), "window_tokens", w.Tokens, "dropped", w.Dropped)

	start := time.Now()
	resp, err := st.r.provider.Complete(ctx, req)
	if sl, ok := st.logger.(*logging.StructuredLogger); ok {
		tokens := 0
		if resp != nil {
			tokens = resp.Usage.TotalTokens
		}
		sl.LogProviderCall(req.Model, tokens, time.Since(start), err == nil, err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, abortErr(ctx.Err())
		}
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: provider returned no response", core.ErrProviderUnavailable)
	}
	st.res.Usage.Add(resp.Usage)
	return resp, nil
}

// runTools dispatches calls, appends the results in request order and applies
// the requested actions in the same order. It returns the hand-off target
// requested last, if any.
func (st *runState) runTools(ctx context.Context, calls []core.ToolCall) (string, error) {
	for _, c := range calls {
		ev := core.NewEvent(core.EventToolDispatched, st.res.RunID, st.sess.ID, st.spec.Name())
		ev.Turn = st.turn
		ev.Detail = c.Name
		st.emit(ev)
	}

	outcomes := st.r.tools.dispatch(ctx, callScope{
		runID:     st.res.RunID,
		sessionID: st.sess.ID,
		agentName: st.spec.Name(),
		tools:     st.spec.Tools(),
		vars:      st.sess.VarsSnapshot(),
	}, calls)

	var target string
	for _, oc := range outcomes {
		msg := core.NewToolResultMessage(oc.call.ID, oc.call.Name, oc.result.Content(), oc.result.Payload)
		msg.Agent = st.spec.Name()
		msg.Metadata = map[string]any{"status": string(oc.result.Status)}
		if !oc.result.OK() {
			msg.Metadata["error_kind"] = core.KindOf(oc.result.Err)
		}
		if err := st.append(msg, true); err != nil {
			return "", err
		}

		st.sess.ApplyVars(oc.actions.VarsDelta)
		if oc.actions.TransferToAgent != nil && *oc.actions.TransferToAgent != "" {
			target = *oc.actions.TransferToAgent
		}
	}
	return target, nil
}

// handoff switches the active agent and replaces the system message.
func (st *runState) handoff(target string) error {
	next, ok := st.spec.Handoff(target)
	if !ok {
		st.res.Warn(fmt.Sprintf("agent %s: ignored hand-off to unknown agent %q", st.spec.Name(), target))
		st.logger.Warn("runner.handoff.unknown", "from_agent", st.spec.Name(), "to_agent", target)
		return nil
	}

	ev := core.NewEvent(core.EventHandoff, st.res.RunID, st.sess.ID, st.spec.Name())
	ev.Turn = st.turn
	ev.Detail = next.Name()
	st.emit(ev)
	st.logger.Info("runner.handoff", "from_agent", st.spec.Name(), "to_agent", next.Name(), "turn", st.turn)

	st.spec = next
	st.res.AgentName = next.Name()
	return st.installInstructions()
}

// finish applies the output chain to the final answer and closes the run.
func (st *runState) finish(ctx context.Context, text string) (*core.Result, error) {
	content, err := st.runGuardrail(ctx, st.spec.OutputGuardrails(), guardrail.StageOutput, text)
	if err != nil {
		return st.fail(err)
	}
	if err := st.append(core.NewAssistantMessage(st.spec.Name(), content), true); err != nil {
		return st.fail(err)
	}

	st.res.Success = true
	st.res.Error = nil
	st.logRun(nil)
	st.emitFinished()
	return st.res, nil
}

func (st *runState) fail(err error) (*core.Result, error) {
	st.res.Fail(err)
	st.logRun(err)
	st.emitFinished()
	return st.res, err
}

func (st *runState) installInstructions() error {
	text, err := st.spec.Instructions(agent.InstructionContext{
		SessionID: st.sess.ID,
		Vars:      st.sess.VarsSnapshot(),
	})
	if err != nil {
		return err
	}
	return st.sess.SetSystemMessage(core.NewSystemMessage(text))
}

// append adds msg to the session, reports it, and records it in the Result
// when produced by this run.
func (st *runState) append(msg core.Message, record bool) error {
	if err := st.sess.AddMessage(msg); err != nil {
		return err
	}
	if record {
		st.res.Messages = append(st.res.Messages, msg.Clone())
	}
	st.emit(core.NewMessageEvent(st.res.RunID, st.sess.ID, st.turn, msg))
	return nil
}

// runGuardrail evaluates chain at stage and returns the (possibly redacted)
// content, or an ErrGuardrailTripped error on block.
func (st *runState) runGuardrail(ctx context.Context, chain *guardrail.Chain, stage guardrail.Stage, content string) (string, error) {
	if chain == nil {
		return content, nil
	}
	dec := chain.Evaluate(ctx, guardrail.Input{
		Stage:     stage,
		Content:   content,
		AgentName: st.spec.Name(),
		SessionID: st.res.SessionID,
	})
	if err := dec.Err(); err != nil {
		return "", fmt.Errorf("%s guardrail: %w", stage, err)
	}
	if dec.Action == guardrail.Redact {
		st.res.Warn(fmt.Sprintf("%s redacted by %s", stage, dec.Filter))
		return dec.Content, nil
	}
	return content, nil
}

// save persists the session even when the run was cancelled.
func (st *runState) save(ctx context.Context) {
	if err := st.r.opts.SessionStore.Save(context.WithoutCancel(ctx), st.sess); err != nil {
		st.logger.Error("runner.session.save_failed", "error", err.Error())
		st.res.Warn(fmt.Sprintf("session not saved: %v", err))
	}
}

func (st *runState) emit(ev core.Event) {
	if st.r.opts.Observer != nil {
		st.r.opts.Observer(ev)
	}
	if st.ro.Observer != nil {
		st.ro.Observer(ev)
	}
}

func (st *runState) emitFinished() {
	ev := core.NewEvent(core.EventRunFinished, st.res.RunID, st.res.SessionID, st.res.AgentName)
	ev.Turn = st.turn
	res := *st.res
	ev.Result = &res
	st.emit(ev)
}

func (st *runState) logRun(err error) {
	if sl, ok := st.logger.(*logging.StructuredLogger); ok {
		sl.LogRun(st.res.AgentName, st.res.Turns, time.Since(st.start), err == nil, err)
		return
	}
	if err != nil {
		st.logger.Warn("runner.run.failed", "agent", st.res.AgentName, "turns", st.res.Turns, "kind", core.KindOf(err), "error", err.Error())
		return
	}
	st.logger.Info("runner.run.completed", "agent", st.res.AgentName, "turns", st.res.Turns)
}

// withCallIDs fills in ids for providers that omit them.
func withCallIDs(calls []core.ToolCall) []core.ToolCall {
	out := make([]core.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + core.NewID()
		}
		out[i] = c
	}
	return out
}

func abortErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: run aborted: %w", core.ErrTimeout, err)
	}
	return fmt.Errorf("run aborted: %w", err)
}
