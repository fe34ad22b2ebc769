package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/hupe1980/raaf/config"
	"github.com/hupe1980/raaf/core"
)

const (
	colorReset  = "\033[0m"
	colorCyan   = "\033[36m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
)

const chatHelp = `commands:
  /agent <name>  switch agent
  /agents        list agents
  /reset         clear the session
  /help          show this help
  /quit          exit
`

func runChat(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	agentName := fs.String("agent", cfg.Agents.Default, "agent to talk to")
	sessionID := fs.String("session", "", "session id (random when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sessionID == "" {
		*sessionID = core.NewID()
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.close() }()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          colorCyan + "you> " + colorReset,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
		Stdout:          out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	s := &chatSession{app: a, out: out, sessionID: *sessionID, agent: *agentName}
	fmt.Fprintf(out, "%ssession %s, agents: %s%s\n", colorYellow, s.sessionID, strings.Join(a.raaf.Agents(), ", "), colorReset)
	fmt.Fprint(out, chatHelp)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			fmt.Fprintf(out, "%sGoodbye!%s\n", colorGreen, colorReset)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if done := s.handle(ctx, strings.TrimSpace(line)); done {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

type chatSession struct {
	app       *app
	out       io.Writer
	sessionID string
	agent     string
}

// handle processes one input line and reports whether the chat should end.
func (s *chatSession) handle(ctx context.Context, line string) bool {
	switch {
	case line == "":
		return false
	case line == "/quit" || line == "/exit":
		return true
	case line == "/help":
		fmt.Fprint(s.out, chatHelp)
	case line == "/agents":
		fmt.Fprintln(s.out, strings.Join(s.app.raaf.Agents(), "\n"))
	case line == "/reset":
		if err := s.app.raaf.ClearSession(ctx, s.sessionID); err != nil {
			s.printError(err)
			return false
		}
		fmt.Fprintf(s.out, "%ssession cleared%s\n", colorYellow, colorReset)
	case strings.HasPrefix(line, "/agent "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "/agent "))
		if _, ok := s.app.raaf.Agent(name); !ok {
			fmt.Fprintf(s.out, "%sunknown agent %q%s\n", colorRed, name, colorReset)
			return false
		}
		s.agent = name
		fmt.Fprintf(s.out, "%snow talking to %s%s\n", colorYellow, name, colorReset)
	default:
		s.send(ctx, line)
	}
	return false
}

func (s *chatSession) send(ctx context.Context, message string) {
	res, err := s.app.raaf.Run(ctx, s.sessionID, s.agent, message)
	for _, w := range res.Warnings {
		fmt.Fprintf(s.out, "%swarning: %s%s\n", colorYellow, w, colorReset)
	}
	if err != nil {
		s.printError(err)
		return
	}
	// Follow hand-offs so the next message goes to the agent now in charge.
	s.agent = res.AgentName
	fmt.Fprintf(s.out, "%s%s>%s %s\n", colorGreen, res.AgentName, colorReset, res.Output())
	fmt.Fprintf(s.out, "%s(%d turns, %d tokens)%s\n", colorYellow, res.Turns, res.Usage.TotalTokens, colorReset)
}

func (s *chatSession) printError(err error) {
	fmt.Fprintf(s.out, "%s%s: %v%s\n", colorRed, core.KindOf(err), err, colorReset)
}
