// Command raaf serves agents over HTTP, chats with them in a terminal and
// validates agent definition files.
//
//	raaf [-config raaf.yaml] serve
//	raaf [-config raaf.yaml] chat [-agent name] [-session id]
//	raaf [-config raaf.yaml] agents [-path agents/]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/raaf/config"
)

const usage = `usage: raaf [-config file] <command> [flags]

commands:
  serve    run the HTTP API
  chat     interactive chat with an agent
  agents   validate and list agent definitions
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "raaf: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("raaf", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }
	configPath := fs.String("config", "", "path to a raaf.yaml file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "serve":
		return runServe(ctx, cfg, rest)
	case "chat":
		return runChat(ctx, cfg, rest, out)
	case "agents":
		return runAgents(cfg, rest, out)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
