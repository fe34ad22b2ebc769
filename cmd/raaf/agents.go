package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hupe1980/raaf/agent"
	"github.com/hupe1980/raaf/config"
)

// runAgents validates the definitions under path and prints one row per agent.
func runAgents(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	path := fs.String("path", cfg.Agents.Path, "agent definition file or directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	defs, err := agent.LoadDefinitions(*path)
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}
	specs, err := agent.Build(defs, agent.DefaultCatalog())
	if err != nil {
		return fmt.Errorf("build agents: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODEL\tTOOLS\tHANDOFFS")
	for _, s := range specs {
		handoffs := make([]string, 0, len(s.Handoffs()))
		for _, h := range s.Handoffs() {
			handoffs = append(handoffs, h.Name())
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name(), orDash(s.Model()), orDash(strings.Join(s.Tools().Names(), ",")), orDash(strings.Join(handoffs, ",")))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
