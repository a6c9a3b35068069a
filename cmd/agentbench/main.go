// Agentbench runs agent workflows over benchmark instructions.
//
// Each instruction gets its own workspace. Steps run in order; for every
// step the configured agent produces code or analysis, generated code is
// executed, and failures are handed back to the agent for repair until the
// output passes or the debug bound is reached.
//
// Usage:
//
//	# Run a workflow
//	agentbench run examples/workflows/titanic.yaml
//
//	# Check a workflow without calling any model
//	agentbench validate examples/workflows/titanic.yaml
//
//	# Configure via file and environment
//	AGENTBENCH_RETRY_MAX_DEBUG_ITERATIONS=3 agentbench --config agentbench.yaml run wf.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentbench",
		Short: "Run LLM agent workflows over benchmark instructions",
		Long: `agentbench executes declarative agent workflows against a set of
benchmark instructions, running generated code in per-instruction
workspaces and debugging failures up to a configurable bound.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to agentbench config file (YAML)")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newInstructionsCmd(),
		newClassifyCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "agentbench by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
