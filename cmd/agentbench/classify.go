package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fyrsmithlabs/agentbench/internal/execution"
	"github.com/spf13/cobra"
)

var errOutputFailed = errors.New("output classified as failed")

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify execution output as passed or failed",
		Long: `Classify applies the same failure markers a workflow run uses to a
captured execution log. It exits non-zero when the output fails.

Examples:
  python3 code.py 2>&1 | agentbench classify -
  agentbench classify workspace/example_3/workflow.log`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				content []byte
				err     error
			)
			if len(args) == 0 || args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
			} else {
				content, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read file %s: %w", args[0], err)
				}
			}

			if marker, failed := execution.FirstMarker(string(content)); failed {
				fmt.Fprintf(cmd.OutOrStdout(), "FAILED (found %q)\n", marker)
				return errOutputFailed
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PASSED")
			return nil
		},
	}
}
