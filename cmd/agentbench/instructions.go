package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fyrsmithlabs/agentbench/internal/instruction"
	"github.com/spf13/cobra"
)

func newInstructionsCmd() *cobra.Command {
	var (
		filter  string
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "instructions <file.jsonl>",
		Short: "List the instructions in a JSONL file",
		Long: `Instructions parses an instruction file the same way a workflow run
does and lists the records a filter selects.

Examples:
  agentbench instructions data/titanic.jsonl --filter 1:10
  agentbench instructions data/titanic.jsonl --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := instruction.ParseFilter(filter)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			instructions, err := instruction.Load(args[0], f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				for _, in := range instructions {
					if err := enc.Encode(in); err != nil {
						return err
					}
				}
				return nil
			}
			if verbose {
				for _, in := range instructions {
					fmt.Fprintln(out, in.Prompt())
				}
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFILE\tANSWERS\tQUESTION")
			for _, in := range instructions {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", in.ID, in.FileName, len(in.Answers), truncate(in.Question, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", `ids ("1,4,9") or inclusive range ("10:20")`)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON lines")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the full prompt for each record")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
