package main

import (
	"fmt"

	"github.com/fyrsmithlabs/agentbench/internal/output"
	"github.com/fyrsmithlabs/agentbench/internal/workflow"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow>",
		Short: "Check a workflow definition without running it",
		Long: `Validate loads a workflow definition and checks it against the
registered agents and output handlers. No model is called.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := workflow.LoadDefinitionFile(args[0])
			if err != nil {
				return err
			}
			agents, err := newAgentRegistry(nil, nil)
			if err != nil {
				return err
			}
			if err := workflow.Validate(def.Steps, agents, output.NewRegistry()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d steps OK\n", def.Name, len(def.Steps))
			for i, s := range def.Steps {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s (%s)\n", i+1, s.Key(), s.Type())
			}
			return nil
		},
	}
}
