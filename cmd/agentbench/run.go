package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fyrsmithlabs/agentbench/internal/instruction"
	"github.com/fyrsmithlabs/agentbench/internal/output"
	"github.com/fyrsmithlabs/agentbench/internal/result"
	"github.com/fyrsmithlabs/agentbench/internal/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	filter     string
	reportPath string
	maxDebug   int
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow definition",
		Long: `Run executes every step of a workflow definition (YAML, JSON or TOML)
against the instructions named by its first step.

Examples:
  # Run the whole instruction set
  agentbench run titanic.yaml

  # Only instructions 3 and 7, at most two debug attempts each
  agentbench run titanic.yaml --filter 3,7 --max-debug 2

  # Write the run report as JSON
  agentbench run titanic.yaml --report out/report.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.filter, "filter", "", `instruction ids ("1,4,9") or inclusive range ("10:20") for the first step`)
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "write the run report as JSON to this path")
	cmd.Flags().IntVar(&opts.maxDebug, "max-debug", -1, "override retry.max_debug_iterations")
	return cmd
}

func runWorkflow(ctx context.Context, out io.Writer, path string, opts *runOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.maxDebug >= 0 {
		cfg.Retry.MaxDebugIterations = opts.maxDebug
	}

	def, err := workflow.LoadDefinitionFile(path)
	if err != nil {
		return err
	}
	if err := applyFilter(def.Steps, opts.filter); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(shutdownCtx)
	}()

	if err := workflow.Validate(def.Steps, a.agents, output.NewRegistry()); err != nil {
		return err
	}

	a.logger.Info(ctx, "running workflow", zap.String("name", def.Name), zap.String("path", path))
	report, runErr := a.engine.Run(ctx, def.Steps)

	if opts.reportPath != "" {
		if err := writeReport(opts.reportPath, report); err != nil {
			a.logger.Error(ctx, "failed to write report", zap.Error(err))
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := workflow.WriteTextfile(cfg.Metrics.Textfile, prometheus.DefaultGatherer); err != nil {
			a.logger.Error(ctx, "failed to write metrics textfile", zap.Error(err))
		}
	}

	printSummary(out, def.Steps, report)
	return runErr
}

// applyFilter replaces the first step's id selection.
func applyFilter(steps []workflow.Step, s string) error {
	if s == "" || len(steps) == 0 {
		return nil
	}
	f, err := instruction.ParseFilter(s)
	if err != nil {
		return fmt.Errorf("invalid --filter: %w", err)
	}
	steps[0].DataIDs = f.IDs
	steps[0].DataRange = nil
	if f.Range != nil {
		steps[0].DataRange = []int{f.Range.Start, f.Range.End}
	}
	return nil
}

func writeReport(path string, report *workflow.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

var summaryStatuses = []result.Status{
	result.StatusSucceeded,
	result.StatusDebugExhausted,
	result.StatusDebugMalformed,
	result.StatusDebugUnavailable,
	result.StatusCancelled,
}

// printSummary writes one row per step, in workflow order.
func printSummary(out io.Writer, steps []workflow.Step, report *workflow.Report) {
	if report == nil {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	header := []string{"STEP", "RESULTS"}
	for _, s := range summaryStatuses {
		header = append(header, strings.ToUpper(string(s)))
	}
	header = append(header, "FAILURES")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	seen := make(map[string]bool)
	for _, step := range steps {
		key := step.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		results, ran := report.Results[key]
		if !ran {
			continue
		}
		counts := result.Summary(results)
		row := []string{key, fmt.Sprint(len(results))}
		for _, s := range summaryStatuses {
			row = append(row, fmt.Sprint(counts[s]))
		}
		row = append(row, fmt.Sprint(len(report.FailuresFor(key))))
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()

	if len(report.Failures) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%d failure(s):\n", len(report.Failures))
	failures := append([]*workflow.Failure(nil), report.Failures...)
	sort.SliceStable(failures, func(i, j int) bool { return failures[i].Step < failures[j].Step })
	for _, f := range failures {
		fmt.Fprintf(out, "  [%s] %v\n", f.Severity, f)
	}
}
