// Package execution runs generated code inside a workspace and classifies
// the captured output.
package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/fyrsmithlabs/agentbench/internal/logging"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Config controls how generated files are run.
type Config struct {
	// Interpreter runs the file, e.g. "python3".
	Interpreter string
	// Args are passed to the interpreter before the file name.
	Args []string
	// Timeout bounds one run. Zero means no limit.
	Timeout time.Duration
	// MaxOutputBytes caps each of stdout and stderr. Zero means no cap.
	MaxOutputBytes int
	// Env is appended to the inherited environment.
	Env []string
}

// Outcome is the classified result of one run.
type Outcome struct {
	CombinedOutput string
	Succeeded      bool
	TimedOut       bool
	Duration       time.Duration
}

// Executor runs files with a configured interpreter.
type Executor struct {
	config   Config
	logger   *logging.Logger
	duration metric.Float64Histogram
}

// Option configures an Executor.
type Option func(*Executor)

// WithMeter records run durations on the given meter.
func WithMeter(m metric.Meter) Option {
	return func(e *Executor) {
		h, err := m.Float64Histogram("agentbench.execution.duration",
			metric.WithDescription("Wall-clock duration of generated code runs"),
			metric.WithUnit("s"),
		)
		if err == nil {
			e.duration = h
		}
	}
}

// NewExecutor creates an executor.
func NewExecutor(cfg Config, logger *logging.Logger, opts ...Option) *Executor {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Executor{config: cfg, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs filename inside ws and returns stdout followed by stderr.
// The exit code is not inspected. A missing file or a process that cannot
// be started yields a descriptive "Error..." string instead of an error.
func (e *Executor) Execute(ctx context.Context, filename string, ws workspace.Workspace) string {
	return e.Run(ctx, filename, ws).CombinedOutput
}

// Run executes filename and classifies the output. A run that never
// started is never successful, whatever its message says.
func (e *Executor) Run(ctx context.Context, filename string, ws workspace.Workspace) Outcome {
	if !ws.Exists(filename) {
		out := fmt.Sprintf("Error: File %s not found in workspace.", filename)
		return Outcome{CombinedOutput: out}
	}

	runCtx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, e.config.Args...), filename)
	cmd := exec.CommandContext(runCtx, e.config.Interpreter, args...)
	cmd.Dir = ws.Dir
	cmd.Env = append(os.Environ(), e.config.Env...)
	// Grandchildren holding the pipes open must not block Wait after a kill.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = limitWriter(&stdout, e.config.MaxOutputBytes)
	cmd.Stderr = limitWriter(&stderr, e.config.MaxOutputBytes)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	e.record(ctx, elapsed, filename)

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && runCtx.Err() == nil {
		e.logger.Warn(ctx, "failed to start generated code",
			zap.String("file", filename), zap.String("interpreter", e.config.Interpreter), zap.Error(err))
		out := fmt.Sprintf("Error executing %s: %v", filename, err)
		return Outcome{CombinedOutput: out, Duration: elapsed}
	}

	out := stdout.String() + stderr.String()
	outcome := Outcome{Duration: elapsed}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		outcome.TimedOut = true
		out += fmt.Sprintf("\nError: execution of %s timed out after %s", filename, e.config.Timeout)
		e.logger.Warn(ctx, "generated code timed out", zap.String("file", filename), zap.Duration("timeout", e.config.Timeout))
	case ctx.Err() != nil:
		out += fmt.Sprintf("\nError: execution of %s cancelled: %v", filename, ctx.Err())
	}

	outcome.CombinedOutput = out
	outcome.Succeeded = IsSuccessful(out)
	e.logger.Debug(ctx, "generated code finished",
		zap.String("file", filename), zap.Duration("duration", elapsed), zap.Bool("succeeded", outcome.Succeeded))
	return outcome
}

func (e *Executor) record(ctx context.Context, d time.Duration, filename string) {
	if e.duration == nil {
		return
	}
	e.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("file", filename)))
}

func limitWriter(w io.Writer, max int) io.Writer {
	if max <= 0 {
		return w
	}
	return &limitedWriter{w: w, max: int64(max)}
}

// limitedWriter drops bytes past max while reporting full writes so the
// child process never sees a short write.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	remaining := lw.max - lw.written
	if remaining <= 0 {
		lw.truncated = true
		return n, nil
	}
	if int64(n) > remaining {
		lw.truncated = true
		p = p[:remaining]
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	if err != nil {
		return written, err
	}
	return n, nil
}
