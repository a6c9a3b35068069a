package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/audit"
	"github.com/fyrsmithlabs/agentbench/internal/output"
	"github.com/fyrsmithlabs/agentbench/internal/result"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// attempt is the latest persisted artifact for one instance and how it
// fared.
type attempt struct {
	step    Step
	handler output.Handler
	req     *agent.Request

	out        output.Result
	execOutput string
	succeeded  bool
	transcript strings.Builder
}

// errorMessage is what the debugger is shown: the execution output for
// code, the agent log for analysis.
func (a *attempt) errorMessage() string {
	if a.step.Type().Executable() {
		return a.execOutput
	}
	return a.out.Log
}

// log is the agent log followed by the execution output, if any.
func (a *attempt) log() string {
	if a.execOutput == "" {
		return a.out.Log
	}
	return a.out.Log + "\n" + a.execOutput
}

// debugLoop repairs a failed attempt until it passes, the capability
// cannot help, or the bound is reached. It returns the number of debug
// iterations whose artifact was persisted.
func (e *Engine) debugLoop(ctx context.Context, capability agent.Capability, att *attempt) (int, result.Status, error) {
	if att.succeeded {
		return 0, result.StatusSucceeded, nil
	}

	debugger, ok := capability.(agent.Debugger)
	if !ok {
		e.logger.Warn(ctx, "output failed and capability has no debug method",
			zap.String("file", att.out.Filename),
		)
		return 0, result.StatusDebugUnavailable, ErrDebugUnavailable
	}

	key := att.step.Key()
	executable := att.step.Type().Executable()
	iterations := 0
	for i := 1; i <= e.maxDebug; i++ {
		if err := ctx.Err(); err != nil {
			return iterations, result.StatusCancelled, err
		}

		status, err := e.debugOnce(ctx, debugger, att, i, executable)
		if err != nil {
			if ctx.Err() != nil {
				return iterations, result.StatusCancelled, ctx.Err()
			}
			e.logger.Warn(ctx, "debug attempt unusable, giving up",
				zap.Int("iteration", i),
				zap.Error(err),
			)
			return iterations, status, err
		}
		iterations = i
		e.metrics.debugIteration(key)
		if att.succeeded {
			e.logger.Info(ctx, "output passed after debugging", zap.Int("iterations", iterations))
			return iterations, result.StatusSucceeded, nil
		}
	}

	e.logger.Warn(ctx, "debug iterations exhausted, keeping last artifact",
		zap.Int("iterations", iterations),
		zap.String("file", att.out.Filename),
	)
	return iterations, result.StatusDebugExhausted, ErrDebugExhausted
}

func (e *Engine) debugOnce(ctx context.Context, debugger agent.Debugger, att *attempt, iteration int, executable bool) (result.Status, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.debug", trace.WithAttributes(
		attribute.Int("debug.iteration", iteration),
	))
	defer span.End()

	resp, err := debugger.Debug(ctx, &agent.DebugRequest{
		Request:       *att.req,
		ErrorMessage:  att.errorMessage(),
		BuggyArtifact: att.out.Result,
		Iteration:     iteration,
	})
	if err != nil {
		span.RecordError(err)
		return result.StatusDebugMalformed, fmt.Errorf("%w: %w", ErrDebugMalformed, err)
	}
	if malformed(resp.Artifact, executable) {
		return result.StatusDebugMalformed, fmt.Errorf("%w: got %T", ErrDebugMalformed, resp.Artifact)
	}
	att.transcript.WriteString(e.auditAction(ctx, att.step, audit.ActionDebug, att.req.Workspace, resp.Log, resp.Artifact, iteration))

	out, err := att.handler.Handle(output.Input{
		Log:       resp.Log,
		Artifact:  resp.Artifact,
		Agent:     att.step.Agent,
		Method:    att.step.MethodName(),
		Tag:       att.step.ModelTag,
		Workspace: att.req.Workspace,
	})
	if err != nil {
		span.RecordError(err)
		return result.StatusDebugMalformed, fmt.Errorf("%w: %w", ErrDebugMalformed, err)
	}
	att.out = out
	e.evaluate(ctx, att, iteration)
	span.SetAttributes(attribute.Bool("debug.succeeded", att.succeeded))
	return "", nil
}

// malformed reports whether a debug artifact cannot be persisted. Code
// steps need a non-empty string; analysis steps accept any non-empty value.
func malformed(artifact any, executable bool) bool {
	switch v := artifact.(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return executable
	}
}
