// Package logging provides the structured logger used by agentbench.
//
// Logger wraps zap with context-aware methods. Every call pulls correlation
// fields out of the context before emitting:
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithStep(ctx, "data_analysis_agent_run")
//	ctx = logging.WithInstructionID(ctx, 42)
//	logger.Info(ctx, "instruction started")
//
// produces an entry carrying run.id, step and instruction.id, plus trace_id
// and span_id when an OpenTelemetry span is active.
//
// Output goes to stderr (stdout is reserved for command results), an optional
// log file, and optionally the OpenTelemetry log pipeline through the otelzap
// bridge. Sensitive field names and value patterns are redacted at encode
// time, and levels below error are sampled when sampling is enabled.
//
// Tests use NewTestLogger, which records entries in memory:
//
//	logger := logging.NewTestLogger()
//	doSomething(logger.Logger)
//	logger.AssertLogged(t, zapcore.WarnLevel, "no handler")
package logging
