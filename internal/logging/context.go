package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	runIDCtxKey       struct{}
	stepCtxKey        struct{}
	instructionCtxKey struct{}
	loggerCtxKey      struct{}
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}
	if step := StepFromContext(ctx); step != "" {
		fields = append(fields, zap.String("step", step))
	}
	if id, ok := InstructionIDFromContext(ctx); ok {
		fields = append(fields, zap.Int("instruction.id", id))
	}
	return fields
}

// WithRunID tags the context with the workflow run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDCtxKey{}, runID)
}

// RunIDFromContext returns the run identifier, or "" when unset.
func RunIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(runIDCtxKey{}).(string)
	return s
}

// WithStep tags the context with the "<agent>_<method>" step key.
func WithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, stepCtxKey{}, step)
}

// StepFromContext returns the step key, or "" when unset.
func StepFromContext(ctx context.Context) string {
	s, _ := ctx.Value(stepCtxKey{}).(string)
	return s
}

// WithInstructionID tags the context with the instruction being processed.
func WithInstructionID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, instructionCtxKey{}, id)
}

// InstructionIDFromContext returns the instruction id and whether it was set.
func InstructionIDFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(instructionCtxKey{}).(int)
	return id, ok
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger stored by WithLogger.
// Returns a nop logger if none is present.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
