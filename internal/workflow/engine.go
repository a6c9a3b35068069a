// Package workflow runs an ordered list of agent steps over a set of
// benchmark instructions.
//
// For every step the engine invokes the step's capability once per
// instruction, persists the artifact through the step's output handler,
// executes generated code, and drives the debug loop until the output
// passes or the debug bound is reached. Per-instance failures are recorded
// in the Report; only instruction loading problems, invalid workflows and
// cancellation end a run early.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/audit"
	"github.com/fyrsmithlabs/agentbench/internal/datastore"
	"github.com/fyrsmithlabs/agentbench/internal/execution"
	"github.com/fyrsmithlabs/agentbench/internal/instruction"
	"github.com/fyrsmithlabs/agentbench/internal/logging"
	"github.com/fyrsmithlabs/agentbench/internal/output"
	"github.com/fyrsmithlabs/agentbench/internal/result"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxDebugIterations bounds the debug loop.
const DefaultMaxDebugIterations = 10

// Runner executes a generated file inside a workspace.
type Runner interface {
	Run(ctx context.Context, filename string, ws workspace.Workspace) execution.Outcome
}

// AuditLogger records agent actions in the workspace transcript.
type AuditLogger interface {
	LogAction(ctx context.Context, e audit.Entry) (string, error)
}

// Provisioner creates one workspace per instruction.
type Provisioner interface {
	Provision(ctx context.Context, instructions []instruction.Instruction, dataFolder string) ([]workspace.Workspace, []*workspace.MissingFileWarning, error)
}

// Deps are the engine's collaborators.
type Deps struct {
	Agents      *agent.Registry
	Handlers    *output.Registry
	Executor    Runner
	Audit       AuditLogger
	Provisioner Provisioner
	Logger      *logging.Logger
}

// Engine runs workflows. An Engine may run several workflows one after
// another; each Run gets its own data store.
type Engine struct {
	agents      *agent.Registry
	handlers    *output.Registry
	executor    Runner
	audit       AuditLogger
	provisioner Provisioner
	logger      *logging.Logger

	maxDebug   int
	dataFolder string
	tracer     trace.Tracer
	metrics    *Metrics
	now        func() time.Time
	runID      string
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxDebugIterations sets the debug bound. Negative values are ignored.
func WithMaxDebugIterations(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxDebug = n
		}
	}
}

// WithDataFolder sets where instruction data files are copied from.
func WithDataFolder(dir string) Option {
	return func(e *Engine) { e.dataFolder = dir }
}

// WithTracer sets the tracer for run, step, instruction and debug spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// New creates an engine. Agents, Executor and Provisioner are required.
func New(deps Deps, opts ...Option) (*Engine, error) {
	if deps.Agents == nil {
		return nil, errors.New("workflow: agent registry is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("workflow: executor is required")
	}
	if deps.Provisioner == nil {
		return nil, errors.New("workflow: provisioner is required")
	}
	if deps.Handlers == nil {
		deps.Handlers = output.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}

	e := &Engine{
		agents:      deps.Agents,
		handlers:    deps.Handlers,
		executor:    deps.Executor,
		audit:       deps.Audit,
		provisioner: deps.Provisioner,
		logger:      deps.Logger.Named("workflow"),
		maxDebug:    DefaultMaxDebugIterations,
		tracer:      otel.Tracer("github.com/fyrsmithlabs/agentbench/internal/workflow"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// runState is what one Run threads between steps.
type runState struct {
	report       *Report
	store        *datastore.Store[[]StepResult]
	instructions []instruction.Instruction
	workspaces   []workspace.Workspace
}

// Run executes steps in order. The report is returned even when err is
// non-nil and holds everything completed before the failure.
func (e *Engine) Run(ctx context.Context, steps []Step) (*Report, error) {
	runID := e.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logging.WithRunID(ctx, runID)
	ctx, span := e.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("workflow.steps", len(steps)),
	))
	defer span.End()

	state := &runState{
		report: &Report{
			RunID:     runID,
			StartedAt: e.now(),
			Results:   make(map[string][]StepResult),
		},
		store: datastore.New[[]StepResult](),
	}
	defer func() { state.report.FinishedAt = e.now() }()

	if verr := validateStructure(steps, e.agents).orNil(); verr != nil {
		span.RecordError(verr)
		span.SetStatus(codes.Error, "invalid workflow")
		return state.report, verr
	}

	e.logger.Info(ctx, "workflow run started", zap.Int("steps", len(steps)))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return e.abort(ctx, span, state, step.Key(), StageCancel, err)
		}
		if err := e.runStep(ctx, i, step, state); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return state.report, err
		}
	}

	e.logger.Info(ctx, "workflow run finished",
		zap.Int("failures", len(state.report.Failures)),
	)
	return state.report, nil
}

func (e *Engine) abort(ctx context.Context, span trace.Span, state *runState, step string, stage Stage, err error) (*Report, error) {
	f := &Failure{Step: step, Stage: stage, Severity: SeverityCritical, Err: err}
	state.report.Failures = append(state.report.Failures, f)
	e.logger.Error(ctx, "workflow run aborted", zap.String("step", step), zap.Error(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(stage))
	return state.report, f
}

func (e *Engine) runStep(ctx context.Context, index int, step Step, state *runState) error {
	key := step.Key()
	ctx = logging.WithStep(ctx, key)
	ctx, span := e.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("step.key", key),
		attribute.Int("step.index", index),
		attribute.String("step.output_type", string(step.Type())),
	))
	defer span.End()

	if step.LoadsData() {
		if err := e.loadInstructions(ctx, step, state); err != nil {
			return err
		}
	}

	capability, err := e.agents.Lookup(step.Agent, step.MethodName())
	if err != nil {
		return e.critical(state, key, StageAgent, err)
	}
	args, err := state.store.Resolve(step.Args)
	if err != nil {
		return e.critical(state, key, StageResolve, err)
	}

	results := make([]StepResult, 0, len(state.instructions))
	handler, err := e.handlers.Lookup(step.Type())
	if err != nil {
		e.logger.Error(ctx, "no handler for output type, skipping step instances",
			zap.String("output_type", string(step.Type())),
			zap.Int("skipped", len(state.instructions)),
		)
		for _, ins := range state.instructions {
			e.recordFailure(state, key, ins.ID, StageOutput, err)
		}
	} else {
		for i, ins := range state.instructions {
			if err := ctx.Err(); err != nil {
				state.report.Results[key] = results
				return e.critical(state, key, StageCancel, err)
			}
			r, ok := e.runInstruction(ctx, step, capability, handler, ins, state.workspaces[i], args, state)
			if ok {
				results = append(results, r)
			}
			if r.Status == result.StatusCancelled {
				state.report.Results[key] = results
				return e.critical(state, key, StageCancel, ctx.Err())
			}
		}
	}

	state.report.Results[key] = results
	if step.Output != "" {
		state.store.Bind(step.Output, results)
	}
	span.SetAttributes(attribute.Int("step.results", len(results)))
	e.logger.Info(ctx, "step finished",
		zap.Int("results", len(results)),
		zap.Int("instructions", len(state.instructions)),
	)
	return nil
}

func (e *Engine) loadInstructions(ctx context.Context, step Step, state *runState) error {
	key := step.Key()
	instructions, err := instruction.Load(step.Input.Data, step.Filter())
	if err != nil {
		return e.critical(state, key, StageLoad, err)
	}
	workspaces, warnings, err := e.provisioner.Provision(ctx, instructions, e.dataFolder)
	if err != nil {
		return e.critical(state, key, StageProvision, err)
	}
	for _, w := range warnings {
		e.logger.Warn(ctx, "instruction data file missing",
			zap.Int("instruction.id", w.InstructionID),
			zap.String("file", w.FileName),
		)
	}
	if len(workspaces) != len(instructions) {
		return e.critical(state, key, StageProvision,
			fmt.Errorf("provisioned %d workspaces for %d instructions", len(workspaces), len(instructions)))
	}
	e.logger.Info(ctx, "instructions loaded",
		zap.String("source", step.Input.Data),
		zap.Int("count", len(instructions)),
		zap.String("filter", step.Filter().String()),
	)
	state.instructions = instructions
	state.workspaces = workspaces
	return nil
}

func (e *Engine) critical(state *runState, step string, stage Stage, err error) error {
	f := &Failure{Step: step, Stage: stage, Severity: SeverityCritical, Err: err}
	state.report.Failures = append(state.report.Failures, f)
	return f
}

func (e *Engine) recordFailure(state *runState, step string, instructionID int, stage Stage, err error) {
	state.report.Failures = append(state.report.Failures, &Failure{
		Step:           step,
		PerInstruction: true,
		InstructionID:  instructionID,
		Stage:          stage,
		Severity:       SeverityHigh,
		Err:            err,
	})
}

// runInstruction processes one instance. ok is false when the instance was
// skipped and must not appear in the step's results.
func (e *Engine) runInstruction(
	ctx context.Context,
	step Step,
	capability agent.Capability,
	handler output.Handler,
	ins instruction.Instruction,
	ws workspace.Workspace,
	resolved map[string]any,
	state *runState,
) (StepResult, bool) {
	key := step.Key()
	ctx = logging.WithInstructionID(ctx, ins.ID)
	ctx, span := e.tracer.Start(ctx, "workflow.instruction", trace.WithAttributes(
		attribute.Int("instruction.id", ins.ID),
		attribute.String("workspace", ws.Dir),
	))
	defer span.End()

	fail := func(stage Stage, err error) (StepResult, bool) {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		e.logger.Error(ctx, "instruction skipped", zap.String("stage", string(stage)), zap.Error(err))
		e.recordFailure(state, key, ins.ID, stage, err)
		e.metrics.instructionDone(key, "skipped")
		return StepResult{}, false
	}

	args := make(map[string]any, len(resolved)+2)
	for k, v := range resolved {
		args[k] = v
	}
	args[agent.QueriesArg] = ins
	if step.Input != nil && step.Input.Code != "" {
		code, err := ws.ReadFile(step.Input.Code)
		if err != nil {
			return fail(StageInput, fmt.Errorf("reading code input: %w", err))
		}
		args[step.CodeArg()] = code
	}

	req := &agent.Request{Instruction: ins, Args: args, Workspace: ws, Tag: step.ModelTag}
	resp, err := capability.Run(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return StepResult{InstructionID: ins.ID, Workspace: ws.Dir, Status: result.StatusCancelled}, false
		}
		e.metrics.agentError(key)
		return fail(StageAgent, err)
	}
	generated := e.auditAction(ctx, step, audit.ActionGenerate, ws, resp.Log, resp.Artifact, 0)

	out, err := handler.Handle(output.Input{
		Log:       resp.Log,
		Artifact:  resp.Artifact,
		Agent:     step.Agent,
		Method:    step.MethodName(),
		Tag:       step.ModelTag,
		Workspace: ws,
	})
	if err != nil {
		return fail(StageOutput, err)
	}

	att := &attempt{step: step, handler: handler, req: req, out: out}
	att.transcript.WriteString(generated)
	e.evaluate(ctx, att, 0)

	iterations, status, debugErr := e.debugLoop(ctx, capability, att)
	r := StepResult{
		InstructionID:   ins.ID,
		Workspace:       ws.Dir,
		Log:             att.log(),
		Output:          att.execOutput,
		Result:          att.out.Result,
		Filename:        att.out.Filename,
		Succeeded:       att.succeeded,
		DebugIterations: iterations,
		Status:          status,
		Transcript:      att.transcript.String(),
	}
	if status == result.StatusCancelled {
		return r, true
	}
	if debugErr != nil {
		e.recordFailure(state, key, ins.ID, StageDebug, fmt.Errorf("%w: %w", ErrExecutionFailure, debugErr))
		span.SetStatus(codes.Error, string(status))
	}
	span.SetAttributes(
		attribute.String("instruction.status", string(status)),
		attribute.Int("instruction.debug_iterations", iterations),
	)
	e.metrics.instructionDone(key, string(status))
	return r, true
}

// evaluate executes code artifacts and classifies the result.
func (e *Engine) evaluate(ctx context.Context, att *attempt, iteration int) {
	if !att.step.Type().Executable() {
		att.execOutput = ""
		att.succeeded = execution.IsSuccessful(att.out.Log)
		return
	}
	ws := att.req.Workspace
	outcome := e.executor.Run(ctx, att.out.Filename, ws)
	e.metrics.executed(att.step.Key(), outcome.Duration.Seconds())
	att.transcript.WriteString(e.auditAction(ctx, att.step, audit.ActionExecute, ws, outcome.CombinedOutput, nil, iteration))
	att.execOutput = outcome.CombinedOutput
	att.succeeded = outcome.Succeeded
	if !outcome.Succeeded {
		marker, _ := execution.FirstMarker(outcome.CombinedOutput)
		e.logger.Debug(ctx, "execution failed",
			zap.String("file", att.out.Filename),
			zap.String("marker", marker),
			zap.Bool("timed_out", outcome.TimedOut),
			zap.Int("iteration", iteration),
		)
	}
}

// auditAction writes one transcript block and returns it. Write failures
// are logged and yield an empty block.
func (e *Engine) auditAction(ctx context.Context, step Step, action audit.Action, ws workspace.Workspace, log string, artifact any, iteration int) string {
	if e.audit == nil {
		return ""
	}
	text := ""
	if artifact != nil {
		s, _, err := output.Stringify(artifact)
		if err == nil {
			text = s
		}
	}
	block, err := e.audit.LogAction(ctx, audit.Entry{
		Action:    action,
		Agent:     step.Agent,
		Method:    step.MethodName(),
		Tag:       step.ModelTag,
		Artifact:  text,
		Log:       log,
		Iteration: iteration,
		Workspace: ws,
	})
	if err != nil {
		e.logger.Warn(ctx, "audit entry not written", zap.String("action", string(action)), zap.Error(err))
		return ""
	}
	return block
}
