package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/agent/agenttest"
	"github.com/fyrsmithlabs/agentbench/internal/audit"
	"github.com/fyrsmithlabs/agentbench/internal/datastore"
	"github.com/fyrsmithlabs/agentbench/internal/execution"
	"github.com/fyrsmithlabs/agentbench/internal/instruction"
	"github.com/fyrsmithlabs/agentbench/internal/logging"
	"github.com/fyrsmithlabs/agentbench/internal/output"
	"github.com/fyrsmithlabs/agentbench/internal/result"
	"github.com/fyrsmithlabs/agentbench/internal/telemetry"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const analysisKey = "data_analysis_agent_run"

// harness wires an engine against temp directories and a /bin/sh
// interpreter so generated "code" is shell script.
type harness struct {
	t          *testing.T
	dir        string
	dataFolder string
	source     string
	agents     *agent.Registry
	logger     *logging.TestLogger
}

func newHarness(t *testing.T, lines ...string) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		t:          t,
		dir:        dir,
		dataFolder: filepath.Join(dir, "data"),
		source:     filepath.Join(dir, "instructions.jsonl"),
		agents:     agent.NewRegistry(),
		logger:     logging.NewTestLogger(),
	}
	require.NoError(t, os.MkdirAll(h.dataFolder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(h.dataFolder, "a.csv"), []byte("x\n5\n"), 0o644))
	if len(lines) == 0 {
		lines = []string{`{"id":1,"question":"What is x?","file_name":"a.csv","answers":[["x","5"]]}`}
	}
	require.NoError(t, os.WriteFile(h.source, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return h
}

func (h *harness) register(agentName, method string, c agent.Capability) {
	require.NoError(h.t, h.agents.Register(agentName, method, c))
}

func (h *harness) engine(opts ...Option) *Engine {
	h.t.Helper()
	auditLog, err := audit.New(audit.Config{}, h.logger.Logger)
	require.NoError(h.t, err)
	e, err := New(Deps{
		Agents:      h.agents,
		Handlers:    output.NewRegistry(),
		Executor:    execution.NewExecutor(execution.Config{Interpreter: "/bin/sh"}, h.logger.Logger),
		Audit:       auditLog,
		Provisioner: workspace.NewProvisioner(filepath.Join(h.dir, "workspace"), h.logger.Logger),
		Logger:      h.logger.Logger,
	}, append([]Option{WithDataFolder(h.dataFolder), WithRunID("run-1")}, opts...)...)
	require.NoError(h.t, err)
	return e
}

func (h *harness) firstStep() Step {
	return Step{
		Agent:  "data_analysis_agent",
		Method: "run",
		Input:  &Input{Data: h.source},
		Output: "analysis_result",
	}
}

func response(log, artifact string) agent.Response {
	return agent.Response{Log: log, Artifact: artifact}
}

func TestRun_ScenarioA_SuccessWithoutRetry(t *testing.T) {
	h := newHarness(t)
	capability := new(agenttest.MockDebugCapability)
	capability.On("Run", mock.Anything, mock.Anything).Return(response("generated", "echo 'x: 5'"), nil)
	h.register("data_analysis_agent", "run", capability)

	report, err := h.engine().Run(context.Background(), []Step{h.firstStep()})
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Empty(t, report.Failures)

	results := report.Results[analysisKey]
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, 1, r.InstructionID)
	assert.True(t, r.Succeeded)
	assert.Equal(t, result.StatusSucceeded, r.Status)
	assert.Equal(t, 0, r.DebugIterations)
	assert.Equal(t, "echo 'x: 5'", r.Result)
	assert.Equal(t, "code_action_data_analysis_agent_run.py", r.Filename)
	assert.Equal(t, "x: 5\n", r.Output)
	assert.Equal(t, "generated\nx: 5\n", r.Log)

	ws := workspace.Workspace{InstructionID: 1, Dir: r.Workspace}
	assert.True(t, ws.Exists("a.csv"), "data file provisioned")
	transcript, err := ws.ReadFile(audit.DefaultFileName)
	require.NoError(t, err)
	assert.Contains(t, transcript, "Action: Generate")
	assert.Contains(t, transcript, "Action: Execute")
	assert.NotContains(t, transcript, "Action: Debug")
	assert.Contains(t, transcript, "Agent: data_analysis_agent\nMethod: run\n")
	assert.Equal(t, transcript, r.Transcript, "the result carries the same blocks as the workspace log")

	capability.AssertNotCalled(t, "Debug", mock.Anything, mock.Anything)
}

func TestRun_ScenarioB_RecoversAfterOneDebug(t *testing.T) {
	h := newHarness(t)
	capability := new(agenttest.MockDebugCapability)
	capability.On("Run", mock.Anything, mock.Anything).Return(response("generated", "echo 'Error: column fare missing'"), nil)
	capability.On("Debug", mock.Anything, mock.MatchedBy(func(req *agent.DebugRequest) bool {
		return req.Iteration == 1 &&
			req.BuggyArtifact == "echo 'Error: column fare missing'" &&
			strings.Contains(req.ErrorMessage, "Error: column fare missing")
	})).Return(response("fixed", "echo 'x: 5'"), nil).Once()
	h.register("data_analysis_agent", "run", capability)

	report, err := h.engine().Run(context.Background(), []Step{h.firstStep()})
	require.NoError(t, err)
	assert.Empty(t, report.Failures)

	r := report.Results[analysisKey][0]
	assert.True(t, r.Succeeded)
	assert.Equal(t, 1, r.DebugIterations)
	assert.Equal(t, "echo 'x: 5'", r.Result)
	assert.Equal(t, "fixed\nx: 5\n", r.Log)

	written, err := workspace.Workspace{Dir: r.Workspace}.ReadFile(r.Filename)
	require.NoError(t, err)
	assert.Equal(t, "echo 'x: 5'", written, "debug overwrites the artifact file")

	// Generate, Execute, Debug, Execute: the whole history survives.
	assert.Equal(t, 1, strings.Count(r.Transcript, "Action: Generate"))
	assert.Equal(t, 1, strings.Count(r.Transcript, "Action: Debug"))
	assert.Equal(t, 2, strings.Count(r.Transcript, "Action: Execute"))
	assert.Less(t, strings.Index(r.Transcript, "Action: Generate"), strings.Index(r.Transcript, "Action: Debug"))
	capability.AssertExpectations(t)
}

func TestRun_ScenarioC_Exhaustion(t *testing.T) {
	h := newHarness(t)
	const broken = "echo 'Traceback (most recent call last):'"
	const lastTry = "echo 'Traceback (most recent call last):' # attempt"

	capability := new(agenttest.MockDebugCapability)
	capability.On("Run", mock.Anything, mock.Anything).Return(response("generated", broken), nil)
	capability.On("Debug", mock.Anything, mock.Anything).Return(response("retry", lastTry), nil)
	h.register("data_analysis_agent", "run", capability)

	report, err := h.engine().Run(context.Background(), []Step{h.firstStep()})
	require.NoError(t, err)

	r := report.Results[analysisKey][0]
	assert.False(t, r.Succeeded)
	assert.Equal(t, DefaultMaxDebugIterations, r.DebugIterations)
	assert.Equal(t, result.StatusDebugExhausted, r.Status)
	assert.Equal(t, lastTry, r.Result)
	capability.AssertNumberOfCalls(t, "Debug", DefaultMaxDebugIterations)

	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], ErrDebugExhausted)
	assert.ErrorIs(t, report.Failures[0], ErrExecutionFailure)
	assert.Equal(t, SeverityHigh, report.Failures[0].Severity)
	h.logger.AssertLogged(t, zapcore.WarnLevel, "debug iterations exhausted")
}

func TestRun_ScenarioD_MissingHandler(t *testing.T) {
	h := newHarness(t)
	capability := new(agenttest.MockDebugCapability)
	h.register("data_analysis_agent", "run", capability)

	step := h.firstStep()
	step.OutputType = "image"
	report, err := h.engine().Run(context.Background(), []Step{step})
	require.NoError(t, err)

	results, ok := report.Results[analysisKey]
	assert.True(t, ok)
	assert.Empty(t, results)

	require.Len(t, report.Failures, 1)
	var notFound *output.HandlerNotFoundError
	assert.True(t, errors.As(report.Failures[0], &notFound))
	assert.Equal(t, 1, report.Failures[0].InstructionID)
	assert.True(t, report.Failures[0].PerInstruction)
	h.logger.AssertLogged(t, zapcore.ErrorLevel, "no handler for output type")
	capability.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRun_RetryBoundConfigurable(t *testing.T) {
	h := newHarness(t)
	capability := new(agenttest.MockDebugCapability)
	capability.On("Run", mock.Anything, mock.Anything).Return(response("g", "echo 'Error: x'"), nil)
	capability.On("Debug", mock.Anything, mock.Anything).Return(response("d", "echo 'Error: y'"), nil)
	h.register("data_analysis_agent", "run", capability)

	report, err := h.engine(WithMaxDebugIterations(2)).Run(context.Background(), []Step{h.firstStep()})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Results[analysisKey][0].DebugIterations)
	capability.AssertNumberOfCalls(t, "Debug", 2)
}

func TestRun_DebugUnavailable(t *testing.T) {
	h := newHarness(t)
	capability := new(agenttest.MockCapability)
	capability.On("Run", mock.Anything, mock.Anything).Return(response("g", "echo 'Error: x'"), nil)
	h.register("data_analysis_agent", "run", capability)

	report, err := h.engine().Run(context.Background(), []Step{h.firstStep()})
	require.NoError(t, err)

	r := report.Results[analysisKey][0]
	assert.Equal(t, result.StatusDebugUnavailable, r.Status)
	assert.Equal(t, 0, r.DebugIterations)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], ErrDebugUnavailable)
}

func TestRun_DebugMalformed(t *testing.T) {
	h := newHarness(t)
	capability := new(agenttest.MockDebugCapability)
	capability.On("Run", mock.Anything, mock.Anything).Return(response("g", "echo 'Error: x'"), nil)
	capability.On("Debug", mock.Anything, mock.Anything).Return(agent.Response{Log: "no code"}, nil).Once()
	h.register("data_analysis_agent", "run", capability)

	report, err := h.engine().Run(context.Background(), []Step{h.firstStep()})
	require.NoError(t, err)

	r := report.Results[analysisKey][0]
	assert.Equal(t, result.StatusDebugMalformed, r.Status)
	assert.Equal(t, "echo 'Error: x'", r.Result, "last good artifact kept")
	assert.ErrorIs(t, report.Failures[0], ErrDebugMalformed)
	capability.AssertExpectations(t)
}

func TestRun_DebugErrorIsMalformed(t *testing.T) {
	h := newHarness(t)
	capability := new(agenttest.MockDebugCapability)
	capability.On("Run", mock.Anything, mock.Anything).Return(response("g", "echo 'Error: x'"), nil)
	capability.On("Debug", mock.Anything, mock.Anything).Return(agent.Response{}, errors.New("model down")).Once()
	h.register("data_analysis_agent", "run", capability)

	report, err := h.engine().Run(context.Background(), []Step{h.firstStep()})
	require.NoError(t, err)
	assert.Equal(t, result.StatusDebugMalformed, report.Results[analysisKey][0].Status)
	assert.ErrorContains(t, report.Failures[0], "model down")
}

func TestRun_CapabilityErrorIsolated(t *testing.T) {
	h := newHarness(t,
		`{"id":1,"question":"q1","answers":[]}`,
		`{"id":2,"question":"q2","answers":[]}`,
	)
	capability := new(agenttest.MockDebugCapability)
	capability.On("Run", mock.Anything, mock.MatchedBy(func(req *agent.Request) bool { return req.Instruction.ID == 1 })).
		Return(agent.Response{}, errors.New("rate limited"))
	capability.On("Run", mock.Anything, mock.MatchedBy(func(req *agent.Request) bool { return req.Instruction.ID == 2 })).
		Return(response("g", "echo ok"), nil)
	h.register("data_analysis_agent", "run", capability)

	m := NewMetricsWith(prometheus.NewRegistry())
	report, err := h.engine(WithMetrics(m)).Run(context.Background(), []Step{h.firstStep()})
	require.NoError(t, err)

	results := report.Results[analysisKey]
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].InstructionID)

	require.Len(t, report.Failures, 1)
	f := report.Failures[0]
	assert.Equal(t, 1, f.InstructionID)
	assert.Equal(t, StageAgent, f.Stage)
	assert.ErrorContains(t, f, "rate limited")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentErrorsTotal.WithLabelValues(analysisKey)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstructionsTotal.WithLabelValues(analysisKey, "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstructionsTotal.WithLabelValues(analysisKey, "skipped")))
}

func TestRun_DataStoreRoundTrip(t *testing.T) {
	h := newHarness(t)
	first := new(agenttest.MockDebugCapability)
	first.On("Run", mock.Anything, mock.Anything).Return(response("generated", "echo 'x: 5'"), nil)
	h.register("data_analysis_agent", "run", first)

	var got *agent.Request
	second := new(agenttest.MockCapability)
	second.On("Run", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(*agent.Request) }).
		Return(response("checked", "looks right"), nil)
	h.register("correctness_ensuring_agent", "run", second)

	steps := []Step{
		h.firstStep(),
		{
			Agent:      "correctness_ensuring_agent",
			Method:     "run",
			OutputType: output.TypeAnalysis,
			ModelTag:   "gpt-4o",
			Args:       map[string]any{"data_analysis_output": map[string]any{"from": "analysis_result"}, "threshold": 3},
		},
	}
	report, err := h.engine().Run(context.Background(), steps)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, report.Results[analysisKey], got.Args["data_analysis_output"])
	assert.Equal(t, 3, got.Args["threshold"])
	assert.Equal(t, 1, got.Args[agent.QueriesArg].(instruction.Instruction).ID)
	assert.Equal(t, "gpt-4o", got.Tag)

	verify := report.Results["correctness_ensuring_agent_run"]
	require.Len(t, verify, 1)
	assert.Equal(t, filepath.Join("gpt-4o", "analysis_correctness_ensuring_agent_run.txt"), verify[0].Filename)
	assert.Equal(t, "looks right", verify[0].Result)
	assert.Empty(t, verify[0].Output)
	assert.True(t, verify[0].Succeeded)
}

func TestRun_AnalysisDebugReclassifiesLog(t *testing.T) {
	h := newHarness(t)
	first := new(agenttest.MockCapability)
	first.On("Run", mock.Anything, mock.Anything).Return(response("g", "echo 'x: 5'"), nil)
	h.register("data_analysis_agent", "run", first)

	checker := new(agenttest.MockDebugCapability)
	checker.On("Run", mock.Anything, mock.Anything).
		Return(agent.Response{Log: "Incorrect Answer: x", Artifact: map[string]any{"correct": false}}, nil)
	checker.On("Debug", mock.Anything, mock.MatchedBy(func(req *agent.DebugRequest) bool {
		return req.ErrorMessage == "Incorrect Answer: x"
	})).Return(agent.Response{Log: "Correct answer obtained.", Artifact: map[string]any{"correct": true}}, nil).Once()
	h.register("correctness_ensuring_agent", "run", checker)

	report, err := h.engine().Run(context.Background(), []Step{
		h.firstStep(),
		{Agent: "correctness_ensuring_agent", OutputType: output.TypeAnalysis},
	})
	require.NoError(t, err)

	r := report.Results["correctness_ensuring_agent_run"][0]
	assert.True(t, r.Succeeded)
	assert.Equal(t, 1, r.DebugIterations)
	assert.JSONEq(t, `{"correct": true}`, r.Result)
	assert.Equal(t, filepath.Join(output.DefaultTag, "analysis_correctness_ensuring_agent_run.json"), r.Filename)
}

func TestRun_CodeInputFromWorkspace(t *testing.T) {
	h := newHarness(t)
	first := new(agenttest.MockCapability)
	first.On("Run", mock.Anything, mock.Anything).Return(response("g", "echo 'x: 5'"), nil)
	h.register("data_analysis_agent", "run", first)

	suggest := new(agenttest.MockCapability)
	suggest.On("Run", mock.Anything, mock.MatchedBy(func(req *agent.Request) bool {
		return req.Args["program"] == "echo 'x: 5'"
	})).Return(agent.Response{Log: "ok", Artifact: map[string]any{}}, nil)
	h.register("error_suggest_agent", "run", suggest)

	report, err := h.engine().Run(context.Background(), []Step{
		h.firstStep(),
		{
			Agent:      "error_suggest_agent",
			OutputType: output.TypeAnalysis,
			Input:      &Input{Code: "code_action_data_analysis_agent_run.py", CodeArg: "program"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, report.Results["error_suggest_agent_run"], 1)
	suggest.AssertExpectations(t)
}

func TestRun_MissingCodeInputSkips(t *testing.T) {
	h := newHarness(t)
	capability := new(agenttest.MockCapability)
	h.register("error_suggest_agent", "run", capability)

	step := Step{Agent: "error_suggest_agent", OutputType: output.TypeAnalysis, Input: &Input{Data: h.source, Code: "missing.py"}}
	report, err := h.engine().Run(context.Background(), []Step{step})
	require.NoError(t, err)

	assert.Empty(t, report.Results["error_suggest_agent_run"])
	require.Len(t, report.Failures, 1)
	assert.Equal(t, StageInput, report.Failures[0].Stage)
	capability.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRun_FilterByIDs(t *testing.T) {
	h := newHarness(t,
		`{"id":1,"question":"a"}`,
		`{"id":4,"question":"b"}`,
		`{"id":9,"question":"c"}`,
	)
	capability := new(agenttest.MockCapability)
	capability.On("Run", mock.Anything, mock.Anything).Return(response("g", "true"), nil)
	h.register("data_analysis_agent", "run", capability)

	step := h.firstStep()
	step.DataIDs = []int{9, 1}
	report, err := h.engine().Run(context.Background(), []Step{step})
	require.NoError(t, err)

	results := report.Results[analysisKey]
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].InstructionID)
	assert.Equal(t, 9, results[1].InstructionID)
	assert.Equal(t, workspace.DirName(9), filepath.Base(results[1].Workspace))
}

func TestRun_SourceNotFoundIsFatal(t *testing.T) {
	h := newHarness(t)
	h.register("data_analysis_agent", "run", new(agenttest.MockCapability))

	step := h.firstStep()
	step.Input.Data = filepath.Join(h.dir, "missing.jsonl")
	report, err := h.engine().Run(context.Background(), []Step{step})
	require.Error(t, err)
	require.NotNil(t, report)

	var notFound *instruction.SourceNotFoundError
	assert.True(t, errors.As(err, &notFound))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	require.Len(t, report.Failures, 1)
	assert.Equal(t, SeverityCritical, report.Failures[0].Severity)
}

func TestRun_InvalidWorkflow(t *testing.T) {
	h := newHarness(t)
	h.register("data_analysis_agent", "run", new(agenttest.MockCapability))

	_, err := h.engine().Run(context.Background(), []Step{{Agent: "data_analysis_agent"}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "first step must declare input.data")

	_, err = h.engine().Run(context.Background(), []Step{
		h.firstStep(),
		{Agent: "data_analysis_agent", Args: map[string]any{"d": datastore.Ref("later")}},
		{Agent: "data_analysis_agent", Output: "later"},
	})
	assert.ErrorContains(t, err, `references "later"`)
}

func TestRun_CancelledDuringInstruction(t *testing.T) {
	h := newHarness(t,
		`{"id":1,"question":"a"}`,
		`{"id":2,"question":"b"}`,
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	capability := new(agenttest.MockDebugCapability)
	capability.On("Run", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(response("g", "echo 'x: 5'"), nil).Once()
	h.register("data_analysis_agent", "run", capability)

	report, err := h.engine().Run(ctx, []Step{h.firstStep()})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	results := report.Results[analysisKey]
	require.Len(t, results, 1)
	assert.Equal(t, result.StatusCancelled, results[0].Status)
	capability.AssertNotCalled(t, "Debug", mock.Anything, mock.Anything)
	capability.AssertNumberOfCalls(t, "Run", 1)
}

func TestRun_Spans(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	h := newHarness(t)
	capability := new(agenttest.MockDebugCapability)
	capability.On("Run", mock.Anything, mock.Anything).Return(response("g", "echo 'Error: x'"), nil)
	capability.On("Debug", mock.Anything, mock.Anything).Return(response("d", "echo fine"), nil)
	h.register("data_analysis_agent", "run", capability)

	_, err := h.engine(WithTracer(tel.Tracer("test"))).Run(context.Background(), []Step{h.firstStep()})
	require.NoError(t, err)

	tel.AssertSpanExists(t, "workflow.run")
	tel.AssertSpanExists(t, "workflow.step")
	tel.AssertSpanExists(t, "workflow.instruction")
	tel.AssertSpanExists(t, "workflow.debug")
	tel.AssertSpanAttribute(t, "workflow.run", "run.id", "run-1")
	tel.AssertSpanAttribute(t, "workflow.instruction", "instruction.debug_iterations", int64(1))
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
	_, err = New(Deps{Agents: agent.NewRegistry()})
	assert.Error(t, err)
	_, err = New(Deps{Agents: agent.NewRegistry(), Executor: execution.NewExecutor(execution.Config{}, nil)})
	assert.Error(t, err)
}
