// Package verify is the correctness ensuring agent. It checks the answers
// a previous analysis step printed against the instruction's expected
// answers and, on mismatch, asks the model for corrected code.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/execution"
	"github.com/fyrsmithlabs/agentbench/internal/instruction"
	"github.com/fyrsmithlabs/agentbench/internal/llm"
	"github.com/fyrsmithlabs/agentbench/internal/output"
	"github.com/fyrsmithlabs/agentbench/internal/result"
)

// Name is the agent's registry name.
const Name = "correctness_ensuring_agent"

// SourceArg is the argument carrying the analysis step's results.
const SourceArg = "data_analysis_output"

// IncorrectAnswerPrefix starts the log line written on a mismatch.
const IncorrectAnswerPrefix = execution.IncorrectAnswerMarker + " Answer verification failed. Feedback: "

const systemPrompt = `You review Python data analysis programs whose printed answers do not match the
expected answers. Explain the mistake briefly, then return the corrected program in one fenced
block marked python.`

const debugPrompt = `%s
Buggy code:
%s

Error message:
%s`

// Verdict is the analysis artifact the agent produces.
type Verdict struct {
	Code         string  `json:"code"`
	Correct      bool    `json:"correct"`
	Feedback     string  `json:"feedback"`
	Matches      []Match `json:"matches"`
	ExecutionLog string  `json:"execution_log,omitempty"`
}

// Agent verifies answers.
type Agent struct {
	completer llm.Completer
	executor  agent.Executor
}

// New creates the agent. The executor re-runs corrected code during debug.
func New(completer llm.Completer, executor agent.Executor) *Agent {
	return &Agent{completer: completer, executor: executor}
}

func (a *Agent) Name() string { return Name }

// Capabilities exposes the run method.
func (a *Agent) Capabilities() map[string]agent.Capability {
	return map[string]agent.Capability{"run": &runner{a}}
}

type runner struct {
	a *Agent
}

// Run checks the previous step's output for this instruction.
func (r *runner) Run(ctx context.Context, req *agent.Request) (agent.Response, error) {
	q := req.Instruction
	prior, err := priorResult(req)
	if err != nil {
		return agent.Response{}, fmt.Errorf("%s: instruction %d: %w", Name, q.ID, err)
	}

	executionLog := prior.Output
	if executionLog == "" {
		executionLog = prior.Log
	}

	var log agent.Transcript
	log.Add("--- Verifying Query ---")
	log.Addf("Question ID: %d", q.ID)
	log.Addf("Question: %s", q.Question)
	log.Add("Generated code:")
	log.Add(prior.Result)
	log.Add("Execution log:")
	log.Add(executionLog)

	v := check(prior.Result, executionLog, q.Answers)
	writeVerdict(&log, v)
	return agent.Response{Log: log.String(), Artifact: v}, nil
}

// Debug asks for corrected code, runs it and verifies the new output.
func (r *runner) Debug(ctx context.Context, req *agent.DebugRequest) (agent.Response, error) {
	q := req.Instruction
	buggy := codeFromArtifact(req.BuggyArtifact)

	var log agent.Transcript
	log.Add("--- Debugging Query ---")
	log.Addf("Question ID: %d", q.ID)
	log.Addf("Question: %s", q.Question)

	reply, err := r.a.completer.Complete(ctx, []llm.Message{
		llm.System(systemPrompt),
		llm.User(fmt.Sprintf(debugPrompt, q.Prompt(), buggy, req.ErrorMessage)),
	})
	if err != nil {
		return agent.Response{}, fmt.Errorf("%s: debugging instruction %d: %w", Name, q.ID, err)
	}

	code := agent.ExtractCode(reply, "python")
	if code == "" {
		log.Add("No corrected code in model response.")
		return agent.Response{Log: log.String()}, nil
	}
	log.Add("Corrected code:")
	log.Add(code)

	name := output.CodeFileName(Name, "debug", "")
	if err := req.Workspace.WriteFile(name, code); err != nil {
		return agent.Response{}, fmt.Errorf("%s: writing corrected code: %w", Name, err)
	}
	executionLog := r.a.executor.Execute(ctx, name, req.Workspace)
	log.Add("Execution log:")
	log.Add(executionLog)

	v := check(code, executionLog, q.Answers)
	writeVerdict(&log, v)
	return agent.Response{Log: log.String(), Artifact: v}, nil
}

func check(code, executionLog string, answers []instruction.Answer) Verdict {
	matches := MatchAnswers(executionLog, answers)
	return Verdict{
		Code:         code,
		Correct:      AllCorrect(matches),
		Feedback:     Feedback(matches),
		Matches:      matches,
		ExecutionLog: executionLog,
	}
}

func writeVerdict(log *agent.Transcript, v Verdict) {
	if v.Correct {
		log.Add("Correct answer obtained.")
		return
	}
	log.Add(IncorrectAnswerPrefix + v.Feedback)
}

// priorResult finds this instruction's record in the source argument, or
// in the only argument holding step results.
func priorResult(req *agent.Request) (result.StepResult, error) {
	list, ok := req.Args[SourceArg].([]result.StepResult)
	if !ok {
		keys := make([]string, 0, len(req.Args))
		for k := range req.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if l, isList := req.Args[k].([]result.StepResult); isList {
				list, ok = l, true
				break
			}
		}
	}
	if !ok {
		return result.StepResult{}, fmt.Errorf("no step results in arguments (expected %q)", SourceArg)
	}
	r, found := result.Find(list, req.Instruction.ID)
	if !found {
		return result.StepResult{}, fmt.Errorf("no prior result for instruction %d", req.Instruction.ID)
	}
	return r, nil
}

// codeFromArtifact accepts either a persisted Verdict or plain code.
func codeFromArtifact(artifact string) string {
	var v Verdict
	if err := json.Unmarshal([]byte(artifact), &v); err == nil && v.Code != "" {
		return v.Code
	}
	return artifact
}
