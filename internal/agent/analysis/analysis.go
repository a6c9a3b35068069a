// Package analysis is the data analysis agent. It asks the model for a
// Python program that answers a benchmark instruction and repairs that
// program when it fails.
package analysis

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/llm"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
)

// Name is the agent's registry name.
const Name = "data_analysis_agent"

const systemPrompt = `You are a data analyst who writes Python to answer questions about a dataset.
The working directory contains these files:
%s
Write a single self-contained Python program that loads the data file, performs the analysis
and prints every requested answer on its own line as "@<answer_name>[<value>]".
Return the program in one fenced block marked python.`

const debugPrompt = `The previous program for this task failed.

%s
Program:
%s

Output:
%s

Fix every error while keeping the original analysis. The printed answers must follow the
required format and match the expected answers. Return the corrected program in one fenced
block marked python.`

// Agent generates analysis code.
type Agent struct {
	completer llm.Completer
}

// New creates the agent.
func New(completer llm.Completer) *Agent {
	return &Agent{completer: completer}
}

func (a *Agent) Name() string { return Name }

// Capabilities exposes the run method.
func (a *Agent) Capabilities() map[string]agent.Capability {
	return map[string]agent.Capability{"run": &runner{a}}
}

type runner struct {
	a *Agent
}

// Run asks for a program answering the instruction.
func (r *runner) Run(ctx context.Context, req *agent.Request) (agent.Response, error) {
	q := req.Instruction

	var log agent.Transcript
	log.Addf("--- Processing Query %d ---", q.ID)
	log.Addf("Question ID: %d", q.ID)
	log.Addf("Question: %s", q.Question)
	log.Addf("Constraints: %s", q.Constraints)
	log.Addf("Data File: %s", q.FileName)
	log.Addf("Expected Format: %s", q.Format)
	log.Addf("Ground Truth: %s", q.FormatAnswers())

	prompt := q.Prompt() + "\nMake sure your analysis results are identical with the expected answers."
	reply, err := r.a.completer.Complete(ctx, []llm.Message{
		llm.System(fmt.Sprintf(systemPrompt, listFiles(req.Workspace))),
		llm.User(prompt),
	})
	if err != nil {
		return agent.Response{}, fmt.Errorf("%s: generating code for instruction %d: %w", Name, q.ID, err)
	}

	code := agent.ExtractCode(reply, "python")
	if code == "" {
		return agent.Response{}, fmt.Errorf("%s: instruction %d: %w", Name, q.ID, agent.ErrNoCode)
	}
	log.Add("Generated code:")
	log.Add(code)
	return agent.Response{Log: log.String(), Artifact: code}, nil
}

// Debug asks for a corrected program. An empty reply yields an empty
// artifact, which the engine treats as malformed.
func (r *runner) Debug(ctx context.Context, req *agent.DebugRequest) (agent.Response, error) {
	q := req.Instruction

	var log agent.Transcript
	log.Addf("=== Debug Run %d ===", req.Iteration)
	log.Addf("Question ID: %d", q.ID)

	reply, err := r.a.completer.Complete(ctx, []llm.Message{
		llm.System(fmt.Sprintf(systemPrompt, listFiles(req.Workspace))),
		llm.User(fmt.Sprintf(debugPrompt, q.Prompt(), req.BuggyArtifact, req.ErrorMessage)),
	})
	if err != nil {
		return agent.Response{}, fmt.Errorf("%s: debugging instruction %d: %w", Name, q.ID, err)
	}

	code := agent.ExtractCode(reply, "python")
	log.Add("Corrected code:")
	log.Add(code)
	return agent.Response{Log: log.String(), Artifact: code}, nil
}

// listFiles renders the top level of the workspace, one name per line.
func listFiles(ws workspace.Workspace) string {
	entries, err := os.ReadDir(ws.Dir)
	if err != nil || len(entries) == 0 {
		return "(empty)"
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, "- "+name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}
