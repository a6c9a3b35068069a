// Package suggest is the error suggestion agent. Given a working analysis
// program it asks the model for plausible logical errors per concept,
// writes each injected variant to disk and runs it.
package suggest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/execution"
	"github.com/fyrsmithlabs/agentbench/internal/llm"
	"github.com/fyrsmithlabs/agentbench/internal/sanitize"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
)

// Name is the agent's registry name.
const Name = "error_suggest_agent"

const (
	// CodeArg carries the working program.
	CodeArg = "code"
	// ErrorDir is created inside the workspace for injected variants.
	ErrorDir = "error_code_dir"
	// SuggestionsFile records the decoded suggestions.
	SuggestionsFile = "logical_error_data.jsonl"

	sampleRows = 5
)

// ErrNoSuggestions is returned when the reply holds no JSON object.
var ErrNoSuggestions = errors.New("no JSON object in model response")

const systemPrompt = `You will receive a data analysis question with its concepts, a correct Python program
answering it, and a description of the CSV file it reads.
For each concept, identify at least three logical error types that could realistically occur
in this program with this data. For each one, explain why it is an error, describe how it
would change the outcome, and give the full program with that single error injected.
Return only JSON shaped as:
{"<concept>": [{"error_type": "...", "explanation": "...", "expected_outcome": "...", "error_code": "..."}]}`

const userPrompt = `### Original Query:
%s

### Correct Data Analysis Code:
%s

### CSV Information
%s

### Concepts
%s`

// Suggestion is one injected logical error.
type Suggestion struct {
	ErrorType       string `json:"error_type"`
	Explanation     string `json:"explanation"`
	ExpectedOutcome string `json:"expected_outcome"`
	ErrorCode       string `json:"error_code,omitempty"`
	File            string `json:"file,omitempty"`
	ExecutionOutput string `json:"execution_output,omitempty"`
	ErrorObserved   bool   `json:"error_observed"`
}

// Suggestions maps a concept to its suggestions.
type Suggestions map[string][]Suggestion

// UnmarshalJSON accepts a single object or a list per concept.
func (s *Suggestions) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Suggestions, len(raw))
	for concept, msg := range raw {
		var list []Suggestion
		if err := json.Unmarshal(msg, &list); err != nil {
			var one Suggestion
			if err := json.Unmarshal(msg, &one); err != nil {
				return fmt.Errorf("concept %q: %w", concept, err)
			}
			list = []Suggestion{one}
		}
		out[concept] = list
	}
	*s = out
	return nil
}

// Concepts returns the concepts, sorted.
func (s Suggestions) Concepts() []string {
	concepts := make([]string, 0, len(s))
	for c := range s {
		concepts = append(concepts, c)
	}
	sort.Strings(concepts)
	return concepts
}

// Agent suggests errors. It has no debug capability.
type Agent struct {
	completer llm.Completer
	executor  agent.Executor
}

// New creates the agent. A nil executor skips running injected variants.
func New(completer llm.Completer, executor agent.Executor) *Agent {
	return &Agent{completer: completer, executor: executor}
}

func (a *Agent) Name() string { return Name }

// Capabilities exposes the run method.
func (a *Agent) Capabilities() map[string]agent.Capability {
	return map[string]agent.Capability{"run": agent.CapabilityFunc(a.run)}
}

func (a *Agent) run(ctx context.Context, req *agent.Request) (agent.Response, error) {
	q := req.Instruction
	code, ok := req.StringArg(CodeArg)
	if !ok {
		return agent.Response{}, fmt.Errorf("%s: instruction %d: missing %q argument", Name, q.ID, CodeArg)
	}

	errDir := workspace.Workspace{InstructionID: q.ID, Dir: req.Workspace.Path(ErrorDir)}
	if err := os.MkdirAll(errDir.Dir, 0o755); err != nil {
		return agent.Response{}, fmt.Errorf("%s: creating %s: %w", Name, ErrorDir, err)
	}

	csvInfo := "(no data file)"
	if q.FileName != "" && req.Workspace.Exists(q.FileName) {
		data, err := req.Workspace.ReadFile(q.FileName)
		if err != nil {
			return agent.Response{}, fmt.Errorf("%s: reading %s: %w", Name, q.FileName, err)
		}
		if err := errDir.WriteFile(q.FileName, data); err != nil {
			return agent.Response{}, fmt.Errorf("%s: copying %s: %w", Name, q.FileName, err)
		}
		csvInfo = describeCSV(data)
	}

	var log agent.Transcript
	log.Addf("------------------------ Processing Query %d ------------------------", q.ID)
	log.Addf("Question ID: %d", q.ID)
	log.Addf("Question: %s", q.Question)
	log.Addf("Concepts: %s", strings.Join(q.Concepts, ", "))
	log.Addf("Data File: %s", q.FileName)
	log.Add("...Generating error types...")

	reply, err := a.completer.Complete(ctx, []llm.Message{
		llm.System(systemPrompt),
		llm.User(fmt.Sprintf(userPrompt, q.Prompt(), code, csvInfo, strings.Join(q.Concepts, ", "))),
	})
	if err != nil {
		return agent.Response{}, fmt.Errorf("%s: instruction %d: %w", Name, q.ID, err)
	}

	raw, ok := agent.ExtractJSONObject(reply)
	if !ok {
		return agent.Response{}, fmt.Errorf("%s: instruction %d: %w", Name, q.ID, ErrNoSuggestions)
	}
	var suggestions Suggestions
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		return agent.Response{}, fmt.Errorf("%s: instruction %d: decoding suggestions: %w", Name, q.ID, err)
	}

	for _, concept := range suggestions.Concepts() {
		for idx := range suggestions[concept] {
			s := &suggestions[concept][idx]
			log.Addf("Concept %s #%d suggested", concept, idx)
			if s.ErrorCode == "" {
				continue
			}
			s.File = InjectedFileName(concept, idx)
			if err := errDir.WriteFile(s.File, s.ErrorCode); err != nil {
				return agent.Response{}, fmt.Errorf("%s: writing %s: %w", Name, s.File, err)
			}
			if a.executor == nil {
				continue
			}
			s.ExecutionOutput = a.executor.Execute(ctx, s.File, errDir)
			s.ErrorObserved = !execution.IsSuccessful(s.ExecutionOutput)
			if s.ErrorObserved {
				log.Addf("  %s: raised an error when run", s.File)
			} else {
				log.Addf("  %s: ran to completion", s.File)
			}
		}
	}

	encoded, err := json.MarshalIndent(suggestions, "", "    ")
	if err != nil {
		return agent.Response{}, fmt.Errorf("%s: encoding suggestions: %w", Name, err)
	}
	if err := errDir.WriteFile(SuggestionsFile, string(encoded)+"\n"); err != nil {
		return agent.Response{}, fmt.Errorf("%s: writing %s: %w", Name, SuggestionsFile, err)
	}
	log.Addf("Suggestions written to %s/%s", ErrorDir, SuggestionsFile)

	return agent.Response{Log: log.String(), Artifact: suggestions}, nil
}

// InjectedFileName names the file holding one injected variant.
func InjectedFileName(concept string, idx int) string {
	return fmt.Sprintf("logical_error_%s_%d_injected.py", sanitize.FileComponent(concept), idx)
}

// describeCSV summarizes a CSV file: its columns and the first rows.
func describeCSV(data string) string {
	sc := bufio.NewScanner(strings.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var header string
	var rows []string
	total := 0
	for sc.Scan() {
		line := sc.Text()
		if header == "" {
			header = line
			continue
		}
		total++
		if len(rows) < sampleRows {
			rows = append(rows, line)
		}
	}

	var b strings.Builder
	b.WriteString("CSV File Information:\n")
	fmt.Fprintf(&b, "Rows: %d\n", total)
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(strings.Split(header, ","), ", "))
	fmt.Fprintf(&b, "Sample Data (First %d Rows):\n", sampleRows)
	for _, r := range rows {
		b.WriteString(r)
		b.WriteString("\n")
	}
	return b.String()
}
