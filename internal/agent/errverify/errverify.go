// Package errverify is the error verifier agent. It reads the logical
// errors the suggest agent injected into a workspace, strips the comments
// that give each error away, and asks the model whether it can still find
// the error in the cleaned program.
package errverify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/agent/suggest"
	"github.com/fyrsmithlabs/agentbench/internal/llm"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
)

// Name is the agent's registry name.
const Name = "error_verifier_agent"

// VerificationFile is written next to the suggestions, one verdict per line.
const VerificationFile = "logical_error_verification.jsonl"

// ErrNoVerdict is returned when a verifier reply holds no JSON object.
var ErrNoVerdict = errors.New("no JSON object in verifier response")

const erasePrompt = `You are given the following incorrect data analysis code.

### Incorrect Data Analysis Code:
%s

There are places in the code where errors are explicitly stated.

Only remove the explicit description of the errors (mainly in comments) and leave the
erroneous code itself unaltered. Return the program in one fenced block marked python.`

const systemPrompt = `You will be provided with an original query and a data analysis code.
Read the question carefully and check whether the code follows its requirements. If it does,
look for errors in the data analysis process. Code that faithfully follows a practice the
question explicitly asks for is correct, even if the practice looks wrong.
For each error found, explain why it is an error, how it affects the results, and how to fix it.
Answer only with JSON shaped as:
{"is_error": "true/false", "error_explanation": [{"error_type": "...", "explanation": "...", "expected_outcome": "...", "suggestions": "..."}]}
Use an empty error_explanation list when there are no errors.`

const userPrompt = `### Original Query:
%s

### Data Analysis Code:
%s`

// Explanation is one error the verifier reported.
type Explanation struct {
	ErrorType       string `json:"error_type"`
	Explanation     string `json:"explanation"`
	ExpectedOutcome string `json:"expected_outcome"`
	Suggestions     string `json:"suggestions,omitempty"`
}

// Verdict is the verifier's answer for one injected program.
type Verdict struct {
	IsError      Flag          `json:"is_error"`
	Explanations []Explanation `json:"error_explanation"`
}

// UnmarshalJSON accepts a single explanation object in place of a list.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var raw struct {
		IsError      Flag            `json:"is_error"`
		Explanations json.RawMessage `json:"error_explanation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.IsError = raw.IsError
	v.Explanations = nil
	if len(raw.Explanations) == 0 || string(raw.Explanations) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw.Explanations, &v.Explanations); err != nil {
		var one Explanation
		if err := json.Unmarshal(raw.Explanations, &one); err != nil {
			return fmt.Errorf("error_explanation: %w", err)
		}
		v.Explanations = []Explanation{one}
	}
	return nil
}

// Flag is a boolean models write either as a JSON bool or as a string.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = false
		return nil
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return fmt.Errorf("is_error: %w", err)
	}
	*f = Flag(b)
	return nil
}

// Verification pairs an injected error with the verifier's verdict.
type Verification struct {
	Concept       string  `json:"concept"`
	Index         int     `json:"index"`
	File          string  `json:"file,omitempty"`
	InjectedError string  `json:"injected_error_type"`
	ErasedCode    string  `json:"erased_code"`
	Verdict       Verdict `json:"verdict"`
	// Detected is true when the verifier flagged the cleaned program.
	Detected bool `json:"detected"`
}

// Report is the analysis artifact the agent produces.
type Report struct {
	Verifications []Verification `json:"verifications"`
	Detected      int            `json:"detected"`
	Total         int            `json:"total"`
}

// Agent verifies injected errors. It has no debug capability.
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
	return map[string]agent.Capability{"run": agent.CapabilityFunc(a.run)}
}

func (a *Agent) run(ctx context.Context, req *agent.Request) (agent.Response, error) {
	q := req.Instruction
	errDir := workspace.Workspace{InstructionID: q.ID, Dir: req.Workspace.Path(suggest.ErrorDir)}

	raw, err := errDir.ReadFile(suggest.SuggestionsFile)
	if err != nil {
		return agent.Response{}, fmt.Errorf("%s: instruction %d: reading suggestions: %w", Name, q.ID, err)
	}
	var suggestions suggest.Suggestions
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		return agent.Response{}, fmt.Errorf("%s: instruction %d: decoding suggestions: %w", Name, q.ID, err)
	}

	var log agent.Transcript
	log.Addf("------------------------ Processing Query %d ------------------------", q.ID)
	log.Addf("Question ID: %d", q.ID)
	log.Addf("Question: %s", q.Question)
	log.Addf("Data File: %s", q.FileName)
	log.Addf("Ground Truth: %s", q.FormatAnswers())

	report := Report{Verifications: []Verification{}}
	var lines []string
	for _, concept := range suggestions.Concepts() {
		for idx, s := range suggestions[concept] {
			if s.ErrorCode == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return agent.Response{}, err
			}

			erased, err := a.erase(ctx, s.ErrorCode)
			if err != nil {
				return agent.Response{}, fmt.Errorf("%s: instruction %d: %w", Name, q.ID, err)
			}
			verdict, err := a.verify(ctx, q.Prompt(), erased)
			if err != nil {
				return agent.Response{}, fmt.Errorf("%s: instruction %d: concept %q #%d: %w", Name, q.ID, concept, idx, err)
			}

			v := Verification{
				Concept:       concept,
				Index:         idx,
				File:          s.File,
				InjectedError: s.ErrorType,
				ErasedCode:    erased,
				Verdict:       verdict,
				Detected:      bool(verdict.IsError),
			}
			report.Verifications = append(report.Verifications, v)
			report.Total++
			if v.Detected {
				report.Detected++
				log.Addf("Concept %s #%d: verifier flagged %d problem(s)", concept, idx, len(verdict.Explanations))
			} else {
				log.Addf("Concept %s #%d: verifier found nothing", concept, idx)
			}

			line, err := json.Marshal(v)
			if err != nil {
				return agent.Response{}, fmt.Errorf("%s: encoding verification: %w", Name, err)
			}
			lines = append(lines, string(line))
		}
	}

	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	if err := errDir.WriteFile(VerificationFile, content); err != nil {
		return agent.Response{}, fmt.Errorf("%s: writing %s: %w", Name, VerificationFile, err)
	}
	log.Addf("Verifier detected %d of %d injected errors", report.Detected, report.Total)
	log.Addf("Verifications written to %s/%s", suggest.ErrorDir, VerificationFile)

	return agent.Response{Log: log.String(), Artifact: report}, nil
}

// erase asks the model to drop comments that describe the injected error.
// The original program is kept when the reply has no python block.
func (a *Agent) erase(ctx context.Context, code string) (string, error) {
	reply, err := a.completer.Complete(ctx, []llm.Message{
		llm.User(fmt.Sprintf(erasePrompt, code)),
	})
	if err != nil {
		return "", fmt.Errorf("erasing error hints: %w", err)
	}
	if cleaned := agent.ExtractCode(reply, "python"); cleaned != "" {
		return cleaned, nil
	}
	return code, nil
}

func (a *Agent) verify(ctx context.Context, query, code string) (Verdict, error) {
	reply, err := a.completer.Complete(ctx, []llm.Message{
		llm.System(systemPrompt),
		llm.User(fmt.Sprintf(userPrompt, query, code)),
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("verifying: %w", err)
	}
	raw, ok := agent.ExtractJSONObject(reply)
	if !ok {
		return Verdict{}, ErrNoVerdict
	}
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Verdict{}, fmt.Errorf("decoding verdict: %w", err)
	}
	return v, nil
}
