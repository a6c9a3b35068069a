package workflow

import (
	"time"

	"github.com/fyrsmithlabs/agentbench/internal/instruction"
	"github.com/fyrsmithlabs/agentbench/internal/output"
	"github.com/fyrsmithlabs/agentbench/internal/result"
)

// DefaultMethod is used when a step names no method.
const DefaultMethod = "run"

// DefaultCodeArg receives the contents of Input.Code.
const DefaultCodeArg = "code"

// StepResult is one instruction's outcome for one step.
type StepResult = result.StepResult

// Input names where a step's inputs come from.
type Input struct {
	// Data is an instruction file. Setting it reloads instructions and
	// reprovisions workspaces for this step and the ones after it.
	Data string `yaml:"data,omitempty" toml:"data,omitempty" json:"data,omitempty"`
	// Code is a file inside each workspace whose contents are passed to
	// the capability under CodeArg.
	Code    string `yaml:"code,omitempty" toml:"code,omitempty" json:"code,omitempty"`
	CodeArg string `yaml:"code_arg,omitempty" toml:"code_arg,omitempty" json:"code_arg,omitempty"`
}

// Step is one agent invocation over every selected instruction.
type Step struct {
	Agent      string         `yaml:"agent" toml:"agent" json:"agent"`
	Method     string         `yaml:"method,omitempty" toml:"method,omitempty" json:"method,omitempty"`
	Args       map[string]any `yaml:"args,omitempty" toml:"args,omitempty" json:"args,omitempty"`
	Input      *Input         `yaml:"input,omitempty" toml:"input,omitempty" json:"input,omitempty"`
	Output     string         `yaml:"output,omitempty" toml:"output,omitempty" json:"output,omitempty"`
	OutputType output.Type    `yaml:"output_type,omitempty" toml:"output_type,omitempty" json:"output_type,omitempty"`
	DataIDs    []int          `yaml:"data_ids,omitempty" toml:"data_ids,omitempty" json:"data_ids,omitempty"`
	// DataRange is an inclusive [start, end] pair.
	DataRange []int  `yaml:"data_range,omitempty" toml:"data_range,omitempty" json:"data_range,omitempty"`
	ModelTag  string `yaml:"model_tag,omitempty" toml:"model_tag,omitempty" json:"model_tag,omitempty"`
}

// MethodName returns the method, defaulting to run.
func (s Step) MethodName() string {
	if s.Method == "" {
		return DefaultMethod
	}
	return s.Method
}

// Key identifies the step's results: "<agent>_<method>".
func (s Step) Key() string {
	return s.Agent + "_" + s.MethodName()
}

// Type returns the output type, defaulting to code.
func (s Step) Type() output.Type {
	if s.OutputType == "" {
		return output.TypeCode
	}
	return s.OutputType
}

// LoadsData reports whether the step loads its own instructions.
func (s Step) LoadsData() bool {
	return s.Input != nil && s.Input.Data != ""
}

// CodeArg returns the argument name for Input.Code.
func (s Step) CodeArg() string {
	if s.Input == nil || s.Input.CodeArg == "" {
		return DefaultCodeArg
	}
	return s.Input.CodeArg
}

// Filter converts DataIDs and DataRange to an instruction filter. IDs win
// when both are set.
func (s Step) Filter() instruction.Filter {
	if len(s.DataIDs) > 0 {
		return instruction.IDFilter(s.DataIDs...)
	}
	if len(s.DataRange) == 2 {
		return instruction.RangeFilter(s.DataRange[0], s.DataRange[1])
	}
	return instruction.Filter{}
}

// Report is the outcome of one run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Results maps step keys to per-instruction results, in instruction
	// order. Skipped instances have no entry.
	Results  map[string][]StepResult `json:"results"`
	Failures []*Failure              `json:"failures,omitempty"`
}

// FailuresFor returns the failures recorded for one step.
func (r *Report) FailuresFor(stepKey string) []*Failure {
	var out []*Failure
	for _, f := range r.Failures {
		if f.Step == stepKey {
			out = append(out, f)
		}
	}
	return out
}
