package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Retry outcomes. A Failure wraps one of these when an instance ends
// without a passing result.
var (
	// ErrExecutionFailure marks output the classifier rejected.
	ErrExecutionFailure = errors.New("execution failed")
	// ErrDebugUnavailable means the capability cannot repair its output.
	ErrDebugUnavailable = errors.New("debug capability unavailable")
	// ErrDebugMalformed means a debug attempt returned nothing usable.
	ErrDebugMalformed = errors.New("debug returned a malformed artifact")
	// ErrDebugExhausted means the debug bound was reached without success.
	ErrDebugExhausted = errors.New("debug iterations exhausted")
)

// Severity grades a failure.
type Severity string

const (
	// SeverityCritical failures end the run.
	SeverityCritical Severity = "critical"
	// SeverityHigh failures end one instance; the run continues.
	SeverityHigh Severity = "high"
	// SeverityLow failures are logged only.
	SeverityLow Severity = "low"
)

// Stage names where in the per-instruction pipeline a failure happened.
type Stage string

const (
	StageLoad      Stage = "load"
	StageProvision Stage = "provision"
	StageResolve   Stage = "resolve"
	StageInput     Stage = "input"
	StageAgent     Stage = "agent"
	StageOutput    Stage = "output"
	StageDebug     Stage = "debug"
	StageCancel    Stage = "cancel"
)

// Failure records one thing that went wrong during a run.
type Failure struct {
	Step string
	// PerInstruction is false for step-level failures, in which case
	// InstructionID is meaningless. Zero is a valid instruction id.
	PerInstruction bool
	InstructionID  int
	Stage          Stage
	Severity       Severity
	Err            error
}

func (f *Failure) Error() string {
	if f.PerInstruction {
		return fmt.Sprintf("%s: instruction %d: %s failed: %v", f.Step, f.InstructionID, f.Stage, f.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", f.Step, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	var id *int
	if f.PerInstruction {
		id = &f.InstructionID
	}
	return json.Marshal(struct {
		Step          string   `json:"step"`
		InstructionID *int     `json:"instruction_id,omitempty"`
		Stage         Stage    `json:"stage"`
		Severity      Severity `json:"severity"`
		Error         string   `json:"error"`
	}{f.Step, id, f.Stage, f.Severity, msg})
}

// ValidationError collects everything wrong with a workflow definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "workflow: " + e.Problems[0]
	}
	msg := fmt.Sprintf("workflow: %d problems:", len(e.Problems))
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
