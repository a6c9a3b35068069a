// Package result holds the per-instruction record a workflow step
// produces. It is shared by the engine, which builds the records, and the
// agents, which read earlier steps' records through argument references.
package result

// Status is how an instruction ended within a step.
type Status string

const (
	StatusSucceeded        Status = "succeeded"
	StatusDebugUnavailable Status = "debug_unavailable"
	StatusDebugMalformed   Status = "debug_malformed"
	StatusDebugExhausted   Status = "debug_exhausted"
	StatusCancelled        Status = "cancelled"
)

// StepResult is one instruction's outcome for one step.
type StepResult struct {
	InstructionID   int    `json:"instruction_id"`
	Workspace       string `json:"workspace"`
	Log             string `json:"log"`
	// Output is the last execution output of a code step. Empty for
	// analysis steps.
	Output          string `json:"output,omitempty"`
	Result          string `json:"result"`
	Filename        string `json:"filename"`
	Succeeded       bool   `json:"succeeded"`
	DebugIterations int    `json:"debug_iterations"`
	Status          Status `json:"status"`
	// Transcript holds every audit block written for the instruction in
	// this step, in order. Empty when no audit logger is configured.
	Transcript string `json:"transcript,omitempty"`
}

// Find returns the record for an instruction.
func Find(results []StepResult, instructionID int) (StepResult, bool) {
	for _, r := range results {
		if r.InstructionID == instructionID {
			return r, true
		}
	}
	return StepResult{}, false
}

// Summary counts records by status.
func Summary(results []StepResult) map[Status]int {
	counts := make(map[Status]int)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}
