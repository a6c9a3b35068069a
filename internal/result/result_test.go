package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFind(t *testing.T) {
	results := []StepResult{
		{InstructionID: 1, Log: "x: 5"},
		{InstructionID: 4, Log: "y: 2"},
	}

	got, ok := Find(results, 4)
	assert.True(t, ok)
	assert.Equal(t, "y: 2", got.Log)

	_, ok = Find(results, 9)
	assert.False(t, ok)
}

func TestSummary(t *testing.T) {
	counts := Summary([]StepResult{
		{Status: StatusSucceeded},
		{Status: StatusSucceeded},
		{Status: StatusDebugExhausted},
	})
	assert.Equal(t, map[Status]int{StatusSucceeded: 2, StatusDebugExhausted: 1}, counts)
}
