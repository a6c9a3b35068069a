package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/agentbench/internal/agent"
	"github.com/fyrsmithlabs/agentbench/internal/agent/agenttest"
	"github.com/fyrsmithlabs/agentbench/internal/instruction"
	"github.com/fyrsmithlabs/agentbench/internal/llm"
	"github.com/fyrsmithlabs/agentbench/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRequest(t *testing.T) *agent.Request {
	t.Helper()
	ws := workspace.Workspace{InstructionID: 7, Dir: t.TempDir()}
	require.NoError(t, ws.WriteFile("titanic.csv", "fare\n7.25\n"))
	return &agent.Request{
		Instruction: instruction.Instruction{
			ID:       7,
			Question: "What is the mean fare?",
			FileName: "titanic.csv",
			Answers:  []instruction.Answer{{Key: "mean_fare", Value: "7.25"}},
		},
		Workspace: ws,
	}
}

func capability(t *testing.T, c llm.Completer) agent.Capability {
	t.Helper()
	caps := New(c).Capabilities()
	require.Contains(t, caps, "run")
	return caps["run"]
}

func TestRun(t *testing.T) {
	completer := new(agenttest.MockCompleter)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		return len(msgs) == 2 &&
			strings.Contains(msgs[0].Content, "- titanic.csv") &&
			strings.Contains(msgs[1].Content, "Question: What is the mean fare?")
	})).Return("sure\n```python\nprint('@mean_fare[7.25]')\n```", nil)

	resp, err := capability(t, completer).Run(context.Background(), newRequest(t))
	require.NoError(t, err)

	assert.Equal(t, "print('@mean_fare[7.25]')", resp.Artifact)
	assert.Contains(t, resp.Log, "Question ID: 7")
	assert.Contains(t, resp.Log, "Ground Truth: mean_fare=7.25")
	completer.AssertExpectations(t)
}

func TestRun_NoCode(t *testing.T) {
	completer := new(agenttest.MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return("I cannot help with that.", nil)

	_, err := capability(t, completer).Run(context.Background(), newRequest(t))
	assert.ErrorIs(t, err, agent.ErrNoCode)
}

func TestRun_CompleterError(t *testing.T) {
	boom := errors.New("quota")
	completer := new(agenttest.MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return("", boom)

	_, err := capability(t, completer).Run(context.Background(), newRequest(t))
	assert.ErrorIs(t, err, boom)
}

func TestDebug(t *testing.T) {
	completer := new(agenttest.MockCompleter)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(msgs []llm.Message) bool {
		return strings.Contains(msgs[1].Content, "KeyError: 'fare'") &&
			strings.Contains(msgs[1].Content, "df['Fare']")
	})).Return("```python\nprint('@mean_fare[7.25]')\n```", nil)

	dbg, ok := capability(t, completer).(agent.Debugger)
	require.True(t, ok)

	resp, err := dbg.Debug(context.Background(), &agent.DebugRequest{
		Request:       *newRequest(t),
		ErrorMessage:  "Traceback (most recent call last):\nKeyError: 'fare'",
		BuggyArtifact: "df['Fare']",
		Iteration:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, "print('@mean_fare[7.25]')", resp.Artifact)
	assert.Contains(t, resp.Log, "=== Debug Run 1 ===")
}

func TestDebug_EmptyReply(t *testing.T) {
	completer := new(agenttest.MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return("no code", nil)

	dbg := capability(t, completer).(agent.Debugger)
	resp, err := dbg.Debug(context.Background(), &agent.DebugRequest{Request: *newRequest(t)})
	require.NoError(t, err)
	assert.Equal(t, "", resp.Artifact)
}

func TestListFiles(t *testing.T) {
	assert.Equal(t, "(empty)", listFiles(workspace.Workspace{Dir: t.TempDir()}))

	ws := workspace.Workspace{Dir: t.TempDir()}
	require.NoError(t, ws.WriteFile("b.csv", ""))
	require.NoError(t, ws.WriteFile("sub/a.txt", ""))
	assert.Equal(t, "- b.csv\n- sub/", listFiles(ws))
}
