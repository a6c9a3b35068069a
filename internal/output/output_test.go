package output

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/agentbench/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", TypeCode, false},
		{"code", TypeCode, false},
		{"Analysis", TypeAnalysis, false},
		{" analysis ", TypeAnalysis, false},
		{"image", "image", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseType(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownType)
				return
			}
			assert.NoError(t, err)
		})
	}
	assert.True(t, TypeCode.Executable())
	assert.False(t, TypeAnalysis.Executable())
}

func TestCodeHandler(t *testing.T) {
	ws := workspace.Workspace{InstructionID: 1, Dir: t.TempDir()}

	res, err := CodeHandler{}.Handle(Input{
		Log:       "generated",
		Artifact:  "print('x: 5')",
		Agent:     "data_analysis_agent",
		Method:    "run",
		Workspace: ws,
	})
	require.NoError(t, err)

	assert.Equal(t, "code_action_data_analysis_agent_run.py", res.Filename)
	assert.Equal(t, "generated", res.Log)
	assert.Equal(t, "print('x: 5')", res.Result)

	content, err := ws.ReadFile(res.Filename)
	require.NoError(t, err)
	assert.Equal(t, "print('x: 5')", content)
}

func TestCodeHandler_Deterministic(t *testing.T) {
	ws := workspace.Workspace{Dir: t.TempDir()}
	in := Input{Artifact: "a", Agent: "agent", Method: "run", Workspace: ws}

	first, err := CodeHandler{}.Handle(in)
	require.NoError(t, err)
	in.Artifact = "b"
	second, err := CodeHandler{}.Handle(in)
	require.NoError(t, err)

	assert.Equal(t, first.Filename, second.Filename)
	content, _ := ws.ReadFile(second.Filename)
	assert.Equal(t, "b", content, "a debug iteration overwrites the previous artifact")
}

func TestCodeHandler_RejectsNonString(t *testing.T) {
	_, err := CodeHandler{}.Handle(Input{Artifact: map[string]int{"x": 1}, Workspace: workspace.Workspace{Dir: t.TempDir()}})
	assert.Error(t, err)
}

func TestAnalysisHandler(t *testing.T) {
	ws := workspace.Workspace{InstructionID: 2, Dir: t.TempDir()}

	t.Run("structured artifact", func(t *testing.T) {
		res, err := AnalysisHandler{}.Handle(Input{
			Log:       "verified",
			Artifact:  map[string]any{"mean": []string{"off by one"}},
			Agent:     "error_suggest_agent",
			Method:    "run",
			Tag:       "gpt-4o",
			Workspace: ws,
		})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("gpt-4o", "analysis_error_suggest_agent_run.json"), res.Filename)
		assert.JSONEq(t, `{"mean":["off by one"]}`, res.Result)

		content, err := ws.ReadFile(res.Filename)
		require.NoError(t, err)
		assert.Equal(t, res.Result, content)
	})

	t.Run("text artifact without tag", func(t *testing.T) {
		res, err := AnalysisHandler{}.Handle(Input{Artifact: "looks fine", Agent: "a", Method: "m", Workspace: ws})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(DefaultTag, "analysis_a_m.txt"), res.Filename)
		assert.Equal(t, "looks fine", res.Result)
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []Type{TypeAnalysis, TypeCode}, r.Types())

	h, err := r.Lookup(TypeCode)
	require.NoError(t, err)
	assert.IsType(t, CodeHandler{}, h)

	_, err = r.Lookup("image")
	var notFound *HandlerNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, Type("image"), notFound.Type)

	r.Register("image", HandlerFunc(func(in Input) (Result, error) {
		return Result{Log: in.Log, Result: "png", Filename: "plot.png"}, nil
	}))
	h, err = r.Lookup("image")
	require.NoError(t, err)
	res, err := h.Handle(Input{Log: "l"})
	require.NoError(t, err)
	assert.Equal(t, "plot.png", res.Filename)
}
