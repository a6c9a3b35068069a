package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/agentbench/internal/datastore"
	"github.com/fyrsmithlabs/agentbench/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: titanic
description: analyse then verify
steps:
  - agent: data_analysis_agent
    input:
      data: bench/instructions.jsonl
    data_range: [1, 5]
    output: analysis_result
  - agent: correctness_ensuring_agent
    output_type: Analysis
    model_tag: gpt-4o
    args:
      data_analysis_output:
        from: analysis_result
      threshold: 0.5
`

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "titanic", def.Name)
	require.Len(t, def.Steps, 2)

	first := def.Steps[0]
	assert.Equal(t, DefaultMethod, first.Method)
	assert.Equal(t, output.TypeCode, first.OutputType)
	assert.Equal(t, []int{1, 5}, first.DataRange)
	assert.True(t, first.LoadsData())
	assert.Equal(t, "1:5", first.Filter().String())

	second := def.Steps[1]
	assert.Equal(t, output.TypeAnalysis, second.OutputType)
	assert.Equal(t, "gpt-4o", second.ModelTag)
	assert.Equal(t, map[string]string{"data_analysis_output": "analysis_result"}, datastore.References(second.Args))
	assert.Equal(t, 0.5, second.Args["threshold"])
}

func TestParseDefinitionYAML_JSON(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(`{"name":"j","steps":[{"agent":"a","input":{"data":"x.jsonl"},"data_ids":[3,1]}]}`))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, def.Steps[0].DataIDs)
}

func TestParseDefinitionYAML_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{"empty", "  \n", "payload is empty"},
		{"unknown field", "name: x\nsteps:\n  - agent: a\n    retries: 3\n", "retries"},
		{"no steps", "name: x\n", "has no steps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinitionYAML([]byte(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDefinitionYAML_UnknownOutputTypeKept(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte("steps:\n  - agent: a\n    output_type: Image\n"))
	require.NoError(t, err)
	assert.Equal(t, output.Type("image"), def.Steps[0].OutputType)
}

const sampleTOML = `
name = "titanic"

[[steps]]
agent = "data_analysis_agent"
output = "analysis_result"
data_ids = [2, 4]

[steps.input]
data = "bench/instructions.jsonl"

[[steps]]
agent = "error_suggest_agent"
output_type = "analysis"

[steps.input]
code = "code_action_data_analysis_agent_run.py"

[steps.args]
max_concepts = 3
`

func TestParseDefinitionTOML(t *testing.T) {
	def, err := ParseDefinitionTOML([]byte(sampleTOML))
	require.NoError(t, err)
	require.Len(t, def.Steps, 2)

	assert.Equal(t, []int{2, 4}, def.Steps[0].DataIDs)
	assert.Equal(t, "bench/instructions.jsonl", def.Steps[0].Input.Data)
	assert.Equal(t, "code_action_data_analysis_agent_run.py", def.Steps[1].Input.Code)
	assert.Equal(t, output.TypeAnalysis, def.Steps[1].OutputType)
	assert.EqualValues(t, 3, def.Steps[1].Args["max_concepts"])
}

func TestParseDefinitionTOML_UnknownKey(t *testing.T) {
	_, err := ParseDefinitionTOML([]byte("[[steps]]\nagent = \"a\"\nretries = 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
	assert.Contains(t, err.Error(), "retries")
}

func TestLoadDefinitionFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "wf.yaml")
	tomlPath := filepath.Join(dir, "wf.toml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0o644))
	require.NoError(t, os.WriteFile(tomlPath, []byte(sampleTOML), 0o644))

	fromYAML, err := LoadDefinitionFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "correctness_ensuring_agent", fromYAML.Steps[1].Agent)

	fromTOML, err := LoadDefinitionFile(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "error_suggest_agent", fromTOML.Steps[1].Agent)

	_, err = LoadDefinitionFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
