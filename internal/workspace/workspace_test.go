package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/agentbench/internal/instruction"
	"github.com/fyrsmithlabs/agentbench/internal/logging"
	"github.com/fyrsmithlabs/agentbench/internal/sanitize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func setup(t *testing.T) (root, data string) {
	t.Helper()
	root = filepath.Join(t.TempDir(), "workspace")
	data = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(data, "a.csv"), []byte("x\n5\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(data, "b.csv"), []byte("y\n7\n"), 0o644))
	return root, data
}

func listDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestProvision_OrderAlignedWithInstructions(t *testing.T) {
	root, data := setup(t)
	instructions := []instruction.Instruction{
		{ID: 9, FileName: "b.csv"},
		{ID: 1, FileName: "a.csv"},
		{ID: 4},
	}

	ws, warnings, err := NewProvisioner(root, nil).Provision(context.Background(), instructions, data)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, ws, 3)

	for i, in := range instructions {
		assert.Equal(t, in.ID, ws[i].InstructionID)
		assert.Equal(t, filepath.Join(root, DirName(in.ID)), ws[i].Dir)
		assert.DirExists(t, ws[i].Dir)
	}

	content, err := ws[0].ReadFile("b.csv")
	require.NoError(t, err)
	assert.Equal(t, "y\n7\n", content)
	assert.True(t, ws[1].Exists("a.csv"))
	assert.False(t, ws[2].Exists("a.csv"))
}

func TestProvision_Idempotent(t *testing.T) {
	root, data := setup(t)
	instructions := []instruction.Instruction{{ID: 1, FileName: "a.csv"}, {ID: 2, FileName: "b.csv"}}
	p := NewProvisioner(root, nil)

	first, _, err := p.Provision(context.Background(), instructions, data)
	require.NoError(t, err)

	// A marker written after the first pass must survive the second pass.
	require.NoError(t, first[0].WriteFile("code_action_agent_run.py", "print(1)"))
	before, err := os.Stat(first[0].Path("a.csv"))
	require.NoError(t, err)

	logger := logging.NewTestLogger()
	second, _, err := NewProvisioner(root, logger.Logger).Provision(context.Background(), instructions, data)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"example_1", "example_2"}, listDirs(t, root))
	assert.True(t, second[0].Exists("code_action_agent_run.py"))

	after, err := os.Stat(second[0].Path("a.csv"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime(), "data file must not be copied again")
	logger.AssertNotLogged(t, zapcore.DebugLevel, "workspace created")
	logger.AssertNotLogged(t, zapcore.DebugLevel, "data file copied")
}

func TestProvision_RefreshesChangedDataFile(t *testing.T) {
	root, data := setup(t)
	instructions := []instruction.Instruction{{ID: 1, FileName: "a.csv"}}
	p := NewProvisioner(root, nil)

	_, _, err := p.Provision(context.Background(), instructions, data)
	require.NoError(t, err)

	// Same size, different bytes.
	require.NoError(t, os.WriteFile(filepath.Join(data, "a.csv"), []byte("x\n6\n"), 0o644))

	ws, _, err := p.Provision(context.Background(), instructions, data)
	require.NoError(t, err)
	content, err := ws[0].ReadFile("a.csv")
	require.NoError(t, err)
	assert.Equal(t, "x\n6\n", content)
}

func TestProvision_MissingDataFileIsWarning(t *testing.T) {
	root, data := setup(t)
	logger := logging.NewTestLogger()

	ws, warnings, err := NewProvisioner(root, logger.Logger).Provision(context.Background(),
		[]instruction.Instruction{{ID: 3, FileName: "gone.csv"}, {ID: 4, FileName: "a.csv"}}, data)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.DirExists(t, ws[0].Dir)

	require.Len(t, warnings, 1)
	assert.Equal(t, 3, warnings[0].InstructionID)
	assert.Equal(t, "gone.csv", warnings[0].FileName)
	assert.Contains(t, warnings[0].Error(), "not found in data folder")
	logger.AssertLogged(t, zapcore.WarnLevel, "data file missing")
}

func TestProvision_Cancelled(t *testing.T) {
	root, data := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewProvisioner(root, nil).Provision(ctx, []instruction.Instruction{{ID: 1}}, data)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, filepath.Join(root, "example_1"))
}

func TestWorkspace_WriteFileNested(t *testing.T) {
	ws := Workspace{InstructionID: 1, Dir: t.TempDir()}

	require.NoError(t, ws.WriteFile(filepath.Join("gpt-4o", "analysis.txt"), "ok"))
	got, err := ws.ReadFile(filepath.Join("gpt-4o", "analysis.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestWorkspace_RejectsEscapingNames(t *testing.T) {
	ws := Workspace{InstructionID: 1, Dir: t.TempDir()}

	assert.ErrorIs(t, ws.WriteFile("../escape.py", "x"), sanitize.ErrPathTraversal)
	assert.ErrorIs(t, ws.WriteFile("/tmp/abs.py", "x"), sanitize.ErrAbsolutePath)

	_, err := ws.ReadFile("../../etc/passwd")
	assert.ErrorIs(t, err, sanitize.ErrPathTraversal)
}
