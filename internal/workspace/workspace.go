// Package workspace provisions one isolated directory per instruction.
package workspace

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fyrsmithlabs/agentbench/internal/instruction"
	"github.com/fyrsmithlabs/agentbench/internal/logging"
	"github.com/fyrsmithlabs/agentbench/internal/sanitize"
	"go.uber.org/zap"
)

// DirPrefix is prepended to the instruction id to name its directory.
const DirPrefix = "example_"

// Workspace is the working directory of one instruction.
type Workspace struct {
	InstructionID int
	Dir           string
}

// DirName returns the directory name used for an instruction id.
func DirName(id int) string {
	return DirPrefix + strconv.Itoa(id)
}

// Path joins name onto the workspace directory.
func (w Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Exists reports whether name is present in the workspace.
func (w Workspace) Exists(name string) bool {
	_, err := os.Stat(w.Path(name))
	return err == nil
}

// ReadFile reads a file from the workspace. name must stay inside it.
func (w Workspace) ReadFile(name string) (string, error) {
	path, err := sanitize.JoinWithin(w.Dir, name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes content to name, creating parent directories inside the
// workspace as needed.
func (w Workspace) WriteFile(name, content string) error {
	path, err := sanitize.JoinWithin(w.Dir, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// MissingFileWarning reports an instruction whose data file was not found in
// the data folder. It is recoverable: the workspace is still created.
type MissingFileWarning struct {
	InstructionID int
	FileName      string
	Source        string
}

func (w *MissingFileWarning) Error() string {
	return fmt.Sprintf("instruction %d: data file %s not found in data folder (%s)", w.InstructionID, w.FileName, w.Source)
}

// Provisioner creates workspaces under a root directory.
type Provisioner struct {
	root   string
	logger *logging.Logger
}

// NewProvisioner returns a provisioner rooted at root.
func NewProvisioner(root string, logger *logging.Logger) *Provisioner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Provisioner{root: root, logger: logger}
}

// Root returns the directory holding all workspaces.
func (p *Provisioner) Root() string {
	return p.root
}

// Provision returns one workspace per instruction, in the same order as
// instructions. Directories that already exist are reused and data files
// already present with identical content are not copied again, so
// provisioning the same set twice has no further side effects.
func (p *Provisioner) Provision(ctx context.Context, instructions []instruction.Instruction, dataFolder string) ([]Workspace, []*MissingFileWarning, error) {
	workspaces := make([]Workspace, 0, len(instructions))
	var warnings []*MissingFileWarning

	for _, in := range instructions {
		if err := ctx.Err(); err != nil {
			return nil, warnings, err
		}

		ws := Workspace{InstructionID: in.ID, Dir: filepath.Join(p.root, DirName(in.ID))}
		created, err := ensureDir(ws.Dir)
		if err != nil {
			return nil, warnings, fmt.Errorf("failed to create workspace for instruction %d: %w", in.ID, err)
		}
		if created {
			p.logger.Debug(ctx, "workspace created", zap.String("dir", ws.Dir))
		}

		if in.FileName != "" {
			src := filepath.Join(dataFolder, in.FileName)
			copied, err := copyIfChanged(src, ws.Path(in.FileName))
			switch {
			case errors.Is(err, fs.ErrNotExist):
				w := &MissingFileWarning{InstructionID: in.ID, FileName: in.FileName, Source: src}
				warnings = append(warnings, w)
				p.logger.Warn(ctx, "data file missing", zap.Int("instruction.id", in.ID), zap.String("file", in.FileName), zap.String("source", src))
			case err != nil:
				return nil, warnings, fmt.Errorf("failed to copy data file for instruction %d: %w", in.ID, err)
			case copied:
				p.logger.Debug(ctx, "data file copied", zap.String("file", in.FileName), zap.String("dir", ws.Dir))
			}
		}

		workspaces = append(workspaces, ws)
	}
	return workspaces, warnings, nil
}

func ensureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", dir)
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, os.MkdirAll(dir, 0o755)
}

// copyIfChanged copies src to dst unless dst already holds the same bytes.
// A missing src is reported as fs.ErrNotExist.
func copyIfChanged(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if srcInfo.IsDir() {
		return false, fmt.Errorf("%s is a directory", src)
	}
	if dstInfo, err := os.Stat(dst); err == nil && dstInfo.Size() == srcInfo.Size() {
		same, err := sameContent(src, dst)
		if err != nil {
			return false, err
		}
		if same {
			return false, nil
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return false, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return false, err
	}
	return true, out.Close()
}

func sameContent(a, b string) (bool, error) {
	ha, err := fileDigest(a)
	if err != nil {
		return false, err
	}
	hb, err := fileDigest(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ha, hb), nil
}

func fileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
