package instruction

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// maxLineSize bounds a single record. Records embedding reference code can
// be long, so this is well above bufio's default.
const maxLineSize = 16 * 1024 * 1024

// SourceNotFoundError is returned when the instruction file does not exist.
type SourceNotFoundError struct {
	Path string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("instruction source not found: %s", e.Path)
}

func (e *SourceNotFoundError) Unwrap() error {
	return fs.ErrNotExist
}

// ParseError reports the first malformed record. Loading stops at the first
// bad line because a skipped record would shift the alignment between
// instructions and workspaces.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: malformed instruction: %v", e.Source, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads the JSONL file at path and returns the records kept by filter,
// in file order.
func Load(path string, filter Filter) ([]Instruction, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &SourceNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("failed to open instruction source: %w", err)
	}
	defer f.Close()

	return Decode(f, path, filter)
}

// Decode reads newline-delimited records from r. source names r in errors.
// Blank lines are ignored.
func Decode(r io.Reader, source string, filter Filter) ([]Instruction, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []Instruction
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var in Instruction
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, &ParseError{Source: source, Line: line, Err: err}
		}
		if filter.Match(in.ID) {
			out = append(out, in)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Source: source, Line: line + 1, Err: err}
	}
	return out, nil
}
