package agent

import (
	"fmt"
	"strings"
)

// Transcript accumulates a capability's log lines.
type Transcript struct {
	lines []string
}

// Add appends a line.
func (t *Transcript) Add(line string) {
	t.lines = append(t.lines, line)
}

// Addf appends a formatted line.
func (t *Transcript) Addf(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

// String joins the lines with newlines.
func (t *Transcript) String() string {
	return strings.Join(t.lines, "\n")
}
