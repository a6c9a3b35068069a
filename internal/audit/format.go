package audit

import (
	"fmt"
	"strings"
	"time"
)

const ruleWidth = 62

// Format renders one transcript block.
func Format(e Entry, at time.Time) string {
	var b strings.Builder
	b.WriteString(banner(at.UTC().Format(time.RFC3339), "="))
	fmt.Fprintf(&b, "Action: %s\n", e.Action)
	fmt.Fprintf(&b, "Agent: %s\n", e.Agent)
	if e.Method != "" {
		fmt.Fprintf(&b, "Method: %s\n", e.Method)
	}
	fmt.Fprintf(&b, "Tag: %s\n", e.Tag)
	if e.Iteration > 0 {
		fmt.Fprintf(&b, "Iteration: %d\n", e.Iteration)
	}
	fmt.Fprintf(&b, "Workspace: %s\n", e.Workspace.Dir)
	section(&b, "Log", e.Log)
	if e.Artifact != "" {
		section(&b, "Artifact", e.Artifact)
	}
	b.WriteString("\n")
	return b.String()
}

func section(b *strings.Builder, title, body string) {
	b.WriteString(banner(title, "-"))
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
}

// banner centres title in a rule of fill characters.
func banner(title, fill string) string {
	title = " " + title + " "
	pad := ruleWidth - len(title)
	if pad < 2 {
		pad = 2
	}
	left := pad / 2
	return strings.Repeat(fill, left) + title + strings.Repeat(fill, pad-left) + "\n"
}
