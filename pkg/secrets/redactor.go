package secrets

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Result is redacted content plus what was removed.
type Result struct {
	Content string
	Report  Report
}

// Redactor replaces detected secrets with [REDACTED:<rule-id>] markers.
type Redactor struct {
	allowlist *Allowlist
}

// NewRedactor loads the allowlist at allowlistPath (optional) and returns
// a redactor using it.
func NewRedactor(allowlistPath string) (*Redactor, error) {
	allowlist, err := LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, fmt.Errorf("loading allowlist: %w", err)
	}
	return &Redactor{allowlist: allowlist}, nil
}

// Redact scrubs content. Content without findings is returned unchanged.
func (r *Redactor) Redact(content string) (Result, error) {
	start := time.Now()

	findings, err := Detect(content, r.allowlist)
	if err != nil {
		return Result{}, fmt.Errorf("detecting secrets: %w", err)
	}

	report := newReport(findings, time.Since(start))
	if len(findings) == 0 {
		return Result{Content: content, Report: report}, nil
	}
	return Result{Content: replaceFindings(content, findings), Report: report}, nil
}

// replaceFindings substitutes every occurrence of each secret. Longer
// secrets go first so a secret that contains another is replaced whole.
func replaceFindings(content string, findings []Finding) string {
	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Match) > len(sorted[j].Match)
	})

	for _, f := range sorted {
		content = strings.ReplaceAll(content, f.Match, Marker(f.RuleID))
	}
	return content
}

// Marker is the text a secret found by rule is replaced with.
func Marker(rule string) string {
	return "[REDACTED:" + rule + "]"
}
