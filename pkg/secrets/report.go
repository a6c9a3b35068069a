package secrets

import (
	"sort"
	"time"
)

// Report describes what a redaction removed. It never holds the secret
// values.
type Report struct {
	Timestamp  time.Time      `json:"timestamp"`
	Redactions []Redaction    `json:"redactions"`
	RuleCounts map[string]int `json:"rule_counts"`
	Duration   time.Duration  `json:"duration"`
}

// Redaction is one removed secret.
type Redaction struct {
	RuleID      string `json:"rule_id"`
	RuleDesc    string `json:"rule_desc"`
	Line        int    `json:"line"`
	OriginalLen int    `json:"original_len"`
}

// HasRedactions reports whether anything was removed.
func (r Report) HasRedactions() bool {
	return len(r.Redactions) > 0
}

// Rules returns the rule ids that fired, sorted.
func (r Report) Rules() []string {
	rules := make([]string, 0, len(r.RuleCounts))
	for id := range r.RuleCounts {
		rules = append(rules, id)
	}
	sort.Strings(rules)
	return rules
}

func newReport(findings []Finding, elapsed time.Duration) Report {
	report := Report{
		Timestamp:  time.Now(),
		Redactions: make([]Redaction, 0, len(findings)),
		RuleCounts: make(map[string]int),
		Duration:   elapsed,
	}
	for _, f := range findings {
		report.Redactions = append(report.Redactions, Redaction{
			RuleID:      f.RuleID,
			RuleDesc:    f.RuleDesc,
			Line:        f.Line,
			OriginalLen: len(f.Match),
		})
		report.RuleCounts[f.RuleID]++
	}
	return report
}
