package verify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/agentbench/internal/instruction"
)

// Match is the verdict for one expected answer.
type Match struct {
	Key       string `json:"key"`
	Expected  string `json:"expected"`
	Generated string `json:"generated,omitempty"`
	Found     bool   `json:"found"`
	Correct   bool   `json:"correct"`
}

// MatchAnswers finds each expected answer in an execution log. For every
// key the log is scanned from the last line backwards and the first line
// mentioning the key decides. Values are compared as numbers when both
// sides parse, otherwise as case-insensitive strings.
func MatchAnswers(executionLog string, expected []instruction.Answer) []Match {
	lines := strings.Split(executionLog, "\n")
	matches := make([]Match, 0, len(expected))

	for _, ans := range expected {
		m := Match{Key: ans.Key, Expected: ans.Value}
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(ans.Key) + `.*?[:\[]?\s*([^\s\]\)]+)`)
		if err == nil {
			for i := len(lines) - 1; i >= 0; i-- {
				sub := re.FindStringSubmatch(lines[i])
				if sub == nil {
					continue
				}
				m.Found = true
				m.Generated = strings.TrimSpace(sub[1])
				m.Correct = sameValue(m.Generated, ans.Value)
				break
			}
		}
		matches = append(matches, m)
	}
	return matches
}

func sameValue(generated, expected string) bool {
	g, gerr := strconv.ParseFloat(strings.TrimSuffix(generated, ","), 64)
	e, eerr := strconv.ParseFloat(strings.Trim(expected, `"`), 64)
	if gerr == nil && eerr == nil {
		return g == e
	}
	return strings.EqualFold(strings.Trim(generated, `"',`), strings.Trim(expected, `"`))
}

// AllCorrect reports whether every answer matched.
func AllCorrect(matches []Match) bool {
	for _, m := range matches {
		if !m.Correct {
			return false
		}
	}
	return true
}

// Feedback renders matches as "Correct: k; Missing: k; Incorrect: k. Generated: v".
func Feedback(matches []Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		switch {
		case m.Correct:
			parts = append(parts, "Correct: "+m.Key)
		case !m.Found:
			parts = append(parts, "Missing: "+m.Key)
		default:
			parts = append(parts, fmt.Sprintf("Incorrect: %s. Generated: %s", m.Key, m.Generated))
		}
	}
	return strings.Join(parts, "; ")
}
