package secrets

import (
	"fmt"
	"regexp"

	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Finding is one detected secret.
type Finding struct {
	RuleID   string
	RuleDesc string
	Line     int
	Match    string
}

// Detect scans content with the default gitleaks rules. allowlist may be
// nil.
func Detect(content string, allowlist *Allowlist) ([]Finding, error) {
	// A fresh detector per scan; gitleaks accumulates findings on the
	// detector across calls.
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}
	if !allowlist.IsEmpty() {
		if err := applyAllowlist(&detector.Config, allowlist); err != nil {
			return nil, err
		}
	}

	found := detector.DetectString(content)
	findings := make([]Finding, 0, len(found))
	for _, f := range found {
		if f.Secret == "" {
			continue
		}
		findings = append(findings, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine,
			Match:    f.Secret,
		})
	}
	return findings, nil
}

func applyAllowlist(cfg *gitleaksconfig.Config, allowlist *Allowlist) error {
	global := &gitleaksconfig.Allowlist{
		Description: "agentbench audit allowlist",
		StopWords:   append([]string(nil), allowlist.StopWords...),
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: '%s': %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksregexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}
