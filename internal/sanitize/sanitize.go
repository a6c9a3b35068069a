// Package sanitize keeps names derived from model output safe to use as
// file names inside a workspace.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxComponentLength is the maximum length of a sanitized name component.
	MaxComponentLength = 64

	// HashSuffixLength is the length of the hash suffix added to truncated
	// components. Format: _<8-char-hash> = 9 characters total
	HashSuffixLength = 9

	// DefaultComponent is used when sanitization produces an empty result.
	DefaultComponent = "default"
)

// FileComponent sanitizes a string for use as part of a file name.
//
// Rules applied:
//   - Keeps ASCII letters, digits, '_' and '-', preserving case
//   - Replaces every other run of characters with one underscore
//   - Trims leading/trailing underscores
//   - Truncates to MaxComponentLength with hash suffix if too long
//   - Returns DefaultComponent if result would be empty
//
// Examples:
//
//	"Summary Statistics" -> "Summary_Statistics"
//	"a b/c"              -> "a_b_c"
//	"" or "!!!"          -> "default"
func FileComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}

	sanitized := strings.Trim(b.String(), "_")
	if sanitized == "" {
		return DefaultComponent
	}
	if len(sanitized) > MaxComponentLength {
		sanitized = truncateWithHash(sanitized)
	}
	return sanitized
}

// truncateWithHash truncates a string to fit within MaxComponentLength,
// appending a hash suffix to preserve uniqueness.
//
// Format: <truncated>_<8-char-hash>
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	hashSuffix := "_" + hex.EncodeToString(hash[:])[:8]

	truncated := s[:MaxComponentLength-HashSuffixLength]
	truncated = strings.TrimRight(truncated, "_")

	return truncated + hashSuffix
}
