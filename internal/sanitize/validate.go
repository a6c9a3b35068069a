package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validation errors for workspace-relative paths.
var (
	// ErrPathTraversal indicates a path escapes its root.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrAbsolutePath indicates an absolute path was provided where relative was expected.
	ErrAbsolutePath = errors.New("absolute path not allowed")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")
)

// JoinWithin joins a relative name onto root and returns the cleaned
// result. Absolute names and names that resolve outside root are rejected.
func JoinWithin(root, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyPath
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrAbsolutePath, name)
	}

	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, name)
	}

	joined := filepath.Join(root, clean)
	rel, err := filepath.Rel(filepath.Clean(root), joined)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s escapes %s", ErrPathTraversal, name, root)
	}
	return joined, nil
}
