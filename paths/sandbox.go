package paths

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveWithin resolves raw against base and verifies the result stays inside
// base. It is the gate for agent-requested file access: relative paths are
// joined to base, absolute paths are accepted only when they already live under
// base, and any traversal that would escape (../.. and friends) is rejected.
func ResolveWithin(base, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("empty path")
	}

	absBase, err := filepath.Abs(filepath.Clean(base))
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}

	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(absBase, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(absBase, path)
	if err != nil {
		return "", fmt.Errorf("path %q is outside the working directory", raw)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the working directory", raw)
	}

	return path, nil
}
