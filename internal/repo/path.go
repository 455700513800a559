package repo

import (
	"path"
	"strings"

	"repotutor/internal/apperr"
)

// NormalizePath converts a caller-supplied path to a clean repo-relative form
// using forward slashes. The repository root is "". Paths that climb above
// the root are rejected with KindPathEscape.
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", nil
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", apperr.New(apperr.KindPathEscape, "path %q escapes the repository root", p)
	}
	if clean == "." {
		return "", nil
	}
	return clean, nil
}

// Depth counts directory levels above a file ("a/b/c.go" has depth 2).
func Depth(p string) int {
	if p == "" {
		return 0
	}
	return strings.Count(p, "/")
}
