// Package globmatch matches workspace-relative paths against shell-style
// glob pattern lists, with "**" matching zero or more path segments.
package globmatch

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matches reports whether path matches any pattern in patterns. path is
// normalized to forward slashes before matching, as §4.1 requires.
func Matches(path string, patterns []string) bool {
	normalized := normalize(path)

	for _, pattern := range patterns {
		if matchesOne(normalized, pattern) {
			return true
		}
	}
	return false
}

// Excluded reports whether path matches any pattern in excludePatterns.
// It's a thin, named alias of Matches: any path "excluded" per §4.1 is one
// that matches an exclude-pattern list, and callers read better writing
// globmatch.Excluded(p, cfg.FileExcludePatterns) than Matches at the call
// site.
func Excluded(path string, excludePatterns []string) bool {
	return Matches(path, excludePatterns)
}

func matchesOne(path, pattern string) bool {
	pattern = normalize(pattern)

	if ok, err := doublestar.Match(pattern, path); err == nil && ok {
		return true
	}

	// A bare pattern (no "/") also matches against each individual path
	// segment, mirroring gitignore-style basename globs: "target" matches
	// anything under a nested target/ directory, and "*.proto" matches a
	// nested file by its name. "." and ".." segments are never matched.
	if !strings.Contains(pattern, "/") {
		for _, segment := range strings.Split(path, "/") {
			if segment == "." || segment == ".." {
				continue
			}
			if ok, err := doublestar.Match(pattern, segment); err == nil && ok {
				return true
			}
		}
	}

	return false
}

func normalize(path string) string {
	return filepath.ToSlash(path)
}
