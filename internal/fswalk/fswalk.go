// Package fswalk enumerates files under a directory, respecting
// .gitignore (or, inside a git checkout, git's own notion of tracked plus
// untracked-but-not-ignored files) and skipping version-control and build
// directories outright.
//
// A caller may pass any directory, not just a repository's top level — a
// per-crate unit directory nested several levels below the actual .git or
// .gitignore is the common case here. Both the git-ls-files fast path and
// the .gitignore fallback therefore ascend from the requested directory to
// find the nearest enclosing marker, so a nested call site still honors
// the workspace's real tracked-file/ignore semantics instead of silently
// finding nothing and falling through to an unfiltered walk.
package fswalk

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

var skipDirs = map[string]struct{}{
	".git":   {},
	".hg":    {},
	".svn":   {},
	"target": {},
}

// Files returns every non-directory, non-symlink, root-relative path under
// root, sorted ascending. Directories named in skipDirs, and any directory
// or file whose name starts with ".", are pruned outright. The nearest
// git checkout at or above root is authoritative if one exists (its
// tracked-plus-untracked-not-ignored file list, scoped back down to
// root); otherwise the nearest .gitignore at or above root is consulted.
func Files(root string) ([]string, error) {
	gitFiles := gitLsFiles(root)

	var ignoreRoot string
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		ignoreRoot, gi = loadGitignore(root)
	}

	var results []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the walk
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil {
			ignoreRel, err := filepath.Rel(ignoreRoot, path)
			if err == nil && gi.MatchesPath(filepath.ToSlash(ignoreRel)) {
				return nil
			}
		}

		results = append(results, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(results)
	return results, nil
}

// ascendTo walks upward from dir looking for an entry named name, stopping
// at the filesystem root. It returns the directory containing that entry,
// or ok=false if none was found.
func ascendTo(dir, name string) (string, bool) {
	for {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// gitLsFiles runs `git ls-files` from the nearest .git at or above root
// and scopes its output back down to paths relative to root (dropping
// anything outside root entirely). It returns nil if no .git is found
// anywhere above root, or if the command fails.
func gitLsFiles(root string) map[string]struct{} {
	gitRoot, ok := ascendTo(root, ".git")
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = gitRoot
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	relRoot, err := filepath.Rel(gitRoot, root)
	if err != nil {
		return nil
	}
	relRoot = filepath.ToSlash(relRoot)
	prefix := ""
	if relRoot != "." {
		prefix = relRoot + "/"
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line == "" {
			continue
		}
		p := filepath.ToSlash(line)
		if prefix != "" {
			if !strings.HasPrefix(p, prefix) {
				continue
			}
			p = strings.TrimPrefix(p, prefix)
		}
		files[p] = struct{}{}
	}
	return files
}

// loadGitignore compiles the nearest .gitignore at or above root, and
// returns the directory it was found in alongside it — patterns in a
// .gitignore match relative to that directory, not relative to root.
func loadGitignore(root string) (string, *ignore.GitIgnore) {
	dir, ok := ascendTo(root, ".gitignore")
	if !ok {
		return "", nil
	}
	gi, err := ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return "", nil
	}
	return dir, gi
}
