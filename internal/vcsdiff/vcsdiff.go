// Package vcsdiff implements the revision-control adapter: given a
// remote branch ref and a working tree, it returns the (changed,
// deleted) workspace-relative paths between the branch's merge-base and
// the working tree.
package vcsdiff

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Diff runs `git diff` between remoteBranch's merge-base with HEAD and
// the current working tree, rooted at root. It's invoked at most once
// per change-resolver run and returns synchronously, per §5.
func Diff(root, remoteBranch string) (changed, deleted []string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mergeBase, err := run(ctx, root, "merge-base", remoteBranch, "HEAD")
	if err != nil {
		return nil, nil, fmt.Errorf("resolving merge-base with %s: %w", remoteBranch, err)
	}
	mergeBase = strings.TrimSpace(mergeBase)

	out, err := run(ctx, root, "diff", "--name-status", "--no-renames", mergeBase, "--")
	if err != nil {
		return nil, nil, fmt.Errorf("diffing against %s: %w", mergeBase, err)
	}

	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		status, path := fields[0], filepath.ToSlash(fields[1])
		switch status[0] {
		case 'D':
			deleted = append(deleted, path)
		default: // A, M, and friends are all "changed" for impact purposes
			changed = append(changed, path)
		}
	}

	untracked, err := run(ctx, root, "ls-files", "--others", "--exclude-standard")
	if err == nil {
		for _, line := range strings.Split(strings.TrimRight(untracked, "\n"), "\n") {
			if line != "" {
				changed = append(changed, filepath.ToSlash(line))
			}
		}
	}

	return changed, deleted, nil
}

func run(ctx context.Context, root string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
