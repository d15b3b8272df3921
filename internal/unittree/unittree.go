// Package unittree builds a single compilation unit's file-dependency
// tree: starting from its entry files, it recursively resolves module
// declarations, include-macro targets, mod-macro targets, and runtime
// file references into child FileNodes, then appends any configured
// assume-pattern matches that weren't already reached.
package unittree

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/deltascope/deltascope/internal/config"
	"github.com/deltascope/deltascope/internal/fswalk"
	"github.com/deltascope/deltascope/internal/globmatch"
	"github.com/deltascope/deltascope/internal/scan"
	"github.com/deltascope/deltascope/internal/unitmodel"
)

// Build resolves unit's file tree. Paths on the returned tree and on unit
// are absolute; relativizing to the workspace root happens once, in the
// analysis aggregator, after every unit's tree is finalized.
//
// switches is the already-resolved per-unit configuration view (the
// caller applies config.Config.ForUnit before calling Build).
// excludePatterns is workspace-wide; a path matching any of them is never
// inserted into the tree. stderr receives a diagnostic for every
// incidental file that can't be read and every hint that fails to resolve
// to an existing path; neither aborts the build.
func Build(unit unitmodel.Unit, switches config.ParserSwitches, excludePatterns []string, stderr io.Writer) (*unitmodel.FileNode, error) {
	if len(unit.EntryFiles) == 0 {
		return nil, fmt.Errorf("unit %q has no entry files", unit.Name)
	}

	b := &builder{switches: switches, excludePatterns: excludePatterns, unitDir: unit.Dir, stderr: stderr}

	root := b.buildNode(unit.EntryFiles[0], unitmodel.Entry, nil)
	for _, entry := range unit.EntryFiles[1:] {
		root.AddChild(b.buildNode(entry, unitmodel.Entry, nil))
	}

	if switches.Assume && len(switches.AssumePatterns) > 0 {
		b.attachAssumed(root)
	}

	return root, nil
}

type builder struct {
	switches        config.ParserSwitches
	excludePatterns []string
	unitDir         string
	stderr          io.Writer
}

// buildNode scans path and expands its hints into children, refusing to
// recurse into a path already on ancestors (the active chain from the
// tree root to this call), which is what keeps mutually recursive
// #[path] pairs finite without over-pruning paths that legitimately
// appear under more than one branch.
func (b *builder) buildNode(path string, origin unitmodel.Origin, ancestors []string) *unitmodel.FileNode {
	node := unitmodel.NewFileNode(path, origin)

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(b.stderr, "warning: %s: %v, skipping\n", path, err)
		return node
	}

	hints := scan.File(path, source, b.switches, b.stderr)
	dir := filepath.Dir(path)
	chain := append(append([]string{}, ancestors...), path)

	if b.switches.Mods {
		for _, m := range hints.Modules {
			if m.Inline {
				continue // already scanned as part of the file's own syntax tree
			}
			resolved, ok := b.resolveModule(path, dir, m.Name, m.PathOverride)
			if !ok {
				b.resolveWarning(path, "module", m.Name)
				continue
			}
			if b.excluded(resolved) || contains(chain, resolved) {
				continue
			}
			node.AddChild(b.buildNode(resolved, unitmodel.Module, chain))
		}
	}

	if b.switches.Includes {
		for _, inc := range hints.Includes {
			resolved, ok := resolveRelative(dir, inc.Literal)
			if !ok {
				b.resolveWarning(path, "include", inc.Literal)
				continue
			}
			if b.excluded(resolved) {
				continue
			}
			node.AddChild(unitmodel.NewFileNode(resolved, unitmodel.IncludedMacro))
		}
	}

	if b.switches.Mods {
		for _, mm := range hints.ModMacs {
			resolved, ok := b.resolveModule(path, dir, mm.Literal, "")
			if !ok {
				b.resolveWarning(path, "mod macro", mm.Literal)
				continue
			}
			if b.excluded(resolved) || contains(chain, resolved) {
				continue
			}
			node.AddChild(b.buildNode(resolved, unitmodel.Module, chain))
		}
	}

	if b.switches.FileRefs {
		for _, ref := range hints.Refs {
			resolved, ok := b.resolveRuntimeRef(ref.Literal)
			if !ok {
				b.resolveWarning(path, "runtime reference", ref.Literal)
				continue
			}
			if b.excluded(resolved) {
				continue
			}
			node.AddChild(unitmodel.NewFileNode(resolved, unitmodel.RuntimeRef))
		}
	}

	return node
}

// resolveWarning logs a dropped reference: kind/literal name what was
// attempted, path the file that named it. Resolution failures are routine
// for speculative patterns like #[path] overrides or assumed file-loader
// calls, so this is never fatal.
func (b *builder) resolveWarning(path, kind, literal string) {
	fmt.Fprintf(b.stderr, "warning: %s: unresolved %s reference %q, dropping\n", path, kind, literal)
}

// resolveModule implements §4.3.1's candidate search: a path override
// resolves relative to the declaring file's own directory; otherwise the
// search base is dir, unless a directory named after the declaring
// file's stem exists alongside it, in which case that directory is
// searched instead (so a submodule declared in src/foo.rs resolves
// against src/foo/, while one declared in src/foo/mod.rs resolves
// against src/foo/ directly via dir itself).
func (b *builder) resolveModule(declaringFile, dir, name, pathOverride string) (string, bool) {
	if pathOverride != "" {
		return resolveRelative(dir, pathOverride)
	}

	base := candidateBase(declaringFile, dir)

	direct := filepath.Join(base, name+".rs")
	if fileExists(direct) {
		return direct, true
	}
	modRS := filepath.Join(base, name, "mod.rs")
	if fileExists(modRS) {
		return modRS, true
	}
	return "", false
}

func candidateBase(declaringFile, dir string) string {
	stem := strings.TrimSuffix(filepath.Base(declaringFile), filepath.Ext(declaringFile))
	candidate := filepath.Join(dir, stem)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate
	}
	return dir
}

// resolveRuntimeRef resolves lit relative to the unit's canonical
// directory, per §4.3's rule 4. Literals that escape the unit directory,
// or that contain a format specifier (meaning the scanner should never
// have folded them to a literal in the first place, but defends against
// a stray "{}" reaching here), are dropped.
func (b *builder) resolveRuntimeRef(lit string) (string, bool) {
	if strings.Contains(lit, "{") || strings.Contains(lit, "}") {
		return "", false
	}
	candidate := filepath.Join(b.unitDir, lit)
	rel, err := filepath.Rel(b.unitDir, candidate)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	if !fileExists(candidate) {
		return "", false
	}
	return candidate, true
}

func (b *builder) attachAssumed(root *unitmodel.FileNode) {
	distinct := root.Distinct()

	relFiles, err := fswalk.Files(b.unitDir)
	if err != nil {
		return
	}

	var matched []string
	for _, rel := range relFiles {
		if !globmatch.Matches(rel, b.switches.AssumePatterns) {
			continue
		}
		abs := filepath.Join(b.unitDir, rel)
		if b.excluded(abs) {
			continue
		}
		if _, seen := distinct[abs]; seen {
			continue
		}
		matched = append(matched, abs)
	}
	sort.Strings(matched)

	for _, abs := range matched {
		root.AddChild(unitmodel.NewFileNode(abs, unitmodel.Assumed))
	}
}

func (b *builder) excluded(absPath string) bool {
	rel, err := filepath.Rel(b.unitDir, absPath)
	if err != nil {
		rel = absPath
	}
	return globmatch.Excluded(rel, b.excludePatterns) || globmatch.Excluded(filepath.Base(absPath), b.excludePatterns)
}

func resolveRelative(dir, relative string) (string, bool) {
	candidate := filepath.Join(dir, relative)
	if !fileExists(candidate) {
		return "", false
	}
	return candidate, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
