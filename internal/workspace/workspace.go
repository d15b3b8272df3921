// Package workspace reads a Cargo-style workspace: the root manifest's
// member list and, per member, the unit's name, entry files, and direct
// dependencies on other workspace members.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/deltascope/deltascope/internal/globmatch"
	"github.com/deltascope/deltascope/internal/unitmodel"
)

// WorkspaceError is a fatal, user-facing problem with the manifest graph:
// a missing/malformed manifest, a duplicate unit name, a manifest-graph
// cycle, or a declared entry file that doesn't exist.
type WorkspaceError struct {
	Path   string
	Reason string
}

func (e *WorkspaceError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("workspace %s: %s", e.Path, e.Reason)
}

// Walk reads root's Cargo.toml, resolves its member list, and reads each
// member's own manifest into a Unit. Units are returned sorted by name.
// A missing/malformed manifest, a duplicate unit name, or a manifest
// naming an entry file that doesn't exist on disk aborts with a
// *WorkspaceError.
func Walk(root string) ([]unitmodel.Unit, error) {
	rootManifestPath := filepath.Join(root, "Cargo.toml")
	rootTable, err := readManifest(rootManifestPath)
	if err != nil {
		return nil, err
	}

	memberDirs, err := resolveMembers(root, rootTable, rootManifestPath)
	if err != nil {
		return nil, err
	}

	units := make([]unitmodel.Unit, 0, len(memberDirs))
	seen := make(map[string]string) // name -> manifest path, for duplicate detection

	for _, dir := range memberDirs {
		manifestPath := filepath.Join(dir, "Cargo.toml")
		table, err := readManifest(manifestPath)
		if err != nil {
			return nil, err
		}

		unit, err := buildUnit(dir, manifestPath, table)
		if err != nil {
			return nil, err
		}

		if prior, dup := seen[unit.Name]; dup {
			return nil, &WorkspaceError{Path: manifestPath, Reason: fmt.Sprintf("duplicate unit name %q also declared at %s", unit.Name, prior)}
		}
		seen[unit.Name] = manifestPath

		units = append(units, unit)
	}

	// Keep only edges to other workspace members, so every dependency
	// names a unit that Walk also returns.
	for i := range units {
		var kept []string
		for _, dep := range units[i].Dependencies {
			if _, member := seen[dep]; member {
				kept = append(kept, dep)
			}
		}
		units[i].Dependencies = kept
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units, nil
}

func readManifest(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &WorkspaceError{Path: path, Reason: err.Error()}
	}
	var table map[string]any
	if err := toml.Unmarshal(data, &table); err != nil {
		return nil, &WorkspaceError{Path: path, Reason: err.Error()}
	}
	return table, nil
}

// resolveMembers expands a [workspace].members glob list (e.g.
// "crates/*") against directories under root that themselves contain a
// Cargo.toml, and drops anything matched by [workspace].exclude.
func resolveMembers(root string, table map[string]any, manifestPath string) ([]string, error) {
	workspaceTable, ok := table["workspace"].(map[string]any)
	if !ok {
		// A manifest with no [workspace] table but its own [package] is a
		// single-crate, non-workspace root: the root itself is the only
		// member.
		if _, hasPackage := table["package"]; hasPackage {
			return []string{root}, nil
		}
		return nil, &WorkspaceError{Path: manifestPath, Reason: "no [workspace] or [package] table"}
	}

	patterns := toStringSlice(workspaceTable["members"])
	excludes := toStringSlice(workspaceTable["exclude"])

	var candidates []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, &WorkspaceError{Path: manifestPath, Reason: fmt.Sprintf("invalid member pattern %q: %v", pattern, err)}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(m, "Cargo.toml")); err != nil {
				continue
			}
			candidates = append(candidates, m)
		}
	}

	sort.Strings(candidates)

	var members []string
	for _, dir := range candidates {
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			rel = dir
		}
		rel = filepath.ToSlash(rel)
		if globmatch.Matches(rel, excludes) {
			continue
		}
		members = append(members, dir)
	}
	return members, nil
}

func buildUnit(dir, manifestPath string, table map[string]any) (unitmodel.Unit, error) {
	pkg, ok := table["package"].(map[string]any)
	if !ok {
		return unitmodel.Unit{}, &WorkspaceError{Path: manifestPath, Reason: "missing [package] table"}
	}
	name, _ := pkg["name"].(string)
	if name == "" {
		return unitmodel.Unit{}, &WorkspaceError{Path: manifestPath, Reason: "package has no name"}
	}

	entries, err := resolveEntries(dir, manifestPath, name, table)
	if err != nil {
		return unitmodel.Unit{}, err
	}

	deps := resolveLocalDependencies(dir, table)

	return unitmodel.Unit{
		Name:         name,
		Dir:          dir,
		EntryFiles:   entries,
		Dependencies: deps,
	}, nil
}

// resolveEntries extracts the unit's lib entry (if any) and every
// declared bin/test/bench entry, each with its explicit path if set
// or the conventional path otherwise. A manifest naming an entry file
// that doesn't exist is a hard error.
func resolveEntries(dir, manifestPath, pkgName string, table map[string]any) ([]string, error) {
	var entries []string

	addEntry := func(path string) error {
		if !fileExists(path) {
			return &WorkspaceError{Path: manifestPath, Reason: fmt.Sprintf("declared entry file does not exist: %s", path)}
		}
		entries = append(entries, path)
		return nil
	}

	libPath := filepath.Join(dir, "src", "lib.rs")
	if libTable, ok := table["lib"].(map[string]any); ok {
		if p, _ := libTable["path"].(string); p != "" {
			libPath = filepath.Join(dir, p)
		}
		if err := addEntry(libPath); err != nil {
			return nil, err
		}
	} else if fileExists(libPath) {
		if err := addEntry(libPath); err != nil {
			return nil, err
		}
	}

	if err := resolveTargetArray(dir, manifestPath, table, "bin", filepath.Join("src", "main.rs"), pkgName, &entries); err != nil {
		return nil, err
	}
	if err := resolveTargetArray(dir, manifestPath, table, "test", "", "", &entries); err != nil {
		return nil, err
	}
	if err := resolveTargetArray(dir, manifestPath, table, "bench", "", "", &entries); err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, &WorkspaceError{Path: manifestPath, Reason: "unit has no entry files"}
	}
	return entries, nil
}

// resolveTargetArray handles a [[bin]]/[[test]]/[[bench]] array-of-tables.
// When the array is absent, a single conventional default path is used if
// it exists: src/main.rs for bin (named after the package), or every .rs
// file directly under tests/ or benches/ for test/bench respectively.
func resolveTargetArray(dir, manifestPath string, table map[string]any, section, conventionalBinPath, pkgName string, entries *[]string) error {
	raw, ok := table[section]
	if !ok {
		if section == "bin" && conventionalBinPath != "" {
			full := filepath.Join(dir, conventionalBinPath)
			if fileExists(full) {
				*entries = append(*entries, full)
			}
			return nil
		}
		if section == "test" || section == "bench" {
			conventionalDir := filepath.Join(dir, section+"s")
			matches, _ := filepath.Glob(filepath.Join(conventionalDir, "*.rs"))
			sort.Strings(matches)
			*entries = append(*entries, matches...)
		}
		return nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	for _, item := range list {
		entryTable, ok := item.(map[string]any)
		if !ok {
			continue
		}
		targetName, _ := entryTable["name"].(string)
		var path string
		if p, _ := entryTable["path"].(string); p != "" {
			path = filepath.Join(dir, p)
		} else if targetName != "" {
			path = filepath.Join(dir, section+"s", targetName+".rs")
		} else {
			continue
		}
		if !fileExists(path) {
			return &WorkspaceError{Path: manifestPath, Reason: fmt.Sprintf("declared entry file does not exist: %s", path)}
		}
		*entries = append(*entries, path)
	}
	return nil
}

// resolveLocalDependencies returns the names of direct dependencies whose
// declared source is a path table with a readable target manifest; Walk
// then keeps only those that name a workspace member. Version (string) or
// registry/git dependencies are not in-workspace edges. The emitted name
// is the depended-on crate's own [package].name, not the dependency
// table's key: Cargo lets a path dependency's local alias
// differ from the real crate name (optionally spelled out via the
// dependency entry's own "package" field), and an edge has to point at
// whatever key the target unit is actually registered under, or it leaks
// into the graph as a node with no matching unit.
func resolveLocalDependencies(dir string, table map[string]any) []string {
	depsTable, ok := table["dependencies"].(map[string]any)
	if !ok {
		return nil
	}

	var names []string
	for key, value := range depsTable {
		entry, ok := value.(map[string]any)
		if !ok {
			continue // plain version string: not a local path dependency
		}
		p, _ := entry["path"].(string)
		if p == "" {
			continue
		}
		depDir := filepath.Join(dir, p)
		depTable, err := readManifest(filepath.Join(depDir, "Cargo.toml"))
		if err != nil {
			continue
		}
		names = append(names, dependencyName(depTable, entry, key))
	}
	sort.Strings(names)
	return names
}

// dependencyName resolves the real unit name a path dependency refers to.
// The target manifest's own [package].name is authoritative, since that's
// the key the target unit is registered under; the dependency entry's
// "package" rename field and the dependency table key itself are only
// consulted as fallbacks when the target manifest has no package name.
func dependencyName(depTable, entry map[string]any, key string) string {
	if pkg, ok := depTable["package"].(map[string]any); ok {
		if name, _ := pkg["name"].(string); name != "" {
			return name
		}
	}
	if name, _ := entry["package"].(string); name != "" {
		return name
	}
	return key
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
