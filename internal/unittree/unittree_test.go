package unittree

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deltascope/deltascope/internal/config"
	"github.com/deltascope/deltascope/internal/unitmodel"
)

func defaultSwitches() config.ParserSwitches {
	return config.Default().Parser
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func childPaths(n *unitmodel.FileNode) []string {
	var paths []string
	for _, c := range n.Children {
		paths = append(paths, c.Path)
	}
	return paths
}

func TestBuildResolvesSiblingModule(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	lib := writeFile(t, dir, "src/lib.rs", "mod foo;")
	foo := writeFile(t, dir, "src/foo.rs", "")

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{lib}}
	root, err := Build(unit, defaultSwitches(), nil, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := childPaths(root); len(got) != 1 || got[0] != foo {
		t.Fatalf("children = %v, want [%s]", got, foo)
	}
	if root.Children[0].Origin != unitmodel.Module {
		t.Errorf("origin = %s, want Module", root.Children[0].Origin)
	}
}

func TestBuildResolvesSubdirModule(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	foo := writeFile(t, dir, "src/foo.rs", "mod bar;")
	bar := writeFile(t, dir, "src/foo/bar.rs", "")

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{foo}}
	root, err := Build(unit, defaultSwitches(), nil, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := childPaths(root); len(got) != 1 || got[0] != bar {
		t.Fatalf("children = %v, want [%s]", got, bar)
	}
}

func TestBuildModRsUsesOwnDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	modRS := writeFile(t, dir, "src/sub/mod.rs", "mod baz;")
	baz := writeFile(t, dir, "src/sub/baz.rs", "")

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{modRS}}
	root, err := Build(unit, defaultSwitches(), nil, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := childPaths(root); len(got) != 1 || got[0] != baz {
		t.Fatalf("children = %v, want [%s]", got, baz)
	}
}

func TestBuildModuleWithPathOverride(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	lib := writeFile(t, dir, "src/lib.rs", `
#[path = "custom/location.rs"]
mod foo;
`)
	custom := writeFile(t, dir, "src/custom/location.rs", "")

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{lib}}
	root, err := Build(unit, defaultSwitches(), nil, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := childPaths(root); len(got) != 1 || got[0] != custom {
		t.Fatalf("children = %v, want [%s]", got, custom)
	}
}

func TestBuildIncludeMacroChildNotFurtherScanned(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	lib := writeFile(t, dir, "src/lib.rs", `const S: &str = include_str!("../data/schema.txt");`)
	schema := writeFile(t, dir, "data/schema.txt", "mod not_real_rust;")

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{lib}}
	root, err := Build(unit, defaultSwitches(), nil, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := childPaths(root); len(got) != 1 || got[0] != schema {
		t.Fatalf("children = %v, want [%s]", got, schema)
	}
	if len(root.Children[0].Children) != 0 {
		t.Errorf("include-macro child should not be scanned, got children %v", root.Children[0].Children)
	}
	if root.Children[0].Origin != unitmodel.IncludedMacro {
		t.Errorf("origin = %s, want IncludedMacro", root.Children[0].Origin)
	}
}

func TestBuildMutuallyRecursivePathModulesTerminate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	a := writeFile(t, dir, "src/a.rs", `
#[path = "b.rs"]
mod b;
`)
	writeFile(t, dir, "src/b.rs", `
#[path = "a.rs"]
mod a;
`)

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{a}}
	root, err := Build(unit, defaultSwitches(), nil, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// a -> b -> a(dropped, already an ancestor)
	if len(root.Children) != 1 {
		t.Fatalf("root children = %v, want exactly 1 (b)", childPaths(root))
	}
	b := root.Children[0]
	if len(b.Children) != 0 {
		t.Errorf("b's children = %v, want none (a is an ancestor)", childPaths(b))
	}
}

func TestBuildRuntimeRefEscapingUnitDirIsDropped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	unitDir := filepath.Join(dir, "crates", "api")

	lib := writeFile(t, unitDir, "src/lib.rs", `fn main() { load("../../secrets.toml"); }`)
	writeFile(t, dir, "secrets.toml", "")

	unit := unitmodel.Unit{Name: "api", Dir: unitDir, EntryFiles: []string{lib}}
	root, err := Build(unit, defaultSwitches(), nil, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := childPaths(root); len(got) != 0 {
		t.Fatalf("children = %v, want none (escapes unit directory)", got)
	}
}

func TestBuildRuntimeRefWithinUnitDirResolves(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	lib := writeFile(t, dir, "src/lib.rs", `fn main() { load("config/app.toml"); }`)
	cfg := writeFile(t, dir, "config/app.toml", "")

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{lib}}
	root, err := Build(unit, defaultSwitches(), nil, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := childPaths(root); len(got) != 1 || got[0] != cfg {
		t.Fatalf("children = %v, want [%s]", got, cfg)
	}
}

func TestBuildAssumePatternAttachesUnreachedFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	lib := writeFile(t, dir, "src/lib.rs", "")
	proto := writeFile(t, dir, "proto/msg.proto", "")

	switches := defaultSwitches()
	switches.Assume = true
	switches.AssumePatterns = []string{"*.proto"}

	unit := unitmodel.Unit{Name: "grpc", Dir: dir, EntryFiles: []string{lib}}
	root, err := Build(unit, switches, nil, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := childPaths(root); len(got) != 1 || got[0] != proto {
		t.Fatalf("children = %v, want [%s]", got, proto)
	}
	if root.Children[0].Origin != unitmodel.Assumed {
		t.Errorf("origin = %s, want Assumed", root.Children[0].Origin)
	}
}

func TestBuildExcludedModuleIsDropped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	lib := writeFile(t, dir, "src/lib.rs", "mod generated;")
	writeFile(t, dir, "src/generated.rs", "")

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{lib}}
	root, err := Build(unit, defaultSwitches(), []string{"generated.rs"}, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := childPaths(root); len(got) != 0 {
		t.Fatalf("children = %v, want none (excluded)", got)
	}
}

func TestBuildMultipleEntriesBothAttachedToRoot(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	lib := writeFile(t, dir, "src/lib.rs", "")
	bin := writeFile(t, dir, "src/main.rs", "")

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{lib, bin}}
	root, err := Build(unit, defaultSwitches(), nil, io.Discard)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if root.Path != lib {
		t.Errorf("root.Path = %s, want primary entry %s", root.Path, lib)
	}
	if got := childPaths(root); len(got) != 1 || got[0] != bin {
		t.Fatalf("children = %v, want [%s]", got, bin)
	}
	if root.Children[0].Origin != unitmodel.Entry {
		t.Errorf("origin = %s, want Entry", root.Children[0].Origin)
	}
}

func TestBuildLogsUnresolvedModuleReference(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	lib := writeFile(t, dir, "src/lib.rs", "mod missing;")

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{lib}}
	var stderr bytes.Buffer
	root, err := Build(unit, defaultSwitches(), nil, &stderr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(root.Children) != 0 {
		t.Fatalf("children = %v, want none (missing never resolves)", childPaths(root))
	}
	if !strings.Contains(stderr.String(), "missing") {
		t.Errorf("stderr = %q, want a diagnostic naming the unresolved module", stderr.String())
	}
}

func TestBuildLogsUnreadableIncidentalFile(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("running as root: permission bits don't block reads")
	}
	dir := t.TempDir()

	lib := writeFile(t, dir, "src/lib.rs", "mod foo;")
	foo := writeFile(t, dir, "src/foo.rs", "")
	if err := os.Chmod(foo, 0o000); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(foo, 0o644)

	unit := unitmodel.Unit{Name: "api", Dir: dir, EntryFiles: []string{lib}}
	var stderr bytes.Buffer
	root, err := Build(unit, defaultSwitches(), nil, &stderr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(root.Children) != 1 {
		t.Fatalf("children = %v, want [%s] (still attached, just unreadable)", childPaths(root), foo)
	}
	if stderr.Len() == 0 {
		t.Error("want a diagnostic for the unreadable file, got none")
	}
}
