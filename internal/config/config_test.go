package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHasExpectedValues(t *testing.T) {
	t.Parallel()

	cfg := Default()

	if !cfg.Parser.Mods || !cfg.Parser.Includes || !cfg.Parser.FileRefs {
		t.Errorf("expected mods/includes/file_refs on by default: %+v", cfg.Parser)
	}
	if cfg.Parser.Assume {
		t.Error("expected assume off by default")
	}
	if len(cfg.Parser.AssumePatterns) != 0 {
		t.Errorf("expected no assume patterns by default, got %v", cfg.Parser.AssumePatterns)
	}
	if !contains(cfg.Parser.FileMethods, "open") || !contains(cfg.Parser.FileMethods, "load") {
		t.Errorf("expected conventional file methods, got %v", cfg.Parser.FileMethods)
	}
	if !contains(cfg.Parser.IncludeMacros, "include_str") {
		t.Errorf("expected include_str in default include macros, got %v", cfg.Parser.IncludeMacros)
	}
	if !contains(cfg.FileExcludePatterns, ".*") || !contains(cfg.FileExcludePatterns, "target") {
		t.Errorf("expected default excludes, got %v", cfg.FileExcludePatterns)
	}
	if len(cfg.TripWirePatterns) != 0 {
		t.Errorf("expected no trip wire patterns by default, got %v", cfg.TripWirePatterns)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if !cfg.Parser.Mods {
		t.Error("expected default config with mods enabled")
	}
}

func TestLoadMissingFileIsConfigError(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.toml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
	var cfgErr *ConfigError
	if !asConfigError(err, &cfgErr) {
		t.Errorf("expected a *ConfigError, got %T: %v", err, err)
	}
}

func TestLoadParsesGlobalOverridesAndWorkspaceFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "delta.toml")
	writeFile(t, path, `
file_exclude_patterns = ["build"]
trip_wire_patterns = ["Cargo.lock"]

[parser]
file_refs = false
mods = false

[git]
remote_branch = "origin/develop"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(cfg.FileExcludePatterns) != 1 || cfg.FileExcludePatterns[0] != "build" {
		t.Errorf("file_exclude_patterns = %v", cfg.FileExcludePatterns)
	}
	if len(cfg.TripWirePatterns) != 1 || cfg.TripWirePatterns[0] != "Cargo.lock" {
		t.Errorf("trip_wire_patterns = %v", cfg.TripWirePatterns)
	}
	if cfg.Parser.FileRefs {
		t.Error("expected file_refs overridden to false")
	}
	if cfg.Parser.Mods {
		t.Error("expected mods overridden to false")
	}
	if !cfg.Parser.Includes {
		t.Error("expected includes to keep its default of true")
	}
	if cfg.Git.RemoteBranch != "origin/develop" {
		t.Errorf("remote_branch = %q", cfg.Git.RemoteBranch)
	}
}

func TestLoadUnitOverlayReplacesListsNotMerges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "delta.toml")
	writeFile(t, path, `
[parser]
mods = true
assume_patterns = ["*.txt"]

[parser.grpc]
assume = true
assume_patterns = ["*.proto"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	global := cfg.ForUnit("other-unit")
	if !global.Mods {
		t.Error("expected an unlisted unit to inherit the global mods=true")
	}
	if global.Assume {
		t.Error("an unlisted unit must not inherit the grpc overlay's assume=true")
	}
	if len(global.AssumePatterns) != 1 || global.AssumePatterns[0] != "*.txt" {
		t.Errorf("global assume_patterns = %v, want [*.txt] untouched by the grpc overlay", global.AssumePatterns)
	}

	grpc := cfg.ForUnit("grpc")
	if !grpc.Assume {
		t.Error("expected grpc overlay assume=true")
	}
	if len(grpc.AssumePatterns) != 1 || grpc.AssumePatterns[0] != "*.proto" {
		t.Errorf("grpc.assume_patterns = %v", grpc.AssumePatterns)
	}
	if !grpc.Mods {
		t.Error("expected grpc to inherit the global mods=true since its overlay didn't set it")
	}
}

func TestForUnitFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	cfg := Default()
	resolved := cfg.ForUnit("some-unit")
	if !resolved.FileRefs || !resolved.Mods {
		t.Errorf("expected an unregistered unit to resolve to the global default: %+v", resolved)
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func asConfigError(err error, target **ConfigError) bool {
	ce, ok := err.(*ConfigError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
}
