// Package config defines the typed configuration tree consumed by the
// scanner, file-tree builder, and change resolver, and loads it from a
// TOML document.
package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// ParserSwitches holds the per-unit-overridable parser behavior: boolean
// feature switches and the list-valued patterns/names that drive them.
// Boolean switches override; list-valued switches replace (never merge)
// when a unit overlay sets them. This is documented, user-visible
// semantics, not an implementation detail.
type ParserSwitches struct {
	Mods           bool     `toml:"mods"`
	ModMacros      []string `toml:"mod_macros"`
	Includes       bool     `toml:"includes"`
	IncludeMacros  []string `toml:"include_macros"`
	FileRefs       bool     `toml:"file_refs"`
	FileMethods    []string `toml:"file_methods"`
	Assume         bool     `toml:"assume"`
	AssumePatterns []string `toml:"assume_patterns"`
}

// GitConfig holds the revision-control remote branch used as the baseline
// side of the diff.
type GitConfig struct {
	RemoteBranch string `toml:"remote_branch"`
}

// Config is the root configuration document: a global parser record, a
// mapping from unit name to overlay record, workspace-wide glob lists, and
// the git remote branch setting.
type Config struct {
	Parser              ParserSwitches
	UnitOverlays        map[string]ParserSwitches
	Git                 GitConfig
	FileExcludePatterns []string
	TripWirePatterns    []string
}

// ForUnit resolves the effective ParserSwitches for a named unit: the
// overlay if one is registered for it, otherwise the global default. The
// overlay itself was decoded starting from the global defaults (see
// Load), so a unit table that sets only one key still inherits
// every other resolved global value, matching §4.7's "per-unit value if
// present, else global value" at field granularity.
func (c *Config) ForUnit(unitName string) ParserSwitches {
	if c == nil {
		return Default().Parser
	}
	if overlay, ok := c.UnitOverlays[unitName]; ok {
		return overlay
	}
	return c.Parser
}

// Default returns the configuration in effect when no config file is
// given: mods/includes/file_refs on, assume off, the conventional macro
// and method name sets, and the standard exclude patterns.
func Default() *Config {
	return &Config{
		Parser: ParserSwitches{
			Mods:           true,
			ModMacros:      nil,
			Includes:       true,
			IncludeMacros:  []string{"include_str", "include_bytes"},
			FileRefs:       true,
			FileMethods:    []string{"file", "from_file", "load", "open", "read", "load_from"},
			Assume:         false,
			AssumePatterns: nil,
		},
		UnitOverlays:        map[string]ParserSwitches{},
		Git:                 GitConfig{RemoteBranch: "origin/master"},
		FileExcludePatterns: []string{".*", "target"},
		TripWirePatterns:    nil,
	}
}

// ConfigError is a fatal, user-facing configuration problem: a malformed
// document, an unreadable path, or an override that doesn't parse.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

// Load reads and parses a TOML configuration file. An empty path returns
// Default(). The document is decoded generically first so that nested
// [parser.<unit>] tables can be told apart from the global [parser]
// scalars/lists before either is decoded into ParserSwitches.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Reason: err.Error()}
	}

	var generic map[string]any
	if err := toml.Unmarshal(data, &generic); err != nil {
		return nil, &ConfigError{Path: path, Reason: err.Error()}
	}

	def := Default()
	cfg := &Config{
		Parser:              def.Parser,
		UnitOverlays:        map[string]ParserSwitches{},
		Git:                 def.Git,
		FileExcludePatterns: def.FileExcludePatterns,
		TripWirePatterns:    def.TripWirePatterns,
	}

	if parserTable, ok := generic["parser"].(map[string]any); ok {
		globalKeys, unitTables := splitOverlayTables(parserTable)

		if err := decodeInto(globalKeys, &cfg.Parser); err != nil {
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("[parser]: %v", err)}
		}

		for unitName, table := range unitTables {
			overlay := cfg.Parser
			// Copy the list fields so decoding an overlay list can't write
			// through to the global record's backing arrays.
			overlay.ModMacros = append([]string(nil), overlay.ModMacros...)
			overlay.IncludeMacros = append([]string(nil), overlay.IncludeMacros...)
			overlay.FileMethods = append([]string(nil), overlay.FileMethods...)
			overlay.AssumePatterns = append([]string(nil), overlay.AssumePatterns...)
			if err := decodeInto(table, &overlay); err != nil {
				return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("[parser.%s]: %v", unitName, err)}
			}
			cfg.UnitOverlays[unitName] = overlay
		}
	}

	if gitTable, ok := generic["git"].(map[string]any); ok {
		if err := decodeInto(gitTable, &cfg.Git); err != nil {
			return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("[git]: %v", err)}
		}
	}

	if v, ok := generic["file_exclude_patterns"]; ok {
		cfg.FileExcludePatterns = toStringSlice(v)
	}
	if v, ok := generic["trip_wire_patterns"]; ok {
		cfg.TripWirePatterns = toStringSlice(v)
	}

	return cfg, nil
}

// splitOverlayTables separates the scalar/list entries of the [parser]
// table (the global switches) from its nested tables (unit overlays,
// i.e. TOML's flattened form of [parser.<unit>]).
func splitOverlayTables(table map[string]any) (global map[string]any, overlays map[string]map[string]any) {
	global = make(map[string]any)
	overlays = make(map[string]map[string]any)

	for key, value := range table {
		if nested, ok := value.(map[string]any); ok {
			overlays[key] = nested
			continue
		}
		global[key] = value
	}

	return global, overlays
}

// decodeInto re-encodes a generically-decoded TOML table and decodes it
// into dst, leaving any field the table doesn't mention at dst's current
// value. This is the only bridge needed between the generic map decoded
// up front and the typed structs the rest of the analyzer consumes.
func decodeInto(table map[string]any, dst any) error {
	encoded, err := toml.Marshal(table)
	if err != nil {
		return err
	}
	return toml.Unmarshal(encoded, dst)
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
