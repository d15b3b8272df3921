package globmatch

import "testing"

func TestMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		patterns []string
		want     bool
	}{
		{"doublestar prefix", "crates/api/target/debug/out", []string{"**/target/**"}, true},
		{"bare basename matches nested dir", "crates/api/target/debug", []string{"target"}, true},
		{"dotfile exclude", "crates/api/.cache", []string{".*"}, true},
		{"no match", "crates/api/src/lib.rs", []string{"target", "**/*.proto"}, false},
		{"glob extension anywhere", "crates/grpc/proto/msg.proto", []string{"*.proto"}, true},
		{"exact path", "Cargo.toml", []string{"Cargo.toml"}, true},
		{"empty patterns never match", "Cargo.toml", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Matches(tt.path, tt.patterns); got != tt.want {
				t.Errorf("Matches(%q, %v) = %v, want %v", tt.path, tt.patterns, got, tt.want)
			}
		})
	}
}

func TestExcludedIsAnAliasOfMatches(t *testing.T) {
	t.Parallel()

	if !Excluded("target/debug/build.rs", []string{"target"}) {
		t.Error("expected target/debug/build.rs to be excluded by pattern \"target\"")
	}
	if Excluded("src/lib.rs", []string{"target"}) {
		t.Error("did not expect src/lib.rs to be excluded")
	}
}
