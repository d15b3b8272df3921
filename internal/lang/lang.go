// Package lang wires up the tree-sitter grammar used by the source
// scanner. The registry this is adapted from supported several languages
// (Go, Python, Ruby) behind per-extension Language entries; this tool's
// scanner only ever looks at Rust source files, so the registry keeps the
// same shape with a single entry, so that a second language would still
// drop in the way golang.go/python.go/ruby.go once did.
package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language. Each
// goroutine must use its own parser; *sitter.Parser is not safe for
// concurrent use.
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Rust is the registered grammar for ".rs" files.
var Rust = &Language{
	Name:       "rust",
	Extensions: []string{".rs"},
	lang:       rust.GetLanguage(),
}

// ForExtension returns the registered Language for a file extension, or
// nil if unsupported.
func ForExtension(ext string) *Language {
	for _, e := range Rust.Extensions {
		if e == ext {
			return Rust
		}
	}
	return nil
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// StringLiteralValue returns the decoded value of a Rust string-literal
// node ("string_literal" or "raw_string_literal"), stripping the
// surrounding quotes (and, for raw strings, any "r"/"#" fence) and
// unescaping the common backslash escapes. Returns ok=false for any other
// node type.
func StringLiteralValue(node *sitter.Node, source []byte) (string, bool) {
	switch node.Type() {
	case "string_literal":
		text := NodeText(node, source)
		text = strings.TrimPrefix(text, "\"")
		text = strings.TrimSuffix(text, "\"")
		return unescape(text), true
	case "raw_string_literal":
		text := NodeText(node, source)
		text = strings.TrimPrefix(text, "r")
		text = strings.Trim(text, "#")
		text = strings.TrimPrefix(text, "\"")
		text = strings.TrimSuffix(text, "\"")
		return text, true
	default:
		return "", false
	}
}

func unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case '"':
				b.WriteByte('"')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
