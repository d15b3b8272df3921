// Package scan parses a single Rust source file's syntax tree and emits a
// bag of dependency hints: module declarations, include-macro and
// mod-macro invocations, and runtime file-reference call sites. It never
// resolves a hint to a file path; that's internal/unittree's job.
package scan

import (
	"context"
	"fmt"
	"io"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/deltascope/deltascope/internal/config"
	"github.com/deltascope/deltascope/internal/lang"
)

// ModuleDecl is one non-inline module declaration, or an inline module
// recorded so its body is walked without producing a file node.
type ModuleDecl struct {
	Name         string
	PathOverride string // set iff an attribute on the declaration overrides the path
	Inline       bool
	Line         int
}

// IncludeMacro is one invocation of a configured include-macro whose first
// argument is a string literal.
type IncludeMacro struct {
	Literal string
	Line    int
}

// ModMacro is one invocation of a configured module-producing macro whose
// first argument is an identifier or string literal naming a module.
type ModMacro struct {
	Literal string
	Line    int
}

// RuntimeRef is one call whose called name matches a configured
// file-loader method name, with a first argument that is (or folds to) a
// string literal.
type RuntimeRef struct {
	Literal string
	Line    int
}

// Hints is the bag of dependency hints extracted from one source file.
type Hints struct {
	Modules  []ModuleDecl
	Includes []IncludeMacro
	ModMacs  []ModMacro
	Refs     []RuntimeRef
}

// File parses source with the Rust grammar and extracts hints according to
// switches. A malformed file (one whose syntax tree contains errors) yields
// an empty Hints and no error: parsing is best-effort, per the scanner's
// contract. path is used only to name the
// file in the diagnostic written to stderr when parsing fails.
func File(path string, source []byte, switches config.ParserSwitches, stderr io.Writer) Hints {
	var hints Hints
	if len(source) == 0 {
		return hints
	}

	tree, err := lang.Rust.NewParser().ParseCtx(context.Background(), nil, source)
	if err != nil || tree == nil {
		fmt.Fprintf(stderr, "warning: %s: failed to parse, skipping\n", path)
		return hints
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		fmt.Fprintf(stderr, "warning: %s: failed to parse, skipping\n", path)
		return hints
	}

	v := &visitor{
		source:    source,
		switches:  switches,
		constants: make(map[string]string),
	}
	v.collectConstants(tree.RootNode())
	v.walk(tree.RootNode(), nil)

	return v.hints
}

type visitor struct {
	source    []byte
	switches  config.ParserSwitches
	constants map[string]string
	hints     Hints
}

// collectConstants records every `const NAME: T = "literal";` and
// `static NAME: T = "literal";` at any nesting level, so a later call
// argument that's a bare identifier can be folded back to its literal
// value, mirroring the original scanner's constant-folding pass.
func (v *visitor) collectConstants(n *sitter.Node) {
	switch n.Type() {
	case "const_item", "static_item":
		name := fieldText(n, "name", v.source)
		value := n.ChildByFieldName("value")
		if name != "" && value != nil {
			if lit, ok := lang.StringLiteralValue(value, v.source); ok {
				v.constants[name] = lit
			}
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		v.collectConstants(n.Child(i))
	}
}

// walk recursively visits every node. pendingPathAttr is the #[path =
// "..."] override, if any, carried from n's own immediately preceding
// sibling by the parent's iteration below; it's consulted only when n
// itself is a mod_item.
func (v *visitor) walk(n *sitter.Node, pendingPathAttr *string) {
	switch n.Type() {
	case "mod_item":
		v.visitModItem(n, pendingPathAttr)
	case "macro_invocation":
		v.visitMacroInvocation(n)
	case "call_expression":
		v.visitCallExpression(n)
	}

	var siblingPathAttr *string
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if child.Type() == "attribute_item" {
			if p := v.extractPathAttr(child); p != "" {
				siblingPathAttr = &p
			}
			v.walk(child, nil)
			continue
		}
		v.walk(child, siblingPathAttr)
		siblingPathAttr = nil
	}
}

func (v *visitor) extractPathAttr(n *sitter.Node) string {
	// attribute_item -> "#" "[" attribute "]"
	for i := 0; i < int(n.ChildCount()); i++ {
		attr := n.Child(i)
		if attr.Type() != "attribute" {
			continue
		}
		// The attribute's own path (e.g. the identifier "path") is its
		// first named child; the grammar gives it no field name.
		if attr.NamedChildCount() == 0 || lang.NodeText(attr.NamedChild(0), v.source) != "path" {
			continue
		}
		value := attr.ChildByFieldName("value")
		if value == nil {
			continue
		}
		if lit, ok := lang.StringLiteralValue(value, v.source); ok {
			return lit
		}
	}
	return ""
}

func (v *visitor) visitModItem(n *sitter.Node, pathAttr *string) {
	if !v.switches.Mods {
		return
	}
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := lang.NodeText(nameNode, v.source)

	body := n.ChildByFieldName("body")
	decl := ModuleDecl{
		Name:   name,
		Inline: body != nil,
		Line:   int(n.StartPoint().Row) + 1,
	}
	if pathAttr != nil {
		decl.PathOverride = *pathAttr
	}
	v.hints.Modules = append(v.hints.Modules, decl)
}

func (v *visitor) visitMacroInvocation(n *sitter.Node) {
	nameNode := n.ChildByFieldName("macro")
	if nameNode == nil {
		return
	}
	name := lang.NodeText(nameNode, v.source)
	line := int(n.StartPoint().Row) + 1

	args := firstMacroArg(n)

	if v.switches.Includes && containsName(v.switches.IncludeMacros, name) {
		if args != nil {
			if lit, ok := lang.StringLiteralValue(args, v.source); ok {
				v.hints.Includes = append(v.hints.Includes, IncludeMacro{Literal: lit, Line: line})
			}
		}
		return
	}

	if v.switches.Mods && containsName(v.switches.ModMacros, name) {
		if args != nil {
			if lit := v.identOrLiteral(args); lit != "" {
				v.hints.ModMacs = append(v.hints.ModMacs, ModMacro{Literal: lit, Line: line})
			}
		}
	}
}

func (v *visitor) visitCallExpression(n *sitter.Node) {
	if !v.switches.FileRefs {
		return
	}
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	method := lastSegment(lang.NodeText(fn, v.source))
	if !containsName(v.switches.FileMethods, method) {
		return
	}

	argsNode := n.ChildByFieldName("arguments")
	if argsNode == nil || argsNode.ChildCount() == 0 {
		return
	}
	first := firstArgNode(argsNode)
	if first == nil {
		return
	}
	if lit, ok := v.literalOrConstant(first); ok {
		v.hints.Refs = append(v.hints.Refs, RuntimeRef{Literal: lit, Line: int(n.StartPoint().Row) + 1})
	}
}

// literalOrConstant folds expr to a string literal, either directly or by
// resolving a bare identifier against previously collected constants. Used
// only for RuntimeRef: IncludeMacro's first argument must be a string
// literal outright, with no constant-folding.
func (v *visitor) literalOrConstant(expr *sitter.Node) (string, bool) {
	if lit, ok := lang.StringLiteralValue(expr, v.source); ok {
		return lit, true
	}
	if expr.Type() == "identifier" {
		if val, ok := v.constants[lang.NodeText(expr, v.source)]; ok {
			return val, true
		}
	}
	return "", false
}

// identOrLiteral returns a module name from a mod-macro's first argument,
// which may be a bare identifier (the common case, e.g. `mod_macro!(foo);`)
// or a string literal.
func (v *visitor) identOrLiteral(expr *sitter.Node) string {
	if expr.Type() == "identifier" {
		return lang.NodeText(expr, v.source)
	}
	if lit, ok := lang.StringLiteralValue(expr, v.source); ok {
		return lit
	}
	return ""
}

// firstMacroArg returns the first top-level expression inside a
// macro_invocation's token tree, skipping delimiters and punctuation. The
// token tree isn't exposed as a named field in the grammar, so it's found
// positionally by node type.
func firstMacroArg(n *sitter.Node) *sitter.Node {
	var args *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == "token_tree" {
			args = c
			break
		}
	}
	if args == nil {
		return nil
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		c := args.Child(i)
		switch c.Type() {
		case "(", ")", "[", "]", "{", "}", ",":
			continue
		default:
			return c
		}
	}
	return nil
}

func firstArgNode(argsNode *sitter.Node) *sitter.Node {
	for i := 0; i < int(argsNode.ChildCount()); i++ {
		c := argsNode.Child(i)
		switch c.Type() {
		case "(", ")", ",":
			continue
		default:
			return c
		}
	}
	return nil
}

func fieldText(n *sitter.Node, field string, source []byte) string {
	f := n.ChildByFieldName(field)
	if f == nil {
		return ""
	}
	return lang.NodeText(f, source)
}

func lastSegment(path string) string {
	idx := -1
	for i := len(path) - 1; i >= 1; i-- {
		if path[i-1] == ':' && path[i] == ':' {
			idx = i + 1
			break
		}
	}
	if idx == -1 {
		return path
	}
	return path[idx:]
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
