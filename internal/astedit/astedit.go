// Package astedit locates and mutates C/C++ function declarations using a
// tree-sitter parse of the enclosing file, so a refactoring's qualifier
// insertion targets the declarator's actual terminator rather than the
// first semicolon a naive text search happens to find (which could sit
// inside a string literal, a comment, or an unrelated statement sharing the
// line).
package astedit

import (
	"context"
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	levelerrors "levelup/internal/errors"
)

// declarationNodeTypes are the tree-sitter node types that can hold a
// function declarator: a plain declaration ("void f();"), a field
// declaration inside a class/struct, or a full definition ("void f() {}").
var declarationNodeTypes = map[string]bool{
	"declaration":          true,
	"field_declaration":    true,
	"function_definition":  true,
}

// Editor parses C/C++ source with tree-sitter to locate declaration
// terminators for mutation.
type Editor struct {
	parser *sitter.Parser
}

// NewEditor creates an Editor configured for the C++ grammar. LevelUp
// targets C and C++ sources uniformly under the C++ grammar, which is a
// superset-compatible parse for the declaration shapes refactorings touch.
func NewEditor() *Editor {
	p := sitter.NewParser()
	p.SetLanguage(cpp.GetLanguage())
	return &Editor{parser: p}
}

// parse produces the root node of source's tree-sitter parse.
func (e *Editor) parse(ctx context.Context, source []byte) (*sitter.Node, error) {
	tree, err := e.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, levelerrors.New(levelerrors.InternalError, "failed to parse source for editing", err)
	}
	return tree.RootNode(), nil
}

// findDeclarationAtLine returns the smallest declaration-shaped node whose
// span covers the given 1-indexed line, or nil if none does.
func findDeclarationAtLine(root *sitter.Node, line int) *sitter.Node {
	row := uint32(line - 1)
	var best *sitter.Node

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.StartPoint().Row <= row && row <= n.EndPoint().Row {
			if declarationNodeTypes[n.Type()] {
				best = n
			}
			for i := 0; i < int(n.ChildCount()); i++ {
				walk(n.Child(i))
			}
		}
	}
	walk(root)
	return best
}

// findTerminatorSemicolon returns the byte offset of the top-level ';'
// token that ends decl, or -1 if decl has no such token (e.g. it is a
// function_definition with a body instead).
func findTerminatorSemicolon(decl *sitter.Node) int {
	for i := int(decl.ChildCount()) - 1; i >= 0; i-- {
		child := decl.Child(i)
		if child.Type() == ";" {
			return int(child.StartByte())
		}
	}
	return -1
}

// InsertQualifierBeforeTerminator parses source, locates the declaration
// covering the 1-indexed line, and inserts "qualifier " immediately before
// its terminating semicolon. It fails if no declaration covers that line or
// the declaration has no semicolon terminator (e.g. it is a definition with
// a body), matching the precondition that a qualifier can only be added to
// a declaration statement.
func (e *Editor) InsertQualifierBeforeTerminator(ctx context.Context, source []byte, line int, qualifier string) ([]byte, error) {
	root, err := e.parse(ctx, source)
	if err != nil {
		return nil, err
	}

	decl := findDeclarationAtLine(root, line)
	if decl == nil {
		return nil, levelerrors.New(levelerrors.PreconditionMismatch, "no declaration found at target line", nil)
	}

	pos := findTerminatorSemicolon(decl)
	if pos < 0 {
		return nil, levelerrors.New(levelerrors.PreconditionMismatch, "declaration has no semicolon terminator", nil)
	}

	insertion := qualifierInsertionText(source, pos, qualifier)
	out := make([]byte, 0, len(source)+len(insertion))
	out = append(out, source[:pos]...)
	out = append(out, insertion...)
	out = append(out, source[pos:]...)
	return out, nil
}

// qualifierInsertionText builds the text to splice in immediately before
// pos: a leading space only if pos isn't already preceded by whitespace,
// then the qualifier, then a trailing space.
func qualifierInsertionText(source []byte, pos int, qualifier string) string {
	if pos > 0 && isSpaceByte(source[pos-1]) {
		return qualifier + " "
	}
	return " " + qualifier + " "
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t'
}

// RemoveQualifier parses source, locates the declaration covering the
// 1-indexed line, and removes the first standalone occurrence of qualifier
// (plus one adjoining space) within that declaration's text. It fails if
// the declaration is not found or does not contain the qualifier as a
// whole word.
func (e *Editor) RemoveQualifier(ctx context.Context, source []byte, line int, qualifier string) ([]byte, error) {
	root, err := e.parse(ctx, source)
	if err != nil {
		return nil, err
	}

	decl := findDeclarationAtLine(root, line)
	if decl == nil {
		return nil, levelerrors.New(levelerrors.PreconditionMismatch, "no declaration found at target line", nil)
	}

	start, end := int(decl.StartByte()), int(decl.EndByte())
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(qualifier) + `\b\s?`)
	loc := re.FindIndex(source[start:end])
	if loc == nil {
		return nil, levelerrors.New(levelerrors.PreconditionMismatch, "qualifier not present on declaration", nil)
	}

	removeStart, removeEnd := start+loc[0], start+loc[1]
	out := make([]byte, 0, len(source)-(removeEnd-removeStart))
	out = append(out, source[:removeStart]...)
	out = append(out, source[removeEnd:]...)
	return out, nil
}

// FindDeclarationLine locates the declaration covering the 1-indexed line
// and returns its byte span plus whether it has a semicolon terminator, so
// a refactoring can check its precondition against the declaration's
// actual text (e.g. whether a qualifier is already present) before
// constructing a mutation.
func (e *Editor) FindDeclarationLine(ctx context.Context, source []byte, line int) (start, end int, hasSemicolon bool, err error) {
	root, err := e.parse(ctx, source)
	if err != nil {
		return 0, 0, false, err
	}
	decl := findDeclarationAtLine(root, line)
	if decl == nil {
		return 0, 0, false, levelerrors.New(levelerrors.PreconditionMismatch, "no declaration found at target line", nil)
	}
	return int(decl.StartByte()), int(decl.EndByte()), findTerminatorSemicolon(decl) >= 0, nil
}
