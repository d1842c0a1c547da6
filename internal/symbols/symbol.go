// Package symbols provides the symbol table: a queryable index of C/C++
// symbols extracted from a repository by an external documentation-style
// parser (Doxygen, run with macro expansion disabled so the extractor
// reads source as written).
package symbols

import "strings"

// Kind identifies the category of a Symbol.
type Kind string

const (
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindTypedef   Kind = "typedef"
	KindVariable  Kind = "variable"
	KindNamespace Kind = "namespace"
)

// Symbol is one entry in the symbol table.
type Symbol struct {
	Kind          Kind
	Name          string // local (unqualified) name
	QualifiedName string // unique within a repository snapshot
	FilePath      string // repo-relative
	StartLine     int
	EndLine       int
	Prototype     string // declaration text as written

	IsMember   bool     // true for class/struct member functions
	Qualifiers []string // qualifier tokens parsed from Prototype, e.g. "const", "virtual"
}

// HasQualifier reports whether q appears in the symbol's parsed qualifier
// set, e.g. "const", "virtual", "override", "inline".
func (s *Symbol) HasQualifier(q string) bool {
	for _, have := range s.Qualifiers {
		if have == q {
			return true
		}
	}
	return false
}

// knownQualifiers lists every qualifier token the reference refactorings
// care about. parsePrototypeQualifiers only ever reports membership from
// this set so callers get a stable, small vocabulary regardless of
// whatever free-form text Doxygen hands back in a prototype string.
var knownQualifiers = []string{
	"const", "noexcept", "constexpr", "inline",
	"override", "final", "static", "virtual",
	"[[nodiscard]]", "[[maybe_unused]]",
}

// parsePrototypeQualifiers scans prototype text for any of the known
// qualifier tokens, used to populate Symbol.Qualifiers during extraction.
func parsePrototypeQualifiers(prototype string) []string {
	var found []string
	for _, q := range knownQualifiers {
		if strings.Contains(prototype, q) {
			found = append(found, q)
		}
	}
	return found
}
