package refactor

import "regexp"

// qualifierWordRe builds a whole-word matcher for qualifier, used to check
// a declaration's raw text for the qualifier's presence or absence
// independent of the symbol table's (possibly stale) view.
func qualifierWordRe(qualifier string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(qualifier) + `\b`)
}

// semanticQualifiers are qualifiers whose presence is semantically visible
// but whose effect should still be optimization-invariant; changes to them
// are validated at full optimization (asm_o3).
var semanticQualifiers = map[string]bool{
	"const":     true,
	"noexcept":  true,
	"constexpr": true,
	"inline":    true,
}

// nonSemanticQualifiers have no effect on generated code at any
// optimization level; changes to them are validated unoptimized (asm_o0).
var nonSemanticQualifiers = map[string]bool{
	"override":       true,
	"final":          true,
	"static":         true,
	"virtual":        true,
	"[[nodiscard]]":  true,
	"[[maybe_unused]]": true,
}

// validatorFor picks the validator id a qualifier change should be judged
// by, per the classification above. Qualifiers outside either set (none
// exist among the reference refactorings' vocabulary) default to asm_o3,
// the conservative choice.
func validatorFor(qualifier string) string {
	if nonSemanticQualifiers[qualifier] {
		return "asm_o0"
	}
	return "asm_o3"
}
