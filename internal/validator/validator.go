// Package validator compares two assembly artifacts for functional
// equivalence: extract per-function bodies (from either MASM PROC/ENDP
// blocks or GAS .type/.size blocks, whichever the compiler that produced
// the text uses), normalize away everything considered an acceptable
// difference (symbol/label/data naming, comments, padding, whitespace),
// and require the normalized bodies to match exactly for every function
// present on both sides, skipping a COMDAT function whose body one side
// discarded. If neither syntax yields a single recognizable
// function — unfamiliar assembler output — comparison falls back to the
// same normalization applied to the whole file, so an unrecognized dialect
// degrades to a conservative textual diff instead of a silent pass. The
// comparison is intentionally conservative — in doubt, reject.
package validator

import (
	"regexp"
	"strings"

	levelerrors "levelup/internal/errors"
)

// Validator is one optimization-level variant of the comparison algorithm.
// Both variants share the same algorithm; they differ only in which
// optimization level they are declared to validate, which the engine uses
// to decide what to compile at.
type Validator interface {
	// ID is the stable identifier used at the external API boundary.
	ID() string
	// OptimizationLevel is the level this variant's comparisons assume
	// both artifacts were compiled at.
	OptimizationLevel() int
	// Validate reports whether original and modified are regression-
	// equivalent. symbolNames is the set of mangled/demangled symbol
	// names known for the translation unit, used during normalization.
	Validate(original, modified string, symbolNames []string) bool
}

// O0 validates assembly compiled without optimization; used by default and
// for changes that are source-level cosmetic.
type O0 struct{}

func (O0) ID() string             { return "asm_o0" }
func (O0) OptimizationLevel() int { return 0 }
func (O0) Validate(original, modified string, symbolNames []string) bool {
	return compare(original, modified, symbolNames)
}

// O3 validates assembly compiled at full optimization; used for changes
// whose semantic equivalence must survive the optimizer.
type O3 struct{}

func (O3) ID() string             { return "asm_o3" }
func (O3) OptimizationLevel() int { return 3 }
func (O3) Validate(original, modified string, symbolNames []string) bool {
	return compare(original, modified, symbolNames)
}

// Registry holds the closed set of configured validators, keyed by id.
type Registry struct {
	validators map[string]Validator
}

// NewRegistry builds a Registry from a list of validators.
func NewRegistry(validators ...Validator) *Registry {
	r := &Registry{validators: make(map[string]Validator, len(validators))}
	for _, v := range validators {
		r.validators[v.ID()] = v
	}
	return r
}

// Get looks up a validator by id.
func (r *Registry) Get(id string) (Validator, error) {
	v, ok := r.validators[id]
	if !ok {
		return nil, levelerrors.New(levelerrors.NotFound, "unknown validator: "+id, nil)
	}
	return v, nil
}

// List returns every registered validator's (id, optimization level) pair
// for the "available validators" API endpoint.
func (r *Registry) List() []struct {
	ID    string
	Level int
} {
	out := make([]struct {
		ID    string
		Level int
	}, 0, len(r.validators))
	for _, v := range r.validators {
		out = append(out, struct {
			ID    string
			Level int
		}{ID: v.ID(), Level: v.OptimizationLevel()})
	}
	return out
}

var (
	procLineRe  = regexp.MustCompile(`^([A-Za-z_?$@][\w$?@]*)\s+PROC\b`)
	endpLineRe  = regexp.MustCompile(`^([A-Za-z_?$@][\w$?@]*)\s+ENDP\b`)
	comdatRe    = regexp.MustCompile(`(?i)COMDAT`)
	labelRefRe  = regexp.MustCompile(`\$L[LN]\d+@[\w$]*`)
	numLabelRe  = regexp.MustCompile(`^\s*\$?\d+\s*:`)
	dataRefRe   = regexp.MustCompile(`(?i)\b(OFFSET\s+FLAT:|rip\s*\+\s*)[\w$?@.]+`)
	commentRe   = regexp.MustCompile(`;.*$`)
	blankOnlyRe = regexp.MustCompile(`^\s*$`)
	alignOnlyRe = regexp.MustCompile(`^\s*(ALIGN|ORG|INCLUDELIB)\b`)
	nopOnlyRe   = regexp.MustCompile(`(?i)^\s*nop\s*$`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	// GAS-syntax (clang -S -masm=intel emits GAS directives even with
	// Intel-syntax instructions) function boundaries: a .type directive
	// declaring @function, the entry label it names, and the matching
	// .size directive that closes it.
	gasTypeFuncRe   = regexp.MustCompile(`^\.type\s+([\w.$@]+)\s*,\s*@function\b`)
	gasLabelRe      = regexp.MustCompile(`^([\w.$@]+):`)
	gasSizeRe       = regexp.MustCompile(`^\.size\s+([\w.$@]+)\s*,`)
	gasCommentRe    = regexp.MustCompile(`#.*$`)
	gasLocalLabelRe = regexp.MustCompile(`\.L[\w$.]+`)
)

// funcBlock is one extracted PROC/ENDP function: its declaration line (kept
// to detect COMDAT markers) and its unnormalized body lines.
type funcBlock struct {
	DeclLine string
	Body     []string
}

// extractFunctions scans assembly text for top-level NAME PROC ... NAME ENDP
// blocks, returning a map from symbol name to its declaration line and raw
// (unnormalized) body lines. Nested labels with no matching PROC/ENDP pair
// are not functions. A COMDAT-grouped function's declaration line carries
// the preceding COMDAT directive so callers can identify linker-discardable
// functions.
func extractFunctions(asm string) map[string]funcBlock {
	funcs := make(map[string]funcBlock)
	lines := strings.Split(asm, "\n")

	var currentName, declLine, pendingComdat string
	var body []string
	inFunc := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if comdatRe.MatchString(trimmed) {
			pendingComdat = trimmed
		}

		if !inFunc {
			if m := procLineRe.FindStringSubmatch(trimmed); m != nil {
				currentName = m[1]
				declLine = pendingComdat + " " + trimmed
				body = nil
				inFunc = true
			}
			continue
		}

		if m := endpLineRe.FindStringSubmatch(trimmed); m != nil && m[1] == currentName {
			funcs[currentName] = funcBlock{DeclLine: declLine, Body: body}
			inFunc = false
			currentName = ""
			pendingComdat = ""
			continue
		}

		body = append(body, line)
	}

	return funcs
}

// extractFunctionsGAS scans GAS-syntax assembly — what clang -S emits even
// with -masm=intel — for .type NAME,@function ... .size NAME, blocks,
// returning the same funcBlock shape extractFunctions produces for MASM.
// The entry label between the .type and the first instruction is consumed
// as a boundary marker, not kept in the body.
func extractFunctionsGAS(asm string) map[string]funcBlock {
	funcs := make(map[string]funcBlock)
	lines := strings.Split(asm, "\n")

	var currentName, declLine, pendingComdat string
	var body []string
	inFunc := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if comdatRe.MatchString(trimmed) {
			pendingComdat = trimmed
		}

		if m := gasTypeFuncRe.FindStringSubmatch(trimmed); m != nil {
			currentName = m[1]
			declLine = pendingComdat + " " + trimmed
			body = nil
			inFunc = true
			continue
		}

		if !inFunc {
			continue
		}

		if m := gasLabelRe.FindStringSubmatch(trimmed); m != nil && m[1] == currentName {
			continue
		}

		if m := gasSizeRe.FindStringSubmatch(trimmed); m != nil && m[1] == currentName {
			funcs[currentName] = funcBlock{DeclLine: declLine, Body: body}
			inFunc = false
			currentName = ""
			pendingComdat = ""
			continue
		}

		body = append(body, line)
	}

	return funcs
}

// extractFunctionPair extracts functions from both texts using whichever
// dialect actually produced recognizable blocks: MASM PROC/ENDP first,
// falling back to GAS .type/.size. Both sides are parsed with the same
// dialect, since they were produced by the same compiler invocation.
func extractFunctionPair(original, modified string) (map[string]funcBlock, map[string]funcBlock) {
	origFuncs := extractFunctions(original)
	modFuncs := extractFunctions(modified)
	if len(origFuncs) > 0 || len(modFuncs) > 0 {
		return origFuncs, modFuncs
	}
	return extractFunctionsGAS(original), extractFunctionsGAS(modified)
}

// isDiscardedComdat reports whether a function looks like a COMDAT section
// that the linker discarded: a function declared inside a COMDAT group
// with no instruction lines in its body (only directives and comments, if
// anything).
func isDiscardedComdat(block funcBlock) bool {
	if !comdatRe.MatchString(block.DeclLine) {
		return false
	}
	for _, l := range block.Body {
		t := strings.TrimSpace(l)
		if t == "" || alignOnlyRe.MatchString(t) || strings.HasPrefix(t, ";") || strings.HasPrefix(t, "#") || strings.HasPrefix(t, ".") {
			continue
		}
		return false
	}
	return true
}

// normalizeBody applies the normalization rules from the comparison
// algorithm: blank out symbol/label/data references, strip comments and
// padding-only lines, and collapse whitespace.
func normalizeBody(body []string, symbolNames []string) []string {
	out := make([]string, 0, len(body))
	for _, line := range body {
		l := commentRe.ReplaceAllString(line, "")
		l = gasCommentRe.ReplaceAllString(l, "")

		for _, sym := range symbolNames {
			if sym == "" {
				continue
			}
			l = strings.ReplaceAll(l, sym, "SYMBOL")
		}
		l = labelRefRe.ReplaceAllString(l, "LABEL")
		l = gasLocalLabelRe.ReplaceAllString(l, "LABEL")
		if numLabelRe.MatchString(l) {
			l = numLabelRe.ReplaceAllString(l, "LABEL:")
		}
		l = dataRefRe.ReplaceAllString(l, "DATA")

		l = strings.TrimSpace(l)
		if l == "" || blankOnlyRe.MatchString(l) || alignOnlyRe.MatchString(l) || nopOnlyRe.MatchString(l) {
			continue
		}
		l = whitespaceRe.ReplaceAllString(l, " ")
		out = append(out, l)
	}
	return out
}

// compare implements the full per-call algorithm: extract, pair by symbol,
// normalize, and require every intersected function's normalized body to
// match exactly. If neither MASM nor GAS extraction finds a single
// function on either side, the assembler dialect is one this package does
// not know how to split into functions; comparison falls back to
// normalizing and diffing the whole file so an unfamiliar dialect still
// gets rejected on a real semantic change instead of passing vacuously.
func compare(original, modified string, symbolNames []string) bool {
	origFuncs, modFuncs := extractFunctionPair(original, modified)
	if len(origFuncs) == 0 && len(modFuncs) == 0 {
		return compareWholeFile(original, modified, symbolNames)
	}

	seen := make(map[string]bool)
	for name := range origFuncs {
		seen[name] = true
	}
	for name := range modFuncs {
		seen[name] = true
	}

	for name := range seen {
		origBlock, inOrig := origFuncs[name]
		modBlock, inMod := modFuncs[name]

		if inOrig && inMod {
			// A COMDAT function the linker discarded on either side has
			// no body to compare; skip it.
			if isDiscardedComdat(origBlock) || isDiscardedComdat(modBlock) {
				continue
			}
			if !bodiesEqual(normalizeBody(origBlock.Body, symbolNames), normalizeBody(modBlock.Body, symbolNames)) {
				return false
			}
			continue
		}

		// Present on only one side: acceptable only if it is a
		// discarded COMDAT on the side where it is present.
		if inOrig && !isDiscardedComdat(origBlock) {
			return false
		}
		if inMod && !isDiscardedComdat(modBlock) {
			return false
		}
	}

	return true
}

// compareWholeFile normalizes both texts line-by-line exactly as a
// function body would be normalized and requires the result to match
// exactly. This is the fallback comparison for an assembler dialect with
// no recognizable function boundaries.
func compareWholeFile(original, modified string, symbolNames []string) bool {
	origLines := normalizeBody(strings.Split(original, "\n"), symbolNames)
	modLines := normalizeBody(strings.Split(modified, "\n"), symbolNames)
	return bodiesEqual(origLines, modLines)
}

func bodiesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
