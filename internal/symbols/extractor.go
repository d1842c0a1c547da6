package symbols

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	levelerrors "levelup/internal/errors"
	"levelup/internal/logging"
	"levelup/internal/process"
)

// OutputSubdir is the extractor's fixed output location, relative to the
// repository root.
const OutputSubdir = "doxygen_output/xml_unexpanded"

// Extractor invokes an external Doxygen binary against a repository and
// parses the resulting XML into Symbol values. Macro expansion is
// disabled so the tool reports source as written rather than as
// preprocessed.
type Extractor struct {
	DoxygenPath string
	runner      *process.Runner
	logger      *logging.Logger
}

// NewExtractor creates an Extractor. doxygenPath defaults to "doxygen" on
// PATH when empty.
func NewExtractor(doxygenPath string, logger *logging.Logger) *Extractor {
	if doxygenPath == "" {
		doxygenPath = "doxygen"
	}
	return &Extractor{
		DoxygenPath: doxygenPath,
		runner:      process.NewRunner(30 * time.Minute),
		logger:      logger,
	}
}

// outputDir returns the absolute path of the extractor's XML output
// directory for repoPath.
func outputDir(repoPath string) string {
	return filepath.Join(repoPath, OutputSubdir)
}

// IsStale reports whether the extractor's output directory is missing or
// empty, meaning it must be (re)generated before the symbol table can be
// populated.
func IsStale(repoPath string) bool {
	entries, err := os.ReadDir(outputDir(repoPath))
	if err != nil {
		return true
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".xml") {
			return false
		}
	}
	return true
}

// doxyfileTemplate is a minimal Doxygen configuration: macro expansion
// off, XML-only output, recursive scan of the whole repository.
const doxyfileTemplate = `
PROJECT_NAME           = levelup
OUTPUT_DIRECTORY       = %s
INPUT                  = %s
RECURSIVE              = YES
GENERATE_HTML          = NO
GENERATE_LATEX         = NO
GENERATE_XML           = YES
XML_OUTPUT             = %s
MACRO_EXPANSION        = NO
ENABLE_PREPROCESSING   = NO
EXTRACT_ALL            = YES
EXTRACT_PRIVATE        = YES
EXTRACT_STATIC         = YES
QUIET                  = YES
WARN_IF_UNDOCUMENTED   = NO
`

// Run invokes Doxygen against repoPath, regenerating OutputSubdir.
func (e *Extractor) Run(ctx context.Context, repoPath string) error {
	doxyfile, err := os.CreateTemp("", "levelup-doxyfile-*")
	if err != nil {
		return levelerrors.New(levelerrors.InternalError, "failed to create temporary Doxyfile", err)
	}
	defer os.Remove(doxyfile.Name())

	content := fmt.Sprintf(doxyfileTemplate, repoPath, repoPath, OutputSubdir)
	if _, err := doxyfile.WriteString(content); err != nil {
		doxyfile.Close()
		return levelerrors.New(levelerrors.InternalError, "failed to write temporary Doxyfile", err)
	}
	doxyfile.Close()

	e.logger.Info("Running symbol extractor", map[string]interface{}{"repo": repoPath})
	if _, err := e.runner.Run(ctx, repoPath, nil, e.DoxygenPath, doxyfile.Name()); err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, "doxygen extraction failed", err)
	}
	return nil
}

// EnsureFresh runs the extractor if its output is stale or missing.
func (e *Extractor) EnsureFresh(ctx context.Context, repoPath string) error {
	if !IsStale(repoPath) {
		return nil
	}
	return e.Run(ctx, repoPath)
}

// ---- Doxygen compound XML, trimmed to the fields this engine consumes ----

type doxygenFile struct {
	CompoundDefs []compoundDef `xml:"compounddef"`
}

type compoundDef struct {
	Kind         string        `xml:"kind,attr"`
	CompoundName string        `xml:"compoundname"`
	SectionDefs  []sectionDef  `xml:"sectiondef"`
	InnerClasses []innerClass  `xml:"innerclass"`
}

type innerClass struct {
	RefID string `xml:"refid,attr"`
	Name  string `xml:",chardata"`
}

type sectionDef struct {
	MemberDefs []memberDef `xml:"memberdef"`
}

type memberDef struct {
	Kind       string   `xml:"kind,attr"`
	Static     string   `xml:"static,attr"`
	Const      string   `xml:"const,attr"`
	Virt       string   `xml:"virt,attr"`
	Name       string   `xml:"name"`
	Definition string   `xml:"definition"`
	ArgsString string   `xml:"argsstring"`
	Location   location `xml:"location"`
}

type location struct {
	File      string `xml:"file,attr"`
	Line      int    `xml:"line,attr"`
	BodyStart int    `xml:"bodystart,attr"`
	BodyEnd   int    `xml:"bodyend,attr"`
}

// memberKindToSymbolKind maps a Doxygen memberdef "kind" attribute onto
// our Kind enum. Members Doxygen emits that have no place in the symbol
// table (enumvalue, define, friend, ...) map to "".
func memberKindToSymbolKind(k string) Kind {
	switch k {
	case "function":
		return KindFunction
	case "variable":
		return KindVariable
	case "typedef":
		return KindTypedef
	case "enum":
		return KindEnum
	default:
		return ""
	}
}

func compoundKindToSymbolKind(k string) Kind {
	switch k {
	case "class":
		return KindClass
	case "struct":
		return KindStruct
	case "namespace":
		return KindNamespace
	default:
		return ""
	}
}

// ParseDirectory parses every *.xml file in {repoPath}/doxygen_output/xml_unexpanded
// (excluding Doxygen's own index.xml) into Symbol values.
func ParseDirectory(repoPath string) ([]Symbol, error) {
	dir := outputDir(repoPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, levelerrors.New(levelerrors.SubprocessFailure, "symbol extractor output missing", err)
	}

	var symbols []Symbol
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".xml") {
			continue
		}
		if name == "index.xml" || name == "Doxyfile.xml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, levelerrors.New(levelerrors.InternalError, fmt.Sprintf("failed to read %s", name), err)
		}

		var doc doxygenFile
		if err := xml.Unmarshal(data, &doc); err != nil {
			// Doxygen emits a handful of non-compound XML files
			// (e.g. *_8h.xml for plain headers with no compound);
			// a parse failure there is not fatal to the whole load.
			continue
		}

		for _, cd := range doc.CompoundDefs {
			symbols = append(symbols, extractFromCompound(cd, repoPath)...)
		}
	}

	return symbols, nil
}

func extractFromCompound(cd compoundDef, repoPath string) []Symbol {
	var out []Symbol

	containerKind := compoundKindToSymbolKind(cd.Kind)
	isMemberContainer := containerKind == KindClass || containerKind == KindStruct

	if containerKind != "" {
		out = append(out, Symbol{
			Kind:          containerKind,
			Name:          localName(cd.CompoundName),
			QualifiedName: cd.CompoundName,
			FilePath:      "",
			Prototype:     cd.CompoundName,
		})
	}

	for _, sec := range cd.SectionDefs {
		for _, m := range sec.MemberDefs {
			kind := memberKindToSymbolKind(m.Kind)
			if kind == "" {
				continue
			}

			prototype := strings.TrimSpace(m.Definition + m.ArgsString + ";")
			qualified := m.Name
			if cd.CompoundName != "" {
				qualified = cd.CompoundName + "::" + m.Name
			}

			qualifiers := parsePrototypeQualifiers(prototype)
			if m.Static == "yes" && !containsStr(qualifiers, "static") {
				qualifiers = append(qualifiers, "static")
			}
			if m.Const == "yes" && !containsStr(qualifiers, "const") {
				qualifiers = append(qualifiers, "const")
			}
			if m.Virt == "virtual" && !containsStr(qualifiers, "virtual") {
				qualifiers = append(qualifiers, "virtual")
			}

			rel, _ := filepath.Rel(repoPath, m.Location.File)
			if strings.HasPrefix(rel, "..") {
				rel = m.Location.File
			}

			out = append(out, Symbol{
				Kind:          kind,
				Name:          m.Name,
				QualifiedName: qualified,
				FilePath:      filepath.ToSlash(rel),
				StartLine:     m.Location.Line,
				EndLine:       endLineOf(m.Location),
				Prototype:     prototype,
				IsMember:      isMemberContainer,
				Qualifiers:    qualifiers,
			})
		}
	}

	return out
}

func endLineOf(loc location) int {
	if loc.BodyEnd > 0 {
		return loc.BodyEnd
	}
	return loc.Line
}

func localName(qualified string) string {
	idx := strings.LastIndex(qualified, "::")
	if idx < 0 {
		return qualified
	}
	return qualified[idx+2:]
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
