package compiler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	levelerrors "levelup/internal/errors"
	"levelup/internal/logging"
	"levelup/internal/process"
)

// Generic drives a clang-family compiler binary named by an operator-
// supplied compilers.toml manifest entry, rather than a built-in id. It
// shares Clang's invocation shape (GAS/Intel assembly via -S -masm=intel)
// but takes its executable path, registry id, and any extra flags from the
// manifest entry, so an operator can point LevelUp at a second clang
// install, a cross compiler, or a patched toolchain without a code change.
type Generic struct {
	id             string
	ExecutablePath string
	ExtraFlags     []string
	runner         *process.Runner
	logger         *logging.Logger
}

// NewGenericVariant builds a manifest-defined compiler variant. id becomes
// its registry key; flags are appended to every invocation after the
// optimization flag this variant derives for the requested level.
func NewGenericVariant(id, executablePath string, flags []string, logger *logging.Logger) *Generic {
	return &Generic{
		id:             id,
		ExecutablePath: executablePath,
		ExtraFlags:     flags,
		runner:         process.NewRunner(5 * time.Minute),
		logger:         logger,
	}
}

func (g *Generic) ID() string   { return g.id }
func (g *Generic) Name() string { return "manifest variant: " + g.id }

// GetOptimizationFlags assumes a clang-compatible -Olevel flag set, since
// manifest variants are expected to be clang-family binaries.
func (g *Generic) GetOptimizationFlags(level int) []string {
	switch {
	case level <= 0:
		return []string{"-O0"}
	case level == 1:
		return []string{"-O1"}
	case level == 2:
		return []string{"-O2"}
	default:
		return []string{"-O3"}
	}
}

func (g *Generic) CompileFile(ctx context.Context, source string, optimizationLevel int) (*Output, error) {
	dir := filepath.Dir(source)
	preludePath, err := writePreludeAlongside(dir)
	if err != nil {
		return nil, err
	}

	outPath := strings.TrimSuffix(source, filepath.Ext(source)) + ".levelup.s"
	defer os.Remove(outPath)

	argv := append([]string{g.ExecutablePath, "-S", "-masm=intel", "-std=c++17"},
		g.GetOptimizationFlags(optimizationLevel)...)
	argv = append(argv, g.ExtraFlags...)
	argv = append(argv, "-include", preludePath, source, "-o", outPath)

	logOrNil(g.logger, "Compiling with manifest variant", map[string]interface{}{"id": g.id, "source": source, "level": optimizationLevel})

	stdout, stderr, ok, err := runCompiler(ctx, g.runner, dir, argv...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Output{SourcePath: source, Diagnostics: trimANSI(stdout + "\n" + stderr)}, nil
	}

	asm, err := os.ReadFile(outPath)
	if err != nil {
		return nil, levelerrors.New(levelerrors.InternalError, "failed to read manifest-variant assembly output", err)
	}
	return &Output{SourcePath: source, AsmText: string(asm), Diagnostics: trimANSI(stderr)}, nil
}
