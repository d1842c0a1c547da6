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

// Clang drives clang/clang++ to produce Intel-syntax assembly.
type Clang struct {
	ExecutablePath string
	runner         *process.Runner
	logger         *logging.Logger
}

// NewClang creates a Clang variant. executablePath defaults to "clang++"
// on PATH when empty.
func NewClang(executablePath string, logger *logging.Logger) *Clang {
	if executablePath == "" {
		executablePath = "clang++"
	}
	return &Clang{
		ExecutablePath: executablePath,
		runner:         process.NewRunner(5 * time.Minute),
		logger:         logger,
	}
}

func (c *Clang) ID() string   { return "clang" }
func (c *Clang) Name() string { return "Clang / LLVM" }

// GetOptimizationFlags maps 0..3 onto clang's -O0..-O3 directly; clang has
// a flag for every level so no level needs remapping.
func (c *Clang) GetOptimizationFlags(level int) []string {
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

func (c *Clang) CompileFile(ctx context.Context, source string, optimizationLevel int) (*Output, error) {
	dir := filepath.Dir(source)
	preludePath, err := writePreludeAlongside(dir)
	if err != nil {
		return nil, err
	}

	outPath := strings.TrimSuffix(source, filepath.Ext(source)) + ".levelup.s"
	defer os.Remove(outPath)

	argv := append([]string{c.ExecutablePath, "-S", "-masm=intel", "-std=c++17"},
		c.GetOptimizationFlags(optimizationLevel)...)
	argv = append(argv, "-include", preludePath, source, "-o", outPath)

	logOrNil(c.logger, "Compiling with clang", map[string]interface{}{"source": source, "level": optimizationLevel})

	stdout, stderr, ok, err := runCompiler(ctx, c.runner, dir, argv...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Output{SourcePath: source, Diagnostics: trimANSI(stdout + "\n" + stderr)}, nil
	}

	asm, err := os.ReadFile(outPath)
	if err != nil {
		return nil, levelerrors.New(levelerrors.InternalError, "failed to read clang assembly output", err)
	}
	return &Output{SourcePath: source, AsmText: string(asm), Diagnostics: trimANSI(stderr)}, nil
}
