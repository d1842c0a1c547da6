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

// MSVC drives cl.exe to produce Intel-syntax (MASM) assembly via /FA.
type MSVC struct {
	ExecutablePath string
	runner         *process.Runner
	logger         *logging.Logger
}

// NewMSVC creates an MSVC variant. executablePath defaults to "cl.exe" on
// PATH when empty.
func NewMSVC(executablePath string, logger *logging.Logger) *MSVC {
	if executablePath == "" {
		executablePath = "cl.exe"
	}
	return &MSVC{
		ExecutablePath: executablePath,
		runner:         process.NewRunner(5 * time.Minute),
		logger:         logger,
	}
}

func (m *MSVC) ID() string   { return "msvc" }
func (m *MSVC) Name() string { return "Microsoft Visual C++" }

// GetOptimizationFlags maps level 0 to /Od and level 3 to /Ox; cl.exe has
// no direct analog for levels 1 and 2, so per the driver contract both
// fall back to /O2.
func (m *MSVC) GetOptimizationFlags(level int) []string {
	switch {
	case level <= 0:
		return []string{"/Od"}
	case level >= 3:
		return []string{"/Ox"}
	default:
		return []string{"/O2"}
	}
}

func (m *MSVC) CompileFile(ctx context.Context, source string, optimizationLevel int) (*Output, error) {
	dir := filepath.Dir(source)
	preludePath, err := writePreludeAlongside(dir)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	asmPath := filepath.Join(dir, base+".levelup.asm")
	objPath := filepath.Join(dir, base+".levelup.obj")
	defer os.Remove(asmPath)
	defer os.Remove(objPath)

	argv := append([]string{m.ExecutablePath, "/c", "/EHsc", "/FA", "/Fa" + asmPath, "/Fo" + objPath},
		m.GetOptimizationFlags(optimizationLevel)...)
	argv = append(argv, "/FI", preludePath, source)

	logOrNil(m.logger, "Compiling with msvc", map[string]interface{}{"source": source, "level": optimizationLevel})

	stdout, stderr, ok, err := runCompiler(ctx, m.runner, dir, argv...)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Output{SourcePath: source, Diagnostics: trimANSI(stdout + "\n" + stderr)}, nil
	}

	asm, err := os.ReadFile(asmPath)
	if err != nil {
		return nil, levelerrors.New(levelerrors.InternalError, "failed to read msvc assembly output", err)
	}
	return &Output{SourcePath: source, AsmText: string(asm), Diagnostics: trimANSI(stdout)}, nil
}
