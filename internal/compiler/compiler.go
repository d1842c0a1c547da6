// Package compiler drives external C/C++ compilers to produce Intel-syntax
// assembly for a single translation unit at a chosen optimization level.
// Compiler variants implement the Variant interface and are selected by a
// stable id string; "clang" and "msvc" are always registered, plus one
// Generic variant per entry an operator adds to compilers.toml.
package compiler

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	levelerrors "levelup/internal/errors"
	"levelup/internal/logging"
	"levelup/internal/process"
)

// PreludeHeader is the project-wide header force-included on every compile
// invocation. It provides LevelUp::unique_ptr<T>, a neutral owning-pointer
// alias some refactorings rely on being available regardless of which
// smart-pointer idiom the target repository otherwise uses.
const PreludeHeader = "LevelUp.h"

const preludeContents = `#pragma once
#include <memory>

namespace LevelUp {
#ifdef LEVELUP_USE_STD_UNIQUE_PTR
template <typename T>
using unique_ptr = std::unique_ptr<T>;
#else
template <typename T>
class unique_ptr {
public:
	explicit unique_ptr(T* p = nullptr) : ptr_(p) {}
	~unique_ptr() { delete ptr_; }
	unique_ptr(const unique_ptr&) = delete;
	unique_ptr& operator=(const unique_ptr&) = delete;
	T* get() const { return ptr_; }
	T* operator->() const { return ptr_; }
	T& operator*() const { return *ptr_; }
private:
	T* ptr_;
};
#endif
}
`

// Output is the result of compiling one translation unit.
type Output struct {
	SourcePath  string
	AsmText     string
	Diagnostics string
}

// Variant is one compiler's driver. Implementations are stateless beyond
// their configured executable path.
type Variant interface {
	// ID is the stable identifier used at the external API boundary.
	ID() string
	// Name is a human-readable display name.
	Name() string
	// CompileFile compiles source at the given optimization level (0..3)
	// and returns Intel-syntax assembly. A compile error is not a Go
	// error: it is reported as an Output with empty AsmText and
	// populated Diagnostics, since callers treat compile failure as a
	// refactoring rejection, not an engine fault.
	CompileFile(ctx context.Context, source string, optimizationLevel int) (*Output, error)
	// GetOptimizationFlags returns the flags this variant maps level
	// onto, for callers (e.g. the validator) that need to describe the
	// compilation a second time.
	GetOptimizationFlags(level int) []string
}

// Registry holds the closed set of configured compiler variants, keyed by
// their stable id.
type Registry struct {
	variants map[string]Variant
}

// NewRegistry builds a Registry from a list of variants.
func NewRegistry(variants ...Variant) *Registry {
	r := &Registry{variants: make(map[string]Variant, len(variants))}
	for _, v := range variants {
		r.variants[v.ID()] = v
	}
	return r
}

// Get looks up a variant by id.
func (r *Registry) Get(id string) (Variant, error) {
	v, ok := r.variants[id]
	if !ok {
		return nil, levelerrors.New(levelerrors.NotFound, "unknown compiler: "+id, nil)
	}
	return v, nil
}

// List returns every registered variant's (id, name) pair, in no
// particular order, for the "available compilers" API endpoint.
func (r *Registry) List() []struct{ ID, Name string } {
	out := make([]struct{ ID, Name string }, 0, len(r.variants))
	for _, v := range r.variants {
		out = append(out, struct{ ID, Name string }{ID: v.ID(), Name: v.Name()})
	}
	return out
}

// writePreludeAlongside materializes the prelude header in dir so a
// force-include flag can reference it by relative name, returning its
// absolute path.
func writePreludeAlongside(dir string) (string, error) {
	path := filepath.Join(dir, PreludeHeader)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(preludeContents), 0o644); err != nil {
		return "", levelerrors.New(levelerrors.InternalError, "failed to write prelude header", err)
	}
	return path, nil
}

// runCompiler is the shared subprocess-invocation plumbing both variants
// use: run argv, and translate a non-zero exit into a rejection-shaped
// Output (empty AsmText, captured diagnostics) rather than a Go error,
// since a compile failure is data the caller acts on, not an engine fault.
// Subprocess spawn failure (missing binary) remains a Go error.
func runCompiler(ctx context.Context, runner *process.Runner, dir string, argv ...string) (stdout, stderr string, ok bool, err error) {
	res, runErr := runner.Run(ctx, dir, nil, argv...)
	if runErr == nil {
		return res.Stdout, res.Stderr, true, nil
	}
	if levelerrors.CodeOf(runErr) == levelerrors.SubprocessFailure {
		if details, isMap := levelerrors.DetailsOf(runErr).(map[string]interface{}); isMap {
			if _, exited := details["exitCode"]; exited {
				// Process ran and exited non-zero: a compile error,
				// not an engine error.
				stdout, _ := details["stdout"].(string)
				stderr, _ := details["stderr"].(string)
				return stdout, stderr, false, nil
			}
		}
	}
	return "", "", false, runErr
}

func logOrNil(logger *logging.Logger, msg string, fields map[string]interface{}) {
	if logger == nil {
		return
	}
	logger.Debug(msg, fields)
}

// trimANSI removes no ANSI escape codes; it only trims surrounding
// whitespace. It is the single seam diagnostics pass through, so a variant
// that emits colorized output has one place to normalize it.
func trimANSI(s string) string {
	return strings.TrimSpace(s)
}
