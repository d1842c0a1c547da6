// Package engine is the refactoring engine (mod processor): the
// orchestrator that, given a request and a repository, prepares a work
// branch, loads the symbol index, iterates a mod's stream of refactorings,
// validates and keeps or rolls back each one, and finalizes by
// squash-merging accepted commits onto the work branch.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"levelup/internal/cache"
	"levelup/internal/compiler"
	levelerrors "levelup/internal/errors"
	"levelup/internal/logging"
	"levelup/internal/mod"
	"levelup/internal/refactor"
	"levelup/internal/request"
	"levelup/internal/symbols"
	"levelup/internal/validator"
	"levelup/internal/worktree"
)

// RepoConfig is everything the engine needs to know about a repository to
// process a request against it.
type RepoConfig struct {
	RemoteURL    string
	LocalPath    string
	PostCheckout string
	CompilerID   string // which compiler.Variant to compile with; defaults to "clang"
}

// Engine holds the closed registries of compilers, validators,
// refactorings, and mods, plus the symbol extractor and assembly cache
// shared across requests. Cache may be nil, in which case every
// compilation runs for real; tests that don't care about cache reuse
// construct an Engine without one.
type Engine struct {
	Compilers    *compiler.Registry
	Validators   *validator.Registry
	Refactorings *refactor.Registry
	Mods         *mod.Registry
	Extractor    *symbols.Extractor
	Cache        *cache.AssemblyCache
	Logger       *logging.Logger
}

// NewEngine constructs an Engine from its registries.
func NewEngine(compilers *compiler.Registry, validators *validator.Registry, refactorings *refactor.Registry, mods *mod.Registry, extractor *symbols.Extractor, asmCache *cache.AssemblyCache, logger *logging.Logger) *Engine {
	return &Engine{
		Compilers:    compilers,
		Validators:   validators,
		Refactorings: refactorings,
		Mods:         mods,
		Extractor:    extractor,
		Cache:        asmCache,
		Logger:       logger,
	}
}

// outcome accumulates one request's per-commit bookkeeping across the
// refactoring loop.
type outcome struct {
	accepted          []string
	rejected          []string
	validationResults []request.ValidationResult
	attempted         bool
}

// Process runs one request's full lifecycle to completion, returning its
// final Result. Process itself never returns a Go error for anything
// localizable to a single refactoring or commit — those are folded into
// the Result's status and message. A returned error means repository
// corruption or an invariant violation that the caller should surface
// verbatim; Process has already attempted best-effort cleanup before
// returning one.
func (e *Engine) Process(ctx context.Context, req request.ModRequest, repo RepoConfig) (*request.Result, error) {
	wt := worktree.New(repo.RemoteURL, repo.LocalPath, e.Logger)

	if err := wt.EnsureCloned(ctx); err != nil {
		return nil, levelerrors.New(levelerrors.RepositoryCorruption, "failed to materialize repository", err)
	}
	if err := wt.PrepareWorkBranch(ctx, repo.PostCheckout); err != nil {
		return nil, levelerrors.New(levelerrors.RepositoryCorruption, "failed to prepare work branch", err)
	}

	table := symbols.NewTable(repo.LocalPath, e.Extractor)
	if err := table.LoadFromDoxygen(ctx); err != nil {
		return nil, levelerrors.New(levelerrors.RepositoryCorruption, "failed to load symbol index", err)
	}

	atomicBranch := worktree.AtomicBranchName(req.ID)
	if err := wt.CreateAtomicBranch(ctx, worktree.WorkBranch, atomicBranch); err != nil {
		return nil, levelerrors.New(levelerrors.RepositoryCorruption, "failed to create atomic branch", err)
	}

	compilerVariant, err := e.compilerFor(repo)
	if err != nil {
		e.abort(ctx, wt, atomicBranch)
		return nil, err
	}

	var out outcome
	switch req.Source {
	case request.SourceBuiltin:
		out, err = e.runBuiltin(ctx, req, wt, table, compilerVariant)
	case request.SourceCommit:
		out, err = e.runCommit(ctx, req, wt, table, compilerVariant)
	default:
		err = levelerrors.New(levelerrors.InvalidRequest, "unknown request source type: "+string(req.Source), nil)
	}
	if err != nil {
		e.abort(ctx, wt, atomicBranch)
		return nil, err
	}

	if err := e.finalize(ctx, wt, atomicBranch, out); err != nil {
		return nil, err
	}

	return e.buildResult(req.ID, out), nil
}

// compilerFor resolves which compiler.Variant a repo should build with,
// defaulting to clang.
func (e *Engine) compilerFor(repo RepoConfig) (compiler.Variant, error) {
	id := repo.CompilerID
	if id == "" {
		id = "clang"
	}
	return e.Compilers.Get(id)
}

// abort performs the best-effort cleanup the error-handling design
// requires on repository corruption: return to the work branch and force
// delete the atomic branch.
func (e *Engine) abort(ctx context.Context, wt *worktree.Worktree, atomicBranch string) {
	_ = wt.CheckoutBranch(ctx, worktree.WorkBranch, false)
	_ = wt.DeleteBranch(ctx, atomicBranch, true)
}

// runBuiltin generates the mod's step stream and applies, validates, and
// keeps or rolls back each one in order.
func (e *Engine) runBuiltin(ctx context.Context, req request.ModRequest, wt *worktree.Worktree, table *symbols.Table, cv compiler.Variant) (outcome, error) {
	var out outcome

	m, err := e.Mods.Get(req.ModID)
	if err != nil {
		return out, err
	}
	steps, err := m.Generate(ctx, table)
	if err != nil {
		return out, err
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			// Cancellation observed between refactorings: finalize
			// with whatever has been accepted so far.
			break
		}

		rf, err := e.Refactorings.Get(step.RefactoringID)
		if err != nil {
			return out, err
		}

		commit, err := rf.Apply(ctx, wt, wt.Path, table, step.Args)
		if err != nil {
			if levelerrors.CodeOf(err) == levelerrors.RepositoryCorruption || levelerrors.CodeOf(err) == levelerrors.InvariantViolation {
				return out, err
			}
			// Subprocess failure localized to this refactoring: log
			// and continue, per the recovery rule.
			e.Logger.Warn("refactoring failed, continuing", map[string]interface{}{"refactoring": step.RefactoringID, "error": err.Error()})
			continue
		}
		if commit == nil {
			continue // precondition mismatch: silent skip
		}

		out.attempted = true
		accepted, validationResult, err := e.validateCommit(ctx, wt, table, cv, commit)
		if err != nil {
			return out, err
		}
		out.validationResults = append(out.validationResults, validationResult)
		if accepted {
			out.accepted = append(out.accepted, commit.Message)
		} else {
			out.rejected = append(out.rejected, commit.Message)
		}
	}

	return out, nil
}

// runCommit cherry-picks a user-supplied commit and validates it as a
// single degenerate refactoring, per-translation-unit, using asm_o0.
func (e *Engine) runCommit(ctx context.Context, req request.ModRequest, wt *worktree.Worktree, table *symbols.Table, cv compiler.Variant) (outcome, error) {
	var out outcome

	parent, err := wt.GetCommitHash(ctx, "HEAD")
	if err != nil {
		return out, err
	}
	if err := wt.CherryPick(ctx, req.CommitHash); err != nil {
		// A cherry-pick conflict is a rejection of this request's one
		// degenerate refactoring, not engine corruption.
		out.attempted = true
		out.rejected = append(out.rejected, req.CommitHash)
		return out, nil
	}
	head, err := wt.GetCommitHash(ctx, "HEAD")
	if err != nil {
		return out, err
	}

	files, err := wt.DiffNames(ctx, parent, head)
	if err != nil {
		return out, err
	}

	out.attempted = true
	v, err := e.Validators.Get("asm_o0")
	if err != nil {
		return out, err
	}

	allPassed := true
	for _, f := range files {
		if !isSourceFile(f) {
			continue
		}
		baseline, candidate, symbolNames, err := e.compileBeforeAfter(ctx, wt, table, cv, v.OptimizationLevel(), parent, f)
		if err != nil {
			return out, err
		}
		passed := baseline != "" && candidate != "" && v.Validate(baseline, candidate, symbolNames)
		out.validationResults = append(out.validationResults, request.ValidationResult{FilePath: f, Passed: passed})
		if !passed {
			allPassed = false
		}
	}

	label := "commit " + req.CommitHash

	if allPassed {
		out.accepted = append(out.accepted, label)
	} else {
		if err := wt.ResetHard(ctx, parent); err != nil {
			return out, levelerrors.New(levelerrors.RepositoryCorruption, "failed to roll back rejected cherry-pick", err)
		}
		out.rejected = append(out.rejected, label)
	}
	return out, nil
}

// validateCommit compiles a commit's baseline and candidate assembly and
// runs the named validator, rolling the commit back on rejection.
func (e *Engine) validateCommit(ctx context.Context, wt *worktree.Worktree, table *symbols.Table, cv compiler.Variant, commit *refactor.GitCommit) (accepted bool, vr request.ValidationResult, err error) {
	v, err := e.Validators.Get(commit.ValidatorName)
	if err != nil {
		return false, vr, err
	}

	baseline, candidate, symbolNames, err := e.compileBeforeAfter(ctx, wt, table, cv, v.OptimizationLevel(), commit.Hash+"~1", commit.FilePath)
	if err != nil {
		return false, vr, err
	}

	passed := baseline != "" && candidate != "" && v.Validate(baseline, candidate, symbolNames)
	vr = request.ValidationResult{FilePath: commit.FilePath, Passed: passed}

	if !passed {
		if err := commit.Rollback(ctx); err != nil {
			return false, vr, levelerrors.New(levelerrors.RepositoryCorruption, "failed to roll back rejected commit", err)
		}
		table.InvalidateFile(commit.FilePath)
	}
	return passed, vr, nil
}

// compileBeforeAfter materializes a file's content at beforeRef, compiles
// it, then restores the file from the working tree's current HEAD
// (assumed to already be the candidate revision) and compiles that too,
// returning both assembly texts plus the symbol names known for the file
// (used for normalization). Each compilation is first looked up in the
// assembly cache by content hash, optimization level, and compiler id.
func (e *Engine) compileBeforeAfter(ctx context.Context, wt *worktree.Worktree, table *symbols.Table, cv compiler.Variant, level int, beforeRef, path string) (beforeAsm, afterAsm string, symbolNames []string, err error) {
	absPath := filepath.Join(wt.Path, path)

	beforeContent, err := wt.ShowFile(ctx, beforeRef, path)
	if err != nil {
		return "", "", nil, err
	}
	if err := writeFile(absPath, beforeContent); err != nil {
		return "", "", nil, err
	}
	beforeOut, err := e.compileCached(ctx, cv, level, beforeContent, absPath)
	if err != nil {
		return "", "", nil, err
	}

	if err := wt.CheckoutFile(ctx, path); err != nil {
		return "", "", nil, err
	}
	afterContent, err := os.ReadFile(absPath)
	if err != nil {
		return "", "", nil, levelerrors.New(levelerrors.SubprocessFailure, "failed to read candidate content for compilation", err)
	}
	afterOut, err := e.compileCached(ctx, cv, level, string(afterContent), absPath)
	if err != nil {
		return "", "", nil, err
	}

	syms, _ := table.GetSymbolsInFile(ctx, path, false)
	names := make([]string, 0, len(syms))
	for _, s := range syms {
		names = append(names, s.Name, s.QualifiedName)
	}

	return beforeOut, afterOut, names, nil
}

// compileCached compiles the file at absPath, consulting the assembly
// cache first by (content hash, optimization level, compiler id) and
// populating it on a miss. A nil Cache always compiles.
func (e *Engine) compileCached(ctx context.Context, cv compiler.Variant, level int, content, absPath string) (string, error) {
	if e.Cache == nil {
		out, err := cv.CompileFile(ctx, absPath, level)
		if err != nil {
			return "", err
		}
		return out.AsmText, nil
	}

	hash := cache.SourceHash(content)
	if asm, hit, err := e.Cache.Get(hash, level, cv.ID()); err == nil && hit {
		return asm, nil
	}

	out, err := cv.CompileFile(ctx, absPath, level)
	if err != nil {
		return "", err
	}

	if err := e.Cache.Put(hash, level, cv.ID(), out.AsmText, time.Now().UTC().Format(time.RFC3339)); err != nil {
		e.Logger.Warn("failed to populate assembly cache", map[string]interface{}{"error": err.Error()})
	}
	return out.AsmText, nil
}

// finalize squash-merges accepted commits onto the work branch and pushes,
// or discards the atomic branch when nothing was accepted.
func (e *Engine) finalize(ctx context.Context, wt *worktree.Worktree, atomicBranch string, out outcome) error {
	if len(out.accepted) > 0 {
		if err := wt.SquashAndRebase(ctx, atomicBranch, worktree.WorkBranch); err != nil {
			return levelerrors.New(levelerrors.RepositoryCorruption, "failed to squash accepted commits", err)
		}
		if err := wt.DeleteBranch(ctx, atomicBranch, true); err != nil {
			e.Logger.Warn("failed to delete atomic branch after squash", map[string]interface{}{"branch": atomicBranch, "error": err.Error()})
		}
		if err := wt.Push(ctx, worktree.WorkBranch); err != nil {
			e.Logger.Warn("push failed, accepted commits remain local", map[string]interface{}{"error": err.Error()})
		}
		return nil
	}

	if err := wt.CheckoutBranch(ctx, worktree.WorkBranch, false); err != nil {
		return levelerrors.New(levelerrors.RepositoryCorruption, "failed to return to work branch", err)
	}
	if err := wt.DeleteBranch(ctx, atomicBranch, true); err != nil {
		return levelerrors.New(levelerrors.RepositoryCorruption, "failed to delete empty atomic branch", err)
	}
	return nil
}

// buildResult derives the final Result status from the accumulated
// outcome, per the status-derivation rule: success if nothing was
// rejected and something was accepted; partial if both; failed if nothing
// was accepted but something was attempted; failed (empty) if nothing was
// ever attempted.
func (e *Engine) buildResult(requestID string, out outcome) *request.Result {
	var status request.Status
	var message string

	switch {
	case len(out.accepted) > 0 && len(out.rejected) == 0:
		status = request.StatusSuccess
		message = "all refactorings accepted"
	case len(out.accepted) > 0 && len(out.rejected) > 0:
		status = request.StatusPartial
		message = "some refactorings accepted, some rejected"
	default:
		status = request.StatusFailed
		if !out.attempted {
			message = "no applicable refactorings"
		} else {
			message = "all refactorings rejected"
		}
	}

	return &request.Result{
		RequestID:         requestID,
		Status:            status,
		Message:           message,
		Timestamp:         time.Now(),
		AcceptedCommits:   out.accepted,
		RejectedCommits:   out.rejected,
		ValidationResults: out.validationResults,
	}
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, "failed to write baseline content for compilation", err)
	}
	return nil
}

func isSourceFile(path string) bool {
	for _, ext := range []string{".c", ".cc", ".cpp", ".cxx", ".h", ".hpp", ".hxx"} {
		if len(path) >= len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}
