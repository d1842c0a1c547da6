// Package refactor defines atomic, single-commit code transformations: a
// Refactoring checks its preconditions against symbol data and file
// content, mutates one or more files, commits the result, and reports which
// validator should judge the commit along with the symbols it touched and
// a declared confidence. Concrete refactorings are a closed family selected
// by a stable id, the same polymorphism-by-registry pattern the compiler
// and validator packages use.
package refactor

import (
	"context"
	"fmt"

	levelerrors "levelup/internal/errors"
	"levelup/internal/symbols"
	"levelup/internal/worktree"
)

// GitCommit describes a single accepted-or-pending refactoring commit: the
// worktree it lives in, its message and hash, which validator should judge
// it, the symbols it touched, and a declared success probability used by
// the engine's optional batching heuristic.
type GitCommit struct {
	Worktree           *worktree.Worktree
	Message            string
	Hash               string
	ValidatorName      string
	AffectedSymbols    []string
	FilePath           string
	SuccessProbability float64
}

// newGitCommit constructs a GitCommit after a refactoring has just staged
// and committed a change. committed must be true — a refactoring that
// produced no diff must not reach this constructor; it is the
// caller's job to treat "nothing to commit" as a skip (returning a nil
// commit, nil error) rather than calling this.
func newGitCommit(ctx context.Context, wt *worktree.Worktree, committed bool, message, validatorName, filePath string, affected []string, probability float64) (*GitCommit, error) {
	if !committed {
		return nil, levelerrors.New(levelerrors.InvariantViolation, "GitCommit constructed with nothing to commit", nil)
	}
	hash, err := wt.GetCommitHash(ctx, "HEAD")
	if err != nil {
		return nil, err
	}
	return &GitCommit{
		Worktree:           wt,
		Message:            message,
		Hash:               hash,
		ValidatorName:      validatorName,
		AffectedSymbols:    affected,
		FilePath:           filePath,
		SuccessProbability: probability,
	}, nil
}

// Rollback resets the worktree to this commit's parent, undoing it.
func (c *GitCommit) Rollback(ctx context.Context) error {
	return c.Worktree.ResetHard(ctx, c.Hash+"~1")
}

// Refactoring is the atomic-transformation contract. Apply returns (nil,
// nil) when a precondition fails — callers must treat that as a skip, never
// a fault. A non-nil error means something below the precondition check
// failed (file I/O, subprocess failure, git error) and should propagate as
// a per-refactoring rejection without aborting the request.
type Refactoring interface {
	// ID is the stable identifier this refactoring is selected by.
	ID() string
	// Apply performs the transformation named by args against repoPath,
	// using table for precondition checks and invalidating it for any
	// file it mutates.
	Apply(ctx context.Context, wt *worktree.Worktree, repoPath string, table *symbols.Table, args map[string]string) (*GitCommit, error)
}

// Registry holds the closed set of configured refactorings, keyed by id.
type Registry struct {
	refactorings map[string]Refactoring
}

// NewRegistry builds a Registry from a list of refactorings.
func NewRegistry(refactorings ...Refactoring) *Registry {
	r := &Registry{refactorings: make(map[string]Refactoring, len(refactorings))}
	for _, rf := range refactorings {
		r.refactorings[rf.ID()] = rf
	}
	return r
}

// Get looks up a refactoring by id.
func (r *Registry) Get(id string) (Refactoring, error) {
	rf, ok := r.refactorings[id]
	if !ok {
		return nil, levelerrors.New(levelerrors.NotFound, "unknown refactoring: "+id, nil)
	}
	return rf, nil
}

// commitMessage builds the generated message `"{action} {qualifier} on
// {symbol} at {file}:{line}"` every reference refactoring uses.
func commitMessage(action, qualifier, symbolName, filePath string, line int) string {
	return fmt.Sprintf("%s %s on %s at %s:%d", action, qualifier, symbolName, filePath, line)
}
