// Package worktree owns one on-disk git clone and exposes the git
// primitives the refactoring engine needs: clone/pull, branch
// create/checkout/delete, commit, reset, cherry-pick, squash-rebase, push,
// and single-file checkout. All repositories share one fixed work-branch
// name; configurable work branches are not supported.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	levelerrors "levelup/internal/errors"
	"levelup/internal/logging"
	"levelup/internal/process"
)

// WorkBranch is the fixed branch name every repository uses to accumulate
// accepted, squashed modernization commits.
const WorkBranch = "levelup-work"

// AtomicBranchName returns the ephemeral per-request branch name that
// carries individual accepted commits before they are squashed onto
// WorkBranch.
func AtomicBranchName(requestID string) string {
	return fmt.Sprintf("%s-atomic-%s", WorkBranch, requestID)
}

// Worktree owns the filesystem subtree at Path exclusively; all mutation
// flows through its methods.
type Worktree struct {
	RemoteURL string
	Path      string

	runner *process.Runner
	logger *logging.Logger
}

// New creates a Worktree bound to a clone path. It does not touch the
// filesystem; call EnsureCloned to materialize it.
func New(remoteURL, path string, logger *logging.Logger) *Worktree {
	return &Worktree{
		RemoteURL: remoteURL,
		Path:      path,
		runner:    process.NewRunner(10 * time.Minute),
		logger:    logger,
	}
}

func (w *Worktree) git(ctx context.Context, args ...string) (*process.Result, error) {
	w.logger.Debug("git", map[string]interface{}{"args": args, "path": w.Path})
	return w.runner.Run(ctx, w.Path, nil, append([]string{"git"}, args...)...)
}

// isGitRepository reports whether path is the root of a readable git
// working tree.
func isGitRepository(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && (info.IsDir() || info.Mode().IsRegular())
}

// EnsureCloned clones RemoteURL into Path if no valid repository exists
// there yet; otherwise it is a no-op.
func (w *Worktree) EnsureCloned(ctx context.Context) error {
	if isGitRepository(w.Path) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return levelerrors.New(levelerrors.RepositoryCorruption, "failed to create workspace directory", err)
	}

	runner := process.NewRunner(10 * time.Minute)
	res, err := runner.Run(ctx, filepath.Dir(w.Path), nil, "git", "clone", w.RemoteURL, w.Path)
	if err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, "clone failed", err)
	}
	w.logger.Info("Cloned repository", map[string]interface{}{"remote": w.RemoteURL, "path": w.Path, "stdout": res.Stdout})
	return nil
}

// Pull fast-forwards the current branch from its remote. Failure is
// tolerated: a disconnected operator can keep refactoring a local clone.
func (w *Worktree) Pull(ctx context.Context) error {
	if _, err := w.git(ctx, "pull", "--ff-only"); err != nil {
		w.logger.Warn("Pull failed, continuing with local state", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return nil
}

// PrepareWorkBranch checks out WorkBranch, creating it from the default
// branch if absent, resets it to a clean state, and runs postCheckout (if
// non-empty) through a shell. A postCheckout failure aborts the request.
func (w *Worktree) PrepareWorkBranch(ctx context.Context, postCheckout string) error {
	exists, err := w.branchExists(ctx, WorkBranch)
	if err != nil {
		return err
	}

	if exists {
		if err := w.CheckoutBranch(ctx, WorkBranch, false); err != nil {
			return err
		}
	} else {
		defaultBranch, err := w.defaultBranch(ctx)
		if err != nil {
			return err
		}
		if err := w.CheckoutBranch(ctx, defaultBranch, false); err != nil {
			return err
		}
		if err := w.CheckoutBranch(ctx, WorkBranch, true); err != nil {
			return err
		}
	}

	if err := w.ResetHard(ctx, "HEAD"); err != nil {
		return err
	}

	if strings.TrimSpace(postCheckout) == "" {
		return nil
	}

	runner := process.NewRunner(10 * time.Minute)
	if _, err := runner.Run(ctx, w.Path, nil, "sh", "-c", postCheckout); err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, "post-checkout command failed", err)
	}
	return nil
}

func (w *Worktree) defaultBranch(ctx context.Context) (string, error) {
	res, err := w.git(ctx, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		ref := strings.TrimSpace(res.Stdout)
		return strings.TrimPrefix(ref, "refs/remotes/origin/"), nil
	}
	// No remote HEAD (e.g. a bare local fixture repo): use a local "main"
	// or "master" branch when one exists, else the branch currently
	// checked out.
	for _, name := range []string{"main", "master"} {
		if exists, err := w.branchExists(ctx, name); err == nil && exists {
			return name, nil
		}
	}
	return w.GetCurrentBranch(ctx)
}

func (w *Worktree) branchExists(ctx context.Context, name string) (bool, error) {
	res, err := w.git(ctx, "branch", "--list", name)
	if err != nil {
		return false, levelerrors.New(levelerrors.SubprocessFailure, "failed to list branches", err)
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// CheckoutBranch checks out name, creating it from the current HEAD first
// when create is true.
func (w *Worktree) CheckoutBranch(ctx context.Context, name string, create bool) error {
	args := []string{"checkout"}
	if create {
		args = append(args, "-b")
	}
	args = append(args, name)
	if _, err := w.git(ctx, args...); err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, fmt.Sprintf("checkout of %s failed", name), err)
	}
	return nil
}

// CreateAtomicBranch creates name from base and checks it out.
func (w *Worktree) CreateAtomicBranch(ctx context.Context, base, name string) error {
	if err := w.CheckoutBranch(ctx, base, false); err != nil {
		return err
	}
	return w.CheckoutBranch(ctx, name, true)
}

// DeleteBranch deletes name, forcing deletion of unmerged commits when
// force is true.
func (w *Worktree) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := w.git(ctx, "branch", flag, name); err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, fmt.Sprintf("failed to delete branch %s", name), err)
	}
	return nil
}

// Commit stages all tracked modifications and commits them. It returns
// false (with no error) if there was nothing to commit.
func (w *Worktree) Commit(ctx context.Context, message string) (bool, error) {
	if _, err := w.git(ctx, "add", "-A"); err != nil {
		return false, levelerrors.New(levelerrors.SubprocessFailure, "git add failed", err)
	}

	diff, err := w.git(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return false, levelerrors.New(levelerrors.SubprocessFailure, "git diff failed", err)
	}
	if strings.TrimSpace(diff.Stdout) == "" {
		return false, nil
	}

	if _, err := w.git(ctx, "commit", "-m", message); err != nil {
		return false, levelerrors.New(levelerrors.SubprocessFailure, "git commit failed", err)
	}
	return true, nil
}

// GetCommitHash resolves ref to a full commit hash.
func (w *Worktree) GetCommitHash(ctx context.Context, ref string) (string, error) {
	res, err := w.git(ctx, "rev-parse", ref)
	if err != nil {
		return "", levelerrors.New(levelerrors.SubprocessFailure, fmt.Sprintf("failed to resolve %s", ref), err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// GetCurrentBranch returns the name of the currently checked-out branch.
func (w *Worktree) GetCurrentBranch(ctx context.Context) (string, error) {
	res, err := w.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", levelerrors.New(levelerrors.SubprocessFailure, "failed to determine current branch", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// CheckoutFile restores path from HEAD, discarding any working-tree edits.
func (w *Worktree) CheckoutFile(ctx context.Context, path string) error {
	if _, err := w.git(ctx, "checkout", "HEAD", "--", path); err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, fmt.Sprintf("failed to checkout %s", path), err)
	}
	return nil
}

// ResetHard discards working-tree and index changes, resetting to ref
// (default "HEAD"). Callers use "{hash}~1" to roll back a single commit.
func (w *Worktree) ResetHard(ctx context.Context, ref string) error {
	if ref == "" {
		ref = "HEAD"
	}
	if _, err := w.git(ctx, "reset", "--hard", ref); err != nil {
		return levelerrors.New(levelerrors.RepositoryCorruption, fmt.Sprintf("reset --hard %s failed", ref), err)
	}
	return nil
}

// CherryPick applies hash onto the current branch.
func (w *Worktree) CherryPick(ctx context.Context, hash string) error {
	if _, err := w.git(ctx, "cherry-pick", hash); err != nil {
		// Leave no partially-applied cherry-pick behind.
		_, _ = w.git(ctx, "cherry-pick", "--abort")
		return levelerrors.New(levelerrors.SubprocessFailure, fmt.Sprintf("cherry-pick of %s failed", hash), err)
	}
	return nil
}

// SquashAndRebase collapses every commit on atomic since it forked from
// target into a single commit on target, using a generated message.
func (w *Worktree) SquashAndRebase(ctx context.Context, atomic, target string) error {
	mergeBase, err := w.git(ctx, "merge-base", target, atomic)
	if err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, "merge-base lookup failed", err)
	}
	base := strings.TrimSpace(mergeBase.Stdout)

	if err := w.CheckoutBranch(ctx, target, false); err != nil {
		return err
	}

	if _, err := w.git(ctx, "merge", "--squash", atomic); err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, "squash merge failed", err)
	}

	count, err := w.git(ctx, "rev-list", "--count", base+".."+atomic)
	if err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, "failed to count squashed commits", err)
	}
	message := fmt.Sprintf("levelup: squash %s accepted commit(s) from %s", strings.TrimSpace(count.Stdout), atomic)

	if _, err := w.git(ctx, "commit", "-m", message); err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, "squash commit failed", err)
	}
	return nil
}

// ShowFile returns path's content as it existed at ref, without touching
// the working tree. Used by the engine to recover a file's pre-refactoring
// content from a commit's parent rather than snapshotting it beforehand.
func (w *Worktree) ShowFile(ctx context.Context, ref, path string) (string, error) {
	res, err := w.git(ctx, "show", ref+":"+path)
	if err != nil {
		return "", levelerrors.New(levelerrors.SubprocessFailure, fmt.Sprintf("failed to read %s at %s", path, ref), err)
	}
	return res.Stdout, nil
}

// DiffNames returns the paths that differ between from and to.
func (w *Worktree) DiffNames(ctx context.Context, from, to string) ([]string, error) {
	res, err := w.git(ctx, "diff", "--name-only", from, to)
	if err != nil {
		return nil, levelerrors.New(levelerrors.SubprocessFailure, "failed to diff commits", err)
	}
	names := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(names) == 1 && names[0] == "" {
		return nil, nil
	}
	return names, nil
}

// Push pushes branch (or the current branch if empty) to the remote.
func (w *Worktree) Push(ctx context.Context, branch string) error {
	args := []string{"push", "origin"}
	if branch != "" {
		args = append(args, branch)
	}
	if _, err := w.git(ctx, args...); err != nil {
		return levelerrors.New(levelerrors.SubprocessFailure, "push failed", err)
	}
	return nil
}
