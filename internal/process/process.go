// Package process is a thin wrapper around external process invocation,
// giving every subprocess-driven component (git, compiler, symbol
// extractor) a single place that handles timeouts, output capture, and a
// standardized failure kind.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	levelerrors "levelup/internal/errors"
)

// Result carries everything a caller needs after a subprocess exits
// successfully (exit code 0).
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes external commands synchronously with a bounded timeout.
// It never touches the filesystem itself; callers own working directories.
type Runner struct {
	defaultTimeout time.Duration
}

// NewRunner creates a Runner. defaultTimeout is used when Run is called
// without an explicit deadline in the context.
func NewRunner(defaultTimeout time.Duration) *Runner {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Minute
	}
	return &Runner{defaultTimeout: defaultTimeout}
}

// Run executes argv[0] with argv[1:] as arguments in dir, with env appended
// to the current process environment (nil to inherit unmodified). If ctx
// carries no deadline, the Runner's default timeout is applied.
//
// Two failure kinds are externally distinguishable through the returned
// error's code: levelerrors.Timeout (process was killed after exceeding
// its deadline) and levelerrors.SubprocessFailure (spawn failure or
// non-zero exit). All text decoding is lossy UTF-8, matching os/exec's own
// byte-to-string conversion.
func (r *Runner) Run(ctx context.Context, dir string, env []string, argv ...string) (*Result, error) {
	if len(argv) == 0 {
		return nil, levelerrors.New(levelerrors.InvariantViolation, "process.Run called with empty argv", nil)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.defaultTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return nil, levelerrors.New(levelerrors.Timeout,
			fmt.Sprintf("%s timed out", argv[0]), err).WithDetails(map[string]interface{}{
			"argv":   argv,
			"stderr": stderr.String(),
		})
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, levelerrors.New(levelerrors.SubprocessFailure,
				fmt.Sprintf("%s exited with status %d", argv[0], exitErr.ExitCode()), err).WithDetails(map[string]interface{}{
				"argv":     argv,
				"exitCode": exitErr.ExitCode(),
				"stdout":   stdout.String(),
				"stderr":   stderr.String(),
			})
		}
		// Spawn failure: binary missing, cwd invalid, etc.
		return nil, levelerrors.New(levelerrors.SubprocessFailure,
			fmt.Sprintf("failed to start %s", argv[0]), err).WithDetails(map[string]interface{}{
			"argv": argv,
		})
	}

	return &Result{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
