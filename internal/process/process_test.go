package process

import (
	"context"
	"strings"
	"testing"
	"time"

	levelerrors "levelup/internal/errors"
)

func TestRun_Success(t *testing.T) {
	r := NewRunner(5 * time.Second)
	res, err := r.Run(context.Background(), "", nil, "echo", "hello")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(res.Stdout, "hello") {
		t.Errorf("Stdout = %q, want to contain %q", res.Stdout, "hello")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := NewRunner(5 * time.Second)
	_, err := r.Run(context.Background(), "", nil, "false")
	if err == nil {
		t.Fatal("Run() expected error for non-zero exit")
	}
	if got := levelerrors.CodeOf(err); got != levelerrors.SubprocessFailure {
		t.Errorf("CodeOf() = %v, want %v", got, levelerrors.SubprocessFailure)
	}
}

func TestRun_SpawnFailure(t *testing.T) {
	r := NewRunner(5 * time.Second)
	_, err := r.Run(context.Background(), "", nil, "levelup-nonexistent-binary-xyz")
	if err == nil {
		t.Fatal("Run() expected error for missing binary")
	}
	if got := levelerrors.CodeOf(err); got != levelerrors.SubprocessFailure {
		t.Errorf("CodeOf() = %v, want %v", got, levelerrors.SubprocessFailure)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := NewRunner(5 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, "", nil, "sleep", "5")
	if err == nil {
		t.Fatal("Run() expected timeout error")
	}
	if got := levelerrors.CodeOf(err); got != levelerrors.Timeout {
		t.Errorf("CodeOf() = %v, want %v", got, levelerrors.Timeout)
	}
}

func TestRun_EmptyArgv(t *testing.T) {
	r := NewRunner(time.Second)
	_, err := r.Run(context.Background(), "", nil)
	if err == nil {
		t.Fatal("Run() expected error for empty argv")
	}
	if got := levelerrors.CodeOf(err); got != levelerrors.InvariantViolation {
		t.Errorf("CodeOf() = %v, want %v", got, levelerrors.InvariantViolation)
	}
}
