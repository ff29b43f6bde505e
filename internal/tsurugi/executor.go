package tsurugi

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Executor provides a consistent interface for executing external tools,
// wiring stdio and tying the child's lifetime to the run context.
type Executor struct {
	Context           context.Context // The context to use for cancellation
	ApplyIdlePriority bool            // Apply nice -n 19 to this specific command
}

func NewExecutor(ctx context.Context) *Executor {
	return &Executor{Context: ctx}
}

// Run executes the given command synchronously. The child is isolated in its
// own process group so a cancelled context kills the whole tool, not just the
// immediate process (cmake and 7z both spawn helpers).
func (e *Executor) Run(cmd *exec.Cmd) error {
	// --- Phase 0: wire up stdio ---
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	// --- Phase 1: build the final command ---
	basePath := cmd.Path
	baseArgs := cmd.Args[1:]

	if e.ApplyIdlePriority {
		baseArgs = append([]string{"-n", "19", basePath}, baseArgs...)
		basePath = "nice"
	}

	finalCmd := exec.CommandContext(e.Context, basePath, baseArgs...)
	finalCmd.Dir = cmd.Dir

	// preserve or inherit the environment
	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}

	// carry over stdio
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr

	// --- Phase 2: isolate process group for context-based cleanup ---
	finalCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// --- Phase 3: start and watch for cancel ---
	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	pgid := finalCmd.Process.Pid

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-e.Context.Done():
			unix.Kill(-pgid, unix.SIGKILL)
		case <-done:
		}
	}()

	// --- Phase 4: wait and return ---
	if waitErr := finalCmd.Wait(); waitErr != nil {
		if e.Context.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %v", e.Context.Err())
		}
		return waitErr
	}
	return nil
}
