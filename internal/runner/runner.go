// Package runner executes a single work unit's command synchronously,
// capturing its output and honoring caller cancellation (spec.md §4.7).
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// GracePeriod is how long the runner waits after SIGTERM before
// escalating to SIGKILL, mirroring the teacher's dispatch.KillProcess
// timeout.
const GracePeriod = 5 * time.Second

// Params fully describes one unit's execution.
type Params struct {
	// Command is the fully rendered command string (from the invocation
	// builder); the runner never re-resolves tokens.
	Command string
	// WorkDir is the unit's working directory; it is created if absent
	// and removed on cancellation.
	WorkDir string
	// LogDir is where the per-unit stdout/stderr capture file is
	// written.
	LogDir string
}

// Outcome is what the runner reports back to the caller.
type Outcome struct {
	ExitCode  int
	LogPath   string
	Cancelled bool
}

// Run executes params.Command in a shell, synchronously, under WorkDir,
// capturing combined stdout/stderr to a log file under LogDir. If ctx is
// cancelled before the command exits, the runner sends SIGTERM to the
// child, escalates to SIGKILL after GracePeriod, removes WorkDir, and
// returns early with Outcome.Cancelled set. The runner never retries;
// that is a caller decision (spec.md §4.7).
func Run(ctx context.Context, p Params) (Outcome, error) {
	if err := os.MkdirAll(p.WorkDir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("runner: create work dir: %w", err)
	}
	if err := os.MkdirAll(p.LogDir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("runner: create log dir: %w", err)
	}

	logPath := filepath.Join(p.LogDir, uuid.NewString()+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("runner: create log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command("sh", "-c", p.Command)
	cmd.Dir = p.WorkDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("runner: start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return Outcome{ExitCode: exitCode(err), LogPath: logPath}, nil
	case <-ctx.Done():
		terminate(cmd, done)
		os.RemoveAll(p.WorkDir)
		return Outcome{ExitCode: -1, LogPath: logPath, Cancelled: true}, nil
	}
}

// terminate sends SIGTERM, then waits up to GracePeriod for the process
// to exit on its own before escalating to SIGKILL.
func terminate(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-done:
		return
	case <-time.After(GracePeriod):
	}

	_ = cmd.Process.Signal(syscall.SIGKILL)
	<-done
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
