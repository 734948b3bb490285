// Package runner executes a single shell script as a child process with
// a working directory, environment, stdin payload, stdio disposition,
// timeout and output cap.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
)

// DefaultShell runs scripts when Spec.Shell is empty.
const DefaultShell = "/bin/sh"

// TimeoutExitCode is the exit code reported for a killed, timed-out process.
const TimeoutExitCode = -1

// waitDelay bounds how long Wait keeps draining pipes after a kill.
const waitDelay = 500 * time.Millisecond

// Stdio is the disposition of a child's stdout or stderr.
type Stdio int

const (
	// Inherit connects the stream to the runner's own writer.
	Inherit Stdio = iota
	// Pipe captures the stream into the Result.
	Pipe
	// Discard drops the stream.
	Discard
)

func (s Stdio) String() string {
	switch s {
	case Inherit:
		return "inherit"
	case Pipe:
		return "pipe"
	case Discard:
		return "null"
	}
	return fmt.Sprintf("Stdio(%d)", int(s))
}

// Spec describes one process invocation.
type Spec struct {
	Shell     string        // shell executable; DefaultShell when empty
	Script    string        // passed to the shell with -c
	Dir       string        // working directory; the runner's when empty
	Env       []string      // KEY=VALUE pairs; nil inherits the runner's environment
	Stdin     []byte        // nil inherits the runner's stdin
	Stdout    Stdio         // stdout disposition
	Stderr    Stdio         // stderr disposition
	Timeout   time.Duration // zero disables the timeout
	MaxOutput int           // per-stream capture cap in bytes; zero is unlimited
}

// Runner starts processes described by a Spec. The zero value is ready to
// use and inherits os.Stdin, os.Stdout and os.Stderr.
type Runner struct {
	Stdin  io.Reader // stdin when Spec.Stdin is nil; os.Stdin when nil
	Stdout io.Writer // target for Inherit stdout; os.Stdout when nil
	Stderr io.Writer // target for Inherit stderr; os.Stderr when nil
}

// Run starts the process and waits for it to exit, time out, or for ctx to
// be cancelled. A non-zero exit or a timeout is reported through the
// Result; errors are returned only when the process could not be started
// or ctx was cancelled.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	shell := spec.Shell
	if shell == "" {
		shell = DefaultShell
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, shell, "-c", spec.Script)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.WaitDelay = waitDelay

	switch {
	case spec.Stdin != nil:
		cmd.Stdin = bytes.NewReader(spec.Stdin)
	case r.Stdin != nil:
		cmd.Stdin = r.Stdin
	default:
		cmd.Stdin = os.Stdin
	}

	// A child reading the terminal must stay in the foreground process
	// group, otherwise it is stopped by SIGTTIN. Only detached children get
	// their own group, so only they can be killed as a whole pipeline.
	detached := !isTerminal(cmd.Stdin)
	if detached {
		setupProcessGroup(cmd)
	}
	cmd.Cancel = func() error {
		if detached {
			return killProcessGroup(cmd)
		}
		return killProcess(cmd)
	}

	var stdout, stderr bytes.Buffer
	stdoutW := &limitWriter{buf: &stdout, limit: spec.MaxOutput}
	stderrW := &limitWriter{buf: &stderr, limit: spec.MaxOutput}
	cmd.Stdout = r.target(spec.Stdout, stdoutW, r.Stdout, os.Stdout)
	cmd.Stderr = r.target(spec.Stderr, stderrW, r.Stderr, os.Stderr)

	runID := uuid.New().String()
	started := time.Now()
	runErr := cmd.Run()
	duration := time.Since(started)

	res := &Result{
		RunID:     runID,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: stdoutW.truncated || stderrW.truncated,
		Duration:  duration,
	}

	if runErr == nil {
		return res, nil
	}

	// Caller cancellation wins over our own deadline.
	if ctx.Err() != nil {
		res.ExitCode = TimeoutExitCode
		return res, ctx.Err()
	}
	if spec.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.ExitCode = TimeoutExitCode
		res.TimedOut = true
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if errors.Is(runErr, exec.ErrWaitDelay) {
		// The process exited but a grandchild kept a pipe open.
		res.ExitCode = cmd.ProcessState.ExitCode()
		return res, nil
	}

	// Shell not found, bad working directory, and similar start failures.
	return nil, fmt.Errorf("starting %s: %w", shell, runErr)
}

// isTerminal reports whether r is a terminal device.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok || f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// killProcess kills only the child, leaving the caller's process group alone.
func killProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (r *Runner) target(mode Stdio, capture io.Writer, inherit io.Writer, fallback *os.File) io.Writer {
	switch mode {
	case Pipe:
		return capture
	case Discard:
		return nil
	}
	if inherit != nil {
		return inherit
	}
	return fallback
}

// limitWriter writes up to limit bytes to buf, then silently discards the
// rest. A zero limit disables the cap.
type limitWriter struct {
	buf       *bytes.Buffer
	limit     int
	truncated bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.truncated = true
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Write only what fits, but report all bytes as consumed
		// to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	return w.buf.Write(p)
}
