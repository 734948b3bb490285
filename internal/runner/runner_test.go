package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func newTestRunner(t *testing.T) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	return &Runner{
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: &stderr,
	}, &stdout, &stderr
}

func TestRun_Success(t *testing.T) {
	r, _, _ := newTestRunner(t)
	res, err := r.Run(context.Background(), Spec{Script: "echo hello", Stdout: Pipe})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if string(res.Stdout) != "hello\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if res.TimedOut {
		t.Error("TimedOut = true, want false")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r, _, _ := newTestRunner(t)
	res, err := r.Run(context.Background(), Spec{Script: "echo boom >&2; exit 3", Stderr: Pipe})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if string(res.Stderr) != "boom\n" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "boom\n")
	}
}

func TestRun_ShellNotFound(t *testing.T) {
	r, _, _ := newTestRunner(t)
	_, err := r.Run(context.Background(), Spec{Shell: "nonexistent-shell-xyz-123", Script: "true"})
	if err == nil {
		t.Fatal("expected error for missing shell")
	}
	if !strings.Contains(err.Error(), "nonexistent-shell-xyz-123") {
		t.Errorf("error = %q, want to mention the shell", err)
	}
}

func TestRun_MissingDir(t *testing.T) {
	r, _, _ := newTestRunner(t)
	dir := filepath.Join(t.TempDir(), "missing")
	if _, err := r.Run(context.Background(), Spec{Script: "true", Dir: dir}); err == nil {
		t.Fatal("expected error for missing working directory")
	}
}

func TestRun_Dir(t *testing.T) {
	r, _, _ := newTestRunner(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := r.Run(context.Background(), Spec{Script: "ls", Dir: dir, Stdout: Pipe})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(res.Stdout), "marker.txt") {
		t.Errorf("Stdout = %q, want to contain 'marker.txt'", res.Stdout)
	}
}

func TestRun_Env(t *testing.T) {
	r, _, _ := newTestRunner(t)
	res, err := r.Run(context.Background(), Spec{
		Script: `printf '%s' "$PAX_TEST_VAR"`,
		Env:    []string{"PAX_TEST_VAR=from env"},
		Stdout: Pipe,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Stdout) != "from env" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "from env")
	}
}

func TestRun_Stdin(t *testing.T) {
	r, _, _ := newTestRunner(t)
	res, err := r.Run(context.Background(), Spec{
		Script: "tr a-z A-Z",
		Stdin:  []byte("shout"),
		Stdout: Pipe,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Stdout) != "SHOUT" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "SHOUT")
	}
}

func TestRun_InheritWritesToRunner(t *testing.T) {
	r, stdout, stderr := newTestRunner(t)
	res, err := r.Run(context.Background(), Spec{Script: "echo out; echo err >&2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Stdout) != 0 || len(res.Stderr) != 0 {
		t.Errorf("inherited streams must not be captured, got %q / %q", res.Stdout, res.Stderr)
	}
	if stdout.String() != "out\n" {
		t.Errorf("runner stdout = %q, want %q", stdout.String(), "out\n")
	}
	if stderr.String() != "err\n" {
		t.Errorf("runner stderr = %q, want %q", stderr.String(), "err\n")
	}
}

func TestRun_Discard(t *testing.T) {
	r, stdout, _ := newTestRunner(t)
	res, err := r.Run(context.Background(), Spec{Script: "echo gone", Stdout: Discard})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Stdout) != 0 || stdout.Len() != 0 {
		t.Errorf("discarded output leaked: result %q, runner %q", res.Stdout, stdout.String())
	}
}

func TestRun_Timeout(t *testing.T) {
	r, _, _ := newTestRunner(t)

	started := time.Now()
	res, err := r.Run(context.Background(), Spec{
		Script:  "sleep 10 | cat",
		Timeout: 100 * time.Millisecond,
		Stdout:  Pipe,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Error("TimedOut = false, want true")
	}
	if res.ExitCode != TimeoutExitCode {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, TimeoutExitCode)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Errorf("timeout took %s, want the whole pipeline killed promptly", elapsed)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	r, _, _ := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := r.Run(ctx, Spec{Script: "sleep 10"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRun_OutputTruncation(t *testing.T) {
	r, _, _ := newTestRunner(t)

	res, err := r.Run(context.Background(), Spec{
		Script:    "dd if=/dev/zero bs=200 count=1 2>/dev/null",
		Stdout:    Pipe,
		MaxOutput: 100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if len(res.Stdout) != 100 {
		t.Errorf("len(Stdout) = %d, want 100", len(res.Stdout))
	}
}

func TestStdio_String(t *testing.T) {
	for mode, want := range map[Stdio]string{Inherit: "inherit", Pipe: "pipe", Discard: "null"} {
		if got := mode.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(mode), got, want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if isTerminal(strings.NewReader("x")) {
		t.Error("a reader is not a terminal")
	}
	if isTerminal((*os.File)(nil)) {
		t.Error("a nil file is not a terminal")
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	defer pw.Close()
	if isTerminal(pr) {
		t.Error("a pipe is not a terminal")
	}
}

// TestRun_InheritedTerminalStdin runs a child that reads an inherited
// terminal. It re-executes this test binary under script(1) so stdin is a
// pty; the child must stay in the foreground group and read the input.
func TestRun_InheritedTerminalStdin(t *testing.T) {
	if os.Getenv("PAX_RUNNER_TTY_CHILD") == "1" {
		var r Runner
		res, err := r.Run(context.Background(), Spec{
			Script:  "read x; echo got:$x",
			Stdout:  Pipe,
			Timeout: 3 * time.Second,
		})
		if err != nil {
			fmt.Printf("error=%v\n", err)
			return
		}
		fmt.Printf("timedOut=%v out=%s\n", res.TimedOut, res.Stdout)
		return
	}

	if runtime.GOOS != "linux" {
		t.Skip("script(1) flags differ outside util-linux")
	}
	script, err := exec.LookPath("script")
	if err != nil {
		t.Skip("script(1) not installed")
	}

	child := fmt.Sprintf("'%s' -test.run='^TestRun_InheritedTerminalStdin$'", os.Args[0])
	cmd := exec.Command(script, "-qec", child, "/dev/null")
	cmd.Env = append(os.Environ(), "PAX_RUNNER_TTY_CHILD=1")
	cmd.Stdin = strings.NewReader("hello\n")

	started := time.Now()
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("script: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "got:hello") {
		t.Errorf("output = %q, want the child to read the terminal", out)
	}
	if strings.Contains(string(out), "timedOut=true") {
		t.Errorf("child was stopped reading the terminal: %q", out)
	}
	if elapsed := time.Since(started); elapsed > 2500*time.Millisecond {
		t.Errorf("took %s, want well under the 3s child timeout", elapsed)
	}
}
