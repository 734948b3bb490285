package pax

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/deixis/pax/internal/runner"
)

// StdioMode is the disposition of a command's stdout or stderr.
type StdioMode = runner.Stdio

const (
	// Inherit writes the stream to the calling process's stream.
	Inherit = runner.Inherit
	// Piped captures the stream into the Result.
	Piped = runner.Pipe
	// Discard drops the stream.
	Discard = runner.Discard
)

// Command is an immutable shell command configuration. The zero value is
// an empty command. Every method returns a new Command and never modifies
// the receiver.
type Command struct {
	script     string
	dir        string
	env        map[string]string
	unenv      map[string]struct{}
	stdin      []byte // nil means unset
	stdout     StdioMode
	stderr     StdioMode
	noThrow    bool
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	shell      string
	maxOutput  int
	upstream   *Command
}

// Script returns the resolved command text.
func (c Command) Script() string { return c.script }

// Line returns the scripts of the whole pipe chain joined with " | ".
func (c Command) Line() string {
	if c.upstream == nil {
		return c.script
	}
	return c.upstream.Line() + " | " + c.script
}

// Cwd sets the working directory.
func (c Command) Cwd(path string) Command {
	c.dir = path
	return c
}

// Env sets the given environment variables on top of the inherited
// environment.
func (c Command) Env(vars map[string]string) Command {
	for k, v := range vars {
		c = c.SetEnv(k, v)
	}
	return c
}

// SetEnv sets one environment variable, cancelling an earlier Unenv of it.
func (c Command) SetEnv(key, value string) Command {
	c.env = maps.Clone(c.env)
	if c.env == nil {
		c.env = make(map[string]string)
	}
	c.env[key] = value
	if _, ok := c.unenv[key]; ok {
		c.unenv = maps.Clone(c.unenv)
		delete(c.unenv, key)
	}
	return c
}

// Unenv removes key from the inherited environment, cancelling an earlier
// SetEnv of it.
func (c Command) Unenv(key string) Command {
	c.unenv = maps.Clone(c.unenv)
	if c.unenv == nil {
		c.unenv = make(map[string]struct{})
	}
	c.unenv[key] = struct{}{}
	if _, ok := c.env[key]; ok {
		c.env = maps.Clone(c.env)
		delete(c.env, key)
	}
	return c
}

// Stdin sets the bytes written to the command's stdin. Without it the
// command inherits the calling process's stdin.
func (c Command) Stdin(data []byte) Command {
	c.stdin = append([]byte{}, data...)
	return c
}

// StdinString is Stdin for string input.
func (c Command) StdinString(data string) Command {
	return c.Stdin([]byte(data))
}

// Stdout sets the stdout disposition.
func (c Command) Stdout(mode StdioMode) Command {
	c.stdout = mode
	return c
}

// Stderr sets the stderr disposition.
func (c Command) Stderr(mode StdioMode) Command {
	c.stderr = mode
	return c
}

// Quiet captures both stdout and stderr.
func (c Command) Quiet() Command {
	return c.Stdout(Piped).Stderr(Piped)
}

// NoThrow makes Run report failures through the Result instead of an error.
func (c Command) NoThrow() Command {
	c.noThrow = true
	return c
}

// Timeout kills the command after d. Zero disables the timeout.
func (c Command) Timeout(d time.Duration) Command {
	c.timeout = d
	return c
}

// Retry re-runs a failing command up to count more times, waiting delay
// between attempts.
func (c Command) Retry(count int, delay time.Duration) Command {
	c.retries = max(0, count)
	c.retryDelay = max(0, delay)
	return c
}

// Shell sets the shell executable used to run the command text.
func (c Command) Shell(executable string) Command {
	c.shell = executable
	return c
}

// MaxOutput caps each captured stream at n bytes. Zero means unlimited.
func (c Command) MaxOutput(n int) Command {
	c.maxOutput = max(0, n)
	return c
}

// Pipe returns next with c as its upstream: c runs first with stdout
// captured and its output becomes next's stdin. Failures of c do not stop
// next.
func (c Command) Pipe(next Command) Command {
	up := c
	next.upstream = &up
	return next
}

// Pipeline chains cmds left to right with Pipe.
func Pipeline(cmds ...Command) Command {
	if len(cmds) == 0 {
		return Command{}
	}
	out := cmds[0]
	for _, next := range cmds[1:] {
		out = out.Pipe(next)
	}
	return out
}

// String describes the command as a builder chain.
func (c Command) String() string {
	var b strings.Builder
	if c.upstream != nil {
		b.WriteString(c.upstream.String())
		b.WriteString(" | ")
	}
	fmt.Fprintf(&b, "Cmd(%s)", strconv.Quote(c.script))
	if c.dir != "" {
		fmt.Fprintf(&b, ".Cwd(%s)", strconv.Quote(c.dir))
	}
	for _, k := range slices.Sorted(maps.Keys(c.env)) {
		fmt.Fprintf(&b, ".SetEnv(%s, %s)", strconv.Quote(k), strconv.Quote(c.env[k]))
	}
	for _, k := range slices.Sorted(maps.Keys(c.unenv)) {
		fmt.Fprintf(&b, ".Unenv(%s)", strconv.Quote(k))
	}
	if c.noThrow {
		b.WriteString(".NoThrow()")
	}
	if c.timeout > 0 {
		fmt.Fprintf(&b, ".Timeout(%s)", c.timeout)
	}
	if c.retries > 0 {
		fmt.Fprintf(&b, ".Retry(%d, %s)", c.retries, c.retryDelay)
	}
	if c.shell != "" {
		fmt.Fprintf(&b, ".Shell(%s)", strconv.Quote(c.shell))
	}
	return b.String()
}
