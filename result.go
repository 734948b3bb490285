package pax

import (
	"encoding/json"
	"strings"
	"time"
)

// Result is the outcome of a completed command. Its accessors are pure:
// they reinterpret the captured bytes without re-running anything.
type Result struct {
	Code      int           // exit code; -1 when killed on timeout
	Stdout    []byte        // captured stdout; empty unless piped
	Stderr    []byte        // captured stderr; empty unless piped
	RunID     string        // unique identifier of the final attempt
	Attempts  int           // number of attempts made
	Duration  time.Duration // wall time of the final attempt
	TimedOut  bool          // the final attempt was killed on timeout
	Truncated bool          // captured output exceeded MaxOutput
}

// Success reports whether the command exited with code 0.
func (r *Result) Success() bool { return r.Code == 0 }

// StdoutString returns stdout decoded as UTF-8, replacing invalid bytes.
func (r *Result) StdoutString() string { return decode(r.Stdout) }

// StderrString returns stderr decoded as UTF-8, replacing invalid bytes.
func (r *Result) StderrString() string { return decode(r.Stderr) }

// Text returns stdout with surrounding whitespace trimmed.
func (r *Result) Text() string { return strings.TrimSpace(r.StdoutString()) }

// Lines returns the non-empty lines of the trimmed stdout.
func (r *Result) Lines() []string {
	text := strings.ReplaceAll(r.Text(), "\r\n", "\n")
	lines := strings.FieldsFunc(text, func(c rune) bool { return c == '\n' || c == '\r' })
	if lines == nil {
		return []string{}
	}
	return lines
}

// JSON decodes stdout into v.
func (r *Result) JSON(v any) error { return json.Unmarshal(r.Stdout, v) }

// Bytes returns the raw stdout bytes.
func (r *Result) Bytes() []byte { return r.Stdout }

func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
