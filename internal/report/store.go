// Package report records command and recipe runs so they can be inspected
// after the fact. Results are kept in an in-memory LRU cache backed by
// JSON files on disk.
package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deixis/pax"
)

// Kind identifies the type of a run.
type Kind string

const (
	// Command is a single command run, possibly piped.
	Command Kind = "command"
	// Recipe is a run of a configured recipe.
	Recipe Kind = "recipe"
)

// Status is the outcome of one step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error" // the command could not be built or started
)

// ErrNotFound is returned by Load for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// RunResult holds the structured outcome of a run.
type RunResult struct {
	ID         string       `json:"id"`
	Kind       Kind         `json:"kind"`
	Name       string       `json:"name"` // recipe name, or the command text
	Started    time.Time    `json:"started"`
	DurationMS int64        `json:"duration_ms"`
	Steps      []StepRecord `json:"steps"`
}

// StepRecord is the outcome of one executed (or skipped) command.
type StepRecord struct {
	Name       string `json:"name"`
	Command    string `json:"command,omitempty"` // resolved command text
	Status     Status `json:"status"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	DurationMS int64  `json:"duration_ms"`

	AllowedFailure bool `json:"allowed_failure,omitempty"` // failed, but marked no_throw
}

// Passed reports whether no step failed, timed out or errored, ignoring
// allowed failures.
func (r *RunResult) Passed() bool {
	for _, s := range r.Steps {
		if s.AllowedFailure {
			continue
		}
		switch s.Status {
		case StatusFailed, StatusTimeout, StatusError:
			return false
		}
	}
	return true
}

// Summary renders one line per step.
func (r *RunResult) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s (%s)\n", r.Kind, r.ID, r.Name)
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "  %-8s %s", s.Status, s.Name)
		if s.Status != StatusSkipped && s.Status != StatusError {
			fmt.Fprintf(&b, " (exit %d, %dms)", s.ExitCode, s.DurationMS)
		}
		if s.Error != "" {
			fmt.Fprintf(&b, ": %s", s.Error)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Record converts the outcome of pax.Command.Run into a StepRecord. res
// may be nil when the command could not be started.
func Record(name, command string, res *pax.Result, err error) StepRecord {
	rec := StepRecord{Name: name, Command: command}
	if res != nil {
		rec.ExitCode = res.Code
		rec.Stdout = res.StdoutString()
		rec.Stderr = res.StderrString()
		rec.Attempts = res.Attempts
		rec.TimedOut = res.TimedOut
		rec.Truncated = res.Truncated
		rec.DurationMS = res.Duration.Milliseconds()
	}

	var cmdErr *pax.CommandError
	switch {
	case res != nil && res.TimedOut:
		rec.Status = StatusTimeout
	case res != nil && res.Success() && err == nil:
		rec.Status = StatusPassed
	case res != nil && (err == nil || errors.As(err, &cmdErr)):
		rec.Status = StatusFailed
	default:
		rec.Status = StatusError
	}
	if err != nil && !errors.As(err, &cmdErr) {
		rec.Error = err.Error()
	}
	return rec
}

// Find returns the step named step, or the step at a 1-based position
// when step is a number.
func Find(result *RunResult, step string) (*StepRecord, error) {
	for i := range result.Steps {
		if result.Steps[i].Name == step {
			return &result.Steps[i], nil
		}
	}
	if n, err := strconv.Atoi(step); err == nil {
		if n >= 1 && n <= len(result.Steps) {
			return &result.Steps[n-1], nil
		}
		return nil, fmt.Errorf("run %s has %d steps, no step %d", result.ID, len(result.Steps), n)
	}
	return nil, fmt.Errorf("run %s has no step %q", result.ID, step)
}
