package pax

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CommandError reports a command that finished with a non-zero exit code.
type CommandError struct {
	Command string  // resolved command text
	Result  *Result // result of the last attempt
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed with exit code %d: %s\nstderr: %s",
		e.Result.Code, e.Command, strings.TrimSpace(e.Result.StderrString()))
}

// TimeoutError reports a command killed after exceeding its timeout. It
// matches *CommandError with errors.As and context.DeadlineExceeded with
// errors.Is.
type TimeoutError struct {
	CommandError
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s: %s\nstderr: %s",
		e.Timeout, e.Command, strings.TrimSpace(e.Result.StderrString()))
}

func (e *TimeoutError) Unwrap() []error {
	return []error{&e.CommandError, context.DeadlineExceeded}
}
