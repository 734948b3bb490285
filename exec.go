package pax

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/deixis/pax/internal/runner"
)

// Run executes the command and waits for it to finish.
//
// A failing final attempt is returned as a *CommandError, or a
// *TimeoutError when it was killed on timeout; with NoThrow the Result is
// returned instead. Retries apply regardless of NoThrow, and each retry
// logs a warning. Errors starting the shell are returned immediately
// without retrying. When ctx is cancelled the process is killed and
// ctx.Err() is returned with whatever was captured.
func (c Command) Run(ctx context.Context) (*Result, error) {
	attempts := c.retries + 1

	var (
		attempt int
		last    *Result
		startErr error
	)
	operation := func() (*Result, error) {
		attempt++
		res, err := c.execOnce(ctx)
		if res != nil {
			res.Attempts = attempt
			last = res
		}
		if err != nil {
			startErr = err
			return res, backoff.Permanent(err)
		}
		if !res.Success() {
			return res, c.failure(res)
		}
		return res, nil
	}
	notify := func(_ error, next time.Duration) {
		diag.Warn(fmt.Sprintf("pax: command failed (attempt %d/%d), retrying in %s...", attempt, attempts, next))
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return last, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return last, ctxErr
	}
	if startErr != nil {
		return nil, startErr
	}
	if last == nil {
		return nil, err
	}
	if c.noThrow {
		return last, nil
	}
	return last, c.failure(last)
}

// execOnce runs the upstream chain and then the command itself, once.
func (c Command) execOnce(ctx context.Context) (*Result, error) {
	stdin := c.stdin
	if c.upstream != nil {
		up, err := c.upstream.Stdout(Piped).execOnce(ctx)
		if err != nil {
			return up, err
		}
		stdin = append([]byte{}, up.Stdout...)
	}

	var r runner.Runner
	res, err := r.Run(ctx, runner.Spec{
		Shell:     c.shell,
		Script:    c.script,
		Dir:       c.dir,
		Env:       c.environ(),
		Stdin:     stdin,
		Stdout:    c.stdout,
		Stderr:    c.stderr,
		Timeout:   c.timeout,
		MaxOutput: c.maxOutput,
	})
	if res == nil {
		return nil, err
	}
	return &Result{
		Code:      res.ExitCode,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		RunID:     res.RunID,
		Attempts:  1,
		Duration:  res.Duration,
		TimedOut:  res.TimedOut,
		Truncated: res.Truncated,
	}, err
}

// environ returns the child environment, or nil to inherit the current one
// unchanged.
func (c Command) environ() []string {
	if len(c.env) == 0 && len(c.unenv) == 0 {
		return nil
	}
	env := slices.DeleteFunc(os.Environ(), func(kv string) bool {
		key, _, _ := strings.Cut(kv, "=")
		_, removed := c.unenv[key]
		_, overridden := c.env[key]
		return removed || overridden
	})
	for _, k := range slices.Sorted(maps.Keys(c.env)) {
		env = append(env, k+"="+c.env[k])
	}
	return env
}

func (c Command) failure(res *Result) error {
	base := CommandError{Command: c.script, Result: res}
	if res.TimedOut {
		return &TimeoutError{CommandError: base, Timeout: c.timeout}
	}
	return &base
}

// captured runs c with stdout piped.
func (c Command) captured(ctx context.Context) (*Result, error) {
	res, err := c.Stdout(Piped).Run(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Text runs the command with stdout captured and returns Result.Text.
func (c Command) Text(ctx context.Context) (string, error) {
	res, err := c.captured(ctx)
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

// Lines runs the command with stdout captured and returns Result.Lines.
func (c Command) Lines(ctx context.Context) ([]string, error) {
	res, err := c.captured(ctx)
	if err != nil {
		return nil, err
	}
	return res.Lines(), nil
}

// JSON runs the command with stdout captured and decodes it into v.
func (c Command) JSON(ctx context.Context, v any) error {
	res, err := c.captured(ctx)
	if err != nil {
		return err
	}
	return res.JSON(v)
}

// Bytes runs the command with stdout captured and returns the raw bytes.
func (c Command) Bytes(ctx context.Context) ([]byte, error) {
	res, err := c.captured(ctx)
	if err != nil {
		return nil, err
	}
	return res.Bytes(), nil
}
