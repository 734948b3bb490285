// Package recipe runs the named command pipelines defined in the .pax
// file. It is consumed by both the MCP server and the CLI commands.
package recipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deixis/pax"
	"github.com/deixis/pax/internal/config"
	"github.com/deixis/pax/internal/report"
)

// ErrUnknownRecipe is returned by Run for names missing from the config.
var ErrUnknownRecipe = errors.New("unknown recipe")

// Engine holds shared dependencies for recipe runs.
type Engine struct {
	Config    *config.Config
	Workspace string       // config root; relative step directories resolve here
	Store     report.Store // optional; receives every finished run
	Stdout    io.Writer    // echo target for output of non-quiet steps; os.Stdout when nil
	Stderr    io.Writer    // os.Stderr when nil

	echoMu sync.Mutex
}

// Result holds the full outcome of a recipe run.
type Result struct {
	RunResult *report.RunResult
	Steps     []report.StepRecord // same slice as RunResult.Steps
	FailedIdx int                 // -1 if no step failed
}

// Run executes the named recipe. vars shadow the config's global vars.
//
// Sequential recipes stop at the first failing step and mark the rest
// skipped. Parallel recipes run every step; FailedIdx is the first failing
// step in declaration order. Steps marked no_throw never fail the recipe.
func (e *Engine) Run(ctx context.Context, name string, vars pax.Vars) (*Result, error) {
	r, ok := e.Config.Recipes[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownRecipe, name, e.available())
	}

	rr := &report.RunResult{
		ID:      uuid.New().String(),
		Kind:    report.Recipe,
		Name:    name,
		Started: time.Now(),
		Steps:   make([]report.StepRecord, len(r.Steps)),
	}
	for i, step := range r.Steps {
		rr.Steps[i] = report.StepRecord{Name: step.Label(i), Status: report.StatusSkipped}
	}

	pax.LogStep("recipe", name)
	var failedIdx int
	err := pax.WithLogIndent(func() error {
		if r.Parallel {
			failedIdx = e.runParallel(ctx, r.Steps, vars, rr.Steps)
		} else {
			failedIdx = e.runSequential(ctx, r.Steps, vars, rr.Steps)
		}
		return ctx.Err()
	})
	rr.DurationMS = time.Since(rr.Started).Milliseconds()

	res := &Result{RunResult: rr, Steps: rr.Steps, FailedIdx: failedIdx}
	if saveErr := e.save(rr); saveErr != nil {
		return res, saveErr
	}
	return res, err
}

// RunCommand runs a single command and records it as a command run.
func (e *Engine) RunCommand(ctx context.Context, cmd pax.Command) (*report.RunResult, *pax.Result, error) {
	rr := &report.RunResult{
		ID:      uuid.New().String(),
		Kind:    report.Command,
		Name:    cmd.Line(),
		Started: time.Now(),
	}
	res, err := cmd.Run(ctx)
	rr.Steps = []report.StepRecord{report.Record("command", cmd.Line(), res, err)}
	rr.DurationMS = time.Since(rr.Started).Milliseconds()

	if saveErr := e.save(rr); saveErr != nil {
		return rr, res, saveErr
	}
	return rr, res, err
}

func (e *Engine) runSequential(ctx context.Context, steps []config.Step, vars pax.Vars, out []report.StepRecord) int {
	for i, step := range steps {
		if ctx.Err() != nil {
			return i
		}
		out[i] = e.runStep(ctx, i, step, vars)
		if failed(out[i]) {
			return i
		}
	}
	return -1
}

func (e *Engine) runParallel(ctx context.Context, steps []config.Step, vars pax.Vars, out []report.StepRecord) int {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, step := range steps {
		g.Go(func() error {
			out[i] = e.runStep(ctx, i, step, vars)
			return nil
		})
	}
	_ = g.Wait()

	for i := range out {
		if failed(out[i]) {
			return i
		}
	}
	return -1
}

// runStep builds and runs one step. Failures are reported through the
// returned record, never as an error.
func (e *Engine) runStep(ctx context.Context, index int, step config.Step, vars pax.Vars) report.StepRecord {
	label := step.Label(index)

	cmd, err := e.Command(step, vars)
	if err != nil {
		pax.LogError("error", label+":", err)
		return report.Record(label, "", nil, err)
	}

	res, err := cmd.Run(ctx)
	rec := report.Record(label, cmd.Line(), res, err)
	rec.AllowedFailure = step.NoThrow && rec.Status != report.StatusPassed

	if res != nil && !step.Quiet {
		e.echo(res)
	}
	switch {
	case rec.Status == report.StatusPassed:
		pax.LogStep("passed", label)
	case rec.AllowedFailure:
		pax.LogWarn(string(rec.Status), label, "(ignored)")
	default:
		pax.LogError(string(rec.Status), label)
	}
	return rec
}

// Command builds the command for step. Every command of the pipe chain
// shares the step's directory, environment, shell, timeout and output cap;
// stdin feeds the head of the chain, and retries rerun the whole chain.
func (e *Engine) Command(step config.Step, vars pax.Vars) (pax.Command, error) {
	apply := func(c pax.Command) pax.Command {
		c = c.Cwd(e.stepDir(step)).
			Env(step.Env).
			Timeout(step.Timeout(e.Config.Timeout())).
			MaxOutput(e.Config.MaxOutputBytes()).
			NoThrow().
			Quiet()
		if e.Config.Shell != "" {
			c = c.Shell(e.Config.Shell)
		}
		return c
	}

	head, err := pax.Sh(step.Run, vars, e.Config.Vars)
	if err != nil {
		return pax.Command{}, fmt.Errorf("run: %w", err)
	}
	cmd := apply(head).StdinString(step.Stdin)

	for i, tmpl := range step.Pipe {
		next, err := pax.Sh(tmpl, vars, e.Config.Vars)
		if err != nil {
			return pax.Command{}, fmt.Errorf("pipe[%d]: %w", i, err)
		}
		cmd = cmd.Pipe(apply(next))
	}

	if n := e.Config.Retry.Count; n > 0 {
		cmd = cmd.Retry(n, e.Config.RetryDelay())
	}
	return cmd, nil
}

func (e *Engine) stepDir(step config.Step) string {
	if step.Cwd == "" {
		return e.Workspace
	}
	if filepath.IsAbs(step.Cwd) {
		return step.Cwd
	}
	return filepath.Join(e.Workspace, step.Cwd)
}

func (e *Engine) echo(res *pax.Result) {
	e.echoMu.Lock()
	defer e.echoMu.Unlock()
	stdout, stderr := e.Stdout, e.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	_, _ = stdout.Write(res.Stdout)
	_, _ = stderr.Write(res.Stderr)
}

func (e *Engine) save(rr *report.RunResult) error {
	if e.Store == nil {
		return nil
	}
	if err := e.Store.Save(rr); err != nil {
		return fmt.Errorf("saving run %s: %w", rr.ID, err)
	}
	return nil
}

func (e *Engine) available() string {
	names := e.Config.RecipeNames()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func failed(rec report.StepRecord) bool {
	if rec.AllowedFailure {
		return false
	}
	switch rec.Status {
	case report.StatusFailed, report.StatusTimeout, report.StatusError:
		return true
	}
	return false
}
