package recipe

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/pax"
	"github.com/deixis/pax/internal/config"
	"github.com/deixis/pax/internal/report"
)

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	pax.SetLogOutput(&logs)
	t.Cleanup(func() { pax.SetLogOutput(nil) })

	return &Engine{
		Config:    cfg,
		Workspace: t.TempDir(),
		Store:     report.NewLRUStore(8, report.NewDiskStore(t.TempDir())),
		Stdout:    &bytes.Buffer{},
		Stderr:    &bytes.Buffer{},
	}, &logs
}

func TestRun_SequentialAllPass(t *testing.T) {
	e, logs := newTestEngine(t, &config.Config{
		Vars: map[string]any{"greeting": "hello"},
		Recipes: map[string]config.Recipe{
			"greet": {Steps: []config.Step{
				{Name: "say", Run: "echo {greeting} {who}"},
				{Name: "count", Run: "printf 'a\\nb\\n'", Pipe: []string{"wc -l"}},
			}},
		},
	})

	res, err := e.Run(context.Background(), "greet", pax.Vars{"who": "world wide"})
	require.NoError(t, err)
	assert.Equal(t, -1, res.FailedIdx)
	assert.True(t, res.RunResult.Passed())

	say := res.Steps[0]
	assert.Equal(t, report.StatusPassed, say.Status)
	assert.Equal(t, "echo hello 'world wide'", say.Command)
	assert.Equal(t, "hello world wide\n", say.Stdout)
	assert.Equal(t, "2", strings.TrimSpace(res.Steps[1].Stdout))

	assert.Contains(t, e.Stdout.(*bytes.Buffer).String(), "hello world wide")
	assert.Contains(t, logs.String(), "recipe greet\n  passed say\n")

	stored, err := e.Store.Load(res.RunResult.ID)
	require.NoError(t, err)
	assert.Equal(t, "greet", stored.Name)
	assert.Equal(t, report.Recipe, stored.Kind)
}

func TestRun_SequentialStopsOnFirstFailure(t *testing.T) {
	e, _ := newTestEngine(t, &config.Config{
		Recipes: map[string]config.Recipe{
			"ci": {Steps: []config.Step{
				{Name: "build", Run: "true"},
				{Name: "test", Run: "echo broken >&2; exit 2"},
				{Name: "deploy", Run: "echo deployed"},
			}},
		},
	})

	res, err := e.Run(context.Background(), "ci", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedIdx)
	assert.Equal(t, report.StatusPassed, res.Steps[0].Status)
	assert.Equal(t, report.StatusFailed, res.Steps[1].Status)
	assert.Equal(t, 2, res.Steps[1].ExitCode)
	assert.Equal(t, "broken\n", res.Steps[1].Stderr)
	assert.Equal(t, report.StatusSkipped, res.Steps[2].Status)
	assert.False(t, res.RunResult.Passed())
}

func TestRun_NoThrowStepDoesNotFail(t *testing.T) {
	e, logs := newTestEngine(t, &config.Config{
		Recipes: map[string]config.Recipe{
			"lenient": {Steps: []config.Step{
				{Name: "optional", Run: "exit 1", NoThrow: true},
				{Name: "after", Run: "true"},
			}},
		},
	})

	res, err := e.Run(context.Background(), "lenient", nil)
	require.NoError(t, err)
	assert.Equal(t, -1, res.FailedIdx)
	assert.True(t, res.Steps[0].AllowedFailure)
	assert.Equal(t, report.StatusPassed, res.Steps[1].Status)
	assert.True(t, res.RunResult.Passed())
	assert.Contains(t, logs.String(), "failed optional (ignored)")
}

func TestRun_Parallel(t *testing.T) {
	dir := t.TempDir()
	e, _ := newTestEngine(t, &config.Config{
		Recipes: map[string]config.Recipe{
			"fan": {Parallel: true, Steps: []config.Step{
				{Name: "a", Run: "touch {dir}/a"},
				{Name: "fail", Run: "exit 1"},
				{Name: "c", Run: "touch {dir}/c"},
			}},
		},
	})

	res, err := e.Run(context.Background(), "fan", pax.Vars{"dir": dir})
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedIdx)
	assert.Equal(t, report.StatusPassed, res.Steps[0].Status)
	assert.Equal(t, report.StatusPassed, res.Steps[2].Status, "parallel steps run independently")
	assert.FileExists(t, filepath.Join(dir, "a"))
	assert.FileExists(t, filepath.Join(dir, "c"))
}

func TestRun_TemplateErrorMarksStep(t *testing.T) {
	e, _ := newTestEngine(t, &config.Config{
		Recipes: map[string]config.Recipe{
			"bad": {Steps: []config.Step{{Name: "oops", Run: "echo {"}}},
		},
	})

	res, err := e.Run(context.Background(), "bad", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.FailedIdx)
	assert.Equal(t, report.StatusError, res.Steps[0].Status)
	assert.Contains(t, res.Steps[0].Error, "unterminated")
}

func TestRun_UnknownRecipe(t *testing.T) {
	e, _ := newTestEngine(t, &config.Config{
		Recipes: map[string]config.Recipe{"b": {}, "a": {}},
	})

	_, err := e.Run(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownRecipe))
	assert.Contains(t, err.Error(), "available: a, b")
}

func TestRun_StepSettings(t *testing.T) {
	e, _ := newTestEngine(t, &config.Config{
		Recipes: map[string]config.Recipe{
			"env": {Steps: []config.Step{
				{Name: "pwd", Run: "pwd", Cwd: "sub"},
				{Name: "env", Run: `printf '%s' "$PAX_STEP"`, Env: map[string]string{"PAX_STEP": "set"}},
				{Name: "stdin", Run: "tr a-z A-Z", Stdin: "loud"},
				{Name: "slow", Run: "sleep 5", RawTimeout: "50ms"},
			}},
		},
	})
	require.NoError(t, os.Mkdir(filepath.Join(e.Workspace, "sub"), 0o755))

	started := time.Now()
	res, err := e.Run(context.Background(), "env", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 4*time.Second)

	assert.Equal(t, filepath.Join(e.Workspace, "sub"), strings.TrimSpace(res.Steps[0].Stdout))
	assert.Equal(t, "set", res.Steps[1].Stdout)
	assert.Equal(t, "LOUD", res.Steps[2].Stdout)
	assert.Equal(t, report.StatusTimeout, res.Steps[3].Status)
	assert.Equal(t, 3, res.FailedIdx)
}

func TestRun_RetryFromConfig(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "n")
	e, logs := newTestEngine(t, &config.Config{
		Retry: config.RetryConfig{Count: 2, RawDelay: "1ms"},
		Recipes: map[string]config.Recipe{
			"flaky": {Steps: []config.Step{
				{Name: "flaky", Run: "echo x >> {f}; test $(wc -l < {f}) -ge 3"},
			}},
		},
	})

	res, err := e.Run(context.Background(), "flaky", pax.Vars{"f": counter})
	require.NoError(t, err)
	assert.Equal(t, report.StatusPassed, res.Steps[0].Status)
	assert.Equal(t, 3, res.Steps[0].Attempts)
	assert.Contains(t, logs.String(), "attempt 2/3")
}

func TestRun_QuietStepIsNotEchoed(t *testing.T) {
	e, _ := newTestEngine(t, &config.Config{
		Recipes: map[string]config.Recipe{
			"q": {Steps: []config.Step{{Run: "echo secret", Quiet: true}}},
		},
	})

	res, err := e.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "secret\n", res.Steps[0].Stdout, "quiet steps are still recorded")
	assert.Empty(t, e.Stdout.(*bytes.Buffer).String())
	assert.Equal(t, "step 1", res.Steps[0].Name)
}

func TestRunCommand(t *testing.T) {
	e, _ := newTestEngine(t, &config.Config{})

	rr, res, err := e.RunCommand(context.Background(), pax.Cmd("echo one").Quiet())
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, report.Command, rr.Kind)
	assert.Equal(t, "echo one", rr.Name)
	require.Len(t, rr.Steps, 1)
	assert.Equal(t, "one\n", rr.Steps[0].Stdout)

	stored, err := e.Store.Load(rr.ID)
	require.NoError(t, err)
	assert.Equal(t, rr.ID, stored.ID)
}
