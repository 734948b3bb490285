package pax

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCommand_BuilderDoesNotMutateReceiver(t *testing.T) {
	base := Cmd("run")
	a := base.Cwd("/a").SetEnv("K", "1").Timeout(time.Second).NoThrow()
	b := base.SetEnv("K", "2").Retry(2, 0)

	assert.Equal(t, `Cmd("run")`, base.String())
	assert.Equal(t, `Cmd("run").Cwd("/a").SetEnv("K", "1").NoThrow().Timeout(1s)`, a.String())
	assert.Equal(t, `Cmd("run").SetEnv("K", "2").Retry(2, 0s)`, b.String())
}

func TestCommand_DivergingEnvChains(t *testing.T) {
	base := Cmd("run").SetEnv("A", "1")
	left := base.SetEnv("B", "2")
	right := base.Unenv("A")

	assert.Equal(t, map[string]string{"A": "1"}, base.env)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, left.env)
	assert.Empty(t, right.env)
	assert.Contains(t, right.unenv, "A")
	assert.Empty(t, base.unenv)
}

func TestCommand_EnvLastCallWins(t *testing.T) {
	c := Cmd("run").Unenv("A").SetEnv("A", "1")
	assert.Equal(t, "1", c.env["A"])
	assert.NotContains(t, c.unenv, "A")

	c = c.Unenv("A")
	assert.NotContains(t, c.env, "A")
	assert.Contains(t, c.unenv, "A")
}

func TestCommand_EnvMap(t *testing.T) {
	c := Cmd("run").Env(map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, `Cmd("run").SetEnv("A", "1").SetEnv("B", "2")`, c.String())
}

func TestCommand_StdinIsCopied(t *testing.T) {
	data := []byte("abc")
	c := Cmd("cat").Stdin(data)
	data[0] = 'x'
	assert.Equal(t, []byte("abc"), c.stdin)

	empty := Cmd("cat").Stdin(nil)
	assert.NotNil(t, empty.stdin, "an explicit empty stdin differs from an unset one")
	assert.Nil(t, Cmd("cat").stdin)
}

func TestCommand_Quiet(t *testing.T) {
	c := Cmd("run").Quiet()
	assert.Equal(t, Piped, c.stdout)
	assert.Equal(t, Piped, c.stderr)
	assert.Equal(t, Inherit, Cmd("run").stdout)
}

func TestCommand_PipeString(t *testing.T) {
	c := Pipeline(Cmd("a"), Cmd("b").NoThrow(), Cmd("c"))
	assert.Equal(t, `Cmd("a") | Cmd("b").NoThrow() | Cmd("c")`, c.String())
	assert.Equal(t, "c", c.Script())
	assert.Equal(t, "a | b | c", c.Line())
}

func TestCommand_PipeKeepsDownstreamConfig(t *testing.T) {
	down := Cmd("sort").Cwd("/tmp").Timeout(time.Second)
	piped := Cmd("ls").Pipe(down)

	assert.Equal(t, "/tmp", piped.dir)
	assert.Equal(t, time.Second, piped.timeout)
	assert.Nil(t, down.upstream, "Pipe must not modify its argument")
	assert.Equal(t, "ls", piped.upstream.script)
}

func TestCommand_RetryClampsNegatives(t *testing.T) {
	c := Cmd("run").Retry(-1, -time.Second)
	assert.Equal(t, 0, c.retries)
	assert.Equal(t, time.Duration(0), c.retryDelay)
}

func TestPipeline_Empty(t *testing.T) {
	assert.Equal(t, `Cmd("")`, Pipeline().String())
}
