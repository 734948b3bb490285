package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/deixis/pax/internal/config"
	"github.com/deixis/pax/internal/report"
)

type runParams struct {
	Template string            `json:"template" jsonschema:"command template, e.g. ls -la {dir}"`
	Vars     map[string]any    `json:"vars,omitempty" jsonschema:"template variables"`
	Pipe     []string          `json:"pipe,omitempty" jsonschema:"templates the output is piped through, in order"`
	Cwd      string            `json:"cwd,omitempty" jsonschema:"working directory, relative to the workspace"`
	Env      map[string]string `json:"env,omitempty" jsonschema:"extra environment variables"`
	Stdin    string            `json:"stdin,omitempty" jsonschema:"data written to the command's stdin"`
	Timeout  string            `json:"timeout,omitempty" jsonschema:"timeout such as 30s; defaults to the configured timeout or 5m"`
	Retry    int               `json:"retry,omitempty" jsonschema:"number of retries after a failed attempt"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	e := h.current()

	step := config.Step{
		Run:        params.Template,
		Pipe:       params.Pipe,
		Cwd:        params.Cwd,
		Env:        params.Env,
		Stdin:      params.Stdin,
		RawTimeout: params.Timeout,
	}
	if err := step.Validate(); err != nil {
		return errorResult(fmt.Sprintf("Invalid parameters: %v", err))
	}
	if step.RawTimeout == "" && e.Config.Timeout() == 0 {
		step.RawTimeout = defaultTimeout.String()
	}

	cmd, err := e.Command(step, vars(params.Vars))
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to render template: %v", err))
	}
	if params.Retry > 0 {
		cmd = cmd.Retry(params.Retry, e.Config.RetryDelay())
	}

	rr, _, err := e.RunCommand(ctx, cmd)
	if err != nil {
		h.logger.Warn("command run failed", zap.String("run_id", rr.ID), zap.Error(err))
	}
	return textResult(formatRun(rr))
}

func formatRun(rr *report.RunResult) string {
	var b strings.Builder
	s := rr.Steps[0]

	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(string(s.Status)))
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintf(&b, "Command: %s\n", s.Command)
	if s.Status != report.StatusError {
		fmt.Fprintf(&b, "Exit code: %d\n", s.ExitCode)
	}
	if s.Attempts > 1 {
		fmt.Fprintf(&b, "Attempts: %d\n", s.Attempts)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.Error)
	}
	writeOutput(&b, "stdout", s.Stdout)
	writeOutput(&b, "stderr", s.Stderr)
	if s.Truncated {
		fmt.Fprintln(&b, "\n(output truncated)")
	}
	return b.String()
}

func writeOutput(b *strings.Builder, name, out string) {
	if out == "" {
		return
	}
	fmt.Fprintf(b, "\n%s:\n%s", name, out)
	if !strings.HasSuffix(out, "\n") {
		b.WriteByte('\n')
	}
}
