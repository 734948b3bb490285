package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/pax/internal/report"
)

// recentLimit caps the runs listed when no run_id is given.
const recentLimit = 10

type inspectParams struct {
	RunID string `json:"run_id,omitempty" jsonschema:"the run ID from a pax_run or pax_recipe result; omit to list recent runs"`
	Step  string `json:"step,omitempty" jsonschema:"step name or 1-based position; omit for the run summary"`
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return h.recentRuns()
	}

	result, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	if params.Step == "" {
		return textResult(result.Summary())
	}

	step, err := report.Find(result, params.Step)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatStep(result, step))
}

// recentLister is implemented by stores that keep recent runs in memory.
type recentLister interface {
	Recent(n int) []*report.RunResult
}

func (h *handler) recentRuns() (*mcp.CallToolResult, any, error) {
	lister, ok := h.store.(recentLister)
	if !ok {
		return errorResult("run_id is required")
	}
	runs := lister.Recent(recentLimit)
	if len(runs) == 0 {
		return textResult("No runs yet. Use pax_run or pax_recipe first.")
	}

	var b strings.Builder
	fmt.Fprintln(&b, "Recent runs:")
	for _, r := range runs {
		status := "PASS"
		if !r.Passed() {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "  %s  %-4s %s %s\n", r.ID, status, r.Kind, r.Name)
	}
	return textResult(b.String())
}

func formatStep(result *report.RunResult, s *report.StepRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%s %s)\n", result.ID, result.Kind, result.Name)
	fmt.Fprintf(&b, "Step: %s (%s)\n", s.Name, strings.ToUpper(string(s.Status)))
	if s.Command != "" {
		fmt.Fprintf(&b, "Command: %s\n", s.Command)
	}
	if s.Status != report.StatusSkipped && s.Status != report.StatusError {
		fmt.Fprintf(&b, "Exit code: %d\n", s.ExitCode)
		fmt.Fprintf(&b, "Duration: %dms\n", s.DurationMS)
	}
	if s.Attempts > 1 {
		fmt.Fprintf(&b, "Attempts: %d\n", s.Attempts)
	}
	if s.TimedOut {
		fmt.Fprintln(&b, "Timed out: yes")
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
