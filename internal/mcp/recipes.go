package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/pax/internal/recipe"
	"github.com/deixis/pax/internal/report"
)

type recipesParams struct{}

func (h *handler) recipesHandler(ctx context.Context, req *mcp.CallToolRequest, _ recipesParams) (*mcp.CallToolResult, any, error) {
	cfg := h.current().Config
	names := cfg.RecipeNames()
	if len(names) == 0 {
		return textResult("No recipes defined. Add a recipes section to the .pax file.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recipes (%d):\n", len(names))
	for _, name := range names {
		r := cfg.Recipes[name]
		mode := "sequential"
		if r.Parallel {
			mode = "parallel"
		}
		fmt.Fprintf(&b, "\n%s (%s)", name, mode)
		if r.Description != "" {
			fmt.Fprintf(&b, ": %s", r.Description)
		}
		fmt.Fprintln(&b)
		for i, s := range r.Steps {
			cmd := s.Run
			for _, p := range s.Pipe {
				cmd += " | " + p
			}
			fmt.Fprintf(&b, "  %d. %s: %s\n", i+1, s.Label(i), cmd)
		}
	}
	return textResult(b.String())
}

type recipeParams struct {
	Name string         `json:"name" jsonschema:"recipe name, as listed by pax_recipes"`
	Vars map[string]any `json:"vars,omitempty" jsonschema:"template variables; they shadow the .pax global vars"`
}

func (h *handler) recipeHandler(ctx context.Context, req *mcp.CallToolRequest, params recipeParams) (*mcp.CallToolResult, any, error) {
	result, err := h.current().Run(ctx, params.Name, vars(params.Vars))
	if errors.Is(err, recipe.ErrUnknownRecipe) {
		return errorResult(err.Error())
	}
	if err != nil && result == nil {
		return errorResult(fmt.Sprintf("recipe failed: %v", err))
	}
	return textResult(formatRecipe(result))
}

func formatRecipe(result *recipe.Result) string {
	var b strings.Builder
	rr := result.RunResult

	if rr.Passed() {
		fmt.Fprintln(&b, "Status: PASS")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Steps:")
	for _, s := range result.Steps {
		line := fmt.Sprintf("  %s: %s", s.Name, s.Status)
		if s.AllowedFailure {
			line += " (ignored)"
		}
		if s.Status != report.StatusSkipped && s.Status != report.StatusError {
			line += fmt.Sprintf(" (exit %d)", s.ExitCode)
		}
		fmt.Fprintln(&b, line)
	}

	if result.FailedIdx >= 0 {
		failed := result.Steps[result.FailedIdx]
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Failed step: %s\n", failed.Name)
		if failed.Error != "" {
			fmt.Fprintf(&b, "Error: %s\n", failed.Error)
		}
		if tail := lastLines(failed.Stderr, 10); tail != "" {
			fmt.Fprintf(&b, "stderr (tail):\n%s\n", tail)
		}
		fmt.Fprintf(&b, "\nInspect with pax_inspect(run_id=%q, step=%q).\n", rr.ID, failed.Name)
	} else {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "All steps passed.")
	}
	return b.String()
}

// lastLines returns at most n trailing lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
