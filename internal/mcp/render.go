package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/pax"
)

type renderParams struct {
	Template string         `json:"template" jsonschema:"command template, e.g. grep -r {pattern} {dirs}"`
	Vars     map[string]any `json:"vars,omitempty" jsonschema:"template variables; lists expand to one quoted word per element"`
}

func (h *handler) renderHandler(ctx context.Context, req *mcp.CallToolRequest, params renderParams) (*mcp.CallToolResult, any, error) {
	e := h.current()
	script, err := pax.Render(params.Template, vars(params.Vars), e.Config.Vars)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to render template: %v", err))
	}
	return textResult(script)
}
