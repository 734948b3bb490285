// Package mcp provides the pax MCP server, registering all tools and
// publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/deixis/pax"
	"github.com/deixis/pax/internal/config"
	"github.com/deixis/pax/internal/recipe"
	"github.com/deixis/pax/internal/report"
	"github.com/deixis/pax/internal/template"
)

//go:embed instructions.md
var Instructions string

// defaultTimeout bounds tool-run commands when the config sets no timeout.
const defaultTimeout = 5 * time.Minute

// handler holds shared dependencies for all tool handlers.
type handler struct {
	mu     sync.RWMutex
	engine *recipe.Engine
	store  report.Store
	logger *zap.Logger
}

// NewServer creates an MCP server with all pax tools registered.
func NewServer(cfg *config.Config, store report.Store, workspace string, opts ...ServerOption) *mcp.Server {
	so := serverOptions{logger: zap.NewNop()}
	for _, o := range opts {
		o(&so)
	}

	h := &handler{
		engine: newEngine(cfg, store, workspace),
		store:  store,
		logger: so.logger,
	}

	mcpOpts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "pax", Version: pax.Version}, mcpOpts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "pax_render",
		Description: `Resolve a command template to shell text without running it.

Fields like {name} are evaluated against vars and the .pax global vars, then shell-quoted.
Use this to check exactly what pax_run would execute.`,
	}, h.renderHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "pax_run",
		Description: `Render a command template and run it through the shell.

Values interpolated with {name} are always shell-quoted; pipe lists further templates the output
flows through. Output is captured and the run is stored for drill-down via pax_inspect.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "pax_recipes",
		Description: "List the recipes defined in the workspace .pax file with their steps.",
	}, h.recipesHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "pax_recipe",
		Description: `Run a recipe from the .pax file.

Sequential recipes stop on the first failing step; parallel recipes run every step.
Results are stored for drill-down via pax_inspect.`,
	}, h.recipeHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "pax_inspect",
		Description: `Show a stored pax_run or pax_recipe run.

Without step, returns the per-step summary. With step (a step name or 1-based position),
returns that step's command, exit code and full captured output. Without run_id, lists recent runs.`,
	}, h.inspectHandler)

	return s
}

// ServerOption configures the pax MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger *zap.Logger
}

// WithLogger sets the logger used for operational messages.
func WithLogger(l *zap.Logger) ServerOption {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// newEngine builds the recipe engine used by tool handlers. Step output
// is never echoed: stdout carries the protocol in stdio mode.
func newEngine(cfg *config.Config, store report.Store, workspace string) *recipe.Engine {
	return &recipe.Engine{
		Config:    cfg,
		Workspace: workspace,
		Store:     store,
		Stdout:    io.Discard,
		Stderr:    io.Discard,
	}
}

func (h *handler) current() *recipe.Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

// updateWorkspaceFromRoots queries the client for MCP roots and switches
// the workspace and config to the first file root. This is called during
// session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		h.logger.Debug("listing roots failed", zap.Error(err))
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.logger.Warn("loading config from root failed", zap.String("root", workspace), zap.Error(err))
		return
	}

	h.mu.Lock()
	h.engine = newEngine(loaded.Config, h.store, loaded.Root)
	h.mu.Unlock()
	h.logger.Info("workspace updated from roots", zap.String("root", loaded.Root))
}

// vars converts JSON tool arguments into template variables.
func vars(in map[string]any) pax.Vars {
	if in == nil {
		return nil
	}
	return pax.Vars(template.FromJSON(in).(map[string]any))
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
