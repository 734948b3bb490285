package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	paxmcp "github.com/deixis/pax/internal/mcp"
)

func newMCPCmd(g *globals) *cobra.Command {
	var (
		instructions bool
		httpAddr     string
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Long: `Start the MCP server on stdio, or over streamable HTTP with --http.

The server exposes pax_render, pax_run, pax_recipes, pax_recipe and
pax_inspect, configured from the .pax file of the working directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if instructions {
				fmt.Fprint(cmd.OutOrStdout(), paxmcp.Instructions)
				return nil
			}
			return serve(cmd.Context(), g, httpAddr)
		},
	}
	cmd.Flags().BoolVar(&instructions, "instructions", false, "print model instructions and exit")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve over HTTP on `address` (e.g. :9090)")
	return cmd
}

func serve(ctx context.Context, g *globals, httpAddr string) error {
	loaded, err := loadConfig()
	if err != nil {
		return err
	}

	server := paxmcp.NewServer(loaded.Config, g.store(), loaded.Root, paxmcp.WithLogger(g.logger))
	g.logger.Debug("mcp server configured",
		zap.String("workspace", loaded.Root),
		zap.Strings("recipes", loaded.Config.RecipeNames()),
	)

	if httpAddr != "" {
		return serveHTTP(ctx, g.logger, server, httpAddr)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, logger *zap.Logger, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
