// Command pax renders command templates and runs them through the shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deixis/pax"
	"github.com/deixis/pax/internal/config"
	"github.com/deixis/pax/internal/logging"
	"github.com/deixis/pax/internal/report"
)

// timeoutExitCode is the exit status for commands killed on timeout,
// matching timeout(1).
const timeoutExitCode = 124

// exitError carries a child exit status out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// globals are the persistent flags shared by every subcommand.
type globals struct {
	verbose bool
	runsDir string
	logger  *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			pax.LogError("error", exit.err)
		}
		return exit.code
	}
	pax.LogError("error", err)
	return 1
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "pax",
		Short: "Render command templates and run them safely through the shell",
		Long: `pax builds shell commands from templates such as "grep -r {pattern} {dirs}".

Every interpolated value is shell-quoted, so variables can never inject
shell syntax. Recipes of named steps can be defined in a .pax file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger(g.verbose)
			if err != nil {
				return err
			}
			g.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&g.runsDir, "runs", filepath.Join(os.TempDir(), "pax-runs"), "directory storing recipe run results")

	root.AddCommand(
		newRenderCmd(),
		newRunCmd(),
		newRecipeCmd(g),
		newRecipesCmd(),
		newInspectCmd(g),
		newMCPCmd(g),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), pax.Version)
		},
	}
}

// loadConfig loads the .pax file governing the working directory.
func loadConfig() (*config.LoadResult, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return loaded, nil
}

func (g *globals) store() report.Store {
	return report.NewLRUStore(5, report.NewDiskStore(g.runsDir))
}
