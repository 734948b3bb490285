package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deixis/pax"
	"github.com/deixis/pax/internal/recipe"
	"github.com/deixis/pax/internal/report"
)

func newRecipeCmd(g *globals) *cobra.Command {
	var vars varFlags
	cmd := &cobra.Command{
		Use:   "recipe NAME",
		Short: "Run a recipe from the .pax file",
		Long: `Run a recipe from the .pax file.

Sequential recipes stop at the first failing step. Parallel recipes run
every step. The run is stored and can be examined with "pax inspect".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := vars.parse()
			if err != nil {
				return err
			}
			loaded, err := loadConfig()
			if err != nil {
				return err
			}

			engine := &recipe.Engine{
				Config:    loaded.Config,
				Workspace: loaded.Root,
				Store:     g.store(),
				Stdout:    cmd.OutOrStdout(),
				Stderr:    cmd.ErrOrStderr(),
			}
			result, err := engine.Run(cmd.Context(), args[0], v)
			if result == nil {
				return err
			}
			pax.LogLight("run", result.RunResult.ID)
			if err != nil {
				return err
			}
			if result.FailedIdx >= 0 {
				return &exitError{code: 1, err: fmt.Errorf("recipe %s: step %s %s",
					args[0], result.Steps[result.FailedIdx].Name, result.Steps[result.FailedIdx].Status)}
			}
			return nil
		},
	}
	vars.register(cmd.Flags())
	return cmd
}

func newRecipesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "List the recipes defined in the .pax file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range loaded.Config.RecipeNames() {
				r := loaded.Config.Recipes[name]
				if r.Description == "" {
					fmt.Fprintln(out, name)
					continue
				}
				fmt.Fprintf(out, "%-20s %s\n", name, r.Description)
			}
			return nil
		},
	}
}

func newInspectCmd(g *globals) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect RUN_ID [STEP]",
		Short: "Show a stored recipe run, or one of its steps",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := g.store().Load(args[0])
			if errors.Is(err, report.ErrNotFound) {
				return fmt.Errorf("%w (runs are stored in %s)", err, g.runsDir)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var v any = result
			if len(args) == 2 {
				step, err := report.Find(result, args[1])
				if err != nil {
					return err
				}
				if !asJSON {
					_, _ = fmt.Fprint(out, step.Stdout)
					_, _ = fmt.Fprint(cmd.ErrOrStderr(), step.Stderr)
					return nil
				}
				v = step
			}

			if !asJSON {
				fmt.Fprint(out, result.Summary())
				return nil
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored record as JSON")
	return cmd
}
