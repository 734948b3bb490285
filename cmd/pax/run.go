package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/deixis/pax"
	"github.com/deixis/pax/internal/config"
)

var outputModes = []string{"text", "lines", "json", "bytes"}

// commandFlags configure a command built from a template.
type commandFlags struct {
	vars       varFlags
	pipe       []string
	cwd        string
	env        []string
	unenv      []string
	stdin      string
	timeout    time.Duration
	retry      int
	retryDelay time.Duration
	shell      string
	noThrow    bool
	quiet      bool
	maxOutput  int
	output     string
}

func newRenderCmd() *cobra.Command {
	var f commandFlags
	cmd := &cobra.Command{
		Use:   "render TEMPLATE",
		Short: "Print the shell text a template resolves to",
		Example: `  pax render 'grep -r {pattern} {dirs}' --var pattern='a b' --json-var dirs='["src","docs"]'
  # grep -r 'a b' src docs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := f.command(loaded.Config, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.Line())
			return nil
		},
	}
	f.vars.register(cmd.Flags())
	cmd.Flags().StringArrayVar(&f.pipe, "pipe", nil, "pipe the output through another `template` (repeatable)")
	return cmd
}

func newRunCmd() *cobra.Command {
	var f commandFlags
	cmd := &cobra.Command{
		Use:   "run TEMPLATE",
		Short: "Render a template and run it through the shell",
		Long: `Render a template and run it through the shell.

By default the command inherits the terminal's streams and pax exits with
the command's exit status. With --output, stdout is captured and printed
in the requested form.`,
		Example: `  pax run 'ls -la {dir}' --var dir='My Documents'
  pax run 'git log --format=%s -n {n}' --json-var n=5 --output lines
  pax run 'cat {file}' --var file=data.json --pipe 'jq .items' --output json`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if f.output != "" && !slices.Contains(outputModes, f.output) {
				return fmt.Errorf("--output %q: want one of %v", f.output, outputModes)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := f.command(loaded.Config, args[0])
			if err != nil {
				return err
			}
			return f.run(cmd.Context(), cmd.OutOrStdout(), c)
		},
	}

	fs := cmd.Flags()
	f.vars.register(fs)
	fs.StringArrayVar(&f.pipe, "pipe", nil, "pipe the output through another `template` (repeatable)")
	fs.StringVarP(&f.cwd, "cwd", "C", "", "working `directory`")
	fs.StringArrayVarP(&f.env, "env", "e", nil, "environment variable `KEY=VALUE` (repeatable)")
	fs.StringArrayVar(&f.unenv, "unenv", nil, "remove an inherited environment `variable` (repeatable)")
	fs.StringVar(&f.stdin, "stdin", "", "`data` written to stdin instead of inheriting it")
	fs.DurationVarP(&f.timeout, "timeout", "t", 0, "kill the command after this long (default from .pax, none if unset)")
	fs.IntVarP(&f.retry, "retry", "r", 0, "retries after a failed attempt (default from .pax)")
	fs.DurationVar(&f.retryDelay, "retry-delay", 0, "delay between attempts (default from .pax, 1s if unset)")
	fs.StringVar(&f.shell, "shell", "", "shell `executable` (default from .pax, /bin/sh if unset)")
	fs.BoolVar(&f.noThrow, "no-throw", false, "exit 0 even when the command fails")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "capture output instead of printing it")
	fs.IntVar(&f.maxOutput, "max-output", 0, "cap captured output per stream in `bytes` (default from .pax)")
	fs.StringVarP(&f.output, "output", "o", "", "capture stdout and print it as text, lines, json or bytes")
	return cmd
}

// command renders tmpl and its pipe templates into a configured Command.
// Flags take precedence over the .pax settings.
func (f *commandFlags) command(cfg *config.Config, tmpl string) (pax.Command, error) {
	vars, err := f.vars.parse()
	if err != nil {
		return pax.Command{}, err
	}
	env, err := parseEnv(f.env)
	if err != nil {
		return pax.Command{}, err
	}

	timeout := f.timeout
	if timeout == 0 {
		timeout = cfg.Timeout()
	}
	shell := f.shell
	if shell == "" {
		shell = cfg.Shell
	}
	maxOutput := f.maxOutput
	if maxOutput == 0 {
		maxOutput = cfg.MaxOutputBytes()
	}

	apply := func(c pax.Command) pax.Command {
		c = c.Cwd(f.cwd).Env(env).Timeout(timeout).MaxOutput(maxOutput)
		for _, k := range f.unenv {
			c = c.Unenv(k)
		}
		if shell != "" {
			c = c.Shell(shell)
		}
		if f.noThrow {
			c = c.NoThrow()
		}
		if f.quiet {
			c = c.Quiet()
		}
		return c
	}

	head, err := pax.Sh(tmpl, vars, cfg.Vars)
	if err != nil {
		return pax.Command{}, err
	}
	c := apply(head)
	if f.stdin != "" {
		c = c.StdinString(f.stdin)
	}
	for _, p := range f.pipe {
		next, err := pax.Sh(p, vars, cfg.Vars)
		if err != nil {
			return pax.Command{}, fmt.Errorf("pipe %q: %w", p, err)
		}
		c = c.Pipe(apply(next))
	}

	retry := f.retry
	if retry == 0 {
		retry = cfg.Retry.Count
	}
	delay := f.retryDelay
	if delay == 0 {
		delay = cfg.RetryDelay()
	}
	if retry > 0 {
		c = c.Retry(retry, delay)
	}
	return c, nil
}

// run executes c and prints captured output in the selected mode.
func (f *commandFlags) run(ctx context.Context, out io.Writer, c pax.Command) error {
	if f.output != "" {
		c = c.Stdout(pax.Piped)
	}

	res, err := c.Run(ctx)
	if err != nil {
		return exitFor(err)
	}

	switch f.output {
	case "text":
		fmt.Fprintln(out, res.Text())
	case "lines":
		for _, line := range res.Lines() {
			fmt.Fprintln(out, line)
		}
	case "json":
		var v any
		if err := res.JSON(&v); err != nil {
			return fmt.Errorf("decoding stdout as JSON: %w", err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
	case "bytes":
		if _, err := out.Write(res.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// exitFor maps a command failure onto the process exit status.
func exitFor(err error) error {
	var timeoutErr *pax.TimeoutError
	if errors.As(err, &timeoutErr) {
		return &exitError{code: timeoutExitCode, err: err}
	}
	var cmdErr *pax.CommandError
	if errors.As(err, &cmdErr) {
		return &exitError{code: cmdErr.Result.Code, err: err}
	}
	return err
}
