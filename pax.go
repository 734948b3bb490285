// Package pax builds and runs shell commands from string templates.
//
// A template such as "echo {name}" is parsed into literal text and
// interpolated expressions. Each expression is evaluated against explicit
// variable maps and the value is shell-quoted before it reaches the
// command text, so values cannot break out of their argument position:
//
//	cmd, err := pax.Sh("grep -r {pattern} {dirs}", pax.Vars{
//		"pattern": "a b; rm -rf /",
//		"dirs":    []string{"src", "docs"},
//	})
//	// grep -r 'a b; rm -rf /' src docs
//
// Commands are immutable: every builder method returns a new Command, so
// partially configured commands can be shared freely.
//
//	lines, err := cmd.Cwd(root).Timeout(5 * time.Second).Lines(ctx)
//
// Use Raw for trusted shell fragments that must not be quoted.
package pax

import (
	"maps"

	"github.com/deixis/pax/internal/shell"
	"github.com/deixis/pax/internal/template"
)

// Version is the current pax release.
const Version = "0.1.0"

// Vars maps template variable names to values.
type Vars = template.Scope

// Raw is a trusted shell fragment interpolated without quoting.
//
//	pax.Sh("find . {flags}", pax.Vars{"flags": pax.Raw("-type f")})
type Raw = shell.Raw

// TemplateSyntaxError reports a malformed template.
type TemplateSyntaxError = template.SyntaxError

// FormatError reports an invalid format spec or a value the spec cannot
// format.
type FormatError = template.FormatError

// Sh parses tmpl, evaluates its fields and returns the resulting Command.
// The first scope is the local scope; later scopes are merged into the
// global scope with earlier ones taking precedence.
//
// Malformed templates return a *TemplateSyntaxError. Expression errors are
// returned as produced by the expression engine.
func Sh(tmpl string, scopes ...Vars) (Command, error) {
	script, err := Render(tmpl, scopes...)
	if err != nil {
		return Command{}, err
	}
	return Cmd(script), nil
}

// MustSh is like Sh but panics on error.
func MustSh(tmpl string, scopes ...Vars) Command {
	cmd, err := Sh(tmpl, scopes...)
	if err != nil {
		panic(err)
	}
	return cmd
}

// Render resolves tmpl to shell command text without building a Command.
func Render(tmpl string, scopes ...Vars) (string, error) {
	var locals Vars
	globals := Vars{}
	if len(scopes) > 0 {
		locals = scopes[0]
	}
	for i := len(scopes) - 1; i >= 1; i-- {
		maps.Copy(globals, scopes[i])
	}

	parts, err := template.Parse(tmpl, locals, globals)
	if err != nil {
		return "", err
	}
	return shell.Resolve(parts)
}

// Cmd returns a Command for already resolved shell text. The text is used
// verbatim.
func Cmd(script string) Command {
	return Command{script: script}
}
