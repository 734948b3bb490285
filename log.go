package pax

import (
	"io"

	"github.com/deixis/pax/internal/logging"
)

// diag receives retry warnings and the Log* helpers. It writes to stderr
// so diagnostics never mix with captured command output.
var diag = logging.New(nil)

// SetLogOutput redirects diagnostics to w. A nil w restores os.Stderr.
func SetLogOutput(w io.Writer) { diag.SetOutput(w) }

// Log writes args space-separated at the current indent level.
func Log(args ...any) { diag.Plain(args...) }

// LogStep writes args with the first word in bold green.
func LogStep(args ...any) { diag.Step(args...) }

// LogError writes args with the first word in bold red.
func LogError(args ...any) { diag.Error(args...) }

// LogWarn writes args with the first word in bold yellow.
func LogWarn(args ...any) { diag.Warn(args...) }

// LogLight writes args in gray.
func LogLight(args ...any) { diag.Light(args...) }

// LogIndent indents subsequent log lines by one level until release is
// called. Calling release more than once has no further effect.
//
//	release := pax.LogIndent()
//	defer release()
func LogIndent() (release func()) { return diag.Indent() }

// WithLogIndent runs fn one indent level deeper. The level is restored
// even if fn panics.
func WithLogIndent(fn func() error) error {
	release := diag.Indent()
	defer release()
	return fn()
}
