// Package logging provides the styled diagnostic lines pax writes to
// stderr and the structured logger used by the pax binary.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// IndentUnit is the prefix added per indent level.
const IndentUnit = "  "

var (
	green  = lipgloss.Color("2")
	red    = lipgloss.Color("1")
	yellow = lipgloss.Color("3")
	gray   = lipgloss.Color("8")
)

// Styled writes indented, optionally colored lines. Colors are dropped when
// the output is not a terminal. It is safe for concurrent use.
type Styled struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *lipgloss.Renderer
	level    int
}

// New returns a Styled writing to w, or to os.Stderr when w is nil.
func New(w io.Writer) *Styled {
	s := &Styled{}
	s.SetOutput(w)
	return s
}

// SetOutput redirects output to w, or to os.Stderr when w is nil.
func (s *Styled) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = w
	s.renderer = lipgloss.NewRenderer(w)
}

// Plain writes args space-separated, without color.
func (s *Styled) Plain(args ...any) { s.emit(join(args), nil, false) }

// Step writes args with the first word bold green.
func (s *Styled) Step(args ...any) { s.emit(join(args), green, true) }

// Error writes args with the first word bold red.
func (s *Styled) Error(args ...any) { s.emit(join(args), red, true) }

// Warn writes args with the first word bold yellow.
func (s *Styled) Warn(args ...any) { s.emit(join(args), yellow, true) }

// Light writes the whole line in gray.
func (s *Styled) Light(args ...any) { s.emit(join(args), gray, false) }

// Indent increments the indent level and returns a function restoring it.
// The returned function is safe to call more than once; only the first
// call has an effect.
func (s *Styled) Indent() (release func()) {
	s.mu.Lock()
	s.level++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.level = max(0, s.level-1)
		})
	}
}

// Level reports the current indent level.
func (s *Styled) Level() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

func (s *Styled) emit(text string, color lipgloss.TerminalColor, firstWordOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := text
	if color != nil {
		style := s.renderer.NewStyle().Foreground(color).TabWidth(lipgloss.NoTabConversion)
		if firstWordOnly {
			style = style.Bold(true)
			end := strings.IndexAny(text, " \t\n")
			if end < 0 {
				end = len(text)
			}
			line = style.Render(text[:end]) + text[end:]
		} else {
			line = renderLines(style, text)
		}
	}
	fmt.Fprintln(s.out, strings.Repeat(IndentUnit, s.level)+line)
}

// renderLines styles each line on its own so lines are not padded to the
// widest one.
func renderLines(style lipgloss.Style, text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = style.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

func join(args []any) string {
	return strings.TrimSuffix(fmt.Sprintln(args...), "\n")
}
