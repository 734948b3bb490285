// Package template parses command templates into literal text and
// interpolated values.
//
// The syntax follows string-interpolation literals:
//
//	{{ and }}          literal braces
//	{expr}             interpolation
//	{expr!r}           conversion (!r, !s, !a)
//	{expr:>10}         format spec
//	{expr!r:>10}       both
//	{expr=}            debug form, emits "expr=" before the value
//
// Expressions are evaluated with expr-lang against an explicit scope, so
// map literals, arrays, member access and operators work inside a field.
package template

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
)

// Scope maps variable names to values visible to template expressions.
type Scope map[string]any

// Conversion is the optional conversion flag of an interpolation.
type Conversion byte

// Conversion flags.
const (
	ConvNone  Conversion = 0
	ConvRepr  Conversion = 'r'
	ConvStr   Conversion = 's'
	ConvASCII Conversion = 'a'
)

// Part is either a Literal or an *Interpolation.
type Part interface {
	isPart()
}

// Literal is static template text.
type Literal string

func (Literal) isPart() {}

// Interpolation is an evaluated template field.
type Interpolation struct {
	Value      any        // evaluated expression value
	Expression string     // source text of the expression, trimmed
	Conversion Conversion // ConvNone when no !r, !s or !a was given
	FormatSpec string     // text after the top-level ':'; empty if none
}

func (*Interpolation) isPart() {}

// SyntaxError reports a malformed template.
type SyntaxError struct {
	Offset int // byte offset into the template
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template: %s at offset %d", e.Msg, e.Offset)
}

// Parse splits text into literal and interpolated parts, evaluating each
// field against locals, then globals. Evaluation errors are returned as
// produced by the expression engine.
func Parse(text string, locals, globals Scope) ([]Part, error) {
	env := merge(locals, globals)

	var parts []Part
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			parts = append(parts, Literal(buf.String()))
			buf.Reset()
		}
	}

	n := len(text)
	for i := 0; i < n; {
		c := text[i]
		switch {
		case c == '{' && i+1 < n && text[i+1] == '{':
			buf.WriteByte('{')
			i += 2
		case c == '}' && i+1 < n && text[i+1] == '}':
			buf.WriteByte('}')
			i += 2
		case c == '}':
			return nil, &SyntaxError{Offset: i, Msg: "single '}' is not allowed"}
		case c == '{':
			field, next, err := extractField(text, i)
			if err != nil {
				return nil, err
			}
			interp, prefix, err := parseField(field, i, env)
			if err != nil {
				return nil, err
			}
			buf.WriteString(prefix)
			flush()
			parts = append(parts, interp)
			i = next
		default:
			buf.WriteByte(c)
			i++
		}
	}
	flush()

	return parts, nil
}

// merge flattens the two scopes; locals shadow globals.
func merge(locals, globals Scope) map[string]any {
	env := make(map[string]any, len(locals)+len(globals))
	for k, v := range globals {
		env[k] = v
	}
	for k, v := range locals {
		env[k] = v
	}
	return env
}

// extractField returns the raw text between the '{' at open and its
// matching '}', and the offset just past the closing brace.
func extractField(text string, open int) (string, int, error) {
	depth := 0
	for i := open + 1; i < len(text); {
		switch c := text[i]; c {
		case '\'', '"', '`':
			end, ok := skipString(text, i)
			if !ok {
				return "", 0, &SyntaxError{Offset: open, Msg: "unterminated '{'"}
			}
			i = end
			continue
		case '(', '[', '{':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case '}':
			if depth == 0 {
				return text[open+1 : i], i + 1, nil
			}
			depth--
		}
		i++
	}
	return "", 0, &SyntaxError{Offset: open, Msg: "unterminated '{'"}
}

// skipString returns the offset just past the string literal starting at
// s[i]. Triple-quoted forms are recognised for ' and ". Backquoted strings
// are raw: backslashes do not escape.
func skipString(s string, i int) (int, bool) {
	q := s[i]
	if q != '`' && i+2 < len(s) && s[i+1] == q && s[i+2] == q {
		delim := s[i : i+3]
		for j := i + 3; j < len(s); {
			if s[j] == '\\' {
				j += 2
				continue
			}
			if strings.HasPrefix(s[j:], delim) {
				return j + 3, true
			}
			j++
		}
		return len(s), false
	}

	for j := i + 1; j < len(s); {
		switch s[j] {
		case '\\':
			if q != '`' {
				j += 2
				continue
			}
		case q:
			return j + 1, true
		}
		j++
	}
	return len(s), false
}

// findTopLevel returns the first offset in s, outside brackets and string
// literals, for which match reports true, or -1.
func findTopLevel(s string, match func(i int) bool) int {
	depth := 0
	for i := 0; i < len(s); {
		switch s[i] {
		case '\'', '"', '`':
			end, _ := skipString(s, i)
			i = end
			continue
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
		if depth == 0 && match(i) {
			return i
		}
		i++
	}
	return -1
}

// parseField splits a raw field into expression, conversion and format
// spec, then evaluates the expression. open is the offset of the field's
// '{' in the template. The returned prefix is non-empty for debug fields.
func parseField(raw string, open int, env map[string]any) (*Interpolation, string, error) {
	expression := raw
	prefix := ""

	trimmed := strings.TrimRightFunc(raw, unicode.IsSpace)
	if strings.HasSuffix(trimmed, "=") && !hasComparisonSuffix(trimmed) {
		prefix = raw
		expression = trimmed[:len(trimmed)-1]
	}

	spec := ""
	if pos := findTopLevel(expression, func(i int) bool { return expression[i] == ':' }); pos >= 0 {
		spec = expression[pos+1:]
		expression = expression[:pos]
	}

	conv := ConvNone
	last := len(expression) - 2
	pos := findTopLevel(expression, func(i int) bool {
		return i == last && expression[i] == '!' && strings.IndexByte("rsa", expression[i+1]) >= 0
	})
	if pos >= 0 {
		conv = Conversion(expression[pos+1])
		expression = expression[:pos]
	}

	if prefix != "" && conv == ConvNone && spec == "" {
		conv = ConvRepr
	}

	source := strings.TrimSpace(expression)
	if source == "" {
		return nil, "", &SyntaxError{Offset: open, Msg: "empty expression"}
	}

	value, err := evaluate(source, env)
	if err != nil {
		return nil, "", err
	}

	return &Interpolation{
		Value:      value,
		Expression: source,
		Conversion: conv,
		FormatSpec: spec,
	}, prefix, nil
}

func hasComparisonSuffix(s string) bool {
	for _, op := range []string{"==", "!=", "<=", ">="} {
		if strings.HasSuffix(s, op) {
			return true
		}
	}
	return false
}

func evaluate(source string, env map[string]any) (any, error) {
	program, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}
