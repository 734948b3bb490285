// Package shell turns parsed template parts into a single shell command
// string, quoting every interpolated value unless it is marked Raw.
package shell

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/deixis/pax/internal/template"
)

// Raw marks a trusted shell fragment that is interpolated without
// escaping. Never build a Raw from untrusted input.
type Raw string

func (r Raw) String() string { return string(r) }

// Repr implements template.Reprer.
func (r Raw) Repr() string { return "raw(" + strconv.Quote(string(r)) + ")" }

// Quote returns s as a single shell word.
func Quote(s string) string {
	return shellescape.Quote(s)
}

// QuoteAll quotes each element of args and joins them with spaces.
func QuoteAll(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// Resolve concatenates parts into a command string. Literals pass through
// verbatim; interpolations are converted, formatted and then quoted: Raw
// values verbatim, slices and arrays as one quoted word per element,
// anything else as a single quoted word.
func Resolve(parts []template.Part) (string, error) {
	var b strings.Builder
	for _, part := range parts {
		switch p := part.(type) {
		case template.Literal:
			b.WriteString(string(p))
		case *template.Interpolation:
			v, err := p.Apply()
			if err != nil {
				return "", fmt.Errorf("resolving {%s}: %w", p.Expression, err)
			}
			b.WriteString(word(v))
		default:
			return "", fmt.Errorf("resolving template: unexpected part %T", part)
		}
	}
	return b.String(), nil
}

// word renders one interpolated value.
func word(v any) string {
	switch x := v.(type) {
	case Raw:
		return string(x)
	case []byte:
		return Quote(string(x))
	case []string:
		return QuoteAll(x)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		elems := make([]string, rv.Len())
		for i := range elems {
			elems[i] = template.Str(rv.Index(i).Interface())
		}
		return QuoteAll(elems)
	}
	return Quote(template.Str(v))
}
