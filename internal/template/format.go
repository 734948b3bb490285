package template

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Reprer is implemented by values with a custom repr form.
type Reprer interface {
	Repr() string
}

// FormatError reports an invalid format spec or a spec that does not
// apply to the value.
type FormatError struct {
	Spec string
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("template: format spec %q: %s", e.Spec, e.Msg)
}

// Apply returns the value of in after its conversion and format spec.
// Without either, the original value is returned unchanged.
func (in *Interpolation) Apply() (any, error) {
	v := in.Value
	switch in.Conversion {
	case ConvStr:
		v = Str(v)
	case ConvRepr:
		v = Repr(v)
	case ConvASCII:
		v = ASCII(v)
	}
	if in.FormatSpec != "" {
		s, err := Format(v, in.FormatSpec)
		if err != nil {
			return nil, err
		}
		v = s
	}
	return v, nil
}

// Str returns the plain string form of v. Composite values (maps, slices,
// structs) are rendered as compact JSON.
func Str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloatShort(x, 64)
	case float32:
		return formatFloatShort(float64(x), 32)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return Str(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// Repr returns the quoted, unambiguous form of v.
func Repr(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case Reprer:
		return x.Repr()
	case string:
		return strconv.Quote(x)
	case []byte:
		return strconv.Quote(string(x))
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return strconv.Quote(rv.String())
	}
	return Str(v)
}

// ASCII returns Repr(v) with every non-ASCII rune escaped.
func ASCII(v any) string {
	r := Repr(v)
	var b strings.Builder
	for _, c := range r {
		switch {
		case c < utf8.RuneSelf:
			b.WriteRune(c)
		case c <= 0xFFFF:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			fmt.Fprintf(&b, `\U%08x`, c)
		}
	}
	return b.String()
}

func formatFloatShort(f float64, bits int) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// formatSpec is a parsed [[fill]align][sign][#][0][width][grouping][.precision][type].
type formatSpec struct {
	raw       string
	fill      rune
	align     byte // 0, '<', '>', '^', '='
	sign      byte // 0, '+', '-', ' '
	alt       bool
	zero      bool // '0' flag set the fill and alignment
	width     int
	grouping  byte // 0, ',', '_'
	precision int  // -1 when unset
	verb      byte // 0 when unset
}

func (fs formatSpec) errorf(format string, args ...any) error {
	return &FormatError{Spec: fs.raw, Msg: fmt.Sprintf(format, args...)}
}

func isAlign(r rune) bool {
	return r == '<' || r == '>' || r == '^' || r == '='
}

func parseSpec(spec string) (formatSpec, error) {
	fs := formatSpec{raw: spec, fill: ' ', precision: -1}
	rs := []rune(spec)
	i := 0

	switch {
	case len(rs) >= 2 && isAlign(rs[1]):
		fs.fill = rs[0]
		fs.align = byte(rs[1])
		i = 2
	case len(rs) >= 1 && isAlign(rs[0]):
		fs.align = byte(rs[0])
		i = 1
	}

	if i < len(rs) && (rs[i] == '+' || rs[i] == '-' || rs[i] == ' ') {
		fs.sign = byte(rs[i])
		i++
	}
	if i < len(rs) && rs[i] == '#' {
		fs.alt = true
		i++
	}
	if i < len(rs) && rs[i] == '0' {
		if fs.align == 0 {
			fs.fill = '0'
			fs.align = '='
			fs.zero = true
		}
		i++
	}

	start := i
	for i < len(rs) && rs[i] >= '0' && rs[i] <= '9' {
		i++
	}
	if i > start {
		fs.width, _ = strconv.Atoi(string(rs[start:i]))
	}

	if i < len(rs) && (rs[i] == ',' || rs[i] == '_') {
		fs.grouping = byte(rs[i])
		i++
	}

	if i < len(rs) && rs[i] == '.' {
		i++
		start = i
		for i < len(rs) && rs[i] >= '0' && rs[i] <= '9' {
			i++
		}
		if i == start {
			return fs, fs.errorf("missing precision")
		}
		fs.precision, _ = strconv.Atoi(string(rs[start:i]))
	}

	if i < len(rs) && strings.ContainsRune("sdboxXceEfFgGn%", rs[i]) {
		fs.verb = byte(rs[i])
		i++
	}
	if i != len(rs) {
		return fs, fs.errorf("invalid format specifier")
	}
	return fs, nil
}

// Format renders v according to a format spec in the string-interpolation
// mini-language.
func Format(v any, spec string) (string, error) {
	fs, err := parseSpec(spec)
	if err != nil {
		return "", err
	}

	rv := reflect.ValueOf(v)
	if v != nil {
		if _, ok := v.(Reprer); !ok {
			switch rv.Kind() {
			case reflect.Bool:
				if fs.verb == 0 || fs.verb == 's' {
					return formatString(strconv.FormatBool(rv.Bool()), fs)
				}
				n := uint64(0)
				if rv.Bool() {
					n = 1
				}
				if isFloatVerb(fs.verb) {
					return formatFloat(float64(n), fs)
				}
				return formatInt(false, n, fs)
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				n := rv.Int()
				if isFloatVerb(fs.verb) {
					return formatFloat(float64(n), fs)
				}
				return formatInt(n < 0, magnitude(n), fs)
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
				if isFloatVerb(fs.verb) {
					return formatFloat(float64(rv.Uint()), fs)
				}
				return formatInt(false, rv.Uint(), fs)
			case reflect.Float32, reflect.Float64:
				return formatFloat(rv.Float(), fs)
			}
		}
	}

	if fs.verb != 0 && fs.verb != 's' {
		return "", fs.errorf("unknown format code %q for %T", fs.verb, v)
	}
	return formatString(Str(v), fs)
}

func isFloatVerb(verb byte) bool {
	return strings.IndexByte("eEfFgG%", verb) >= 0
}

func magnitude(n int64) uint64 {
	if n >= 0 {
		return uint64(n)
	}
	return uint64(-(n + 1)) + 1
}

func formatString(s string, fs formatSpec) (string, error) {
	if fs.sign != 0 {
		return "", fs.errorf("sign not allowed in string format specifier")
	}
	if fs.alt {
		return "", fs.errorf("alternate form (#) not allowed in string format specifier")
	}
	if fs.align == '=' {
		if !fs.zero {
			return "", fs.errorf("'=' alignment not allowed in string format specifier")
		}
		fs.align = '<'
	}
	if fs.grouping != 0 {
		return "", fs.errorf("cannot specify %q with 's'", fs.grouping)
	}
	if fs.precision >= 0 && utf8.RuneCountInString(s) > fs.precision {
		s = string([]rune(s)[:fs.precision])
	}
	return pad("", s, fs, '<'), nil
}

func formatInt(negative bool, mag uint64, fs formatSpec) (string, error) {
	if fs.precision >= 0 {
		return "", fs.errorf("precision not allowed in integer format specifier")
	}

	base, every, prefix := 10, 3, ""
	switch fs.verb {
	case 0, 'd', 'n':
	case 'b':
		base, every, prefix = 2, 4, "0b"
	case 'o':
		base, every, prefix = 8, 4, "0o"
	case 'x':
		base, every, prefix = 16, 4, "0x"
	case 'X':
		base, every, prefix = 16, 4, "0X"
	case 'c':
		if fs.sign != 0 {
			return "", fs.errorf("sign not allowed with integer format specifier 'c'")
		}
		if negative || mag > utf8.MaxRune {
			return "", fs.errorf("%%c arg not in range")
		}
		return pad("", string(rune(mag)), fs, '<'), nil
	case 's':
		return "", fs.errorf("unknown format code 's' for integer")
	}
	if fs.grouping == ',' && base != 10 {
		return "", fs.errorf("cannot specify ',' with %q", fs.verb)
	}

	digits := strconv.FormatUint(mag, base)
	if fs.verb == 'X' {
		digits = strings.ToUpper(digits)
	}
	digits = group(digits, fs.grouping, every)
	if !fs.alt {
		prefix = ""
	}
	return pad(signOf(negative, fs.sign)+prefix, digits, fs, '>'), nil
}

func formatFloat(f float64, fs formatSpec) (string, error) {
	if fs.verb == 'c' {
		return "", fs.errorf("unknown format code 'c' for float")
	}
	if strings.IndexByte("dboxXs", fs.verb) >= 0 && fs.verb != 0 {
		return "", fs.errorf("unknown format code %q for float", fs.verb)
	}

	negative := math.Signbit(f) && !math.IsNaN(f)
	abs := math.Abs(f)
	upper := fs.verb == 'E' || fs.verb == 'F' || fs.verb == 'G'

	var body, suffix string
	switch {
	case math.IsInf(abs, 0):
		body = "inf"
	case math.IsNaN(abs):
		body = "nan"
	default:
		prec := fs.precision
		switch fs.verb {
		case 'e', 'E':
			if prec < 0 {
				prec = 6
			}
			body = strconv.FormatFloat(abs, 'e', prec, 64)
		case 'f', 'F':
			if prec < 0 {
				prec = 6
			}
			body = strconv.FormatFloat(abs, 'f', prec, 64)
		case '%':
			if prec < 0 {
				prec = 6
			}
			body = strconv.FormatFloat(abs*100, 'f', prec, 64)
			suffix = "%"
		case 'g', 'G', 'n':
			if prec < 0 {
				prec = 6
			}
			if prec == 0 {
				prec = 1
			}
			body = strconv.FormatFloat(abs, 'g', prec, 64)
		default:
			body = strconv.FormatFloat(abs, 'g', prec, 64)
		}
	}
	if upper {
		body = strings.ToUpper(body)
	}

	if fs.grouping != 0 {
		intPart, rest := body, ""
		if i := strings.IndexAny(body, ".eE"); i >= 0 {
			intPart, rest = body[:i], body[i:]
		}
		body = group(intPart, fs.grouping, 3) + rest
	}

	return pad(signOf(negative, fs.sign), body+suffix, fs, '>'), nil
}

func signOf(negative bool, sign byte) string {
	switch {
	case negative:
		return "-"
	case sign == '+':
		return "+"
	case sign == ' ':
		return " "
	}
	return ""
}

// group inserts sep every `every` digits counting from the right.
func group(digits string, sep byte, every int) string {
	if sep == 0 || len(digits) <= every {
		return digits
	}
	var b strings.Builder
	first := len(digits) % every
	if first == 0 {
		first = every
	}
	b.WriteString(digits[:first])
	for i := first; i < len(digits); i += every {
		b.WriteByte(sep)
		b.WriteString(digits[i : i+every])
	}
	return b.String()
}

// pad applies width, fill and alignment. prefix holds the sign and base
// prefix, which '=' alignment keeps in front of the padding.
func pad(prefix, body string, fs formatSpec, defaultAlign byte) string {
	n := utf8.RuneCountInString(prefix) + utf8.RuneCountInString(body)
	if fs.width <= n {
		return prefix + body
	}
	total := fs.width - n
	fill := func(k int) string { return strings.Repeat(string(fs.fill), k) }

	align := fs.align
	if align == 0 {
		align = defaultAlign
	}
	switch align {
	case '<':
		return prefix + body + fill(total)
	case '^':
		left := total / 2
		return fill(left) + prefix + body + fill(total-left)
	case '=':
		return prefix + fill(total) + body
	default:
		return fill(total) + prefix + body
	}
}
