package template

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reprValue string

func (r reprValue) String() string { return string(r) }
func (r reprValue) Repr() string   { return "R<" + string(r) + ">" }

func TestStr(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "a b", "a b"},
		{"bytes", []byte("xy"), "xy"},
		{"int", 42, "42"},
		{"negative", -7, "-7"},
		{"float", 1.5, "1.5"},
		{"bool", true, "true"},
		{"stringer", 2 * time.Second, "2s"},
		{"map", map[string]any{"a": 1}, `{"a":1}`},
		{"slice", []int{1, 2}, "[1,2]"},
		{"inf", posInf(), "inf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Str(tt.in))
		})
	}
}

func TestRepr(t *testing.T) {
	assert.Equal(t, `"a b"`, Repr("a b"))
	assert.Equal(t, "5", Repr(5))
	assert.Equal(t, "nil", Repr(nil))
	assert.Equal(t, "R<x>", Repr(reprValue("x")))
	assert.Equal(t, `"caf\u00e9"`, ASCII("café"))
	assert.Equal(t, `"\U0001f600"`, ASCII("😀"))
}

func TestFormat(t *testing.T) {
	tests := []struct {
		spec string
		in   any
		want string
	}{
		{">5", 42, "   42"},
		{"<5", 42, "42   "},
		{"^6", "ab", "  ab  "},
		{"*^7", "ab", "**ab***"},
		{"05d", 42, "00042"},
		{"05d", -42, "-0042"},
		{"+d", 3, "+3"},
		{" d", 3, " 3"},
		{"x", 255, "ff"},
		{"#x", 255, "0xff"},
		{"#X", 255, "0XFF"},
		{"b", 5, "101"},
		{"#o", 8, "0o10"},
		{",", 1234567, "1,234,567"},
		{"_x", 0xffffff, "ff_ffff"},
		{"c", 65, "A"},
		{".2f", 3.14159, "3.14"},
		{"f", 1, "1.000000"},
		{".1%", 0.256, "25.6%"},
		{".3e", 1234.5, "1.234e+03"},
		{"E", 0.5, "5.000000E-01"},
		{"g", 0.0001, "0.0001"},
		{"g", 1e-5, "1e-05"},
		{".2", 3.14159, "3.1"},
		{",.2f", 1234567.891, "1,234,567.89"},
		{"=+8.2f", 3.14159, "+   3.14"},
		{".3", "abcdef", "abc"},
		{"s", "abc", "abc"},
		{"05", "ab", "ab000"},
		{">8", reprValue("raw"), "     raw"},
		{"d", true, "1"},
		{"", 7, "7"},
		{"f", posInf(), "inf"},
		{"F", posInf(), "INF"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := Format(tt.in, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormat_Errors(t *testing.T) {
	tests := []struct {
		spec string
		in   any
	}{
		{"d", "abc"},
		{"+s", "abc"},
		{"=5", "abc"},
		{".2d", 5},
		{"d", 1.5},
		{",x", 255},
		{"q", 1},
		{".", 1.0},
		{"f", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := Format(tt.in, tt.spec)
			require.Error(t, err)
			var fe *FormatError
			assert.True(t, errors.As(err, &fe), "want *FormatError, got %T", err)
		})
	}
}

func TestInterpolation_Apply(t *testing.T) {
	in := &Interpolation{Value: "hi", Conversion: ConvRepr, FormatSpec: ">6"}
	got, err := in.Apply()
	require.NoError(t, err)
	assert.Equal(t, `  "hi"`, got)

	plain := &Interpolation{Value: []string{"a"}}
	got, err = plain.Apply()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got, "values without conversion or spec pass through untouched")
}

func posInf() float64 {
	zero := 0.0
	return 1 / zero
}
