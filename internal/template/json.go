package template

import "math"

// FromJSON converts values decoded by encoding/json into template-friendly
// values: integral float64 numbers become int so integer format specs
// accept them. Maps and slices are converted recursively.
func FromJSON(v any) any {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) <= 1<<53 {
			return int(x)
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = FromJSON(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = FromJSON(e)
		}
		return out
	}
	return v
}
