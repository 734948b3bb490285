package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/deixis/pax"
	"github.com/deixis/pax/internal/template"
)

// varFlags collects template variables from repeated flags.
type varFlags struct {
	strs  []string // --var key=value
	jsons []string // --json-var key=<json>
	raws  []string // --raw-var key=<shell fragment>
}

func (f *varFlags) register(fs *pflag.FlagSet) {
	fs.StringArrayVar(&f.strs, "var", nil, "string variable `key=value` (repeatable)")
	fs.StringArrayVar(&f.jsons, "json-var", nil, "JSON variable `key=json`; lists expand to one word per element (repeatable)")
	fs.StringArrayVar(&f.raws, "raw-var", nil, "unquoted shell fragment `key=text` (repeatable)")
}

// parse builds the template variables. Later flags override earlier ones
// with the same key.
func (f *varFlags) parse() (pax.Vars, error) {
	vars := pax.Vars{}
	for _, kv := range f.strs {
		k, v, err := splitAssign("--var", kv)
		if err != nil {
			return nil, err
		}
		vars[k] = v
	}
	for _, kv := range f.jsons {
		k, raw, err := splitAssign("--json-var", kv)
		if err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("--json-var %s: %w", k, err)
		}
		vars[k] = template.FromJSON(v)
	}
	for _, kv := range f.raws {
		k, v, err := splitAssign("--raw-var", kv)
		if err != nil {
			return nil, err
		}
		vars[k] = pax.Raw(v)
	}
	return vars, nil
}

// parseEnv converts KEY=VALUE pairs into a map.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, err := splitAssign("--env", kv)
		if err != nil {
			return nil, err
		}
		env[k] = v
	}
	return env, nil
}

func splitAssign(flag, kv string) (string, string, error) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return "", "", fmt.Errorf("%s %q: want key=value", flag, kv)
	}
	return k, v, nil
}
