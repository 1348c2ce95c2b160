package cli

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseArguments turns command-line tool arguments into a JSON object.
// It accepts either one JSON object or key=value pairs. Values that parse
// as JSON (numbers, booleans, arrays, objects, quoted strings) keep their
// type; anything else is a string.
func ParseArguments(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}

	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(args[0]), &obj); err != nil {
			return nil, fmt.Errorf("invalid JSON arguments: %w", err)
		}
		return obj, nil
	}

	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q: expected key=value", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

// ParseEnv turns KEY=VALUE flags into an environment map.
func ParseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid environment variable %q: expected KEY=VALUE", pair)
		}
		env[k] = v
	}
	return env, nil
}
