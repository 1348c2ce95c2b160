package config

import (
	"os"
	"sort"
	"strings"
)

// ExpandValue expands ${VAR}, $VAR and ${VAR:-default} against the process environment.
func ExpandValue(s string) string {
	return os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

// Environ returns the inherited environment with the server overrides
// appended in a stable order.
func (c ServerConfig) Environ() []string {
	env := os.Environ()
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+ExpandValue(c.Env[k]))
	}
	return env
}
