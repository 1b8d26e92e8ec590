package pty

import (
	"sort"
	"strings"
)

// BuildEnv returns a copy of base with each default appended when base does
// not already set that variable. Defaults with an empty value are skipped.
// The result is independent of base and of the process environment.
func BuildEnv(base []string, defaults map[string]string) []string {
	env := make([]string, 0, len(base)+len(defaults))
	present := make(map[string]bool, len(base))
	for _, kv := range base {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		present[key] = true
		env = append(env, kv)
	}

	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if present[k] || defaults[k] == "" {
			continue
		}
		env = append(env, k+"="+defaults[k])
	}
	return env
}
