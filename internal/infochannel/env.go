package infochannel

import (
	"os"
	"sort"
	"strings"
)

// SortedEnv renders a map as NAME=VALUE entries ordered by name.
func SortedEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// EnvMap parses NAME=VALUE entries. Later entries win.
func EnvMap(entries []string) map[string]string {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, _ := strings.Cut(e, "=")
		out[k] = v
	}
	return out
}

// ProcessEnv snapshots the current process environment.
func ProcessEnv() *EnvSource {
	return NewEnvSource(os.Environ())
}
