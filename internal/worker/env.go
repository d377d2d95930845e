package worker

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// envFilter selects which server environment variables a worker inherits.
type envFilter struct {
	patterns []glob.Glob
	extra    []string
}

// newEnvFilter compiles passthrough glob patterns (matched against variable
// names) and records extra KEY=VALUE entries that are always set.
func newEnvFilter(passthrough, extra []string) (*envFilter, error) {
	f := &envFilter{extra: extra}
	for _, pattern := range passthrough {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid env passthrough pattern %q: %w", pattern, err)
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

// apply returns the worker environment built from environ. Extra entries
// override inherited variables of the same name.
func (f *envFilter) apply(environ []string) []string {
	overridden := make(map[string]bool, len(f.extra))
	for _, kv := range f.extra {
		overridden[envKey(kv)] = true
	}

	env := make([]string, 0, len(environ)+len(f.extra))
	for _, kv := range environ {
		key := envKey(kv)
		if key == "" || overridden[key] {
			continue
		}
		if f.matches(key) {
			env = append(env, kv)
		}
	}
	return append(env, f.extra...)
}

func (f *envFilter) matches(key string) bool {
	for _, g := range f.patterns {
		if g.Match(key) {
			return true
		}
	}
	return false
}

func envKey(kv string) string {
	key, _, _ := strings.Cut(kv, "=")
	return key
}
