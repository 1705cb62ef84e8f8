package plugin

import (
	"strconv"
	"strings"
)

// Options documents a module's configuration surface: defaults plus a
// human-readable description per key. Overrides supplied at setup extend or
// replace the defaults without validation; type coercion is left to the
// reader helpers below.
type Options struct {
	Defaults     map[string]string
	Descriptions map[string]string
}

// Merge returns a fresh mapping of the defaults overlaid with overrides.
// Neither input is mutated; the result is owned by the caller and must not
// change once the module's Setup completes.
func (o Options) Merge(overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(o.Defaults)+len(overrides))
	for k, v := range o.Defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// OptBool reads key as a boolean; unparsable or missing values are false.
func OptBool(opts map[string]string, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(opts[key]))
	return err == nil && v
}

// OptInt reads key as an integer; unparsable or missing values yield def.
func OptInt(opts map[string]string, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(opts[key]))
	if err != nil {
		return def
	}
	return n
}

// OptString reads key, falling back to def when unset or blank.
func OptString(opts map[string]string, key, def string) string {
	if v := strings.TrimSpace(opts[key]); v != "" {
		return v
	}
	return def
}
