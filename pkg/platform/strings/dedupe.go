// Package strings holds small string-slice helpers.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops empties and repeats, keeping the
// first occurrence order. Gateway role lists arrive in this shape.
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a comma separated header value and cleans it with
// DedupeAndTrim.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	return DedupeAndTrim(strings.Split(raw, ","))
}
