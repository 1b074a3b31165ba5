package utils

import (
	"strings"
)

// Dedup removes duplicates while preserving order. Trailing slashes are
// trimmed first so endpoint URLs that differ only by a slash collapse.
func Dedup(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, e := range in {
		e = strings.TrimRight(e, "/")
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
