// Package strings holds the list cleanup shared by scope and config handling.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim trims every element and drops blanks and repeats, keeping
// first-seen order. A nil input stays nil.
//
//	DedupeAndTrim([]string{" openid ", "accounts", "openid", ""})
//	// []string{"openid", "accounts"}
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
