// Package match filters already fetched resource names with shell-style
// `*` patterns. Patterns are never sent to a backend.
package match

import (
	"regexp"
	"strings"
)

// ToRegex quotes every literal part of pattern, turns `*` into `.*` and
// anchors the result.
func ToRegex(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// EnsureWildcard appends `*` unless the pattern already ends with one.
func EnsureWildcard(pattern string) string {
	if strings.HasSuffix(pattern, "*") {
		return pattern
	}
	return pattern + "*"
}

// Filter returns the names matching pattern in their original order.
// Empty names never match.
func Filter(names []string, pattern string) []string {
	re := ToRegex(pattern)
	var out []string
	for _, n := range names {
		if n != "" && re.MatchString(n) {
			out = append(out, n)
		}
	}
	return out
}
