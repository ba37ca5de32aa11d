// Package strings provides list helpers for operator-supplied settings such as
// test zone lists and DNSSEC algorithm lists.
package strings

import (
	"sort"
	"strings"
)

// DedupeAndTrimLower trims, lowercases and deduplicates values, dropping
// empty entries. Order of first appearance is preserved.
//
// Example:
//
//	DedupeAndTrimLower([]string{" .TEST ", ".test", "", ".example"})
//	// Returns: []string{".test", ".example"}
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// LongestFirst returns a copy of values ordered by descending length, ties
// broken lexically, so suffix matching picks the most specific entry.
func LongestFirst(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}
