package utils

import (
	"slices"
	"time"
)

// SortedKeys returns the dates of a date-keyed map, oldest first unless
// newestFirst is set.
func SortedKeys[T any](m map[time.Time]T, newestFirst bool) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b time.Time) int {
		if newestFirst {
			return b.Compare(a)
		}
		return a.Compare(b)
	})
	return keys
}
