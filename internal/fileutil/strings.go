package fileutil

import "sort"

// SortedUnion merges string lists into one sorted list without
// duplicates.
func SortedUnion(lists ...[]string) []string {
	set := make(map[string]bool)
	for _, list := range lists {
		for _, item := range list {
			set[item] = true
		}
	}
	return MapKeysSorted(set)
}

func MapKeysSorted(values map[string]bool) []string {
	out := make([]string, 0, len(values))
	for key := range values {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
