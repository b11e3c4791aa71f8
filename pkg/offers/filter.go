package offers

import "sort"

// DefaultMinCount is the occurrence threshold used when none is configured.
const DefaultMinCount = 10

// Filter keeps the entries seen at least minCount times and returns them in
// sitemap order: count descending, then key ascending. The input is not
// modified.
func Filter(entries []Entry, minCount int) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		if e.Count >= minCount {
			out = append(out, e)
		}
	}
	SortEntries(out)
	return out
}

// SortEntries orders entries in place by count descending, then key ascending.
func SortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
}
