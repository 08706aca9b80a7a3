// Package genre provides a static genre hierarchy lookup. The hierarchy
// data itself is out of this module's scope (spec's Non-goals); this
// package defines the seam a caller populates and the transitive-closure
// algorithm the cache updater relies on.
package genre

import "sort"

// Hierarchy maps a genre name to its immediate parent genres. It is
// populated once at startup and treated as immutable afterward, the same
// way Config is.
type Hierarchy map[string][]string

// Parents returns the sorted transitive closure of parent genres for the
// given primary genres, per spec invariant: "Parent genres are the sorted
// transitive closure of primary genres under the static hierarchy."
func (h Hierarchy) Parents(primary []string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(g string) {
		for _, p := range h[g] {
			if !seen[p] {
				seen[p] = true
				walk(p)
			}
		}
	}
	for _, g := range primary {
		walk(g)
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
