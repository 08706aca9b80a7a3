package query

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/jhprks/damerau"

	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/model"
)

var normRE = regexp.MustCompile(`\b0+|[^\pL\pN]`)

// stringNorm strips punctuation and leading/padding zeros and lowercases,
// the same normalization demlo's fuzzy matcher applies before comparing
// release/track titles so that formatting noise doesn't affect a match.
func stringNorm(s string) string {
	return strings.ToLower(normRE.ReplaceAllString(s, ""))
}

// stringRel scores a and b's similarity as 1 minus their normalized
// Damerau-Levenshtein distance: 1 for identical strings, 0 for completely
// unrelated ones.
func stringRel(a, b string) float64 {
	max := len([]rune(a))
	if n := len([]rune(b)); n > max {
		max = n
	} else if max == 0 {
		return 1
	}
	distance := damerau.DamerauLevenshteinDistance(a, b)
	return 1 - float64(distance)/float64(max)
}

// ReleaseMatch is one fuzzy-search hit, ranked by Score descending.
type ReleaseMatch struct {
	Release *model.Release
	Score   float64
}

// FuzzyReleases ranks every release in the cache by title similarity to
// needle and returns the top limit matches above minScore. Used when a
// caller has an approximate title (e.g. from a renamed directory or a typo)
// rather than an exact match the FTS index could resolve.
func FuzzyReleases(ctx context.Context, store *cache.Store, needle string, limit int, minScore float64) ([]ReleaseMatch, error) {
	releases, err := Releases(ctx, store, nil, ReleaseFilter{})
	if err != nil {
		return nil, err
	}

	normNeedle := stringNorm(needle)
	matches := make([]ReleaseMatch, 0, len(releases))
	for _, r := range releases {
		score := stringRel(normNeedle, stringNorm(r.Title))
		if score >= minScore {
			matches = append(matches, ReleaseMatch{Release: r, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Release.SourcePath < matches[j].Release.SourcePath
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
