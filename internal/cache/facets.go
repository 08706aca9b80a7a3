package cache

import (
	"context"
	"sort"
)

// DistinctGenres, DistinctSecondaryGenres, DistinctLabels, and
// DistinctDescriptors back the query layer's facet listings: every value
// that appears in at least one release, alphabetically sorted.
func (s *Store) DistinctGenres(ctx context.Context) ([]string, error) {
	return distinctValues(ctx, s, "releases_genres", "genre")
}

func (s *Store) DistinctSecondaryGenres(ctx context.Context) ([]string, error) {
	return distinctValues(ctx, s, "releases_secondary_genres", "genre")
}

func (s *Store) DistinctLabels(ctx context.Context) ([]string, error) {
	return distinctValues(ctx, s, "releases_labels", "label")
}

func (s *Store) DistinctDescriptors(ctx context.Context) ([]string, error) {
	return distinctValues(ctx, s, "releases_descriptors", "descriptor")
}

// DistinctArtists lists every distinct artist name across both release and
// track scope, regardless of role.
func (s *Store) DistinctArtists(ctx context.Context) ([]string, error) {
	releaseNames, err := distinctValues(ctx, s, "releases_artists", "name")
	if err != nil {
		return nil, err
	}
	trackNames, err := distinctValues(ctx, s, "tracks_artists", "name")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(releaseNames)+len(trackNames))
	out := make([]string, 0, len(releaseNames)+len(trackNames))
	for _, n := range releaseNames {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	for _, n := range trackNames {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

func distinctValues(ctx context.Context, s *Store, table, col string) ([]string, error) {
	return listNames(ctx, s.DB, `SELECT DISTINCT `+col+` FROM `+table+` ORDER BY `+col)
}
