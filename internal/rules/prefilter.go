package rules

import (
	"context"

	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/matcher"
	"go.sunsetglow.net/rose/internal/model"
)

// prefilterInMemory narrows a large candidate set using the cache's own
// flattened field values, without reading any audio file from disk (spec
// §4.7 step 3). Candidates the cache has no record for (a race with the
// scan) are kept, deferring the decision to the disk re-verification pass.
func prefilterInMemory(ctx context.Context, store *cache.Store, m *matcher.Matcher, candidateIDs []string, locs map[string]cache.TrackLocation) ([]string, error) {
	releaseIDSet := map[string]bool{}
	for _, id := range candidateIDs {
		if loc, ok := locs[id]; ok {
			releaseIDSet[loc.ReleaseID] = true
		}
	}
	releaseIDs := make([]string, 0, len(releaseIDSet))
	for id := range releaseIDSet {
		releaseIDs = append(releaseIDs, id)
	}

	releases, err := store.PreloadReleases(ctx, releaseIDs)
	if err != nil {
		return nil, err
	}
	tracksByRelease, err := store.PreloadTracks(ctx, releaseIDs)
	if err != nil {
		return nil, err
	}

	var kept []string
	for _, id := range candidateIDs {
		loc, ok := locs[id]
		if !ok {
			kept = append(kept, id)
			continue
		}
		rel := releases[loc.ReleaseID]
		tr := tracksByRelease[loc.ReleaseID][loc.SourcePath]
		if rel == nil || tr == nil {
			kept = append(kept, id) // cache race; let disk verification decide
			continue
		}
		if prefilterMatches(m, rel, tr) {
			kept = append(kept, id)
		}
	}
	return kept, nil
}

// prefilterMatches is matchesAny restricted to the fields the cache's bulk
// preload queries actually populate. PreloadReleases/PreloadTracks don't
// join the artists tables (they exist only to drive the updater's
// mtime skip-gate, which never needs them), so trackartist and
// releaseartist always read back empty here; treating that as "no match"
// would wrongly drop a real match from the run instead of merely deferring
// it. A rule naming either tag is kept unconditionally and left for the
// disk re-verification pass to resolve.
func prefilterMatches(m *matcher.Matcher, rel *model.Release, tr *model.Track) bool {
	for _, t := range m.Tags {
		if t == matcher.TrackArtist || t == matcher.ReleaseArtist {
			return true
		}
	}
	get := func(t matcher.Tag) []string { return cachedFieldValues(rel, tr, t) }
	return matchesAny(m, get)
}
