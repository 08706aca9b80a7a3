// Package query implements filtered reads over the cache: releases, tracks,
// artists, genres, labels, descriptors, collages, and playlists. It never
// writes; all mutation goes through internal/updater or internal/rules.
package query

import (
	"context"
	"sort"

	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/model"
)

// ReleaseFilter narrows Releases to rows matching every populated field.
// Genre/SecondaryGenre/Descriptor/Label/Artist match if the value is present
// anywhere in the corresponding list; all other fields are exact-match. A
// zero-value ReleaseFilter matches everything.
type ReleaseFilter struct {
	Genre          string
	SecondaryGenre string
	Descriptor     string
	Label          string
	Artist         string
	ReleaseType    string
	New            *bool
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (f ReleaseFilter) matches(r *model.Release) bool {
	if f.Genre != "" && !contains(r.Genres, f.Genre) {
		return false
	}
	if f.SecondaryGenre != "" && !contains(r.SecondaryGenres, f.SecondaryGenre) {
		return false
	}
	if f.Descriptor != "" && !contains(r.Descriptors, f.Descriptor) {
		return false
	}
	if f.Label != "" && !contains(r.Labels, f.Label) {
		return false
	}
	if f.Artist != "" && !contains(r.Artists.AllNames(), f.Artist) {
		return false
	}
	if f.ReleaseType != "" && r.ReleaseType != f.ReleaseType {
		return false
	}
	if f.New != nil && r.New != *f.New {
		return false
	}
	return true
}

// Releases returns every release matching f, sorted by source path (the
// same deterministic order the updater's scan establishes). ids restricts
// the query to specific release ids; pass nil for the whole cache.
func Releases(ctx context.Context, store *cache.Store, ids []string, f ReleaseFilter) ([]*model.Release, error) {
	releases, err := store.PreloadReleases(ctx, ids)
	if err != nil {
		return nil, err
	}

	all := make([]string, 0, len(releases))
	for id := range releases {
		all = append(all, id)
	}
	artists, err := store.LoadReleaseArtists(ctx, all)
	if err != nil {
		return nil, err
	}
	for id, r := range releases {
		if a := artists[id]; a != nil {
			r.Artists = a
		} else {
			r.Artists = &model.ArtistSnapshot{}
		}
	}

	out := make([]*model.Release, 0, len(releases))
	for _, r := range releases {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	return out, nil
}

// Release returns a single release by id, or nil if the cache has none.
func Release(ctx context.Context, store *cache.Store, id string) (*model.Release, error) {
	out, err := Releases(ctx, store, []string{id}, ReleaseFilter{})
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

// TrackFilter narrows Tracks the same way ReleaseFilter narrows Releases,
// restricted to the fields a track itself carries.
type TrackFilter struct {
	Artist    string
	ReleaseID string
}

func (f TrackFilter) matches(t *model.Track) bool {
	if f.Artist != "" && !contains(t.Artists.AllNames(), f.Artist) {
		return false
	}
	if f.ReleaseID != "" && t.ReleaseID != f.ReleaseID {
		return false
	}
	return true
}

// Tracks returns every track belonging to releaseIDs (or the whole cache
// when releaseIDs is nil) matching f, sorted by source path.
func Tracks(ctx context.Context, store *cache.Store, releaseIDs []string, f TrackFilter) ([]*model.Track, error) {
	if releaseIDs == nil {
		ids, err := allReleaseIDs(ctx, store)
		if err != nil {
			return nil, err
		}
		releaseIDs = ids
	}

	byRelease, err := store.PreloadTracks(ctx, releaseIDs)
	if err != nil {
		return nil, err
	}

	var allIDs []string
	for _, tracks := range byRelease {
		for _, t := range tracks {
			allIDs = append(allIDs, t.ID)
		}
	}
	artists, err := store.LoadTrackArtists(ctx, allIDs)
	if err != nil {
		return nil, err
	}

	var out []*model.Track
	for _, tracks := range byRelease {
		for _, t := range tracks {
			if a := artists[t.ID]; a != nil {
				t.Artists = a
			} else {
				t.Artists = &model.ArtistSnapshot{}
			}
			if f.matches(t) {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourcePath < out[j].SourcePath })
	return out, nil
}

func allReleaseIDs(ctx context.Context, store *cache.Store) ([]string, error) {
	releases, err := store.PreloadReleases(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(releases))
	for id := range releases {
		ids = append(ids, id)
	}
	return ids, nil
}

// Collages lists every collage name in the cache.
func Collages(ctx context.Context, store *cache.Store) ([]string, error) {
	return store.ListCollageNames(ctx)
}

// Playlists lists every playlist name in the cache.
func Playlists(ctx context.Context, store *cache.Store) ([]string, error) {
	return store.ListPlaylistNames(ctx)
}

// Genres, SecondaryGenres, Labels, Descriptors, and Artists expose the
// cache's facet listings: every distinct value currently in use, for
// building pick-lists or validating a matcher pattern against real data.
func Genres(ctx context.Context, store *cache.Store) ([]string, error) {
	return store.DistinctGenres(ctx)
}

func SecondaryGenres(ctx context.Context, store *cache.Store) ([]string, error) {
	return store.DistinctSecondaryGenres(ctx)
}

func Labels(ctx context.Context, store *cache.Store) ([]string, error) {
	return store.DistinctLabels(ctx)
}

func Descriptors(ctx context.Context, store *cache.Store) ([]string, error) {
	return store.DistinctDescriptors(ctx)
}

func Artists(ctx context.Context, store *cache.Store) ([]string, error) {
	return store.DistinctArtists(ctx)
}
