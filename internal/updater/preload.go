package updater

import (
	"context"

	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/model"
)

// preloadedState is the in-memory map populated by Phase 2: release id to
// its cached Release and its cached tracks keyed by source path.
type preloadedState struct {
	releases map[string]*model.Release
	tracks   map[string]map[string]*model.Track
}

// preload issues the two bulk queries spec §4.4 Phase 2 calls for, scoped
// to the ids discovered during enumeration. Candidates without a
// recoverable id are left out of both maps; reconcileOne treats that as
// "first sight".
func preload(ctx context.Context, store *cache.Store, candidates []candidate) (preloadedState, error) {
	var ids []string
	for _, c := range candidates {
		if id := c.knownReleaseID(); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return preloadedState{releases: map[string]*model.Release{}, tracks: map[string]map[string]*model.Track{}}, nil
	}

	releases, err := store.PreloadReleases(ctx, ids)
	if err != nil {
		return preloadedState{}, err
	}
	tracks, err := store.PreloadTracks(ctx, ids)
	if err != nil {
		return preloadedState{}, err
	}
	return preloadedState{releases: releases, tracks: tracks}, nil
}
