package updater

import (
	"context"

	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/model"
)

// refreshDownstream implements spec §4.4 Phase 5: after a release batch
// commits, every collage/playlist entry's description_meta and missing
// flag are refreshed against the now-current release/track set. Rather
// than tracking which collage/playlist names were actually touched, this
// recomputes against the full current cache contents each run — simpler,
// and correct, at the cost of doing more work than the minimal touched-set
// refresh spec.md's prose describes (see DESIGN.md).
func refreshDownstream(ctx context.Context, store *cache.Store) error {
	releases, err := store.PreloadReleases(ctx, nil)
	if err != nil {
		return err
	}

	releaseIDs := make([]string, 0, len(releases))
	for id := range releases {
		releaseIDs = append(releaseIDs, id)
	}

	collagePresent := make(map[string]string, len(releases))
	for id, r := range releases {
		collagePresent[id] = model.FormatDescriptionMeta(r.ReleaseDate, releaseArtistsDisplay(r.Artists), r.Title, false)
	}
	if err := store.RefreshCollageMissing(ctx, collagePresent); err != nil {
		return err
	}

	tracksByRelease, err := store.PreloadTracks(ctx, releaseIDs)
	if err != nil {
		return err
	}
	playlistPresent := map[string]string{}
	for releaseID, byPath := range tracksByRelease {
		r := releases[releaseID]
		for _, t := range byPath {
			artists := releaseArtistsDisplay(t.Artists)
			if t.Artists == nil || len(t.Artists.Main) == 0 {
				artists = releaseArtistsDisplay(r.Artists)
			}
			playlistPresent[t.ID] = model.FormatDescriptionMeta(r.ReleaseDate, artists, t.Title, false)
		}
	}
	return store.RefreshPlaylistMissing(ctx, playlistPresent)
}
