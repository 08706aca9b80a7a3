package updater

import (
	"context"

	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/model"
)

// commitBundles implements spec §4.4 Phase 4: every bundle's writes land in
// a single transaction, release by release, since each bundle is already
// self-contained (child-table replace-semantics make a second run of the
// same bundle idempotent).
func commitBundles(ctx context.Context, store *cache.Store, bundles []*bundle) ([]string, error) {
	var committed []string
	for _, b := range bundles {
		if b == nil || b.skip {
			continue
		}
		if b.deleteReleaseID != "" {
			if _, err := store.DeleteReleasesNotIn(ctx, releaseSourcePathsExcept(ctx, store, b.deleteReleaseID)); err != nil {
				return committed, err
			}
			continue
		}

		tx, err := store.Begin(ctx)
		if err != nil {
			return committed, err
		}
		if err := tx.UpsertRelease(ctx, b.release); err != nil {
			tx.Rollback()
			return committed, err
		}
		if len(b.deletedTrackIDs) > 0 {
			if err := tx.DeleteTracks(ctx, b.deletedTrackIDs); err != nil {
				tx.Rollback()
				return committed, err
			}
		}
		for _, t := range b.tracks {
			if err := tx.UpsertTrack(ctx, t); err != nil {
				tx.Rollback()
				return committed, err
			}
			if err := tx.UpsertFTSRow(ctx, ftsRowFor(b.release, t)); err != nil {
				tx.Rollback()
				return committed, err
			}
		}
		if err := tx.Commit(); err != nil {
			return committed, err
		}
		committed = append(committed, b.release.ID)
	}
	return committed, nil
}

// releaseSourcePathsExcept is used by the single-directory deletion path
// (the directory lost all its audio files): it deletes just that one
// release rather than running the full-tree eviction query, by passing
// every currently-known source_path except the one being dropped.
func releaseSourcePathsExcept(ctx context.Context, store *cache.Store, releaseID string) []string {
	releases, err := store.PreloadReleases(ctx, nil)
	if err != nil {
		return nil
	}
	var keep []string
	for id, r := range releases {
		if id == releaseID {
			continue
		}
		keep = append(keep, r.SourcePath)
	}
	return keep
}

func ftsRowFor(r *model.Release, t *model.Track) cache.FTSRow {
	return cache.FTSRow{
		TrackID:         t.ID,
		TrackTitle:      t.Title,
		ReleaseTitle:    r.Title,
		TrackNumber:     t.TrackNumber,
		DiscNumber:      t.DiscNumber,
		ReleaseDate:     r.ReleaseDate,
		OriginalDate:    r.OriginalDate,
		CompositionDate: r.CompositionDate,
		ReleaseType:     r.ReleaseType,
		Genre:           joinFTS(r.Genres),
		SecondaryGenre:  joinFTS(r.SecondaryGenres),
		Descriptor:      joinFTS(r.Descriptors),
		Label:           joinFTS(r.Labels),
		CatalogNumber:   r.CatalogNumber,
		Edition:         r.Edition,
		TrackArtist:     joinFTS(t.Artists.AllNames()),
		ReleaseArtist:   joinFTS(r.Artists.AllNames()),
		New:             r.New,
	}
}

func joinFTS(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}
