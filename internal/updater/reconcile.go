package updater

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/config"
	"go.sunsetglow.net/rose/internal/datafile"
	"go.sunsetglow.net/rose/internal/genre"
	"go.sunsetglow.net/rose/internal/model"
	"go.sunsetglow.net/rose/internal/pathutil"
	"go.sunsetglow.net/rose/internal/rlog"
	"go.sunsetglow.net/rose/internal/tagcodec"
)

// Genres is the static genre hierarchy used to compute parent-genre
// closures (spec §4.4 Phase 3.6; genre.Hierarchy's doc comment). Left nil,
// Parents always returns an empty closure.
var Genres genre.Hierarchy

// bundle is the pending-write result of reconciling one release directory:
// everything the committer needs, with every filesystem side effect
// (datafile write, tag write-back, rename) already applied under the
// release lock.
type bundle struct {
	skip bool // directory produced nothing to write (quarantined or untouched)

	deleteReleaseID string // non-"" when the directory lost its only audio files

	release *model.Release
	tracks  []*model.Track

	deletedTrackIDs []string
}

func currentMtime(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return info.ModTime().UTC().Format(time.RFC3339Nano), nil
}

func readTags(path string) (*model.AudioTags, error) {
	codec, err := tagcodec.ForPath(pathutil.Ext(path))
	if err != nil {
		return nil, err
	}
	return codec.Read(path)
}

func writeTags(path string, tags *model.AudioTags) error {
	codec, err := tagcodec.ForPath(pathutil.Ext(path))
	if err != nil {
		return err
	}
	return codec.Write(path, tags)
}

// reconcileOne runs spec §4.4 Phase 3 for a single release directory.
func reconcileOne(ctx context.Context, store *cache.Store, cfg *config.Config, logger *rlog.Logger, c candidate, preloaded preloadedState, force bool) (*bundle, error) {
	// Step 1: skip gate.
	if len(c.audioFiles) == 0 {
		if id := c.knownReleaseID(); id != "" {
			if _, ok := preloaded.releases[id]; ok {
				return &bundle{deleteReleaseID: id}, nil
			}
		}
		return &bundle{skip: true}, nil
	}

	// Step 2 needs to peek at the first audio file's tags only when there's
	// no datafile yet; once one exists, the release id is already known and
	// nothing here depends on reading ahead.
	var firstTags *model.AudioTags
	if c.datafilePath == "" {
		if tags, err := readTags(c.audioFiles[0]); err == nil {
			firstTags = tags
		} else if logger != nil {
			logger.Warning.Printf("%s: could not read tags from %s: %v", c.dirPath, c.audioFiles[0], err)
		}

		// Step 2: fresh-directory quarantine.
		if !force && firstTags != nil && firstTags.ReleaseID != "" {
			return &bundle{skip: true}, nil
		}
	}

	releaseID, dfMtime, releaseNew, addedAt, err := reconcileDatafile(ctx, store, logger, c, firstTags, preloaded, force)
	if err != nil {
		return nil, err
	}

	cachedRelease := preloaded.releases[releaseID]
	release := &model.Release{
		ID:             releaseID,
		SourcePath:     c.dirPath,
		CoverImagePath: c.coverImagePath,
		DatafileMtime:  dfMtime,
		AddedAt:        addedAt,
		New:            releaseNew,
	}

	cachedTracksForRelease := preloaded.tracks[releaseID]
	remaining := make(map[string]*model.Track, len(cachedTracksForRelease))
	for path, t := range cachedTracksForRelease {
		remaining[path] = t
	}

	firstPassDone := false
	var tracks []*model.Track
	for _, path := range c.audioFiles {
		delete(remaining, path)

		cachedTrack := cachedTracksForRelease[path]
		curMtime, statErr := currentMtime(path)
		if statErr != nil {
			if logger != nil {
				logger.Warning.Printf("%s: file vanished before it could be scanned: %s", c.dirPath, path)
			}
			continue
		}

		needRead := force || cachedTrack == nil || cachedTrack.SourceMtime != curMtime
		if !needRead {
			tracks = append(tracks, cachedTrack)
			continue
		}

		var tags *model.AudioTags
		if path == c.audioFiles[0] && firstTags != nil {
			tags = firstTags
		} else {
			t, err := readTags(path)
			if err != nil {
				if logger != nil {
					logger.Warning.Printf("%s: could not read tags from %s: %v", c.dirPath, path, err)
				}
				continue
			}
			tags = t
		}

		if !firstPassDone {
			absorbReleaseFields(release, tags)
			firstPassDone = true
		}

		trackID := tags.TrackID
		needsWriteBack := false
		if trackID == "" {
			trackID = newTrackID()
			needsWriteBack = true
		}
		if tags.ReleaseID != releaseID {
			needsWriteBack = true
		}
		if needsWriteBack {
			tags.TrackID = trackID
			tags.ReleaseID = releaseID
			handle, lockErr := store.Lock(ctx, cache.ReleaseLockName(releaseID), defaultLockTimeout)
			if lockErr != nil {
				return nil, lockErr
			}
			writeErr := writeTags(path, tags)
			_ = handle.Release(ctx)
			if writeErr != nil && logger != nil {
				logger.Warning.Printf("%s: failed to write track/release id back to %s: %v", c.dirPath, path, writeErr)
			}
		}
		tags.StripPositionDots()

		tracks = append(tracks, &model.Track{
			ID:              trackID,
			ReleaseID:       releaseID,
			SourcePath:      path,
			SourceMtime:     curMtime,
			TrackNumber:     tags.TrackNumber,
			DiscNumber:      tags.DiscNumber,
			Title:           tags.TrackTitle,
			DurationSeconds: tags.DurationSeconds,
			Artists:         model.SnapshotFromMapping(tags.TrackArtists),
		})
	}

	// Step 6: totals.
	discSeen := map[string]bool{}
	discCounts := map[string]int{}
	for _, t := range tracks {
		discSeen[t.DiscNumber] = true
		discCounts[t.DiscNumber]++
	}
	release.DiscTotal = len(discSeen)
	for _, t := range tracks {
		t.TrackTotal = discCounts[t.DiscNumber]
		t.Recompute()
	}

	if !firstPassDone && cachedRelease != nil {
		copyCachedReleaseFields(release, cachedRelease)
	}
	release.ParentGenres = Genres.Parents(release.Genres)
	release.Recompute()

	var deletedTrackIDs []string
	for _, t := range remaining {
		deletedTrackIDs = append(deletedTrackIDs, t.ID)
	}

	// Step 7: optional renaming.
	if cfg.RenameSourceFiles {
		handle, lockErr := store.Lock(ctx, cache.ReleaseLockName(releaseID), defaultLockTimeout)
		if lockErr != nil {
			return nil, lockErr
		}
		newDir, err := renameRelease(cfg, c.dirPath, release)
		_ = handle.Release(ctx)
		if err == nil && newDir != c.dirPath {
			release.SourcePath = newDir
			for _, t := range tracks {
				t.SourcePath = renameTrackPath(newDir, c.dirPath, t.SourcePath)
			}
		} else if err != nil && logger != nil {
			logger.Warning.Printf("%s: rename skipped: %v", c.dirPath, err)
		}
	}

	return &bundle{release: release, tracks: tracks, deletedTrackIDs: deletedTrackIDs}, nil
}

// reconcileDatafile implements Phase 3 step 3: locate or create the
// per-release sidecar TOML, returning the release id, its mtime marker,
// and its New/AddedAt flags.
func reconcileDatafile(ctx context.Context, store *cache.Store, logger *rlog.Logger, c candidate, firstTags *model.AudioTags, preloaded preloadedState, force bool) (releaseID, dfMtime string, releaseNew bool, addedAt time.Time, err error) {
	if c.datafilePath == "" {
		releaseID = ""
		if firstTags != nil {
			releaseID = firstTags.ReleaseID
		}
		if releaseID == "" {
			releaseID = newReleaseID()
		}
		path := filepath.Join(c.dirPath, datafile.FileName(releaseID))
		df := datafile.New()

		handle, lockErr := store.Lock(ctx, cache.ReleaseLockName(releaseID), defaultLockTimeout)
		if lockErr != nil {
			return "", "", false, time.Time{}, lockErr
		}
		_, writeErr := datafile.WriteIfChanged(path, df)
		_ = handle.Release(ctx)
		if writeErr != nil {
			return "", "", false, time.Time{}, writeErr
		}

		mtime, statErr := currentMtime(path)
		if statErr != nil {
			return "", "", false, time.Time{}, statErr
		}
		return releaseID, mtime, df.New, df.AddedAt, nil
	}

	releaseID = c.datafileID
	mtime, statErr := currentMtime(c.datafilePath)
	if statErr != nil {
		return "", "", false, time.Time{}, statErr
	}

	cached := preloaded.releases[releaseID]
	needRead := force || cached == nil || cached.DatafileMtime != mtime
	if !needRead {
		return releaseID, mtime, cached.New, cached.AddedAt, nil
	}

	df, readErr := datafile.Read(c.datafilePath)
	if readErr != nil {
		if logger != nil {
			logger.Warning.Printf("%s: could not read datafile, using defaults: %v", c.dirPath, readErr)
		}
		df = datafile.New()
	}

	handle, lockErr := store.Lock(ctx, cache.ReleaseLockName(releaseID), defaultLockTimeout)
	if lockErr != nil {
		return "", "", false, time.Time{}, lockErr
	}
	changed, writeErr := datafile.WriteIfChanged(c.datafilePath, df)
	_ = handle.Release(ctx)
	if writeErr != nil {
		return "", "", false, time.Time{}, writeErr
	}
	if changed {
		if m, err := currentMtime(c.datafilePath); err == nil {
			mtime = m
		}
	}
	return releaseID, mtime, df.New, df.AddedAt, nil
}

// absorbReleaseFields copies the release-scope fields of tags (title,
// type, dates, edition, catalog number, genres, descriptors, labels,
// release artists) into release, per spec §4.4 Phase 3 step 5's "on first
// pass, absorb release-scope fields".
func absorbReleaseFields(release *model.Release, tags *model.AudioTags) {
	release.Title = tags.ReleaseTitle
	release.ReleaseType = model.NormalizeReleaseType(tags.ReleaseType)
	release.ReleaseDate = tags.ReleaseDate.Format()
	release.OriginalDate = tags.OriginalDate.Format()
	release.CompositionDate = tags.CompositionDate.Format()
	release.Edition = tags.Edition
	release.CatalogNumber = tags.CatalogNumber
	release.Genres = append([]string(nil), tags.Genres...)
	release.SecondaryGenres = append([]string(nil), tags.SecondaryGenres...)
	release.Descriptors = append([]string(nil), tags.Descriptors...)
	release.Labels = append([]string(nil), tags.Labels...)
	release.Artists = model.SnapshotFromMapping(tags.ReleaseArtists)
}

// copyCachedReleaseFields restores a release's tagged fields from its
// cached value when the track scan found nothing needing a tag read (every
// track was reused wholesale), so an untouched release doesn't regress to
// zero values.
func copyCachedReleaseFields(release *model.Release, cached *model.Release) {
	release.Title = cached.Title
	release.ReleaseType = cached.ReleaseType
	release.ReleaseDate = cached.ReleaseDate
	release.OriginalDate = cached.OriginalDate
	release.CompositionDate = cached.CompositionDate
	release.Edition = cached.Edition
	release.CatalogNumber = cached.CatalogNumber
	release.Genres = cached.Genres
	release.SecondaryGenres = cached.SecondaryGenres
	release.Descriptors = cached.Descriptors
	release.Labels = cached.Labels
	release.Artists = cached.Artists
}
