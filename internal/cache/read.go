package cache

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.sunsetglow.net/rose/internal/model"
)

// viewSep is the literal delimiter releases_view/tracks_view use in their
// group_concat(...) subqueries (schema.sql), distinct from fts.go's bare
// ftsSep rune used inside process_string_for_fts.
const viewSep = " ¬ "

func splitDelim(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	return strings.Split(s.String, viewSep)
}

// PreloadReleases reads releases_view for the given ids (or all releases
// when ids is nil), returning a map keyed by id, for the updater's Phase 2
// preload step.
func (s *Store) PreloadReleases(ctx context.Context, ids []string) (map[string]*model.Release, error) {
	query := `SELECT id, source_path, cover_image_path, datafile_mtime, added_at, new,
		title, releasetype, releasedate, originaldate, compositiondate,
		edition, catalognumber, disctotal, metahash, genres, secondary_genres, labels, descriptors
		FROM releases_view`
	var args []interface{}
	if ids != nil {
		query += " WHERE id IN (" + placeholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]*model.Release{}
	for rows.Next() {
		var r model.Release
		var coverPath sql.NullString
		var addedAt string
		var newInt int
		var genres, secondary, labels, descriptors sql.NullString
		err := rows.Scan(&r.ID, &r.SourcePath, &coverPath, &r.DatafileMtime, &addedAt, &newInt,
			&r.Title, &r.ReleaseType, &r.ReleaseDate, &r.OriginalDate, &r.CompositionDate,
			&r.Edition, &r.CatalogNumber, &r.DiscTotal, &r.Metahash, &genres, &secondary, &labels, &descriptors)
		if err != nil {
			return nil, err
		}
		r.CoverImagePath = coverPath.String
		r.New = newInt != 0
		if t, err := time.Parse(time.RFC3339, addedAt); err == nil {
			r.AddedAt = t
		}
		r.Genres = splitDelim(genres)
		r.SecondaryGenres = splitDelim(secondary)
		r.Labels = splitDelim(labels)
		r.Descriptors = splitDelim(descriptors)
		out[r.ID] = &r
	}
	return out, rows.Err()
}

// PreloadTracks reads the tracks table for the tracks belonging to releaseIDs,
// returning a map keyed by release id, then by source path.
func (s *Store) PreloadTracks(ctx context.Context, releaseIDs []string) (map[string]map[string]*model.Track, error) {
	if len(releaseIDs) == 0 {
		return map[string]map[string]*model.Track{}, nil
	}
	query := `SELECT id, release_id, source_path, source_mtime, tracknumber, tracktotal,
		discnumber, title, duration_seconds, metahash FROM tracks WHERE release_id IN (` +
		placeholders(len(releaseIDs)) + `)`
	args := make([]interface{}, len(releaseIDs))
	for i, id := range releaseIDs {
		args[i] = id
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]map[string]*model.Track{}
	for rows.Next() {
		var t model.Track
		if err := rows.Scan(&t.ID, &t.ReleaseID, &t.SourcePath, &t.SourceMtime, &t.TrackNumber,
			&t.TrackTotal, &t.DiscNumber, &t.Title, &t.DurationSeconds, &t.Metahash); err != nil {
			return nil, err
		}
		if out[t.ReleaseID] == nil {
			out[t.ReleaseID] = map[string]*model.Track{}
		}
		out[t.ReleaseID][t.SourcePath] = &t
	}
	return out, rows.Err()
}

var roleByName = map[string]func(*model.ArtistSnapshot) *[]string{
	"main":      func(a *model.ArtistSnapshot) *[]string { return &a.Main },
	"guest":     func(a *model.ArtistSnapshot) *[]string { return &a.Guest },
	"remixer":   func(a *model.ArtistSnapshot) *[]string { return &a.Remixer },
	"composer":  func(a *model.ArtistSnapshot) *[]string { return &a.Composer },
	"conductor": func(a *model.ArtistSnapshot) *[]string { return &a.Conductor },
	"producer":  func(a *model.ArtistSnapshot) *[]string { return &a.Producer },
	"djmixer":   func(a *model.ArtistSnapshot) *[]string { return &a.DJMixer },
}

// LoadReleaseArtists bulk-loads releases_artists rows for the given release
// ids into one ArtistSnapshot per release. Kept separate from
// PreloadReleases because the updater's skip-gate never needs artist data;
// the query layer's full reads do.
func (s *Store) LoadReleaseArtists(ctx context.Context, ids []string) (map[string]*model.ArtistSnapshot, error) {
	return s.loadArtistSnapshots(ctx, "releases_artists", "release_id", ids)
}

// LoadTrackArtists is LoadReleaseArtists' tracks_artists counterpart.
func (s *Store) LoadTrackArtists(ctx context.Context, ids []string) (map[string]*model.ArtistSnapshot, error) {
	return s.loadArtistSnapshots(ctx, "tracks_artists", "track_id", ids)
}

func (s *Store) loadArtistSnapshots(ctx context.Context, table, fkCol string, ids []string) (map[string]*model.ArtistSnapshot, error) {
	out := map[string]*model.ArtistSnapshot{}
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + fkCol + `, name, role FROM ` + table + ` WHERE ` + fkCol + ` IN (` +
		placeholders(len(ids)) + `) ORDER BY ` + fkCol + `, position`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var fk, name, role string
		if err := rows.Scan(&fk, &name, &role); err != nil {
			return nil, err
		}
		snap := out[fk]
		if snap == nil {
			snap = &model.ArtistSnapshot{}
			out[fk] = snap
		}
		if dst := roleByName[role]; dst != nil {
			field := dst(snap)
			*field = append(*field, name)
		}
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('?')
	}
	return b.String()
}
