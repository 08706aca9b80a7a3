package cache

import (
	"context"
	"database/sql"
	"strings"

	"go.sunsetglow.net/rose/internal/artist"
	"go.sunsetglow.net/rose/internal/model"
)

// Tx wraps an open transaction with the same upsert helpers Store exposes,
// so the updater's Phase 4 batched-write commit can run every statement
// inside one transaction.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a transaction for a batched write (spec §4.4 Phase 4).
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

func joinGenre(ss []string) string { return strings.Join(ss, string(ftsSep)) }

// UpsertRelease replaces a release row and all of its child relation rows
// (genres, secondary genres, labels, descriptors, artists), per spec §4.4
// Phase 4: "DELETE then bulk-INSERT per-release child tables".
func (t *Tx) UpsertRelease(ctx context.Context, r *model.Release) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO releases
			(id, source_path, cover_image_path, datafile_mtime, added_at, new,
			 title, releasetype, releasedate, originaldate, compositiondate,
			 edition, catalognumber, disctotal, metahash)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.SourcePath, nullable(r.CoverImagePath), r.DatafileMtime,
		r.AddedAt.Format("2006-01-02T15:04:05Z07:00"), boolToInt(r.New),
		r.Title, r.ReleaseType, r.ReleaseDate, r.OriginalDate, r.CompositionDate,
		r.Edition, r.CatalogNumber, r.DiscTotal, r.Metahash)
	if err != nil {
		return err
	}

	for _, stmt := range []struct {
		table, col string
		values     []string
	}{
		{"releases_genres", "genre", r.Genres},
		{"releases_secondary_genres", "genre", r.SecondaryGenres},
		{"releases_labels", "label", r.Labels},
		{"releases_descriptors", "descriptor", r.Descriptors},
	} {
		if err := t.replaceChildRows(ctx, stmt.table, "release_id", r.ID, stmt.col, stmt.values); err != nil {
			return err
		}
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM releases_artists WHERE release_id = ?`, r.ID); err != nil {
		return err
	}
	return t.insertArtists(ctx, "releases_artists", "release_id", r.ID, r.Artists)
}

func (t *Tx) replaceChildRows(ctx context.Context, table, fkCol, fkVal, valCol string, values []string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+fkCol+` = ?`, fkVal); err != nil {
		return err
	}
	for i, v := range values {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO `+table+` (`+fkCol+`, `+valCol+`, position) VALUES (?, ?, ?)`,
			fkVal, v, i)
		if err != nil {
			return err
		}
	}
	return nil
}

var roleNames = map[artist.Role]string{
	artist.Main: "main", artist.Guest: "guest", artist.Remixer: "remixer",
	artist.Composer: "composer", artist.Conductor: "conductor",
	artist.Producer: "producer", artist.DJMixer: "djmixer",
}

func (t *Tx) insertArtists(ctx context.Context, table, fkCol, fkVal string, a *model.ArtistSnapshot) error {
	if a == nil {
		return nil
	}
	roles := []struct {
		role  string
		names []string
	}{
		{"main", a.Main}, {"guest", a.Guest}, {"remixer", a.Remixer},
		{"composer", a.Composer}, {"conductor", a.Conductor},
		{"producer", a.Producer}, {"djmixer", a.DJMixer},
	}
	for _, r := range roles {
		for i, name := range r.names {
			_, err := t.tx.ExecContext(ctx,
				`INSERT INTO `+table+` (`+fkCol+`, name, role, position) VALUES (?, ?, ?, ?)`,
				fkVal, name, r.role, i)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// UpsertTrack replaces a track row and its artist rows.
func (t *Tx) UpsertTrack(ctx context.Context, tr *model.Track) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO tracks
			(id, release_id, source_path, source_mtime, tracknumber, tracktotal,
			 discnumber, title, duration_seconds, metahash)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		tr.ID, tr.ReleaseID, tr.SourcePath, tr.SourceMtime, tr.TrackNumber, tr.TrackTotal,
		tr.DiscNumber, tr.Title, tr.DurationSeconds, tr.Metahash)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM tracks_artists WHERE track_id = ?`, tr.ID); err != nil {
		return err
	}
	return t.insertArtists(ctx, "tracks_artists", "track_id", tr.ID, tr.Artists)
}

// DeleteTracks removes the given track ids (spec §4.4 Phase 4: "DELETE
// unknown tracks").
func (t *Tx) DeleteTracks(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id); err != nil {
			return err
		}
	}
	return nil
}

// UpsertFTSRow rebuilds the FTS row for one track, running every field
// through process_string_for_fts so later NEAR(...) queries can match
// substrings (spec §4.4 FTS population).
func (t *Tx) UpsertFTSRow(ctx context.Context, row FTSRow) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM rules_engine_fts WHERE track_id = ?`, row.TrackID); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO rules_engine_fts
			(track_id, tracktitle, releasetitle, tracknumber, discnumber,
			 releasedate, originaldate, compositiondate, releasetype, genre,
			 secondarygenre, descriptor, label, catalognumber, edition,
			 trackartist, releaseartist, new)
		VALUES (?, process_string_for_fts(?), process_string_for_fts(?), process_string_for_fts(?),
			process_string_for_fts(?), process_string_for_fts(?), process_string_for_fts(?),
			process_string_for_fts(?), process_string_for_fts(?), process_string_for_fts(?),
			process_string_for_fts(?), process_string_for_fts(?), process_string_for_fts(?),
			process_string_for_fts(?), process_string_for_fts(?), process_string_for_fts(?), ?)`,
		row.TrackID, row.TrackTitle, row.ReleaseTitle, row.TrackNumber, row.DiscNumber,
		row.ReleaseDate, row.OriginalDate, row.CompositionDate, row.ReleaseType, row.Genre,
		row.SecondaryGenre, row.Descriptor, row.Label, row.CatalogNumber, row.Edition,
		row.TrackArtist, row.ReleaseArtist, boolToInt(row.New))
	return err
}

// FTSRow is the denormalized, pre-separator-expanded content of one FTS
// row, built by the updater from a Release+Track pair.
type FTSRow struct {
	TrackID                                                       string
	TrackTitle, ReleaseTitle, TrackNumber, DiscNumber              string
	ReleaseDate, OriginalDate, CompositionDate, ReleaseType        string
	Genre, SecondaryGenre, Descriptor, Label, CatalogNumber, Edition string
	TrackArtist, ReleaseArtist                                     string
	New                                                            bool
}

// DeleteReleasesNotIn evicts every release row whose source_path is absent
// from keep (spec §4.4 eviction).
func (s *Store) DeleteReleasesNotIn(ctx context.Context, keep []string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, source_path FROM releases`)
	if err != nil {
		return nil, err
	}
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	var toDelete []string
	var deletedPaths []string
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			rows.Close()
			return nil, err
		}
		if !keepSet[path] {
			toDelete = append(toDelete, id)
			deletedPaths = append(deletedPaths, path)
		}
	}
	rows.Close()

	for _, id := range toDelete {
		if _, err := s.DB.ExecContext(ctx, `DELETE FROM releases WHERE id = ?`, id); err != nil {
			return nil, err
		}
	}
	return deletedPaths, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
