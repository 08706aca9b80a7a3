package cache

import (
	"context"
	"database/sql"

	"go.sunsetglow.net/rose/internal/model"
)

// CreateCollage inserts an empty collage row if it doesn't already exist.
func (s *Store) CreateCollage(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT OR IGNORE INTO collages (name) VALUES (?)`, name)
	return err
}

// DeleteCollage removes a collage and its membership rows (ON DELETE CASCADE).
func (s *Store) DeleteCollage(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM collages WHERE name = ?`, name)
	return err
}

// RenameCollage renames a collage in place, keeping its membership rows
// (collages_releases.collage_name is not a foreign key with CASCADE UPDATE,
// so the membership rows are updated explicitly in the same statement set).
func (s *Store) RenameCollage(ctx context.Context, oldName, newName string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE collages SET name = ? WHERE name = ?`, newName, oldName); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE collages_releases SET collage_name = ? WHERE collage_name = ?`, newName, oldName); err != nil {
		return err
	}
	return tx.Commit()
}

// ReadCollage loads a collage and its ordered membership.
func (s *Store) ReadCollage(ctx context.Context, name string) (*model.Collage, error) {
	var exists int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM collages WHERE name = ?`, name).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, sql.ErrNoRows
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT release_id, description_meta, missing FROM collages_releases
		 WHERE collage_name = ? ORDER BY position`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	c := &model.Collage{Name: name}
	for rows.Next() {
		var e model.CollageEntry
		var missing int
		if err := rows.Scan(&e.ReleaseID, &e.DescriptionMeta, &missing); err != nil {
			return nil, err
		}
		e.Missing = missing != 0
		c.Entries = append(c.Entries, e)
	}
	return c, rows.Err()
}

// SetCollageEntries replaces a collage's membership list wholesale, in the
// given order, so the caller's desired ordering (after any add/remove/
// reorder) is always the source of truth (spec §3 "collages are ordered").
func (s *Store) SetCollageEntries(ctx context.Context, name string, entries []model.CollageEntry) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM collages_releases WHERE collage_name = ?`, name); err != nil {
		return err
	}
	for i, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO collages_releases (collage_name, release_id, position, missing, description_meta)
			 VALUES (?, ?, ?, ?, ?)`,
			name, e.ReleaseID, i, boolToInt(e.Missing), e.DescriptionMeta)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RefreshCollageMissing recomputes the missing flag and description_meta
// for every entry of every collage referencing a release, from current
// release data. present maps release id to its fresh description_meta;
// releases absent from present are marked missing and keep their last known
// description_meta (spec §4.5 downstream invalidation).
func (s *Store) RefreshCollageMissing(ctx context.Context, present map[string]string) error {
	rows, err := s.DB.QueryContext(ctx, `SELECT rowid, release_id, description_meta FROM collages_releases`)
	if err != nil {
		return err
	}
	type row struct {
		rowid           int64
		releaseID       string
		descriptionMeta string
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.rowid, &r.releaseID, &r.descriptionMeta); err != nil {
			rows.Close()
			return err
		}
		all = append(all, r)
	}
	rows.Close()

	for _, r := range all {
		meta, ok := present[r.releaseID]
		missing := !ok
		if !ok {
			meta = r.descriptionMeta
		}
		_, err := s.DB.ExecContext(ctx,
			`UPDATE collages_releases SET missing = ?, description_meta = ? WHERE rowid = ?`,
			boolToInt(missing), meta, r.rowid)
		if err != nil {
			return err
		}
	}
	return nil
}

// CreatePlaylist inserts an empty playlist row if it doesn't already exist.
func (s *Store) CreatePlaylist(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT OR IGNORE INTO playlists (name) VALUES (?)`, name)
	return err
}

// DeletePlaylist removes a playlist and its membership rows.
func (s *Store) DeletePlaylist(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM playlists WHERE name = ?`, name)
	return err
}

// RenamePlaylist renames a playlist in place, keeping its membership rows.
func (s *Store) RenamePlaylist(ctx context.Context, oldName, newName string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE playlists SET name = ? WHERE name = ?`, newName, oldName); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE playlists_tracks SET playlist_name = ? WHERE playlist_name = ?`, newName, oldName); err != nil {
		return err
	}
	return tx.Commit()
}

// SetPlaylistCoverImage updates a playlist's sidecar cover image path.
func (s *Store) SetPlaylistCoverImage(ctx context.Context, name, coverImagePath string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE playlists SET cover_image_path = ? WHERE name = ?`, nullable(coverImagePath), name)
	return err
}

// ReadPlaylist loads a playlist and its ordered membership.
func (s *Store) ReadPlaylist(ctx context.Context, name string) (*model.Playlist, error) {
	var coverPath sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT cover_image_path FROM playlists WHERE name = ?`, name).Scan(&coverPath)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT track_id, description_meta, missing FROM playlists_tracks
		 WHERE playlist_name = ? ORDER BY position`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	p := &model.Playlist{Name: name, CoverImagePath: coverPath.String}
	for rows.Next() {
		var e model.PlaylistEntry
		var missing int
		if err := rows.Scan(&e.TrackID, &e.DescriptionMeta, &missing); err != nil {
			return nil, err
		}
		e.Missing = missing != 0
		p.Entries = append(p.Entries, e)
	}
	return p, rows.Err()
}

// SetPlaylistEntries replaces a playlist's membership list wholesale, in
// the given order.
func (s *Store) SetPlaylistEntries(ctx context.Context, name string, entries []model.PlaylistEntry) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlists_tracks WHERE playlist_name = ?`, name); err != nil {
		return err
	}
	for i, e := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO playlists_tracks (playlist_name, track_id, position, missing, description_meta)
			 VALUES (?, ?, ?, ?, ?)`,
			name, e.TrackID, i, boolToInt(e.Missing), e.DescriptionMeta)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RefreshPlaylistMissing is RefreshCollageMissing's playlist-side
// counterpart, keyed by track id.
func (s *Store) RefreshPlaylistMissing(ctx context.Context, present map[string]string) error {
	rows, err := s.DB.QueryContext(ctx, `SELECT rowid, track_id, description_meta FROM playlists_tracks`)
	if err != nil {
		return err
	}
	type row struct {
		rowid           int64
		trackID         string
		descriptionMeta string
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.rowid, &r.trackID, &r.descriptionMeta); err != nil {
			rows.Close()
			return err
		}
		all = append(all, r)
	}
	rows.Close()

	for _, r := range all {
		meta, ok := present[r.trackID]
		missing := !ok
		if !ok {
			meta = r.descriptionMeta
		}
		_, err := s.DB.ExecContext(ctx,
			`UPDATE playlists_tracks SET missing = ?, description_meta = ? WHERE rowid = ?`,
			boolToInt(missing), meta, r.rowid)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListCollageNames and ListPlaylistNames back the updater's eviction and
// the query layer's listing operations.
func (s *Store) ListCollageNames(ctx context.Context) ([]string, error) {
	return listNames(ctx, s.DB, `SELECT name FROM collages ORDER BY name`)
}

func (s *Store) ListPlaylistNames(ctx context.Context) ([]string, error) {
	return listNames(ctx, s.DB, `SELECT name FROM playlists ORDER BY name`)
}

func listNames(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
