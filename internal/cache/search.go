package cache

import "context"

// SearchFTS runs an FTS5 MATCH query against rules_engine_fts and returns
// the matching track ids, ordered by rowid (the order tracks were inserted
// in, which tracks insertion order during a scan — see spec §5's
// source_path ordering guarantee).
func (s *Store) SearchFTS(ctx context.Context, ftsQuery string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT track_id FROM rules_engine_fts WHERE rules_engine_fts MATCH ? ORDER BY rowid`, ftsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AllTrackIDs returns every track id, ordered by rowid. Used when a
// matcher's only tag is one FTS carries UNINDEXED ("new"), so no MATCH
// query can narrow the candidate set at all (spec §4.7 step 2/4).
func (s *Store) AllTrackIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM tracks ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TrackLocation is the minimal on-disk addressing info rules needs to
// re-read/re-write a track's tags, without pulling in the full tracks_view
// join.
type TrackLocation struct {
	TrackID    string
	ReleaseID  string
	SourcePath string
}

// TrackLocations resolves ids to their release id and source path, for the
// rules orchestrator's disk re-verification pass (spec §4.7 step 4).
func (s *Store) TrackLocations(ctx context.Context, ids []string) (map[string]TrackLocation, error) {
	if len(ids) == 0 {
		return map[string]TrackLocation{}, nil
	}
	query := `SELECT id, release_id, source_path FROM tracks WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]TrackLocation, len(ids))
	for rows.Next() {
		var loc TrackLocation
		if err := rows.Scan(&loc.TrackID, &loc.ReleaseID, &loc.SourcePath); err != nil {
			return nil, err
		}
		out[loc.TrackID] = loc
	}
	return out, rows.Err()
}
