package model

import "strconv"

// Track is keyed by track id and owned by exactly one release (by id, not
// by pointer — see Release's doc comment).
type Track struct {
	ID        string
	ReleaseID string

	SourcePath   string
	SourceMtime  string

	TrackNumber string
	TrackTotal  int
	DiscNumber  string

	Title string

	DurationSeconds int

	Artists *ArtistSnapshot

	Metahash string
}

// Recompute refreshes t.Metahash from its current tagged fields.
func (t *Track) Recompute() {
	t.Metahash = computeMetahash(
		t.Title, t.TrackNumber, t.DiscNumber, strconv.Itoa(t.TrackTotal),
		strconv.Itoa(t.DurationSeconds), t.Artists.join(),
	)
}
