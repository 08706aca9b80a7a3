package model

import "time"

// CollageEntry is one member reference within a Collage.
type CollageEntry struct {
	ReleaseID       string
	DescriptionMeta string
	Missing         bool
}

// Collage is an ordered, user-curated set of releases. Members are never
// hard-deleted; disappearance toggles Missing so a later restoration
// re-links by id (see spec §3 Lifecycle).
type Collage struct {
	Name    string
	Entries []CollageEntry
}

// PlaylistEntry is one member reference within a Playlist.
type PlaylistEntry struct {
	TrackID         string
	DescriptionMeta string
	Missing         bool
}

// Playlist is an ordered, user-curated set of tracks, with an optional
// sidecar cover image.
type Playlist struct {
	Name           string
	CoverImagePath string
	Entries        []PlaylistEntry
}

// FormatDescriptionMeta renders the machine-written summary line stored
// alongside each collage/playlist entry: "[YYYY-MM-DD] Artists - Title",
// with a " {MISSING}" suffix when missing is true.
func FormatDescriptionMeta(date string, artists string, title string, missing bool) string {
	s := "[" + date + "] " + artists + " - " + title
	if missing {
		s += " {MISSING}"
	}
	return s
}

// AddedAtNow is a thin indirection so callers needing "now" go through one
// seam (tests can substitute a fixed clock by constructing Release.AddedAt
// directly instead of calling this).
func AddedAtNow() time.Time { return time.Now().UTC() }
