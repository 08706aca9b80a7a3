// Package model defines the aggregate domain types shared by the cache,
// updater, query, and rules packages: AudioTags (the per-file record every
// tag codec reads/writes), and the Release/Track/Collage/Playlist
// aggregates the cache persists.
package model

import (
	"strings"

	"go.sunsetglow.net/rose/internal/artist"
	"go.sunsetglow.net/rose/internal/rosedate"
)

// ReleaseTypes is the canonical, lowercase set that every releasetype tag
// value normalizes into; anything else collapses to "unknown".
var ReleaseTypes = []string{
	"album",
	"single",
	"ep",
	"compilation",
	"anthology",
	"soundtrack",
	"live",
	"remix",
	"djmix",
	"mixtape",
	"bootleg",
	"demo",
	"other",
	"unknown",
	"none",
}

var releaseTypeSet = func() map[string]bool {
	s := make(map[string]bool, len(ReleaseTypes))
	for _, t := range ReleaseTypes {
		s[t] = true
	}
	return s
}()

// NormalizeReleaseType lowercases v and maps unrecognized values to
// "unknown", per spec §4.1 normalization rules.
func NormalizeReleaseType(v string) string {
	lower := strings.ToLower(strings.TrimSpace(v))
	if releaseTypeSet[lower] {
		return lower
	}
	return "unknown"
}

// AudioTags is the per-file tagged-field record every codec reads and
// writes. Release-scope fields (title, type, dates, edition, catalog
// number, genres, descriptors, labels, release artists) are duplicated
// across every track of a release and reconciled by the updater.
type AudioTags struct {
	TrackID   string
	ReleaseID string

	TrackNumber string
	TrackTotal  int
	DiscNumber  string
	DiscTotal   int

	TrackTitle   string
	ReleaseTitle string

	ReleaseDate     rosedate.RoseDate
	OriginalDate    rosedate.RoseDate
	CompositionDate rosedate.RoseDate

	ReleaseType string

	Genres          []string
	SecondaryGenres []string
	Descriptors     []string
	Labels          []string
	CatalogNumber   string
	Edition         string

	DurationSeconds int

	TrackArtists   *artist.Mapping
	ReleaseArtists *artist.Mapping
}

// NewAudioTags returns a zero-value AudioTags with both artist mappings
// allocated, so callers never need a nil check before calling Artists/Add.
func NewAudioTags() *AudioTags {
	return &AudioTags{
		ReleaseType:    "unknown",
		TrackArtists:   &artist.Mapping{},
		ReleaseArtists: &artist.Mapping{},
	}
}

// StripPositionDots removes '.' from TrackNumber/DiscNumber, per spec
// §4.4.5: these positions get virtualized downstream and a literal dot
// would collide with that representation.
func (t *AudioTags) StripPositionDots() {
	t.TrackNumber = strings.ReplaceAll(t.TrackNumber, ".", "")
	t.DiscNumber = strings.ReplaceAll(t.DiscNumber, ".", "")
}
