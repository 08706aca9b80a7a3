package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.sunsetglow.net/rose/internal/artist"
)

// Release is the aggregate keyed by release id. Per spec §9 Design Notes,
// a Track never holds a mutable back-pointer to its Release; callers carry
// the Release value alongside its tracks during a batch and let the
// database re-join afterward.
type Release struct {
	ID string

	SourcePath     string
	CoverImagePath string // "" if none

	DatafileMtime string // opaque mtime marker, compared verbatim
	AddedAt       time.Time
	New           bool

	Title           string
	ReleaseType     string
	ReleaseDate     string // RoseDate.Format(), stored pre-rendered
	OriginalDate    string
	CompositionDate string
	Edition         string
	CatalogNumber   string

	Genres          []string
	SecondaryGenres []string
	Descriptors     []string
	Labels          []string

	// ParentGenres is the sorted transitive closure under the static
	// hierarchy (genre.Hierarchy.Parents), recomputed by the updater.
	ParentGenres []string

	Artists *ArtistSnapshot

	DiscTotal int

	Metahash string
}

// ArtistSnapshot is the flattened, role-ordered view of a release's or
// track's artist mapping as persisted to the releases_artists /
// tracks_artists tables (role, position).
type ArtistSnapshot struct {
	Main      []string
	Guest     []string
	Remixer   []string
	Composer  []string
	Conductor []string
	Producer  []string
	DJMixer   []string
}

// computeMetahash hashes a fixed, ordered concatenation of fields so that
// two logically-identical records always hash identically regardless of
// slice order within a single field (each field is itself sorted before
// joining).
func computeMetahash(parts ...string) string {
	sorted := make([]string, len(parts))
	copy(sorted, parts)
	h := sha256.New()
	for _, p := range sorted {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedJoin(ss []string) string {
	cp := append([]string(nil), ss...)
	sort.Strings(cp)
	return strings.Join(cp, "\x1f")
}

// Recompute refreshes r.Metahash from its current tagged fields. It must be
// called after any mutation; the value is stored with the cached row. The
// updater does not compare it against the cached value: every reconciled
// release is written whether or not its hash changed.
func (r *Release) Recompute() {
	r.Metahash = computeMetahash(
		r.Title, r.ReleaseType, r.ReleaseDate, r.OriginalDate, r.CompositionDate,
		r.Edition, r.CatalogNumber,
		sortedJoin(r.Genres), sortedJoin(r.SecondaryGenres),
		sortedJoin(r.Descriptors), sortedJoin(r.Labels),
		strconv.Itoa(r.DiscTotal),
		r.Artists.join(),
	)
}

// SnapshotFromMapping flattens an artist.Mapping into the persisted,
// role-keyed shape, dropping alias entries since those are a read-time
// expansion (artist.Artist.Alias) and are never written to the cache.
func SnapshotFromMapping(m *artist.Mapping) *ArtistSnapshot {
	s := &ArtistSnapshot{}
	roles := []struct {
		role artist.Role
		dst  *[]string
	}{
		{artist.Main, &s.Main}, {artist.Guest, &s.Guest}, {artist.Remixer, &s.Remixer},
		{artist.Composer, &s.Composer}, {artist.Conductor, &s.Conductor},
		{artist.Producer, &s.Producer}, {artist.DJMixer, &s.DJMixer},
	}
	for _, r := range roles {
		for _, a := range m.Artists(r.role) {
			if a.Alias {
				continue
			}
			*r.dst = append(*r.dst, a.Name)
		}
	}
	return s
}

// AllNames returns every artist name across all seven roles, role order,
// for building the denormalized FTS trackartist/releaseartist columns.
func (a *ArtistSnapshot) AllNames() []string {
	if a == nil {
		return nil
	}
	var out []string
	for _, names := range [][]string{a.Main, a.Guest, a.Remixer, a.Composer, a.Conductor, a.Producer, a.DJMixer} {
		out = append(out, names...)
	}
	return out
}

func (a *ArtistSnapshot) join() string {
	if a == nil {
		return ""
	}
	return strings.Join([]string{
		sortedJoin(a.Main), sortedJoin(a.Guest), sortedJoin(a.Remixer),
		sortedJoin(a.Composer), sortedJoin(a.Conductor), sortedJoin(a.Producer),
		sortedJoin(a.DJMixer),
	}, "\x1e")
}
