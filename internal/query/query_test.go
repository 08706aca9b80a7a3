package query

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.sunsetglow.net/rose/internal/artist"
	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/config"
	"go.sunsetglow.net/rose/internal/model"
	"go.sunsetglow.net/rose/internal/rosedate"
	"go.sunsetglow.net/rose/internal/tagcodec"
	"go.sunsetglow.net/rose/internal/updater"
)

// fakeCodec is the same key=value-per-line tag format
// internal/updater's and internal/rules' tests use, registered here under a
// package-local extension to drive the cache without real audio fixtures.
type fakeCodec struct{ mu sync.Mutex }

func (f *fakeCodec) Read(path string) (*model.AudioTags, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fields := map[string]string{}
	for _, line := range splitLines(string(raw)) {
		if k, v, ok := cutOnce(line, "="); ok {
			fields[k] = v
		}
	}
	t := model.NewAudioTags()
	t.TrackID = fields["track_id"]
	t.ReleaseID = fields["release_id"]
	t.TrackNumber = fields["tracknumber"]
	t.TrackTitle = fields["tracktitle"]
	t.ReleaseTitle = fields["releasetitle"]
	t.ReleaseType = fields["releasetype"]
	t.ReleaseDate = rosedate.Parse(fields["releasedate"])
	if v, ok := fields["genre"]; ok {
		t.Genres = []string{v}
	}
	if v, ok := fields["label"]; ok {
		t.Labels = []string{v}
	}
	t.TrackArtists = artist.Parse(fields["trackartist"])
	t.ReleaseArtists = artist.Parse(fields["releaseartist"])
	return t, nil
}

func (f *fakeCodec) Write(path string, t *model.AudioTags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := "track_id=" + t.TrackID + "\n" +
		"release_id=" + t.ReleaseID + "\n" +
		"tracktitle=" + t.TrackTitle + "\n" +
		"releasetitle=" + t.ReleaseTitle + "\n" +
		"releasetype=" + t.ReleaseType + "\n" +
		"releasedate=" + t.ReleaseDate.Format() + "\n" +
		"trackartist=" + t.TrackArtists.Format() + "\n" +
		"releaseartist=" + t.ReleaseArtists.Format() + "\n"
	if len(t.Genres) > 0 {
		s += "genre=" + t.Genres[0] + "\n"
	}
	if len(t.Labels) > 0 {
		s += "label=" + t.Labels[0] + "\n"
	}
	return os.WriteFile(path, []byte(s), 0o644)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func cutOnce(s, sep string) (before, after string, found bool) {
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i:i+len(sep)] == sep {
			return s[:i], s[i+len(sep):], true
		}
	}
	return s, "", false
}

var registerFake sync.Once

func setupCache(t *testing.T, releases map[string]map[string]map[string]string) (context.Context, *cache.Store) {
	t.Helper()
	registerFake.Do(func() { tagcodec.Register(&fakeCodec{}, "qtest") })

	musicDir := t.TempDir()
	cacheDir := t.TempDir()
	for relName, tracks := range releases {
		relDir := filepath.Join(musicDir, relName)
		if err := os.MkdirAll(relDir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		for trackName, fields := range tracks {
			var s string
			for k, v := range fields {
				s += k + "=" + v + "\n"
			}
			if err := os.WriteFile(filepath.Join(relDir, trackName), []byte(s), 0o644); err != nil {
				t.Fatalf("write fixture: %v", err)
			}
		}
	}

	ctx := context.Background()
	store, err := cache.Open(ctx, cacheDir, cache.ConfigFingerprint{MusicSourceDir: musicDir, CacheDir: cacheDir})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{MusicSourceDir: musicDir}
	cfg.Prepare()
	if _, err := updater.UpdateCache(ctx, store, cfg, nil, nil, false); err != nil {
		t.Fatalf("UpdateCache: %v", err)
	}
	return ctx, store
}

func TestReleasesFiltersByGenreAndLoadsArtists(t *testing.T) {
	ctx, store := setupCache(t, map[string]map[string]map[string]string{
		"Rock Artist - Rock Album": {
			"01.qtest": {
				"tracktitle": "Song A", "releasetitle": "Rock Album", "releasetype": "album",
				"releasedate": "2021", "genre": "Rock", "trackartist": "Rock Artist", "releaseartist": "Rock Artist",
			},
		},
		"Jazz Artist - Jazz Album": {
			"01.qtest": {
				"tracktitle": "Song B", "releasetitle": "Jazz Album", "releasetype": "album",
				"releasedate": "2019", "genre": "Jazz", "trackartist": "Jazz Artist", "releaseartist": "Jazz Artist",
			},
		},
	})

	rock, err := Releases(ctx, store, nil, ReleaseFilter{Genre: "Rock"})
	if err != nil {
		t.Fatalf("Releases: %v", err)
	}
	if len(rock) != 1 || rock[0].Title != "Rock Album" {
		t.Fatalf("expected 1 rock release, got %+v", rock)
	}
	if got := rock[0].Artists.AllNames(); len(got) != 1 || got[0] != "Rock Artist" {
		t.Fatalf("expected release artists loaded, got %v", got)
	}

	all, err := Releases(ctx, store, nil, ReleaseFilter{})
	if err != nil {
		t.Fatalf("Releases (unfiltered): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 releases unfiltered, got %d", len(all))
	}
}

func TestTracksFilterByArtist(t *testing.T) {
	ctx, store := setupCache(t, map[string]map[string]map[string]string{
		"Artist - Album": {
			"01.qtest": {"tracktitle": "One", "releasetitle": "Album", "trackartist": "Solo Artist", "releaseartist": "Solo Artist"},
			"02.qtest": {"tracktitle": "Two", "releasetitle": "Album", "trackartist": "Other Artist", "releaseartist": "Solo Artist"},
		},
	})

	tracks, err := Tracks(ctx, store, nil, TrackFilter{Artist: "Other Artist"})
	if err != nil {
		t.Fatalf("Tracks: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "Two" {
		t.Fatalf("expected 1 track by Other Artist, got %+v", tracks)
	}
}

func TestDistinctFacets(t *testing.T) {
	ctx, store := setupCache(t, map[string]map[string]map[string]string{
		"Artist - Album": {
			"01.qtest": {"tracktitle": "One", "releasetitle": "Album", "genre": "Rock", "label": "A Cool Label", "trackartist": "Artist", "releaseartist": "Artist"},
		},
	})

	genres, err := Genres(ctx, store)
	if err != nil {
		t.Fatalf("Genres: %v", err)
	}
	if len(genres) != 1 || genres[0] != "Rock" {
		t.Fatalf("expected [Rock], got %v", genres)
	}

	labels, err := Labels(ctx, store)
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if len(labels) != 1 || labels[0] != "A Cool Label" {
		t.Fatalf("expected [A Cool Label], got %v", labels)
	}

	artists, err := Artists(ctx, store)
	if err != nil {
		t.Fatalf("Artists: %v", err)
	}
	if len(artists) != 1 || artists[0] != "Artist" {
		t.Fatalf("expected [Artist], got %v", artists)
	}
}

func TestFuzzyReleasesRanksCloseTitles(t *testing.T) {
	ctx, store := setupCache(t, map[string]map[string]map[string]string{
		"Artist - Exact Title": {
			"01.qtest": {"tracktitle": "Song", "releasetitle": "Exact Title", "trackartist": "Artist", "releaseartist": "Artist"},
		},
		"Artist - Completely Unrelated": {
			"01.qtest": {"tracktitle": "Song", "releasetitle": "Completely Unrelated", "trackartist": "Artist", "releaseartist": "Artist"},
		},
	})

	matches, err := FuzzyReleases(ctx, store, "Exact Title!!", 5, 0)
	if err != nil {
		t.Fatalf("FuzzyReleases: %v", err)
	}
	if len(matches) == 0 || matches[0].Release.Title != "Exact Title" {
		t.Fatalf("expected closest match first, got %+v", matches)
	}
}
