package updater

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
)

// fakeCodec is a minimal in-memory tagcodec.Codec registered under the
// "rtest" extension so the updater's pipeline can be driven end to end
// without a real MP3/MP4/FLAC fixture file. It stores tags as a tiny
// text format of newline-separated key=value lines, readable/writable to a
// plain file.
type fakeCodec struct {
	mu sync.Mutex
}

func (f *fakeCodec) Read(path string) (*model.AudioTags, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t := model.NewAudioTags()
	fields := map[string]string{}
	for _, line := range splitLines(string(raw)) {
		k, v, ok := cutOnce(line, "=")
		if ok {
			fields[k] = v
		}
	}
	t.TrackID = fields["track_id"]
	t.ReleaseID = fields["release_id"]
	t.TrackNumber = fields["tracknumber"]
	t.DiscNumber = fields["discnumber"]
	t.TrackTitle = fields["tracktitle"]
	t.ReleaseTitle = fields["releasetitle"]
	t.ReleaseType = fields["releasetype"]
	t.ReleaseDate = rosedate.Parse(fields["releasedate"])
	if g, ok := fields["genre"]; ok && g != "" {
		t.Genres = []string{g}
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
		"tracknumber=" + t.TrackNumber + "\n" +
		"discnumber=" + t.DiscNumber + "\n" +
		"tracktitle=" + t.TrackTitle + "\n" +
		"releasetitle=" + t.ReleaseTitle + "\n" +
		"releasetype=" + t.ReleaseType + "\n" +
		"releasedate=" + t.ReleaseDate.Format() + "\n" +
		"trackartist=" + t.TrackArtists.Format() + "\n" +
		"releaseartist=" + t.ReleaseArtists.Format() + "\n"
	if len(t.Genres) > 0 {
		s += "genre=" + t.Genres[0] + "\n"
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

func registerFakeCodec() {
	registerFake.Do(func() {
		tagcodec.Register(&fakeCodec{}, "rtest")
	})
}

func testConfig(musicDir string) *config.Config {
	cfg := &config.Config{
		MusicSourceDir: musicDir,
		CoverArtStems:  []string{"cover", "folder"},
		ValidArtExts:   []string{"jpg", "png"},
	}
	cfg.Prepare()
	return cfg
}

func writeTrack(t *testing.T, path string, fields map[string]string) {
	t.Helper()
	var s string
	for k, v := range fields {
		s += k + "=" + v + "\n"
	}
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
}

func TestUpdateCacheCreatesNewRelease(t *testing.T) {
	registerFakeCodec()
	musicDir := t.TempDir()
	cacheDir := t.TempDir()

	relDir := filepath.Join(musicDir, "Artist - Album")
	if err := os.MkdirAll(relDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeTrack(t, filepath.Join(relDir, "01.rtest"), map[string]string{
		"tracktitle": "Song One", "releasetitle": "Album", "releasetype": "album",
		"releasedate": "2020", "trackartist": "Artist", "releaseartist": "Artist",
		"tracknumber": "1", "discnumber": "1",
	})
	writeTrack(t, filepath.Join(relDir, "02.rtest"), map[string]string{
		"tracktitle": "Song Two", "releasetitle": "Album", "releasetype": "album",
		"releasedate": "2020", "trackartist": "Artist", "releaseartist": "Artist",
		"tracknumber": "2", "discnumber": "1",
	})

	ctx := context.Background()
	store, err := cache.Open(ctx, cacheDir, cache.ConfigFingerprint{MusicSourceDir: musicDir, CacheDir: cacheDir})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer store.Close()

	cfg := testConfig(musicDir)

	res, err := UpdateCache(ctx, store, cfg, nil, nil, false)
	if err != nil {
		t.Fatalf("UpdateCache: %v", err)
	}
	if len(res.ReleasesUpserted) != 1 {
		t.Fatalf("expected one release upserted, got %v", res.ReleasesUpserted)
	}

	releases, err := store.PreloadReleases(ctx, nil)
	if err != nil {
		t.Fatalf("PreloadReleases: %v", err)
	}
	if len(releases) != 1 {
		t.Fatalf("expected one release in cache, got %d", len(releases))
	}
	var releaseID string
	for id, r := range releases {
		releaseID = id
		if r.Title != "Album" || r.DiscTotal != 1 {
			t.Fatalf("unexpected release: %+v", r)
		}
	}

	tracks, err := store.PreloadTracks(ctx, []string{releaseID})
	if err != nil {
		t.Fatalf("PreloadTracks: %v", err)
	}
	if len(tracks[releaseID]) != 2 {
		t.Fatalf("expected two tracks, got %d", len(tracks[releaseID]))
	}
	for _, tr := range tracks[releaseID] {
		if tr.TrackTotal != 2 {
			t.Fatalf("expected tracktotal 2, got %d", tr.TrackTotal)
		}
	}

	entries, err := os.ReadDir(relDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	foundDatafile := false
	for _, e := range entries {
		if len(e.Name()) > 6 && e.Name()[:6] == ".rose." {
			foundDatafile = true
		}
	}
	if !foundDatafile {
		t.Fatalf("expected a .rose.<id>.toml datafile to be written, entries: %v", entries)
	}
}

func TestUpdateCacheSkipsUnchangedTrack(t *testing.T) {
	registerFakeCodec()
	musicDir := t.TempDir()
	cacheDir := t.TempDir()

	relDir := filepath.Join(musicDir, "Artist - Album")
	if err := os.MkdirAll(relDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	trackPath := filepath.Join(relDir, "01.rtest")
	writeTrack(t, trackPath, map[string]string{
		"tracktitle": "Song One", "releasetitle": "Album", "releasetype": "album",
		"releasedate": "2020", "trackartist": "Artist", "releaseartist": "Artist",
	})

	ctx := context.Background()
	store, err := cache.Open(ctx, cacheDir, cache.ConfigFingerprint{MusicSourceDir: musicDir, CacheDir: cacheDir})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer store.Close()
	cfg := testConfig(musicDir)

	if _, err := UpdateCache(ctx, store, cfg, nil, nil, false); err != nil {
		t.Fatalf("UpdateCache first pass: %v", err)
	}

	before, err := os.ReadFile(trackPath)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	if _, err := UpdateCache(ctx, store, cfg, nil, nil, false); err != nil {
		t.Fatalf("UpdateCache second pass: %v", err)
	}

	after, err := os.ReadFile(trackPath)
	if err != nil {
		t.Fatalf("read fixture after: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("expected unchanged track file to be left alone on second pass")
	}
}

func TestUpdateCacheEvictsVanishedRelease(t *testing.T) {
	registerFakeCodec()
	musicDir := t.TempDir()
	cacheDir := t.TempDir()

	relDir := filepath.Join(musicDir, "Artist - Album")
	if err := os.MkdirAll(relDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeTrack(t, filepath.Join(relDir, "01.rtest"), map[string]string{
		"tracktitle": "Song One", "releasetitle": "Album", "trackartist": "Artist", "releaseartist": "Artist",
	})

	ctx := context.Background()
	store, err := cache.Open(ctx, cacheDir, cache.ConfigFingerprint{MusicSourceDir: musicDir, CacheDir: cacheDir})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer store.Close()
	cfg := testConfig(musicDir)

	if _, err := UpdateCache(ctx, store, cfg, nil, nil, false); err != nil {
		t.Fatalf("UpdateCache first pass: %v", err)
	}
	if err := os.RemoveAll(relDir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	res, err := UpdateCache(ctx, store, cfg, nil, nil, false)
	if err != nil {
		t.Fatalf("UpdateCache second pass: %v", err)
	}
	if len(res.ReleasesEvicted) != 1 {
		t.Fatalf("expected one eviction, got %v", res.ReleasesEvicted)
	}

	releases, err := store.PreloadReleases(ctx, nil)
	if err != nil {
		t.Fatalf("PreloadReleases: %v", err)
	}
	if len(releases) != 0 {
		t.Fatalf("expected no releases after eviction, got %v", releases)
	}
}

func TestUpdateCacheQuarantinesFreshDirectory(t *testing.T) {
	registerFakeCodec()
	musicDir := t.TempDir()
	cacheDir := t.TempDir()

	relDir := filepath.Join(musicDir, "Copying - Album")
	if err := os.MkdirAll(relDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// No datafile, but the track already carries a release_id: looks like
	// an in-progress copy from elsewhere in the tree, not a new release.
	writeTrack(t, filepath.Join(relDir, "01.rtest"), map[string]string{
		"release_id": "deadbeef-0000-0000-0000-000000000000",
		"tracktitle": "Song", "releasetitle": "Album",
	})

	ctx := context.Background()
	store, err := cache.Open(ctx, cacheDir, cache.ConfigFingerprint{MusicSourceDir: musicDir, CacheDir: cacheDir})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer store.Close()
	cfg := testConfig(musicDir)

	if _, err := UpdateCache(ctx, store, cfg, nil, nil, false); err != nil {
		t.Fatalf("UpdateCache: %v", err)
	}

	releases, err := store.PreloadReleases(ctx, nil)
	if err != nil {
		t.Fatalf("PreloadReleases: %v", err)
	}
	if len(releases) != 0 {
		t.Fatalf("expected the fresh directory to be quarantined, got %v", releases)
	}

	entries, err := os.ReadDir(relDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no datafile to have been written, entries: %v", entries)
	}
}
