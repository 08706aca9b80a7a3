package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.sunsetglow.net/rose/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), dir, ConfigFingerprint{MusicSourceDir: "/music", CacheDir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)
	var count int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM _schema_hash`).Scan(&count); err != nil {
		t.Fatalf("query schema_hash: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one schema_hash row, got %d", count)
	}
}

func TestOpenInvalidatesOnConfigChange(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(context.Background(), dir, ConfigFingerprint{MusicSourceDir: "/music"})
	if err != nil {
		t.Fatalf("Open 1: %v", err)
	}
	if err := s1.CreateCollage(context.Background(), "favorites"); err != nil {
		t.Fatalf("CreateCollage: %v", err)
	}
	s1.Close()

	s2, err := Open(context.Background(), dir, ConfigFingerprint{MusicSourceDir: "/other"})
	if err != nil {
		t.Fatalf("Open 2: %v", err)
	}
	defer s2.Close()

	names, err := s2.ListCollageNames(context.Background())
	if err != nil {
		t.Fatalf("ListCollageNames: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected cache wiped after config change, found collages %v", names)
	}
}

func TestOpenPreservesOnUnchangedConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := ConfigFingerprint{MusicSourceDir: "/music"}
	s1, err := Open(context.Background(), dir, cfg)
	if err != nil {
		t.Fatalf("Open 1: %v", err)
	}
	if err := s1.CreateCollage(context.Background(), "favorites"); err != nil {
		t.Fatalf("CreateCollage: %v", err)
	}
	s1.Close()

	s2, err := Open(context.Background(), dir, cfg)
	if err != nil {
		t.Fatalf("Open 2: %v", err)
	}
	defer s2.Close()

	names, err := s2.ListCollageNames(context.Background())
	if err != nil {
		t.Fatalf("ListCollageNames: %v", err)
	}
	if len(names) != 1 || names[0] != "favorites" {
		t.Fatalf("expected collage to survive reopen, got %v", names)
	}
}

func TestUpsertReleaseAndPreload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := &model.Release{
		ID:         "r1",
		SourcePath: "/music/Artist/Album",
		AddedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		New:        true,
		Title:      "Album",
		Genres:     []string{"Rock", "Pop"},
		Artists:    &model.ArtistSnapshot{Main: []string{"Artist"}},
	}
	r.Recompute()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.UpsertRelease(ctx, r); err != nil {
		t.Fatalf("UpsertRelease: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	loaded, err := s.PreloadReleases(ctx, nil)
	if err != nil {
		t.Fatalf("PreloadReleases: %v", err)
	}
	got, ok := loaded["r1"]
	if !ok {
		t.Fatalf("release r1 not found after upsert")
	}
	if got.Title != "Album" || len(got.Genres) != 2 {
		t.Fatalf("unexpected release data: %+v", got)
	}
}

func TestUpsertTrackAndDeleteTracks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := &model.Release{ID: "r1", SourcePath: "/music/a", AddedAt: time.Now().UTC(), Artists: &model.ArtistSnapshot{}}
	tx, _ := s.Begin(ctx)
	if err := tx.UpsertRelease(ctx, r); err != nil {
		t.Fatalf("UpsertRelease: %v", err)
	}
	tr := &model.Track{ID: "t1", ReleaseID: "r1", SourcePath: "/music/a/01.mp3", Artists: &model.ArtistSnapshot{Main: []string{"X"}}}
	if err := tx.UpsertTrack(ctx, tr); err != nil {
		t.Fatalf("UpsertTrack: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	byRelease, err := s.PreloadTracks(ctx, []string{"r1"})
	if err != nil {
		t.Fatalf("PreloadTracks: %v", err)
	}
	if _, ok := byRelease["r1"]["/music/a/01.mp3"]; !ok {
		t.Fatalf("expected track to be preloaded")
	}

	tx2, _ := s.Begin(ctx)
	if err := tx2.DeleteTracks(ctx, []string{"t1"}); err != nil {
		t.Fatalf("DeleteTracks: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit 2: %v", err)
	}

	byRelease, err = s.PreloadTracks(ctx, []string{"r1"})
	if err != nil {
		t.Fatalf("PreloadTracks 2: %v", err)
	}
	if len(byRelease["r1"]) != 0 {
		t.Fatalf("expected track deleted, found %v", byRelease["r1"])
	}
}

func TestDeleteReleasesNotIn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2"} {
		r := &model.Release{ID: id, SourcePath: "/music/" + id, AddedAt: time.Now().UTC(), Artists: &model.ArtistSnapshot{}}
		tx, _ := s.Begin(ctx)
		if err := tx.UpsertRelease(ctx, r); err != nil {
			t.Fatalf("UpsertRelease %s: %v", id, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit %s: %v", id, err)
		}
	}

	deleted, err := s.DeleteReleasesNotIn(ctx, []string{"/music/r1"})
	if err != nil {
		t.Fatalf("DeleteReleasesNotIn: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "/music/r2" {
		t.Fatalf("unexpected deleted set: %v", deleted)
	}

	remaining, err := s.PreloadReleases(ctx, nil)
	if err != nil {
		t.Fatalf("PreloadReleases: %v", err)
	}
	if _, ok := remaining["r1"]; !ok {
		t.Fatalf("expected r1 to survive")
	}
	if _, ok := remaining["r2"]; ok {
		t.Fatalf("expected r2 to be gone")
	}
}

func TestCollageLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateCollage(ctx, "faves"); err != nil {
		t.Fatalf("CreateCollage: %v", err)
	}
	entries := []model.CollageEntry{
		{ReleaseID: "r1", DescriptionMeta: "[2024-01-01] Artist - Album"},
		{ReleaseID: "r2", DescriptionMeta: "[2024-02-01] Other - Thing"},
	}
	if err := s.SetCollageEntries(ctx, "faves", entries); err != nil {
		t.Fatalf("SetCollageEntries: %v", err)
	}

	c, err := s.ReadCollage(ctx, "faves")
	if err != nil {
		t.Fatalf("ReadCollage: %v", err)
	}
	if len(c.Entries) != 2 || c.Entries[0].ReleaseID != "r1" {
		t.Fatalf("unexpected collage contents: %+v", c.Entries)
	}

	if err := s.RefreshCollageMissing(ctx, map[string]string{"r1": entries[0].DescriptionMeta}); err != nil {
		t.Fatalf("RefreshCollageMissing: %v", err)
	}
	c, err = s.ReadCollage(ctx, "faves")
	if err != nil {
		t.Fatalf("ReadCollage 2: %v", err)
	}
	if c.Entries[0].Missing {
		t.Fatalf("r1 should not be missing")
	}
	if !c.Entries[1].Missing {
		t.Fatalf("r2 should be marked missing")
	}

	if err := s.RenameCollage(ctx, "faves", "favorites"); err != nil {
		t.Fatalf("RenameCollage: %v", err)
	}
	if _, err := s.ReadCollage(ctx, "favorites"); err != nil {
		t.Fatalf("ReadCollage after rename: %v", err)
	}

	if err := s.DeleteCollage(ctx, "favorites"); err != nil {
		t.Fatalf("DeleteCollage: %v", err)
	}
	names, err := s.ListCollageNames(ctx)
	if err != nil {
		t.Fatalf("ListCollageNames: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no collages after delete, got %v", names)
	}
}

func TestPlaylistLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreatePlaylist(ctx, "driving"); err != nil {
		t.Fatalf("CreatePlaylist: %v", err)
	}
	if err := s.SetPlaylistCoverImage(ctx, "driving", "/music/.playlists/driving.jpg"); err != nil {
		t.Fatalf("SetPlaylistCoverImage: %v", err)
	}
	entries := []model.PlaylistEntry{{TrackID: "t1", DescriptionMeta: "d1"}}
	if err := s.SetPlaylistEntries(ctx, "driving", entries); err != nil {
		t.Fatalf("SetPlaylistEntries: %v", err)
	}

	p, err := s.ReadPlaylist(ctx, "driving")
	if err != nil {
		t.Fatalf("ReadPlaylist: %v", err)
	}
	if p.CoverImagePath != "/music/.playlists/driving.jpg" || len(p.Entries) != 1 {
		t.Fatalf("unexpected playlist: %+v", p)
	}
}

func TestLockMutualExclusion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	h, err := s.Lock(ctx, ReleaseLockName("r1"), 5*time.Second)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		h2, err := s.Lock(ctx, ReleaseLockName("r1"), 5*time.Second)
		if err != nil {
			t.Errorf("second Lock: %v", err)
			return
		}
		h2.Release(ctx)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("second lock acquired before first was released")
	case <-time.After(200 * time.Millisecond):
	}

	if err := h.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// The waiter re-polls only once the first holder's valid_until (5s after
	// it was taken) has passed, so allow for that whole interval here.
	select {
	case <-acquired:
	case <-time.After(6 * time.Second):
		t.Fatalf("second lock never acquired after release")
	}
}

func TestCacheFileRemovedOnSchemaInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.sqlite3")
	if err := os.WriteFile(path, []byte("not a real database"), 0o644); err != nil {
		t.Fatalf("seed bogus db: %v", err)
	}
	s, err := Open(context.Background(), dir, ConfigFingerprint{})
	if err != nil {
		t.Fatalf("Open should recover from a corrupt db: %v", err)
	}
	s.Close()
}
