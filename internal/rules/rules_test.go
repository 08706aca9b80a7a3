package rules

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

// fakeCodec is a minimal key=value-per-line tag format, the same
// trick internal/updater's tests use to drive the pipeline without a real
// MP3/MP4/FLAC fixture.
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
	t.DiscNumber = fields["discnumber"]
	t.TrackTitle = fields["tracktitle"]
	t.ReleaseTitle = fields["releasetitle"]
	t.ReleaseType = fields["releasetype"]
	t.ReleaseDate = rosedate.Parse(fields["releasedate"])
	if v, ok := fields["label"]; ok {
		t.Labels = []string{v}
	}
	if v, ok := fields["genre"]; ok {
		t.Genres = []string{v}
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
	if len(t.Labels) > 0 {
		s += "label=" + t.Labels[0] + "\n"
	}
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
	registerFake.Do(func() { tagcodec.Register(&fakeCodec{}, "rtest") })
}

func testConfig(musicDir string) *config.Config {
	cfg := &config.Config{MusicSourceDir: musicDir}
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

func setupCache(t *testing.T, tracks map[string]map[string]string) (context.Context, *cache.Store, *config.Config, string) {
	t.Helper()
	registerFakeCodec()
	musicDir := t.TempDir()
	cacheDir := t.TempDir()

	relDir := filepath.Join(musicDir, "Artist - Album")
	if err := os.MkdirAll(relDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, fields := range tracks {
		writeTrack(t, filepath.Join(relDir, name), fields)
	}

	ctx := context.Background()
	store, err := cache.Open(ctx, cacheDir, cache.ConfigFingerprint{MusicSourceDir: musicDir, CacheDir: cacheDir})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := testConfig(musicDir)
	if _, err := updater.UpdateCache(ctx, store, cfg, nil, nil, false); err != nil {
		t.Fatalf("UpdateCache: %v", err)
	}
	return ctx, store, cfg, relDir
}

func TestRuleReplaceIsIdempotent(t *testing.T) {
	ctx, store, cfg, _ := setupCache(t, map[string]map[string]string{
		"01.rtest": {"tracktitle": "Track 1", "releasetitle": "Album", "releasetype": "album", "releasedate": "2020", "trackartist": "Artist", "releaseartist": "Artist"},
		"02.rtest": {"tracktitle": "Track 2", "releasetitle": "Album", "releasetype": "album", "releasedate": "2020", "trackartist": "Artist", "releaseartist": "Artist"},
	})

	rule, err := ParseRule("tracktitle:Track", []string{"replace:lalala"}, nil)
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}

	plan, err := Build(ctx, store, rule)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(plan.Tracks) != 2 {
		t.Fatalf("expected 2 changed tracks, got %d", len(plan.Tracks))
	}
	for _, tc := range plan.Tracks {
		if len(tc.Changes) != 1 || tc.Changes[0].Tag != "tracktitle" || tc.Changes[0].After != "lalala" {
			t.Fatalf("unexpected change for %s: %+v", tc.SourcePath, tc.Changes)
		}
	}

	if _, err := Apply(ctx, store, cfg, nil, plan); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	plan2, err := Build(ctx, store, rule)
	if err != nil {
		t.Fatalf("Build (2nd): %v", err)
	}
	if len(plan2.Tracks) != 0 {
		t.Fatalf("expected no changes on re-run, got %d", len(plan2.Tracks))
	}
}

func TestRuleSplitLabel(t *testing.T) {
	ctx, store, _, _ := setupCache(t, map[string]map[string]string{
		"01.rtest": {"tracktitle": "Song", "releasetitle": "Album", "label": "A Cool Label", "trackartist": "Artist", "releaseartist": "Artist"},
	})

	rule, err := ParseRule("label:Cool", []string{"split:Cool"}, nil)
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}

	plan, err := Build(ctx, store, rule)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(plan.Tracks) != 1 {
		t.Fatalf("expected 1 changed track, got %d", len(plan.Tracks))
	}
	change := plan.Tracks[0]
	if len(change.Changes) != 1 || change.Changes[0].After != "A ; Label" {
		t.Fatalf("unexpected label diff: %+v", change.Changes)
	}
}

func TestRuleIgnoreListDropsMatch(t *testing.T) {
	ctx, store, _, _ := setupCache(t, map[string]map[string]string{
		"01.rtest": {"tracktitle": "Track 1", "releasetitle": "Album", "trackartist": "Artist", "releaseartist": "Artist"},
		"02.rtest": {"tracktitle": "Track 2", "releasetitle": "Album", "trackartist": "Artist", "releaseartist": "Artist"},
	})

	rule, err := ParseRule("tracktitle:Track", []string{"replace:lalala"}, []string{"tracktitle:Track 2"})
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}

	plan, err := Build(ctx, store, rule)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(plan.Tracks) != 1 {
		t.Fatalf("expected 1 changed track, got %d", len(plan.Tracks))
	}
	if len(plan.SkippedByIgnore) != 1 {
		t.Fatalf("expected 1 ignored track, got %d", len(plan.SkippedByIgnore))
	}
}

func TestPlanDecide(t *testing.T) {
	plan := &Plan{Tracks: make([]*TrackChange, 5)}
	if got := plan.Decide(Options{DryRun: true}); got != DecisionAbort {
		t.Fatalf("expected DecisionAbort for dry run, got %v", got)
	}
	if got := plan.Decide(Options{EnterNumberToConfirmAboveCount: 3}); got != DecisionConfirmCount {
		t.Fatalf("expected DecisionConfirmCount, got %v", got)
	}
	if got := plan.Decide(Options{ConfirmYes: true}); got != DecisionConfirmYesNo {
		t.Fatalf("expected DecisionConfirmYesNo, got %v", got)
	}
	if got := plan.Decide(Options{}); got != DecisionProceed {
		t.Fatalf("expected DecisionProceed, got %v", got)
	}
}
