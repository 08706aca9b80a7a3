package updater

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"go.sunsetglow.net/rose/internal/config"
	"go.sunsetglow.net/rose/internal/model"
	"go.sunsetglow.net/rose/internal/pathutil"
)

// sanitizeComponent replaces path-separator and control characters that
// cannot appear in a single filesystem component.
func sanitizeComponent(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func releaseArtistsDisplay(a *model.ArtistSnapshot) string {
	if a == nil || len(a.Main) == 0 {
		return "Unknown Artist"
	}
	return strings.Join(a.Main, "; ")
}

// desiredReleaseDirName computes the template name a release directory
// should have: "{release artists} - {title}" (spec §4.4 Phase 3.7).
func desiredReleaseDirName(release *model.Release) string {
	title := release.Title
	if title == "" {
		title = "Unknown Release"
	}
	return sanitizeComponent(releaseArtistsDisplay(release.Artists) + " - " + title)
}

// renameRelease moves a release's source directory to its desired name if
// it differs (NFC-normalized comparison), with a bounded collision-suffix
// retry. It returns the (possibly unchanged) new directory path.
func renameRelease(cfg *config.Config, dirPath string, release *model.Release) (string, error) {
	parent := filepath.Dir(dirPath)
	current := filepath.Base(dirPath)
	desired := desiredReleaseDirName(release)

	if norm.NFC.String(current) == norm.NFC.String(desired) {
		return dirPath, nil
	}

	name, ok := pathutil.WithCollisionSuffix(parent, desired, "", cfg.MaxFilenameBytes, 50)
	if !ok {
		return dirPath, nil // rename collision overflow: skip silently, keep the cache update
	}

	newPath := filepath.Join(parent, name)
	if err := os.Rename(dirPath, newPath); err != nil {
		return dirPath, err
	}
	return newPath, nil
}

// renameTrackPath rewrites a track's recorded source path after its parent
// release directory was renamed (the track file itself did not move).
func renameTrackPath(newDir, oldDir, oldTrackPath string) string {
	rel, err := filepath.Rel(oldDir, oldTrackPath)
	if err != nil {
		return oldTrackPath
	}
	return filepath.Join(newDir, rel)
}
