package updater

import (
	"os"
	"path/filepath"
	"sort"

	"go.sunsetglow.net/rose/internal/config"
	"go.sunsetglow.net/rose/internal/datafile"
	"go.sunsetglow.net/rose/internal/pathutil"
	"go.sunsetglow.net/rose/internal/rlog"
	"go.sunsetglow.net/rose/internal/tagcodec"
)

// candidate is one release directory discovered by enumerate, with every
// file path it contains recorded once (spec §4.4 Phase 1).
type candidate struct {
	dirPath string
	dirName string

	audioFiles []string // absolute paths, sorted

	datafilePath string // "" if none found
	datafileID   string // release id recovered from the datafile name, "" if none

	coverImagePath string
}

// enumerate walks music_source_dir (or just the given dirs, relative to
// it, when non-nil), recording one candidate per immediate child directory
// that isn't reserved or ignored.
func enumerate(cfg *config.Config, dirs []string, logger *rlog.Logger) ([]candidate, error) {
	var names []string
	if dirs != nil {
		names = dirs
	} else {
		entries, err := os.ReadDir(cfg.MusicSourceDir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}

	var candidates []candidate
	for _, name := range names {
		if cfg.IsIgnoredReleaseDirectory(name) {
			continue
		}
		dirPath := filepath.Join(cfg.MusicSourceDir, name)
		info, err := os.Stat(dirPath)
		if err != nil {
			if logger != nil {
				logger.Warning.Printf("release directory vanished before scan: %s", dirPath)
			}
			continue
		}
		if !info.IsDir() {
			continue
		}

		c, err := scanCandidate(cfg, dirPath, name)
		if err != nil {
			if logger != nil {
				logger.Warning.Printf("release directory vanished mid-scan: %s: %v", dirPath, err)
			}
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func scanCandidate(cfg *config.Config, dirPath, dirName string) (candidate, error) {
	c := candidate{dirPath: dirPath, dirName: dirName}

	var entryNames []string
	err := filepath.Walk(dirPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // file vanished mid-walk: skip it, keep walking
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dirPath, p)
		if relErr != nil {
			rel = filepath.Base(p)
		}
		entryNames = append(entryNames, rel)

		base := filepath.Base(p)
		ext := pathutil.Ext(p)
		if _, codecErr := tagcodec.ForPath(ext); codecErr == nil {
			c.audioFiles = append(c.audioFiles, p)
		} else if c.datafilePath == "" {
			if id, ok := datafile.ExtractID(base); ok {
				c.datafilePath = p
				c.datafileID = id
			}
		}
		if c.coverImagePath == "" && cfg.IsValidCoverArtName(base) {
			c.coverImagePath = p
		}
		return nil
	})
	if err != nil {
		return candidate{}, err
	}

	sort.Strings(c.audioFiles)

	if len(entryNames) > 1 {
		var datafiles []string
		for _, n := range entryNames {
			if _, ok := datafile.ExtractID(filepath.Base(n)); ok {
				datafiles = append(datafiles, n)
			}
		}
		if len(datafiles) > 1 {
			sort.Strings(datafiles)
			first := datafiles[0]
			id, _ := datafile.ExtractID(filepath.Base(first))
			c.datafilePath = filepath.Join(dirPath, first)
			c.datafileID = id
		}
	}

	return c, nil
}

// knownReleaseID returns the release id this candidate's datafile already
// carries, or "" if it has none yet.
func (c candidate) knownReleaseID() string {
	return c.datafileID
}
