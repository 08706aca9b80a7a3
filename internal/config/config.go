// Package config holds the immutable, process-wide configuration value
// that the cache updater, query layer, and rules orchestrator all take as
// an explicit parameter rather than reading from a global. Loading it from
// a file is outside this module's scope; callers construct a Config
// directly (see spec's Non-goals).
package config

import "strings"

// Config is the set of inputs the core subsystems need. It is built once by
// the caller and passed down; nothing in this module mutates it.
type Config struct {
	MusicSourceDir  string
	CacheDir        string
	MaxProc         int
	RenameSourceFiles bool
	MaxFilenameBytes  int

	CoverArtStems []string
	ValidArtExts  []string

	IgnoreReleaseDirectories []string

	// ArtistAliasesMap maps a canonical artist name to the aliases that
	// should resolve to it. The reverse (alias -> canonical) edges are
	// computed once and cached on the Config by Prepare.
	ArtistAliasesMap map[string][]string

	aliasReverse map[string][]string
}

// Prepare computes derived, cached fields (currently: the reverse alias
// edges, which CanonicalsOf walks). Call once after populating the public
// fields.
func (c *Config) Prepare() {
	c.aliasReverse = make(map[string][]string)
	for canonical, aliases := range c.ArtistAliasesMap {
		for _, alias := range aliases {
			c.aliasReverse[alias] = append(c.aliasReverse[alias], canonical)
		}
	}
}

// AliasesOf returns the aliases a canonical artist name expands to
// (transitive closure, cycle-safe: a name is visited at most once).
func (c *Config) AliasesOf(name string) []string {
	seen := map[string]bool{name: true}
	var out []string
	var walk func(string)
	walk = func(n string) {
		for _, alias := range c.ArtistAliasesMap[n] {
			if seen[alias] {
				continue
			}
			seen[alias] = true
			out = append(out, alias)
			walk(alias)
		}
	}
	walk(name)
	return out
}

// CanonicalsOf returns the canonical names an alias resolves to (transitive
// closure, cycle-safe: a name is visited at most once).
func (c *Config) CanonicalsOf(alias string) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, canonical := range c.aliasReverse[n] {
			if !seen[canonical] {
				out = append(out, canonical)
			}
			walk(canonical)
		}
	}
	walk(alias)
	return out
}

// IsValidCoverArtName reports whether filename (case-insensitive) matches a
// configured cover-art stem and extension.
func (c *Config) IsValidCoverArtName(filename string) bool {
	lower := strings.ToLower(filename)
	dot := strings.LastIndexByte(lower, '.')
	if dot < 0 {
		return false
	}
	stem, ext := lower[:dot], lower[dot+1:]
	stemOK, extOK := false, false
	for _, s := range c.CoverArtStems {
		if strings.ToLower(s) == stem {
			stemOK = true
			break
		}
	}
	for _, e := range c.ValidArtExts {
		if strings.ToLower(e) == ext {
			extOK = true
			break
		}
	}
	return stemOK && extOK
}

// IsIgnoredReleaseDirectory reports whether name is in the ignore list or is
// one of the two reserved top-level directories.
func (c *Config) IsIgnoredReleaseDirectory(name string) bool {
	if name == "!collages" || name == "!playlists" {
		return true
	}
	for _, ign := range c.IgnoreReleaseDirectories {
		if ign == name {
			return true
		}
	}
	return false
}
