// Package artist implements the artist-role mini-language: a single
// free-form tag string that encodes up to seven artist roles through
// positional markers, plus alias expansion over a user-supplied alias
// graph.
package artist

import (
	"regexp"
	"strings"
)

// Role identifies one of the seven artist roles a mapping tracks.
type Role int

const (
	Main Role = iota
	Guest
	Remixer
	Composer
	Conductor
	Producer
	DJMixer
	roleCount
)

// Artist is one name within a role's ordered sequence. Alias is true when
// the entry was synthesized by ExpandAliases rather than read from a tag;
// alias entries are never written back to disk.
type Artist struct {
	Name  string
	Alias bool
}

// Mapping holds the seven ordered, role-keyed artist sequences.
type Mapping struct {
	roles [roleCount][]Artist
}

// Artists returns the ordered sequence for role, without allocating when
// the role is empty.
func (m *Mapping) Artists(role Role) []Artist { return m.roles[role] }

// Add appends name to role's sequence unless already present (by Name).
func (m *Mapping) Add(role Role, name string, alias bool) {
	for _, a := range m.roles[role] {
		if a.Name == name {
			return
		}
	}
	m.roles[role] = append(m.roles[role], Artist{Name: name, Alias: alias})
}

// SetRole wholesale-replaces role's whole sequence (alias entries included)
// with non-alias entries for names, preserving
// every other role untouched. Used by the action DSL's multi-valued
// add/delete/replace behaviors, which operate on one role's name list at a
// time (internal/action treats trackartist/releaseartist as the mapping's
// Main-role names).
func (m *Mapping) SetRole(role Role, names []string) {
	out := make([]Artist, 0, len(names))
	for _, n := range names {
		out = append(out, Artist{Name: n})
	}
	m.roles[role] = out
}

// Empty reports whether every role sequence is empty.
func (m *Mapping) Empty() bool {
	for _, r := range m.roles {
		if len(r) > 0 {
			return false
		}
	}
	return true
}

var splitRe = regexp.MustCompile(` \\ | / |; ?| vs\. `)

func splitNames(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := splitRe.Split(s, -1)
	seen := map[string]bool{}
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

type marker struct {
	token string // including surrounding single spaces, e.g. " performed by "
	// apply splits residue at the first occurrence of token, assigns the
	// named side to role, and returns the side that continues to be the
	// main-line residue for subsequent markers.
	apply func(m *Mapping, left, right string) (residue string)
}

var markers = []marker{
	{" performed by ", func(m *Mapping, left, right string) string {
		for _, n := range splitNames(left) {
			m.Add(Composer, n, false)
		}
		return right
	}},
	{" pres. ", func(m *Mapping, left, right string) string {
		for _, n := range splitNames(left) {
			m.Add(DJMixer, n, false)
		}
		return right
	}},
	{" feat. ", func(m *Mapping, left, right string) string {
		for _, n := range splitNames(right) {
			m.Add(Guest, n, false)
		}
		return left
	}},
	{" remixed by ", func(m *Mapping, left, right string) string {
		for _, n := range splitNames(right) {
			m.Add(Remixer, n, false)
		}
		return left
	}},
	{" produced by ", func(m *Mapping, left, right string) string {
		for _, n := range splitNames(right) {
			m.Add(Producer, n, false)
		}
		return left
	}},
	{" under. ", func(m *Mapping, left, right string) string {
		for _, n := range splitNames(right) {
			m.Add(Conductor, n, false)
		}
		return left
	}},
}

// Parse extracts the seven roles from a single free-form artist string.
// Each marker in the fixed recognition order is applied at most once, at
// its first occurrence; after all markers are consumed, the remaining
// residue is split into the Main role.
func Parse(s string) *Mapping {
	m := &Mapping{}
	residue := s
	for _, mk := range markers {
		idx := strings.Index(residue, mk.token)
		if idx < 0 {
			continue
		}
		left := residue[:idx]
		right := residue[idx+len(mk.token):]
		residue = mk.apply(m, left, right)
	}
	for _, n := range splitNames(residue) {
		m.Add(Main, n, false)
	}
	return m
}

func joinArtists(artists []Artist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Alias {
			continue
		}
		names = append(names, a.Name)
	}
	return strings.Join(names, "; ")
}

// Format serializes the mapping back to the single free-form string, in
// the fixed canonical order: djmixer "pres." composer "performed by" main
// "under." conductor "feat." guest "remixed by" remixer "produced by"
// producer, omitting any role with no non-alias entries. Alias entries
// (from ExpandAliases) are never written out.
func (m *Mapping) Format() string {
	var b strings.Builder
	if s := joinArtists(m.roles[DJMixer]); s != "" {
		b.WriteString(s)
		b.WriteString(" pres. ")
	}
	if s := joinArtists(m.roles[Composer]); s != "" {
		b.WriteString(s)
		b.WriteString(" performed by ")
	}
	b.WriteString(joinArtists(m.roles[Main]))
	if s := joinArtists(m.roles[Conductor]); s != "" {
		b.WriteString(" under. ")
		b.WriteString(s)
	}
	if s := joinArtists(m.roles[Guest]); s != "" {
		b.WriteString(" feat. ")
		b.WriteString(s)
	}
	if s := joinArtists(m.roles[Remixer]); s != "" {
		b.WriteString(" remixed by ")
		b.WriteString(s)
	}
	if s := joinArtists(m.roles[Producer]); s != "" {
		b.WriteString(" produced by ")
		b.WriteString(s)
	}
	return b.String()
}

// AliasExpander resolves a canonical artist name to its configured
// aliases; internal/config.Config satisfies this.
type AliasExpander interface {
	AliasesOf(name string) []string
}

// ExpandAliases returns a copy of m with alias entries appended to every
// role, computed via the transitive closure of cfg's alias graph. Aliases
// are never persisted; this is a read-time view only (see Artist.Alias).
func (m *Mapping) ExpandAliases(cfg AliasExpander) *Mapping {
	out := &Mapping{}
	for role := Role(0); role < roleCount; role++ {
		for _, a := range m.roles[role] {
			out.Add(role, a.Name, false)
			for _, alias := range cfg.AliasesOf(a.Name) {
				out.Add(role, alias, true)
			}
		}
	}
	return out
}
