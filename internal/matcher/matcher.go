// Package matcher implements the matcher DSL: a small grammar for selecting
// tracks/releases by tag pattern, "TAG{,TAG}*:PATTERN[:FLAGS]" (spec §4.5).
// Its closed tag vocabulary mirrors internal/cache's rules_engine_fts
// columns one-for-one, since every matcher is eventually compiled into an
// FTS5 NEAR(...) query by internal/rules.
package matcher

import (
	"fmt"
	"strings"
)

// Tag is one of the closed set of semantic fields a matcher/action can
// name, plus the "artist" expansion (resolved by Expand, never itself a
// real field).
type Tag string

const (
	TrackTitle      Tag = "tracktitle"
	ReleaseTitle    Tag = "releasetitle"
	TrackNumber     Tag = "tracknumber"
	DiscNumber      Tag = "discnumber"
	ReleaseDate     Tag = "releasedate"
	OriginalDate    Tag = "originaldate"
	CompositionDate Tag = "compositiondate"
	ReleaseType     Tag = "releasetype"
	CatalogNumber   Tag = "catalognumber"
	Edition         Tag = "edition"
	Genre           Tag = "genre"
	SecondaryGenre  Tag = "secondarygenre"
	Descriptor      Tag = "descriptor"
	Label           Tag = "label"
	TrackArtist     Tag = "trackartist"
	ReleaseArtist   Tag = "releaseartist"
	New             Tag = "new"

	// Artist is a pure expansion: "search/act on both trackartist and
	// releaseartist". It is never a column and never appears in a resolved
	// Matcher's Tags.
	Artist Tag = "artist"
)

// realTags is every concrete, FTS-backed column a matcher can ultimately
// resolve to.
var realTags = map[Tag]bool{
	TrackTitle: true, ReleaseTitle: true, TrackNumber: true, DiscNumber: true,
	ReleaseDate: true, OriginalDate: true, CompositionDate: true, ReleaseType: true,
	CatalogNumber: true, Edition: true, Genre: true, SecondaryGenre: true,
	Descriptor: true, Label: true, TrackArtist: true, ReleaseArtist: true, New: true,
}

// MultiValued is the subset of real tags backed by an ordered list rather
// than a single scalar string; the action DSL's split/add behaviors are
// only defined for these (spec §4.6).
var MultiValued = map[Tag]bool{
	Genre: true, SecondaryGenre: true, Descriptor: true, Label: true,
	TrackArtist: true, ReleaseArtist: true,
}

// IsRealTag reports whether t is a real, modifiable tag. It excludes the
// two derived, non-writable totals (tracktotal,
// disctotal never appear as real tags at all here, since they aren't FTS
// columns either — recomputed invariants, not free text, per spec §3).
// Every real tag is modifiable; "new" lives in the datafile rather than the
// tag container, which internal/action's executor accounts for separately.
func IsRealTag(t Tag) bool { return realTags[t] }

// Expand resolves a tag as it appears in source text (which may be "artist"
// or one of the three multi-tag expansions already covered by a single real
// column) into the concrete tags a matcher/action actually operates over.
func Expand(t Tag) []Tag {
	if t == Artist {
		return []Tag{TrackArtist, ReleaseArtist}
	}
	return []Tag{t}
}

// FTSColumn returns the rules_engine_fts column name for t, and whether t
// is a queryable real tag at all.
func FTSColumn(t Tag) (string, bool) {
	if !realTags[t] {
		return "", false
	}
	return string(t), true
}

// ParseError is returned by Parse on malformed input. Error renders a
// caret-pointer diagnostic: the offending line, then a line of spaces with
// a '^' under the failing column, then the message — the same shape
// original_source's RuleSyntaxError renders, which spec §4.5's "pointer to
// the offending column" calls for but the teacher has no precedent for.
type ParseError struct {
	Input   string
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	pad := strings.Repeat(" ", e.Pos)
	return fmt.Sprintf("%s\n%s^\n%s%s", e.Input, pad, pad, e.Message)
}

// Matcher is a parsed "TAG{,TAG}*:PATTERN[:FLAGS]" selector.
type Matcher struct {
	Tags            []Tag
	Pattern         string // literal, unescaped, anchors stripped
	AnchorStart     bool
	AnchorEnd       bool
	CaseInsensitive bool

	raw string // original input, kept for re-rendering in action inheritance
}

// Raw returns the exact source text Parse was given.
func (m *Matcher) Raw() string { return m.raw }

func findUnescaped(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			if i+1 < len(s) && s[i+1] == b {
				i++
				continue
			}
			return i
		}
	}
	return -1
}

// Parse parses a matcher expression per spec §4.5.
func Parse(input string) (*Matcher, error) {
	idx := strings.IndexByte(input, ':')
	if idx < 0 {
		return nil, &ParseError{Input: input, Pos: len(input), Message: "expected ':' separating tags from pattern"}
	}
	tagsPart := input[:idx]
	rest := input[idx+1:]

	var tags []Tag
	pos := 0
	for _, name := range strings.Split(tagsPart, ",") {
		trimmed := strings.TrimSpace(name)
		t := Tag(trimmed)
		if trimmed == "" || (!realTags[t] && t != Artist) {
			return nil, &ParseError{Input: input, Pos: pos, Message: fmt.Sprintf("unrecognized tag %q", trimmed)}
		}
		tags = append(tags, Expand(t)...)
		pos += len(name) + 1
	}

	patIdx := findUnescaped(rest, ':')
	var patternRaw, flagsRaw string
	if patIdx < 0 {
		patternRaw = rest
	} else {
		patternRaw = rest[:patIdx]
		flagsRaw = rest[patIdx+1:]
	}

	m := &Matcher{Tags: dedupTags(tags), raw: input}

	body := patternRaw
	if strings.HasPrefix(body, `\^`) {
		body = "^" + body[2:]
	} else if strings.HasPrefix(body, "^") {
		m.AnchorStart = true
		body = body[1:]
	}
	if strings.HasSuffix(body, `\$`) {
		body = body[:len(body)-2] + "$"
	} else if strings.HasSuffix(body, "$") {
		m.AnchorEnd = true
		body = body[:len(body)-1]
	}
	body = strings.ReplaceAll(body, "::", ":")
	body = strings.ReplaceAll(body, "//", "/")
	m.Pattern = body

	switch flagsRaw {
	case "":
	case "i":
		m.CaseInsensitive = true
	default:
		return nil, &ParseError{Input: input, Pos: idx + 1 + patIdx + 1, Message: fmt.Sprintf("unrecognized flag %q", flagsRaw)}
	}

	return m, nil
}

func dedupTags(tags []Tag) []Tag {
	seen := map[Tag]bool{}
	var out []Tag
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Matches reports whether value satisfies m's pattern under its anchors and
// case sensitivity, per spec §4.5: "needle-contains | starts-with |
// ends-with | equals per anchor combination".
func (m *Matcher) Matches(value string) bool {
	v, p := value, m.Pattern
	if m.CaseInsensitive {
		v = strings.ToLower(v)
		p = strings.ToLower(p)
	}
	switch {
	case m.AnchorStart && m.AnchorEnd:
		return v == p
	case m.AnchorStart:
		return strings.HasPrefix(v, p)
	case m.AnchorEnd:
		return strings.HasSuffix(v, p)
	default:
		return strings.Contains(v, p)
	}
}
