// Package action implements the action DSL and executor: a mutation
// applied to the tags/datafile fields a matcher selected, per spec §4.6.
package action

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.sunsetglow.net/rose/internal/artist"
	"go.sunsetglow.net/rose/internal/matcher"
	"go.sunsetglow.net/rose/internal/model"
	"go.sunsetglow.net/rose/internal/rosedate"
)

// Kind is one of the five mutation behaviors.
type Kind string

const (
	Replace Kind = "replace"
	Sed     Kind = "sed"
	Split   Kind = "split"
	Add     Kind = "add"
	Delete  Kind = "delete"
)

// modifiable excludes tracktotal/disctotal (spec §4.6); both are absent
// from matcher's real-tag set entirely (they're recomputed invariants, not
// free text — see internal/matcher's doc comment), so every real tag here
// is already modifiable.
func modifiable(t matcher.Tag) bool { return matcher.IsRealTag(t) }

// Action is a parsed "[TAG{,TAG}*[:PATTERN[:FLAGS]]/]KIND[:ARG[:ARG]]".
type Action struct {
	Tags    []matcher.Tag
	Pattern *matcher.Matcher // nil: no element-level filter, act on every value
	Kind    Kind
	Args    []string

	raw string
}

func (a *Action) Raw() string { return a.raw }

// ParseError mirrors matcher.ParseError's caret-pointer rendering.
type ParseError struct {
	Input   string
	Pos     int
	Message string
}

func (e *ParseError) Error() string {
	pad := strings.Repeat(" ", e.Pos)
	return fmt.Sprintf("%s\n%s^\n%s%s", e.Input, pad, pad, e.Message)
}

func findUnescapedSlash(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			if i+1 < len(s) && s[i+1] == '/' {
				i++
				continue
			}
			return i
		}
	}
	return -1
}

func splitUnescapedColon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			if i+1 < len(s) && s[i+1] == ':' {
				i++
				continue
			}
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	for i, part := range out {
		out[i] = strings.ReplaceAll(part, "::", ":")
	}
	return out
}

// Parse parses an action expression. inherited is the enclosing rule's
// matcher, consulted when the tag/pattern prefix (or the "matched"
// sentinel) is used; it may be nil if the action always names its own
// tags explicitly.
func Parse(input string, inherited *matcher.Matcher) (*Action, error) {
	var tags []matcher.Tag
	var pattern *matcher.Matcher
	kindPart := input

	if idx := findUnescapedSlash(input); idx >= 0 {
		prefix := input[:idx]
		kindPart = input[idx+1:]

		switch {
		case prefix == "matched":
			if inherited == nil {
				return nil, &ParseError{Input: input, Pos: 0, Message: `"matched" requires an enclosing rule matcher`}
			}
			tags = inherited.Tags
			pattern = inherited
		case strings.ContainsRune(prefix, ':'):
			m, err := matcher.Parse(prefix)
			if err != nil {
				return nil, err
			}
			tags = m.Tags
			pattern = m
		default:
			for _, name := range strings.Split(prefix, ",") {
				t := matcher.Tag(strings.TrimSpace(name))
				if !modifiable(t) {
					return nil, &ParseError{Input: input, Pos: 0, Message: fmt.Sprintf("unrecognized or unmodifiable tag %q", name)}
				}
				tags = append(tags, matcher.Expand(t)...)
			}
		}
	} else if inherited != nil {
		for _, t := range inherited.Tags {
			if modifiable(t) {
				tags = append(tags, t)
			}
		}
		pattern = inherited
	}

	parts := splitUnescapedColon(kindPart)
	kind := Kind(parts[0])
	args := parts[1:]

	switch kind {
	case Replace, Sed, Split, Add, Delete:
	default:
		return nil, &ParseError{Input: input, Pos: len(input) - len(kindPart), Message: fmt.Sprintf("unrecognized action kind %q", kind)}
	}

	if len(tags) == 0 {
		return nil, &ParseError{Input: input, Pos: 0, Message: "action has no target tags"}
	}

	for _, t := range tags {
		if !matcher.MultiValued[t] && (kind == Split || kind == Add) {
			return nil, &ParseError{Input: input, Pos: 0, Message: fmt.Sprintf("%s is single-valued: %s is not defined for it", t, kind)}
		}
	}

	if err := validateArgs(kind, args); err != nil {
		return nil, &ParseError{Input: input, Pos: len(input), Message: err.Error()}
	}

	return &Action{Tags: tags, Pattern: pattern, Kind: kind, Args: args, raw: input}, nil
}

func validateArgs(kind Kind, args []string) error {
	switch kind {
	case Replace:
		if len(args) != 1 {
			return errors.New("replace requires exactly one argument")
		}
	case Sed:
		if len(args) != 2 {
			return errors.New("sed requires SRC and DST arguments")
		}
		if _, err := regexp.Compile(args[0]); err != nil {
			return fmt.Errorf("invalid sed regex: %w", err)
		}
	case Split:
		if len(args) != 1 || args[0] == "" {
			return errors.New("split requires a non-empty delimiter argument")
		}
	case Add:
		if len(args) != 1 {
			return errors.New("add requires exactly one argument")
		}
	case Delete:
		if len(args) != 0 {
			return errors.New("delete takes no arguments")
		}
	}
	return nil
}

// Record is the accessor Apply mutates: an AudioTags value plus, when
// present, the owning release's datafile "new" flag (the one tag that
// doesn't live in the audio container at all — spec §4.7 bullet 6).
type Record struct {
	Tags *model.AudioTags
	New  *bool
}

// Apply runs the action against rec, returning whether anything changed.
func (a *Action) Apply(rec *Record) (bool, error) {
	changed := false
	for _, t := range a.Tags {
		c, err := a.applyTag(rec, t)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

func (a *Action) matchElement(v string) bool {
	if a.Pattern == nil {
		return true
	}
	return a.Pattern.Matches(v)
}

func (a *Action) applyTag(rec *Record, t matcher.Tag) (bool, error) {
	if t == matcher.New {
		return a.applyNew(rec)
	}
	if matcher.MultiValued[t] {
		return a.applyMulti(rec, t)
	}
	return a.applySingle(rec, t)
}

func (a *Action) applyNew(rec *Record) (bool, error) {
	if rec.New == nil {
		return false, nil
	}
	switch a.Kind {
	case Replace:
		v := a.Args[0]
		var nv bool
		switch v {
		case "true":
			nv = true
		case "false":
			nv = false
		default:
			return false, fmt.Errorf("new accepts only \"true\"/\"false\", got %q", v)
		}
		changed := *rec.New != nv
		*rec.New = nv
		return changed, nil
	case Delete:
		return false, errors.New("new cannot be deleted")
	default:
		return false, fmt.Errorf("%s is not defined for new", a.Kind)
	}
}

func getSingle(rec *Record, t matcher.Tag) (string, error) {
	tags := rec.Tags
	switch t {
	case matcher.TrackTitle:
		return tags.TrackTitle, nil
	case matcher.ReleaseTitle:
		return tags.ReleaseTitle, nil
	case matcher.TrackNumber:
		return tags.TrackNumber, nil
	case matcher.DiscNumber:
		return tags.DiscNumber, nil
	case matcher.ReleaseDate:
		return tags.ReleaseDate.Format(), nil
	case matcher.OriginalDate:
		return tags.OriginalDate.Format(), nil
	case matcher.CompositionDate:
		return tags.CompositionDate.Format(), nil
	case matcher.ReleaseType:
		return tags.ReleaseType, nil
	case matcher.CatalogNumber:
		return tags.CatalogNumber, nil
	case matcher.Edition:
		return tags.Edition, nil
	default:
		return "", fmt.Errorf("%s is not single-valued", t)
	}
}

func setSingle(rec *Record, t matcher.Tag, v string) error {
	tags := rec.Tags
	switch t {
	case matcher.ReleaseDate, matcher.OriginalDate, matcher.CompositionDate:
		var d rosedate.RoseDate
		if v != "" {
			d = rosedate.Parse(v)
			if !d.Valid {
				return fmt.Errorf("%q is not a valid date for %s", v, t)
			}
		}
		switch t {
		case matcher.ReleaseDate:
			tags.ReleaseDate = d
		case matcher.OriginalDate:
			tags.OriginalDate = d
		case matcher.CompositionDate:
			tags.CompositionDate = d
		}
	case matcher.ReleaseType:
		tags.ReleaseType = model.NormalizeReleaseType(v)
	case matcher.TrackTitle:
		tags.TrackTitle = v
	case matcher.ReleaseTitle:
		tags.ReleaseTitle = v
	case matcher.TrackNumber:
		tags.TrackNumber = v
	case matcher.DiscNumber:
		tags.DiscNumber = v
	case matcher.CatalogNumber:
		tags.CatalogNumber = v
	case matcher.Edition:
		tags.Edition = v
	default:
		return fmt.Errorf("%s is not single-valued", t)
	}
	return nil
}

func (a *Action) applySingle(rec *Record, t matcher.Tag) (bool, error) {
	cur, err := getSingle(rec, t)
	if err != nil {
		return false, err
	}
	if !a.matchElement(cur) {
		return false, nil
	}

	var next string
	switch a.Kind {
	case Replace:
		next = a.Args[0]
		if next == "" {
			return false, errors.New("replace of a single-valued tag rejects an empty value")
		}
	case Sed:
		re := regexp.MustCompile(a.Args[0])
		next = re.ReplaceAllString(cur, a.Args[1])
	case Delete:
		next = ""
	default:
		return false, fmt.Errorf("%s is not defined for single-valued tag %s", a.Kind, t)
	}
	if next == cur {
		return false, nil
	}
	if err := setSingle(rec, t, next); err != nil {
		return false, err
	}
	return true, nil
}

func getMulti(rec *Record, t matcher.Tag) []string {
	tags := rec.Tags
	switch t {
	case matcher.Genre:
		return tags.Genres
	case matcher.SecondaryGenre:
		return tags.SecondaryGenres
	case matcher.Descriptor:
		return tags.Descriptors
	case matcher.Label:
		return tags.Labels
	case matcher.TrackArtist:
		return mainNames(tags.TrackArtists)
	case matcher.ReleaseArtist:
		return mainNames(tags.ReleaseArtists)
	}
	return nil
}

// mainNames/setMainNames treat trackartist/releaseartist as the mapping's
// Main-role name list: the bulk of real-world artist tags carry a single
// "main" credit, and the free-form string's other roles (feat., remixed
// by, ...) are left untouched by multi-valued mutation — a deliberate
// scope simplification.
func mainNames(m *artist.Mapping) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, a := range m.Artists(artist.Main) {
		if !a.Alias {
			out = append(out, a.Name)
		}
	}
	return out
}

func setMainNames(m *artist.Mapping, names []string) {
	if m == nil {
		return
	}
	m.SetRole(artist.Main, names)
}

func setMulti(rec *Record, t matcher.Tag, values []string) {
	tags := rec.Tags
	switch t {
	case matcher.Genre:
		tags.Genres = values
	case matcher.SecondaryGenre:
		tags.SecondaryGenres = values
	case matcher.Descriptor:
		tags.Descriptors = values
	case matcher.Label:
		tags.Labels = values
	case matcher.TrackArtist:
		setMainNames(tags.TrackArtists, values)
	case matcher.ReleaseArtist:
		setMainNames(tags.ReleaseArtists, values)
	}
}

func dedup(ss []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// applyMulti implements the per-kind multi-valued behaviors of spec
// §4.6's table, operating only on list elements a.matchElement selects
// (or every element, when the action carries no element-level pattern).
func (a *Action) applyMulti(rec *Record, t matcher.Tag) (bool, error) {
	cur := getMulti(rec, t)
	var next []string

	switch a.Kind {
	case Replace:
		replacement := strings.Split(a.Args[0], ";")
		for _, v := range cur {
			if a.matchElement(v) {
				next = append(next, replacement...)
			} else {
				next = append(next, v)
			}
		}
		next = dedup(next)
	case Sed:
		re := regexp.MustCompile(a.Args[0])
		for _, v := range cur {
			if !a.matchElement(v) {
				next = append(next, v)
				continue
			}
			substituted := re.ReplaceAllString(v, a.Args[1])
			next = append(next, strings.Split(substituted, ";")...)
		}
		next = dedup(next)
	case Split:
		for _, v := range cur {
			if !a.matchElement(v) {
				next = append(next, v)
				continue
			}
			next = append(next, strings.Split(v, a.Args[0])...)
		}
		next = dedup(next)
	case Add:
		next = append(append([]string(nil), cur...))
		if !contains(next, a.Args[0]) {
			next = append(next, a.Args[0])
		}
	case Delete:
		for _, v := range cur {
			if !a.matchElement(v) {
				next = append(next, v)
			}
		}
	}

	if sameSlice(cur, next) {
		return false, nil
	}
	setMulti(rec, t, next)
	return true, nil
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func sameSlice(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
