// Package datafile implements the per-release sidecar TOML store: a
// ".rose.<uuid>.toml" file holding a release's stable identifier and its
// user-mutable flags (new, added_at). Unknown keys are preserved verbatim
// across a read-modify-write cycle.
package datafile

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// prefix/suffix of the sidecar filename: ".rose.<uuid>.toml".
const (
	filePrefix = ".rose."
	fileSuffix = ".toml"
)

// Datafile is the decoded sidecar content. Unknown carries any TOML keys
// this binary doesn't recognize, keyed by name, so they round-trip even
// when written by a newer/older version of this code.
type Datafile struct {
	New     bool      `toml:"new"`
	AddedAt time.Time `toml:"added_at"`

	Unknown map[string]interface{} `toml:"-"`
}

// FileName returns the sidecar filename for a release id.
func FileName(releaseID string) string {
	return filePrefix + releaseID + fileSuffix
}

// ExtractID returns the release id embedded in a sidecar filename, and
// whether name matches the ".rose.<id>.toml" shape at all.
func ExtractID(name string) (string, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	id := name[len(filePrefix) : len(name)-len(fileSuffix)]
	if id == "" {
		return "", false
	}
	return id, true
}

// FindInDir returns the datafile filename present in dir, if any. Per spec
// §4.2/§9 Open Questions, more than one datafile in a directory is
// undefined behavior; we warn (via the warn callback, which may be nil)
// and pick the lexicographically first.
func FindInDir(dir string, entries []string, warn func(string)) (name string, id string, ok bool) {
	var candidates []string
	for _, e := range entries {
		if _, isDatafile := ExtractID(e); isDatafile {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return "", "", false
	}
	sort.Strings(candidates)
	if len(candidates) > 1 && warn != nil {
		warn("multiple datafiles found in " + dir + "; using " + candidates[0])
	}
	id, _ = ExtractID(candidates[0])
	return candidates[0], id, true
}

// New returns the default content for a freshly created release: new=true,
// added_at=now.
func New() *Datafile {
	return &Datafile{New: true, AddedAt: time.Now().UTC()}
}

// Read decodes the datafile at path. A TOML parse failure is not treated as
// an I/O error: per spec §4.4 failure semantics ("a datafile with invalid
// TOML: treat as missing fields"), it returns defaults instead.
func Read(path string) (*Datafile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var generic map[string]interface{}
	if _, err := toml.Decode(string(raw), &generic); err != nil {
		return New(), nil
	}

	d := Datafile{Unknown: make(map[string]interface{})}
	if v, ok := generic["new"].(bool); ok {
		d.New = v
	} else {
		d.New = true
	}
	if v, ok := generic["added_at"].(time.Time); ok {
		d.AddedAt = v
	} else if v, ok := generic["added_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			d.AddedAt = t
		}
	}
	if d.AddedAt.IsZero() {
		d.AddedAt = time.Now().UTC()
	}
	for k, v := range generic {
		if k == "new" || k == "added_at" {
			continue
		}
		d.Unknown[k] = v
	}
	return &d, nil
}

// serialize renders d to its canonical TOML text, known fields first in a
// fixed order, followed by preserved unknown keys sorted by name so the
// output is deterministic.
func (d *Datafile) serialize() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	type known struct {
		New     bool      `toml:"new"`
		AddedAt time.Time `toml:"added_at"`
	}
	if err := enc.Encode(known{New: d.New, AddedAt: d.AddedAt}); err != nil {
		return nil, err
	}
	if len(d.Unknown) > 0 {
		names := make([]string, 0, len(d.Unknown))
		for k := range d.Unknown {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			if err := enc.Encode(map[string]interface{}{k: d.Unknown[k]}); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

// WriteIfChanged re-serializes d and writes it to path only if the result
// differs from what's currently on disk (or the file doesn't exist yet),
// matching spec §4.2/§4.4.3's "rewrite only if re-serialization diverges".
// Returns whether a write occurred.
func WriteIfChanged(path string, d *Datafile) (bool, error) {
	newText, err := d.serialize()
	if err != nil {
		return false, err
	}
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, newText) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, newText, 0o644); err != nil {
		return false, err
	}
	return true, nil
}
