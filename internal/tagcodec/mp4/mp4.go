// Package mp4 implements the tagcodec.Codec for MP4/M4A iTunes-style atom
// tags, including the freeform "----" atom convention used for
// Rose-specific and industry-standard fields that have no dedicated atom.
// Grounded on the atom-walking approach of dhowden/tag's mp4 reader; write
// support (atom tree rebuild + stco/co64 offset patching) has no pack
// equivalent and is hand-written.
package mp4

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"go.sunsetglow.net/rose/internal/artist"
	"go.sunsetglow.net/rose/internal/model"
	"go.sunsetglow.net/rose/internal/rosedate"
	"go.sunsetglow.net/rose/internal/tagcodec"
)

func init() {
	tagcodec.Register(&Codec{}, "m4a")
}

// Codec implements tagcodec.Codec for MP4 freeform/iTunes atoms.
type Codec struct{}

const (
	meanRose    = "net.sunsetglow.rose"
	meanITunes  = "com.apple.iTunes"
)

// freeform field names, by mean namespace.
var (
	roseFields = []string{"ROSEID", "ROSERELEASEID", "COMPOSITIONDATE", "SECONDARYGENRE", "DESCRIPTOR"}
	itunFields = []string{"PRODUCER", "CONDUCTOR", "DJMIXER", "REMIXER", "LABEL", "CATALOGNUMBER", "RELEASETYPE", "EDITION"}
)

// atom is one node of the parsed MP4 box tree. Leaf atoms carry raw payload
// bytes (the box body, after the 8-byte size+name header); container atoms
// (moov, udta, meta, ilst and any box whose name is one of those) carry
// Children instead.
type atom struct {
	Name     string
	Payload  []byte
	Children []*atom
	// Offset/Size describe the position of this atom's *header* in the
	// original file, used by Write to splice in the new ilst, patch box
	// sizes, and patch stco/co64 chunk offsets.
	Offset int64
	Size   int64
}

var containerNames = map[string]bool{
	"moov": true, "trak": true, "mdia": true, "minf": true, "stbl": true,
	"udta": true, "ilst": true,
}

func parseAtoms(r io.ReadSeeker, limit int64) ([]*atom, error) {
	var atoms []*atom
	var consumed int64
	for limit < 0 || consumed < limit {
		start, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}
		var sizeBuf [8]byte
		n, err := io.ReadFull(r, sizeBuf[:])
		if err == io.EOF || n == 0 {
			break
		}
		if err != nil {
			return nil, err
		}
		size := int64(binary.BigEndian.Uint32(sizeBuf[:4]))
		name := string(sizeBuf[4:8])
		bodySize := size - 8
		if size == 1 {
			var ext [8]byte
			if _, err := io.ReadFull(r, ext[:]); err != nil {
				return nil, err
			}
			bodySize = int64(binary.BigEndian.Uint64(ext[:])) - 16
		}
		if bodySize < 0 {
			return nil, errors.New("mp4: invalid atom size")
		}

		a := &atom{Name: name, Offset: start, Size: size}

		if name == "meta" {
			// meta has a 4-byte version/flags prefix before its children.
			if _, err := io.CopyN(io.Discard, r, 4); err != nil {
				return nil, err
			}
			children, err := parseAtoms(r, bodySize-4)
			if err != nil {
				return nil, err
			}
			a.Children = children
		} else if containerNames[name] {
			children, err := parseAtoms(r, bodySize)
			if err != nil {
				return nil, err
			}
			a.Children = children
		} else {
			buf := make([]byte, bodySize)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			a.Payload = buf
		}
		atoms = append(atoms, a)
		consumed += size
	}
	return atoms, nil
}

func find(atoms []*atom, name string) *atom {
	for _, a := range atoms {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func findPath(atoms []*atom, path ...string) *atom {
	cur := atoms
	var last *atom
	for _, p := range path {
		last = find(cur, p)
		if last == nil {
			return nil
		}
		cur = last.Children
	}
	return last
}

// customValue parses a "----" atom's children into (mean, name, value).
func customValue(a *atom) (mean, name, value string, ok bool) {
	var mean_, name_ string
	var data []byte
	for _, c := range a.Children {
		switch c.Name {
		case "mean":
			if len(c.Payload) > 4 {
				mean_ = string(c.Payload[4:])
			}
		case "name":
			if len(c.Payload) > 4 {
				name_ = string(c.Payload[4:])
			}
		case "data":
			if len(c.Payload) > 8 {
				data = c.Payload[8:]
			}
		}
	}
	if mean_ == "" || name_ == "" {
		return "", "", "", false
	}
	return mean_, name_, string(data), true
}

func textPayload(a *atom) string {
	if a == nil || len(a.Payload) <= 8 {
		return ""
	}
	return string(a.Payload[8:])
}

func trknPayload(a *atom) (num, total int) {
	if a == nil || len(a.Payload) < 8+6 {
		return 0, 0
	}
	b := a.Payload[8:]
	if len(b) < 6 {
		return 0, 0
	}
	return int(b[3]), int(b[5])
}

func (Codec) Read(path string) (*model.AudioTags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	top, err := parseAtoms(f, -1)
	if err != nil {
		return nil, tagcodec.ErrCorruptFile
	}
	ilst := findPath(top, "moov", "udta", "meta", "ilst")
	if ilst == nil {
		return nil, tagcodec.ErrCorruptFile
	}

	t := model.NewAudioTags()
	custom := map[string]string{}
	for _, c := range ilst.Children {
		if c.Name == "----" {
			if _, name, value, ok := customValue(c); ok {
				custom[strings.ToUpper(name)] = value
			}
			continue
		}
		switch c.Name {
		case "\xa9nam":
			t.TrackTitle = textPayload(c)
		case "\xa9alb":
			t.ReleaseTitle = textPayload(c)
		case "\xa9ART":
			t.TrackArtists = artist.Parse(textPayload(c))
		case "aART":
			t.ReleaseArtists = artist.Parse(textPayload(c))
		case "\xa9day":
			t.ReleaseDate = rosedate.Parse(textPayload(c))
		case "\xa9gen":
			genre := textPayload(c)
			if i := strings.Index(genre, `\PARENTS:\`); i >= 0 {
				genre = genre[:i]
			}
			if genre != "" {
				t.Genres = strings.Split(genre, ";")
			}
		case "trkn":
			num, total := trknPayload(c)
			if num > 0 {
				t.TrackNumber = strconv.Itoa(num)
			}
			t.TrackTotal = total
		case "disk":
			num, total := trknPayload(c)
			if num > 0 {
				t.DiscNumber = strconv.Itoa(num)
			}
			t.DiscTotal = total
		}
	}
	if t.TrackArtists == nil {
		t.TrackArtists = &artist.Mapping{}
	}
	if t.ReleaseArtists == nil {
		t.ReleaseArtists = &artist.Mapping{}
	}

	t.TrackID = custom["ROSEID"]
	t.ReleaseID = custom["ROSERELEASEID"]
	t.CompositionDate = rosedate.Parse(custom["COMPOSITIONDATE"])
	if sg := custom["SECONDARYGENRE"]; sg != "" {
		t.SecondaryGenres = strings.Split(sg, ";")
	}
	if d := custom["DESCRIPTOR"]; d != "" {
		t.Descriptors = strings.Split(d, ";")
	}
	if l := custom["LABEL"]; l != "" {
		t.Labels = strings.Split(l, ";")
	}
	t.CatalogNumber = custom["CATALOGNUMBER"]
	t.Edition = custom["EDITION"]
	t.ReleaseType = model.NormalizeReleaseType(custom["RELEASETYPE"])
	for _, role := range []struct {
		key  string
		role artist.Role
	}{
		{"PRODUCER", artist.Producer}, {"CONDUCTOR", artist.Conductor},
		{"DJMIXER", artist.DJMixer}, {"REMIXER", artist.Remixer},
	} {
		if v := custom[role.key]; v != "" {
			for _, n := range strings.Split(v, ";") {
				t.TrackArtists.Add(role.role, strings.TrimSpace(n), false)
			}
		}
	}

	return t, nil
}

func encodeBox(name string, body []byte) []byte {
	var buf bytes.Buffer
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(body)+8))
	buf.Write(size[:])
	buf.WriteString(name)
	buf.Write(body)
	return buf.Bytes()
}

func textAtom(name, value string) []byte {
	if value == "" {
		return nil
	}
	var data bytes.Buffer
	data.Write([]byte{0, 0, 0, 1}) // version+flags, class=1 (UTF-8)
	data.Write([]byte{0, 0, 0, 0}) // reserved
	data.WriteString(value)
	return encodeBox(name, encodeBox("data", data.Bytes()))
}

func trknAtom(name string, num, total int) []byte {
	if num == 0 && total == 0 {
		return nil
	}
	var data bytes.Buffer
	data.Write([]byte{0, 0, 0, 0}) // version+flags, class=implicit
	data.Write([]byte{0, 0, 0, 0}) // reserved
	data.Write([]byte{0, 0})
	var n, tl [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(num))
	binary.BigEndian.PutUint16(tl[:], uint16(total))
	data.Write(n[:])
	data.Write(tl[:])
	data.Write([]byte{0, 0})
	return encodeBox(name, encodeBox("data", data.Bytes()))
}

func customAtom(mean, name, value string) []byte {
	if value == "" {
		return nil
	}
	meanBody := append([]byte{0, 0, 0, 0}, []byte(mean)...)
	nameBody := append([]byte{0, 0, 0, 0}, []byte(name)...)
	dataBody := append([]byte{0, 0, 0, 1, 0, 0, 0, 0}, []byte(value)...)
	body := append(encodeBox("mean", meanBody), encodeBox("name", nameBody)...)
	body = append(body, encodeBox("data", dataBody)...)
	return encodeBox("----", body)
}

func buildIlst(tags *model.AudioTags) []byte {
	var entries [][]byte
	add := func(b []byte) {
		if b != nil {
			entries = append(entries, b)
		}
	}
	add(textAtom("\xa9nam", tags.TrackTitle))
	add(textAtom("\xa9alb", tags.ReleaseTitle))
	add(textAtom("\xa9ART", tags.TrackArtists.Format()))
	add(textAtom("aART", tags.ReleaseArtists.Format()))
	add(textAtom("\xa9day", tags.ReleaseDate.Format()))
	add(textAtom("\xa9gen", strings.Join(tags.Genres, ";")))
	add(trknAtom("trkn", atoiOr0(tags.TrackNumber), tags.TrackTotal))
	add(trknAtom("disk", atoiOr0(tags.DiscNumber), tags.DiscTotal))

	add(customAtom(meanRose, "ROSEID", tags.TrackID))
	add(customAtom(meanRose, "ROSERELEASEID", tags.ReleaseID))
	add(customAtom(meanRose, "COMPOSITIONDATE", tags.CompositionDate.Format()))
	add(customAtom(meanRose, "SECONDARYGENRE", strings.Join(tags.SecondaryGenres, ";")))
	add(customAtom(meanRose, "DESCRIPTOR", strings.Join(tags.Descriptors, ";")))
	add(customAtom(meanITunes, "LABEL", strings.Join(tags.Labels, ";")))
	add(customAtom(meanITunes, "CATALOGNUMBER", tags.CatalogNumber))
	add(customAtom(meanITunes, "EDITION", tags.Edition))
	add(customAtom(meanITunes, "RELEASETYPE", tags.ReleaseType))

	for _, r := range []struct {
		key  string
		role artist.Role
	}{
		{"PRODUCER", artist.Producer}, {"CONDUCTOR", artist.Conductor},
		{"DJMIXER", artist.DJMixer}, {"REMIXER", artist.Remixer},
	} {
		names := tags.TrackArtists.Artists(r.role)
		if len(names) == 0 {
			continue
		}
		ss := make([]string, len(names))
		for i, a := range names {
			ss[i] = a.Name
		}
		add(customAtom(meanITunes, r.key, strings.Join(ss, ";")))
	}

	var body bytes.Buffer
	for _, e := range entries {
		body.Write(e)
	}
	return encodeBox("ilst", body.Bytes())
}

func atoiOr0(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Write rebuilds the ilst atom from tags and splices it into the file in
// place of the existing one, then patches every stco/co64 chunk-offset
// table found within moov by the byte delta the new ilst introduces (the
// standard technique for atom-preserving MP4 metadata edits: mdat itself
// is never touched, only the offsets pointing into it).
func (Codec) Write(path string, tags *model.AudioTags) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	top, err := parseAtoms(bytes.NewReader(data), -1)
	if err != nil {
		return err
	}
	meta := findPath(top, "moov", "udta", "meta")
	if meta == nil {
		return tagcodec.ErrCorruptFile
	}
	oldIlst := find(meta.Children, "ilst")
	if oldIlst == nil {
		return tagcodec.ErrCorruptFile
	}
	newIlst := buildIlst(tags)

	oldStart := oldIlst.Offset
	oldEnd := oldIlst.Offset + oldIlst.Size
	delta := int64(len(newIlst)) - oldIlst.Size

	var out bytes.Buffer
	out.Write(data[:oldStart])
	out.Write(newIlst)
	out.Write(data[oldEnd:])
	patched := out.Bytes()

	if delta != 0 {
		moov := find(top, "moov")
		patchChunkOffsets(patched, moov, oldStart, delta)
		patchBoxSize(patched, moov.Offset, moov.Size+delta)
		patchBoxSize(patched, meta.Offset, meta.Size+delta)
		ilstParent := find(meta.Children, "ilst")
		_ = ilstParent
	}

	return os.WriteFile(path, patched, 0o644)
}

func patchBoxSize(data []byte, offset, newSize int64) {
	if offset < 0 || offset+4 > int64(len(data)) {
		return
	}
	binary.BigEndian.PutUint32(data[offset:offset+4], uint32(newSize))
}

// patchChunkOffsets walks moov's subtree for stco/co64 boxes and adds delta
// to every offset entry greater than the splice point, so chunk pointers
// into the (unmoved) mdat stay correct after ilst's size changed.
func patchChunkOffsets(data []byte, moov *atom, splice, delta int64) {
	var walk func(*atom)
	walk = func(a *atom) {
		switch a.Name {
		case "stco":
			patchStco(data, a, splice, delta)
		case "co64":
			patchCo64(data, a, splice, delta)
		}
		for _, c := range a.Children {
			walk(c)
		}
	}
	if moov != nil {
		walk(moov)
	}
}

func patchStco(data []byte, a *atom, splice, delta int64) {
	bodyOffset := a.Offset + 8
	if bodyOffset+8 > int64(len(data)) {
		return
	}
	count := binary.BigEndian.Uint32(data[bodyOffset+4 : bodyOffset+8])
	base := bodyOffset + 8
	for i := uint32(0); i < count; i++ {
		pos := base + int64(i)*4
		if pos+4 > int64(len(data)) {
			return
		}
		off := binary.BigEndian.Uint32(data[pos : pos+4])
		if int64(off) > splice {
			binary.BigEndian.PutUint32(data[pos:pos+4], uint32(int64(off)+delta))
		}
	}
}

func patchCo64(data []byte, a *atom, splice, delta int64) {
	bodyOffset := a.Offset + 8
	if bodyOffset+8 > int64(len(data)) {
		return
	}
	count := binary.BigEndian.Uint32(data[bodyOffset+4 : bodyOffset+8])
	base := bodyOffset + 8
	for i := uint32(0); i < count; i++ {
		pos := base + int64(i)*8
		if pos+8 > int64(len(data)) {
			return
		}
		off := binary.BigEndian.Uint64(data[pos : pos+8])
		if int64(off) > splice {
			binary.BigEndian.PutUint64(data[pos:pos+8], uint64(int64(off)+delta))
		}
	}
}
