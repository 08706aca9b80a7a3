// Package id3 implements the tagcodec.Codec for MP3/ID3v2 files. Reads use
// github.com/tmthrgd/id3v2's frame scanner; writes are hand-built from the
// same frame-header layout, since that library only supports reading.
package id3

import (
	"bytes"
	"encoding/binary"
	"os"
	"strconv"
	"strings"

	"github.com/tmthrgd/id3v2"

	"go.sunsetglow.net/rose/internal/artist"
	"go.sunsetglow.net/rose/internal/model"
	"go.sunsetglow.net/rose/internal/rosedate"
	"go.sunsetglow.net/rose/internal/tagcodec"
)

func init() {
	tagcodec.Register(&Codec{}, "mp3")
}

// Codec implements tagcodec.Codec for ID3v2.3/2.4 tag blocks.
type Codec struct{}

func fid(s string) id3v2.FrameID {
	var b [4]byte
	copy(b[:], s)
	return id3v2.FrameID(binary.BigEndian.Uint32(b[:]))
}

// standard frame ids used by the fixed field mapping (spec §4.1).
var (
	fTIT2 = fid("TIT2") // track title
	fTALB = fid("TALB") // release title
	fTPE1 = fid("TPE1") // track artist (free-form, role mini-language)
	fTPE2 = fid("TPE2") // release/album artist
	fTRCK = fid("TRCK") // tracknumber[/tracktotal]
	fTPOS = fid("TPOS") // discnumber[/disctotal]
	fTCON = fid("TCON") // genre (primary;secondary blended on read, split on ';')
	fTYER = fid("TYER") // legacy year
	fTDAT = fid("TDAT") // legacy DDMM
	fTDRC = fid("TDRC") // ID3v2.4 full date
	fTPE4 = fid("TPE4") // remixer
	fTIPL = fid("TIPL") // involved people list
	fTXXX = fid("TXXX") // user text frame, "NAME\x00value"
)

const (
	txxxTrackID       = "ROSEID"
	txxxReleaseID     = "ROSERELEASEID"
	txxxCompDate      = "COMPOSITIONDATE"
	txxxSecondaryGenre = "SECONDARYGENRE"
	txxxDescriptor    = "DESCRIPTOR"
	txxxCatalogNumber = "CATALOGNUMBER"
	txxxEdition       = "EDITION"
	txxxReleaseType   = "RELEASETYPE"
)

func splitTXXX(s string) (name, value string, ok bool) {
	i := strings.IndexByte(s, 0)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func lookupTXXX(frames id3v2.Frames, name string) string {
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].ID != fTXXX {
			continue
		}
		text, err := frames[i].Text()
		if err != nil {
			continue
		}
		if n, v, ok := splitTXXX(text); ok && n == name {
			return v
		}
	}
	return ""
}

func text(frames id3v2.Frames, id id3v2.FrameID) string {
	f := frames.Lookup(id)
	if f == nil {
		return ""
	}
	s, err := f.Text()
	if err != nil {
		return ""
	}
	return s
}

func splitSlash(s string) (first, second string) {
	i := strings.IndexByte(s, '/')
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

func atoiOr0(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

// Read implements tagcodec.Codec.
func (Codec) Read(path string) (*model.AudioTags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	frames, err := id3v2.Scan(f)
	if err != nil {
		return nil, tagcodec.ErrCorruptFile
	}
	if frames.Lookup(fTIT2) == nil && frames.Lookup(fTALB) == nil && len(frames) == 0 {
		return nil, tagcodec.ErrCorruptFile
	}

	t := model.NewAudioTags()
	t.TrackID = lookupTXXX(frames, txxxTrackID)
	t.ReleaseID = lookupTXXX(frames, txxxReleaseID)

	t.TrackTitle = text(frames, fTIT2)
	t.ReleaseTitle = text(frames, fTALB)

	t.TrackNumber, _ = splitSlash(text(frames, fTRCK))
	trackTotalStr := func() string { _, s := splitSlash(text(frames, fTRCK)); return s }()
	t.TrackTotal = atoiOr0(trackTotalStr)

	t.DiscNumber, _ = splitSlash(text(frames, fTPOS))
	discTotalStr := func() string { _, s := splitSlash(text(frames, fTPOS)); return s }()
	t.DiscTotal = atoiOr0(discTotalStr)

	genreField := text(frames, fTCON)
	if i := strings.Index(genreField, `\PARENTS:\`); i >= 0 {
		genreField = genreField[:i]
	}
	if genreField != "" {
		t.Genres = strings.Split(genreField, ";")
	}
	if sg := lookupTXXX(frames, txxxSecondaryGenre); sg != "" {
		t.SecondaryGenres = strings.Split(sg, ";")
	}
	if d := lookupTXXX(frames, txxxDescriptor); d != "" {
		t.Descriptors = strings.Split(d, ";")
	}
	t.CatalogNumber = lookupTXXX(frames, txxxCatalogNumber)
	t.Edition = lookupTXXX(frames, txxxEdition)
	t.ReleaseType = model.NormalizeReleaseType(lookupTXXX(frames, txxxReleaseType))

	t.ReleaseDate = rosedate.Parse(text(frames, fTDRC))
	if !t.ReleaseDate.Valid {
		t.ReleaseDate = rosedate.Parse(text(frames, fTYER))
	}
	t.CompositionDate = rosedate.Parse(lookupTXXX(frames, txxxCompDate))

	t.TrackArtists = artist.Parse(text(frames, fTPE1))
	t.ReleaseArtists = artist.Parse(text(frames, fTPE2))
	if remixer := text(frames, fTPE4); remixer != "" {
		for _, n := range strings.Split(remixer, ";") {
			t.TrackArtists.Add(artist.Remixer, strings.TrimSpace(n), false)
		}
	}

	return t, nil
}

// frameBuilder accumulates frames into an ID3v2.4 tag block.
type frameBuilder struct{ buf bytes.Buffer }

func (b *frameBuilder) writeFrame(id string, payload []byte) {
	var header [10]byte
	copy(header[0:4], id)
	syncsafePut(header[4:8], uint32(len(payload)+1))
	b.buf.Write(header[:])
	b.buf.WriteByte(0x03) // UTF-8 encoding byte
	b.buf.Write(payload)
}

func (b *frameBuilder) text(id, value string) {
	if value == "" {
		return
	}
	b.writeFrame(id, []byte(value))
}

func (b *frameBuilder) txxx(name, value string) {
	if value == "" {
		return
	}
	payload := append([]byte(name), 0)
	payload = append(payload, []byte(value)...)
	// txxx frames carry the encoding byte + description + value; writeFrame
	// already prefixes the encoding byte, so pass description+value as-is.
	b.writeFrameRaw("TXXX", payload)
}

func (b *frameBuilder) writeFrameRaw(id string, descAndValue []byte) {
	var header [10]byte
	copy(header[0:4], id)
	syncsafePut(header[4:8], uint32(len(descAndValue)+1))
	b.buf.Write(header[:])
	b.buf.WriteByte(0x03)
	b.buf.Write(descAndValue)
}

func syncsafePut(dst []byte, v uint32) {
	dst[0] = byte((v >> 21) & 0x7f)
	dst[1] = byte((v >> 14) & 0x7f)
	dst[2] = byte((v >> 7) & 0x7f)
	dst[3] = byte(v & 0x7f)
}

// stripExistingTag returns data with any leading ID3v2 tag block removed,
// by re-scanning and measuring what Scan consumed.
func stripExistingTag(data []byte) []byte {
	frames, err := id3v2.Scan(bytes.NewReader(data))
	if err != nil || len(frames) == 0 {
		if bytes.HasPrefix(data, []byte("ID3")) && len(data) >= 10 {
			size := syncsafeGet(data[6:10])
			if size != ^uint32(0) && len(data) >= int(10+size) {
				return data[10+size:]
			}
		}
		return data
	}
	// No direct accessor for consumed length is exposed by the reader, so
	// fall back to manual header inspection, which is authoritative anyway.
	if bytes.HasPrefix(data, []byte("ID3")) && len(data) >= 10 {
		size := syncsafeGet(data[6:10])
		if size != ^uint32(0) && len(data) >= int(10+size) {
			return data[10+size:]
		}
	}
	return data
}

func syncsafeGet(data []byte) uint32 {
	if data[0]&0x80 != 0 || data[1]&0x80 != 0 || data[2]&0x80 != 0 || data[3]&0x80 != 0 {
		return ^uint32(0)
	}
	return uint32(data[0])<<21 | uint32(data[1])<<14 | uint32(data[2])<<7 | uint32(data[3])
}

func joinSlash(first string, total int) string {
	if total > 0 {
		return first + "/" + strconv.Itoa(total)
	}
	return first
}

// Write implements tagcodec.Codec. It rebuilds the full ID3v2.4 tag block
// from tags and prepends it to the audio data, discarding the previous tag
// block (unrecognized fields are Non-goals per spec §1).
func (Codec) Write(path string, tags *model.AudioTags) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	audio := stripExistingTag(raw)

	var b frameBuilder
	b.text("TIT2", tags.TrackTitle)
	b.text("TALB", tags.ReleaseTitle)
	b.text("TPE1", tags.TrackArtists.Format())
	b.text("TPE2", tags.ReleaseArtists.Format())
	b.text("TRCK", joinSlash(tags.TrackNumber, tags.TrackTotal))
	b.text("TPOS", joinSlash(tags.DiscNumber, tags.DiscTotal))
	b.text("TCON", strings.Join(tags.Genres, ";"))

	// Open Question #1 (DESIGN.md): write both the legacy year/date frames
	// and the ID3v2.4 date frame so v2.3-only readers still see a date.
	if tags.ReleaseDate.Valid {
		b.text("TDRC", tags.ReleaseDate.Format())
		b.text("TYER", strconv.Itoa(tags.ReleaseDate.Year))
		if tags.ReleaseDate.Month != 0 {
			b.text("TDAT", strconv_DDMM(tags.ReleaseDate.Month, tags.ReleaseDate.Day))
		}
	}

	b.txxx(txxxTrackID, tags.TrackID)
	b.txxx(txxxReleaseID, tags.ReleaseID)
	b.txxx(txxxCompDate, tags.CompositionDate.Format())
	b.txxx(txxxSecondaryGenre, strings.Join(tags.SecondaryGenres, ";"))
	b.txxx(txxxDescriptor, strings.Join(tags.Descriptors, ";"))
	b.txxx(txxxCatalogNumber, tags.CatalogNumber)
	b.txxx(txxxEdition, tags.Edition)
	b.txxx(txxxReleaseType, tags.ReleaseType)

	remixers := tags.TrackArtists.Artists(artist.Remixer)
	if len(remixers) > 0 {
		names := make([]string, len(remixers))
		for i, a := range remixers {
			names[i] = a.Name
		}
		b.text("TPE4", strings.Join(names, ";"))
	}

	frameData := b.buf.Bytes()
	var header [10]byte
	copy(header[0:3], "ID3")
	header[3] = 0x04 // version 2.4
	header[4] = 0x00
	syncsafePut(header[6:10], uint32(len(frameData)))

	var out bytes.Buffer
	out.Write(header[:])
	out.Write(frameData)
	out.Write(audio)

	return os.WriteFile(path, out.Bytes(), 0o644)
}

func strconv_DDMM(month, day int) string {
	return pad2(day) + pad2(month)
}

func pad2(n int) string {
	s := strconv.Itoa(n)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}
