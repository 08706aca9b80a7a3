// Package tagcodec defines the closed Codec abstraction shared by the
// id3, mp4, and vorbis sub-packages, and dispatches a file path to the
// codec responsible for its extension. This is a closed tagged dispatch,
// not a plugin model: the set of containers is fixed by spec §4.1.
package tagcodec

import (
	"errors"

	"go.sunsetglow.net/rose/internal/model"
)

// ErrUnsupportedFormat is returned by ForPath for any extension outside
// {.mp3, .m4a, .ogg, .opus, .flac}.
var ErrUnsupportedFormat = errors.New("tagcodec: unsupported format")

// ErrCorruptFile is returned by a Codec's Read when the primary tag block
// is missing or unparseable.
var ErrCorruptFile = errors.New("tagcodec: corrupt or missing tag block")

// Codec reads and writes AudioTags for one container family.
type Codec interface {
	// Read parses the file at path into AudioTags. It returns
	// ErrCorruptFile if the primary tag block is absent or malformed.
	Read(path string) (*model.AudioTags, error)

	// Write rewrites the file's tag block in place. Writing an identifier
	// field (TrackID/ReleaseID) to its already-stored value is a no-op.
	Write(path string, tags *model.AudioTags) error
}

// registry is populated by the id3/mp4/vorbis sub-packages' init()
// functions via Register, keyed by lowercase extension without the dot.
var registry = map[string]Codec{}

// Register binds a Codec to the given lowercase extensions. Called from
// sub-package init() functions; not meant for external callers.
func Register(codec Codec, exts ...string) {
	for _, e := range exts {
		registry[e] = codec
	}
}

// ForPath returns the Codec registered for ext, a file's lowercase
// extension without the dot (as pathutil.Ext returns it).
func ForPath(ext string) (Codec, error) {
	c, ok := registry[ext]
	if !ok {
		return nil, ErrUnsupportedFormat
	}
	return c, nil
}

// SupportedExts lists every extension with a registered codec, used by the
// updater's directory walk to recognize audio files.
func SupportedExts() []string {
	exts := make([]string, 0, len(registry))
	for e := range registry {
		exts = append(exts, e)
	}
	return exts
}
