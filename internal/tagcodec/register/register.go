// Package register blank-imports every concrete tagcodec implementation so
// that importing it wires the full dispatch table (tagcodec.ForPath) in
// one line, without tagcodec itself depending on its own implementations.
package register

import (
	_ "go.sunsetglow.net/rose/internal/tagcodec/id3"
	_ "go.sunsetglow.net/rose/internal/tagcodec/mp4"
	_ "go.sunsetglow.net/rose/internal/tagcodec/vorbis"
)
