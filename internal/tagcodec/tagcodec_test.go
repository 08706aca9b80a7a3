package tagcodec_test

import (
	"testing"

	"go.sunsetglow.net/rose/internal/tagcodec"
	_ "go.sunsetglow.net/rose/internal/tagcodec/register"
)

func TestForPathDispatch(t *testing.T) {
	for _, ext := range []string{"mp3", "m4a", "flac", "ogg", "opus"} {
		if _, err := tagcodec.ForPath(ext); err != nil {
			t.Errorf("ForPath(%q) = %v, want a registered codec", ext, err)
		}
	}
}

func TestForPathUnsupported(t *testing.T) {
	if _, err := tagcodec.ForPath("wav"); err != tagcodec.ErrUnsupportedFormat {
		t.Errorf("ForPath(\"wav\") = %v, want ErrUnsupportedFormat", err)
	}
}
