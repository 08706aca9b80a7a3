package datafile

import (
	"path/filepath"
	"testing"
)

func TestExtractID(t *testing.T) {
	id, ok := ExtractID(".rose.abc-123.toml")
	if !ok || id != "abc-123" {
		t.Fatalf("ExtractID = %q, %v", id, ok)
	}
	if _, ok := ExtractID("cover.jpg"); ok {
		t.Fatalf("expected no match for non-datafile name")
	}
}

func TestFindInDirPicksLexicographicallyFirst(t *testing.T) {
	name, id, ok := FindInDir("dir", []string{".rose.bbb.toml", ".rose.aaa.toml", "01.mp3"}, nil)
	if !ok || name != ".rose.aaa.toml" || id != "aaa" {
		t.Fatalf("got %q %q %v", name, id, ok)
	}
}

func TestWriteIfChangedIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName("rid"))
	d := New()

	changed, err := WriteIfChanged(path, d)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected first write to report changed")
	}

	reread, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	changed, err = WriteIfChanged(path, reread)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Fatal("expected second write with unchanged content to be a no-op")
	}
}

func TestUnknownKeysPreserved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName("rid"))
	d := New()
	d.Unknown = map[string]interface{}{"future_field": "kept"}
	if _, err := WriteIfChanged(path, d); err != nil {
		t.Fatal(err)
	}
	reread, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if reread.Unknown["future_field"] != "kept" {
		t.Fatalf("unknown key not preserved: %+v", reread.Unknown)
	}
}
