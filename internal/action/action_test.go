package action

import (
	"testing"

	"go.sunsetglow.net/rose/internal/matcher"
	"go.sunsetglow.net/rose/internal/model"
)

func newRecord() *Record {
	return &Record{Tags: model.NewAudioTags()}
}

func TestReplaceSingleValued(t *testing.T) {
	rec := newRecord()
	rec.Tags.TrackTitle = "Track 1"

	a, err := Parse("tracktitle/replace:lalala", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	changed, err := a.Apply(rec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !changed || rec.Tags.TrackTitle != "lalala" {
		t.Fatalf("unexpected result: changed=%v title=%q", changed, rec.Tags.TrackTitle)
	}

	// Re-applying is a no-op.
	changed, err = a.Apply(rec)
	if err != nil {
		t.Fatalf("Apply (2nd): %v", err)
	}
	if changed {
		t.Fatalf("expected second apply to be idempotent")
	}
}

func TestReplaceEmptyRejected(t *testing.T) {
	a, err := Parse("tracktitle/replace:", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rec := newRecord()
	rec.Tags.TrackTitle = "Track 1"
	if _, err := a.Apply(rec); err == nil {
		t.Fatalf("expected error replacing single-valued tag with empty string")
	}
}

func TestSplitAction(t *testing.T) {
	rec := newRecord()
	rec.Tags.Labels = []string{"A Cool Label"}

	a, err := Parse("label/split:Cool", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	changed, err := a.Apply(rec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !changed {
		t.Fatalf("expected a change")
	}
	want := []string{"A ", " Label"}
	if len(rec.Tags.Labels) != len(want) {
		t.Fatalf("unexpected labels: %v", rec.Tags.Labels)
	}
	for i := range want {
		if rec.Tags.Labels[i] != want[i] {
			t.Fatalf("unexpected labels: %v", rec.Tags.Labels)
		}
	}
}

func TestAddAction(t *testing.T) {
	rec := newRecord()
	rec.Tags.Genres = []string{"Rock"}

	a, err := Parse("genre/add:Pop", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := a.Apply(rec); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(rec.Tags.Genres) != 2 || rec.Tags.Genres[1] != "Pop" {
		t.Fatalf("unexpected genres: %v", rec.Tags.Genres)
	}

	// Adding an already-present value is a no-op.
	changed, err := a.Apply(rec)
	if err != nil {
		t.Fatalf("Apply (2nd): %v", err)
	}
	if changed {
		t.Fatalf("expected idempotent add")
	}
}

func TestDeleteMultiValuedWithPattern(t *testing.T) {
	rec := newRecord()
	rec.Tags.Genres = []string{"Rock", "Pop", "Jazz"}

	a, err := Parse("genre:Pop/delete", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := a.Apply(rec); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(rec.Tags.Genres) != 2 || rec.Tags.Genres[0] != "Rock" || rec.Tags.Genres[1] != "Jazz" {
		t.Fatalf("unexpected genres: %v", rec.Tags.Genres)
	}
}

func TestAddOnSingleValuedRejected(t *testing.T) {
	if _, err := Parse("tracktitle/add:x", nil); err == nil {
		t.Fatalf("expected parse error: add is not defined for single-valued tags")
	}
}

func TestInheritedMatcherAndMatchedSentinel(t *testing.T) {
	m, err := matcher.Parse("tracktitle:Track")
	if err != nil {
		t.Fatalf("matcher.Parse: %v", err)
	}
	a, err := Parse("matched/replace:lalala", m)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.Tags) != 1 || a.Tags[0] != matcher.TrackTitle {
		t.Fatalf("expected inherited tags, got %+v", a.Tags)
	}

	rec := newRecord()
	rec.Tags.TrackTitle = "Track 1"
	changed, err := a.Apply(rec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !changed || rec.Tags.TrackTitle != "lalala" {
		t.Fatalf("unexpected result: changed=%v title=%q", changed, rec.Tags.TrackTitle)
	}
}

func TestBooleanNewValidation(t *testing.T) {
	a, err := Parse("new/replace:maybe", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rec := newRecord()
	nv := false
	rec.New = &nv
	if _, err := a.Apply(rec); err == nil {
		t.Fatalf("expected error for non-boolean new value")
	}
}

func TestDateValidation(t *testing.T) {
	a, err := Parse("releasedate/replace:not-a-date", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rec := newRecord()
	if _, err := a.Apply(rec); err == nil {
		t.Fatalf("expected error for invalid date")
	}
}
