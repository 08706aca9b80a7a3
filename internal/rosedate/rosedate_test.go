package rosedate

import "testing"

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []string{"2020", "2020-01-02", "1999-12-31"}
	for _, s := range cases {
		d := Parse(s)
		if !d.Valid {
			t.Fatalf("Parse(%q) not valid", s)
		}
		if got := d.Format(); got != s {
			t.Errorf("Parse(%q).Format() = %q, want %q", s, got, s)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "not a date", "2020-13-01", "2020-00-10", "abcd"} {
		if d := Parse(s); d.Valid {
			t.Errorf("Parse(%q) = %+v, want invalid", s, d)
		}
	}
}

func TestLess(t *testing.T) {
	a := Parse("2020")
	b := Parse("2020-01-01")
	if !Less(a, b) {
		t.Errorf("expected year-only 2020 to sort before 2020-01-01")
	}
	if Less(b, a) {
		t.Errorf("did not expect 2020-01-01 to sort before 2020")
	}
}
