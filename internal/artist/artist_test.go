package artist

import "testing"

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []string{
		"Artist A; Artist B",
		"DJ X pres. Artist A",
		"Composer A performed by Artist B",
		"Artist A under. Conductor B",
		"Artist A feat. Guest B",
		"Artist A remixed by Remixer B",
		"Artist A produced by Producer B",
		"DJ X pres. Composer A performed by Artist B under. Conductor C feat. Guest D remixed by Remixer E produced by Producer F",
	}
	for _, s := range cases {
		m := Parse(s)
		if got := m.Format(); got != s {
			t.Errorf("roundtrip mismatch:\n  in:  %q\n  got: %q", s, got)
		}
	}
}

func TestParseDedup(t *testing.T) {
	m := Parse("Artist A; Artist A; Artist B")
	got := m.Artists(Main)
	if len(got) != 2 {
		t.Fatalf("expected 2 deduped artists, got %d: %+v", len(got), got)
	}
	if got[0].Name != "Artist A" || got[1].Name != "Artist B" {
		t.Errorf("expected order preserved, got %+v", got)
	}
}

type fakeAliases map[string][]string

func (f fakeAliases) AliasesOf(name string) []string { return f[name] }

func TestExpandAliases(t *testing.T) {
	m := Parse("Real Name")
	expanded := m.ExpandAliases(fakeAliases{"Real Name": {"Alias One"}})
	got := expanded.Artists(Main)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries after expansion, got %d", len(got))
	}
	if got[0].Alias {
		t.Errorf("original entry should not be marked alias")
	}
	if !got[1].Alias || got[1].Name != "Alias One" {
		t.Errorf("expected alias entry 'Alias One', got %+v", got[1])
	}
	// Aliases must never round-trip into Format output.
	if expanded.Format() != "Real Name" {
		t.Errorf("Format() should omit alias entries, got %q", expanded.Format())
	}
}
