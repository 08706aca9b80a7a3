package cache

import (
	"database/sql"
	"strings"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ftsSep is the per-character separator process_string_for_fts inserts.
// The views flatten many-to-many relations with the same rune padded by
// spaces, held separately as viewSep (read.go); original_source/rose-rs uses
// the same rune for both, which spec.md's prose leaves implicit (see
// SPEC_FULL.md §3).
const ftsSep = '¬'

const driverName = "sqlite3_rose"

var registerOnce sync.Once

func init() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("process_string_for_fts", processStringForFTS, true)
			},
		})
	})
}

// processStringForFTS separates every rune of s with ftsSep, turning FTS5's
// token boundaries into individual characters so the matcher DSL's
// substring semantics can be expressed as a NEAR(...) phrase query over
// single-character tokens (spec §4.4 FTS population, §9 "FTS abuse"). The
// same function must run at index time (here) and at query time (see
// internal/rules), which is why it's registered once and shared.
// ProcessStringForFTS exposes processStringForFTS to query builders (e.g.
// internal/rules), which must apply the identical transform to a search
// needle that index time applies to stored field values.
func ProcessStringForFTS(s string) string { return processStringForFTS(s) }

func processStringForFTS(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes)*2 - 1)
	for i, r := range runes {
		if i > 0 {
			b.WriteRune(ftsSep)
		}
		b.WriteRune(r)
	}
	return b.String()
}
