// Package rosedate implements the RoseDate sum type: a date that may be
// known only to the year, or fully to the day, as tag containers in the
// wild disagree on precision.
package rosedate

import (
	"fmt"
	"regexp"
	"strconv"
)

// RoseDate is a partially-known date. Year is always present when Valid is
// true; Month and Day are zero when unknown.
type RoseDate struct {
	Year  int
	Month int // 0 if unknown
	Day   int // 0 if unknown
	Valid bool
}

var fullRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
var yearRe = regexp.MustCompile(`^(\d{4})$`)

// Parse accepts "YYYY" or "YYYY-MM-DD". Any other shape yields a zero,
// invalid RoseDate (Parse has no error result): a malformed date is simply absent, not
// an error condition, matching how tag fields are treated elsewhere in the
// normalization rules.
func Parse(s string) RoseDate {
	if m := fullRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
			return RoseDate{Year: y, Month: mo, Day: d, Valid: true}
		}
		return RoseDate{}
	}
	if m := yearRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		return RoseDate{Year: y, Valid: true}
	}
	return RoseDate{}
}

// Format renders the canonical string form: "YYYY" when only the year is
// known, "YYYY-MM-DD" otherwise. The zero value formats as "".
func (d RoseDate) Format() string {
	if !d.Valid {
		return ""
	}
	if d.Month == 0 {
		return fmt.Sprintf("%04d", d.Year)
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d RoseDate) String() string { return d.Format() }

// Less orders RoseDate values lexicographically by (Year, Month, Day), with
// an unknown Month/Day sorting before any known one, matching the string
// ordering of the canonical format.
func Less(a, b RoseDate) bool {
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	if a.Month != b.Month {
		return a.Month < b.Month
	}
	return a.Day < b.Day
}

// Equal reports whether a and b carry the same value, including validity.
func Equal(a, b RoseDate) bool {
	return a.Valid == b.Valid && a.Year == b.Year && a.Month == b.Month && a.Day == b.Day
}
