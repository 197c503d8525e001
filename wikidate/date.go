// Package wikidate provides the date type used across the wiki client:
// a UTC timestamp with 1-second resolution, a null sentinel that sorts
// before every other value, and total arithmetic with second-counted
// differences.
package wikidate

import (
	"fmt"
	"time"
)

// DateDiff is a signed difference between two dates, in seconds.
type DateDiff int64

// Common differences.
const (
	Second DateDiff = 1
	Minute DateDiff = 60
	Hour   DateDiff = 3600
	Day    DateDiff = 86400
)

// Days returns a DateDiff spanning n days.
func Days(n int) DateDiff { return DateDiff(n) * Day }

// Date is a UTC timestamp with 1-second resolution. The zero value is
// the null date, which compares less than every non-null date.
type Date struct {
	t time.Time
}

// NullDate is the sentinel ordered before all other dates.
var NullDate = Date{}

// NewDate builds a date from broken-down UTC fields. Years outside
// [1, 9999] are rejected.
func NewDate(year, month, day, hour, minute, second int) (Date, error) {
	if year < 1 || year > 9999 {
		return Date{}, fmt.Errorf("year %d out of range", year)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	if t.Year() < 1 || t.Year() > 9999 {
		return Date{}, fmt.Errorf("date overflows the supported range")
	}
	return Date{t: t}, nil
}

// MustDate is NewDate for test fixtures and constants; it panics on a
// field combination NewDate rejects.
func MustDate(year, month, day, hour, minute, second int) Date {
	d, err := NewDate(year, month, day, hour, minute, second)
	if err != nil {
		panic(err)
	}
	return d
}

// FromTime converts a time.Time, truncating to whole seconds in UTC.
func FromTime(t time.Time) Date {
	if t.IsZero() {
		return NullDate
	}
	return Date{t: t.UTC().Truncate(time.Second)}
}

// IsNull reports whether d is the null sentinel.
func (d Date) IsNull() bool { return d.t.IsZero() }

// Time returns the underlying time.Time (zero for the null date).
func (d Date) Time() time.Time { return d.t }

// Year returns the calendar year, 0 for the null date.
func (d Date) Year() int {
	if d.IsNull() {
		return 0
	}
	return d.t.Year()
}

// Month returns the calendar month (1-12), 0 for the null date.
func (d Date) Month() int {
	if d.IsNull() {
		return 0
	}
	return int(d.t.Month())
}

// Day returns the day of month, 0 for the null date.
func (d Date) Day() int {
	if d.IsNull() {
		return 0
	}
	return d.t.Day()
}

// Equal reports structural equality.
func (d Date) Equal(other Date) bool {
	if d.IsNull() || other.IsNull() {
		return d.IsNull() == other.IsNull()
	}
	return d.t.Equal(other.t)
}

// Before reports whether d sorts before other. The null date sorts
// before every non-null date.
func (d Date) Before(other Date) bool {
	if d.IsNull() {
		return !other.IsNull()
	}
	if other.IsNull() {
		return false
	}
	return d.t.Before(other.t)
}

// After reports whether d sorts after other.
func (d Date) After(other Date) bool { return other.Before(d) }

// Add returns d shifted by diff seconds. Adding to the null date
// returns the null date, so arithmetic stays total.
func (d Date) Add(diff DateDiff) Date {
	if d.IsNull() {
		return NullDate
	}
	return Date{t: d.t.Add(time.Duration(diff) * time.Second)}
}

// Sub returns the signed difference d - other in seconds. Differences
// involving the null date are 0.
func (d Date) Sub(other Date) DateDiff {
	if d.IsNull() || other.IsNull() {
		return 0
	}
	return DateDiff(d.t.Unix() - other.t.Unix())
}

// ISO8601 renders the date as YYYY-MM-DDThh:mm:ssZ. The null date
// renders as the empty string.
func (d Date) ISO8601() string {
	if d.IsNull() {
		return ""
	}
	return d.t.Format("2006-01-02T15:04:05Z")
}

// String implements fmt.Stringer.
func (d Date) String() string {
	if d.IsNull() {
		return "<null date>"
	}
	return d.ISO8601()
}

// ParseISO8601 decodes YYYY-MM-DDThh:mm:ssZ. The empty string decodes
// to the null date so serialized null dates round-trip.
func ParseISO8601(s string) (Date, error) {
	if s == "" {
		return NullDate, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05Z", s)
	if err != nil {
		return NullDate, fmt.Errorf("invalid ISO 8601 date %q: %w", s, err)
	}
	return Date{t: t.UTC()}, nil
}

// Max returns the later of a and b.
func Max(a, b Date) Date {
	if a.Before(b) {
		return b
	}
	return a
}

// Min returns the earlier of a and b.
func Min(a, b Date) Date {
	if b.Before(a) {
		return b
	}
	return a
}
