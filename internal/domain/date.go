package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"

	// noDateLabel is what the original archive tooling wrote for inputs it
	// could not interpret. It is never a valid file name in the archive.
	noDateLabel = "nd"
)

// Date is a UTC calendar day. The zero value is NoDate.
type Date struct {
	t time.Time
}

// NoDate is the sentinel for an input that could not be normalized.
var NoDate = Date{}

// NewDate builds a Date from calendar components. Out-of-range components
// are normalized the way time.Date normalizes them.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a canonical YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return NoDate, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{t: t}, nil
}

// NormalizeDate accepts YYYY-MM-DD, YYYYMMDD, MM/DD/YYYY and MM-DD-YYYY.
// reformatted reports whether the input was in a non-canonical layout.
// Inputs matching none of the layouts (or naming an impossible calendar day)
// yield NoDate.
func NormalizeDate(s string) (d Date, reformatted bool) {
	s = strings.TrimSpace(s)
	layouts := []struct {
		layout    string
		canonical bool
	}{
		{dateLayout, true},
		{"20060102", false},
		{"01/02/2006", false},
		{"01-02-2006", false},
	}
	for _, l := range layouts {
		if len(s) != len(l.layout) {
			continue
		}
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		return Date{t: t}, !l.canonical
	}
	return NoDate, false
}

// IsValid reports whether d is a real calendar day rather than NoDate.
func (d Date) IsValid() bool { return !d.t.IsZero() }

func (d Date) String() string {
	if !d.IsValid() {
		return noDateLabel
	}
	return d.t.Format(dateLayout)
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time { return d.t }

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	if !d.IsValid() {
		return NoDate
	}
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DaysSince returns the number of calendar days from o to d.
func (d Date) DaysSince(o Date) int {
	return int(d.t.Sub(o.t).Hours() / 24)
}

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// Compare returns -1, 0 or +1, suitable for slices.SortFunc.
func (d Date) Compare(o Date) int { return d.t.Compare(o.t) }

// Month returns the calendar month containing d.
func (d Date) Month() Month {
	return Month{year: d.t.Year(), month: d.t.Month()}
}

// DateRange enumerates every day from start to end inclusive, ascending.
// It returns nil when end precedes start.
func DateRange(start, end Date) ([]Date, error) {
	if !start.IsValid() || !end.IsValid() {
		return nil, fmt.Errorf("%w: range %s..%s", ErrInvalidDate, start, end)
	}
	if end.Before(start) {
		return nil, nil
	}
	n := end.DaysSince(start) + 1
	out := make([]Date, 0, n)
	for d := start; !d.After(end); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out, nil
}

// Month is a calendar month, formatted YYYY-MM.
type Month struct {
	year  int
	month time.Month
}

// ParseMonth parses a YYYY-MM string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return Month{year: t.Year(), month: t.Month()}, nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.year, int(m.month))
}

// Compare orders months chronologically.
func (m Month) Compare(o Month) int {
	switch {
	case m.year != o.year:
		return cmpInt(m.year, o.year)
	default:
		return cmpInt(int(m.month), int(o.month))
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
