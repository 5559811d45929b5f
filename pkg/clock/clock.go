// Package clock answers "what day is it" for booking rules. All rules compare
// civil dates, so the answer is a date normalized to midnight UTC, computed in
// a single configured time zone regardless of where the process runs.
package clock

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// DateLayout is the wire and storage format of a civil date.
const DateLayout = "2006-01-02"

type Clock interface {
	Today() time.Time
}

type zoneClock struct {
	loc *time.Location
	now func() time.Time
}

// New returns a clock that reads the wall time in loc.
func New(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &zoneClock{loc: loc, now: time.Now}
}

// NewForZone loads the IANA zone by name.
func NewForZone(name string) (Clock, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", name, err)
	}
	return New(loc), nil
}

func (c *zoneClock) Today() time.Time {
	y, m, d := c.now().In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Fixed always reports the same day. Tests use it.
type Fixed struct {
	Day time.Time
}

func (f Fixed) Today() time.Time {
	return Truncate(f.Day)
}

// Truncate drops the time of day, keeping the calendar date as written.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD civil date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// MustDate is ParseDate for literals; it panics on malformed input.
func MustDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DaysBetween counts whole days in [start, end).
func DaysBetween(start, end time.Time) int {
	return int(Truncate(end).Sub(Truncate(start)).Hours() / 24)
}
