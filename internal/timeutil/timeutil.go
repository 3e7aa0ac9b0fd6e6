package timeutil

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidPeriod = errors.New("invalid period")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidRange  = errors.New("invalid date range")
)

// DateLayout is the calendar-date format accepted for from/to bounds.
const DateLayout = "2006-01-02"

// Window represents a normalized rolling time window anchored to a location.
type Window struct {
	period string
	start  time.Time
	end    time.Time
	loc    *time.Location
}

// EnsureLocation returns UTC when loc is nil.
func EnsureLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// NewWindow constructs a rolling window for the requested period (e.g., "30d", "24h").
func NewWindow(period string, now time.Time, loc *time.Location) (Window, error) {
	loc = EnsureLocation(loc)
	now = now.In(loc)
	dur, err := durationFromPeriod(period)
	if err != nil {
		return Window{}, err
	}
	return Window{
		period: normalizePeriod(period),
		start:  now.Add(-dur),
		end:    now,
		loc:    loc,
	}, nil
}

// Period returns the normalized period string (e.g., "30d").
func (w Window) Period() string { return w.period }

// Start returns the inclusive start of the window.
func (w Window) Start() time.Time { return w.start }

// End returns the exclusive end of the window.
func (w Window) End() time.Time { return w.end }

// Location returns the reporting timezone for the window.
func (w Window) Location() *time.Location { return EnsureLocation(w.loc) }

// Duration returns the window length.
func (w Window) Duration() time.Duration { return w.end.Sub(w.start) }

// Contains reports whether the timestamp falls within [start, end).
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.start) && ts.Before(w.end)
}

// ValidatePeriod reports whether period can build a window.
func ValidatePeriod(period string) error {
	_, err := durationFromPeriod(period)
	return err
}

// Range is an inclusive timestamp range. A nil bound is unbounded on that side.
type Range struct {
	From *time.Time
	To   *time.Time
}

// IsZero reports whether neither bound is set.
func (r Range) IsZero() bool { return r.From == nil && r.To == nil }

// NormalizeDates expands optional calendar dates into an inclusive timestamp range:
// from becomes the first instant of its day and to the last instant of its day, both in loc.
// An inverted range (from on a later day than to) is rejected with ErrInvalidRange.
func NormalizeDates(from, to *time.Time, loc *time.Location) (Range, error) {
	loc = EnsureLocation(loc)
	var r Range
	if from != nil {
		start := StartOfDay(*from, loc)
		r.From = &start
	}
	if to != nil {
		end := EndOfDay(*to, loc)
		r.To = &end
	}
	if r.From != nil && r.To != nil && r.From.After(*r.To) {
		return Range{}, ErrInvalidRange
	}
	return r, nil
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight in loc. Blank input yields nil.
func ParseDate(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, raw, EnsureLocation(loc))
	if err != nil {
		return nil, ErrInvalidDate
	}
	return &t, nil
}

// StartOfDay returns midnight of the calendar day t falls on when viewed in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	loc = EnsureLocation(loc)
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay returns the last instant of the calendar day t falls on when viewed in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	loc = EnsureLocation(loc)
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
}

// TruncateToDay normalizes the timestamp to midnight in the provided zone.
func TruncateToDay(t time.Time, loc *time.Location) time.Time {
	loc = EnsureLocation(loc)
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func durationFromPeriod(period string) (time.Duration, error) {
	p := normalizePeriod(period)
	if len(p) < 2 {
		return 0, ErrInvalidPeriod
	}
	unit := p[len(p)-1]
	value, err := strconv.Atoi(p[:len(p)-1])
	if err != nil || value <= 0 {
		return 0, ErrInvalidPeriod
	}
	switch unit {
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	default:
		return 0, ErrInvalidPeriod
	}
}

func normalizePeriod(period string) string {
	return strings.ToLower(strings.TrimSpace(period))
}
