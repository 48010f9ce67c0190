package cadence

import (
	"time"
)

// =============================================================================
// DAY - Calendar-day value (the unit of all scheduling math)
// =============================================================================

// Day is a calendar date with no time-of-day component. Internally it is
// midnight UTC, but a Day carries no timezone meaning of its own: which
// wall-clock instant maps to which Day is decided by the Frame that
// truncated it.
type Day struct {
	t time.Time
}

// NewDay builds a Day from calendar components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses a YYYY-MM-DD string. Caller-supplied date strings that do
// not parse are a fatal input error for that call (InvalidDateError).
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, &InvalidDateError{Input: s, Cause: err}
	}
	return Day{t: t}, nil
}

// MustDay is a test/fixture helper; panics on bad input.
func MustDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Day) Before(other Day) bool        { return d.t.Before(other.t) }
func (d Day) After(other Day) bool         { return d.t.After(other.t) }
func (d Day) Equal(other Day) bool         { return d.t.Equal(other.t) }
func (d Day) BeforeOrEqual(other Day) bool { return !d.After(other) }
func (d Day) AfterOrEqual(other Day) bool  { return !d.Before(other) }
func (d Day) IsZero() bool                 { return d.t.IsZero() }

// Arithmetic
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

// DaysBetween returns the whole calendar days from 'from' to 'to'
// (negative when 'to' precedes 'from').
func DaysBetween(from, to Day) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// Properties
func (d Day) Year() int             { return d.t.Year() }
func (d Day) Month() time.Month     { return d.t.Month() }
func (d Day) DayOfMonth() int       { return d.t.Day() }
func (d Day) Weekday() time.Weekday { return d.t.Weekday() }

func (d Day) String() string { return d.t.Format("2006-01-02") }

// Time exposes the underlying midnight-UTC instant for persistence.
func (d Day) Time() time.Time { return d.t }

// =============================================================================
// FRAME - Reference frame for truncating instants to calendar days
// =============================================================================

// Frame decides which calendar day a wall-clock instant belongs to.
// The same Frame must be applied to every instant participating in one
// computation (query date and protocol start alike); mixing frames shifts
// due-days by one near timezone boundaries.
type Frame struct {
	loc *time.Location
}

// FrameUTC truncates at UTC midnight.
func FrameUTC() Frame { return Frame{loc: time.UTC} }

// FrameIn truncates at local midnight in the given location.
func FrameIn(loc *time.Location) Frame {
	if loc == nil {
		loc = time.UTC
	}
	return Frame{loc: loc}
}

// DayOf truncates an instant to the calendar day it falls on in this frame.
func (f Frame) DayOf(t time.Time) Day {
	loc := f.loc
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return NewDay(local.Year(), local.Month(), local.Day())
}

// Today returns the current calendar day in this frame.
func (f Frame) Today() Day { return f.DayOf(time.Now()) }

// =============================================================================
// DATE RANGE - Inclusive span of days
// =============================================================================

// DateRange is an inclusive [Start, End] span of calendar days.
type DateRange struct {
	Start Day
	End   Day
}

// IsValid reports whether the range is non-empty (End not before Start).
func (r DateRange) IsValid() bool { return !r.End.Before(r.Start) }

// Contains returns true if the day falls within [Start, End].
func (r DateRange) Contains(d Day) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Days returns every day in the range in ascending order.
func (r DateRange) Days() []Day {
	if !r.IsValid() {
		return nil
	}
	var days []Day
	for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
