/*
Package cadence is the pure scheduling core of the dose engine.

PURPOSE:
  Answers three questions with no I/O and no shared state:
  - Is a given calendar date a dose day for a protocol item? (predicate.go)
  - Which doses are due on a date, at what titrated amount? (generator.go)
  - How long until the current inventory runs out? (forecast.go)

KEY CONCEPTS IN THIS FILE (types.go):
  - Schedule: tagged union of the supported cadence kinds
  - Cycle: on/off week alternation anchored at protocol start
  - Titration: stepwise dose increase over elapsed time
  - Item: one dosing rule (peptide + dose + schedule + cycle + titration)

DESIGN PRINCIPLES:
  1. Purity: every function is a function of its arguments only
  2. Precision: all mg quantities are decimal.Decimal, never float
  3. Fail-closed: malformed schedule config means "never due", not an error
  4. One frame: callers pick a calendar reference frame (Frame) and the
     same frame is applied to every date in a computation

SEE ALSO:
  - day.go: Day, Frame, DateRange
  - predicate.go: due-day decision
  - generator.go: per-day dose list with titration
  - forecast.go: depletion projection
*/
package cadence

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEDULE - Tagged union of supported cadence kinds
// =============================================================================

type ScheduleKind string

const (
	// ScheduleEveryday doses every calendar day.
	ScheduleEveryday ScheduleKind = "everyday"

	// ScheduleWeekdays doses Monday through Friday.
	ScheduleWeekdays ScheduleKind = "weekdays"

	// ScheduleCustom doses on an explicit set of weekdays.
	ScheduleCustom ScheduleKind = "custom"

	// ScheduleEveryNDays doses every Nth day counted from protocol start.
	ScheduleEveryNDays ScheduleKind = "every_n_days"
)

// Schedule is the cadence configuration for one item. Exactly one of the
// kind-specific fields is meaningful per Kind; the others are ignored on
// read (tolerant read - validation happens at the factory boundary).
type Schedule struct {
	Kind ScheduleKind

	// CustomDays holds the active weekdays for ScheduleCustom.
	// time.Weekday matches the wire convention: 0=Sunday .. 6=Saturday.
	CustomDays []time.Weekday

	// EveryNDays is the interval for ScheduleEveryNDays. Must be positive
	// to ever be due.
	EveryNDays int
}

// containsWeekday reports membership in CustomDays.
func (s Schedule) containsWeekday(wd time.Weekday) bool {
	for _, d := range s.CustomDays {
		if d == wd {
			return true
		}
	}
	return false
}

// =============================================================================
// CYCLE - On/off week alternation
// =============================================================================

// Cycle alternates OnWeeks active / OffWeeks inactive, anchored at the
// protocol start date. A zero-valued Cycle means no cycling.
type Cycle struct {
	OnWeeks  int
	OffWeeks int
}

// Enabled reports whether cycling applies at all.
func (c Cycle) Enabled() bool { return c.OnWeeks > 0 || c.OffWeeks > 0 }

// lengthDays is the full on+off span in days.
func (c Cycle) lengthDays() int { return (c.OnWeeks + c.OffWeeks) * 7 }

// =============================================================================
// TITRATION - Stepwise dose ramp
// =============================================================================

// Titration increases the dose by StepMg for every full IntervalDays
// elapsed since protocol start (a step function, not interpolation).
// TargetMg, when set, caps the ramp.
type Titration struct {
	IntervalDays int
	StepMg       decimal.Decimal
	TargetMg     *decimal.Decimal
}

// Enabled reports whether the ramp applies; both the interval and the step
// must be positive.
func (t *Titration) Enabled() bool {
	return t != nil && t.IntervalDays > 0 && t.StepMg.IsPositive()
}

// =============================================================================
// ITEM - One scheduled dosing rule
// =============================================================================

// Item is a single dosing rule within a protocol: which peptide, how much,
// and on which days.
type Item struct {
	ID          string
	PeptideID   string
	PeptideName string

	// DoseMg is the nominal per-administration dose, pre-titration.
	DoseMg decimal.Decimal

	Schedule  Schedule
	Cycle     Cycle
	Titration *Titration

	// TimeOfDay is an optional HH:MM label. Display/sort key only; it
	// never affects due-day logic.
	TimeOfDay string
}

// DueDose is one generated dose for a specific day.
type DueDose struct {
	ItemID      string
	PeptideID   string
	PeptideName string
	DoseMg      decimal.Decimal
	TimeOfDay   string
}
