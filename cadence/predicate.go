/*
predicate.go - The single due-day decision

PURPOSE:
  One function answers "is this calendar date a dose day for this item?"
  for every schedule kind and every caller (generator, materializer,
  regeneration planner, tests). There is exactly one copy of this logic.

EVALUATION ORDER:
  1. Elapsed days since protocol start (negative -> not due)
  2. Cycling gate (off-week -> not due, regardless of kind)
  3. Schedule kind check

FAIL-CLOSED:
  An EVERY_N_DAYS item without a positive interval, or a CUSTOM item with
  an empty day set, is never due. No error is raised; the rest of the
  day's generation proceeds unaffected.
*/
package cadence

import "time"

// IsDueOn reports whether 'date' is a dose day for the item, given the
// protocol start date. Both dates must have been truncated in the same
// Frame; the predicate itself only does calendar arithmetic.
func IsDueOn(date Day, item Item, protocolStart Day) bool {
	elapsed := DaysBetween(protocolStart, date)
	if elapsed < 0 {
		return false
	}

	if item.Cycle.Enabled() {
		cycleLen := item.Cycle.lengthDays()
		if cycleLen <= 0 || elapsed%cycleLen >= item.Cycle.OnWeeks*7 {
			return false
		}
	}

	switch item.Schedule.Kind {
	case ScheduleEveryday:
		return true
	case ScheduleWeekdays:
		wd := date.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	case ScheduleCustom:
		return item.Schedule.containsWeekday(date.Weekday())
	case ScheduleEveryNDays:
		n := item.Schedule.EveryNDays
		return n > 0 && elapsed%n == 0
	default:
		return false
	}
}
