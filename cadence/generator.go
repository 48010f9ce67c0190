/*
generator.go - Per-day dose generation with titration

PURPOSE:
  Produces the list of doses due on one calendar day for a set of items.
  Applies the due-day predicate and the titration step function.

ORDERING:
  Output preserves item order. Sorting by time-of-day and name is a
  presentation concern layered on by the materializer.
*/
package cadence

import "github.com/shopspring/decimal"

// DosesForDay returns the doses due on 'date' for the given items.
// Pure function; no side effects.
func DosesForDay(date Day, protocolStart Day, items []Item) []DueDose {
	var due []DueDose
	for _, item := range items {
		if !IsDueOn(date, item, protocolStart) {
			continue
		}
		due = append(due, DueDose{
			ItemID:      item.ID,
			PeptideID:   item.PeptideID,
			PeptideName: item.PeptideName,
			DoseMg:      EffectiveDose(date, item, protocolStart),
			TimeOfDay:   item.TimeOfDay,
		})
	}
	return due
}

// EffectiveDose computes the titrated dose for a day: the nominal dose
// plus one titration step per full interval elapsed since protocol start,
// clamped to the target when one is set.
func EffectiveDose(date Day, item Item, protocolStart Day) decimal.Decimal {
	dose := item.DoseMg
	if !item.Titration.Enabled() {
		return dose
	}

	elapsed := DaysBetween(protocolStart, date)
	if elapsed < 0 {
		return dose
	}

	steps := int64(elapsed / item.Titration.IntervalDays)
	dose = dose.Add(item.Titration.StepMg.Mul(decimal.NewFromInt(steps)))

	if item.Titration.TargetMg != nil && dose.GreaterThan(*item.Titration.TargetMg) {
		dose = *item.Titration.TargetMg
	}
	return dose
}
