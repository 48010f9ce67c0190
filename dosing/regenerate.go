/*
regenerate.go - Future-schedule regeneration planning

PURPOSE:
  After a protocol edit, the future PENDING schedule must be recomputed
  without disturbing logged history. PlanRegeneration is pure: it returns
  the delete set and the insert set; the service applies them against the
  store (delete first, then upsert).

SAFETY INVARIANT:
  Only records that are BOTH status=PENDING AND dated tomorrow-or-later
  are ever deleted. Past rows and TAKEN/SKIPPED rows survive every
  regeneration, always.

ANCHORING:
  Elapsed-day math always uses the protocol's true start date, even when
  the generation window begins later. Titration steps and cycle phase stay
  correct no matter when regeneration runs.
*/
package dosing

import "github.com/peptra/dose-engine/cadence"

// DefaultHorizonDays is how far ahead regeneration materializes PENDING rows.
const DefaultHorizonDays = 365

// Plan is the output of PlanRegeneration: apply DeleteKeys first, then
// upsert InsertRows keyed on their natural key so repeated applications
// converge.
type Plan struct {
	DeleteKeys []DoseKey
	InsertRows []DoseRow
}

// PlanRegeneration computes the delete/insert sets for a protocol.
// 'today' is the current day in the caller's frame; horizonDays <= 0 uses
// DefaultHorizonDays.
func PlanRegeneration(
	protocol Protocol,
	items []cadence.Item,
	existing []DoseRecord,
	today cadence.Day,
	horizonDays int,
) Plan {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	tomorrow := today.AddDays(1)

	var plan Plan

	// Stale future PENDING rows go first. Never past, never non-PENDING.
	for _, rec := range existing {
		if rec.Status == StatusPending && rec.Key.Date.AfterOrEqual(tomorrow) {
			plan.DeleteKeys = append(plan.DeleteKeys, rec.Key)
		}
	}

	// An ended protocol gets no new rows, but the deletions above still
	// apply: no orphaned future PENDING rows may remain.
	if protocol.Ended(today) {
		return plan
	}

	windowStart := protocol.StartDate
	if tomorrow.After(windowStart) {
		windowStart = tomorrow
	}
	windowEnd := protocol.StartDate.AddDays(horizonDays)
	if protocol.EndDate != nil && protocol.EndDate.Before(windowEnd) {
		windowEnd = *protocol.EndDate
	}
	if windowEnd.Before(windowStart) {
		return plan
	}

	window := cadence.DateRange{Start: windowStart, End: windowEnd}
	for _, day := range window.Days() {
		// Elapsed days run from the true protocol start, not the window
		// start, so titration and cycle phase stay anchored.
		for _, due := range cadence.DosesForDay(day, protocol.StartDate, items) {
			plan.InsertRows = append(plan.InsertRows, DoseRow{
				Date:        day,
				ProtocolID:  protocol.ID,
				PeptideID:   due.PeptideID,
				PeptideName: due.PeptideName,
				DoseMg:      due.DoseMg,
				Status:      StatusPending,
				TimeOfDay:   due.TimeOfDay,
			})
		}
	}

	return plan
}
