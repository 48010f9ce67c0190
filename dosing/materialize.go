/*
materialize.go - Calendar view assembly

PURPOSE:
  Merges the generated schedule with persisted dose records into the rows
  a calendar or "today" view renders.

MERGE RULES:
  1. Every day in the range runs through the generator.
  2. A persisted record for a generated (date, peptide) key overrides the
     generated row's status, amount and site label.
  3. Persisted records nothing generated (ad-hoc/manually logged doses)
     surface as extra rows, not overrides.

ORDERING:
  Date ascending, then time-of-day ascending (rows without a time sort
  last within the day via the "99:99" sentinel), then peptide name.
  The deterministic tie-break matters for UI stability and for tests.
*/
package dosing

import (
	"sort"

	"github.com/peptra/dose-engine/cadence"
)

// timeOfDaySentinel sorts rows without a time label after timed rows.
const timeOfDaySentinel = "99:99"

// Materialize produces the full calendar view for an inclusive date range.
// existing must hold the user's persisted records for the range; records
// outside the range are ignored.
func Materialize(
	r cadence.DateRange,
	protocol Protocol,
	items []cadence.Item,
	existing []DoseRecord,
) ([]DoseRow, error) {
	if !r.IsValid() {
		return nil, cadence.ErrInvalidRange
	}

	byKey := make(map[DoseKey]DoseRecord, len(existing))
	for _, rec := range existing {
		byKey[rec.Key] = rec
	}

	names := make(map[string]string, len(items))
	for _, item := range items {
		names[item.PeptideID] = item.PeptideName
	}

	var rows []DoseRow
	matched := make(map[DoseKey]bool)

	for _, day := range r.Days() {
		for _, due := range cadence.DosesForDay(day, protocol.StartDate, items) {
			row := DoseRow{
				Date:        day,
				ProtocolID:  protocol.ID,
				PeptideID:   due.PeptideID,
				PeptideName: due.PeptideName,
				DoseMg:      due.DoseMg,
				Status:      StatusPending,
				TimeOfDay:   due.TimeOfDay,
			}

			key := row.key(protocol.UserID)
			if rec, ok := byKey[key]; ok {
				matched[key] = true
				row.RecordID = rec.ID
				row.Status = rec.Status
				row.DoseMg = rec.DoseMg
				row.SiteLabel = rec.SiteLabel
				if rec.TimeOfDay != "" {
					row.TimeOfDay = rec.TimeOfDay
				}
			}
			rows = append(rows, row)
		}
	}

	// Ad-hoc records: persisted doses the schedule did not generate.
	for _, rec := range existing {
		if matched[rec.Key] || !r.Contains(rec.Key.Date) {
			continue
		}
		rows = append(rows, DoseRow{
			Date:        rec.Key.Date,
			ProtocolID:  rec.Key.ProtocolID,
			PeptideID:   rec.Key.PeptideID,
			PeptideName: names[rec.Key.PeptideID],
			DoseMg:      rec.DoseMg,
			Status:      rec.Status,
			TimeOfDay:   rec.TimeOfDay,
			SiteLabel:   rec.SiteLabel,
			RecordID:    rec.ID,
		})
	}

	sortRows(rows)
	return rows, nil
}

// MaterializeDay is the single-day convenience used by "today" views.
func MaterializeDay(day cadence.Day, protocol Protocol, items []cadence.Item, existing []DoseRecord) ([]DoseRow, error) {
	return Materialize(cadence.DateRange{Start: day, End: day}, protocol, items, existing)
}

func sortRows(rows []DoseRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		ti, tj := sortTime(rows[i].TimeOfDay), sortTime(rows[j].TimeOfDay)
		if ti != tj {
			return ti < tj
		}
		return rows[i].PeptideName < rows[j].PeptideName
	})
}

func sortTime(t string) string {
	if t == "" {
		return timeOfDaySentinel
	}
	return t
}
