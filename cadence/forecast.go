/*
forecast.go - Inventory depletion projection

PURPOSE:
  Given the mg available for a peptide and the item's cadence, computes how
  many doses remain and when to reorder.

APPROXIMATION:
  Cycling dilutes the weekly frequency by its duty cycle
  (base * on/(on+off)). This is an average, NOT a simulation of the actual
  on/off calendar timing; the regeneration planner is the component that
  walks real calendar days. The two are kept distinct on purpose.

NULL SEMANTICS:
  - DoseMg <= 0: no valid cadence to project; both result fields nil.
  - Effective frequency <= 0 (never recurs): count is returned, date is nil.
  - Zero remaining doses: depletion is immediate; reorder date is today.
*/
package cadence

import "github.com/shopspring/decimal"

// ForecastInput bundles the figures the forecast needs. Today must be the
// current day in the caller's chosen Frame.
type ForecastInput struct {
	TotalMg  decimal.Decimal
	DoseMg   decimal.Decimal
	Schedule Schedule
	Cycle    Cycle
	Today    Day
}

// ForecastResult is purely derived and never persisted. Nil fields mean
// "no projection possible" (see package notes on null semantics).
type ForecastResult struct {
	RemainingDoses *int64
	ReorderDate    *Day
}

var sevenDays = decimal.NewFromInt(7)

// Forecast projects remaining doses and the reorder date.
func Forecast(in ForecastInput) ForecastResult {
	if !in.DoseMg.IsPositive() {
		return ForecastResult{}
	}

	remaining := in.TotalMg.Div(in.DoseMg).Floor().IntPart()
	if remaining < 0 {
		remaining = 0
	}
	result := ForecastResult{RemainingDoses: &remaining}

	freq := weeklyFrequency(in.Schedule, in.Cycle)
	if !freq.IsPositive() {
		return result
	}

	weeks := decimal.NewFromInt(remaining).Div(freq).Ceil().IntPart()
	reorder := in.Today.AddDays(int(weeks) * 7)
	result.ReorderDate = &reorder
	return result
}

// weeklyFrequency is the average doses per week for a cadence, after
// duty-cycle dilution.
func weeklyFrequency(s Schedule, c Cycle) decimal.Decimal {
	var base decimal.Decimal
	switch s.Kind {
	case ScheduleEveryday:
		base = sevenDays
	case ScheduleWeekdays:
		base = decimal.NewFromInt(5)
	case ScheduleCustom:
		base = decimal.NewFromInt(int64(len(s.CustomDays)))
	case ScheduleEveryNDays:
		if s.EveryNDays <= 0 {
			return decimal.Zero
		}
		base = sevenDays.Div(decimal.NewFromInt(int64(s.EveryNDays)))
	default:
		return decimal.Zero
	}

	if c.Enabled() {
		on := decimal.NewFromInt(int64(c.OnWeeks))
		total := decimal.NewFromInt(int64(c.OnWeeks + c.OffWeeks))
		base = base.Mul(on).Div(total)
	}
	return base
}
