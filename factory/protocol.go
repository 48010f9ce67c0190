/*
Package factory converts JSON protocol definitions into validated domain
objects.

PURPOSE:
  The cadence core reads schedule config tolerantly (malformed = never
  due), so the one place malformed config is actually REJECTED is here,
  when a Protocol and its Items are constructed from caller-supplied JSON.
  Everything past this boundary can trust the tagged union.

JSON SCHEMA:
  {
    "name": "Cut stack",
    "start_date": "2026-01-05",
    "end_date": "2026-06-30",
    "items": [
      {
        "peptide_id": "bpc-157",
        "peptide_name": "BPC-157",
        "dose_mg": "0.5",
        "schedule": "everyday",
        "cycle_on_weeks": 4,
        "cycle_off_weeks": 2,
        "time_of_day": "08:00"
      },
      {
        "peptide_id": "tesamorelin",
        "peptide_name": "Tesamorelin",
        "dose_mg": "1",
        "schedule": "custom",
        "custom_days": [1, 3, 5],
        "titration_interval_days": 14,
        "titration_amount_mg": "0.5",
        "titration_target_mg": "2"
      }
    ]
  }

VALIDATION RULES:
  - schedule must be one of everyday|weekdays|custom|every_n_days
  - custom requires a non-empty custom_days set of 0..6 (0=Sunday)
  - every_n_days requires a positive every_n_days interval
  - dose_mg must parse as a positive decimal
  - cycle weeks must be non-negative
  - titration fields must be positive when present

SEE ALSO:
  - cadence/types.go: the types constructed here
  - api/handlers.go: calls this from the protocol endpoints
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peptra/dose-engine/cadence"
	"github.com/peptra/dose-engine/dosing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProtocolJSON is the JSON representation of a protocol and its items.
type ProtocolJSON struct {
	Name      string     `json:"name"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date,omitempty"`
	IsActive  *bool      `json:"is_active,omitempty"` // default true
	Items     []ItemJSON `json:"items"`
}

// ItemJSON is the JSON representation of one dosing rule.
type ItemJSON struct {
	PeptideID   string `json:"peptide_id"`
	PeptideName string `json:"peptide_name"`
	DoseMg      string `json:"dose_mg"`

	Schedule   string `json:"schedule"`
	CustomDays []int  `json:"custom_days,omitempty"` // 0=Sunday .. 6=Saturday
	EveryNDays int    `json:"every_n_days,omitempty"`

	CycleOnWeeks  int `json:"cycle_on_weeks,omitempty"`
	CycleOffWeeks int `json:"cycle_off_weeks,omitempty"`

	TitrationIntervalDays int    `json:"titration_interval_days,omitempty"`
	TitrationAmountMg     string `json:"titration_amount_mg,omitempty"`
	TitrationTargetMg     string `json:"titration_target_mg,omitempty"`

	TimeOfDay string `json:"time_of_day,omitempty"`
}

// =============================================================================
// PROTOCOL FACTORY
// =============================================================================

// ProtocolFactory builds validated protocols from JSON.
type ProtocolFactory struct{}

func NewProtocolFactory() *ProtocolFactory {
	return &ProtocolFactory{}
}

// ParseProtocol parses and validates a JSON protocol definition for a user.
func (f *ProtocolFactory) ParseProtocol(userID string, jsonStr string) (*dosing.Protocol, []cadence.Item, error) {
	var pj ProtocolJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, nil, fmt.Errorf("failed to parse protocol JSON: %w", err)
	}
	return f.FromJSON(userID, pj)
}

// FromJSON builds a Protocol and its Items from the decoded schema.
func (f *ProtocolFactory) FromJSON(userID string, pj ProtocolJSON) (*dosing.Protocol, []cadence.Item, error) {
	if pj.Name == "" {
		return nil, nil, fmt.Errorf("protocol name is required")
	}

	start, err := cadence.ParseDay(pj.StartDate)
	if err != nil {
		return nil, nil, fmt.Errorf("start_date: %w", err)
	}

	protocol := &dosing.Protocol{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      pj.Name,
		StartDate: start,
		IsActive:  true,
	}
	if pj.IsActive != nil {
		protocol.IsActive = *pj.IsActive
	}
	if pj.EndDate != "" {
		end, err := cadence.ParseDay(pj.EndDate)
		if err != nil {
			return nil, nil, fmt.Errorf("end_date: %w", err)
		}
		if end.Before(start) {
			return nil, nil, fmt.Errorf("end_date %s precedes start_date %s", end, start)
		}
		protocol.EndDate = &end
	}

	if len(pj.Items) == 0 {
		return nil, nil, fmt.Errorf("protocol requires at least one item")
	}

	items := make([]cadence.Item, 0, len(pj.Items))
	for i, ij := range pj.Items {
		item, err := f.ParseItem(ij)
		if err != nil {
			return nil, nil, fmt.Errorf("item %d (%s): %w", i, ij.PeptideID, err)
		}
		items = append(items, *item)
	}

	return protocol, items, nil
}

// ParseItem validates one dosing rule.
func (f *ProtocolFactory) ParseItem(ij ItemJSON) (*cadence.Item, error) {
	if ij.PeptideID == "" {
		return nil, fmt.Errorf("peptide_id is required")
	}

	dose, err := decimal.NewFromString(ij.DoseMg)
	if err != nil {
		return nil, fmt.Errorf("dose_mg %q is not a valid decimal", ij.DoseMg)
	}
	if !dose.IsPositive() {
		return nil, fmt.Errorf("dose_mg must be positive, got %s", dose)
	}

	schedule, err := parseSchedule(ij)
	if err != nil {
		return nil, err
	}

	if ij.CycleOnWeeks < 0 || ij.CycleOffWeeks < 0 {
		return nil, fmt.Errorf("cycle weeks must be non-negative")
	}

	titration, err := parseTitration(ij)
	if err != nil {
		return nil, err
	}

	name := ij.PeptideName
	if name == "" {
		name = ij.PeptideID
	}

	return &cadence.Item{
		ID:          uuid.NewString(),
		PeptideID:   ij.PeptideID,
		PeptideName: name,
		DoseMg:      dose,
		Schedule:    schedule,
		Cycle:       cadence.Cycle{OnWeeks: ij.CycleOnWeeks, OffWeeks: ij.CycleOffWeeks},
		Titration:   titration,
		TimeOfDay:   ij.TimeOfDay,
	}, nil
}

func parseSchedule(ij ItemJSON) (cadence.Schedule, error) {
	kind := cadence.ScheduleKind(ij.Schedule)
	switch kind {
	case cadence.ScheduleEveryday, cadence.ScheduleWeekdays:
		return cadence.Schedule{Kind: kind}, nil

	case cadence.ScheduleCustom:
		if len(ij.CustomDays) == 0 {
			return cadence.Schedule{}, fmt.Errorf("custom schedule requires non-empty custom_days")
		}
		days := make([]time.Weekday, 0, len(ij.CustomDays))
		seen := make(map[int]bool)
		for _, d := range ij.CustomDays {
			if d < 0 || d > 6 {
				return cadence.Schedule{}, fmt.Errorf("custom_days entry %d out of range 0..6", d)
			}
			if seen[d] {
				continue
			}
			seen[d] = true
			days = append(days, time.Weekday(d))
		}
		return cadence.Schedule{Kind: kind, CustomDays: days}, nil

	case cadence.ScheduleEveryNDays:
		if ij.EveryNDays <= 0 {
			return cadence.Schedule{}, fmt.Errorf("every_n_days schedule requires a positive interval")
		}
		return cadence.Schedule{Kind: kind, EveryNDays: ij.EveryNDays}, nil

	default:
		return cadence.Schedule{}, fmt.Errorf("unknown schedule kind %q", ij.Schedule)
	}
}

func parseTitration(ij ItemJSON) (*cadence.Titration, error) {
	if ij.TitrationIntervalDays == 0 && ij.TitrationAmountMg == "" {
		return nil, nil
	}
	if ij.TitrationIntervalDays <= 0 {
		return nil, fmt.Errorf("titration_interval_days must be positive")
	}
	step, err := decimal.NewFromString(ij.TitrationAmountMg)
	if err != nil {
		return nil, fmt.Errorf("titration_amount_mg %q is not a valid decimal", ij.TitrationAmountMg)
	}
	if !step.IsPositive() {
		return nil, fmt.Errorf("titration_amount_mg must be positive, got %s", step)
	}

	t := &cadence.Titration{IntervalDays: ij.TitrationIntervalDays, StepMg: step}
	if ij.TitrationTargetMg != "" {
		target, err := decimal.NewFromString(ij.TitrationTargetMg)
		if err != nil {
			return nil, fmt.Errorf("titration_target_mg %q is not a valid decimal", ij.TitrationTargetMg)
		}
		t.TargetMg = &target
	}
	return t, nil
}
