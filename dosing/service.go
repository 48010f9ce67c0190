/*
service.go - Store-backed operations over the pure core

PURPOSE:
  The Service is the one place domain logic meets I/O: it loads snapshots
  from the store, runs the pure functions (materializer, planner,
  forecast), and applies results back. Handlers and the background
  scheduler both call through it.

SEQUENCING:
  Regeneration applies deletes before upserts. SQLite gives us no
  cross-call transaction here, so the ordering is what prevents a window
  where duplicate PENDING rows could appear; upserts on the natural key
  make concurrent regenerations converge regardless.

SOFT FAILURE:
  A failed or partial deletion of stale PENDING rows is reported as a
  leftover count on the RegenerationReport, never as an error. Insertion
  proceeds either way.
*/
package dosing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/peptra/dose-engine/cadence"
)

// Service coordinates the store and the cadence core.
type Service struct {
	store Store
	frame cadence.Frame
	log   zerolog.Logger
}

// NewService creates a service operating in the given calendar frame.
func NewService(store Store, frame cadence.Frame, log zerolog.Logger) *Service {
	return &Service{store: store, frame: frame, log: log}
}

// RegenerationReport summarizes an applied regeneration.
type RegenerationReport struct {
	ProtocolID string
	Inserted   int
	Deleted    int

	// Leftover counts stale future PENDING rows that could not be
	// deleted. Non-zero means the caller should warn the user; it is not
	// an error.
	Leftover int
}

// Regenerate recomputes and applies the future PENDING schedule for a
// protocol.
func (s *Service) Regenerate(ctx context.Context, protocolID string) (*RegenerationReport, error) {
	protocol, err := s.store.GetProtocol(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	if protocol == nil {
		return nil, fmt.Errorf("protocol %s: %w", protocolID, ErrProtocolNotFound)
	}

	items, err := s.store.ListItems(ctx, protocolID)
	if err != nil {
		return nil, err
	}

	today := s.frame.Today()
	tomorrow := today.AddDays(1)
	horizonEnd := protocol.StartDate.AddDays(DefaultHorizonDays)

	existing, err := s.store.ListDoses(ctx, protocol.UserID, protocolID, tomorrow, horizonEnd)
	if err != nil {
		return nil, err
	}

	plan := PlanRegeneration(*protocol, items, existing, today, DefaultHorizonDays)
	report := &RegenerationReport{ProtocolID: protocolID}

	expected := len(plan.DeleteKeys)
	deleted, err := s.store.DeletePendingFrom(ctx, protocol.UserID, protocolID, tomorrow)
	if err != nil {
		// Soft-fail: surface as leftover, keep inserting.
		s.log.Warn().Err(err).Str("protocol", protocolID).
			Msg("failed to delete stale pending doses")
		report.Leftover = expected
	} else {
		report.Deleted = deleted
		if deleted < expected {
			report.Leftover = expected - deleted
		}
	}

	if len(plan.InsertRows) > 0 {
		if err := s.store.UpsertDoses(ctx, protocol.UserID, plan.InsertRows); err != nil {
			return nil, fmt.Errorf("failed to upsert regenerated doses: %w", err)
		}
		report.Inserted = len(plan.InsertRows)
	}

	s.log.Info().Str("protocol", protocolID).
		Int("inserted", report.Inserted).
		Int("deleted", report.Deleted).
		Int("leftover", report.Leftover).
		Msg("regenerated dose schedule")

	return report, nil
}

// Calendar materializes the calendar view for a protocol over [from, to].
func (s *Service) Calendar(ctx context.Context, protocolID string, from, to cadence.Day) ([]DoseRow, error) {
	protocol, err := s.store.GetProtocol(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	if protocol == nil {
		return nil, fmt.Errorf("protocol %s: %w", protocolID, ErrProtocolNotFound)
	}

	items, err := s.store.ListItems(ctx, protocolID)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListDoses(ctx, protocol.UserID, protocolID, from, to)
	if err != nil {
		return nil, err
	}

	return Materialize(cadence.DateRange{Start: from, End: to}, *protocol, items, existing)
}

// Today materializes the current day for the user's active protocol.
// Returns (nil, nil) when the user has no active protocol.
func (s *Service) Today(ctx context.Context, userID string) ([]DoseRow, error) {
	protocol, err := s.store.ActiveProtocol(ctx, userID)
	if err != nil || protocol == nil {
		return nil, err
	}

	today := s.frame.Today()
	items, err := s.store.ListItems(ctx, protocol.ID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ListDoses(ctx, userID, protocol.ID, today, today)
	if err != nil {
		return nil, err
	}
	return MaterializeDay(today, *protocol, items, existing)
}

// LogDose upserts an ad-hoc or scheduled dose record.
func (s *Service) LogDose(ctx context.Context, rec DoseRecord) error {
	row := DoseRow{
		Date:       rec.Key.Date,
		ProtocolID: rec.Key.ProtocolID,
		PeptideID:  rec.Key.PeptideID,
		DoseMg:     rec.DoseMg,
		Status:     rec.Status,
		TimeOfDay:  rec.TimeOfDay,
		SiteLabel:  rec.SiteLabel,
	}
	if row.Status == "" {
		row.Status = StatusTaken
	}
	return s.store.UpsertDoses(ctx, rec.Key.UserID, []DoseRow{row})
}

// SetStatus applies a status transition to an existing record, honoring
// the state machine.
func (s *Service) SetStatus(ctx context.Context, key DoseKey, to Status) error {
	rec, err := s.store.GetDose(ctx, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("dose record %s: %w", key, ErrDoseNotFound)
	}
	if !CanTransition(rec.Status, to) {
		return &ErrInvalidTransition{From: rec.Status, To: to}
	}
	return s.store.SetStatus(ctx, key, to)
}

// ItemForecast pairs an item with its depletion projection.
type ItemForecast struct {
	PeptideID   string
	PeptideName string
	Result      cadence.ForecastResult
}

// Forecasts computes a ForecastResult per item of a protocol using the
// user's current inventory figures.
func (s *Service) Forecasts(ctx context.Context, protocolID string) ([]ItemForecast, error) {
	protocol, err := s.store.GetProtocol(ctx, protocolID)
	if err != nil {
		return nil, err
	}
	if protocol == nil {
		return nil, fmt.Errorf("protocol %s: %w", protocolID, ErrProtocolNotFound)
	}

	items, err := s.store.ListItems(ctx, protocolID)
	if err != nil {
		return nil, err
	}

	today := s.frame.Today()
	forecasts := make([]ItemForecast, 0, len(items))
	for _, item := range items {
		total, err := s.store.GetInventory(ctx, protocol.UserID, item.PeptideID)
		if err != nil {
			return nil, err
		}
		forecasts = append(forecasts, ItemForecast{
			PeptideID:   item.PeptideID,
			PeptideName: item.PeptideName,
			Result: cadence.Forecast(cadence.ForecastInput{
				TotalMg:  total,
				DoseMg:   item.DoseMg,
				Schedule: item.Schedule,
				Cycle:    item.Cycle,
				Today:    today,
			}),
		})
	}
	return forecasts, nil
}
