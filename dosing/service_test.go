package dosing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peptra/dose-engine/cadence"
	"github.com/peptra/dose-engine/dosing"
	"github.com/peptra/dose-engine/dosing/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestService(t *testing.T) (*dosing.Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := dosing.NewService(mem, cadence.FrameUTC(), zerolog.Nop())
	return svc, mem
}

// seedProtocol stores an active protocol that started 10 days ago with one
// everyday item, so past/future behavior is observable relative to now.
func seedProtocol(t *testing.T, mem *store.Memory) dosing.Protocol {
	t.Helper()
	ctx := context.Background()

	p := dosing.Protocol{
		ID:        "proto-1",
		UserID:    "user-1",
		Name:      "Recovery stack",
		StartDate: cadence.FrameUTC().Today().AddDays(-10),
		IsActive:  true,
	}
	require.NoError(t, mem.SaveProtocol(ctx, p))
	require.NoError(t, mem.ReplaceItems(ctx, p.ID, []cadence.Item{
		{
			ID:          "item-1",
			PeptideID:   "pep-1",
			PeptideName: "BPC-157",
			DoseMg:      decimal.NewFromInt(1),
			Schedule:    cadence.Schedule{Kind: cadence.ScheduleEveryday},
		},
	}))
	return p
}

// =============================================================================
// REGENERATION SERVICE TESTS
// =============================================================================

func TestServiceRegenerate_PopulatesFutureWindow(t *testing.T) {
	// GIVEN: An active protocol with no persisted doses
	// WHEN: Regenerating
	// THEN: PENDING rows fill tomorrow through the horizon

	svc, mem := newTestService(t)
	p := seedProtocol(t, mem)
	ctx := context.Background()

	report, err := svc.Regenerate(ctx, p.ID)
	require.NoError(t, err)

	// Window is [today+1, start+365] for an everyday item: 355 days.
	assert.Equal(t, 355, report.Inserted)
	assert.Equal(t, 0, report.Deleted)
	assert.Equal(t, 0, report.Leftover)

	tomorrow := cadence.FrameUTC().Today().AddDays(1)
	recs, err := mem.ListDoses(ctx, p.UserID, p.ID, tomorrow, tomorrow)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, dosing.StatusPending, recs[0].Status)
}

func TestServiceRegenerate_Idempotent(t *testing.T) {
	// GIVEN: A protocol regenerated once
	// WHEN: Regenerating again with no protocol changes
	// THEN: The stored schedule converges to the same row count

	svc, mem := newTestService(t)
	p := seedProtocol(t, mem)
	ctx := context.Background()

	first, err := svc.Regenerate(ctx, p.ID)
	require.NoError(t, err)

	second, err := svc.Regenerate(ctx, p.ID)
	require.NoError(t, err)

	// Second pass deletes what the first inserted and reinserts it.
	assert.Equal(t, first.Inserted, second.Inserted)
	assert.Equal(t, first.Inserted, second.Deleted)
	assert.Equal(t, 0, second.Leftover)

	tomorrow := cadence.FrameUTC().Today().AddDays(1)
	recs, err := mem.ListDoses(ctx, p.UserID, p.ID, tomorrow, p.StartDate.AddDays(dosing.DefaultHorizonDays))
	require.NoError(t, err)
	assert.Len(t, recs, second.Inserted)
}

func TestServiceRegenerate_PreservesLoggedHistory(t *testing.T) {
	// GIVEN: A TAKEN record dated tomorrow (logged ahead of time)
	// WHEN: Regenerating
	// THEN: The record keeps its status and captured amount

	svc, mem := newTestService(t)
	p := seedProtocol(t, mem)
	ctx := context.Background()

	tomorrow := cadence.FrameUTC().Today().AddDays(1)
	key := dosing.DoseKey{UserID: p.UserID, ProtocolID: p.ID, PeptideID: "pep-1", Date: tomorrow}
	require.NoError(t, svc.LogDose(ctx, dosing.DoseRecord{
		Key:    key,
		Status: dosing.StatusTaken,
		DoseMg: decimal.NewFromInt(3),
	}))

	_, err := svc.Regenerate(ctx, p.ID)
	require.NoError(t, err)

	rec, err := mem.GetDose(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, dosing.StatusTaken, rec.Status)
	assert.True(t, rec.DoseMg.Equal(decimal.NewFromInt(3)), "captured amount must survive regeneration")
}

func TestServiceRegenerate_UnknownProtocol_NotFound(t *testing.T) {
	// GIVEN: A protocol ID that does not exist
	// WHEN: Regenerating
	// THEN: A not-found error

	svc, _ := newTestService(t)

	_, err := svc.Regenerate(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, dosing.IsNotFound(err))
}

// =============================================================================
// DOSE LOGGING AND STATUS TESTS
// =============================================================================

func TestServiceLogDose_DefaultsToTaken(t *testing.T) {
	// GIVEN: A log request with no explicit status
	// WHEN: Logging
	// THEN: The stored record is TAKEN

	svc, mem := newTestService(t)
	p := seedProtocol(t, mem)
	ctx := context.Background()

	key := dosing.DoseKey{UserID: p.UserID, ProtocolID: p.ID, PeptideID: "pep-1", Date: cadence.FrameUTC().Today()}
	require.NoError(t, svc.LogDose(ctx, dosing.DoseRecord{Key: key, DoseMg: decimal.NewFromInt(1)}))

	rec, err := mem.GetDose(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, dosing.StatusTaken, rec.Status)
}

func TestServiceSetStatus_AllowedTransition(t *testing.T) {
	// GIVEN: A PENDING record
	// WHEN: Marking it SKIPPED, then reverting to PENDING
	// THEN: Both transitions succeed

	svc, mem := newTestService(t)
	p := seedProtocol(t, mem)
	ctx := context.Background()

	key := dosing.DoseKey{UserID: p.UserID, ProtocolID: p.ID, PeptideID: "pep-1", Date: cadence.FrameUTC().Today()}
	require.NoError(t, svc.LogDose(ctx, dosing.DoseRecord{Key: key, Status: dosing.StatusPending, DoseMg: decimal.NewFromInt(1)}))

	require.NoError(t, svc.SetStatus(ctx, key, dosing.StatusSkipped))
	require.NoError(t, svc.SetStatus(ctx, key, dosing.StatusPending))
}

func TestServiceSetStatus_DisallowedTransition(t *testing.T) {
	// GIVEN: A TAKEN record
	// WHEN: Marking it SKIPPED directly
	// THEN: ErrInvalidTransition and the record is unchanged

	svc, mem := newTestService(t)
	p := seedProtocol(t, mem)
	ctx := context.Background()

	key := dosing.DoseKey{UserID: p.UserID, ProtocolID: p.ID, PeptideID: "pep-1", Date: cadence.FrameUTC().Today()}
	require.NoError(t, svc.LogDose(ctx, dosing.DoseRecord{Key: key, Status: dosing.StatusTaken, DoseMg: decimal.NewFromInt(1)}))

	err := svc.SetStatus(ctx, key, dosing.StatusSkipped)
	var invalid *dosing.ErrInvalidTransition
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, dosing.StatusTaken, invalid.From)

	rec, err := mem.GetDose(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, dosing.StatusTaken, rec.Status)
}

func TestServiceSetStatus_MissingRecord_NotFound(t *testing.T) {
	// GIVEN: No record at the key
	// WHEN: Setting a status
	// THEN: A not-found error

	svc, _ := newTestService(t)

	key := dosing.DoseKey{UserID: "user-1", ProtocolID: "proto-1", PeptideID: "pep-1", Date: cadence.FrameUTC().Today()}
	err := svc.SetStatus(context.Background(), key, dosing.StatusTaken)
	require.Error(t, err)
	assert.True(t, dosing.IsNotFound(err))
}

// =============================================================================
// TODAY AND FORECAST TESTS
// =============================================================================

func TestServiceToday_NoActiveProtocol_NilResult(t *testing.T) {
	// GIVEN: A user with no protocols
	// WHEN: Asking for today's doses
	// THEN: (nil, nil), not an error

	svc, _ := newTestService(t)

	rows, err := svc.Today(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestServiceToday_ReturnsActiveProtocolDoses(t *testing.T) {
	// GIVEN: An active everyday protocol
	// WHEN: Asking for today's doses
	// THEN: One row for today's due dose

	svc, mem := newTestService(t)
	p := seedProtocol(t, mem)

	rows, err := svc.Today(context.Background(), p.UserID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "pep-1", rows[0].PeptideID)
	assert.True(t, rows[0].Date.Equal(cadence.FrameUTC().Today()))
}

func TestServiceForecasts_UsesInventory(t *testing.T) {
	// GIVEN: 7mg on hand for a 1mg everyday item
	// WHEN: Forecasting
	// THEN: 7 doses remain, reorder one week out

	svc, mem := newTestService(t)
	p := seedProtocol(t, mem)
	ctx := context.Background()

	require.NoError(t, mem.SetInventory(ctx, dosing.InventorySnapshot{
		UserID:    p.UserID,
		PeptideID: "pep-1",
		TotalMg:   decimal.NewFromInt(7),
	}))

	forecasts, err := svc.Forecasts(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, forecasts, 1)

	f := forecasts[0]
	require.NotNil(t, f.Result.RemainingDoses)
	assert.EqualValues(t, 7, *f.Result.RemainingDoses)
	require.NotNil(t, f.Result.ReorderDate)
	assert.True(t, f.Result.ReorderDate.Equal(cadence.FrameUTC().Today().AddDays(7)))
}

func TestServiceForecasts_NoInventory_ZeroRemaining(t *testing.T) {
	// GIVEN: No inventory rows for the peptide
	// WHEN: Forecasting
	// THEN: Zero remaining, reorder today

	svc, mem := newTestService(t)
	p := seedProtocol(t, mem)

	forecasts, err := svc.Forecasts(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, forecasts, 1)
	require.NotNil(t, forecasts[0].Result.RemainingDoses)
	assert.EqualValues(t, 0, *forecasts[0].Result.RemainingDoses)
}
