package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peptra/dose-engine/cadence"
	"github.com/peptra/dose-engine/dosing"
	"github.com/peptra/dose-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func day(s string) cadence.Day {
	return cadence.MustDay(s)
}

func seedProtocol(t *testing.T, s *sqlite.Store, id, userID string, active bool) dosing.Protocol {
	t.Helper()
	p := dosing.Protocol{
		ID:        id,
		UserID:    userID,
		Name:      "Stack " + id,
		StartDate: day("2024-01-01"),
		IsActive:  active,
	}
	require.NoError(t, s.SaveProtocol(context.Background(), p))
	return p
}

func doseRow(protocolID, peptideID string, date cadence.Day, status dosing.Status, mg int64) dosing.DoseRow {
	return dosing.DoseRow{
		Date:       date,
		ProtocolID: protocolID,
		PeptideID:  peptideID,
		DoseMg:     decimal.NewFromInt(mg),
		Status:     status,
	}
}

// =============================================================================
// PROTOCOL PERSISTENCE TESTS
// =============================================================================

func TestSaveProtocol_RoundTrip(t *testing.T) {
	// GIVEN: A protocol with an end date
	// WHEN: Saving and reloading
	// THEN: All fields survive

	s := newTestStore(t)
	ctx := context.Background()

	end := day("2024-06-30")
	p := dosing.Protocol{
		ID:        "proto-1",
		UserID:    "user-1",
		Name:      "Cut stack",
		StartDate: day("2024-01-01"),
		EndDate:   &end,
		IsActive:  true,
	}
	require.NoError(t, s.SaveProtocol(ctx, p))

	got, err := s.GetProtocol(ctx, "proto-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.Name, got.Name)
	assert.True(t, got.StartDate.Equal(p.StartDate))
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(end))
	assert.True(t, got.IsActive)
}

func TestSaveProtocol_SingleActivePerUser(t *testing.T) {
	// GIVEN: An active protocol
	// WHEN: Activating a second one for the same user
	// THEN: The first is deactivated; the unique index never trips

	s := newTestStore(t)
	ctx := context.Background()

	seedProtocol(t, s, "proto-1", "user-1", true)
	seedProtocol(t, s, "proto-2", "user-1", true)

	active, err := s.ActiveProtocol(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "proto-2", active.ID)

	first, err := s.GetProtocol(ctx, "proto-1")
	require.NoError(t, err)
	assert.False(t, first.IsActive)
}

func TestGetProtocol_Missing_Nil(t *testing.T) {
	// GIVEN: An empty database
	// WHEN: Loading an unknown id
	// THEN: (nil, nil)

	s := newTestStore(t)

	got, err := s.GetProtocol(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListActiveProtocols_AcrossUsers(t *testing.T) {
	// GIVEN: Active and inactive protocols across two users
	// WHEN: Listing active protocols
	// THEN: One per active user comes back

	s := newTestStore(t)

	seedProtocol(t, s, "proto-1", "user-1", true)
	seedProtocol(t, s, "proto-2", "user-2", true)
	seedProtocol(t, s, "proto-3", "user-3", false)

	active, err := s.ListActiveProtocols(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

// =============================================================================
// PROTOCOL ITEM TESTS
// =============================================================================

func TestReplaceItems_RoundTripWithTitration(t *testing.T) {
	// GIVEN: An item carrying every optional field
	// WHEN: Replacing and reloading
	// THEN: Schedule, cycle and titration survive intact

	s := newTestStore(t)
	ctx := context.Background()
	p := seedProtocol(t, s, "proto-1", "user-1", true)

	target := decimal.NewFromInt(2)
	items := []cadence.Item{{
		ID:          "item-1",
		PeptideID:   "tesamorelin",
		PeptideName: "Tesamorelin",
		DoseMg:      decimal.RequireFromString("0.5"),
		Schedule: cadence.Schedule{
			Kind:       cadence.ScheduleCustom,
			CustomDays: []time.Weekday{time.Monday, time.Friday},
		},
		Cycle:     cadence.Cycle{OnWeeks: 4, OffWeeks: 2},
		Titration: &cadence.Titration{IntervalDays: 14, StepMg: decimal.RequireFromString("0.25"), TargetMg: &target},
		TimeOfDay: "08:00",
	}}
	require.NoError(t, s.ReplaceItems(ctx, p.ID, items))

	got, err := s.ListItems(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)

	item := got[0]
	assert.Equal(t, cadence.ScheduleCustom, item.Schedule.Kind)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, item.Schedule.CustomDays)
	assert.Equal(t, cadence.Cycle{OnWeeks: 4, OffWeeks: 2}, item.Cycle)
	require.NotNil(t, item.Titration)
	assert.Equal(t, 14, item.Titration.IntervalDays)
	require.NotNil(t, item.Titration.TargetMg)
	assert.True(t, item.Titration.TargetMg.Equal(target))
	assert.Equal(t, "08:00", item.TimeOfDay)
}

func TestReplaceItems_WholesaleSwap(t *testing.T) {
	// GIVEN: A protocol with two items
	// WHEN: Replacing with a single different item
	// THEN: Only the new item remains, position order preserved

	s := newTestStore(t)
	ctx := context.Background()
	p := seedProtocol(t, s, "proto-1", "user-1", true)

	old := []cadence.Item{
		{ID: "a", PeptideID: "pep-a", PeptideName: "A", DoseMg: decimal.NewFromInt(1), Schedule: cadence.Schedule{Kind: cadence.ScheduleEveryday}},
		{ID: "b", PeptideID: "pep-b", PeptideName: "B", DoseMg: decimal.NewFromInt(1), Schedule: cadence.Schedule{Kind: cadence.ScheduleEveryday}},
	}
	require.NoError(t, s.ReplaceItems(ctx, p.ID, old))

	replacement := []cadence.Item{
		{ID: "c", PeptideID: "pep-c", PeptideName: "C", DoseMg: decimal.NewFromInt(2), Schedule: cadence.Schedule{Kind: cadence.ScheduleWeekdays}},
	}
	require.NoError(t, s.ReplaceItems(ctx, p.ID, replacement))

	got, err := s.ListItems(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pep-c", got[0].PeptideID)
}

// =============================================================================
// DOSE RECORD TESTS
// =============================================================================

func TestUpsertDoses_InsertAndRead(t *testing.T) {
	// GIVEN: Fresh rows
	// WHEN: Upserting and listing
	// THEN: Records come back with generated IDs and the stored fields

	s := newTestStore(t)
	ctx := context.Background()
	p := seedProtocol(t, s, "proto-1", "user-1", true)

	rows := []dosing.DoseRow{
		doseRow(p.ID, "pep-1", day("2024-01-10"), dosing.StatusPending, 1),
		doseRow(p.ID, "pep-1", day("2024-01-11"), dosing.StatusPending, 1),
	}
	require.NoError(t, s.UpsertDoses(ctx, p.UserID, rows))

	recs, err := s.ListDoses(ctx, p.UserID, p.ID, day("2024-01-10"), day("2024-01-11"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.NotEmpty(t, recs[0].ID)
	assert.Equal(t, dosing.StatusPending, recs[0].Status)
}

func TestUpsertDoses_ConvergesOnNaturalKey(t *testing.T) {
	// GIVEN: A PENDING record
	// WHEN: Upserting the same key twice with a changed amount
	// THEN: One record exists holding the latest amount

	s := newTestStore(t)
	ctx := context.Background()
	p := seedProtocol(t, s, "proto-1", "user-1", true)
	d := day("2024-01-10")

	require.NoError(t, s.UpsertDoses(ctx, p.UserID, []dosing.DoseRow{doseRow(p.ID, "pep-1", d, dosing.StatusPending, 1)}))
	require.NoError(t, s.UpsertDoses(ctx, p.UserID, []dosing.DoseRow{doseRow(p.ID, "pep-1", d, dosing.StatusPending, 2)}))

	recs, err := s.ListDoses(ctx, p.UserID, p.ID, d, d)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].DoseMg.Equal(decimal.NewFromInt(2)))
}

func TestUpsertDoses_SettledRecordsImmutable(t *testing.T) {
	// GIVEN: A record marked TAKEN with a captured 3mg amount
	// WHEN: A later upsert writes 1mg PENDING at the same key
	// THEN: Status and amount are untouched

	s := newTestStore(t)
	ctx := context.Background()
	p := seedProtocol(t, s, "proto-1", "user-1", true)
	d := day("2024-01-10")

	require.NoError(t, s.UpsertDoses(ctx, p.UserID, []dosing.DoseRow{doseRow(p.ID, "pep-1", d, dosing.StatusTaken, 3)}))
	require.NoError(t, s.UpsertDoses(ctx, p.UserID, []dosing.DoseRow{doseRow(p.ID, "pep-1", d, dosing.StatusPending, 1)}))

	key := dosing.DoseKey{UserID: p.UserID, ProtocolID: p.ID, PeptideID: "pep-1", Date: d}
	rec, err := s.GetDose(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, dosing.StatusTaken, rec.Status)
	assert.True(t, rec.DoseMg.Equal(decimal.NewFromInt(3)))
}

func TestUpsertDoses_SiteLabelKeptWhenOmitted(t *testing.T) {
	// GIVEN: A PENDING record with a site label
	// WHEN: A regeneration upsert arrives without a label
	// THEN: The stored label survives

	s := newTestStore(t)
	ctx := context.Background()
	p := seedProtocol(t, s, "proto-1", "user-1", true)
	d := day("2024-01-10")

	labeled := doseRow(p.ID, "pep-1", d, dosing.StatusPending, 1)
	labeled.SiteLabel = "left abdomen"
	require.NoError(t, s.UpsertDoses(ctx, p.UserID, []dosing.DoseRow{labeled}))
	require.NoError(t, s.UpsertDoses(ctx, p.UserID, []dosing.DoseRow{doseRow(p.ID, "pep-1", d, dosing.StatusPending, 1)}))

	key := dosing.DoseKey{UserID: p.UserID, ProtocolID: p.ID, PeptideID: "pep-1", Date: d}
	rec, err := s.GetDose(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "left abdomen", rec.SiteLabel)
}

func TestDeletePendingFrom_ScopeAndCount(t *testing.T) {
	// GIVEN: PENDING and TAKEN records before and after the cutoff
	// WHEN: Deleting pending from the cutoff
	// THEN: Only PENDING rows at/after the cutoff go; the count reports them

	s := newTestStore(t)
	ctx := context.Background()
	p := seedProtocol(t, s, "proto-1", "user-1", true)

	require.NoError(t, s.UpsertDoses(ctx, p.UserID, []dosing.DoseRow{
		doseRow(p.ID, "pep-1", day("2024-01-05"), dosing.StatusPending, 1), // before: kept
		doseRow(p.ID, "pep-1", day("2024-01-09"), dosing.StatusTaken, 1),   // before: kept
		doseRow(p.ID, "pep-1", day("2024-01-10"), dosing.StatusPending, 1), // deleted
		doseRow(p.ID, "pep-1", day("2024-01-11"), dosing.StatusTaken, 1),   // taken: kept
		doseRow(p.ID, "pep-1", day("2024-01-12"), dosing.StatusPending, 1), // deleted
	}))

	n, err := s.DeletePendingFrom(ctx, p.UserID, p.ID, day("2024-01-10"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recs, err := s.ListDoses(ctx, p.UserID, p.ID, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	for _, rec := range recs {
		if rec.Status == dosing.StatusPending {
			assert.True(t, rec.Key.Date.Before(day("2024-01-10")), "surviving PENDING must predate the cutoff")
		}
	}
}

func TestDeletePendingFrom_OtherProtocolUntouched(t *testing.T) {
	// GIVEN: PENDING rows on two protocols
	// WHEN: Deleting for one protocol
	// THEN: The other protocol's rows remain

	s := newTestStore(t)
	ctx := context.Background()
	p1 := seedProtocol(t, s, "proto-1", "user-1", true)
	p2 := seedProtocol(t, s, "proto-2", "user-1", false)

	require.NoError(t, s.UpsertDoses(ctx, p1.UserID, []dosing.DoseRow{doseRow(p1.ID, "pep-1", day("2024-01-10"), dosing.StatusPending, 1)}))
	require.NoError(t, s.UpsertDoses(ctx, p2.UserID, []dosing.DoseRow{doseRow(p2.ID, "pep-1", day("2024-01-10"), dosing.StatusPending, 1)}))

	_, err := s.DeletePendingFrom(ctx, p1.UserID, p1.ID, day("2024-01-01"))
	require.NoError(t, err)

	recs, err := s.ListDoses(ctx, p2.UserID, p2.ID, day("2024-01-10"), day("2024-01-10"))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSetStatus_Persists(t *testing.T) {
	// GIVEN: A PENDING record
	// WHEN: Setting TAKEN
	// THEN: The reloaded record carries the new status

	s := newTestStore(t)
	ctx := context.Background()
	p := seedProtocol(t, s, "proto-1", "user-1", true)
	d := day("2024-01-10")

	require.NoError(t, s.UpsertDoses(ctx, p.UserID, []dosing.DoseRow{doseRow(p.ID, "pep-1", d, dosing.StatusPending, 1)}))

	key := dosing.DoseKey{UserID: p.UserID, ProtocolID: p.ID, PeptideID: "pep-1", Date: d}
	require.NoError(t, s.SetStatus(ctx, key, dosing.StatusTaken))

	rec, err := s.GetDose(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, dosing.StatusTaken, rec.Status)
}

// =============================================================================
// INVENTORY TESTS
// =============================================================================

func TestInventory_SetGetList(t *testing.T) {
	// GIVEN: Inventory figures for two peptides
	// WHEN: Overwriting one and reading back
	// THEN: Gets return the latest figure; unknown peptides read as zero

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetInventory(ctx, dosing.InventorySnapshot{UserID: "user-1", PeptideID: "pep-1", TotalMg: decimal.NewFromInt(10)}))
	require.NoError(t, s.SetInventory(ctx, dosing.InventorySnapshot{UserID: "user-1", PeptideID: "pep-2", TotalMg: decimal.NewFromInt(5)}))
	require.NoError(t, s.SetInventory(ctx, dosing.InventorySnapshot{UserID: "user-1", PeptideID: "pep-1", TotalMg: decimal.NewFromInt(8)}))

	total, err := s.GetInventory(ctx, "user-1", "pep-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(8)))

	unknown, err := s.GetInventory(ctx, "user-1", "pep-99")
	require.NoError(t, err)
	assert.True(t, unknown.IsZero())

	snaps, err := s.ListInventory(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}
