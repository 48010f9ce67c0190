/*
Package dosing layers the dose-record domain on top of the cadence core:
protocols, persisted dose records, calendar materialization and schedule
regeneration.

KEY CONCEPTS IN THIS FILE (types.go):
  - Protocol: a dated collection of dosing rules for one user
  - DoseRecord: one persisted dose instance, unique per natural key
  - DoseKey: the natural key (user, protocol, peptide, date)
  - Status: PENDING/TAKEN/SKIPPED with an explicit transition table
  - DoseRow: a calendar row handed to the UI (generated or persisted)

INVARIANTS:
  1. At most one DoseRecord per DoseKey (upsert semantics everywhere)
  2. DoseMg is captured at record creation; later protocol edits never
     rewrite logged history
  3. Only explicit user action moves a record out of PENDING; regeneration
     never transitions existing records

SEE ALSO:
  - materialize.go: calendar view assembly
  - regenerate.go: future-PENDING regeneration planning
  - store.go: persistence interfaces
*/
package dosing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/peptra/dose-engine/cadence"
)

// =============================================================================
// PROTOCOL - Owns an ordered set of dosing rules
// =============================================================================

// Protocol is a named, dated collection of cadence items for one user.
// At most one protocol is active per user at a time; that invariant is
// enforced by the store layer, not by this package's pure functions.
type Protocol struct {
	ID        string
	UserID    string
	Name      string
	StartDate cadence.Day
	EndDate   *cadence.Day
	IsActive  bool
}

// Ended reports whether the protocol's end date has passed.
func (p Protocol) Ended(today cadence.Day) bool {
	return p.EndDate != nil && p.EndDate.Before(today)
}

// =============================================================================
// DOSE STATUS - Three-state machine
// =============================================================================

type Status string

const (
	StatusPending Status = "PENDING"
	StatusTaken   Status = "TAKEN"
	StatusSkipped Status = "SKIPPED"
)

// CanTransition reports whether a status change is allowed. TAKEN and
// SKIPPED are reachable only from PENDING and revert only to PENDING;
// they are never inter-convertible directly.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusTaken || to == StatusSkipped
	case StatusTaken, StatusSkipped:
		return to == StatusPending
	default:
		return false
	}
}

// ErrInvalidTransition reports a disallowed status change.
type ErrInvalidTransition struct {
	From, To Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid dose status transition %s -> %s", e.From, e.To)
}

// =============================================================================
// DOSE RECORD - Persisted instance
// =============================================================================

// DoseKey is the natural key a dose record is unique on.
type DoseKey struct {
	UserID     string
	ProtocolID string
	PeptideID  string
	Date       cadence.Day
}

func (k DoseKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.UserID, k.ProtocolID, k.PeptideID, k.Date)
}

// DoseRecord is one persisted dose instance. DoseMg holds the amount as
// recorded at creation time.
type DoseRecord struct {
	ID        string
	Key       DoseKey
	Status    Status
	DoseMg    decimal.Decimal
	SiteLabel string
	TimeOfDay string
}

// =============================================================================
// DOSE ROW - Calendar/view row
// =============================================================================

// DoseRow is what the materializer hands to callers: one row per
// (date, peptide), either generated from the schedule, persisted, or both
// (persisted overriding generated).
type DoseRow struct {
	Date        cadence.Day
	ProtocolID  string
	PeptideID   string
	PeptideName string
	DoseMg      decimal.Decimal
	Status      Status
	TimeOfDay   string
	SiteLabel   string

	// RecordID is set when a persisted DoseRecord backs this row.
	RecordID string
}

// key derives the natural key for a row.
func (r DoseRow) key(userID string) DoseKey {
	return DoseKey{UserID: userID, ProtocolID: r.ProtocolID, PeptideID: r.PeptideID, Date: r.Date}
}

// =============================================================================
// INVENTORY SNAPSHOT - Read-only scalar input
// =============================================================================

// InventorySnapshot is the pre-aggregated mg available for a peptide.
// Consumption bookkeeping (vials, partial draws) happens upstream; this
// package only ever reads the scalar.
type InventorySnapshot struct {
	UserID    string
	PeptideID string
	TotalMg   decimal.Decimal
}
