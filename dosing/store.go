/*
store.go - Persistence interfaces for the dosing domain

PURPOSE:
  Defines the contract between the domain and the database. The pure
  functions in this package never touch a store; the Service does, and
  different implementations back it (SQLite in production, in-memory in
  tests).

UPSERT CONTRACT:
  Dose records are unique per natural key (user, protocol, peptide, date).
  UpsertDoses must converge: writing the same key twice yields one row,
  with the later write's PENDING fields. Implementations must NOT let an
  upsert overwrite a non-PENDING record's status (history protection is
  enforced at the planner level too, but the store is the last line).

DELETE SCOPE:
  DeletePendingFrom removes only PENDING rows dated >= from for one
  protocol. It returns the count actually deleted so the service can
  report leftovers.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - dosing/store: in-memory for tests
*/
package dosing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/peptra/dose-engine/cadence"
)

// =============================================================================
// DOSE STORE
// =============================================================================

// DoseStore persists dose records.
type DoseStore interface {
	// UpsertDoses writes rows keyed on their natural key. All-or-nothing.
	UpsertDoses(ctx context.Context, userID string, rows []DoseRow) error

	// DeletePendingFrom deletes PENDING records for the protocol dated
	// >= from. Returns how many rows were actually deleted.
	DeletePendingFrom(ctx context.Context, userID, protocolID string, from cadence.Day) (int, error)

	// ListDoses returns the user's records for a protocol in [from, to].
	ListDoses(ctx context.Context, userID, protocolID string, from, to cadence.Day) ([]DoseRecord, error)

	// GetDose returns the record for a key, or nil when absent.
	GetDose(ctx context.Context, key DoseKey) (*DoseRecord, error)

	// SetStatus updates one record's status. The caller has already
	// validated the transition.
	SetStatus(ctx context.Context, key DoseKey, status Status) error
}

// =============================================================================
// PROTOCOL STORE
// =============================================================================

// ProtocolStore persists protocols and their items. Items are replaced
// wholesale on edit (delete-all-then-insert), never diffed.
type ProtocolStore interface {
	SaveProtocol(ctx context.Context, p Protocol) error
	GetProtocol(ctx context.Context, id string) (*Protocol, error)
	ListProtocols(ctx context.Context, userID string) ([]Protocol, error)

	// ActiveProtocol returns the user's single active protocol, or nil.
	ActiveProtocol(ctx context.Context, userID string) (*Protocol, error)

	// ListActiveProtocols returns every active protocol across users.
	// Used by the background regeneration scheduler.
	ListActiveProtocols(ctx context.Context) ([]Protocol, error)

	// ReplaceItems swaps a protocol's items wholesale.
	ReplaceItems(ctx context.Context, protocolID string, items []cadence.Item) error
	ListItems(ctx context.Context, protocolID string) ([]cadence.Item, error)
}

// =============================================================================
// INVENTORY STORE
// =============================================================================

// InventoryStore reads and writes the pre-aggregated mg figures.
type InventoryStore interface {
	SetInventory(ctx context.Context, snap InventorySnapshot) error
	GetInventory(ctx context.Context, userID, peptideID string) (decimal.Decimal, error)
	ListInventory(ctx context.Context, userID string) ([]InventorySnapshot, error)
}

// Store bundles everything a Service needs.
type Store interface {
	DoseStore
	ProtocolStore
	InventoryStore
}
