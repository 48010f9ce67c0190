// Package store provides an in-memory dosing.Store for tests and dev.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peptra/dose-engine/cadence"
	"github.com/peptra/dose-engine/dosing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	protocols map[string]dosing.Protocol
	items     map[string][]cadence.Item // protocolID -> items
	doses     map[dosing.DoseKey]dosing.DoseRecord
	inventory map[invKey]decimal.Decimal
}

type invKey struct {
	UserID    string
	PeptideID string
}

func NewMemory() *Memory {
	return &Memory{
		protocols: make(map[string]dosing.Protocol),
		items:     make(map[string][]cadence.Item),
		doses:     make(map[dosing.DoseKey]dosing.DoseRecord),
		inventory: make(map[invKey]decimal.Decimal),
	}
}

var _ dosing.Store = (*Memory)(nil)

// =============================================================================
// DOSE STORE
// =============================================================================

func (m *Memory) UpsertDoses(_ context.Context, userID string, rows []dosing.DoseRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		key := dosing.DoseKey{
			UserID:     userID,
			ProtocolID: row.ProtocolID,
			PeptideID:  row.PeptideID,
			Date:       row.Date,
		}
		if existing, ok := m.doses[key]; ok {
			// History protection: a settled record keeps its status and
			// its captured amount. Only PENDING rows absorb the write.
			if existing.Status != dosing.StatusPending {
				continue
			}
			existing.DoseMg = row.DoseMg
			existing.TimeOfDay = row.TimeOfDay
			if row.SiteLabel != "" {
				existing.SiteLabel = row.SiteLabel
			}
			if row.Status != "" {
				existing.Status = row.Status
			}
			m.doses[key] = existing
			continue
		}
		m.doses[key] = dosing.DoseRecord{
			ID:        uuid.NewString(),
			Key:       key,
			Status:    row.Status,
			DoseMg:    row.DoseMg,
			SiteLabel: row.SiteLabel,
			TimeOfDay: row.TimeOfDay,
		}
	}
	return nil
}

func (m *Memory) DeletePendingFrom(_ context.Context, userID, protocolID string, from cadence.Day) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, rec := range m.doses {
		if key.UserID == userID && key.ProtocolID == protocolID &&
			rec.Status == dosing.StatusPending && key.Date.AfterOrEqual(from) {
			delete(m.doses, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *Memory) ListDoses(_ context.Context, userID, protocolID string, from, to cadence.Day) ([]dosing.DoseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []dosing.DoseRecord
	for key, rec := range m.doses {
		if key.UserID == userID && key.ProtocolID == protocolID &&
			key.Date.AfterOrEqual(from) && key.Date.BeforeOrEqual(to) {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (m *Memory) GetDose(_ context.Context, key dosing.DoseKey) (*dosing.DoseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.doses[key]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) SetStatus(_ context.Context, key dosing.DoseKey, status dosing.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.doses[key]
	if !ok {
		return nil
	}
	rec.Status = status
	m.doses[key] = rec
	return nil
}

// =============================================================================
// PROTOCOL STORE
// =============================================================================

func (m *Memory) SaveProtocol(_ context.Context, p dosing.Protocol) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.IsActive {
		// Single active protocol per user.
		for id, other := range m.protocols {
			if other.UserID == p.UserID && id != p.ID && other.IsActive {
				other.IsActive = false
				m.protocols[id] = other
			}
		}
	}
	m.protocols[p.ID] = p
	return nil
}

func (m *Memory) GetProtocol(_ context.Context, id string) (*dosing.Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.protocols[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) ListProtocols(_ context.Context, userID string) ([]dosing.Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []dosing.Protocol
	for _, p := range m.protocols {
		if p.UserID == userID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *Memory) ActiveProtocol(_ context.Context, userID string) (*dosing.Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.protocols {
		if p.UserID == userID && p.IsActive {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListActiveProtocols(_ context.Context) ([]dosing.Protocol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []dosing.Protocol
	for _, p := range m.protocols {
		if p.IsActive {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *Memory) ReplaceItems(_ context.Context, protocolID string, items []cadence.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[protocolID] = append([]cadence.Item(nil), items...)
	return nil
}

func (m *Memory) ListItems(_ context.Context, protocolID string) ([]cadence.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]cadence.Item(nil), m.items[protocolID]...), nil
}

// =============================================================================
// INVENTORY STORE
// =============================================================================

func (m *Memory) SetInventory(_ context.Context, snap dosing.InventorySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inventory[invKey{UserID: snap.UserID, PeptideID: snap.PeptideID}] = snap.TotalMg
	return nil
}

func (m *Memory) GetInventory(_ context.Context, userID, peptideID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.inventory[invKey{UserID: userID, PeptideID: peptideID}], nil
}

func (m *Memory) ListInventory(_ context.Context, userID string) ([]dosing.InventorySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []dosing.InventorySnapshot
	for k, total := range m.inventory {
		if k.UserID == userID {
			result = append(result, dosing.InventorySnapshot{
				UserID:    k.UserID,
				PeptideID: k.PeptideID,
				TotalMg:   total,
			})
		}
	}
	return result, nil
}
