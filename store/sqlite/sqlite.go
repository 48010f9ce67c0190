/*
Package sqlite provides the SQLite-backed implementation of dosing.Store.

PURPOSE:
  Persists protocols, protocol items, inventory figures and dose records.
  The same patterns apply to PostgreSQL in production - only minor SQL
  dialect differences.

KEY TABLES:
  protocols:      Protocol headers (start/end date, active flag)
  protocol_items: Dosing rules; replaced wholesale on protocol edit
  dose_records:   One row per (user, protocol, peptide, date)
  inventory:      Pre-aggregated total mg per (user, peptide)

NATURAL-KEY UPSERT:
  dose_records carries a UNIQUE index on the natural key. Writes go
  through INSERT ... ON CONFLICT DO UPDATE, guarded so a settled
  (non-PENDING) record never has its status or captured amount rewritten
  by regeneration. Repeated regenerations therefore converge.

DELETE SCOPE:
  DeletePendingFrom issues a single DELETE restricted to
  status='PENDING' AND date >= from. Past rows and logged history are
  structurally unreachable from that statement.

WAL MODE:
  The database opens with WAL journaling for better read concurrency,
  matching the single-writer usage of the engine.

USAGE:
  store, err := sqlite.New("./dose.db")   // or ":memory:"
  svc := dosing.NewService(store, cadence.FrameUTC(), logger)

SEE ALSO:
  - dosing/store.go: interface contracts
  - dosing/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/peptra/dose-engine/cadence"
	"github.com/peptra/dose-engine/dosing"
)

// Store implements dosing.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ dosing.Store = (*Store)(nil)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS protocols (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_protocols_user
		ON protocols(user_id);
	-- At most one active protocol per user
	CREATE UNIQUE INDEX IF NOT EXISTS idx_protocols_user_active
		ON protocols(user_id) WHERE is_active;

	CREATE TABLE IF NOT EXISTS protocol_items (
		id TEXT PRIMARY KEY,
		protocol_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		peptide_id TEXT NOT NULL,
		peptide_name TEXT NOT NULL,
		dose_mg TEXT NOT NULL,
		schedule_kind TEXT NOT NULL,
		custom_days_json TEXT,
		every_n_days INTEGER NOT NULL DEFAULT 0,
		cycle_on_weeks INTEGER NOT NULL DEFAULT 0,
		cycle_off_weeks INTEGER NOT NULL DEFAULT 0,
		titration_interval_days INTEGER NOT NULL DEFAULT 0,
		titration_step_mg TEXT,
		titration_target_mg TEXT,
		time_of_day TEXT,
		FOREIGN KEY (protocol_id) REFERENCES protocols(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_items_protocol
		ON protocol_items(protocol_id, position);

	CREATE TABLE IF NOT EXISTS dose_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		protocol_id TEXT NOT NULL,
		peptide_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		dose_mg TEXT NOT NULL,
		site_label TEXT,
		time_of_day TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- The natural key; every write is an upsert against this index
	CREATE UNIQUE INDEX IF NOT EXISTS idx_dose_records_natural_key
		ON dose_records(user_id, protocol_id, peptide_id, date);

	-- Hot path: regeneration delete scope and calendar range loads
	CREATE INDEX IF NOT EXISTS idx_dose_records_protocol_status_date
		ON dose_records(protocol_id, status, date);
	CREATE INDEX IF NOT EXISTS idx_dose_records_user_date
		ON dose_records(user_id, date);

	CREATE TABLE IF NOT EXISTS inventory (
		user_id TEXT NOT NULL,
		peptide_id TEXT NOT NULL,
		total_mg TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, peptide_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DOSE STORE (dosing.DoseStore interface)
// =============================================================================

// UpsertDoses writes rows keyed on the natural key, atomically.
// A settled (non-PENDING) record keeps its status and captured amount.
func (s *Store) UpsertDoses(ctx context.Context, userID string, rows []dosing.DoseRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO dose_records
			(id, user_id, protocol_id, peptide_id, date, status, dose_mg, site_label, time_of_day, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, protocol_id, peptide_id, date) DO UPDATE SET
			status      = excluded.status,
			dose_mg     = excluded.dose_mg,
			site_label  = COALESCE(NULLIF(excluded.site_label, ''), dose_records.site_label),
			time_of_day = excluded.time_of_day,
			updated_at  = excluded.updated_at
		WHERE dose_records.status = 'PENDING'
	`

	for _, row := range rows {
		status := row.Status
		if status == "" {
			status = dosing.StatusPending
		}
		_, err := sqlTx.ExecContext(ctx, query,
			uuid.NewString(),
			userID,
			row.ProtocolID,
			row.PeptideID,
			row.Date.String(),
			string(status),
			row.DoseMg.String(),
			nullString(row.SiteLabel),
			nullString(row.TimeOfDay),
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert dose record: %w", err)
		}
	}

	return sqlTx.Commit()
}

// DeletePendingFrom deletes PENDING records dated >= from for a protocol.
func (s *Store) DeletePendingFrom(ctx context.Context, userID, protocolID string, from cadence.Day) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM dose_records
		WHERE user_id = ? AND protocol_id = ? AND status = 'PENDING' AND date >= ?
	`, userID, protocolID, from.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete pending doses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// ListDoses returns the user's records for a protocol in [from, to].
func (s *Store) ListDoses(ctx context.Context, userID, protocolID string, from, to cadence.Day) ([]dosing.DoseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, protocol_id, peptide_id, date, status, dose_mg, site_label, time_of_day
		FROM dose_records
		WHERE user_id = ? AND protocol_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, userID, protocolID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list dose records: %w", err)
	}
	defer rows.Close()

	var records []dosing.DoseRecord
	for rows.Next() {
		rec, err := scanDoseRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// GetDose returns the record for a key, or nil when absent.
func (s *Store) GetDose(ctx context.Context, key dosing.DoseKey) (*dosing.DoseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, protocol_id, peptide_id, date, status, dose_mg, site_label, time_of_day
		FROM dose_records
		WHERE user_id = ? AND protocol_id = ? AND peptide_id = ? AND date = ?
	`, key.UserID, key.ProtocolID, key.PeptideID, key.Date.String())

	rec, err := scanDoseRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetStatus updates one record's status.
func (s *Store) SetStatus(ctx context.Context, key dosing.DoseKey, status dosing.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE dose_records SET status = ?, updated_at = ?
		WHERE user_id = ? AND protocol_id = ? AND peptide_id = ? AND date = ?
	`, string(status), time.Now().UTC().Format(time.RFC3339),
		key.UserID, key.ProtocolID, key.PeptideID, key.Date.String())
	if err != nil {
		return fmt.Errorf("failed to update dose status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoseRecord(r rowScanner) (*dosing.DoseRecord, error) {
	var (
		rec       dosing.DoseRecord
		dateStr   string
		statusStr string
		doseStr   string
		siteLabel sql.NullString
		timeOfDay sql.NullString
	)
	err := r.Scan(&rec.ID, &rec.Key.UserID, &rec.Key.ProtocolID, &rec.Key.PeptideID,
		&dateStr, &statusStr, &doseStr, &siteLabel, &timeOfDay)
	if err != nil {
		return nil, err
	}

	day, err := cadence.ParseDay(dateStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt dose record date %q: %w", dateStr, err)
	}
	rec.Key.Date = day
	rec.Status = dosing.Status(statusStr)
	rec.DoseMg = mustDecimal(doseStr)
	rec.SiteLabel = siteLabel.String
	rec.TimeOfDay = timeOfDay.String
	return &rec, nil
}

// =============================================================================
// PROTOCOL STORE (dosing.ProtocolStore interface)
// =============================================================================

// SaveProtocol inserts or updates a protocol header. Activating a protocol
// deactivates the user's other protocols in the same transaction.
func (s *Store) SaveProtocol(ctx context.Context, p dosing.Protocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if p.IsActive {
		if _, err := sqlTx.ExecContext(ctx,
			`UPDATE protocols SET is_active = FALSE WHERE user_id = ? AND id != ?`,
			p.UserID, p.ID); err != nil {
			return fmt.Errorf("failed to deactivate other protocols: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var endDate sql.NullString
	if p.EndDate != nil {
		endDate = sql.NullString{String: p.EndDate.String(), Valid: true}
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO protocols (id, user_id, name, start_date, end_date, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, p.ID, p.UserID, p.Name, p.StartDate.String(), endDate, p.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to save protocol: %w", err)
	}

	return sqlTx.Commit()
}

// GetProtocol returns a protocol by id, or nil when absent.
func (s *Store) GetProtocol(ctx context.Context, id string) (*dosing.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryProtocol(ctx, `SELECT id, user_id, name, start_date, end_date, is_active FROM protocols WHERE id = ?`, id)
}

// ActiveProtocol returns the user's single active protocol, or nil.
func (s *Store) ActiveProtocol(ctx context.Context, userID string) (*dosing.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryProtocol(ctx, `SELECT id, user_id, name, start_date, end_date, is_active FROM protocols WHERE user_id = ? AND is_active`, userID)
}

func (s *Store) queryProtocol(ctx context.Context, query string, args ...any) (*dosing.Protocol, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	p, err := scanProtocol(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProtocols returns all of a user's protocols, newest first.
func (s *Store) ListProtocols(ctx context.Context, userID string) ([]dosing.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, start_date, end_date, is_active
		FROM protocols WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocols: %w", err)
	}
	defer rows.Close()

	var protocols []dosing.Protocol
	for rows.Next() {
		p, err := scanProtocol(rows)
		if err != nil {
			return nil, err
		}
		protocols = append(protocols, *p)
	}
	return protocols, rows.Err()
}

// ListActiveProtocols returns every active protocol across users.
func (s *Store) ListActiveProtocols(ctx context.Context) ([]dosing.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, start_date, end_date, is_active
		FROM protocols WHERE is_active
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active protocols: %w", err)
	}
	defer rows.Close()

	var protocols []dosing.Protocol
	for rows.Next() {
		p, err := scanProtocol(rows)
		if err != nil {
			return nil, err
		}
		protocols = append(protocols, *p)
	}
	return protocols, rows.Err()
}

func scanProtocol(r rowScanner) (*dosing.Protocol, error) {
	var (
		p        dosing.Protocol
		startStr string
		endStr   sql.NullString
	)
	if err := r.Scan(&p.ID, &p.UserID, &p.Name, &startStr, &endStr, &p.IsActive); err != nil {
		return nil, err
	}

	start, err := cadence.ParseDay(startStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt protocol start date %q: %w", startStr, err)
	}
	p.StartDate = start

	if endStr.Valid && endStr.String != "" {
		end, err := cadence.ParseDay(endStr.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt protocol end date %q: %w", endStr.String, err)
		}
		p.EndDate = &end
	}
	return &p, nil
}

// ReplaceItems swaps a protocol's items wholesale (delete-all-then-insert).
func (s *Store) ReplaceItems(ctx context.Context, protocolID string, items []cadence.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM protocol_items WHERE protocol_id = ?`, protocolID); err != nil {
		return fmt.Errorf("failed to clear protocol items: %w", err)
	}

	for pos, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}

		var customDays sql.NullString
		if len(item.Schedule.CustomDays) > 0 {
			raw, _ := json.Marshal(item.Schedule.CustomDays)
			customDays = sql.NullString{String: string(raw), Valid: true}
		}

		var titInterval int
		var titStep, titTarget sql.NullString
		if item.Titration != nil {
			titInterval = item.Titration.IntervalDays
			titStep = sql.NullString{String: item.Titration.StepMg.String(), Valid: true}
			if item.Titration.TargetMg != nil {
				titTarget = sql.NullString{String: item.Titration.TargetMg.String(), Valid: true}
			}
		}

		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO protocol_items
				(id, protocol_id, position, peptide_id, peptide_name, dose_mg,
				 schedule_kind, custom_days_json, every_n_days,
				 cycle_on_weeks, cycle_off_weeks,
				 titration_interval_days, titration_step_mg, titration_target_mg, time_of_day)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, protocolID, pos, item.PeptideID, item.PeptideName, item.DoseMg.String(),
			string(item.Schedule.Kind), customDays, item.Schedule.EveryNDays,
			item.Cycle.OnWeeks, item.Cycle.OffWeeks,
			titInterval, titStep, titTarget, nullString(item.TimeOfDay))
		if err != nil {
			return fmt.Errorf("failed to insert protocol item: %w", err)
		}
	}

	return sqlTx.Commit()
}

// ListItems returns a protocol's items in their stored order.
func (s *Store) ListItems(ctx context.Context, protocolID string) ([]cadence.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, peptide_id, peptide_name, dose_mg,
		       schedule_kind, custom_days_json, every_n_days,
		       cycle_on_weeks, cycle_off_weeks,
		       titration_interval_days, titration_step_mg, titration_target_mg, time_of_day
		FROM protocol_items WHERE protocol_id = ? ORDER BY position ASC
	`, protocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocol items: %w", err)
	}
	defer rows.Close()

	var items []cadence.Item
	for rows.Next() {
		var (
			item        cadence.Item
			doseStr     string
			kindStr     string
			customDays  sql.NullString
			titInterval int
			titStep     sql.NullString
			titTarget   sql.NullString
			timeOfDay   sql.NullString
		)
		err := rows.Scan(&item.ID, &item.PeptideID, &item.PeptideName, &doseStr,
			&kindStr, &customDays, &item.Schedule.EveryNDays,
			&item.Cycle.OnWeeks, &item.Cycle.OffWeeks,
			&titInterval, &titStep, &titTarget, &timeOfDay)
		if err != nil {
			return nil, err
		}

		item.DoseMg = mustDecimal(doseStr)
		item.Schedule.Kind = cadence.ScheduleKind(kindStr)
		if customDays.Valid && customDays.String != "" {
			// Tolerant read: a corrupt day set degrades to "never due"
			// rather than failing the whole load.
			_ = json.Unmarshal([]byte(customDays.String), &item.Schedule.CustomDays)
		}
		if titInterval > 0 && titStep.Valid {
			t := &cadence.Titration{IntervalDays: titInterval, StepMg: mustDecimal(titStep.String)}
			if titTarget.Valid {
				target := mustDecimal(titTarget.String)
				t.TargetMg = &target
			}
			item.Titration = t
		}
		item.TimeOfDay = timeOfDay.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// =============================================================================
// INVENTORY STORE (dosing.InventoryStore interface)
// =============================================================================

// SetInventory writes the pre-aggregated mg figure for a peptide.
func (s *Store) SetInventory(ctx context.Context, snap dosing.InventorySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory (user_id, peptide_id, total_mg, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, peptide_id) DO UPDATE SET
			total_mg = excluded.total_mg,
			updated_at = excluded.updated_at
	`, snap.UserID, snap.PeptideID, snap.TotalMg.String(), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set inventory: %w", err)
	}
	return nil
}

// GetInventory returns the mg available for a peptide (zero when unknown).
func (s *Store) GetInventory(ctx context.Context, userID, peptideID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totalStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT total_mg FROM inventory WHERE user_id = ? AND peptide_id = ?`,
		userID, peptideID).Scan(&totalStr)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get inventory: %w", err)
	}
	return mustDecimal(totalStr), nil
}

// ListInventory returns all of a user's inventory figures.
func (s *Store) ListInventory(ctx context.Context, userID string) ([]dosing.InventorySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, peptide_id, total_mg FROM inventory WHERE user_id = ? ORDER BY peptide_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	var snaps []dosing.InventorySnapshot
	for rows.Next() {
		var snap dosing.InventorySnapshot
		var totalStr string
		if err := rows.Scan(&snap.UserID, &snap.PeptideID, &totalStr); err != nil {
			return nil, err
		}
		snap.TotalMg = mustDecimal(totalStr)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
