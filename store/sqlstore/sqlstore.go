/*
Package sqlstore provides a database/sql implementation of the maintenance
store interfaces.

PURPOSE:
  Persists roster and equipment snapshots, completion events and the
  last-update marker. SQLite is the default; the same code runs against
  PostgreSQL (pgx) and MySQL with placeholder rebinding and small DDL
  differences.

KEY TABLES:
  roster_monthly, roster_semiannual, roster_corrective:
                      One row per uploaded roster, records as JSON
  equipment_master:   One row per uploaded master list
  completion_events:  One row per (equipment_id, maintenance_type), UNIQUE
  last_update:        Single row (id = 1)

SNAPSHOTS:
  Uploads are append-only. The active snapshot is the newest row by
  uploaded_at, ties broken by id (UUIDv7, time-ordered).

UNIQUENESS:
  Inserts use the dialect's "insert unless conflicting" form. A conflict is
  reported as maintenance.ErrDuplicateCompletion without aborting the
  surrounding transaction, which PostgreSQL would otherwise do.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is limited to one open
  connection so that ":memory:" databases are shared by every call.

MIGRATION:
  Schema is managed with sql-migrate and applied on Open.

USAGE:
  store, err := sqlstore.New("./data/maintenance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - maintenance/store.go: Interface definitions
  - maintenance/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/maintenance-engine/maintenance"
)

// =============================================================================
// DIALECTS
// =============================================================================

type dialect struct {
	name           string // database/sql driver name
	migrateDialect string // sql-migrate dialect name
	dollar         bool   // $1, $2 placeholders
	insertIgnore   string // prefix replacing INSERT
	onConflict     string // suffix after VALUES (...)
}

var dialects = map[string]dialect{
	"sqlite3": {name: "sqlite3", migrateDialect: "sqlite3", insertIgnore: "INSERT", onConflict: " ON CONFLICT DO NOTHING"},
	"pgx":     {name: "pgx", migrateDialect: "postgres", dollar: true, insertIgnore: "INSERT", onConflict: " ON CONFLICT DO NOTHING"},
	"mysql":   {name: "mysql", migrateDialect: "mysql", insertIgnore: "INSERT IGNORE"},
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var rosterTables = map[maintenance.MaintenanceType]string{
	maintenance.Monthly:    "roster_monthly",
	maintenance.Semiannual: "roster_semiannual",
	maintenance.Corrective: "roster_corrective",
}

// =============================================================================
// STORE
// =============================================================================

// Store implements maintenance.Store on a SQL database.
type Store struct {
	db *sql.DB
	d  dialect
	mu sync.RWMutex
}

var _ maintenance.Store = (*Store)(nil)

// New opens a SQLite store at dbPath. Use ":memory:" for an in-memory
// database.
func New(dbPath string) (*Store, error) {
	return Open("sqlite3", dbPath)
}

// Open connects with driver ("sqlite3", "pgx" or "mysql"; empty means
// sqlite3) and applies migrations.
func Open(driver, dsn string) (*Store, error) {
	if driver == "" {
		driver = "sqlite3"
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if d.name == "sqlite3" && !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL"
	}
	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.name == "sqlite3" {
		db.SetMaxOpenConns(1)
	}

	if _, err := migrateUp(db, d); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, d: d}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return maintenance.NewStoreError("ping", s.db.PingContext(ctx))
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SNAPSHOTS (maintenance.RosterStore)
// =============================================================================

func (s *Store) SaveRosterSnapshot(ctx context.Context, t maintenance.MaintenanceType, records []maintenance.RosterRecord) (maintenance.RosterSnapshot, error) {
	table, ok := rosterTables[t]
	if !ok {
		return maintenance.RosterSnapshot{}, fmt.Errorf("%w: %q", maintenance.ErrUnknownMaintenanceType, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.saveRosterTx(ctx, s.db, table, t, records)
	return snap, maintenance.NewStoreError("save roster", err)
}

func (s *Store) saveRosterTx(ctx context.Context, db querier, table string, t maintenance.MaintenanceType, records []maintenance.RosterRecord) (maintenance.RosterSnapshot, error) {
	if records == nil {
		records = []maintenance.RosterRecord{}
	}
	id, at, err := s.insertSnapshot(ctx, db, table, len(records), records)
	if err != nil {
		return maintenance.RosterSnapshot{}, err
	}
	return maintenance.RosterSnapshot{ID: id, Type: t, UploadedAt: at, Records: records}, nil
}

func (s *Store) LatestRoster(ctx context.Context, t maintenance.MaintenanceType) (*maintenance.RosterSnapshot, error) {
	table, ok := rosterTables[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", maintenance.ErrUnknownMaintenanceType, t)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, err := s.latestRosterTx(ctx, s.db, table, t)
	return snap, maintenance.NewStoreError("load roster", err)
}

func (s *Store) latestRosterTx(ctx context.Context, db querier, table string, t maintenance.MaintenanceType) (*maintenance.RosterSnapshot, error) {
	snap := maintenance.RosterSnapshot{Type: t}
	found, err := latestSnapshot(ctx, db, table, &snap.ID, &snap.UploadedAt, &snap.Records)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) SaveEquipmentSnapshot(ctx context.Context, records []maintenance.EquipmentRecord) (maintenance.EquipmentSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.saveEquipmentTx(ctx, s.db, records)
	return snap, maintenance.NewStoreError("save equipment", err)
}

func (s *Store) saveEquipmentTx(ctx context.Context, db querier, records []maintenance.EquipmentRecord) (maintenance.EquipmentSnapshot, error) {
	if records == nil {
		records = []maintenance.EquipmentRecord{}
	}
	id, at, err := s.insertSnapshot(ctx, db, "equipment_master", len(records), records)
	if err != nil {
		return maintenance.EquipmentSnapshot{}, err
	}
	return maintenance.EquipmentSnapshot{ID: id, UploadedAt: at, Records: records}, nil
}

func (s *Store) LatestEquipment(ctx context.Context) (*maintenance.EquipmentSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, err := latestEquipmentTx(ctx, s.db)
	return snap, maintenance.NewStoreError("load equipment", err)
}

func latestEquipmentTx(ctx context.Context, db querier) (*maintenance.EquipmentSnapshot, error) {
	var snap maintenance.EquipmentSnapshot
	found, err := latestSnapshot(ctx, db, "equipment_master", &snap.ID, &snap.UploadedAt, &snap.Records)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) insertSnapshot(ctx context.Context, db querier, table string, count int, records any) (string, time.Time, error) {
	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to encode records: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()

	query := s.d.rebind("INSERT INTO " + table + " (id, uploaded_at, record_count, records_json) VALUES (?, ?, ?, ?)")
	if _, err := db.ExecContext(ctx, query, id.String(), now.UnixNano(), count, string(recordsJSON)); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return id.String(), now, nil
}

func latestSnapshot(ctx context.Context, db querier, table string, id *string, at *time.Time, records any) (bool, error) {
	var (
		uploadedAt  int64
		recordsJSON string
	)
	query := "SELECT id, uploaded_at, records_json FROM " + table + " ORDER BY uploaded_at DESC, id DESC LIMIT 1"
	err := db.QueryRowContext(ctx, query).Scan(id, &uploadedAt, &recordsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(recordsJSON), records); err != nil {
		return false, fmt.Errorf("failed to decode snapshot %s: %w", *id, err)
	}
	*at = time.Unix(0, uploadedAt).UTC()
	return true, nil
}

// =============================================================================
// COMPLETIONS (maintenance.CompletionStore)
// =============================================================================

const eventColumns = `id, equipment_id, maintenance_type, technician, client, report_date, recorded_at, source, attributions_json`

// Insert persists a completion event.
func (s *Store) Insert(ctx context.Context, ev maintenance.CompletionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maintenance.NewStoreError("insert completion", s.insertTx(ctx, s.db, ev))
}

func (s *Store) insertTx(ctx context.Context, db querier, ev maintenance.CompletionEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	attributionsJSON, err := json.Marshal(ev.Attributions)
	if err != nil {
		return fmt.Errorf("failed to encode attributions: %w", err)
	}

	query := s.d.insertIgnore + " INTO completion_events (" + eventColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)" + s.d.onConflict
	res, err := db.ExecContext(ctx, s.d.rebind(query),
		ev.ID,
		string(ev.EquipmentID),
		string(ev.MaintenanceType),
		nullString(ev.Technician),
		nullString(ev.Client),
		ev.ReportDate.Format("2006-01-02"),
		ev.RecordedAt.UnixNano(),
		string(ev.Source),
		string(attributionsJSON),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return maintenance.ErrDuplicateCompletion
		}
		return fmt.Errorf("failed to insert completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert completion: %w", err)
	}
	if n == 0 {
		return maintenance.ErrDuplicateCompletion
	}
	return nil
}

// Exists checks for an event; AnyMaintenanceType matches every type.
func (s *Store) Exists(ctx context.Context, id maintenance.EquipmentID, t maintenance.MaintenanceType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok, err := s.existsTx(ctx, s.db, id, t)
	return ok, maintenance.NewStoreError("check completion", err)
}

func (s *Store) existsTx(ctx context.Context, db querier, id maintenance.EquipmentID, t maintenance.MaintenanceType) (bool, error) {
	query := "SELECT COUNT(*) FROM completion_events WHERE equipment_id = ?"
	args := []any{string(id)}
	if t != maintenance.AnyMaintenanceType {
		query += " AND maintenance_type = ?"
		args = append(args, string(t))
	}
	var count int
	if err := db.QueryRowContext(ctx, s.d.rebind(query), args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return count > 0, nil
}

// CompletedIDs returns every equipment with an event of type t.
func (s *Store) CompletedIDs(ctx context.Context, t maintenance.MaintenanceType) (map[maintenance.EquipmentID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, err := s.completedIDsTx(ctx, s.db, t)
	return ids, maintenance.NewStoreError("list completions", err)
}

func (s *Store) completedIDsTx(ctx context.Context, db querier, t maintenance.MaintenanceType) (map[maintenance.EquipmentID]bool, error) {
	query := "SELECT DISTINCT equipment_id FROM completion_events"
	var args []any
	if t != maintenance.AnyMaintenanceType {
		query += " WHERE maintenance_type = ?"
		args = append(args, string(t))
	}
	rows, err := db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	ids := make(map[maintenance.EquipmentID]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		ids[maintenance.EquipmentID(id)] = true
	}
	return ids, rows.Err()
}

// Events lists events of type t in recording order.
func (s *Store) Events(ctx context.Context, t maintenance.MaintenanceType) ([]maintenance.CompletionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs, err := s.eventsTx(ctx, s.db, t)
	return evs, maintenance.NewStoreError("list events", err)
}

func (s *Store) eventsTx(ctx context.Context, db querier, t maintenance.MaintenanceType) ([]maintenance.CompletionEvent, error) {
	query := "SELECT " + eventColumns + " FROM completion_events"
	var args []any
	if t != maintenance.AnyMaintenanceType {
		query += " WHERE maintenance_type = ?"
		args = append(args, string(t))
	}
	query += " ORDER BY recorded_at ASC, id ASC"

	rows, err := db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []maintenance.CompletionEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (maintenance.CompletionEvent, error) {
	var (
		ev               maintenance.CompletionEvent
		equipmentID      string
		maintenanceType  string
		technician       sql.NullString
		client           sql.NullString
		reportDate       string
		recordedAt       int64
		source           string
		attributionsJSON sql.NullString
	)
	err := rows.Scan(&ev.ID, &equipmentID, &maintenanceType, &technician, &client,
		&reportDate, &recordedAt, &source, &attributionsJSON)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event: %w", err)
	}

	ev.EquipmentID = maintenance.EquipmentID(equipmentID)
	ev.MaintenanceType = maintenance.MaintenanceType(maintenanceType)
	ev.Technician = technician.String
	ev.Client = client.String
	ev.ReportDate, _ = time.Parse("2006-01-02", reportDate)
	ev.RecordedAt = time.Unix(0, recordedAt).UTC()
	ev.Source = maintenance.EventSource(source)
	if attributionsJSON.Valid && attributionsJSON.String != "" {
		if err := json.Unmarshal([]byte(attributionsJSON.String), &ev.Attributions); err != nil {
			return ev, fmt.Errorf("failed to decode attributions of %s: %w", ev.ID, err)
		}
	}
	return ev, nil
}

// DeleteAll removes every completion event.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := deleteAllTx(ctx, s.db)
	return n, maintenance.NewStoreError("delete completions", err)
}

func deleteAllTx(ctx context.Context, db querier) (int, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM completion_events")
	if err != nil {
		return 0, fmt.Errorf("failed to delete completions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// =============================================================================
// TRANSACTIONAL STORE (maintenance.TxCompletionStore)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(maintenance.CompletionStore) error) error {
	return s.inTx(ctx, func(ts *txStore) error { return fn(ts) })
}

// WithCycleTx executes fn within a database transaction that also covers
// snapshot saves and the marker.
func (s *Store) WithCycleTx(ctx context.Context, fn func(maintenance.CycleStore) error) error {
	return s.inTx(ctx, func(ts *txStore) error { return fn(&cycleTxStore{ts}) })
}

func (s *Store) inTx(ctx context.Context, fn func(*txStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return maintenance.NewStoreError("begin", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return maintenance.NewStoreError("commit", sqlTx.Commit())
}

// txStore routes every call through the open transaction. It must not touch
// the parent's mutex, which WithTx holds.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Insert(ctx context.Context, ev maintenance.CompletionEvent) error {
	return ts.parent.insertTx(ctx, ts.tx, ev)
}

func (ts *txStore) Exists(ctx context.Context, id maintenance.EquipmentID, t maintenance.MaintenanceType) (bool, error) {
	return ts.parent.existsTx(ctx, ts.tx, id, t)
}

func (ts *txStore) CompletedIDs(ctx context.Context, t maintenance.MaintenanceType) (map[maintenance.EquipmentID]bool, error) {
	return ts.parent.completedIDsTx(ctx, ts.tx, t)
}

func (ts *txStore) Events(ctx context.Context, t maintenance.MaintenanceType) ([]maintenance.CompletionEvent, error) {
	return ts.parent.eventsTx(ctx, ts.tx, t)
}

func (ts *txStore) DeleteAll(ctx context.Context) (int, error) {
	return deleteAllTx(ctx, ts.tx)
}

// cycleTxStore adds snapshot and marker access to txStore.
type cycleTxStore struct {
	*txStore
}

func (cs *cycleTxStore) SaveRosterSnapshot(ctx context.Context, t maintenance.MaintenanceType, records []maintenance.RosterRecord) (maintenance.RosterSnapshot, error) {
	table, ok := rosterTables[t]
	if !ok {
		return maintenance.RosterSnapshot{}, fmt.Errorf("%w: %q", maintenance.ErrUnknownMaintenanceType, t)
	}
	return cs.parent.saveRosterTx(ctx, cs.tx, table, t, records)
}

func (cs *cycleTxStore) LatestRoster(ctx context.Context, t maintenance.MaintenanceType) (*maintenance.RosterSnapshot, error) {
	table, ok := rosterTables[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", maintenance.ErrUnknownMaintenanceType, t)
	}
	return cs.parent.latestRosterTx(ctx, cs.tx, table, t)
}

func (cs *cycleTxStore) SaveEquipmentSnapshot(ctx context.Context, records []maintenance.EquipmentRecord) (maintenance.EquipmentSnapshot, error) {
	return cs.parent.saveEquipmentTx(ctx, cs.tx, records)
}

func (cs *cycleTxStore) LatestEquipment(ctx context.Context) (*maintenance.EquipmentSnapshot, error) {
	return latestEquipmentTx(ctx, cs.tx)
}

func (cs *cycleTxStore) SaveLastUpdate(ctx context.Context, m maintenance.LastUpdateMarker) error {
	return cs.parent.saveLastUpdateTx(ctx, cs.tx, m)
}

func (cs *cycleTxStore) LastUpdate(ctx context.Context) (*maintenance.LastUpdateMarker, error) {
	return lastUpdateTx(ctx, cs.tx)
}

// =============================================================================
// MARKER (maintenance.MarkerStore)
// =============================================================================

// SaveLastUpdate replaces the single marker row.
func (s *Store) SaveLastUpdate(ctx context.Context, m maintenance.LastUpdateMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return maintenance.NewStoreError("begin", err)
	}
	defer tx.Rollback()

	if err := s.saveLastUpdateTx(ctx, tx, m); err != nil {
		return maintenance.NewStoreError("save last update", err)
	}
	return maintenance.NewStoreError("commit", tx.Commit())
}

func (s *Store) saveLastUpdateTx(ctx context.Context, db querier, m maintenance.LastUpdateMarker) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM last_update"); err != nil {
		return fmt.Errorf("failed to clear marker: %w", err)
	}
	query := s.d.rebind("INSERT INTO last_update (id, stamp, timezone) VALUES (1, ?, ?)")
	if _, err := db.ExecContext(ctx, query, m.Timestamp, m.Timezone); err != nil {
		return fmt.Errorf("failed to insert marker: %w", err)
	}
	return nil
}

// LastUpdate returns nil when no marker was ever saved.
func (s *Store) LastUpdate(ctx context.Context) (*maintenance.LastUpdateMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := lastUpdateTx(ctx, s.db)
	return m, maintenance.NewStoreError("load last update", err)
}

func lastUpdateTx(ctx context.Context, db querier) (*maintenance.LastUpdateMarker, error) {
	var m maintenance.LastUpdateMarker
	err := db.QueryRowContext(ctx, "SELECT stamp, timezone FROM last_update WHERE id = 1").Scan(&m.Timestamp, &m.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query marker: %w", err)
	}
	return &m, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"completion_events", "last_update", "equipment_master", "roster_monthly", "roster_semiannual", "roster_corrective"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return maintenance.NewStoreError("reset", err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "Duplicate entry")
}
