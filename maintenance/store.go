/*
store.go - Persistence interfaces for snapshots, completions and the marker

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  never sees SQL; it sees these interfaces.

KEY INTERFACES:
  RosterStore:       Roster and equipment master snapshots (append-only,
                     latest wins)
  CompletionStore:   Completion events, unique per (equipment, type)
  TxCompletionStore: Runs a batch of completion writes atomically
  MarkerStore:       The single-row "last update" marker
  CycleStore:        Everything a cycle start writes, inside one
                     transaction (Store.WithCycleTx)

UNIQUENESS:
  Implementations MUST reject a second event for the same
  (EquipmentID, MaintenanceType) with ErrDuplicateCompletion. The ledger
  checks first, but the constraint is what makes concurrent writers safe.

IMPLEMENTATIONS:
  - store/sqlstore: sqlite3 / postgres / mysql via database/sql
  - maintenance/store: in-memory, for tests and dev

SEE ALSO:
  - ledger.go: Higher-level operations on CompletionStore
*/
package maintenance

import "context"

// =============================================================================
// SNAPSHOTS
// =============================================================================

// RosterStore persists roster and master snapshots. Saving never merges with
// an earlier snapshot; reads return the most recent one.
type RosterStore interface {
	// SaveRosterSnapshot stores records as a new snapshot for t.
	SaveRosterSnapshot(ctx context.Context, t MaintenanceType, records []RosterRecord) (RosterSnapshot, error)

	// LatestRoster returns the newest snapshot for t, or nil if none exists.
	LatestRoster(ctx context.Context, t MaintenanceType) (*RosterSnapshot, error)

	// SaveEquipmentSnapshot stores a new master list.
	SaveEquipmentSnapshot(ctx context.Context, records []EquipmentRecord) (EquipmentSnapshot, error)

	// LatestEquipment returns the newest master list, or nil if none exists.
	LatestEquipment(ctx context.Context) (*EquipmentSnapshot, error)
}

// =============================================================================
// COMPLETIONS
// =============================================================================

// CompletionStore persists completion events.
type CompletionStore interface {
	// Insert persists an event. Returns ErrDuplicateCompletion if one already
	// exists for (EquipmentID, MaintenanceType).
	Insert(ctx context.Context, ev CompletionEvent) error

	// Exists checks for an event. AnyMaintenanceType matches every type.
	Exists(ctx context.Context, id EquipmentID, t MaintenanceType) (bool, error)

	// CompletedIDs returns the set of equipment with an event of type t.
	CompletedIDs(ctx context.Context, t MaintenanceType) (map[EquipmentID]bool, error)

	// Events lists the events of type t ordered by recording time.
	// AnyMaintenanceType lists every event.
	Events(ctx context.Context, t MaintenanceType) ([]CompletionEvent, error)

	// DeleteAll removes every event and returns how many were removed.
	DeleteAll(ctx context.Context) (int, error)
}

// TxCompletionStore wraps CompletionStore with transaction support.
type TxCompletionStore interface {
	CompletionStore

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the argument is rolled back.
	WithTx(ctx context.Context, fn func(CompletionStore) error) error
}

// =============================================================================
// MARKER
// =============================================================================

// MarkerStore keeps only the most recent LastUpdateMarker.
type MarkerStore interface {
	SaveLastUpdate(ctx context.Context, m LastUpdateMarker) error

	// LastUpdate returns nil if no update was ever recorded.
	LastUpdate(ctx context.Context) (*LastUpdateMarker, error)
}

// =============================================================================
// CYCLE TRANSACTION
// =============================================================================

// CycleStore is the view handed to WithCycleTx. Snapshot saves, completion
// deletes and the marker all commit or roll back together.
type CycleStore interface {
	RosterStore
	CompletionStore
	MarkerStore
}

// Store is everything the tracker needs from one backend.
type Store interface {
	RosterStore
	TxCompletionStore
	MarkerStore

	// WithCycleTx executes fn within one transaction spanning snapshots,
	// completions and the marker. If fn returns error, nothing it wrote
	// is kept.
	WithCycleTx(ctx context.Context, fn func(CycleStore) error) error
}
