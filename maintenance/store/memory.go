// Package store provides an in-memory implementation of the maintenance
// store interfaces.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/maintenance-engine/maintenance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	rosters     map[maintenance.MaintenanceType][]maintenance.RosterSnapshot
	equipment   []maintenance.EquipmentSnapshot
	completions map[key]maintenance.CompletionEvent
	order       []key // insertion order of completions
	marker      *maintenance.LastUpdateMarker
	now         func() time.Time
}

type key struct {
	ID   maintenance.EquipmentID
	Type maintenance.MaintenanceType
}

var _ maintenance.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		rosters:     make(map[maintenance.MaintenanceType][]maintenance.RosterSnapshot),
		completions: make(map[key]maintenance.CompletionEvent),
		now:         time.Now,
	}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (m *Memory) SaveRosterSnapshot(_ context.Context, t maintenance.MaintenanceType, records []maintenance.RosterRecord) (maintenance.RosterSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRosterLocked(t, records)
}

func (m *Memory) saveRosterLocked(t maintenance.MaintenanceType, records []maintenance.RosterRecord) (maintenance.RosterSnapshot, error) {
	if !t.Valid() {
		return maintenance.RosterSnapshot{}, fmt.Errorf("%w: %q", maintenance.ErrUnknownMaintenanceType, t)
	}
	snap := maintenance.RosterSnapshot{
		ID:         uuid.NewString(),
		Type:       t,
		UploadedAt: m.now(),
		Records:    append([]maintenance.RosterRecord(nil), records...),
	}
	m.rosters[t] = append(m.rosters[t], snap)
	return snap, nil
}

func (m *Memory) LatestRoster(_ context.Context, t maintenance.MaintenanceType) (*maintenance.RosterSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestRosterLocked(t), nil
}

func (m *Memory) latestRosterLocked(t maintenance.MaintenanceType) *maintenance.RosterSnapshot {
	snaps := m.rosters[t]
	if len(snaps) == 0 {
		return nil
	}
	latest := snaps[len(snaps)-1]
	latest.Records = append([]maintenance.RosterRecord(nil), latest.Records...)
	return &latest
}

func (m *Memory) SaveEquipmentSnapshot(_ context.Context, records []maintenance.EquipmentRecord) (maintenance.EquipmentSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveEquipmentLocked(records), nil
}

func (m *Memory) saveEquipmentLocked(records []maintenance.EquipmentRecord) maintenance.EquipmentSnapshot {
	snap := maintenance.EquipmentSnapshot{
		ID:         uuid.NewString(),
		UploadedAt: m.now(),
		Records:    append([]maintenance.EquipmentRecord(nil), records...),
	}
	m.equipment = append(m.equipment, snap)
	return snap
}

func (m *Memory) LatestEquipment(_ context.Context) (*maintenance.EquipmentSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestEquipmentLocked(), nil
}

func (m *Memory) latestEquipmentLocked() *maintenance.EquipmentSnapshot {
	if len(m.equipment) == 0 {
		return nil
	}
	latest := m.equipment[len(m.equipment)-1]
	latest.Records = append([]maintenance.EquipmentRecord(nil), latest.Records...)
	return &latest
}

// =============================================================================
// COMPLETIONS
// =============================================================================

// Insert adds a single event, rejecting a second one for the same pair.
func (m *Memory) Insert(_ context.Context, ev maintenance.CompletionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(ev)
}

func (m *Memory) insertLocked(ev maintenance.CompletionEvent) error {
	k := key{ID: ev.EquipmentID, Type: ev.MaintenanceType}
	if _, exists := m.completions[k]; exists {
		return maintenance.ErrDuplicateCompletion
	}
	ev.Attributions = append([]maintenance.Attribution(nil), ev.Attributions...)
	m.completions[k] = ev
	m.order = append(m.order, k)
	return nil
}

func (m *Memory) Exists(_ context.Context, id maintenance.EquipmentID, t maintenance.MaintenanceType) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.existsLocked(id, t), nil
}

func (m *Memory) existsLocked(id maintenance.EquipmentID, t maintenance.MaintenanceType) bool {
	if t != maintenance.AnyMaintenanceType {
		_, ok := m.completions[key{ID: id, Type: t}]
		return ok
	}
	for _, mt := range maintenance.MaintenanceTypes {
		if _, ok := m.completions[key{ID: id, Type: mt}]; ok {
			return true
		}
	}
	return false
}

func (m *Memory) CompletedIDs(_ context.Context, t maintenance.MaintenanceType) (map[maintenance.EquipmentID]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make(map[maintenance.EquipmentID]bool)
	for k := range m.completions {
		if t == maintenance.AnyMaintenanceType || k.Type == t {
			ids[k.ID] = true
		}
	}
	return ids, nil
}

func (m *Memory) Events(_ context.Context, t maintenance.MaintenanceType) ([]maintenance.CompletionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsLocked(t), nil
}

func (m *Memory) eventsLocked(t maintenance.MaintenanceType) []maintenance.CompletionEvent {
	var result []maintenance.CompletionEvent
	for _, k := range m.order {
		if t == maintenance.AnyMaintenanceType || k.Type == t {
			result = append(result, m.completions[k])
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt.Before(result[j].RecordedAt)
	})
	return result
}

func (m *Memory) DeleteAll(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.completions)
	m.completions = make(map[key]maintenance.CompletionEvent)
	m.order = nil
	return n, nil
}

// =============================================================================
// MARKER
// =============================================================================

func (m *Memory) SaveLastUpdate(_ context.Context, marker maintenance.LastUpdateMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marker = &marker
	return nil
}

func (m *Memory) LastUpdate(_ context.Context) (*maintenance.LastUpdateMarker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdateLocked(), nil
}

func (m *Memory) lastUpdateLocked() *maintenance.LastUpdateMarker {
	if m.marker == nil {
		return nil
	}
	out := *m.marker
	return &out
}

// Ping always succeeds.
func (m *Memory) Ping(_ context.Context) error { return nil }

// Reset drops every snapshot, event and the marker.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosters = make(map[maintenance.MaintenanceType][]maintenance.RosterSnapshot)
	m.equipment = nil
	m.completions = make(map[key]maintenance.CompletionEvent)
	m.order = nil
	m.marker = nil
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(maintenance.CompletionStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txMemoryView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// WithCycleTx executes fn with snapshots, completions and the marker all
// restored if it fails.
func (m *Memory) WithCycleTx(_ context.Context, fn func(maintenance.CycleStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&cycleMemoryView{txMemoryView{parent: m}}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	completions map[key]maintenance.CompletionEvent
	order       []key
	rosters     map[maintenance.MaintenanceType][]maintenance.RosterSnapshot
	equipment   []maintenance.EquipmentSnapshot
	marker      *maintenance.LastUpdateMarker
}

// snapshot copies every container. Snapshot slices are only ever appended
// to, so keeping their headers is enough to undo an append.
func (m *Memory) snapshot() memorySnapshot {
	cp := make(map[key]maintenance.CompletionEvent, len(m.completions))
	for k, v := range m.completions {
		cp[k] = v
	}
	rosters := make(map[maintenance.MaintenanceType][]maintenance.RosterSnapshot, len(m.rosters))
	for t, snaps := range m.rosters {
		rosters[t] = snaps
	}
	return memorySnapshot{
		completions: cp,
		order:       append([]key(nil), m.order...),
		rosters:     rosters,
		equipment:   m.equipment,
		marker:      m.marker,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.completions = s.completions
	m.order = s.order
	m.rosters = s.rosters
	m.equipment = s.equipment
	m.marker = s.marker
}

// txMemoryView runs against the parent while WithTx holds its lock.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) Insert(_ context.Context, ev maintenance.CompletionEvent) error {
	return tv.parent.insertLocked(ev)
}

func (tv *txMemoryView) Exists(_ context.Context, id maintenance.EquipmentID, t maintenance.MaintenanceType) (bool, error) {
	return tv.parent.existsLocked(id, t), nil
}

func (tv *txMemoryView) CompletedIDs(_ context.Context, t maintenance.MaintenanceType) (map[maintenance.EquipmentID]bool, error) {
	ids := make(map[maintenance.EquipmentID]bool)
	for k := range tv.parent.completions {
		if t == maintenance.AnyMaintenanceType || k.Type == t {
			ids[k.ID] = true
		}
	}
	return ids, nil
}

func (tv *txMemoryView) Events(_ context.Context, t maintenance.MaintenanceType) ([]maintenance.CompletionEvent, error) {
	return tv.parent.eventsLocked(t), nil
}

func (tv *txMemoryView) DeleteAll(_ context.Context) (int, error) {
	n := len(tv.parent.completions)
	tv.parent.completions = make(map[key]maintenance.CompletionEvent)
	tv.parent.order = nil
	return n, nil
}

// cycleMemoryView adds snapshot and marker writes to the tx view.
type cycleMemoryView struct {
	txMemoryView
}

func (cv *cycleMemoryView) SaveRosterSnapshot(_ context.Context, t maintenance.MaintenanceType, records []maintenance.RosterRecord) (maintenance.RosterSnapshot, error) {
	return cv.parent.saveRosterLocked(t, records)
}

func (cv *cycleMemoryView) LatestRoster(_ context.Context, t maintenance.MaintenanceType) (*maintenance.RosterSnapshot, error) {
	return cv.parent.latestRosterLocked(t), nil
}

func (cv *cycleMemoryView) SaveEquipmentSnapshot(_ context.Context, records []maintenance.EquipmentRecord) (maintenance.EquipmentSnapshot, error) {
	return cv.parent.saveEquipmentLocked(records), nil
}

func (cv *cycleMemoryView) LatestEquipment(_ context.Context) (*maintenance.EquipmentSnapshot, error) {
	return cv.parent.latestEquipmentLocked(), nil
}

func (cv *cycleMemoryView) SaveLastUpdate(_ context.Context, marker maintenance.LastUpdateMarker) error {
	cv.parent.marker = &marker
	return nil
}

func (cv *cycleMemoryView) LastUpdate(_ context.Context) (*maintenance.LastUpdateMarker, error) {
	return cv.parent.lastUpdateLocked(), nil
}
