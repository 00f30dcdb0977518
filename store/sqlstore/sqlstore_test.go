package sqlstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/maintenance-engine/maintenance"
	"github.com/warp/maintenance-engine/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlstore.Store {
	store, err := sqlstore.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func event(id string, mt maintenance.MaintenanceType, tech, client string) maintenance.CompletionEvent {
	return maintenance.CompletionEvent{
		EquipmentID:     maintenance.EquipmentID(id),
		MaintenanceType: mt,
		Technician:      tech,
		Client:          client,
		ReportDate:      time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		RecordedAt:      time.Now(),
		Source:          maintenance.SourceRoster,
		Attributions:    []maintenance.Attribution{{Technician: tech, Client: client}},
	}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestStore_LatestRoster_NoneLoaded(t *testing.T) {
	store := newTestStore(t)

	snap, err := store.LatestRoster(context.Background(), maintenance.Monthly)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStore_LatestRoster_NewestSnapshotWins(t *testing.T) {
	// GIVEN: Two monthly uploads
	// WHEN: Reading the active roster
	// THEN: Only the second upload is visible, and other types are untouched
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveRosterSnapshot(ctx, maintenance.Monthly, []maintenance.RosterRecord{
		{Technician: "Ana", EquipmentID: "A1", Client: "X", MaintenanceType: maintenance.Monthly},
	})
	require.NoError(t, err)
	second, err := store.SaveRosterSnapshot(ctx, maintenance.Monthly, []maintenance.RosterRecord{
		{Technician: "Bia", EquipmentID: "B1", Client: "Y", MaintenanceType: maintenance.Monthly},
		{Technician: "Bia", EquipmentID: "B2", Client: "Y", MaintenanceType: maintenance.Monthly},
	})
	require.NoError(t, err)

	snap, err := store.LatestRoster(ctx, maintenance.Monthly)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, second.ID, snap.ID)
	assert.Len(t, snap.Records, 2)
	assert.Equal(t, maintenance.EquipmentID("B1"), snap.Records[0].EquipmentID)

	other, err := store.LatestRoster(ctx, maintenance.Semiannual)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestStore_SaveRosterSnapshot_UnknownType(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveRosterSnapshot(context.Background(), maintenance.MaintenanceType("weekly"), nil)
	assert.ErrorIs(t, err, maintenance.ErrUnknownMaintenanceType)
}

func TestStore_EquipmentSnapshot_RoundTripsAttributes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	none, err := store.LatestEquipment(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = store.SaveEquipmentSnapshot(ctx, []maintenance.EquipmentRecord{
		{EquipmentID: "A1", Client: "X", Attributes: map[string]string{"Modelo": "Split 12k", "Local": "Sala 2"}},
	})
	require.NoError(t, err)

	snap, err := store.LatestEquipment(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "Split 12k", snap.Records[0].Attributes["Modelo"])
	assert.False(t, snap.UploadedAt.IsZero())
}

// =============================================================================
// COMPLETIONS
// =============================================================================

func TestStore_Insert_DuplicatePairRejected(t *testing.T) {
	// GIVEN: A1 already completed for monthly
	// WHEN: Inserting a second monthly event for A1
	// THEN: ErrDuplicateCompletion; a semiannual event for A1 is still allowed
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, event("A1", maintenance.Monthly, "Ana", "X")))

	err := store.Insert(ctx, event("A1", maintenance.Monthly, "Bia", "Y"))
	assert.ErrorIs(t, err, maintenance.ErrDuplicateCompletion)
	assert.False(t, maintenance.IsUnavailable(err))

	assert.NoError(t, store.Insert(ctx, event("A1", maintenance.Semiannual, "Ana", "X")))
}

func TestStore_Exists_ByTypeAndAny(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, event("A1", maintenance.Corrective, "Ana", "X")))

	ok, err := store.Exists(ctx, "A1", maintenance.Corrective)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "A1", maintenance.Monthly)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Exists(ctx, "A1", maintenance.AnyMaintenanceType)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_Events_RoundTripsAttributions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := event("A1", maintenance.Monthly, "Ana", "X")
	ev.Attributions = append(ev.Attributions, maintenance.Attribution{Technician: "Bia", Client: "X"})
	require.NoError(t, store.Insert(ctx, ev))

	events, err := store.Events(ctx, maintenance.Monthly)
	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Ana", got.Technician)
	assert.Equal(t, "2025-03-10", got.ReportDate.Format("2006-01-02"))
	assert.Equal(t, maintenance.SourceRoster, got.Source)
	assert.Equal(t, ev.Attributions, got.Attributions)

	ids, err := store.CompletedIDs(ctx, maintenance.Monthly)
	require.NoError(t, err)
	assert.Equal(t, map[maintenance.EquipmentID]bool{"A1": true}, ids)
}

func TestStore_DeleteAll_ClearsEveryType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, event("A1", maintenance.Monthly, "Ana", "X")))
	require.NoError(t, store.Insert(ctx, event("A2", maintenance.Corrective, "Ana", "X")))

	n, err := store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	events, err := store.Events(ctx, maintenance.AnyMaintenanceType)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts then fails
	// WHEN: WithTx returns the error
	// THEN: The insert is not visible
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx maintenance.CompletionStore) error {
		if err := tx.Insert(ctx, event("A1", maintenance.Monthly, "Ana", "X")); err != nil {
			return err
		}
		ok, err := tx.Exists(ctx, "A1", maintenance.Monthly)
		require.NoError(t, err)
		assert.True(t, ok, "insert is visible inside the transaction")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ok, err := store.Exists(ctx, "A1", maintenance.Monthly)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_WithTx_DuplicateDoesNotAbortTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, event("A1", maintenance.Monthly, "Ana", "X")))

	err := store.WithTx(ctx, func(tx maintenance.CompletionStore) error {
		err := tx.Insert(ctx, event("A1", maintenance.Monthly, "Ana", "X"))
		assert.ErrorIs(t, err, maintenance.ErrDuplicateCompletion)
		return tx.Insert(ctx, event("A2", maintenance.Monthly, "Ana", "X"))
	})
	require.NoError(t, err)

	ids, err := store.CompletedIDs(ctx, maintenance.Monthly)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestStore_WithCycleTx_RollsBackSnapshotsAndMarker(t *testing.T) {
	// GIVEN: A committed cycle with one event, a roster and a marker
	// WHEN: A cycle transaction replaces all of them and then fails
	// THEN: Every write is rolled back together
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, event("A1", maintenance.Monthly, "Ana", "X")))
	roster, err := store.SaveRosterSnapshot(ctx, maintenance.Monthly, []maintenance.RosterRecord{{EquipmentID: "A1"}})
	require.NoError(t, err)
	require.NoError(t, store.SaveLastUpdate(ctx, maintenance.LastUpdateMarker{Timestamp: "01/03/2025 08:00:00"}))
	boom := errors.New("boom")

	err = store.WithCycleTx(ctx, func(tx maintenance.CycleStore) error {
		n, err := tx.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = tx.SaveRosterSnapshot(ctx, maintenance.Monthly, nil)
		require.NoError(t, err)
		latest, err := tx.LatestRoster(ctx, maintenance.Monthly)
		require.NoError(t, err)
		assert.NotEqual(t, roster.ID, latest.ID, "new roster is visible inside the transaction")
		require.NoError(t, tx.SaveLastUpdate(ctx, maintenance.LastUpdateMarker{Timestamp: "02/03/2025 09:30:00"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ok, err := store.Exists(ctx, "A1", maintenance.Monthly)
	require.NoError(t, err)
	assert.True(t, ok)
	latest, err := store.LatestRoster(ctx, maintenance.Monthly)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, roster.ID, latest.ID)
	m, err := store.LastUpdate(ctx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "01/03/2025 08:00:00", m.Timestamp)
}

// =============================================================================
// MARKER
// =============================================================================

func TestStore_LastUpdate_KeepsOnlyLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m, err := store.LastUpdate(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, store.SaveLastUpdate(ctx, maintenance.LastUpdateMarker{Timestamp: "01/03/2025 08:00:00", Timezone: "America/Sao_Paulo"}))
	require.NoError(t, store.SaveLastUpdate(ctx, maintenance.LastUpdateMarker{Timestamp: "02/03/2025 09:30:00", Timezone: "America/Sao_Paulo"}))

	m, err = store.LastUpdate(ctx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "02/03/2025 09:30:00", m.Timestamp)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := sqlstore.Open("oracle", "whatever")
	assert.Error(t, err)
}

func TestStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, event("A1", maintenance.Monthly, "Ana", "X")))
	_, err := store.SaveEquipmentSnapshot(ctx, nil)
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	snap, err := store.LatestEquipment(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)
}
