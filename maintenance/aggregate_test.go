package maintenance_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/maintenance-engine/maintenance"
)

func TestSummarize_ByTechnician(t *testing.T) {
	// GIVEN: Ana has 3 rows (2 done), Bia has 1 row (0 done)
	// WHEN: Summarizing by technician
	// THEN: Counts and percentages per technician, sorted by name
	rows := maintenance.Merge(roster(maintenance.Monthly,
		[3]string{"Bia", "B1", "Y"},
		[3]string{"Ana", "A1", "X"},
		[3]string{"Ana", "A2", "X"},
		[3]string{"Ana", "A3", "Z"},
	), nil)
	done := map[maintenance.EquipmentID]bool{"A1": true, "A3": true}
	maintenance.MarkCompletion(rows, func(id maintenance.EquipmentID) bool { return done[id] })

	s := maintenance.Summarize(rows, maintenance.RowCompleted, maintenance.ByTechnician)

	require.Len(t, s.Groups, 2)
	ana, bia := s.Groups[0], s.Groups[1]
	assert.Equal(t, "Ana", ana.Value)
	assert.Equal(t, 3, ana.Total)
	assert.Equal(t, 2, ana.Completed)
	assert.Equal(t, 1, ana.Pending)
	assert.True(t, decimal.RequireFromString("66.67").Equal(ana.Percent), ana.Percent.String())
	assert.Equal(t, "Bia", bia.Value)
	assert.True(t, bia.Percent.IsZero())

	assert.Equal(t, 4, s.Totals.Total)
	assert.Equal(t, 2, s.Totals.Completed)
	assert.True(t, decimal.NewFromInt(50).Equal(s.Totals.Percent))
}

func TestSummarize_ByClient_CountsPerRow(t *testing.T) {
	// The same identifier listed twice counts twice; completion is per
	// identifier, so both rows flip together.
	rows := maintenance.Merge(roster(maintenance.Monthly,
		[3]string{"Ana", "A1", "X"},
		[3]string{"Bia", "A1", "X"},
	), nil)
	maintenance.MarkCompletion(rows, func(maintenance.EquipmentID) bool { return true })

	s := maintenance.Summarize(rows, maintenance.RowCompleted, maintenance.ByClient)

	require.Len(t, s.Groups, 1)
	assert.Equal(t, "X", s.Groups[0].Value)
	assert.Equal(t, 2, s.Groups[0].Total)
	assert.Equal(t, 2, s.Groups[0].Completed)
}

func TestSummarize_Empty(t *testing.T) {
	s := maintenance.Summarize(nil, maintenance.RowCompleted, maintenance.ByClient)
	assert.Empty(t, s.Groups)
	assert.Equal(t, 0, s.Totals.Total)
	assert.True(t, s.Totals.Percent.IsZero())
}

func TestSummarize_UsesLedgerPredicate(t *testing.T) {
	// GIVEN: Rows never decorated, and a ledger with one completion
	// WHEN: Summarizing with a predicate backed by the ledger
	// THEN: The ledger decides completion
	ledger, mem := newTestLedger(t)
	loadRoster(t, mem, maintenance.Monthly, [3]string{"Ana", "A1", "X"}, [3]string{"Ana", "A2", "X"})
	ctx := context.Background()
	_, err := ledger.RecordCompletion(ctx, maintenance.Monthly, report("A2"))
	require.NoError(t, err)

	snap, err := mem.LatestRoster(ctx, maintenance.Monthly)
	require.NoError(t, err)
	rows := maintenance.Merge(snap.Records, nil)

	s := maintenance.Summarize(rows, func(r maintenance.MergedRow) bool {
		ok, err := ledger.IsCompleted(ctx, r.EquipmentID, r.MaintenanceType)
		require.NoError(t, err)
		return ok
	}, maintenance.ByTechnician)

	require.Len(t, s.Groups, 1)
	assert.Equal(t, 1, s.Groups[0].Completed)
	assert.Equal(t, 1, s.Groups[0].Pending)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "33.33", maintenance.Percent(1, 3).String())
	assert.Equal(t, "100", maintenance.Percent(5, 5).String())
	assert.Equal(t, "0", maintenance.Percent(0, 0).String())
}

func TestParseGroupKey(t *testing.T) {
	k, err := maintenance.ParseGroupKey("Colaborador")
	require.NoError(t, err)
	assert.Equal(t, maintenance.ByTechnician, k)
	assert.Equal(t, maintenance.ByClient, k.Other())

	k, err = maintenance.ParseGroupKey("client")
	require.NoError(t, err)
	assert.Equal(t, maintenance.ByClient, k)

	_, err = maintenance.ParseGroupKey("region")
	assert.Error(t, err)
}

func TestCountDistinct(t *testing.T) {
	rows := maintenance.Merge(roster(maintenance.Monthly,
		[3]string{"Ana", "A1", "X"},
		[3]string{"Ana", "A2", "Y"},
		[3]string{"", "A3", "Y"},
	), nil)

	assert.Equal(t, 1, maintenance.CountDistinct(rows, maintenance.ByTechnician))
	assert.Equal(t, 2, maintenance.CountDistinct(rows, maintenance.ByClient))
}
