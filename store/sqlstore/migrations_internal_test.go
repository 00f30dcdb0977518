package sqlstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/maintenance-engine/maintenance"
)

func TestMigrations_EquipmentIDCaseSensitive(t *testing.T) {
	// GIVEN: The schema history of each dialect
	// WHEN: Looking at the collation migration
	// THEN: MySQL switches equipment_id to a binary collation, the others need nothing
	for name, d := range dialects {
		t.Run(name, func(t *testing.T) {
			src := migrations(d)
			last := src.Migrations[len(src.Migrations)-1]
			require.Equal(t, "0004_equipment_id_binary_collation", last.Id)

			if name == "mysql" {
				require.Len(t, last.Up, 1)
				assert.True(t, strings.Contains(last.Up[0], "COLLATE utf8mb4_bin"))
				return
			}
			assert.Empty(t, last.Up)
		})
	}
}

func TestStore_EquipmentIDsAreCaseSensitive(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	for _, id := range []maintenance.EquipmentID{"A1", "a1"} {
		require.NoError(t, s.Insert(ctx, maintenance.CompletionEvent{
			EquipmentID:     id,
			MaintenanceType: maintenance.Monthly,
			ReportDate:      time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
			RecordedAt:      time.Now(),
			Source:          maintenance.SourceRoster,
		}))
	}

	ids, err := s.CompletedIDs(ctx, maintenance.Monthly)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}
