package maintenance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/maintenance-engine/maintenance"
)

func roster(mt maintenance.MaintenanceType, rows ...[3]string) []maintenance.RosterRecord {
	out := make([]maintenance.RosterRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, maintenance.RosterRecord{
			Technician:      r[0],
			EquipmentID:     maintenance.EquipmentID(r[1]),
			Client:          r[2],
			MaintenanceType: mt,
		})
	}
	return out
}

func TestMerge_LeftJoin(t *testing.T) {
	// GIVEN: A roster with one matched and one unmatched identifier
	// WHEN: Merging with the master list
	// THEN: Both rows appear, in roster order, only the first has attributes
	r := roster(maintenance.Monthly,
		[3]string{"Ana", "A1", "X"},
		[3]string{"Bia", "Z9", "Y"},
	)
	master := []maintenance.EquipmentRecord{
		{EquipmentID: "A1", Attributes: map[string]string{"Modelo": "Split"}},
		{EquipmentID: "B7", Attributes: map[string]string{"Modelo": "Cassete"}},
	}

	rows := maintenance.Merge(r, master)

	require.Len(t, rows, 2)
	assert.Equal(t, maintenance.EquipmentID("A1"), rows[0].EquipmentID)
	assert.True(t, rows[0].Matched)
	assert.Equal(t, "Split", rows[0].Attributes["Modelo"])
	assert.Equal(t, maintenance.EquipmentID("Z9"), rows[1].EquipmentID)
	assert.False(t, rows[1].Matched)
	assert.Nil(t, rows[1].Attributes)
	assert.Equal(t, maintenance.Monthly, rows[1].MaintenanceType)
}

func TestMerge_DuplicateMasterRows_FirstWins(t *testing.T) {
	r := roster(maintenance.Monthly, [3]string{"Ana", "A1", "X"})
	master := []maintenance.EquipmentRecord{
		{EquipmentID: "A1", Attributes: map[string]string{"Modelo": "first"}},
		{EquipmentID: "A1", Attributes: map[string]string{"Modelo": "second"}},
	}

	rows := maintenance.Merge(r, master)

	require.Len(t, rows, 1, "master duplicates never multiply roster rows")
	assert.Equal(t, "first", rows[0].Attributes["Modelo"])
}

func TestMerge_BlankIdentifiersDropped_NumericNormalised(t *testing.T) {
	r := roster(maintenance.Monthly,
		[3]string{"Ana", "", "X"},
		[3]string{"Ana", "nan", "X"},
		[3]string{"Ana", "1001.0", "X"},
	)
	master := []maintenance.EquipmentRecord{{EquipmentID: "1001", Client: "X"}}

	rows := maintenance.Merge(r, master)

	require.Len(t, rows, 1)
	assert.Equal(t, maintenance.EquipmentID("1001"), rows[0].EquipmentID)
	assert.True(t, rows[0].Matched)
}

func TestMerge_ClientFallsBackToMaster(t *testing.T) {
	r := roster(maintenance.Corrective, [3]string{"Ana", "A1", ""})
	master := []maintenance.EquipmentRecord{{EquipmentID: "A1", Client: "Hospital Sul"}}

	rows := maintenance.Merge(r, master)

	require.Len(t, rows, 1)
	assert.Equal(t, "Hospital Sul", rows[0].Client)
}

func TestMerge_DoesNotAliasMasterAttributes(t *testing.T) {
	master := []maintenance.EquipmentRecord{{EquipmentID: "A1", Attributes: map[string]string{"Modelo": "Split"}}}
	rows := maintenance.Merge(roster(maintenance.Monthly, [3]string{"Ana", "A1", "X"}), master)

	rows[0].Attributes["Modelo"] = "changed"

	assert.Equal(t, "Split", master[0].Attributes["Modelo"])
}

func TestFilterRows(t *testing.T) {
	rows := maintenance.Merge(roster(maintenance.Monthly,
		[3]string{"Ana", "AC-100", "X"},
		[3]string{"Ana", "AC-200", "Y"},
		[3]string{"Bia", "CH-100", "X"},
	), nil)
	maintenance.MarkCompletion(rows, func(id maintenance.EquipmentID) bool { return id == "AC-200" })

	assert.Len(t, maintenance.FilterRows(rows, maintenance.RowFilter{}), 3)
	assert.Len(t, maintenance.FilterRows(rows, maintenance.RowFilter{Technician: "Ana"}), 2)
	assert.Len(t, maintenance.FilterRows(rows, maintenance.RowFilter{Client: "X"}), 2)
	assert.Len(t, maintenance.FilterRows(rows, maintenance.RowFilter{Query: "100"}), 2)
	assert.Len(t, maintenance.FilterRows(rows, maintenance.RowFilter{Query: "ac-"}), 2)

	done := true
	got := maintenance.FilterRows(rows, maintenance.RowFilter{Status: &done})
	require.Len(t, got, 1)
	assert.Equal(t, maintenance.EquipmentID("AC-200"), got[0].EquipmentID)
}

func TestSortRows(t *testing.T) {
	rows := maintenance.Merge(roster(maintenance.Monthly,
		[3]string{"Bia", "B2", "Y"},
		[3]string{"Ana", "A2", "X"},
		[3]string{"Ana", "A1", "X"},
		[3]string{"Ana", "C1", "Y"},
	), nil)

	maintenance.SortRows(rows)

	var ids []maintenance.EquipmentID
	for _, r := range rows {
		ids = append(ids, r.EquipmentID)
	}
	assert.Equal(t, []maintenance.EquipmentID{"A1", "A2", "C1", "B2"}, ids)
}

func TestDisplayAttributes_SkipsPhotosAndBlanks(t *testing.T) {
	row := maintenance.MergedRow{Attributes: map[string]string{
		"Modelo":              "Split",
		"Local":               "Sala 2",
		"Capacidade":          " ",
		"Foto 1 - Antes":      "https://example.com/1.jpg",
		"FOTO 2 - Depois":     "https://example.com/2.jpg",
		"Foto 3 - Etiqueta":   "https://example.com/3.jpg",
		"Fotografia anterior": "sim",
	}}

	assert.Equal(t, []string{"Fotografia anterior", "Local", "Modelo"}, maintenance.DisplayAttributes(row))
}
