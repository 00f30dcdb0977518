package export_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/maintenance-engine/export"
	"github.com/warp/maintenance-engine/maintenance"
)

func sampleRows() []maintenance.MergedRow {
	return []maintenance.MergedRow{
		{EquipmentID: "A1", Technician: "Ana", Client: "X", Attributes: map[string]string{"Modelo": "Split"}, Matched: true, Completed: true},
		{EquipmentID: "Z9", Technician: "Bia", Client: "Y"},
	}
}

func TestStatusRows_HeaderAndStatus(t *testing.T) {
	table := export.StatusRows(sampleRows())

	require.Len(t, table, 3)
	assert.Equal(t, []string{"Identificador", "Colaborador", "Cliente", "Modelo", "Status"}, table[0])
	assert.Equal(t, []string{"A1", "Ana", "X", "Split", "Realizada"}, table[1])
	assert.Equal(t, []string{"Z9", "Bia", "Y", "", "Pendente"}, table[2], "unmatched rows keep empty attribute cells")
}

func TestStatusRows_AttributeNamedLikeFixedColumn(t *testing.T) {
	// GIVEN: A master list with its own "Status" and "cliente" columns
	rows := []maintenance.MergedRow{{
		EquipmentID: "A1", Technician: "Ana", Client: "X",
		Attributes: map[string]string{"Status": "Ativo", "cliente": "X Matriz"},
		Completed:  true,
	}}

	// WHEN: The table is laid out
	table := export.StatusRows(rows)

	// THEN: Only the computed columns carry the fixed names
	assert.Equal(t, []string{"Identificador", "Colaborador", "Cliente", "Status (equipamento)", "cliente (equipamento)", "Status"}, table[0])
	assert.Equal(t, []string{"A1", "Ana", "X", "Ativo", "X Matriz", "Realizada"}, table[1])
}

func TestWriteXLSX_SheetAndContent(t *testing.T) {
	// GIVEN: Two merged rows
	// WHEN: Writing the workbook
	// THEN: It opens with a single Status_Manutencoes sheet holding the table
	var buf bytes.Buffer
	require.NoError(t, export.WriteXLSX(&buf, sampleRows()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{export.SheetName}, f.GetSheetList())
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Status", rows[0][4])
	assert.Equal(t, "Realizada", rows[1][4])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, export.CSV, sampleRows()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Identificador,Colaborador,Cliente,Modelo,Status", lines[0])
	assert.Equal(t, "Z9,Bia,Y,,Pendente", lines[2])
}

func TestWriteEventsCSV(t *testing.T) {
	events := []maintenance.CompletionEvent{{
		EquipmentID:     "A1",
		MaintenanceType: maintenance.Monthly,
		Technician:      "Ana",
		Client:          "X",
		ReportDate:      time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		RecordedAt:      time.Date(2025, 3, 14, 17, 0, 0, 0, time.UTC),
		Source:          maintenance.SourceReport,
		Attributions:    []maintenance.Attribution{{Technician: "Ana", Client: "X"}},
	}}

	var buf bytes.Buffer
	require.NoError(t, export.WriteEventsCSV(&buf, events))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "equipment_id,maintenance_type,technician,client,report_date,recorded_at,source,attributions", lines[0])
	assert.Equal(t, "A1,monthly,Ana,X,2025-03-14,2025-03-14T17:00:00Z,report,1", lines[1])
}

func TestWriteEventsCSV_EmptyStillHasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteEventsCSV(&buf, nil))
	assert.True(t, strings.HasPrefix(buf.String(), "equipment_id,"))
}

func TestFileName(t *testing.T) {
	now := time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "relatorio_status_manutencoes_20250304.xlsx", export.FileName(now, export.XLSX))
	assert.Equal(t, "relatorio_status_manutencoes_20250304.csv", export.FileName(now, export.CSV))
}

func TestParseFormat(t *testing.T) {
	f, err := export.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, export.XLSX, f)

	_, err = export.ParseFormat("pdf")
	assert.Error(t, err)
}
