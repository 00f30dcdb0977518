// Package export writes the maintenance status report.
//
// The report has one line per merged roster row with its master attributes
// and a Status column ("Realizada" or "Pendente"). It is produced as an
// Excel workbook for the office and as CSV for other tools; completion
// events can also be exported as CSV for audit.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"

	"github.com/warp/maintenance-engine/maintenance"
)

const (
	// SheetName is the worksheet holding the report.
	SheetName = "Status_Manutencoes"

	StatusDone    = "Realizada"
	StatusPending = "Pendente"

	filePrefix = "relatorio_status_manutencoes_"
)

// Format selects the report encoding.
type Format string

const (
	XLSX Format = "xlsx"
	CSV  Format = "csv"
)

// ParseFormat defaults to XLSX.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx":
		return XLSX, nil
	case "csv":
		return CSV, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType is the MIME type of f.
func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileName names a report produced at now: relatorio_status_manutencoes_YYYYMMDD.<ext>.
func FileName(now time.Time, f Format) string {
	return filePrefix + now.Format("20060102") + "." + string(f)
}

// Status renders a completion flag.
func Status(completed bool) string {
	if completed {
		return StatusDone
	}
	return StatusPending
}

// =============================================================================
// STATUS TABLE
// =============================================================================

// StatusRows lays rows out as a header line followed by one line per row.
// Attribute columns are the union over all rows, sorted by name.
func StatusRows(rows []maintenance.MergedRow) [][]string {
	attrSet := make(map[string]struct{})
	for _, r := range rows {
		for k := range r.Attributes {
			attrSet[k] = struct{}{}
		}
	}
	attrs := make([]string, 0, len(attrSet))
	for k := range attrSet {
		attrs = append(attrs, k)
	}
	sort.Strings(attrs)

	header := make([]string, 0, len(attrs)+4)
	header = append(header, fixedColumns[:3]...)
	for _, a := range attrs {
		header = append(header, attributeLabel(a))
	}
	header = append(header, fixedColumns[3])

	out := make([][]string, 0, len(rows)+1)
	out = append(out, header)
	for _, r := range rows {
		line := make([]string, 0, len(header))
		line = append(line, string(r.EquipmentID), r.Technician, r.Client)
		for _, a := range attrs {
			line = append(line, r.Attributes[a])
		}
		line = append(line, Status(r.Completed))
		out = append(out, line)
	}
	return out
}

var fixedColumns = [...]string{"Identificador", "Colaborador", "Cliente", "Status"}

// attributeLabel renames an attribute whose header would read as one of
// the fixed columns, ignoring case and accents.
func attributeLabel(name string) string {
	folded := maintenance.Fold(name)
	for _, c := range fixedColumns {
		if folded == maintenance.Fold(c) {
			return name + " (equipamento)"
		}
	}
	return name
}

// Write encodes rows in format f.
func Write(w io.Writer, f Format, rows []maintenance.MergedRow) error {
	if f == CSV {
		return WriteCSV(w, rows)
	}
	return WriteXLSX(w, rows)
}

// WriteXLSX writes the report as a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []maintenance.MergedRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	table := StatusRows(rows)
	for i, line := range table {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(line))
		for j, v := range line {
			values[j] = v
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(table[0]), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteCSV writes the report as CSV. The header varies with the master
// list, so lines are written directly rather than through struct tags.
func WriteCSV(w io.Writer, rows []maintenance.MergedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(StatusRows(rows)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// =============================================================================
// EVENT AUDIT
// =============================================================================

type eventLine struct {
	EquipmentID     string `csv:"equipment_id"`
	MaintenanceType string `csv:"maintenance_type"`
	Technician      string `csv:"technician"`
	Client          string `csv:"client"`
	ReportDate      string `csv:"report_date"`
	RecordedAt      string `csv:"recorded_at"`
	Source          string `csv:"source"`
	Attributions    int    `csv:"attributions"`
}

// WriteEventsCSV writes completion events, one per line.
func WriteEventsCSV(w io.Writer, events []maintenance.CompletionEvent) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	if len(events) == 0 {
		if err := enc.EncodeHeader(eventLine{}); err != nil {
			return fmt.Errorf("write events: %w", err)
		}
	}
	for _, ev := range events {
		line := eventLine{
			EquipmentID:     string(ev.EquipmentID),
			MaintenanceType: string(ev.MaintenanceType),
			Technician:      ev.Technician,
			Client:          ev.Client,
			ReportDate:      ev.ReportDate.Format("2006-01-02"),
			RecordedAt:      ev.RecordedAt.Format(time.RFC3339),
			Source:          string(ev.Source),
			Attributions:    len(ev.Attributions),
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write events: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
