package ingest

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"

	"github.com/warp/maintenance-engine/maintenance"
)

// =============================================================================
// ROW DECODING
// =============================================================================

// rowReader feeds table rows to csvutil, which maps them onto tagged
// structs by canonical header.
type rowReader struct {
	t   *Table
	pos int
}

func (r *rowReader) Read() ([]string, error) {
	if r.pos >= len(r.t.Rows) {
		return nil, io.EOF
	}
	row := r.t.Rows[r.pos]
	r.pos++
	return row, nil
}

// line is the spreadsheet line of the row returned by the last Read.
func (r *rowReader) line() int {
	return r.t.Lines[r.pos-1]
}

type rosterLine struct {
	Technician  string `csv:"technician"`
	EquipmentID string `csv:"equipment_id"`
	Client      string `csv:"client"`
	Date        string `csv:"date,omitempty"`
}

type equipmentLine struct {
	EquipmentID string `csv:"equipment_id"`
	Client      string `csv:"client,omitempty"`
}

type reportLine struct {
	EquipmentID string `csv:"equipment_id"`
	Technician  string `csv:"technician,omitempty"`
	Client      string `csv:"client,omitempty"`
	Date        string `csv:"date,omitempty"`
}

// decodeEach decodes every row into a fresh T and calls fn with it.
func decodeEach[T any](t *Table, fn func(v T, line int, dec *csvutil.Decoder)) error {
	rr := &rowReader{t: t}
	dec, err := csvutil.NewDecoder(rr, t.Header...)
	if err != nil {
		return fmt.Errorf("decode %s: %w", t.Name, err)
	}
	for {
		var v T
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode %s: %w", t.Name, err)
		}
		fn(v, rr.line(), dec)
	}
}

func validate(t *Table, dataset string, required ...string) error {
	if missing := t.Missing(required...); len(missing) > 0 {
		return &maintenance.ValidationError{Dataset: dataset, Missing: missing}
	}
	return nil
}

// =============================================================================
// CONVERTERS
// =============================================================================

// ValidateRoster checks that t can be loaded as a roster.
func ValidateRoster(t *Table, mt maintenance.MaintenanceType) error {
	return validate(t, "roster "+mt.String(), ColTechnician, ColEquipmentID, ColClient)
}

// Roster converts t into roster records for mt. Technician labels are
// canonicalised through n (which may be nil).
func Roster(t *Table, mt maintenance.MaintenanceType, n *maintenance.Normalizer) ([]maintenance.RosterRecord, error) {
	if !mt.Valid() {
		return nil, fmt.Errorf("%w: %q", maintenance.ErrUnknownMaintenanceType, mt)
	}
	if err := ValidateRoster(t, mt); err != nil {
		return nil, err
	}

	records := make([]maintenance.RosterRecord, 0, len(t.Rows))
	err := decodeEach(t, func(l rosterLine, _ int, _ *csvutil.Decoder) {
		id, _ := maintenance.NormalizeEquipmentID(l.EquipmentID)
		rec := maintenance.RosterRecord{
			Technician:      n.Canonical(l.Technician),
			EquipmentID:     id,
			Client:          l.Client,
			MaintenanceType: mt,
		}
		if d, ok := ParseDate(l.Date); ok {
			rec.VisitDate = &d
		}
		records = append(records, rec)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ValidateEquipment checks that t can be loaded as the master list.
func ValidateEquipment(t *Table) error {
	return validate(t, "equipment master", ColEquipmentID)
}

// Equipment converts t into master records. Every column other than the
// identifier and client becomes an attribute under its original header;
// repeated headers get a numeric suffix so no column is lost.
func Equipment(t *Table) ([]maintenance.EquipmentRecord, error) {
	if err := ValidateEquipment(t); err != nil {
		return nil, err
	}

	var keys map[int]string
	records := make([]maintenance.EquipmentRecord, 0, len(t.Rows))
	err := decodeEach(t, func(l equipmentLine, _ int, dec *csvutil.Decoder) {
		id, ok := maintenance.NormalizeEquipmentID(l.EquipmentID)
		if !ok {
			return
		}
		if keys == nil {
			keys = attributeKeys(t.Original, dec.Unused())
		}
		rec := maintenance.EquipmentRecord{EquipmentID: id, Client: l.Client}
		record := dec.Record()
		for _, i := range dec.Unused() {
			if rec.Attributes == nil {
				rec.Attributes = make(map[string]string)
			}
			rec.Attributes[keys[i]] = record[i]
		}
		records = append(records, rec)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// attributeKeys names the unused columns after their original headers,
// suffixing repeats with _2, _3 in column order.
func attributeKeys(original []string, unused []int) map[int]string {
	keys := make(map[int]string, len(unused))
	taken := make(map[string]bool, len(unused))
	for _, i := range unused {
		base := original[i]
		if base == "" {
			base = "column_" + strconv.Itoa(i+1)
		}
		name := base
		for n := 2; taken[name]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		taken[name] = true
		keys[i] = name
	}
	return keys
}

// ValidateDailyReport checks that t can be processed as a daily report.
func ValidateDailyReport(t *Table) error {
	return validate(t, "daily report", ColEquipmentID)
}

// DailyReport converts t into report rows. Identifiers are passed through
// raw; blank ones are reported as skipped by the ledger. Unparseable or
// absent dates are left zero.
func DailyReport(t *Table, n *maintenance.Normalizer) ([]maintenance.DailyReportRow, error) {
	if err := ValidateDailyReport(t); err != nil {
		return nil, err
	}

	rows := make([]maintenance.DailyReportRow, 0, len(t.Rows))
	err := decodeEach(t, func(l reportLine, line int, _ *csvutil.Decoder) {
		row := maintenance.DailyReportRow{
			Row:         line,
			EquipmentID: l.EquipmentID,
			Technician:  n.Canonical(l.Technician),
			Client:      l.Client,
		}
		if d, ok := ParseDate(l.Date); ok {
			row.ReportDate = d
		}
		rows = append(rows, row)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// =============================================================================
// DATES
// =============================================================================

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006",
	"02/01/06",
	"02-01-2006",
}

// Serial numbers outside this range are not taken for dates (1954..2119).
const (
	minExcelSerial = 20000
	maxExcelSerial = 80000
)

// ParseDate accepts ISO dates, day-first dates and Excel serial numbers.
// Day-first is assumed for slashed dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= minExcelSerial && f < maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(f, false); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
