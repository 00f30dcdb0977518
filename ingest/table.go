/*
Package ingest turns uploaded spreadsheets into maintenance records.

PURPOSE:
  Field teams send rosters, the equipment master list and daily reports as
  .xlsx, legacy .xls or .csv files with Portuguese headers. This package
  reads the first worksheet into a Table, maps known headers onto canonical
  column names and converts rows into typed records.

FLOW:
  ReadTable(file) -> *Table (canonical header, padded rows)
  Roster / Equipment / DailyReport(table) -> validated records

VALIDATION:
  Converters check for required columns before reading any row and return
  *maintenance.ValidationError listing every missing column.

SEE ALSO:
  - columns.go: Header aliases
  - convert.go: Typed conversion and date parsing
*/
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptySheet        = errors.New("worksheet is empty")
)

// ReadError reports a file that could not be read as a table.
type ReadError struct {
	File string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.File, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// =============================================================================
// TABLE
// =============================================================================

// Table is the first worksheet of an upload.
type Table struct {
	Name     string     // file name as uploaded
	Header   []string   // canonical column names; unknown headers verbatim
	Original []string   // headers as written in the file
	Rows     [][]string // data rows, each len(Header), blank rows removed
	Lines    []int      // spreadsheet line of each row (header is line 1)
}

// NewTable builds a Table from raw rows, the first of which is the header.
func NewTable(name string, raw [][]string) (*Table, error) {
	if len(raw) == 0 || isBlank(raw[0]) {
		return nil, &ReadError{File: name, Err: ErrEmptySheet}
	}

	original := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		original[i] = strings.TrimSpace(h)
	}

	t := &Table{
		Name:     name,
		Header:   canonicalHeader(original),
		Original: original,
	}
	for i, row := range raw[1:] {
		if isBlank(row) {
			continue
		}
		t.Rows = append(t.Rows, pad(row, len(original)))
		t.Lines = append(t.Lines, i+2)
	}
	return t, nil
}

// Index returns the position of a canonical column, or -1.
func (t *Table) Index(col string) int {
	for i, h := range t.Header {
		if h == col {
			return i
		}
	}
	return -1
}

// Has reports whether the canonical column is present.
func (t *Table) Has(col string) bool {
	return t.Index(col) >= 0
}

// Missing returns the required columns absent from the table.
func (t *Table) Missing(required ...string) []string {
	var missing []string
	for _, col := range required {
		if !t.Has(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

func pad(row []string, n int) []string {
	out := make([]string, n)
	for i := 0; i < n && i < len(row); i++ {
		out[i] = strings.TrimSpace(row[i])
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// READERS
// =============================================================================

// maxXLSRows bounds legacy workbook reads.
const maxXLSRows = 100000

// ReadTable reads the upload according to its extension. Files without a
// known extension are tried as xlsx.
func ReadTable(r io.Reader, filename string) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ReadError{File: filename, Err: err}
	}

	var raw [][]string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		raw, err = readCSV(data)
	case ".xls":
		raw, err = readXLS(data)
	case ".xlsx", ".xlsm", "":
		raw, err = readXLSX(data)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return nil, &ReadError{File: filename, Err: err}
	}
	return NewTable(filename, raw)
}

func readXLSX(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	sheetName := file.GetSheetName(0)
	if sheetName == "" {
		return nil, ErrEmptySheet
	}
	// Raw values keep dates as serial numbers and identifiers unformatted.
	rows, err := file.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}
	return rows, nil
}

func readXLS(data []byte) ([][]string, error) {
	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if workbook.NumSheets() == 0 {
		return nil, ErrEmptySheet
	}
	first := workbook.GetSheet(0)
	if first == nil {
		return nil, ErrEmptySheet
	}
	rows := firstSheetRows(workbook.ReadAllCells(maxXLSRows), first.MaxRow)
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}
	return rows, nil
}

// firstSheetRows keeps the rows of the first sheet only, as readXLSX does.
// ReadAllCells concatenates every sheet and emits maxRow+1 rows for each
// non-empty one.
func firstSheetRows(all [][]string, maxRow uint16) [][]string {
	n := 0
	if maxRow > 0 {
		n = int(maxRow) + 1
	}
	if n < len(all) {
		return all[:n]
	}
	return all
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptySheet
	}
	return rows, nil
}

// sniffDelimiter picks ';' when the header has more semicolons than commas,
// as spreadsheets exported with a pt-BR locale do.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}
