package maintenance

import (
	"sort"
	"strings"
)

// =============================================================================
// MERGE ENGINE - roster LEFT JOIN equipment master ON equipment_id
// =============================================================================

// MasterIndex is the equipment master keyed by identifier. When several rows
// share an identifier the first one encountered wins.
type MasterIndex map[EquipmentID]EquipmentRecord

// IndexMaster builds a MasterIndex. Rows without a usable identifier are
// ignored.
func IndexMaster(master []EquipmentRecord) MasterIndex {
	idx := make(MasterIndex, len(master))
	for _, rec := range master {
		id, ok := NormalizeEquipmentID(string(rec.EquipmentID))
		if !ok {
			continue
		}
		if _, exists := idx[id]; exists {
			continue
		}
		idx[id] = rec
	}
	return idx
}

// Merge joins every roster row with its master row. Output order follows the
// roster; each roster row with a usable identifier appears exactly once,
// matched or not. Rows without an identifier cannot be reconciled and are
// dropped. Completed is left false; see MarkCompletion.
func Merge(roster []RosterRecord, master []EquipmentRecord) []MergedRow {
	idx := IndexMaster(master)
	rows := make([]MergedRow, 0, len(roster))

	for _, r := range roster {
		id, ok := NormalizeEquipmentID(string(r.EquipmentID))
		if !ok {
			continue
		}
		row := MergedRow{
			EquipmentID:     id,
			Technician:      r.Technician,
			Client:          r.Client,
			MaintenanceType: r.MaintenanceType,
		}
		if m, found := idx[id]; found {
			row.Matched = true
			row.Attributes = copyAttributes(m.Attributes)
			if strings.TrimSpace(row.Client) == "" {
				row.Client = m.Client
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func copyAttributes(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MarkCompletion sets Completed on every row from isCompleted.
func MarkCompletion(rows []MergedRow, isCompleted func(EquipmentID) bool) {
	for i := range rows {
		rows[i].Completed = isCompleted(rows[i].EquipmentID)
	}
}

// =============================================================================
// FILTERING AND ORDERING
// =============================================================================

// RowFilter narrows a view. Empty fields match everything. Query is a
// case-insensitive substring of the equipment identifier.
type RowFilter struct {
	Technician string
	Client     string
	Query      string
	Status     *bool // nil = all, true = completed only, false = pending only
}

// FilterRows returns the rows matching f, in input order.
func FilterRows(rows []MergedRow, f RowFilter) []MergedRow {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]MergedRow, 0, len(rows))
	for _, r := range rows {
		if f.Technician != "" && r.Technician != f.Technician {
			continue
		}
		if f.Client != "" && r.Client != f.Client {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(string(r.EquipmentID)), query) {
			continue
		}
		if f.Status != nil && r.Completed != *f.Status {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortRows orders rows by client, technician, then identifier.
func SortRows(rows []MergedRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Client != b.Client {
			return a.Client < b.Client
		}
		if a.Technician != b.Technician {
			return a.Technician < b.Technician
		}
		return a.EquipmentID < b.EquipmentID
	})
}

// photoColumnPrefixes identify the before/after photo columns of the master
// list; they hold links, not descriptive data.
var photoColumnPrefixes = []string{"foto 1 -", "foto 2 -", "foto 3 -"}

// DisplayAttributes returns the attribute names worth showing for a row:
// non-blank values, photo columns excluded, sorted by name.
func DisplayAttributes(row MergedRow) []string {
	var names []string
	for name, v := range row.Attributes {
		if strings.TrimSpace(v) == "" || isPhotoColumn(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isPhotoColumn(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range photoColumnPrefixes {
		if strings.HasPrefix(n, p) {
			return true
		}
	}
	return false
}
