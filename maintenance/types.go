/*
Package maintenance provides the reconciliation engine for scheduled
equipment maintenance.

PURPOSE:
  Administrators load a roster (who services which equipment, for which
  client) per maintenance type, plus an equipment master list. Technicians
  later send daily reports of visits they completed. This package merges
  rosters with the master list, records completions exactly once per
  (equipment, maintenance type) and aggregates completion per technician
  or client.

KEY CONCEPTS IN THIS FILE (types.go):
  - MaintenanceType: closed enum (monthly, semiannual, corrective)
  - EquipmentID: the join key between every dataset
  - RosterRecord / EquipmentRecord: immutable snapshot rows
  - CompletionEvent: the ledger's proof that a pair was serviced
  - MergedRow: derived view row, never persisted

DESIGN PRINCIPLES:
  1. Immutability: snapshots are superseded, never edited
  2. One source of truth: only the ledger answers "is this done?"
  3. Explicit dependencies: stores are passed in, no package globals
  4. Closed enums: maintenance types are validated at every boundary

SEE ALSO:
  - ledger.go: Completion Ledger
  - merge.go: Merge Engine
  - aggregate.go: Aggregator
  - normalize.go: Identity Normalizer
*/
package maintenance

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// MAINTENANCE TYPE - Closed enumeration
// =============================================================================

// MaintenanceType identifies which roster a record belongs to. The same
// physical equipment is tracked independently for each type.
type MaintenanceType string

const (
	Monthly    MaintenanceType = "monthly"
	Semiannual MaintenanceType = "semiannual"
	Corrective MaintenanceType = "corrective"

	// AnyMaintenanceType is only meaningful for completion lookups, where it
	// broadens the check to every type.
	AnyMaintenanceType MaintenanceType = ""
)

// MaintenanceTypes lists the valid types in display order.
var MaintenanceTypes = []MaintenanceType{Monthly, Semiannual, Corrective}

// ParseMaintenanceType accepts the canonical names and the Portuguese labels
// used on the spreadsheets (mensal, semestral, corretiva).
func ParseMaintenanceType(s string) (MaintenanceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "mensal":
		return Monthly, nil
	case "semiannual", "semestral":
		return Semiannual, nil
	case "corrective", "corretiva":
		return Corrective, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMaintenanceType, s)
}

// Valid reports whether t is one of the three concrete types.
func (t MaintenanceType) Valid() bool {
	switch t {
	case Monthly, Semiannual, Corrective:
		return true
	}
	return false
}

func (t MaintenanceType) String() string {
	if t == AnyMaintenanceType {
		return "any"
	}
	return string(t)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EquipmentID is the shared key between rosters, the master list and reports.
type EquipmentID string

// NormalizeEquipmentID cleans a raw identifier cell. Blank cells and the
// placeholders spreadsheets produce for empty numeric cells ("nan", "None",
// "null") are rejected. Integral floats ("1234.0") are rendered as integers
// so that numeric and text columns join.
func NormalizeEquipmentID(raw string) (EquipmentID, bool) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "nan", "none", "null", "<nil>":
		return "", false
	}
	if strings.HasSuffix(s, ".0") {
		if _, err := strconv.ParseInt(strings.TrimSuffix(s, ".0"), 10, 64); err == nil {
			s = strings.TrimSuffix(s, ".0")
		}
	}
	return EquipmentID(s), true
}

// =============================================================================
// SNAPSHOT RECORDS
// =============================================================================

// RosterRecord is one assignment row: a technician must service an equipment
// for a client during the current cycle.
type RosterRecord struct {
	Technician      string          `json:"technician"`
	EquipmentID     EquipmentID     `json:"equipment_id"`
	Client          string          `json:"client"`
	VisitDate       *time.Time      `json:"visit_date,omitempty"`
	MaintenanceType MaintenanceType `json:"maintenance_type"`
}

// EquipmentRecord is one row of the equipment master list. Attributes holds
// every column other than the identifier and client, verbatim.
type EquipmentRecord struct {
	EquipmentID EquipmentID       `json:"equipment_id"`
	Client      string            `json:"client,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// RosterSnapshot is one upload of a roster. Only the latest per type is active.
type RosterSnapshot struct {
	ID         string
	Type       MaintenanceType
	UploadedAt time.Time
	Records    []RosterRecord
}

// EquipmentSnapshot is one upload of the master list.
type EquipmentSnapshot struct {
	ID         string
	UploadedAt time.Time
	Records    []EquipmentRecord
}

// =============================================================================
// COMPLETION EVENTS
// =============================================================================

// EventSource records where the technician/client attribution came from.
type EventSource string

const (
	// SourceRoster: attribution copied from the active roster.
	SourceRoster EventSource = "roster"
	// SourceReport: no roster match; attribution taken from the report row.
	SourceReport EventSource = "report"
)

// Attribution is a (technician, client) pairing credited for a completion.
type Attribution struct {
	Technician string `json:"technician"`
	Client     string `json:"client"`
}

// CompletionEvent is the durable proof that an equipment was serviced for a
// maintenance type. There is at most one per (EquipmentID, MaintenanceType).
//
// Technician and Client hold the primary attribution. When the roster lists
// several pairings for the same equipment, all of them are kept in
// Attributions (primary first).
type CompletionEvent struct {
	ID              string
	EquipmentID     EquipmentID
	MaintenanceType MaintenanceType
	Technician      string
	Client          string
	ReportDate      time.Time
	RecordedAt      time.Time
	Source          EventSource
	Attributions    []Attribution
}

// DailyReportRow is one line of a technician's daily report, as ingested.
// EquipmentID is the raw cell value; it is normalised by the ledger.
type DailyReportRow struct {
	Row         int
	EquipmentID string
	Technician  string
	Client      string
	ReportDate  time.Time // zero when the report has no date column
}

// =============================================================================
// DERIVED VIEW
// =============================================================================

// MergedRow is a roster row decorated with master attributes and completion
// status. It is recomputed for every view and never stored.
type MergedRow struct {
	EquipmentID     EquipmentID       `json:"equipment_id"`
	Technician      string            `json:"technician"`
	Client          string            `json:"client"`
	Attributes      map[string]string `json:"attributes,omitempty"`
	MaintenanceType MaintenanceType   `json:"maintenance_type"`
	Matched         bool              `json:"matched"`
	Completed       bool              `json:"completed"`
}

// LastUpdateMarker is the singleton "last updated at" stamp.
type LastUpdateMarker struct {
	Timestamp string `json:"timestamp"`
	Timezone  string `json:"timezone"`
}
