/*
errors.go - Centralized error types for the maintenance engine

ERROR CATEGORIES:
  1. Validation errors - an uploaded dataset lacks required columns.
     Raised before any store is touched.
  2. Row skips - a row cannot be reconciled. Never an error value; they
     are counted in BatchReport (see ledger.go).
  3. Store errors - the persistence layer failed. The batch is rolled back.

USAGE:
  if errors.Is(err, maintenance.ErrStoreUnavailable) { ... }

  var verr *maintenance.ValidationError
  if errors.As(err, &verr) { fmt.Println(verr.Missing) }
*/
package maintenance

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownMaintenanceType is returned when a type outside the closed
	// enumeration reaches a boundary.
	ErrUnknownMaintenanceType = errors.New("unknown maintenance type")

	// ErrMissingColumns is wrapped by ValidationError.
	ErrMissingColumns = errors.New("required columns missing")

	// ErrNoRoster is returned when a view is requested for a maintenance type
	// that has never been loaded.
	ErrNoRoster = errors.New("no roster loaded for maintenance type")

	// ErrNoEquipmentMaster is returned when a cycle is started without the
	// equipment master list.
	ErrNoEquipmentMaster = errors.New("equipment master list is required")

	// ErrDuplicateCompletion is returned by a store when the unique
	// (equipment_id, maintenance_type) constraint rejects an insert.
	ErrDuplicateCompletion = errors.New("completion already recorded")

	// ErrStoreUnavailable wraps every persistence failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports the required columns absent from an upload.
type ValidationError struct {
	Dataset string // "roster monthly", "equipment master", "daily report", ...
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: missing column(s) %s", e.Dataset, strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrMissingColumns
}

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

// NewStoreError wraps err unless it is nil or already a store error or a
// duplicate-key rejection.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) || errors.Is(err, ErrDuplicateCompletion) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ROW SKIPS
// =============================================================================

// SkipReason explains why a report row produced no completion event.
type SkipReason string

const (
	SkipMissingEquipmentID SkipReason = "missing_equipment_id"
	SkipNoAttribution      SkipReason = "no_attribution"
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingColumns) ||
		errors.Is(err, ErrUnknownMaintenanceType) ||
		errors.Is(err, ErrNoEquipmentMaster)
}

// IsNotFound returns true if the error indicates missing data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoRoster)
}

// IsUnavailable returns true if the persistence layer failed.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
