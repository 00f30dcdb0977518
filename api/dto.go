/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types that are
  already shaped for the wire (BatchReport, Summary, MergedRow) are returned
  directly; the types here wrap or flatten the rest.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Complex response wrappers

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/maintenance-engine/maintenance"
)

// HealthDTO is returned by GET /api/health.
type HealthDTO struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// MaintenanceTypesDTO lists the valid types and configured sectors.
type MaintenanceTypesDTO struct {
	Types   []maintenance.MaintenanceType `json:"types"`
	Sectors []string                      `json:"sectors"`
}

// RowsResponse is a filtered status view.
type RowsResponse struct {
	MaintenanceType maintenance.MaintenanceType `json:"maintenance_type"`
	Count           int                         `json:"count"`
	Completed       int                         `json:"completed"`
	Rows            []maintenance.MergedRow     `json:"rows"`
}

// CompletionDTO answers a single completion lookup.
type CompletionDTO struct {
	EquipmentID     maintenance.EquipmentID `json:"equipment_id"`
	MaintenanceType string                  `json:"maintenance_type"`
	Completed       bool                    `json:"completed"`
}

// EventDTO represents a completion event in API responses.
type EventDTO struct {
	ID              string                    `json:"id"`
	EquipmentID     string                    `json:"equipment_id"`
	MaintenanceType string                    `json:"maintenance_type"`
	Technician      string                    `json:"technician"`
	Client          string                    `json:"client"`
	ReportDate      string                    `json:"report_date"`
	RecordedAt      time.Time                 `json:"recorded_at"`
	Source          string                    `json:"source"`
	Attributions    []maintenance.Attribution `json:"attributions,omitempty"`
}

func toEventDTO(ev maintenance.CompletionEvent) EventDTO {
	return EventDTO{
		ID:              ev.ID,
		EquipmentID:     string(ev.EquipmentID),
		MaintenanceType: string(ev.MaintenanceType),
		Technician:      ev.Technician,
		Client:          ev.Client,
		ReportDate:      ev.ReportDate.Format("2006-01-02"),
		RecordedAt:      ev.RecordedAt,
		Source:          string(ev.Source),
		Attributions:    ev.Attributions,
	}
}

// ResetResponse reports how many events a reset removed.
type ResetResponse struct {
	DeletedEvents int                          `json:"deleted_events"`
	LastUpdate    *maintenance.LastUpdateMarker `json:"last_update,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
