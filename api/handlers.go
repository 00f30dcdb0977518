/*
handlers.go - HTTP API handlers for the maintenance tracker

PURPOSE:
  Exposes the tracker service via REST API. Handles multipart uploads,
  query parsing and JSON serialization, and delegates to tracker.Service.

ENDPOINTS:
  Cycle:
    POST   /api/cycle                    Start a cycle (multipart: equipment,
                                         monthly, semiannual, corrective)
    POST   /api/cycle/reset              Delete every completion event

  Reports:
    POST   /api/reports/{type}           Process a daily report (multipart: file)

  Status:
    GET    /api/status/{type}            Summary (?by=technician|client)
    GET    /api/status/{type}/breakdown  Drill-down (?by=...&value=...)
    GET    /api/status/{type}/rows       Merged rows (?technician=&client=&q=&status=)
    GET    /api/status/{type}/export     Status report (?format=xlsx|csv)
    GET    /api/status/{type}/events     Completion events (?format=json|csv)

  Lookups:
    GET    /api/equipment/{id}/completion  (?type=, empty means any type)
    GET    /api/last-update
    POST   /api/last-update

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Unreadable upload, missing columns, unknown type or parameter
  - 404: No roster loaded for the requested type
  - 413: Upload larger than the configured limit
  - 503: Store unavailable
  - 500: Anything else

SEE ALSO:
  - dto.go: Response data structures
  - server.go: Router setup and middleware
  - tracker/service.go: The operations behind every endpoint
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/maintenance-engine/export"
	"github.com/warp/maintenance-engine/ingest"
	"github.com/warp/maintenance-engine/maintenance"
	"github.com/warp/maintenance-engine/tracker"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// AdminStore is the maintenance surface of a store: health checks and a
// full wipe.
type AdminStore interface {
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Options configure a Handler.
type Options struct {
	Admin          AdminStore // nil disables /api/admin/reset
	Logger         logrus.FieldLogger
	MaxUploadBytes int64 // 0 = 32 MiB
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc       *tracker.Service
	admin     AdminStore
	log       logrus.FieldLogger
	maxUpload int64
}

// NewHandler creates a new handler over svc.
func NewHandler(svc *tracker.Service, opts Options) *Handler {
	h := &Handler{
		svc:       svc,
		admin:     opts.Admin,
		log:       opts.Logger,
		maxUpload: opts.MaxUploadBytes,
	}
	if h.log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		h.log = discard
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 32 << 20
	}
	return h
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the store answers.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.admin != nil {
		if err := h.admin.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "degraded", Store: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok", Store: "ok"})
}

// ListMaintenanceTypes returns the valid types and sector labels.
// GET /api/maintenance-types
func (h *Handler) ListMaintenanceTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MaintenanceTypesDTO{
		Types:   maintenance.MaintenanceTypes,
		Sectors: h.svc.Normalizer().Sectors(),
	})
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

// StartCycle loads a new master list and any provided rosters.
// POST /api/cycle
func (h *Handler) StartCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.parseUpload(w, r); err != nil {
		h.fail(w, err)
		return
	}

	up := tracker.CycleUpload{Rosters: make(map[maintenance.MaintenanceType]*ingest.Table)}
	equipment, err := formTable(r, "equipment")
	if err != nil {
		h.fail(w, err)
		return
	}
	up.Equipment = equipment

	for _, mt := range maintenance.MaintenanceTypes {
		table, err := formTable(r, string(mt))
		if err != nil {
			h.fail(w, err)
			return
		}
		if table != nil {
			up.Rosters[mt] = table
		}
	}

	res, err := h.svc.StartCycle(r.Context(), up)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ResetCycle deletes every completion event; snapshots are kept.
// POST /api/cycle/reset
func (h *Handler) ResetCycle(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ResetCycle(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	marker, err := h.svc.LastUpdate(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResetResponse{DeletedEvents: n, LastUpdate: marker})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// RecordDaily processes an uploaded daily report.
// POST /api/reports/{type}
func (h *Handler) RecordDaily(w http.ResponseWriter, r *http.Request) {
	mt, err := pathType(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	if err := h.parseUpload(w, r); err != nil {
		h.fail(w, err)
		return
	}
	table, err := formTable(r, "file")
	if err != nil {
		h.fail(w, err)
		return
	}
	if table == nil {
		writeError(w, http.StatusBadRequest, "Missing upload", errors.New(`multipart field "file" is required`))
		return
	}

	report, err := h.svc.RecordDaily(r.Context(), mt, table)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// STATUS HANDLERS
// =============================================================================

// GetSummary aggregates the view by technician or client.
// GET /api/status/{type}?by=technician
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	mt, err := pathType(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	key, err := groupKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group key", err)
		return
	}

	sum, err := h.svc.Summary(r.Context(), mt, key)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GetBreakdown summarises one technician by client, or one client by
// technician.
// GET /api/status/{type}/breakdown?by=technician&value=...
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	mt, err := pathType(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	key, err := groupKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group key", err)
		return
	}
	value := r.URL.Query().Get("value")
	if value == "" {
		writeError(w, http.StatusBadRequest, "Missing value", errors.New("query parameter value is required"))
		return
	}

	sum, err := h.svc.Breakdown(r.Context(), mt, key, value)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ListRows returns the merged, filtered view.
// GET /api/status/{type}/rows
func (h *Handler) ListRows(w http.ResponseWriter, r *http.Request) {
	mt, err := pathType(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	q := r.URL.Query()
	f := maintenance.RowFilter{
		Technician: q.Get("technician"),
		Client:     q.Get("client"),
		Query:      q.Get("q"),
	}
	if f.Status, err = parseStatus(q.Get("status")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid status filter", err)
		return
	}

	rows, err := h.svc.View(r.Context(), mt, f)
	if err != nil {
		h.fail(w, err)
		return
	}
	resp := RowsResponse{MaintenanceType: mt, Count: len(rows), Rows: rows}
	for _, row := range rows {
		if row.Completed {
			resp.Completed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportStatus downloads the full status report.
// GET /api/status/{type}/export?format=xlsx
func (h *Handler) ExportStatus(w http.ResponseWriter, r *http.Request) {
	mt, err := pathType(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid format", err)
		return
	}

	// Buffered so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), mt, format, &buf); err != nil {
		h.fail(w, err)
		return
	}
	writeAttachment(w, format.ContentType(), h.svc.ExportFileName(format), buf.Bytes())
}

// ListEvents returns the completion events of a type.
// GET /api/status/{type}/events?format=json
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	mt, err := pathType(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		events, err := h.svc.Ledger().Events(r.Context(), mt)
		if err != nil {
			h.fail(w, err)
			return
		}
		dtos := make([]EventDTO, len(events))
		for i, ev := range events {
			dtos[i] = toEventDTO(ev)
		}
		writeJSON(w, http.StatusOK, dtos)
	case "csv":
		var buf bytes.Buffer
		if err := h.svc.ExportEvents(r.Context(), mt, &buf); err != nil {
			h.fail(w, err)
			return
		}
		writeAttachment(w, export.CSV.ContentType(), fmt.Sprintf("eventos_%s.csv", mt), buf.Bytes())
	default:
		writeError(w, http.StatusBadRequest, "Invalid format", fmt.Errorf("unsupported events format %q", r.URL.Query().Get("format")))
	}
}

// =============================================================================
// LOOKUPS
// =============================================================================

// GetCompletion answers whether one equipment was serviced.
// GET /api/equipment/{id}/completion?type=monthly
func (h *Handler) GetCompletion(w http.ResponseWriter, r *http.Request) {
	id, ok := maintenance.NormalizeEquipmentID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid equipment identifier", nil)
		return
	}
	mt := maintenance.AnyMaintenanceType
	if raw := r.URL.Query().Get("type"); raw != "" && raw != "any" {
		parsed, err := maintenance.ParseMaintenanceType(raw)
		if err != nil {
			h.fail(w, err)
			return
		}
		mt = parsed
	}

	done, err := h.svc.IsCompleted(r.Context(), id, mt)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CompletionDTO{EquipmentID: id, MaintenanceType: mt.String(), Completed: done})
}

// GetLastUpdate returns the marker; 204 when nothing was ever recorded.
// GET /api/last-update
func (h *Handler) GetLastUpdate(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.LastUpdate(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if m == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// TouchLastUpdate stamps the marker with the current time.
// POST /api/last-update
func (h *Handler) TouchLastUpdate(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Touch(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ResetDatabase wipes every snapshot and event.
// POST /api/admin/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		writeError(w, http.StatusNotImplemented, "Reset not available", nil)
		return
	}
	if err := h.admin.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.log.Warn("database reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func pathType(r *http.Request) (maintenance.MaintenanceType, error) {
	return maintenance.ParseMaintenanceType(chi.URLParam(r, "type"))
}

func groupKey(r *http.Request) (maintenance.GroupKey, error) {
	by := r.URL.Query().Get("by")
	if by == "" {
		return maintenance.ByTechnician, nil
	}
	return maintenance.ParseGroupKey(by)
}

func parseStatus(s string) (*bool, error) {
	var v bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "todos":
		return nil, nil
	case "done", "completed", "realizada":
		v = true
	case "pending", "pendente":
		v = false
	default:
		return nil, fmt.Errorf("unknown status %q", s)
	}
	return &v, nil
}

func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return &ingest.ReadError{File: "request", Err: err}
	}
	return nil
}

// formTable reads the multipart file field; nil when the field is absent.
func formTable(r *http.Request, field string) (*ingest.Table, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, &ingest.ReadError{File: field, Err: err}
	}
	defer f.Close()
	return ingest.ReadTable(f, hdr.Filename)
}

// fail maps a service error onto a status code.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var (
		verr   *maintenance.ValidationError
		rerr   *ingest.ReadError
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooBig):
		writeError(w, http.StatusRequestEntityTooLarge, "Upload too large", err)
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Missing required columns",
			Details: map[string]any{"dataset": verr.Dataset, "missing": verr.Missing},
		})
	case errors.As(err, &rerr):
		writeError(w, http.StatusBadRequest, "Unreadable upload", err)
	case maintenance.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case maintenance.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case maintenance.IsUnavailable(err):
		h.log.WithError(err).Error("store unavailable")
		writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
	default:
		h.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeAttachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
