/*
Package tracker orchestrates a maintenance cycle.

PURPOSE:
  Ties ingest, the snapshot store, the ledger and the aggregator into the
  operations an administrator performs: start a cycle from uploaded
  spreadsheets, process daily reports, and read status views, summaries
  and exports. Every dependency is held by the Service; there is no
  package state.

CYCLE START:
  1. Every uploaded table is validated before anything is written
  2. All completion events are deleted (ResetCycle)
  3. The master list and each provided roster are saved as new snapshots
  4. The last-update marker is refreshed
  Rosters not provided keep their previous snapshot.

SEE ALSO:
  - maintenance/ledger.go: Completion recording
  - ingest: Spreadsheet conversion
*/
package tracker

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/warp/maintenance-engine/export"
	"github.com/warp/maintenance-engine/ingest"
	"github.com/warp/maintenance-engine/maintenance"
)

// Service is the application layer over one store.
type Service struct {
	store      maintenance.Store
	ledger     *maintenance.Ledger
	normalizer *maintenance.Normalizer
	clock      maintenance.Clock
	log        logrus.FieldLogger
}

// Options configure a Service. Zero values select defaults.
type Options struct {
	Sectors           []maintenance.Sector // nil = maintenance.DefaultSectors()
	Clock             *maintenance.Clock   // nil = system clock in UTC
	ReportAttribution *bool                // nil = enabled
	Logger            logrus.FieldLogger
}

// New builds a Service over store.
func New(store maintenance.Store, opts Options) *Service {
	sectors := opts.Sectors
	if sectors == nil {
		sectors = maintenance.DefaultSectors()
	}
	clock := maintenance.SystemClock()
	if opts.Clock != nil {
		clock = *opts.Clock
	}
	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	ledgerOpts := []maintenance.LedgerOption{
		maintenance.WithClock(clock),
		maintenance.WithLogger(log),
	}
	if opts.ReportAttribution != nil {
		ledgerOpts = append(ledgerOpts, maintenance.WithReportAttribution(*opts.ReportAttribution))
	}

	return &Service{
		store:      store,
		ledger:     maintenance.NewLedger(store, store, ledgerOpts...),
		normalizer: maintenance.NewNormalizer(sectors),
		clock:      clock,
		log:        log,
	}
}

// Ledger exposes the completion ledger.
func (s *Service) Ledger() *maintenance.Ledger { return s.ledger }

// Normalizer exposes the sector normalizer.
func (s *Service) Normalizer() *maintenance.Normalizer { return s.normalizer }

// =============================================================================
// CYCLE
// =============================================================================

// CycleUpload holds the tables of a new cycle. Equipment is required;
// rosters are keyed by maintenance type and may be partial.
type CycleUpload struct {
	Equipment *ingest.Table
	Rosters   map[maintenance.MaintenanceType]*ingest.Table
}

// CycleResult reports what StartCycle stored.
type CycleResult struct {
	DeletedEvents   int                                    `json:"deleted_events"`
	EquipmentID     string                                 `json:"equipment_snapshot_id"`
	EquipmentCount  int                                    `json:"equipment_count"`
	Rosters         map[maintenance.MaintenanceType]int    `json:"rosters"`
	RosterSnapshots map[maintenance.MaintenanceType]string `json:"roster_snapshots"`
	LastUpdate      maintenance.LastUpdateMarker           `json:"last_update"`
}

// StartCycle replaces the active datasets and clears the ledger in one
// store transaction. On failure the previous cycle stays intact.
func (s *Service) StartCycle(ctx context.Context, up CycleUpload) (CycleResult, error) {
	if up.Equipment == nil {
		return CycleResult{}, maintenance.ErrNoEquipmentMaster
	}

	for mt := range up.Rosters {
		if !mt.Valid() {
			return CycleResult{}, fmt.Errorf("%w: %q", maintenance.ErrUnknownMaintenanceType, mt)
		}
	}

	// Convert everything first: a bad roster must not leave a half-reset cycle.
	equipment, err := ingest.Equipment(up.Equipment)
	if err != nil {
		return CycleResult{}, err
	}
	rosters := make(map[maintenance.MaintenanceType][]maintenance.RosterRecord, len(up.Rosters))
	for _, mt := range maintenance.MaintenanceTypes {
		table, ok := up.Rosters[mt]
		if !ok || table == nil {
			continue
		}
		records, err := ingest.Roster(table, mt, s.normalizer)
		if err != nil {
			return CycleResult{}, err
		}
		rosters[mt] = records
	}

	res := CycleResult{
		Rosters:         make(map[maintenance.MaintenanceType]int),
		RosterSnapshots: make(map[maintenance.MaintenanceType]string),
	}
	err = s.store.WithCycleTx(ctx, func(tx maintenance.CycleStore) error {
		n, err := tx.DeleteAll(ctx)
		if err != nil {
			return maintenance.NewStoreError("reset cycle", err)
		}
		res.DeletedEvents = n

		snap, err := tx.SaveEquipmentSnapshot(ctx, equipment)
		if err != nil {
			return maintenance.NewStoreError("save equipment", err)
		}
		res.EquipmentID, res.EquipmentCount = snap.ID, len(snap.Records)

		for _, mt := range maintenance.MaintenanceTypes {
			records, ok := rosters[mt]
			if !ok {
				continue
			}
			rs, err := tx.SaveRosterSnapshot(ctx, mt, records)
			if err != nil {
				return maintenance.NewStoreError("save roster", err)
			}
			res.Rosters[mt] = len(rs.Records)
			res.RosterSnapshots[mt] = rs.ID
		}

		m := s.clock.Stamp()
		if err := tx.SaveLastUpdate(ctx, m); err != nil {
			return maintenance.NewStoreError("save last update", err)
		}
		res.LastUpdate = m
		return nil
	})
	if err != nil {
		return CycleResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"deleted_events": res.DeletedEvents,
		"equipment":      res.EquipmentCount,
		"rosters":        res.Rosters,
	}).Info("maintenance cycle started")
	return res, nil
}

// ResetCycle clears the ledger without replacing any snapshot.
func (s *Service) ResetCycle(ctx context.Context) (int, error) {
	n, err := s.ledger.ResetCycle(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := s.Touch(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// =============================================================================
// DAILY REPORTS
// =============================================================================

// RecordDaily processes one daily report for mt.
func (s *Service) RecordDaily(ctx context.Context, mt maintenance.MaintenanceType, table *ingest.Table) (maintenance.BatchReport, error) {
	if !mt.Valid() {
		return maintenance.BatchReport{}, fmt.Errorf("%w: %q", maintenance.ErrUnknownMaintenanceType, mt)
	}
	rows, err := ingest.DailyReport(table, s.normalizer)
	if err != nil {
		return maintenance.BatchReport{}, err
	}
	report, err := s.ledger.RecordCompletion(ctx, mt, rows)
	if err != nil {
		return maintenance.BatchReport{}, err
	}
	if report.Inserted > 0 {
		if _, err := s.Touch(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

// =============================================================================
// VIEWS
// =============================================================================

// View merges the active roster of mt with the master list, decorates each
// row from the ledger and applies f. Rows are sorted by client, technician
// and identifier.
func (s *Service) View(ctx context.Context, mt maintenance.MaintenanceType, f maintenance.RowFilter) ([]maintenance.MergedRow, error) {
	rows, err := s.merged(ctx, mt)
	if err != nil {
		return nil, err
	}
	rows = maintenance.FilterRows(rows, f)
	maintenance.SortRows(rows)
	return rows, nil
}

func (s *Service) merged(ctx context.Context, mt maintenance.MaintenanceType) ([]maintenance.MergedRow, error) {
	if !mt.Valid() {
		return nil, fmt.Errorf("%w: %q", maintenance.ErrUnknownMaintenanceType, mt)
	}
	roster, err := s.store.LatestRoster(ctx, mt)
	if err != nil {
		return nil, maintenance.NewStoreError("load roster", err)
	}
	if roster == nil {
		return nil, fmt.Errorf("%w: %s", maintenance.ErrNoRoster, mt)
	}
	var master []maintenance.EquipmentRecord
	equipment, err := s.store.LatestEquipment(ctx)
	if err != nil {
		return nil, maintenance.NewStoreError("load equipment", err)
	}
	if equipment != nil {
		master = equipment.Records
	}

	done, err := s.ledger.CompletedSet(ctx, mt)
	if err != nil {
		return nil, err
	}
	rows := maintenance.Merge(roster.Records, master)
	maintenance.MarkCompletion(rows, func(id maintenance.EquipmentID) bool { return done[id] })
	return rows, nil
}

// StatusSummary is a Summary plus the headline counts shown above it.
type StatusSummary struct {
	maintenance.Summary
	MaintenanceType maintenance.MaintenanceType `json:"maintenance_type"`
	Technicians     int                         `json:"technicians"`
	Clients         int                         `json:"clients"`
}

// Summary aggregates the view of mt by key.
func (s *Service) Summary(ctx context.Context, mt maintenance.MaintenanceType, key maintenance.GroupKey) (StatusSummary, error) {
	rows, err := s.merged(ctx, mt)
	if err != nil {
		return StatusSummary{}, err
	}
	return StatusSummary{
		Summary:         maintenance.Summarize(rows, maintenance.RowCompleted, key),
		MaintenanceType: mt,
		Technicians:     maintenance.CountDistinct(rows, maintenance.ByTechnician),
		Clients:         maintenance.CountDistinct(rows, maintenance.ByClient),
	}, nil
}

// Breakdown drills into one group: the rows whose key equals value,
// summarised by the other key (a technician's clients, a client's
// technicians).
func (s *Service) Breakdown(ctx context.Context, mt maintenance.MaintenanceType, key maintenance.GroupKey, value string) (maintenance.Summary, error) {
	rows, err := s.merged(ctx, mt)
	if err != nil {
		return maintenance.Summary{}, err
	}
	f := maintenance.RowFilter{}
	if key == maintenance.ByClient {
		f.Client = value
	} else {
		f.Technician = value
	}
	return maintenance.Summarize(maintenance.FilterRows(rows, f), maintenance.RowCompleted, key.Other()), nil
}

// Export writes the full status report of mt.
func (s *Service) Export(ctx context.Context, mt maintenance.MaintenanceType, format export.Format, w io.Writer) error {
	rows, err := s.View(ctx, mt, maintenance.RowFilter{})
	if err != nil {
		return err
	}
	return export.Write(w, format, rows)
}

// ExportFileName names an export produced now.
func (s *Service) ExportFileName(format export.Format) string {
	return export.FileName(s.clock.Now(), format)
}

// ExportEvents writes the completion events of mt as CSV.
func (s *Service) ExportEvents(ctx context.Context, mt maintenance.MaintenanceType, w io.Writer) error {
	events, err := s.ledger.Events(ctx, mt)
	if err != nil {
		return err
	}
	return export.WriteEventsCSV(w, events)
}

// IsCompleted answers for one identifier; mt may be AnyMaintenanceType.
func (s *Service) IsCompleted(ctx context.Context, id maintenance.EquipmentID, mt maintenance.MaintenanceType) (bool, error) {
	return s.ledger.IsCompleted(ctx, id, mt)
}

// =============================================================================
// LAST UPDATE MARKER
// =============================================================================

// Touch stamps the marker with the current time.
func (s *Service) Touch(ctx context.Context) (maintenance.LastUpdateMarker, error) {
	m := s.clock.Stamp()
	if err := s.store.SaveLastUpdate(ctx, m); err != nil {
		return maintenance.LastUpdateMarker{}, maintenance.NewStoreError("save last update", err)
	}
	return m, nil
}

// LastUpdate returns the marker, or nil when no update was ever recorded.
func (s *Service) LastUpdate(ctx context.Context) (*maintenance.LastUpdateMarker, error) {
	m, err := s.store.LastUpdate(ctx)
	if err != nil {
		return nil, maintenance.NewStoreError("load last update", err)
	}
	return m, nil
}
