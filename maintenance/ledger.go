/*
ledger.go - Completion ledger

PURPOSE:
  The Ledger is the only authority on whether an equipment was serviced for
  a maintenance type in the current cycle. Views never store a "done" flag;
  they ask the ledger.

CRITICAL INVARIANTS:
  1. AT MOST ONCE: one event per (EquipmentID, MaintenanceType), no matter
     how often the same report is processed
  2. NO UPDATES: an event is never edited; the whole ledger is wiped when a
     new cycle starts (ResetCycle)
  3. ATOMIC BATCHES: a daily report is recorded in one transaction; a store
     failure leaves the ledger as it was
  4. AUDITABLE: every event says whether its attribution came from the
     roster or from the report itself (Source)

ROW OUTCOMES:
  Each report row yields a RowResult:
    recorded   - a new event was written
    duplicate  - an event already existed; nothing written
    skipped    - blank identifier, or no attribution available

ATTRIBUTION:
  The active roster of the report's maintenance type is searched for the
  identifier. Every distinct (technician, client) pairing found is credited
  on the one event; the first is the primary. With no roster match the
  report row's own technician and client are used, if both are present and
  the fallback is enabled.

SEE ALSO:
  - store.go: CompletionStore / TxCompletionStore
  - aggregate.go: Consumes IsCompleted through a predicate
*/
package maintenance

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// BATCH RESULTS
// =============================================================================

// RowOutcome classifies one report row.
type RowOutcome string

const (
	OutcomeRecorded  RowOutcome = "recorded"
	OutcomeDuplicate RowOutcome = "duplicate"
	OutcomeSkipped   RowOutcome = "skipped"
)

// RowResult is the per-row result of RecordCompletion.
type RowResult struct {
	Row         int         `json:"row"`
	EquipmentID EquipmentID `json:"equipment_id,omitempty"`
	Outcome     RowOutcome  `json:"outcome"`
	Reason      SkipReason  `json:"reason,omitempty"`
	Source      EventSource `json:"source,omitempty"`
}

// BatchReport summarises a RecordCompletion call.
type BatchReport struct {
	Type       MaintenanceType `json:"maintenance_type"`
	Inserted   int             `json:"inserted"`
	Duplicates int             `json:"duplicates"`
	Skipped    int             `json:"skipped"`
	Rows       []RowResult     `json:"rows"`
}

func (b *BatchReport) add(r RowResult) {
	switch r.Outcome {
	case OutcomeRecorded:
		b.Inserted++
	case OutcomeDuplicate:
		b.Duplicates++
	case OutcomeSkipped:
		b.Skipped++
	}
	b.Rows = append(b.Rows, r)
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger records and answers completion questions.
type Ledger struct {
	store             TxCompletionStore
	rosters           RosterStore
	clock             Clock
	reportAttribution bool
	log               logrus.FieldLogger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithClock sets the clock used for default report dates and RecordedAt.
func WithClock(c Clock) LedgerOption {
	return func(l *Ledger) { l.clock = c }
}

// WithReportAttribution toggles the fallback to the report row's own
// technician and client when the roster has no match. Enabled by default.
func WithReportAttribution(enabled bool) LedgerOption {
	return func(l *Ledger) { l.reportAttribution = enabled }
}

// WithLogger sets the logger. Defaults to a discarding logger.
func WithLogger(log logrus.FieldLogger) LedgerOption {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLedger creates a ledger over store, resolving attributions from rosters.
func NewLedger(store TxCompletionStore, rosters RosterStore, opts ...LedgerOption) *Ledger {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	l := &Ledger{
		store:             store,
		rosters:           rosters,
		clock:             SystemClock(),
		reportAttribution: true,
		log:               discard,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordCompletion records the rows of one daily report for type t.
// Row-level problems are reported in the BatchReport; an error is returned
// only for an invalid type or a store failure, in which case nothing from
// the batch is persisted.
func (l *Ledger) RecordCompletion(ctx context.Context, t MaintenanceType, rows []DailyReportRow) (BatchReport, error) {
	if !t.Valid() {
		return BatchReport{}, ErrUnknownMaintenanceType
	}

	pairings, err := l.rosterPairings(ctx, t)
	if err != nil {
		return BatchReport{}, err
	}

	var report BatchReport
	err = l.store.WithTx(ctx, func(tx CompletionStore) error {
		report = BatchReport{Type: t, Rows: make([]RowResult, 0, len(rows))}
		for _, row := range rows {
			res, err := l.recordRow(ctx, tx, t, row, pairings)
			if err != nil {
				return err
			}
			report.add(res)
		}
		return nil
	})
	if err != nil {
		return BatchReport{}, NewStoreError("record completions", err)
	}

	l.log.WithFields(logrus.Fields{
		"maintenance_type": t,
		"inserted":         report.Inserted,
		"duplicates":       report.Duplicates,
		"skipped":          report.Skipped,
	}).Info("daily report recorded")
	return report, nil
}

func (l *Ledger) recordRow(ctx context.Context, tx CompletionStore, t MaintenanceType, row DailyReportRow, pairings map[EquipmentID][]Attribution) (RowResult, error) {
	res := RowResult{Row: row.Row}

	id, ok := NormalizeEquipmentID(row.EquipmentID)
	if !ok {
		res.Outcome, res.Reason = OutcomeSkipped, SkipMissingEquipmentID
		return res, nil
	}
	res.EquipmentID = id

	exists, err := tx.Exists(ctx, id, t)
	if err != nil {
		return res, err
	}
	if exists {
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	attributions := pairings[id]
	source := SourceRoster
	if len(attributions) == 0 {
		tech, client := strings.TrimSpace(row.Technician), strings.TrimSpace(row.Client)
		if !l.reportAttribution || tech == "" || client == "" {
			res.Outcome, res.Reason = OutcomeSkipped, SkipNoAttribution
			return res, nil
		}
		attributions = []Attribution{{Technician: tech, Client: client}}
		source = SourceReport
	}

	reportDate := row.ReportDate
	if reportDate.IsZero() {
		reportDate = l.clock.Today()
	}

	ev := CompletionEvent{
		ID:              uuid.NewString(),
		EquipmentID:     id,
		MaintenanceType: t,
		Technician:      attributions[0].Technician,
		Client:          attributions[0].Client,
		ReportDate:      reportDate,
		RecordedAt:      l.clock.Now(),
		Source:          source,
		Attributions:    attributions,
	}
	if err := tx.Insert(ctx, ev); err != nil {
		// A concurrent writer got there between Exists and Insert.
		if errors.Is(err, ErrDuplicateCompletion) {
			res.Outcome = OutcomeDuplicate
			return res, nil
		}
		return res, err
	}

	res.Outcome, res.Source = OutcomeRecorded, source
	return res, nil
}

// rosterPairings indexes the active roster of t by identifier, keeping
// distinct (technician, client) pairings in roster order.
func (l *Ledger) rosterPairings(ctx context.Context, t MaintenanceType) (map[EquipmentID][]Attribution, error) {
	snap, err := l.rosters.LatestRoster(ctx, t)
	if err != nil {
		return nil, NewStoreError("load roster", err)
	}
	out := make(map[EquipmentID][]Attribution)
	if snap == nil {
		return out, nil
	}
	for _, rec := range snap.Records {
		id, ok := NormalizeEquipmentID(string(rec.EquipmentID))
		if !ok {
			continue
		}
		a := Attribution{Technician: rec.Technician, Client: rec.Client}
		if !containsAttribution(out[id], a) {
			out[id] = append(out[id], a)
		}
	}
	return out, nil
}

func containsAttribution(list []Attribution, a Attribution) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

// =============================================================================
// QUERIES
// =============================================================================

// IsCompleted reports whether id has an event for t. AnyMaintenanceType
// checks every type.
func (l *Ledger) IsCompleted(ctx context.Context, id EquipmentID, t MaintenanceType) (bool, error) {
	if t != AnyMaintenanceType && !t.Valid() {
		return false, ErrUnknownMaintenanceType
	}
	norm, ok := NormalizeEquipmentID(string(id))
	if !ok {
		return false, nil
	}
	done, err := l.store.Exists(ctx, norm, t)
	return done, NewStoreError("check completion", err)
}

// CompletedSet returns every equipment completed for t, for bulk view
// decoration.
func (l *Ledger) CompletedSet(ctx context.Context, t MaintenanceType) (map[EquipmentID]bool, error) {
	set, err := l.store.CompletedIDs(ctx, t)
	if err != nil {
		return nil, NewStoreError("list completions", err)
	}
	return set, nil
}

// Events lists recorded events for t in recording order.
func (l *Ledger) Events(ctx context.Context, t MaintenanceType) ([]CompletionEvent, error) {
	evs, err := l.store.Events(ctx, t)
	if err != nil {
		return nil, NewStoreError("list events", err)
	}
	return evs, nil
}

// ResetCycle deletes every completion event of every type. A cycle start
// does the same through Store.WithCycleTx.
func (l *Ledger) ResetCycle(ctx context.Context) (int, error) {
	n, err := l.store.DeleteAll(ctx)
	if err != nil {
		return 0, NewStoreError("reset cycle", err)
	}
	l.log.WithField("deleted", n).Info("completion ledger reset")
	return n, nil
}
