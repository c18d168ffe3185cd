// Package timetravel answers point-in-time, comparison and audit queries
// over the snapshot history of a warehouse.
package timetravel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/metrics"
	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
)

// Reader is the read side of the snapshot store. ListSnapshots returns
// snapshots newest first.
type Reader interface {
	ListSnapshots(ctx context.Context) ([]domain.Snapshot, error)
	ReadSnapshot(ctx context.Context, fileName string) (*table.Table, error)
}

// Engine runs time-travel queries. It holds no state besides its reader.
type Engine struct {
	store Reader
	log   zerolog.Logger
	loc   *time.Location
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithLocation sets the zone used to turn dates into end-of-day instants.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// New creates an Engine over store.
func New(store Reader, opts ...Option) *Engine {
	e := &Engine{store: store, log: zerolog.Nop(), loc: time.Local}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Versions lists every snapshot, newest first.
func (e *Engine) Versions(ctx context.Context) ([]domain.Snapshot, error) {
	snaps, err := e.store.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("Versions: %w", err)
	}
	return snaps, nil
}

// QueryAtTimestamp returns the latest snapshot created at or before at.
// It fails with domain.ErrNoData when every snapshot is newer.
func (e *Engine) QueryAtTimestamp(ctx context.Context, at time.Time) (domain.Snapshot, *table.Table, error) {
	snaps, err := e.store.ListSnapshots(ctx)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("at_timestamp", "error").Inc()
		return domain.Snapshot{}, nil, fmt.Errorf("QueryAtTimestamp: %w", err)
	}

	var chosen *domain.Snapshot
	for i := range snaps {
		s := &snaps[i]
		if s.CreatedAt.After(at) {
			continue
		}
		if chosen == nil || s.CreatedAt.After(chosen.CreatedAt) {
			chosen = s
		}
	}
	if chosen == nil {
		metrics.QueriesTotal.WithLabelValues("at_timestamp", "empty").Inc()
		return domain.Snapshot{}, nil, fmt.Errorf("QueryAtTimestamp: nothing at or before %s: %w", at.Format(time.RFC3339), domain.ErrNoData)
	}

	t, err := e.store.ReadSnapshot(ctx, chosen.FileName)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("at_timestamp", "error").Inc()
		return domain.Snapshot{}, nil, fmt.Errorf("QueryAtTimestamp: %w", err)
	}

	e.log.Debug().
		Time("at", at).
		Str("snapshot", chosen.FileName).
		Msg("Selected snapshot")
	metrics.QueriesTotal.WithLabelValues("at_timestamp", "ok").Inc()
	return *chosen, t, nil
}

// EndOfDay returns the last microsecond of d in loc.
func EndOfDay(d civil.Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 23, 59, 59, 999999000, loc)
}

// QueryAtDate is QueryAtTimestamp at the end of day d.
func (e *Engine) QueryAtDate(ctx context.Context, d civil.Date) (domain.Snapshot, *table.Table, error) {
	return e.QueryAtTimestamp(ctx, EndOfDay(d, e.loc))
}

// LatestData returns the newest snapshot, domain.ErrNoData when none exist.
func (e *Engine) LatestData(ctx context.Context) (domain.Snapshot, *table.Table, error) {
	snaps, err := e.store.ListSnapshots(ctx)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("LatestData: %w", err)
	}
	if len(snaps) == 0 {
		return domain.Snapshot{}, nil, fmt.Errorf("LatestData: %w", domain.ErrNoData)
	}
	t, err := e.store.ReadSnapshot(ctx, snaps[0].FileName)
	if err != nil {
		return domain.Snapshot{}, nil, fmt.Errorf("LatestData: %w", err)
	}
	return snaps[0], t, nil
}

// Comparison describes how version B differs from version A.
type Comparison struct {
	VersionA       string     `json:"version_a"`
	VersionB       string     `json:"version_b"`
	RowsA          int        `json:"rows_a"`
	RowsB          int        `json:"rows_b"`
	RowChange      int        `json:"row_change"`
	NewColumns     []string   `json:"new_columns"`
	RemovedColumns []string   `json:"removed_columns"`
	CommonColumns  []string   `json:"common_columns"`
	DateRangeA     *DateRange `json:"date_range_a,omitempty"`
	DateRangeB     *DateRange `json:"date_range_b,omitempty"`
}

// CompareVersions compares two snapshots. A missing file is
// domain.ErrNotFound; an unreadable one compares as empty.
func (e *Engine) CompareVersions(ctx context.Context, versionA, versionB string) (Comparison, error) {
	a, err := e.readForScan(ctx, "compare", versionA)
	if err != nil {
		return Comparison{}, fmt.Errorf("CompareVersions: %w", err)
	}
	b, err := e.readForScan(ctx, "compare", versionB)
	if err != nil {
		return Comparison{}, fmt.Errorf("CompareVersions: %w", err)
	}

	colsA, colsB := nameSet(a), nameSet(b)
	cmp := Comparison{
		VersionA:       versionA,
		VersionB:       versionB,
		RowsA:          a.Len(),
		RowsB:          b.Len(),
		RowChange:      b.Len() - a.Len(),
		NewColumns:     difference(colsB, colsA),
		RemovedColumns: difference(colsA, colsB),
		CommonColumns:  intersection(colsA, colsB),
	}
	if a.Has(schema.BookingDate) && b.Has(schema.BookingDate) {
		cmp.DateRangeA = dateRangeOf(a)
		cmp.DateRangeB = dateRangeOf(b)
	}
	metrics.QueriesTotal.WithLabelValues("compare", "ok").Inc()
	return cmp, nil
}

// Changes lists the versions strictly newer than Since, newest first.
type Changes struct {
	Since         string           `json:"since"`
	NewerVersions []VersionSummary `json:"newer_versions"`
}

// GetChangesSince summarizes every snapshot listed before version in the
// newest-first listing. An unknown version is domain.ErrNotFound.
func (e *Engine) GetChangesSince(ctx context.Context, version string) (Changes, error) {
	snaps, err := e.store.ListSnapshots(ctx)
	if err != nil {
		return Changes{}, fmt.Errorf("GetChangesSince: %w", err)
	}

	idx := -1
	for i, s := range snaps {
		if s.FileName == version {
			idx = i
			break
		}
	}
	if idx < 0 {
		metrics.QueriesTotal.WithLabelValues("changes", "error").Inc()
		return Changes{}, fmt.Errorf("GetChangesSince: %s: %w", version, domain.ErrNotFound)
	}

	out := Changes{Since: version, NewerVersions: make([]VersionSummary, 0, idx)}
	for _, s := range snaps[:idx] {
		t, err := e.readForScan(ctx, "changes", s.FileName)
		if err != nil {
			t = table.New()
		}
		out.NewerVersions = append(out.NewerVersions, Summarize(s, t))
	}

	outcome := "ok"
	if len(out.NewerVersions) == 0 {
		outcome = "empty"
	}
	metrics.QueriesTotal.WithLabelValues("changes", outcome).Inc()
	return out, nil
}

// CreateConsolidatedView merges versions into one table. Rows sharing a
// business key keep the one with the latest _loaded_at; the result is
// sorted by booking date. Without any business-key column every row is
// kept. Unreadable versions contribute nothing.
func (e *Engine) CreateConsolidatedView(ctx context.Context, versions []string) (*table.Table, error) {
	parts := make([]*table.Table, 0, len(versions))
	for _, v := range versions {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("CreateConsolidatedView: %w", err)
		}
		t, err := e.readForScan(ctx, "consolidate", v)
		if err != nil {
			continue
		}
		parts = append(parts, t)
	}

	merged := table.Concat(parts...)
	before := merged.Len()

	var key []string
	for _, k := range schema.BusinessKey {
		if merged.Has(k) {
			key = append(key, k)
		}
	}
	if len(key) > 0 {
		merged = merged.SortBy(table.SortKey{Column: schema.LoadedAt, Desc: true}).Unique(key...)
	} else {
		e.log.Warn().Msg("No business key columns, keeping every row")
	}
	merged = merged.SortBy(table.SortKey{Column: schema.BookingDate})

	e.log.Info().
		Int("versions", len(parts)).
		Int("rows_in", before).
		Int("rows_out", merged.Len()).
		Msg("Consolidated view built")
	metrics.QueriesTotal.WithLabelValues("consolidate", outcomeOf(merged)).Inc()
	return merged, nil
}

// AuditFilter narrows an audit trail. Zero fields are not applied.
type AuditFilter struct {
	Account string
	From    *civil.Date
	To      *civil.Date
}

// AuditTrail collects matching rows from every snapshot, tagged with
// _version_file and _version_created and sorted by version creation then
// booking date. Each filter applies only to snapshots having its column.
// No matches yields an empty table.
func (e *Engine) AuditTrail(ctx context.Context, f AuditFilter) (*table.Table, error) {
	snaps, err := e.store.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("AuditTrail: %w", err)
	}

	var parts []*table.Table
	for _, s := range snaps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("AuditTrail: %w", err)
		}
		t, err := e.readForScan(ctx, "audit", s.FileName)
		if err != nil {
			continue
		}
		matched := t.Filter(auditPredicate(t, f))
		if matched.Len() == 0 {
			continue
		}
		matched = matched.Clone()
		matched.SetConstant(table.Column{Name: schema.VersionFile, Type: table.String}, s.FileName)
		matched.SetConstant(table.Column{Name: schema.VersionCreated, Type: table.Timestamp}, s.CreatedAt)
		parts = append(parts, matched)
	}

	if len(parts) == 0 {
		metrics.QueriesTotal.WithLabelValues("audit", "empty").Inc()
		return emptyAuditTable(), nil
	}

	out := table.Concat(parts...).SortBy(
		table.SortKey{Column: schema.VersionCreated},
		table.SortKey{Column: schema.BookingDate},
	)
	metrics.QueriesTotal.WithLabelValues("audit", "ok").Inc()
	return out, nil
}

func auditPredicate(t *table.Table, f AuditFilter) func(table.Row) bool {
	useAccount := f.Account != "" && t.Has(schema.LedgerAccountCode)
	useDates := (f.From != nil || f.To != nil) && t.Has(schema.BookingDate)
	return func(r table.Row) bool {
		if useAccount {
			if acc, ok := r.String(schema.LedgerAccountCode); !ok || acc != f.Account {
				return false
			}
		}
		if useDates {
			d, ok := r.Date(schema.BookingDate)
			if !ok {
				return false
			}
			if f.From != nil && d.Before(*f.From) {
				return false
			}
			if f.To != nil && d.After(*f.To) {
				return false
			}
		}
		return true
	}
}

func emptyAuditTable() *table.Table {
	cols := append(schema.Full(),
		table.Column{Name: schema.VersionFile, Type: table.String},
		table.Column{Name: schema.VersionCreated, Type: table.Timestamp},
	)
	return table.New(cols...)
}

// readForScan reads one snapshot inside a multi-version operation. A
// missing file is returned as an error; any other failure is logged and
// counted, and the snapshot reads as empty.
func (e *Engine) readForScan(ctx context.Context, op, name string) (*table.Table, error) {
	t, err := e.store.ReadSnapshot(ctx, name)
	if err == nil {
		return t, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		if op == "compare" {
			return nil, err
		}
		e.log.Warn().Err(err).Str("snapshot", name).Str("operation", op).Msg("Snapshot not found, skipping")
		metrics.SnapshotReadErrorsTotal.WithLabelValues(op).Inc()
		return nil, err
	}
	e.log.Warn().Err(err).Str("snapshot", name).Str("operation", op).Msg("Unreadable snapshot, treating as empty")
	metrics.SnapshotReadErrorsTotal.WithLabelValues(op).Inc()
	return table.New(), nil
}

func outcomeOf(t *table.Table) string {
	if t.Len() == 0 {
		return "empty"
	}
	return "ok"
}

func nameSet(t *table.Table) map[string]struct{} {
	names := t.ColumnNames()
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func difference(a, b map[string]struct{}) []string {
	out := []string{}
	for n := range a {
		if _, ok := b[n]; !ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func intersection(a, b map[string]struct{}) []string {
	out := []string{}
	for n := range a {
		if _, ok := b[n]; ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
