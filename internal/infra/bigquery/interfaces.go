package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	bq "github.com/dvloznov/finance-warehouse/internal/bigquery"
	"github.com/dvloznov/finance-warehouse/internal/table"
)

type MartExporter = bq.MartExporter
type ExportResult = bq.ExportResult
type CountMismatch = bq.CountMismatch

// BigQueryMartExporter is the concrete MartExporter. It holds a shared
// BigQuery client.
type BigQueryMartExporter struct {
	client  *bigquery.Client
	dataset string
	table   string
	log     zerolog.Logger
	now     func() time.Time
}

// NewBigQueryMartExporter creates an exporter writing to projectID.dataset.table.
func NewBigQueryMartExporter(ctx context.Context, projectID, dataset, tableID string, log zerolog.Logger) (*BigQueryMartExporter, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewBigQueryMartExporter: project ID is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryMartExporter: creating client: %w", err)
	}
	return &BigQueryMartExporter{
		client:  client,
		dataset: dataset,
		table:   tableID,
		log:     log,
		now:     time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (e *BigQueryMartExporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Export writes t under a fresh export ID and verifies the per-source-file
// row counts by reading them back.
func (e *BigQueryMartExporter) Export(ctx context.Context, t *table.Table) (ExportResult, error) {
	if err := EnsureTableWithClient(ctx, e.client, e.dataset, e.table); err != nil {
		return ExportResult{}, fmt.Errorf("Export: %w", err)
	}

	res := ExportResult{ExportID: uuid.New().String()}
	rows := RowsFromTable(t, res.ExportID, e.now())
	if err := InsertTransactionsWithClient(ctx, e.client, e.dataset, e.table, rows); err != nil {
		return res, fmt.Errorf("Export: %w", err)
	}
	res.Rows = len(rows)

	actual, err := CountBySourceFileWithClient(ctx, e.client, e.dataset, e.table, res.ExportID)
	if err != nil {
		return res, fmt.Errorf("Export: verify: %w", err)
	}
	res.Mismatches = CompareCounts(ExpectedCounts(rows), actual)

	e.log.Info().
		Str("export_id", res.ExportID).
		Int("rows", res.Rows).
		Int("mismatches", len(res.Mismatches)).
		Msg("Consolidated view exported")
	return res, nil
}

var _ MartExporter = (*BigQueryMartExporter)(nil)
