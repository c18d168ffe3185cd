package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
)

const insertBatchSize = 500

// RowsFromTable converts a consolidated view into mart rows. Rows without a
// booking date cannot satisfy the REQUIRED column and are skipped.
func RowsFromTable(t *table.Table, exportID string, exportedAt time.Time) []*FinancialTransactionRow {
	rows := make([]*FinancialTransactionRow, 0, t.Len())
	for _, rec := range schema.Records(t.Filter(func(r table.Row) bool {
		return !r.IsNull(schema.BookingDate)
	})) {
		rows = append(rows, RowFromRecord(rec, exportID, exportedAt))
	}
	return rows
}

// ExpectedCounts tallies rows per source file.
func ExpectedCounts(rows []*FinancialTransactionRow) map[string]int64 {
	counts := make(map[string]int64)
	for _, r := range rows {
		counts[r.SourceFile]++
	}
	return counts
}

// CompareCounts returns the mismatches between expected and actual, sorted
// by source file.
func CompareCounts(expected, actual map[string]int64) []CountMismatch {
	var out []CountMismatch
	seen := make(map[string]bool, len(expected))
	for src, n := range expected {
		seen[src] = true
		if actual[src] != n {
			out = append(out, CountMismatch{SourceFile: src, Expected: n, Actual: actual[src]})
		}
	}
	for src, n := range actual {
		if !seen[src] {
			out = append(out, CountMismatch{SourceFile: src, Actual: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceFile < out[j].SourceFile })
	return out
}

// EnsureTableWithClient creates the mart table from FinancialTransactionRow
// when it does not exist yet.
func EnsureTableWithClient(ctx context.Context, client *bigquery.Client, datasetID, tableID string) error {
	tbl := client.Dataset(datasetID).Table(tableID)
	_, err := tbl.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: metadata: %w", err)
	}

	sch, err := bigquery.InferSchema(FinancialTransactionRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: infer schema: %w", err)
	}
	md := &bigquery.TableMetadata{
		Schema: sch,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.MonthPartitioningType,
			Field: "booking_date",
		},
	}
	if err := tbl.Create(ctx, md); err != nil {
		return fmt.Errorf("EnsureTable: create: %w", err)
	}
	return nil
}

// InsertTransactionsWithClient streams rows into the mart table in batches.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, datasetID, tableID string, rows []*FinancialTransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.Dataset(datasetID).Table(tableID).Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("InsertTransactions: inserting rows %d-%d: %w", start, end, err)
		}
	}

	return nil
}

// CountBySourceFileWithClient reads back per-source-file row counts for one export.
func CountBySourceFileWithClient(ctx context.Context, client *bigquery.Client, datasetID, tableID, exportID string) (map[string]int64, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT source_file, COUNT(*) AS row_count
		FROM `+"`%s.%s.%s`"+`
		WHERE export_id = @export_id
		GROUP BY source_file
	`, client.Project(), datasetID, tableID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "export_id", Value: exportID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("CountBySourceFile: query read: %w", err)
	}

	counts := make(map[string]int64)
	for {
		var r struct {
			SourceFile string `bigquery:"source_file"`
			RowCount   int64  `bigquery:"row_count"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CountBySourceFile: iter next: %w", err)
		}
		counts[r.SourceFile] = r.RowCount
	}

	return counts, nil
}
