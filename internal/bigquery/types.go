package bigquery

import (
	"context"

	"github.com/dvloznov/finance-warehouse/internal/table"
)

// MartExporter publishes consolidated views to the analytical mart.
type MartExporter interface {
	// Export writes t under a new export ID and verifies the row counts.
	Export(ctx context.Context, t *table.Table) (ExportResult, error)

	// Close releases the underlying client.
	Close() error
}

// ExportResult describes one export run.
type ExportResult struct {
	ExportID   string          `json:"export_id"`
	Rows       int             `json:"rows"`
	Mismatches []CountMismatch `json:"mismatches,omitempty"`
}

// CountMismatch is a source file whose exported row count differs from the
// count read back.
type CountMismatch struct {
	SourceFile string `json:"source_file"`
	Expected   int64  `json:"expected"`
	Actual     int64  `json:"actual"`
}

// Verified reports whether every source file's count matched.
func (r ExportResult) Verified() bool {
	return len(r.Mismatches) == 0
}
