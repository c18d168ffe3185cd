package domain

import (
	"math"
	"time"
)

// Snapshot describes one immutable parquet file in the warehouse.
type Snapshot struct {
	ID             string    `json:"id"`
	FileName       string    `json:"file"`
	FilePath       string    `json:"-"`
	CreatedAt      time.Time `json:"created"`
	ModifiedAt     time.Time `json:"modified"`
	SizeBytes      int64     `json:"size_bytes"`
	SourceFileName string    `json:"source_file,omitempty"`
	RowCount       int64     `json:"rows"`
	DataVersion    int64     `json:"data_version,omitempty"`
}

// SizeMB returns the file size in megabytes rounded to two decimals.
func (s Snapshot) SizeMB() float64 {
	return math.Round(float64(s.SizeBytes)/(1024*1024)*100) / 100
}

// IngestionLogEntry is one parsed line of the ingestion log.
type IngestionLogEntry struct {
	Timestamp          time.Time `json:"timestamp"`
	SourceFileName     string    `json:"source_file"`
	OutputSnapshotFile string    `json:"output_file"`
	RowCount           int       `json:"rows"`
}
