// Package ingest turns raw spreadsheet extracts into warehouse snapshots.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/gcs"
	"github.com/dvloznov/finance-warehouse/internal/metrics"
	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
	"github.com/dvloznov/finance-warehouse/internal/warehouse"
)

// Store is the warehouse surface ingestion writes through.
type Store interface {
	IsAlreadyProcessed(sourceFileName string) (bool, error)
	WriteSnapshot(ctx context.Context, t *table.Table, fileName string, meta warehouse.Meta) (domain.Snapshot, error)
	AppendLog(sourceFileName, outputFileName string, rowCount int) error
	Remove(fileName string) error
	Now() time.Time
}

// Fetcher downloads remote extracts given as gs:// URIs.
type Fetcher = gcs.Fetcher

// Result is the outcome of ingesting one file. Failures are values, never
// errors returned past IngestOne.
type Result struct {
	File        string `json:"file"`
	Success     bool   `json:"success"`
	RowsWritten int    `json:"rows_written"`
	Reason      string `json:"reason,omitempty"`
	Snapshot    string `json:"snapshot,omitempty"`
	Error       string `json:"error,omitempty"`
	Err         error  `json:"-"`
}

// Skipped reports whether the file was short-circuited as already processed.
func (r Result) Skipped() bool { return r.Success && r.Reason == ReasonAlreadyProcessed }

// Summary aggregates a batch. Skipped files count as processed and are
// also tallied in Skipped.
type Summary struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Files     []Result `json:"files"`
}

// Ingester discovers, validates and writes extracts.
type Ingester struct {
	store       Store
	validator   *schema.Validator
	reader      ExtractReader
	fetcher     Fetcher
	downloadDir string
	extensions  []string
	progress    ProgressFunc
	log         zerolog.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

func WithLogger(log zerolog.Logger) Option {
	return func(i *Ingester) { i.log = log }
}

func WithValidator(v *schema.Validator) Option {
	return func(i *Ingester) { i.validator = v }
}

func WithReader(r ExtractReader) Option {
	return func(i *Ingester) { i.reader = r }
}

// WithExtensions sets the extract extensions picked up by Discover.
func WithExtensions(exts ...string) Option {
	return func(i *Ingester) {
		if len(exts) > 0 {
			i.extensions = exts
		}
	}
}

// WithProgress installs a callback receiving one event per pipeline step.
func WithProgress(fn ProgressFunc) Option {
	return func(i *Ingester) { i.progress = fn }
}

// WithFetcher enables gs:// sources, downloading them into dir first.
func WithFetcher(f Fetcher, dir string) Option {
	return func(i *Ingester) {
		i.fetcher = f
		i.downloadDir = dir
	}
}

// New creates an Ingester writing to store.
func New(store Store, opts ...Option) *Ingester {
	i := &Ingester{
		store:      store,
		reader:     ExcelReader{},
		extensions: []string{".xlsx", ".xls"},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.validator == nil {
		i.validator = schema.NewValidator(i.log)
	}
	return i
}

// Discover lists the extracts in rawDir, sorted by path. Spreadsheet lock
// files (~$name.xlsx) are ignored.
func (i *Ingester) Discover(rawDir string) ([]string, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, fmt.Errorf("Discover: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		if i.supported(e.Name()) {
			paths = append(paths, filepath.Join(rawDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (i *Ingester) supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range i.extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// IngestOne ingests a single extract. Unless force is set, a source whose
// name is already in the ingestion log is skipped with success.
func (i *Ingester) IngestOne(ctx context.Context, path string, force bool) Result {
	start := time.Now()
	defer func() { metrics.IngestDurationSeconds.Observe(time.Since(start).Seconds()) }()

	if strings.HasPrefix(path, "gs://") {
		local, err := i.fetch(ctx, path)
		if err != nil {
			return i.failed(filepath.Base(path), &StepError{Reason: ReasonFetch, Err: err})
		}
		path = local
	}

	state := &State{SourcePath: path, SourceName: filepath.Base(path), Force: force}
	log := i.log.With().Str("source_file", state.SourceName).Logger()

	err := newIngestionPipeline(i.store, i.reader, i.validator).OnProgress(i.progress).Execute(ctx, state)
	if err != nil {
		return i.failed(state.SourceName, err)
	}

	if state.AlreadyProcessed {
		log.Info().Msg("Skipping already processed extract")
		metrics.IngestFilesTotal.WithLabelValues("skipped").Inc()
		return Result{File: state.SourceName, Success: true, Reason: ReasonAlreadyProcessed}
	}

	rows := state.Clean.Len()
	log.Info().
		Str("snapshot", state.SnapshotFile).
		Int("rows", rows).
		Msg("Extract ingested")
	metrics.IngestFilesTotal.WithLabelValues("success").Inc()
	metrics.IngestRowsTotal.Add(float64(rows))

	return Result{
		File:        state.SourceName,
		Success:     true,
		RowsWritten: rows,
		Snapshot:    state.SnapshotFile,
	}
}

func (i *Ingester) failed(name string, err error) Result {
	reason := reasonOf(err)
	i.log.Error().
		Err(err).
		Str("source_file", name).
		Str("reason", reason).
		Msg("Extract ingestion failed")
	metrics.IngestFilesTotal.WithLabelValues("failed").Inc()
	return Result{File: name, Reason: reason, Error: err.Error(), Err: err}
}

// fetch downloads a gs:// extract into the download directory.
func (i *Ingester) fetch(ctx context.Context, uri string) (string, error) {
	if i.fetcher == nil {
		return "", fmt.Errorf("fetch: no storage configured for %s", uri)
	}
	data, err := i.fetcher.FetchFromGCS(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	dir := i.downloadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("fetch: create %s: %w", dir, err)
	}
	local := filepath.Join(dir, i.fetcher.ExtractFilenameFromGCSURI(uri))
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return "", fmt.Errorf("fetch: write %s: %w", local, err)
	}
	i.log.Info().Str("uri", uri).Str("path", local).Msg("Fetched remote extract")
	return local, nil
}

// IngestAll ingests every extract in rawDir in path order. A failing file
// never stops the batch; the error return covers discovery and
// cancellation only.
func (i *Ingester) IngestAll(ctx context.Context, rawDir string, force bool) (Summary, error) {
	paths, err := i.Discover(rawDir)
	if err != nil {
		return Summary{}, fmt.Errorf("IngestAll: %w", err)
	}

	sum := Summary{Files: make([]Result, 0, len(paths))}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("IngestAll: %w", err)
		}
		res := i.IngestOne(ctx, p, force)
		sum.Files = append(sum.Files, res)
		switch {
		case !res.Success:
			sum.Failed++
		case res.Skipped():
			sum.Processed++
			sum.Skipped++
		default:
			sum.Processed++
		}
	}

	i.log.Info().
		Int("processed", sum.Processed).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Msg("Batch ingestion finished")
	return sum, nil
}
