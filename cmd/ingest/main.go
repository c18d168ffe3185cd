package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/config"
	"github.com/dvloznov/finance-warehouse/internal/gcsuploader"
	"github.com/dvloznov/finance-warehouse/internal/ingest"
	"github.com/dvloznov/finance-warehouse/internal/logger"
	"github.com/dvloznov/finance-warehouse/internal/warehouse"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	file := flag.String("file", "", "Ingest a single extract (local path, name under --raw-dir, or gs:// URI)")
	force := flag.Bool("force", false, "Re-ingest files already present in the ingestion log")
	list := flag.Bool("list", false, "List available snapshot versions and exit")
	migrateFrom := flag.String("migrate-from", "", "Migrate the legacy DuckDB database at this path")
	rawDir := flag.String("raw-dir", "", "Directory holding the raw extracts (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *rawDir != "" {
		cfg.Ingestion.RawDir = *rawDir
	}

	log := logger.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := warehouse.New(cfg.Catalog.Warehouse,
		warehouse.WithLogFile(cfg.Ingestion.LogFile),
		warehouse.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open warehouse")
	}

	if *list {
		if err := listVersions(ctx, store); err != nil {
			log.Fatal().Err(err).Msg("Failed to list versions")
		}
		return
	}

	opts := []ingest.Option{
		ingest.WithLogger(log),
		ingest.WithExtensions(cfg.Ingestion.Extensions...),
	}
	if strings.HasPrefix(*file, "gs://") {
		gcs, err := gcsuploader.NewGCSStorageService(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer gcs.Close()
		opts = append(opts, ingest.WithFetcher(gcs, cfg.Ingestion.RawDir))
	}
	ing := ingest.New(store, opts...)

	switch {
	case *migrateFrom != "":
		runMigration(ctx, ing, *migrateFrom, log)
	case *file != "":
		runSingle(ctx, ing, resolveSource(*file, cfg.Ingestion.RawDir), *force)
	default:
		runBatch(ctx, ing, cfg.Ingestion.RawDir, *force, log)
	}
}

// resolveSource falls back to the raw directory when path does not exist as given.
func resolveSource(path, rawDir string) string {
	if strings.HasPrefix(path, "gs://") {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	candidate := filepath.Join(rawDir, path)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	fmt.Fprintf(os.Stderr, "Error: file not found: %s\n", path)
	os.Exit(1)
	return ""
}

func runSingle(ctx context.Context, ing *ingest.Ingester, path string, force bool) {
	res := ing.IngestOne(ctx, path, force)
	printResult(res)
	if !res.Success {
		os.Exit(1)
	}
}

func runBatch(ctx context.Context, ing *ingest.Ingester, rawDir string, force bool, log zerolog.Logger) {
	log.Info().Str("raw_dir", rawDir).Bool("force", force).Msg("Starting batch ingestion")

	sum, err := ing.IngestAll(ctx, rawDir, force)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch ingestion failed")
	}
	if len(sum.Files) == 0 {
		fmt.Printf("No extracts found in %s\n", rawDir)
		return
	}

	for _, res := range sum.Files {
		printResult(res)
	}
	fmt.Printf("\nProcessed: %d  Skipped: %d  Failed: %d\n", sum.Processed, sum.Skipped, sum.Failed)
	if sum.Failed > 0 {
		os.Exit(1)
	}
}

func runMigration(ctx context.Context, ing *ingest.Ingester, path string, log zerolog.Logger) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: legacy database not found: %s\n", path)
		os.Exit(1)
	}

	db, err := ingest.OpenLegacy(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open legacy database")
	}
	defer db.Close()

	snap, err := ing.MigrateExistingData(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
	fmt.Printf("Migrated %d rows into %s\n", snap.RowCount, snap.FileName)
}

func printResult(res ingest.Result) {
	switch {
	case !res.Success:
		fmt.Printf("FAILED   %s: %s (%s)\n", res.File, res.Reason, res.Error)
	case res.Skipped():
		fmt.Printf("SKIPPED  %s: already processed\n", res.File)
	default:
		fmt.Printf("OK       %s: %d rows -> %s\n", res.File, res.RowsWritten, res.Snapshot)
	}
}

func listVersions(ctx context.Context, store *warehouse.Store) error {
	snaps, err := store.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("No snapshot versions found.")
		return nil
	}

	fmt.Printf("%-60s %10s %8s  %s\n", "FILE", "SIZE_MB", "ROWS", "CREATED")
	for _, s := range snaps {
		fmt.Printf("%-60s %10.2f %8d  %s\n", s.FileName, s.SizeMB(), s.RowCount, s.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
