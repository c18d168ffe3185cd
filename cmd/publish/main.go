package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/config"
	"github.com/dvloznov/finance-warehouse/internal/gcsuploader"
	infraBQ "github.com/dvloznov/finance-warehouse/internal/infra/bigquery"
	"github.com/dvloznov/finance-warehouse/internal/logger"
	"github.com/dvloznov/finance-warehouse/internal/timetravel"
	"github.com/dvloznov/finance-warehouse/internal/warehouse"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "gcs":
		runGCS(os.Args[2:])
	case "bigquery":
		runBigQuery(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Warehouse publisher")
	fmt.Println("\nUsage:")
	fmt.Println("  publish <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  gcs       Mirror snapshots and the ingestion log to a GCS bucket")
	fmt.Println("  bigquery  Export a consolidated view to the BigQuery mart table")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'publish <command> -h' for more information on a command.")
}

func setup(configPath string) (*config.Config, *warehouse.Store, zerolog.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel)
	store, err := warehouse.New(cfg.Catalog.Warehouse,
		warehouse.WithLogFile(cfg.Ingestion.LogFile),
		warehouse.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open warehouse")
	}
	return cfg, store, log
}

func runGCS(args []string) {
	fs := flag.NewFlagSet("gcs", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "Path to the YAML config file")
	bucket := fs.String("bucket", "", "GCS bucket name (overrides config)")
	prefix := fs.String("prefix", "", "Object prefix (overrides config)")
	fs.Parse(args)

	cfg, store, log := setup(*configPath)
	if *bucket != "" {
		cfg.GCS.Bucket = *bucket
	}
	if *prefix != "" {
		cfg.GCS.Prefix = *prefix
	}
	if cfg.GCS.Bucket == "" {
		log.Fatal().Msg("Usage: publish gcs -bucket NAME (or set GCS_BUCKET)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	gcs, err := gcsuploader.NewGCSStorageService(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer gcs.Close()

	res, err := gcsuploader.Mirror(ctx, gcs, store, cfg.GCS.Bucket, cfg.GCS.Prefix, log)
	fmt.Printf("Uploaded %d object(s) to gs://%s/%s\n", len(res.Objects), cfg.GCS.Bucket, cfg.GCS.Prefix)
	for _, f := range res.Failed {
		fmt.Printf("FAILED   %s\n", f)
	}
	if err != nil {
		log.Error().Err(err).Msg("Mirror finished with errors")
		os.Exit(1)
	}
}

func runBigQuery(args []string) {
	fs := flag.NewFlagSet("bigquery", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "Path to the YAML config file")
	versions := fs.String("versions", "", "Comma-separated snapshot file names (default: all versions)")
	project := fs.String("project", "", "BigQuery project ID (overrides config)")
	fs.Parse(args)

	cfg, store, log := setup(*configPath)
	if *project != "" {
		cfg.BigQuery.ProjectID = *project
	}
	if cfg.BigQuery.ProjectID == "" {
		log.Fatal().Msg("Usage: publish bigquery -project ID (or set BQ_PROJECT_ID)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	engine := timetravel.New(store, timetravel.WithLogger(log))

	var names []string
	for _, v := range strings.Split(*versions, ",") {
		if v = strings.TrimSpace(v); v != "" {
			names = append(names, v)
		}
	}
	if len(names) == 0 {
		snaps, err := engine.Versions(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list versions")
		}
		for _, s := range snaps {
			names = append(names, s.FileName)
		}
	}

	view, err := engine.CreateConsolidatedView(ctx, names)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build consolidated view")
	}
	if view.Len() == 0 {
		fmt.Println("Consolidated view is empty, nothing to export.")
		return
	}

	exporter, err := infraBQ.NewBigQueryMartExporter(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.Table, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exporter")
	}
	defer exporter.Close()

	res, err := exporter.Export(ctx, view)
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	fmt.Printf("Exported %d rows to %s.%s.%s (export %s)\n",
		res.Rows, cfg.BigQuery.ProjectID, cfg.BigQuery.Dataset, cfg.BigQuery.Table, res.ExportID)
	if res.Verified() {
		fmt.Println("Row counts verified.")
		return
	}
	for _, m := range res.Mismatches {
		fmt.Printf("MISMATCH %s: expected %d, found %d\n", m.SourceFile, m.Expected, m.Actual)
	}
	os.Exit(1)
}
