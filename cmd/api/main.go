package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/finance-warehouse/internal/api"
	"github.com/dvloznov/finance-warehouse/internal/config"
	"github.com/dvloznov/finance-warehouse/internal/gcsuploader"
	"github.com/dvloznov/finance-warehouse/internal/ingest"
	"github.com/dvloznov/finance-warehouse/internal/jobs"
	"github.com/dvloznov/finance-warehouse/internal/jobs/inmemory"
	"github.com/dvloznov/finance-warehouse/internal/logger"
	"github.com/dvloznov/finance-warehouse/internal/timetravel"
	"github.com/dvloznov/finance-warehouse/internal/warehouse"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultPath, "Path to the YAML config file")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
		origins    = flag.String("cors-origins", os.Getenv("CORS_ORIGINS"), "Comma-separated allowed CORS origins (default *)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.API.Port = *port
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	store, err := warehouse.New(cfg.Catalog.Warehouse,
		warehouse.WithLogFile(cfg.Ingestion.LogFile),
		warehouse.WithLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open warehouse")
	}
	engine := timetravel.New(store, timetravel.WithLogger(log))

	ingestOpts := []ingest.Option{
		ingest.WithLogger(log),
		ingest.WithExtensions(cfg.Ingestion.Extensions...),
	}
	if cfg.GCS.Bucket != "" {
		gcs, err := gcsuploader.NewGCSStorageService(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer gcs.Close()
		ingestOpts = append(ingestOpts, ingest.WithFetcher(gcs, cfg.Ingestion.RawDir))
	} else {
		log.Warn().Msg("No GCS bucket configured - gs:// ingestion will be rejected")
	}
	ingester := ingest.New(store, ingestOpts...)

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore,
		inmemory.WithWorkers(cfg.API.Workers),
		inmemory.WithLogger(log))

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	handler := jobs.NewIngestHandler(ingester, cfg.Ingestion.RawDir, log)
	go func() {
		log.Info().Int("workers", cfg.API.Workers).Msg("Starting ingestion workers")
		if err := jobQueue.Start(workerCtx, handler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	router := api.NewRouter(api.Deps{
		Store:       store,
		Engine:      engine,
		JobStore:    jobStore,
		Publisher:   jobQueue,
		Log:         log,
		CORSOrigins: splitOrigins(*origins),
	})

	server := &http.Server{
		Addr:         ":" + cfg.API.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.API.Port).Str("warehouse", store.Dir()).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight ingestions finish before the workers go away
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
