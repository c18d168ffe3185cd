// Package api wires the JSON read API and the ingestion endpoints onto a chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/api/handlers"
	"github.com/dvloznov/finance-warehouse/internal/api/middleware"
	"github.com/dvloznov/finance-warehouse/internal/jobs"
)

// Deps are the collaborators behind the routes.
type Deps struct {
	Store       handlers.SnapshotStore
	Engine      handlers.TimeTravel
	JobStore    jobs.JobStore
	Publisher   jobs.Publisher
	Log         zerolog.Logger
	CORSOrigins []string
}

// NewRouter creates a router with all routes configured.
func NewRouter(d Deps) *chi.Mux {
	snapshots := handlers.NewSnapshotsHandler(d.Store, d.Log)
	tt := handlers.NewTimeTravelHandler(d.Engine, d.Log)
	jobsHandler := handlers.NewJobsHandler(d.JobStore, d.Publisher, d.Log)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(d.CORSOrigins...))

	r.Get("/health", handlers.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", snapshots.ListSnapshots)
			r.Get("/{file}", snapshots.GetSnapshot)
		})

		r.Route("/timetravel", func(r chi.Router) {
			r.Get("/at", tt.At)
			r.Get("/compare", tt.Compare)
			r.Get("/changes", tt.Changes)
			r.Post("/consolidate", tt.Consolidate)
		})

		r.Get("/audit", tt.Audit)

		r.Post("/ingest", jobsHandler.EnqueueIngest)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobsHandler.ListJobs)
			r.Get("/{id}", jobsHandler.GetJob)
		})
	})

	return r
}
