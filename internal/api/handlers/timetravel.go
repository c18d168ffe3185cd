package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/api/middleware"
	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
	"github.com/dvloznov/finance-warehouse/internal/timetravel"
)

// TimeTravel is the query surface of timetravel.Engine.
type TimeTravel interface {
	Versions(ctx context.Context) ([]domain.Snapshot, error)
	QueryAtTimestamp(ctx context.Context, at time.Time) (domain.Snapshot, *table.Table, error)
	QueryAtDate(ctx context.Context, d civil.Date) (domain.Snapshot, *table.Table, error)
	CompareVersions(ctx context.Context, versionA, versionB string) (timetravel.Comparison, error)
	GetChangesSince(ctx context.Context, version string) (timetravel.Changes, error)
	CreateConsolidatedView(ctx context.Context, versions []string) (*table.Table, error)
	AuditTrail(ctx context.Context, f timetravel.AuditFilter) (*table.Table, error)
}

// TimeTravelHandler handles point-in-time and audit endpoints.
type TimeTravelHandler struct {
	engine TimeTravel
	log    zerolog.Logger
}

// NewTimeTravelHandler creates a new time-travel handler.
func NewTimeTravelHandler(engine TimeTravel, log zerolog.Logger) *TimeTravelHandler {
	return &TimeTravelHandler{
		engine: engine,
		log:    log,
	}
}

// At handles GET /api/timetravel/at?date=YYYY-MM-DD or ?timestamp=RFC3339.
// No snapshot at that point is an empty result, not an error.
func (h *TimeTravelHandler) At(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter, err := parseFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		snap domain.Snapshot
		t    *table.Table
	)
	switch {
	case q.Get("date") != "":
		d, perr := civil.ParseDate(q.Get("date"))
		if perr != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
			return
		}
		snap, t, err = h.engine.QueryAtDate(ctx, d)
	case q.Get("timestamp") != "":
		at, perr := time.Parse(time.RFC3339, q.Get("timestamp"))
		if perr != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid timestamp format, expected RFC3339")
			return
		}
		snap, t, err = h.engine.QueryAtTimestamp(ctx, at)
	default:
		middleware.WriteError(w, http.StatusBadRequest, "date or timestamp is required")
		return
	}

	if errors.Is(err, domain.ErrNoData) {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"snapshot": nil,
			"rows":     0,
			"records":  []map[string]any{},
		})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query at point in time")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query snapshot")
		return
	}

	t = schema.ApplyFilter(t, filter)
	lo, hi, ok := t.DateRange(schema.BookingDate)
	resp := map[string]interface{}{
		"snapshot": viewOf(snap),
		"rows":     t.Len(),
		"records":  t.Records(),
	}
	if ok {
		resp["date_range"] = timetravel.DateRange{Min: lo, Max: hi}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Compare handles GET /api/timetravel/compare?v1=&v2=
func (h *TimeTravelHandler) Compare(w http.ResponseWriter, r *http.Request) {
	v1, v2 := r.URL.Query().Get("v1"), r.URL.Query().Get("v2")
	if v1 == "" || v2 == "" {
		middleware.WriteError(w, http.StatusBadRequest, "v1 and v2 are required")
		return
	}

	cmp, err := h.engine.CompareVersions(r.Context(), v1, v2)
	if err != nil {
		writeLookupError(w, h.log, err, "Version not found", "Failed to compare versions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, cmp)
}

// Changes handles GET /api/timetravel/changes?since=
func (h *TimeTravelHandler) Changes(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	if since == "" {
		middleware.WriteError(w, http.StatusBadRequest, "since is required")
		return
	}

	changes, err := h.engine.GetChangesSince(r.Context(), since)
	if err != nil {
		writeLookupError(w, h.log, err, "Version not found", "Failed to list changes")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, changes)
}

// Consolidate handles POST /api/timetravel/consolidate. An empty version
// list consolidates every snapshot.
func (h *TimeTravelHandler) Consolidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Versions []string           `json:"versions"`
		Filter   domain.FilterState `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	versions := req.Versions
	if len(versions) == 0 {
		snaps, err := h.engine.Versions(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to list versions")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list versions")
			return
		}
		for _, s := range snaps {
			versions = append(versions, s.FileName)
		}
	}

	t, err := h.engine.CreateConsolidatedView(ctx, versions)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to consolidate versions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to consolidate versions")
		return
	}

	t = schema.ApplyFilter(t, req.Filter)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"versions": versions,
		"rows":     t.Len(),
		"records":  t.Records(),
	})
}

// Audit handles GET /api/audit?account=&from=&to=
func (h *TimeTravelHandler) Audit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := timetravel.AuditFilter{Account: q.Get("account")}

	for _, p := range []struct {
		name string
		dst  **civil.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		d, err := civil.ParseDate(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid "+p.name+" date, expected YYYY-MM-DD")
			return
		}
		*p.dst = &d
	}

	t, err := h.engine.AuditTrail(r.Context(), f)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build audit trail")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to build audit trail")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rows":    t.Len(),
		"records": t.Records(),
	})
}
