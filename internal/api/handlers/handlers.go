package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-warehouse/internal/api/middleware"
	"github.com/dvloznov/finance-warehouse/internal/domain"
	"github.com/dvloznov/finance-warehouse/internal/schema"
	"github.com/dvloznov/finance-warehouse/internal/table"
)

// SnapshotStore is the read side of the warehouse used by the API.
type SnapshotStore interface {
	ListSnapshots(ctx context.Context) ([]domain.Snapshot, error)
	Describe(ctx context.Context, fileName string) (domain.Snapshot, error)
	ReadSnapshot(ctx context.Context, fileName string) (*table.Table, error)
}

type snapshotView struct {
	domain.Snapshot
	SizeMB float64 `json:"size_mb"`
}

func viewOf(s domain.Snapshot) snapshotView {
	return snapshotView{Snapshot: s, SizeMB: s.SizeMB()}
}

// SnapshotsHandler handles snapshot listing endpoints.
type SnapshotsHandler struct {
	store SnapshotStore
	log   zerolog.Logger
}

// NewSnapshotsHandler creates a new snapshots handler.
func NewSnapshotsHandler(store SnapshotStore, log zerolog.Logger) *SnapshotsHandler {
	return &SnapshotsHandler{
		store: store,
		log:   log,
	}
}

// ListSnapshots handles GET /api/snapshots
func (h *SnapshotsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.store.ListSnapshots(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	views := make([]snapshotView, len(snaps))
	for i, s := range snaps {
		views[i] = viewOf(s)
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": views,
		"count":     len(views),
	})
}

// GetSnapshot handles GET /api/snapshots/{file}. Filter parameters scope
// the returned records.
func (h *SnapshotsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "file")

	filter, err := parseFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.store.Describe(ctx, name)
	if err != nil {
		writeLookupError(w, h.log, err, "Snapshot not found", "Failed to read snapshot")
		return
	}
	t, err := h.store.ReadSnapshot(ctx, name)
	if err != nil {
		writeLookupError(w, h.log, err, "Snapshot not found", "Failed to read snapshot")
		return
	}

	t = schema.ApplyFilter(t, filter)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"snapshot": viewOf(snap),
		"rows":     t.Len(),
		"records":  t.Records(),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseFilter reads years, months, quarters and accounts, each a
// comma-separated list.
func parseFilter(r *http.Request) (domain.FilterState, error) {
	q := r.URL.Query()
	var f domain.FilterState
	var err error
	if f.Years, err = intList(q.Get("years"), "years", 1, 9999); err != nil {
		return f, err
	}
	if f.Months, err = intList(q.Get("months"), "months", 1, 12); err != nil {
		return f, err
	}
	if f.Quarters, err = intList(q.Get("quarters"), "quarters", 1, 4); err != nil {
		return f, err
	}
	f.Accounts = stringList(q.Get("accounts"))
	return f, nil
}

func intList(raw, name string, lo, hi int) ([]int, error) {
	var out []int
	for _, s := range stringList(raw) {
		n, err := strconv.Atoi(s)
		if err != nil || n < lo || n > hi {
			return nil, fmt.Errorf("invalid %s value %q", name, s)
		}
		out = append(out, n)
	}
	return out, nil
}

func stringList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func writeLookupError(w http.ResponseWriter, log zerolog.Logger, err error, notFound, internal string) {
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, notFound)
		return
	}
	log.Error().Err(err).Msg(internal)
	middleware.WriteError(w, http.StatusInternalServerError, internal)
}
