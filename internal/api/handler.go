// Package api exposes the sync trigger and the catalog read path over HTTP.
//
// Routes:
//
//	POST /api/programs/sync                  run a sync now, returns the report
//	GET  /api/programs/sync/status           current run state and last report
//	GET  /api/programs?source=&limit=&offset= list catalog programs
//	GET  /api/programs/{source}/{id}         one program by natural key
//	GET  /health                             liveness
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"program_catalog/internal/domain"
	"program_catalog/internal/service"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type Syncer interface {
	Run(ctx context.Context) (*domain.SyncReport, error)
	Status() service.Status
	LastReport(ctx context.Context) (*domain.SyncReport, error)
}

type Catalog interface {
	Get(ctx context.Context, ds domain.DataSource, sourceAPIID string) (*domain.Program, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Program, error)
	Count(ctx context.Context, ds domain.DataSource) (int, error)
}

type Handler struct {
	syncer     Syncer
	catalog    Catalog
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewHandler(syncer Syncer, catalog Catalog, runTimeout time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		syncer:     syncer,
		catalog:    catalog,
		runTimeout: runTimeout,
		logger:     logger.With("component", "api"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/programs/sync", h.triggerSync)
	mux.HandleFunc("GET /api/programs/sync/status", h.syncStatus)
	mux.HandleFunc("GET /api/programs", h.listPrograms)
	mux.HandleFunc("GET /api/programs/{source}/{id}", h.getProgram)
	mux.HandleFunc("GET /health", h.health)
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	// The run outlives a dropped client connection but not the run timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.runTimeout)
	defer cancel()

	report, err := h.syncer.Run(ctx)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		jsonError(w, "sync already in progress", http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("sync trigger failed", "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonOK(w, report)
}

type statusResponse struct {
	State      domain.RunState    `json:"state"`
	LastReport *domain.SyncReport `json:"lastReport,omitempty"`
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{State: h.syncer.Status().State}

	report, err := h.syncer.LastReport(r.Context())
	switch {
	case err == nil:
		resp.LastReport = report
	case !errors.Is(err, domain.ErrNotFound):
		h.logger.Warn("failed to load last report", "error", err)
	}

	jsonOK(w, resp)
}

type listResponse struct {
	Items  []domain.Program `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func (h *Handler) listPrograms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter domain.ListFilter
	if src := q.Get("source"); src != "" {
		ds, err := domain.ParseDataSource(src)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.DataSource = ds
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), defaultLimit); err != nil || filter.Limit < 1 {
		jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
		return
	}
	filter.Limit = min(filter.Limit, maxLimit)
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil || filter.Offset < 0 {
		jsonError(w, "offset must be a non-negative integer", http.StatusBadRequest)
		return
	}

	items, err := h.catalog.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list programs failed", "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	total, err := h.catalog.Count(r.Context(), filter.DataSource)
	if err != nil {
		h.logger.Error("count programs failed", "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	if items == nil {
		items = []domain.Program{}
	}
	jsonOK(w, listResponse{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

func (h *Handler) getProgram(w http.ResponseWriter, r *http.Request) {
	ds, err := domain.ParseDataSource(r.PathValue("source"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	program, err := h.catalog.Get(r.Context(), ds, r.PathValue("id"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		jsonError(w, "program not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("get program failed", "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	jsonOK(w, program)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]string{"status": "ok"})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
