package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/ingest"
	"github.com/tapfile/tapfile/internal/logging"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/server/middleware"
	"github.com/tapfile/tapfile/internal/service"
)

// QueryHandler serves read queries against published datasets. Requests are
// authenticated by RequireAPIKey before they reach it.
type QueryHandler struct {
	datasets *service.DatasetService
	store    *config.Store
	usage    *service.UsageSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewQueryHandler creates a new QueryHandler. Usage entries go to usage,
// which writes them off the request path.
func NewQueryHandler(datasets *service.DatasetService, store *config.Store, usage *service.UsageSink, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		datasets: datasets,
		store:    store,
		usage:    usage,
		logger:   logger,
		now:      time.Now,
	}
}

// Query filters, sorts and pages a dataset's rows.
// GET /api/v1/{project}/{dataset}
//
// The checks run in a fixed order: project and key scope (403), dataset
// existence (404), quota reservation (429), then planning (400) and
// execution (500). A reservation is refunded when the request fails after
// it was charged.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logging.FromContext(ctx, h.logger)

	principal := middleware.GetAPIKey(ctx)
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "API key required")
		return
	}

	slug := chi.URLParam(r, "project")
	ref := chi.URLParam(r, "dataset")

	entry := &model.UsageLog{
		APIKeyID:    principal.KeyID,
		ProjectID:   principal.ProjectID,
		Endpoint:    r.URL.Path,
		QueryParams: encodeParams(r),
	}
	status := http.StatusOK
	defer func() {
		entry.StatusCode = status
		entry.ResponseTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
		h.recordUsage(log, entry)
	}()

	project, err := h.datasets.Project(ctx, slug)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		status = writeAppError(w, log, err, "Failed to resolve project")
		return
	}
	if project == nil || project.ID != principal.ProjectID {
		status = http.StatusForbidden
		writeError(w, status, "API key does not grant access to project "+slug)
		return
	}

	ds, err := h.datasets.Dataset(ctx, project, ref)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) && principal.DatasetID != nil {
			status = http.StatusForbidden
			writeError(w, status, "API key does not grant access to dataset "+ref)
			return
		}
		status = writeAppError(w, log, err, "Failed to resolve dataset")
		return
	}
	entry.DatasetID = ds.ID
	if !principal.CanRead(project.ID, ds.ID) {
		status = http.StatusForbidden
		writeError(w, status, "API key does not grant access to dataset "+ref)
		return
	}

	if err := h.store.ReserveRequest(ctx, principal.KeyID, h.now()); err != nil {
		if errors.Is(err, config.ErrQuotaExhausted) {
			status = http.StatusTooManyRequests
			writeError(w, status, "Monthly request limit reached for this API key")
			return
		}
		status = writeAppError(w, log, err, "Failed to check request quota")
		return
	}

	plan, err := h.datasets.Plan(ds, r.URL.Query())
	if err != nil {
		h.refund(ctx, log, principal.KeyID)
		status = writeAppError(w, log, err, "Invalid query")
		return
	}

	resp, err := h.datasets.Execute(ctx, project, ds, plan)
	if err != nil {
		h.refund(ctx, log, principal.KeyID)
		status = http.StatusInternalServerError
		log.Error("query execution failed", "dataset_id", ds.ID, "error", err)
		writeError(w, status, "Query execution failed")
		return
	}

	writeJSON(w, status, resp)
}

// Doc returns the OpenAPI document of a dataset. Access rules match Query
// but no quota is charged.
// GET /api/v1/{project}/{dataset}/_doc
func (h *QueryHandler) Doc(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx, h.logger)

	principal := middleware.GetAPIKey(ctx)
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "API key required")
		return
	}

	slug := chi.URLParam(r, "project")
	ref := chi.URLParam(r, "dataset")

	project, err := h.datasets.Project(ctx, slug)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		writeAppError(w, log, err, "Failed to resolve project")
		return
	}
	if project == nil || project.ID != principal.ProjectID {
		writeError(w, http.StatusForbidden, "API key does not grant access to project "+slug)
		return
	}

	ds, err := h.datasets.Dataset(ctx, project, ref)
	if err == nil && !principal.CanRead(project.ID, ds.ID) {
		err = apperr.New(apperr.KindAuthorization, "API key does not grant access to dataset %s", ref)
	}
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) && principal.DatasetID != nil {
			err = apperr.New(apperr.KindAuthorization, "API key does not grant access to dataset %s", ref)
		}
		writeAppError(w, log, err, "Failed to resolve dataset")
		return
	}

	writeJSON(w, http.StatusOK, datasetDoc(project, ds, serverURL(r)))
}

func (h *QueryHandler) refund(ctx context.Context, log *slog.Logger, keyID int64) {
	if err := h.store.RefundRequest(context.WithoutCancel(ctx), keyID); err != nil {
		log.Warn("failed to refund reserved request", "api_key_id", keyID, "error", err)
	}
}

// recordUsage queues a usage log entry. A full queue drops the entry; the
// client never sees either outcome.
func (h *QueryHandler) recordUsage(log *slog.Logger, entry *model.UsageLog) {
	if !h.usage.Record(entry) {
		log.Warn("usage queue full, entry dropped", "api_key_id", entry.APIKeyID, "endpoint", entry.Endpoint)
	}
}

// encodeParams flattens the query string to a JSON object, first value
// per key.
func encodeParams(r *http.Request) string {
	values := r.URL.Query()
	flat := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// endpointPath is the public query path of a dataset.
func endpointPath(project *model.Project, ds *model.Dataset) string {
	return ingest.EndpointPath(project.Slug, ds.ID)
}
