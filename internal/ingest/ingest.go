// Package ingest turns an uploaded CSV file into a queryable dataset. It
// parses and validates the file, provisions warehouse storage, archives the
// original upload, writes the rows and issues the dataset's first API key.
// Either every step succeeds or the side effects are undone.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/blob"
	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/connector"
	"github.com/tapfile/tapfile/internal/csvparse"
	"github.com/tapfile/tapfile/internal/logging"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/provision"
	"github.com/tapfile/tapfile/internal/service"
	"github.com/tapfile/tapfile/internal/typedetect"
)

const compensationTimeout = 30 * time.Second

// Metadata is the part of the metadata store the orchestrator writes to.
type Metadata interface {
	CountDatasets(ctx context.Context, projectID int64) (int, error)
	GetDatasetByName(ctx context.Context, projectID int64, name string) (*model.Dataset, error)
	ReserveDataset(ctx context.Context, d *model.Dataset, limit int) error
	SetDatasetBlobKey(ctx context.Context, id, blobKey string) error
	FinalizeDataset(ctx context.Context, id string, rowCount int64, key *model.APIKey) error
	DeleteDataset(ctx context.Context, id string) error
	ListDatasets(ctx context.Context, projectID int64, status string) ([]model.Dataset, error)
	DeleteProject(ctx context.Context, id int64) error
}

// Warehouses resolves a project's warehouse name to its row storage.
type Warehouses interface {
	Dataset(name string) (connector.Dataset, error)
}

// Request is one upload to ingest.
type Request struct {
	Project  *model.Project
	Name     string
	Filename string
	Data     []byte
	// Schema optionally overrides the inferred column types and
	// nullability. It must name exactly the parsed columns.
	Schema []model.ColumnSchema
}

// Orchestrator runs ingestions. It is safe for concurrent use; at most
// limits.ConcurrentIngests ingestions run at once.
type Orchestrator struct {
	meta       Metadata
	warehouses Warehouses
	blobs      blob.Store
	limits     config.LimitSettings
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator. blobs may be nil, in which case
// uploads are not archived.
func NewOrchestrator(meta Metadata, warehouses Warehouses, blobs blob.Store, limits config.LimitSettings, logger *slog.Logger) *Orchestrator {
	if limits.ConcurrentIngests <= 0 {
		limits.ConcurrentIngests = 1
	}
	if limits.BatchSize <= 0 {
		limits.BatchSize = 500
	}
	return &Orchestrator{
		meta:       meta,
		warehouses: warehouses,
		blobs:      blobs,
		limits:     limits,
		sem:        semaphore.NewWeighted(limits.ConcurrentIngests),
		logger:     logger,
	}
}

// undo records the side effects of an ingestion in progress.
type undo struct {
	target    connector.Dataset
	locator   string
	datasetID string
	blobKey   string
}

// Ingest runs one ingestion to completion. Failures are *StageError values
// wrapping an *apperr.Error where the cause is known.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (*model.IngestResult, error) {
	if req.Project == nil {
		return nil, failAt(StageReceived, errors.New("project is required"))
	}
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, failAt(StageReceived, fmt.Errorf("wait for ingestion slot: %w", err))
	}
	defer o.sem.Release(1)

	start := time.Now()
	name := DatasetName(req.Name, req.Filename)
	log := logging.FromContext(ctx, o.logger).With("project", req.Project.Slug, "dataset", name)

	if err := o.checkUpload(ctx, req.Project.ID, name, len(req.Data)); err != nil {
		return nil, failAt(StageReceived, err)
	}

	parsed, err := csvparse.Parse(req.Data)
	if err != nil {
		return nil, failAt(StageReceived, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, failAt(StageReceived, apperr.New(apperr.KindParse, "%s", strings.Join(parsed.Errors, "; ")))
	}
	if o.limits.MaxRows > 0 && parsed.RowCount > o.limits.MaxRows {
		return nil, failAt(StageReceived, apperr.CapacityExceeded("file has %d rows, the limit is %d", parsed.RowCount, o.limits.MaxRows))
	}

	schema := parsed.Schema
	if len(req.Schema) > 0 {
		schema, err = ApplyOverride(parsed.Schema, req.Schema)
		if err != nil {
			return nil, failAt(StageReceived, err)
		}
	}
	rows, err := CoerceRows(parsed, schema)
	if err != nil {
		return nil, failAt(StageReceived, err)
	}
	log.Debug("file parsed", "rows", len(rows), "columns", len(schema))

	target, err := o.warehouses.Dataset(req.Project.WarehouseName())
	if err != nil {
		return nil, failAt(StageParsed, apperr.Wrap(apperr.KindProvision, err, "resolve warehouse"))
	}
	columns, err := provision.PrepareColumns(schema)
	if err != nil {
		return nil, failAt(StageParsed, err)
	}
	locator, err := provision.NewLocator(req.Project.Slug)
	if err != nil {
		return nil, failAt(StageParsed, apperr.Wrap(apperr.KindProvision, err, "generate storage locator"))
	}

	ds, err := o.reserve(ctx, req.Project, name, columns, locator)
	if err != nil {
		return nil, failAt(StageParsed, err)
	}
	u := &undo{datasetID: ds.ID}

	prov := provision.New(target, log)
	res := prov.ProvisionAt(ctx, req.Project.Slug, locator, schema)
	if !res.Success {
		o.compensate(ctx, u, log)
		return nil, failAt(StageParsed, res.Err())
	}
	u.target, u.locator = target, res.Locator
	log.Debug("storage provisioned", "locator", res.Locator)

	result, err := o.load(ctx, req.Project, ds, req.Data, res, rows, u, log)
	if err != nil {
		o.compensate(ctx, u, log)
		log.Warn("ingestion failed", "error", err)
		return nil, err
	}

	log.Info("dataset ingested",
		"dataset_id", result.DatasetID,
		"rows", result.RowCount,
		"duration", time.Since(start),
	)
	return result, nil
}

// load performs every step after provisioning. Side effects are recorded in
// u as they happen.
func (o *Orchestrator) load(ctx context.Context, project *model.Project, ds *model.Dataset, data []byte, res provision.Result, rows []model.Record, u *undo, log *slog.Logger) (*model.IngestResult, error) {
	if o.blobs != nil {
		key := blob.DatasetKey(project.Slug, ds.ID)
		if err := o.blobs.Put(ctx, key, data); err != nil {
			return nil, failAt(StageProvisioned, fmt.Errorf("archive upload: %w", err))
		}
		u.blobKey = key
		if err := o.meta.SetDatasetBlobKey(ctx, ds.ID, key); err != nil {
			return nil, failAt(StageProvisioned, err)
		}
	}

	batch := o.limits.BatchSize
	for i := 0; i < len(rows); i += batch {
		end := min(i+batch, len(rows))
		if err := ctx.Err(); err != nil {
			return nil, failAt(StageProvisioned, err)
		}
		if err := u.target.InsertRows(ctx, res.Locator, int64(i+1), rows[i:end], res.Columns); err != nil {
			return nil, failAt(StageProvisioned, err)
		}
		log.Debug("batch inserted", "from", i+1, "to", end)
	}

	gen, err := service.GenerateAPIKey()
	if err != nil {
		return nil, failAt(StageRowsInserted, err)
	}
	key := service.NewAPIKeyRecord(gen, project.ID, nil, "issued at ingestion of "+ds.Name, o.limits.MonthlyRequests)
	if err := o.meta.FinalizeDataset(ctx, ds.ID, int64(len(rows)), key); err != nil {
		return nil, failAt(StageRowsInserted, fmt.Errorf("finalize dataset: %w", err))
	}

	return &model.IngestResult{
		DatasetID:       ds.ID,
		RowCount:        len(rows),
		ColumnCount:     len(res.Columns),
		APIEndpointPath: EndpointPath(project.Slug, ds.ID),
		APIKeyCleartext: gen.Raw,
		Schema:          res.Columns,
	}, nil
}

// compensate undoes whatever load managed to do. It runs detached from the
// caller's cancellation so an aborted upload still cleans up.
func (o *Orchestrator) compensate(ctx context.Context, u *undo, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if u.target != nil {
		if err := u.target.DropTarget(ctx, u.locator); err != nil {
			log.Error("compensation: drop storage target", "locator", u.locator, "error", err)
		}
	}
	if u.blobKey != "" {
		if err := o.blobs.Delete(ctx, u.blobKey); err != nil {
			log.Error("compensation: delete archived upload", "key", u.blobKey, "error", err)
		}
	}
	if u.datasetID != "" {
		if err := o.meta.DeleteDataset(ctx, u.datasetID); err != nil && !errors.Is(err, config.ErrNotFound) {
			log.Error("compensation: delete dataset record", "dataset_id", u.datasetID, "error", err)
		}
	}
	log.Warn("ingestion rolled back", "locator", u.locator, "dataset_id", u.datasetID)
}

// reserve records the dataset as pending before any storage exists. The
// store checks the project ceiling and the name in the same statement, so
// concurrent uploads cannot slip past either.
func (o *Orchestrator) reserve(ctx context.Context, project *model.Project, name string, columns []model.ColumnSchema, locator string) (*model.Dataset, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate dataset id: %w", err)
	}
	ds := &model.Dataset{
		ID:             id.String(),
		ProjectID:      project.ID,
		Name:           name,
		Schema:         columns,
		StorageLocator: locator,
	}

	limit := o.limits.MaxDatasetsPerProject
	err = o.meta.ReserveDataset(ctx, ds, limit)
	switch {
	case err == nil:
		return ds, nil
	case errors.Is(err, config.ErrDatasetLimit):
		return nil, apperr.CapacityExceeded("project already holds %d datasets, the limit is %d", limit, limit)
	case errors.Is(err, config.ErrDuplicate):
		return nil, apperr.SchemaConflict("dataset %q already exists in this project", name)
	default:
		return nil, fmt.Errorf("record dataset: %w", err)
	}
}

// checkUpload rejects uploads that are already known to fail before the
// file is parsed. reserve repeats the dataset checks atomically.
func (o *Orchestrator) checkUpload(ctx context.Context, projectID int64, name string, size int) error {
	if o.limits.MaxFileBytes > 0 && int64(size) > o.limits.MaxFileBytes {
		return apperr.CapacityExceeded("file is %d bytes, the limit is %d", size, o.limits.MaxFileBytes)
	}
	if o.limits.MaxDatasetsPerProject > 0 {
		n, err := o.meta.CountDatasets(ctx, projectID)
		if err != nil {
			return err
		}
		if n >= o.limits.MaxDatasetsPerProject {
			return apperr.CapacityExceeded("project already holds %d datasets, the limit is %d", n, o.limits.MaxDatasetsPerProject)
		}
	}
	_, err := o.meta.GetDatasetByName(ctx, projectID, name)
	switch {
	case err == nil:
		return apperr.SchemaConflict("dataset %q already exists in this project", name)
	case errors.Is(err, config.ErrNotFound):
		return nil
	default:
		return err
	}
}

// ApplyOverride validates a caller-supplied schema against the parsed one.
// The override must name the same columns (compared after sanitizing); it
// may change type and nullability. Column order follows the file.
func ApplyOverride(parsed, override []model.ColumnSchema) ([]model.ColumnSchema, error) {
	byName := make(map[string]model.ColumnSchema, len(override))
	for _, c := range override {
		name := csvparse.SanitizeColumnName(c.Name)
		if _, dup := byName[name]; dup {
			return nil, apperr.SchemaConflict("schema override names column %q twice", name)
		}
		if !c.Type.Valid() {
			return nil, apperr.SchemaConflict("schema override: column %q has unknown type %q", name, c.Type)
		}
		c.Name = name
		byName[name] = c
	}
	if len(byName) != len(parsed) {
		return nil, apperr.SchemaConflict("schema override has %d columns, the file has %d", len(byName), len(parsed))
	}

	out := make([]model.ColumnSchema, len(parsed))
	for i, col := range parsed {
		c, ok := byName[col.Name]
		if !ok {
			return nil, apperr.SchemaConflict("schema override is missing column %q", col.Name)
		}
		out[i] = c
	}
	return out, nil
}

// CoerceRows converts every cell to its column's storage value. The first
// cell that does not fit its column fails the whole file.
func CoerceRows(parsed *model.ParsedDataset, schema []model.ColumnSchema) ([]model.Record, error) {
	rows := make([]model.Record, len(parsed.Rows))
	for i, raw := range parsed.Rows {
		line := i + 2
		if i < len(parsed.Lines) {
			line = parsed.Lines[i]
		}
		rec := make(model.Record, len(schema))
		for j, col := range schema {
			v, err := typedetect.CoerceValue(raw[col.Name], col.Type)
			if err != nil {
				return nil, apperr.Parse(line, j+1, err, "column %q", col.Name)
			}
			if v == nil && !col.Nullable {
				return nil, apperr.Parse(line, j+1, nil, "column %q is not nullable but the value is empty", col.Name)
			}
			rec[col.Name] = v
		}
		rows[i] = provision.RenameRecord(rec)
	}
	return rows, nil
}

// DatasetName picks the stored name of a dataset: the requested name, or
// the upload's base file name, sanitized to [a-z0-9_].
func DatasetName(name, filename string) string {
	if strings.TrimSpace(name) == "" {
		base := filepath.Base(filename)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if n := csvparse.SanitizeColumnName(name); n != "" {
		return n
	}
	return "dataset"
}

// EndpointPath returns the query route of a dataset.
func EndpointPath(projectSlug, datasetID string) string {
	return fmt.Sprintf("/api/v1/%s/%s", projectSlug, datasetID)
}
