package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/connector"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/query"
)

// Warehouses resolves a warehouse name to its row storage.
type Warehouses interface {
	Dataset(name string) (connector.Dataset, error)
}

// DatasetService resolves published datasets and runs read queries against
// them. The HTTP query route and the MCP tools share it.
type DatasetService struct {
	store      *config.Store
	warehouses Warehouses
}

func NewDatasetService(store *config.Store, warehouses Warehouses) *DatasetService {
	return &DatasetService{store: store, warehouses: warehouses}
}

// Project returns the project with the given slug.
func (s *DatasetService) Project(ctx context.Context, slug string) (*model.Project, error) {
	p, err := s.store.GetProjectBySlug(ctx, slug)
	if errors.Is(err, config.ErrNotFound) {
		return nil, apperr.NotFound("project %q not found", slug)
	}
	return p, err
}

// Dataset resolves ref, a dataset id or name, within project. Datasets that
// are not ready yet are reported as missing.
func (s *DatasetService) Dataset(ctx context.Context, project *model.Project, ref string) (*model.Dataset, error) {
	ds, err := s.store.GetDataset(ctx, ref)
	if err == nil && ds.ProjectID != project.ID {
		err = config.ErrNotFound
	}
	if errors.Is(err, config.ErrNotFound) {
		ds, err = s.store.GetDatasetByName(ctx, project.ID, ref)
	}
	if errors.Is(err, config.ErrNotFound) {
		return nil, apperr.NotFound("dataset %q not found", ref)
	}
	if err != nil {
		return nil, err
	}
	if ds.Status != model.DatasetReady {
		return nil, apperr.NotFound("dataset %q not found", ref)
	}
	return ds, nil
}

// Plan validates query parameters against a dataset's schema.
func (s *DatasetService) Plan(ds *model.Dataset, params url.Values) (*query.Plan, error) {
	return query.ParsePlan(params, ds.Schema)
}

// Execute runs plan against the dataset's storage and builds the response
// envelope.
func (s *DatasetService) Execute(ctx context.Context, project *model.Project, ds *model.Dataset, plan *query.Plan) (*model.QueryResponse, error) {
	start := time.Now()

	target, err := s.warehouses.Dataset(project.WarehouseName())
	if err != nil {
		return nil, fmt.Errorf("resolve warehouse: %w", err)
	}
	rows, total, err := target.Query(ctx, ds.StorageLocator, ds.Schema, plan)
	if err != nil {
		return nil, fmt.Errorf("query dataset %s: %w", ds.ID, err)
	}

	columns := plan.Columns(ds.Schema)
	types := make(map[string]string, len(columns))
	for _, name := range columns {
		if c, ok := model.FindColumn(ds.Schema, name); ok {
			types[name] = string(c.Type)
		}
	}

	return &model.QueryResponse{
		Success: true,
		Data:    rows,
		Pagination: model.Pagination{
			Page:       plan.Page,
			Limit:      plan.Limit,
			Total:      total,
			TotalPages: query.TotalPages(total, plan.Limit),
		},
		Meta: model.QueryMeta{
			Columns:   columns,
			Types:     types,
			QueryTime: time.Since(start).Round(time.Microsecond).String(),
		},
	}, nil
}

// Query is Plan followed by Execute.
func (s *DatasetService) Query(ctx context.Context, project *model.Project, ds *model.Dataset, params url.Values) (*model.QueryResponse, error) {
	plan, err := s.Plan(ds, params)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, project, ds, plan)
}
