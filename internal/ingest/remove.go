package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/tapfile/tapfile/internal/blob"
	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/model"
)

// Remove deletes a dataset: its warehouse storage, its archived upload and
// its record. Keys scoped to it go with the record. Removing a dataset
// whose storage or blob is already gone succeeds.
func (o *Orchestrator) Remove(ctx context.Context, project *model.Project, ds *model.Dataset) error {
	target, err := o.warehouses.Dataset(project.WarehouseName())
	if err != nil {
		return fmt.Errorf("resolve warehouse: %w", err)
	}
	if err := target.DropTarget(ctx, ds.StorageLocator); err != nil {
		return fmt.Errorf("drop storage for dataset %s: %w", ds.ID, err)
	}
	if o.blobs != nil && ds.BlobKey != "" {
		if err := o.blobs.Delete(ctx, ds.BlobKey); err != nil && !errors.Is(err, blob.ErrObjectNotFound) {
			return fmt.Errorf("delete archived upload %s: %w", ds.BlobKey, err)
		}
	}
	if err := o.meta.DeleteDataset(ctx, ds.ID); err != nil && !errors.Is(err, config.ErrNotFound) {
		return err
	}
	o.logger.Info("dataset removed", "project", project.Slug, "dataset_id", ds.ID)
	return nil
}

// RemoveProject removes every dataset of project, pending ones included,
// and then the project record with its keys.
func (o *Orchestrator) RemoveProject(ctx context.Context, project *model.Project) error {
	datasets, err := o.meta.ListDatasets(ctx, project.ID, "")
	if err != nil {
		return err
	}
	for i := range datasets {
		if err := o.Remove(ctx, project, &datasets[i]); err != nil {
			return err
		}
	}
	if err := o.meta.DeleteProject(ctx, project.ID); err != nil {
		return err
	}
	o.logger.Info("project removed", "project", project.Slug, "datasets", len(datasets))
	return nil
}

// Source returns the archived upload of a dataset.
func (o *Orchestrator) Source(ctx context.Context, ds *model.Dataset) ([]byte, error) {
	if o.blobs == nil || ds.BlobKey == "" {
		return nil, blob.ErrObjectNotFound
	}
	return o.blobs.Get(ctx, ds.BlobKey)
}
