package model

import "time"

// Dataset lifecycle states. Only ready datasets are visible to readers.
const (
	DatasetPending = "pending"
	DatasetReady   = "ready"
)

// DefaultWarehouse is the warehouse of projects that do not name one.
const DefaultWarehouse = "default"

// Project groups datasets and the API keys that can read them.
type Project struct {
	ID          int64     `json:"id" db:"id"`
	Slug        string    `json:"slug" db:"slug"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	OwnerID     int64     `json:"owner_id" db:"owner_id"`
	Warehouse   string    `json:"warehouse" db:"warehouse"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// WarehouseName returns the warehouse holding the project's rows.
func (p *Project) WarehouseName() string {
	if p.Warehouse == "" {
		return DefaultWarehouse
	}
	return p.Warehouse
}

// Dataset is one ingested CSV file: its inferred schema, where its rows live
// and where the original upload is archived.
type Dataset struct {
	ID             string         `json:"id"`
	ProjectID      int64          `json:"project_id"`
	Name           string         `json:"name"`
	Schema         []ColumnSchema `json:"schema"`
	RowCount       int64          `json:"row_count"`
	StorageLocator string         `json:"storage_locator"`
	BlobKey        string         `json:"blob_key,omitempty"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IngestResult is returned once per successful ingestion. APIKeyCleartext is
// the only time the raw key is ever shown.
type IngestResult struct {
	DatasetID       string         `json:"datasetId"`
	RowCount        int            `json:"rowCount"`
	ColumnCount     int            `json:"columnCount"`
	APIEndpointPath string         `json:"apiEndpointPath"`
	APIKeyCleartext string         `json:"apiKey"`
	Schema          []ColumnSchema `json:"schema"`
}
