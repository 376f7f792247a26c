package config

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/tapfile/tapfile/internal/model"
)

// Store manages tapfile's metadata backed by SQLite. It persists admins,
// projects, dataset records, API keys and usage logs. Dataset rows live in a
// warehouse, not here.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new metadata store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "tapfile.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate metadata database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the metadata database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Admin CRUD
// ---------------------------------------------------------------------------

// CreateAdmin inserts a new admin account. The ID, CreatedAt, and UpdatedAt
// fields are populated after a successful insert.
func (s *Store) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	now := time.Now().UTC()
	admin.CreatedAt = now
	admin.UpdatedAt = now

	const q = `INSERT INTO admins
		(email, password_hash, name, is_active, is_super_admin, created_at, updated_at)
		VALUES
		(:email, :password_hash, :name, :is_active, :is_super_admin, :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, admin)
	if err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get admin id: %w", err)
	}
	admin.ID = id
	return nil
}

// GetAdmin returns an admin by ID.
func (s *Store) GetAdmin(ctx context.Context, id int64) (*model.Admin, error) {
	var admin model.Admin
	if err := s.db.GetContext(ctx, &admin, "SELECT * FROM admins WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

// GetAdminByEmail returns an admin by email address.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var admin model.Admin
	if err := s.db.GetContext(ctx, &admin, "SELECT * FROM admins WHERE email = ?", email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return &admin, nil
}

// ListAdmins returns all admin accounts.
func (s *Store) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	var admins []model.Admin
	if err := s.db.SelectContext(ctx, &admins, "SELECT * FROM admins ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// HasAnyAdmin reports whether at least one admin account exists. The first
// admin created through the API becomes a super admin.
func (s *Store) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM admins"); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}

// UpdateAdminLastLogin sets the last_login_at timestamp for an admin.
func (s *Store) UpdateAdminLastLogin(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"UPDATE admins SET last_login_at = ?, updated_at = ? WHERE id = ?", now, now, id)
	if err != nil {
		return fmt.Errorf("update admin last login: %w", err)
	}
	return expectOne(result, "update admin last login")
}

// ---------------------------------------------------------------------------
// Project CRUD
// ---------------------------------------------------------------------------

// CreateProject inserts a new project. The ID and CreatedAt fields are
// populated after a successful insert.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	p.CreatedAt = time.Now().UTC()
	if p.Warehouse == "" {
		p.Warehouse = "default"
	}

	const q = `INSERT INTO projects (slug, name, description, owner_id, warehouse, created_at)
		VALUES (:slug, :name, :description, :owner_id, :warehouse, :created_at)`

	result, err := s.db.NamedExecContext(ctx, q, p)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get project id: %w", err)
	}
	p.ID = id
	return nil
}

// GetProject returns a project by ID.
func (s *Store) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	var p model.Project
	if err := s.db.GetContext(ctx, &p, "SELECT * FROM projects WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// GetProjectBySlug returns a project by its unique slug.
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*model.Project, error) {
	var p model.Project
	if err := s.db.GetContext(ctx, &p, "SELECT * FROM projects WHERE slug = ?", slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project by slug: %w", err)
	}
	return &p, nil
}

// ListProjects returns projects ordered by slug. An ownerID of zero lists
// every project.
func (s *Store) ListProjects(ctx context.Context, ownerID int64) ([]model.Project, error) {
	var (
		projects []model.Project
		err      error
	)
	if ownerID == 0 {
		err = s.db.SelectContext(ctx, &projects, "SELECT * FROM projects ORDER BY slug")
	} else {
		err = s.db.SelectContext(ctx, &projects, "SELECT * FROM projects WHERE owner_id = ? ORDER BY slug", ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// CountProjectsByOwner returns how many projects an admin owns.
func (s *Store) CountProjectsByOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM projects WHERE owner_id = ?", ownerID); err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return n, nil
}

// DeleteProject removes a project. Its dataset records and API keys are
// cascade deleted; warehouse storage and blobs are the caller's concern.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return expectOne(result, "delete project")
}

// ---------------------------------------------------------------------------
// Datasets
// ---------------------------------------------------------------------------

// datasetRow is a flat struct that maps 1:1 to the datasets table. The
// schema_json column stores the JSON-encoded []model.ColumnSchema.
type datasetRow struct {
	ID             string    `db:"id"`
	ProjectID      int64     `db:"project_id"`
	Name           string    `db:"name"`
	SchemaJSON     string    `db:"schema_json"`
	RowCount       int64     `db:"row_count"`
	StorageLocator string    `db:"storage_locator"`
	BlobKey        string    `db:"blob_key"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

func datasetRowFromModel(d *model.Dataset) (datasetRow, error) {
	schemaJSON, err := json.Marshal(d.Schema)
	if err != nil {
		return datasetRow{}, fmt.Errorf("marshal schema: %w", err)
	}
	return datasetRow{
		ID:             d.ID,
		ProjectID:      d.ProjectID,
		Name:           d.Name,
		SchemaJSON:     string(schemaJSON),
		RowCount:       d.RowCount,
		StorageLocator: d.StorageLocator,
		BlobKey:        d.BlobKey,
		Status:         d.Status,
		CreatedAt:      d.CreatedAt,
	}, nil
}

func (r datasetRow) toModel() (model.Dataset, error) {
	var schema []model.ColumnSchema
	if err := json.Unmarshal([]byte(r.SchemaJSON), &schema); err != nil {
		return model.Dataset{}, fmt.Errorf("unmarshal schema for dataset %s: %w", r.ID, err)
	}
	return model.Dataset{
		ID:             r.ID,
		ProjectID:      r.ProjectID,
		Name:           r.Name,
		Schema:         schema,
		RowCount:       r.RowCount,
		StorageLocator: r.StorageLocator,
		BlobKey:        r.BlobKey,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}, nil
}

// CreateDataset inserts a dataset record in the pending state. Pending
// datasets are invisible to readers until FinalizeDataset marks them ready.
func (s *Store) CreateDataset(ctx context.Context, d *model.Dataset) error {
	return s.ReserveDataset(ctx, d, 0)
}

// ReserveDataset inserts d in the pending state unless its project already
// holds limit datasets (pending ones included). The count and the insert
// are one statement, so concurrent reservations cannot overshoot limit. A
// limit of zero or less means no ceiling. ErrDatasetLimit reports a full project and
// ErrDuplicate a name already taken in it.
func (s *Store) ReserveDataset(ctx context.Context, d *model.Dataset, limit int) error {
	d.CreatedAt = time.Now().UTC()
	d.Status = model.DatasetPending

	row, err := datasetRowFromModel(d)
	if err != nil {
		return err
	}

	const q = `INSERT INTO datasets
		(id, project_id, name, schema_json, row_count, storage_locator, blob_key, status, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE ? <= 0 OR (SELECT COUNT(*) FROM datasets WHERE project_id = ?) < ?`

	result, err := s.db.ExecContext(ctx, q,
		row.ID, row.ProjectID, row.Name, row.SchemaJSON, row.RowCount,
		row.StorageLocator, row.BlobKey, row.Status, row.CreatedAt,
		limit, row.ProjectID, limit,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("dataset %q: %w", d.Name, ErrDuplicate)
		}
		return fmt.Errorf("insert dataset: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert dataset rows affected: %w", err)
	}
	if n == 0 {
		return ErrDatasetLimit
	}
	return nil
}

// SetDatasetBlobKey records where the original upload was archived.
func (s *Store) SetDatasetBlobKey(ctx context.Context, id, blobKey string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE datasets SET blob_key = ? WHERE id = ?", blobKey, id)
	if err != nil {
		return fmt.Errorf("set dataset blob key: %w", err)
	}
	return expectOne(result, "set dataset blob key")
}

// GetDataset returns a dataset by ID regardless of status.
func (s *Store) GetDataset(ctx context.Context, id string) (*model.Dataset, error) {
	var row datasetRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM datasets WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	d, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDatasetByName returns a dataset by its name within a project.
func (s *Store) GetDatasetByName(ctx context.Context, projectID int64, name string) (*model.Dataset, error) {
	var row datasetRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM datasets WHERE project_id = ? AND name = ?", projectID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get dataset by name: %w", err)
	}
	d, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDatasets returns a project's datasets in the given status, newest
// first. An empty status lists every dataset.
func (s *Store) ListDatasets(ctx context.Context, projectID int64, status string) ([]model.Dataset, error) {
	var (
		rows []datasetRow
		err  error
	)
	if status == "" {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM datasets WHERE project_id = ? ORDER BY created_at DESC, id DESC", projectID)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM datasets WHERE project_id = ? AND status = ? ORDER BY created_at DESC, id DESC",
			projectID, status)
	}
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	datasets := make([]model.Dataset, 0, len(rows))
	for _, r := range rows {
		d, err := r.toModel()
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, d)
	}
	return datasets, nil
}

// CountDatasets returns how many datasets a project holds, pending ones
// included, so in-flight ingestions count against the project ceiling.
func (s *Store) CountDatasets(ctx context.Context, projectID int64) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM datasets WHERE project_id = ?", projectID); err != nil {
		return 0, fmt.Errorf("count datasets: %w", err)
	}
	return n, nil
}

// FinalizeDataset marks a pending dataset ready with its final row count and
// issues key in the same transaction, so a dataset never becomes visible
// without its key and a key never exists for an unfinished dataset.
func (s *Store) FinalizeDataset(ctx context.Context, id string, rowCount int64, key *model.APIKey) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		"UPDATE datasets SET status = ?, row_count = ? WHERE id = ? AND status = ?",
		model.DatasetReady, rowCount, id, model.DatasetPending)
	if err != nil {
		return fmt.Errorf("mark dataset ready: %w", err)
	}
	if err := expectOne(result, "mark dataset ready"); err != nil {
		return err
	}

	if err := insertAPIKey(ctx, tx, key); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteDataset removes a dataset record. Keys scoped to it are cascade
// deleted.
func (s *Store) DeleteDataset(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM datasets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	return expectOne(result, "delete dataset")
}

// ---------------------------------------------------------------------------
// API Key management
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new API key record. The key_hash must already be set
// (use HashAPIKey). The ID, Period and CreatedAt fields are populated after
// insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	return insertAPIKey(ctx, s.db, key)
}

func insertAPIKey(ctx context.Context, ext sqlx.ExtContext, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()
	if key.Period == "" {
		key.Period = model.PeriodOf(key.CreatedAt)
	}
	if key.RequestLimitPerMonth <= 0 {
		key.RequestLimitPerMonth = model.DefaultMonthlyRequestLimit
	}

	const q = `INSERT INTO api_keys
		(project_id, dataset_id, key_hash, key_prefix, label, request_count,
		 request_limit_per_month, period, is_active, created_at)
		VALUES
		(:project_id, :dataset_id, :key_hash, :key_prefix, :label, :request_count,
		 :request_limit_per_month, :period, :is_active, :created_at)`

	result, err := sqlx.NamedExecContext(ctx, ext, q, key)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get api key id: %w", err)
	}
	key.ID = id
	return nil
}

// GetAPIKey returns an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id int64) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, "SELECT * FROM api_keys WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, "SELECT * FROM api_keys WHERE key_hash = ?", hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns a project's API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, projectID int64) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := s.db.SelectContext(ctx, &keys,
		"SELECT * FROM api_keys WHERE project_id = ? ORDER BY created_at DESC, id DESC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey marks an API key as inactive by ID.
func (s *Store) RevokeAPIKey(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return expectOne(result, "revoke api key")
}

// RevokeAPIKeyByPrefix marks an active API key as inactive by its prefix.
func (s *Store) RevokeAPIKeyByPrefix(ctx context.Context, prefix string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET is_active = 0 WHERE key_prefix = ? AND is_active = 1", prefix)
	if err != nil {
		return fmt.Errorf("revoke api key by prefix: %w", err)
	}
	return expectOne(result, "revoke api key by prefix")
}

// ReserveRequest charges one request to an API key. The period check, the
// limit check and the increment happen in a single UPDATE, so concurrent
// callers at limit-1 see exactly one success. A key whose stored period is
// older than now's restarts its count at one. ErrQuotaExhausted is returned
// when nothing was charged.
func (s *Store) ReserveRequest(ctx context.Context, id int64, now time.Time) error {
	period := model.PeriodOf(now)
	const q = `UPDATE api_keys SET
		request_count = CASE WHEN period <> ? THEN 1 ELSE request_count + 1 END,
		period = ?,
		last_used_at = ?
		WHERE id = ? AND is_active = 1
		  AND (period <> ? OR request_count < request_limit_per_month)`

	result, err := s.db.ExecContext(ctx, q, period, period, now.UTC(), id, period)
	if err != nil {
		return fmt.Errorf("reserve request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve request rows affected: %w", err)
	}
	if n == 0 {
		return ErrQuotaExhausted
	}
	return nil
}

// RefundRequest returns one previously reserved request to an API key.
func (s *Store) RefundRequest(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET request_count = request_count - 1 WHERE id = ? AND request_count > 0", id)
	if err != nil {
		return fmt.Errorf("refund request: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Usage logs
// ---------------------------------------------------------------------------

// AppendUsageLog records one served query request.
func (s *Store) AppendUsageLog(ctx context.Context, entry *model.UsageLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.QueryParams == "" {
		entry.QueryParams = "{}"
	}

	const q = `INSERT INTO usage_logs
		(api_key_id, project_id, dataset_id, endpoint, status_code, response_time_ms, query_params, created_at)
		VALUES
		(:api_key_id, :project_id, :dataset_id, :endpoint, :status_code, :response_time_ms, :query_params, :created_at)`

	result, err := s.db.NamedExecContext(ctx, q, entry)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get usage log id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListUsageLogs returns a project's most recent usage logs, newest first.
func (s *Store) ListUsageLogs(ctx context.Context, projectID int64, limit int) ([]model.UsageLog, error) {
	var logs []model.UsageLog
	err := s.db.SelectContext(ctx, &logs,
		"SELECT * FROM usage_logs WHERE project_id = ? ORDER BY id DESC LIMIT ?", projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage logs: %w", err)
	}
	return logs, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns a stored setting value.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	if err := s.db.GetContext(ctx, &v, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return v, nil
}

// SetSetting stores a setting value, replacing any previous one.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func expectOne(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
