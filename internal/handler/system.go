package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/blob"
	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/ingest"
	"github.com/tapfile/tapfile/internal/logging"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/openapi"
	"github.com/tapfile/tapfile/internal/server/middleware"
	"github.com/tapfile/tapfile/internal/service"
)

// multipartMemory is how much of an upload is buffered in memory before the
// rest spills to a temporary file.
const multipartMemory = 32 << 20

// SystemHandler manages tapfile itself: admin sessions, admins, projects,
// datasets, API keys and usage.
type SystemHandler struct {
	store      *config.Store
	authSvc    *service.AuthService
	projects   *service.ProjectService
	datasets   *service.DatasetService
	orch       *ingest.Orchestrator
	limits     config.LimitSettings
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(
	store *config.Store,
	authSvc *service.AuthService,
	projects *service.ProjectService,
	datasets *service.DatasetService,
	orch *ingest.Orchestrator,
	limits config.LimitSettings,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *SystemHandler {
	return &SystemHandler{
		store:      store,
		authSvc:    authSvc,
		projects:   projects,
		datasets:   datasets,
		orch:       orch,
		limits:     limits,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

func (h *SystemHandler) log(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context(), h.logger)
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// loginRequest is the expected payload for the Login endpoint.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the response payload for a successful login.
type loginResponse struct {
	Token        string `json:"session_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	AdminID      int64  `json:"admin_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

// Login authenticates an admin and returns a session token.
// POST /api/v1/system/admin/session
func (h *SystemHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	token, admin, err := h.authSvc.Login(r.Context(), req.Email, req.Password, h.sessionTTL)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	case errors.Is(err, service.ErrAdminInactive):
		writeError(w, http.StatusUnauthorized, "Account is disabled")
		return
	case err != nil:
		h.log(r).Error("login failed", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "Authentication error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:        token,
		TokenType:    "bearer",
		ExpiresIn:    int(h.sessionTTL.Seconds()),
		AdminID:      admin.ID,
		Email:        admin.Email,
		Name:         admin.Name,
		IsSuperAdmin: admin.IsSuperAdmin,
	})
}

// Logout revokes the session token the request was made with.
// DELETE /api/v1/system/admin/session
func (h *SystemHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if p := middleware.GetAdmin(r.Context()); p != nil {
		h.authSvc.RevokeJWT(p)
	}
	writeJSON(w, http.StatusOK, success("Session invalidated"))
}

// ---------------------------------------------------------------------------
// Admin management
// ---------------------------------------------------------------------------

// ListAdmins returns all admin accounts.
// GET /api/v1/system/admin
func (h *SystemHandler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.store.ListAdmins(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list admins: "+err.Error())
		return
	}

	resources := make([]map[string]interface{}, 0, len(admins))
	for i := range admins {
		resources = append(resources, adminToMap(&admins[i]))
	}
	writeJSON(w, http.StatusOK, listResponse(resources))
}

// CreateAdmin creates a new admin account. Super admin only.
// POST /api/v1/system/admin
func (h *SystemHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		Name         string `json:"name"`
		IsSuperAdmin bool   `json:"is_super_admin"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if body.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}
	if body.Password == "" {
		writeError(w, http.StatusBadRequest, "Password is required")
		return
	}

	if existing, err := h.store.GetAdminByEmail(r.Context(), body.Email); err == nil && existing != nil {
		writeError(w, http.StatusConflict, "Admin with this email already exists")
		return
	}

	hash, err := service.HashPassword(body.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	admin := &model.Admin{
		Email:        body.Email,
		PasswordHash: hash,
		Name:         body.Name,
		IsActive:     true,
		IsSuperAdmin: body.IsSuperAdmin,
	}
	if err := h.store.CreateAdmin(r.Context(), admin); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create admin: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, adminToMap(admin))
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// projectFor resolves the {project} path parameter and checks the admin may
// manage it. It writes the error response itself and returns nil on
// failure.
func (h *SystemHandler) projectFor(w http.ResponseWriter, r *http.Request) *model.Project {
	slug := chi.URLParam(r, "project")
	project, err := h.store.GetProjectBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Project not found: "+slug)
			return nil
		}
		writeError(w, http.StatusInternalServerError, "Failed to get project: "+err.Error())
		return nil
	}

	admin := middleware.GetAdmin(r.Context())
	if admin == nil || (!admin.IsSuperAdmin && admin.AdminID != project.OwnerID) {
		writeError(w, http.StatusForbidden, "You do not own project "+slug)
		return nil
	}
	return project
}

// ListProjects returns the projects the admin owns, or every project for a
// super admin.
// GET /api/v1/system/project
func (h *SystemHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	admin := middleware.GetAdmin(r.Context())
	var owner int64
	if admin != nil && !admin.IsSuperAdmin {
		owner = admin.AdminID
	}

	projects, err := h.store.ListProjects(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listResponse(projects))
}

// CreateProject creates a project owned by the calling admin.
// POST /api/v1/system/project
func (h *SystemHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slug        string `json:"slug"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Warehouse   string `json:"warehouse"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	admin := middleware.GetAdmin(r.Context())
	if admin == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	project := &model.Project{
		Slug:        body.Slug,
		Name:        body.Name,
		Description: body.Description,
		Warehouse:   body.Warehouse,
		OwnerID:     admin.AdminID,
	}
	if err := h.projects.Create(r.Context(), project); err != nil {
		writeAppError(w, h.log(r), err, "Failed to create project")
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// GetProject returns one project with its dataset count.
// GET /api/v1/system/project/{project}
func (h *SystemHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}

	n, err := h.store.CountDatasets(r.Context(), project.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count datasets: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            project.ID,
		"slug":          project.Slug,
		"name":          project.Name,
		"description":   project.Description,
		"owner_id":      project.OwnerID,
		"warehouse":     project.Warehouse,
		"dataset_count": n,
		"created_at":    project.CreatedAt,
	})
}

// DeleteProject removes a project together with its datasets, their
// storage and archived uploads, and its keys.
// DELETE /api/v1/system/project/{project}
func (h *SystemHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}

	if err := h.orch.RemoveProject(r.Context(), project); err != nil {
		writeAppError(w, h.log(r), err, "Failed to delete project")
		return
	}
	writeJSON(w, http.StatusOK, success("Project deleted"))
}

// ProjectDoc returns the combined OpenAPI document of a project's ready
// datasets.
// GET /api/v1/system/project/{project}/openapi.json
func (h *SystemHandler) ProjectDoc(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}

	datasets, err := h.store.ListDatasets(r.Context(), project.ID, model.DatasetReady)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list datasets: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, openapi.GenerateProjectSpec(project, datasets, serverURL(r)))
}

// ---------------------------------------------------------------------------
// Datasets
// ---------------------------------------------------------------------------

// datasetFor resolves the {dataset} path parameter, an id or a name, within
// project. Pending datasets are visible to admins.
func (h *SystemHandler) datasetFor(w http.ResponseWriter, r *http.Request, project *model.Project) *model.Dataset {
	ref := chi.URLParam(r, "dataset")
	ds, err := h.store.GetDataset(r.Context(), ref)
	if err == nil && ds.ProjectID != project.ID {
		err = config.ErrNotFound
	}
	if errors.Is(err, config.ErrNotFound) {
		ds, err = h.store.GetDatasetByName(r.Context(), project.ID, ref)
	}
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Dataset not found: "+ref)
			return nil
		}
		writeError(w, http.StatusInternalServerError, "Failed to get dataset: "+err.Error())
		return nil
	}
	return ds
}

// ListDatasets returns a project's ready datasets.
// GET /api/v1/system/project/{project}/dataset
func (h *SystemHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}

	datasets, err := h.store.ListDatasets(r.Context(), project.ID, model.DatasetReady)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list datasets: "+err.Error())
		return
	}

	resources := make([]map[string]interface{}, 0, len(datasets))
	for i := range datasets {
		resources = append(resources, datasetToMap(project, &datasets[i]))
	}
	writeJSON(w, http.StatusOK, listResponse(resources))
}

// UploadDataset ingests a CSV file sent as multipart form data. Fields:
// file (required), name (optional, defaults to the file name) and schema
// (optional JSON array of {name, type, nullable} overrides).
// POST /api/v1/system/project/{project}/dataset
func (h *SystemHandler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}

	if h.limits.MaxFileBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxFileBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAppError(w, h.log(r), apperr.CapacityExceeded("upload exceeds the %d byte limit", h.limits.MaxFileBytes), "")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "A CSV file is required in the \"file\" field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload: "+err.Error())
		return
	}

	var schema []model.ColumnSchema
	if raw := strings.TrimSpace(r.FormValue("schema")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &schema); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid schema override: "+err.Error())
			return
		}
	}

	res, err := h.orch.Ingest(r.Context(), ingest.Request{
		Project:  project,
		Name:     r.FormValue("name"),
		Filename: header.Filename,
		Data:     data,
		Schema:   schema,
	})
	if err != nil {
		writeAppError(w, h.log(r), err, "Ingestion failed")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetDataset returns one dataset with its schema.
// GET /api/v1/system/project/{project}/dataset/{dataset}
func (h *SystemHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}
	ds := h.datasetFor(w, r, project)
	if ds == nil {
		return
	}
	writeJSON(w, http.StatusOK, datasetToMap(project, ds))
}

// DeleteDataset removes a dataset, its storage, its archived upload and the
// keys scoped to it.
// DELETE /api/v1/system/project/{project}/dataset/{dataset}
func (h *SystemHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}
	ds := h.datasetFor(w, r, project)
	if ds == nil {
		return
	}

	if err := h.orch.Remove(r.Context(), project, ds); err != nil {
		writeAppError(w, h.log(r), err, "Failed to delete dataset")
		return
	}
	writeJSON(w, http.StatusOK, success("Dataset deleted"))
}

// DatasetSource streams the original upload of a dataset.
// GET /api/v1/system/project/{project}/dataset/{dataset}/source
func (h *SystemHandler) DatasetSource(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}
	ds := h.datasetFor(w, r, project)
	if ds == nil {
		return
	}

	data, err := h.orch.Source(r.Context(), ds)
	if err != nil {
		if errors.Is(err, blob.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "No archived upload for dataset "+ds.Name)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read archived upload: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ds.Name+".csv"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ---------------------------------------------------------------------------
// API Key management
// ---------------------------------------------------------------------------

// ListAPIKeys returns a project's API keys without the keys themselves.
// GET /api/v1/system/project/{project}/api-key
func (h *SystemHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}

	keys, err := h.store.ListAPIKeys(r.Context(), project.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list API keys: "+err.Error())
		return
	}

	resources := make([]map[string]interface{}, 0, len(keys))
	for i := range keys {
		resources = append(resources, apiKeyToMap(&keys[i]))
	}
	writeJSON(w, http.StatusOK, listResponse(resources))
}

// createAPIKeyRequest is the expected payload for CreateAPIKey.
type createAPIKeyRequest struct {
	DatasetID string `json:"dataset_id"`
	Label     string `json:"label"`
	Limit     int64  `json:"limit"`
}

// createAPIKeyResponse includes the plaintext key (shown once only).
type createAPIKeyResponse struct {
	ID                   int64     `json:"id"`
	Key                  string    `json:"api_key"` // Plaintext, shown ONCE.
	KeyPrefix            string    `json:"key_prefix"`
	Label                string    `json:"label"`
	DatasetID            *string   `json:"dataset_id,omitempty"`
	RequestLimitPerMonth int64     `json:"request_limit_per_month"`
	CreatedAt            time.Time `json:"created_at"`
}

// CreateAPIKey issues an additional key for the project, optionally scoped
// to one dataset, and returns the plaintext key exactly once.
// POST /api/v1/system/project/{project}/api-key
func (h *SystemHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}

	var req createAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var datasetID *string
	if req.DatasetID != "" {
		ds, err := h.datasets.Dataset(r.Context(), project, req.DatasetID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				writeError(w, http.StatusBadRequest, "Dataset not found: "+req.DatasetID)
				return
			}
			writeAppError(w, h.log(r), err, "Failed to resolve dataset")
			return
		}
		datasetID = &ds.ID
	}

	limit := req.Limit
	if limit <= 0 {
		limit = h.limits.MonthlyRequests
	}

	raw, key, err := h.authSvc.IssueAPIKey(r.Context(), project.ID, datasetID, req.Label, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createAPIKeyResponse{
		ID:                   key.ID,
		Key:                  raw,
		KeyPrefix:            key.KeyPrefix,
		Label:                key.Label,
		DatasetID:            key.DatasetID,
		RequestLimitPerMonth: key.RequestLimitPerMonth,
		CreatedAt:            key.CreatedAt,
	})
}

// RevokeAPIKey deactivates an API key by ID.
// DELETE /api/v1/system/project/{project}/api-key/{keyId}
func (h *SystemHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}

	idStr := chi.URLParam(r, "keyId")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid key ID: "+idStr)
		return
	}

	key, err := h.store.GetAPIKey(r.Context(), id)
	if err == nil && key.ProjectID != project.ID {
		err = config.ErrNotFound
	}
	if err == nil {
		err = h.store.RevokeAPIKey(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			writeError(w, http.StatusNotFound, "API key not found: "+idStr)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to revoke API key: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, success("API key revoked"))
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

// ListUsage returns a project's most recent query requests.
// GET /api/v1/system/project/{project}/usage?limit=100
func (h *SystemHandler) ListUsage(w http.ResponseWriter, r *http.Request) {
	project := h.projectFor(w, r)
	if project == nil {
		return
	}

	limit := clampInt(queryInt(r, "limit", 100), 1, 1000)
	logs, err := h.store.ListUsageLogs(r.Context(), project.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list usage: "+err.Error())
		return
	}
	if logs == nil {
		logs = []model.UsageLog{}
	}
	writeJSON(w, http.StatusOK, listResponse(logs))
}

// ---------------------------------------------------------------------------
// Serialization helpers (avoid exposing hashes and storage internals)
// ---------------------------------------------------------------------------

func listResponse[T any](items []T) model.ListResponse {
	if items == nil {
		items = []T{}
	}
	return model.ListResponse{Success: true, Resource: items, Count: len(items)}
}

func adminToMap(admin *model.Admin) map[string]interface{} {
	m := map[string]interface{}{
		"id":             admin.ID,
		"email":          admin.Email,
		"name":           admin.Name,
		"is_active":      admin.IsActive,
		"is_super_admin": admin.IsSuperAdmin,
		"created_at":     admin.CreatedAt,
		"updated_at":     admin.UpdatedAt,
	}
	if admin.LastLoginAt != nil {
		m["last_login_at"] = admin.LastLoginAt
	}
	return m
}

func datasetToMap(project *model.Project, ds *model.Dataset) map[string]interface{} {
	return map[string]interface{}{
		"id":                ds.ID,
		"name":              ds.Name,
		"status":            ds.Status,
		"row_count":         ds.RowCount,
		"column_count":      len(ds.Schema),
		"schema":            ds.Schema,
		"api_endpoint_path": endpointPath(project, ds),
		"has_source":        ds.BlobKey != "",
		"created_at":        ds.CreatedAt,
	}
}

func apiKeyToMap(key *model.APIKey) map[string]interface{} {
	m := map[string]interface{}{
		"id":                      key.ID,
		"key_prefix":              key.KeyPrefix,
		"label":                   key.Label,
		"is_active":               key.IsActive,
		"period":                  key.Period,
		"request_count":           key.RequestCount,
		"request_limit_per_month": key.RequestLimitPerMonth,
		"remaining":               key.Remaining(),
		"created_at":              key.CreatedAt,
	}
	if key.DatasetID != nil {
		m["dataset_id"] = *key.DatasetID
	}
	if key.LastUsedAt != nil {
		m["last_used_at"] = key.LastUsedAt
	}
	return m
}
