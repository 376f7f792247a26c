package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tapfile/tapfile/internal/blob"
	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/connector"
	"github.com/tapfile/tapfile/internal/connector/sqlite"
	"github.com/tapfile/tapfile/internal/ingest"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/server/middleware"
	"github.com/tapfile/tapfile/internal/service"
)

const (
	testJWTSecret = "test-secret-for-handler-tests"
	testPassword  = "supersecretpassword"
)

const peopleCSV = "id,Name,Age\n1,Alice,34\n2,Bob,\n3,Carol,28\n"

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store    *config.Store
	authSvc  *service.AuthService
	orch     *ingest.Orchestrator
	limits   config.LimitSettings
	handler  *SystemHandler
	queryH   *QueryHandler
	usage    *service.UsageSink
	router   chi.Router
	registry *connector.Registry
}

// newTestEnv creates a fresh test environment with an in-memory config
// store, an in-memory SQLite warehouse and a Chi router with routes mounted.
// There is no auth middleware: callers attach principals per request.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := config.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := connector.NewRegistry()
	registry.RegisterDriver("sqlite", sqlite.New)
	if err := registry.Connect(context.Background(), model.DefaultWarehouse, connector.ConnectionConfig{Driver: "sqlite", DSN: ":memory:"}); err != nil {
		t.Fatalf("registry.Connect: %v", err)
	}
	t.Cleanup(registry.CloseAll)

	blobs, err := blob.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob.NewLocalStore: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limits := config.DefaultSettings().Limits
	authSvc := service.NewAuthService(store, testJWTSecret, logger)
	datasets := service.NewDatasetService(store, registry)
	projects := service.NewProjectService(store, limits.MaxProjectsPerOwner, registry.List)
	orch := ingest.NewOrchestrator(store, registry, blobs, limits, logger)

	sysHandler := NewSystemHandler(store, authSvc, projects, datasets, orch, limits, time.Hour, logger)
	usage := service.NewUsageSink(store, service.DefaultUsageQueueSize, logger)
	t.Cleanup(usage.Close)
	queryHandler := NewQueryHandler(datasets, store, usage, logger)

	r := chi.NewRouter()
	r.Route("/api/v1/system", func(r chi.Router) {
		r.Post("/admin/session", sysHandler.Login)
		r.Delete("/admin/session", sysHandler.Logout)

		r.Get("/admin", sysHandler.ListAdmins)
		r.Post("/admin", sysHandler.CreateAdmin)

		r.Get("/project", sysHandler.ListProjects)
		r.Post("/project", sysHandler.CreateProject)
		r.Get("/project/{project}", sysHandler.GetProject)
		r.Delete("/project/{project}", sysHandler.DeleteProject)
		r.Get("/project/{project}/openapi.json", sysHandler.ProjectDoc)

		r.Get("/project/{project}/dataset", sysHandler.ListDatasets)
		r.Post("/project/{project}/dataset", sysHandler.UploadDataset)
		r.Get("/project/{project}/dataset/{dataset}", sysHandler.GetDataset)
		r.Delete("/project/{project}/dataset/{dataset}", sysHandler.DeleteDataset)
		r.Get("/project/{project}/dataset/{dataset}/source", sysHandler.DatasetSource)

		r.Get("/project/{project}/api-key", sysHandler.ListAPIKeys)
		r.Post("/project/{project}/api-key", sysHandler.CreateAPIKey)
		r.Delete("/project/{project}/api-key/{keyId}", sysHandler.RevokeAPIKey)

		r.Get("/project/{project}/usage", sysHandler.ListUsage)
	})
	r.Get("/api/v1/{project}/{dataset}", queryHandler.Query)
	r.Get("/api/v1/{project}/{dataset}/_doc", queryHandler.Doc)

	return &testEnv{
		store:    store,
		authSvc:  authSvc,
		orch:     orch,
		limits:   limits,
		handler:  sysHandler,
		queryH:   queryHandler,
		usage:    usage,
		router:   r,
		registry: registry,
	}
}

// seedAdmin creates an admin account and returns it with the principal a
// session for it would carry.
func (e *testEnv) seedAdmin(t *testing.T, email string, super bool) (*model.Admin, *service.JWTPrincipal) {
	t.Helper()
	hash, err := service.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin := &model.Admin{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test Admin",
		IsActive:     true,
		IsSuperAdmin: super,
	}
	if err := e.store.CreateAdmin(context.Background(), admin); err != nil {
		t.Fatalf("seedAdmin: %v", err)
	}
	return admin, &service.JWTPrincipal{AdminID: admin.ID, Email: email, IsSuperAdmin: super}
}

// seedProject creates a project owned by owner.
func (e *testEnv) seedProject(t *testing.T, slug string, owner *model.Admin) *model.Project {
	t.Helper()
	p := &model.Project{Slug: slug, Name: slug, OwnerID: owner.ID}
	if err := e.store.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("seedProject: %v", err)
	}
	return p
}

// seedDataset ingests csv into project through the orchestrator.
func (e *testEnv) seedDataset(t *testing.T, project *model.Project, name, csv string) *model.IngestResult {
	t.Helper()
	res, err := e.orch.Ingest(context.Background(), ingest.Request{
		Project:  project,
		Name:     name,
		Filename: name + ".csv",
		Data:     []byte(csv),
	})
	if err != nil {
		t.Fatalf("seedDataset: %v", err)
	}
	return res
}

// do executes an HTTP request against the test router and returns the
// recorder. A non-nil admin is attached as the session principal.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, admin *service.JWTPrincipal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin != nil {
		req = req.WithContext(middleware.WithAdmin(req.Context(), admin))
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// query executes a dataset query with key attached as the API key principal.
func (e *testEnv) query(t *testing.T, path string, key *service.APIKeyPrincipal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if key != nil {
		req = req.WithContext(middleware.WithAPIKey(req.Context(), key))
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// multipartUpload builds an upload request body.
func multipartUpload(t *testing.T, filename, csv string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte(csv))
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, project string, body *bytes.Buffer, contentType string, admin *service.JWTPrincipal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/system/project/"+project+"/dataset", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.WithAdmin(req.Context(), admin))
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
