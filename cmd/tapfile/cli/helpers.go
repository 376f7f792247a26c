package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/tapfile/tapfile/internal/blob"
	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/connector"
	"github.com/tapfile/tapfile/internal/connector/mysql"
	"github.com/tapfile/tapfile/internal/connector/postgres"
	"github.com/tapfile/tapfile/internal/connector/sqlite"
	"github.com/tapfile/tapfile/internal/ingest"
	"github.com/tapfile/tapfile/internal/logging"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/service"
)

// jwtSecretSetting is the metadata store key of the generated session secret.
const jwtSecretSetting = "auth.jwt_secret"

// newRegistry creates a connector registry with all supported warehouse drivers registered.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.RegisterDriver("sqlite", sqlite.New)
	registry.RegisterDriver("postgres", postgres.New)
	registry.RegisterDriver("mysql", mysql.New)
	return registry
}

// warehouseNames returns the configured warehouse names, sorted.
func warehouseNames(s *config.Settings) []string {
	names := make([]string, 0, len(s.Warehouses))
	for name := range s.Warehouses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// connectWarehouses connects every configured warehouse. A SQLite warehouse
// without a DSN lives in the data directory.
func connectWarehouses(ctx context.Context, registry *connector.Registry, s *config.Settings, logger *slog.Logger) error {
	for _, name := range warehouseNames(s) {
		w := s.Warehouses[name]
		dsn := w.DSN
		if w.Driver == "sqlite" && dsn == "" {
			if err := os.MkdirAll(s.DataDir, 0755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(s.DataDir, "warehouse.db")
		}
		if err := registry.Connect(ctx, name, connector.ConnectionConfig{Driver: w.Driver, DSN: dsn}); err != nil {
			return err
		}
		wh, err := registry.Get(name)
		if err != nil {
			return err
		}
		logger.Info("connected warehouse", "warehouse", wh.Name(), "driver", wh.Driver())
	}
	return nil
}

// env is what a command needs from the metadata store: the effective
// settings, a logger and the open store.
type env struct {
	settings *config.Settings
	logger   *slog.Logger
	store    *config.Store
}

// openEnv loads the settings and opens the metadata store. Logs go to
// stderr so stdout stays clean for command output.
func openEnv() (*env, error) {
	s, err := loadSettings(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger := logging.New(s.Log.Level, s.Log.Format, os.Stderr)

	store, err := config.NewStore(s.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	return &env{settings: s, logger: logger, store: store}, nil
}

func (e *env) Close() {
	e.store.Close()
}

// project resolves a project slug.
func (e *env) project(ctx context.Context, slug string) (*model.Project, error) {
	if slug == "" {
		return nil, fmt.Errorf("--project is required")
	}
	p, err := e.store.GetProjectBySlug(ctx, slug)
	if errors.Is(err, config.ErrNotFound) {
		return nil, fmt.Errorf("project %q not found", slug)
	}
	return p, err
}

// dataset resolves a dataset id or name within project. Pending datasets
// are found too.
func (e *env) dataset(ctx context.Context, project *model.Project, ref string) (*model.Dataset, error) {
	ds, err := e.store.GetDataset(ctx, ref)
	if err == nil && ds.ProjectID != project.ID {
		err = config.ErrNotFound
	}
	if errors.Is(err, config.ErrNotFound) {
		ds, err = e.store.GetDatasetByName(ctx, project.ID, ref)
	}
	if errors.Is(err, config.ErrNotFound) {
		return nil, fmt.Errorf("dataset %q not found in project %q", ref, project.Slug)
	}
	return ds, err
}

// runtime adds the warehouses, the blob store and the ingestion pipeline
// to env, for commands that touch rows.
type runtime struct {
	*env
	registry     *connector.Registry
	blobs        blob.Store
	datasets     *service.DatasetService
	orchestrator *ingest.Orchestrator
}

func openRuntime(ctx context.Context) (*runtime, error) {
	e, err := openEnv()
	if err != nil {
		return nil, err
	}

	registry := newRegistry()
	if err := connectWarehouses(ctx, registry, e.settings, e.logger); err != nil {
		registry.CloseAll()
		e.Close()
		return nil, err
	}

	blobs, err := blob.Open(ctx, e.settings.Blob, e.settings.DataDir)
	if err != nil {
		registry.CloseAll()
		e.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	return &runtime{
		env:          e,
		registry:     registry,
		blobs:        blobs,
		datasets:     service.NewDatasetService(e.store, registry),
		orchestrator: ingest.NewOrchestrator(e.store, registry, blobs, e.settings.Limits, e.logger),
	}, nil
}

func (r *runtime) Close() {
	r.registry.CloseAll()
	r.env.Close()
}

// jwtSecret returns the configured session signing secret. Without one, a
// random secret is generated on first use and kept in the metadata store
// so sessions survive restarts.
func jwtSecret(ctx context.Context, store *config.Store, s *config.Settings) (string, error) {
	if s.Auth.JWTSecret != "" {
		return s.Auth.JWTSecret, nil
	}
	secret, err := store.GetSetting(ctx, jwtSecretSetting)
	if err == nil && secret != "" {
		return secret, nil
	}
	if err != nil && !errors.Is(err, config.ErrNotFound) {
		return "", err
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	secret = hex.EncodeToString(b)
	if err := store.SetSetting(ctx, jwtSecretSetting, secret); err != nil {
		return "", err
	}
	return secret, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
