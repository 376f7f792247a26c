package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/connector"
	"github.com/tapfile/tapfile/internal/handler"
	"github.com/tapfile/tapfile/internal/ingest"
	"github.com/tapfile/tapfile/internal/server/middleware"
	"github.com/tapfile/tapfile/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	SessionTTL      time.Duration
	Limits          config.LimitSettings
	RateLimit       config.RateLimitSettings
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return ConfigFromSettings(config.DefaultSettings())
}

// ConfigFromSettings derives the server configuration from the effective
// settings.
func ConfigFromSettings(s *config.Settings) Config {
	return Config{
		Host:            s.Server.Host,
		Port:            s.Server.Port,
		ShutdownTimeout: s.ShutdownTimeout(),
		CORSOrigins:     s.Server.CORSOrigins,
		SessionTTL:      s.JWTTTL(),
		Limits:          s.Limits,
		RateLimit:       s.RateLimit,
	}
}

// Deps are the long-lived components the server routes requests to.
type Deps struct {
	Store        *config.Store
	Registry     *connector.Registry
	Auth         *service.AuthService
	Projects     *service.ProjectService
	Datasets     *service.DatasetService
	Orchestrator *ingest.Orchestrator
}

// Server is the top-level HTTP server for tapfile. It owns the Chi router
// and the components behind it.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	usage      *service.UsageSink
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		usage:  service.NewUsageSink(deps.Store, service.DefaultUsageQueueSize, logger),
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	sysHandler := handler.NewSystemHandler(
		s.deps.Store, s.deps.Auth, s.deps.Projects, s.deps.Datasets,
		s.deps.Orchestrator, s.cfg.Limits, s.cfg.SessionTTL, s.logger,
	)
	queryHandler := handler.NewQueryHandler(s.deps.Datasets, s.deps.Store, s.usage, s.logger)

	r.Route("/api/v1", func(r chi.Router) {

		// Management APIs
		r.Route("/system", func(r chi.Router) {
			r.With(middleware.RateLimitByIP(s.cfg.RateLimit.PerIPPerMinute)).
				Post("/admin/session", sysHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(s.deps.Auth))

				r.Delete("/admin/session", sysHandler.Logout)

				r.Get("/admin", sysHandler.ListAdmins)
				r.With(middleware.RequireSuperAdmin()).Post("/admin", sysHandler.CreateAdmin)

				r.Get("/project", sysHandler.ListProjects)
				r.Post("/project", sysHandler.CreateProject)

				r.Route("/project/{project}", func(r chi.Router) {
					r.Get("/", sysHandler.GetProject)
					r.Delete("/", sysHandler.DeleteProject)
					r.Get("/openapi.json", sysHandler.ProjectDoc)

					r.Get("/dataset", sysHandler.ListDatasets)
					r.Post("/dataset", sysHandler.UploadDataset)
					r.Get("/dataset/{dataset}", sysHandler.GetDataset)
					r.Delete("/dataset/{dataset}", sysHandler.DeleteDataset)
					r.Get("/dataset/{dataset}/source", sysHandler.DatasetSource)

					r.Get("/api-key", sysHandler.ListAPIKeys)
					r.Post("/api-key", sysHandler.CreateAPIKey)
					r.Delete("/api-key/{keyId}", sysHandler.RevokeAPIKey)

					r.Get("/usage", sysHandler.ListUsage)
				})
			})
		})

		// Published datasets
		r.Route("/{project}/{dataset}", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(s.cfg.RateLimit.PerIPPerMinute))
			r.Use(middleware.RequireAPIKey(s.deps.Auth))
			r.Use(middleware.RateLimitByAPIKey(s.cfg.RateLimit.PerKeyPerMinute))

			r.Get("/", queryHandler.Query)
			r.Get("/_doc", queryHandler.Doc)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the metadata store and
// every warehouse are reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]string)

	if err := s.deps.Store.Ping(ctx); err != nil {
		checks["metadata"] = "error: " + err.Error()
		status = "degraded"
	} else {
		checks["metadata"] = "ok"
	}

	failed := s.deps.Registry.PingAll(ctx)
	for _, name := range s.deps.Registry.List() {
		if err, ok := failed[name]; ok {
			checks["warehouse:"+name] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks["warehouse:"+name] = "ok"
		}
	}

	httpStatus := http.StatusOK
	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing all warehouse connections.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Minute, // uploads
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.usage.Close()
	s.deps.Registry.CloseAll()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
