package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tapfile/tapfile/internal/server"
	"github.com/tapfile/tapfile/internal/service"
)

const banner = `
 _              __ _ _
| |_ __ _ _ __ / _(_) | ___
| __/ _' | '_ \ |_| | |/ _ \
| || (_| | |_) |  _| | |  __/
 \__\__,_| .__/|_| |_|_|\___|
         |_|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tapfile API server",
		Long:  "Start the HTTP server that exposes the query API, the management API and the OpenAPI documents.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(ctx context.Context, out io.Writer) error {
	fmt.Fprint(out, banner)
	fmt.Fprintln(out)

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger
	logger.Info("metadata store initialized", "path", rt.settings.DataDir)

	secret, err := jwtSecret(ctx, rt.store, rt.settings)
	if err != nil {
		return fmt.Errorf("resolve jwt secret: %w", err)
	}
	authSvc := service.NewAuthService(rt.store, secret, rt.logger)

	hasAdmin, err := rt.store.HasAnyAdmin(ctx)
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no admin account found - run: tapfile admin create")
	}

	cfg := server.ConfigFromSettings(rt.settings)
	srv := server.New(cfg, server.Deps{
		Store:        rt.store,
		Registry:     rt.registry,
		Auth:         authSvc,
		Projects:     service.NewProjectService(rt.store, cfg.Limits.MaxProjectsPerOwner, rt.registry.List),
		Datasets:     rt.datasets,
		Orchestrator: rt.orchestrator,
	}, logger)

	fmt.Fprintf(out, "→ tapfile %s\n", versionString())
	fmt.Fprintf(out, "→ Listening on http://%s:%d\n", cfg.Host, cfg.Port)
	fmt.Fprintf(out, "→ Management: http://%s:%d/api/v1/system\n", cfg.Host, cfg.Port)
	fmt.Fprintf(out, "→ Health:     http://%s:%d/healthz\n", cfg.Host, cfg.Port)
	fmt.Fprintf(out, "→ Warehouses: %v\n", rt.registry.List())
	fmt.Fprintln(out)

	return srv.ListenAndServe()
}
