package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/service"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Long:  "Create, list, and delete projects. A project groups datasets and the API keys that read them.",
	}

	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectDeleteCmd())

	return cmd
}

// ---------- project create ----------

func newProjectCreateCmd() *cobra.Command {
	var (
		name      string
		owner     string
		warehouse string
	)

	cmd := &cobra.Command{
		Use:   "create <slug>",
		Short: "Create a new project",
		Example: `  tapfile project create acme --owner admin@example.com
  tapfile project create acme --owner admin@example.com --warehouse analytics`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectCreate(cmd.Context(), cmd.OutOrStdout(), args[0], name, owner, warehouse)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (default: the slug)")
	cmd.Flags().StringVar(&owner, "owner", "", "Email of the owning admin (required)")
	cmd.Flags().StringVar(&warehouse, "warehouse", model.DefaultWarehouse, "Warehouse that stores the project's rows")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func runProjectCreate(ctx context.Context, out io.Writer, slug, name, owner, warehouse string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	admin, err := e.store.GetAdminByEmail(ctx, owner)
	if errors.Is(err, config.ErrNotFound) {
		return fmt.Errorf("admin %q not found", owner)
	}
	if err != nil {
		return err
	}

	projects := service.NewProjectService(e.store, e.settings.Limits.MaxProjectsPerOwner, func() []string {
		return warehouseNames(e.settings)
	})
	p := &model.Project{Slug: slug, Name: name, OwnerID: admin.ID, Warehouse: warehouse}
	if err := projects.Create(ctx, p); err != nil {
		return err
	}

	fmt.Fprintf(out, "Created project %q (id %d, warehouse %s)\n", p.Slug, p.ID, p.Warehouse)
	return nil
}

// ---------- project list ----------

func newProjectListCmd() *cobra.Command {
	var (
		owner      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectList(cmd.Context(), cmd.OutOrStdout(), owner, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Only list projects owned by this admin email")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runProjectList(ctx context.Context, out io.Writer, owner string, jsonOutput bool) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	var ownerID int64
	if owner != "" {
		admin, err := e.store.GetAdminByEmail(ctx, owner)
		if errors.Is(err, config.ErrNotFound) {
			return fmt.Errorf("admin %q not found", owner)
		}
		if err != nil {
			return err
		}
		ownerID = admin.ID
	}

	projects, err := e.store.ListProjects(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	if jsonOutput {
		if projects == nil {
			projects = []model.Project{}
		}
		return printJSON(out, projects)
	}

	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects. Use 'tapfile project create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-24s %-24s %-12s %-9s\n", "ID", "SLUG", "NAME", "WAREHOUSE", "DATASETS")
	fmt.Fprintf(out, "%-6s %-24s %-24s %-12s %-9s\n", "--", "----", "----", "---------", "--------")
	for _, p := range projects {
		n, err := e.store.CountDatasets(ctx, p.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-6d %-24s %-24s %-12s %-9d\n", p.ID, p.Slug, p.Name, p.WarehouseName(), n)
	}

	return nil
}

// ---------- project delete ----------

func newProjectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <slug>",
		Aliases: []string{"rm"},
		Short:   "Delete a project with all its datasets and API keys",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectDelete(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runProjectDelete(ctx context.Context, out io.Writer, slug string) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := rt.project(ctx, slug)
	if err != nil {
		return err
	}
	if err := rt.orchestrator.RemoveProject(ctx, p); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	fmt.Fprintf(out, "Deleted project %q\n", p.Slug)
	return nil
}
