package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tapfile/tapfile/internal/ingest"
	"github.com/tapfile/tapfile/internal/model"
)

func newDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dataset",
		Aliases: []string{"ds"},
		Short:   "Manage datasets",
		Long:    "Ingest CSV files into datasets, list them, and delete them.",
	}

	cmd.AddCommand(newDatasetIngestCmd())
	cmd.AddCommand(newDatasetListCmd())
	cmd.AddCommand(newDatasetDeleteCmd())

	return cmd
}

// ---------- dataset ingest ----------

func newDatasetIngestCmd() *cobra.Command {
	var (
		project    string
		name       string
		schemaFile string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file.csv>",
		Short: "Ingest a CSV file as a new dataset",
		Long: `Parse a CSV file, infer its schema, store its rows and publish it as a
dataset. The dataset's first API key is printed once and cannot be retrieved
again.

--schema takes a YAML or JSON list of columns overriding the inferred types
and nullability. It must name every column of the file:

  - name: age
    type: integer
    nullable: true`,
		Example: `  tapfile dataset ingest people.csv --project acme
  tapfile dataset ingest people.csv --project acme --name staff --schema people.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetIngest(cmd.Context(), cmd.OutOrStdout(), project, args[0], name, schemaFile, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project slug (required)")
	cmd.Flags().StringVar(&name, "name", "", "Dataset name (default: the file name)")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "YAML or JSON schema override file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the ingestion result as JSON")
	cmd.MarkFlagRequired("project")

	return cmd
}

// readSchemaFile decodes a schema override. JSON is valid YAML, so one
// decoder serves both.
func readSchemaFile(path string) ([]model.ColumnSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var columns []model.ColumnSchema
	if err := yaml.Unmarshal(data, &columns); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("schema file %s lists no columns", path)
	}
	return columns, nil
}

func runDatasetIngest(ctx context.Context, out io.Writer, projectSlug, path, name, schemaFile string, jsonOutput bool) error {
	var override []model.ColumnSchema
	if schemaFile != "" {
		var err error
		if override, err = readSchemaFile(schemaFile); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := rt.project(ctx, projectSlug)
	if err != nil {
		return err
	}

	res, err := rt.orchestrator.Ingest(ctx, ingest.Request{
		Project:  p,
		Name:     name,
		Filename: filepath.Base(path),
		Data:     data,
		Schema:   override,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(out, res)
	}

	fmt.Fprintln(out, "Dataset created:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  ID:       %s\n", res.DatasetID)
	fmt.Fprintf(out, "  Rows:     %d\n", res.RowCount)
	fmt.Fprintf(out, "  Columns:  %d\n", res.ColumnCount)
	fmt.Fprintf(out, "  Endpoint: %s\n", res.APIEndpointPath)
	fmt.Fprintf(out, "  API key:  %s\n", res.APIKeyCleartext)
	fmt.Fprintln(out)
	for _, c := range res.Schema {
		null := ""
		if c.Nullable {
			null = " (nullable)"
		}
		fmt.Fprintf(out, "    %-24s %s%s\n", c.Name, c.Type, null)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- dataset list ----------

func newDatasetListCmd() *cobra.Command {
	var (
		project    string
		all        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the datasets of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetList(cmd.Context(), cmd.OutOrStdout(), project, all, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project slug (required)")
	cmd.Flags().BoolVar(&all, "all", false, "Include datasets whose ingestion has not finished")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("project")

	return cmd
}

func runDatasetList(ctx context.Context, out io.Writer, projectSlug string, all, jsonOutput bool) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.project(ctx, projectSlug)
	if err != nil {
		return err
	}

	status := model.DatasetReady
	if all {
		status = ""
	}
	datasets, err := e.store.ListDatasets(ctx, p.ID, status)
	if err != nil {
		return fmt.Errorf("list datasets: %w", err)
	}

	if jsonOutput {
		if datasets == nil {
			datasets = []model.Dataset{}
		}
		return printJSON(out, datasets)
	}

	if len(datasets) == 0 {
		fmt.Fprintf(out, "No datasets in project %q. Use 'tapfile dataset ingest' to add one.\n", p.Slug)
		return nil
	}

	fmt.Fprintf(out, "%-36s %-24s %-8s %-10s %-8s %s\n", "ID", "NAME", "STATUS", "ROWS", "COLUMNS", "CREATED")
	fmt.Fprintf(out, "%-36s %-24s %-8s %-10s %-8s %s\n", "--", "----", "------", "----", "-------", "-------")
	for _, ds := range datasets {
		fmt.Fprintf(out, "%-36s %-24s %-8s %-10d %-8d %s\n",
			ds.ID, ds.Name, ds.Status, ds.RowCount, len(ds.Schema), ds.CreatedAt.Format("2006-01-02 15:04"))
	}

	return nil
}

// ---------- dataset delete ----------

func newDatasetDeleteCmd() *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:     "delete <id|name>",
		Aliases: []string{"rm"},
		Short:   "Delete a dataset, its rows, its archived upload and its scoped keys",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasetDelete(cmd.Context(), cmd.OutOrStdout(), project, args[0])
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project slug (required)")
	cmd.MarkFlagRequired("project")

	return cmd
}

func runDatasetDelete(ctx context.Context, out io.Writer, projectSlug, ref string) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := rt.project(ctx, projectSlug)
	if err != nil {
		return err
	}
	ds, err := rt.dataset(ctx, p, ref)
	if err != nil {
		return err
	}
	if err := rt.orchestrator.Remove(ctx, p, ds); err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}

	fmt.Fprintf(out, "Deleted dataset %q (%s)\n", ds.Name, ds.ID)
	return nil
}
