package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/openapi"
	"github.com/tapfile/tapfile/internal/service"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi <project> [dataset]",
		Short: "Generate an OpenAPI document",
		Long: `Generate the OpenAPI 3.1 document of a dataset's query endpoint, or of every
published dataset of a project when no dataset is named. The document lists
the columns, their types and every supported query parameter.`,
		Example: `  tapfile openapi acme people                 # one dataset
  tapfile openapi acme                        # every dataset of the project
  tapfile openapi acme people -o people.json  # write to file`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) > 1 {
				ref = args[1]
			}
			return runOpenAPI(cmd.Context(), cmd.OutOrStdout(), args[0], ref, baseURL, outputFile)
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL to put in the document")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the document to a file instead of stdout")

	return cmd
}

func runOpenAPI(ctx context.Context, out io.Writer, projectSlug, ref, baseURL, outputFile string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	// Resolving ready datasets needs no warehouse connection.
	datasets := service.NewDatasetService(e.store, nil)

	p, err := datasets.Project(ctx, projectSlug)
	if err != nil {
		return err
	}

	var doc interface{}
	if ref != "" {
		ds, err := datasets.Dataset(ctx, p, ref)
		if err != nil {
			return err
		}
		doc = openapi.GenerateDatasetSpec(p, ds, baseURL)
	} else {
		ready, err := e.store.ListDatasets(ctx, p.ID, model.DatasetReady)
		if err != nil {
			return fmt.Errorf("list datasets: %w", err)
		}
		doc = openapi.GenerateProjectSpec(p, ready, baseURL)
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, append(b, '\n'), 0644); err != nil {
			return fmt.Errorf("write %s: %w", outputFile, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", outputFile)
		return nil
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
