package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tapfile/tapfile/internal/model"
)

const maxUsageLimit = 1000

func newUsageCmd() *cobra.Command {
	var (
		project    string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show recent query requests of a project",
		Long:  "Show the most recent metered query requests of a project, newest first.",
		Example: `  tapfile usage --project acme
  tapfile usage --project acme --limit 500 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsage(cmd.Context(), cmd.OutOrStdout(), project, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project slug (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of entries to show (max 1000)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("project")

	return cmd
}

func runUsage(ctx context.Context, out io.Writer, projectSlug string, limit int, jsonOutput bool) error {
	if limit <= 0 || limit > maxUsageLimit {
		return fmt.Errorf("--limit must be between 1 and %d", maxUsageLimit)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.project(ctx, projectSlug)
	if err != nil {
		return err
	}

	logs, err := e.store.ListUsageLogs(ctx, p.ID, limit)
	if err != nil {
		return fmt.Errorf("list usage: %w", err)
	}

	if jsonOutput {
		if logs == nil {
			logs = []model.UsageLog{}
		}
		return printJSON(out, logs)
	}

	if len(logs) == 0 {
		fmt.Fprintf(out, "No requests recorded for project %q.\n", p.Slug)
		return nil
	}

	fmt.Fprintf(out, "%-19s %-6s %-6s %-9s %s\n", "TIME", "KEY", "STATUS", "MS", "ENDPOINT")
	fmt.Fprintf(out, "%-19s %-6s %-6s %-9s %s\n", "----", "---", "------", "--", "--------")
	for _, l := range logs {
		fmt.Fprintf(out, "%-19s %-6d %-6d %-9.1f %s\n",
			l.CreatedAt.Format("2006-01-02 15:04:05"), l.APIKeyID, l.StatusCode, l.ResponseTimeMs, l.Endpoint)
	}

	return nil
}
