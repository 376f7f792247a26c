package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, and revoke the API keys that read a project's datasets.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		project string
		dataset string
		label   string
		limit   int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long: `Generate a new API key for a project. With --dataset the key reads only that
dataset. The raw key is shown once and cannot be retrieved again.`,
		Example: `  tapfile key create --project acme --label "CI pipeline"
  tapfile key create --project acme --dataset people --limit 50000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(cmd.Context(), cmd.OutOrStdout(), project, dataset, label, limit)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project slug (required)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Restrict the key to one dataset (id or name)")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label for the key")
	cmd.Flags().Int64Var(&limit, "limit", 0, "Monthly request limit (default: limits.monthly_requests)")
	cmd.MarkFlagRequired("project")

	return cmd
}

func runKeyCreate(ctx context.Context, out io.Writer, projectSlug, datasetRef, label string, limit int64) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.project(ctx, projectSlug)
	if err != nil {
		return err
	}

	var datasetID *string
	if datasetRef != "" {
		ds, err := e.dataset(ctx, p, datasetRef)
		if err != nil {
			return err
		}
		datasetID = &ds.ID
	}

	if limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	if limit == 0 {
		limit = e.settings.Limits.MonthlyRequests
	}

	gen, err := service.GenerateAPIKey()
	if err != nil {
		return err
	}
	key := service.NewAPIKeyRecord(gen, p.ID, datasetID, label, limit)
	if err := e.store.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Fprintln(out, "API Key created:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Key:     %s\n", gen.Raw)
	fmt.Fprintf(out, "  ID:      %d\n", key.ID)
	fmt.Fprintf(out, "  Project: %s\n", p.Slug)
	if datasetID != nil {
		fmt.Fprintf(out, "  Dataset: %s\n", *datasetID)
	}
	if label != "" {
		fmt.Fprintf(out, "  Label:   %s\n", label)
	}
	fmt.Fprintf(out, "  Limit:   %d requests/month\n", limit)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		project    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the API keys of a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd.Context(), cmd.OutOrStdout(), project, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project slug (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("project")

	return cmd
}

func runKeyList(ctx context.Context, out io.Writer, projectSlug string, jsonOutput bool) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.project(ctx, projectSlug)
	if err != nil {
		return err
	}

	keys, err := e.store.ListAPIKeys(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		if keys == nil {
			keys = []model.APIKey{}
		}
		return printJSON(out, keys)
	}

	if len(keys) == 0 {
		fmt.Fprintf(out, "No API keys in project %q. Use 'tapfile key create' to create one.\n", p.Slug)
		return nil
	}

	fmt.Fprintf(out, "%-6s %-14s %-20s %-36s %-16s %-8s %-6s\n", "ID", "PREFIX", "LABEL", "DATASET", "USED", "PERIOD", "ACTIVE")
	fmt.Fprintf(out, "%-6s %-14s %-20s %-36s %-16s %-8s %-6s\n", "--", "------", "-----", "-------", "----", "------", "------")
	for _, k := range keys {
		scope := "(all)"
		if k.DatasetID != nil {
			scope = *k.DatasetID
		}
		used := fmt.Sprintf("%d/%d", k.RequestCount, k.RequestLimitPerMonth)
		fmt.Fprintf(out, "%-6d %-14s %-20s %-36s %-16s %-8s %-6s\n",
			k.ID, k.KeyPrefix, k.Label, scope, used, k.Period, yesNo(k.IsActive))
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id|prefix>",
		Short: "Revoke an API key",
		Long:  "Revoke an API key by its numeric id or its display prefix (for example tap_1a2b3c4d).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	return cmd
}

func runKeyRevoke(ctx context.Context, out io.Writer, ref string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ref = strings.TrimSpace(ref)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		err = e.store.RevokeAPIKey(ctx, id)
	} else if strings.HasPrefix(ref, service.KeyPrefix) {
		err = e.store.RevokeAPIKeyByPrefix(ctx, ref)
	} else {
		return fmt.Errorf("%q is neither a key id nor a key prefix", ref)
	}
	if errors.Is(err, config.ErrNotFound) {
		return fmt.Errorf("active API key %q not found", ref)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Revoked API key %s\n", ref)
	return nil
}
