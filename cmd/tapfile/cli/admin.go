package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin users",
		Long:  "Create and list administrative users who manage projects, datasets and API keys through the management API.",
	}

	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminListCmd())

	return cmd
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		name     string
		super    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new admin user",
		Long: `Create a new admin user. The first admin is always a super admin; later
admins are super admins only with --super.`,
		Example: `  tapfile admin create --email admin@example.com --password s3cret-pass
  tapfile admin create --email admin@example.com  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(cmd.Context(), cmd.OutOrStdout(), email, password, name, super)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Admin display name")
	cmd.Flags().BoolVar(&super, "super", false, "Allow this admin to create other admins")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runAdminCreate(ctx context.Context, out io.Writer, email, password, name string, super bool) error {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %q", email)
	}

	if password == "" {
		var err error
		if password, err = promptPassword(out); err != nil {
			return err
		}
	}

	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if _, err := e.store.GetAdminByEmail(ctx, email); err == nil {
		return fmt.Errorf("admin %q already exists", email)
	} else if !errors.Is(err, config.ErrNotFound) {
		return err
	}

	hasAdmin, err := e.store.HasAnyAdmin(ctx)
	if err != nil {
		return err
	}

	admin := &model.Admin{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		IsActive:     true,
		IsSuperAdmin: super || !hasAdmin,
	}
	if err := e.store.CreateAdmin(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	role := "admin"
	if admin.IsSuperAdmin {
		role = "super admin"
	}
	fmt.Fprintf(out, "Created %s %q (id %d)\n", role, admin.Email, admin.ID)
	return nil
}

// promptPassword reads a password and its confirmation from the terminal.
func promptPassword(out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--password is required when stdin is not a terminal")
	}

	fmt.Fprint(out, "Password: ")
	pwBytes, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(out)

	fmt.Fprint(out, "Confirm password: ")
	confirmBytes, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Fprintln(out)

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all admin users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminList(cmd.Context(), cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAdminList(ctx context.Context, out io.Writer, jsonOutput bool) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	admins, err := e.store.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}

	if jsonOutput {
		if admins == nil {
			admins = []model.Admin{}
		}
		return printJSON(out, admins)
	}

	if len(admins) == 0 {
		fmt.Fprintln(out, "No admin users configured. Use 'tapfile admin create' to create one.")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-30s %-24s %-8s %-6s\n", "ID", "EMAIL", "NAME", "ACTIVE", "SUPER")
	fmt.Fprintf(out, "%-6s %-30s %-24s %-8s %-6s\n", "--", "-----", "----", "------", "-----")
	for _, a := range admins {
		fmt.Fprintf(out, "%-6d %-30s %-24s %-8s %-6s\n", a.ID, a.Email, a.Name, yesNo(a.IsActive), yesNo(a.IsSuperAdmin))
	}

	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
