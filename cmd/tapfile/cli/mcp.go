package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	tmcp "github.com/tapfile/tapfile/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes published datasets
as read-only tools for AI agents. Agents can list datasets, read their schemas
and query rows with the same parameters as the HTTP query route.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for MCP clients that launch tapfile as a subprocess. MCP calls are
not metered against API key quotas.`,
		Example: `  tapfile mcp                              # stdio mode
  tapfile mcp --transport http --port 3001   # Streamable HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd.Context(), transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(ctx context.Context, transport string, port int) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	mcpSrv := tmcp.NewMCPServer(rt.datasets, rt.store, versionString(), rt.logger)

	if transport == "http" {
		return mcpSrv.ServeHTTP(fmt.Sprintf(":%d", port))
	}
	return mcpSrv.ServeStdio()
}
