package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/service"
)

// MCPServer wraps the mcp-go server with tapfile's tool and resource
// registrations. It exposes published datasets as read-only MCP tools so AI
// agents can discover schemas and query rows through the same planner and
// executor as the HTTP query route.
type MCPServer struct {
	datasets *service.DatasetService
	store    *config.Store
	version  string
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all tapfile tools and
// resources. The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(datasets *service.DatasetService, store *config.Store, version string, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		datasets: datasets,
		store:    store,
		version:  version,
		logger:   logger,
	}

	mcpServer := server.NewMCPServer(
		"tapfile",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// ServeStdio starts the MCP server in stdio mode, the integration path for
// MCP clients that launch tapfile as a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode on addr.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:   boolPtr(true),
		IdempotentHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
