package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tapfile/tapfile/internal/ingest"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/query"
)

// registerTools registers all tapfile MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("tapfile_list_datasets",
			mcp.WithDescription(
				"List the published datasets, optionally limited to one project. Returns "+
					"each dataset's project, id, name, row count and column count. Use this "+
					"first to discover what data is available.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("project",
				mcp.Description("Project slug. Omit to list datasets of every project."),
			),
		),
		s.handleListDatasets,
	)

	srv.AddTool(
		mcp.NewTool("tapfile_describe_dataset",
			mcp.WithDescription(
				"Get the schema of a dataset: every column with its type and nullability, "+
					"plus the query parameters each column accepts. Use this before querying.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("project",
				mcp.Required(),
				mcp.Description("Project slug"),
			),
			mcp.WithString("dataset",
				mcp.Required(),
				mcp.Description("Dataset id or name"),
			),
		),
		s.handleDescribeDataset,
	)

	// ----- Query tool -----

	srv.AddTool(
		mcp.NewTool("tapfile_query_dataset",
			mcp.WithDescription(
				"Query rows of a dataset. The params object takes the same names as the "+
					"HTTP query string:\n"+
					"  - page, limit: pagination (limit defaults to 100, max 1000)\n"+
					"  - sort, order: sort column and asc|desc (nulls sort last)\n"+
					"  - q: case-insensitive substring search over text columns\n"+
					"  - fields: comma-separated list of columns to return\n"+
					"  - <column>: exact match; an empty value matches null\n"+
					"  - <column>_min, <column>_max: inclusive range (not for boolean columns)\n\n"+
					"Example: {\"age_min\": 30, \"sort\": \"age\", \"order\": \"desc\", \"limit\": 10}",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("project",
				mcp.Required(),
				mcp.Description("Project slug"),
			),
			mcp.WithString("dataset",
				mcp.Required(),
				mcp.Description("Dataset id or name"),
			),
			mcp.WithObject("params",
				mcp.Description("Query parameters, e.g. {\"sort\": \"name\", \"limit\": 20}"),
			),
		),
		s.handleQueryDataset,
	)
}

// --------------------------------------------------------------------------
// Tool handlers
// --------------------------------------------------------------------------

// datasetSummary is one entry of tapfile_list_datasets.
type datasetSummary struct {
	Project     string `json:"project"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	RowCount    int64  `json:"row_count"`
	ColumnCount int    `json:"column_count"`
	Endpoint    string `json:"endpoint"`
}

func (s *MCPServer) handleListDatasets(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	var projects []model.Project
	if slug := optionalString(request, "project"); slug != "" {
		p, err := s.datasets.Project(ctx, slug)
		if err != nil {
			return appError(s.logger, err, "resolve project")
		}
		projects = []model.Project{*p}
	} else {
		all, err := s.store.ListProjects(ctx, 0)
		if err != nil {
			return appError(s.logger, err, "list projects")
		}
		projects = all
	}

	out := make([]datasetSummary, 0)
	for _, p := range projects {
		datasets, err := s.store.ListDatasets(ctx, p.ID, model.DatasetReady)
		if err != nil {
			return appError(s.logger, err, "list datasets")
		}
		for _, ds := range datasets {
			out = append(out, datasetSummary{
				Project:     p.Slug,
				ID:          ds.ID,
				Name:        ds.Name,
				RowCount:    ds.RowCount,
				ColumnCount: len(ds.Schema),
				Endpoint:    ingest.EndpointPath(p.Slug, ds.ID),
			})
		}
	}

	return successJSON(map[string]interface{}{
		"datasets": out,
		"count":    len(out),
	})
}

// columnDescription is one column of tapfile_describe_dataset.
type columnDescription struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	JSONType string   `json:"json_type"`
	Nullable bool     `json:"nullable"`
	Filters  []string `json:"filters"`
}

func (s *MCPServer) handleDescribeDataset(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	project, ds, res, err := s.resolve(ctx, request)
	if res != nil || err != nil {
		return res, err
	}

	columns := make([]columnDescription, len(ds.Schema))
	for i, c := range ds.Schema {
		filters := []string{c.Name}
		if c.Type != model.TypeBoolean {
			filters = append(filters, c.Name+"_min", c.Name+"_max")
		}
		columns[i] = columnDescription{
			Name:     c.Name,
			Type:     string(c.Type),
			JSONType: c.Type.JSONType(),
			Nullable: c.Nullable,
			Filters:  filters,
		}
	}

	return successJSON(map[string]interface{}{
		"project":       project.Slug,
		"id":            ds.ID,
		"name":          ds.Name,
		"row_count":     ds.RowCount,
		"columns":       columns,
		"endpoint":      ingest.EndpointPath(project.Slug, ds.ID),
		"default_limit": query.DefaultLimit,
		"max_limit":     query.MaxLimit,
	})
}

func (s *MCPServer) handleQueryDataset(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	project, ds, res, err := s.resolve(ctx, request)
	if res != nil || err != nil {
		return res, err
	}

	params, err := paramsToValues(getObjectArg(request, "params"))
	if err != nil {
		return toolError("%v", err)
	}

	resp, err := s.datasets.Query(ctx, project, ds, params)
	if err != nil {
		return appError(s.logger, err, "query dataset")
	}
	return successJSON(resp)
}

// resolve looks up the project and dataset named by a tool request. On
// failure it returns the tool result to send instead.
func (s *MCPServer) resolve(ctx context.Context, request mcp.CallToolRequest) (*model.Project, *model.Dataset, *mcp.CallToolResult, error) {
	slug, err := requireString(request, "project")
	if err != nil {
		res, err := toolError("%v", err)
		return nil, nil, res, err
	}
	ref, err := requireString(request, "dataset")
	if err != nil {
		res, err := toolError("%v", err)
		return nil, nil, res, err
	}

	project, err := s.datasets.Project(ctx, strings.TrimSpace(slug))
	if err != nil {
		res, err := appError(s.logger, err, "resolve project")
		return nil, nil, res, err
	}
	ds, err := s.datasets.Dataset(ctx, project, strings.TrimSpace(ref))
	if err != nil {
		res, err := appError(s.logger, err, fmt.Sprintf("resolve dataset %q", ref))
		return nil, nil, res, err
	}
	return project, ds, nil, nil
}
