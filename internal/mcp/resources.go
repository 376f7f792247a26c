package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/openapi"
)

const (
	projectsURI   = "tapfile://projects"
	openAPIPrefix = "tapfile://openapi/"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// tapfile://projects: every project with its ready datasets
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			projectsURI,
			"Projects",
			mcp.WithResourceDescription(
				"All projects with the names and ids of their published datasets.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleProjectsResource,
	)

	// -------------------------------------------------------------------
	// tapfile://openapi/{project}/{dataset}: OpenAPI document (template)
	// -------------------------------------------------------------------
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			openAPIPrefix+"{project}/{dataset}",
			"Dataset OpenAPI document",
			mcp.WithTemplateDescription(
				"The OpenAPI 3.1 document of a dataset's query endpoint.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleOpenAPIResource,
	)
}

func (s *MCPServer) handleProjectsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	projects, err := s.store.ListProjects(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	type datasetRef struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	type projectInfo struct {
		Slug     string       `json:"slug"`
		Name     string       `json:"name"`
		Datasets []datasetRef `json:"datasets"`
	}

	items := make([]projectInfo, len(projects))
	for i, p := range projects {
		datasets, err := s.store.ListDatasets(ctx, p.ID, model.DatasetReady)
		if err != nil {
			return nil, fmt.Errorf("failed to list datasets of %s: %w", p.Slug, err)
		}
		refs := make([]datasetRef, len(datasets))
		for j, ds := range datasets {
			refs[j] = datasetRef{ID: ds.ID, Name: ds.Name}
		}
		items[i] = projectInfo{Slug: p.Slug, Name: p.Name, Datasets: refs}
	}

	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal projects: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      projectsURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func (s *MCPServer) handleOpenAPIResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	rest := strings.TrimPrefix(uri, openAPIPrefix)
	slug, ref, ok := strings.Cut(rest, "/")
	if rest == uri || !ok || slug == "" || ref == "" {
		return nil, fmt.Errorf("invalid URI %q: expected %s{project}/{dataset}", uri, openAPIPrefix)
	}

	project, err := s.datasets.Project(ctx, slug)
	if err != nil {
		return nil, err
	}
	ds, err := s.datasets.Dataset(ctx, project, ref)
	if err != nil {
		return nil, err
	}

	b, err := json.MarshalIndent(openapi.GenerateDatasetSpec(project, ds, ""), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
