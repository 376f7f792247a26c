// Package openapi describes published datasets as OpenAPI 3.1 documents.
package openapi

import (
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/query"
)

// GenerateDatasetSpec generates an OpenAPI 3.1 document for a single dataset.
func GenerateDatasetSpec(project *model.Project, ds *model.Dataset, baseURL string) *openapi3.T {
	doc := newDocument(
		fmt.Sprintf("%s / %s", project.Name, ds.Name),
		fmt.Sprintf("Read-only API for dataset %s (%d rows) in project %s.", ds.Name, ds.RowCount, project.Slug),
		baseURL,
	)
	addDatasetPaths(doc, project, ds)
	return doc
}

// GenerateProjectSpec combines the documents of every dataset in a project.
func GenerateProjectSpec(project *model.Project, datasets []model.Dataset, baseURL string) *openapi3.T {
	doc := newDocument(
		fmt.Sprintf("%s API", project.Name),
		fmt.Sprintf("Read-only API for the datasets of project %s.", project.Slug),
		baseURL,
	)
	for i := range datasets {
		addDatasetPaths(doc, project, &datasets[i])
	}
	return doc
}

func newDocument(title, description, baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       title,
			Description: description,
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
		Paths: openapi3.NewPaths(),
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "http",
			Scheme:      "bearer",
			Description: "Dataset API key.",
		},
	}
	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
		{"apiKey": {}},
	}

	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{Value: errorSchema()}
	return doc
}

// addDatasetPaths adds the query path of ds and its row schema.
func addDatasetPaths(doc *openapi3.T, project *model.Project, ds *model.Dataset) {
	schemaName := sanitizeSchemaName(project.Slug, ds.Name)
	row := rowSchema(ds.Schema)
	doc.Components.Schemas[schemaName] = row
	rowRef := openapi3.NewSchemaRef("#/components/schemas/"+schemaName, row.Value)

	responseSchema := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"data": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: rowRef,
					},
				},
				"pagination": paginationSchema(),
				"meta":       metaSchema(),
			},
		},
	}

	params := listQueryParameters()
	params = append(params, filterParameters(ds.Schema)...)

	op := &openapi3.Operation{
		Tags:        []string{ds.Name},
		Summary:     fmt.Sprintf("Query %s", ds.Name),
		Description: "Filter, sort and page the rows of the dataset.",
		OperationID: "query_" + schemaName,
		Parameters:  params,
		Responses:   newResponses("200", "A page of rows", responseSchema),
	}

	path := fmt.Sprintf("/api/v1/%s/%s", project.Slug, ds.ID)
	doc.Paths.Set(path, &openapi3.PathItem{
		Summary: ds.Name,
		Get:     op,
	})
}

// rowSchema describes one response row.
func rowSchema(columns []model.ColumnSchema) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	for _, col := range columns {
		s := columnSchema(col.Type)
		s.Nullable = col.Nullable
		props[col.Name] = &openapi3.SchemaRef{Value: s}
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
		},
	}
}

func columnSchema(t model.ColumnType) *openapi3.Schema {
	m := MapColumnType(t)
	return &openapi3.Schema{
		Type:   &openapi3.Types{m.Type},
		Format: m.Format,
	}
}

// ─── Query Parameter Builders ───────────────────────────────────────────────

// listQueryParameters returns the reserved query parameters shared by every
// dataset.
func listQueryParameters() openapi3.Parameters {
	return openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(query.ParamPage).
				WithDescription("1-based page number.").
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32", Min: floatPtr(1)}),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(query.ParamLimit).
				WithDescription(fmt.Sprintf("Rows per page (default %d, max %d).", query.DefaultLimit, query.MaxLimit)).
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32", Min: floatPtr(1)}),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(query.ParamSort).
				WithDescription("Column to sort by. Nulls sort last.").
				WithSchema(openapi3.NewStringSchema()),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(query.ParamOrder).
				WithDescription("Sort direction.").
				WithSchema(openapi3.NewStringSchema().WithEnum(query.OrderAsc, query.OrderDesc)),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(query.ParamSearch).
				WithDescription("Case-insensitive substring search over text columns.").
				WithSchema(openapi3.NewStringSchema()),
		},
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(query.ParamFields).
				WithDescription("Comma-separated list of columns to return.").
				WithSchema(openapi3.NewStringSchema()),
		},
	}
}

// filterParameters returns the equality and range filters of a schema.
func filterParameters(columns []model.ColumnSchema) openapi3.Parameters {
	var params openapi3.Parameters
	for _, col := range columns {
		params = append(params, &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(col.Name).
				WithDescription(fmt.Sprintf("Rows where %s equals the value. An empty value matches nulls.", col.Name)).
				WithSchema(columnSchema(col.Type)),
		})
		if !supportsRange(col.Type) {
			continue
		}
		params = append(params,
			&openapi3.ParameterRef{
				Value: openapi3.NewQueryParameter(col.Name + "_min").
					WithDescription(fmt.Sprintf("Rows where %s is at least the value.", col.Name)).
					WithSchema(columnSchema(col.Type)),
			},
			&openapi3.ParameterRef{
				Value: openapi3.NewQueryParameter(col.Name + "_max").
					WithDescription(fmt.Sprintf("Rows where %s is at most the value.", col.Name)).
					WithSchema(columnSchema(col.Type)),
			},
		)
	}
	return params
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// newResponses builds a Responses map with a success response and the error
// responses of the query route.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", errorSchema())
	for _, e := range []struct{ code, desc string }{
		{"400", "Invalid query parameters"},
		{"401", "Missing or invalid API key"},
		{"403", "API key does not grant access"},
		{"404", "Dataset not found"},
		{"429", "Rate or monthly request limit reached"},
		{"500", "Internal server error"},
	} {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

// errorSchema is the standard error envelope.
func errorSchema() *openapi3.Schema {
	return &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"success": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
			"error":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
		},
		Required: []string{"success", "error"},
	}
}

func paginationSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"page":       intSchema("int32", "Current page."),
				"limit":      intSchema("int32", "Rows per page."),
				"total":      intSchema("int64", "Rows matching the filters."),
				"totalPages": intSchema("int64", "ceil(total / limit)."),
			},
		},
	}
}

// metaSchema returns the schema for the "meta" field of query responses.
func metaSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"columns": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:  &openapi3.Types{"array"},
						Items: &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
					},
				},
				"types": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"object"},
						Description: "Column name to column type.",
					},
				},
				"queryTime": &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
			},
		},
	}
}

func intSchema(format, description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:        &openapi3.Types{"integer"},
			Format:      format,
			Description: description,
		},
	}
}

func floatPtr(f float64) *float64 { return &f }

// ─── Naming Helpers ─────────────────────────────────────────────────────────

// sanitizeSchemaName creates a valid OpenAPI component schema name from
// project + dataset names.
func sanitizeSchemaName(projectSlug, datasetName string) string {
	s := capitalize(projectSlug) + "_" + capitalize(datasetName)
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// capitalize returns a string with its first character uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
