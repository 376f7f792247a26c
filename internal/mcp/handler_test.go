package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tapfile/tapfile/internal/config"
	"github.com/tapfile/tapfile/internal/connector"
	"github.com/tapfile/tapfile/internal/connector/sqlite"
	"github.com/tapfile/tapfile/internal/ingest"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/service"
)

const peopleCSV = "Name,Age,Active\nAlice,34,true\nBob,,false\nCarol,28,true\n"

// newTestServer wires an MCPServer to an in-memory store and warehouse
// holding project acme with the people dataset.
func newTestServer(t *testing.T) (*MCPServer, *model.IngestResult) {
	t.Helper()
	ctx := context.Background()

	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("config.NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := connector.NewRegistry()
	registry.RegisterDriver("sqlite", sqlite.New)
	if err := registry.Connect(ctx, model.DefaultWarehouse, connector.ConnectionConfig{Driver: "sqlite", DSN: ":memory:"}); err != nil {
		t.Fatalf("registry.Connect: %v", err)
	}
	t.Cleanup(registry.CloseAll)

	admin := &model.Admin{Email: "a@example.com", PasswordHash: "x", IsActive: true}
	if err := store.CreateAdmin(ctx, admin); err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	project := &model.Project{Slug: "acme", Name: "Acme", OwnerID: admin.ID}
	if err := store.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := ingest.NewOrchestrator(store, registry, nil, config.DefaultSettings().Limits, logger)
	res, err := orch.Ingest(ctx, ingest.Request{Project: project, Filename: "people.csv", Data: []byte(peopleCSV)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	return NewMCPServer(service.NewDatasetService(store, registry), store, "test", logger), res
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// resultText returns the text of a tool result and whether it is an error.
func resultText(t *testing.T, res *mcp.CallToolResult) (string, bool) {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want TextContent", res.Content[0])
	}
	return tc.Text, res.IsError
}

// ---------------------------------------------------------------------------
// Tools
// ---------------------------------------------------------------------------

func TestListDatasets(t *testing.T) {
	s, res := newTestServer(t)
	ctx := context.Background()

	for _, args := range []map[string]interface{}{nil, {"project": "acme"}} {
		out, err := s.handleListDatasets(ctx, callRequest("tapfile_list_datasets", args))
		if err != nil {
			t.Fatalf("handleListDatasets: %v", err)
		}
		text, isErr := resultText(t, out)
		if isErr {
			t.Fatalf("tool error: %s", text)
		}

		var body struct {
			Count    int              `json:"count"`
			Datasets []datasetSummary `json:"datasets"`
		}
		if err := json.Unmarshal([]byte(text), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body.Count != 1 || body.Datasets[0].ID != res.DatasetID || body.Datasets[0].Name != "people" {
			t.Errorf("datasets = %+v", body.Datasets)
		}
		if body.Datasets[0].RowCount != 3 || body.Datasets[0].ColumnCount != 3 {
			t.Errorf("counts = %+v", body.Datasets[0])
		}
	}

	out, _ := s.handleListDatasets(ctx, callRequest("tapfile_list_datasets", map[string]interface{}{"project": "ghost"}))
	if text, isErr := resultText(t, out); !isErr || !strings.Contains(text, "ghost") {
		t.Errorf("unknown project: error=%v text=%s", isErr, text)
	}
}

func TestDescribeDataset(t *testing.T) {
	s, _ := newTestServer(t)

	out, err := s.handleDescribeDataset(context.Background(), callRequest("tapfile_describe_dataset", map[string]interface{}{
		"project": "acme",
		"dataset": "people",
	}))
	if err != nil {
		t.Fatalf("handleDescribeDataset: %v", err)
	}
	text, isErr := resultText(t, out)
	if isErr {
		t.Fatalf("tool error: %s", text)
	}

	var body struct {
		Columns []columnDescription `json:"columns"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Columns) != 3 {
		t.Fatalf("columns = %+v", body.Columns)
	}
	age, active := body.Columns[1], body.Columns[2]
	if age.Type != "INTEGER" || !age.Nullable || len(age.Filters) != 3 {
		t.Errorf("age = %+v", age)
	}
	if active.Type != "BOOLEAN" || len(active.Filters) != 1 {
		t.Errorf("boolean columns take no range filters: %+v", active)
	}
}

func TestQueryDataset(t *testing.T) {
	s, _ := newTestServer(t)

	out, err := s.handleQueryDataset(context.Background(), callRequest("tapfile_query_dataset", map[string]interface{}{
		"project": "acme",
		"dataset": "people",
		"params": map[string]interface{}{
			"age_min": float64(30),
			"active":  true,
			"fields":  "name,age",
		},
	}))
	if err != nil {
		t.Fatalf("handleQueryDataset: %v", err)
	}
	text, isErr := resultText(t, out)
	if isErr {
		t.Fatalf("tool error: %s", text)
	}

	var resp model.QueryResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0]["name"] != "Alice" {
		t.Errorf("data = %v", resp.Data)
	}
	if resp.Pagination.Total != 1 {
		t.Errorf("total = %d", resp.Pagination.Total)
	}
}

func TestQueryDataset_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing project", map[string]interface{}{"dataset": "people"}, "project"},
		{"missing dataset", map[string]interface{}{"project": "acme"}, "dataset"},
		{"unknown dataset", map[string]interface{}{"project": "acme", "dataset": "nope"}, "nope"},
		{"bad parameter", map[string]interface{}{"project": "acme", "dataset": "people", "params": map[string]interface{}{"sort": "salary"}}, "salary"},
		{"nested parameter", map[string]interface{}{"project": "acme", "dataset": "people", "params": map[string]interface{}{"age": map[string]interface{}{"gt": 1}}}, "age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.handleQueryDataset(context.Background(), callRequest("tapfile_query_dataset", tt.args))
			if err != nil {
				t.Fatalf("protocol error: %v", err)
			}
			text, isErr := resultText(t, out)
			if !isErr {
				t.Fatalf("expected a tool error, got %s", text)
			}
			if !strings.Contains(text, tt.want) {
				t.Errorf("error %q does not mention %q", text, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

func TestProjectsResource(t *testing.T) {
	s, res := newTestServer(t)

	var req mcp.ReadResourceRequest
	req.Params.URI = projectsURI
	contents, err := s.handleProjectsResource(context.Background(), req)
	if err != nil {
		t.Fatalf("handleProjectsResource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, `"acme"`) || !strings.Contains(text, res.DatasetID) {
		t.Errorf("resource = %s", text)
	}
}

func TestOpenAPIResource(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	var req mcp.ReadResourceRequest
	req.Params.URI = openAPIPrefix + "acme/people"
	contents, err := s.handleOpenAPIResource(ctx, req)
	if err != nil {
		t.Fatalf("handleOpenAPIResource: %v", err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, `"openapi": "3.1.0"`) {
		t.Errorf("document = %s", text)
	}

	for _, uri := range []string{openAPIPrefix + "acme", openAPIPrefix + "acme/nope", "other://x/y"} {
		req.Params.URI = uri
		if _, err := s.handleOpenAPIResource(ctx, req); err == nil {
			t.Errorf("%s: expected an error", uri)
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestParamsToValues(t *testing.T) {
	got, err := paramsToValues(map[string]interface{}{
		"limit":  float64(20),
		"ratio":  0.5,
		"active": false,
		"name":   []interface{}{"a", "b"},
		"age":    nil,
		"empty":  []interface{}{},
	})
	if err != nil {
		t.Fatalf("paramsToValues: %v", err)
	}
	want := map[string]string{"limit": "20", "ratio": "0.5", "active": "false", "name": "a", "age": ""}
	for k, v := range want {
		if got.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, got.Get(k), v)
		}
	}
	if _, ok := got["empty"]; ok {
		t.Error("empty arrays should be dropped")
	}
	if _, ok := got["age"]; !ok {
		t.Error("null should become an empty value")
	}
}

func TestReadOnlyAnnotation(t *testing.T) {
	ann := readOnlyAnnotation()
	if ann.ReadOnlyHint == nil || !*ann.ReadOnlyHint {
		t.Error("ReadOnlyHint should be true")
	}
	if ann.IdempotentHint == nil || !*ann.IdempotentHint {
		t.Error("IdempotentHint should be true")
	}
}
