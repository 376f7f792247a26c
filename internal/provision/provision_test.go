package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/query"
)

// fakeTarget records calls and fails CreateTarget on demand.
type fakeTarget struct {
	createErr error
	created   map[string][]model.ColumnSchema
	dropped   []string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{created: make(map[string][]model.ColumnSchema)}
}

func (f *fakeTarget) CreateTarget(_ context.Context, _, locator string, schema []model.ColumnSchema) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created[locator] = schema
	return nil
}

func (f *fakeTarget) DropTarget(_ context.Context, locator string) error {
	f.dropped = append(f.dropped, locator)
	delete(f.created, locator)
	return nil
}

func (f *fakeTarget) InsertRows(context.Context, string, int64, []model.Record, []model.ColumnSchema) error {
	return nil
}

func (f *fakeTarget) Query(context.Context, string, []model.ColumnSchema, *query.Plan) ([]map[string]interface{}, int64, error) {
	return nil, 0, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---------------------------------------------------------------------------
// Locators
// ---------------------------------------------------------------------------

func TestNewLocator(t *testing.T) {
	tests := []struct {
		namespace  string
		wantPrefix string
	}{
		{"sales", "t_sales_"},
		{"Q3 Sales!", "t_q3_sales_"},
		{"", "t_ds_"},
		{"!!!", "t_ds_"},
		{"a_very_long_project_slug_that_goes_on", "t_a_very_long_project_slug_"},
	}

	for _, tt := range tests {
		loc, err := NewLocator(tt.namespace)
		if err != nil {
			t.Fatalf("NewLocator(%q) error: %v", tt.namespace, err)
		}
		if !strings.HasPrefix(loc, tt.wantPrefix) {
			t.Errorf("NewLocator(%q) = %q, want prefix %q", tt.namespace, loc, tt.wantPrefix)
		}
		if err := query.ValidateIdentifier(loc); err != nil {
			t.Errorf("NewLocator(%q) = %q is not a valid identifier: %v", tt.namespace, loc, err)
		}
	}
}

func TestNewLocatorUniqueAndOrdered(t *testing.T) {
	prev := ""
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		loc, err := NewLocator("sales")
		if err != nil {
			t.Fatalf("NewLocator error: %v", err)
		}
		if seen[loc] {
			t.Fatalf("duplicate locator %s", loc)
		}
		seen[loc] = true
		if loc <= prev {
			t.Fatalf("locators not time-ordered: %s after %s", loc, prev)
		}
		prev = loc
	}
}

// ---------------------------------------------------------------------------
// Column preparation
// ---------------------------------------------------------------------------

func TestPrepareColumnsRenamesID(t *testing.T) {
	schema := []model.ColumnSchema{
		{Name: "id", Type: model.TypeInteger},
		{Name: "name", Type: model.TypeText},
	}
	cols, err := PrepareColumns(schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols[0].Name != "csv_id" || cols[0].Type != model.TypeInteger {
		t.Errorf("expected id renamed to csv_id, got %+v", cols[0])
	}
	if schema[0].Name != "id" {
		t.Error("input schema must not be modified")
	}

	rec := RenameRecord(model.Record{"id": "7", "name": "x"})
	if rec["csv_id"] != "7" || len(rec) != 2 {
		t.Errorf("RenameRecord = %v", rec)
	}
}

func TestPrepareColumnsConflict(t *testing.T) {
	schema := []model.ColumnSchema{
		{Name: "id", Type: model.TypeInteger},
		{Name: "csv_id", Type: model.TypeText},
	}
	_, err := PrepareColumns(schema)
	if !errors.Is(err, apperr.ErrSchemaConflict) {
		t.Fatalf("expected SchemaConflictError, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Provision
// ---------------------------------------------------------------------------

func TestProvisionSuccess(t *testing.T) {
	target := newFakeTarget()
	p := New(target, discardLogger())

	res := p.Provision(context.Background(), "sales", []model.ColumnSchema{{Name: "id", Type: model.TypeInteger}})
	if !res.Success || res.Err() != nil {
		t.Fatalf("expected success, got %+v", res)
	}
	if _, ok := target.created[res.Locator]; !ok {
		t.Errorf("target %s was not created", res.Locator)
	}
	if res.Columns[0].Name != "csv_id" {
		t.Errorf("expected renamed column in result, got %+v", res.Columns)
	}
}

func TestProvisionAtUsesLocator(t *testing.T) {
	target := newFakeTarget()
	p := New(target, discardLogger())

	res := p.ProvisionAt(context.Background(), "sales", "t_sales_fixed", []model.ColumnSchema{{Name: "a", Type: model.TypeText}})
	if !res.Success || res.Locator != "t_sales_fixed" {
		t.Fatalf("expected success at t_sales_fixed, got %+v", res)
	}
	if _, ok := target.created["t_sales_fixed"]; !ok {
		t.Errorf("target was not created at the given locator: %v", target.created)
	}
}

func TestProvisionFailureDropsPartialTarget(t *testing.T) {
	target := newFakeTarget()
	target.createErr = fmt.Errorf("pq: permission denied for schema public")
	p := New(target, discardLogger())

	res := p.Provision(context.Background(), "sales", []model.ColumnSchema{{Name: "a", Type: model.TypeText}})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err(), apperr.ErrProvision) {
		t.Errorf("expected ProvisionError, got %v", res.Err())
	}
	if !strings.Contains(res.Error, "privileges") {
		t.Errorf("expected actionable message, got %q", res.Error)
	}
	if len(target.dropped) != 1 || target.dropped[0] != res.Locator {
		t.Errorf("expected partial target %s to be dropped, got %v", res.Locator, target.dropped)
	}
}

func TestProvisionSchemaConflict(t *testing.T) {
	p := New(newFakeTarget(), discardLogger())
	res := p.Provision(context.Background(), "sales", []model.ColumnSchema{
		{Name: "id", Type: model.TypeInteger},
		{Name: "csv_id", Type: model.TypeInteger},
	})
	if res.Success || !errors.Is(res.Err(), apperr.ErrSchemaConflict) {
		t.Fatalf("expected SchemaConflictError, got %+v", res)
	}
}

func TestDescribeFailure(t *testing.T) {
	tests := []struct {
		err  string
		want string
	}{
		{"Error 1142: CREATE VIEW command denied to user", "privileges"},
		{"dial tcp 10.0.0.1:5432: connect: connection refused", "unreachable"},
		{"syntax error at or near", "failed to create"},
	}
	for _, tt := range tests {
		if got := describeFailure(errors.New(tt.err)); !strings.Contains(got, tt.want) {
			t.Errorf("describeFailure(%q) = %q, want it to mention %q", tt.err, got, tt.want)
		}
	}
}
