package connector_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tapfile/tapfile/internal/connector"
	"github.com/tapfile/tapfile/internal/connector/sqlite"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/query"
)

var suiteSchema = []model.ColumnSchema{
	{Name: "name", Type: model.TypeText},
	{Name: "age", Type: model.TypeInteger, Nullable: true},
	{Name: "price", Type: model.TypeFloat},
	{Name: "active", Type: model.TypeBoolean, Nullable: true},
	{Name: "joined", Type: model.TypeDate, Nullable: true},
}

func suiteRows() []model.Record {
	return []model.Record{
		{"name": "Alice", "age": int64(34), "price": 10.5, "active": true, "joined": "2024-01-15"},
		{"name": "bob", "age": nil, "price": 3.0, "active": false, "joined": "2023-12-01"},
		{"name": "Carol", "age": int64(28), "price": 99.99, "active": true, "joined": nil},
		{"name": "dave", "age": int64(41), "price": 0.5, "active": false, "joined": "2024-02-29"},
		{"name": "Alicia", "age": int64(34), "price": 7.25, "active": nil, "joined": "2024-03-01"},
	}
}

// runWarehouseSuite provisions a target, loads five rows in two batches and
// checks filtering, search, sorting and paging against it.
func runWarehouseSuite(t *testing.T, name string, factory connector.Factory, cfg connector.ConnectionConfig) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg := connector.NewRegistry()
	reg.RegisterDriver(cfg.Driver, factory)
	if err := reg.Connect(ctx, name, cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(reg.CloseAll)

	w, err := reg.Get(name)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	locator := "t_suite_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := w.CreateTarget(ctx, "suite", locator, suiteSchema); err != nil {
		t.Fatalf("CreateTarget failed: %v", err)
	}
	t.Cleanup(func() { w.DropTarget(context.Background(), locator) })

	// A repeated create is harmless.
	if err := w.CreateTarget(ctx, "suite", locator, suiteSchema); err != nil {
		t.Fatalf("second CreateTarget failed: %v", err)
	}

	rows := suiteRows()
	if err := w.InsertRows(ctx, locator, 1, rows[:3], suiteSchema); err != nil {
		t.Fatalf("InsertRows batch 1 failed: %v", err)
	}
	if err := w.InsertRows(ctx, locator, 4, rows[3:], suiteSchema); err != nil {
		t.Fatalf("InsertRows batch 2 failed: %v", err)
	}

	run := func(t *testing.T, raw string) ([]map[string]interface{}, int64) {
		t.Helper()
		params, err := url.ParseQuery(raw)
		if err != nil {
			t.Fatalf("bad query %q: %v", raw, err)
		}
		plan, err := query.ParsePlan(params, suiteSchema)
		if err != nil {
			t.Fatalf("ParsePlan(%q) failed: %v", raw, err)
		}
		data, total, err := w.Query(ctx, locator, suiteSchema, plan)
		if err != nil {
			t.Fatalf("Query(%q) failed: %v", raw, err)
		}
		return data, total
	}
	names := func(data []map[string]interface{}) []string {
		out := make([]string, len(data))
		for i, r := range data {
			out[i], _ = r["name"].(string)
		}
		return out
	}

	t.Run("DefaultOrderAndTypes", func(t *testing.T) {
		data, total := run(t, "")
		if total != 5 || len(data) != 5 {
			t.Fatalf("expected 5 rows, got %d (total %d)", len(data), total)
		}
		if got := strings.Join(names(data), ","); got != "Alice,bob,Carol,dave,Alicia" {
			t.Errorf("upload order not kept: %s", got)
		}

		first := data[0]
		if first["age"] != int64(34) {
			t.Errorf("age = %#v, want int64(34)", first["age"])
		}
		if first["price"] != 10.5 {
			t.Errorf("price = %#v, want 10.5", first["price"])
		}
		if first["active"] != true {
			t.Errorf("active = %#v, want true", first["active"])
		}
		if first["joined"] != "2024-01-15" {
			t.Errorf("joined = %#v, want 2024-01-15", first["joined"])
		}
		if data[1]["age"] != nil {
			t.Errorf("null age came back as %#v", data[1]["age"])
		}
		if _, ok := first[query.RowIDColumn]; ok {
			t.Error("row id must not be part of the response data")
		}
	})

	tests := []struct {
		query string
		want  string
		total int64
	}{
		{"age_min=30", "Alice,dave,Alicia", 3},
		{"q=ALI", "Alice,Alicia", 2},
		{"active=true", "Alice,Carol", 2},
		{"age=", "bob", 1},
		{"price_min=5&price_max=50", "Alice,Alicia", 2},
		{"joined_max=2024-01-31", "Alice,bob", 2},
		{"sort=age&order=desc", "dave,Alice,Alicia,Carol,bob", 5},
		{"sort=age&order=asc", "Carol,Alice,Alicia,dave,bob", 5},
		{"limit=2&page=3", "Alicia", 5},
		{"limit=2&page=9", "", 5},
		{"q=100%25", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			data, total := run(t, tt.query)
			if total != tt.total {
				t.Errorf("total = %d, want %d", total, tt.total)
			}
			if got := strings.Join(names(data), ","); got != tt.want {
				t.Errorf("rows = %s, want %s", got, tt.want)
			}
		})
	}

	t.Run("FieldProjection", func(t *testing.T) {
		data, _ := run(t, "fields=price,name&limit=1")
		if len(data) != 1 || len(data[0]) != 2 {
			t.Fatalf("unexpected projection: %v", data)
		}
		if data[0]["price"] != 10.5 {
			t.Errorf("price = %#v", data[0]["price"])
		}
	})

	t.Run("DropTarget", func(t *testing.T) {
		if err := w.DropTarget(ctx, locator); err != nil {
			t.Fatalf("DropTarget failed: %v", err)
		}
		if err := w.DropTarget(ctx, locator); err != nil {
			t.Fatalf("second DropTarget failed: %v", err)
		}
		plan, _ := query.ParsePlan(url.Values{}, suiteSchema)
		if _, _, err := w.Query(ctx, locator, suiteSchema, plan); err == nil {
			t.Error("expected query against a dropped target to fail")
		}
	})
}

func TestSQLiteWarehouse(t *testing.T) {
	runWarehouseSuite(t, "default", sqlite.New, connector.ConnectionConfig{
		Driver: "sqlite",
		DSN:    ":memory:",
	})
}

// ---------------------------------------------------------------------------
// Row encoding
// ---------------------------------------------------------------------------

func TestEncodeRowOmitsNullsAndUnknownColumns(t *testing.T) {
	rec := model.Record{"name": "Alice", "age": nil, "extra": "x"}
	b, err := connector.EncodeRow(rec, suiteSchema)
	if err != nil {
		t.Fatalf("EncodeRow error: %v", err)
	}
	if string(b) != `{"name":"Alice"}` {
		t.Errorf("EncodeRow = %s", b)
	}
}

func TestNormalizeValue(t *testing.T) {
	day := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   interface{}
		typ  model.ColumnType
		want interface{}
	}{
		{nil, model.TypeInteger, nil},
		{[]byte("42"), model.TypeInteger, int64(42)},
		{"-7", model.TypeInteger, int64(-7)},
		{int64(1), model.TypeBoolean, true},
		{int64(0), model.TypeBoolean, false},
		{[]byte("1"), model.TypeBoolean, true},
		{"3.5", model.TypeFloat, 3.5},
		{int64(3), model.TypeFloat, 3.0},
		{day, model.TypeDate, "2024-02-29"},
		{[]byte("2024-02-29"), model.TypeDate, "2024-02-29"},
		{"2024-02-29T00:00:00Z", model.TypeDate, "2024-02-29"},
		{[]byte("hello"), model.TypeText, "hello"},
	}

	for _, tt := range tests {
		if got := connector.NormalizeValue(tt.in, tt.typ); got != tt.want {
			t.Errorf("NormalizeValue(%#v, %s) = %#v, want %#v", tt.in, tt.typ, got, tt.want)
		}
	}
}
