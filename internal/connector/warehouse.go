package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/query"
)

// Dataset is the row storage a dataset needs over its lifetime: a target to
// write into, batched inserts, paged reads and removal.
type Dataset interface {
	CreateTarget(ctx context.Context, namespace, locator string, schema []model.ColumnSchema) error
	DropTarget(ctx context.Context, locator string) error
	InsertRows(ctx context.Context, locator string, firstRow int64, rows []model.Record, schema []model.ColumnSchema) error
	Query(ctx context.Context, locator string, schema []model.ColumnSchema, plan *query.Plan) ([]map[string]interface{}, int64, error)
}

// Warehouse runs dataset storage operations against one connected
// Connector. It implements Dataset.
type Warehouse struct {
	name string
	conn Connector
}

// NewWarehouse wraps a connected Connector.
func NewWarehouse(name string, conn Connector) *Warehouse {
	return &Warehouse{name: name, conn: conn}
}

// Name returns the configured warehouse name.
func (w *Warehouse) Name() string { return w.name }

// Driver returns the underlying driver name.
func (w *Warehouse) Driver() string { return w.conn.DriverName() }

// Ping verifies the warehouse connection is alive.
func (w *Warehouse) Ping(ctx context.Context) error { return w.conn.Ping(ctx) }

// EnsureStorage creates the shared row table and target registry if they
// do not exist yet.
func (w *Warehouse) EnsureStorage(ctx context.Context) error {
	for _, stmt := range w.conn.StorageDDL() {
		if _, err := w.conn.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create storage: %w", err)
		}
	}
	return nil
}

// CreateTarget registers locator and creates its typed view. Both steps
// tolerate an existing target, so a repeated call is harmless.
func (w *Warehouse) CreateTarget(ctx context.Context, namespace, locator string, schema []model.ColumnSchema) error {
	if err := query.ValidateIdentifier(locator); err != nil {
		return fmt.Errorf("locator: %w", err)
	}
	columns, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}

	db := w.conn.DB()
	if _, err := db.ExecContext(ctx, w.conn.BuildRegisterTarget(),
		locator, namespace, string(columns), time.Now().UTC()); err != nil {
		return fmt.Errorf("register target %s: %w", locator, err)
	}

	ddl, err := w.conn.BuildCreateView(locator, schema)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create view %s: %w", locator, err)
	}
	return nil
}

// DropTarget removes a target's rows, view and registry entry. Dropping a
// target that does not exist is not an error.
func (w *Warehouse) DropTarget(ctx context.Context, locator string) error {
	if err := query.ValidateIdentifier(locator); err != nil {
		return fmt.Errorf("locator: %w", err)
	}
	db := w.conn.DB()
	ph := w.conn.ParameterPlaceholder(1)

	delRows := fmt.Sprintf("DELETE FROM %s WHERE locator = %s", w.conn.QualifiedName(RowsTable), ph)
	if _, err := db.ExecContext(ctx, delRows, locator); err != nil {
		return fmt.Errorf("drop target %s: delete rows: %w", locator, err)
	}
	if _, err := db.ExecContext(ctx, w.conn.BuildDropView(locator)); err != nil {
		return fmt.Errorf("drop target %s: drop view: %w", locator, err)
	}
	delTarget := fmt.Sprintf("DELETE FROM %s WHERE locator = %s", w.conn.QualifiedName(TargetsTable), ph)
	if _, err := db.ExecContext(ctx, delTarget, locator); err != nil {
		return fmt.Errorf("drop target %s: unregister: %w", locator, err)
	}
	return nil
}

// InsertRows writes one batch in a single statement. rows[i] becomes row
// number firstRow+i. Values must already be coerced to their column types;
// nil values are left out of the stored object and read back as NULL.
func (w *Warehouse) InsertRows(ctx context.Context, locator string, firstRow int64, rows []model.Record, schema []model.ColumnSchema) error {
	if len(rows) == 0 {
		return nil
	}
	data := make([][]byte, len(rows))
	for i, rec := range rows {
		b, err := EncodeRow(rec, schema)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", firstRow+int64(i), err)
		}
		data[i] = b
	}

	stmt, args, err := w.conn.BuildInsertRows(ctx, InsertRowsRequest{Locator: locator, FirstRow: firstRow, Data: data})
	if err != nil {
		return err
	}
	if _, err := w.conn.DB().ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert rows %d-%d: %w", firstRow, firstRow+int64(len(rows))-1, err)
	}
	return nil
}

// Query counts the rows matching plan, then reads the requested page. Values
// are normalized to their JSON types per column.
func (w *Warehouse) Query(ctx context.Context, locator string, schema []model.ColumnSchema, plan *query.Plan) ([]map[string]interface{}, int64, error) {
	if err := query.ValidateIdentifier(locator); err != nil {
		return nil, 0, fmt.Errorf("locator: %w", err)
	}
	filter, filterArgs := query.BuildWhere(plan, schema, w.conn.QuoteIdentifier, w.conn.ParameterPlaceholder, 1)

	countSQL, countArgs, err := w.conn.BuildCount(ctx, CountRequest{View: locator, Filter: filter, FilterArgs: filterArgs})
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := w.conn.DB().QueryRowxContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rows: %w", err)
	}

	columns := plan.Columns(schema)
	selectSQL, selectArgs, err := w.conn.BuildSelect(ctx, SelectRequest{
		View:       locator,
		Fields:     columns,
		Filter:     filter,
		FilterArgs: filterArgs,
		Order:      query.BuildOrderSQL(plan, w.conn.QuoteIdentifier),
		Limit:      plan.Limit,
		Offset:     plan.Offset(),
	})
	if err != nil {
		return nil, 0, err
	}

	rows, err := w.conn.DB().QueryxContext(ctx, selectSQL, selectArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("select rows: %w", err)
	}
	defer rows.Close()

	types := make(map[string]model.ColumnType, len(schema))
	for _, c := range schema {
		types[c.Name] = c.Type
	}

	out := make([]map[string]interface{}, 0, plan.Limit)
	for rows.Next() {
		raw := make(map[string]interface{}, len(columns))
		if err := rows.MapScan(raw); err != nil {
			return nil, 0, fmt.Errorf("scan row: %w", err)
		}
		rec := make(map[string]interface{}, len(columns))
		for _, name := range columns {
			rec[name] = NormalizeValue(raw[name], types[name])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate rows: %w", err)
	}
	return out, total, nil
}

// EncodeRow renders a record as the JSON object stored for it, keeping only
// schema columns with non-nil values.
func EncodeRow(rec model.Record, schema []model.ColumnSchema) ([]byte, error) {
	obj := make(map[string]interface{}, len(schema))
	for _, c := range schema {
		if v, ok := rec[c.Name]; ok && v != nil {
			obj[c.Name] = v
		}
	}
	return json.Marshal(obj)
}

// NormalizeValue converts a scanned warehouse value to the Go type that
// encodes as the column's JSON type. Drivers differ: MySQL hands back
// []byte for most columns, SQLite booleans arrive as 0/1 and PostgreSQL
// numerics as strings.
func NormalizeValue(v interface{}, t model.ColumnType) interface{} {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch t {
	case model.TypeInteger:
		switch x := v.(type) {
		case int64:
			return x
		case int32:
			return int64(x)
		case int:
			return int64(x)
		case float64:
			return int64(x)
		case string:
			if n, err := strconv.ParseInt(x, 10, 64); err == nil {
				return n
			}
		}
	case model.TypeFloat:
		switch x := v.(type) {
		case float64:
			return x
		case float32:
			return float64(x)
		case int64:
			return float64(x)
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		}
	case model.TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return b
			}
		}
	case model.TypeDate:
		switch x := v.(type) {
		case time.Time:
			return x.Format("2006-01-02")
		case string:
			if len(x) >= 10 {
				return x[:10]
			}
			return x
		}
	case model.TypeText:
		if s, ok := v.(string); ok {
			return s
		}
	}
	return v
}
