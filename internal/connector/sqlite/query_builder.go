package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/tapfile/tapfile/internal/connector"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/query"
)

// StorageDDL returns the statements that create the shared row table and
// target registry.
func (c *SQLiteConnector) StorageDDL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"locator" TEXT NOT NULL,
	"row_num" INTEGER NOT NULL,
	"data" TEXT NOT NULL,
	PRIMARY KEY ("locator", "row_num")
)`, c.QualifiedName(connector.RowsTable)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"locator" TEXT PRIMARY KEY,
	"namespace" TEXT NOT NULL,
	"columns_json" TEXT NOT NULL,
	"created_at" DATETIME NOT NULL
)`, c.QualifiedName(connector.TargetsTable)),
	}
}

// NativeType returns the SQLite storage class a column is cast to.
// Booleans are stored as 0/1 and dates as ISO 8601 text.
func (c *SQLiteConnector) NativeType(t model.ColumnType) string {
	switch t {
	case model.TypeInteger, model.TypeBoolean:
		return "INTEGER"
	case model.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// BuildCreateView renders the typed view over a target's rows.
func (c *SQLiteConnector) BuildCreateView(locator string, schema []model.ColumnSchema) (string, error) {
	if err := query.ValidateIdentifier(locator); err != nil {
		return "", err
	}
	cols := make([]string, 0, len(schema)+1)
	cols = append(cols, `"row_num" AS `+c.QuoteIdentifier(query.RowIDColumn))
	for _, col := range schema {
		path := query.QuoteLiteral(`$."` + col.Name + `"`)
		cols = append(cols, fmt.Sprintf("CAST(json_extract(\"data\", %s) AS %s) AS %s",
			path, c.NativeType(col.Type), c.QuoteIdentifier(col.Name)))
	}
	return fmt.Sprintf("CREATE VIEW IF NOT EXISTS %s AS SELECT %s FROM %s WHERE \"locator\" = %s",
		c.QualifiedName(locator), strings.Join(cols, ", "),
		c.QualifiedName(connector.RowsTable), query.QuoteLiteral(locator)), nil
}

// BuildDropView renders DROP VIEW for a target.
func (c *SQLiteConnector) BuildDropView(locator string) string {
	return "DROP VIEW IF EXISTS " + c.QualifiedName(locator)
}

// BuildRegisterTarget renders the idempotent insert into the target
// registry. Args: locator, namespace, columns_json, created_at.
func (c *SQLiteConnector) BuildRegisterTarget() string {
	return fmt.Sprintf(`INSERT INTO %s ("locator", "namespace", "columns_json", "created_at") VALUES (?, ?, ?, ?) ON CONFLICT ("locator") DO NOTHING`,
		c.QualifiedName(connector.TargetsTable))
}

// BuildInsertRows constructs a multi-row INSERT for one batch.
func (c *SQLiteConnector) BuildInsertRows(_ context.Context, req connector.InsertRowsRequest) (string, []interface{}, error) {
	if req.Locator == "" {
		return "", nil, fmt.Errorf("locator is required")
	}
	if len(req.Data) == 0 {
		return "", nil, fmt.Errorf("at least one row is required")
	}

	var b strings.Builder
	args := make([]interface{}, 0, len(req.Data)*3)

	b.WriteString("INSERT INTO ")
	b.WriteString(c.QualifiedName(connector.RowsTable))
	b.WriteString(` ("locator", "row_num", "data") VALUES `)
	for i, data := range req.Data {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?)")
		args = append(args, req.Locator, req.FirstRow+int64(i), string(data))
	}

	return b.String(), args, nil
}

// BuildSelect constructs a page query against a dataset view.
func (c *SQLiteConnector) BuildSelect(_ context.Context, req connector.SelectRequest) (string, []interface{}, error) {
	if req.View == "" {
		return "", nil, fmt.Errorf("view name is required")
	}

	var b strings.Builder
	args := append([]interface{}{}, req.FilterArgs...)

	b.WriteString("SELECT ")
	if len(req.Fields) > 0 {
		b.WriteString(query.QuoteIdentifiers(req.Fields, c.QuoteIdentifier))
	} else {
		b.WriteString("*")
	}

	b.WriteString(" FROM ")
	b.WriteString(c.QualifiedName(req.View))

	if req.Filter != "" {
		b.WriteString(" WHERE ")
		b.WriteString(req.Filter)
	}

	if req.Order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(req.Order)
	}

	if req.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, req.Limit)
	}

	if req.Offset > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, req.Offset)
	}

	return b.String(), args, nil
}

// BuildCount constructs a SELECT COUNT(*) query against a dataset view.
func (c *SQLiteConnector) BuildCount(_ context.Context, req connector.CountRequest) (string, []interface{}, error) {
	if req.View == "" {
		return "", nil, fmt.Errorf("view name is required")
	}

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(c.QualifiedName(req.View))

	if req.Filter != "" {
		b.WriteString(" WHERE ")
		b.WriteString(req.Filter)
	}

	return b.String(), req.FilterArgs, nil
}
