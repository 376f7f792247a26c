package mysql

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
func (c *MySQLConnector) StorageDDL() []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n"+
			"\t`locator` VARCHAR(128) NOT NULL,\n"+
			"\t`row_num` BIGINT NOT NULL,\n"+
			"\t`data` JSON NOT NULL,\n"+
			"\tPRIMARY KEY (`locator`, `row_num`)\n"+
			")", c.QualifiedName(connector.RowsTable)),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n"+
			"\t`locator` VARCHAR(128) NOT NULL PRIMARY KEY,\n"+
			"\t`namespace` VARCHAR(255) NOT NULL,\n"+
			"\t`columns_json` JSON NOT NULL,\n"+
			"\t`created_at` DATETIME(6) NOT NULL\n"+
			")", c.QualifiedName(connector.TargetsTable)),
	}
}

// NativeType returns the CAST target for a column. Booleans have no CAST
// target and are mapped with a CASE expression instead.
func (c *MySQLConnector) NativeType(t model.ColumnType) string {
	switch t {
	case model.TypeInteger:
		return "SIGNED"
	case model.TypeFloat:
		return "DOUBLE"
	case model.TypeBoolean:
		return "BOOLEAN"
	case model.TypeDate:
		return "DATE"
	default:
		return "CHAR"
	}
}

func (c *MySQLConnector) columnExpr(col model.ColumnSchema) string {
	extract := fmt.Sprintf("JSON_EXTRACT(`data`, %s)", query.QuoteLiteral(`$."`+col.Name+`"`))
	switch col.Type {
	case model.TypeInteger, model.TypeFloat:
		return fmt.Sprintf("CAST(%s AS %s)", extract, c.NativeType(col.Type))
	case model.TypeBoolean:
		return fmt.Sprintf("CASE JSON_UNQUOTE(%s) WHEN 'true' THEN TRUE WHEN 'false' THEN FALSE END", extract)
	default:
		return fmt.Sprintf("CAST(JSON_UNQUOTE(%s) AS %s)", extract, c.NativeType(col.Type))
	}
}

// BuildCreateView renders the typed view over a target's rows.
func (c *MySQLConnector) BuildCreateView(locator string, schema []model.ColumnSchema) (string, error) {
	if err := query.ValidateIdentifier(locator); err != nil {
		return "", err
	}
	cols := make([]string, 0, len(schema)+1)
	cols = append(cols, "`row_num` AS "+c.QuoteIdentifier(query.RowIDColumn))
	for _, col := range schema {
		cols = append(cols, c.columnExpr(col)+" AS "+c.QuoteIdentifier(col.Name))
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT %s FROM %s WHERE `locator` = %s",
		c.QualifiedName(locator), strings.Join(cols, ", "),
		c.QualifiedName(connector.RowsTable), query.QuoteLiteral(locator)), nil
}

// BuildDropView renders DROP VIEW for a target.
func (c *MySQLConnector) BuildDropView(locator string) string {
	return "DROP VIEW IF EXISTS " + c.QualifiedName(locator)
}

// BuildRegisterTarget renders the idempotent insert into the target
// registry. Args: locator, namespace, columns_json, created_at.
func (c *MySQLConnector) BuildRegisterTarget() string {
	return fmt.Sprintf("INSERT IGNORE INTO %s (`locator`, `namespace`, `columns_json`, `created_at`) VALUES (?, ?, ?, ?)",
		c.QualifiedName(connector.TargetsTable))
}

// BuildInsertRows constructs a multi-row INSERT for one batch.
func (c *MySQLConnector) BuildInsertRows(_ context.Context, req connector.InsertRowsRequest) (string, []interface{}, error) {
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
	b.WriteString(" (`locator`, `row_num`, `data`) VALUES ")
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
func (c *MySQLConnector) BuildSelect(_ context.Context, req connector.SelectRequest) (string, []interface{}, error) {
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

	// MySQL has no OFFSET without LIMIT.
	if req.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, req.Limit)
		if req.Offset > 0 {
			b.WriteString(" OFFSET ?")
			args = append(args, req.Offset)
		}
	}

	return b.String(), args, nil
}

// BuildCount constructs a SELECT COUNT(*) query against a dataset view.
func (c *MySQLConnector) BuildCount(_ context.Context, req connector.CountRequest) (string, []interface{}, error) {
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
