// Package mysql stores dataset rows in MySQL 8. Rows are JSON documents in
// the shared row table; each dataset is a typed view over it.
package mysql

import (
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tapfile/tapfile/internal/connector"
)

// MySQLConnector implements connector.Connector for MySQL warehouses.
type MySQLConnector struct {
	connector.Pool
	schemaName string
}

// New creates a MySQLConnector.
func New() connector.Connector {
	return &MySQLConnector{}
}

// Connect opens a pool for cfg.DSN. Without an explicit schema name the
// database selected by the DSN qualifies every name.
func (c *MySQLConnector) Connect(cfg connector.ConnectionConfig) error {
	if err := c.Open("mysql", cfg.DSN, cfg); err != nil {
		return err
	}

	c.schemaName = cfg.SchemaName
	if c.schemaName == "" {
		var current string
		if err := c.DB().Get(&current, "SELECT DATABASE()"); err == nil {
			c.schemaName = current
		}
	}
	return nil
}

func (c *MySQLConnector) DriverName() string { return "mysql" }

// QuoteIdentifier wraps name in backticks, doubling embedded backticks.
func (c *MySQLConnector) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QualifiedName prefixes name with the database when one is known.
func (c *MySQLConnector) QualifiedName(name string) string {
	if c.schemaName == "" {
		return c.QuoteIdentifier(name)
	}
	return c.QuoteIdentifier(c.schemaName) + "." + c.QuoteIdentifier(name)
}

// ParameterPlaceholder returns "?"; MySQL placeholders are positional.
func (c *MySQLConnector) ParameterPlaceholder(_ int) string {
	return "?"
}
