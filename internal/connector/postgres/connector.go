// Package postgres stores dataset rows in PostgreSQL. Rows are JSONB
// documents in the shared row table; each dataset is a typed view over it.
package postgres

import (
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tapfile/tapfile/internal/connector"
)

const defaultSchema = "public"

// PostgresConnector implements connector.Connector for PostgreSQL warehouses.
type PostgresConnector struct {
	connector.Pool
	schemaName string
}

// New creates a PostgresConnector that stores rows in the public schema
// unless the connection config names another.
func New() connector.Connector {
	return &PostgresConnector{schemaName: defaultSchema}
}

// Connect opens a pgx-backed pool for cfg.DSN.
func (c *PostgresConnector) Connect(cfg connector.ConnectionConfig) error {
	if err := c.Open("pgx", cfg.DSN, cfg); err != nil {
		return err
	}
	if cfg.SchemaName != "" {
		c.schemaName = cfg.SchemaName
	}
	return nil
}

func (c *PostgresConnector) DriverName() string { return "postgres" }

// QuoteIdentifier double-quotes name, doubling embedded quotes.
func (c *PostgresConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName prefixes name with the warehouse schema.
func (c *PostgresConnector) QualifiedName(name string) string {
	return c.QuoteIdentifier(c.schemaName) + "." + c.QuoteIdentifier(name)
}

// ParameterPlaceholder returns the numbered placeholder $index.
func (c *PostgresConnector) ParameterPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}
