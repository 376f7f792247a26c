// Package sqlite stores dataset rows in a SQLite file, the zero-setup
// default warehouse. Rows are JSON text in the shared row table; each
// dataset is a typed view over it.
package sqlite

import (
	"strings"

	_ "modernc.org/sqlite"

	"github.com/tapfile/tapfile/internal/connector"
)

// SQLiteConnector implements connector.Connector for SQLite warehouses.
type SQLiteConnector struct {
	connector.Pool
}

// New creates a SQLiteConnector.
func New() connector.Connector {
	return &SQLiteConnector{}
}

// withPragmas adds WAL journaling and a busy timeout to a file DSN that
// sets no pragmas of its own.
func withPragmas(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "_pragma") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Connect opens the database named by cfg.DSN: a file path or ":memory:"
// (the default).
func (c *SQLiteConnector) Connect(cfg connector.ConnectionConfig) error {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = ":memory:"
	}

	// One writer at a time; an in-memory database also only exists on the
	// connection that created it.
	cfg.MaxOpenConns = 1
	return c.Open("sqlite", withPragmas(dsn), cfg)
}

func (c *SQLiteConnector) DriverName() string { return "sqlite" }

// QuoteIdentifier double-quotes name, doubling embedded quotes.
func (c *SQLiteConnector) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName quotes name. Everything lives in the main database.
func (c *SQLiteConnector) QualifiedName(name string) string {
	return c.QuoteIdentifier(name)
}

// ParameterPlaceholder returns "?"; SQLite ignores the index.
func (c *SQLiteConnector) ParameterPlaceholder(_ int) string {
	return "?"
}
