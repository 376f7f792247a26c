package connector

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/tapfile/tapfile/internal/model"
)

// Storage layout shared by every warehouse: one wide row table plus a
// registry of provisioned targets. Each target is exposed as a typed view
// named after its locator.
const (
	RowsTable    = "dataset_rows"
	TargetsTable = "storage_targets"
)

// SelectRequest represents a page query against a dataset view.
type SelectRequest struct {
	View       string
	Fields     []string
	Filter     string
	FilterArgs []interface{}
	Order      string
	Limit      int
	Offset     int
}

// CountRequest represents a count query against a dataset view.
type CountRequest struct {
	View       string
	Filter     string
	FilterArgs []interface{}
}

// InsertRowsRequest is one batch of encoded rows for a storage target.
// Data[i] is the JSON object stored for row FirstRow+i.
type InsertRowsRequest struct {
	Locator  string
	FirstRow int64
	Data     [][]byte
}

// ConnectionConfig holds warehouse connection parameters.
type ConnectionConfig struct {
	Driver          string
	DSN             string
	SchemaName      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Connector is the interface every warehouse dialect implements. It owns the
// connection and renders dialect-specific SQL; Warehouse runs it.
type Connector interface {
	// Connection management
	Connect(cfg ConnectionConfig) error
	Disconnect() error
	Ping(ctx context.Context) error
	DB() *sqlx.DB

	// Storage layout (DDL)
	StorageDDL() []string
	BuildCreateView(locator string, schema []model.ColumnSchema) (string, error)
	BuildDropView(locator string) string
	BuildRegisterTarget() string

	// Query building (database-specific SQL dialect)
	BuildInsertRows(ctx context.Context, req InsertRowsRequest) (string, []interface{}, error)
	BuildSelect(ctx context.Context, req SelectRequest) (string, []interface{}, error)
	BuildCount(ctx context.Context, req CountRequest) (string, []interface{}, error)

	// Metadata
	DriverName() string
	QuoteIdentifier(name string) string
	QualifiedName(name string) string
	ParameterPlaceholder(index int) string
	NativeType(t model.ColumnType) string
}

// SanitizeDSN ensures that URL-style PostgreSQL DSNs have their userinfo
// (especially the password) properly percent-encoded. Raw passwords
// containing @, #, %, or other URL-special characters make the Go URL parser
// mis-split the authority component and the warehouse never connects.
//
// MySQL DSNs are normalized to use the tcp() wrapper required by go-sql-driver.
// SQLite DSNs are file paths and are returned unchanged.
func SanitizeDSN(driver, dsn string) string {
	switch driver {
	case "postgres":
		return sanitizeURLDSN(dsn)
	case "mysql":
		return sanitizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db", a DSN missing the
// tcp() wrapper.
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// sanitizeMySQLDSN rewrites the DSN shapes people commonly paste into the
// user:pass@tcp(host:port)/db form go-sql-driver expects:
//
//	user:pass@host:port/db   (no wrapper)
//	user:pass@(host:port)/db (no network name)
//
// Passwords containing "@" only parse once tcp( is present, because the
// driver splits on the last "@" before the address.
func sanitizeMySQLDSN(dsn string) string {
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && (cfg.Net == "tcp" || cfg.Net == "unix") {
		return cfg.FormatDSN()
	}

	var candidates []string
	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		candidates = append(candidates, dsn[:idx]+"@tcp"+dsn[idx+1:])
	}
	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		candidates = append(candidates, m[1]+"@tcp("+m[2]+")"+m[3])
	}
	for _, fixed := range candidates {
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Let the connect call report the problem.
	return dsn
}

// sanitizeURLDSN percent-encodes the user and password of a scheme://
// DSN such as postgres://user:p@ss#word@host/db.
func sanitizeURLDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}

	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		rest, query = rest[:qi], rest[qi:]
	}

	// The host starts after the last '@'; the password may contain more.
	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn
	}
	userinfo, hostpath := rest[:atIdx], rest[atIdx+1:]
	user, pass, _ := strings.Cut(userinfo, ":")

	// Already-encoded values are decoded first so they are not encoded twice.
	if u, err := url.PathUnescape(user); err == nil {
		user = u
	}
	if p, err := url.PathUnescape(pass); err == nil {
		pass = p
	}

	return scheme + "://" + url.UserPassword(user, pass).String() + "@" + hostpath + query
}
