package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var errNotConnected = errors.New("warehouse not connected")

// Pool owns a dialect's connection pool. Dialects embed it to get the
// connection management half of Connector.
type Pool struct {
	db *sqlx.DB
}

// Open connects through the database/sql driver registered as driverName
// and applies the pool limits set in cfg.
func (p *Pool) Open(driverName, dsn string, cfg ConnectionConfig) error {
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return fmt.Errorf("%s connect: %w", driverName, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	p.db = db
	return nil
}

// Disconnect closes the pool. It is safe to call on a pool never opened.
func (p *Pool) Disconnect() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Pool) Ping(ctx context.Context) error {
	if p.db == nil {
		return errNotConnected
	}
	return p.db.PingContext(ctx)
}

// DB returns the open pool, or nil before Open.
func (p *Pool) DB() *sqlx.DB {
	return p.db
}
