// Package provision creates and removes the warehouse storage target that
// backs one dataset.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/connector"
	"github.com/tapfile/tapfile/internal/csvparse"
	"github.com/tapfile/tapfile/internal/model"
)

const (
	// ReservedColumn is the name every dataset view uses for the row number.
	ReservedColumn = "id"
	// RenamedColumn is what a CSV column named "id" becomes.
	RenamedColumn = "csv_id"

	maxNamespaceLen = 24
)

// Result describes the outcome of one provisioning attempt. On failure
// Success is false and Error holds an actionable message.
type Result struct {
	Locator string
	Columns []model.ColumnSchema
	Success bool
	Error   string

	err error
}

// Err returns the failure as a typed error, or nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return r.err
}

// Provisioner creates storage targets in one warehouse.
type Provisioner struct {
	target connector.Dataset
	logger *slog.Logger
}

// New creates a Provisioner writing to target.
func New(target connector.Dataset, logger *slog.Logger) *Provisioner {
	return &Provisioner{target: target, logger: logger}
}

// Provision creates a fresh storage target for a dataset in namespace
// (usually the project slug). Columns named "id" are renamed first. If
// creation fails part-way the target is dropped again before returning.
func (p *Provisioner) Provision(ctx context.Context, namespace string, schema []model.ColumnSchema) Result {
	locator, err := NewLocator(namespace)
	if err != nil {
		perr := apperr.Wrap(apperr.KindProvision, err, "generate storage locator")
		return Result{Success: false, Error: perr.Error(), err: perr}
	}
	return p.ProvisionAt(ctx, namespace, locator, schema)
}

// ProvisionAt is Provision with a locator chosen by the caller, for callers
// that record the locator before the target exists.
func (p *Provisioner) ProvisionAt(ctx context.Context, namespace, locator string, schema []model.ColumnSchema) Result {
	columns, err := PrepareColumns(schema)
	if err != nil {
		return Result{Success: false, Error: err.Error(), err: err}
	}

	if err := p.target.CreateTarget(ctx, namespace, locator, columns); err != nil {
		if dropErr := p.target.DropTarget(context.WithoutCancel(ctx), locator); dropErr != nil {
			p.logger.Warn("failed to drop partial storage target", "locator", locator, "error", dropErr)
		}
		perr := apperr.Wrap(apperr.KindProvision, err, "%s", describeFailure(err))
		return Result{Locator: locator, Columns: columns, Success: false, Error: perr.Error(), err: perr}
	}

	p.logger.Debug("storage target provisioned", "locator", locator, "columns", len(columns))
	return Result{Locator: locator, Columns: columns, Success: true}
}

// Drop removes a storage target. Dropping a missing target succeeds.
func (p *Provisioner) Drop(ctx context.Context, locator string) error {
	if locator == "" {
		return nil
	}
	if err := p.target.DropTarget(ctx, locator); err != nil {
		return apperr.Wrap(apperr.KindProvision, err, "drop storage target %s", locator)
	}
	return nil
}

// PrepareColumns returns a copy of schema with a column named "id" renamed
// to "csv_id". A schema that already has "csv_id" next to "id" cannot be
// stored.
func PrepareColumns(schema []model.ColumnSchema) ([]model.ColumnSchema, error) {
	out := make([]model.ColumnSchema, len(schema))
	copy(out, schema)

	_, hasRenamed := model.FindColumn(schema, RenamedColumn)
	for i := range out {
		if out[i].Name != ReservedColumn {
			continue
		}
		if hasRenamed {
			return nil, apperr.SchemaConflict("column %q collides with the renamed %q column", RenamedColumn, ReservedColumn)
		}
		out[i].Name = RenamedColumn
	}
	return out, nil
}

// RenameRecord applies the PrepareColumns renaming to one row.
func RenameRecord(rec model.Record) model.Record {
	v, ok := rec[ReservedColumn]
	if !ok {
		return rec
	}
	out := make(model.Record, len(rec))
	for k, val := range rec {
		out[k] = val
	}
	delete(out, ReservedColumn)
	out[RenamedColumn] = v
	return out
}

// NewLocator returns a unique, time-ordered storage identifier of the form
// t_<namespace>_<uuid v7 hex>.
func NewLocator(namespace string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	ns := csvparse.SanitizeColumnName(namespace)
	if len(ns) > maxNamespaceLen {
		ns = strings.TrimRight(ns[:maxNamespaceLen], "_")
	}
	if ns == "" {
		ns = "ds"
	}
	return fmt.Sprintf("t_%s_%s", ns, strings.ReplaceAll(id.String(), "-", "")), nil
}

// describeFailure turns a driver error into a hint about what to fix.
func describeFailure(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "access denied"),
		strings.Contains(msg, "command denied"),
		strings.Contains(msg, "readonly"),
		strings.Contains(msg, "read-only"):
		return "warehouse user lacks privileges to create tables and views"
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "bad connection"),
		strings.Contains(msg, "database is closed"):
		return "warehouse is unreachable; check its address and that it is running"
	default:
		return "failed to create storage target"
	}
}
