// Package csvparse turns raw CSV bytes into row records and an inferred
// column schema. It performs no I/O.
package csvparse

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/tapfile/tapfile/internal/apperr"
	"github.com/tapfile/tapfile/internal/model"
	"github.com/tapfile/tapfile/internal/typedetect"
)

// ErrNoDataRows is the message recorded when a file has a header but no rows.
const ErrNoDataRows = "CSV file contains no data rows"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse reads data as comma-separated values with a header row. Malformed
// input returns an *apperr.Error of kind ParseError with the offending line
// and column; duplicate sanitized headers return a SchemaConflictError. A
// file with no data rows is not an error: the result has an empty schema and
// an explanatory entry in Errors.
func Parse(data []byte) (*model.ParsedDataset, error) {
	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return emptyDataset(), nil
	}
	if err != nil {
		return nil, wrapCSVError(err)
	}

	columns, err := sanitizeHeader(header)
	if err != nil {
		return nil, err
	}

	ds := &model.ParsedDataset{}
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrapCSVError(err)
		}
		if isEmptyRow(fields) {
			continue
		}

		line, _ := r.FieldPos(0)
		rec := make(model.Record, len(columns))
		for i, col := range columns {
			if i < len(fields) && strings.TrimSpace(fields[i]) != "" {
				rec[col] = fields[i]
			} else {
				rec[col] = nil
			}
		}
		ds.Rows = append(ds.Rows, rec)
		ds.Lines = append(ds.Lines, line)
	}

	ds.RowCount = len(ds.Rows)
	if ds.RowCount == 0 {
		return emptyDataset(), nil
	}
	ds.Schema = InferSchema(columns, ds.Rows)
	return ds, nil
}

// InferSchema runs type detection independently over each column's full
// value sequence.
func InferSchema(columns []string, rows []model.Record) []model.ColumnSchema {
	schema := make([]model.ColumnSchema, len(columns))
	values := make([]interface{}, len(rows))
	for i, col := range columns {
		for j, row := range rows {
			values[j] = row[col]
		}
		schema[i] = model.ColumnSchema{
			Name:     col,
			Type:     typedetect.Detect(values),
			Nullable: typedetect.Nullable(values),
		}
	}
	return schema
}

func emptyDataset() *model.ParsedDataset {
	return &model.ParsedDataset{
		Schema: []model.ColumnSchema{},
		Errors: []string{ErrNoDataRows},
	}
}

func sanitizeHeader(header []string) ([]string, error) {
	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := SanitizeColumnName(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if prev, ok := seen[name]; ok {
			return nil, apperr.SchemaConflict(
				"columns %d (%q) and %d (%q) both map to %q",
				prev+1, header[prev], i+1, h, name)
		}
		seen[name] = i
		columns[i] = name
	}
	return columns, nil
}

func wrapCSVError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return apperr.Parse(pe.Line, pe.Column, pe.Err, "malformed CSV")
	}
	return apperr.Parse(0, 0, err, "read CSV")
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD so that
// spreadsheet exports in legacy encodings still parse.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}
	return bytes.ToValidUTF8(data, []byte("\uFFFD"))
}
