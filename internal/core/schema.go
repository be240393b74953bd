package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/tabload/internal/database"
	"github.com/JonMunkholm/tabload/internal/schema"
)

// BuildSchema reads the header and folds every data row into a column type,
// holding one row in memory at a time. It returns the normalized column
// names alongside the columns.
func BuildSchema(src RowSource, nullMarker string) ([]string, []schema.Column, error) {
	header, err := src.Header()
	if err != nil {
		return nil, nil, sourceError(err)
	}
	if len(header) == 0 {
		return nil, nil, sourceError(fmt.Errorf("%s: empty header row", src.Path()))
	}

	cols, err := schema.Build(header, src.RowsFrom(0), nullMarker)
	if err != nil {
		return nil, nil, sourceError(err)
	}
	return schema.Names(cols), cols, nil
}

// CreateTable issues the DDL for cols. A conflict with an existing table is
// reported as ErrTableAlreadyExists.
func CreateTable(ctx context.Context, exec database.Executor, table string, cols []schema.Column) error {
	err := exec.Exec(ctx, schema.CreateTable(exec.Dialect(), table, cols))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrDuplicateTable):
		return fmt.Errorf("create %q: %w: %w", table, ErrTableAlreadyExists, err)
	default:
		return fmt.Errorf("create %q: %w", table, err)
	}
}

// TableExists probes table with a row count. Any failure counts as absent.
func TableExists(ctx context.Context, exec database.Executor, table string) bool {
	return exec.Exec(ctx, schema.CountRows(exec.Dialect(), table)) == nil
}
