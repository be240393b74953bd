// Package database provides the relational backends the ingestion engine
// writes to. Each backend satisfies Executor, a narrow execute-only contract:
// no transaction API is assumed by callers.
//
// Two backends are available:
//
//   - Postgres: a pgxpool-backed gateway (production default)
//   - SQLite: a database/sql gateway on the pure-Go modernc driver
//
// Both also persist ingestion checkpoints via CheckpointStore.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateTable is returned by Exec when a CREATE TABLE conflicts with an
// existing relation.
var ErrDuplicateTable = errors.New("duplicate table")

// ErrNoCheckpoint is returned by CheckpointStore.Load when no checkpoint has
// been recorded for a table.
var ErrNoCheckpoint = errors.New("no checkpoint")

// Statement is a single SQL statement with positional arguments.
// Placeholders in SQL must already be rendered for the target Dialect.
type Statement struct {
	SQL  string
	Args []any
}

// Executor executes DDL and DML statements and reports success or failure.
type Executor interface {
	Exec(ctx context.Context, stmt Statement) error
	Dialect() Dialect
}

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name string

	// numbered reports whether placeholders are $1, $2... rather than ?.
	numbered bool
}

var (
	// PostgresDialect renders $n placeholders.
	PostgresDialect = Dialect{Name: "postgres", numbered: true}

	// SQLiteDialect renders ? placeholders.
	SQLiteDialect = Dialect{Name: "sqlite"}
)

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Placeholders returns a comma-separated list of count bind markers.
func (d Dialect) Placeholders(count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.Placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

// QuoteIdentifier safely quotes an identifier, escaping embedded double quotes.
func (d Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return PostgresDialect, nil
	case "sqlite", "sqlite3":
		return SQLiteDialect, nil
	default:
		return Dialect{}, fmt.Errorf("unknown database driver %q", name)
	}
}
