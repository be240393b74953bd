package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tabload/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
)

// CreateTable renders the DDL declaring every column with its storage type.
func CreateTable(d database.Dialect, table string, cols []Column) database.Statement {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = d.QuoteIdentifier(c.Name) + " " + c.Type.SQL()
	}
	return database.Statement{
		SQL: fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdentifier(table), strings.Join(defs, ", ")),
	}
}

// DropTable renders an idempotent drop.
func DropTable(d database.Dialect, table string) database.Statement {
	return database.Statement{SQL: "DROP TABLE IF EXISTS " + d.QuoteIdentifier(table)}
}

// CountRows renders the probe used to test for table existence.
func CountRows(d database.Dialect, table string) database.Statement {
	return database.Statement{SQL: "SELECT COUNT(*) FROM " + d.QuoteIdentifier(table)}
}

// Insert renders a parameterized single-row insert. row is padded with NULL
// or truncated to the column count; sentinel values become NULL.
func Insert(d database.Dialect, table string, cols []Column, row []string, sentinel string) database.Statement {
	names := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = d.QuoteIdentifier(c.Name)
		if i < len(row) {
			args[i] = Bind(c.Type, row[i], sentinel)
		}
	}
	return database.Statement{
		SQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			d.QuoteIdentifier(table), strings.Join(names, ", "), d.Placeholders(len(cols))),
		Args: args,
	}
}

// Bind converts raw into the argument for a column of type t. Values that
// no longer parse as the column type are passed through as text so the
// backend reports the mismatch.
func Bind(t ColumnType, raw, sentinel string) any {
	if raw == sentinel {
		return nil
	}
	s := strings.TrimSpace(raw)
	switch {
	case t.Integer():
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return v
		}
		return raw
	case t == Decimal:
		var n pgtype.Numeric
		if err := n.Scan(s); err == nil {
			return n
		}
		return raw
	default:
		return raw
	}
}
