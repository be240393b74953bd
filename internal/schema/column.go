package schema

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
)

// Column is one destination column, in source column order.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Names returns the column names of cols.
func Names(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// NormalizeHeader converts a raw header into an SQL identifier: surrounding
// whitespace trimmed, every inner whitespace rune replaced by '_', lowercased.
func NormalizeHeader(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, s)
	return strings.ToLower(s)
}

// NormalizeHeaders normalizes every header, naming blank ones column_<n> and
// suffixing duplicates with _<k> so the result is a valid column list.
func NormalizeHeaders(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, h := range raw {
		base := NormalizeHeader(h)
		if base == "" {
			base = fmt.Sprintf("column_%d", i+1)
		}
		name := base
		for k := 2; used[name]; k++ {
			name = fmt.Sprintf("%s_%d", base, k)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// Builder folds rows into per-column types. It holds one type per column and
// never buffers rows.
type Builder struct {
	headers  []string
	types    []ColumnType
	sentinel string
}

// NewBuilder starts a fold for the given raw headers.
func NewBuilder(rawHeaders []string, sentinel string) *Builder {
	return &Builder{
		headers:  NormalizeHeaders(rawHeaders),
		types:    make([]ColumnType, len(rawHeaders)),
		sentinel: sentinel,
	}
}

// Add folds one data row. Fields beyond the header width are ignored;
// missing trailing fields do not influence their column.
func (b *Builder) Add(row []string) {
	for i, raw := range row {
		if i >= len(b.types) {
			break
		}
		if b.types[i] == Varchar || raw == b.sentinel {
			continue
		}
		b.types[i] = Widen(b.types[i], raw)
	}
}

// Columns returns the finished schema.
func (b *Builder) Columns() []Column {
	cols := make([]Column, len(b.headers))
	for i, name := range b.headers {
		cols[i] = Column{Name: name, Type: Resolve(b.types[i])}
	}
	return cols
}

// Build runs a complete fold over rows.
func Build(rawHeaders []string, rows iter.Seq2[[]string, error], sentinel string) ([]Column, error) {
	b := NewBuilder(rawHeaders, sentinel)
	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		b.Add(row)
	}
	return b.Columns(), nil
}
