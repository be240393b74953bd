// Package schema infers destination column types from raw field values and
// renders the statements that materialize and fill a table.
//
// Column types form a widening lattice:
//
//	Unset < Smallint < Int < Bigint < Decimal < Varchar
//
// A column's type only ever moves right as values are folded in. Varchar is
// absorbing: once reached it never changes.
package schema

import (
	"fmt"
	"strings"
)

// ColumnType is a position in the widening lattice.
type ColumnType int

const (
	Unset ColumnType = iota
	Smallint
	Int
	Bigint
	Decimal
	Varchar
)

// VarcharLength is the fixed maximum length of Varchar columns. Longer values
// are rejected by strict backends at insert time.
const VarcharLength = 256

var typeNames = map[ColumnType]string{
	Unset:    "unset",
	Smallint: "smallint",
	Int:      "int",
	Bigint:   "bigint",
	Decimal:  "decimal",
	Varchar:  "varchar",
}

func (t ColumnType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// SQL returns the storage type used in CREATE TABLE.
// Unset columns never received a value and are stored as Varchar.
func (t ColumnType) SQL() string {
	switch t {
	case Smallint, Int, Bigint, Decimal:
		return t.String()
	default:
		return fmt.Sprintf("varchar(%d)", VarcharLength)
	}
}

// Integer reports whether t is one of the integer tiers.
func (t ColumnType) Integer() bool {
	return t == Smallint || t == Int || t == Bigint
}

// MarshalText implements encoding.TextMarshaler.
func (t ColumnType) MarshalText() ([]byte, error) {
	name, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown column type %d", int(t))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ColumnType) UnmarshalText(text []byte) error {
	parsed, err := ParseColumnType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseColumnType returns the type named s.
func ParseColumnType(s string) (ColumnType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return Unset, fmt.Errorf("unknown column type %q", s)
}
