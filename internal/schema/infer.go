package schema

import (
	"errors"
	"iter"
	"math"
	"strconv"
	"strings"
)

// Exclusive bounds of the integer tiers. A value equal to a bound falls
// through to the next wider tier.
const (
	smallintMin = -32768
	smallintMax = 32767
	intMin      = -2147483648
	intMax      = 2147483647
)

// DefaultSentinel marks a missing value. It is excluded from inference and
// stored as NULL.
const DefaultSentinel = "NA"

type literalKind int

const (
	literalString literalKind = iota
	literalInteger
	literalFloat
)

// literal is the classification of one raw field value.
type literal struct {
	kind literalKind
	// value is valid for literalInteger. big marks integers outside int64,
	// which always land in Bigint.
	value int64
	big   bool
}

// classify parses raw as an integer, a float, or neither.
func classify(raw string) literal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return literal{kind: literalString}
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		if leadingZero(s) {
			// Identifiers such as zip codes; storing them as numbers loses digits.
			return literal{kind: literalString}
		}
		return literal{kind: literalInteger, value: v}
	} else if errors.Is(err, strconv.ErrRange) {
		return literal{kind: literalInteger, big: true}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || !plainNumber(s) {
		return literal{kind: literalString}
	}
	return literal{kind: literalFloat}
}

func leadingZero(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0'
}

// plainNumber rejects the spellings ParseFloat accepts that are not decimal
// number literals (hex floats, "Inf", underscores).
func plainNumber(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.', r == '-', r == '+', r == 'e', r == 'E':
		default:
			return false
		}
	}
	return true
}

// Widen folds one raw value into the current column type.
// The result is never narrower than current.
func Widen(current ColumnType, raw string) ColumnType {
	if current == Varchar {
		return Varchar
	}

	lit := classify(raw)
	switch lit.kind {
	case literalInteger:
		if current == Decimal {
			return Decimal
		}
		switch {
		case !lit.big && lit.value > smallintMin && lit.value < smallintMax &&
			current != Int && current != Bigint:
			return Smallint
		case !lit.big && lit.value > intMin && lit.value < intMax && current != Bigint:
			return Int
		default:
			return Bigint
		}
	case literalFloat:
		return Decimal
	default:
		return Varchar
	}
}

// Infer folds Widen over values, skipping sentinel. A column that never saw
// a value is Varchar.
func Infer(values iter.Seq[string], sentinel string) ColumnType {
	t := Unset
	for v := range values {
		if v == sentinel {
			continue
		}
		t = Widen(t, v)
		if t == Varchar {
			break
		}
	}
	return Resolve(t)
}

// Resolve maps a finished fold to a storable type.
func Resolve(t ColumnType) ColumnType {
	if t == Unset {
		return Varchar
	}
	return t
}
