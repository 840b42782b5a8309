// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"bytes"
	"cmp"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Comparator is the typed ordering and arithmetic capability that statistics
// accumulation, pruning and merging are built on.
type Comparator interface {
	// Name identifies the comparator; it is recorded in Options.String.
	Name() string
	// Compare returns -1, 0, or +1 depending on whether a is less than, equal
	// to or greater than b. NULL sorts after every non-NULL value and equal to
	// itself. Both datums must be of the same kind unless one is NULL.
	Compare(a, b Datum) int
	// Add folds v into the running sum s. v must be of a numeric kind.
	Add(s Sum, v Datum) Sum
	// Bucket aligns v down to a multiple of width. Kinds which are not
	// bucketable, and widths <= 0, leave v unchanged.
	Bucket(width int64, v Datum) Datum
}

// DefaultComparator orders datums by their natural order: numbers
// numerically, bytes lexicographically, false before true.
var DefaultComparator Comparator = defaultComparator{}

type defaultComparator struct{}

func (defaultComparator) Name() string { return "zonestore.DefaultComparator" }

func (defaultComparator) Compare(a, b Datum) int {
	if a.kind == KindInvalid || b.kind == KindInvalid {
		switch {
		case a.kind == b.kind:
			return 0
		case a.kind == KindInvalid:
			return +1
		default:
			return -1
		}
	}
	if a.kind != b.kind {
		panic(errors.AssertionFailedf("comparing datums of different kinds: %s and %s", a.kind, b.kind))
	}
	switch a.kind {
	case KindBool, KindInt64, KindTimestamp:
		return cmp.Compare(a.i, b.i)
	case KindFloat64:
		return cmp.Compare(a.f, b.f)
	default:
		return bytes.Compare(a.b, b.b)
	}
}

func (defaultComparator) Add(s Sum, v Datum) Sum {
	switch v.kind {
	case KindInt64:
		s.Int = s.Int.Add(Int128FromInt64(v.i))
	case KindFloat64:
		s.Float += v.f
	}
	return s
}

func (defaultComparator) Bucket(width int64, v Datum) Datum {
	if width <= 0 || !v.kind.Bucketable() {
		return v
	}
	q := v.i / width
	if v.i%width != 0 && v.i < 0 {
		q--
	}
	v.i = q * width
	return v
}

// Op is a comparison operator of a predicate.
type Op uint8

const (
	OpEq Op = iota
	OpLt
	OpLe
	OpGt
	OpGe
)

var opNames = [...]string{OpEq: "=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">="}

// String implements fmt.Stringer.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "?"
}

// SafeFormat implements redact.SafeFormatter.
func (o Op) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(o.String()))
}

// ParseOp parses an operator as returned by Op.String.
func ParseOp(s string) (Op, error) {
	for i, n := range opNames {
		if n == s {
			return Op(i), nil
		}
	}
	return 0, errors.Errorf("zonestore: unknown operator %q", s)
}

// Lower returns true if the operator bounds values from below (> or >=).
func (o Op) Lower() bool { return o == OpGt || o == OpGe }

// Upper returns true if the operator bounds values from above (< or <=).
func (o Op) Upper() bool { return o == OpLt || o == OpLe }

// Eval returns true if "a op b" holds. NULL never satisfies any operator.
func Eval(c Comparator, op Op, a, b Datum) bool {
	if a.IsNull() || b.IsNull() {
		return false
	}
	r := c.Compare(a, b)
	switch op {
	case OpEq:
		return r == 0
	case OpLt:
		return r < 0
	case OpLe:
		return r <= 0
	case OpGt:
		return r > 0
	case OpGe:
		return r >= 0
	}
	return false
}

// Predicate restricts a column: "column op value".
type Predicate struct {
	Col   int
	Op    Op
	Value Datum
}

// Matches evaluates the predicate against a row.
func (p Predicate) Matches(c Comparator, row Row) bool {
	return Eval(c, p.Op, row[p.Col], p.Value)
}

// EqualityColumns returns the columns constrained by an equality predicate.
func EqualityColumns(preds []Predicate) []int {
	var cols []int
	for _, p := range preds {
		if p.Op == OpEq {
			cols = append(cols, p.Col)
		}
	}
	return cols
}

// Direction is the direction of a scan: +1 forward, -1 backward.
type Direction int8

const (
	Forward  Direction = +1
	Backward Direction = -1
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// SafeFormat implements redact.SafeFormatter.
func (d Direction) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(d.String()))
}

// CompareRows compares two rows on the given columns.
func CompareRows(c Comparator, cols []int, a, b Row) int {
	for _, col := range cols {
		if r := c.Compare(a[col], b[col]); r != 0 {
			return r
		}
	}
	return 0
}
