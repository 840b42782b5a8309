// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonerecord

import "github.com/cockroachdb/zonestore/internal/base"

// MayMatch returns false if the bounds prove that no row satisfies every
// predicate, and true otherwise. Columns without min/max (unordered kinds)
// never rule a block out on their own, except when they are entirely NULL.
func MayMatch(b Bounds, preds []base.Predicate, cmp base.Comparator) bool {
	rows := b.RowCount(false)
	if rows == 0 {
		return false
	}
	for _, p := range preds {
		if p.Value.IsNull() || b.NullCount(p.Col) >= rows {
			return false
		}
		lo, _, ok := b.Min(p.Col)
		if !ok {
			continue
		}
		hi, _, _ := b.Max(p.Col)
		var match bool
		switch p.Op {
		case base.OpEq:
			match = cmp.Compare(lo, p.Value) <= 0 && cmp.Compare(hi, p.Value) >= 0
		case base.OpLt:
			match = cmp.Compare(lo, p.Value) < 0
		case base.OpLe:
			match = cmp.Compare(lo, p.Value) <= 0
		case base.OpGt:
			match = cmp.Compare(hi, p.Value) > 0
		case base.OpGe:
			match = cmp.Compare(hi, p.Value) >= 0
		}
		if !match {
			return false
		}
	}
	return true
}

// FullyMatches returns true if the bounds prove that every row satisfies
// every predicate. It requires each predicate column to have no NULLs and
// min/max statistics.
func FullyMatches(b Bounds, preds []base.Predicate, cmp base.Comparator) bool {
	if b.RowCount(false) == 0 {
		return false
	}
	for _, p := range preds {
		if b.NullCount(p.Col) > 0 {
			return false
		}
		lo, _, ok := b.Min(p.Col)
		if !ok {
			return false
		}
		hi, _, _ := b.Max(p.Col)
		var match bool
		switch p.Op {
		case base.OpEq:
			match = base.Eval(cmp, base.OpEq, lo, p.Value) && base.Eval(cmp, base.OpEq, hi, p.Value)
		case base.OpLt, base.OpLe:
			match = base.Eval(cmp, p.Op, hi, p.Value)
		case base.OpGt, base.OpGe:
			match = base.Eval(cmp, p.Op, lo, p.Value)
		}
		if !match {
			return false
		}
	}
	return true
}

// Combined is the union of the bounds of several records, typically the
// blocks of one logical group. Offsets are meaningless across blocks and are
// always zero.
type Combined struct {
	rows  uint64
	nulls []uint64
	min   []base.Datum
	max   []base.Datum
	has   []bool
}

var _ Bounds = (*Combined)(nil)

// Combine returns the union of the bounds of recs, which must share a schema.
func Combine[R Bounds](recs []R, numColumns int, cmp base.Comparator) *Combined {
	c := &Combined{
		nulls: make([]uint64, numColumns),
		min:   make([]base.Datum, numColumns),
		max:   make([]base.Datum, numColumns),
		has:   make([]bool, numColumns),
	}
	for _, r := range recs {
		c.rows += r.RowCount(false)
		for col := 0; col < numColumns; col++ {
			c.nulls[col] += r.NullCount(col)
			lo, _, ok := r.Min(col)
			if !ok {
				continue
			}
			hi, _, _ := r.Max(col)
			if !c.has[col] {
				c.min[col], c.max[col], c.has[col] = lo, hi, true
				continue
			}
			if cmp.Compare(lo, c.min[col]) < 0 {
				c.min[col] = lo
			}
			if cmp.Compare(hi, c.max[col]) > 0 {
				c.max[col] = hi
			}
		}
	}
	return c
}

// RowCount implements Bounds. Combined bounds only know physical counts.
func (c *Combined) RowCount(bool) uint64 { return c.rows }

// NullCount implements Bounds.
func (c *Combined) NullCount(col int) uint64 { return c.nulls[col] }

// Min implements Bounds.
func (c *Combined) Min(col int) (base.Datum, uint32, bool) {
	return c.min[col], 0, c.has[col]
}

// Max implements Bounds.
func (c *Combined) Max(col int) (base.Datum, uint32, bool) {
	return c.max[col], 0, c.has[col]
}
