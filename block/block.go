// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package block implements blocks, the immutable physical units a table's
// rows are stored in, and the codec interface blocks are persisted through.
//
// A block holds the rows of one group-key value in the table's sort order.
// Columns are stored in a physical order that may differ from the table's
// logical column order; ColumnOrder maps one to the other.
package block

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
)

// Block is an immutable set of rows stored column by column.
type Block struct {
	batch   uint64
	numRows int
	// order[p] is the logical column stored at physical position p.
	order []int
	// The following are indexed by physical position.
	kinds  []base.Kind
	values [][]base.Datum
	nulls  []*roaring.Bitmap
}

// Batch returns the batch number of the block.
func (b *Block) Batch() uint64 { return b.batch }

// NumRows returns the number of rows in the block.
func (b *Block) NumRows() int { return b.numRows }

// NumColumns returns the number of columns in the block.
func (b *Block) NumColumns() int { return len(b.order) }

// ColumnOrder returns, for each physical position, the logical column stored
// there. The returned slice must not be modified.
func (b *Block) ColumnOrder() []int { return b.order }

// Kind returns the kind of the column at physical position p.
func (b *Block) Kind(p int) base.Kind { return b.kinds[p] }

// Value returns the value of the column at physical position p in the given
// row.
func (b *Block) Value(p, row int) base.Datum {
	if b.nulls[p].Contains(uint32(row)) {
		return base.Null
	}
	return b.values[p][row]
}

// Nulls returns the null bitmap of the column at physical position p. The
// bitmap must not be modified.
func (b *Block) Nulls(p int) *roaring.Bitmap { return b.nulls[p] }

// Row copies the given row into dst in logical column order and returns it.
// dst is grown if needed. Bytes values alias the block.
func (b *Block) Row(row int, dst base.Row) base.Row {
	if cap(dst) < len(b.order) {
		dst = make(base.Row, len(b.order))
	}
	dst = dst[:len(b.order)]
	for p, col := range b.order {
		dst[col] = b.Value(p, row)
	}
	return dst
}

// String implements fmt.Stringer.
func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "block %d: %d rows\n", b.batch, b.numRows)
	var row base.Row
	for i := 0; i < b.numRows; i++ {
		row = b.Row(i, row)
		fmt.Fprintf(&sb, "  %s\n", row)
	}
	return sb.String()
}

// Builder accumulates rows into a Block. Rows are stored in the order they
// are added, so the caller adds them in the table's sort order.
type Builder struct {
	order  []int
	kinds  []base.Kind
	values [][]base.Datum
	nulls  []*roaring.Bitmap
	rows   int
}

// MakeBuilder returns a Builder for rows with the given logical column kinds.
// order maps physical positions to logical columns; nil stores the columns in
// logical order.
func MakeBuilder(kinds []base.Kind, order []int) Builder {
	if order == nil {
		order = make([]int, len(kinds))
		for i := range order {
			order[i] = i
		}
	}
	if len(order) != len(kinds) {
		panic(errors.AssertionFailedf("column order has %d entries for %d columns", len(order), len(kinds)))
	}
	b := Builder{
		order:  order,
		kinds:  make([]base.Kind, len(kinds)),
		values: make([][]base.Datum, len(kinds)),
		nulls:  make([]*roaring.Bitmap, len(kinds)),
	}
	seen := make([]bool, len(kinds))
	for p, col := range order {
		if col < 0 || col >= len(kinds) || seen[col] {
			panic(errors.AssertionFailedf("invalid column order %v", order))
		}
		seen[col] = true
		b.kinds[p] = kinds[col]
		b.nulls[p] = roaring.New()
	}
	return b
}

// Add appends a row given in logical column order. Values are cloned.
func (b *Builder) Add(row base.Row) {
	if len(row) != len(b.order) {
		panic(errors.AssertionFailedf("row has %d columns, block has %d", len(row), len(b.order)))
	}
	for p, col := range b.order {
		v := row[col]
		if v.IsNull() {
			b.nulls[p].Add(uint32(b.rows))
		} else if v.Kind() != b.kinds[p] {
			panic(errors.AssertionFailedf("column %d: value of kind %s, column is %s", col, v.Kind(), b.kinds[p]))
		}
		b.values[p] = append(b.values[p], v.Clone())
	}
	b.rows++
}

// Len returns the number of rows added so far.
func (b *Builder) Len() int { return b.rows }

// Finish returns the block holding the added rows and resets the builder.
func (b *Builder) Finish(batch uint64) *Block {
	blk := &Block{
		batch:   batch,
		numRows: b.rows,
		order:   b.order,
		kinds:   b.kinds,
		values:  b.values,
		nulls:   b.nulls,
	}
	for _, n := range blk.nulls {
		n.RunOptimize()
	}
	*b = MakeBuilder(logicalKinds(b.order, b.kinds), b.order)
	return blk
}

func logicalKinds(order []int, kinds []base.Kind) []base.Kind {
	out := make([]base.Kind, len(order))
	for p, col := range order {
		out[col] = kinds[p]
	}
	return out
}
