// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package merge

import (
	"fmt"

	"github.com/cockroachdb/zonestore/block"
	"github.com/cockroachdb/zonestore/internal/base"
)

// RowBuffer holds the row most recently produced by an Engine, in logical
// column order. Values of bytes columns alias the block they came from.
type RowBuffer struct {
	row   base.Row
	batch uint64
	valid bool
}

// MakeRowBuffer returns an empty RowBuffer for rows of numColumns columns.
func MakeRowBuffer(numColumns int) RowBuffer {
	return RowBuffer{row: make(base.Row, numColumns)}
}

// Row returns the buffered row. The returned slice is reused by later pops.
func (b *RowBuffer) Row() base.Row { return b.row }

// Batch returns the batch number of the block the buffered row was last
// written from.
func (b *RowBuffer) Batch() uint64 { return b.batch }

// Valid returns true if the buffer holds a row.
func (b *RowBuffer) Valid() bool { return b.valid }

// Reset empties the buffer.
func (b *RowBuffer) Reset() {
	for i := range b.row {
		b.row[i] = base.Null
	}
	b.batch = 0
	b.valid = false
}

// Cursor is a steppable view over the rows of one block. Columns are
// addressed in logical order; the cursor remaps them to the block's physical
// order.
type Cursor struct {
	block   *block.Block
	batch   uint64
	overlap bool
	// seq is the order the cursor was pushed in, the final tie-breaker.
	seq int
	pos int
	// step is +1 for forward scans and -1 for backward scans.
	step  int
	remap []int
}

func makeCursor(b *block.Block, batch uint64, dir base.Direction, overlap bool, seq int) *Cursor {
	c := &Cursor{
		block:   b,
		batch:   batch,
		overlap: overlap,
		seq:     seq,
		step:    int(dir),
		remap:   make([]int, b.NumColumns()),
	}
	for p, col := range b.ColumnOrder() {
		c.remap[col] = p
	}
	if dir == base.Backward {
		c.pos = b.NumRows() - 1
	}
	return c
}

// Valid returns true if the cursor is positioned on a row.
func (c *Cursor) Valid() bool { return c.pos >= 0 && c.pos < c.block.NumRows() }

// Value returns the value of the logical column col in the current row.
func (c *Cursor) Value(col int) base.Datum { return c.block.Value(c.remap[col], c.pos) }

// Batch returns the batch number of the cursor's block.
func (c *Cursor) Batch() uint64 { return c.batch }

// Step advances the cursor by one row in the scan direction and returns
// whether it is still positioned on a row.
func (c *Cursor) Step() bool {
	c.pos += c.step
	return c.Valid()
}

// Emit writes the current row into the buffer, replacing its content.
func (c *Cursor) Emit(rb *RowBuffer) {
	for col := range rb.row {
		rb.row[col] = c.Value(col)
	}
	rb.batch = c.batch
	rb.valid = true
}

// MergeInto folds the current row into the buffer, which holds a row with
// the same merge key from an older batch. The newer row replaces every
// column that is not part of the merge key.
func (c *Cursor) MergeInto(rb *RowBuffer, mergeKey []int) {
	for col := range rb.row {
		if containsCol(mergeKey, col) {
			continue
		}
		rb.row[col] = c.Value(col)
	}
	rb.batch = c.batch
}

func containsCol(cols []int, col int) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (c *Cursor) String() string {
	return fmt.Sprintf("block %d @ %d/%d", c.batch, c.pos, c.block.NumRows())
}
