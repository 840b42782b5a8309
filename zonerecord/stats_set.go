// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonerecord

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
)

// BlockStats is the per-block set of column statistics, in column order, that
// Pack reduces into a zone record.
//
// Besides the physical row count implied by the columns, a BlockStats carries
// a logical row count. It is set at most once, and only when the block holds
// the fully merged content of its logical group.
type BlockStats struct {
	columns      []ColumnStats
	logicalRows  uint64
	logicalValid bool
}

// Push appends a snapshot of s as the statistics of the next column.
func (b *BlockStats) Push(s *ColumnStats) {
	b.columns = append(b.columns, s.snapshot())
}

// SetLogicalRowCount records the logical row count of the block. It panics
// if called twice.
func (b *BlockStats) SetLogicalRowCount(n uint64) {
	if b.logicalValid {
		panic(errors.AssertionFailedf("logical row count already set to %d", b.logicalRows))
	}
	b.logicalRows, b.logicalValid = n, true
}

// LogicalRowCount returns the logical row count and whether it was set.
func (b *BlockStats) LogicalRowCount() (uint64, bool) {
	return b.logicalRows, b.logicalValid
}

// PhysicalRowCount returns the number of rows in the block.
func (b *BlockStats) PhysicalRowCount() uint64 {
	if len(b.columns) == 0 {
		return 0
	}
	return b.columns[0].count
}

// NumColumns returns the number of pushed columns.
func (b *BlockStats) NumColumns() int { return len(b.columns) }

// Column returns the statistics of column i.
func (b *BlockStats) Column(i int) *ColumnStats { return &b.columns[i] }

// Reset empties the set.
func (b *BlockStats) Reset() {
	clear(b.columns)
	*b = BlockStats{columns: b.columns[:0]}
}

// Collector accumulates statistics for every column of a schema as rows are
// appended, and produces the BlockStats of the block on Finish.
type Collector struct {
	columns []ColumnStats
}

// MakeCollector returns a Collector for the given column kinds.
func MakeCollector(kinds []base.Kind, cmp base.Comparator) Collector {
	c := Collector{columns: make([]ColumnStats, len(kinds))}
	for i, k := range kinds {
		c.columns[i] = MakeColumnStats(k, cmp)
	}
	return c
}

// AppendRow appends one row, given in logical column order.
func (c *Collector) AppendRow(row base.Row) {
	for i := range c.columns {
		c.columns[i].Append(row[i], row[i].IsNull())
	}
}

// Rows returns the number of appended rows.
func (c *Collector) Rows() uint64 {
	if len(c.columns) == 0 {
		return 0
	}
	return c.columns[0].count
}

// Finish returns the statistics of the appended rows and resets the
// collector.
func (c *Collector) Finish() *BlockStats {
	b := &BlockStats{}
	for i := range c.columns {
		b.Push(&c.columns[i])
		c.columns[i].Reset()
	}
	return b
}
