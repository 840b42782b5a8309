// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package merge implements the k-way merge of blocks into one ordered row
// stream, optionally deduplicated on a merge key, and the grouping of zone
// records into the logical units the merge is applied to.
//
// An Engine is driven by its caller: Begin configures a scan, Push adds the
// blocks of one logical unit, and PopSingleRow or PopMergedRow produce rows
// until Empty reports that every block is exhausted. Rows are produced in
// sort key order for the scan's direction. When rows of several blocks tie
// on the merge key, the row from the newest batch is produced last, so
// folding rows with PopMergedRow leaves the newest version in the buffer.
package merge

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/zonestore/block"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/invariants"
	"github.com/cockroachdb/zonestore/zonerecord"
)

// Context configures one merge scan.
type Context struct {
	// SortKey are the logical columns the blocks are sorted on, in order.
	SortKey []int
	// MergeKey are the columns identifying a logical row. It must be a prefix
	// of SortKey. An empty merge key disables deduplication.
	MergeKey   []int
	Direction  base.Direction
	Comparator base.Comparator
}

// Validate checks the context for consistency.
func (c *Context) Validate() error {
	if c.Direction != base.Forward && c.Direction != base.Backward {
		return errors.Errorf("zonestore: invalid merge direction %d", errors.Safe(c.Direction))
	}
	if len(c.MergeKey) > len(c.SortKey) {
		return errors.Errorf("zonestore: merge key %v is longer than sort key %v", c.MergeKey, c.SortKey)
	}
	for i, col := range c.MergeKey {
		if c.SortKey[i] != col {
			return errors.Errorf("zonestore: merge key %v is not a prefix of sort key %v", c.MergeKey, c.SortKey)
		}
	}
	return nil
}

// compare orders two cursors by their current rows. Rows are compared on the
// merge key in scan direction; ties go to the older batch so that the newest
// version of a logical row is produced last. The remaining sort key columns
// order rows with distinct merge keys' suffixes, and cursor push order breaks
// any remaining tie.
func (c *Context) compare(a, b *Cursor) int {
	dir := int(c.Direction)
	for _, col := range c.MergeKey {
		if r := c.Comparator.Compare(a.Value(col), b.Value(col)); r != 0 {
			return r * dir
		}
	}
	if len(c.MergeKey) > 0 && a.batch != b.batch {
		if a.batch < b.batch {
			return -1
		}
		return +1
	}
	for _, col := range c.SortKey[len(c.MergeKey):] {
		if r := c.Comparator.Compare(a.Value(col), b.Value(col)); r != 0 {
			return r * dir
		}
	}
	switch {
	case a.batch != b.batch:
		if a.batch < b.batch {
			return -1
		}
		return +1
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return +1
	}
	return 0
}

// sameMergeKey returns true if the cursor's current row and the buffered row
// agree on every merge key column.
func (c *Context) sameMergeKey(cur *Cursor, row base.Row) bool {
	for _, col := range c.MergeKey {
		if c.Comparator.Compare(cur.Value(col), row[col]) != 0 {
			return false
		}
	}
	return true
}

// State is the state of an Engine.
type State uint8

const (
	// StateEmpty is the state of an engine no block was pushed to since
	// Begin.
	StateEmpty State = iota
	// StateLoaded is the state of an engine with unconsumed rows.
	StateLoaded
	// StateExhausted is the state of an engine whose pushed blocks were all
	// consumed.
	StateExhausted
)

var stateNames = [...]string{StateEmpty: "empty", StateLoaded: "loaded", StateExhausted: "exhausted"}

// String implements fmt.Stringer.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// SafeFormat implements redact.SafeFormatter.
func (s State) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(s.String()))
}

// EngineStats counts the work done by an Engine since Begin.
type EngineStats struct {
	// Blocks is the number of non-empty blocks pushed.
	Blocks int
	// Rows is the number of rows popped.
	Rows int
	// Merged is the number of rows folded into an older version.
	Merged int
}

// Engine merges the rows of a set of blocks. An Engine is not safe for
// concurrent use.
type Engine struct {
	ctx   Context
	heap  cursorHeap
	state State
	// dirty is set when cursors were pushed since the heap was last
	// initialized.
	dirty bool
	seq   int
	stats EngineStats
}

// Begin starts a new scan, dropping any blocks pushed before.
func (e *Engine) Begin(ctx Context) {
	if invariants.Enabled {
		if err := ctx.Validate(); err != nil {
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "invalid merge context"))
		}
	}
	e.ctx = ctx
	e.heap.ctx = &e.ctx
	e.heap.clear()
	e.state = StateEmpty
	e.dirty = false
	e.seq = 0
	e.stats = EngineStats{}
}

// Push adds a block to the scan. rec, if non-nil, is the block's zone record
// and supplies the batch number. overlap is false if the caller knows that
// no other pushed block shares a merge key with this one; rows of such a
// block are never folded. Blocks without rows are ignored.
func (e *Engine) Push(b *block.Block, rec zonerecord.Record, overlap bool) {
	if e.heap.ctx == nil {
		panic(errors.AssertionFailedf("merge engine used before Begin"))
	}
	batch := b.Batch()
	if rec != nil {
		if invariants.Enabled && rec.RowCount(false) != uint64(b.NumRows()) {
			panic(errors.AssertionFailedf("zone record of block %d counts %d rows, block has %d",
				batch, rec.RowCount(false), b.NumRows()))
		}
		batch = rec.Batch()
	}
	if b.NumRows() == 0 {
		return
	}
	e.heap.push(makeCursor(b, batch, e.ctx.Direction, overlap, e.seq))
	e.seq++
	e.stats.Blocks++
	e.dirty = true
	e.state = StateLoaded
}

// Empty returns true if no rows remain.
func (e *Engine) Empty() bool { return e.heap.len() == 0 }

// State returns the state of the engine.
func (e *Engine) State() State { return e.state }

// Stats returns the work counters of the current scan.
func (e *Engine) Stats() EngineStats { return e.stats }

func (e *Engine) top() *Cursor {
	if e.heap.len() == 0 {
		panic(errors.AssertionFailedf("pop from %s merge engine", e.state))
	}
	if e.dirty {
		e.heap.init()
		e.dirty = false
	}
	return e.heap.top()
}

func (e *Engine) advance() {
	e.stats.Rows++
	if c := e.heap.top(); c.Step() {
		if invariants.Sometimes(10) {
			e.checkOrder(c)
		}
		e.heap.fixTop()
		return
	}
	e.heap.pop()
	if e.heap.len() == 0 {
		e.state = StateExhausted
	}
}

// checkOrder panics if the rows the cursor just stepped over are out of sort
// key order.
func (e *Engine) checkOrder(c *Cursor) {
	prev := c.pos - c.step
	for _, col := range e.ctx.SortKey {
		r := e.ctx.Comparator.Compare(c.block.Value(c.remap[col], prev), c.Value(col)) * c.step
		switch {
		case r < 0:
			return
		case r > 0:
			panic(errors.AssertionFailedf("%s is not sorted on the sort key", c))
		}
	}
}

// PopSingleRow writes the next row into rb, replacing its content, and
// advances. It panics if the engine is empty.
func (e *Engine) PopSingleRow(rb *RowBuffer) {
	e.top().Emit(rb)
	e.advance()
}

// PopMergedRow writes the next row into rb and advances. If rb holds a row
// with the same merge key, the next row is folded into it and PopMergedRow
// returns true; otherwise it replaces rb's content. It panics if the engine
// is empty.
func (e *Engine) PopMergedRow(rb *RowBuffer) (merged bool) {
	c := e.top()
	if rb.valid && len(e.ctx.MergeKey) > 0 && c.overlap && e.ctx.sameMergeKey(c, rb.row) {
		// Versions of a key within one block are in append order, so a
		// backward cursor produces the newest of them first.
		if c.batch != rb.batch || e.ctx.Direction == base.Forward {
			c.MergeInto(rb, e.ctx.MergeKey)
		}
		e.stats.Merged++
		merged = true
	} else {
		c.Emit(rb)
	}
	e.advance()
	return merged
}

// NextMergedRow fills rb with the next logical row: every row sharing its
// merge key is folded in, so rb ends up with the newest version. It returns
// false when the engine is empty.
func (e *Engine) NextMergedRow(rb *RowBuffer) bool {
	if e.Empty() {
		return false
	}
	rb.Reset()
	e.PopMergedRow(rb)
	for !e.Empty() && len(e.ctx.MergeKey) > 0 {
		c := e.top()
		if !c.overlap || !e.ctx.sameMergeKey(c, rb.row) {
			break
		}
		e.PopMergedRow(rb)
	}
	return true
}

// End finishes the scan and drops every pushed block.
func (e *Engine) End() {
	e.heap.clear()
	e.state = StateEmpty
	e.dirty = false
}
