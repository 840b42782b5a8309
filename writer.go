// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonestore

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
	"github.com/cockroachdb/zonestore/block"
	"github.com/cockroachdb/zonestore/catalog"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/invariants"
	"github.com/cockroachdb/zonestore/merge"
	"github.com/cockroachdb/zonestore/zonerecord"
)

// WriterOptions configure a WriterSession.
type WriterOptions struct {
	// OnConflict overrides the table's Options.OnConflict for the session.
	OnConflict []int
	// Append disables merging on conflict for the session.
	Append bool
}

// WriterStats counts the work of a WriterSession.
type WriterStats struct {
	// Blocks is the number of blocks written.
	Blocks int
	// Rows is the number of rows in written blocks.
	Rows int
	// MergedGroups is the number of flushes that merged existing blocks.
	MergedGroups int
	// Retired is the number of zone records replaced by merged blocks.
	Retired int
	// Degraded is true if merging was requested but the catalog cannot fetch
	// by group key, so the session appends.
	Degraded bool
}

// WriterSession buffers rows and writes them as blocks, one per group-key
// value. When merging on conflict, each flushed group is merged with the
// existing blocks of the group: rows equal on the table's sort key keep only
// the newest version, and the group's old zone records are retired in favor
// of the new one.
//
// A WriterSession is owned by its caller and is not safe for concurrent use.
// At most one session per table may flush at a time.
type WriterSession struct {
	t     *Table
	merge bool
	// groups buffers rows by encoded group value; order holds the groups in
	// the order they were first seen.
	groups   swiss.Map[string, *pendingGroup]
	order    []*pendingGroup
	buffered int
	engine   merge.Engine
	stats    WriterStats
	closed   invariants.CloseChecker
	keyBuf   []byte
}

type pendingGroup struct {
	key  string
	rows []base.Row
}

// NewWriter starts a writer session. It fails with ErrUnsupportedMergeKey if
// a conflict column is not a group key.
func (t *Table) NewWriter(opts WriterOptions) (*WriterSession, error) {
	onConflict := opts.OnConflict
	if onConflict == nil {
		onConflict = t.opts.OnConflict
	}
	if err := t.checkMergeKey(onConflict); err != nil {
		return nil, err
	}
	w := &WriterSession{
		t:     t,
		merge: !opts.Append && len(onConflict) > 0,
	}
	w.groups.Init(16)
	return w, nil
}

// Stats returns the session's counters.
func (w *WriterSession) Stats() WriterStats { return w.stats }

// Append buffers a row. The row is copied. Buffered rows are flushed once
// Options.BlockRowLimit rows are buffered.
func (w *WriterSession) Append(row base.Row) error {
	w.closed.AssertNotClosed()
	if err := w.t.validateRow(row); err != nil {
		return err
	}
	w.keyBuf = w.keyBuf[:0]
	for i, v := range w.t.cat.GroupValue(row) {
		if v.IsNull() {
			w.keyBuf = append(w.keyBuf, 0)
			continue
		}
		w.keyBuf = append(w.keyBuf, 1)
		w.keyBuf = base.AppendDatum(w.keyBuf, w.t.schema[w.t.groupKeys[i].Col].Kind, v)
	}
	g, ok := w.groups.Get(string(w.keyBuf))
	if !ok {
		g = &pendingGroup{key: string(w.keyBuf)}
		w.groups.Put(g.key, g)
		w.order = append(w.order, g)
	}
	r := make(base.Row, len(row))
	r.CopyFrom(row)
	g.rows = append(g.rows, r)
	w.buffered++
	if w.buffered >= w.t.opts.BlockRowLimit {
		return w.Flush()
	}
	return nil
}

// Flush writes every buffered group. Groups are written in the order they
// were first appended to. If a group fails, it and the groups after it stay
// buffered.
func (w *WriterSession) Flush() error {
	w.closed.AssertNotClosed()
	start := crtime.NowMono()
	defer func() { w.t.metrics.FlushLatency.Observe(start.Elapsed().Seconds()) }()
	for len(w.order) > 0 {
		g := w.order[0]
		if err := w.flushGroup(g); err != nil {
			return err
		}
		w.groups.Delete(g.key)
		w.order = w.order[1:]
		w.buffered -= len(g.rows)
	}
	w.order = nil
	return nil
}

// Close flushes the buffered rows and ends the session.
func (w *WriterSession) Close() error {
	err := w.Flush()
	w.closed.Close()
	return err
}

func (w *WriterSession) flushGroup(g *pendingGroup) error {
	t := w.t
	cmp := t.opts.Comparator
	rows := g.rows
	// A stable sort keeps rows with equal sort keys in append order, so the
	// last appended version is last.
	slices.SortStableFunc(rows, func(a, b base.Row) int {
		return base.CompareRows(cmp, t.sortKey, a, b)
	})

	var existing []*catalog.Entry
	if w.merge {
		rows = lastPerKey(cmp, t.sortKey, rows)
		// lastPerKey compacts in place; a failed flush retries the compacted
		// rows.
		g.rows = rows
		entries, err := t.cat.Fetch(rows[0])
		switch {
		case errors.Is(err, base.ErrMergeUnsupported):
			t.opts.Logger.Infof("table %s: %v; appending without merging", t.name, err)
			t.metrics.MergeDegraded.Inc()
			w.merge = false
			w.stats.Degraded = true
		case err != nil:
			return err
		default:
			existing = entries
		}
	}

	batch := t.cat.NextBatch()
	builder := block.MakeBuilder(t.schema.Kinds(), nil)
	for _, r := range rows {
		builder.Add(r)
	}
	blk := builder.Finish(batch)
	if len(existing) > 0 {
		var err error
		if blk, err = w.mergeGroup(existing, blk); err != nil {
			return err
		}
	}

	coll := zonerecord.MakeCollector(t.schema.Kinds(), cmp)
	var row base.Row
	for i := 0; i < blk.NumRows(); i++ {
		row = blk.Row(i, row)
		coll.AppendRow(row)
	}
	stats := coll.Finish()
	if w.merge {
		// The block holds the whole group, deduplicated.
		stats.SetLogicalRowCount(uint64(blk.NumRows()))
	}

	desc, err := block.Write(t.opts.Codec, []byte(fmt.Sprintf("%s/%08d", t.name, batch)), blk)
	if err != nil {
		return err
	}
	data, err := t.cat.Pack(batch, desc.Encode(nil), stats)
	if err == nil {
		retired := make([]uint64, len(existing))
		for i, e := range existing {
			retired[i] = e.ID
		}
		_, err = t.cat.Store(data, retired)
	}
	if err != nil {
		w.removeBlock(desc.Locator)
		return err
	}
	for _, e := range existing {
		rec, err := e.Record()
		if err != nil {
			continue
		}
		if old, err := block.DecodeDescriptor(rec.Locator()); err == nil {
			w.removeBlock(old.Locator)
		}
	}

	w.stats.Blocks++
	w.stats.Rows += blk.NumRows()
	t.metrics.BlocksWritten.Inc()
	t.metrics.RowsWritten.Add(float64(blk.NumRows()))
	if len(existing) > 0 {
		w.stats.MergedGroups++
		w.stats.Retired += len(existing)
		t.metrics.GroupsMerged.Inc()
	}
	return nil
}

// mergeGroup merges the blocks of the existing zone records of a group with
// the new block, which carries the newest batch, into one block.
func (w *WriterSession) mergeGroup(existing []*catalog.Entry, blk *block.Block) (*block.Block, error) {
	t := w.t
	w.engine.Begin(merge.Context{
		SortKey:    t.sortKey,
		MergeKey:   t.sortKey,
		Direction:  base.Forward,
		Comparator: t.opts.Comparator,
	})
	defer w.engine.End()
	for _, e := range existing {
		rec, err := e.Record()
		if err != nil {
			return nil, err
		}
		old, err := t.loadBlock(rec)
		if err != nil {
			return nil, err
		}
		w.engine.Push(old, rec, true)
	}
	w.engine.Push(blk, nil, true)

	builder := block.MakeBuilder(t.schema.Kinds(), nil)
	rb := merge.MakeRowBuffer(len(t.schema))
	for w.engine.NextMergedRow(&rb) {
		builder.Add(rb.Row())
	}
	return builder.Finish(blk.Batch()), nil
}

func (w *WriterSession) removeBlock(locator []byte) {
	if r, ok := w.t.opts.Codec.(block.Remover); ok {
		r.Remove(locator)
	}
}

// lastPerKey keeps the last of every run of rows equal on the given columns.
// rows must be sorted on them.
func lastPerKey(cmp base.Comparator, cols []int, rows []base.Row) []base.Row {
	out := rows[:0]
	for i, r := range rows {
		if i+1 < len(rows) && base.CompareRows(cmp, cols, r, rows[i+1]) == 0 {
			continue
		}
		out = append(out, r)
	}
	return out
}
