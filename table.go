// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package zonestore implements an append-oriented columnar table whose
// blocks are annotated with zone records.
//
// A Table binds a zone catalog, a block codec and options. Rows are written
// through a WriterSession, which groups them by group key, merges them with
// the existing blocks of their group when merging on conflict, and stores one
// block and zone record per group. Rows are read through a Scanner, which
// prunes blocks using zone records, clusters the remaining blocks into
// logical groups and merges each group into one ordered, deduplicated row
// stream. Aggregates are answered from zone records where the records prove
// the answer, and from rows otherwise.
package zonestore

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/block"
	"github.com/cockroachdb/zonestore/catalog"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/zonerecord"
)

// Table is a columnar table.
type Table struct {
	name      string
	schema    base.Schema
	groupKeys []base.GroupKey
	orderKeys []int
	// sortKey is the physical sort order of every block: the group-key
	// columns followed by the order keys not already among them.
	sortKey []int
	opts    *Options
	cat     *catalog.Catalog
	metrics *Metrics
}

// Open creates a table. Every block of the table holds the rows of one
// group-key value; orderKeys is the table's scan order within a group.
func Open(
	name string, schema base.Schema, groupKeys []base.GroupKey, orderKeys []int, opts *Options,
) (*Table, error) {
	opts = opts.Clone().EnsureDefaults()
	cat, err := catalog.Create(name, schema, groupKeys, orderKeys, catalog.Options{
		Layout:                 opts.Layout,
		Comparator:             opts.Comparator,
		Logger:                 opts.Logger,
		DisableGroupKeyIndexes: opts.DisableGroupKeyIndexes,
	})
	if err != nil {
		return nil, err
	}
	t := &Table{
		name:      name,
		schema:    schema,
		groupKeys: groupKeys,
		orderKeys: orderKeys,
		opts:      opts,
		cat:       cat,
		metrics:   opts.Metrics,
	}
	if t.metrics == nil {
		t.metrics = NewMetrics("zonestore", nil)
	}
	t.sortKey = base.GroupKeyColumns(groupKeys)
	for _, col := range orderKeys {
		if !slices.Contains(t.sortKey, col) {
			t.sortKey = append(t.sortKey, col)
		}
	}
	if err := t.checkMergeKey(opts.OnConflict); err != nil {
		return nil, err
	}
	return t, nil
}

// Name returns the name of the table.
func (t *Table) Name() string { return t.name }

// Schema returns the columns of the table.
func (t *Table) Schema() base.Schema { return t.schema }

// Catalog returns the zone catalog of the table.
func (t *Table) Catalog() *catalog.Catalog { return t.cat }

// Options returns the effective options of the table.
func (t *Table) Options() *Options { return t.opts }

// Metrics returns the metrics the table reports to.
func (t *Table) Metrics() *Metrics { return t.metrics }

// SortKey returns the columns every block is sorted on. Rows equal on the
// sort key are the same logical row when merging.
func (t *Table) SortKey() []int { return t.sortKey }

// checkMergeKey verifies that every conflict column is a group-key column,
// and that the conflict columns together with the order keys cover every
// group key. Rows conflict when they agree on the conflict columns and the
// order keys, and only rows of one group are ever merged, so a group key left
// out would ask for conflicts across groups.
func (t *Table) checkMergeKey(cols []int) error {
	name := func(col int) string {
		if col >= 0 && col < len(t.schema) {
			return t.schema[col].Name
		}
		return fmt.Sprintf("%d", col)
	}
	for _, col := range cols {
		if !slices.ContainsFunc(t.groupKeys, func(g base.GroupKey) bool { return g.Col == col }) {
			return errors.Mark(
				errors.Newf("table %s: conflict column %s is not a group key", t.name, name(col)),
				base.ErrUnsupportedMergeKey)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	for _, g := range t.groupKeys {
		if !slices.Contains(cols, g.Col) && !slices.Contains(t.orderKeys, g.Col) {
			return errors.Mark(
				errors.Newf("table %s: conflict columns leave out group key %s", t.name, name(g.Col)),
				base.ErrUnsupportedMergeKey)
		}
	}
	return nil
}

// loadBlock reads the block of a zone record back through the codec.
func (t *Table) loadBlock(rec zonerecord.Record) (*block.Block, error) {
	desc, err := block.DecodeDescriptor(rec.Locator())
	if err != nil {
		return nil, errors.Wrapf(err, "table %s: block %d", t.name, errors.Safe(rec.Batch()))
	}
	b, err := block.Load(t.opts.Codec, desc, rec.Batch())
	if err != nil {
		return nil, errors.Wrapf(err, "table %s: block %d", t.name, errors.Safe(rec.Batch()))
	}
	t.metrics.BlocksRead.Inc()
	return b, nil
}

// validateRow checks a row against the schema.
func (t *Table) validateRow(row base.Row) error {
	if len(row) != len(t.schema) {
		return errors.Errorf("table %s: row has %d columns, table has %d",
			t.name, errors.Safe(len(row)), errors.Safe(len(t.schema)))
	}
	for i, v := range row {
		if !v.IsNull() && v.Kind() != t.schema[i].Kind {
			return errors.Errorf("table %s: column %s holds %s, expected %s",
				t.name, t.schema[i].Name, v.Kind(), t.schema[i].Kind)
		}
	}
	return nil
}
