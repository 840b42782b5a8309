// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package catalog implements the zone catalog of a table: the set of packed
// zone records, one per block, together with the zone indexes over them.
//
// The catalog is the only mutable structure of a table. Writers are expected
// to be serialized by the caller; the catalog's mutex only guarantees that
// concurrent readers observe either the state before or after a Store.
package catalog

import (
	"cmp"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/zoneindex"
	"github.com/cockroachdb/zonestore/zonerecord"
)

// Options configure a zone catalog.
type Options struct {
	// Layout is the zone record layout new records are packed in. Defaults to
	// LayoutV2.
	Layout zonerecord.Layout
	// Comparator defaults to base.DefaultComparator.
	Comparator base.Comparator
	// Logger defaults to base.DefaultLogger.
	Logger base.Logger
	// Declaration overrides the declared column types of the catalog. It is
	// used to open catalogs written by other versions; the layout is detected
	// from it and Layout is ignored.
	Declaration []zonerecord.FieldDecl
	// DisableGroupKeyIndexes creates the catalog without group-key indexes.
	// Write-time fetches then fail with ErrMergeUnsupported.
	DisableGroupKeyIndexes bool
}

func (o *Options) ensureDefaults() {
	if o.Layout == 0 {
		o.Layout = zonerecord.LayoutV2
	}
	if o.Comparator == nil {
		o.Comparator = base.DefaultComparator
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
}

// Catalog is the zone catalog of one table.
type Catalog struct {
	name      string
	schema    base.Schema
	kinds     []base.Kind
	groupKeys []base.GroupKey
	orderKeys []int
	opts      Options
	decoder   *zonerecord.Decoder
	defs      []zoneindex.Definition

	mu struct {
		sync.Mutex
		nextID    uint64
		lastBatch uint64
		entries   map[uint64]*Entry
		indexes   []*zoneindex.Index
	}
}

// Create creates the zone catalog of a table. groupKeys identify the logical
// groups rows are merged within, orderKeys the table's global scan order.
// Order indexes are created if there are order keys, group-key indexes if
// there are group keys.
func Create(
	name string, schema base.Schema, groupKeys []base.GroupKey, orderKeys []int, opts Options,
) (*Catalog, error) {
	opts.ensureDefaults()
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	for _, g := range groupKeys {
		if g.Col < 0 || g.Col >= len(schema) {
			return nil, errors.Errorf("zonestore: group key column %d out of range", errors.Safe(g.Col))
		}
		if seen[g.Col] {
			return nil, errors.Errorf("zonestore: duplicate group key column %s", schema[g.Col].Name)
		}
		seen[g.Col] = true
		if k := schema[g.Col].Kind; !k.Ordered() {
			return nil, errors.Errorf("zonestore: group key column %s has unordered kind %s", schema[g.Col].Name, k)
		} else if g.Parametrized() && !k.Bucketable() {
			return nil, errors.Errorf("zonestore: group key column %s of kind %s cannot be bucketed", schema[g.Col].Name, k)
		}
	}
	for _, col := range orderKeys {
		if col < 0 || col >= len(schema) {
			return nil, errors.Errorf("zonestore: order key column %d out of range", errors.Safe(col))
		}
		if k := schema[col].Kind; !k.Ordered() {
			return nil, errors.Errorf("zonestore: order key column %s has unordered kind %s", schema[col].Name, k)
		}
	}

	decl := opts.Declaration
	if decl == nil {
		decl = opts.Layout.Declaration()
	}
	c := &Catalog{
		name:      name,
		schema:    schema,
		kinds:     schema.Kinds(),
		groupKeys: groupKeys,
		orderKeys: orderKeys,
		opts:      opts,
	}
	var err error
	c.decoder, err = zonerecord.NewDecoder(name, decl, c.kinds, opts.Comparator)
	if err != nil {
		return nil, err
	}
	c.opts.Layout = c.decoder.Layout()

	for _, def := range zoneindex.BuildDefinitions(name, groupKeys, orderKeys) {
		if opts.DisableGroupKeyIndexes && def.Kind.IsGroup() {
			continue
		}
		c.defs = append(c.defs, def)
		c.mu.indexes = append(c.mu.indexes, zoneindex.New(def, opts.Comparator))
	}
	c.mu.entries = make(map[uint64]*Entry)
	return c, nil
}

// Name returns the name of the table.
func (c *Catalog) Name() string { return c.name }

// Schema returns the data columns of the table.
func (c *Catalog) Schema() base.Schema { return c.schema }

// Kinds returns the kinds of the data columns.
func (c *Catalog) Kinds() []base.Kind { return c.kinds }

// GroupKeys returns the group keys of the table.
func (c *Catalog) GroupKeys() []base.GroupKey { return c.groupKeys }

// OrderKeys returns the order keys of the table.
func (c *Catalog) OrderKeys() []int { return c.orderKeys }

// Layout returns the zone record layout of the catalog.
func (c *Catalog) Layout() zonerecord.Layout { return c.opts.Layout }

// Comparator returns the comparator of the catalog.
func (c *Catalog) Comparator() base.Comparator { return c.opts.Comparator }

// Definitions returns the zone indexes of the catalog, in creation order.
func (c *Catalog) Definitions() []zoneindex.Definition { return c.defs }

// DecideIndex picks the zone index serving a scan with the given order keys
// and predicates. See zoneindex.Decide.
func (c *Catalog) DecideIndex(orderKeys []int, preds []base.Predicate) (zoneindex.Decision, bool) {
	return zoneindex.Decide(c.defs, orderKeys, preds, base.EqualityColumns(preds))
}

// GroupValue returns the bucket-aligned group key values of a row, in group
// key order.
func (c *Catalog) GroupValue(row base.Row) []base.Datum {
	v := make([]base.Datum, len(c.groupKeys))
	for i, g := range c.groupKeys {
		v[i] = c.opts.Comparator.Bucket(g.BucketWidth, row[g.Col])
	}
	return v
}

// NextBatch allocates a batch number. Batch numbers increase monotonically.
func (c *Catalog) NextBatch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.lastBatch++
	return c.mu.lastBatch
}

// Pack packs block statistics into a zone record in the catalog's layout.
func (c *Catalog) Pack(batch uint64, locator []byte, stats *zonerecord.BlockStats) ([]byte, error) {
	return zonerecord.Pack(c.opts.Layout, c.kinds, batch, locator, stats)
}

// Len returns the number of zone records in the catalog.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mu.entries)
}

// Get returns the zone record with the given id.
func (c *Catalog) Get(id uint64) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.mu.entries[id]
	if !ok {
		return nil, errors.Mark(errors.Errorf("zone catalog %s: zone record %d", c.name, errors.Safe(id)), base.ErrNotFound)
	}
	return e, nil
}

// Store adds a packed zone record to the catalog, retiring the zone records
// it supersedes, and returns its id.
//
// Replacing a logical group collapses its records: with a single retired
// record, the new record takes its place under the same id; with several,
// the new record is inserted and every retired record is deleted. The record
// is decoded and every retired id is validated before the catalog is touched,
// so a failed Store leaves the catalog unchanged.
func (c *Catalog) Store(data []byte, retired []uint64) (uint64, error) {
	rec, err := c.decoder.Decode(data)
	if err != nil {
		return 0, err
	}
	e := &Entry{Batch: rec.Batch(), data: slices.Clone(data), decoder: c.decoder}
	e.once.Do(func() { e.once.rec = rec })
	e.keys = make([][]base.Datum, len(c.defs))
	for i := range c.defs {
		e.keys[i] = zoneindex.KeyOf(&c.defs[i], rec, c.opts.Comparator)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range retired {
		if _, ok := c.mu.entries[id]; !ok {
			return 0, errors.Mark(errors.Errorf("zone catalog %s: retired zone record %d", c.name, errors.Safe(id)), base.ErrNotFound)
		}
		if slices.Contains(retired[:i], id) {
			return 0, errors.Errorf("zone catalog %s: zone record %d retired twice", c.name, errors.Safe(id))
		}
	}
	if rec.Batch() > c.mu.lastBatch {
		c.mu.lastBatch = rec.Batch()
	}

	if len(retired) == 1 {
		e.ID = retired[0]
		c.removeLocked(e.ID)
		c.insertLocked(e)
		return e.ID, nil
	}
	c.mu.nextID++
	e.ID = c.mu.nextID
	c.insertLocked(e)
	for _, id := range retired {
		c.removeLocked(id)
	}
	if len(retired) > 1 {
		c.opts.Logger.Infof("zone catalog %s: collapsed %d zone records into %d", c.name, len(retired), e.ID)
	}
	return e.ID, nil
}

func (c *Catalog) insertLocked(e *Entry) {
	c.mu.entries[e.ID] = e
	for i, x := range c.mu.indexes {
		x.Insert(e.keys[i], e.ID)
	}
}

func (c *Catalog) removeLocked(id uint64) {
	e := c.mu.entries[id]
	delete(c.mu.entries, id)
	for i, x := range c.mu.indexes {
		if !x.Delete(e.keys[i], id) {
			panic(errors.AssertionFailedf("zone catalog %s: zone record %d missing from index %s",
				c.name, id, x.Definition().Name))
		}
	}
}

// FetchAll returns every zone record, ordered by batch. A non-zero snapshot
// excludes records with a higher batch number. It is the legacy full scan
// used when no zone index serves a scan.
func (c *Catalog) FetchAll(snapshot uint64) []*Entry {
	c.mu.Lock()
	entries := make([]*Entry, 0, len(c.mu.entries))
	for _, e := range c.mu.entries {
		if snapshot == 0 || e.Batch <= snapshot {
			entries = append(entries, e)
		}
	}
	c.mu.Unlock()
	slices.SortFunc(entries, compareEntries)
	return entries
}

// Scan returns a scan over the zone records that may hold rows satisfying
// preds, in the order of the decided index and the given direction.
func (c *Catalog) Scan(d zoneindex.Decision, preds []base.Predicate, dir base.Direction) *ZoneScan {
	if d.Definition == nil || d.Index < 0 || d.Index >= len(c.defs) {
		panic(errors.AssertionFailedf("zone catalog %s: invalid index decision", c.name))
	}
	keys := zoneindex.TranslatePredicates(&c.defs[d.Index], preds, c.opts.Comparator)

	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.mu.indexes[d.Index].Scan(keys, dir)
	s := &ZoneScan{entries: make([]*Entry, len(ids))}
	for i, id := range ids {
		s.entries[i] = c.mu.entries[id]
	}
	return s
}

// Fetch returns the zone records of the logical group the row belongs to,
// ordered by batch. It is used on the write path to find the records a new
// block must be merged with, and fails with ErrMergeUnsupported if the
// catalog has no group-key index.
func (c *Catalog) Fetch(row base.Row) ([]*Entry, error) {
	pos := slices.IndexFunc(c.defs, func(d zoneindex.Definition) bool {
		return d.Kind == zoneindex.KindGroupKey
	})
	if pos < 0 {
		return nil, errors.Mark(errors.Newf("zone catalog %s has no group-key index", c.name), base.ErrMergeUnsupported)
	}
	def := &c.defs[pos]
	key := make([]base.Datum, len(def.Keys))
	for i, kc := range def.Keys {
		key[i] = c.opts.Comparator.Bucket(kc.BucketWidth, row[kc.Col])
	}

	c.mu.Lock()
	ids := c.mu.indexes[pos].Lookup(key)
	entries := make([]*Entry, len(ids))
	for i, id := range ids {
		entries[i] = c.mu.entries[id]
	}
	c.mu.Unlock()
	slices.SortFunc(entries, compareEntries)
	return entries, nil
}

func compareEntries(a, b *Entry) int {
	return cmp.Or(cmp.Compare(a.Batch, b.Batch), cmp.Compare(a.ID, b.ID))
}
