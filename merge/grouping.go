// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package merge

import (
	"slices"

	"github.com/cockroachdb/zonestore/catalog"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/zonerecord"
)

// Source produces zone records in scan order. *catalog.ZoneScan implements
// it.
type Source interface {
	Next() (*catalog.Entry, bool)
}

// SliceSource is a Source over a fixed list of entries.
type SliceSource []*catalog.Entry

// Next implements Source.
func (s *SliceSource) Next() (*catalog.Entry, bool) {
	if len(*s) == 0 {
		return nil, false
	}
	e := (*s)[0]
	*s = (*s)[1:]
	return e, true
}

// Group is a run of blocks that share a group-key value and are merged as
// one logical block. Entries are sorted by batch, oldest first.
type Group struct {
	Entries []*catalog.Entry
	Records []zonerecord.Record
}

// Len returns the number of blocks in the group.
func (g *Group) Len() int { return len(g.Entries) }

// Grouper clusters consecutive zone records of a Source into Groups. Two
// records belong to the same group if every group-key column has the same
// minimum, after bucket alignment.
type Grouper struct {
	src        Source
	keys       []base.GroupKey
	numColumns int
	cmp        base.Comparator

	pending    *catalog.Entry
	pendingRec zonerecord.Record
	err        error
	// Rejected counts the groups NextMatching skipped.
	Rejected int
}

// NewGrouper returns a Grouper over src for the given group keys.
func NewGrouper(src Source, keys []base.GroupKey, numColumns int, cmp base.Comparator) *Grouper {
	return &Grouper{src: src, keys: keys, numColumns: numColumns, cmp: cmp}
}

// Err returns the error that ended the grouping, if any. Next and
// NextMatching return false after an error.
func (g *Grouper) Err() error { return g.err }

func (g *Grouper) read() (*catalog.Entry, zonerecord.Record, bool) {
	if g.pending != nil {
		e, rec := g.pending, g.pendingRec
		g.pending, g.pendingRec = nil, nil
		return e, rec, true
	}
	e, ok := g.src.Next()
	if !ok {
		return nil, nil, false
	}
	rec, err := e.Record()
	if err != nil {
		g.err = err
		return nil, nil, false
	}
	return e, rec, true
}

// groupMin returns the bucket-aligned minimum of a group-key column.
func (g *Grouper) groupMin(rec zonerecord.Record, k base.GroupKey) base.Datum {
	v, _, ok := rec.Min(k.Col)
	if !ok {
		return base.Null
	}
	return g.cmp.Bucket(k.BucketWidth, v)
}

func (g *Grouper) overlaps(first, rec zonerecord.Record) bool {
	for _, k := range g.keys {
		if g.cmp.Compare(g.groupMin(first, k), g.groupMin(rec, k)) != 0 {
			return false
		}
	}
	return true
}

// Next returns the next group, or false when the source is exhausted or an
// error occurred.
func (g *Grouper) Next() (Group, bool) {
	if g.err != nil {
		return Group{}, false
	}
	e, rec, ok := g.read()
	if !ok {
		return Group{}, false
	}
	grp := Group{Entries: []*catalog.Entry{e}, Records: []zonerecord.Record{rec}}
	for {
		e, rec, ok := g.read()
		if !ok {
			if g.err != nil {
				return Group{}, false
			}
			break
		}
		if !g.overlaps(grp.Records[0], rec) {
			g.pending, g.pendingRec = e, rec
			break
		}
		grp.Entries = append(grp.Entries, e)
		grp.Records = append(grp.Records, rec)
	}
	sortGroup(&grp)
	return grp, true
}

// NextMatching returns the next group whose combined zone record may match
// the predicates. Groups that cannot match are skipped, not treated as the
// end of the scan.
func (g *Grouper) NextMatching(preds []base.Predicate) (Group, bool) {
	for {
		grp, ok := g.Next()
		if !ok {
			return Group{}, false
		}
		if len(preds) == 0 || zonerecord.MayMatch(grp.Combined(g.numColumns, g.cmp), preds, g.cmp) {
			return grp, true
		}
		g.Rejected++
	}
}

// Combined returns the combined statistics of the group's records.
func (g *Group) Combined(numColumns int, cmp base.Comparator) *zonerecord.Combined {
	return zonerecord.Combine(g.Records, numColumns, cmp)
}

func sortGroup(g *Group) {
	idx := make([]int, len(g.Entries))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		ea, eb := g.Entries[a], g.Entries[b]
		switch {
		case ea.Batch < eb.Batch:
			return -1
		case ea.Batch > eb.Batch:
			return +1
		}
		return 0
	})
	entries := make([]*catalog.Entry, len(idx))
	recs := make([]zonerecord.Record, len(idx))
	for i, j := range idx {
		entries[i], recs[i] = g.Entries[j], g.Records[j]
	}
	g.Entries, g.Records = entries, recs
}
