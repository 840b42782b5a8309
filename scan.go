// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonestore

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/catalog"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/invariants"
	"github.com/cockroachdb/zonestore/merge"
	"github.com/cockroachdb/zonestore/zoneindex"
	"github.com/cockroachdb/zonestore/zonerecord"
)

// ScanOptions configure a Scanner.
type ScanOptions struct {
	// Predicates restrict the produced rows. They are also used to prune
	// blocks and to choose a zone index.
	Predicates []base.Predicate
	// OrderKeys is the order the caller would like rows in. It only guides
	// the choice of zone index; rows are always produced group by group in
	// the table's sort key order.
	OrderKeys []int
	// Direction defaults to base.Forward.
	Direction base.Direction
	// Merged produces one row per distinct sort key, the newest version.
	// Otherwise every stored version of a row is produced.
	Merged bool
	// Snapshot, if non-zero, ignores blocks with a higher batch number.
	Snapshot uint64
}

// ScanStats counts the work of a Scanner.
type ScanStats struct {
	// Candidates is the number of zone records the catalog produced.
	Candidates int
	// Pruned is the number of blocks skipped because their zone record
	// cannot match the predicates.
	Pruned int
	// PrunedGroups is the number of groups skipped because their combined
	// zone record cannot match the predicates.
	PrunedGroups int
	// Groups is the number of logical groups read.
	Groups int
	// BlocksRead is the number of blocks loaded.
	BlocksRead int
	// Merged is the number of rows folded into a newer version.
	Merged int
}

// Scanner produces the rows of a table matching a set of predicates.
type Scanner struct {
	t        *Table
	opts     ScanOptions
	decision zoneindex.Decision
	indexed  bool
	grouper  *merge.Grouper
	engine   merge.Engine
	rb       merge.RowBuffer
	loaded   bool
	err      error
	stats    ScanStats
	closed   invariants.CloseChecker
}

// NewScanner starts a scan. Scans see the catalog as of their creation.
func (t *Table) NewScanner(opts ScanOptions) (*Scanner, error) {
	if opts.Direction == 0 {
		opts.Direction = base.Forward
	}
	if err := t.validatePredicates(opts.Predicates); err != nil {
		return nil, err
	}
	s := &Scanner{t: t, opts: opts, rb: merge.MakeRowBuffer(len(t.schema))}

	var entries []*catalog.Entry
	s.decision, s.indexed = t.cat.DecideIndex(opts.OrderKeys, opts.Predicates)
	if s.indexed {
		zs := t.cat.Scan(s.decision, opts.Predicates, opts.Direction)
		for e, ok := zs.Next(); ok; e, ok = zs.Next() {
			if opts.Snapshot == 0 || e.Batch <= opts.Snapshot {
				entries = append(entries, e)
			}
		}
	} else {
		t.opts.Logger.Infof("table %s: no usable zone index; scanning the whole catalog", t.name)
		t.metrics.LegacyScans.Inc()
		entries = t.cat.FetchAll(opts.Snapshot)
	}
	s.stats.Candidates = len(entries)

	// Every version of a row shares its sort key, so predicates on sort key
	// columns may drop single blocks of a merged scan. Other predicates are
	// decided by the newest version and only prune whole groups.
	prunePreds := opts.Predicates
	if opts.Merged {
		prunePreds = nil
		for _, p := range opts.Predicates {
			if slices.Contains(t.sortKey, p.Col) {
				prunePreds = append(prunePreds, p)
			}
		}
	}
	candidates := entries[:0]
	for _, e := range entries {
		rec, err := e.Record()
		if err != nil {
			return nil, err
		}
		if !zonerecord.MayMatch(rec, prunePreds, t.opts.Comparator) {
			s.stats.Pruned++
			continue
		}
		candidates = append(candidates, e)
	}
	if err := t.sortByGroup(candidates, opts.Direction); err != nil {
		return nil, err
	}
	src := merge.SliceSource(candidates)
	s.grouper = merge.NewGrouper(&src, t.groupKeys, len(t.schema), t.opts.Comparator)
	return s, nil
}

// validatePredicates checks predicate columns and operand kinds.
func (t *Table) validatePredicates(preds []base.Predicate) error {
	for _, p := range preds {
		if p.Col < 0 || p.Col >= len(t.schema) {
			return errors.Errorf("table %s: predicate on column %d out of range", t.name, errors.Safe(p.Col))
		}
		if !p.Value.IsNull() && p.Value.Kind() != t.schema[p.Col].Kind {
			return errors.Errorf("table %s: predicate %s compares column %s of kind %s with %s",
				t.name, p, t.schema[p.Col].Name, t.schema[p.Col].Kind, p.Value.Kind())
		}
		if p.Op != base.OpEq && !t.schema[p.Col].Kind.Ordered() {
			return errors.Errorf("table %s: predicate %s on unordered column %s", t.name, p, t.schema[p.Col].Name)
		}
	}
	return nil
}

// sortByGroup orders zone records so that the records of one group are
// adjacent: by bucket-aligned group value in scan direction, then by batch.
func (t *Table) sortByGroup(entries []*catalog.Entry, dir base.Direction) error {
	type keyed struct {
		e   *catalog.Entry
		key base.Row
	}
	ks := make([]keyed, len(entries))
	for i, e := range entries {
		rec, err := e.Record()
		if err != nil {
			return err
		}
		key := make(base.Row, len(t.groupKeys))
		for j, g := range t.groupKeys {
			if v, _, ok := rec.Min(g.Col); ok {
				key[j] = t.opts.Comparator.Bucket(g.BucketWidth, v)
			}
		}
		ks[i] = keyed{e: e, key: key}
	}
	cols := make([]int, len(t.groupKeys))
	for i := range cols {
		cols[i] = i
	}
	slices.SortStableFunc(ks, func(a, b keyed) int {
		if r := base.CompareRows(t.opts.Comparator, cols, a.key, b.key); r != 0 {
			return r * int(dir)
		}
		switch {
		case a.e.Batch < b.e.Batch:
			return -1
		case a.e.Batch > b.e.Batch:
			return +1
		}
		return 0
	})
	for i := range ks {
		entries[i] = ks[i].e
	}
	return nil
}

// Decision returns the zone index the scan uses, or false for a legacy scan
// of the whole catalog.
func (s *Scanner) Decision() (zoneindex.Decision, bool) { return s.decision, s.indexed }

// Stats returns the scan's counters.
func (s *Scanner) Stats() ScanStats { return s.stats }

// Err returns the error that ended the scan, if any.
func (s *Scanner) Err() error { return s.err }

// nextGroup returns the next logical group that may match the predicates.
func (s *Scanner) nextGroup() (merge.Group, bool) {
	before := s.grouper.Rejected
	g, ok := s.grouper.NextMatching(s.opts.Predicates)
	s.stats.PrunedGroups += s.grouper.Rejected - before
	if !ok {
		s.err = s.grouper.Err()
	}
	return g, ok
}

// loadGroup pushes the blocks of a group into the merge engine.
func (s *Scanner) loadGroup(g merge.Group) error {
	s.engine.Begin(merge.Context{
		SortKey:    s.t.sortKey,
		MergeKey:   s.t.sortKey,
		Direction:  s.opts.Direction,
		Comparator: s.t.opts.Comparator,
	})
	overlap := g.Len() > 1
	for _, rec := range g.Records {
		b, err := s.t.loadBlock(rec)
		if err != nil {
			return err
		}
		s.stats.BlocksRead++
		// A block written by a merging writer holds no duplicates.
		s.engine.Push(b, rec, overlap || !rec.LogicalRowCountValid())
	}
	s.stats.Groups++
	s.loaded = true
	return nil
}

// Next returns the next row, or false when the scan is exhausted or failed.
// The returned row is only valid until the next call.
func (s *Scanner) Next() (base.Row, bool) {
	s.closed.AssertNotClosed()
	for s.err == nil {
		if !s.loaded || s.engine.Empty() {
			if s.loaded {
				s.finishGroup()
			}
			g, ok := s.nextGroup()
			if !ok {
				return nil, false
			}
			if err := s.loadGroup(g); err != nil {
				s.err = err
				return nil, false
			}
			continue
		}
		if s.opts.Merged {
			s.engine.NextMergedRow(&s.rb)
		} else {
			s.engine.PopSingleRow(&s.rb)
		}
		if s.matches(s.rb.Row()) {
			return s.rb.Row(), true
		}
	}
	return nil, false
}

func (s *Scanner) finishGroup() {
	merged := s.engine.Stats().Merged
	s.stats.Merged += merged
	s.t.metrics.RowsMerged.Add(float64(merged))
	s.engine.End()
	s.loaded = false
}

func (s *Scanner) matches(row base.Row) bool {
	for _, p := range s.opts.Predicates {
		if !p.Matches(s.t.opts.Comparator, row) {
			return false
		}
	}
	return true
}

// Close ends the scan. It may be called before the scan is exhausted.
func (s *Scanner) Close() error {
	s.closed.Close()
	if s.loaded {
		s.finishGroup()
	}
	s.t.metrics.BlocksPruned.Add(float64(s.stats.Pruned))
	return s.err
}
