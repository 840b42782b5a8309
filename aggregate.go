// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonestore

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/merge"
	"github.com/cockroachdb/zonestore/zonerecord"
)

// AggFunc is an aggregate function.
type AggFunc uint8

const (
	AggCount AggFunc = iota
	AggSum
	AggMin
	AggMax
	// AggFirst is the first non-NULL value in sort key order.
	AggFirst
	// AggLast is the last non-NULL value in sort key order.
	AggLast
)

var aggNames = [...]string{
	AggCount: "count",
	AggSum:   "sum",
	AggMin:   "min",
	AggMax:   "max",
	AggFirst: "first",
	AggLast:  "last",
}

// String implements fmt.Stringer.
func (f AggFunc) String() string {
	if int(f) < len(aggNames) {
		return aggNames[f]
	}
	return "unknown"
}

// ParseAggFunc parses the name of an aggregate function.
func ParseAggFunc(s string) (AggFunc, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range aggNames {
		if name == s {
			return AggFunc(f), nil
		}
	}
	return 0, errors.Errorf("zonestore: unknown aggregate %q", s)
}

// Aggregate is one aggregate of a table column. Col is -1 for count(*).
type Aggregate struct {
	Func AggFunc
	Col  int
}

// AggregateStats reports how an aggregate query was answered.
type AggregateStats struct {
	// Groups is the number of logical groups that contributed.
	Groups int
	// PushedDown is the number of groups answered from their zone record
	// alone.
	PushedDown int
	// RowsRead is the number of groups whose rows had to be read.
	RowsRead int
	// Scan holds the counters of the underlying scan.
	Scan ScanStats
}

type aggState struct {
	Aggregate
	count int64
	sum   base.Sum
	val   base.Datum
	has   bool
}

// value returns the result of the aggregate.
func (s *aggState) value() base.Datum {
	switch s.Func {
	case AggCount:
		return base.DInt(s.count)
	case AggSum:
		if !s.has {
			return base.Null
		}
		return s.sum.Datum()
	}
	if !s.has {
		return base.Null
	}
	return s.val
}

// addRow folds one row into the aggregate.
func (s *aggState) addRow(cmp base.Comparator, row base.Row) {
	if s.Col < 0 {
		s.count++
		return
	}
	v := row[s.Col]
	if v.IsNull() {
		return
	}
	if s.Func == AggCount {
		s.count++
		return
	}
	s.addValue(cmp, v)
}

// addValue folds one non-NULL value into an aggregate other than count.
func (s *aggState) addValue(cmp base.Comparator, v base.Datum) {
	switch s.Func {
	case AggSum:
		s.sum = cmp.Add(s.sum, v)
	case AggMin:
		if s.has && cmp.Compare(v, s.val) >= 0 {
			return
		}
		s.val = v.Clone()
	case AggMax:
		if s.has && cmp.Compare(v, s.val) <= 0 {
			return
		}
		s.val = v.Clone()
	case AggFirst:
		if s.has {
			return
		}
		s.val = v.Clone()
	case AggLast:
		s.val = v.Clone()
	}
	s.has = true
}

// addRecord folds the statistics of a zone record into the aggregate. It
// returns false if the record cannot answer the aggregate.
func (s *aggState) addRecord(cmp base.Comparator, rec zonerecord.Record, logical bool) bool {
	rows := rec.RowCount(logical)
	if s.Col < 0 {
		s.count += int64(rows)
		return true
	}
	nonNull := rows - rec.NullCount(s.Col)
	switch s.Func {
	case AggCount:
		s.count += int64(nonNull)
		return true
	case AggSum:
		sum, ok := rec.Sum(s.Col)
		if !ok {
			return false
		}
		if nonNull > 0 {
			s.sum = s.sum.Merge(sum)
			s.has = true
		}
		return true
	}
	if nonNull == 0 {
		return true
	}
	var v base.Datum
	var ok bool
	switch s.Func {
	case AggMin:
		v, _, ok = rec.Min(s.Col)
		ok = ok && (!s.has || cmp.Compare(v, s.val) < 0)
	case AggMax:
		v, _, ok = rec.Max(s.Col)
		ok = ok && (!s.has || cmp.Compare(v, s.val) > 0)
	case AggFirst:
		if v, ok = rec.PhysicalFirst(s.Col); !ok {
			return false
		}
		ok = !s.has
	case AggLast:
		if v, ok = rec.PhysicalLast(s.Col); !ok {
			return false
		}
	}
	if ok {
		s.val, s.has = v.Clone(), true
	}
	return true
}

// canPushDown returns true if every aggregate can be answered from the record.
func canPushDown(aggs []aggState, rec zonerecord.Record, logical bool) bool {
	for i := range aggs {
		col := aggs[i].Col
		if col < 0 || rec.NullCount(col) >= rec.RowCount(false) {
			continue
		}
		switch aggs[i].Func {
		case AggSum:
			if _, ok := rec.Sum(col); !ok {
				return false
			}
		case AggMin, AggMax:
			if _, _, ok := rec.Min(col); !ok {
				return false
			}
		case AggFirst:
			// The first value is provably the row's when it sits at row 0 or
			// at the minimum's offset.
			_, off, _ := rec.Min(col)
			if !rec.IsPhysicalFirst(col, 0, logical) && !rec.IsPhysicalFirst(col, off, logical) {
				return false
			}
		case AggLast:
			_, off, _ := rec.Max(col)
			lastRow := uint32(rec.RowCount(false) - 1)
			if !rec.IsPhysicalLast(col, lastRow, logical) && !rec.IsPhysicalLast(col, off, logical) {
				return false
			}
		}
	}
	return true
}

// uniformValue returns the single non-NULL value the column holds across the
// records. has is false if every row is NULL. ok is false if the records
// hold more than one value or cannot prove they hold one. With noNulls, a
// record with NULLs in the column also fails, since a NULL may be the newest
// version of a row.
func uniformValue(
	recs []zonerecord.Record, col int, cmp base.Comparator, noNulls bool,
) (v base.Datum, has, ok bool) {
	for _, rec := range recs {
		if noNulls && rec.NullCount(col) > 0 {
			return base.Null, false, false
		}
		if !rec.SingleValue(col, cmp, false) {
			return base.Null, false, false
		}
		lo, _, present := rec.Min(col)
		if !present {
			if rec.NullCount(col) < rec.RowCount(false) {
				// An unordered kind with values.
				return base.Null, false, false
			}
			continue
		}
		if has && cmp.Compare(lo, v) != 0 {
			return base.Null, false, false
		}
		v, has = lo, true
	}
	return v, has, true
}

func (t *Table) validateAggregates(aggs []Aggregate) error {
	for _, a := range aggs {
		if a.Col < 0 {
			if a.Func != AggCount || a.Col != -1 {
				return errors.Errorf("table %s: %s needs a column", t.name, a.Func)
			}
			continue
		}
		if a.Col >= len(t.schema) {
			return errors.Errorf("table %s: %s of column %d out of range", t.name, a.Func, errors.Safe(a.Col))
		}
		kind := t.schema[a.Col].Kind
		switch a.Func {
		case AggSum:
			if !kind.Numeric() {
				return errors.Errorf("table %s: cannot sum column %s of kind %s", t.name, t.schema[a.Col].Name, kind)
			}
		case AggMin, AggMax:
			if !kind.Ordered() {
				return errors.Errorf("table %s: %s of unordered column %s", t.name, a.Func, t.schema[a.Col].Name)
			}
		case AggCount, AggFirst, AggLast:
		default:
			return errors.Errorf("table %s: unknown aggregate %d", t.name, errors.Safe(a.Func))
		}
	}
	return nil
}

// Aggregate computes aggregates over the rows matching the predicates. If
// merged is true only the newest version of every row is counted.
//
// A group whose blocks all fully match the predicates may be answered from
// its zone records alone. A single block qualifies when, for merged
// aggregates, its logical row count is valid and first and last sit on rows
// the record can prove. Several blocks qualify for count and sum only when
// not merging, and for min, max, first and last when the column holds one
// value across all of them. Every other group is read row by row.
func (t *Table) Aggregate(
	aggs []Aggregate, preds []base.Predicate, merged bool,
) (base.Row, AggregateStats, error) {
	var stats AggregateStats
	if err := t.validateAggregates(aggs); err != nil {
		return nil, stats, err
	}
	s, err := t.NewScanner(ScanOptions{Predicates: preds, Merged: merged})
	if err != nil {
		return nil, stats, err
	}
	states := make([]aggState, len(aggs))
	for i := range aggs {
		states[i] = aggState{Aggregate: aggs[i]}
		if aggs[i].Col >= 0 {
			states[i].sum = base.ZeroSum(t.schema[aggs[i].Col].Kind)
		}
	}
	cmp := t.opts.Comparator

	for {
		g, ok := s.nextGroup()
		if !ok {
			break
		}
		stats.Groups++
		if t.pushDown(g, states, preds, merged) {
			stats.PushedDown++
			t.metrics.Aggregates.WithLabelValues("pushdown").Inc()
			continue
		}
		stats.RowsRead++
		t.metrics.Aggregates.WithLabelValues("rows").Inc()
		if err := s.loadGroup(g); err != nil {
			s.err = err
			break
		}
		for !s.engine.Empty() {
			if merged {
				s.engine.NextMergedRow(&s.rb)
			} else {
				s.engine.PopSingleRow(&s.rb)
			}
			if !s.matches(s.rb.Row()) {
				continue
			}
			for i := range states {
				states[i].addRow(cmp, s.rb.Row())
			}
		}
		s.finishGroup()
	}
	if err := s.Close(); err != nil {
		return nil, stats, err
	}
	stats.Scan = s.Stats()

	out := make(base.Row, len(states))
	for i := range states {
		out[i] = states[i].value()
	}
	return out, stats, nil
}

// pushDown answers the aggregates of a group from its zone records if
// possible.
func (t *Table) pushDown(g merge.Group, states []aggState, preds []base.Predicate, merged bool) bool {
	cmp := t.opts.Comparator
	for _, rec := range g.Records {
		if !zonerecord.FullyMatches(rec, preds, cmp) {
			return false
		}
	}
	if g.Len() == 1 {
		rec := g.Records[0]
		if merged && !rec.LogicalRowCountValid() {
			return false
		}
		if !canPushDown(states, rec, merged) {
			return false
		}
		for i := range states {
			if !states[i].addRecord(cmp, rec, merged) {
				panic(errors.AssertionFailedf("%s of column %d cannot be pushed down", states[i].Func, errors.Safe(states[i].Col)))
			}
		}
		return true
	}

	// Blocks of one group interleave in sort order and, when merging, shadow
	// each other's rows.
	type uniform struct {
		v   base.Datum
		has bool
	}
	values := make([]uniform, len(states))
	for i := range states {
		s := &states[i]
		switch {
		case s.Func == AggCount || s.Func == AggSum:
			if merged {
				return false
			}
			for _, rec := range g.Records {
				if !canPushDown(states[i:i+1], rec, false) {
					return false
				}
			}
		case s.Func == AggMin || s.Func == AggMax:
			if !merged {
				continue
			}
			fallthrough
		default:
			v, has, ok := uniformValue(g.Records, s.Col, cmp, merged)
			if !ok {
				return false
			}
			values[i] = uniform{v: v, has: has}
		}
	}
	for i := range states {
		s := &states[i]
		switch {
		case s.Func == AggCount || s.Func == AggSum || (!merged && (s.Func == AggMin || s.Func == AggMax)):
			for _, rec := range g.Records {
				if !s.addRecord(cmp, rec, false) {
					panic(errors.AssertionFailedf("%s of column %d cannot be pushed down", s.Func, errors.Safe(s.Col)))
				}
			}
		case values[i].has:
			s.addValue(cmp, values[i].v)
		}
	}
	return true
}
