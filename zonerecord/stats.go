// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonerecord

import (
	"fmt"

	"github.com/cockroachdb/zonestore/internal/base"
)

// ColumnStats accumulates the statistics of one column while a block is being
// written. Values are appended in physical storage order.
//
// Min and max track the offset of the row where the extreme occurs. A new
// extreme records the offset of its first occurrence; a tie keeps the earliest
// offset for the minimum and moves to the latest offset for the maximum.
//
// Kinds without an order skip min/max and kinds that are not numeric skip the
// sum; neither is an error.
type ColumnStats struct {
	kind base.Kind
	cmp  base.Comparator

	count     uint64
	nullCount uint64

	hasMinMax bool
	min, max  base.Datum
	minOffset uint32
	maxOffset uint32

	sum base.Sum

	hasEdges    bool
	first, last base.Datum
	// lastBuf backs last for byte kinds so that overwriting it on every append
	// does not allocate.
	lastBuf []byte
}

// MakeColumnStats returns an empty accumulator for a column of the given kind.
func MakeColumnStats(kind base.Kind, cmp base.Comparator) ColumnStats {
	return ColumnStats{kind: kind, cmp: cmp, sum: base.ZeroSum(kind)}
}

// Append folds the value at the next physical row offset into the statistics.
func (s *ColumnStats) Append(v base.Datum, isNull bool) {
	offset := uint32(s.count)
	s.count++
	if isNull || v.IsNull() {
		s.nullCount++
		return
	}

	if s.kind.Ordered() {
		if !s.hasMinMax {
			s.hasMinMax = true
			s.min, s.minOffset = v.Clone(), offset
			s.max, s.maxOffset = v.Clone(), offset
		} else {
			if s.cmp.Compare(v, s.min) < 0 {
				s.min, s.minOffset = v.Clone(), offset
			}
			if c := s.cmp.Compare(v, s.max); c > 0 {
				s.max, s.maxOffset = v.Clone(), offset
			} else if c == 0 {
				s.maxOffset = offset
			}
		}
	}
	if s.kind.Numeric() {
		s.sum = s.cmp.Add(s.sum, v)
	}

	if !s.hasEdges {
		s.hasEdges = true
		s.first = v.Clone()
	}
	if b := v.Bytes(); b != nil {
		s.lastBuf = append(s.lastBuf[:0], b...)
		s.last = base.MakeDatum(v.Kind(), 0, 0, s.lastBuf)
	} else {
		s.last = v
	}
}

// Reset restores the accumulator to its state before the first Append. No
// accumulated value is retained.
func (s *ColumnStats) Reset() {
	*s = MakeColumnStats(s.kind, s.cmp)
}

// Kind returns the kind of the column.
func (s *ColumnStats) Kind() base.Kind { return s.kind }

// Count returns the number of appended rows, NULLs included.
func (s *ColumnStats) Count() uint64 { return s.count }

// NullCount returns the number of appended NULLs.
func (s *ColumnStats) NullCount() uint64 { return s.nullCount }

// Min returns the minimum non-NULL value and the offset of the row holding
// it. ok is false if the kind is unordered or no non-NULL value was appended.
func (s *ColumnStats) Min() (v base.Datum, offset uint32, ok bool) {
	return s.min, s.minOffset, s.hasMinMax
}

// Max returns the maximum non-NULL value and the offset of the row holding
// it.
func (s *ColumnStats) Max() (v base.Datum, offset uint32, ok bool) {
	return s.max, s.maxOffset, s.hasMinMax
}

// Sum returns the running sum. ok is false for non-numeric kinds.
func (s *ColumnStats) Sum() (base.Sum, bool) {
	return s.sum, s.kind.Numeric()
}

// First returns the first non-NULL value in physical order.
func (s *ColumnStats) First() (base.Datum, bool) {
	return s.first, s.hasEdges
}

// Last returns the last non-NULL value in physical order.
func (s *ColumnStats) Last() (base.Datum, bool) {
	return s.last, s.hasEdges
}

// snapshot returns a copy of s that shares no memory with it.
func (s *ColumnStats) snapshot() ColumnStats {
	c := *s
	c.min = s.min.Clone()
	c.max = s.max.Clone()
	c.first = s.first.Clone()
	c.last = s.last.Clone()
	c.lastBuf = nil
	return c
}

// String implements fmt.Stringer.
func (s *ColumnStats) String() string {
	return fmt.Sprintf("count=%d nulls=%d min=%s@%d max=%s@%d sum=%s first=%s last=%s",
		s.count, s.nullCount, s.min, s.minOffset, s.max, s.maxOffset, s.sum, s.first, s.last)
}
