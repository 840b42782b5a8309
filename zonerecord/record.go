// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package zonerecord implements zone records: the per-block statistics
// (row counts, null counts, sums, min/max with row offsets and physical
// first/last values) that let readers prune blocks and answer aggregates
// without reading row data.
//
// Statistics are accumulated with ColumnStats while a block is written,
// collected into a BlockStats, and serialized by Pack into one of two
// layouts. Decoder.Decode returns a Record whose field groups are decoded on
// first access and cached.
package zonerecord

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cockroachdb/zonestore/internal/base"
)

// Bounds is the subset of zone record accessors that predicate matching
// needs. It is implemented by Record and by Combined.
type Bounds interface {
	// RowCount returns the logical row count if logical is true and the
	// logical count is valid, and the physical row count otherwise.
	RowCount(logical bool) uint64
	// NullCount returns the number of NULLs in the column.
	NullCount(col int) uint64
	// Min returns the smallest non-NULL value of the column and the physical
	// offset of the row holding it. ok is false if the column has no
	// non-NULL value or an unordered kind.
	Min(col int) (v base.Datum, offset uint32, ok bool)
	// Max is the counterpart of Min.
	Max(col int) (v base.Datum, offset uint32, ok bool)
}

// Record is a decoded, read-only view of a packed zone record. It is one of
// *RecordV1 or *RecordV2. Records are safe for concurrent use.
type Record interface {
	Bounds

	// Layout returns the layout the record was decoded with.
	Layout() Layout
	// Batch returns the batch number of the block.
	Batch() uint64
	// Locator returns the opaque locator of the block's physical content.
	Locator() []byte
	// NumColumns returns the number of data columns.
	NumColumns() int
	// LogicalRowCountValid returns true if the logical row count was set,
	// meaning the block holds the fully merged content of its group.
	LogicalRowCountValid() bool
	// Sum returns the sum of a numeric column.
	Sum(col int) (base.Sum, bool)
	// PhysicalFirst returns the first non-NULL value of the column in
	// physical storage order. Always false for V1 records.
	PhysicalFirst(col int) (base.Datum, bool)
	// PhysicalLast returns the last non-NULL value of the column in physical
	// storage order. Always false for V1 records.
	PhysicalLast(col int) (base.Datum, bool)
	// SingleValue returns true if every non-NULL row of the column holds the
	// same value: the record has no rows, every row is NULL, or min equals
	// max. NULLs do not count.
	SingleValue(col int, cmp base.Comparator, logical bool) bool
	// IsPhysicalFirst returns true if the record proves that the row at the
	// given physical offset holds PhysicalFirst(col). Always false for V1.
	IsPhysicalFirst(col int, row uint32, logical bool) bool
	// IsPhysicalLast is the counterpart of IsPhysicalFirst.
	IsPhysicalLast(col int, row uint32, logical bool) bool

	String() string

	sealed()
}

// value is one decoded statistics entry.
type value struct {
	present bool
	u       uint64
	sum     base.Int128
	d       base.Datum
}

// header holds the eagerly decoded part of a zone record and the field groups
// that are decoded on demand.
type header struct {
	kinds        []base.Kind
	batch        uint64
	locator      []byte
	physical     uint64
	logical      uint64
	logicalValid bool
	groups       [numFields]lazyGroup
}

func (h *header) Batch() uint64 { return h.batch }
func (h *header) Locator() []byte { return h.locator }
func (h *header) NumColumns() int { return len(h.kinds) }
func (h *header) LogicalRowCountValid() bool { return h.logicalValid }

func (h *header) RowCount(logical bool) uint64 {
	if logical && h.logicalValid {
		return h.logical
	}
	return h.physical
}

// logicalDiffers returns true if the caller asked for the logical view and
// that view was built from more rows than this block physically holds.
func (h *header) logicalDiffers(logical bool) bool {
	return logical && h.logicalValid && h.logical != h.physical
}

func (h *header) group(f field) [][]value {
	return h.groups[f].get(f, h.kinds)
}

func singleValue(r Record, col int, cmp base.Comparator, logical bool) bool {
	rows := r.RowCount(logical)
	if rows == 0 {
		return true
	}
	nulls := r.NullCount(col)
	if nulls >= r.RowCount(false) {
		return true
	}
	lo, _, ok := r.Min(col)
	if !ok {
		return false
	}
	hi, _, _ := r.Max(col)
	return cmp.Compare(lo, hi) == 0
}

func datumsEqual(kind base.Kind, a, b base.Datum) bool {
	return bytes.Equal(base.AppendDatum(nil, kind, a), base.AppendDatum(nil, kind, b))
}

func formatRecord(r Record, kinds []base.Kind) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "batch=%d layout=%s rows=%d", r.Batch(), r.Layout(), r.RowCount(false))
	if r.LogicalRowCountValid() {
		fmt.Fprintf(&sb, " logical=%d", r.RowCount(true))
	}
	for col, k := range kinds {
		fmt.Fprintf(&sb, "\n  c%d: nulls=%d", col, r.NullCount(col))
		if lo, off, ok := r.Min(col); ok {
			fmt.Fprintf(&sb, " min=%s@%d", lo, off)
		}
		if hi, off, ok := r.Max(col); ok {
			fmt.Fprintf(&sb, " max=%s@%d", hi, off)
		}
		if k.Numeric() {
			if s, ok := r.Sum(col); ok {
				fmt.Fprintf(&sb, " sum=%s", s)
			}
		}
		if v, ok := r.PhysicalFirst(col); ok {
			fmt.Fprintf(&sb, " first=%s", v)
		}
		if v, ok := r.PhysicalLast(col); ok {
			fmt.Fprintf(&sb, " last=%s", v)
		}
	}
	return sb.String()
}

// RecordV2 is a zone record in the flattened layout.
type RecordV2 struct {
	header
}

var _ Record = (*RecordV2)(nil)

func (*RecordV2) sealed() {}

// Layout implements Record.
func (*RecordV2) Layout() Layout { return LayoutV2 }

func (r *RecordV2) entry(f field, col int) value {
	return r.group(f)[col][0]
}

// NullCount implements Record.
func (r *RecordV2) NullCount(col int) uint64 {
	return r.entry(fieldNullCount, col).u
}

// Min implements Record.
func (r *RecordV2) Min(col int) (base.Datum, uint32, bool) {
	v := r.entry(fieldMin, col)
	return v.d, uint32(r.entry(fieldMinOffset, col).u), v.present
}

// Max implements Record.
func (r *RecordV2) Max(col int) (base.Datum, uint32, bool) {
	v := r.entry(fieldMax, col)
	return v.d, uint32(r.entry(fieldMaxOffset, col).u), v.present
}

// Sum implements Record.
func (r *RecordV2) Sum(col int) (base.Sum, bool) {
	v := r.entry(fieldSum, col)
	return base.SumFromWire(r.kinds[col], v.sum), v.present
}

// PhysicalFirst implements Record.
func (r *RecordV2) PhysicalFirst(col int) (base.Datum, bool) {
	v := r.entry(fieldFirst, col)
	return v.d, v.present
}

// PhysicalLast implements Record.
func (r *RecordV2) PhysicalLast(col int) (base.Datum, bool) {
	v := r.entry(fieldLast, col)
	return v.d, v.present
}

// SingleValue implements Record.
func (r *RecordV2) SingleValue(col int, cmp base.Comparator, logical bool) bool {
	return singleValue(r, col, cmp, logical)
}

// IsPhysicalFirst implements Record.
//
// Row 0 holds the first value if the column has no NULLs. Otherwise the row
// of the minimum holds it when the first value equals the minimum, because
// the minimum's offset is that of its earliest occurrence.
func (r *RecordV2) IsPhysicalFirst(col int, row uint32, logical bool) bool {
	first, ok := r.PhysicalFirst(col)
	if !ok || r.logicalDiffers(logical) {
		return false
	}
	if row == 0 && r.NullCount(col) == 0 {
		return true
	}
	lo, off, ok := r.Min(col)
	return ok && row == off && datumsEqual(r.kinds[col], lo, first)
}

// IsPhysicalLast implements Record. It mirrors IsPhysicalFirst using the
// maximum, whose offset is that of its latest occurrence.
func (r *RecordV2) IsPhysicalLast(col int, row uint32, logical bool) bool {
	last, ok := r.PhysicalLast(col)
	if !ok || r.logicalDiffers(logical) {
		return false
	}
	if uint64(row)+1 == r.physical && r.NullCount(col) == 0 {
		return true
	}
	hi, off, ok := r.Max(col)
	return ok && row == off && datumsEqual(r.kinds[col], hi, last)
}

// String implements Record.
func (r *RecordV2) String() string { return formatRecord(r, r.kinds) }

// RecordV1 is a zone record in the legacy per-row-group layout. Accessors
// reduce the per-row-group arrays; V1 stores no physical first/last values.
type RecordV1 struct {
	header
	// cmp orders min/max across row groups. Records written by this package
	// have a single row group, so it is only consulted for legacy data.
	cmp base.Comparator
}

var _ Record = (*RecordV1)(nil)

func (*RecordV1) sealed() {}

// Layout implements Record.
func (*RecordV1) Layout() Layout { return LayoutV1 }

// NumRowGroups returns the number of row groups stored for the column.
func (r *RecordV1) NumRowGroups(col int) int {
	return len(r.group(fieldNullCount)[col])
}

// NullCount implements Record.
func (r *RecordV1) NullCount(col int) uint64 {
	var n uint64
	for _, v := range r.group(fieldNullCount)[col] {
		n += v.u
	}
	return n
}

func (r *RecordV1) extreme(vf, of field, col int, sign int) (base.Datum, uint32, bool) {
	vals, offs := r.group(vf)[col], r.group(of)[col]
	best := -1
	for i := range vals {
		if !vals[i].present {
			continue
		}
		if best < 0 || sign*r.cmp.Compare(vals[i].d, vals[best].d) > 0 {
			best = i
		}
	}
	if best < 0 {
		return base.Null, 0, false
	}
	return vals[best].d, uint32(offs[best].u), true
}

// Min implements Record.
func (r *RecordV1) Min(col int) (base.Datum, uint32, bool) {
	return r.extreme(fieldMin, fieldMinOffset, col, -1)
}

// Max implements Record.
func (r *RecordV1) Max(col int) (base.Datum, uint32, bool) {
	return r.extreme(fieldMax, fieldMaxOffset, col, +1)
}

// Sum implements Record.
func (r *RecordV1) Sum(col int) (base.Sum, bool) {
	s := base.ZeroSum(r.kinds[col])
	present := false
	for _, v := range r.group(fieldSum)[col] {
		if v.present {
			s = s.Merge(base.SumFromWire(r.kinds[col], v.sum))
			present = true
		}
	}
	return s, present
}

// PhysicalFirst implements Record.
func (*RecordV1) PhysicalFirst(int) (base.Datum, bool) { return base.Null, false }

// PhysicalLast implements Record.
func (*RecordV1) PhysicalLast(int) (base.Datum, bool) { return base.Null, false }

// SingleValue implements Record.
func (r *RecordV1) SingleValue(col int, cmp base.Comparator, logical bool) bool {
	return singleValue(r, col, cmp, logical)
}

// IsPhysicalFirst implements Record.
func (*RecordV1) IsPhysicalFirst(int, uint32, bool) bool { return false }

// IsPhysicalLast implements Record.
func (*RecordV1) IsPhysicalLast(int, uint32, bool) bool { return false }

// String implements Record.
func (r *RecordV1) String() string { return formatRecord(r, r.kinds) }
