// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonerecord

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
)

// A packed zone record has the following format:
//
//	uvarint   batch number
//	bytes     locator (uvarint length prefix)
//	fixed64   row count pair, see packRowCount
//	uvarint   number of data columns
//	bytes     one field group per statistics field of the layout
//	fixed64   xxhash64 of everything above
//
// A V2 field group holds one entry per column. A V1 field group holds, per
// column, a uvarint row-group count followed by that many entries. Entries
// are:
//
//	null_count, min_offset, max_offset   uvarint
//	sum                                  presence byte, fixed64 lo, fixed64 hi
//	min, max, first, last                presence byte, datum
//
// The layout itself is not recorded; see DetectLayout.

const checksumLen = 8

const (
	logicalValidBit  = 1 << 63
	maxPhysicalCount = math.MaxUint32
	maxLogicalCount  = 1<<31 - 1
)

// packRowCount packs the physical row count into the low 32 bits, the logical
// row count into bits 32-62 and its validity into bit 63.
func packRowCount(physical, logical uint64, logicalValid bool) uint64 {
	v := physical | logical<<32
	if logicalValid {
		v |= logicalValidBit
	}
	return v
}

func unpackRowCount(v uint64) (physical, logical uint64, logicalValid bool) {
	return v & maxPhysicalCount, (v &^ logicalValidBit) >> 32, v&logicalValidBit != 0
}

// Pack serializes the block statistics into a zone record of the given
// layout. kinds are the data column kinds, in column order. Pack only touches
// memory, so a failure cannot leave a catalog half-updated.
func Pack(
	layout Layout, kinds []base.Kind, batch uint64, locator []byte, stats *BlockStats,
) ([]byte, error) {
	if layout != LayoutV1 && layout != LayoutV2 {
		return nil, errors.Mark(errors.Newf("cannot pack zone record with layout %s", layout), base.ErrUnsupportedLayout)
	}
	if stats.NumColumns() != len(kinds) {
		return nil, errors.Errorf("zonestore: statistics for %d columns, schema has %d",
			errors.Safe(stats.NumColumns()), errors.Safe(len(kinds)))
	}
	physical := stats.PhysicalRowCount()
	for i, k := range kinds {
		c := stats.Column(i)
		if c.Kind() != k {
			return nil, errors.Errorf("zonestore: statistics of column %d have kind %s, schema says %s",
				errors.Safe(i), c.Kind(), k)
		}
		if c.Count() != physical {
			return nil, errors.Errorf("zonestore: column %d has %d rows, column 0 has %d",
				errors.Safe(i), errors.Safe(c.Count()), errors.Safe(physical))
		}
	}
	logical, logicalValid := stats.LogicalRowCount()
	if physical > maxPhysicalCount || logical > maxLogicalCount {
		return nil, errors.Errorf("zonestore: row count %d (logical %d) exceeds zone record limits",
			errors.Safe(physical), errors.Safe(logical))
	}

	var e encoder
	e.writeUvarint(batch)
	e.writeBytes(locator)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, packRowCount(physical, logical, logicalValid))
	e.writeUvarint(uint64(len(kinds)))

	var group []byte
	for f := field(0); int(f) < layout.numFields(); f++ {
		group = group[:0]
		for i, k := range kinds {
			if layout == LayoutV1 {
				group = binary.AppendUvarint(group, 1)
			}
			group = appendEntry(group, f, k, stats.Column(i))
		}
		e.writeBytes(group)
	}
	e.buf = binary.LittleEndian.AppendUint64(e.buf, xxhash.Sum64(e.buf))
	return e.buf, nil
}

func appendEntry(dst []byte, f field, kind base.Kind, c *ColumnStats) []byte {
	switch f {
	case fieldNullCount:
		return binary.AppendUvarint(dst, c.NullCount())
	case fieldSum:
		s, ok := c.Sum()
		if !ok {
			return append(dst, 0)
		}
		w := s.Wire()
		dst = append(dst, 1)
		dst = binary.LittleEndian.AppendUint64(dst, w.Lo)
		return binary.LittleEndian.AppendUint64(dst, uint64(w.Hi))
	case fieldMin, fieldMax:
		v, _, ok := c.Min()
		if f == fieldMax {
			v, _, ok = c.Max()
		}
		return appendOptionalDatum(dst, kind, v, ok)
	case fieldMinOffset:
		_, off, _ := c.Min()
		return binary.AppendUvarint(dst, uint64(off))
	case fieldMaxOffset:
		_, off, _ := c.Max()
		return binary.AppendUvarint(dst, uint64(off))
	case fieldFirst:
		v, ok := c.First()
		return appendOptionalDatum(dst, kind, v, ok)
	case fieldLast:
		v, ok := c.Last()
		return appendOptionalDatum(dst, kind, v, ok)
	}
	panic(errors.AssertionFailedf("unknown zone record field %d", f))
}

func appendOptionalDatum(dst []byte, kind base.Kind, v base.Datum, ok bool) []byte {
	if !ok {
		return append(dst, 0)
	}
	return base.AppendDatum(append(dst, 1), kind, v)
}

type encoder struct {
	buf []byte
}

func (e *encoder) writeUvarint(u uint64) {
	e.buf = binary.AppendUvarint(e.buf, u)
}

func (e *encoder) writeBytes(p []byte) {
	e.buf = base.AppendBytes(e.buf, p)
}
