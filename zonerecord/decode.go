// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonerecord

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
)

// Decoder decodes the zone records of one catalog. The layout is detected
// once, from the catalog's declared columns, when the Decoder is created.
type Decoder struct {
	table  string
	layout Layout
	kinds  []base.Kind
	cmp    base.Comparator
}

// NewDecoder returns a Decoder for a catalog with the given declaration and
// data column kinds. It fails with ErrUnsupportedLayout if the declaration
// matches no known layout.
func NewDecoder(
	table string, decl []FieldDecl, kinds []base.Kind, cmp base.Comparator,
) (*Decoder, error) {
	layout, err := DetectLayout(table, decl)
	if err != nil {
		return nil, err
	}
	return &Decoder{table: table, layout: layout, kinds: kinds, cmp: cmp}, nil
}

// Layout returns the detected layout.
func (d *Decoder) Layout() Layout { return d.layout }

// Decode verifies the checksum of a packed zone record and returns a view
// over it. The data is copied, so the caller may reuse it. Only the header is
// decoded here; statistics field groups are decoded on first access.
func (d *Decoder) Decode(data []byte) (Record, error) {
	if len(data) < checksumLen {
		return nil, base.CorruptionErrorf("zone catalog %s: zone record too short (%d bytes)",
			d.table, errors.Safe(len(data)))
	}
	body := data[:len(data)-checksumLen]
	if sum := binary.LittleEndian.Uint64(data[len(body):]); sum != xxhash.Sum64(body) {
		return nil, base.CorruptionErrorf("zone catalog %s: zone record checksum mismatch", d.table)
	}
	body = append([]byte(nil), body...)

	var rec Record
	var h *header
	switch d.layout {
	case LayoutV1:
		r := &RecordV1{cmp: d.cmp}
		rec, h = r, &r.header
	case LayoutV2:
		r := &RecordV2{}
		rec, h = r, &r.header
	default:
		return nil, errors.Mark(errors.Newf("zone catalog %s: layout %s", d.table, d.layout), base.ErrUnsupportedLayout)
	}

	dec := base.MakeDecoder(body)
	h.kinds = d.kinds
	h.batch = dec.Uvarint()
	h.locator = dec.Bytes()
	h.physical, h.logical, h.logicalValid = unpackRowCount(dec.Uint64())
	if n := dec.Uvarint(); dec.Err() == nil && n != uint64(len(d.kinds)) {
		return nil, base.CorruptionErrorf("zone catalog %s: zone record has %d columns, expected %d",
			d.table, errors.Safe(n), errors.Safe(len(d.kinds)))
	}
	for f := 0; f < d.layout.numFields(); f++ {
		h.groups[f].raw = dec.Bytes()
		h.groups[f].layout = d.layout
	}
	if err := dec.Err(); err != nil {
		return nil, errors.Wrapf(err, "zone catalog %s", d.table)
	}
	if dec.Len() != 0 {
		return nil, base.CorruptionErrorf("zone catalog %s: %d trailing bytes in zone record",
			d.table, errors.Safe(dec.Len()))
	}
	return rec, nil
}

// lazyGroup is one statistics field group. raw is the owned, still encoded
// group; vals is populated from it on first access.
type lazyGroup struct {
	once   sync.Once
	layout Layout
	raw    []byte
	vals   [][]value
}

func (g *lazyGroup) get(f field, kinds []base.Kind) [][]value {
	g.once.Do(func() {
		vals, err := decodeGroup(g.layout, f, kinds, g.raw)
		if err != nil {
			// The record's checksum was verified by Decode, so the group can
			// only fail to decode if the catalog schema disagrees with the
			// data, which is a programming error.
			panic(errors.NewAssertionErrorWithWrappedErrf(err, "decoding zone record field %s", errors.Safe(fieldNames[f])))
		}
		g.vals = vals
	})
	return g.vals
}

func decodeGroup(layout Layout, f field, kinds []base.Kind, raw []byte) ([][]value, error) {
	dec := base.MakeDecoder(raw)
	vals := make([][]value, len(kinds))
	for col, kind := range kinds {
		n := uint64(1)
		if layout == LayoutV1 {
			n = dec.Uvarint()
			if n == 0 && dec.Err() == nil {
				return nil, base.CorruptionErrorf("column %d has no row groups", errors.Safe(col))
			}
		}
		if dec.Err() != nil {
			break
		}
		vals[col] = make([]value, n)
		for i := range vals[col] {
			vals[col][i] = decodeEntry(&dec, f, kind)
		}
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	if dec.Len() != 0 {
		return nil, base.CorruptionErrorf("%d trailing bytes", errors.Safe(dec.Len()))
	}
	return vals, nil
}

func decodeEntry(dec *base.Decoder, f field, kind base.Kind) value {
	switch f {
	case fieldNullCount, fieldMinOffset, fieldMaxOffset:
		return value{present: true, u: dec.Uvarint()}
	case fieldSum:
		if dec.Byte() == 0 {
			return value{}
		}
		lo := dec.Uint64()
		hi := dec.Uint64()
		return value{present: true, sum: base.Int128{Hi: int64(hi), Lo: lo}}
	default:
		if dec.Byte() == 0 {
			return value{}
		}
		return value{present: true, d: dec.Datum(kind)}
	}
}
