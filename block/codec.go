// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/compression"
)

// Codec persists blocks column by column.
type Codec interface {
	// OpenForWrite starts writing a block stored under the given locator.
	OpenForWrite(locator []byte) (WriteHandle, error)
	// OpenForRead opens a block previously written through the codec.
	OpenForRead(desc Descriptor) (ColumnReader, error)
}

// Remover is implemented by codecs that can drop stored blocks. Writers use
// it to release the blocks of retired zone records.
type Remover interface {
	Remove(locator []byte)
}

// WriteHandle writes the columns of one block. Columns are written in
// physical order.
type WriteHandle interface {
	// WriteColumn writes the values of logical column col. values holds one
	// entry per row; rows in nulls are NULL and their values are ignored. It
	// returns the number of bytes committed for the column.
	WriteColumn(col int, kind base.Kind, values []base.Datum, nulls *roaring.Bitmap) (int, error)
	// Close finishes the block and returns its descriptor. The handle must
	// not be used afterwards.
	Close() (Descriptor, error)
	// Abort discards the partially written block.
	Abort()
}

// ColumnReader reads the columns of one block.
type ColumnReader interface {
	// NumRows returns the number of rows of the block.
	NumRows() int
	// ReadColumn reads rows [start, end) of the column at physical position
	// p. The returned bitmap holds the NULL rows, relative to start.
	ReadColumn(p int, start, end int) ([]base.Datum, *roaring.Bitmap, error)
	Close() error
}

// ColumnExtent describes where a column of a block is stored.
type ColumnExtent struct {
	// Col is the logical column stored in the extent.
	Col         int
	Kind        base.Kind
	Offset      uint64
	Length      uint64
	Compression compression.Algorithm
	// Checksum is the xxhash of the stored (compressed) bytes.
	Checksum uint64
}

// Descriptor describes a written block. Its encoding is the locator recorded
// in the block's zone record.
type Descriptor struct {
	Locator []byte
	NumRows int
	// Columns are in physical order.
	Columns []ColumnExtent
}

const descriptorVersion = 1

// Encode appends the encoding of the descriptor to dst.
func (d *Descriptor) Encode(dst []byte) []byte {
	dst = append(dst, descriptorVersion)
	dst = base.AppendBytes(dst, d.Locator)
	dst = binary.AppendUvarint(dst, uint64(d.NumRows))
	dst = binary.AppendUvarint(dst, uint64(len(d.Columns)))
	for _, c := range d.Columns {
		dst = binary.AppendUvarint(dst, uint64(c.Col))
		dst = append(dst, byte(c.Kind), byte(c.Compression))
		dst = binary.AppendUvarint(dst, c.Offset)
		dst = binary.AppendUvarint(dst, c.Length)
		dst = binary.LittleEndian.AppendUint64(dst, c.Checksum)
	}
	return dst
}

// DecodeDescriptor decodes a descriptor encoded by Descriptor.Encode. The
// returned descriptor does not alias buf.
func DecodeDescriptor(buf []byte) (Descriptor, error) {
	dec := base.MakeDecoder(buf)
	if v := dec.Byte(); dec.Err() == nil && v != descriptorVersion {
		return Descriptor{}, base.CorruptionErrorf("zonestore: unknown block descriptor version %d", errors.Safe(v))
	}
	var d Descriptor
	d.Locator = append([]byte(nil), dec.Bytes()...)
	d.NumRows = int(dec.Uvarint())
	n := dec.Uvarint()
	if n > uint64(dec.Len()) {
		return Descriptor{}, base.CorruptionErrorf("zonestore: block descriptor claims %d columns", errors.Safe(n))
	}
	d.Columns = make([]ColumnExtent, n)
	for i := range d.Columns {
		c := &d.Columns[i]
		c.Col = int(dec.Uvarint())
		c.Kind = base.Kind(dec.Byte())
		c.Compression = compression.Algorithm(dec.Byte())
		c.Offset = dec.Uvarint()
		c.Length = dec.Uvarint()
		c.Checksum = dec.Uint64()
	}
	if err := dec.Err(); err != nil {
		return Descriptor{}, err
	}
	if dec.Len() != 0 {
		return Descriptor{}, base.CorruptionErrorf("zonestore: %d trailing bytes in block descriptor", errors.Safe(dec.Len()))
	}
	for _, c := range d.Columns {
		if !c.Kind.Valid() || c.Compression >= compression.NumAlgorithms {
			return Descriptor{}, base.CorruptionErrorf("zonestore: invalid block descriptor column %d", errors.Safe(c.Col))
		}
	}
	return d, nil
}

// String implements fmt.Stringer.
func (d *Descriptor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d rows", d.Locator, d.NumRows)
	for _, c := range d.Columns {
		fmt.Fprintf(&sb, "\n  c%d %s %s [%d,%d)", c.Col, c.Kind, c.Compression, c.Offset, c.Offset+c.Length)
	}
	return sb.String()
}

// encodeColumn serializes a column: the null bitmap followed by the values of
// the non-NULL rows.
//
//	uvarint  row count
//	bytes    portable roaring bitmap of NULL rows
//	...      datums of the non-NULL rows
func encodeColumn(dst []byte, kind base.Kind, values []base.Datum, nulls *roaring.Bitmap) ([]byte, error) {
	bm, err := nulls.ToBytes()
	if err != nil {
		return nil, errors.Wrap(err, "encoding null bitmap")
	}
	dst = binary.AppendUvarint(dst, uint64(len(values)))
	dst = base.AppendBytes(dst, bm)
	for i, v := range values {
		if nulls.Contains(uint32(i)) {
			continue
		}
		dst = base.AppendDatum(dst, kind, v)
	}
	return dst, nil
}

func decodeColumn(buf []byte, kind base.Kind) ([]base.Datum, *roaring.Bitmap, error) {
	dec := base.MakeDecoder(buf)
	n := dec.Uvarint()
	bm := dec.Bytes()
	if err := dec.Err(); err != nil {
		return nil, nil, err
	}
	nulls := roaring.New()
	if err := nulls.UnmarshalBinary(bm); err != nil {
		return nil, nil, base.MarkCorruptionError(err)
	}
	if n < nulls.GetCardinality() || n > uint64(len(buf))+nulls.GetCardinality() {
		return nil, nil, base.CorruptionErrorf("zonestore: column claims %d rows", errors.Safe(n))
	}
	values := make([]base.Datum, n)
	for i := range values {
		if nulls.Contains(uint32(i)) {
			continue
		}
		values[i] = dec.Datum(kind)
	}
	if err := dec.Err(); err != nil {
		return nil, nil, err
	}
	return values, nulls, nil
}

func checksum(b []byte) uint64 { return xxhash.Sum64(b) }
