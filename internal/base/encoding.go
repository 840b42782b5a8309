// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// AppendDatum appends the encoding of a non-NULL datum of the given kind to
// dst. The kind is not encoded; decoders learn it from the schema.
//
//	bool            1 byte
//	int64/timestamp zig-zag varint
//	float64         8 bytes, little endian IEEE 754
//	bytes/json      uvarint length followed by the bytes
func AppendDatum(dst []byte, kind Kind, d Datum) []byte {
	switch kind {
	case KindBool:
		return append(dst, byte(d.i))
	case KindInt64, KindTimestamp:
		return binary.AppendVarint(dst, d.i)
	case KindFloat64:
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(d.f))
	case KindBytes, KindJSON:
		dst = binary.AppendUvarint(dst, uint64(len(d.b)))
		return append(dst, d.b...)
	}
	panic(errors.AssertionFailedf("cannot encode datum of kind %s", kind))
}

// DecodeDatum decodes a datum of the given kind from the front of src and
// returns the remainder. Bytes datums alias src.
func DecodeDatum(kind Kind, src []byte) (Datum, []byte, error) {
	switch kind {
	case KindBool:
		if len(src) < 1 {
			return Null, nil, CorruptionErrorf("zonestore: truncated bool datum")
		}
		return DBool(src[0] != 0), src[1:], nil
	case KindInt64, KindTimestamp:
		v, n := binary.Varint(src)
		if n <= 0 {
			return Null, nil, CorruptionErrorf("zonestore: invalid varint datum")
		}
		return Datum{kind: kind, i: v}, src[n:], nil
	case KindFloat64:
		if len(src) < 8 {
			return Null, nil, CorruptionErrorf("zonestore: truncated float datum")
		}
		return DFloat(math.Float64frombits(binary.LittleEndian.Uint64(src))), src[8:], nil
	case KindBytes, KindJSON:
		l, n := binary.Uvarint(src)
		if n <= 0 || uint64(len(src)-n) < l {
			return Null, nil, CorruptionErrorf("zonestore: truncated bytes datum")
		}
		src = src[n:]
		return Datum{kind: kind, b: src[:l:l]}, src[l:], nil
	}
	return Null, nil, errors.AssertionFailedf("cannot decode datum of kind %s", kind)
}

// Decoder reads the primitive encodings shared by zone records and block
// descriptors. The first error sticks; later reads return zero values.
type Decoder struct {
	buf []byte
	err error
}

// MakeDecoder returns a Decoder over buf.
func MakeDecoder(buf []byte) Decoder {
	return Decoder{buf: buf}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error { return d.err }

// Len returns the number of undecoded bytes.
func (d *Decoder) Len() int { return len(d.buf) }

func (d *Decoder) fail(what string) {
	if d.err == nil {
		d.err = CorruptionErrorf("zonestore: truncated %s", errors.Safe(what))
	}
	d.buf = nil
}

// Uvarint reads an unsigned varint.
func (d *Decoder) Uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.fail("uvarint")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

// Uint64 reads a fixed-width little endian uint64.
func (d *Decoder) Uint64() uint64 {
	if d.err != nil {
		return 0
	}
	if len(d.buf) < 8 {
		d.fail("uint64")
		return 0
	}
	v := binary.LittleEndian.Uint64(d.buf)
	d.buf = d.buf[8:]
	return v
}

// Byte reads one byte.
func (d *Decoder) Byte() byte {
	if d.err != nil {
		return 0
	}
	if len(d.buf) < 1 {
		d.fail("byte")
		return 0
	}
	v := d.buf[0]
	d.buf = d.buf[1:]
	return v
}

// Bytes reads a uvarint-length-prefixed byte slice aliasing the buffer.
func (d *Decoder) Bytes() []byte {
	l := d.Uvarint()
	if d.err != nil {
		return nil
	}
	if uint64(len(d.buf)) < l {
		d.fail("bytes")
		return nil
	}
	v := d.buf[:l:l]
	d.buf = d.buf[l:]
	return v
}

// Datum reads a datum of the given kind.
func (d *Decoder) Datum(kind Kind) Datum {
	if d.err != nil {
		return Null
	}
	v, rest, err := DecodeDatum(kind, d.buf)
	if err != nil {
		d.err = err
		d.buf = nil
		return Null
	}
	d.buf = rest
	return v
}

// AppendBytes appends a uvarint-length-prefixed byte slice.
func AppendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}
