// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/compression"
	"github.com/cockroachdb/zonestore/internal/invariants"
)

// MemCodec is a Codec that keeps blocks in memory. Each block is one object:
// the compressed column streams laid end to end.
type MemCodec struct {
	setting compression.Setting

	mu struct {
		sync.Mutex
		objects map[string][]byte
	}
}

var _ Codec = (*MemCodec)(nil)
var _ Remover = (*MemCodec)(nil)

// NewMemCodec returns an empty MemCodec compressing column streams with the
// given setting.
func NewMemCodec(setting compression.Setting) *MemCodec {
	c := &MemCodec{setting: setting}
	c.mu.objects = make(map[string][]byte)
	return c
}

// Len returns the number of stored blocks.
func (c *MemCodec) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mu.objects)
}

// Size returns the total number of stored bytes.
func (c *MemCodec) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, o := range c.mu.objects {
		n += len(o)
	}
	return n
}

// Remove drops the block stored under the locator. It is not an error if the
// block does not exist.
func (c *MemCodec) Remove(locator []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.mu.objects, string(locator))
}

// OpenForWrite implements Codec.
func (c *MemCodec) OpenForWrite(locator []byte) (WriteHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.mu.objects[string(locator)]; ok {
		return nil, errors.Errorf("zonestore: block %q already exists", locator)
	}
	return &memWriteHandle{
		codec:      c,
		desc:       Descriptor{Locator: append([]byte(nil), locator...), NumRows: -1},
		compressor: compression.GetCompressor(c.setting),
	}, nil
}

// OpenForRead implements Codec.
func (c *MemCodec) OpenForRead(desc Descriptor) (ColumnReader, error) {
	c.mu.Lock()
	obj, ok := c.mu.objects[string(desc.Locator)]
	c.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(base.ErrNotFound, "block %q", desc.Locator)
	}
	for _, ext := range desc.Columns {
		if ext.Offset+ext.Length > uint64(len(obj)) {
			return nil, base.CorruptionErrorf("zonestore: column %d of block %q extends past the object",
				errors.Safe(ext.Col), desc.Locator)
		}
	}
	return &memColumnReader{desc: desc, obj: obj}, nil
}

type memWriteHandle struct {
	codec      *MemCodec
	desc       Descriptor
	buf        []byte
	scratch    []byte
	compressed []byte
	compressor compression.Compressor
	closed     invariants.CloseChecker
}

func (h *memWriteHandle) WriteColumn(
	col int, kind base.Kind, values []base.Datum, nulls *roaring.Bitmap,
) (int, error) {
	h.closed.AssertNotClosed()
	if h.desc.NumRows < 0 {
		h.desc.NumRows = len(values)
	} else if h.desc.NumRows != len(values) {
		return 0, errors.AssertionFailedf("column %d has %d rows, block has %d", col, len(values), h.desc.NumRows)
	}
	var err error
	h.scratch, err = encodeColumn(h.scratch[:0], kind, values, nulls)
	if err != nil {
		return 0, err
	}
	var setting compression.Setting
	h.compressed, setting = h.compressor.Compress(h.compressed, h.scratch)
	h.desc.Columns = append(h.desc.Columns, ColumnExtent{
		Col:         col,
		Kind:        kind,
		Offset:      uint64(len(h.buf)),
		Length:      uint64(len(h.compressed)),
		Compression: setting.Algorithm,
		Checksum:    checksum(h.compressed),
	})
	h.buf = append(h.buf, h.compressed...)
	return len(h.compressed), nil
}

func (h *memWriteHandle) Close() (Descriptor, error) {
	h.closed.Close()
	h.compressor.Close()
	if h.desc.NumRows < 0 {
		h.desc.NumRows = 0
	}
	h.codec.mu.Lock()
	defer h.codec.mu.Unlock()
	if _, ok := h.codec.mu.objects[string(h.desc.Locator)]; ok {
		return Descriptor{}, errors.Errorf("zonestore: block %q already exists", h.desc.Locator)
	}
	h.codec.mu.objects[string(h.desc.Locator)] = h.buf
	return h.desc, nil
}

func (h *memWriteHandle) Abort() {
	h.closed.Close()
	h.compressor.Close()
	h.buf = nil
}

type memColumnReader struct {
	desc   Descriptor
	obj    []byte
	closed invariants.CloseChecker
}

func (r *memColumnReader) NumRows() int { return r.desc.NumRows }

func (r *memColumnReader) ReadColumn(p int, start, end int) ([]base.Datum, *roaring.Bitmap, error) {
	r.closed.AssertNotClosed()
	if p < 0 || p >= len(r.desc.Columns) {
		return nil, nil, errors.AssertionFailedf("column position %d out of range", p)
	}
	if start < 0 || end < start || end > r.desc.NumRows {
		return nil, nil, errors.AssertionFailedf("row range [%d,%d) out of range for %d rows", start, end, r.desc.NumRows)
	}
	ext := r.desc.Columns[p]
	stored := r.obj[ext.Offset : ext.Offset+ext.Length]
	if checksum(stored) != ext.Checksum {
		return nil, nil, base.CorruptionErrorf("zonestore: checksum mismatch in column %d of block %q",
			errors.Safe(ext.Col), r.desc.Locator)
	}
	raw, err := compression.Decompress(ext.Compression, stored)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "column %d of block %q", errors.Safe(ext.Col), r.desc.Locator)
	}
	values, nulls, err := decodeColumn(raw, ext.Kind)
	if err != nil {
		return nil, nil, err
	}
	if len(values) != r.desc.NumRows {
		return nil, nil, base.CorruptionErrorf("zonestore: column %d has %d rows, block has %d",
			errors.Safe(ext.Col), errors.Safe(len(values)), errors.Safe(r.desc.NumRows))
	}
	if start == 0 && end == len(values) {
		return values, nulls, nil
	}
	rangeNulls := roaring.New()
	it := nulls.Iterator()
	it.AdvanceIfNeeded(uint32(start))
	for it.HasNext() {
		v := it.Next()
		if v >= uint32(end) {
			break
		}
		rangeNulls.Add(v - uint32(start))
	}
	return values[start:end], rangeNulls, nil
}

func (r *memColumnReader) Close() error {
	r.closed.Close()
	return nil
}
