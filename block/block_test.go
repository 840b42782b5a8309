// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/compression"
	"github.com/stretchr/testify/require"
)

var testKinds = []base.Kind{base.KindInt64, base.KindBytes, base.KindFloat64, base.KindBool}

func testRows() []base.Row {
	return []base.Row{
		{base.DInt(1), base.DString("a"), base.DFloat(1.5), base.DBool(true)},
		{base.DInt(2), base.Null, base.DFloat(-2), base.Null},
		{base.DInt(3), base.DString(""), base.Null, base.DBool(false)},
		{base.Null, base.DString("long value"), base.DFloat(0), base.DBool(true)},
	}
}

func buildTestBlock(t *testing.T, order []int) *Block {
	b := MakeBuilder(testKinds, order)
	for _, r := range testRows() {
		b.Add(r)
	}
	require.Equal(t, 4, b.Len())
	blk := b.Finish(7)
	require.Equal(t, 0, b.Len())
	return blk
}

func TestBuilder(t *testing.T) {
	blk := buildTestBlock(t, []int{2, 0, 3, 1})
	require.Equal(t, uint64(7), blk.Batch())
	require.Equal(t, 4, blk.NumRows())
	require.Equal(t, 4, blk.NumColumns())
	require.Equal(t, base.KindFloat64, blk.Kind(0))
	require.Equal(t, base.KindBytes, blk.Kind(3))
	var row base.Row
	for i, want := range testRows() {
		row = blk.Row(i, row)
		require.Equal(t, want.String(), row.String())
	}
	require.Equal(t, []uint32{1}, blk.Nulls(3).ToArray())
	require.True(t, blk.Value(3, 1).IsNull())

	require.Panics(t, func() { MakeBuilder(testKinds, []int{0, 0, 1, 2}) })
	b := MakeBuilder(testKinds, nil)
	require.Panics(t, func() { b.Add(base.Row{base.DInt(1)}) })
	require.Panics(t, func() {
		b.Add(base.Row{base.DString("x"), base.Null, base.Null, base.Null})
	})
}

func TestWriteLoad(t *testing.T) {
	for _, s := range []compression.Setting{
		compression.NoCompression, compression.Snappy, compression.ZstdLevel1, compression.MinLZFastest,
	} {
		t.Run(s.String(), func(t *testing.T) {
			codec := NewMemCodec(s)
			blk := buildTestBlock(t, []int{3, 2, 1, 0})
			desc, err := Write(codec, []byte("blk-7"), blk)
			require.NoError(t, err)
			require.Equal(t, 4, desc.NumRows)
			require.Len(t, desc.Columns, 4)
			require.Equal(t, 3, desc.Columns[0].Col)
			require.Equal(t, 1, codec.Len())

			// The descriptor travels as an opaque locator.
			desc2, err := DecodeDescriptor(desc.Encode(nil))
			require.NoError(t, err)
			require.Equal(t, desc, desc2)

			got, err := Load(codec, desc2, 7)
			require.NoError(t, err)
			require.Equal(t, blk.String(), got.String())
			require.Equal(t, blk.ColumnOrder(), got.ColumnOrder())

			_, err = Write(codec, []byte("blk-7"), blk)
			require.Error(t, err)
		})
	}
}

func TestReadColumnRange(t *testing.T) {
	codec := NewMemCodec(compression.Snappy)
	desc, err := Write(codec, []byte("b"), buildTestBlock(t, nil))
	require.NoError(t, err)
	r, err := codec.OpenForRead(desc)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	values, nulls, err := r.ReadColumn(1, 1, 4)
	require.NoError(t, err)
	require.Len(t, values, 3)
	require.Equal(t, []uint32{0}, nulls.ToArray())
	require.Equal(t, "long value", string(values[2].Bytes()))

	_, _, err = r.ReadColumn(1, 2, 5)
	require.Error(t, err)
	_, _, err = r.ReadColumn(4, 0, 1)
	require.Error(t, err)
}

func TestCorruption(t *testing.T) {
	codec := NewMemCodec(compression.NoCompression)
	desc, err := Write(codec, []byte("b"), buildTestBlock(t, nil))
	require.NoError(t, err)

	codec.mu.Lock()
	codec.mu.objects["b"][desc.Columns[2].Offset] ^= 0xff
	codec.mu.Unlock()
	_, err = Load(codec, desc, 1)
	require.True(t, errors.Is(err, base.ErrCorruption), "%v", err)

	codec.Remove([]byte("b"))
	_, err = Load(codec, desc, 1)
	require.True(t, errors.Is(err, base.ErrNotFound), "%v", err)

	enc := desc.Encode(nil)
	for i := range enc {
		_, err := DecodeDescriptor(enc[:i])
		require.Error(t, err, "truncated at %d", i)
	}
	enc[0] = 9
	_, err = DecodeDescriptor(enc)
	require.True(t, errors.Is(err, base.ErrCorruption))
}

func TestEmptyBlock(t *testing.T) {
	b := MakeBuilder(testKinds, nil)
	blk := b.Finish(1)
	codec := NewMemCodec(compression.ZstdLevel3)
	desc, err := Write(codec, []byte("empty"), blk)
	require.NoError(t, err)
	got, err := Load(codec, desc, 1)
	require.NoError(t, err)
	require.Equal(t, 0, got.NumRows())
}
