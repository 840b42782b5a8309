// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestDefaultComparatorCompare(t *testing.T) {
	c := DefaultComparator
	require.Equal(t, -1, c.Compare(DInt(1), DInt(2)))
	require.Equal(t, 0, c.Compare(DInt(7), DInt(7)))
	require.Equal(t, +1, c.Compare(DFloat(2.5), DFloat(-1)))
	require.Equal(t, -1, c.Compare(DString("abc"), DString("abd")))
	require.Equal(t, -1, c.Compare(DBool(false), DBool(true)))
	require.Equal(t, +1, c.Compare(DTimestamp(10), DTimestamp(9)))

	// NULL sorts last.
	require.Equal(t, +1, c.Compare(Null, DInt(math.MaxInt64)))
	require.Equal(t, -1, c.Compare(DInt(math.MaxInt64), Null))
	require.Equal(t, 0, c.Compare(Null, Null))

	require.Panics(t, func() { c.Compare(DInt(1), DString("1")) })
}

func TestEval(t *testing.T) {
	c := DefaultComparator
	testCases := []struct {
		op   Op
		a, b int64
		want bool
	}{
		{OpEq, 5, 5, true},
		{OpEq, 5, 6, false},
		{OpLt, 5, 6, true},
		{OpLt, 6, 6, false},
		{OpLe, 6, 6, true},
		{OpGt, 7, 6, true},
		{OpGt, 6, 6, false},
		{OpGe, 6, 6, true},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, Eval(c, tc.op, DInt(tc.a), DInt(tc.b)), "%d %s %d", tc.a, tc.op, tc.b)
	}
	require.False(t, Eval(c, OpEq, Null, Null))
	require.False(t, Eval(c, OpLe, Null, DInt(1)))
}

func TestBucket(t *testing.T) {
	c := DefaultComparator
	require.Equal(t, int64(100), c.Bucket(50, DInt(149)).Int())
	require.Equal(t, int64(150), c.Bucket(50, DInt(150)).Int())
	require.Equal(t, int64(-50), c.Bucket(50, DInt(-1)).Int())
	require.Equal(t, int64(-100), c.Bucket(50, DInt(-100)).Int())
	require.Equal(t, KindTimestamp, c.Bucket(60, DTimestamp(61)).Kind())
	// Widths <= 0 and non-bucketable kinds are left untouched.
	require.Equal(t, int64(149), c.Bucket(0, DInt(149)).Int())
	require.Equal(t, "x", string(c.Bucket(10, DString("x")).Bytes()))
}

func TestSumAccumulation(t *testing.T) {
	c := DefaultComparator
	s := ZeroSum(KindInt64)
	for i := 0; i < 4; i++ {
		s = c.Add(s, DInt(math.MaxInt64))
	}
	_, fits := s.Int.Int64()
	require.False(t, fits)
	require.Equal(t, "36893488147419103228", s.String())

	s = c.Add(s, DInt(math.MinInt64))
	s = c.Add(s, DInt(math.MinInt64))
	s = c.Add(s, DInt(math.MinInt64))
	s = c.Add(s, DInt(math.MinInt64))
	v, fits := s.Int.Int64()
	require.True(t, fits)
	require.Equal(t, int64(-4), v)

	f := ZeroSum(KindFloat64)
	f = c.Add(f, DFloat(1.5))
	f = c.Add(f, DFloat(2))
	require.Equal(t, 3.5, f.Datum().Float())
	require.Equal(t, f, SumFromWire(KindFloat64, f.Wire()))
}

func TestInt128(t *testing.T) {
	a := Int128FromInt64(-1)
	require.Equal(t, Int128{Hi: -1, Lo: math.MaxUint64}, a)
	b := a.Add(Int128FromInt64(1))
	require.Equal(t, Int128{}, b)
	require.Equal(t, -1, a.Cmp(b))
	require.Equal(t, 1, Int128{Hi: 1}.Cmp(Int128{Lo: math.MaxUint64}))
}

func TestDatumCodec(t *testing.T) {
	datums := []Datum{
		DBool(true), DBool(false), DInt(0), DInt(-1), DInt(math.MaxInt64),
		DFloat(3.25), DFloat(math.Inf(-1)), DTimestamp(1_700_000_000_000_000),
		DString(""), DString("hello"), DJSON([]byte(`{"a":1}`)),
	}
	var buf []byte
	for _, d := range datums {
		buf = AppendDatum(buf, d.Kind(), d)
	}
	dec := MakeDecoder(buf)
	for _, d := range datums {
		got := dec.Datum(d.Kind())
		require.NoError(t, dec.Err())
		require.Equal(t, 0, DefaultComparator.Compare(d, got), "%s != %s", d, got)
	}
	require.Equal(t, 0, dec.Len())

	dec = MakeDecoder(buf[:3])
	for _, d := range datums {
		dec.Datum(d.Kind())
	}
	require.True(t, errors.Is(dec.Err(), ErrCorruption))
}

func TestSchemaValidate(t *testing.T) {
	require.NoError(t, Schema{{Name: "a", Kind: KindInt64}}.Validate())
	require.Error(t, Schema{}.Validate())
	require.Error(t, Schema{{Name: "a", Kind: KindInvalid}}.Validate())
	require.Error(t, Schema{{Name: "a", Kind: KindInt64}, {Name: "a", Kind: KindBytes}}.Validate())

	k, err := ParseKind("Timestamp")
	require.NoError(t, err)
	require.Equal(t, KindTimestamp, k)
	_, err = ParseKind("decimal")
	require.Error(t, err)
}
