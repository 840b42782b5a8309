// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonerecord

import (
	"testing"

	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/stretchr/testify/require"
)

func TestMayMatchFullyMatches(t *testing.T) {
	kinds := []base.Kind{base.KindInt64, base.KindJSON}
	cmp := base.DefaultComparator
	r := packAndDecode(t, LayoutV2, kinds, 1, collect(kinds, []base.Row{
		{base.DInt(10), base.DJSON([]byte(`1`))},
		{base.DInt(20), base.DJSON([]byte(`2`))},
	}))

	testCases := []struct {
		op    base.Op
		v     int64
		may   bool
		fully bool
	}{
		{base.OpEq, 10, true, false},
		{base.OpEq, 15, true, false},
		{base.OpEq, 21, false, false},
		{base.OpLt, 10, false, false},
		{base.OpLt, 21, true, true},
		{base.OpLe, 10, true, false},
		{base.OpLe, 20, true, true},
		{base.OpGt, 20, false, false},
		{base.OpGt, 9, true, true},
		{base.OpGe, 20, true, false},
		{base.OpGe, 10, true, true},
	}
	for _, tc := range testCases {
		preds := []base.Predicate{{Col: 0, Op: tc.op, Value: base.DInt(tc.v)}}
		require.Equal(t, tc.may, MayMatch(r, preds, cmp), "c0 %s %d", tc.op, tc.v)
		require.Equal(t, tc.fully, FullyMatches(r, preds, cmp), "c0 %s %d", tc.op, tc.v)
	}

	// Unordered columns cannot prune and never fully match.
	preds := []base.Predicate{{Col: 1, Op: base.OpEq, Value: base.DJSON([]byte(`3`))}}
	require.True(t, MayMatch(r, preds, cmp))
	require.False(t, FullyMatches(r, preds, cmp))

	// A NULL operand matches nothing.
	require.False(t, MayMatch(r, []base.Predicate{{Col: 0, Op: base.OpEq, Value: base.Null}}, cmp))

	// A single-valued column fully matches its equality predicate.
	single := packAndDecode(t, LayoutV2, kinds, 2, collect(kinds, []base.Row{
		{base.DInt(7), base.Null},
		{base.DInt(7), base.Null},
	}))
	eq7 := []base.Predicate{{Col: 0, Op: base.OpEq, Value: base.DInt(7)}}
	require.True(t, FullyMatches(single, eq7, cmp))
	// An all-NULL column can match nothing.
	require.False(t, MayMatch(single, []base.Predicate{{Col: 1, Op: base.OpEq, Value: base.DJSON([]byte(`1`))}}, cmp))

	empty := packAndDecode(t, LayoutV2, kinds, 3, collect(kinds, nil))
	require.False(t, MayMatch(empty, nil, cmp))
	require.False(t, FullyMatches(empty, nil, cmp))
}

func TestCombine(t *testing.T) {
	kinds := []base.Kind{base.KindInt64}
	cmp := base.DefaultComparator
	a := packAndDecode(t, LayoutV2, kinds, 1, collect(kinds, []base.Row{{base.DInt(1)}, {base.DInt(3)}}))
	b := packAndDecode(t, LayoutV1, kinds, 2, collect(kinds, []base.Row{{base.DInt(9)}, {base.Null}, {base.DInt(5)}}))

	c := Combine([]Record{a, b}, len(kinds), cmp)
	require.Equal(t, uint64(5), c.RowCount(true))
	require.Equal(t, uint64(1), c.NullCount(0))
	lo, _, ok := c.Min(0)
	require.True(t, ok)
	require.Equal(t, int64(1), lo.Int())
	hi, _, _ := c.Max(0)
	require.Equal(t, int64(9), hi.Int())

	eq4 := []base.Predicate{{Col: 0, Op: base.OpEq, Value: base.DInt(4)}}
	require.False(t, MayMatch(a, eq4, cmp))
	require.False(t, MayMatch(b, eq4, cmp))
	require.True(t, MayMatch(c, eq4, cmp))
}
