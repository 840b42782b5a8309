// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zoneindex

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/zonerecord"
	"github.com/stretchr/testify/require"
)

// testSchema is a schema of int64 columns c0 through c5.
var testSchema = func() base.Schema {
	s := make(base.Schema, 6)
	for i := range s {
		s[i] = base.Column{Name: fmt.Sprintf("c%d", i), Kind: base.KindInt64}
	}
	return s
}()

func parseInts(t *testing.T, vals []string) []int {
	var out []int
	for _, v := range vals {
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func TestDecide(t *testing.T) {
	var defs []Definition
	datadriven.RunTest(t, "testdata/decide", func(t *testing.T, d *datadriven.TestData) string {
		var orderKeys []int
		var groupKeys []base.GroupKey
		for _, arg := range d.CmdArgs {
			switch arg.Key {
			case "order":
				orderKeys = parseInts(t, arg.Vals)
			case "group":
				for _, v := range arg.Vals {
					col, width, _ := strings.Cut(v, ":")
					g := base.GroupKey{Col: parseInts(t, []string{col})[0]}
					if width != "" {
						w, err := strconv.ParseInt(width, 10, 64)
						require.NoError(t, err)
						g.BucketWidth = w
					}
					groupKeys = append(groupKeys, g)
				}
			default:
				t.Fatalf("unknown argument %s", arg.Key)
			}
		}

		switch d.Cmd {
		case "define":
			defs = BuildDefinitions("t", groupKeys, orderKeys)
			var sb strings.Builder
			for i := range defs {
				fmt.Fprintln(&sb, defs[i].String())
			}
			return sb.String()

		case "decide":
			var preds []base.Predicate
			for _, line := range strings.Split(d.Input, "\n") {
				if line = strings.TrimSpace(line); line == "" {
					continue
				}
				p, err := base.ParsePredicate(line, testSchema)
				require.NoError(t, err)
				preds = append(preds, p)
			}
			dec, ok := Decide(defs, orderKeys, preds, base.EqualityColumns(preds))
			if !ok {
				return "none"
			}
			return dec.String()

		default:
			return fmt.Sprintf("unknown command: %s", d.Cmd)
		}
	})
}

func TestDecideDeterministic(t *testing.T) {
	defs := BuildDefinitions("t", []base.GroupKey{{Col: 0}, {Col: 1, BucketWidth: 60}}, []int{2})
	preds := []base.Predicate{{Col: 2, Op: base.OpGe, Value: base.DInt(5)}}
	first, ok := Decide(defs, nil, preds, nil)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, ok := Decide(defs, nil, preds, nil)
		require.True(t, ok)
		require.Equal(t, first.Index, again.Index)
		require.Equal(t, first.Order, again.Order)
	}
}

func TestZoneColumnName(t *testing.T) {
	for _, role := range []Role{RoleMin, RoleMax, RoleGroup, RoleBucket} {
		name := ZoneColumnName(12, role)
		col, got, err := ParseZoneColumnName(name)
		require.NoError(t, err)
		require.Equal(t, 12, col)
		require.Equal(t, role, got)
	}
	require.Equal(t, "c3_min", ZoneColumnName(3, RoleMin))
	for _, bad := range []string{"c3", "x3_min", "c_min", "c-1_min", "c3_mid"} {
		_, _, err := ParseZoneColumnName(bad)
		require.Error(t, err, bad)
	}
}

func TestTranslatePredicates(t *testing.T) {
	cmp := base.DefaultComparator
	defs := BuildDefinitions("t", []base.GroupKey{{Col: 1, BucketWidth: 10}}, []int{0})
	minFirst, gkey := &defs[0], &defs[2]

	keys := TranslatePredicates(minFirst, []base.Predicate{
		{Col: 0, Op: base.OpEq, Value: base.DInt(7)},
		{Col: 0, Op: base.OpGt, Value: base.DInt(3)},
		{Col: 0, Op: base.OpLt, Value: base.DInt(9)},
		{Col: 1, Op: base.OpEq, Value: base.DInt(1)},
	}, cmp)
	var got []string
	for _, k := range keys {
		got = append(got, k.String())
	}
	require.Equal(t, []string{"#0 <= 7", "#0 < 9", "#1 >= 7", "#1 > 3"}, got)

	keys = TranslatePredicates(gkey, []base.Predicate{
		{Col: 1, Op: base.OpLt, Value: base.DInt(25)},
		{Col: 1, Op: base.OpEq, Value: base.DInt(37)},
	}, cmp)
	require.Equal(t, []ScanKey{
		{Pos: 0, Op: base.OpLe, Value: base.DInt(20)},
		{Pos: 0, Op: base.OpEq, Value: base.DInt(30)},
	}, keys)
}

func ints(vals ...int64) []base.Datum {
	out := make([]base.Datum, len(vals))
	for i, v := range vals {
		out[i] = base.DInt(v)
	}
	return out
}

func TestIndexScan(t *testing.T) {
	cmp := base.DefaultComparator
	defs := BuildDefinitions("t", nil, []int{0})
	x := New(defs[0], cmp)
	x.Insert(ints(1, 5), 1)
	x.Insert(ints(3, 8), 2)
	x.Insert(ints(6, 9), 3)
	x.Insert(ints(10, 12), 4)
	x.Insert([]base.Datum{base.Null, base.Null}, 5)
	require.Equal(t, 5, x.Len())

	eq7 := TranslatePredicates(x.Definition(), []base.Predicate{{Col: 0, Op: base.OpEq, Value: base.DInt(7)}}, cmp)
	require.Equal(t, []uint64{2, 3}, x.Scan(eq7, base.Forward))
	require.Equal(t, []uint64{3, 2}, x.Scan(eq7, base.Backward))

	gt8 := TranslatePredicates(x.Definition(), []base.Predicate{{Col: 0, Op: base.OpGt, Value: base.DInt(8)}}, cmp)
	require.Equal(t, []uint64{3, 4}, x.Scan(gt8, base.Forward))
	require.Equal(t, []uint64{4, 3}, x.Scan(gt8, base.Backward))

	le3 := TranslatePredicates(x.Definition(), []base.Predicate{{Col: 0, Op: base.OpLe, Value: base.DInt(3)}}, cmp)
	require.Equal(t, []uint64{1, 2}, x.Scan(le3, base.Forward))
	require.Equal(t, []uint64{2, 1}, x.Scan(le3, base.Backward))

	// Without scan keys every record is produced, NULL keys last.
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, x.Scan(nil, base.Forward))
	require.Equal(t, []uint64{5, 4, 3, 2, 1}, x.Scan(nil, base.Backward))

	require.Equal(t, []uint64{2}, x.Lookup(ints(3, 8)))
	require.True(t, x.Delete(ints(3, 8), 2))
	require.False(t, x.Delete(ints(3, 8), 2))
	require.Empty(t, x.Lookup(ints(3, 8)))
	require.Equal(t, 4, x.Len())
}

func TestIndexLookupDuplicates(t *testing.T) {
	defs := BuildDefinitions("t", []base.GroupKey{{Col: 0}}, nil)
	x := New(defs[0], base.DefaultComparator)
	x.Insert(ints(4), 9)
	x.Insert(ints(4), 2)
	x.Insert(ints(5), 1)
	x.Insert(ints(3), 7)
	require.Equal(t, []uint64{2, 9}, x.Lookup(ints(4)))
	require.Empty(t, x.Lookup(ints(6)))
}

func TestKeyOf(t *testing.T) {
	kinds := []base.Kind{base.KindInt64, base.KindTimestamp}
	cmp := base.DefaultComparator
	c := zonerecord.MakeCollector(kinds, cmp)
	c.AppendRow(base.Row{base.DInt(13), base.DTimestamp(125)})
	c.AppendRow(base.Row{base.DInt(17), base.DTimestamp(125)})
	data, err := zonerecord.Pack(zonerecord.LayoutV2, kinds, 1, nil, c.Finish())
	require.NoError(t, err)
	dec, err := zonerecord.NewDecoder("t", zonerecord.LayoutV2.Declaration(), kinds, cmp)
	require.NoError(t, err)
	rec, err := dec.Decode(data)
	require.NoError(t, err)

	defs := BuildDefinitions("t", []base.GroupKey{{Col: 1, BucketWidth: 100}}, []int{0})
	require.Len(t, defs, 4)
	require.Equal(t, "(13, 17)", base.Row(KeyOf(&defs[0], rec, cmp)).String())
	require.Equal(t, "(17, 13)", base.Row(KeyOf(&defs[1], rec, cmp)).String())
	require.Equal(t, base.Row{base.DTimestamp(100)}.String(), base.Row(KeyOf(&defs[2], rec, cmp)).String())
}
