// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package catalog

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/testutils"
	"github.com/cockroachdb/zonestore/zonerecord"
	"github.com/stretchr/testify/require"
)

// The test table has columns (tenant int64, ts timestamp, v float64), is
// grouped by tenant and hourly buckets of ts, and ordered by ts.
var testSchema = base.Schema{
	{Name: "tenant", Kind: base.KindInt64},
	{Name: "ts", Kind: base.KindTimestamp},
	{Name: "v", Kind: base.KindFloat64},
}

const hour = int64(3600 * 1e6)

var testGroupKeys = []base.GroupKey{{Col: 0}, {Col: 1, BucketWidth: hour}}

func newTestCatalog(t *testing.T, opts Options) *Catalog {
	opts.Logger = testutils.Logger{T: t}
	c, err := Create("metrics", testSchema, testGroupKeys, []int{1}, opts)
	require.NoError(t, err)
	return c
}

func row(tenant int64, ts int64, v float64) base.Row {
	return base.Row{base.DInt(tenant), base.DTimestamp(ts), base.DFloat(v)}
}

func pack(t *testing.T, c *Catalog, rows ...base.Row) []byte {
	coll := zonerecord.MakeCollector(c.Kinds(), c.Comparator())
	for _, r := range rows {
		coll.AppendRow(r)
	}
	batch := c.NextBatch()
	data, err := c.Pack(batch, []byte(fmt.Sprintf("block-%d", batch)), coll.Finish())
	require.NoError(t, err)
	return data
}

func store(t *testing.T, c *Catalog, retired []uint64, rows ...base.Row) uint64 {
	id, err := c.Store(pack(t, c, rows...), retired)
	require.NoError(t, err)
	return id
}

func ids(entries []*Entry) []uint64 {
	var out []uint64
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestCreate(t *testing.T) {
	c := newTestCatalog(t, Options{})
	require.Equal(t, zonerecord.LayoutV2, c.Layout())
	var names []string
	for _, d := range c.Definitions() {
		names = append(names, d.Name)
	}
	require.Equal(t, []string{
		"metrics_zone_omin", "metrics_zone_omax", "metrics_zone_gkey", "metrics_zone_gbucket",
	}, names)

	c = newTestCatalog(t, Options{Layout: zonerecord.LayoutV1, DisableGroupKeyIndexes: true})
	require.Equal(t, zonerecord.LayoutV1, c.Layout())
	require.Len(t, c.Definitions(), 2)

	// The declaration wins over the requested layout.
	c = newTestCatalog(t, Options{Layout: zonerecord.LayoutV2, Declaration: zonerecord.LayoutV1.Declaration()})
	require.Equal(t, zonerecord.LayoutV1, c.Layout())

	decl := zonerecord.LayoutV2.Declaration()
	decl[5].Type = zonerecord.FieldInt64Array
	_, err := Create("metrics", testSchema, testGroupKeys, nil, Options{Declaration: decl})
	require.True(t, errors.Is(err, base.ErrUnsupportedLayout), "%v", err)
	require.Contains(t, err.Error(), "metrics")

	for _, tc := range []struct {
		groupKeys []base.GroupKey
		orderKeys []int
	}{
		{groupKeys: []base.GroupKey{{Col: 3}}},
		{groupKeys: []base.GroupKey{{Col: 0}, {Col: 0}}},
		{groupKeys: []base.GroupKey{{Col: 2, BucketWidth: 10}}},
		{orderKeys: []int{-1}},
	} {
		_, err := Create("metrics", testSchema, tc.groupKeys, tc.orderKeys, Options{})
		require.Error(t, err)
	}
	_, err = Create("metrics", base.Schema{{Name: "j", Kind: base.KindJSON}}, []base.GroupKey{{Col: 0}}, nil, Options{})
	require.Error(t, err)
}

func TestStoreCollapse(t *testing.T) {
	c := newTestCatalog(t, Options{})
	a := store(t, c, nil, row(1, 10, 1), row(1, 20, 2))
	b := store(t, c, nil, row(1, 30, 3))
	d := store(t, c, nil, row(1, 40, 4))
	other := store(t, c, nil, row(2, 10, 5))
	require.Equal(t, 4, c.Len())

	entries, err := c.Fetch(row(1, 15, 0))
	require.NoError(t, err)
	require.Equal(t, []uint64{a, b, d}, ids(entries))

	// Replacing a group of three records inserts a new record and deletes
	// all three.
	merged := store(t, c, []uint64{a, b, d}, row(1, 10, 1), row(1, 20, 2), row(1, 30, 3), row(1, 40, 4))
	require.NotContains(t, []uint64{a, b, d, other}, merged)
	require.Equal(t, 2, c.Len())
	for _, id := range []uint64{a, b, d} {
		_, err := c.Get(id)
		require.True(t, errors.Is(err, base.ErrNotFound))
	}
	entries, err = c.Fetch(row(1, 0, 0))
	require.NoError(t, err)
	require.Equal(t, []uint64{merged}, ids(entries))

	// Replacing a single record updates it in place.
	again := store(t, c, []uint64{merged}, row(1, 10, 9))
	require.Equal(t, merged, again)
	require.Equal(t, 2, c.Len())
	e, err := c.Get(again)
	require.NoError(t, err)
	rec, err := e.Record()
	require.NoError(t, err)
	require.Equal(t, uint64(1), rec.RowCount(false))
	require.Equal(t, e.Batch, rec.Batch())

	// The old entry is no longer indexed under its previous key.
	d0, ok := c.DecideIndex([]int{1}, nil)
	require.True(t, ok)
	s := c.Scan(d0, []base.Predicate{{Col: 1, Op: base.OpGe, Value: base.DTimestamp(30)}}, base.Forward)
	require.Equal(t, 0, s.Len())
}

func TestStoreValidatesBeforeMutating(t *testing.T) {
	c := newTestCatalog(t, Options{})
	a := store(t, c, nil, row(1, 10, 1))

	_, err := c.Store(pack(t, c, row(1, 20, 2)), []uint64{a, 99})
	require.True(t, errors.Is(err, base.ErrNotFound))
	_, err = c.Store(pack(t, c, row(1, 20, 2)), []uint64{a, a})
	require.Error(t, err)
	data := pack(t, c, row(1, 20, 2))
	data[0] ^= 1
	_, err = c.Store(data, []uint64{a})
	require.True(t, errors.Is(err, base.ErrCorruption))

	require.Equal(t, 1, c.Len())
	_, err = c.Get(a)
	require.NoError(t, err)
}

func TestFetchUnsupported(t *testing.T) {
	c := newTestCatalog(t, Options{DisableGroupKeyIndexes: true})
	store(t, c, nil, row(1, 10, 1))
	_, err := c.Fetch(row(1, 10, 1))
	require.True(t, errors.Is(err, base.ErrMergeUnsupported))
}

func TestFetchBucketAligned(t *testing.T) {
	c := newTestCatalog(t, Options{})
	first := store(t, c, nil, row(1, 0, 1), row(1, hour-1, 1))
	second := store(t, c, nil, row(1, hour, 1))
	entries, err := c.Fetch(row(1, hour/2, 0))
	require.NoError(t, err)
	require.Equal(t, []uint64{first}, ids(entries))
	entries, err = c.Fetch(row(1, 2*hour-1, 0))
	require.NoError(t, err)
	require.Equal(t, []uint64{second}, ids(entries))
	require.Equal(t, []base.Datum{base.DInt(1), base.DTimestamp(hour)}, c.GroupValue(row(1, hour+5, 0)))
}

func TestScanAndFetchAll(t *testing.T) {
	for _, layout := range []zonerecord.Layout{zonerecord.LayoutV1, zonerecord.LayoutV2} {
		t.Run(layout.String(), func(t *testing.T) {
			c := newTestCatalog(t, Options{Layout: layout})
			r1 := store(t, c, nil, row(1, 10, 0), row(1, 19, 0))
			r2 := store(t, c, nil, row(2, 15, 0), row(2, 30, 0))
			r3 := store(t, c, nil, row(3, 40, 0), row(3, 50, 0))

			d, ok := c.DecideIndex([]int{1}, nil)
			require.True(t, ok)
			require.Equal(t, "metrics_zone_omin", d.Definition.Name)

			collect := func(s *ZoneScan) []uint64 {
				var out []uint64
				for e, ok := s.Next(); ok; e, ok = s.Next() {
					out = append(out, e.ID)
				}
				return out
			}
			require.Equal(t, []uint64{r1, r2, r3}, collect(c.Scan(d, nil, base.Forward)))
			require.Equal(t, []uint64{r3, r2, r1}, collect(c.Scan(d, nil, base.Backward)))

			eq := []base.Predicate{{Col: 1, Op: base.OpEq, Value: base.DTimestamp(17)}}
			require.Equal(t, []uint64{r1, r2}, collect(c.Scan(d, eq, base.Forward)))

			gt := []base.Predicate{{Col: 1, Op: base.OpGt, Value: base.DTimestamp(20)}}
			d, ok = c.DecideIndex(nil, gt)
			require.True(t, ok)
			require.Equal(t, "metrics_zone_omax", d.Definition.Name)
			require.Equal(t, []uint64{r2, r3}, collect(c.Scan(d, gt, base.Forward)))

			require.Equal(t, []uint64{r1, r2, r3}, ids(c.FetchAll(0)))
			require.Equal(t, []uint64{r1, r2}, ids(c.FetchAll(2)))
		})
	}
}
