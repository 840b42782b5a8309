// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonestore

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/block"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/compression"
	"github.com/cockroachdb/zonestore/internal/testutils"
	"github.com/cockroachdb/zonestore/zonerecord"
	"github.com/kr/pretty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var testSchema = base.Schema{
	{Name: "tenant", Kind: base.KindInt64},
	{Name: "seq", Kind: base.KindInt64},
	{Name: "v", Kind: base.KindFloat64},
	{Name: "note", Kind: base.KindBytes},
}

var testGroupKeys = []base.GroupKey{{Col: 0}}

func parseRow(t *testing.T, line string) base.Row {
	fields := strings.Fields(line)
	require.Len(t, fields, len(testSchema), "%q", line)
	row := make(base.Row, len(fields))
	for i, f := range fields {
		v, err := base.ParseDatum(testSchema[i].Kind, f)
		require.NoError(t, err)
		row[i] = v
	}
	return row
}

func parseCols(t *testing.T, vals []string) []int {
	var out []int
	for _, v := range vals {
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		out = append(out, n)
	}
	return out
}

func parseAggregate(t *testing.T, s string) Aggregate {
	name, arg, ok := strings.Cut(strings.TrimSuffix(s, ")"), "(")
	require.True(t, ok, "%q", s)
	f, err := ParseAggFunc(name)
	require.NoError(t, err)
	if arg == "*" {
		return Aggregate{Func: f, Col: -1}
	}
	for i := range testSchema {
		if testSchema[i].Name == arg {
			return Aggregate{Func: f, Col: i}
		}
	}
	t.Fatalf("unknown column %q", arg)
	return Aggregate{}
}

func formatScanStats(s *Scanner) string {
	var sb strings.Builder
	if d, ok := s.Decision(); ok {
		fmt.Fprintf(&sb, "index=%s", d.Definition.Name)
	} else {
		sb.WriteString("legacy")
	}
	st := s.Stats()
	fmt.Fprintf(&sb, " candidates=%d pruned=%d pruned-groups=%d groups=%d blocks-read=%d merged=%d\n",
		st.Candidates, st.Pruned, st.PrunedGroups, st.Groups, st.BlocksRead, st.Merged)
	return sb.String()
}

func TestTable(t *testing.T) {
	defer leaktest.AfterTest(t)()
	var tbl *Table
	var codec *block.MemCodec
	datadriven.RunTest(t, "testdata/table", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "open":
			codec = block.NewMemCodec(compression.Snappy)
			opts := &Options{Codec: codec, Logger: testutils.Logger{T: t}}
			for _, arg := range d.CmdArgs {
				switch arg.Key {
				case "on-conflict":
					opts.OnConflict = parseCols(t, arg.Vals)
				case "layout":
					l, err := zonerecord.ParseLayout(arg.Vals[0])
					require.NoError(t, err)
					opts.Layout = l
				case "disable-group-key-indexes":
					opts.DisableGroupKeyIndexes = true
				default:
					t.Fatalf("unknown argument %s", arg.Key)
				}
			}
			var err error
			tbl, err = Open("events", testSchema, testGroupKeys, []int{1}, opts)
			require.NoError(t, err)
			return "ok"

		case "write":
			w, err := tbl.NewWriter(WriterOptions{Append: d.HasArg("append")})
			require.NoError(t, err)
			for _, line := range strings.Split(d.Input, "\n") {
				if strings.TrimSpace(line) == "" {
					continue
				}
				require.NoError(t, w.Append(parseRow(t, line)))
			}
			require.NoError(t, w.Close())
			st := w.Stats()
			s := fmt.Sprintf("blocks=%d rows=%d merged-groups=%d retired=%d",
				st.Blocks, st.Rows, st.MergedGroups, st.Retired)
			if st.Degraded {
				s += " degraded"
			}
			return s

		case "catalog":
			return fmt.Sprintf("records=%d blocks=%d", tbl.Catalog().Len(), codec.Len())

		case "scan":
			opts := ScanOptions{Merged: d.HasArg("merged")}
			for _, arg := range d.CmdArgs {
				switch arg.Key {
				case "merged":
				case "dir":
					if arg.Vals[0] == "backward" {
						opts.Direction = base.Backward
					}
				case "order":
					opts.OrderKeys = parseCols(t, arg.Vals)
				case "snapshot":
					n, err := strconv.ParseUint(arg.Vals[0], 10, 64)
					require.NoError(t, err)
					opts.Snapshot = n
				default:
					t.Fatalf("unknown argument %s", arg.Key)
				}
			}
			for _, line := range strings.Split(d.Input, "\n") {
				if line = strings.TrimSpace(line); line == "" {
					continue
				}
				p, err := base.ParsePredicate(line, testSchema)
				require.NoError(t, err)
				opts.Predicates = append(opts.Predicates, p)
			}
			s, err := tbl.NewScanner(opts)
			if err != nil {
				return err.Error()
			}
			var sb strings.Builder
			for row, ok := s.Next(); ok; row, ok = s.Next() {
				fmt.Fprintln(&sb, row.String())
			}
			if err := s.Close(); err != nil {
				fmt.Fprintf(&sb, "error: %v\n", err)
			}
			sb.WriteString(formatScanStats(s))
			return sb.String()

		case "aggregate":
			var aggs []Aggregate
			var preds []base.Predicate
			var names []string
			for _, line := range strings.Split(d.Input, "\n") {
				line = strings.TrimSpace(line)
				switch {
				case line == "":
				case strings.HasPrefix(line, "where "):
					p, err := base.ParsePredicate(strings.TrimPrefix(line, "where "), testSchema)
					require.NoError(t, err)
					preds = append(preds, p)
				default:
					aggs = append(aggs, parseAggregate(t, line))
					names = append(names, line)
				}
			}
			res, st, err := tbl.Aggregate(aggs, preds, d.HasArg("merged"))
			if err != nil {
				return err.Error()
			}
			var sb strings.Builder
			for i := range res {
				fmt.Fprintf(&sb, "%s = %s\n", names[i], res[i])
			}
			fmt.Fprintf(&sb, "pushdown=%d rows=%d\n", st.PushedDown, st.RowsRead)
			return sb.String()

		default:
			return fmt.Sprintf("unknown command: %s", d.Cmd)
		}
	})
}

func openTestTable(t *testing.T, opts *Options) *Table {
	if opts == nil {
		opts = &Options{}
	}
	opts.Logger = testutils.Logger{T: t}
	return testutils.CheckErr(Open("events", testSchema, testGroupKeys, []int{1}, opts))
}

func writeRows(t *testing.T, tbl *Table, opts WriterOptions, rows ...base.Row) WriterStats {
	w, err := tbl.NewWriter(opts)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, w.Append(r))
	}
	require.NoError(t, w.Close())
	return w.Stats()
}

func scanAll(t *testing.T, tbl *Table, opts ScanOptions) []base.Row {
	s, err := tbl.NewScanner(opts)
	require.NoError(t, err)
	var out []base.Row
	for row, ok := s.Next(); ok; row, ok = s.Next() {
		r := make(base.Row, len(row))
		r.CopyFrom(row)
		out = append(out, r)
	}
	require.NoError(t, s.Close())
	return out
}

func testRow(tenant, seq int64, v float64, note string) base.Row {
	return base.Row{base.DInt(tenant), base.DInt(seq), base.DFloat(v), base.DString(note)}
}

func TestOpenUnsupportedMergeKey(t *testing.T) {
	_, err := Open("events", testSchema, testGroupKeys, []int{1}, &Options{OnConflict: []int{1}})
	require.True(t, errors.Is(err, base.ErrUnsupportedMergeKey), "%v", err)
	require.Contains(t, err.Error(), "seq")

	tbl := openTestTable(t, nil)
	_, err = tbl.NewWriter(WriterOptions{OnConflict: []int{2}})
	require.True(t, errors.Is(err, base.ErrUnsupportedMergeKey), "%v", err)
	_, err = tbl.NewWriter(WriterOptions{OnConflict: []int{0}})
	require.NoError(t, err)

	require.Equal(t, []int{0, 1}, tbl.SortKey())

	// Rows of different notes live in different groups and cannot conflict
	// with each other, so the conflict columns must name the note.
	groupKeys := []base.GroupKey{{Col: 0}, {Col: 3}}
	_, err = Open("events", testSchema, groupKeys, []int{1}, &Options{OnConflict: []int{0}})
	require.True(t, errors.Is(err, base.ErrUnsupportedMergeKey), "%v", err)
	require.Contains(t, err.Error(), "note")
	_, err = Open("events", testSchema, groupKeys, []int{1}, &Options{OnConflict: []int{0, 3}})
	require.NoError(t, err)
	// A group key that is also an order key need not be listed.
	_, err = Open("events", testSchema, groupKeys, []int{3, 1}, &Options{OnConflict: []int{0}})
	require.NoError(t, err)
}

func TestWriterValidatesRows(t *testing.T) {
	tbl := openTestTable(t, nil)
	w, err := tbl.NewWriter(WriterOptions{})
	require.NoError(t, err)
	require.Error(t, w.Append(base.Row{base.DInt(1)}))
	require.Error(t, w.Append(base.Row{base.DString("x"), base.DInt(1), base.DFloat(1), base.Null}))
	require.NoError(t, w.Append(base.Row{base.DInt(1), base.Null, base.Null, base.Null}))
	require.NoError(t, w.Close())
	require.Equal(t, 1, tbl.Catalog().Len())
}

func TestWriterAutoFlush(t *testing.T) {
	tbl := openTestTable(t, &Options{BlockRowLimit: 3, OnConflict: []int{0}})
	st := writeRows(t, tbl, WriterOptions{},
		testRow(1, 1, 1, "a"), testRow(1, 2, 1, "b"), testRow(2, 1, 1, "c"),
		testRow(1, 3, 1, "d"))
	// The first three rows flush as two blocks; the fourth merges into the
	// block of tenant 1 on close.
	require.Equal(t, 3, st.Blocks)
	require.Equal(t, 1, st.MergedGroups)
	require.Equal(t, 2, tbl.Catalog().Len())
	require.Len(t, scanAll(t, tbl, ScanOptions{Merged: true}), 4)
}

func TestWriterAppendOrderWithinSession(t *testing.T) {
	// Rows appended twice with the same sort key keep the last version.
	tbl := openTestTable(t, &Options{OnConflict: []int{0}})
	writeRows(t, tbl, WriterOptions{}, testRow(1, 1, 1, "old"), testRow(1, 1, 2, "new"))
	rows := scanAll(t, tbl, ScanOptions{})
	require.Len(t, rows, 1)
	require.Equal(t, `"new"`, rows[0][3].String())
}

// flakyCodec fails the next failures block writes.
type flakyCodec struct {
	*block.MemCodec
	failures int
}

func (c *flakyCodec) OpenForWrite(locator []byte) (block.WriteHandle, error) {
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("transient")
	}
	return c.MemCodec.OpenForWrite(locator)
}

func TestWriterRetriesFailedFlush(t *testing.T) {
	for _, disableIndexes := range []bool{false, true} {
		t.Run(fmt.Sprintf("degraded=%t", disableIndexes), func(t *testing.T) {
			codec := &flakyCodec{MemCodec: block.NewMemCodec(compression.NoCompression), failures: 1}
			tbl := openTestTable(t, &Options{
				Codec:                  codec,
				OnConflict:             []int{0},
				DisableGroupKeyIndexes: disableIndexes,
			})
			w, err := tbl.NewWriter(WriterOptions{})
			require.NoError(t, err)
			require.NoError(t, w.Append(testRow(1, 1, 1, "a")))
			require.NoError(t, w.Append(testRow(1, 1, 2, "b")))
			require.NoError(t, w.Append(testRow(1, 2, 3, "c")))
			require.ErrorContains(t, w.Flush(), "transient")
			require.Equal(t, 0, tbl.Catalog().Len())

			// The group stays buffered and the retry writes each row once.
			require.NoError(t, w.Close())
			require.Equal(t, 1, w.Stats().Blocks)
			require.Equal(t, 2, w.Stats().Rows)
			require.Equal(t, disableIndexes, w.Stats().Degraded)
			require.Equal(t, fmt.Sprint([]base.Row{testRow(1, 1, 2, "b"), testRow(1, 2, 3, "c")}),
				fmt.Sprint(scanAll(t, tbl, ScanOptions{})))
		})
	}
}

func TestScannerSnapshot(t *testing.T) {
	tbl := openTestTable(t, &Options{})
	writeRows(t, tbl, WriterOptions{}, testRow(1, 1, 1, "a"))
	writeRows(t, tbl, WriterOptions{}, testRow(1, 2, 1, "b"))
	writeRows(t, tbl, WriterOptions{}, testRow(1, 3, 1, "c"))
	require.Len(t, scanAll(t, tbl, ScanOptions{}), 3)
	require.Len(t, scanAll(t, tbl, ScanOptions{Snapshot: 2}), 2)
	require.Len(t, scanAll(t, tbl, ScanOptions{Snapshot: 2, OrderKeys: []int{1}}), 2)
}

func TestConcurrentScans(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tbl := openTestTable(t, &Options{BlockRowLimit: 4, OnConflict: []int{0}})
	var rows []base.Row
	for i := int64(0); i < 32; i++ {
		rows = append(rows, testRow(1, i%8, float64(i), "x"))
	}
	writeRows(t, tbl, WriterOptions{Append: true}, rows...)
	preds := []base.Predicate{{Col: 0, Op: base.OpEq, Value: base.DInt(1)}}
	want := scanAll(t, tbl, ScanOptions{Predicates: preds, Merged: true})
	require.Len(t, want, 8)

	scan := func() ([]string, error) {
		s, err := tbl.NewScanner(ScanOptions{Predicates: preds, Merged: true})
		if err != nil {
			return nil, err
		}
		var out []string
		for row, ok := s.Next(); ok; row, ok = s.Next() {
			out = append(out, row.String())
		}
		return out, s.Close()
	}
	var expected []string
	for _, r := range want {
		expected = append(expected, r.String())
	}

	// Scans of tenant 1 race with appends to tenant 2.
	var g errgroup.Group
	g.Go(func() error {
		for i := int64(0); i < 16; i++ {
			w, err := tbl.NewWriter(WriterOptions{Append: true})
			if err != nil {
				return err
			}
			if err := w.Append(testRow(2, i, 0, "y")); err != nil {
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
		}
		return nil
	})
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 10; j++ {
				got, err := scan()
				if err != nil {
					return err
				}
				if diff := pretty.Diff(expected, got); len(diff) > 0 {
					return errors.Errorf("scan %d: %v", j, diff)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, scanAll(t, tbl, ScanOptions{}), 32+16)
}

func TestScannerRejectsBadPredicates(t *testing.T) {
	tbl := openTestTable(t, nil)
	for _, p := range []base.Predicate{
		{Col: 9, Op: base.OpEq, Value: base.DInt(1)},
		{Col: 0, Op: base.OpEq, Value: base.DString("x")},
	} {
		_, err := tbl.NewScanner(ScanOptions{Predicates: []base.Predicate{p}})
		require.Error(t, err, "%s", p)
	}
	_, _, err := tbl.Aggregate([]Aggregate{{Func: AggSum, Col: 3}}, nil, false)
	require.Error(t, err)
	_, _, err = tbl.Aggregate([]Aggregate{{Func: AggMin, Col: -1}}, nil, false)
	require.Error(t, err)
}

func TestScannerCloseEarly(t *testing.T) {
	tbl := openTestTable(t, nil)
	writeRows(t, tbl, WriterOptions{}, testRow(1, 1, 1, "a"), testRow(1, 2, 1, "b"), testRow(2, 1, 1, "c"))
	s, err := tbl.NewScanner(ScanOptions{})
	require.NoError(t, err)
	_, ok := s.Next()
	require.True(t, ok)
	require.NoError(t, s.Close())
}

// TestMergedScanMatchesModel writes random versions of a small key space
// through appending and merging sessions and checks merged scans against a
// map of the newest version of every row.
func TestMergedScanMatchesModel(t *testing.T) {
	for _, setting := range []compression.Setting{compression.NoCompression, compression.ZstdLevel1, compression.MinLZFastest} {
		t.Run(setting.String(), func(t *testing.T) {
			tbl := openTestTable(t, &Options{Compression: setting, OnConflict: []int{0}})
			model := make(map[[2]int64]float64)
			v := 0.0
			for round := 0; round < 12; round++ {
				var rows []base.Row
				for i := 0; i < 10; i++ {
					tenant, seq := int64((round*7+i)%3), int64((round*5+i*3)%8)
					v++
					rows = append(rows, testRow(tenant, seq, v, ""))
					model[[2]int64{tenant, seq}] = v
				}
				writeRows(t, tbl, WriterOptions{Append: round%3 != 0}, rows...)
			}

			var want []base.Row
			for tenant := int64(0); tenant < 3; tenant++ {
				for seq := int64(0); seq < 8; seq++ {
					if v, ok := model[[2]int64{tenant, seq}]; ok {
						want = append(want, testRow(tenant, seq, v, ""))
					}
				}
			}
			got := scanAll(t, tbl, ScanOptions{Merged: true})
			if diff := pretty.Diff(want, got); diff != nil {
				t.Fatalf("merged scan differs from model:\n%s", strings.Join(diff, "\n"))
			}

			res, _, err := tbl.Aggregate([]Aggregate{{Func: AggCount, Col: -1}}, nil, true)
			require.NoError(t, err)
			require.Equal(t, base.DInt(int64(len(want))), res[0])
		})
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("zonestore", reg)
	tbl := openTestTable(t, &Options{Metrics: m, OnConflict: []int{0}})
	writeRows(t, tbl, WriterOptions{}, testRow(1, 1, 1, "a"), testRow(2, 1, 1, "b"))
	writeRows(t, tbl, WriterOptions{}, testRow(1, 2, 1, "c"))
	require.Equal(t, 3.0, testutil.ToFloat64(m.BlocksWritten))
	require.Equal(t, 4.0, testutil.ToFloat64(m.RowsWritten))
	require.Equal(t, 1.0, testutil.ToFloat64(m.GroupsMerged))
	require.Equal(t, 1, testutil.CollectAndCount(m.FlushLatency))

	scanAll(t, tbl, ScanOptions{})
	require.Equal(t, 1.0, testutil.ToFloat64(m.LegacyScans))
	scanAll(t, tbl, ScanOptions{Predicates: []base.Predicate{{Col: 2, Op: base.OpGt, Value: base.DFloat(5)}}})
	require.Equal(t, 2.0, testutil.ToFloat64(m.BlocksPruned))

	_, _, err := tbl.Aggregate([]Aggregate{{Func: AggCount, Col: -1}}, nil, true)
	require.NoError(t, err)
	require.Equal(t, 2.0, testutil.ToFloat64(m.Aggregates.WithLabelValues("pushdown")))

	degraded := openTestTable(t, &Options{Metrics: NewMetrics("degraded", nil), DisableGroupKeyIndexes: true, OnConflict: []int{0}})
	st := writeRows(t, degraded, WriterOptions{}, testRow(1, 1, 1, "a"))
	require.True(t, st.Degraded)
	require.Equal(t, 1.0, testutil.ToFloat64(degraded.Metrics().MergeDegraded))
}
