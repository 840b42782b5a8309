// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
)

var demoConfig struct {
	rows     int
	sessions int
	tenants  int
	span     time.Duration
	appendN  int
	seed     int64
	where    []string
	order    []string
	aggs     []string
	merged   bool
	reverse  bool
	limit    int
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "write synthetic rows to a table and scan them",
	Long: `
Writes --rows synthetic rows through --sessions writer sessions, then scans
the table with the given predicates and prints the rows, the zone index the
scan used, aggregates and the table's metrics.

Every --append'th session appends instead of merging on conflict, so merged
scans have stale versions to fold.
`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	f := demoCmd.Flags()
	f.IntVarP(&demoConfig.rows, "rows", "n", 10000, "number of rows to write")
	f.IntVar(&demoConfig.sessions, "sessions", 4, "number of writer sessions")
	f.IntVar(&demoConfig.tenants, "tenants", 4, "number of distinct tenants")
	f.DurationVar(&demoConfig.span, "span", 6*time.Hour, "time span of generated timestamps")
	f.IntVar(&demoConfig.appendN, "append", 2, "every n-th session appends (0 disables)")
	f.Int64Var(&demoConfig.seed, "seed", 1, "random seed")
	f.StringArrayVarP(&demoConfig.where, "where", "w", nil, `predicate "column op value" (repeatable)`)
	f.StringSliceVar(&demoConfig.order, "order", nil, "order keys the scan asks for")
	f.StringArrayVar(&demoConfig.aggs, "agg", nil, `aggregate such as "count(*)" or "sum(value)" (repeatable)`)
	f.BoolVar(&demoConfig.merged, "merged", true, "produce only the newest version of every row")
	f.BoolVarP(&demoConfig.reverse, "reverse", "r", false, "scan backward")
	f.IntVar(&demoConfig.limit, "limit", 20, "maximum number of rows to print")
}

var sources = []string{"api", "batch", "stream"}

// genRow generates a row for the demo schema or, for other schemas, a row of
// small values of each column's kind.
func genRow(rng *rand.Rand, schema base.Schema, start time.Time) base.Row {
	row := make(base.Row, len(schema))
	for i, c := range schema {
		switch c.Kind {
		case base.KindBool:
			row[i] = base.DBool(rng.Intn(2) == 1)
		case base.KindInt64:
			row[i] = base.DInt(int64(rng.Intn(demoConfig.tenants) + 1))
		case base.KindFloat64:
			row[i] = base.DFloat(float64(rng.Intn(10000)) / 100)
		case base.KindTimestamp:
			minutes := rng.Int63n(int64(demoConfig.span/time.Minute) + 1)
			row[i] = base.DTime(start.Add(time.Duration(minutes) * time.Minute))
		case base.KindBytes:
			row[i] = base.DString(sources[rng.Intn(len(sources))])
		default:
			row[i] = base.Null
		}
	}
	return row
}

func runDemo(cmd *cobra.Command, _ []string) error {
	t, err := loadTable()
	if err != nil {
		return err
	}
	logger := base.NoopLogger
	if verbose {
		logger = base.DefaultLogger
	}
	reg := prometheus.NewRegistry()
	t.opts.Metrics = zonestore.NewMetrics("zonestore", reg)
	tbl, err := t.open(logger)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if err := demoWrite(out, tbl); err != nil {
		return err
	}
	preds, err := t.parsePredicates(demoConfig.where)
	if err != nil {
		return err
	}
	if err := demoScan(out, t, tbl, preds); err != nil {
		return err
	}
	if len(demoConfig.aggs) > 0 {
		if err := demoAggregate(out, t, tbl, preds); err != nil {
			return err
		}
	}
	return printMetrics(out, reg)
}

func demoWrite(out io.Writer, tbl *zonestore.Table) error {
	if demoConfig.sessions <= 0 || demoConfig.tenants <= 0 {
		return errors.New("--sessions and --tenants must be positive")
	}
	rng := rand.New(rand.NewSource(uint64(demoConfig.seed)))
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	perSession := (demoConfig.rows + demoConfig.sessions - 1) / demoConfig.sessions

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Session", "Mode", "Blocks", "Rows", "Merged groups", "Retired"})
	written := 0
	for s := 0; s < demoConfig.sessions && written < demoConfig.rows; s++ {
		appendOnly := demoConfig.appendN > 0 && (s+1)%demoConfig.appendN == 0
		w, err := tbl.NewWriter(zonestore.WriterOptions{Append: appendOnly})
		if err != nil {
			return err
		}
		for i := 0; i < perSession && written < demoConfig.rows; i++ {
			if err := w.Append(genRow(rng, tbl.Schema(), start)); err != nil {
				return err
			}
			written++
		}
		if err := w.Close(); err != nil {
			return err
		}
		st := w.Stats()
		mode := "merge"
		switch {
		case st.Degraded:
			mode = "append (degraded)"
		case appendOnly || len(tbl.Options().OnConflict) == 0:
			mode = "append"
		}
		tw.Append([]string{
			fmt.Sprint(s + 1), mode, fmt.Sprint(st.Blocks), fmt.Sprint(st.Rows),
			fmt.Sprint(st.MergedGroups), fmt.Sprint(st.Retired),
		})
	}
	tw.Render()
	fmt.Fprintf(out, "%d zone records\n\n", tbl.Catalog().Len())
	return nil
}

func demoScan(out io.Writer, t *table, tbl *zonestore.Table, preds []base.Predicate) error {
	cfg := &tableConfig{Name: t.name}
	order, err := cfg.columns(t.schema, demoConfig.order)
	if err != nil {
		return err
	}
	opts := zonestore.ScanOptions{
		Predicates: preds,
		OrderKeys:  order,
		Merged:     demoConfig.merged,
	}
	if demoConfig.reverse {
		opts.Direction = base.Backward
	}
	s, err := tbl.NewScanner(opts)
	if err != nil {
		return err
	}
	if d, ok := s.Decision(); ok {
		fmt.Fprintf(out, "zone index: %s\n", d.Definition)
	} else {
		fmt.Fprintf(out, "zone index: none (full catalog scan)\n")
	}

	header := make([]string, len(t.schema))
	for i := range t.schema {
		header[i] = t.schema[i].Name
	}
	tw := tablewriter.NewWriter(out)
	tw.SetHeader(header)
	n := 0
	for row, ok := s.Next(); ok; row, ok = s.Next() {
		if n < demoConfig.limit {
			cells := make([]string, len(row))
			for i := range row {
				cells[i] = row[i].String()
			}
			tw.Append(cells)
		}
		n++
	}
	if err := s.Close(); err != nil {
		return err
	}
	tw.Render()
	st := s.Stats()
	fmt.Fprintf(out, "%d rows; %d candidate records, %d pruned, %d groups pruned, %d groups read, %d blocks read, %d rows merged\n\n",
		n, st.Candidates, st.Pruned, st.PrunedGroups, st.Groups, st.BlocksRead, st.Merged)
	return nil
}

// parseAggregate parses "func(column)" or "count(*)".
func (t *table) parseAggregate(s string) (zonestore.Aggregate, error) {
	name, arg, ok := strings.Cut(strings.TrimSuffix(strings.TrimSpace(s), ")"), "(")
	if !ok {
		return zonestore.Aggregate{}, errors.Errorf("malformed aggregate %q", s)
	}
	f, err := zonestore.ParseAggFunc(name)
	if err != nil {
		return zonestore.Aggregate{}, err
	}
	if arg == "*" {
		return zonestore.Aggregate{Func: f, Col: -1}, nil
	}
	cfg := &tableConfig{Name: t.name}
	col, err := cfg.column(t.schema, strings.TrimSpace(arg))
	if err != nil {
		return zonestore.Aggregate{}, err
	}
	return zonestore.Aggregate{Func: f, Col: col}, nil
}

func demoAggregate(out io.Writer, t *table, tbl *zonestore.Table, preds []base.Predicate) error {
	aggs := make([]zonestore.Aggregate, len(demoConfig.aggs))
	for i, s := range demoConfig.aggs {
		a, err := t.parseAggregate(s)
		if err != nil {
			return err
		}
		aggs[i] = a
	}
	res, st, err := tbl.Aggregate(aggs, preds, demoConfig.merged)
	if err != nil {
		return err
	}
	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Aggregate", "Result"})
	for i := range res {
		tw.Append([]string{demoConfig.aggs[i], res[i].String()})
	}
	tw.Render()
	fmt.Fprintf(out, "%d groups: %d answered from zone records, %d read\n\n", st.Groups, st.PushedDown, st.RowsRead)
	return nil
}

// printMetrics prints every counter of the registry.
func printMetrics(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Metric", "Labels", "Value"})
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			var value string
			switch {
			case m.GetCounter() != nil:
				value = fmt.Sprint(m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				value = fmt.Sprintf("count=%d sum=%.6fs", h.GetSampleCount(), h.GetSampleSum())
			default:
				continue
			}
			tw.Append([]string{mf.GetName(), strings.Join(labels, ","), value})
		}
	}
	tw.Render()
	return nil
}
