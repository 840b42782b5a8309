// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	minLatency = 10 * time.Microsecond
	maxLatency = 10 * time.Second
)

var benchConfig struct {
	scans       int
	concurrency int
	where       []string
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "measure scan latency over a synthetic table",
	Long: `
Writes --rows synthetic rows the way demo does, then runs --scans merged scans from
--concurrency goroutines and prints the latency distribution.
`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	f := benchCmd.Flags()
	f.IntVarP(&demoConfig.rows, "rows", "n", 10000, "number of rows to write")
	f.IntVar(&benchConfig.scans, "scans", 100, "number of scans to run")
	f.IntVarP(&benchConfig.concurrency, "concurrency", "c", 4, "number of concurrent scanners")
	f.StringArrayVarP(&benchConfig.where, "where", "w", nil, `predicate "column op value" (repeatable)`)
}

// benchResult accumulates the latencies of the scans of one goroutine.
type benchResult struct {
	hist *hdrhistogram.Histogram
	rows int64
}

func newBenchResult() *benchResult {
	return &benchResult{
		hist: hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 1),
	}
}

func (r *benchResult) record(d time.Duration) {
	if d < minLatency {
		d = minLatency
	} else if d > maxLatency {
		d = maxLatency
	}
	_ = r.hist.RecordValue(d.Nanoseconds())
}

func runBench(cmd *cobra.Command, _ []string) error {
	if benchConfig.concurrency <= 0 {
		return errors.New("--concurrency must be positive")
	}
	t, err := loadTable()
	if err != nil {
		return err
	}
	logger := base.NoopLogger
	if verbose {
		logger = base.DefaultLogger
	}
	tbl, err := t.open(logger)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := demoWrite(io.Discard, tbl); err != nil {
		return err
	}
	preds, err := t.parsePredicates(benchConfig.where)
	if err != nil {
		return err
	}

	total := newBenchResult()
	var mu sync.Mutex
	var g errgroup.Group
	start := crtime.NowMono()
	for w := 0; w < benchConfig.concurrency; w++ {
		n := benchConfig.scans / benchConfig.concurrency
		if w < benchConfig.scans%benchConfig.concurrency {
			n++
		}
		g.Go(func() error {
			res := newBenchResult()
			for i := 0; i < n; i++ {
				scanStart := crtime.NowMono()
				rows, err := benchScan(tbl, preds)
				if err != nil {
					return err
				}
				res.record(scanStart.Elapsed())
				res.rows += rows
			}
			mu.Lock()
			defer mu.Unlock()
			total.hist.Merge(res.hist)
			total.rows += res.rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := start.Elapsed()

	h := total.hist
	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Scans", "Rows", "Ops/sec", "Mean(ms)", "p50(ms)", "p95(ms)", "p99(ms)", "pMax(ms)"})
	ms := func(v float64) string { return fmt.Sprintf("%.3f", time.Duration(v).Seconds()*1000) }
	tw.Append([]string{
		fmt.Sprint(h.TotalCount()),
		fmt.Sprint(total.rows),
		fmt.Sprintf("%.1f", float64(h.TotalCount())/elapsed.Seconds()),
		ms(h.Mean()),
		ms(float64(h.ValueAtQuantile(50))),
		ms(float64(h.ValueAtQuantile(95))),
		ms(float64(h.ValueAtQuantile(99))),
		ms(float64(h.ValueAtQuantile(100))),
	})
	tw.Render()
	return nil
}

// benchScan runs one merged scan to completion and returns the number of rows
// it produced.
func benchScan(tbl *zonestore.Table, preds []base.Predicate) (int64, error) {
	s, err := tbl.NewScanner(zonestore.ScanOptions{Predicates: preds, Merged: true})
	if err != nil {
		return 0, err
	}
	var n int64
	for _, ok := s.Next(); ok; _, ok = s.Next() {
		n++
	}
	return n, s.Close()
}
