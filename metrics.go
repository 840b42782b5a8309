// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonestore

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters a Table reports to.
type Metrics struct {
	// BlocksWritten counts blocks written by writer sessions.
	BlocksWritten prometheus.Counter
	// RowsWritten counts rows in written blocks, after merging.
	RowsWritten prometheus.Counter
	// GroupsMerged counts flushes that folded existing blocks of a group into
	// the new block.
	GroupsMerged prometheus.Counter
	// MergeDegraded counts flushes that appended because the catalog cannot
	// fetch by group key.
	MergeDegraded prometheus.Counter
	// BlocksPruned counts blocks a scan skipped because their zone records
	// cannot match the predicates.
	BlocksPruned prometheus.Counter
	// BlocksRead counts blocks loaded by scans.
	BlocksRead prometheus.Counter
	// RowsMerged counts rows folded into a newer version while scanning.
	RowsMerged prometheus.Counter
	// LegacyScans counts scans without a usable zone index.
	LegacyScans prometheus.Counter
	// Aggregates counts aggregate evaluations per group, labeled by whether
	// the zone record answered them ("pushdown") or rows were read
	// ("rows").
	Aggregates *prometheus.CounterVec
	// FlushLatency observes the duration of writer flushes in seconds.
	FlushLatency prometheus.Histogram
}

// NewMetrics creates the table metrics under the given namespace and
// registers them with reg, if non-nil.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		BlocksWritten: counter("blocks_written_total", "Blocks written by writer sessions."),
		RowsWritten:   counter("rows_written_total", "Rows in written blocks."),
		GroupsMerged:  counter("groups_merged_total", "Flushes that merged existing blocks of a group."),
		MergeDegraded: counter("merge_degraded_total", "Flushes that appended because merging is unsupported."),
		BlocksPruned:  counter("blocks_pruned_total", "Blocks skipped using zone records."),
		BlocksRead:    counter("blocks_read_total", "Blocks loaded by scans."),
		RowsMerged:    counter("rows_merged_total", "Rows folded into a newer version while scanning."),
		LegacyScans:   counter("legacy_scans_total", "Scans without a usable zone index."),
		Aggregates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_groups_total",
			Help:      "Groups visited by aggregates, by evaluation method.",
		}, []string{"method"}),
		FlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_latency_seconds",
			Help:      "Duration of writer flushes.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BlocksWritten, m.RowsWritten, m.GroupsMerged, m.MergeDegraded,
			m.BlocksPruned, m.BlocksRead, m.RowsMerged, m.LegacyScans, m.Aggregates, m.FlushLatency)
	}
	return m
}
