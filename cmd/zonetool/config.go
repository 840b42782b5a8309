// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/compression"
	"github.com/cockroachdb/zonestore/zonerecord"
)

// tableConfig is the TOML description of a table.
type tableConfig struct {
	Name      string           `toml:"name"`
	Columns   []columnConfig   `toml:"columns"`
	GroupKeys []groupKeyConfig `toml:"group-keys"`
	OrderKeys []string         `toml:"order-keys"`

	OnConflict             []string `toml:"on-conflict"`
	Compression            string   `toml:"compression"`
	Layout                 string   `toml:"layout"`
	BlockRowLimit          int      `toml:"block-row-limit"`
	DisableGroupKeyIndexes bool     `toml:"disable-group-key-indexes"`
}

type columnConfig struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"`
}

type groupKeyConfig struct {
	Column string `toml:"column"`
	// BucketWidth aligns values down to a multiple of the width. For
	// timestamps it is in microseconds.
	BucketWidth int64 `toml:"bucket-width"`
}

const hourMicros = 3600 * 1000 * 1000

// defaultConfig is the table zonetool uses without --config.
var defaultConfig = tableConfig{
	Name: "events",
	Columns: []columnConfig{
		{Name: "tenant", Kind: "int64"},
		{Name: "ts", Kind: "timestamp"},
		{Name: "value", Kind: "float64"},
		{Name: "source", Kind: "bytes"},
	},
	GroupKeys:   []groupKeyConfig{{Column: "tenant"}, {Column: "ts", BucketWidth: hourMicros}},
	OrderKeys:   []string{"ts"},
	OnConflict:  []string{"tenant", "ts"},
	Compression: "snappy",
	Layout:      "v2",
}

// loadConfig reads the table description at path, or returns the default
// description if path is empty.
func loadConfig(path string) (tableConfig, error) {
	if path == "" {
		return defaultConfig, nil
	}
	var cfg tableConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return tableConfig{}, errors.Wrapf(err, "reading %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return tableConfig{}, errors.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if cfg.Name == "" {
		cfg.Name = defaultConfig.Name
	}
	return cfg, nil
}

// table is a parsed table description.
type table struct {
	name      string
	schema    base.Schema
	groupKeys []base.GroupKey
	orderKeys []int
	opts      *zonestore.Options
}

func (c *tableConfig) column(schema base.Schema, name string) (int, error) {
	for i := range schema {
		if schema[i].Name == name {
			return i, nil
		}
	}
	return -1, errors.Errorf("table %s: unknown column %q", c.Name, name)
}

func (c *tableConfig) columns(schema base.Schema, names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		col, err := c.column(schema, name)
		if err != nil {
			return nil, err
		}
		out[i] = col
	}
	return out, nil
}

// parse validates the description and builds the table's options.
func (c *tableConfig) parse() (*table, error) {
	t := &table{name: c.Name, opts: &zonestore.Options{}}
	for _, col := range c.Columns {
		kind, err := base.ParseKind(col.Kind)
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", col.Name)
		}
		t.schema = append(t.schema, base.Column{Name: col.Name, Kind: kind})
	}
	if err := t.schema.Validate(); err != nil {
		return nil, err
	}
	for _, g := range c.GroupKeys {
		col, err := c.column(t.schema, g.Column)
		if err != nil {
			return nil, err
		}
		t.groupKeys = append(t.groupKeys, base.GroupKey{Col: col, BucketWidth: g.BucketWidth})
	}
	var err error
	if t.orderKeys, err = c.columns(t.schema, c.OrderKeys); err != nil {
		return nil, err
	}
	if t.opts.OnConflict, err = c.columns(t.schema, c.OnConflict); err != nil {
		return nil, err
	}
	if c.Compression != "" {
		if t.opts.Compression, err = compression.ParseSetting(c.Compression); err != nil {
			return nil, err
		}
	}
	if c.Layout != "" {
		if t.opts.Layout, err = zonerecord.ParseLayout(c.Layout); err != nil {
			return nil, err
		}
	}
	t.opts.BlockRowLimit = c.BlockRowLimit
	t.opts.DisableGroupKeyIndexes = c.DisableGroupKeyIndexes
	return t, nil
}

// open creates the described table.
func (t *table) open(logger base.Logger) (*zonestore.Table, error) {
	opts := t.opts.Clone()
	opts.Logger = logger
	return zonestore.Open(t.name, t.schema, t.groupKeys, t.orderKeys, opts)
}

// loadTable reads and parses the table description given by --config.
func loadTable() (*table, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return cfg.parse()
}

// parsePredicates parses predicates of the form "column op value".
func (t *table) parsePredicates(exprs []string) ([]base.Predicate, error) {
	preds := make([]base.Predicate, 0, len(exprs))
	for _, e := range exprs {
		p, err := base.ParsePredicate(e, t.schema)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}
