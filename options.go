// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonestore

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/block"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/compression"
	"github.com/cockroachdb/zonestore/zonerecord"
)

const defaultBlockRowLimit = 4096

// Options holds the optional parameters for a Table.
type Options struct {
	// BlockRowLimit is the number of buffered rows at which a WriterSession
	// flushes on its own. The default is 4096.
	BlockRowLimit int

	// Codec persists blocks. The default is an in-memory codec using
	// Compression.
	Codec block.Codec

	// Comparator orders and sums column values. The default is
	// base.DefaultComparator.
	Comparator base.Comparator

	// Compression is the compression of block column streams for the default
	// codec. The default is Snappy.
	Compression compression.Setting

	// DisableGroupKeyIndexes creates the zone catalog without group-key
	// indexes. Writes then cannot merge on conflict and degrade to appends.
	DisableGroupKeyIndexes bool

	// Layout is the zone record layout of the table. The default is
	// zonerecord.LayoutV2.
	Layout zonerecord.Layout

	// Logger is used to report degradations and collapses. The default logs
	// through zap.
	Logger base.Logger

	// Metrics, if set, receives the table's counters.
	Metrics *Metrics

	// OnConflict are the group-key columns writers merge on by default. Rows
	// equal on these columns and the order keys replace each other, newest
	// first. Every group key that is not an order key must be listed, since
	// rows of different groups are never merged. An empty list makes writers
	// append.
	OnConflict []int

	// compressionSet is set when Parse read a compression setting, so that
	// EnsureDefaults does not override an explicit "none".
	compressionSet bool
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.BlockRowLimit <= 0 {
		o.BlockRowLimit = defaultBlockRowLimit
	}
	if o.Comparator == nil {
		o.Comparator = base.DefaultComparator
	}
	if o.Compression == (compression.Setting{}) && !o.compressionSet {
		o.Compression = compression.Snappy
	}
	if o.Codec == nil {
		o.Codec = block.NewMemCodec(o.Compression)
	}
	if o.Layout == 0 {
		o.Layout = zonerecord.LayoutV2
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	return o
}

// Clone creates a shallow-copy of the supplied options.
func (o *Options) Clone() *Options {
	n := &Options{}
	if o != nil {
		*n = *o
		n.OnConflict = append([]int(nil), o.OnConflict...)
	}
	return n
}

// String returns a string representation of the options in an INI-like
// format that Parse accepts.
func (o *Options) String() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[Version]\n")
	fmt.Fprintf(&buf, "  zonestore_version=0.1\n")
	fmt.Fprintf(&buf, "\n")
	fmt.Fprintf(&buf, "[Options]\n")
	fmt.Fprintf(&buf, "  block_row_limit=%d\n", o.BlockRowLimit)
	fmt.Fprintf(&buf, "  comparator=%s\n", o.Comparator.Name())
	fmt.Fprintf(&buf, "  compression=%s\n", o.Compression)
	fmt.Fprintf(&buf, "  disable_group_key_indexes=%t\n", o.DisableGroupKeyIndexes)
	fmt.Fprintf(&buf, "  layout=%s\n", o.Layout)
	if len(o.OnConflict) > 0 {
		cols := make([]string, len(o.OnConflict))
		for i, c := range o.OnConflict {
			cols[i] = strconv.Itoa(c)
		}
		fmt.Fprintf(&buf, "  on_conflict=%s\n", strings.Join(cols, ","))
	}
	return buf.String()
}

// ParseHooks contains callbacks to create options fields which can have
// user-defined implementations.
type ParseHooks struct {
	NewComparator func(name string) (base.Comparator, error)
	SkipUnknown   func(name, value string) bool
}

// Parse parses the options from the specified string. Note that certain
// options cannot be parsed into populated fields. For example, the codec and
// the logger are left untouched.
func (o *Options) Parse(s string, hooks *ParseHooks) error {
	var section string
	for lineNum, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 || line[0] == ';' || line[0] == '#' {
			// Skip blank lines and comments.
			continue
		}
		n := len(line)
		if line[0] == '[' && line[n-1] == ']' {
			section = line[1 : n-1]
			continue
		}
		pos := strings.Index(line, "=")
		if pos < 0 {
			const maxLen = 50
			if len(line) > maxLen {
				line = line[:maxLen-3] + "..."
			}
			return base.CorruptionErrorf("invalid key=value syntax on line %d: %q", errors.Safe(lineNum+1), errors.Safe(line))
		}
		key := strings.TrimSpace(line[:pos])
		value := strings.TrimSpace(line[pos+1:])
		if err := o.parseKeyValue(section, key, value, hooks); err != nil {
			return err
		}
	}
	return nil
}

func (o *Options) parseKeyValue(section, key, value string, hooks *ParseHooks) error {
	unknown := func() error {
		if hooks != nil && hooks.SkipUnknown != nil && hooks.SkipUnknown(section+"."+key, value) {
			return nil
		}
		return errors.Errorf("zonestore: unknown option: %s.%s", errors.Safe(section), errors.Safe(key))
	}

	switch section {
	case "Version":
		if key != "zonestore_version" {
			return unknown()
		}
		return nil

	case "Options":
		var err error
		switch key {
		case "block_row_limit":
			o.BlockRowLimit, err = strconv.Atoi(value)
		case "comparator":
			switch {
			case value == base.DefaultComparator.Name():
				o.Comparator = base.DefaultComparator
			case hooks != nil && hooks.NewComparator != nil:
				o.Comparator, err = hooks.NewComparator(value)
			default:
				err = errors.Errorf("unknown comparator %q", errors.Safe(value))
			}
		case "compression":
			o.Compression, err = compression.ParseSetting(value)
			o.compressionSet = err == nil
		case "disable_group_key_indexes":
			o.DisableGroupKeyIndexes, err = strconv.ParseBool(value)
		case "layout":
			o.Layout, err = zonerecord.ParseLayout(value)
		case "on_conflict":
			o.OnConflict = o.OnConflict[:0]
			for _, f := range strings.Split(value, ",") {
				var c int
				if c, err = strconv.Atoi(strings.TrimSpace(f)); err != nil {
					break
				}
				o.OnConflict = append(o.OnConflict, c)
			}
		default:
			return unknown()
		}
		if err != nil {
			return errors.Wrapf(err, "zonestore: parsing option %s", errors.Safe(key))
		}
		return nil

	default:
		if hooks != nil && hooks.SkipUnknown != nil && hooks.SkipUnknown(section+"."+key, value) {
			return nil
		}
		return errors.Errorf("zonestore: unknown section %q or key %q", errors.Safe(section), errors.Safe(key))
	}
}
