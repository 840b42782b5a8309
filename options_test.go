// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonestore

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/compression"
	"github.com/cockroachdb/zonestore/zonerecord"
	"github.com/stretchr/testify/require"
)

func TestOptionsDefaults(t *testing.T) {
	var o *Options
	o = o.EnsureDefaults()
	require.Equal(t, defaultBlockRowLimit, o.BlockRowLimit)
	require.Equal(t, compression.Snappy, o.Compression)
	require.Equal(t, zonerecord.LayoutV2, o.Layout)
	require.NotNil(t, o.Codec)
	require.NotNil(t, o.Logger)
	require.Equal(t, base.DefaultComparator.Name(), o.Comparator.Name())
}

func TestOptionsString(t *testing.T) {
	o := (&Options{BlockRowLimit: 10, OnConflict: []int{0, 2}}).EnsureDefaults()
	require.Equal(t, `[Version]
  zonestore_version=0.1

[Options]
  block_row_limit=10
  comparator=zonestore.DefaultComparator
  compression=snappy
  disable_group_key_indexes=false
  layout=v2
  on_conflict=0,2
`, o.String())
}

func TestOptionsParse(t *testing.T) {
	for _, o := range []*Options{
		{},
		{BlockRowLimit: 7, Compression: compression.ZstdLevel3, Layout: zonerecord.LayoutV1},
		{DisableGroupKeyIndexes: true, OnConflict: []int{1}, Compression: compression.MinLZBalanced},
	} {
		o = o.Clone().EnsureDefaults()
		var parsed Options
		require.NoError(t, parsed.Parse(o.String(), nil))
		require.Equal(t, o.String(), parsed.EnsureDefaults().String())
	}

	// An explicit "none" survives EnsureDefaults.
	var o Options
	require.NoError(t, o.Parse("[Options]\n  compression=none\n", nil))
	require.Equal(t, compression.NoCompression, o.EnsureDefaults().Compression)

	err := o.Parse("[Options]\n  bogus=1\n", nil)
	require.Error(t, err)
	var skipped []string
	hooks := &ParseHooks{SkipUnknown: func(name, value string) bool {
		skipped = append(skipped, name+"="+value)
		return true
	}}
	require.NoError(t, o.Parse("[Options]\n  bogus=1\n[Other]\n  x=y\n", hooks))
	require.Equal(t, []string{"Options.bogus=1", "Other.x=y"}, skipped)

	err = o.Parse("[Options]\n  no equals sign\n", nil)
	require.True(t, errors.Is(err, base.ErrCorruption), "%v", err)
	require.Error(t, o.Parse("[Options]\n  layout=v9\n", nil))
	require.Error(t, o.Parse("[Options]\n  on_conflict=1,x\n", nil))

	var custom base.Comparator = base.DefaultComparator
	hooks = &ParseHooks{NewComparator: func(name string) (base.Comparator, error) {
		if name != "custom" {
			return nil, errors.Newf("unknown comparator %s", name)
		}
		return custom, nil
	}}
	require.NoError(t, o.Parse("[Options]\n  comparator=custom\n", hooks))
	require.Error(t, o.Parse("[Options]\n  comparator=other\n", hooks))

	// Without a hook only the default comparator is known.
	require.ErrorContains(t, o.Parse("[Options]\n  comparator=custom\n", nil), "unknown comparator")
	require.NoError(t, o.Parse("[Options]\n  comparator=zonestore.DefaultComparator\n", nil))
}

func TestOptionsClone(t *testing.T) {
	o := &Options{OnConflict: []int{0}}
	c := o.Clone()
	c.OnConflict[0] = 5
	require.Equal(t, []int{0}, o.OnConflict)
	require.NotNil(t, (*Options)(nil).Clone())
}
