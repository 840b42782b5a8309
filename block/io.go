// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
)

// Write persists the block through the codec under the given locator and
// returns the descriptor of the written block.
func Write(c Codec, locator []byte, b *Block) (Descriptor, error) {
	h, err := c.OpenForWrite(locator)
	if err != nil {
		return Descriptor{}, err
	}
	for p, col := range b.order {
		if _, err := h.WriteColumn(col, b.kinds[p], b.values[p], b.nulls[p]); err != nil {
			h.Abort()
			return Descriptor{}, errors.Wrapf(err, "writing column %d of block %d", errors.Safe(col), errors.Safe(b.batch))
		}
	}
	return h.Close()
}

// Load reads a whole block back through the codec. batch is the batch
// number recorded in the block's zone record.
func Load(c Codec, desc Descriptor, batch uint64) (_ *Block, err error) {
	r, err := c.OpenForRead(desc)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.CombineErrors(err, r.Close()) }()

	b := &Block{
		batch:   batch,
		numRows: r.NumRows(),
		order:   make([]int, len(desc.Columns)),
		kinds:   make([]base.Kind, len(desc.Columns)),
		values:  make([][]base.Datum, len(desc.Columns)),
	}
	seen := make([]bool, len(desc.Columns))
	for p, ext := range desc.Columns {
		if ext.Col < 0 || ext.Col >= len(seen) || seen[ext.Col] {
			return nil, base.CorruptionErrorf("zonestore: block %q has an invalid column order", desc.Locator)
		}
		seen[ext.Col] = true
		b.order[p] = ext.Col
		b.kinds[p] = ext.Kind
		values, nulls, err := r.ReadColumn(p, 0, b.numRows)
		if err != nil {
			return nil, err
		}
		b.values[p] = values
		b.nulls = append(b.nulls, nulls)
	}
	return b, nil
}
