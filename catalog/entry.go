// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package catalog

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/zonerecord"
)

// Entry is one zone record of the catalog. Entries are immutable: replacing a
// record in place installs a new Entry under the same id, so an Entry handed
// out by a scan stays valid.
type Entry struct {
	ID    uint64
	Batch uint64

	data    []byte
	decoder *zonerecord.Decoder
	// keys holds the key of the entry in each index, by index position.
	keys [][]base.Datum

	once struct {
		sync.Once
		rec zonerecord.Record
		err error
	}
}

// Data returns the packed zone record.
func (e *Entry) Data() []byte { return e.data }

// Record returns the decoded zone record. It is decoded on first use; later
// calls return the same view.
func (e *Entry) Record() (zonerecord.Record, error) {
	e.once.Do(func() {
		e.once.rec, e.once.err = e.decoder.Decode(e.data)
	})
	return e.once.rec, e.once.err
}

// String implements fmt.Stringer.
func (e *Entry) String() string {
	return fmt.Sprintf("zone record %d (batch %d)", e.ID, e.Batch)
}

// ZoneScan iterates over the zone records selected by Catalog.Scan. The set
// of records is fixed when the scan is created.
type ZoneScan struct {
	entries []*Entry
	pos     int
}

// Next returns the next zone record, or false when the scan is exhausted.
func (s *ZoneScan) Next() (*Entry, bool) {
	if s.pos >= len(s.entries) {
		return nil, false
	}
	e := s.entries[s.pos]
	s.pos++
	return e, true
}

// Len returns the number of zone records the scan produces in total.
func (s *ZoneScan) Len() int { return len(s.entries) }
