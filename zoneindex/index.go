// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zoneindex

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/cockroachdb/zonestore/internal/invariants"
	"github.com/cockroachdb/zonestore/zonerecord"
	googlebtree "github.com/google/btree"
)

// KeyOf returns the index key of a zone record under def. Columns without
// statistics (all NULL, or an unordered kind) are keyed by NULL, which sorts
// last and satisfies no scan key.
func KeyOf(def *Definition, rec zonerecord.Bounds, cmp base.Comparator) []base.Datum {
	key := make([]base.Datum, len(def.Keys))
	for i, kc := range def.Keys {
		var v base.Datum
		var ok bool
		switch kc.Role {
		case RoleMin, RoleGroup, RoleBucket:
			v, _, ok = rec.Min(kc.Col)
		case RoleMax:
			v, _, ok = rec.Max(kc.Col)
		}
		if !ok {
			continue
		}
		if kc.Role == RoleBucket {
			v = cmp.Bucket(kc.BucketWidth, v)
		}
		key[i] = v.Clone()
	}
	return key
}

// entry is one zone record in an index. Pivot entries used for seeking carry
// a key prefix and a bound that places them before (-1) or after (+1) every
// entry sharing that prefix.
type entry struct {
	key   []base.Datum
	id    uint64
	bound int8
}

// Index is the ordered, in-memory form of one zone index: zone record ids
// ordered by their index key, ties broken by id.
//
// Index is not safe for concurrent mutation; the catalog serializes access.
type Index struct {
	def  Definition
	cmp  base.Comparator
	tree *googlebtree.BTreeG[entry]
}

// New returns an empty index for def.
func New(def Definition, cmp base.Comparator) *Index {
	x := &Index{def: def, cmp: cmp}
	x.tree = googlebtree.NewG[entry](8, x.less)
	return x
}

func (x *Index) compareKeys(a, b []base.Datum) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := x.cmp.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func (x *Index) less(a, b entry) bool {
	if c := x.compareKeys(a.key, b.key); c != 0 {
		return c < 0
	}
	if a.bound != b.bound {
		return a.bound < b.bound
	}
	return a.id < b.id
}

// Definition returns the definition of the index.
func (x *Index) Definition() *Definition { return &x.def }

// Len returns the number of zone records in the index.
func (x *Index) Len() int { return x.tree.Len() }

// Insert adds a zone record with the given key.
func (x *Index) Insert(key []base.Datum, id uint64) {
	if len(key) != len(x.def.Keys) {
		panic(errors.AssertionFailedf("index %s: key has %d columns, expected %d",
			x.def.Name, len(key), len(x.def.Keys)))
	}
	_, existed := x.tree.ReplaceOrInsert(entry{key: key, id: id})
	if invariants.Enabled && existed {
		panic(errors.AssertionFailedf("index %s: zone record %d already indexed", x.def.Name, id))
	}
}

// Delete removes a zone record, returning false if it was not indexed under
// the key.
func (x *Index) Delete(key []base.Datum, id uint64) bool {
	_, ok := x.tree.Delete(entry{key: key, id: id})
	return ok
}

// Lookup returns the ids of the zone records whose key equals key, in index
// order.
func (x *Index) Lookup(key []base.Datum) []uint64 {
	var ids []uint64
	x.tree.AscendGreaterOrEqual(entry{key: key, bound: -1}, func(e entry) bool {
		if x.compareKeys(e.key, key) != 0 {
			return false
		}
		ids = append(ids, e.id)
		return true
	})
	return ids
}

// Scan returns the ids of the zone records satisfying every scan key, in
// index order for Forward and reverse index order for Backward. Scan keys on
// the leading index column narrow the range of the tree that is visited.
func (x *Index) Scan(keys []ScanKey, dir base.Direction) []uint64 {
	var lower, upper *ScanKey
	for i := range keys {
		k := &keys[i]
		if k.Pos != 0 {
			continue
		}
		if k.Op == base.OpEq || k.Op.Lower() {
			if lower == nil || x.cmp.Compare(k.Value, lower.Value) > 0 {
				lower = k
			}
		}
		if k.Op == base.OpEq || k.Op.Upper() {
			if upper == nil || x.cmp.Compare(k.Value, upper.Value) < 0 {
				upper = k
			}
		}
	}

	var ids []uint64
	visit := func(e entry) bool {
		lead := e.key[0]
		if dir == base.Forward && upper != nil && !lead.IsNull() &&
			x.cmp.Compare(lead, upper.Value) > 0 {
			return false
		}
		if dir == base.Backward && lower != nil && !lead.IsNull() &&
			x.cmp.Compare(lead, lower.Value) < 0 {
			return false
		}
		for _, k := range keys {
			if !base.Eval(x.cmp, k.Op, e.key[k.Pos], k.Value) {
				return true
			}
		}
		ids = append(ids, e.id)
		return true
	}

	switch {
	case dir == base.Forward && lower != nil:
		x.tree.AscendGreaterOrEqual(entry{key: []base.Datum{lower.Value}, bound: -1}, visit)
	case dir == base.Forward:
		x.tree.Ascend(visit)
	case upper != nil:
		x.tree.DescendLessOrEqual(entry{key: []base.Datum{upper.Value}, bound: +1}, visit)
	default:
		x.tree.Descend(visit)
	}
	return ids
}

