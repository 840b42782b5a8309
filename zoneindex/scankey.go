// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zoneindex

import (
	"fmt"

	"github.com/cockroachdb/zonestore/internal/base"
)

// ScanKey restricts one column of a zone index: "index column Pos op Value".
type ScanKey struct {
	Pos   int
	Op    base.Op
	Value base.Datum
}

func (k ScanKey) String() string {
	return fmt.Sprintf("#%d %s %s", k.Pos, k.Op, k.Value)
}

// TranslatePredicates turns predicates over data columns into scan keys over
// the index columns of def. A zone record satisfies the scan keys whenever
// its block may hold a row satisfying the predicates.
//
// An equality becomes <= on a min column and >= on a max column. A
// directional predicate only constrains the half it bounds: < and <= the min
// column, > and >= the max column. Group key columns hold the single group
// value of the block and keep the predicate as is; bucket columns compare
// against the bucket of the value.
func TranslatePredicates(def *Definition, preds []base.Predicate, cmp base.Comparator) []ScanKey {
	var keys []ScanKey
	for pos, kc := range def.Keys {
		for _, p := range preds {
			if p.Col != kc.Col || p.Value.IsNull() {
				continue
			}
			switch kc.Role {
			case RoleMin:
				switch p.Op {
				case base.OpEq:
					keys = append(keys, ScanKey{Pos: pos, Op: base.OpLe, Value: p.Value})
				case base.OpLt, base.OpLe:
					keys = append(keys, ScanKey{Pos: pos, Op: p.Op, Value: p.Value})
				}
			case RoleMax:
				switch p.Op {
				case base.OpEq:
					keys = append(keys, ScanKey{Pos: pos, Op: base.OpGe, Value: p.Value})
				case base.OpGt, base.OpGe:
					keys = append(keys, ScanKey{Pos: pos, Op: p.Op, Value: p.Value})
				}
			case RoleGroup:
				keys = append(keys, ScanKey{Pos: pos, Op: p.Op, Value: p.Value})
			case RoleBucket:
				// Buckets are aligned down, so a strict bound on the value is
				// only an inclusive bound on its bucket.
				op := p.Op
				switch op {
				case base.OpLt:
					op = base.OpLe
				case base.OpGt:
					op = base.OpGe
				}
				keys = append(keys, ScanKey{Pos: pos, Op: op, Value: cmp.Bucket(kc.BucketWidth, p.Value)})
			}
		}
	}
	return keys
}
