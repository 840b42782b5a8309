// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zoneindex

import (
	"fmt"
	"slices"

	"github.com/cockroachdb/zonestore/internal/base"
)

// Decision is the outcome of Decide.
type Decision struct {
	// Index is the position of the chosen definition in the candidates.
	Index      int
	Definition *Definition
	// Order is the data column order the index produces zone records in.
	Order []int
}

// String implements fmt.Stringer.
func (d Decision) String() string {
	return fmt.Sprintf("%s order=%v", d.Definition, d.Order)
}

// Decide picks the zone index that best serves a scan with the given order
// keys and predicates. equalityCols are the columns constrained by equality
// predicates. Candidates are considered in creation order and the first one
// that survives the following checks wins:
//
//  1. An order index is dropped if its sibling better serves the leading
//     directional predicate: > and >= prefer max-first, < and <= prefer
//     min-first.
//  2. With order keys, the index is dropped unless its data columns and the
//     order keys, both stripped of equality columns, are prefix compatible.
//  3. Without order keys, the leading data column of the index must carry a
//     predicate.
//
// ok is false if no index survives or if there are neither order keys nor
// predicates; the caller then scans all zone records. The decision is
// advisory: any index, or none, yields the same rows.
func Decide(
	candidates []Definition, orderKeys []int, preds []base.Predicate, equalityCols []int,
) (_ Decision, ok bool) {
	if len(orderKeys) == 0 && len(preds) == 0 {
		return Decision{}, false
	}
	var leading *base.Predicate
	for i := range preds {
		if preds[i].Op != base.OpEq {
			leading = &preds[i]
			break
		}
	}
	has := func(k Kind) bool {
		return slices.ContainsFunc(candidates, func(d Definition) bool { return d.Kind == k })
	}

	for i := range candidates {
		def := &candidates[i]
		cols := def.DataColumns()
		if leading != nil {
			if def.Kind == KindOrderMinFirst && leading.Op.Lower() && has(KindOrderMaxFirst) {
				continue
			}
			if def.Kind == KindOrderMaxFirst && leading.Op.Upper() && has(KindOrderMinFirst) {
				continue
			}
		}
		if len(orderKeys) > 0 {
			if !prefixCompatible(strip(cols, equalityCols), strip(orderKeys, equalityCols)) {
				continue
			}
		} else if !slices.ContainsFunc(preds, func(p base.Predicate) bool { return p.Col == cols[0] }) {
			continue
		}
		return Decision{Index: i, Definition: def, Order: cols}, true
	}
	return Decision{}, false
}

func strip(cols, remove []int) []int {
	var out []int
	for _, c := range cols {
		if !slices.Contains(remove, c) {
			out = append(out, c)
		}
	}
	return out
}

// prefixCompatible returns true if one of a and b is a prefix of the other.
func prefixCompatible(a, b []int) bool {
	n := min(len(a), len(b))
	return slices.Equal(a[:n], b[:n])
}
