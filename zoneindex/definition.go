// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package zoneindex defines the secondary indexes over zone records, the
// algorithm that picks one of them for a scan, and their in-memory ordered
// representation.
//
// A table can have up to four zone indexes:
//
//   - order-min-first and order-max-first are built over the table's order
//     keys. Each order column contributes its block minimum and maximum as two
//     adjacent index columns; min-first puts the minimum first, max-first the
//     maximum.
//   - group-key and group-key-with-bucket are built over the group keys.
//     Time-bucket parametrized keys are sorted after the plain keys in the
//     former and before them in the latter, which only exists if the table
//     has a parametrized key.
package zoneindex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/zonestore/internal/base"
)

// Kind is the kind of a zone index.
type Kind uint8

const (
	KindOrderMinFirst Kind = iota + 1
	KindOrderMaxFirst
	KindGroupKey
	KindGroupKeyWithBucket
)

var kindNames = map[Kind]string{
	KindOrderMinFirst:      "order-min-first",
	KindOrderMaxFirst:      "order-max-first",
	KindGroupKey:           "group-key",
	KindGroupKeyWithBucket: "group-key-with-bucket",
}

var kindSuffixes = map[Kind]string{
	KindOrderMinFirst:      "omin",
	KindOrderMaxFirst:      "omax",
	KindGroupKey:           "gkey",
	KindGroupKeyWithBucket: "gbucket",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// SafeFormat implements redact.SafeFormatter.
func (k Kind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(k.String()))
}

// IsOrder returns true for the two indexes over the order keys.
func (k Kind) IsOrder() bool {
	return k == KindOrderMinFirst || k == KindOrderMaxFirst
}

// IsGroup returns true for the two indexes over the group keys.
func (k Kind) IsGroup() bool {
	return k == KindGroupKey || k == KindGroupKeyWithBucket
}

// Role is what an index column stores about its data column.
type Role uint8

const (
	// RoleMin is the block minimum of an order column.
	RoleMin Role = iota + 1
	// RoleMax is the block maximum of an order column.
	RoleMax
	// RoleGroup is the value of a plain group key. A block holds a single
	// group value.
	RoleGroup
	// RoleBucket is the bucket-aligned value of a parametrized group key.
	RoleBucket
)

var roleNames = map[Role]string{
	RoleMin:    "min",
	RoleMax:    "max",
	RoleGroup:  "key",
	RoleBucket: "bucket",
}

// String implements fmt.Stringer.
func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ZoneColumnName returns the name of the zone catalog column storing the
// given role of data column col.
func ZoneColumnName(col int, role Role) string {
	return fmt.Sprintf("c%d_%s", col, role)
}

// ParseZoneColumnName is the inverse of ZoneColumnName.
func ParseZoneColumnName(name string) (col int, role Role, err error) {
	c, r, ok := strings.Cut(name, "_")
	if !ok || !strings.HasPrefix(c, "c") {
		return 0, 0, errors.Errorf("zonestore: malformed zone column name %q", name)
	}
	col, err = strconv.Atoi(c[1:])
	if err != nil || col < 0 {
		return 0, 0, errors.Errorf("zonestore: malformed zone column name %q", name)
	}
	for role, n := range roleNames {
		if n == r {
			return col, role, nil
		}
	}
	return 0, 0, errors.Errorf("zonestore: unknown role in zone column name %q", name)
}

// KeyColumn is one column of a zone index.
type KeyColumn struct {
	Col  int
	Role Role
	// BucketWidth is set for RoleBucket.
	BucketWidth int64
}

// Name returns the zone catalog column name of the key column.
func (k KeyColumn) Name() string { return ZoneColumnName(k.Col, k.Role) }

// Definition describes one zone index.
type Definition struct {
	Name string
	Kind Kind
	Keys []KeyColumn
}

// DataColumns returns the data columns of the index, in index order and
// without repetition.
func (d *Definition) DataColumns() []int {
	var cols []int
	for _, k := range d.Keys {
		if len(cols) == 0 || cols[len(cols)-1] != k.Col {
			cols = append(cols, k.Col)
		}
	}
	return cols
}

// String implements fmt.Stringer.
func (d *Definition) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s):", d.Name, d.Kind)
	for _, k := range d.Keys {
		sb.WriteByte(' ')
		sb.WriteString(k.Name())
	}
	return sb.String()
}

// BuildDefinitions returns the zone indexes of a table with the given group
// and order keys, in creation order: the two order indexes, then the two
// group-key indexes.
func BuildDefinitions(table string, groupKeys []base.GroupKey, orderKeys []int) []Definition {
	var defs []Definition
	name := func(k Kind) string { return table + "_zone_" + kindSuffixes[k] }
	if len(orderKeys) > 0 {
		minFirst := Definition{Name: name(KindOrderMinFirst), Kind: KindOrderMinFirst}
		maxFirst := Definition{Name: name(KindOrderMaxFirst), Kind: KindOrderMaxFirst}
		for _, col := range orderKeys {
			minFirst.Keys = append(minFirst.Keys, KeyColumn{Col: col, Role: RoleMin}, KeyColumn{Col: col, Role: RoleMax})
			maxFirst.Keys = append(maxFirst.Keys, KeyColumn{Col: col, Role: RoleMax}, KeyColumn{Col: col, Role: RoleMin})
		}
		defs = append(defs, minFirst, maxFirst)
	}
	if len(groupKeys) == 0 {
		return defs
	}
	var plain, bucketed []KeyColumn
	for _, g := range groupKeys {
		if g.Parametrized() {
			bucketed = append(bucketed, KeyColumn{Col: g.Col, Role: RoleBucket, BucketWidth: g.BucketWidth})
		} else {
			plain = append(plain, KeyColumn{Col: g.Col, Role: RoleGroup})
		}
	}
	defs = append(defs, Definition{
		Name: name(KindGroupKey),
		Kind: KindGroupKey,
		Keys: append(append([]KeyColumn(nil), plain...), bucketed...),
	})
	if len(bucketed) > 0 {
		defs = append(defs, Definition{
			Name: name(KindGroupKeyWithBucket),
			Kind: KindGroupKeyWithBucket,
			Keys: append(append([]KeyColumn(nil), bucketed...), plain...),
		})
	}
	return defs
}
