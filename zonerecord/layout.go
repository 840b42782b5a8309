// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package zonerecord

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/zonestore/internal/base"
)

// Layout identifies one of the two on-disk zone record layouts.
//
// The layout of a zone catalog is chosen when the catalog is created and
// never changes afterwards. It is not recorded inside zone records: readers
// detect it from the column types the catalog declares (see DetectLayout).
type Layout uint8

const (
	// LayoutV1 stores every statistic as a per-row-group array. Writers only
	// ever produce a single row group per block. V1 has no physical
	// first/last values.
	LayoutV1 Layout = 1
	// LayoutV2 stores flattened scalars and adds the first and last non-NULL
	// value of every column in physical storage order.
	LayoutV2 Layout = 2
)

// String implements fmt.Stringer.
func (l Layout) String() string {
	switch l {
	case LayoutV1:
		return "v1"
	case LayoutV2:
		return "v2"
	}
	return fmt.Sprintf("v?%d", uint8(l))
}

// SafeFormat implements redact.SafeFormatter.
func (l Layout) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(l.String()))
}

// ParseLayout parses a layout as returned by Layout.String.
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "v1", "1":
		return LayoutV1, nil
	case "v2", "2":
		return LayoutV2, nil
	}
	return 0, errors.Errorf("zonestore: unknown zone record layout %q", s)
}

// FieldType is the declared type of a column of the zone catalog.
type FieldType uint8

const (
	FieldInt32 FieldType = iota + 1
	FieldInt64
	FieldInt128
	FieldBytes
	FieldInt32Array
	FieldInt64Array
	FieldInt128Array
	FieldBytesArray
)

var fieldTypeNames = map[FieldType]string{
	FieldInt32:       "int4",
	FieldInt64:       "int8",
	FieldInt128:      "int16",
	FieldBytes:       "bytea",
	FieldInt32Array:  "int4[]",
	FieldInt64Array:  "int8[]",
	FieldInt128Array: "int16[]",
	FieldBytesArray:  "bytea[]",
}

// String implements fmt.Stringer.
func (t FieldType) String() string {
	if n, ok := fieldTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// FieldDecl is one declared column of the zone catalog.
type FieldDecl struct {
	Name string
	Type FieldType
}

// field identifies a statistics field group of a zone record. Each group
// holds one value (V2) or one array (V1) per data column and is decoded
// independently of the others.
type field uint8

const (
	fieldNullCount field = iota
	fieldSum
	fieldMin
	fieldMinOffset
	fieldMax
	fieldMaxOffset
	fieldFirst
	fieldLast
	numFields
)

var fieldNames = [numFields]string{
	fieldNullCount: "null_count",
	fieldSum:       "sum",
	fieldMin:       "min",
	fieldMinOffset: "min_offset",
	fieldMax:       "max",
	fieldMaxOffset: "max_offset",
	fieldFirst:     "first",
	fieldLast:      "last",
}

var scalarTypes = [numFields]FieldType{
	fieldNullCount: FieldInt64,
	fieldSum:       FieldInt128,
	fieldMin:       FieldBytes,
	fieldMinOffset: FieldInt32,
	fieldMax:       FieldBytes,
	fieldMaxOffset: FieldInt32,
	fieldFirst:     FieldBytes,
	fieldLast:      FieldBytes,
}

var arrayTypes = [numFields]FieldType{
	fieldNullCount: FieldInt64Array,
	fieldSum:       FieldInt128Array,
	fieldMin:       FieldBytesArray,
	fieldMinOffset: FieldInt32Array,
	fieldMax:       FieldBytesArray,
	fieldMaxOffset: FieldInt32Array,
}

// numFields returns the number of statistics field groups of the layout.
func (l Layout) numFields() int {
	if l == LayoutV1 {
		return int(fieldFirst)
	}
	return int(numFields)
}

// Declaration returns the column declarations a zone catalog of this layout
// is created with.
func (l Layout) Declaration() []FieldDecl {
	decl := []FieldDecl{
		{Name: "batch", Type: FieldInt64},
		{Name: "locator", Type: FieldBytes},
		{Name: "row_count", Type: FieldInt64},
	}
	for f := field(0); int(f) < l.numFields(); f++ {
		t := scalarTypes[f]
		if l == LayoutV1 {
			t = arrayTypes[f]
		}
		decl = append(decl, FieldDecl{Name: fieldNames[f], Type: t})
	}
	return decl
}

// DetectLayout determines the layout of a zone catalog from its declared
// columns. A declaration matching neither layout is reported as
// ErrUnsupportedLayout naming the table and the offending column.
func DetectLayout(table string, decl []FieldDecl) (Layout, error) {
	for _, l := range [...]Layout{LayoutV2, LayoutV1} {
		if declarationEqual(decl, l.Declaration()) {
			return l, nil
		}
	}

	known := make(map[string]map[FieldType]bool)
	for _, l := range [...]Layout{LayoutV2, LayoutV1} {
		for _, d := range l.Declaration() {
			if known[d.Name] == nil {
				known[d.Name] = make(map[FieldType]bool)
			}
			known[d.Name][d.Type] = true
		}
	}
	for _, d := range decl {
		if !known[d.Name][d.Type] {
			return 0, errors.Mark(errors.Newf(
				"zone catalog %s: column %s declared as %s matches no zone record layout",
				table, d.Name, errors.Safe(d.Type.String())), base.ErrUnsupportedLayout)
		}
	}
	present := make(map[string]bool, len(decl))
	closest := LayoutV2
	for _, d := range decl {
		present[d.Name] = true
		if d.Type >= FieldInt32Array {
			closest = LayoutV1
		}
	}
	for _, d := range closest.Declaration() {
		if !present[d.Name] {
			return 0, errors.Mark(errors.Newf(
				"zone catalog %s: column %s is missing", table, d.Name), base.ErrUnsupportedLayout)
		}
	}
	// Every column exists with a known type, but scalar and array columns are
	// mixed.
	return 0, errors.Mark(errors.Newf(
		"zone catalog %s: columns mix layouts", table), base.ErrUnsupportedLayout)
}

func declarationEqual(a, b []FieldDecl) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
