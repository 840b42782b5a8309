// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Kind identifies the type of a column and of the scalars stored in it.
type Kind uint8

// The zero Kind is reserved for NULL datums; columns never have it.
const (
	KindInvalid Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindTimestamp
	KindBytes
	// KindJSON holds opaque documents. It supports equality but no ordering,
	// so zone records never carry min/max for it.
	KindJSON
	numKinds
)

var kindNames = [numKinds]string{
	KindInvalid:   "invalid",
	KindBool:      "bool",
	KindInt64:     "int64",
	KindFloat64:   "float64",
	KindTimestamp: "timestamp",
	KindBytes:     "bytes",
	KindJSON:      "json",
}

// Ordered returns true if values of the kind have a total order, which is a
// requirement for min/max statistics.
func (k Kind) Ordered() bool {
	switch k {
	case KindBool, KindInt64, KindFloat64, KindTimestamp, KindBytes:
		return true
	}
	return false
}

// Numeric returns true if values of the kind can be summed.
func (k Kind) Numeric() bool {
	return k == KindInt64 || k == KindFloat64
}

// Bucketable returns true if values of the kind can be aligned to a bucket
// width (time-bucket parametrized group keys).
func (k Kind) Bucketable() bool {
	return k == KindInt64 || k == KindTimestamp
}

// Valid returns true if the kind can be used as a column kind.
func (k Kind) Valid() bool {
	return k > KindInvalid && k < numKinds
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return "unknown"
}

// SafeFormat implements redact.SafeFormatter.
func (k Kind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(k.String()))
}

// ParseKind parses the name of a kind as returned by Kind.String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k := KindBool; k < numKinds; k++ {
		if kindNames[k] == s {
			return k, nil
		}
	}
	return KindInvalid, errors.Errorf("zonestore: unknown column kind %q", s)
}

// Column describes one data column of a table.
type Column struct {
	Name string
	Kind Kind
}

// Schema is the ordered list of data columns of a table.
type Schema []Column

// Kinds returns the kind of every column, in column order.
func (s Schema) Kinds() []Kind {
	kinds := make([]Kind, len(s))
	for i := range s {
		kinds[i] = s[i].Kind
	}
	return kinds
}

// Validate checks that every column has a name and a valid kind.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return errors.New("zonestore: schema has no columns")
	}
	seen := make(map[string]struct{}, len(s))
	for i, c := range s {
		if c.Name == "" {
			return errors.Errorf("zonestore: column %d has no name", errors.Safe(i))
		}
		if !c.Kind.Valid() {
			return errors.Errorf("zonestore: column %s has invalid kind %s", c.Name, c.Kind)
		}
		if _, ok := seen[c.Name]; ok {
			return errors.Errorf("zonestore: duplicate column %s", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// GroupKey is one column of a table's group key. A non-zero BucketWidth makes
// the key time-bucket parametrized: values are aligned down to a multiple of
// the width before they are compared.
type GroupKey struct {
	Col         int
	BucketWidth int64
}

// Parametrized returns true if the key carries a bucket width.
func (g GroupKey) Parametrized() bool {
	return g.BucketWidth > 0
}

// GroupKeyColumns returns the data columns of the given group keys.
func GroupKeyColumns(keys []GroupKey) []int {
	cols := make([]int, len(keys))
	for i := range keys {
		cols[i] = keys[i].Col
	}
	return cols
}
