// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ParseDatum parses the textual form of a datum of the given kind. "NULL"
// parses as Null for every kind. Timestamps accept RFC 3339 or an integer
// number of microseconds; bytes accept an optionally double-quoted string.
func ParseDatum(kind Kind, s string) (Datum, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return Null, nil
	}
	switch kind {
	case KindBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return Null, errors.Wrapf(err, "parsing %s", kind)
		}
		return DBool(v), nil
	case KindInt64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Null, errors.Wrapf(err, "parsing %s", kind)
		}
		return DInt(v), nil
	case KindFloat64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null, errors.Wrapf(err, "parsing %s", kind)
		}
		return DFloat(v), nil
	case KindTimestamp:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return DTimestamp(v), nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Null, errors.Wrapf(err, "parsing %s", kind)
		}
		return DTime(t), nil
	case KindBytes:
		if len(s) >= 2 && s[0] == '"' {
			u, err := strconv.Unquote(s)
			if err != nil {
				return Null, errors.Wrapf(err, "parsing %s", kind)
			}
			s = u
		}
		return DString(s), nil
	case KindJSON:
		return DJSON([]byte(s)), nil
	}
	return Null, errors.Errorf("zonestore: cannot parse datum of kind %s", kind)
}

// ParsePredicate parses "column op value". The column is a schema column name
// or "c<index>"; the value is parsed according to the column's kind.
func ParsePredicate(s string, schema Schema) (Predicate, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return Predicate{}, errors.Errorf("zonestore: malformed predicate %q", s)
	}
	col := -1
	for i := range schema {
		if schema[i].Name == fields[0] {
			col = i
			break
		}
	}
	if col < 0 && strings.HasPrefix(fields[0], "c") {
		if n, err := strconv.Atoi(fields[0][1:]); err == nil && n >= 0 && n < len(schema) {
			col = n
		}
	}
	if col < 0 {
		return Predicate{}, errors.Errorf("zonestore: unknown column %q in predicate %q", fields[0], s)
	}
	op, err := ParseOp(fields[1])
	if err != nil {
		return Predicate{}, err
	}
	v, err := ParseDatum(schema[col].Kind, strings.Join(fields[2:], " "))
	if err != nil {
		return Predicate{}, errors.Wrapf(err, "predicate %q", s)
	}
	return Predicate{Col: col, Op: op, Value: v}, nil
}

// String implements fmt.Stringer.
func (p Predicate) String() string {
	return "c" + strconv.Itoa(p.Col) + " " + p.Op.String() + " " + p.Value.String()
}
