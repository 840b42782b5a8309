// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Datum is a typed scalar. The zero Datum is NULL.
//
// Datums of kind KindBytes and KindJSON reference their backing slice; use
// Clone to obtain a Datum that does not alias the caller's memory.
type Datum struct {
	kind Kind
	// i holds KindInt64 and KindTimestamp values (microseconds since the Unix
	// epoch), and KindBool as 0 or 1.
	i int64
	f float64
	b []byte
}

// Null is the NULL datum.
var Null = Datum{}

// DInt returns an int64 datum.
func DInt(v int64) Datum { return Datum{kind: KindInt64, i: v} }

// DFloat returns a float64 datum.
func DFloat(v float64) Datum { return Datum{kind: KindFloat64, f: v} }

// DBool returns a bool datum.
func DBool(v bool) Datum {
	d := Datum{kind: KindBool}
	if v {
		d.i = 1
	}
	return d
}

// DTimestamp returns a timestamp datum holding microseconds since the Unix
// epoch.
func DTimestamp(micros int64) Datum { return Datum{kind: KindTimestamp, i: micros} }

// DTime returns a timestamp datum for t.
func DTime(t time.Time) Datum { return DTimestamp(t.UnixMicro()) }

// DBytes returns a bytes datum referencing b.
func DBytes(b []byte) Datum { return Datum{kind: KindBytes, b: b} }

// DString returns a bytes datum holding s.
func DString(s string) Datum { return Datum{kind: KindBytes, b: []byte(s)} }

// DJSON returns a JSON datum referencing b.
func DJSON(b []byte) Datum { return Datum{kind: KindJSON, b: b} }

// MakeDatum returns a datum of the given kind built from its integral or
// byte representation. It is used by decoders which know the kind only at
// runtime.
func MakeDatum(kind Kind, i int64, f float64, b []byte) Datum {
	return Datum{kind: kind, i: i, f: f, b: b}
}

// Kind returns the kind of the datum, KindInvalid for NULL.
func (d Datum) Kind() Kind { return d.kind }

// IsNull returns true for the NULL datum.
func (d Datum) IsNull() bool { return d.kind == KindInvalid }

// Int returns the value of an int64 or timestamp datum.
func (d Datum) Int() int64 { return d.i }

// Float returns the value of a float64 datum.
func (d Datum) Float() float64 { return d.f }

// Bool returns the value of a bool datum.
func (d Datum) Bool() bool { return d.i != 0 }

// Bytes returns the value of a bytes or JSON datum.
func (d Datum) Bytes() []byte { return d.b }

// Clone returns a copy of the datum that does not share memory with d.
func (d Datum) Clone() Datum {
	if d.b != nil {
		d.b = append([]byte(nil), d.b...)
	}
	return d
}

// String implements fmt.Stringer.
func (d Datum) String() string {
	switch d.kind {
	case KindInvalid:
		return "NULL"
	case KindBool:
		return strconv.FormatBool(d.Bool())
	case KindInt64:
		return strconv.FormatInt(d.i, 10)
	case KindFloat64:
		return strconv.FormatFloat(d.f, 'g', -1, 64)
	case KindTimestamp:
		return time.UnixMicro(d.i).UTC().Format(time.RFC3339Nano)
	case KindBytes:
		return strconv.Quote(string(d.b))
	case KindJSON:
		return string(d.b)
	default:
		return fmt.Sprintf("<kind %d>", d.kind)
	}
}

// Row is one row of a table in logical column order. NULL columns hold the
// Null datum.
type Row []Datum

// String implements fmt.Stringer.
func (r Row) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i := range r {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r[i].String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// CopyFrom overwrites r with a deep copy of src. r must have the same length
// as src.
func (r Row) CopyFrom(src Row) {
	for i := range src {
		r[i] = src[i].Clone()
	}
}
