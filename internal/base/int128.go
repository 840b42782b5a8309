// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"math"
	"math/big"
	"math/bits"
)

// Int128 is a signed 128-bit integer in two's complement. It is the
// accumulator type of integer column sums, wide enough that summing up to
// 2^64 int64 values cannot overflow.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Int128FromInt64 sign-extends v.
func Int128FromInt64(v int64) Int128 {
	return Int128{Hi: v >> 63, Lo: uint64(v)}
}

// Add returns x+y.
func (x Int128) Add(y Int128) Int128 {
	lo, carry := bits.Add64(x.Lo, y.Lo, 0)
	hi, _ := bits.Add64(uint64(x.Hi), uint64(y.Hi), carry)
	return Int128{Hi: int64(hi), Lo: lo}
}

// Cmp returns -1, 0 or +1.
func (x Int128) Cmp(y Int128) int {
	switch {
	case x.Hi < y.Hi:
		return -1
	case x.Hi > y.Hi:
		return +1
	case x.Lo < y.Lo:
		return -1
	case x.Lo > y.Lo:
		return +1
	}
	return 0
}

// Int64 returns x as an int64 and whether it fits.
func (x Int128) Int64() (int64, bool) {
	v := int64(x.Lo)
	return v, x.Hi == v>>63
}

// Big returns x as a big.Int.
func (x Int128) Big() *big.Int {
	b := new(big.Int).SetInt64(x.Hi)
	b.Lsh(b, 64)
	return b.Add(b, new(big.Int).SetUint64(x.Lo))
}

// String implements fmt.Stringer.
func (x Int128) String() string {
	if v, ok := x.Int64(); ok {
		return big.NewInt(v).String()
	}
	return x.Big().String()
}

// Sum is a running sum over a numeric column, typed by the column's kind:
// integer columns accumulate into Int, float columns into Float.
type Sum struct {
	Kind  Kind
	Int   Int128
	Float float64
}

// ZeroSum returns the empty sum for a column of the given kind.
func ZeroSum(kind Kind) Sum {
	return Sum{Kind: kind}
}

// Merge returns the sum of s and o, which must have the same kind.
func (s Sum) Merge(o Sum) Sum {
	s.Int = s.Int.Add(o.Int)
	s.Float += o.Float
	return s
}

// Datum returns the sum as a datum of the column's kind. Integer sums that do
// not fit an int64 are returned as float64.
func (s Sum) Datum() Datum {
	switch s.Kind {
	case KindInt64:
		if v, ok := s.Int.Int64(); ok {
			return DInt(v)
		}
		f, _ := new(big.Float).SetInt(s.Int.Big()).Float64()
		return DFloat(f)
	case KindFloat64:
		return DFloat(s.Float)
	}
	return Null
}

// String implements fmt.Stringer.
func (s Sum) String() string {
	if s.Kind == KindFloat64 {
		return DFloat(s.Float).String()
	}
	return s.Int.String()
}

// packFloatSum stores a float sum in the low word of an Int128 so that both
// sum kinds share one on-disk representation.
func packFloatSum(f float64) Int128 {
	return Int128{Lo: math.Float64bits(f)}
}

// SumFromWire rebuilds a typed sum from its on-disk representation.
func SumFromWire(kind Kind, v Int128) Sum {
	if kind == KindFloat64 {
		return Sum{Kind: kind, Float: math.Float64frombits(v.Lo)}
	}
	return Sum{Kind: kind, Int: v}
}

// Wire returns the on-disk representation of the sum.
func (s Sum) Wire() Int128 {
	if s.Kind == KindFloat64 {
		return packFloatSum(s.Float)
	}
	return s.Int
}
