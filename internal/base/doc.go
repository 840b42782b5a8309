// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines the fundamental types shared by every zonestore
// package: column kinds and schemas, datums and rows, the Comparator that
// orders and sums datums, predicates and scan directions, the datum codec,
// the logger and the sentinel errors.
//
// # Datums
//
// A Datum is a typed scalar. The zero Datum is NULL. NULL sorts after every
// non-NULL value in both directions of the Comparator, so a forward scan
// produces NULLs last and a backward scan produces them first.
//
// # Predicates
//
// A Predicate compares one column with a constant. Predicates never match
// NULL, which is what lets zone records prune a block whose column is
// entirely NULL.
package base
