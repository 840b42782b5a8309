// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrNotFound means that a zone record or block referenced by id does not
// exist.
var ErrNotFound = errors.New("zonestore: not found")

// ErrCorruption is a marker to indicate that data in a zone record or block
// is corrupted.
var ErrCorruption = errors.New("zonestore: corruption")

// ErrUnsupportedLayout is returned when a zone catalog declares a column-type
// signature that matches no known zone record layout. It is fatal to the read
// that encountered it.
var ErrUnsupportedLayout = errors.New("zonestore: unsupported zone record layout")

// ErrMergeUnsupported is returned by write-time zone fetches against catalogs
// that have no usable group-key index. Callers degrade to plain append.
var ErrMergeUnsupported = errors.New("zonestore: merging unsupported")

// ErrUnsupportedMergeKey is returned when merge-on-conflict is requested on a
// column that is not a group key.
var ErrUnsupportedMergeKey = errors.New("zonestore: unsupported merge key")

// CorruptionErrorf formats according to a format specifier and returns
// the string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// MarkCorruptionError marks given error as a corruption error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}
