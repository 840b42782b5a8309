// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compression wraps the compression algorithms block column streams
// can be stored with.
package compression

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/minio/minlz"
)

// Algorithm identifies a compression algorithm. Its value is persisted in
// block descriptors.
type Algorithm uint8

const (
	NoAlgorithm Algorithm = iota
	SnappyAlgorithm
	Zstd
	MinLZ

	NumAlgorithms
)

var algorithmNames = [NumAlgorithms]string{
	NoAlgorithm:     "none",
	SnappyAlgorithm: "snappy",
	Zstd:            "zstd",
	MinLZ:           "minlz",
}

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	if a < NumAlgorithms {
		return algorithmNames[a]
	}
	return fmt.Sprintf("algorithm(%d)", uint8(a))
}

// SafeFormat implements redact.SafeFormatter.
func (a Algorithm) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(a.String()))
}

// Setting is an algorithm and a level for it.
type Setting struct {
	Algorithm Algorithm
	// Level is only used by algorithms that support levels.
	Level uint8
}

var (
	NoCompression = Setting{Algorithm: NoAlgorithm}
	Snappy        = Setting{Algorithm: SnappyAlgorithm}
	ZstdLevel1    = Setting{Algorithm: Zstd, Level: 1}
	ZstdLevel3    = Setting{Algorithm: Zstd, Level: 3}
	MinLZFastest  = Setting{Algorithm: MinLZ, Level: minlz.LevelFastest}
	MinLZBalanced = Setting{Algorithm: MinLZ, Level: minlz.LevelBalanced}
)

var presets = []Setting{NoCompression, Snappy, ZstdLevel1, ZstdLevel3, MinLZFastest, MinLZBalanced}

// String implements fmt.Stringer. The result is accepted by ParseSetting.
func (s Setting) String() string {
	switch s.Algorithm {
	case Zstd, MinLZ:
		return fmt.Sprintf("%s%d", s.Algorithm, s.Level)
	}
	return s.Algorithm.String()
}

// ParseSetting parses a setting as returned by Setting.String. A bare "zstd"
// or "minlz" selects the lowest level.
func ParseSetting(s string) (Setting, error) {
	switch s {
	case "zstd":
		return ZstdLevel1, nil
	case "minlz":
		return MinLZFastest, nil
	}
	for _, p := range presets {
		if p.String() == s {
			return p, nil
		}
	}
	return Setting{}, errors.Errorf("zonestore: unknown compression setting %q", s)
}

// Compressor compresses blocks of data.
type Compressor interface {
	// Compress a block, appending the compressed data to dst[:0]. It returns
	// the compressed data and the setting that was actually used, which is
	// what the caller must record for decompression.
	Compress(dst, src []byte) ([]byte, Setting)
	// Close must be called when the Compressor is no longer needed. After
	// Close is called, the Compressor must not be used again.
	Close()
}

// GetCompressor returns a Compressor for the given setting.
func GetCompressor(s Setting) Compressor {
	switch s.Algorithm {
	case NoAlgorithm:
		return noopCompressor{}
	case SnappyAlgorithm:
		return snappyCompressor{}
	case Zstd:
		return getZstdCompressor(int(s.Level))
	case MinLZ:
		return getMinlzCompressor(int(s.Level))
	}
	panic(errors.AssertionFailedf("invalid compression setting %s", s))
}

// Decompressor decompresses blocks produced by a Compressor.
type Decompressor interface {
	// DecompressInto decompresses src into dst. dst must have exactly the
	// length returned by DecompressedLen.
	DecompressInto(dst, src []byte) error
	// DecompressedLen returns the length of the data compressed in b.
	DecompressedLen(b []byte) (decompressedLen int, err error)
	// Close must be called when the Decompressor is no longer needed.
	Close()
}

// GetDecompressor returns a Decompressor for the given algorithm.
func GetDecompressor(a Algorithm) (Decompressor, error) {
	switch a {
	case NoAlgorithm:
		return noopDecompressor{}, nil
	case SnappyAlgorithm:
		return snappyDecompressor{}, nil
	case Zstd:
		return getZstdDecompressor(), nil
	case MinLZ:
		return minlzDecompressor{}, nil
	}
	return nil, errors.Errorf("zonestore: unknown compression algorithm %s", a)
}

// Decompress decompresses b, which was compressed with algorithm a, into a
// newly allocated buffer.
func Decompress(a Algorithm, b []byte) ([]byte, error) {
	d, err := GetDecompressor(a)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	n, err := d.DecompressedLen(b)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := d.DecompressInto(buf, b); err != nil {
		return nil, err
	}
	return buf, nil
}
