// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package merge

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/zonestore/block"
	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/kr/pretty"
	"github.com/stretchr/testify/require"
)

// The test blocks have columns (k int64, v bytes), sorted and merged on k.
var testKinds = []base.Kind{base.KindInt64, base.KindBytes}

func testContext(dir base.Direction) Context {
	return Context{
		SortKey:    []int{0},
		MergeKey:   []int{0},
		Direction:  dir,
		Comparator: base.DefaultComparator,
	}
}

func parseBlocks(t *testing.T, input string) []*block.Block {
	var blocks []*block.Block
	var b block.Builder
	var batch uint64
	flush := func() {
		if batch != 0 {
			blocks = append(blocks, b.Finish(batch))
		}
	}
	for _, line := range strings.Split(input, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "block" {
			flush()
			_, err := fmt.Sscanf(fields[1], "batch=%d", &batch)
			require.NoError(t, err)
			b = block.MakeBuilder(testKinds, []int{1, 0})
			continue
		}
		k, err := base.ParseDatum(base.KindInt64, fields[0])
		require.NoError(t, err)
		b.Add(base.Row{k, base.DString(fields[1])})
	}
	flush()
	return blocks
}

func formatRow(rb *RowBuffer) string {
	k := rb.Row()[0].String()
	return fmt.Sprintf("%s %s @%d", k, rb.Row()[1].Bytes(), rb.Batch())
}

func TestEngine(t *testing.T) {
	var blocks []*block.Block
	var e Engine
	datadriven.RunTest(t, "testdata/engine", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "define":
			blocks = parseBlocks(t, d.Input)
			var sb strings.Builder
			for _, b := range blocks {
				fmt.Fprintf(&sb, "block %d: %d rows\n", b.Batch(), b.NumRows())
			}
			return sb.String()

		case "merge":
			dir := base.Forward
			merged, overlap := false, true
			order := slices.Clone(blocks)
			for _, arg := range d.CmdArgs {
				switch arg.Key {
				case "dir":
					if arg.Vals[0] == "backward" {
						dir = base.Backward
					}
				case "merged":
					merged = true
				case "reverse-push":
					slices.Reverse(order)
				case "no-overlap":
					overlap = false
				default:
					t.Fatalf("unknown argument %s", arg.Key)
				}
			}
			e.Begin(testContext(dir))
			require.Equal(t, StateEmpty, e.State())
			for _, b := range order {
				e.Push(b, nil, overlap)
			}
			var sb strings.Builder
			rb := MakeRowBuffer(len(testKinds))
			if merged {
				for e.NextMergedRow(&rb) {
					fmt.Fprintln(&sb, formatRow(&rb))
				}
				fmt.Fprintf(&sb, "merged=%d\n", e.Stats().Merged)
			} else {
				for !e.Empty() {
					e.PopSingleRow(&rb)
					fmt.Fprintln(&sb, formatRow(&rb))
				}
			}
			require.Equal(t, StateExhausted, e.State())
			e.End()
			return sb.String()

		default:
			return fmt.Sprintf("unknown command: %s", d.Cmd)
		}
	})
}

func TestEnginePopEmpty(t *testing.T) {
	var e Engine
	e.Begin(testContext(base.Forward))
	rb := MakeRowBuffer(2)
	require.Panics(t, func() { e.PopSingleRow(&rb) })
	require.Panics(t, func() { e.PopMergedRow(&rb) })
	require.False(t, e.NextMergedRow(&rb))

	// Empty blocks are ignored.
	b := block.MakeBuilder(testKinds, nil)
	e.Push(b.Finish(1), nil, true)
	require.True(t, e.Empty())
	require.Equal(t, StateEmpty, e.State())

	var unstarted Engine
	require.Panics(t, func() { unstarted.Push(b.Finish(2), nil, true) })
}

func TestEngineNewestWins(t *testing.T) {
	blocks := parseBlocks(t, "block batch=1\n5 old\nblock batch=2\n5 new\n")
	for _, order := range [][]int{{0, 1}, {1, 0}} {
		var e Engine
		e.Begin(testContext(base.Forward))
		for _, i := range order {
			e.Push(blocks[i], nil, true)
		}
		rb := MakeRowBuffer(2)
		require.False(t, e.PopMergedRow(&rb))
		require.Equal(t, "old", string(rb.Row()[1].Bytes()))
		require.True(t, e.PopMergedRow(&rb))
		require.Equal(t, "new", string(rb.Row()[1].Bytes()))
		require.Equal(t, uint64(2), rb.Batch())
		require.True(t, e.Empty())
	}
}

// TestEngineRandomized checks that merged output is strictly monotone in the
// merge key, holds the newest version of every key, and does not depend on
// the order blocks are pushed in.
func TestEngineRandomized(t *testing.T) {
	seed := uint64(time.Now().UnixNano())
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewPCG(0, seed))

	for iter := 0; iter < 50; iter++ {
		numBlocks := 1 + rng.IntN(6)
		newest := map[int64]string{}
		var blocks []*block.Block
		for i := 0; i < numBlocks; i++ {
			batch := uint64(i + 1)
			var keys []int64
			for n := rng.IntN(20); len(keys) < n; {
				keys = append(keys, rng.Int64N(30))
				slices.Sort(keys)
				keys = slices.Compact(keys)
			}
			b := block.MakeBuilder(testKinds, nil)
			for _, k := range keys {
				v := fmt.Sprintf("v%d.%d", k, batch)
				b.Add(base.Row{base.DInt(k), base.DString(v)})
				newest[k] = v
			}
			blocks = append(blocks, b.Finish(batch))
		}

		for _, dir := range []base.Direction{base.Forward, base.Backward} {
			var first []string
			for perm := 0; perm < 3; perm++ {
				order := slices.Clone(blocks)
				rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
				var e Engine
				e.Begin(testContext(dir))
				for _, b := range order {
					e.Push(b, nil, true)
				}
				var got []string
				var prev base.Datum
				rb := MakeRowBuffer(2)
				for e.NextMergedRow(&rb) {
					k := rb.Row()[0]
					if len(got) > 0 {
						require.Equal(t, int(dir), base.DefaultComparator.Compare(k, prev), "%s after %s", k, prev)
					}
					prev = k
					require.Equal(t, newest[k.Int()], string(rb.Row()[1].Bytes()))
					got = append(got, formatRow(&rb))
				}
				require.Len(t, got, len(newest))
				if perm == 0 {
					first = got
				} else if !slices.Equal(first, got) {
					t.Fatalf("push order changed the output:\n%s", pretty.Diff(first, got))
				}
			}
		}
	}
}

func TestContextValidate(t *testing.T) {
	ctx := testContext(base.Forward)
	require.NoError(t, ctx.Validate())
	ctx.MergeKey = []int{1}
	require.Error(t, ctx.Validate())
	ctx.MergeKey = []int{0, 1}
	require.Error(t, ctx.Validate())
	ctx = testContext(0)
	require.Error(t, ctx.Validate())
}
