// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package merge

import "github.com/cockroachdb/zonestore/internal/invariants"

// cursorHeap is a heap of cursors ordered by their current row. It is a
// min-heap for forward scans and a max-heap for backward scans.
//
// REQUIRES: Every cursor in the heap is Valid.
type cursorHeap struct {
	ctx   *Context
	items []cursorHeapItem
}

type cursorHeapItem struct {
	*Cursor
	winnerChild winnerChild
}

type winnerChild uint8

const (
	winnerChildUnknown winnerChild = iota
	winnerChildLeft
	winnerChildRight
)

// len returns the number of elements in the heap.
func (h *cursorHeap) len() int {
	return len(h.items)
}

// clear empties the heap.
func (h *cursorHeap) clear() {
	h.items = h.items[:0]
}

// push appends a cursor. The heap must be re-initialized before it is used.
func (h *cursorHeap) push(c *Cursor) {
	h.items = append(h.items, cursorHeapItem{Cursor: c})
}

// top returns the cursor at the top of the heap.
func (h *cursorHeap) top() *Cursor {
	return h.items[0].Cursor
}

// less is an internal method, to compare the elements at i and j.
func (h *cursorHeap) less(i, j int) bool {
	return h.ctx.compare(h.items[i].Cursor, h.items[j].Cursor) < 0
}

// swap is an internal method, used to swap the elements at i and j.
func (h *cursorHeap) swap(i, j int) {
	h.items[i].Cursor, h.items[j].Cursor = h.items[j].Cursor, h.items[i].Cursor
}

// init initializes the heap.
func (h *cursorHeap) init() {
	for i := range h.items {
		h.items[i].winnerChild = winnerChildUnknown
	}
	// heapify
	n := h.len()
	for i := n/2 - 1; i >= 0; i-- {
		h.down(i, n)
	}
}

// fixTop restores the heap property after the top of the heap has been
// modified.
func (h *cursorHeap) fixTop() {
	h.down(0, h.len())
}

// pop removes the top of the heap.
func (h *cursorHeap) pop() *Cursor {
	n := h.len() - 1
	h.swap(0, n)
	// Parent of n does not know which child is the winner. But since index n is
	// removed, the parent of n will have at most one child, and so the value of
	// winnerChild is irrelevant.
	h.down(0, n)
	item := h.items[n]
	h.items = h.items[:n]
	return item.Cursor
}

// down is an internal method. It moves i down the heap, which has length n,
// until the heap property is restored.
func (h *cursorHeap) down(i, n int) {
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 { // j1 < 0 after int overflow
			break
		}
		j := j1 // left child
		if j2 := j1 + 1; j2 < n {
			if h.items[i].winnerChild == winnerChildUnknown {
				if h.less(j2, j1) {
					h.items[i].winnerChild = winnerChildRight
				} else {
					h.items[i].winnerChild = winnerChildLeft
				}
			} else if invariants.Enabled {
				wc := winnerChildUnknown
				if h.less(j1, j2) {
					wc = winnerChildLeft
				} else if h.less(j2, j1) {
					wc = winnerChildRight
				}
				if wc != winnerChildUnknown && wc != h.items[i].winnerChild {
					panic("winnerChild mismatch")
				}
			}
			if h.items[i].winnerChild == winnerChildRight {
				j = j2 // = 2*i + 2  // right child
			}
		}
		if !h.less(j, i) {
			break
		}
		// NB: j is a child of i.
		h.swap(i, j)
		h.items[i].winnerChild = winnerChildUnknown
		i = j
	}
}
