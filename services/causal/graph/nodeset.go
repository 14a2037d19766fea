// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import "math/bits"

// NodeSet is a fixed-capacity bitset over dense node indices.
//
// The zero value is an empty set with capacity 0. Use NewNodeSet to size
// a set for a graph. Out-of-range indices are ignored by Add and report
// false from Has.
//
// Thread Safety: Not safe for concurrent mutation.
type NodeSet struct {
	words []uint64
	size  int
}

// NewNodeSet creates an empty set able to hold indices [0, n).
func NewNodeSet(n int) NodeSet {
	if n < 0 {
		n = 0
	}
	return NodeSet{
		words: make([]uint64, (n+63)/64),
		size:  n,
	}
}

// NodeSetOf creates a set of capacity n holding the given indices.
func NodeSetOf(n int, idx ...int) NodeSet {
	s := NewNodeSet(n)
	for _, i := range idx {
		s.Add(i)
	}
	return s
}

// Cap returns the index capacity of the set.
func (s NodeSet) Cap() int { return s.size }

// Add inserts i into the set.
func (s NodeSet) Add(i int) {
	if i < 0 || i >= s.size {
		return
	}
	s.words[i>>6] |= 1 << uint(i&63)
}

// Remove deletes i from the set.
func (s NodeSet) Remove(i int) {
	if i < 0 || i >= s.size {
		return
	}
	s.words[i>>6] &^= 1 << uint(i&63)
}

// Has reports whether i is in the set.
func (s NodeSet) Has(i int) bool {
	if i < 0 || i >= s.size {
		return false
	}
	return s.words[i>>6]&(1<<uint(i&63)) != 0
}

// Len returns the number of members.
func (s NodeSet) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Empty reports whether the set has no members.
func (s NodeSet) Empty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s NodeSet) Clone() NodeSet {
	c := NodeSet{words: make([]uint64, len(s.words)), size: s.size}
	copy(c.words, s.words)
	return c
}

// Union adds every member of o to s. Both sets must share capacity.
func (s NodeSet) Union(o NodeSet) {
	for i := range s.words {
		if i < len(o.words) {
			s.words[i] |= o.words[i]
		}
	}
}

// Subtract removes every member of o from s.
func (s NodeSet) Subtract(o NodeSet) {
	for i := range s.words {
		if i < len(o.words) {
			s.words[i] &^= o.words[i]
		}
	}
}

// Intersects reports whether s and o share a member.
func (s NodeSet) Intersects(o NodeSet) bool {
	for i := range s.words {
		if i < len(o.words) && s.words[i]&o.words[i] != 0 {
			return true
		}
	}
	return false
}

// Indices returns the members in ascending index order.
func (s NodeSet) Indices() []int {
	out := make([]int, 0, s.Len())
	for wi, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, wi<<6+b)
			w &= w - 1
		}
	}
	return out
}
