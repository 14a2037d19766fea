// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reason

import (
	"context"
	"sort"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
)

// =============================================================================
// Search Bounds
// =============================================================================

// Search configuration constants.
const (
	// DefaultMaxCandidatePool is the largest candidate pool searched in full
	// by FindAllBackdoorSets before falling back to the parent heuristic.
	DefaultMaxCandidatePool = 12

	// DefaultMaxEvaluations caps the number of d-separation tests per search.
	DefaultMaxEvaluations = 100_000

	// DefaultMaxSets caps the number of adjustment sets returned.
	DefaultMaxSets = 256

	// DefaultMaxConditioningSetSize bounds |Z| in ImpliedIndependencies.
	DefaultMaxConditioningSetSize = 2

	// DefaultMaxIndependencies caps the number of reported independencies.
	DefaultMaxIndependencies = 1000
)

// SearchOptions bounds the subset searches of the identification engine.
type SearchOptions struct {
	// MaxCandidatePool is the largest pool enumerated exhaustively.
	// Must be > 0. Default: 12
	MaxCandidatePool int

	// MaxSetSize bounds the size of searched subsets. 0 means the pool size.
	MaxSetSize int

	// MaxSets stops FindAllBackdoorSets after this many valid sets.
	// Must be > 0. Default: 256
	MaxSets int

	// MaxEvaluations caps the number of candidate subsets tested.
	// Must be > 0. Default: 100000
	MaxEvaluations int
}

// Validate checks options and applies defaults for invalid values.
func (o *SearchOptions) Validate() {
	if o.MaxCandidatePool <= 0 {
		o.MaxCandidatePool = DefaultMaxCandidatePool
	}
	if o.MaxSetSize < 0 {
		o.MaxSetSize = 0
	}
	if o.MaxSets <= 0 {
		o.MaxSets = DefaultMaxSets
	}
	if o.MaxEvaluations <= 0 {
		o.MaxEvaluations = DefaultMaxEvaluations
	}
}

// DefaultSearchOptions returns sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		MaxCandidatePool: DefaultMaxCandidatePool,
		MaxSets:          DefaultMaxSets,
		MaxEvaluations:   DefaultMaxEvaluations,
	}
}

// =============================================================================
// Combination Generator
// =============================================================================

// combinations enumerates k-subsets of [0, n) for k = minK..maxK.
//
// Subsets come out by increasing size and, within one size, in
// lexicographic order of their index tuples. Only the current tuple is
// held in memory.
//
// Thread Safety: Not safe for concurrent use.
type combinations struct {
	n, k, maxK int
	idx        []int
	started    bool
	done       bool
}

// newCombinations creates a generator. maxK is clamped to n.
func newCombinations(n, minK, maxK int) *combinations {
	if minK < 0 {
		minK = 0
	}
	if maxK > n {
		maxK = n
	}
	c := &combinations{n: n, k: minK, maxK: maxK}
	if minK > maxK {
		c.done = true
	}
	return c
}

// Next returns the next subset. The slice is reused between calls and
// MUST NOT be retained.
func (c *combinations) Next() ([]int, bool) {
	if c.done {
		return nil, false
	}
	if !c.started {
		c.started = true
		c.reset()
		return c.idx, true
	}

	// Advance the rightmost index that still has room.
	i := c.k - 1
	for i >= 0 && c.idx[i] == c.n-c.k+i {
		i--
	}
	if i >= 0 {
		c.idx[i]++
		for j := i + 1; j < c.k; j++ {
			c.idx[j] = c.idx[j-1] + 1
		}
		return c.idx, true
	}

	// Current size exhausted.
	c.k++
	if c.k > c.maxK {
		c.done = true
		return nil, false
	}
	c.reset()
	return c.idx, true
}

// Size returns the size of the subsets currently being produced.
func (c *combinations) Size() int { return c.k }

func (c *combinations) reset() {
	c.idx = c.idx[:0]
	for j := 0; j < c.k; j++ {
		c.idx = append(c.idx, j)
	}
}

// =============================================================================
// Helpers
// =============================================================================

// sortByID orders node indices by node ID.
func sortByID(g *graph.CausalGraph, idx []int) []int {
	out := append([]int(nil), idx...)
	sort.Slice(out, func(a, b int) bool { return g.IDOf(out[a]) < g.IDOf(out[b]) })
	return out
}

// sortedIDs maps indices to IDs sorted lexicographically.
func sortedIDs(g *graph.CausalGraph, idx []int) []string {
	out := g.IDsOf(idx)
	sort.Strings(out)
	return out
}

// pick maps positions in pool to node indices.
func pick(pool, positions []int) []int {
	out := make([]int, len(positions))
	for i, p := range positions {
		out[i] = pool[p]
	}
	return out
}

// cancelled reports whether ctx has been cancelled.
func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
