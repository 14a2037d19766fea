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
	"log/slog"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// V-Structures
// =============================================================================

// VStructure is an unshielded collider Parent1 → Collider ← Parent2.
type VStructure struct {
	Parent1  string `json:"parent1"`
	Collider string `json:"collider"`
	Parent2  string `json:"parent2"`
}

// String renders the v-structure, e.g. "A -> C <- B".
func (v VStructure) String() string {
	return v.Parent1 + " -> " + v.Collider + " <- " + v.Parent2
}

// FindVStructures returns every unshielded collider in the graph.
//
// Description:
//
//	A v-structure is a pair of directed parents A → C ← B where A and B
//	are not joined by any edge. Within one v-structure the parents are
//	ordered by ID. Results follow collider declaration order, then parent
//	declaration order.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(Σ indegree²).
func FindVStructures(g *graph.CausalGraph) []VStructure {
	out := make([]VStructure, 0)
	if g == nil {
		return out
	}
	n := g.NodeCount()
	for c := 0; c < n; c++ {
		ps := graph.NodeSetOf(n, g.ParentIndices(c)...)
		ps.Remove(c)
		parents := ps.Indices()
		for i := 0; i < len(parents); i++ {
			for j := i + 1; j < len(parents); j++ {
				a, b := parents[i], parents[j]
				if g.Adjacent(a, b) {
					continue
				}
				p1, p2 := g.IDOf(a), g.IDOf(b)
				if p2 < p1 {
					p1, p2 = p2, p1
				}
				out = append(out, VStructure{Parent1: p1, Collider: g.IDOf(c), Parent2: p2})
			}
		}
	}
	return out
}

// =============================================================================
// Markov Blanket
// =============================================================================

// MarkovBlanket returns Pa(n) ∪ Ch(n) ∪ Pa(Ch(n)) \ {n}, sorted by ID.
// An unknown node yields an empty slice.
func MarkovBlanket(g *graph.CausalGraph, id string) []string {
	if g == nil {
		return []string{}
	}
	i, ok := g.IndexOf(id)
	if !ok {
		return []string{}
	}
	blanket := graph.NodeSetOf(g.NodeCount(), g.ParentIndices(i)...)
	for _, c := range g.ChildIndices(i) {
		blanket.Add(c)
		for _, p := range g.ParentIndices(c) {
			blanket.Add(p)
		}
	}
	blanket.Remove(i)
	return sortedIDs(g, blanket.Indices())
}

// =============================================================================
// Minimal Separator
// =============================================================================

// SeparatorResult is the outcome of FindMinimalSeparator.
type SeparatorResult struct {
	// Separator is the smallest separating set found, sorted by ID.
	// Empty when Found is false or the empty set separates.
	Separator []string `json:"separator"`

	// Found is true when a separating set was found.
	Found bool `json:"found"`

	// Exhaustive is false when a cap or cancellation ended the search
	// before every candidate was tried.
	Exhaustive bool `json:"exhaustive"`

	// Evaluated is the number of d-separation tests run.
	Evaluated int `json:"evaluated"`
}

// FindMinimalSeparator finds the smallest set Z with X ⊥ Y | Z.
//
// Description:
//
//	Candidates are (An(X) ∪ An(Y)) \ (X ∪ Y), sorted by ID. Subsets are
//	tried by increasing size in lexicographic order, so the first
//	separating subset is both minimum and reproducible. Overlapping X and
//	Y can never be separated. An empty X or Y is separated by ∅.
//
// Inputs:
//
//	ctx - Used for tracing and early stop.
//	g - The graph. Assumed acyclic.
//	x, y - Node IDs. Unknown IDs are ignored.
//	opts - MaxSetSize and MaxEvaluations bound the search.
//
// Outputs:
//
//	SeparatorResult - Never nil Separator.
//
// Thread Safety: Safe for concurrent use.
func FindMinimalSeparator(ctx context.Context, g *graph.CausalGraph, x, y []string, opts SearchOptions) SeparatorResult {
	opts.Validate()
	ctx, span := tracer.Start(ctx, "reason.FindMinimalSeparator",
		trace.WithAttributes(
			attribute.Int("x_count", len(x)),
			attribute.Int("y_count", len(y)),
		),
	)
	defer span.End()

	result := SeparatorResult{Separator: []string{}, Exhaustive: true}
	if g == nil {
		result.Found = true
		return result
	}

	n := g.NodeCount()
	xIdx, yIdx := g.IndicesOf(x), g.IndicesOf(y)
	if len(xIdx) == 0 || len(yIdx) == 0 {
		result.Found = true
		return result
	}
	xy := graph.NodeSetOf(n, xIdx...)
	if xy.Intersects(graph.NodeSetOf(n, yIdx...)) {
		return result
	}
	xy.Union(graph.NodeSetOf(n, yIdx...))

	pool := g.AncestorSet(append(append([]int(nil), xIdx...), yIdx...)...)
	pool.Subtract(xy)
	candidates := sortByID(g, pool.Indices())

	maxK := len(candidates)
	if opts.MaxSetSize > 0 && opts.MaxSetSize < maxK {
		maxK = opts.MaxSetSize
		result.Exhaustive = false
	}

	gen := newCombinations(len(candidates), 0, maxK)
	for {
		positions, ok := gen.Next()
		if !ok {
			break
		}
		if result.Evaluated >= opts.MaxEvaluations || cancelled(ctx) {
			result.Exhaustive = false
			break
		}
		result.Evaluated++
		zIdx := pick(candidates, positions)
		if IsDSeparated(g, xIdx, yIdx, zIdx) {
			result.Found = true
			result.Separator = sortedIDs(g, zIdx)
			result.Exhaustive = true
			break
		}
	}

	span.SetAttributes(
		attribute.Bool("found", result.Found),
		attribute.Int("evaluated", result.Evaluated),
		attribute.Int("candidates", len(candidates)),
	)
	if !result.Exhaustive {
		slog.Debug("minimal separator search capped",
			slog.Int("candidates", len(candidates)),
			slog.Int("evaluated", result.Evaluated),
		)
	}
	return result
}

// =============================================================================
// Backdoor Criterion
// =============================================================================

// IsValidBackdoorAdjustment reports whether z satisfies the backdoor
// criterion relative to (x, y).
//
// Description:
//
//	z is valid when (1) no member of z is a descendant of x and (2) z
//	blocks every backdoor path from x to y, i.e. every path whose first
//	edge has an arrowhead at x. Condition (2) is tested as d-separation
//	of x and y in the graph with the edges out of x removed.
//
//	Unknown x or y, x == y, or z containing x or y yield false. Unknown
//	members of z are ignored.
//
// Thread Safety: Safe for concurrent use.
func IsValidBackdoorAdjustment(g *graph.CausalGraph, x, y string, z []string) bool {
	if g == nil {
		return false
	}
	xi, ok := g.IndexOf(x)
	if !ok {
		return false
	}
	yi, ok := g.IndexOf(y)
	if !ok || xi == yi {
		return false
	}
	return backdoorValid(g, xi, yi, g.IndicesOf(z), g.DescendantSet(xi))
}

// backdoorValid is IsValidBackdoorAdjustment over indices with De(x)
// precomputed.
func backdoorValid(g *graph.CausalGraph, x, y int, z []int, desc graph.NodeSet) bool {
	for _, i := range z {
		if i == x || i == y || desc.Has(i) {
			return false
		}
	}
	return isSeparated(g, []int{x}, []int{y}, z, outOf(g, x))
}

// outOf returns an edge filter that removes the directed edges leaving x.
func outOf(g *graph.CausalGraph, x int) func(edge int) bool {
	removed := make(map[int]struct{})
	for _, inc := range g.Incident(x) {
		if !inc.HeadHere && inc.HeadThere {
			removed[inc.Edge] = struct{}{}
		}
	}
	return func(edge int) bool {
		_, ok := removed[edge]
		return ok
	}
}

// intoNodes returns an edge filter that removes every edge with an
// arrowhead at a node in set, which is the surgery performed by do(set).
func intoNodes(g *graph.CausalGraph, set []int) func(edge int) bool {
	removed := make(map[int]struct{})
	for _, v := range set {
		for _, inc := range g.Incident(v) {
			if inc.HeadHere {
				removed[inc.Edge] = struct{}{}
			}
		}
	}
	return func(edge int) bool {
		_, ok := removed[edge]
		return ok
	}
}

// BackdoorPaths lists every path from x to y whose first edge has an
// arrowhead at x, blocked or not.
func BackdoorPaths(g *graph.CausalGraph, x, y string, opts graph.PathOptions) graph.PathResult {
	if g == nil || x == y {
		return graph.PathResult{Paths: []graph.Path{}}
	}
	opts.FirstEdge = func(inc graph.Incidence) bool { return inc.HeadHere }
	opts.Admit = nil
	opts.StopAtEndpoints = true
	return graph.FindAllPaths(g, []string{x}, []string{y}, opts)
}
