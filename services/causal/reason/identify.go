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
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Backdoor Set Enumeration
// =============================================================================

// BackdoorSetsResult lists valid backdoor adjustment sets.
type BackdoorSetsResult struct {
	// Sets are valid adjustment sets, smallest first, each sorted by ID.
	Sets [][]string `json:"sets"`

	// CandidatePool is the pool subsets were drawn from, sorted by ID.
	CandidatePool []string `json:"candidate_pool"`

	// Exhaustive is true when every subset of every non-descendant of x
	// was considered.
	Exhaustive bool `json:"exhaustive"`

	// Heuristic is true when the pool was too large and was replaced by
	// Pa(x) ∪ Pa(y) ∪ Spouses(x).
	Heuristic bool `json:"heuristic"`

	// Evaluated is the number of candidate subsets tested.
	Evaluated int `json:"evaluated"`
}

// FindAllBackdoorSets enumerates backdoor adjustment sets for (x, y).
//
// Description:
//
//	The candidate pool is every non-descendant of x other than x and y.
//	When the pool exceeds MaxCandidatePool it falls back to the parents
//	of x and y and the spouses of x (minus descendants of x), truncated
//	to the cap, and the result is marked Heuristic and not Exhaustive.
//	Subsets of the pool are tested smallest first with
//	IsValidBackdoorAdjustment. The search stops at MaxSets valid sets or
//	MaxEvaluations tests.
//
// Inputs:
//
//	ctx - Used for tracing and early stop.
//	g - The graph. Assumed acyclic.
//	x, y - Treatment and outcome IDs.
//	opts - Search bounds. Zero values take defaults.
//
// Outputs:
//
//	BackdoorSetsResult - Never nil Sets or CandidatePool.
//
// Thread Safety: Safe for concurrent use.
func FindAllBackdoorSets(ctx context.Context, g *graph.CausalGraph, x, y string, opts SearchOptions) BackdoorSetsResult {
	opts.Validate()
	ctx, span := tracer.Start(ctx, "reason.FindAllBackdoorSets",
		trace.WithAttributes(
			attribute.String("treatment", x),
			attribute.String("outcome", y),
		),
	)
	defer span.End()

	result := BackdoorSetsResult{Sets: [][]string{}, CandidatePool: []string{}, Exhaustive: true}
	if g == nil {
		return result
	}
	xi, ok := g.IndexOf(x)
	if !ok {
		return result
	}
	yi, ok := g.IndexOf(y)
	if !ok || xi == yi {
		return result
	}

	n := g.NodeCount()
	desc := g.DescendantSet(xi)
	excluded := desc.Clone()
	excluded.Add(xi)
	excluded.Add(yi)

	pool := graph.NewNodeSet(n)
	for i := 0; i < n; i++ {
		if !excluded.Has(i) {
			pool.Add(i)
		}
	}
	candidates := sortByID(g, pool.Indices())

	if len(candidates) > opts.MaxCandidatePool {
		result.Heuristic = true
		result.Exhaustive = false
		fallback := graph.NodeSetOf(n, g.ParentIndices(xi)...)
		for _, p := range g.ParentIndices(yi) {
			fallback.Add(p)
		}
		for _, s := range g.SpouseIndices(xi) {
			fallback.Add(s)
		}
		fallback.Subtract(excluded)
		candidates = sortByID(g, fallback.Indices())
		if len(candidates) > opts.MaxCandidatePool {
			candidates = candidates[:opts.MaxCandidatePool]
		}
		slog.Debug("backdoor candidate pool replaced by parent heuristic",
			slog.String("treatment", x),
			slog.Int("pool_size", pool.Len()),
			slog.Int("cap", opts.MaxCandidatePool),
		)
	}
	result.CandidatePool = g.IDsOf(candidates)

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
		if !backdoorValid(g, xi, yi, zIdx, desc) {
			continue
		}
		result.Sets = append(result.Sets, sortedIDs(g, zIdx))
		if len(result.Sets) >= opts.MaxSets {
			result.Exhaustive = false
			break
		}
	}

	span.SetAttributes(
		attribute.Int("sets", len(result.Sets)),
		attribute.Int("evaluated", result.Evaluated),
		attribute.Bool("heuristic", result.Heuristic),
		attribute.Bool("exhaustive", result.Exhaustive),
	)
	return result
}

// =============================================================================
// Frontdoor Criterion
// =============================================================================

// FrontdoorResult is the outcome of CheckFrontdoorCriterion.
type FrontdoorResult struct {
	// Satisfied is true when a mediator set was found.
	Satisfied bool `json:"satisfied"`

	// Mediators is the smallest qualifying set, sorted by ID.
	Mediators []string `json:"mediators"`

	// Reason explains the verdict.
	Reason string `json:"reason"`

	// Exhaustive is false when a cap cut the search short.
	Exhaustive bool `json:"exhaustive"`
}

// CheckFrontdoorCriterion searches for a mediator set M satisfying the
// frontdoor criterion relative to (x, y).
//
// Description:
//
//	Candidates are De(x) ∩ An(y). Non-empty subsets are tried smallest
//	first in ID order. M qualifies when (a) M intercepts every directed
//	path from x to y, (b) no backdoor path from x to M is open given ∅,
//	and (c) every backdoor path from each m ∈ M to y is blocked by {x}.
//
// Inputs:
//
//	ctx - Used for tracing and early stop.
//	g - The graph. Assumed acyclic.
//	x, y - Treatment and outcome IDs.
//	opts - MaxCandidatePool, MaxSetSize and MaxEvaluations bound the search.
//
// Outputs:
//
//	FrontdoorResult - Never nil Mediators.
//
// Thread Safety: Safe for concurrent use.
func CheckFrontdoorCriterion(ctx context.Context, g *graph.CausalGraph, x, y string, opts SearchOptions) FrontdoorResult {
	opts.Validate()
	ctx, span := tracer.Start(ctx, "reason.CheckFrontdoorCriterion",
		trace.WithAttributes(
			attribute.String("treatment", x),
			attribute.String("outcome", y),
		),
	)
	defer span.End()

	result := FrontdoorResult{Mediators: []string{}, Exhaustive: true}
	if g == nil {
		result.Reason = "graph is empty"
		return result
	}
	xi, okX := g.IndexOf(x)
	yi, okY := g.IndexOf(y)
	switch {
	case !okX || !okY:
		result.Reason = fmt.Sprintf("unknown treatment or outcome (%q, %q)", x, y)
		return result
	case xi == yi:
		result.Reason = "treatment and outcome are the same node"
		return result
	case g.HasDirectedEdge(xi, yi):
		result.Reason = fmt.Sprintf("direct edge %s -> %s cannot be intercepted by a mediator", x, y)
		return result
	}

	n := g.NodeCount()
	pool := g.DescendantSet(xi)
	anY := g.AncestorSet(yi)
	pool.Subtract(invert(anY, n))
	pool.Remove(xi)
	pool.Remove(yi)
	candidates := sortByID(g, pool.Indices())
	if len(candidates) == 0 {
		result.Reason = fmt.Sprintf("no variable lies on a directed path from %s to %s", x, y)
		return result
	}
	if len(candidates) > opts.MaxCandidatePool {
		candidates = candidates[:opts.MaxCandidatePool]
		result.Exhaustive = false
	}

	maxK := len(candidates)
	if opts.MaxSetSize > 0 && opts.MaxSetSize < maxK {
		maxK = opts.MaxSetSize
		result.Exhaustive = false
	}

	xOut := outOf(g, xi)
	evaluated := 0
	gen := newCombinations(len(candidates), 1, maxK)
	for {
		positions, ok := gen.Next()
		if !ok {
			break
		}
		if evaluated >= opts.MaxEvaluations || cancelled(ctx) {
			result.Exhaustive = false
			break
		}
		evaluated++
		m := pick(candidates, positions)
		if frontdoorHolds(g, xi, yi, m, xOut) {
			result.Satisfied = true
			result.Mediators = sortedIDs(g, m)
			result.Reason = fmt.Sprintf("{%s} satisfies the frontdoor criterion for %s -> %s",
				strings.Join(result.Mediators, ", "), x, y)
			break
		}
	}
	if !result.Satisfied {
		result.Reason = fmt.Sprintf("no mediator set satisfies the frontdoor criterion for %s -> %s", x, y)
	}

	span.SetAttributes(
		attribute.Bool("satisfied", result.Satisfied),
		attribute.Int("evaluated", evaluated),
	)
	return result
}

// frontdoorHolds checks conditions (a), (b) and (c) for mediator set m.
func frontdoorHolds(g *graph.CausalGraph, x, y int, m []int, xOut func(int) bool) bool {
	n := g.NodeCount()
	if g.HasDirectedPath(x, y, graph.NodeSetOf(n, m...)) {
		return false
	}
	if !isSeparated(g, []int{x}, m, nil, xOut) {
		return false
	}
	for _, mi := range m {
		if !isSeparated(g, []int{mi}, []int{y}, []int{x}, outOf(g, mi)) {
			return false
		}
	}
	return true
}

// invert returns the complement of s over [0, n).
func invert(s graph.NodeSet, n int) graph.NodeSet {
	out := graph.NewNodeSet(n)
	for i := 0; i < n; i++ {
		if !s.Has(i) {
			out.Add(i)
		}
	}
	return out
}

// =============================================================================
// Instrumental Variables
// =============================================================================

// FindInstrumentalVariable returns the first instrument for x → y.
//
// Description:
//
//	A parent z of x is an instrument when there is no edge z → y and z is
//	d-separated from y in the graph mutilated by do(x). Parents are tried
//	in declaration order.
//
// Outputs:
//
//	string - The instrument ID.
//	bool - False when no parent qualifies.
//
// Thread Safety: Safe for concurrent use.
func FindInstrumentalVariable(g *graph.CausalGraph, x, y string) (string, bool) {
	ivs := instruments(g, x, y, 1)
	if len(ivs) == 0 {
		return "", false
	}
	return ivs[0], true
}

// FindInstrumentalVariables returns every instrument for x → y in
// declaration order.
func FindInstrumentalVariables(g *graph.CausalGraph, x, y string) []string {
	return instruments(g, x, y, 0)
}

func instruments(g *graph.CausalGraph, x, y string, limit int) []string {
	out := make([]string, 0)
	if g == nil {
		return out
	}
	xi, ok := g.IndexOf(x)
	if !ok {
		return out
	}
	yi, ok := g.IndexOf(y)
	if !ok || xi == yi {
		return out
	}

	doX := intoNodes(g, []int{xi})
	parents := graph.NodeSetOf(g.NodeCount(), g.ParentIndices(xi)...)
	for _, z := range parents.Indices() {
		if z == xi || z == yi || g.HasDirectedEdge(z, yi) {
			continue
		}
		if !isSeparated(g, []int{z}, []int{yi}, nil, doX) {
			continue
		}
		out = append(out, g.IDOf(z))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
