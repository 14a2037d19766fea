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

// IndependenceOptions bounds ImpliedIndependencies.
type IndependenceOptions struct {
	// MaxConditioningSetSize bounds |Z|. Must be > 0. Default: 2
	MaxConditioningSetSize int

	// MaxResults stops the search after this many independencies.
	// Must be > 0. Default: 1000
	MaxResults int

	// MaxEvaluations caps the number of d-separation tests.
	// Must be > 0. Default: 100000
	MaxEvaluations int
}

// Validate checks options and applies defaults for invalid values.
func (o *IndependenceOptions) Validate() {
	if o.MaxConditioningSetSize <= 0 {
		o.MaxConditioningSetSize = DefaultMaxConditioningSetSize
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxIndependencies
	}
	if o.MaxEvaluations <= 0 {
		o.MaxEvaluations = DefaultMaxEvaluations
	}
}

// Independence states X ⊥ Y | Given.
type Independence struct {
	X     string   `json:"x"`
	Y     string   `json:"y"`
	Given []string `json:"given"`
}

// String renders the statement, e.g. "X ⊥ Y | {A, B}".
func (i Independence) String() string {
	s := i.X + " ⊥ " + i.Y
	if len(i.Given) == 0 {
		return s
	}
	s += " | {"
	for k, z := range i.Given {
		if k > 0 {
			s += ", "
		}
		s += z
	}
	return s + "}"
}

// IndependenceResult lists the independencies implied by a graph.
type IndependenceResult struct {
	// Independencies in pair order, smallest conditioning set first.
	Independencies []Independence `json:"independencies"`

	// Exhaustive is false when MaxResults, MaxEvaluations or cancellation
	// stopped the search early.
	Exhaustive bool `json:"exhaustive"`

	// Evaluated is the number of d-separation tests run.
	Evaluated int `json:"evaluated"`
}

// ImpliedIndependencies enumerates the conditional independencies the
// graph implies, up to a bounded conditioning set size.
//
// Description:
//
//	For every non-adjacent pair (a, b), a declared before b, candidate
//	sets Z are drawn from the ancestors of a and b (every minimal
//	separator lies there) in ID order, by increasing size up to
//	MaxConditioningSetSize. A separating Z is reported unless it is a
//	superset of a set already reported for the pair, so each reported
//	set is a minimal separator.
//
// Inputs:
//
//	ctx - Used for tracing and early stop.
//	g - The graph. Assumed acyclic.
//	opts - Search bounds. Zero values take defaults.
//
// Outputs:
//
//	IndependenceResult - Never nil Independencies.
//
// Thread Safety: Safe for concurrent use.
func ImpliedIndependencies(ctx context.Context, g *graph.CausalGraph, opts IndependenceOptions) IndependenceResult {
	opts.Validate()
	ctx, span := tracer.Start(ctx, "reason.ImpliedIndependencies",
		trace.WithAttributes(attribute.Int("max_conditioning_set_size", opts.MaxConditioningSetSize)),
	)
	defer span.End()

	result := IndependenceResult{Independencies: []Independence{}, Exhaustive: true}
	if g == nil {
		return result
	}

	n := g.NodeCount()
search:
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			if g.Adjacent(a, b) {
				continue
			}
			pool := g.AncestorSet(a, b)
			pool.Remove(a)
			pool.Remove(b)
			candidates := sortByID(g, pool.Indices())

			var found []graph.NodeSet
			gen := newCombinations(len(candidates), 0, opts.MaxConditioningSetSize)
			for {
				positions, ok := gen.Next()
				if !ok {
					break
				}
				zIdx := pick(candidates, positions)
				zSet := graph.NodeSetOf(n, zIdx...)
				if containsAny(zSet, found) {
					continue
				}
				if result.Evaluated >= opts.MaxEvaluations || cancelled(ctx) {
					result.Exhaustive = false
					break search
				}
				result.Evaluated++
				if !IsDSeparated(g, []int{a}, []int{b}, zIdx) {
					continue
				}
				found = append(found, zSet)
				result.Independencies = append(result.Independencies, Independence{
					X:     g.IDOf(a),
					Y:     g.IDOf(b),
					Given: sortedIDs(g, zIdx),
				})
				if len(result.Independencies) >= opts.MaxResults {
					result.Exhaustive = false
					break search
				}
			}
		}
	}

	span.SetAttributes(
		attribute.Int("independencies", len(result.Independencies)),
		attribute.Int("evaluated", result.Evaluated),
		attribute.Bool("exhaustive", result.Exhaustive),
	)
	slog.Debug("implied independencies enumerated",
		slog.Int("count", len(result.Independencies)),
		slog.Int("evaluated", result.Evaluated),
		slog.Bool("exhaustive", result.Exhaustive),
	)
	return result
}

// containsAny reports whether s is a superset of any set in found.
func containsAny(s graph.NodeSet, found []graph.NodeSet) bool {
	for _, f := range found {
		if isSubset(f, s) {
			return true
		}
	}
	return false
}

// isSubset reports whether every member of a is in b.
func isSubset(a, b graph.NodeSet) bool {
	for _, i := range a.Indices() {
		if !b.Has(i) {
			return false
		}
	}
	return true
}
