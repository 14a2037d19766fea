// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package centrality

import (
	"context"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
)

// =============================================================================
// Betweenness Centrality
// =============================================================================

// BetweennessOptions configures Betweenness.
type BetweennessOptions struct {
	// Normalized divides scores by (n-1)(n-2) when n > 2.
	Normalized bool `json:"normalized"`
}

// Betweenness computes betweenness centrality with Brandes' algorithm.
//
// Description:
//
//	From every source, a BFS counts shortest paths (sigma) and records
//	predecessors; dependencies are then accumulated in reverse BFS order.
//	A node's score is the sum over (s, t) pairs of the fraction of
//	shortest s → t paths passing through it. Isolated nodes score 0.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(V · E) time, O(V + E) space.
func Betweenness(ctx context.Context, g *graph.CausalGraph, opts BetweennessOptions) map[string]float64 {
	ctx, span := tracer.Start(ctx, "centrality.Betweenness", spanAttrs(g))
	defer span.End()

	if g == nil {
		return map[string]float64{}
	}
	a := arcsOf(g)
	cb := make([]float64, a.n)

	b := newBrandes(a.n)
	for s := 0; s < a.n; s++ {
		if s%64 == 0 && ctx.Err() != nil {
			span.AddEvent("cancelled")
			break
		}
		b.run(a, s, cb)
	}

	if opts.Normalized && a.n > 2 {
		norm := float64((a.n - 1) * (a.n - 2))
		for i := range cb {
			cb[i] /= norm
		}
	}
	return scoreMap(g, cb)
}

// brandes holds reusable per-source buffers.
type brandes struct {
	stack []int
	queue []int
	pred  [][]int
	sigma []float64
	dist  []int
	delta []float64
}

func newBrandes(n int) *brandes {
	return &brandes{
		stack: make([]int, 0, n),
		queue: make([]int, 0, n),
		pred:  make([][]int, n),
		sigma: make([]float64, n),
		dist:  make([]int, n),
		delta: make([]float64, n),
	}
}

// run performs the BFS and accumulation phases from source s.
func (b *brandes) run(a *arcs, s int, cb []float64) {
	for i := 0; i < a.n; i++ {
		b.pred[i] = b.pred[i][:0]
		b.sigma[i] = 0
		b.dist[i] = -1
		b.delta[i] = 0
	}
	b.stack = b.stack[:0]
	b.queue = append(b.queue[:0], s)
	b.sigma[s] = 1
	b.dist[s] = 0

	for head := 0; head < len(b.queue); head++ {
		v := b.queue[head]
		b.stack = append(b.stack, v)
		for _, w := range a.out[v] {
			if b.dist[w] < 0 {
				b.dist[w] = b.dist[v] + 1
				b.queue = append(b.queue, w)
			}
			if b.dist[w] == b.dist[v]+1 {
				b.sigma[w] += b.sigma[v]
				b.pred[w] = append(b.pred[w], v)
			}
		}
	}

	for i := len(b.stack) - 1; i >= 0; i-- {
		w := b.stack[i]
		for _, v := range b.pred[w] {
			b.delta[v] += (b.sigma[v] / b.sigma[w]) * (1 + b.delta[w])
		}
		if w != s {
			cb[w] += b.delta[w]
		}
	}
}
