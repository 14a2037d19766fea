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
// Closeness Centrality
// =============================================================================

// ClosenessOptions configures Closeness.
type ClosenessOptions struct {
	// WassermanFaust scales each score by (reachable - 1) / (n - 1), so
	// nodes reaching few others are not ranked above well-connected ones.
	WassermanFaust bool `json:"wasserman_faust"`
}

// Closeness computes closeness centrality over outgoing arcs.
//
// Description:
//
//	For each node v, BFS finds the reachable set R (v included) and the
//	sum of distances to it. The score is (|R| - 1) / Σ d, computed over
//	the reachable subset only, so disconnected graphs are handled. A node
//	that reaches nothing scores 0.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(V · (V + E)).
func Closeness(ctx context.Context, g *graph.CausalGraph, opts ClosenessOptions) map[string]float64 {
	ctx, span := tracer.Start(ctx, "centrality.Closeness", spanAttrs(g))
	defer span.End()

	if g == nil {
		return map[string]float64{}
	}
	a := arcsOf(g)
	scores := make([]float64, a.n)
	dist := make([]int, a.n)
	queue := make([]int, 0, a.n)

	for s := 0; s < a.n; s++ {
		if s%64 == 0 && ctx.Err() != nil {
			span.AddEvent("cancelled")
			break
		}
		for i := range dist {
			dist[i] = -1
		}
		dist[s] = 0
		queue = append(queue[:0], s)
		total := 0
		for head := 0; head < len(queue); head++ {
			v := queue[head]
			for _, w := range a.out[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					total += dist[w]
					queue = append(queue, w)
				}
			}
		}

		reached := len(queue) - 1
		if reached == 0 || total == 0 {
			continue
		}
		scores[s] = float64(reached) / float64(total)
		if opts.WassermanFaust && a.n > 1 {
			scores[s] *= float64(reached) / float64(a.n-1)
		}
	}
	return scoreMap(g, scores)
}
