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
	"log/slog"
	"math"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// PageRank
// =============================================================================

// PageRank configuration constants.
const (
	// DefaultDampingFactor is the probability of following an arc rather
	// than jumping to a random node.
	DefaultDampingFactor = 0.85

	// DefaultMaxIterations bounds power iteration.
	DefaultMaxIterations = 50

	// DefaultConvergence is the L1 delta between two iterations below
	// which the scores are considered stable.
	DefaultConvergence = 1e-6
)

// PageRankOptions configures PageRank.
type PageRankOptions struct {
	// DampingFactor must be in [0, 1]. Default: 0.85
	DampingFactor float64 `json:"damping_factor" yaml:"damping_factor"`

	// MaxIterations must be > 0. Default: 50
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// Convergence must be > 0. Default: 1e-6
	Convergence float64 `json:"convergence" yaml:"convergence"`
}

// Validate applies defaults for out-of-range values.
func (o *PageRankOptions) Validate() {
	if o.DampingFactor < 0 || o.DampingFactor > 1 || math.IsNaN(o.DampingFactor) {
		o.DampingFactor = DefaultDampingFactor
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Convergence <= 0 || math.IsNaN(o.Convergence) {
		o.Convergence = DefaultConvergence
	}
}

// DefaultPageRankOptions returns the standard configuration.
func DefaultPageRankOptions() *PageRankOptions {
	return &PageRankOptions{
		DampingFactor: DefaultDampingFactor,
		MaxIterations: DefaultMaxIterations,
		Convergence:   DefaultConvergence,
	}
}

// PageRankResult contains the output of PageRank.
type PageRankResult struct {
	// Scores maps node ID to score. Scores sum to approximately 1.
	Scores map[string]float64 `json:"scores"`

	// Iterations is the number of iterations performed.
	Iterations int `json:"iterations"`

	// Converged is true when Delta dropped below the threshold.
	Converged bool `json:"converged"`

	// Delta is the final L1 difference between iterations.
	Delta float64 `json:"delta"`
}

// PageRank computes PageRank scores by power iteration.
//
// Description:
//
//	Each iteration assigns every node (1-d)/N, plus d times the rank its
//	in-neighbours split evenly across their out-arcs, plus an equal share
//	of the rank held by dangling nodes (no out-arcs). Redistributing the
//	dangling mass keeps the total at 1. Iteration stops when the L1 delta
//	falls below Convergence or MaxIterations is reached.
//
// Inputs:
//
//   - ctx: Context for cancellation. A cancelled context returns the
//     scores of the last completed iteration with Converged false.
//   - g: The graph. Nil or empty yields an empty, converged result.
//   - opts: Configuration. If nil, defaults are used.
//
// Outputs:
//
//   - *PageRankResult: Never nil.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(k × (V + E)) where k is the iteration count.
func PageRank(ctx context.Context, g *graph.CausalGraph, opts *PageRankOptions) *PageRankResult {
	ctx, span := tracer.Start(ctx, "centrality.PageRank", spanAttrs(g))
	defer span.End()

	if g == nil || g.NodeCount() == 0 {
		span.AddEvent("empty_graph")
		return &PageRankResult{Scores: make(map[string]float64), Converged: true}
	}

	if opts == nil {
		opts = DefaultPageRankOptions()
	} else {
		copied := *opts
		copied.Validate()
		opts = &copied
	}
	span.SetAttributes(
		attribute.Float64("damping_factor", opts.DampingFactor),
		attribute.Int("max_iterations", opts.MaxIterations),
		attribute.Float64("convergence_threshold", opts.Convergence),
	)

	a := arcsOf(g)
	n := float64(a.n)
	d := opts.DampingFactor

	scores := make([]float64, a.n)
	next := make([]float64, a.n)
	for i := range scores {
		scores[i] = 1 / n
	}

	dangling := make([]int, 0)
	for v := 0; v < a.n; v++ {
		if len(a.out[v]) == 0 {
			dangling = append(dangling, v)
		}
	}
	span.SetAttributes(attribute.Int("dangling_node_count", len(dangling)))

	var (
		iterations int
		converged  bool
		delta      float64
	)
	for iter := 0; iter < opts.MaxIterations; iter++ {
		if ctx.Err() != nil {
			span.AddEvent("cancelled", trace.WithAttributes(
				attribute.Int("iterations_completed", iter),
			))
			return &PageRankResult{
				Scores:     scoreMap(g, scores),
				Iterations: iter,
				Delta:      delta,
			}
		}

		danglingMass := 0.0
		for _, v := range dangling {
			danglingMass += scores[v]
		}
		base := (1-d)/n + d*danglingMass/n

		delta = 0
		for v := 0; v < a.n; v++ {
			s := base
			for _, u := range a.in[v] {
				s += d * scores[u] / float64(len(a.out[u]))
			}
			next[v] = s
			delta += math.Abs(s - scores[v])
		}
		scores, next = next, scores
		iterations = iter + 1

		if delta < opts.Convergence {
			converged = true
			break
		}
	}

	slog.Debug("PageRank completed",
		slog.Int("iterations", iterations),
		slog.Bool("converged", converged),
		slog.Float64("delta", delta),
		slog.Int("node_count", a.n),
	)
	span.SetAttributes(
		attribute.Int("iterations", iterations),
		attribute.Bool("converged", converged),
		attribute.Float64("delta", delta),
	)

	return &PageRankResult{
		Scores:     scoreMap(g, scores),
		Iterations: iterations,
		Converged:  converged,
		Delta:      delta,
	}
}
