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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Degree Centrality
// =============================================================================

// DegreeOptions configures Degree.
type DegreeOptions struct {
	// Normalized divides every count by (n - 1) when n > 1.
	Normalized bool `json:"normalized"`
}

// DegreeScore holds the in, out and total arc counts of a node.
type DegreeScore struct {
	In    float64 `json:"in"`
	Out   float64 `json:"out"`
	Total float64 `json:"total"`
}

// Degree computes in-, out- and total degree for every node.
//
// Thread Safety: Safe for concurrent use.
//
// Complexity: O(V + E).
func Degree(ctx context.Context, g *graph.CausalGraph, opts DegreeOptions) map[string]DegreeScore {
	_, span := tracer.Start(ctx, "centrality.Degree", spanAttrs(g))
	defer span.End()

	out := make(map[string]DegreeScore)
	if g == nil {
		return out
	}
	a := arcsOf(g)
	norm := 1.0
	if opts.Normalized && a.n > 1 {
		norm = float64(a.n - 1)
	}
	for v := 0; v < a.n; v++ {
		in, o := float64(len(a.in[v])), float64(len(a.out[v]))
		out[g.IDOf(v)] = DegreeScore{In: in / norm, Out: o / norm, Total: (in + o) / norm}
	}
	return out
}

// spanAttrs returns the standard attributes for a centrality span.
func spanAttrs(g *graph.CausalGraph) trace.SpanStartOption {
	if g == nil {
		return trace.WithAttributes(attribute.Bool("graph.nil", true))
	}
	return trace.WithAttributes(
		attribute.String("graph.id", g.ID()),
		attribute.Int("node_count", g.NodeCount()),
		attribute.Int("edge_count", g.EdgeCount()),
	)
}
