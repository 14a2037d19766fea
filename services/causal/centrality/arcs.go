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

import "github.com/AleutianAI/AleutianCausal/services/causal/graph"

// arcs is the simple-digraph view of a causal graph over node indices.
type arcs struct {
	n   int
	out [][]int
	in  [][]int
}

// arcsOf builds the arc view. Out and in lists are in ascending index
// order.
func arcsOf(g *graph.CausalGraph) *arcs {
	n := g.NodeCount()
	a := &arcs{n: n, out: make([][]int, n), in: make([][]int, n)}
	for v := 0; v < n; v++ {
		outSet := graph.NewNodeSet(n)
		inSet := graph.NewNodeSet(n)
		for _, inc := range g.Incident(v) {
			if inc.Neighbor == v {
				continue
			}
			if inc.HeadThere {
				outSet.Add(inc.Neighbor)
			}
			if inc.HeadHere {
				inSet.Add(inc.Neighbor)
			}
		}
		a.out[v] = outSet.Indices()
		a.in[v] = inSet.Indices()
	}
	return a
}

// arcCount returns the number of arcs.
func (a *arcs) arcCount() int {
	m := 0
	for _, o := range a.out {
		m += len(o)
	}
	return m
}

// scoreMap converts an index-ordered score slice to a map keyed by node ID.
func scoreMap(g *graph.CausalGraph, scores []float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for i, s := range scores {
		out[g.IDOf(i)] = s
	}
	return out
}
