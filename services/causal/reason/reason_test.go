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
	"testing"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"github.com/stretchr/testify/require"
)

// mustGraph builds a graph from compact edge strings.
func mustGraph(t *testing.T, items ...string) *graph.CausalGraph {
	t.Helper()
	g, err := graph.FromEdgeList("test", items...)
	require.NoError(t, err)
	return g
}

// confoundedMediator: X→M→Y with confounders U and A of X and Y.
func confoundedMediator(t *testing.T) *graph.CausalGraph {
	return mustGraph(t, "X->M", "M->Y", "U->X", "U->Y", "A->X", "A->Y")
}

// mBias: X ← A → M ← B → Y with a direct effect X → Y.
func mBias(t *testing.T) *graph.CausalGraph {
	return mustGraph(t, "A->X", "A->M", "B->M", "B->Y", "X->Y")
}

// frontdoorGraph: X → M → Y with a latent confounder X ↔ Y.
func frontdoorGraph(t *testing.T) *graph.CausalGraph {
	return mustGraph(t, "X->M", "M->Y", "X<->Y")
}

// instrumentGraph: Z → X with confounder U of X and Y.
func instrumentGraph(t *testing.T) *graph.CausalGraph {
	return mustGraph(t, "Z->X", "U->X", "U->Y", "X->Y")
}

// fixtures returns every shared test graph by name.
func fixtures(t *testing.T) map[string]*graph.CausalGraph {
	return map[string]*graph.CausalGraph{
		"confounded_mediator": confoundedMediator(t),
		"m_bias":              mBias(t),
		"frontdoor":           frontdoorGraph(t),
		"instrument":          instrumentGraph(t),
		"mixed":               mustGraph(t, "A->B", "B<->C", "C->D", "A<->D", "E->C", "D->F"),
		"disconnected":        mustGraph(t, "A1->A2", "B1->B2"),
	}
}

// allIndices returns 0..n-1.
func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
