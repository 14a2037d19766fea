// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"reflect"
	"testing"
)

// confoundedMediator is the classic study graph:
// X→M, M→Y, U→X, U→Y, A→X, A→Y.
func confoundedMediator(t *testing.T) *CausalGraph {
	t.Helper()
	g, err := NewBuilder("study").
		Nodes("X", "M", "Y", "U", "A").
		Edge("X", "M").
		Edge("M", "Y").
		Edge("U", "X").
		Edge("U", "Y").
		Edge("A", "X").
		Edge("A", "Y").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func TestAdjacencyQueries(t *testing.T) {
	g := confoundedMediator(t)

	tests := []struct {
		name string
		got  []string
		want []string
	}{
		{"parents of X", g.Parents("X"), []string{"U", "A"}},
		{"parents of Y", g.Parents("Y"), []string{"M", "U", "A"}},
		{"children of U", g.Children("U"), []string{"X", "Y"}},
		{"children of Y", g.Children("Y"), []string{}},
		{"neighbors of X", g.Neighbors("X"), []string{"M", "U", "A"}},
		{"ancestors of Y", g.Ancestors("Y"), []string{"X", "M", "U", "A"}},
		{"ancestors of U", g.Ancestors("U"), []string{}},
		{"descendants of X", g.Descendants("X"), []string{"M", "Y"}},
		{"descendants of A", g.Descendants("A"), []string{"X", "M", "Y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestQueries_UnknownNodeReturnsEmpty(t *testing.T) {
	g := confoundedMediator(t)

	for name, got := range map[string][]string{
		"parents":     g.Parents("nope"),
		"children":    g.Children("nope"),
		"neighbors":   g.Neighbors("nope"),
		"ancestors":   g.Ancestors("nope"),
		"descendants": g.Descendants("nope"),
		"spouses":     g.Spouses("nope"),
	} {
		if got == nil || len(got) != 0 {
			t.Errorf("%s: expected empty non-nil slice, got %#v", name, got)
		}
	}
}

func TestTraversal_CyclicGraphTerminates(t *testing.T) {
	g, err := FromEdgeList("cycle", "A->B", "B->C", "C->A", "C->D")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// Every node on the cycle is its own ancestor; the traversal must
	// still terminate.
	if got, want := g.Ancestors("A"), []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ancestors(A) = %v, want %v", got, want)
	}
	if got, want := g.Descendants("D"), []string{}; !reflect.DeepEqual(got, want) {
		t.Errorf("descendants(D) = %v, want %v", got, want)
	}
	if got, want := g.Descendants("A"), []string{"A", "B", "C", "D"}; !reflect.DeepEqual(got, want) {
		t.Errorf("descendants(A) = %v, want %v", got, want)
	}
}

func TestBidirectedEdges_NotParents(t *testing.T) {
	g, err := FromEdgeList("g", "X<->Y", "X->Y")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if got := g.Parents("Y"); !reflect.DeepEqual(got, []string{"X"}) {
		t.Errorf("parents(Y) = %v", got)
	}
	if got := g.Parents("X"); len(got) != 0 {
		t.Errorf("parents(X) = %v, want none", got)
	}
	if got := g.Spouses("Y"); !reflect.DeepEqual(got, []string{"X"}) {
		t.Errorf("spouses(Y) = %v", got)
	}
	if got := g.Neighbors("Y"); !reflect.DeepEqual(got, []string{"X"}) {
		t.Errorf("neighbors(Y) = %v, want [X] without duplicates", got)
	}
}

func TestHasDirectedPath(t *testing.T) {
	g := confoundedMediator(t)
	idx := func(id string) int {
		i, _ := g.IndexOf(id)
		return i
	}
	empty := NewNodeSet(g.NodeCount())

	if !g.HasDirectedPath(idx("X"), idx("Y"), empty) {
		t.Error("expected X ~> Y")
	}
	if g.HasDirectedPath(idx("X"), idx("Y"), NodeSetOf(g.NodeCount(), idx("M"))) {
		t.Error("M should intercept every directed path X ~> Y")
	}
	if g.HasDirectedPath(idx("Y"), idx("X"), empty) {
		t.Error("unexpected Y ~> X")
	}
}

func TestNodeSet(t *testing.T) {
	s := NewNodeSet(130)
	s.Add(0)
	s.Add(64)
	s.Add(129)
	s.Add(500) // ignored

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	if !reflect.DeepEqual(s.Indices(), []int{0, 64, 129}) {
		t.Errorf("Indices = %v", s.Indices())
	}

	c := s.Clone()
	c.Remove(64)
	if !s.Has(64) || c.Has(64) {
		t.Error("Clone must be independent")
	}

	o := NodeSetOf(130, 129, 5)
	if !s.Intersects(o) {
		t.Error("expected intersection on 129")
	}
	s.Subtract(o)
	if s.Has(129) {
		t.Error("Subtract did not remove 129")
	}
	s.Union(o)
	if !s.Has(5) || !s.Has(129) {
		t.Error("Union did not add members")
	}

	var zero NodeSet
	zero.Add(1)
	if !zero.Empty() || zero.Has(1) {
		t.Error("zero-value set must stay empty")
	}
}
