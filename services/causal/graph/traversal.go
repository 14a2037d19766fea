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

// =============================================================================
// Adjacency Queries
// =============================================================================

// Parents returns the IDs of nodes with a directed edge into id, in
// declaration order. Unknown IDs yield an empty slice.
func (g *CausalGraph) Parents(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return []string{}
	}
	return g.IDsOf(g.sortedUnique(g.parents[i]))
}

// Children returns the IDs of nodes with a directed edge from id, in
// declaration order. Unknown IDs yield an empty slice.
func (g *CausalGraph) Children(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return []string{}
	}
	return g.IDsOf(g.sortedUnique(g.children[i]))
}

// Spouses returns the IDs of nodes joined to id by a bidirected edge.
func (g *CausalGraph) Spouses(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return []string{}
	}
	return g.IDsOf(g.sortedUnique(g.spouses[i]))
}

// Neighbors returns every node adjacent to id through any edge, in
// declaration order, excluding id itself.
func (g *CausalGraph) Neighbors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return []string{}
	}
	set := NewNodeSet(len(g.nodes))
	for _, inc := range g.incident[i] {
		set.Add(inc.Neighbor)
	}
	set.Remove(i)
	return g.IDsOf(set.Indices())
}

// Ancestors returns every node with a directed path into id, excluding
// id itself, in declaration order.
func (g *CausalGraph) Ancestors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return []string{}
	}
	return g.IDsOf(g.AncestorSet(i).Indices())
}

// Descendants returns every node reachable from id by a directed path,
// excluding id itself, in declaration order.
func (g *CausalGraph) Descendants(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return []string{}
	}
	return g.IDsOf(g.DescendantSet(i).Indices())
}

// =============================================================================
// Index-level Traversal
// =============================================================================

// AncestorSet returns the strict ancestors of the given nodes: every node
// with a directed path into at least one of them, excluding the start
// nodes unless one is an ancestor of another (or lies on a cycle).
//
// Complexity: O(V + E). Terminates on cyclic graphs.
func (g *CausalGraph) AncestorSet(start ...int) NodeSet {
	return g.reach(start, g.parents)
}

// DescendantSet returns the strict descendants of the given nodes.
//
// Complexity: O(V + E). Terminates on cyclic graphs.
func (g *CausalGraph) DescendantSet(start ...int) NodeSet {
	return g.reach(start, g.children)
}

// reach runs a BFS along adj from the start nodes. A start node is only
// included when it is reached again through an edge.
func (g *CausalGraph) reach(start []int, adj [][]int) NodeSet {
	out := NewNodeSet(len(g.nodes))
	queue := make([]int, 0, len(start))
	for _, s := range start {
		if s >= 0 && s < len(g.nodes) {
			queue = append(queue, s)
		}
	}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range adj[v] {
			if out.Has(w) {
				continue
			}
			out.Add(w)
			queue = append(queue, w)
		}
	}
	return out
}

// HasDirectedPath reports whether to is reachable from from along directed
// edges while avoiding every node in blocked. from itself is never
// considered blocked.
func (g *CausalGraph) HasDirectedPath(from, to int, blocked NodeSet) bool {
	if from < 0 || from >= len(g.nodes) || to < 0 || to >= len(g.nodes) {
		return false
	}
	seen := NewNodeSet(len(g.nodes))
	seen.Add(from)
	stack := []int{from}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, w := range g.children[v] {
			if w == to {
				return true
			}
			if seen.Has(w) || blocked.Has(w) {
				continue
			}
			seen.Add(w)
			stack = append(stack, w)
		}
	}
	return false
}

func (g *CausalGraph) sortedUnique(idx []int) []int {
	return NodeSetOf(len(g.nodes), idx...).Indices()
}
