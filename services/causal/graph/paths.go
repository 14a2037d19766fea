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
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Path Finder
// =============================================================================

// NodeRole classifies an interior node of a path.
type NodeRole string

const (
	// RoleCollider means both adjacent path edges have arrowheads at the node.
	RoleCollider NodeRole = "collider"

	// RoleChain means exactly one adjacent path edge has an arrowhead at the node.
	RoleChain NodeRole = "chain"

	// RoleFork means neither adjacent path edge has an arrowhead at the node.
	RoleFork NodeRole = "fork"
)

// roleOf derives the role of a node from the arrowheads of the edge it was
// entered through and the edge it is left through.
func roleOf(headIn, headOut bool) NodeRole {
	switch {
	case headIn && headOut:
		return RoleCollider
	case !headIn && !headOut:
		return RoleFork
	default:
		return RoleChain
	}
}

// PathNode is an annotated interior node.
type PathNode struct {
	ID   string   `json:"id"`
	Role NodeRole `json:"role"`
}

// Path is a simple path over the undirected skeleton.
type Path struct {
	// Nodes lists the path from source to target.
	Nodes []string `json:"nodes"`

	// Edges holds the traversed edges in their declared orientation.
	// len(Edges) == len(Nodes)-1.
	Edges []Edge `json:"edges"`

	// Interior annotates Nodes[1:len(Nodes)-1].
	Interior []PathNode `json:"interior"`
}

// Length returns the number of edges.
func (p Path) Length() int { return len(p.Edges) }

// Colliders returns the IDs of interior collider nodes.
func (p Path) Colliders() []string {
	out := make([]string, 0)
	for _, n := range p.Interior {
		if n.Role == RoleCollider {
			out = append(out, n.ID)
		}
	}
	return out
}

// String renders the path, e.g. "X <- U -> Y".
func (p Path) String() string {
	if len(p.Nodes) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(p.Nodes[0])
	for k, e := range p.Edges {
		switch {
		case e.Type == EdgeTypeBidirected:
			sb.WriteString(" <-> ")
		case e.From == p.Nodes[k]:
			sb.WriteString(" -> ")
		default:
			sb.WriteString(" <- ")
		}
		sb.WriteString(p.Nodes[k+1])
	}
	return sb.String()
}

// PathOptions bounds and filters path enumeration.
type PathOptions struct {
	// MaxLength is the maximum number of edges per path.
	// Default (<= 0): the node count.
	MaxLength int

	// MaxPaths stops enumeration after this many paths. 0 means unlimited.
	MaxPaths int

	// FirstEdge, when set, filters the edge leaving each source.
	FirstEdge func(inc Incidence) bool

	// Admit, when set, is called for every interior node as soon as its
	// role is known. Returning false abandons every path with that prefix.
	Admit func(node int, role NodeRole) bool

	// StopAtEndpoints ends a path at the first target it reaches and
	// never walks through another source. Set-based d-separation only
	// needs these paths: any path with a target or source in its interior
	// has an active sub-path whenever it is active itself.
	StopAtEndpoints bool
}

// PathResult holds enumerated paths.
type PathResult struct {
	// Paths in deterministic discovery order.
	Paths []Path `json:"paths"`

	// Truncated is true when MaxPaths or MaxLength cut enumeration short.
	Truncated bool `json:"truncated"`
}

// FindAllPaths enumerates simple paths between sources and targets.
//
// Description:
//
//	Walks the undirected skeleton depth-first from each source. Every
//	distinct edge sequence is a distinct path, so parallel directed and
//	bidirected edges yield separate paths. Every simple path from any
//	source to any target is reported, including paths that pass through
//	other sources or targets, unless opts.StopAtEndpoints is set.
//
// Inputs:
//
//	g - The graph. Nil yields an empty result.
//	sources, targets - Node IDs. Unknown IDs are ignored; a source that is
//	  also a target produces no zero-length path.
//	opts - Bounds and hooks. MaxLength defaults to the node count.
//
// Outputs:
//
//	PathResult - Paths in discovery order (sources in given order,
//	  adjacency in edge declaration order). Never nil Paths.
//
// Complexity: exponential in the worst case; bounded by MaxLength/MaxPaths.
func FindAllPaths(g *CausalGraph, sources, targets []string, opts PathOptions) PathResult {
	if g == nil {
		return PathResult{Paths: []Path{}}
	}
	return FindPathsIdx(g, g.IndicesOf(sources), g.SetOf(targets), opts)
}

// FindPathsIdx is FindAllPaths over node indices.
func FindPathsIdx(g *CausalGraph, sources []int, targets NodeSet, opts PathOptions) PathResult {
	n := g.NodeCount()
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = n
	}

	w := &pathWalker{
		g:       g,
		opts:    opts,
		maxLen:  maxLen,
		targets: targets,
		sources: NodeSetOf(n, sources...),
		onPath:  NewNodeSet(n),
		result:  PathResult{Paths: []Path{}},
	}
	for _, s := range sources {
		if targets.Has(s) {
			continue
		}
		w.nodes = append(w.nodes[:0], s)
		w.incs = w.incs[:0]
		w.onPath.Add(s)
		w.walk(s)
		w.onPath.Remove(s)
		if w.stopped {
			break
		}
	}
	return w.result
}

// FindAllPathsTraced wraps FindAllPaths in a span and records query metrics.
func FindAllPathsTraced(ctx context.Context, g *CausalGraph, sources, targets []string, opts PathOptions) PathResult {
	start := time.Now()
	ctx, span := startQuerySpan(ctx, "FindAllPaths", g)
	defer span.End()

	result := FindAllPaths(g, sources, targets, opts)

	span.SetAttributes(
		attribute.Int("graph.path_count", len(result.Paths)),
		attribute.Bool("graph.truncated", result.Truncated),
	)
	recordQueryMetrics(ctx, "find_all_paths", time.Since(start), len(result.Paths))
	return result
}

type pathWalker struct {
	g       *CausalGraph
	opts    PathOptions
	maxLen  int
	targets NodeSet
	sources NodeSet
	onPath  NodeSet
	nodes   []int
	incs    []Incidence
	result  PathResult
	stopped bool
}

func (w *pathWalker) walk(v int) {
	if len(w.incs) >= w.maxLen {
		for _, inc := range w.g.incident[v] {
			if !w.onPath.Has(inc.Neighbor) {
				w.result.Truncated = true
				break
			}
		}
		return
	}

	for _, inc := range w.g.incident[v] {
		if w.stopped {
			return
		}
		next := inc.Neighbor
		if w.onPath.Has(next) {
			continue
		}
		if len(w.incs) == 0 {
			if w.opts.FirstEdge != nil && !w.opts.FirstEdge(inc) {
				continue
			}
		} else if w.opts.Admit != nil {
			role := roleOf(w.incs[len(w.incs)-1].HeadThere, inc.HeadHere)
			if !w.opts.Admit(v, role) {
				continue
			}
		}

		isTarget := w.targets.Has(next)
		if w.opts.StopAtEndpoints && !isTarget && w.sources.Has(next) {
			continue
		}

		w.nodes = append(w.nodes, next)
		w.incs = append(w.incs, inc)
		if isTarget {
			w.emit()
		}
		if !w.stopped && (!isTarget || !w.opts.StopAtEndpoints) {
			w.onPath.Add(next)
			w.walk(next)
			w.onPath.Remove(next)
		}
		w.nodes = w.nodes[:len(w.nodes)-1]
		w.incs = w.incs[:len(w.incs)-1]
	}
}

func (w *pathWalker) emit() {
	if w.opts.MaxPaths > 0 && len(w.result.Paths) >= w.opts.MaxPaths {
		w.result.Truncated = true
		w.stopped = true
		return
	}
	p := Path{
		Nodes:    w.g.IDsOf(w.nodes),
		Edges:    make([]Edge, len(w.incs)),
		Interior: make([]PathNode, 0, len(w.nodes)-2),
	}
	for k, inc := range w.incs {
		p.Edges[k] = w.g.EdgeAt(inc.Edge)
		if k > 0 {
			p.Interior = append(p.Interior, PathNode{
				ID:   w.g.IDOf(w.nodes[k]),
				Role: roleOf(w.incs[k-1].HeadThere, inc.HeadHere),
			})
		}
	}
	w.result.Paths = append(w.result.Paths, p)
}

// spanGraphAttrs returns the standard attributes for a graph span.
func spanGraphAttrs(g *CausalGraph) trace.SpanStartOption {
	if g == nil {
		return trace.WithAttributes(attribute.Bool("graph.nil", true))
	}
	return trace.WithAttributes(
		attribute.String("graph.id", g.id),
		attribute.Int("graph.node_count", len(g.nodes)),
		attribute.Int("graph.edge_count", len(g.edges)),
	)
}
