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
	"fmt"
	"math"
)

// NodeType is a semantic hint describing a variable's role.
//
// No algorithm reads NodeType; it is carried for callers and exports.
type NodeType string

const (
	NodeTypeUnspecified  NodeType = ""
	NodeTypeCause        NodeType = "cause"
	NodeTypeEffect       NodeType = "effect"
	NodeTypeMediator     NodeType = "mediator"
	NodeTypeConfounder   NodeType = "confounder"
	NodeTypeInstrument   NodeType = "instrument"
	NodeTypeObserved     NodeType = "observed"
	NodeTypeLatent       NodeType = "latent"
	NodeTypeIntervention NodeType = "intervention"
	NodeTypeOutcome      NodeType = "outcome"
)

// Valid reports whether t is unspecified or one of the known node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeUnspecified, NodeTypeCause, NodeTypeEffect, NodeTypeMediator,
		NodeTypeConfounder, NodeTypeInstrument, NodeTypeObserved, NodeTypeLatent,
		NodeTypeIntervention, NodeTypeOutcome:
		return true
	default:
		return false
	}
}

// EdgeType defines the kind of link between two variables.
type EdgeType string

const (
	// EdgeTypeDirected is a causal link From → To.
	EdgeTypeDirected EdgeType = "directed"

	// EdgeTypeBidirected is a latent common cause From ↔ To. It carries
	// an arrowhead at both endpoints.
	EdgeTypeBidirected EdgeType = "bidirected"
)

// Valid reports whether t is a known edge type.
func (t EdgeType) Valid() bool {
	return t == EdgeTypeDirected || t == EdgeTypeBidirected
}

// Node is a variable in the causal graph.
type Node struct {
	// ID is the unique identifier. Required.
	ID string `json:"id"`

	// Name is a display name. Defaults to ID when empty.
	Name string `json:"name"`

	// Type is an optional semantic hint.
	Type NodeType `json:"type,omitempty"`
}

// Edge is a link between two declared nodes.
type Edge struct {
	// From is the source node ID.
	From string `json:"from"`

	// To is the target node ID.
	To string `json:"to"`

	// Type is directed or bidirected. Required.
	Type EdgeType `json:"type"`

	// Strength is an optional effect-size annotation.
	Strength *float64 `json:"strength,omitempty"`

	// Confidence is an optional belief in the edge, in [0, 1].
	Confidence *float64 `json:"confidence,omitempty"`
}

// String renders the edge as "A -> B" or "A <-> B".
func (e Edge) String() string {
	if e.Type == EdgeTypeBidirected {
		return e.From + " <-> " + e.To
	}
	return e.From + " -> " + e.To
}

// Incidence describes one edge as seen from one of its endpoints.
type Incidence struct {
	// Edge is the index of the edge in declaration order.
	Edge int

	// Neighbor is the index of the other endpoint.
	Neighbor int

	// HeadHere is true when the edge has an arrowhead at this endpoint.
	HeadHere bool

	// HeadThere is true when the edge has an arrowhead at the neighbor.
	HeadThere bool
}

type edgeKey struct {
	from, to int
	typ      EdgeType
}

// CausalGraph is an immutable causal model.
//
// Thread Safety: Safe for concurrent reads. There are no mutators.
type CausalGraph struct {
	id       string
	nodes    []Node
	edges    []Edge
	metadata map[string]string

	index    map[string]int
	parents  [][]int
	children [][]int
	spouses  [][]int
	incident [][]Incidence
	edgeSet  map[edgeKey]struct{}
}

// Option configures graph construction.
type Option func(*CausalGraph)

// WithMetadata attaches a copy of md to the graph.
func WithMetadata(md map[string]string) Option {
	return func(g *CausalGraph) {
		for k, v := range md {
			g.metadata[k] = v
		}
	}
}

// New validates and builds a CausalGraph.
//
// Description:
//
//	Nodes keep their declaration order, which fixes every deterministic
//	iteration order in the engine. Each edge endpoint must be a declared
//	node; violations reject the whole graph.
//
// Inputs:
//
//	id - Graph identifier. May be empty.
//	nodes - Declared variables. IDs must be unique and non-empty.
//	edges - Links between declared variables.
//	opts - Optional settings such as WithMetadata.
//
// Outputs:
//
//	*CausalGraph - The immutable graph. Nil on error.
//	error - Wraps ErrInvalidNode, ErrDuplicateNode, ErrInvalidEdgeTarget,
//	  ErrDuplicateEdge, ErrInvalidEdgeType or ErrInvalidEdgeAttribute.
func New(id string, nodes []Node, edges []Edge, opts ...Option) (*CausalGraph, error) {
	n := len(nodes)
	g := &CausalGraph{
		id:       id,
		nodes:    make([]Node, 0, n),
		edges:    make([]Edge, 0, len(edges)),
		metadata: make(map[string]string),
		index:    make(map[string]int, n),
		parents:  make([][]int, n),
		children: make([][]int, n),
		spouses:  make([][]int, n),
		incident: make([][]Incidence, n),
		edgeSet:  make(map[edgeKey]struct{}, len(edges)),
	}

	for i, node := range nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("%w: node %d has empty id", ErrInvalidNode, i)
		}
		if !node.Type.Valid() {
			return nil, fmt.Errorf("%w: node %q has unknown type %q", ErrInvalidNode, node.ID, node.Type)
		}
		if _, exists := g.index[node.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, node.ID)
		}
		if node.Name == "" {
			node.Name = node.ID
		}
		g.index[node.ID] = i
		g.nodes = append(g.nodes, node)
	}

	for _, e := range edges {
		if err := g.addEdge(e); err != nil {
			return nil, err
		}
	}

	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *CausalGraph) addEdge(e Edge) error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q on edge %s", ErrInvalidEdgeType, e.Type, e)
	}
	from, ok := g.index[e.From]
	if !ok {
		return fmt.Errorf("%w: %q (edge %s)", ErrInvalidEdgeTarget, e.From, e)
	}
	to, ok := g.index[e.To]
	if !ok {
		return fmt.Errorf("%w: %q (edge %s)", ErrInvalidEdgeTarget, e.To, e)
	}
	if err := validateAttribute("strength", e.Strength, false); err != nil {
		return fmt.Errorf("%w on edge %s", err, e)
	}
	if err := validateAttribute("confidence", e.Confidence, true); err != nil {
		return fmt.Errorf("%w on edge %s", err, e)
	}

	key := edgeKey{from: from, to: to, typ: e.Type}
	if e.Type == EdgeTypeBidirected && from > to {
		key.from, key.to = to, from
	}
	if _, dup := g.edgeSet[key]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateEdge, e)
	}
	g.edgeSet[key] = struct{}{}

	idx := len(g.edges)
	g.edges = append(g.edges, copyEdge(e))

	switch e.Type {
	case EdgeTypeDirected:
		g.children[from] = append(g.children[from], to)
		g.parents[to] = append(g.parents[to], from)
		g.incident[from] = append(g.incident[from], Incidence{Edge: idx, Neighbor: to, HeadThere: true})
		if from != to {
			g.incident[to] = append(g.incident[to], Incidence{Edge: idx, Neighbor: from, HeadHere: true})
		}
	case EdgeTypeBidirected:
		g.spouses[from] = append(g.spouses[from], to)
		g.incident[from] = append(g.incident[from], Incidence{Edge: idx, Neighbor: to, HeadHere: true, HeadThere: true})
		if from != to {
			g.spouses[to] = append(g.spouses[to], from)
			g.incident[to] = append(g.incident[to], Incidence{Edge: idx, Neighbor: from, HeadHere: true, HeadThere: true})
		}
	}
	return nil
}

func validateAttribute(name string, v *float64, unit bool) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return fmt.Errorf("%w: %s is not finite", ErrInvalidEdgeAttribute, name)
	}
	if unit && (*v < 0 || *v > 1) {
		return fmt.Errorf("%w: %s %v outside [0, 1]", ErrInvalidEdgeAttribute, name, *v)
	}
	return nil
}

func copyEdge(e Edge) Edge {
	if e.Strength != nil {
		s := *e.Strength
		e.Strength = &s
	}
	if e.Confidence != nil {
		c := *e.Confidence
		e.Confidence = &c
	}
	return e
}

// ID returns the graph identifier.
func (g *CausalGraph) ID() string { return g.id }

// NodeCount returns the number of nodes.
func (g *CausalGraph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *CausalGraph) EdgeCount() int { return len(g.edges) }

// Nodes returns a copy of the nodes in declaration order.
func (g *CausalGraph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns a copy of the edges in declaration order.
func (g *CausalGraph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	for i, e := range g.edges {
		out[i] = copyEdge(e)
	}
	return out
}

// Metadata returns a copy of the graph metadata.
func (g *CausalGraph) Metadata() map[string]string {
	out := make(map[string]string, len(g.metadata))
	for k, v := range g.metadata {
		out[k] = v
	}
	return out
}

// Node returns the node with the given ID.
func (g *CausalGraph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// HasNode reports whether id is declared.
func (g *CausalGraph) HasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

// HasEdge reports whether the (from, to, type) edge exists. Bidirected
// edges match in either orientation.
func (g *CausalGraph) HasEdge(from, to string, t EdgeType) bool {
	fi, ok := g.index[from]
	if !ok {
		return false
	}
	ti, ok := g.index[to]
	if !ok {
		return false
	}
	return g.hasEdgeIdx(fi, ti, t)
}

func (g *CausalGraph) hasEdgeIdx(from, to int, t EdgeType) bool {
	key := edgeKey{from: from, to: to, typ: t}
	if t == EdgeTypeBidirected && from > to {
		key.from, key.to = to, from
	}
	_, ok := g.edgeSet[key]
	return ok
}

// HasDirectedEdge reports whether from → to exists, by index.
func (g *CausalGraph) HasDirectedEdge(from, to int) bool {
	return g.hasEdgeIdx(from, to, EdgeTypeDirected)
}

// Adjacent reports whether any edge joins the two nodes, by index.
func (g *CausalGraph) Adjacent(a, b int) bool {
	return g.hasEdgeIdx(a, b, EdgeTypeDirected) ||
		g.hasEdgeIdx(b, a, EdgeTypeDirected) ||
		g.hasEdgeIdx(a, b, EdgeTypeBidirected)
}

// IndexOf returns the dense index of a node ID.
func (g *CausalGraph) IndexOf(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// IDOf returns the node ID at index i. Panics if i is out of range.
func (g *CausalGraph) IDOf(i int) string { return g.nodes[i].ID }

// IDsOf maps indices to node IDs.
func (g *CausalGraph) IDsOf(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.nodes[i].ID
	}
	return out
}

// IndicesOf maps node IDs to indices, dropping unknown IDs and
// duplicates. Order follows the input.
func (g *CausalGraph) IndicesOf(ids []string) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		i, ok := g.index[id]
		if !ok {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	return out
}

// SetOf builds a NodeSet from node IDs, ignoring unknown IDs.
func (g *CausalGraph) SetOf(ids []string) NodeSet {
	return NodeSetOf(len(g.nodes), g.IndicesOf(ids)...)
}

// ParentIndices returns the directed parents of node i.
// The returned slice is owned by the graph and MUST NOT be modified.
func (g *CausalGraph) ParentIndices(i int) []int { return g.parents[i] }

// ChildIndices returns the directed children of node i.
// The returned slice is owned by the graph and MUST NOT be modified.
func (g *CausalGraph) ChildIndices(i int) []int { return g.children[i] }

// SpouseIndices returns nodes joined to i by a bidirected edge.
// The returned slice is owned by the graph and MUST NOT be modified.
func (g *CausalGraph) SpouseIndices(i int) []int { return g.spouses[i] }

// Incident returns every edge touching node i in edge declaration order.
// The returned slice is owned by the graph and MUST NOT be modified.
func (g *CausalGraph) Incident(i int) []Incidence { return g.incident[i] }

// EdgeAt returns the edge with declaration index i.
func (g *CausalGraph) EdgeAt(i int) Edge { return copyEdge(g.edges[i]) }
