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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Declarative Spec
// =============================================================================

// specValidate is the validator instance for graph specs.
var specValidate = validator.New(validator.WithRequiredStructEnabled())

// GraphSpec is the declarative (YAML/JSON) form of a CausalGraph.
type GraphSpec struct {
	ID       string            `json:"id,omitempty" yaml:"id,omitempty" validate:"omitempty,max=128"`
	Nodes    []NodeSpec        `json:"nodes" yaml:"nodes" validate:"max=5000,dive"`
	Edges    []EdgeSpec        `json:"edges" yaml:"edges" validate:"max=50000,dive"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NodeSpec declares one variable.
type NodeSpec struct {
	ID   string `json:"id" yaml:"id" validate:"required,max=256"`
	Name string `json:"name,omitempty" yaml:"name,omitempty" validate:"max=512"`
	Type string `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=cause effect mediator confounder instrument observed latent intervention outcome"`
}

// EdgeSpec declares one edge. An empty Type means directed.
type EdgeSpec struct {
	From       string   `json:"from" yaml:"from" validate:"required"`
	To         string   `json:"to" yaml:"to" validate:"required"`
	Type       string   `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=directed bidirected"`
	Strength   *float64 `json:"strength,omitempty" yaml:"strength,omitempty"`
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// DecodeSpecYAML parses a YAML graph spec. Unknown fields are rejected.
func DecodeSpecYAML(data []byte) (*GraphSpec, error) {
	var spec GraphSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidSpec, err)
	}
	return &spec, nil
}

// DecodeSpecJSON parses a JSON graph spec. Unknown fields are rejected.
func DecodeSpecJSON(data []byte) (*GraphSpec, error) {
	var spec GraphSpec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidSpec, err)
	}
	return &spec, nil
}

// DecodeSpec sniffs JSON (leading '{') and falls back to YAML.
func DecodeSpec(data []byte) (*GraphSpec, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return DecodeSpecJSON(trimmed)
	}
	return DecodeSpecYAML(data)
}

// Validate checks struct-level constraints. Referential checks (dangling
// edges, duplicates) happen in Build.
func (s *GraphSpec) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil spec", ErrInvalidSpec)
	}
	if err := specValidate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return nil
}

// Build validates the spec and constructs the graph.
//
// Description:
//
//	Runs struct validation, assigns a random UUID when ID is empty, and
//	delegates referential validation to New. Construction metrics are
//	recorded against ctx.
//
// Outputs:
//
//	*CausalGraph - The graph. Nil on error.
//	error - ErrInvalidSpec or any error from New.
func (s *GraphSpec) Build(ctx context.Context) (*CausalGraph, error) {
	if err := s.Validate(); err != nil {
		recordBuildMetrics(ctx, 0, 0, false)
		return nil, err
	}

	id := s.ID
	if id == "" {
		id = uuid.NewString()
	}

	nodes := make([]Node, len(s.Nodes))
	for i, ns := range s.Nodes {
		nodes[i] = Node{ID: ns.ID, Name: ns.Name, Type: NodeType(ns.Type)}
	}
	edges := make([]Edge, len(s.Edges))
	for i, es := range s.Edges {
		t := EdgeType(es.Type)
		if t == "" {
			t = EdgeTypeDirected
		}
		edges[i] = Edge{From: es.From, To: es.To, Type: t, Strength: es.Strength, Confidence: es.Confidence}
	}

	g, err := New(id, nodes, edges, WithMetadata(s.Metadata))
	if err != nil {
		recordBuildMetrics(ctx, 0, 0, false)
		return nil, err
	}
	recordBuildMetrics(ctx, g.NodeCount(), g.EdgeCount(), true)
	return g, nil
}

// SpecFromGraph converts a graph back to its declarative form.
func SpecFromGraph(g *CausalGraph) *GraphSpec {
	spec := &GraphSpec{
		ID:       g.id,
		Nodes:    make([]NodeSpec, len(g.nodes)),
		Edges:    make([]EdgeSpec, len(g.edges)),
		Metadata: g.Metadata(),
	}
	for i, n := range g.nodes {
		spec.Nodes[i] = NodeSpec{ID: n.ID, Name: n.Name, Type: string(n.Type)}
	}
	for i, e := range g.edges {
		e = copyEdge(e)
		spec.Edges[i] = EdgeSpec{From: e.From, To: e.To, Type: string(e.Type), Strength: e.Strength, Confidence: e.Confidence}
	}
	return spec
}

// =============================================================================
// Builder
// =============================================================================

// Builder accumulates nodes and edges for New.
//
// Example:
//
//	g, err := graph.NewBuilder("study").
//	    Node("X", graph.NodeTypeCause).
//	    Node("Y", graph.NodeTypeOutcome).
//	    Edge("X", "Y").
//	    Build()
type Builder struct {
	id       string
	nodes    []Node
	edges    []Edge
	metadata map[string]string
}

// NewBuilder starts a graph with the given ID.
func NewBuilder(id string) *Builder {
	return &Builder{id: id, metadata: make(map[string]string)}
}

// Node declares a node whose name equals its ID.
func (b *Builder) Node(id string, t NodeType) *Builder {
	b.nodes = append(b.nodes, Node{ID: id, Name: id, Type: t})
	return b
}

// Nodes declares several untyped nodes.
func (b *Builder) Nodes(ids ...string) *Builder {
	for _, id := range ids {
		b.nodes = append(b.nodes, Node{ID: id, Name: id})
	}
	return b
}

// Edge adds a directed edge.
func (b *Builder) Edge(from, to string) *Builder {
	b.edges = append(b.edges, Edge{From: from, To: to, Type: EdgeTypeDirected})
	return b
}

// Bidirected adds a latent-confounder edge.
func (b *Builder) Bidirected(a, c string) *Builder {
	b.edges = append(b.edges, Edge{From: a, To: c, Type: EdgeTypeBidirected})
	return b
}

// Meta sets a metadata entry.
func (b *Builder) Meta(key, value string) *Builder {
	b.metadata[key] = value
	return b
}

// Build constructs the graph via New.
func (b *Builder) Build() (*CausalGraph, error) {
	return New(b.id, b.nodes, b.edges, WithMetadata(b.metadata))
}

// FromEdgeList builds a graph from compact edge strings such as "A->B" and
// "A<->B". Nodes are declared in order of first appearance. A bare token
// without an arrow declares an isolated node.
func FromEdgeList(id string, items ...string) (*CausalGraph, error) {
	b := NewBuilder(id)
	seen := make(map[string]bool)
	declare := func(n string) {
		if !seen[n] {
			seen[n] = true
			b.Nodes(n)
		}
	}
	for _, raw := range items {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}
		if l, r, ok := strings.Cut(item, "<->"); ok {
			l, r = strings.TrimSpace(l), strings.TrimSpace(r)
			declare(l)
			declare(r)
			b.Bidirected(l, r)
			continue
		}
		if l, r, ok := strings.Cut(item, "->"); ok {
			l, r = strings.TrimSpace(l), strings.TrimSpace(r)
			declare(l)
			declare(r)
			b.Edge(l, r)
			continue
		}
		declare(item)
	}
	return b.Build()
}
