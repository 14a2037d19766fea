// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the causal graph model and path enumeration.
//
// The graph package contains types for representing a causal model as a
// directed graph where nodes are variables and edges are either directed
// causal links (A → B) or bidirected latent-confounding links (A ↔ B).
//
// # Construction Model
//
// A CausalGraph is built once via New (or Builder / GraphSpec) and is
// immutable afterwards:
//   - Node IDs MUST be unique and non-empty
//   - Every edge MUST reference declared node IDs (dangling edges are
//     rejected with ErrInvalidEdgeTarget, never silently dropped)
//   - Duplicate (from, to, type) triples are rejected
//
// # Acyclicity
//
// Graphs may contain directed cycles. The causal algorithms built on top
// of this package (d-separation, backdoor, frontdoor, instrumental
// variables) assume acyclicity; this is a documented precondition and is
// not checked. Every traversal in this package uses a visited set and
// terminates on cyclic input.
//
// # Thread Safety
//
// A constructed CausalGraph is read-only and safe for concurrent use.
//
// # Internal Layout
//
// Nodes are stored in declaration order and addressed internally by dense
// integer indices. Adjacency lists are index slices, and node sets are
// bitsets (NodeSet) over those indices.
package graph

import "errors"

// Sentinel errors for graph construction.
var (
	// ErrInvalidNode is returned when a node has an empty ID or an
	// unknown node type.
	ErrInvalidNode = errors.New("invalid node")

	// ErrDuplicateNode is returned when two nodes share an ID.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrInvalidEdgeTarget is returned when an edge references a node ID
	// that was not declared. Callers surface this as INVALID_EDGE_TARGET.
	ErrInvalidEdgeTarget = errors.New("edge references undeclared node")

	// ErrDuplicateEdge is returned when the same (from, to, type) triple
	// appears twice. A bidirected A↔B duplicates B↔A.
	ErrDuplicateEdge = errors.New("duplicate edge")

	// ErrInvalidEdgeType is returned when an edge type is not directed
	// or bidirected.
	ErrInvalidEdgeType = errors.New("invalid edge type")

	// ErrInvalidEdgeAttribute is returned when strength or confidence is
	// not finite, or confidence falls outside [0, 1].
	ErrInvalidEdgeAttribute = errors.New("invalid edge attribute")

	// ErrInvalidSpec is returned when a GraphSpec fails struct validation
	// or cannot be decoded.
	ErrInvalidSpec = errors.New("invalid graph spec")
)
