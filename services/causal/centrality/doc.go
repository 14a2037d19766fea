// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package centrality computes node importance measures over a causal graph.
//
// The measures ignore causal semantics and work on arcs: a directed edge
// A → B is the arc A → B, and a bidirected edge A ↔ B is the two arcs
// A → B and B → A. Parallel arcs collapse into one and self-loops are
// dropped, so every measure sees a simple digraph.
//
// Available measures: degree, betweenness (Brandes), closeness (over the
// reachable set) and PageRank (power iteration).
//
// Thread Safety: every function is pure over an immutable graph and safe
// for concurrent use.
package centrality

import (
	"errors"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("aleutian.causal.centrality")

// ErrUnknownMeasure is returned when a measure name is not recognised.
var ErrUnknownMeasure = errors.New("unknown centrality measure")
