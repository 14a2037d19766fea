// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reason implements causal reasoning over a graph.CausalGraph.
//
// It provides d-separation, structural analysis (v-structures, Markov
// blankets, minimal separators), identification (backdoor, frontdoor,
// instrumental variables, adjustment formulas) and do-operator graph
// surgery.
//
// # Preconditions
//
// Every criterion here assumes the graph is acyclic. Cyclic input never
// hangs or panics, but results are only meaningful for DAGs (with
// optional bidirected edges).
//
// # Bounded Searches
//
// Subset searches enumerate candidates with an incremental combination
// generator and stop at the caps in SearchOptions or
// IndependenceOptions. A capped result reports Exhaustive=false. A
// cancelled context stops a search the same way.
//
// # Thread Safety
//
// All functions are pure over an immutable graph and safe for
// concurrent use.
package reason

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("aleutian.causal.reason")
