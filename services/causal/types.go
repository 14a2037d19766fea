// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package causal

import (
	"encoding/json"
	"time"

	"github.com/AleutianAI/AleutianCausal/services/causal/cache"
	"github.com/AleutianAI/AleutianCausal/services/causal/centrality"
	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"github.com/AleutianAI/AleutianCausal/services/causal/reason"
	graphstore "github.com/AleutianAI/AleutianCausal/services/causal/storage/badger"
)

// Operation names an analysis. The same names are used for batch entries,
// memo keys and metric labels.
type Operation string

const (
	OpPaths          Operation = "paths"
	OpDSeparation    Operation = "dseparation"
	OpIndependencies Operation = "independencies"
	OpStructure      Operation = "structure"
	OpSeparator      Operation = "separator"
	OpBackdoor       Operation = "backdoor"
	OpBackdoorSets   Operation = "backdoor_sets"
	OpFrontdoor      Operation = "frontdoor"
	OpInstrument     Operation = "instrument"
	OpIntervention   Operation = "intervention"
	OpCentrality     Operation = "centrality"
)

// Operations lists every analysis in route order.
var Operations = []Operation{
	OpPaths, OpDSeparation, OpIndependencies, OpStructure, OpSeparator,
	OpBackdoor, OpBackdoorSets, OpFrontdoor, OpInstrument, OpIntervention,
	OpCentrality,
}

// =============================================================================
// Common
// =============================================================================

// GraphRef selects the graph an analysis runs on: exactly one of an
// inline Graph or the GraphID of a stored graph.
type GraphRef struct {
	Graph   *graph.GraphSpec `json:"graph,omitempty"`
	GraphID string           `json:"graph_id,omitempty" binding:"omitempty,max=128"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AnalysisResponse wraps the result of one analysis.
type AnalysisResponse[T any] struct {
	// GraphID is the id of the analysed graph. Inline graphs without an
	// id report InlineGraphID.
	GraphID string `json:"graph_id"`

	// Cached is true when the result came from the memo.
	Cached bool `json:"cached"`

	// DurationMs is wall time spent in the handler's analysis call.
	DurationMs int64 `json:"duration_ms"`

	Result T `json:"result"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the body of GET /ready.
type ReadyResponse struct {
	Ready   bool        `json:"ready"`
	Store   string      `json:"store"`
	Breaker string      `json:"breaker"`
	Cache   cache.Stats `json:"cache"`
}

// =============================================================================
// Graph Store
// =============================================================================

// SaveGraphResponse is the body of POST /graphs.
type SaveGraphResponse struct {
	graphstore.Summary
}

// ListGraphsResponse is the body of GET /graphs.
type ListGraphsResponse struct {
	Graphs []graphstore.Summary `json:"graphs"`
	Count  int                  `json:"count"`
}

// GetGraphResponse is the body of GET /graphs/:id.
type GetGraphResponse struct {
	Graph   *graph.GraphSpec `json:"graph"`
	SavedAt time.Time        `json:"saved_at"`
}

// =============================================================================
// Analysis Parameters
// =============================================================================

// PathsParams configures a path enumeration. Zero bounds use the engine
// configuration.
type PathsParams struct {
	From      []string `json:"from" binding:"required,min=1"`
	To        []string `json:"to" binding:"required,min=1"`
	MaxLength int      `json:"max_length,omitempty" binding:"gte=0,lte=256"`
	MaxPaths  int      `json:"max_paths,omitempty" binding:"gte=0"`
}

// DSeparationParams asks X ⊥ Y | Z.
type DSeparationParams struct {
	X        []string `json:"x" binding:"required,min=1"`
	Y        []string `json:"y" binding:"required,min=1"`
	Z        []string `json:"z,omitempty"`
	MaxPaths int      `json:"max_paths,omitempty" binding:"gte=0"`
}

// IndependenciesParams bounds the implied-independence scan.
type IndependenciesParams struct {
	MaxConditioningSetSize int `json:"max_conditioning_set_size,omitempty" binding:"gte=0,lte=8"`
	MaxResults             int `json:"max_results,omitempty" binding:"gte=0"`
}

// StructureParams asks for v-structures and, when Node is set, the
// Markov blanket of Node.
type StructureParams struct {
	Node string `json:"node,omitempty"`
}

// StructureResult is the result of a structure analysis.
type StructureResult struct {
	VStructures   []reason.VStructure `json:"v_structures"`
	Node          string              `json:"node,omitempty"`
	MarkovBlanket []string            `json:"markov_blanket,omitempty"`
}

// SeparatorParams asks for a minimal separator of X and Y.
type SeparatorParams struct {
	X          []string `json:"x" binding:"required,min=1"`
	Y          []string `json:"y" binding:"required,min=1"`
	MaxSetSize int      `json:"max_set_size,omitempty" binding:"gte=0"`
}

// EffectParams names a treatment and an outcome.
type EffectParams struct {
	Treatment string `json:"treatment" binding:"required"`
	Outcome   string `json:"outcome" binding:"required"`
}

// BackdoorParams checks one candidate adjustment set.
type BackdoorParams struct {
	EffectParams
	AdjustmentSet []string `json:"adjustment_set"`
}

// BackdoorResult is the verdict on one adjustment set.
type BackdoorResult struct {
	Valid         bool           `json:"valid"`
	Formula       reason.Formula `json:"formula"`
	BackdoorPaths []graph.Path   `json:"backdoor_paths"`
	Truncated     bool           `json:"truncated"`
}

// BackdoorSetsParams bounds the adjustment-set enumeration.
type BackdoorSetsParams struct {
	EffectParams
	MaxSets    int `json:"max_sets,omitempty" binding:"gte=0"`
	MaxSetSize int `json:"max_set_size,omitempty" binding:"gte=0"`
}

// FrontdoorResult adds the frontdoor formula when the criterion holds.
type FrontdoorResult struct {
	reason.FrontdoorResult
	Formula *reason.Formula `json:"formula,omitempty"`
}

// InstrumentParams asks for one instrument, or all of them with All.
type InstrumentParams struct {
	EffectParams
	All bool `json:"all,omitempty"`
}

// InstrumentResult lists instruments found for (treatment, outcome).
type InstrumentResult struct {
	Found       bool            `json:"found"`
	Instruments []string        `json:"instruments"`
	Formula     *reason.Formula `json:"formula,omitempty"`
}

// InterventionParams asks whether do(interventions) on outcomes is
// identifiable.
type InterventionParams struct {
	Interventions []reason.Intervention `json:"interventions" binding:"required,min=1,dive"`
	Outcomes      []string              `json:"outcomes" binding:"required,min=1"`
}

// InterventionResult adds the mutilated graph to the analysis.
type InterventionResult struct {
	reason.InterventionAnalysis
	MutilatedGraph *graph.GraphSpec `json:"mutilated_graph"`
}

// CentralityParams selects measures and their options.
type CentralityParams struct {
	// Measures to compute. Empty means all.
	Measures       []string                    `json:"measures,omitempty"`
	Normalized     bool                        `json:"normalized,omitempty"`
	WassermanFaust bool                        `json:"wasserman_faust,omitempty"`
	PageRank       *centrality.PageRankOptions `json:"pagerank,omitempty"`

	// TopK limits each ranking. Zero ranks every node.
	TopK int `json:"top_k,omitempty" binding:"gte=0"`
}

// CentralityResult carries the scores plus rankings per measure.
type CentralityResult struct {
	*centrality.AllResult
	MostCentral map[centrality.Measure]centrality.RankedNode   `json:"most_central"`
	Rankings    map[centrality.Measure][]centrality.RankedNode `json:"rankings"`
}

// =============================================================================
// Requests
// =============================================================================

type PathsRequest struct {
	GraphRef
	PathsParams
}

type DSeparationRequest struct {
	GraphRef
	DSeparationParams
}

type IndependenciesRequest struct {
	GraphRef
	IndependenciesParams
}

type StructureRequest struct {
	GraphRef
	StructureParams
}

type SeparatorRequest struct {
	GraphRef
	SeparatorParams
}

type BackdoorRequest struct {
	GraphRef
	BackdoorParams
}

type BackdoorSetsRequest struct {
	GraphRef
	BackdoorSetsParams
}

type FrontdoorRequest struct {
	GraphRef
	EffectParams
}

type InstrumentRequest struct {
	GraphRef
	InstrumentParams
}

type InterventionRequest struct {
	GraphRef
	InterventionParams
}

type CentralityRequest struct {
	GraphRef
	CentralityParams
}

// =============================================================================
// Batch
// =============================================================================

// BatchOperation is one entry of a batch. Params holds the parameters of
// Op, without a graph.
type BatchOperation struct {
	ID     string          `json:"id,omitempty"`
	Op     Operation       `json:"op" binding:"required"`
	Params json.RawMessage `json:"params,omitempty"`
}

// BatchRequest runs several analyses against one graph.
type BatchRequest struct {
	GraphRef
	Operations []BatchOperation `json:"operations" binding:"required,min=1,max=32,dive"`
}

// BatchResult is the outcome of one batch entry. Exactly one of Result
// and Error is set.
type BatchResult struct {
	ID     string         `json:"id,omitempty"`
	Op     Operation      `json:"op"`
	Cached bool           `json:"cached"`
	Result any            `json:"result,omitempty"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

// BatchResponse holds results in request order.
type BatchResponse struct {
	GraphID    string        `json:"graph_id"`
	Results    []BatchResult `json:"results"`
	Failed     int           `json:"failed"`
	DurationMs int64         `json:"duration_ms"`
}
