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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCausal/services/causal/cache"
	"github.com/AleutianAI/AleutianCausal/services/causal/centrality"
	"github.com/AleutianAI/AleutianCausal/services/causal/config"
	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"github.com/AleutianAI/AleutianCausal/services/causal/reason"
	graphstore "github.com/AleutianAI/AleutianCausal/services/causal/storage/badger"
)

// confoundedMediatorSpec is Z → X → M → Y with Z → Y.
func confoundedMediatorSpec(id string) *graph.GraphSpec {
	return &graph.GraphSpec{
		ID: id,
		Nodes: []graph.NodeSpec{
			{ID: "X", Type: "cause"},
			{ID: "M", Type: "mediator"},
			{ID: "Y", Type: "outcome"},
			{ID: "Z", Type: "confounder"},
		},
		Edges: []graph.EdgeSpec{
			{From: "Z", To: "X"},
			{From: "Z", To: "Y"},
			{From: "X", To: "M"},
			{From: "M", To: "Y"},
		},
	}
}

func openStore(t *testing.T) (*graphstore.GraphStore, *graphstore.DB) {
	t.Helper()
	db, err := graphstore.Open(graphstore.InMemoryOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return graphstore.NewGraphStore(db), db
}

func newTestService(t *testing.T, memoSize int) *Service {
	t.Helper()
	store, _ := openStore(t)
	return NewService(config.Default(), WithStore(store), WithMemo(cache.NewMemo(memoSize)))
}

func resolve(t *testing.T, s *Service) *graph.CausalGraph {
	t.Helper()
	g, err := s.ResolveGraph(context.Background(), GraphRef{Graph: confoundedMediatorSpec("")})
	require.NoError(t, err)
	return g
}

func TestResolveGraph(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	_, err := s.SaveGraph(ctx, confoundedMediatorSpec("stored"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		ref     GraphRef
		wantID  string
		wantErr error
	}{
		{name: "inline without id", ref: GraphRef{Graph: confoundedMediatorSpec("")}, wantID: InlineGraphID},
		{name: "inline with id", ref: GraphRef{Graph: confoundedMediatorSpec("g1")}, wantID: "g1"},
		{name: "stored", ref: GraphRef{GraphID: "stored"}, wantID: "stored"},
		{name: "missing", ref: GraphRef{}, wantErr: ErrMissingGraph},
		{name: "both", ref: GraphRef{Graph: confoundedMediatorSpec(""), GraphID: "stored"}, wantErr: ErrAmbiguousGraph},
		{name: "unknown id", ref: GraphRef{GraphID: "nope"}, wantErr: ErrGraphNotFound},
		{
			name: "dangling edge",
			ref: GraphRef{Graph: &graph.GraphSpec{
				Nodes: []graph.NodeSpec{{ID: "A"}},
				Edges: []graph.EdgeSpec{{From: "A", To: "B"}},
			}},
			wantErr: graph.ErrInvalidEdgeTarget,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := s.ResolveGraph(ctx, tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, g.ID())
			assert.Equal(t, 4, g.NodeCount())
		})
	}

	t.Run("inline spec is not modified", func(t *testing.T) {
		spec := confoundedMediatorSpec("")
		_, err := s.ResolveGraph(ctx, GraphRef{Graph: spec})
		require.NoError(t, err)
		assert.Empty(t, spec.ID)
	})
}

func TestGraphLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)

	summary, err := s.SaveGraph(ctx, confoundedMediatorSpec(""))
	require.NoError(t, err)
	assert.NotEmpty(t, summary.ID, "an id is assigned")
	assert.Equal(t, 4, summary.NodeCount)
	assert.Equal(t, 4, summary.EdgeCount)

	list, err := s.ListGraphs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, summary.ID, list[0].ID)

	spec, savedAt, err := s.GetGraph(ctx, summary.ID)
	require.NoError(t, err)
	assert.False(t, savedAt.IsZero())
	assert.Len(t, spec.Edges, 4)

	require.NoError(t, s.DeleteGraph(ctx, summary.ID))
	assert.ErrorIs(t, s.DeleteGraph(ctx, summary.ID), ErrGraphNotFound)
	_, _, err = s.GetGraph(ctx, summary.ID)
	assert.ErrorIs(t, err, ErrGraphNotFound)
}

func TestWithoutStore(t *testing.T) {
	ctx := context.Background()
	s := NewService(nil)

	_, err := s.SaveGraph(ctx, confoundedMediatorSpec("a"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = s.ResolveGraph(ctx, GraphRef{GraphID: "a"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	ready := s.Ready()
	assert.True(t, ready.Ready)
	assert.Equal(t, "none", ready.Store)
}

func TestServiceAnalyses(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	g := resolve(t, s)

	t.Run("paths", func(t *testing.T) {
		res, _, err := s.Paths(ctx, g, PathsParams{From: []string{"X"}, To: []string{"Y"}})
		require.NoError(t, err)
		assert.Len(t, res.Paths, 2)
		assert.False(t, res.Truncated)
	})

	t.Run("paths respect max_paths", func(t *testing.T) {
		res, _, err := s.Paths(ctx, g, PathsParams{From: []string{"X"}, To: []string{"Y"}, MaxPaths: 1})
		require.NoError(t, err)
		assert.Len(t, res.Paths, 1)
		assert.True(t, res.Truncated)
	})

	t.Run("dseparation", func(t *testing.T) {
		res, _, err := s.DSeparation(ctx, g, DSeparationParams{X: []string{"X"}, Y: []string{"Y"}, Z: []string{"M", "Z"}})
		require.NoError(t, err)
		assert.True(t, res.Separated)

		res, _, err = s.DSeparation(ctx, g, DSeparationParams{X: []string{"X"}, Y: []string{"Y"}})
		require.NoError(t, err)
		assert.False(t, res.Separated)
		assert.NotEmpty(t, res.ActivePaths)
	})

	t.Run("structure", func(t *testing.T) {
		res, _, err := s.Structure(ctx, g, StructureParams{Node: "X"})
		require.NoError(t, err)
		require.Len(t, res.VStructures, 1)
		assert.Equal(t, "Y", res.VStructures[0].Collider)
		assert.Equal(t, []string{"M", "Z"}, res.MarkovBlanket)
	})

	t.Run("backdoor", func(t *testing.T) {
		res, _, err := s.Backdoor(ctx, g, BackdoorParams{
			EffectParams:  EffectParams{Treatment: "X", Outcome: "Y"},
			AdjustmentSet: []string{"Z"},
		})
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.True(t, res.Formula.IsValid)
		assert.NotEmpty(t, res.BackdoorPaths)

		res, _, err = s.Backdoor(ctx, g, BackdoorParams{
			EffectParams:  EffectParams{Treatment: "X", Outcome: "Y"},
			AdjustmentSet: []string{"M"},
		})
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("backdoor sets", func(t *testing.T) {
		res, _, err := s.BackdoorSets(ctx, g, BackdoorSetsParams{EffectParams: EffectParams{Treatment: "X", Outcome: "Y"}})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"Z"}}, res.Sets)
		assert.True(t, res.Exhaustive)
	})

	t.Run("frontdoor", func(t *testing.T) {
		res, _, err := s.Frontdoor(ctx, g, EffectParams{Treatment: "X", Outcome: "Y"})
		require.NoError(t, err)
		assert.True(t, res.Satisfied)
		assert.Equal(t, []string{"M"}, res.Mediators)
		require.NotNil(t, res.Formula)
		assert.Equal(t, reason.FormulaFrontdoor, res.Formula.Type)
	})

	t.Run("no instrument", func(t *testing.T) {
		res, _, err := s.Instrument(ctx, g, InstrumentParams{EffectParams: EffectParams{Treatment: "X", Outcome: "Y"}, All: true})
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.NotNil(t, res.Instruments)
		assert.Nil(t, res.Formula)
	})

	t.Run("intervention", func(t *testing.T) {
		res, _, err := s.Intervention(ctx, g, InterventionParams{
			Interventions: []reason.Intervention{{Variable: "X", Value: "1"}},
			Outcomes:      []string{"Y"},
		})
		require.NoError(t, err)
		assert.True(t, res.Identifiable)
		require.Len(t, res.Effects, 1)
		assert.Equal(t, reason.StrategyBackdoor, res.Effects[0].Strategy)
		require.NotNil(t, res.MutilatedGraph)
		assert.Len(t, res.MutilatedGraph.Edges, 3)
	})

	t.Run("centrality", func(t *testing.T) {
		res, _, err := s.Centrality(ctx, g, CentralityParams{Measures: []string{"degree", "PageRank"}, TopK: 2})
		require.NoError(t, err)
		assert.Equal(t, []centrality.Measure{centrality.MeasureDegree, centrality.MeasurePageRank}, res.Metadata.Measures)
		assert.Len(t, res.Rankings[centrality.MeasurePageRank], 2)
		assert.Equal(t, 1, res.MostCentral[centrality.MeasureDegree].Rank)
		assert.Nil(t, res.Betweenness)
	})

	t.Run("unknown measure", func(t *testing.T) {
		_, _, err := s.Centrality(ctx, g, CentralityParams{Measures: []string{"eigenvector"}})
		assert.ErrorIs(t, err, centrality.ErrUnknownMeasure)
	})
}

func TestMemoization(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 16)
	g := resolve(t, s)
	p := BackdoorSetsParams{EffectParams: EffectParams{Treatment: "X", Outcome: "Y"}}

	first, cached, err := s.BackdoorSets(ctx, g, p)
	require.NoError(t, err)
	assert.False(t, cached)

	second, cached, err := s.BackdoorSets(ctx, g, p)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first, second)

	// Different parameters miss.
	p.MaxSets = 1
	_, cached, err = s.BackdoorSets(ctx, g, p)
	require.NoError(t, err)
	assert.False(t, cached)

	// Identical inline graphs share entries.
	_, cached, err = s.BackdoorSets(ctx, resolve(t, s), p)
	require.NoError(t, err)
	assert.True(t, cached)

	// A config reload drops everything.
	s.ApplyConfig(config.Default())
	_, cached, err = s.BackdoorSets(ctx, g, p)
	require.NoError(t, err)
	assert.False(t, cached)

	// Errors are never cached.
	_, _, err = s.Centrality(ctx, g, CentralityParams{Measures: []string{"bogus"}})
	require.Error(t, err)
	_, cached, err = s.Centrality(ctx, g, CentralityParams{Measures: []string{"bogus"}})
	require.Error(t, err)
	assert.False(t, cached)
}

func TestMemoization_CancelledRequest(t *testing.T) {
	s := newTestService(t, 16)
	g, err := s.ResolveGraph(context.Background(), GraphRef{Graph: &graph.GraphSpec{
		Nodes: []graph.NodeSpec{{ID: "U"}, {ID: "X"}, {ID: "Y"}},
		Edges: []graph.EdgeSpec{{From: "U", To: "X"}, {From: "U", To: "Y"}},
	}})
	require.NoError(t, err)
	p := SeparatorParams{X: []string{"X"}, Y: []string{"Y"}}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	res, cached, err := s.Separator(cancelled, g, p)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, cached)
	assert.False(t, res.Found)

	res, cached, err = s.Separator(context.Background(), g, p)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.True(t, res.Found)
	assert.Equal(t, []string{"U"}, res.Separator)
}

func TestApplyConfig(t *testing.T) {
	s := newTestService(t, 0)
	cfg := config.Default()
	cfg.Engine.MaxSets = 3
	cfg.Server.BatchConcurrency = 2
	s.ApplyConfig(cfg)

	assert.Equal(t, 3, s.Engine().MaxSets)
	assert.EqualValues(t, 2, s.batchLimit.Load())
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	g := resolve(t, s)

	tests := []struct {
		name    string
		op      Operation
		params  string
		wantErr error
	}{
		{name: "paths", op: OpPaths, params: `{"from":["X"],"to":["Y"]}`},
		{name: "dseparation", op: OpDSeparation, params: `{"x":["X"],"y":["Y"],"z":["Z","M"]}`},
		{name: "independencies", op: OpIndependencies, params: `{"max_conditioning_set_size":1}`},
		{name: "independencies without params", op: OpIndependencies},
		{name: "structure", op: OpStructure, params: `{"node":"M"}`},
		{name: "separator", op: OpSeparator, params: `{"x":["X"],"y":["Y"]}`},
		{name: "backdoor", op: OpBackdoor, params: `{"treatment":"X","outcome":"Y","adjustment_set":["Z"]}`},
		{name: "backdoor sets", op: OpBackdoorSets, params: `{"treatment":"X","outcome":"Y"}`},
		{name: "frontdoor", op: OpFrontdoor, params: `{"treatment":"X","outcome":"Y"}`},
		{name: "instrument", op: OpInstrument, params: `{"treatment":"X","outcome":"Y"}`},
		{name: "intervention", op: OpIntervention, params: `{"interventions":[{"variable":"X"}],"outcomes":["Y"]}`},
		{name: "centrality", op: OpCentrality, params: `{}`},
		{name: "unknown op", op: "eigen", params: `{}`, wantErr: ErrUnknownOperation},
		{name: "missing required", op: OpBackdoor, params: `{"treatment":"X"}`, wantErr: ErrInvalidParams},
		{name: "unknown field", op: OpPaths, params: `{"from":["X"],"to":["Y"],"depth":3}`, wantErr: ErrInvalidParams},
		{name: "malformed", op: OpPaths, params: `{"from":`, wantErr: ErrInvalidParams},
		{name: "empty outcomes", op: OpIntervention, params: `{"interventions":[{"variable":"X"}],"outcomes":[]}`, wantErr: ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, err := s.Run(ctx, g, tt.op, json.RawMessage(tt.params))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, res)
		})
	}
}

func TestBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, 0)
	g := resolve(t, s)

	ops := []BatchOperation{
		{ID: "a", Op: OpBackdoorSets, Params: json.RawMessage(`{"treatment":"X","outcome":"Y"}`)},
		{ID: "b", Op: "nope"},
		{ID: "c", Op: OpCentrality, Params: json.RawMessage(`{"measures":["closeness"]}`)},
		{ID: "d", Op: OpCentrality, Params: json.RawMessage(`{"measures":["katz"]}`)},
	}
	for i := 0; i < 8; i++ {
		ops = append(ops, BatchOperation{ID: fmt.Sprintf("s%d", i), Op: OpStructure})
	}

	results := s.Batch(ctx, g, ops)
	require.Len(t, results, len(ops))
	for i, r := range results {
		assert.Equal(t, ops[i].ID, r.ID, "results keep request order")
	}

	sets, ok := results[0].Result.(reason.BackdoorSetsResult)
	require.True(t, ok)
	assert.Equal(t, [][]string{{"Z"}}, sets.Sets)

	require.NotNil(t, results[1].Error)
	assert.Equal(t, CodeInvalidRequest, results[1].Error.Code)
	assert.Nil(t, results[1].Result)

	assert.Nil(t, results[2].Error)
	require.NotNil(t, results[3].Error)
	assert.Equal(t, CodeUnknownMeasure, results[3].Error.Code)
}

func TestStoreBreaker(t *testing.T) {
	ctx := context.Background()
	store, db := openStore(t)
	s := NewService(config.Default(), WithStore(store))
	require.NoError(t, db.Close())

	// Not-found style outcomes never trip the breaker, storage failures do.
	for i := 0; i < 5; i++ {
		_, err := s.ListGraphs(ctx)
		require.Error(t, err)
		assert.False(t, errors.Is(err, gobreaker.ErrOpenState))
	}
	_, err := s.ListGraphs(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	status, code := classify(err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, CodeStoreUnavailable, code)

	ready := s.Ready()
	assert.False(t, ready.Ready)
	assert.Equal(t, "unavailable", ready.Store)
	assert.Equal(t, gobreaker.StateOpen.String(), ready.Breaker)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("wrap: %w", graph.ErrDuplicateNode), http.StatusBadRequest, CodeDuplicateNode},
		{graph.ErrInvalidEdgeTarget, http.StatusBadRequest, CodeInvalidEdgeTarget},
		{graph.ErrInvalidSpec, http.StatusBadRequest, CodeInvalidGraph},
		{graph.ErrDuplicateEdge, http.StatusBadRequest, CodeInvalidGraph},
		{ErrMissingGraph, http.StatusBadRequest, CodeInvalidRequest},
		{ErrInvalidParams, http.StatusBadRequest, CodeInvalidRequest},
		{graphstore.ErrMissingID, http.StatusBadRequest, CodeInvalidRequest},
		{centrality.ErrUnknownMeasure, http.StatusBadRequest, CodeUnknownMeasure},
		{fmt.Errorf("%w: g1", ErrGraphNotFound), http.StatusNotFound, CodeGraphNotFound},
		{ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable},
		{gobreaker.ErrTooManyRequests, http.StatusServiceUnavailable, CodeStoreUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout},
		{context.Canceled, http.StatusRequestTimeout, CodeCancelled},
		{errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}

	t.Run("internal errors are not echoed", func(t *testing.T) {
		_, body := errorResponse(errors.New("secret path /var/lib"))
		assert.Equal(t, "internal error", body.Error)
	})
}
