// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package causal serves the causal reasoning engine over HTTP.
//
// The Service resolves graphs (inline or from the Badger graph store),
// runs the engine operations with bounds taken from the engine
// configuration, memoizes results by graph fingerprint and fans batch
// requests out over a bounded worker group. Handlers and RegisterRoutes
// expose it under /v1/causal.
package causal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianCausal/services/causal/cache"
	"github.com/AleutianAI/AleutianCausal/services/causal/centrality"
	"github.com/AleutianAI/AleutianCausal/services/causal/config"
	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"github.com/AleutianAI/AleutianCausal/services/causal/reason"
	graphstore "github.com/AleutianAI/AleutianCausal/services/causal/storage/badger"
)

// InlineGraphID is assigned to inline graphs that declare no id, so that
// identical inline graphs share memo entries.
const InlineGraphID = "inline"

var tracer = otel.Tracer("aleutian.causal.service")

// paramsValidate checks analysis parameters with the same tags gin uses
// for request binding.
var paramsValidate = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}()

// =============================================================================
// Service
// =============================================================================

// Service runs causal analyses.
//
// Thread Safety: Safe for concurrent use. ApplyConfig may be called while
// requests are in flight; running analyses keep the bounds they started
// with.
type Service struct {
	store   *graphstore.GraphStore
	memo    *cache.Memo
	breaker *gobreaker.CircuitBreaker

	engine     atomic.Pointer[config.EngineConfig]
	batchLimit atomic.Int64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore enables the graph store endpoints and graph_id references.
func WithStore(store *graphstore.GraphStore) ServiceOption {
	return func(s *Service) { s.store = store }
}

// WithMemo enables result memoization.
func WithMemo(memo *cache.Memo) ServiceOption {
	return func(s *Service) { s.memo = memo }
}

// NewService creates a Service from the loaded configuration.
//
// Inputs:
//
//	cfg - Configuration. Nil uses config.Default().
//	opts - Store and memo. Without a store, graph_id references fail with
//	  ErrStoreUnavailable.
//
// Outputs:
//
//	*Service - Ready to use.
func NewService(cfg *config.Config, opts ...ServiceOption) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "graph-store",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, graphstore.ErrGraphNotFound) ||
				errors.Is(err, graphstore.ErrMissingID) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			storeBreakerState.Set(breakerStateValue(to))
			slog.Warn("store circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	if cfg == nil {
		cfg = config.Default()
	}
	s.ApplyConfig(cfg)
	return s
}

// ApplyConfig swaps in new engine bounds and batch concurrency. Memoized
// results are dropped because they were computed under the old bounds.
func (s *Service) ApplyConfig(cfg *config.Config) {
	engine := cfg.Engine
	s.engine.Store(&engine)
	s.batchLimit.Store(int64(max(cfg.Server.BatchConcurrency, 1)))
	s.memo.Purge()
}

// Engine returns the current engine configuration.
func (s *Service) Engine() config.EngineConfig {
	return *s.engine.Load()
}

// Ready reports the store and memo state.
func (s *Service) Ready() ReadyResponse {
	resp := ReadyResponse{
		Ready:   true,
		Store:   "none",
		Breaker: s.breaker.State().String(),
		Cache:   s.memo.Stats(),
	}
	if s.store != nil {
		resp.Store = "ok"
		if s.breaker.State() == gobreaker.StateOpen {
			resp.Store = "unavailable"
			resp.Ready = false
		}
	}
	return resp
}

// =============================================================================
// Graph Store
// =============================================================================

// storeCall runs fn through the store circuit breaker.
func storeCall[T any](s *Service, fn func() (T, error)) (T, error) {
	var zero T
	if s.store == nil {
		return zero, ErrStoreUnavailable
	}
	v, err := s.breaker.Execute(func() (any, error) { return fn() })
	if err != nil {
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// SaveGraph validates spec, builds it (assigning a UUID when the id is
// empty) and stores it.
func (s *Service) SaveGraph(ctx context.Context, spec *graph.GraphSpec) (graphstore.Summary, error) {
	g, err := spec.Build(ctx)
	if err != nil {
		return graphstore.Summary{}, err
	}
	return storeCall(s, func() (graphstore.Summary, error) { return s.store.Save(ctx, g) })
}

// GetGraph returns the stored spec under id and when it was saved.
func (s *Service) GetGraph(ctx context.Context, id string) (*graph.GraphSpec, time.Time, error) {
	type stored struct {
		spec    *graph.GraphSpec
		savedAt time.Time
	}
	out, err := storeCall(s, func() (stored, error) {
		spec, at, err := s.store.Spec(ctx, id)
		return stored{spec, at}, err
	})
	return out.spec, out.savedAt, err
}

// ListGraphs summarizes every stored graph.
func (s *Service) ListGraphs(ctx context.Context) ([]graphstore.Summary, error) {
	return storeCall(s, func() ([]graphstore.Summary, error) { return s.store.List(ctx) })
}

// DeleteGraph removes the graph stored under id.
func (s *Service) DeleteGraph(ctx context.Context, id string) error {
	_, err := storeCall(s, func() (struct{}, error) { return struct{}{}, s.store.Delete(ctx, id) })
	return err
}

// ResolveGraph returns the graph a request refers to.
//
// Outputs:
//
//	*graph.CausalGraph - The built graph.
//	error - ErrMissingGraph, ErrAmbiguousGraph, a graph construction
//	  error, or a store error for graph_id references.
func (s *Service) ResolveGraph(ctx context.Context, ref GraphRef) (*graph.CausalGraph, error) {
	switch {
	case ref.Graph != nil && ref.GraphID != "":
		return nil, ErrAmbiguousGraph
	case ref.Graph != nil:
		spec := *ref.Graph
		if spec.ID == "" {
			spec.ID = InlineGraphID
		}
		return spec.Build(ctx)
	case ref.GraphID != "":
		return storeCall(s, func() (*graph.CausalGraph, error) { return s.store.Load(ctx, ref.GraphID) })
	default:
		return nil, ErrMissingGraph
	}
}

// =============================================================================
// Analyses
// =============================================================================

// run wraps one analysis with tracing, metrics and memoization.
func run[T any](ctx context.Context, s *Service, op Operation, g *graph.CausalGraph, params any, fn func(context.Context) (T, error)) (T, bool, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "causal."+string(op),
		trace.WithAttributes(
			attribute.String("graph.id", g.ID()),
			attribute.Int("graph.nodes", g.NodeCount()),
		),
	)
	defer span.End()

	var (
		v   T
		hit bool
		err error
	)
	key, keyErr := cache.Key(string(op), g, params)
	if keyErr != nil || s.memo == nil {
		if keyErr != nil {
			slog.Warn("memo key unavailable, computing directly",
				slog.String("operation", string(op)),
				slog.String("error", keyErr.Error()),
			)
		}
		v, err = fn(ctx)
	} else {
		v, hit, err = cache.Do(ctx, s.memo, key, fn)
		if hit {
			memoLookups.WithLabelValues("hit").Inc()
		} else {
			memoLookups.WithLabelValues("miss").Inc()
		}
	}

	if err == nil && !hit && ctx.Err() != nil {
		// Engine searches stop early on cancellation and return partial
		// results without an error.
		err = ctx.Err()
	}
	analysisDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Bool("cached", hit))
	if err != nil {
		analysisTotal.WithLabelValues(string(op), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var zero T
		return zero, false, err
	}
	analysisTotal.WithLabelValues(string(op), "ok").Inc()
	return v, hit, nil
}

// Paths enumerates paths between the From and To sets.
func (s *Service) Paths(ctx context.Context, g *graph.CausalGraph, p PathsParams) (graph.PathResult, bool, error) {
	return run(ctx, s, OpPaths, g, p, func(ctx context.Context) (graph.PathResult, error) {
		opts := s.Engine().PathOptions()
		if p.MaxLength > 0 {
			opts.MaxLength = p.MaxLength
		}
		if p.MaxPaths > 0 {
			opts.MaxPaths = p.MaxPaths
		}
		return graph.FindAllPathsTraced(ctx, g, p.From, p.To, opts), nil
	})
}

// DSeparation tests X ⊥ Y | Z.
func (s *Service) DSeparation(ctx context.Context, g *graph.CausalGraph, p DSeparationParams) (reason.DSeparationResult, bool, error) {
	return run(ctx, s, OpDSeparation, g, p, func(ctx context.Context) (reason.DSeparationResult, error) {
		opts := s.Engine().PathOptions()
		if p.MaxPaths > 0 {
			opts.MaxPaths = p.MaxPaths
		}
		q := reason.DSeparationQuery{X: p.X, Y: p.Y, Z: p.Z}
		return reason.CheckDSeparation(ctx, g, q, opts), nil
	})
}

// Independencies lists the pairwise independencies the graph implies.
func (s *Service) Independencies(ctx context.Context, g *graph.CausalGraph, p IndependenciesParams) (reason.IndependenceResult, bool, error) {
	return run(ctx, s, OpIndependencies, g, p, func(ctx context.Context) (reason.IndependenceResult, error) {
		opts := s.Engine().IndependenceOptions()
		if p.MaxConditioningSetSize > 0 {
			opts.MaxConditioningSetSize = p.MaxConditioningSetSize
		}
		if p.MaxResults > 0 {
			opts.MaxResults = p.MaxResults
		}
		return reason.ImpliedIndependencies(ctx, g, opts), nil
	})
}

// Structure lists v-structures and the Markov blanket of p.Node.
func (s *Service) Structure(ctx context.Context, g *graph.CausalGraph, p StructureParams) (StructureResult, bool, error) {
	return run(ctx, s, OpStructure, g, p, func(context.Context) (StructureResult, error) {
		res := StructureResult{VStructures: reason.FindVStructures(g)}
		if p.Node != "" {
			res.Node = p.Node
			res.MarkovBlanket = reason.MarkovBlanket(g, p.Node)
		}
		return res, nil
	})
}

// Separator finds a minimal separating set for X and Y.
func (s *Service) Separator(ctx context.Context, g *graph.CausalGraph, p SeparatorParams) (reason.SeparatorResult, bool, error) {
	return run(ctx, s, OpSeparator, g, p, func(ctx context.Context) (reason.SeparatorResult, error) {
		opts := s.Engine().SearchOptions()
		if p.MaxSetSize > 0 {
			opts.MaxSetSize = p.MaxSetSize
		}
		return reason.FindMinimalSeparator(ctx, g, p.X, p.Y, opts), nil
	})
}

// Backdoor checks one adjustment set and lists the backdoor paths.
func (s *Service) Backdoor(ctx context.Context, g *graph.CausalGraph, p BackdoorParams) (BackdoorResult, bool, error) {
	return run(ctx, s, OpBackdoor, g, p, func(context.Context) (BackdoorResult, error) {
		paths := reason.BackdoorPaths(g, p.Treatment, p.Outcome, s.Engine().PathOptions())
		return BackdoorResult{
			Valid:         reason.IsValidBackdoorAdjustment(g, p.Treatment, p.Outcome, p.AdjustmentSet),
			Formula:       reason.BackdoorFormulaFor(g, p.Treatment, p.Outcome, p.AdjustmentSet),
			BackdoorPaths: paths.Paths,
			Truncated:     paths.Truncated,
		}, nil
	})
}

// BackdoorSets enumerates valid adjustment sets.
func (s *Service) BackdoorSets(ctx context.Context, g *graph.CausalGraph, p BackdoorSetsParams) (reason.BackdoorSetsResult, bool, error) {
	return run(ctx, s, OpBackdoorSets, g, p, func(ctx context.Context) (reason.BackdoorSetsResult, error) {
		opts := s.Engine().SearchOptions()
		if p.MaxSets > 0 {
			opts.MaxSets = p.MaxSets
		}
		if p.MaxSetSize > 0 {
			opts.MaxSetSize = p.MaxSetSize
		}
		return reason.FindAllBackdoorSets(ctx, g, p.Treatment, p.Outcome, opts), nil
	})
}

// Frontdoor searches for a frontdoor mediator set.
func (s *Service) Frontdoor(ctx context.Context, g *graph.CausalGraph, p EffectParams) (FrontdoorResult, bool, error) {
	return run(ctx, s, OpFrontdoor, g, p, func(ctx context.Context) (FrontdoorResult, error) {
		res := FrontdoorResult{
			FrontdoorResult: reason.CheckFrontdoorCriterion(ctx, g, p.Treatment, p.Outcome, s.Engine().SearchOptions()),
		}
		if res.Satisfied {
			f := reason.GenerateFrontdoorFormula(p.Treatment, p.Outcome, res.Mediators)
			res.Formula = &f
		}
		return res, nil
	})
}

// Instrument finds one instrument, or every instrument when p.All.
func (s *Service) Instrument(ctx context.Context, g *graph.CausalGraph, p InstrumentParams) (InstrumentResult, bool, error) {
	return run(ctx, s, OpInstrument, g, p, func(context.Context) (InstrumentResult, error) {
		res := InstrumentResult{Instruments: []string{}}
		if p.All {
			res.Instruments = reason.FindInstrumentalVariables(g, p.Treatment, p.Outcome)
		} else if iv, ok := reason.FindInstrumentalVariable(g, p.Treatment, p.Outcome); ok {
			res.Instruments = []string{iv}
		}
		if len(res.Instruments) > 0 {
			res.Found = true
			f := reason.GenerateInstrumentFormula(p.Treatment, p.Outcome, res.Instruments[0])
			res.Formula = &f
		}
		return res, nil
	})
}

// Intervention analyses do(interventions) on the outcomes.
func (s *Service) Intervention(ctx context.Context, g *graph.CausalGraph, p InterventionParams) (InterventionResult, bool, error) {
	return run(ctx, s, OpIntervention, g, p, func(ctx context.Context) (InterventionResult, error) {
		q := reason.InterventionQuery{Interventions: p.Interventions, Outcomes: p.Outcomes}
		analysis, err := reason.AnalyzeIntervention(ctx, g, q, s.Engine().SearchOptions())
		if err != nil {
			return InterventionResult{}, err
		}
		return InterventionResult{
			InterventionAnalysis: analysis,
			MutilatedGraph:       graph.SpecFromGraph(analysis.MutilatedGraph),
		}, nil
	})
}

// Centrality computes the requested measures and ranks nodes by each.
func (s *Service) Centrality(ctx context.Context, g *graph.CausalGraph, p CentralityParams) (CentralityResult, bool, error) {
	return run(ctx, s, OpCentrality, g, p, func(ctx context.Context) (CentralityResult, error) {
		measures := make([]centrality.Measure, 0, len(p.Measures))
		for _, raw := range p.Measures {
			m, err := centrality.ParseMeasure(raw)
			if err != nil {
				return CentralityResult{}, err
			}
			measures = append(measures, m)
		}
		pr := s.Engine().PageRankOptions()
		if p.PageRank != nil {
			custom := *p.PageRank
			pr = &custom
		}

		all, err := centrality.ComputeAll(ctx, g, centrality.AllOptions{
			Measures:    measures,
			Degree:      centrality.DegreeOptions{Normalized: p.Normalized},
			Betweenness: centrality.BetweennessOptions{Normalized: p.Normalized},
			Closeness:   centrality.ClosenessOptions{WassermanFaust: p.WassermanFaust},
			PageRank:    pr,
		})
		if err != nil {
			return CentralityResult{}, err
		}

		res := CentralityResult{
			AllResult:   all,
			MostCentral: make(map[centrality.Measure]centrality.RankedNode),
			Rankings:    make(map[centrality.Measure][]centrality.RankedNode),
		}
		for _, m := range all.Metadata.Measures {
			scores, ok := all.Scores(m)
			if !ok {
				continue
			}
			ranked := centrality.TopK(g, scores, p.TopK)
			res.Rankings[m] = ranked
			if len(ranked) > 0 {
				res.MostCentral[m] = ranked[0]
			}
		}
		return res, nil
	})
}

// =============================================================================
// Dispatch and Batch
// =============================================================================

// decodeParams decodes and validates raw parameters. Empty input decodes
// to the zero value, which then has to pass validation.
func decodeParams[P any](raw json.RawMessage) (P, error) {
	var p P
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return p, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	if err := paramsValidate.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return p, nil
}

func dispatch[P, R any](ctx context.Context, raw json.RawMessage, fn func(context.Context, P) (R, bool, error)) (any, bool, error) {
	p, err := decodeParams[P](raw)
	if err != nil {
		return nil, false, err
	}
	return fn(ctx, p)
}

// Run executes op on g with JSON-encoded parameters.
//
// Outputs:
//
//	any - The operation's result type.
//	bool - True when the result came from the memo.
//	error - ErrUnknownOperation, ErrInvalidParams or an analysis error.
func (s *Service) Run(ctx context.Context, g *graph.CausalGraph, op Operation, raw json.RawMessage) (any, bool, error) {
	switch op {
	case OpPaths:
		return dispatch(ctx, raw, func(ctx context.Context, p PathsParams) (graph.PathResult, bool, error) { return s.Paths(ctx, g, p) })
	case OpDSeparation:
		return dispatch(ctx, raw, func(ctx context.Context, p DSeparationParams) (reason.DSeparationResult, bool, error) {
			return s.DSeparation(ctx, g, p)
		})
	case OpIndependencies:
		return dispatch(ctx, raw, func(ctx context.Context, p IndependenciesParams) (reason.IndependenceResult, bool, error) {
			return s.Independencies(ctx, g, p)
		})
	case OpStructure:
		return dispatch(ctx, raw, func(ctx context.Context, p StructureParams) (StructureResult, bool, error) { return s.Structure(ctx, g, p) })
	case OpSeparator:
		return dispatch(ctx, raw, func(ctx context.Context, p SeparatorParams) (reason.SeparatorResult, bool, error) {
			return s.Separator(ctx, g, p)
		})
	case OpBackdoor:
		return dispatch(ctx, raw, func(ctx context.Context, p BackdoorParams) (BackdoorResult, bool, error) { return s.Backdoor(ctx, g, p) })
	case OpBackdoorSets:
		return dispatch(ctx, raw, func(ctx context.Context, p BackdoorSetsParams) (reason.BackdoorSetsResult, bool, error) {
			return s.BackdoorSets(ctx, g, p)
		})
	case OpFrontdoor:
		return dispatch(ctx, raw, func(ctx context.Context, p EffectParams) (FrontdoorResult, bool, error) { return s.Frontdoor(ctx, g, p) })
	case OpInstrument:
		return dispatch(ctx, raw, func(ctx context.Context, p InstrumentParams) (InstrumentResult, bool, error) {
			return s.Instrument(ctx, g, p)
		})
	case OpIntervention:
		return dispatch(ctx, raw, func(ctx context.Context, p InterventionParams) (InterventionResult, bool, error) {
			return s.Intervention(ctx, g, p)
		})
	case OpCentrality:
		return dispatch(ctx, raw, func(ctx context.Context, p CentralityParams) (CentralityResult, bool, error) {
			return s.Centrality(ctx, g, p)
		})
	}
	return nil, false, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
}

// Batch runs several operations against one graph.
//
// Description:
//
//	Operations run concurrently, at most the configured batch
//	concurrency at a time. A failing operation is reported in its own
//	BatchResult and does not affect the others. Results keep request
//	order.
//
// Thread Safety: Safe for concurrent use.
func (s *Service) Batch(ctx context.Context, g *graph.CausalGraph, ops []BatchOperation) []BatchResult {
	ctx, span := tracer.Start(ctx, "causal.Batch",
		trace.WithAttributes(attribute.Int("batch.size", len(ops))),
	)
	defer span.End()
	batchSize.Observe(float64(len(ops)))

	results := make([]BatchResult, len(ops))
	var eg errgroup.Group
	eg.SetLimit(int(s.batchLimit.Load()))
	for i, op := range ops {
		eg.Go(func() error {
			v, hit, err := s.Run(ctx, g, op.Op, op.Params)
			results[i] = BatchResult{ID: op.ID, Op: op.Op, Cached: hit}
			if err != nil {
				_, body := errorResponse(err)
				results[i].Error = &body
				return nil
			}
			results[i].Result = v
			return nil
		})
	}
	_ = eg.Wait()
	return results
}
