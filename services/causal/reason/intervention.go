// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reason

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// Interventions
// =============================================================================

// InterventionType describes how a variable is set.
type InterventionType string

const (
	InterventionAtomic      InterventionType = "atomic"
	InterventionConditional InterventionType = "conditional"
	InterventionStochastic  InterventionType = "stochastic"
)

// Intervention is do(Variable = Value). Type does not change the graph
// surgery; it is carried for callers.
type Intervention struct {
	Variable string           `json:"variable" validate:"required"`
	Value    string           `json:"value,omitempty"`
	Type     InterventionType `json:"type,omitempty" validate:"omitempty,oneof=atomic conditional stochastic"`
}

// String renders the intervention, e.g. "do(X=1)".
func (i Intervention) String() string {
	if i.Value == "" {
		return "do(" + i.Variable + ")"
	}
	return "do(" + i.Variable + "=" + i.Value + ")"
}

// MetadataMutilatedBy is the metadata key recording the surgery applied
// to a mutilated graph.
const MetadataMutilatedBy = "mutilated_by"

// CreateMutilatedGraph applies the do-operator as graph surgery.
//
// Description:
//
//	Returns a new graph without every directed edge into an intervened
//	variable and every bidirected edge touching one, since a forced
//	variable no longer shares latent causes with anything. Edges leaving
//	intervened variables and all other structure are kept in their
//	original order. Unknown variables are ignored. The source graph is
//	never modified.
//
// Inputs:
//
//	g - The source graph. Nil yields an empty graph.
//	interventions - Variables to intervene on.
//
// Outputs:
//
//	*graph.CausalGraph - The mutilated graph, metadata extended with
//	  MetadataMutilatedBy.
//	error - Non-nil only if reconstruction fails, which a valid source
//	  graph cannot trigger.
func CreateMutilatedGraph(g *graph.CausalGraph, interventions []Intervention) (*graph.CausalGraph, error) {
	if g == nil {
		return graph.New("", nil, nil)
	}

	forced := make(map[string]bool, len(interventions))
	applied := make([]string, 0, len(interventions))
	for _, iv := range interventions {
		if !g.HasNode(iv.Variable) || forced[iv.Variable] {
			continue
		}
		forced[iv.Variable] = true
		applied = append(applied, iv.String())
	}

	edges := make([]graph.Edge, 0, g.EdgeCount())
	for _, e := range g.Edges() {
		switch e.Type {
		case graph.EdgeTypeDirected:
			if forced[e.To] {
				continue
			}
		case graph.EdgeTypeBidirected:
			if forced[e.From] || forced[e.To] {
				continue
			}
		}
		edges = append(edges, e)
	}

	md := g.Metadata()
	if len(applied) > 0 {
		md[MetadataMutilatedBy] = strings.Join(applied, ", ")
	}
	mutilated, err := graph.New(g.ID(), g.Nodes(), edges, graph.WithMetadata(md))
	if err != nil {
		return nil, fmt.Errorf("rebuild mutilated graph: %w", err)
	}
	return mutilated, nil
}

// =============================================================================
// Intervention Analysis
// =============================================================================

// Strategy names how a causal effect was identified.
type Strategy string

const (
	StrategyNoCausalPath Strategy = "no_causal_path"
	StrategyBackdoor     Strategy = "backdoor"
	StrategyFrontdoor    Strategy = "frontdoor"
	StrategyInstrumental Strategy = "instrumental"
	StrategyNone         Strategy = "none"
)

// InterventionQuery asks whether the effect of the interventions on the
// outcomes is identifiable.
type InterventionQuery struct {
	Interventions []Intervention `json:"interventions"`
	Outcomes      []string       `json:"outcomes"`
}

// EffectIdentification is the verdict for one (treatment, outcome) pair.
type EffectIdentification struct {
	Treatment     string   `json:"treatment"`
	Outcome       string   `json:"outcome"`
	Identifiable  bool     `json:"identifiable"`
	Strategy      Strategy `json:"strategy"`
	AdjustmentSet []string `json:"adjustment_set,omitempty"`
	Mediators     []string `json:"mediators,omitempty"`
	Instrument    string   `json:"instrument,omitempty"`
	Formula       *Formula `json:"formula,omitempty"`
	Reason        string   `json:"reason"`
}

// InterventionAnalysis is the outcome of AnalyzeIntervention.
type InterventionAnalysis struct {
	// Identifiable is true when every (treatment, outcome) pair is
	// identifiable. False when there are no pairs.
	Identifiable bool `json:"identifiable"`

	// Adjustment is the union of the chosen backdoor sets, sorted.
	Adjustment []string `json:"adjustment"`

	// Effects holds one entry per pair, treatments in query order, then
	// outcomes in query order.
	Effects []EffectIdentification `json:"effects"`

	// Exhaustive is false when a capped search failed without covering
	// its whole space.
	Exhaustive bool `json:"exhaustive"`

	// MutilatedGraph is the source graph under do(all interventions).
	MutilatedGraph *graph.CausalGraph `json:"-"`
}

// AnalyzeIntervention decides identifiability of each intervention's
// effect on each outcome.
//
// Description:
//
//	Each (treatment, outcome) pair is analysed in the graph mutilated by
//	the other interventions, so the co-interventions are held fixed while
//	the treatment's own incoming edges stay visible. Strategies are tried
//	in order: the outcome is not a descendant of the treatment, a
//	backdoor set (smallest valid), the frontdoor criterion, an
//	instrumental variable. Unknown variables and outcomes are ignored, as
//	are pairs whose outcome is itself a treatment.
//
// Inputs:
//
//	ctx - Used for tracing and early stop of the inner searches.
//	g - The graph. Assumed acyclic.
//	q - Interventions and outcomes.
//	opts - Bounds for the inner searches.
//
// Outputs:
//
//	InterventionAnalysis - Per-pair verdicts plus the overall answer.
//	error - Non-nil only if graph surgery fails.
//
// Thread Safety: Safe for concurrent use.
func AnalyzeIntervention(ctx context.Context, g *graph.CausalGraph, q InterventionQuery, opts SearchOptions) (InterventionAnalysis, error) {
	opts.Validate()
	ctx, span := tracer.Start(ctx, "reason.AnalyzeIntervention",
		trace.WithAttributes(
			attribute.Int("intervention_count", len(q.Interventions)),
			attribute.Int("outcome_count", len(q.Outcomes)),
		),
	)
	defer span.End()

	analysis := InterventionAnalysis{
		Adjustment: []string{},
		Effects:    []EffectIdentification{},
		Exhaustive: true,
	}

	full, err := CreateMutilatedGraph(g, q.Interventions)
	if err != nil {
		return analysis, err
	}
	analysis.MutilatedGraph = full
	if g == nil {
		return analysis, nil
	}

	treatments := make([]Intervention, 0, len(q.Interventions))
	isTreatment := make(map[string]bool)
	for _, iv := range q.Interventions {
		if g.HasNode(iv.Variable) && !isTreatment[iv.Variable] {
			isTreatment[iv.Variable] = true
			treatments = append(treatments, iv)
		}
	}

	adjustment := make(map[string]bool)
	for i, t := range treatments {
		others := make([]Intervention, 0, len(treatments)-1)
		others = append(others, treatments[:i]...)
		others = append(others, treatments[i+1:]...)
		pairGraph := g
		if len(others) > 0 {
			if pairGraph, err = CreateMutilatedGraph(g, others); err != nil {
				return analysis, err
			}
		}

		seen := make(map[string]bool)
		for _, y := range q.Outcomes {
			if !g.HasNode(y) || isTreatment[y] || seen[y] {
				continue
			}
			seen[y] = true
			eff, exhaustive := identifyEffect(ctx, pairGraph, t.Variable, y, opts)
			analysis.Exhaustive = analysis.Exhaustive && exhaustive
			analysis.Effects = append(analysis.Effects, eff)
			for _, z := range eff.AdjustmentSet {
				adjustment[z] = true
			}
		}
	}

	analysis.Identifiable = len(analysis.Effects) > 0
	for _, eff := range analysis.Effects {
		if !eff.Identifiable {
			analysis.Identifiable = false
			break
		}
	}
	for z := range adjustment {
		analysis.Adjustment = append(analysis.Adjustment, z)
	}
	analysis.Adjustment = sortedCopy(analysis.Adjustment)

	span.SetAttributes(
		attribute.Bool("identifiable", analysis.Identifiable),
		attribute.Int("effect_count", len(analysis.Effects)),
	)
	slog.Debug("intervention analysed",
		slog.Int("effects", len(analysis.Effects)),
		slog.Bool("identifiable", analysis.Identifiable),
		slog.Bool("exhaustive", analysis.Exhaustive),
	)
	return analysis, nil
}

// identifyEffect runs the strategy cascade for one pair. The second
// return is false when a search that failed was not exhaustive.
func identifyEffect(ctx context.Context, g *graph.CausalGraph, x, y string, opts SearchOptions) (EffectIdentification, bool) {
	eff := EffectIdentification{Treatment: x, Outcome: y}
	xi, _ := g.IndexOf(x)
	yi, _ := g.IndexOf(y)

	if !g.DescendantSet(xi).Has(yi) {
		eff.Identifiable = true
		eff.Strategy = StrategyNoCausalPath
		eff.Reason = fmt.Sprintf("%s is not a descendant of %s; intervening leaves P(%s) unchanged", y, x, y)
		return eff, true
	}

	smallest := opts
	smallest.MaxSets = 1
	bd := FindAllBackdoorSets(ctx, g, x, y, smallest)
	if len(bd.Sets) > 0 {
		f := BackdoorFormulaFor(g, x, y, bd.Sets[0])
		eff.Identifiable = true
		eff.Strategy = StrategyBackdoor
		eff.AdjustmentSet = bd.Sets[0]
		eff.Formula = &f
		eff.Reason = "backdoor adjustment set found"
		return eff, true
	}
	exhaustive := bd.Exhaustive

	fd := CheckFrontdoorCriterion(ctx, g, x, y, opts)
	if fd.Satisfied {
		f := GenerateFrontdoorFormula(x, y, fd.Mediators)
		eff.Identifiable = true
		eff.Strategy = StrategyFrontdoor
		eff.Mediators = fd.Mediators
		eff.Formula = &f
		eff.Reason = fd.Reason
		return eff, true
	}
	exhaustive = exhaustive && fd.Exhaustive

	if z, ok := FindInstrumentalVariable(g, x, y); ok {
		f := GenerateInstrumentFormula(x, y, z)
		eff.Identifiable = true
		eff.Strategy = StrategyInstrumental
		eff.Instrument = z
		eff.Formula = &f
		eff.Reason = fmt.Sprintf("%s is an instrument for %s", z, x)
		return eff, true
	}

	eff.Strategy = StrategyNone
	eff.Reason = fmt.Sprintf("no backdoor set, frontdoor mediator set or instrument identifies %s -> %s", x, y)
	return eff, exhaustive
}
