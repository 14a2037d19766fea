// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package centrality

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Measures
// =============================================================================

// Measure names a centrality measure.
type Measure string

const (
	MeasureDegree      Measure = "degree"
	MeasureBetweenness Measure = "betweenness"
	MeasureCloseness   Measure = "closeness"
	MeasurePageRank    Measure = "pagerank"
)

// AllMeasures lists every measure in computation order.
var AllMeasures = []Measure{MeasureDegree, MeasureBetweenness, MeasureCloseness, MeasurePageRank}

// ParseMeasure resolves a measure name, case-insensitively.
func ParseMeasure(s string) (Measure, error) {
	m := Measure(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MeasureDegree, MeasureBetweenness, MeasureCloseness, MeasurePageRank:
		return m, nil
	case "page_rank":
		return MeasurePageRank, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMeasure, s)
}

// =============================================================================
// ComputeAll
// =============================================================================

// AllOptions configures ComputeAll.
type AllOptions struct {
	// Measures to compute. Empty means all of them.
	Measures []Measure `json:"measures,omitempty"`

	Degree      DegreeOptions      `json:"degree"`
	Betweenness BetweennessOptions `json:"betweenness"`
	Closeness   ClosenessOptions   `json:"closeness"`
	PageRank    *PageRankOptions   `json:"pagerank,omitempty"`
}

// Metadata describes a ComputeAll run.
type Metadata struct {
	Measures   []Measure                `json:"measures"`
	NodeCount  int                      `json:"node_count"`
	EdgeCount  int                      `json:"edge_count"`
	Duration   time.Duration            `json:"duration_ns"`
	PerMeasure map[Measure]time.Duration `json:"per_measure_ns"`
}

// AllResult holds the requested measures. Measures not requested are nil.
type AllResult struct {
	Degree      map[string]DegreeScore `json:"degree,omitempty"`
	Betweenness map[string]float64     `json:"betweenness,omitempty"`
	Closeness   map[string]float64     `json:"closeness,omitempty"`
	PageRank    *PageRankResult        `json:"pagerank,omitempty"`
	Metadata    Metadata               `json:"metadata"`
}

// Scores returns the per-node scores of one measure. Degree uses Total.
// The second result is false when the measure was not computed.
func (r *AllResult) Scores(m Measure) (map[string]float64, bool) {
	switch m {
	case MeasureDegree:
		if r.Degree == nil {
			return nil, false
		}
		out := make(map[string]float64, len(r.Degree))
		for id, d := range r.Degree {
			out[id] = d.Total
		}
		return out, true
	case MeasureBetweenness:
		return r.Betweenness, r.Betweenness != nil
	case MeasureCloseness:
		return r.Closeness, r.Closeness != nil
	case MeasurePageRank:
		if r.PageRank == nil {
			return nil, false
		}
		return r.PageRank.Scores, true
	}
	return nil, false
}

// ComputeAll runs the requested centrality measures.
//
// Description:
//
//	Measures run sequentially in the order given, duplicates removed.
//	Timing for each measure and for the whole run is reported in
//	Metadata. An empty graph yields empty maps, not an error.
//
// Inputs:
//
//   - ctx: Context for tracing and cancellation.
//   - g: The graph.
//   - opts: Measures and per-measure options.
//
// Outputs:
//
//   - *AllResult: The computed measures.
//   - error: ErrUnknownMeasure if a measure name is not recognised.
//
// Thread Safety: Safe for concurrent use.
func ComputeAll(ctx context.Context, g *graph.CausalGraph, opts AllOptions) (*AllResult, error) {
	ctx, span := tracer.Start(ctx, "centrality.ComputeAll", spanAttrs(g))
	defer span.End()

	measures := opts.Measures
	if len(measures) == 0 {
		measures = AllMeasures
	}
	seen := make(map[Measure]bool, len(measures))
	ordered := make([]Measure, 0, len(measures))
	for _, m := range measures {
		pm, err := ParseMeasure(string(m))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !seen[pm] {
			seen[pm] = true
			ordered = append(ordered, pm)
		}
	}

	res := &AllResult{Metadata: Metadata{
		Measures:   ordered,
		PerMeasure: make(map[Measure]time.Duration, len(ordered)),
	}}
	if g != nil {
		res.Metadata.NodeCount = g.NodeCount()
		res.Metadata.EdgeCount = g.EdgeCount()
	}

	start := time.Now()
	for _, m := range ordered {
		t := time.Now()
		switch m {
		case MeasureDegree:
			res.Degree = Degree(ctx, g, opts.Degree)
		case MeasureBetweenness:
			res.Betweenness = Betweenness(ctx, g, opts.Betweenness)
		case MeasureCloseness:
			res.Closeness = Closeness(ctx, g, opts.Closeness)
		case MeasurePageRank:
			res.PageRank = PageRank(ctx, g, opts.PageRank)
		}
		res.Metadata.PerMeasure[m] = time.Since(t)
	}
	res.Metadata.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("measure_count", len(ordered)),
		attribute.Int64("duration_us", res.Metadata.Duration.Microseconds()),
	)
	slog.Debug("centrality computed",
		slog.Int("measures", len(ordered)),
		slog.Int("node_count", res.Metadata.NodeCount),
		slog.Duration("duration", res.Metadata.Duration),
	)
	return res, nil
}

// =============================================================================
// Ranking
// =============================================================================

// CentralNode is the argmax of one measure.
type CentralNode struct {
	NodeID  string  `json:"node_id"`
	Score   float64 `json:"score"`
	Measure Measure `json:"measure"`
}

// MostCentralNode returns the node with the highest score for a measure.
//
// Description:
//
//	Ties go to the node declared first in the graph. Degree is ranked by
//	total degree. The second result is false for an empty graph or an
//	unknown measure.
//
// Thread Safety: Safe for concurrent use.
func MostCentralNode(ctx context.Context, g *graph.CausalGraph, m Measure) (CentralNode, bool) {
	if g == nil || g.NodeCount() == 0 {
		return CentralNode{}, false
	}
	res, err := ComputeAll(ctx, g, AllOptions{Measures: []Measure{m}})
	if err != nil {
		return CentralNode{}, false
	}
	pm := res.Metadata.Measures[0]
	scores, _ := res.Scores(pm)

	best := CentralNode{NodeID: g.IDOf(0), Score: scores[g.IDOf(0)], Measure: pm}
	for i := 1; i < g.NodeCount(); i++ {
		id := g.IDOf(i)
		if s := scores[id]; s > best.Score {
			best.NodeID, best.Score = id, s
		}
	}
	return best, true
}

// RankedNode is one entry of a TopK ranking.
type RankedNode struct {
	NodeID string  `json:"node_id"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// TopK returns the k highest-scoring nodes of g, best first. Ties keep
// declaration order. Nodes missing from scores count as 0. k <= 0 or
// k > n returns every node.
func TopK(g *graph.CausalGraph, scores map[string]float64, k int) []RankedNode {
	if g == nil {
		return []RankedNode{}
	}
	n := g.NodeCount()
	ranked := make([]RankedNode, n)
	for i := 0; i < n; i++ {
		id := g.IDOf(i)
		ranked[i] = RankedNode{NodeID: id, Score: scores[id]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if k <= 0 || k > n {
		k = n
	}
	ranked = ranked[:k]
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
