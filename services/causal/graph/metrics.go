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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("aleutian.causal.graph")
	meter  = otel.Meter("aleutian.causal.graph")
)

// Metrics for graph construction and queries.
var (
	buildTotal   metric.Int64Counter
	nodesCreated metric.Int64Histogram
	edgesCreated metric.Int64Histogram
	queryLatency metric.Float64Histogram
	queryResults metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildTotal, err = meter.Int64Counter(
			"causal_graph_build_total",
			metric.WithDescription("Total number of causal graph constructions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesCreated, err = meter.Int64Histogram(
			"causal_graph_nodes",
			metric.WithDescription("Number of nodes per constructed graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesCreated, err = meter.Int64Histogram(
			"causal_graph_edges",
			metric.WithDescription("Number of edges per constructed graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryLatency, err = meter.Float64Histogram(
			"causal_graph_query_duration_seconds",
			metric.WithDescription("Duration of graph query operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryResults, err = meter.Int64Histogram(
			"causal_graph_query_results",
			metric.WithDescription("Result size of graph query operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a graph construction.
func recordBuildMetrics(ctx context.Context, nodeCount, edgeCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	buildTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	if success {
		nodesCreated.Record(ctx, int64(nodeCount))
		edgesCreated.Record(ctx, int64(edgeCount))
	}
}

// recordQueryMetrics records metrics for a query operation.
func recordQueryMetrics(ctx context.Context, queryType string, duration time.Duration, resultCount int) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("query_type", queryType))
	queryLatency.Record(ctx, duration.Seconds(), attrs)
	queryResults.Record(ctx, int64(resultCount), attrs)
}

// startQuerySpan creates a span for a query operation.
func startQuerySpan(ctx context.Context, queryType string, g *CausalGraph) (context.Context, trace.Span) {
	return tracer.Start(ctx, "CausalGraph."+queryType, spanGraphAttrs(g))
}
