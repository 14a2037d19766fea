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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

var (
	analysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "causal_analysis_total",
		Help: "Analyses run, by operation and outcome",
	}, []string{"operation", "outcome"})

	analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "causal_analysis_duration_seconds",
		Help:    "Analysis latency, cache hits included",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"operation"})

	memoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "causal_memo_lookups_total",
		Help: "Result memo lookups, by result",
	}, []string{"result"})

	storeBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "causal_store_breaker_state",
		Help: "Graph store circuit breaker state (0 closed, 1 half-open, 2 open)",
	})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "causal_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "causal_batch_operations",
		Help:    "Operations per batch request",
		Buckets: []float64{1, 2, 4, 8, 16, 32},
	})
)

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
