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
	"errors"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/AleutianAI/AleutianCausal/services/causal/centrality"
	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	graphstore "github.com/AleutianAI/AleutianCausal/services/causal/storage/badger"
)

// Sentinel errors for the causal service.
var (
	// ErrMissingGraph indicates a request carried neither graph nor graph_id.
	ErrMissingGraph = errors.New("request needs graph or graph_id")

	// ErrAmbiguousGraph indicates a request carried both graph and graph_id.
	ErrAmbiguousGraph = errors.New("request has both graph and graph_id")

	// ErrGraphNotFound indicates graph_id names no stored graph.
	ErrGraphNotFound = graphstore.ErrGraphNotFound

	// ErrStoreUnavailable indicates the service runs without a graph store.
	ErrStoreUnavailable = errors.New("graph store unavailable")

	// ErrUnknownOperation indicates a batch entry named no known analysis.
	ErrUnknownOperation = errors.New("unknown analysis operation")

	// ErrInvalidParams indicates analysis parameters failed to decode or
	// validate.
	ErrInvalidParams = errors.New("invalid analysis parameters")
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeInvalidGraph      = "INVALID_GRAPH"
	CodeInvalidEdgeTarget = "INVALID_EDGE_TARGET"
	CodeDuplicateNode     = "DUPLICATE_NODE"
	CodeGraphNotFound     = "GRAPH_NOT_FOUND"
	CodeUnknownMeasure    = "UNKNOWN_MEASURE"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeTimeout           = "TIMEOUT"
	CodeCancelled         = "CANCELLED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeRequestTooLarge   = "REQUEST_TOO_LARGE"
	CodeInternal          = "INTERNAL_ERROR"
)

// classify maps an error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, graph.ErrDuplicateNode):
		return http.StatusBadRequest, CodeDuplicateNode
	case errors.Is(err, graph.ErrInvalidEdgeTarget):
		return http.StatusBadRequest, CodeInvalidEdgeTarget
	case errors.Is(err, graph.ErrInvalidSpec),
		errors.Is(err, graph.ErrInvalidNode),
		errors.Is(err, graph.ErrDuplicateEdge),
		errors.Is(err, graph.ErrInvalidEdgeType),
		errors.Is(err, graph.ErrInvalidEdgeAttribute):
		return http.StatusBadRequest, CodeInvalidGraph
	case errors.Is(err, ErrMissingGraph),
		errors.Is(err, ErrAmbiguousGraph),
		errors.Is(err, ErrUnknownOperation),
		errors.Is(err, ErrInvalidParams),
		errors.Is(err, graphstore.ErrMissingID):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, centrality.ErrUnknownMeasure):
		return http.StatusBadRequest, CodeUnknownMeasure
	case errors.Is(err, ErrGraphNotFound):
		return http.StatusNotFound, CodeGraphNotFound
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, CodeStoreUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, CodeCancelled
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// ErrorCode returns the API error code for err, e.g. GRAPH_NOT_FOUND.
func ErrorCode(err error) string {
	_, code := classify(err)
	return code
}

// errorResponse builds the body for err.
func errorResponse(err error) (int, ErrorResponse) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return status, ErrorResponse{Error: msg, Code: code}
}
