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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"github.com/AleutianAI/AleutianCausal/services/causal/reason"
	"github.com/AleutianAI/AleutianCausal/services/causal/telemetry"
)

// Handlers contains the HTTP handlers for the causal service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// getOrCreateRequestID returns X-Request-ID, generating one if absent,
// and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

func requestLogger(c *gin.Context, handler string) *slog.Logger {
	return telemetry.LoggerWithTrace(c.Request.Context(), slog.Default()).With(
		"request_id", getOrCreateRequestID(c),
		"handler", handler,
	)
}

// fail writes the error response for err.
func fail(c *gin.Context, logger *slog.Logger, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err, "code", body.Code)
	} else {
		logger.Warn("Request rejected", "error", err, "code", body.Code)
	}
	c.JSON(status, body)
}

// bindJSON decodes the body into dst, writing a 400 or 413 on failure.
func bindJSON(c *gin.Context, logger *slog.Logger, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	logger.Warn("Invalid request body", "error", err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "Request body too large",
			Code:  CodeRequestTooLarge,
		})
		return false
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: "Invalid request body: " + err.Error(),
		Code:  CodeInvalidRequest,
	})
	return false
}

// =============================================================================
// Graph Store
// =============================================================================

// HandleSaveGraph handles POST /v1/causal/graphs.
//
// Description:
//
//	Validates and stores a graph spec. A spec without id gets a UUID.
//	Saving an existing id replaces it.
//
// Response:
//
//	201 Created: SaveGraphResponse
//	400 Bad Request: Invalid spec (INVALID_GRAPH, DUPLICATE_NODE, ...)
//	503 Service Unavailable: No store, or the store breaker is open
func (h *Handlers) HandleSaveGraph(c *gin.Context) {
	logger := requestLogger(c, "HandleSaveGraph")

	var spec graph.GraphSpec
	if !bindJSON(c, logger, &spec) {
		return
	}
	summary, err := h.svc.SaveGraph(c.Request.Context(), &spec)
	if err != nil {
		fail(c, logger, err)
		return
	}
	logger.Info("Graph stored",
		"graph_id", summary.ID,
		"nodes", summary.NodeCount,
		"edges", summary.EdgeCount)
	c.JSON(http.StatusCreated, SaveGraphResponse{Summary: summary})
}

// HandleListGraphs handles GET /v1/causal/graphs.
func (h *Handlers) HandleListGraphs(c *gin.Context) {
	logger := requestLogger(c, "HandleListGraphs")

	graphs, err := h.svc.ListGraphs(c.Request.Context())
	if err != nil {
		fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, ListGraphsResponse{Graphs: graphs, Count: len(graphs)})
}

// HandleGetGraph handles GET /v1/causal/graphs/:id.
//
// Response:
//
//	200 OK: GetGraphResponse
//	404 Not Found: GRAPH_NOT_FOUND
func (h *Handlers) HandleGetGraph(c *gin.Context) {
	logger := requestLogger(c, "HandleGetGraph")

	spec, savedAt, err := h.svc.GetGraph(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, GetGraphResponse{Graph: spec, SavedAt: savedAt})
}

// HandleDeleteGraph handles DELETE /v1/causal/graphs/:id.
//
// Response:
//
//	204 No Content
//	404 Not Found: GRAPH_NOT_FOUND
func (h *Handlers) HandleDeleteGraph(c *gin.Context) {
	logger := requestLogger(c, "HandleDeleteGraph")

	id := c.Param("id")
	if err := h.svc.DeleteGraph(c.Request.Context(), id); err != nil {
		fail(c, logger, err)
		return
	}
	logger.Info("Graph deleted", "graph_id", id)
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Analyses
// =============================================================================

// graphRequest is implemented by every request embedding GraphRef.
type graphRequest interface {
	graphRef() GraphRef
}

func (r GraphRef) graphRef() GraphRef { return r }

// analysisHandler builds the handler for one analysis endpoint.
//
// Description:
//
//	Binds the request, resolves the inline or stored graph, runs fn and
//	wraps the result in AnalysisResponse. All endpoints share the error
//	mapping in classify.
func analysisHandler[Req graphRequest, R any](svc *Service, op Operation, fn func(context.Context, *graph.CausalGraph, Req) (R, bool, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := requestLogger(c, "analyze/"+string(op))
		ctx := c.Request.Context()

		var req Req
		if !bindJSON(c, logger, &req) {
			return
		}
		g, err := svc.ResolveGraph(ctx, req.graphRef())
		if err != nil {
			fail(c, logger, err)
			return
		}

		start := time.Now()
		res, cached, err := fn(ctx, g, req)
		if err != nil {
			fail(c, logger, err)
			return
		}
		elapsed := time.Since(start)
		logger.Debug("Analysis complete",
			"graph_id", g.ID(),
			"cached", cached,
			"duration_ms", elapsed.Milliseconds())

		c.JSON(http.StatusOK, AnalysisResponse[R]{
			GraphID:    g.ID(),
			Cached:     cached,
			DurationMs: elapsed.Milliseconds(),
			Result:     res,
		})
	}
}

// HandlePaths handles POST /v1/causal/analyze/paths.
func (h *Handlers) HandlePaths() gin.HandlerFunc {
	return analysisHandler(h.svc, OpPaths, func(ctx context.Context, g *graph.CausalGraph, r PathsRequest) (graph.PathResult, bool, error) {
		return h.svc.Paths(ctx, g, r.PathsParams)
	})
}

// HandleDSeparation handles POST /v1/causal/analyze/dseparation.
func (h *Handlers) HandleDSeparation() gin.HandlerFunc {
	return analysisHandler(h.svc, OpDSeparation, func(ctx context.Context, g *graph.CausalGraph, r DSeparationRequest) (reason.DSeparationResult, bool, error) {
		return h.svc.DSeparation(ctx, g, r.DSeparationParams)
	})
}

// HandleIndependencies handles POST /v1/causal/analyze/independencies.
func (h *Handlers) HandleIndependencies() gin.HandlerFunc {
	return analysisHandler(h.svc, OpIndependencies, func(ctx context.Context, g *graph.CausalGraph, r IndependenciesRequest) (reason.IndependenceResult, bool, error) {
		return h.svc.Independencies(ctx, g, r.IndependenciesParams)
	})
}

// HandleStructure handles POST /v1/causal/analyze/structure.
func (h *Handlers) HandleStructure() gin.HandlerFunc {
	return analysisHandler(h.svc, OpStructure, func(ctx context.Context, g *graph.CausalGraph, r StructureRequest) (StructureResult, bool, error) {
		return h.svc.Structure(ctx, g, r.StructureParams)
	})
}

// HandleSeparator handles POST /v1/causal/analyze/separator.
func (h *Handlers) HandleSeparator() gin.HandlerFunc {
	return analysisHandler(h.svc, OpSeparator, func(ctx context.Context, g *graph.CausalGraph, r SeparatorRequest) (reason.SeparatorResult, bool, error) {
		return h.svc.Separator(ctx, g, r.SeparatorParams)
	})
}

// HandleBackdoor handles POST /v1/causal/analyze/backdoor.
func (h *Handlers) HandleBackdoor() gin.HandlerFunc {
	return analysisHandler(h.svc, OpBackdoor, func(ctx context.Context, g *graph.CausalGraph, r BackdoorRequest) (BackdoorResult, bool, error) {
		return h.svc.Backdoor(ctx, g, r.BackdoorParams)
	})
}

// HandleBackdoorSets handles POST /v1/causal/analyze/backdoor_sets.
func (h *Handlers) HandleBackdoorSets() gin.HandlerFunc {
	return analysisHandler(h.svc, OpBackdoorSets, func(ctx context.Context, g *graph.CausalGraph, r BackdoorSetsRequest) (reason.BackdoorSetsResult, bool, error) {
		return h.svc.BackdoorSets(ctx, g, r.BackdoorSetsParams)
	})
}

// HandleFrontdoor handles POST /v1/causal/analyze/frontdoor.
func (h *Handlers) HandleFrontdoor() gin.HandlerFunc {
	return analysisHandler(h.svc, OpFrontdoor, func(ctx context.Context, g *graph.CausalGraph, r FrontdoorRequest) (FrontdoorResult, bool, error) {
		return h.svc.Frontdoor(ctx, g, r.EffectParams)
	})
}

// HandleInstrument handles POST /v1/causal/analyze/instrument.
func (h *Handlers) HandleInstrument() gin.HandlerFunc {
	return analysisHandler(h.svc, OpInstrument, func(ctx context.Context, g *graph.CausalGraph, r InstrumentRequest) (InstrumentResult, bool, error) {
		return h.svc.Instrument(ctx, g, r.InstrumentParams)
	})
}

// HandleIntervention handles POST /v1/causal/analyze/intervention.
func (h *Handlers) HandleIntervention() gin.HandlerFunc {
	return analysisHandler(h.svc, OpIntervention, func(ctx context.Context, g *graph.CausalGraph, r InterventionRequest) (InterventionResult, bool, error) {
		return h.svc.Intervention(ctx, g, r.InterventionParams)
	})
}

// HandleCentrality handles POST /v1/causal/analyze/centrality.
func (h *Handlers) HandleCentrality() gin.HandlerFunc {
	return analysisHandler(h.svc, OpCentrality, func(ctx context.Context, g *graph.CausalGraph, r CentralityRequest) (CentralityResult, bool, error) {
		return h.svc.Centrality(ctx, g, r.CentralityParams)
	})
}

// HandleBatch handles POST /v1/causal/analyze/batch.
//
// Description:
//
//	Resolves the graph once and runs every operation against it. Per
//	operation failures are reported inline; the response is 200 as long
//	as the graph resolves.
//
// Response:
//
//	200 OK: BatchResponse
//	400 Bad Request: Invalid body or graph
//	404 Not Found: GRAPH_NOT_FOUND
func (h *Handlers) HandleBatch(c *gin.Context) {
	logger := requestLogger(c, "HandleBatch")
	ctx := c.Request.Context()

	var req BatchRequest
	if !bindJSON(c, logger, &req) {
		return
	}
	g, err := h.svc.ResolveGraph(ctx, req.GraphRef)
	if err != nil {
		fail(c, logger, err)
		return
	}

	start := time.Now()
	results := h.svc.Batch(ctx, g, req.Operations)
	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	logger.Info("Batch complete",
		"graph_id", g.ID(),
		"operations", len(results),
		"failed", failed)

	c.JSON(http.StatusOK, BatchResponse{
		GraphID:    g.ID(),
		Results:    results,
		Failed:     failed,
		DurationMs: time.Since(start).Milliseconds(),
	})
}

// =============================================================================
// Health
// =============================================================================

// HandleHealth handles GET /v1/causal/health. Always 200 while running.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: telemetry.ServiceVersion,
	})
}

// HandleReady handles GET /v1/causal/ready.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false), store breaker open
func (h *Handlers) HandleReady(c *gin.Context) {
	resp := h.svc.Ready()
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
