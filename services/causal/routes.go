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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all causal routes with the router.
//
// Description:
//
//	Registers all /v1/causal/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//	Every analysis takes either an inline "graph" or a stored "graph_id".
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Graph Store Endpoints:
//
//	POST   /v1/causal/graphs - Store a graph spec
//	GET    /v1/causal/graphs - List stored graphs
//	GET    /v1/causal/graphs/:id - Fetch a stored spec
//	DELETE /v1/causal/graphs/:id - Delete a stored graph
//
// Analysis Endpoints:
//
//	POST /v1/causal/analyze/paths - Enumerate paths
//	POST /v1/causal/analyze/dseparation - Test X ⊥ Y | Z
//	POST /v1/causal/analyze/independencies - Implied independencies
//	POST /v1/causal/analyze/structure - V-structures and Markov blanket
//	POST /v1/causal/analyze/separator - Minimal separator
//	POST /v1/causal/analyze/backdoor - Check an adjustment set
//	POST /v1/causal/analyze/backdoor_sets - Enumerate adjustment sets
//	POST /v1/causal/analyze/frontdoor - Frontdoor criterion
//	POST /v1/causal/analyze/instrument - Instrumental variables
//	POST /v1/causal/analyze/intervention - Identify do() effects
//	POST /v1/causal/analyze/centrality - Centrality measures
//	POST /v1/causal/analyze/batch - Several analyses on one graph
//
// Health Endpoints:
//
//	GET /v1/causal/health - Health check
//	GET /v1/causal/ready - Readiness check
//
// Example:
//
//	svc := causal.NewService(cfg, causal.WithStore(store))
//	v1 := router.Group("/v1")
//	causal.RegisterRoutes(v1, causal.NewHandlers(svc))
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	causal := rg.Group("/causal")
	{
		graphs := causal.Group("/graphs")
		graphs.POST("", handlers.HandleSaveGraph)
		graphs.GET("", handlers.HandleListGraphs)
		graphs.GET("/:id", handlers.HandleGetGraph)
		graphs.DELETE("/:id", handlers.HandleDeleteGraph)

		analyze := causal.Group("/analyze")
		analyze.POST("/paths", handlers.HandlePaths())
		analyze.POST("/dseparation", handlers.HandleDSeparation())
		analyze.POST("/independencies", handlers.HandleIndependencies())
		analyze.POST("/structure", handlers.HandleStructure())
		analyze.POST("/separator", handlers.HandleSeparator())
		analyze.POST("/backdoor", handlers.HandleBackdoor())
		analyze.POST("/backdoor_sets", handlers.HandleBackdoorSets())
		analyze.POST("/frontdoor", handlers.HandleFrontdoor())
		analyze.POST("/instrument", handlers.HandleInstrument())
		analyze.POST("/intervention", handlers.HandleIntervention())
		analyze.POST("/centrality", handlers.HandleCentrality())
		analyze.POST("/batch", handlers.HandleBatch)

		causal.GET("/health", handlers.HandleHealth)
		causal.GET("/ready", handlers.HandleReady)
	}
}
