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
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianCausal/services/causal/config"
	"github.com/AleutianAI/AleutianCausal/services/causal/telemetry"
)

// NewRouter builds the gin engine serving the causal API.
//
// Description:
//
//	Middleware, outermost first: panic recovery, otelgin tracing, a
//	request body cap and, when RateLimit is positive, a token bucket
//	shared by all /v1 routes. /metrics serves Prometheus outside the
//	limiter.
//
// Inputs:
//
//	cfg - Server section of the configuration.
//	serviceName - Name reported by otelgin spans.
//	handlers - The causal handlers.
//
// Outputs:
//
//	*gin.Engine - Ready to serve.
func NewRouter(cfg config.ServerConfig, serviceName string, handlers *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	if cfg.MaxBodyBytes > 0 {
		router.Use(maxBodyBytes(cfg.MaxBodyBytes))
	}

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))

	v1 := router.Group("/v1")
	if cfg.RateLimit > 0 {
		v1.Use(rateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))))
	}
	RegisterRoutes(v1, handlers)
	return router
}

// maxBodyBytes caps request bodies at n bytes.
func maxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// rateLimit rejects requests with 429 when the limiter has no tokens.
func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			rateLimited.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Rate limit exceeded",
				Code:  CodeRateLimited,
			})
			return
		}
		c.Next()
	}
}

// Server runs the HTTP API with graceful shutdown.
type Server struct {
	cfg  config.ServerConfig
	http *http.Server
}

// NewServer wraps handler in an http.Server using the configured port
// and timeouts.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Run serves until ctx is cancelled, then shuts down within the
// configured ShutdownTimeout.
//
// Outputs:
//
//	error - A listen error, or a shutdown that did not finish in time.
//	  Nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting causal server", slog.String("address", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down causal server", slog.Duration("timeout", s.cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
