// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry bootstraps OpenTelemetry for the causal service.
//
// Init installs a TracerProvider (OTLP gRPC or stdout) and a
// MeterProvider (Prometheus or stdout) based on config.TelemetryConfig.
// Engine packages only use the global otel API, so they are traced once
// Init has run and are no-ops otherwise.
//
// # Thread Safety
//
// Init must be called once at startup. Everything else is safe for
// concurrent use.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/AleutianCausal/services/causal/config"
)

var (
	// ErrNilContext is returned when Init is called with a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unrecognised exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// ServiceVersion is reported as service.version.
var ServiceVersion = "0.1.0"

// ShutdownFunc flushes and stops every installed provider.
type ShutdownFunc func(context.Context) error

// Init installs the trace and metric providers.
//
// Description:
//
//	Exporter "otlp" sends spans over gRPC to OTLPEndpoint without TLS,
//	"stdout" pretty-prints them, and "none" leaves the global no-op
//	provider in place. When Prometheus is true the metric provider is
//	backed by the Prometheus exporter and MetricsHandler serves it;
//	otherwise metrics go to stdout only with the stdout exporter.
//
// Inputs:
//
//	ctx - Context for exporter connections. Must not be nil.
//	cfg - Telemetry section of the service configuration.
//
// Outputs:
//
//	ShutdownFunc - Always call on exit. Never nil on success.
//	error - Non-nil if an exporter could not be created.
func Init(ctx context.Context, cfg config.TelemetryConfig) (ShutdownFunc, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", ServiceVersion),
	)

	if cfg.Exporter != "none" && cfg.Exporter != "" {
		tp, err := initTracer(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	metricExporter := "none"
	switch {
	case cfg.Prometheus:
		metricExporter = "prometheus"
	case cfg.Exporter == "stdout":
		metricExporter = "stdout"
	}
	if metricExporter != "none" {
		mp, err := initMeter(metricExporter, res)
		if err != nil {
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	return shutdown, nil
}

func initTracer(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "otlp":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	), nil
}

var (
	prometheusHandler   http.Handler
	prometheusHandlerMu sync.RWMutex
)

// MetricsHandler returns the /metrics handler, or nil when the Prometheus
// exporter is not installed.
func MetricsHandler() http.Handler {
	prometheusHandlerMu.RLock()
	defer prometheusHandlerMu.RUnlock()
	return prometheusHandler
}

func initMeter(exporterName string, res *resource.Resource) (*metric.MeterProvider, error) {
	switch exporterName {
	case "prometheus":
		exporter, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		prometheusHandlerMu.Lock()
		prometheusHandler = promhttp.Handler()
		prometheusHandlerMu.Unlock()
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		), nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, exporterName)
}
