// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads configuration for the causal reasoning service.
//
// Configuration is layered: the embedded defaults.yaml, then an optional
// YAML file, then CAUSAL_* environment variables. The merged result is
// validated with go-playground/validator struct tags.
//
// Thread Safety:
//
//	Load is safe for concurrent use. A *Config is a value snapshot and
//	must not be mutated after it is shared.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianCausal/services/causal/centrality"
	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"github.com/AleutianAI/AleutianCausal/services/causal/reason"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxYAMLFileSize is the largest config file accepted (1MB).
	MaxYAMLFileSize = 1024 * 1024

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CAUSAL_"

	// EnvConfigPath names the config file when no path is given.
	EnvConfigPath = EnvPrefix + "CONFIG"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed defaults.yaml
var defaultConfigYAML []byte

// =============================================================================
// Metrics and Tracing
// =============================================================================

var (
	configLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "causal_config_loads_total",
		Help: "Total configuration loads by source",
	}, []string{"source"})

	configLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "causal_config_load_errors_total",
		Help: "Total configuration load failures",
	})

	configReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "causal_config_reloads_total",
		Help: "Total configuration reloads by outcome",
	}, []string{"outcome"})
)

var configTracer = otel.Tracer("aleutian.causal.config")

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// =============================================================================
// Types
// =============================================================================

// Config is the root configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// EngineConfig holds the search caps of the reasoning engine.
type EngineConfig struct {
	MaxPathLength          int            `yaml:"max_path_length" json:"max_path_length" validate:"gte=0,lte=256"`
	MaxPaths               int            `yaml:"max_paths" json:"max_paths" validate:"gte=0"`
	MaxCandidatePool       int            `yaml:"max_candidate_pool" json:"max_candidate_pool" validate:"gte=1,lte=24"`
	MaxSetSize             int            `yaml:"max_set_size" json:"max_set_size" validate:"gte=0"`
	MaxSets                int            `yaml:"max_sets" json:"max_sets" validate:"gte=1"`
	MaxEvaluations         int            `yaml:"max_evaluations" json:"max_evaluations" validate:"gte=1"`
	MaxConditioningSetSize int            `yaml:"max_conditioning_set_size" json:"max_conditioning_set_size" validate:"gte=1,lte=8"`
	MaxIndependencies      int            `yaml:"max_independencies" json:"max_independencies" validate:"gte=1"`
	PageRank               PageRankConfig `yaml:"pagerank" json:"pagerank"`
}

// PageRankConfig holds PageRank defaults.
type PageRankConfig struct {
	DampingFactor float64 `yaml:"damping_factor" json:"damping_factor" validate:"gte=0,lte=1"`
	MaxIterations int     `yaml:"max_iterations" json:"max_iterations" validate:"gte=1"`
	Convergence   float64 `yaml:"convergence" json:"convergence" validate:"gt=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port             int           `yaml:"port" json:"port" validate:"gte=1,lte=65535"`
	ReadTimeout      time.Duration `yaml:"read_timeout" json:"read_timeout" validate:"gte=0"`
	WriteTimeout     time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"gte=0"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gte=0"`
	RateLimit        float64       `yaml:"rate_limit" json:"rate_limit" validate:"gte=0"`
	RateBurst        int           `yaml:"rate_burst" json:"rate_burst" validate:"gte=0"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes" json:"max_body_bytes" validate:"gte=1024"`
	BatchConcurrency int           `yaml:"batch_concurrency" json:"batch_concurrency" validate:"gte=1,lte=64"`
}

// StoreConfig configures the Badger graph store.
type StoreConfig struct {
	Path     string `yaml:"path" json:"path" validate:"required_unless=InMemory true"`
	InMemory bool   `yaml:"in_memory" json:"in_memory"`
}

// CacheConfig configures result memoization. Size 0 disables the cache.
type CacheConfig struct {
	Size int `yaml:"size" json:"size" validate:"gte=0"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" json:"service_name" validate:"required"`
	Exporter     string `yaml:"exporter" json:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint" validate:"required_if=Exporter otlp"`
	Prometheus   bool   `yaml:"prometheus" json:"prometheus"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir" json:"dir"`
	JSON  bool   `yaml:"json" json:"json"`
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the embedded defaults.
//
// Panics if the embedded YAML is invalid, which is a build defect.
func Default() *Config {
	cfg, err := parse(defaultConfigYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded config defaults: %v", err))
	}
	return cfg
}

// Load builds a Config from defaults, an optional file and the environment.
//
// Description:
//
//	If path is empty, CAUSAL_CONFIG is consulted; if that is empty too,
//	only defaults and environment are used. File values overlay the
//	defaults field by field, so a file may set just the keys it cares
//	about. Environment variables are applied last.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	path - Optional config file path. A leading ~ is expanded.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Non-nil on read, parse or validation failure.
//
// Thread Safety: Safe for concurrent use.
func Load(ctx context.Context, path string) (*Config, error) {
	_, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	source := "defaults"

	var fileData []byte
	if path != "" {
		data, err := readFile(path)
		if err != nil {
			configLoadErrors.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "read failed")
			return nil, err
		}
		fileData = data
		source = "file"
	}
	span.SetAttributes(attribute.String("source", source), attribute.String("path", path))

	cfg, err := parse(defaultConfigYAML, fileData)
	if err != nil {
		configLoadErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, err
	}

	applied, err := applyEnv(cfg, os.LookupEnv)
	if err != nil {
		configLoadErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "env override failed")
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		configLoadErrors.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	configLoads.WithLabelValues(source).Inc()
	span.SetAttributes(attribute.Int("env_overrides", applied))
	slog.Debug("configuration loaded",
		slog.String("source", source),
		slog.String("path", path),
		slog.Int("env_overrides", applied),
	)
	return cfg, nil
}

// parse decodes defaults and overlays the optional file on top.
func parse(defaults, overlay []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaults, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling default config: %w", err)
	}
	if len(overlay) > 0 {
		if err := yaml.Unmarshal(overlay, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}
	return &cfg, nil
}

// readFile reads a config file with a size limit.
func readFile(path string) ([]byte, error) {
	abs, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return data, nil
}

// ExpandPath expands a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	return abs, nil
}

// =============================================================================
// Validation
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every struct tag and reports the failing fields.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s=%s)", fe.Namespace(), fe.Tag(), fe.Param()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
}

// =============================================================================
// Engine Option Conversion
// =============================================================================

// PathOptions returns the path finder bounds.
func (e EngineConfig) PathOptions() graph.PathOptions {
	return graph.PathOptions{MaxLength: e.MaxPathLength, MaxPaths: e.MaxPaths}
}

// SearchOptions returns the subset search caps.
func (e EngineConfig) SearchOptions() reason.SearchOptions {
	opts := reason.SearchOptions{
		MaxCandidatePool: e.MaxCandidatePool,
		MaxSetSize:       e.MaxSetSize,
		MaxSets:          e.MaxSets,
		MaxEvaluations:   e.MaxEvaluations,
	}
	opts.Validate()
	return opts
}

// IndependenceOptions returns the implied-independence caps.
func (e EngineConfig) IndependenceOptions() reason.IndependenceOptions {
	opts := reason.IndependenceOptions{
		MaxConditioningSetSize: e.MaxConditioningSetSize,
		MaxResults:             e.MaxIndependencies,
		MaxEvaluations:         e.MaxEvaluations,
	}
	opts.Validate()
	return opts
}

// PageRankOptions returns the PageRank configuration.
func (e EngineConfig) PageRankOptions() *centrality.PageRankOptions {
	opts := &centrality.PageRankOptions{
		DampingFactor: e.PageRank.DampingFactor,
		MaxIterations: e.PageRank.MaxIterations,
		Convergence:   e.PageRank.Convergence,
	}
	opts.Validate()
	return opts
}
