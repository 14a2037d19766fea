// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// envBinding maps one CAUSAL_* variable onto a config field.
type envBinding struct {
	key   string
	apply func(c *Config, v string) error
}

func intField(dst func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func floatField(dst func(c *Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func boolField(dst func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func durationField(dst func(c *Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

func stringField(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

// envBindings lists every supported override. Keys omit the prefix.
var envBindings = []envBinding{
	{"ENGINE_MAX_PATH_LENGTH", intField(func(c *Config) *int { return &c.Engine.MaxPathLength })},
	{"ENGINE_MAX_PATHS", intField(func(c *Config) *int { return &c.Engine.MaxPaths })},
	{"ENGINE_MAX_CANDIDATE_POOL", intField(func(c *Config) *int { return &c.Engine.MaxCandidatePool })},
	{"ENGINE_MAX_SET_SIZE", intField(func(c *Config) *int { return &c.Engine.MaxSetSize })},
	{"ENGINE_MAX_SETS", intField(func(c *Config) *int { return &c.Engine.MaxSets })},
	{"ENGINE_MAX_EVALUATIONS", intField(func(c *Config) *int { return &c.Engine.MaxEvaluations })},
	{"ENGINE_MAX_CONDITIONING_SET_SIZE", intField(func(c *Config) *int { return &c.Engine.MaxConditioningSetSize })},
	{"ENGINE_MAX_INDEPENDENCIES", intField(func(c *Config) *int { return &c.Engine.MaxIndependencies })},
	{"ENGINE_PAGERANK_DAMPING", floatField(func(c *Config) *float64 { return &c.Engine.PageRank.DampingFactor })},
	{"ENGINE_PAGERANK_MAX_ITERATIONS", intField(func(c *Config) *int { return &c.Engine.PageRank.MaxIterations })},
	{"SERVER_PORT", intField(func(c *Config) *int { return &c.Server.Port })},
	{"SERVER_READ_TIMEOUT", durationField(func(c *Config) *time.Duration { return &c.Server.ReadTimeout })},
	{"SERVER_WRITE_TIMEOUT", durationField(func(c *Config) *time.Duration { return &c.Server.WriteTimeout })},
	{"SERVER_RATE_LIMIT", floatField(func(c *Config) *float64 { return &c.Server.RateLimit })},
	{"SERVER_RATE_BURST", intField(func(c *Config) *int { return &c.Server.RateBurst })},
	{"SERVER_BATCH_CONCURRENCY", intField(func(c *Config) *int { return &c.Server.BatchConcurrency })},
	{"STORE_PATH", stringField(func(c *Config) *string { return &c.Store.Path })},
	{"STORE_IN_MEMORY", boolField(func(c *Config) *bool { return &c.Store.InMemory })},
	{"CACHE_SIZE", intField(func(c *Config) *int { return &c.Cache.Size })},
	{"TELEMETRY_EXPORTER", stringField(func(c *Config) *string { return &c.Telemetry.Exporter })},
	{"OTLP_ENDPOINT", stringField(func(c *Config) *string { return &c.Telemetry.OTLPEndpoint })},
	{"TELEMETRY_PROMETHEUS", boolField(func(c *Config) *bool { return &c.Telemetry.Prometheus })},
	{"LOG_LEVEL", stringField(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_DIR", stringField(func(c *Config) *string { return &c.Logging.Dir })},
	{"LOG_JSON", boolField(func(c *Config) *bool { return &c.Logging.JSON })},
}

// EnvKeys returns every supported environment variable, sorted.
func EnvKeys() []string {
	keys := make([]string, len(envBindings))
	for i, b := range envBindings {
		keys[i] = EnvPrefix + b.key
	}
	sort.Strings(keys)
	return keys
}

// applyEnv applies overrides found by lookup and returns how many were set.
func applyEnv(c *Config, lookup func(string) (string, bool)) (int, error) {
	applied := 0
	for _, b := range envBindings {
		key := EnvPrefix + b.key
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(c, v); err != nil {
			return applied, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
		}
		applied++
	}
	return applied, nil
}
