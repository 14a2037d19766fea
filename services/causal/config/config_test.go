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
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "causal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 12, cfg.Engine.MaxCandidatePool)
	assert.Equal(t, 2, cfg.Engine.MaxConditioningSetSize)
	assert.Equal(t, 50, cfg.Engine.PageRank.MaxIterations)
	assert.InDelta(t, 0.85, cfg.Engine.PageRank.DampingFactor, 1e-12)
	assert.Equal(t, 12230, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	t.Setenv(EnvConfigPath, "")

	t.Run("defaults only", func(t *testing.T) {
		cfg, err := Load(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overlays defaults", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "engine:\n  max_sets: 10\nserver:\n  port: 9000\n")
		cfg, err := Load(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.Engine.MaxSets)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, 12, cfg.Engine.MaxCandidatePool)
	})

	t.Run("path from environment", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "cache:\n  size: 7\n")
		t.Setenv(EnvConfigPath, path)
		cfg, err := Load(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Cache.Size)
	})

	t.Run("environment beats file", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "server:\n  port: 9000\nlogging:\n  level: warn\n")
		t.Setenv("CAUSAL_SERVER_PORT", "9100")
		t.Setenv("CAUSAL_LOG_LEVEL", "debug")
		t.Setenv("CAUSAL_STORE_IN_MEMORY", "true")
		t.Setenv("CAUSAL_SERVER_READ_TIMEOUT", "2s")
		cfg, err := Load(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.True(t, cfg.Store.InMemory)
		assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	})

	t.Run("bad environment value", func(t *testing.T) {
		t.Setenv("CAUSAL_SERVER_PORT", "eighty")
		_, err := Load(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "CAUSAL_SERVER_PORT")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "engine: [unclosed\n")
		_, err := Load(ctx, path)
		assert.Error(t, err)
	})

	t.Run("file too large", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "# "+strings.Repeat("x", MaxYAMLFileSize)+"\n")
		_, err := Load(ctx, path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "Port"},
		{"unknown exporter", func(c *Config) { c.Telemetry.Exporter = "zipkin" }, "Exporter"},
		{"otlp needs endpoint", func(c *Config) { c.Telemetry.Exporter = "otlp"; c.Telemetry.OTLPEndpoint = "" }, "OTLPEndpoint"},
		{"store path required on disk", func(c *Config) { c.Store.Path = "" }, "Path"},
		{"damping above one", func(c *Config) { c.Engine.PageRank.DampingFactor = 1.5 }, "DampingFactor"},
		{"candidate pool too large", func(c *Config) { c.Engine.MaxCandidatePool = 40 }, "MaxCandidatePool"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }, "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("in-memory store needs no path", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Path = ""
		cfg.Store.InMemory = true
		assert.NoError(t, cfg.Validate())
	})
}

func TestEngineOptionConversion(t *testing.T) {
	e := Default().Engine
	e.MaxPathLength = 6
	e.MaxSets = 3

	p := e.PathOptions()
	assert.Equal(t, 6, p.MaxLength)
	assert.Equal(t, 10000, p.MaxPaths)

	s := e.SearchOptions()
	assert.Equal(t, 12, s.MaxCandidatePool)
	assert.Equal(t, 3, s.MaxSets)
	assert.Equal(t, 100000, s.MaxEvaluations)

	i := e.IndependenceOptions()
	assert.Equal(t, 2, i.MaxConditioningSetSize)
	assert.Equal(t, 1000, i.MaxResults)

	pr := e.PageRankOptions()
	assert.InDelta(t, 0.85, pr.DampingFactor, 1e-12)
	assert.Equal(t, 50, pr.MaxIterations)
}

func TestEnvKeys(t *testing.T) {
	keys := EnvKeys()
	assert.Contains(t, keys, "CAUSAL_SERVER_PORT")
	assert.Contains(t, keys, "CAUSAL_LOG_LEVEL")
	assert.IsIncreasing(t, keys)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/graphs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "graphs"), got)

	got, err = ExpandPath("/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", got)
}

func TestWatcherReloads(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := writeFile(t, t.TempDir(), "cache:\n  size: 1\n")
	cfg, err := Load(ctx, path)
	require.NoError(t, err)

	w, err := NewWatcher(path, cfg, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Stop()

	var reloaded atomic.Int32
	w.OnReload(func(c *Config) {
		if c.Cache.Size == 2 {
			reloaded.Add(1)
		}
	})
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(path, []byte("cache:\n  size: 2\n"), 0o600))
	require.Eventually(t, func() bool { return reloaded.Load() > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, w.Current().Cache.Size)

	// An invalid file keeps the previous configuration.
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: -1\n"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2, w.Current().Cache.Size)
	assert.Equal(t, 12230, w.Current().Server.Port)
}
