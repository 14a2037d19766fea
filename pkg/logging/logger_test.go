// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: " error ", want: LevelError},
		{in: "trace", want: LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Service: "causal", Output: &buf})

	l.Info("hidden")
	l.Warn("shown", "graph_id", "g1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "service=causal")
	assert.Contains(t, out, "graph_id=g1")
}

func TestJSONConsoleAndWith(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, JSON: true, Output: &buf})
	child := l.With("request_id", "r-1")
	child.Debug("analysed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "analysed", rec["msg"])
	assert.Equal(t, "r-1", rec["request_id"])
	assert.NoError(t, child.Close())
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer
	l := New(Config{Level: LevelInfo, Dir: dir, Service: "causal-test", Output: &console})

	l.Info("to both", "n", 3)
	path := l.FilePath()
	require.NotEmpty(t, path)
	assert.Equal(t, "causal-test_"+time.Now().Format("2006-01-02")+".log", filepath.Base(path))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to both"`)
	assert.Contains(t, console.String(), "to both")
}

func TestQuietWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Quiet: true, Output: &buf})
	l.Error("nowhere")
	assert.Empty(t, buf.String())
}

func TestBadDirectoryFallsBack(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	var buf bytes.Buffer
	l := New(Config{Dir: filepath.Join(blocker, "sub"), Output: &buf})
	assert.Empty(t, l.FilePath())
	assert.Contains(t, buf.String(), "file logging disabled")
}

func TestInstall(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	New(Config{Level: LevelDebug, Output: &buf}).Install()
	slog.Debug("engine message", slog.Int("evaluated", 4))
	assert.True(t, strings.Contains(buf.String(), "evaluated=4"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.Equal(t, "~user/x", expandPath("~user/x"))
}
