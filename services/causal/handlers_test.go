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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCausal/services/causal/cache"
	"github.com/AleutianAI/AleutianCausal/services/causal/config"
	"github.com/AleutianAI/AleutianCausal/services/causal/reason"
	"github.com/AleutianAI/AleutianCausal/services/causal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(t *testing.T, mutate func(*config.ServerConfig)) *gin.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Server.RateLimit = 0
	if mutate != nil {
		mutate(&cfg.Server)
	}
	store, _ := openStore(t)
	svc := NewService(cfg, WithStore(store), WithMemo(cache.NewMemo(32)))
	return NewRouter(cfg.Server, "causal-test", NewHandlers(svc))
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandlers_HealthAndReady(t *testing.T) {
	router := setupTestRouter(t, nil)

	w := do(t, router, http.MethodGet, "/v1/causal/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, telemetry.ServiceVersion, health.Version)

	w = do(t, router, http.MethodGet, "/v1/causal/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ready := decode[ReadyResponse](t, w)
	assert.True(t, ready.Ready)
	assert.Equal(t, "ok", ready.Store)
	assert.Equal(t, 32, ready.Cache.Capacity)
}

func TestHandlers_GraphLifecycle(t *testing.T) {
	router := setupTestRouter(t, nil)

	w := do(t, router, http.MethodPost, "/v1/causal/graphs", confoundedMediatorSpec("study"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decode[SaveGraphResponse](t, w)
	assert.Equal(t, "study", saved.ID)
	assert.Equal(t, 4, saved.NodeCount)

	w = do(t, router, http.MethodGet, "/v1/causal/graphs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ListGraphsResponse](t, w)
	assert.Equal(t, 1, list.Count)

	w = do(t, router, http.MethodGet, "/v1/causal/graphs/study", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[GetGraphResponse](t, w)
	assert.Len(t, got.Graph.Nodes, 4)

	w = do(t, router, http.MethodPost, "/v1/causal/analyze/backdoor_sets",
		`{"graph_id":"study","treatment":"X","outcome":"Y"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sets := decode[AnalysisResponse[reason.BackdoorSetsResult]](t, w)
	assert.Equal(t, "study", sets.GraphID)
	assert.Equal(t, [][]string{{"Z"}}, sets.Result.Sets)

	w = do(t, router, http.MethodDelete, "/v1/causal/graphs/study", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/v1/causal/graphs/study", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeGraphNotFound, decode[ErrorResponse](t, w).Code)
}

func TestHandlers_Analyses(t *testing.T) {
	router := setupTestRouter(t, nil)
	graphJSON, err := json.Marshal(confoundedMediatorSpec(""))
	require.NoError(t, err)
	withGraph := func(params string) string {
		return `{"graph":` + string(graphJSON) + `,` + strings.TrimPrefix(params, "{")
	}

	tests := []struct {
		path   string
		params string
		check  func(t *testing.T, result json.RawMessage)
	}{
		{
			path:   "paths",
			params: `{"from":["X"],"to":["Y"]}`,
			check: func(t *testing.T, result json.RawMessage) {
				assert.Contains(t, string(result), `"paths":[`)
			},
		},
		{
			path:   "dseparation",
			params: `{"x":["X"],"y":["Y"],"z":["M","Z"]}`,
			check: func(t *testing.T, result json.RawMessage) {
				assert.Contains(t, string(result), `"separated":true`)
			},
		},
		{
			path:   "independencies",
			params: `{"max_conditioning_set_size":2}`,
			check: func(t *testing.T, result json.RawMessage) {
				assert.Contains(t, string(result), `"independencies":[`)
			},
		},
		{
			path:   "structure",
			params: `{"node":"X"}`,
			check: func(t *testing.T, result json.RawMessage) {
				assert.Contains(t, string(result), `"markov_blanket":["M","Z"]`)
			},
		},
		{
			path:   "separator",
			params: `{"x":["X"],"y":["Y"]}`,
			check: func(t *testing.T, result json.RawMessage) {
				assert.Contains(t, string(result), `"found":true`)
			},
		},
		{
			path:   "backdoor",
			params: `{"treatment":"X","outcome":"Y","adjustment_set":["Z"]}`,
			check: func(t *testing.T, result json.RawMessage) {
				assert.Contains(t, string(result), `"valid":true`)
			},
		},
		{
			path:   "frontdoor",
			params: `{"treatment":"X","outcome":"Y"}`,
			check: func(t *testing.T, result json.RawMessage) {
				assert.Contains(t, string(result), `"mediators":["M"]`)
			},
		},
		{
			path:   "instrument",
			params: `{"treatment":"X","outcome":"Y","all":true}`,
			check: func(t *testing.T, result json.RawMessage) {
				assert.Contains(t, string(result), `"found":false`)
			},
		},
		{
			path:   "intervention",
			params: `{"interventions":[{"variable":"X","value":"1"}],"outcomes":["Y"]}`,
			check: func(t *testing.T, result json.RawMessage) {
				assert.Contains(t, string(result), `"identifiable":true`)
				assert.Contains(t, string(result), `"mutilated_graph":{`)
			},
		},
		{
			path:   "centrality",
			params: `{"measures":["betweenness"],"top_k":1}`,
			check: func(t *testing.T, result json.RawMessage) {
				assert.Contains(t, string(result), `"most_central":{"betweenness":`)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/v1/causal/analyze/"+tt.path, withGraph(tt.params))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			resp := decode[AnalysisResponse[json.RawMessage]](t, w)
			assert.Equal(t, InlineGraphID, resp.GraphID)
			assert.False(t, resp.Cached)
			tt.check(t, resp.Result)

			// The same request again is served from the memo.
			w = do(t, router, http.MethodPost, "/v1/causal/analyze/"+tt.path, withGraph(tt.params))
			require.Equal(t, http.StatusOK, w.Code)
			assert.True(t, decode[AnalysisResponse[json.RawMessage]](t, w).Cached)
		})
	}
}

func TestHandlers_Errors(t *testing.T) {
	router := setupTestRouter(t, nil)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed body",
			path:       "/v1/causal/analyze/paths",
			body:       `{"graph":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "missing required field",
			path:       "/v1/causal/analyze/backdoor",
			body:       `{"graph":{"nodes":[{"id":"X"}]},"treatment":"X"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "no graph",
			path:       "/v1/causal/analyze/frontdoor",
			body:       `{"treatment":"X","outcome":"Y"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidRequest,
		},
		{
			name:       "duplicate node",
			path:       "/v1/causal/analyze/structure",
			body:       `{"graph":{"nodes":[{"id":"A"},{"id":"A"}],"edges":[]}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeDuplicateNode,
		},
		{
			name:       "dangling edge",
			path:       "/v1/causal/analyze/structure",
			body:       `{"graph":{"nodes":[{"id":"A"}],"edges":[{"from":"A","to":"B"}]}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidEdgeTarget,
		},
		{
			name:       "unknown node type",
			path:       "/v1/causal/analyze/structure",
			body:       `{"graph":{"nodes":[{"id":"A","type":"wizard"}],"edges":[]}}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidGraph,
		},
		{
			name:       "unknown measure",
			path:       "/v1/causal/analyze/centrality",
			body:       `{"graph":{"nodes":[{"id":"A"}],"edges":[]},"measures":["katz"]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeUnknownMeasure,
		},
		{
			name:       "unknown stored graph",
			path:       "/v1/causal/analyze/independencies",
			body:       `{"graph_id":"missing"}`,
			wantStatus: http.StatusNotFound,
			wantCode:   CodeGraphNotFound,
		},
		{
			name:       "invalid spec on save",
			path:       "/v1/causal/graphs",
			body:       `{"nodes":[{"id":""}],"edges":[]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidGraph,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestHandlers_Batch(t *testing.T) {
	router := setupTestRouter(t, nil)
	body := map[string]any{
		"graph": confoundedMediatorSpec("batch"),
		"operations": []map[string]any{
			{"id": "sets", "op": "backdoor_sets", "params": map[string]any{"treatment": "X", "outcome": "Y"}},
			{"id": "rank", "op": "centrality", "params": map[string]any{"measures": []string{"pagerank"}}},
			{"id": "bad", "op": "telepathy"},
		},
	}

	w := do(t, router, http.MethodPost, "/v1/causal/analyze/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		GraphID string `json:"graph_id"`
		Failed  int    `json:"failed"`
		Results []struct {
			ID     string          `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *ErrorResponse  `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "batch", resp.GraphID)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "sets", resp.Results[0].ID)
	assert.Contains(t, string(resp.Results[0].Result), `"sets":[["Z"]]`)
	assert.Nil(t, resp.Results[1].Error)
	require.NotNil(t, resp.Results[2].Error)
	assert.Equal(t, CodeInvalidRequest, resp.Results[2].Error.Code)

	t.Run("empty batch rejected", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/v1/causal/analyze/batch", `{"graph_id":"x","operations":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandlers_RequestID(t *testing.T) {
	router := setupTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/causal/graphs", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = do(t, router, http.MethodGet, "/v1/causal/graphs", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandlers_RateLimit(t *testing.T) {
	router := setupTestRouter(t, func(s *config.ServerConfig) {
		s.RateLimit = 0.001
		s.RateBurst = 1
	})

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/v1/causal/health", nil).Code)
	w := do(t, router, http.MethodGet, "/v1/causal/health", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, CodeRateLimited, decode[ErrorResponse](t, w).Code)

	// /metrics sits outside the limiter.
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/metrics", nil).Code)
}

func TestHandlers_BodyLimit(t *testing.T) {
	router := setupTestRouter(t, func(s *config.ServerConfig) {
		s.MaxBodyBytes = 1024
	})

	big := `{"graph":{"nodes":[{"id":"` + strings.Repeat("a", 2048) + `"}]}}`
	w := do(t, router, http.MethodPost, "/v1/causal/analyze/structure", big)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, CodeRequestTooLarge, decode[ErrorResponse](t, w).Code)
}

func TestServer_RunAndShutdown(t *testing.T) {
	cfg := config.Default().Server
	cfg.Port = 0
	cfg.ShutdownTimeout = time.Second
	srv := NewServer(cfg, http.NotFoundHandler())
	assert.Equal(t, ":0", srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
