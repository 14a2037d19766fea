// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mitchellh/hashstructure/v2"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
)

// Fingerprint hashes the structure of a graph: its id, nodes, edges and
// metadata. Declaration order is significant because it fixes the
// engine's iteration order. A nil graph hashes to 0.
func Fingerprint(g *graph.CausalGraph) (uint64, error) {
	if g == nil {
		return 0, nil
	}
	h, err := hashstructure.Hash(graph.SpecFromGraph(g), hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("fingerprinting graph: %w", err)
	}
	return h, nil
}

// Key derives the memo key of one operation on one graph.
//
// params should be the request parameters with the graph excluded; any
// value hashstructure accepts works, including structs and maps.
func Key(op string, g *graph.CausalGraph, params any) (string, error) {
	gh, err := Fingerprint(g)
	if err != nil {
		return "", err
	}
	ph, err := hashstructure.Hash(params, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("fingerprinting %s parameters: %w", op, err)
	}
	return op + ":" + strconv.FormatUint(gh, 16) + ":" + strconv.FormatUint(ph, 16), nil
}

// Memo is a bounded result cache with request coalescing.
//
// Thread Safety: Safe for concurrent use.
type Memo struct {
	lru    *LRU[string, any]
	flight singleflight.Group
}

// NewMemo creates a memo holding at most size results. A size of zero or
// less returns nil, and a nil *Memo computes every call directly.
func NewMemo(size int) *Memo {
	if size <= 0 {
		return nil
	}
	return &Memo{lru: NewLRU[string, any](size)}
}

// Stats returns LRU counters. A nil memo reports zeros.
func (m *Memo) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return m.lru.Stats()
}

// Purge drops every cached result.
func (m *Memo) Purge() {
	if m != nil {
		m.lru.Purge()
	}
}

// Do returns the cached result for key or computes it with fn.
//
// Description:
//
//	Concurrent callers with the same key share a single fn call. Errors
//	are returned to every waiting caller and never cached. A result whose
//	type does not match T is treated as a miss and recomputed.
//
//	A result computed after ctx ended may be partial, so it is never
//	cached and the caller gets ctx.Err() instead. A waiter whose own
//	context is still live recomputes when the shared call was cancelled.
//
// Outputs:
//
//	T - The result.
//	bool - True when the result came from the cache.
//	error - The error returned by fn, or the context error.
func Do[T any](ctx context.Context, m *Memo, key string, fn func(context.Context) (T, error)) (T, bool, error) {
	if m == nil {
		return compute(ctx, fn)
	}
	if cached, ok := m.lru.Get(key); ok {
		if v, ok := cached.(T); ok {
			return v, true, nil
		}
	}

	shared, err, _ := m.flight.Do(key, func() (any, error) {
		v, _, err := compute(ctx, fn)
		if err != nil {
			return nil, err
		}
		m.lru.Set(key, v)
		return v, nil
	})
	if err != nil && isContextErr(err) && ctx.Err() == nil {
		// The shared call belonged to a caller that went away.
		v, _, err := compute(ctx, fn)
		if err == nil {
			m.lru.Set(key, v)
		}
		return v, false, err
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	v, ok := shared.(T)
	if !ok {
		var zero T
		return zero, false, fmt.Errorf("memo %s: cached %T is not %T", key, shared, zero)
	}
	return v, false, nil
}

// compute runs fn and discards its result when ctx ended meanwhile.
func compute[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, bool, error) {
	v, err := fn(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return v, false, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
