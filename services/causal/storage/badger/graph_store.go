// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
)

var storeTracer = otel.Tracer("aleutian.causal.storage")

var (
	// ErrGraphNotFound is returned when no graph is stored under an id.
	ErrGraphNotFound = errors.New("graph not found")

	// ErrMissingID is returned when saving a graph without an id.
	ErrMissingID = errors.New("graph id is required")
)

// graphKeyPrefix namespaces graph records inside the database.
const graphKeyPrefix = "causal/graph/"

func graphKey(id string) []byte { return []byte(graphKeyPrefix + id) }

// record is the persisted form of a graph.
type record struct {
	Spec    *graph.GraphSpec `json:"spec"`
	SavedAt time.Time        `json:"saved_at"`
}

// Summary describes a stored graph without loading it.
type Summary struct {
	ID        string    `json:"id"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	SavedAt   time.Time `json:"saved_at"`
}

// GraphStore saves and loads causal graphs by id.
//
// Thread Safety: Safe for concurrent use.
type GraphStore struct {
	db  *DB
	now func() time.Time
}

// NewGraphStore wraps an open database.
func NewGraphStore(db *DB) *GraphStore {
	return &GraphStore{db: db, now: time.Now}
}

// Save stores g under its id, replacing any previous version.
//
// Outputs:
//
//	Summary - What was stored.
//	error - ErrMissingID for a graph without id, or a storage error.
func (s *GraphStore) Save(ctx context.Context, g *graph.CausalGraph) (Summary, error) {
	ctx, span := storeTracer.Start(ctx, "GraphStore.Save")
	defer span.End()

	if g == nil || g.ID() == "" {
		return Summary{}, ErrMissingID
	}
	span.SetAttributes(attribute.String("graph.id", g.ID()))

	rec := record{Spec: graph.SpecFromGraph(g), SavedAt: s.now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return Summary{}, fmt.Errorf("encoding graph %s: %w", g.ID(), err)
	}
	err = s.db.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(graphKey(g.ID()), data)
	})
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("saving graph %s: %w", g.ID(), err)
	}

	slog.Debug("graph stored",
		slog.String("graph_id", g.ID()),
		slog.Int("bytes", len(data)),
	)
	return summarize(rec), nil
}

// Load returns the graph stored under id.
//
// Outputs:
//
//	*graph.CausalGraph - The rebuilt graph.
//	error - ErrGraphNotFound if absent, or a decode/validation error.
func (s *GraphStore) Load(ctx context.Context, id string) (*graph.CausalGraph, error) {
	ctx, span := storeTracer.Start(ctx, "GraphStore.Load",
		trace.WithAttributes(attribute.String("graph.id", id)),
	)
	defer span.End()

	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	g, err := rec.Spec.Build(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rebuilding graph %s: %w", id, err)
	}
	return g, nil
}

// Delete removes the graph stored under id.
func (s *GraphStore) Delete(ctx context.Context, id string) error {
	ctx, span := storeTracer.Start(ctx, "GraphStore.Delete",
		trace.WithAttributes(attribute.String("graph.id", id)),
	)
	defer span.End()

	return s.db.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(graphKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrGraphNotFound, id)
			}
			return err
		}
		return txn.Delete(graphKey(id))
	})
}

// List returns a summary of every stored graph, sorted by id.
func (s *GraphStore) List(ctx context.Context) ([]Summary, error) {
	ctx, span := storeTracer.Start(ctx, "GraphStore.List")
	defer span.End()

	out := make([]Summary, 0)
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(graphKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var rec record
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decoding %s: %w", strings.TrimPrefix(string(item.Key()), graphKeyPrefix), err)
			}
			out = append(out, summarize(rec))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	span.SetAttributes(attribute.Int("count", len(out)))
	return out, nil
}

// Spec returns the stored declarative form of a graph.
func (s *GraphStore) Spec(ctx context.Context, id string) (*graph.GraphSpec, time.Time, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, time.Time{}, err
	}
	return rec.Spec, rec.SavedAt, nil
}

func (s *GraphStore) get(ctx context.Context, id string) (record, error) {
	var rec record
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(graphKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrGraphNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return record{}, err
	}
	if rec.Spec == nil {
		return record{}, fmt.Errorf("graph %s: empty record", id)
	}
	return rec, nil
}

func summarize(rec record) Summary {
	return Summary{
		ID:        rec.Spec.ID,
		NodeCount: len(rec.Spec.Nodes),
		EdgeCount: len(rec.Spec.Edges),
		SavedAt:   rec.SavedAt,
	}
}
