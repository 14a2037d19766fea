// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger persists causal graphs in an embedded BadgerDB.
//
// Stored graphs let a multi-step reasoning session refer to a model by id
// instead of resending it with every request. The engine never touches
// the store; the service layer loads a graph and hands it over.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Options configures a BadgerDB instance.
type Options struct {
	// Path is the data directory. Required unless InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests and ephemeral runs.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives Badger's internal logs. Nil silences them.
	Logger *slog.Logger

	// GCInterval is the value log GC period. Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage ratio that triggers a rewrite.
	GCDiscardRatio float64
}

// DefaultOptions returns durable settings for a data directory.
func DefaultOptions(path string) Options {
	return Options{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryOptions returns settings for a throwaway in-memory database.
func InMemoryOptions() Options {
	return Options{InMemory: true}
}

// slogAdapter satisfies badger.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// DB is a BadgerDB handle with an optional GC loop.
//
// Thread Safety: Safe for concurrent use.
type DB struct {
	*badger.DB
	inMemory bool
	stopGC   chan struct{}
	gcDone   chan struct{}
}

// Open opens the database described by opts.
//
// Description:
//
//	Creates the data directory if needed, opens Badger and starts the
//	value log GC loop when GCInterval is positive and the database is on
//	disk.
//
// Outputs:
//
//	*DB - The handle. Call Close when done.
//	error - Non-nil if the path is missing or Badger fails to open.
func Open(opts Options) (*DB, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("badger: path is required for a persistent database")
		}
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&slogAdapter{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	db := &DB{DB: bdb, inMemory: opts.InMemory}
	if opts.GCInterval > 0 && !opts.InMemory {
		db.stopGC = make(chan struct{})
		db.gcDone = make(chan struct{})
		go db.runGC(opts.GCInterval, opts.GCDiscardRatio, opts.Logger)
	}
	return db, nil
}

func (d *DB) runGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(d.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			err := d.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// Close stops GC and closes the database.
func (d *DB) Close() error {
	if d.stopGC != nil {
		close(d.stopGC)
		<-d.gcDone
		d.stopGC = nil
	}
	return d.DB.Close()
}

// InMemory reports whether the database lives only in RAM.
func (d *DB) InMemory() bool { return d.inMemory }

// update runs fn in a read-write transaction and commits on success.
func (d *DB) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return d.DB.Update(fn)
}

// view runs fn in a read-only transaction.
func (d *DB) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return d.DB.View(fn)
}
