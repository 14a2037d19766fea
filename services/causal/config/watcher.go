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
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow is how long the watcher waits for writes to settle.
const DefaultDebounceWindow = 250 * time.Millisecond

// ReloadHandler receives every successfully reloaded configuration.
type ReloadHandler func(cfg *Config)

// Watcher reloads a config file when it changes.
//
// # Description
//
// The parent directory is watched rather than the file, so editors that
// save by rename are handled. Events are debounced; once the window
// passes without further events the file is reloaded with Load. A
// failed reload is logged and counted, and the previous configuration
// stays current.
//
// # Thread Safety
//
// Safe for concurrent use. Handlers are called from a single goroutine.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu       sync.RWMutex
	current  *Config
	handlers []ReloadHandler

	events   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for path, starting from cfg.
//
// # Inputs
//
//   - path: The config file. A leading ~ is expanded.
//   - cfg: The configuration already loaded from path.
//   - debounce: Settle window. Zero uses DefaultDebounceWindow.
//
// # Outputs
//
//   - *Watcher: Call Start to begin watching and Stop to release it.
//   - error: Non-nil if the fsnotify watcher could not be created.
func NewWatcher(path string, cfg *Config, debounce time.Duration) (*Watcher, error) {
	abs, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	return &Watcher{
		path:     abs,
		watcher:  fw,
		debounce: debounce,
		current:  cfg,
		events:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// OnReload registers a handler for reloaded configurations.
func (w *Watcher) OnReload(h ReloadHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Current returns the latest valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching. It returns once the directory watch is in place.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// processEvents forwards relevant fsnotify events to the debouncer.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.events <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// debounceLoop reloads once events stop arriving for the debounce window.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.events:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			w.reload(ctx)
		}
	}
}

// reload loads the file and publishes it on success.
func (w *Watcher) reload(ctx context.Context) {
	cfg, err := Load(ctx, w.path)
	if err != nil {
		configReloads.WithLabelValues("error").Inc()
		slog.Warn("config reload failed, keeping previous configuration",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}

	w.mu.Lock()
	w.current = cfg
	handlers := append([]ReloadHandler(nil), w.handlers...)
	w.mu.Unlock()

	configReloads.WithLabelValues("ok").Inc()
	slog.Info("configuration reloaded", slog.String("path", w.path))
	for _, h := range handlers {
		h(cfg)
	}
}
