// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianCausal/services/causal"
	"github.com/AleutianAI/AleutianCausal/services/causal/cache"
	"github.com/AleutianAI/AleutianCausal/services/causal/config"
	"github.com/AleutianAI/AleutianCausal/services/causal/storage/badger"
	"github.com/AleutianAI/AleutianCausal/services/causal/telemetry"
)

// configReloadDebounce batches editor write bursts into one reload.
const configReloadDebounce = 500 * time.Millisecond

func (a *app) serveCmd() *cobra.Command {
	var (
		port     int
		inMemory bool
		debug    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the causal HTTP API",
		Long: `Start the HTTP API on the configured port. Graphs are stored in Badger
under store.path. When --config names a file, edits to it are applied
without a restart (engine bounds and batch concurrency).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *a.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if inMemory {
				cfg.Store.InMemory = true
			}
			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, &cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "Keep graphs in memory only")
	cmd.Flags().BoolVar(&debug, "debug", false, "Gin debug mode")
	return cmd
}

// serve wires telemetry, the graph store, the service and the config
// watcher, then blocks until ctx is cancelled.
func (a *app) serve(ctx context.Context, cfg *config.Config) error {
	logger := a.logger.Slog()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	db, err := openStore(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing graph store failed", "error", err)
		}
	}()

	svc := causal.NewService(cfg,
		causal.WithStore(badger.NewGraphStore(db)),
		causal.WithMemo(cache.NewMemo(cfg.Cache.Size)),
	)

	if a.configPath != "" {
		watcher, err := config.NewWatcher(a.configPath, cfg, configReloadDebounce)
		if err != nil {
			return err
		}
		watcher.OnReload(func(next *config.Config) {
			svc.ApplyConfig(next)
			logger.Info("configuration reloaded", "path", a.configPath)
		})
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("watch config: %w", err)
		}
		defer watcher.Stop()
	}

	router := causal.NewRouter(cfg.Server, cfg.Telemetry.ServiceName, causal.NewHandlers(svc))
	server := causal.NewServer(cfg.Server, router)
	logger.Info("causal service ready",
		"address", server.Addr(),
		"store", storeLabel(cfg.Store),
		"cache_size", cfg.Cache.Size,
		"exporter", cfg.Telemetry.Exporter)
	return server.Run(ctx)
}

// openStore opens the Badger database described by cfg.
func openStore(cfg config.StoreConfig, logger *slog.Logger) (*badger.DB, error) {
	opts := badger.InMemoryOptions()
	if !cfg.InMemory {
		path, err := config.ExpandPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = logger.With("component", "badger")
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	return db, nil
}

func storeLabel(cfg config.StoreConfig) string {
	if cfg.InMemory {
		return "memory"
	}
	return cfg.Path
}

// configCmd prints the effective configuration.
func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after file and environment overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.format == formatJSON {
				return OutputJSON(a.stdout, a.cfg)
			}
			enc := yaml.NewEncoder(a.stdout)
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "env",
		Short: "List the supported CAUSAL_* environment overrides",
		RunE: func(cmd *cobra.Command, _ []string) error {
			keys := config.EnvKeys()
			if a.format == formatJSON {
				return OutputJSON(a.stdout, keys)
			}
			a.out.List(keys)
			return nil
		},
	})
	return cmd
}
