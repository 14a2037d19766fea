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
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AleutianAI/AleutianCausal/pkg/logging"
	"github.com/AleutianAI/AleutianCausal/pkg/ux"
	"github.com/AleutianAI/AleutianCausal/services/causal/config"
	"github.com/AleutianAI/AleutianCausal/services/causal/telemetry"
)

// Output formats accepted by --output.
const (
	formatText = "text"
	formatJSON = "json"
)

// app carries the state shared by every subcommand.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer

	// Populated by setup before any RunE.
	cfg        *config.Config
	configPath string
	format     string
	logger     *logging.Logger
	out        *ux.Printer

	// exitCode is set by commands that finish with findings.
	exitCode int
}

func newApp(stdout, stderr io.Writer) *app {
	v := viper.New()
	v.SetEnvPrefix(strings.TrimSuffix(config.EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &app{v: v, stdout: stdout, stderr: stderr}
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := newApp(stdout, stderr)
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	if a.logger != nil {
		_ = a.logger.Close()
	}
	if err != nil {
		a.reportError(err)
		return CLIExitError
	}
	return a.exitCode
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "causal",
		Short: "Causal graph reasoning",
		Long: `causal answers structural questions about causal DAGs: d-separation,
adjustment sets, frontdoor and instrumental identification, interventions
and centrality. Run it as an HTTP service or one analysis at a time.`,
		Version:           telemetry.ServiceVersion,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (YAML); defaults and CAUSAL_* variables apply otherwise")
	flags.String("log-level", "", "Log level: debug, info, warn, error (default from config)")
	flags.StringP("output", "o", formatText, "Output format: text or json")
	_ = a.v.BindPFlags(flags)

	root.AddCommand(a.serveCmd(), a.analyzeCmd(), a.configCmd())
	return root
}

// setup loads configuration, installs the logger and picks the output
// style. It runs before every subcommand.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.format = strings.ToLower(a.v.GetString("output"))
	if a.format != formatText && a.format != formatJSON {
		return fmt.Errorf("invalid --output %q: want text or json", a.format)
	}

	a.configPath = a.v.GetString("config")
	cfg, err := config.Load(cmd.Context(), a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl := a.v.GetString("log-level"); lvl != "" {
		cfg.Logging.Level = strings.ToLower(lvl)
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		Dir:     cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON,
		Output:  a.stderr,
	})
	a.logger.Install()

	if f, ok := a.stdout.(*os.File); ok {
		ux.InitPersonality(f)
	} else {
		ux.SetPersonalityLevel(ux.PersonalityMachine)
	}
	a.out = ux.NewPrinter(a.stdout)
	return nil
}
