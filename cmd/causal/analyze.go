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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCausal/services/causal"
	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"github.com/AleutianAI/AleutianCausal/services/causal/reason"
)

// analyzeCmd groups the one-shot analyses. Every subcommand reads the
// graph named by --graph ("-" for stdin) and runs through the same
// validation as the HTTP API.
func (a *app) analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis against a graph file",
	}
	cmd.PersistentFlags().StringP("graph", "g", "", "Graph spec file (YAML or JSON), - for stdin")
	_ = cmd.MarkPersistentFlagRequired("graph")

	cmd.AddCommand(
		a.pathsCmd(),
		a.dsepCmd(),
		a.independenciesCmd(),
		a.structureCmd(),
		a.separatorCmd(),
		a.backdoorCmd(),
		a.backdoorSetsCmd(),
		a.frontdoorCmd(),
		a.instrumentCmd(),
		a.interveneCmd(),
		a.centralityCmd(),
	)
	return cmd
}

// analyze loads the graph, runs op with params and emits the result.
func (a *app) analyze(cmd *cobra.Command, op causal.Operation, params any) error {
	start := time.Now()
	ctx := cmd.Context()

	path, _ := cmd.Flags().GetString("graph")
	g, err := loadGraph(ctx, path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	svc := causal.NewService(a.cfg)
	res, _, err := svc.Run(ctx, g, op, raw)
	if err != nil {
		return err
	}
	a.logger.Debug("analysis complete",
		"operation", string(op),
		"graph_id", g.ID(),
		"nodes", g.NodeCount(),
		"duration_ms", time.Since(start).Milliseconds())
	return a.emit("analyze "+string(op), start, res)
}

// loadGraph reads and builds a graph spec. A spec without id is named
// after its file.
func loadGraph(ctx context.Context, path string, stdin io.Reader) (*graph.CausalGraph, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}

	spec, err := graph.DecodeSpec(data)
	if err != nil {
		return nil, err
	}
	if spec.ID == "" && path != "-" {
		spec.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if spec.ID == "" {
		spec.ID = causal.InlineGraphID
	}
	return spec.Build(ctx)
}

// =============================================================================
// Subcommands
// =============================================================================

func (a *app) pathsCmd() *cobra.Command {
	var p causal.PathsParams
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Enumerate paths between two node sets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, causal.OpPaths, p)
		},
	}
	cmd.Flags().StringSliceVar(&p.From, "from", nil, "Source nodes")
	cmd.Flags().StringSliceVar(&p.To, "to", nil, "Target nodes")
	cmd.Flags().IntVar(&p.MaxLength, "max-length", 0, "Maximum path length in edges (0 = engine default)")
	cmd.Flags().IntVar(&p.MaxPaths, "max-paths", 0, "Maximum paths returned (0 = engine default)")
	return cmd
}

func (a *app) dsepCmd() *cobra.Command {
	var p causal.DSeparationParams
	cmd := &cobra.Command{
		Use:     "dsep",
		Aliases: []string{"dseparation"},
		Short:   "Test whether X and Y are d-separated given Z",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, causal.OpDSeparation, p)
		},
	}
	cmd.Flags().StringSliceVarP(&p.X, "x", "x", nil, "First node set")
	cmd.Flags().StringSliceVarP(&p.Y, "y", "y", nil, "Second node set")
	cmd.Flags().StringSliceVarP(&p.Z, "z", "z", nil, "Conditioning set")
	cmd.Flags().IntVar(&p.MaxPaths, "max-paths", 0, "Maximum active paths reported")
	return cmd
}

func (a *app) independenciesCmd() *cobra.Command {
	var p causal.IndependenciesParams
	cmd := &cobra.Command{
		Use:   "independencies",
		Short: "List conditional independencies implied by the graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, causal.OpIndependencies, p)
		},
	}
	cmd.Flags().IntVar(&p.MaxConditioningSetSize, "max-conditioning", 0, "Largest conditioning set (0 = engine default, max 8)")
	cmd.Flags().IntVar(&p.MaxResults, "max-results", 0, "Maximum independencies returned")
	return cmd
}

func (a *app) structureCmd() *cobra.Command {
	var p causal.StructureParams
	cmd := &cobra.Command{
		Use:     "structure",
		Aliases: []string{"vstructures", "blanket"},
		Short:   "List v-structures and, with --node, a Markov blanket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, causal.OpStructure, p)
		},
	}
	cmd.Flags().StringVar(&p.Node, "node", "", "Node whose Markov blanket is reported")
	return cmd
}

func (a *app) separatorCmd() *cobra.Command {
	var p causal.SeparatorParams
	cmd := &cobra.Command{
		Use:   "separator",
		Short: "Find a minimal set separating X from Y",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, causal.OpSeparator, p)
		},
	}
	cmd.Flags().StringSliceVarP(&p.X, "x", "x", nil, "First node set")
	cmd.Flags().StringSliceVarP(&p.Y, "y", "y", nil, "Second node set")
	cmd.Flags().IntVar(&p.MaxSetSize, "max-set-size", 0, "Largest separator considered")
	return cmd
}

func effectFlags(cmd *cobra.Command, p *causal.EffectParams) {
	cmd.Flags().StringVarP(&p.Treatment, "treatment", "t", "", "Treatment node")
	cmd.Flags().StringVarP(&p.Outcome, "outcome", "y", "", "Outcome node")
}

func (a *app) backdoorCmd() *cobra.Command {
	var p causal.BackdoorParams
	cmd := &cobra.Command{
		Use:   "backdoor",
		Short: "Check an adjustment set against the backdoor criterion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if p.AdjustmentSet == nil {
				p.AdjustmentSet = []string{}
			}
			return a.analyze(cmd, causal.OpBackdoor, p)
		},
	}
	effectFlags(cmd, &p.EffectParams)
	cmd.Flags().StringSliceVar(&p.AdjustmentSet, "adjust", nil, "Adjustment set")
	return cmd
}

func (a *app) backdoorSetsCmd() *cobra.Command {
	var p causal.BackdoorSetsParams
	cmd := &cobra.Command{
		Use:   "backdoor-sets",
		Short: "Enumerate minimal valid adjustment sets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, causal.OpBackdoorSets, p)
		},
	}
	effectFlags(cmd, &p.EffectParams)
	cmd.Flags().IntVar(&p.MaxSets, "max-sets", 0, "Maximum sets returned")
	cmd.Flags().IntVar(&p.MaxSetSize, "max-set-size", 0, "Largest set considered")
	return cmd
}

func (a *app) frontdoorCmd() *cobra.Command {
	var p causal.EffectParams
	cmd := &cobra.Command{
		Use:   "frontdoor",
		Short: "Search for a mediator set satisfying the frontdoor criterion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, causal.OpFrontdoor, p)
		},
	}
	effectFlags(cmd, &p)
	return cmd
}

func (a *app) instrumentCmd() *cobra.Command {
	var p causal.InstrumentParams
	cmd := &cobra.Command{
		Use:   "instrument",
		Short: "Find instrumental variables for treatment and outcome",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, causal.OpInstrument, p)
		},
	}
	effectFlags(cmd, &p.EffectParams)
	cmd.Flags().BoolVar(&p.All, "all", false, "Report every instrument, not just the first")
	return cmd
}

func (a *app) interveneCmd() *cobra.Command {
	var (
		do       []string
		outcomes []string
	)
	cmd := &cobra.Command{
		Use:     "intervene",
		Aliases: []string{"intervention"},
		Short:   "Identify the effect of do() interventions on outcomes",
		Example: "  causal analyze intervene -g study.yaml --do X=1 --do W --outcome Y",
		RunE: func(cmd *cobra.Command, _ []string) error {
			interventions, err := parseInterventions(do)
			if err != nil {
				return err
			}
			return a.analyze(cmd, causal.OpIntervention, causal.InterventionParams{
				Interventions: interventions,
				Outcomes:      outcomes,
			})
		},
	}
	cmd.Flags().StringArrayVar(&do, "do", nil, "Intervention as VAR or VAR=VALUE (repeatable)")
	cmd.Flags().StringSliceVar(&outcomes, "outcome", nil, "Outcome nodes")
	return cmd
}

// parseInterventions turns VAR[=VALUE] flags into atomic interventions.
func parseInterventions(specs []string) ([]reason.Intervention, error) {
	out := make([]reason.Intervention, 0, len(specs))
	for _, s := range specs {
		variable, value, _ := strings.Cut(s, "=")
		variable = strings.TrimSpace(variable)
		if variable == "" {
			return nil, fmt.Errorf("%w: empty variable in --do %q", causal.ErrInvalidParams, s)
		}
		out = append(out, reason.Intervention{
			Variable: variable,
			Value:    strings.TrimSpace(value),
			Type:     reason.InterventionAtomic,
		})
	}
	return out, nil
}

func (a *app) centralityCmd() *cobra.Command {
	var p causal.CentralityParams
	cmd := &cobra.Command{
		Use:   "centrality",
		Short: "Rank nodes by degree, betweenness, closeness or pagerank",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, causal.OpCentrality, p)
		},
	}
	cmd.Flags().StringSliceVarP(&p.Measures, "measure", "m", nil, "Measures to compute (default all)")
	cmd.Flags().BoolVar(&p.Normalized, "normalized", false, "Normalize degree and betweenness")
	cmd.Flags().BoolVar(&p.WassermanFaust, "wasserman-faust", false, "Scale closeness by reachable fraction")
	cmd.Flags().IntVar(&p.TopK, "top-k", 0, "Rows per measure (0 = all nodes)")
	return cmd
}
