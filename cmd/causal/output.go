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
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianCausal/pkg/ux"
	"github.com/AleutianAI/AleutianCausal/services/causal"
	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
	"github.com/AleutianAI/AleutianCausal/services/causal/reason"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // The analysis answered no
	CLIExitError    = 2 // Operation failed
)

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
	Code       string    `json:"code,omitempty"`
}

// OutputJSON writes data as indented JSON.
func OutputJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// emit writes a successful result as a JSON envelope or styled text and
// records the findings exit code when the analysis answered no.
func (a *app) emit(command string, start time.Time, data any) error {
	negative := isNegative(data)
	if negative {
		a.exitCode = CLIExitFindings
	}
	if a.format == formatJSON {
		return OutputJSON(a.stdout, CommandResult{
			APIVersion: "1.0",
			Command:    command,
			Timestamp:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
			Success:    true,
			Data:       data,
		})
	}
	renderResult(a.out, data)
	return nil
}

// reportError writes err in the selected format. Errors raised before
// setup finished go to stderr as text.
func (a *app) reportError(err error) {
	if a.format == formatJSON {
		_ = OutputJSON(a.stdout, CommandResult{
			APIVersion: "1.0",
			Timestamp:  time.Now(),
			Success:    false,
			Error:      err.Error(),
			Code:       causal.ErrorCode(err),
		})
		return
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
}

// isNegative reports whether a verdict-style result answered no.
func isNegative(data any) bool {
	switch r := data.(type) {
	case reason.DSeparationResult:
		return !r.Separated
	case reason.SeparatorResult:
		return !r.Found
	case causal.BackdoorResult:
		return !r.Valid
	case reason.BackdoorSetsResult:
		return len(r.Sets) == 0
	case causal.FrontdoorResult:
		return !r.Satisfied
	case causal.InstrumentResult:
		return !r.Found
	case causal.InterventionResult:
		return !r.Identifiable
	}
	return false
}

// =============================================================================
// Text Rendering
// =============================================================================

func renderResult(p *ux.Printer, data any) {
	switch r := data.(type) {
	case graph.PathResult:
		renderPaths(p, r)
	case reason.DSeparationResult:
		p.Title("D-separation")
		p.Verdict(r.Separated, "separated", "d-connected")
		if len(r.ActivePaths) > 0 {
			p.Muted("Active paths:")
			p.List(pathStrings(r.ActivePaths))
		}
		if r.Truncated {
			p.Warning("active path listing truncated")
		}
	case reason.IndependenceResult:
		p.Title("Implied independencies")
		rows := make([][]string, len(r.Independencies))
		for i, ind := range r.Independencies {
			rows[i] = []string{ind.X, ind.Y, setString(ind.Given)}
		}
		p.Table([]string{"x", "y", "given"}, rows)
		if !r.Exhaustive {
			p.Warning("search stopped early; list is incomplete")
		}
	case causal.StructureResult:
		renderStructure(p, r)
	case reason.SeparatorResult:
		p.Title("Minimal separator")
		p.Verdict(r.Found, "separator "+setString(r.Separator), "no separator found")
		if !r.Exhaustive {
			p.Warning("search stopped early")
		}
	case causal.BackdoorResult:
		p.Title("Backdoor criterion")
		p.Verdict(r.Valid, "adjustment set is valid", "adjustment set is not valid")
		if len(r.BackdoorPaths) > 0 {
			p.Muted("Backdoor paths:")
			p.List(pathStrings(r.BackdoorPaths))
		}
		if r.Valid {
			p.Box("Formula", r.Formula.PlainText)
		}
	case reason.BackdoorSetsResult:
		p.Title("Adjustment sets")
		sets := make([]string, len(r.Sets))
		for i, s := range r.Sets {
			sets[i] = setString(s)
		}
		p.Verdict(len(sets) > 0, strconv.Itoa(len(sets))+" valid set(s)", "no valid adjustment set")
		p.List(sets)
		p.KeyValue("candidates", setString(r.CandidatePool))
		if !r.Exhaustive {
			p.Warning("search stopped early; smaller sets may exist beyond the cap")
		}
	case causal.FrontdoorResult:
		p.Title("Frontdoor criterion")
		p.Verdict(r.Satisfied, "mediators "+setString(r.Mediators), "criterion not satisfied")
		p.KeyValue("reason", r.Reason)
		if r.Formula != nil {
			p.Box("Formula", r.Formula.PlainText)
		}
	case causal.InstrumentResult:
		p.Title("Instrumental variables")
		p.Verdict(r.Found, "instruments "+setString(r.Instruments), "no instrument found")
		if r.Formula != nil {
			p.Box("Formula", r.Formula.PlainText)
		}
	case causal.InterventionResult:
		renderIntervention(p, r)
	case causal.CentralityResult:
		renderCentrality(p, r)
	default:
		p.KeyValue("result", fmt.Sprintf("%+v", data))
	}
}

func renderPaths(p *ux.Printer, r graph.PathResult) {
	p.Title("Paths")
	p.KeyValue("count", len(r.Paths))
	p.List(pathStrings(r.Paths))
	if r.Truncated {
		p.Warning("path enumeration truncated")
	}
}

func renderStructure(p *ux.Printer, r causal.StructureResult) {
	p.Title("V-structures")
	rows := make([][]string, len(r.VStructures))
	for i, v := range r.VStructures {
		rows[i] = []string{v.Parent1, v.Collider, v.Parent2}
	}
	p.Table([]string{"parent", "collider", "parent"}, rows)
	if r.Node != "" {
		p.KeyValue("blanket("+r.Node+")", setString(r.MarkovBlanket))
	}
}

func renderIntervention(p *ux.Printer, r causal.InterventionResult) {
	p.Title("Intervention")
	p.Verdict(r.Identifiable, "all effects identifiable", "some effects are not identifiable")
	rows := make([][]string, len(r.Effects))
	for i, e := range r.Effects {
		rows[i] = []string{e.Treatment, e.Outcome, string(e.Strategy), strconv.FormatBool(e.Identifiable)}
	}
	p.Table([]string{"treatment", "outcome", "strategy", "identifiable"}, rows)
	for _, e := range r.Effects {
		if e.Formula != nil {
			p.Box(e.Treatment+" → "+e.Outcome, e.Formula.PlainText)
		}
	}
	if len(r.Adjustment) > 0 {
		p.KeyValue("adjustment", setString(r.Adjustment))
	}
}

func renderCentrality(p *ux.Printer, r causal.CentralityResult) {
	if r.AllResult == nil {
		return
	}
	for _, m := range r.Metadata.Measures {
		p.Title("Centrality: " + string(m))
		ranked := r.Rankings[m]
		rows := make([][]string, len(ranked))
		for i, n := range ranked {
			rows[i] = []string{strconv.Itoa(n.Rank), n.NodeID, strconv.FormatFloat(n.Score, 'g', 6, 64)}
		}
		p.Table([]string{"rank", "node", "score"}, rows)
	}
	if pr := r.PageRank; pr != nil && !pr.Converged {
		p.Warning(fmt.Sprintf("pagerank did not converge in %d iterations", pr.Iterations))
	}
}

func pathStrings(paths []graph.Path) []string {
	out := make([]string, len(paths))
	for i, path := range paths {
		out[i] = path.String()
	}
	return out
}

func setString(ids []string) string {
	return "{" + strings.Join(ids, ", ") + "}"
}
