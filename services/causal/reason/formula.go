// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reason

import (
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianCausal/services/causal/graph"
)

// =============================================================================
// Adjustment Formulas
// =============================================================================

// FormulaType names the identification strategy behind a formula.
type FormulaType string

const (
	FormulaBackdoor     FormulaType = "backdoor"
	FormulaFrontdoor    FormulaType = "frontdoor"
	FormulaInstrumental FormulaType = "instrumental"
)

// Formula is a rendered identification formula.
type Formula struct {
	Type      FormulaType `json:"type"`
	Treatment string      `json:"treatment"`
	Outcome   string      `json:"outcome"`

	// AdjustmentSet holds the variables the formula sums over (adjustment
	// set or mediators) or, for instruments, the instrument. Sorted.
	AdjustmentSet []string `json:"adjustment_set"`

	// IsValid reports well-formedness; BackdoorFormulaFor additionally
	// requires the graph criterion.
	IsValid bool `json:"is_valid"`

	LaTeX     string `json:"latex"`
	PlainText string `json:"plain_text"`
}

// GenerateBackdoorFormula renders P(y | do(x)) = Σ_z P(y | x, z) P(z).
//
// Description:
//
//	The adjustment set is sorted before rendering so the output is
//	stable. An empty set renders P(y | do(x)) = P(y | x). IsValid is true
//	when x and y are non-empty and distinct and the set is duplicate-free
//	and excludes x and y. No graph is consulted; see BackdoorFormulaFor.
//
// Example:
//
//	f := reason.GenerateBackdoorFormula("X", "Y", []string{"U", "A"})
//	// f.PlainText == "P(Y | do(X)) = Σ_{A, U} P(Y | X, A, U) P(A, U)"
func GenerateBackdoorFormula(x, y string, adjustmentSet []string) Formula {
	set := sortedCopy(adjustmentSet)
	f := Formula{
		Type:          FormulaBackdoor,
		Treatment:     x,
		Outcome:       y,
		AdjustmentSet: set,
		IsValid:       wellFormed(x, y, set),
	}

	lhsTeX := "P(" + y + ` \mid do(` + x + "))"
	lhs := "P(" + y + " | do(" + x + "))"
	if len(set) == 0 {
		f.LaTeX = lhsTeX + " = P(" + y + ` \mid ` + x + ")"
		f.PlainText = lhs + " = P(" + y + " | " + x + ")"
		return f
	}

	z := strings.Join(set, ", ")
	f.LaTeX = lhsTeX + ` = \sum_{` + z + "} P(" + y + ` \mid ` + x + ", " + z + ") P(" + z + ")"
	f.PlainText = lhs + " = Σ_{" + z + "} P(" + y + " | " + x + ", " + z + ") P(" + z + ")"
	return f
}

// BackdoorFormulaFor renders the backdoor formula and sets IsValid from
// the backdoor criterion on g.
func BackdoorFormulaFor(g *graph.CausalGraph, x, y string, adjustmentSet []string) Formula {
	f := GenerateBackdoorFormula(x, y, adjustmentSet)
	f.IsValid = f.IsValid && IsValidBackdoorAdjustment(g, x, y, f.AdjustmentSet)
	return f
}

// GenerateFrontdoorFormula renders
// P(y | do(x)) = Σ_m P(m | x) Σ_x' P(y | x', m) P(x').
func GenerateFrontdoorFormula(x, y string, mediators []string) Formula {
	set := sortedCopy(mediators)
	f := Formula{
		Type:          FormulaFrontdoor,
		Treatment:     x,
		Outcome:       y,
		AdjustmentSet: set,
		IsValid:       wellFormed(x, y, set) && len(set) > 0,
	}
	m := strings.Join(set, ", ")
	xp := x + "'"
	f.LaTeX = "P(" + y + ` \mid do(` + x + `)) = \sum_{` + m + "} P(" + m + ` \mid ` + x + `) \sum_{` + xp + "} P(" + y + ` \mid ` + xp + ", " + m + ") P(" + xp + ")"
	f.PlainText = "P(" + y + " | do(" + x + ")) = Σ_{" + m + "} P(" + m + " | " + x + ") Σ_{" + xp + "} P(" + y + " | " + xp + ", " + m + ") P(" + xp + ")"
	return f
}

// GenerateInstrumentFormula renders the Wald ratio for instrument z.
func GenerateInstrumentFormula(x, y, z string) Formula {
	f := Formula{
		Type:          FormulaInstrumental,
		Treatment:     x,
		Outcome:       y,
		AdjustmentSet: []string{z},
		IsValid:       z != "" && wellFormed(x, y, []string{z}),
	}
	f.LaTeX = `\beta_{` + x + ` \to ` + y + `} = \frac{\mathrm{Cov}(` + y + ", " + z + `)}{\mathrm{Cov}(` + x + ", " + z + ")}"
	f.PlainText = "β(" + x + " → " + y + ") = Cov(" + y + ", " + z + ") / Cov(" + x + ", " + z + ")"
	return f
}

func wellFormed(x, y string, set []string) bool {
	if x == "" || y == "" || x == y {
		return false
	}
	for i, v := range set {
		if v == "" || v == x || v == y {
			return false
		}
		if i > 0 && set[i-1] == v {
			return false
		}
	}
	return true
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}
