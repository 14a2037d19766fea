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
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAllBackdoorSets_ConfoundedMediator(t *testing.T) {
	g := confoundedMediator(t)
	r := FindAllBackdoorSets(context.Background(), g, "X", "Y", SearchOptions{})

	assert.Equal(t, [][]string{{"A", "U"}}, r.Sets)
	assert.Equal(t, []string{"A", "U"}, r.CandidatePool)
	assert.True(t, r.Exhaustive)
	assert.False(t, r.Heuristic)
	assert.Equal(t, 4, r.Evaluated)
	for _, set := range r.Sets {
		assert.NotContains(t, set, "M")
	}
	assert.False(t, IsValidBackdoorAdjustment(g, "X", "Y", []string{"M"}))
}

func TestFindAllBackdoorSets_MBias(t *testing.T) {
	g := mBias(t)
	r := FindAllBackdoorSets(context.Background(), g, "X", "Y", SearchOptions{})

	assert.Equal(t, [][]string{
		{},
		{"A"},
		{"B"},
		{"A", "B"},
		{"A", "M"},
		{"B", "M"},
		{"A", "B", "M"},
	}, r.Sets)
	assert.True(t, r.Exhaustive)
}

// TestFindAllBackdoorSets_Property checks that every returned set is
// valid and free of descendants of the treatment.
func TestFindAllBackdoorSets_Property(t *testing.T) {
	ctx := context.Background()
	for name, g := range fixtures(t) {
		ids := g.IDsOf(allIndices(g.NodeCount()))
		for _, x := range ids {
			desc := map[string]bool{}
			for _, d := range g.Descendants(x) {
				desc[d] = true
			}
			for _, y := range ids {
				if x == y {
					continue
				}
				r := FindAllBackdoorSets(ctx, g, x, y, SearchOptions{})
				for i, set := range r.Sets {
					label := fmt.Sprintf("%s: %s -> %s %v", name, x, y, set)
					assert.True(t, IsValidBackdoorAdjustment(g, x, y, set), label)
					for _, z := range set {
						assert.False(t, desc[z], label)
					}
					if i > 0 {
						assert.LessOrEqual(t, len(r.Sets[i-1]), len(set), "smallest first: "+label)
					}
				}
			}
		}
	}
}

func TestFindAllBackdoorSets_Caps(t *testing.T) {
	ctx := context.Background()

	t.Run("max sets", func(t *testing.T) {
		r := FindAllBackdoorSets(ctx, mBias(t), "X", "Y", SearchOptions{MaxSets: 2})
		assert.Equal(t, [][]string{{}, {"A"}}, r.Sets)
		assert.False(t, r.Exhaustive)
	})

	t.Run("max set size", func(t *testing.T) {
		r := FindAllBackdoorSets(ctx, mBias(t), "X", "Y", SearchOptions{MaxSetSize: 1})
		assert.Equal(t, [][]string{{}, {"A"}, {"B"}}, r.Sets)
		assert.False(t, r.Exhaustive)
	})

	t.Run("heuristic pool", func(t *testing.T) {
		items := []string{"U->X", "U->Y", "X->Y"}
		for i := 0; i < 14; i++ {
			items = append(items, fmt.Sprintf("N%02d", i))
		}
		r := FindAllBackdoorSets(ctx, mustGraph(t, items...), "X", "Y", SearchOptions{})
		assert.True(t, r.Heuristic)
		assert.False(t, r.Exhaustive)
		assert.Equal(t, []string{"U"}, r.CandidatePool)
		assert.Equal(t, [][]string{{"U"}}, r.Sets)
	})

	t.Run("degenerate", func(t *testing.T) {
		g := confoundedMediator(t)
		assert.Empty(t, FindAllBackdoorSets(ctx, g, "X", "X", SearchOptions{}).Sets)
		assert.Empty(t, FindAllBackdoorSets(ctx, g, "nope", "Y", SearchOptions{}).Sets)
		assert.Empty(t, FindAllBackdoorSets(ctx, nil, "X", "Y", SearchOptions{}).Sets)
	})
}

func TestCheckFrontdoorCriterion(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		edges     []string
		satisfied bool
		mediators []string
	}{
		{"latent confounder", []string{"X->M", "M->Y", "X<->Y"}, true, []string{"M"}},
		{"observed confounder", []string{"X->M", "M->Y", "U->X", "U->Y"}, true, []string{"M"}},
		{"two mediators", []string{"X->M1", "X->M2", "M1->Y", "M2->Y", "X<->Y"}, true, []string{"M1", "M2"}},
		{"confounded mediator", []string{"X->M", "M->Y", "U->X", "U->M"}, false, []string{}},
		{"direct edge", []string{"X->M", "M->Y", "X->Y"}, false, []string{}},
		{"no mediator", []string{"Y->X"}, false, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := CheckFrontdoorCriterion(ctx, mustGraph(t, tt.edges...), "X", "Y", SearchOptions{})
			assert.Equal(t, tt.satisfied, r.Satisfied, r.Reason)
			assert.Equal(t, tt.mediators, r.Mediators)
			assert.NotEmpty(t, r.Reason)
		})
	}
}

func TestFindInstrumentalVariable(t *testing.T) {
	t.Run("classic instrument", func(t *testing.T) {
		z, ok := FindInstrumentalVariable(instrumentGraph(t), "X", "Y")
		require.True(t, ok)
		assert.Equal(t, "Z", z)
	})

	t.Run("all instruments in declaration order", func(t *testing.T) {
		g := mustGraph(t, "Z2->X", "Z1->X", "X<->Y", "X->Y")
		assert.Equal(t, []string{"Z2", "Z1"}, FindInstrumentalVariables(g, "X", "Y"))
	})

	tests := []struct {
		name  string
		edges []string
	}{
		{"direct edge to outcome", []string{"Z->X", "Z->Y", "X->Y"}},
		{"confounded with outcome", []string{"Z->X", "W->Z", "W->Y", "X->Y"}},
		{"latent link to outcome", []string{"Z->X", "Z<->Y", "X->Y"}},
		{"no parents", []string{"X->Y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := FindInstrumentalVariable(mustGraph(t, tt.edges...), "X", "Y")
			assert.False(t, ok)
		})
	}

	_, ok := FindInstrumentalVariable(nil, "X", "Y")
	assert.False(t, ok)
}

func TestGenerateBackdoorFormula(t *testing.T) {
	tests := []struct {
		name  string
		x, y  string
		set   []string
		valid bool
		plain string
		latex string
	}{
		{
			name:  "sorted adjustment",
			x:     "X",
			y:     "Y",
			set:   []string{"U", "A"},
			valid: true,
			plain: "P(Y | do(X)) = Σ_{A, U} P(Y | X, A, U) P(A, U)",
			latex: `P(Y \mid do(X)) = \sum_{A, U} P(Y \mid X, A, U) P(A, U)`,
		},
		{
			name:  "empty adjustment",
			x:     "X",
			y:     "Y",
			set:   nil,
			valid: true,
			plain: "P(Y | do(X)) = P(Y | X)",
			latex: `P(Y \mid do(X)) = P(Y \mid X)`,
		},
		{
			name:  "treatment in set",
			x:     "X",
			y:     "Y",
			set:   []string{"X"},
			valid: false,
			plain: "P(Y | do(X)) = Σ_{X} P(Y | X, X) P(X)",
			latex: `P(Y \mid do(X)) = \sum_{X} P(Y \mid X, X) P(X)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := GenerateBackdoorFormula(tt.x, tt.y, tt.set)
			assert.Equal(t, FormulaBackdoor, f.Type)
			assert.Equal(t, tt.valid, f.IsValid)
			assert.Equal(t, tt.plain, f.PlainText)
			assert.Equal(t, tt.latex, f.LaTeX)
		})
	}

	// Rendering is stable regardless of input order.
	a := GenerateBackdoorFormula("X", "Y", []string{"C", "A", "B"})
	b := GenerateBackdoorFormula("X", "Y", []string{"B", "C", "A"})
	assert.Equal(t, a, b)

	in := []string{"U", "A"}
	GenerateBackdoorFormula("X", "Y", in)
	assert.Equal(t, []string{"U", "A"}, in, "input must not be reordered")
}

func TestBackdoorFormulaFor(t *testing.T) {
	g := confoundedMediator(t)
	assert.True(t, BackdoorFormulaFor(g, "X", "Y", []string{"U", "A"}).IsValid)
	assert.False(t, BackdoorFormulaFor(g, "X", "Y", []string{"M"}).IsValid)
}

func TestOtherFormulas(t *testing.T) {
	fd := GenerateFrontdoorFormula("X", "Y", []string{"M"})
	assert.Equal(t, FormulaFrontdoor, fd.Type)
	assert.True(t, fd.IsValid)
	assert.Equal(t, "P(Y | do(X)) = Σ_{M} P(M | X) Σ_{X'} P(Y | X', M) P(X')", fd.PlainText)
	assert.False(t, GenerateFrontdoorFormula("X", "Y", nil).IsValid)

	iv := GenerateInstrumentFormula("X", "Y", "Z")
	assert.Equal(t, FormulaInstrumental, iv.Type)
	assert.True(t, iv.IsValid)
	assert.Equal(t, "β(X → Y) = Cov(Y, Z) / Cov(X, Z)", iv.PlainText)
	assert.Equal(t, []string{"Z"}, iv.AdjustmentSet)
}
