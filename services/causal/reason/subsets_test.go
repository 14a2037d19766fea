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
	"testing"

	"github.com/stretchr/testify/assert"
)

func collect(c *combinations) [][]int {
	var out [][]int
	for {
		s, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, append([]int{}, s...))
	}
}

func TestCombinations(t *testing.T) {
	tests := []struct {
		name      string
		n, lo, hi int
		want      [][]int
	}{
		{
			name: "all subsets of three",
			n:    3,
			lo:   0,
			hi:   3,
			want: [][]int{{}, {0}, {1}, {2}, {0, 1}, {0, 2}, {1, 2}, {0, 1, 2}},
		},
		{
			name: "non-empty up to two",
			n:    4,
			lo:   1,
			hi:   2,
			want: [][]int{{0}, {1}, {2}, {3}, {0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}},
		},
		{
			name: "empty pool yields the empty set",
			n:    0,
			lo:   0,
			hi:   5,
			want: [][]int{{}},
		},
		{
			name: "min above pool yields nothing",
			n:    2,
			lo:   3,
			hi:   4,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collect(newCombinations(tt.n, tt.lo, tt.hi)))
		})
	}
}

func TestCombinations_CountMatchesBinomial(t *testing.T) {
	// Σ_{k=0}^{10} C(10, k) = 2^10
	assert.Len(t, collect(newCombinations(10, 0, 10)), 1024)
}

func TestSearchOptions_Validate(t *testing.T) {
	opts := SearchOptions{MaxSetSize: -3}
	opts.Validate()
	assert.Equal(t, DefaultMaxCandidatePool, opts.MaxCandidatePool)
	assert.Equal(t, 0, opts.MaxSetSize)
	assert.Equal(t, DefaultMaxSets, opts.MaxSets)
	assert.Equal(t, DefaultMaxEvaluations, opts.MaxEvaluations)
	assert.Equal(t, DefaultSearchOptions(), opts)
}
