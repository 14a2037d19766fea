// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"
)

func withLevel(t *testing.T, level PersonalityLevel) *bytes.Buffer {
	t.Helper()
	orig := GetPersonality()
	t.Cleanup(func() { SetPersonality(orig) })
	SetPersonality(Personality{Level: level, Width: 40})
	return &bytes.Buffer{}
}

// =============================================================================
// Machine Output Tests
// =============================================================================

func TestPrinter_MachineOutput(t *testing.T) {
	buf := withLevel(t, PersonalityMachine)
	p := NewPrinter(buf)

	p.Title("Backdoor criterion")
	p.Muted("secondary")
	p.Success("valid")
	p.Warning("truncated")
	p.Error("failed")
	p.KeyValue("treatment", "X")
	p.List([]string{"A", "B"})
	p.Box("Formula", "P(Y|do(X))")
	p.Table([]string{"node", "score"}, [][]string{{"A", "0.5"}, {"B", "0.25"}})

	want := strings.Join([]string{
		"OK: valid",
		"WARN: truncated",
		"ERROR: failed",
		"treatment\tX",
		"A",
		"B",
		"Formula: P(Y|do(X))",
		"A\t0.5",
		"B\t0.25",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("machine output mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrinter_Verdict(t *testing.T) {
	buf := withLevel(t, PersonalityMachine)
	p := NewPrinter(buf)

	p.Verdict(true, "separated", "connected")
	p.Verdict(false, "separated", "connected")

	if got := buf.String(); got != "OK: separated\nWARN: connected\n" {
		t.Errorf("unexpected verdict output: %q", got)
	}
}

// =============================================================================
// Minimal Output Tests
// =============================================================================

func TestPrinter_MinimalOutput(t *testing.T) {
	buf := withLevel(t, PersonalityMinimal)
	p := NewPrinter(buf)

	p.Title("Paths")
	p.Success("found")
	p.KeyValue("count", 2)

	out := buf.String()
	if !strings.Contains(out, "Paths\n") {
		t.Errorf("expected title, got %q", out)
	}
	if !strings.Contains(out, string(IconSuccess)+" found") {
		t.Errorf("expected success icon, got %q", out)
	}
	if !strings.Contains(out, "count:") || !strings.Contains(out, " 2\n") {
		t.Errorf("expected key/value, got %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("minimal output should not contain ANSI escapes: %q", out)
	}
}

func TestPrinter_TableAlignment(t *testing.T) {
	buf := withLevel(t, PersonalityMinimal)
	p := NewPrinter(buf)

	p.Table([]string{"node", "score"}, [][]string{{"Alpha", "1"}, {"B", "0.5"}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "  node   score" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[2] != "  B      0.5" {
		t.Errorf("unexpected row %q", lines[2])
	}
}

func TestPrinter_FullBox(t *testing.T) {
	buf := withLevel(t, PersonalityFull)
	p := NewPrinter(buf)

	p.Box("Formula", "sum_z P(Y|X,z)P(z)")

	out := buf.String()
	if !strings.Contains(out, "Formula") || !strings.Contains(out, "sum_z") {
		t.Errorf("box missing content: %q", out)
	}
	if !strings.Contains(out, "╭") {
		t.Errorf("expected rounded border, got %q", out)
	}
}

func TestIcon_Render(t *testing.T) {
	if IconArrow.Render() != string(IconArrow) {
		t.Errorf("unstyled icon should render verbatim")
	}
	if !strings.Contains(IconSuccess.Render(), string(IconSuccess)) {
		t.Errorf("styled icon lost its glyph")
	}
}
