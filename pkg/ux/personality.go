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
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// EnvPersonality overrides the detected personality level.
const EnvPersonality = "CAUSAL_PERSONALITY"

// PersonalityLevel defines the richness of CLI output
type PersonalityLevel string

const (
	// PersonalityFull enables colors, icons and boxes
	PersonalityFull PersonalityLevel = "full"

	// PersonalityMinimal uses icons and basic formatting only
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine outputs plain text suitable for scripting and parsing
	PersonalityMachine PersonalityLevel = "machine"
)

// Personality holds the current UX personality configuration
type Personality struct {
	// Level controls overall richness (full, minimal, machine)
	Level PersonalityLevel

	// Width caps boxes and tables. Zero means 72 columns.
	Width int
}

var (
	currentPersonality = DefaultPersonality()
	personalityMu      sync.RWMutex
)

// DefaultPersonality returns the default personality settings
func DefaultPersonality() Personality {
	return Personality{Level: PersonalityFull, Width: 72}
}

// GetPersonality returns the current personality settings
func GetPersonality() Personality {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentPersonality
}

// SetPersonality updates the current personality settings
func SetPersonality(p Personality) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentPersonality = p
}

// SetPersonalityLevel updates just the personality level
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentPersonality.Level = level
}

// ParsePersonalityLevel converts a string to PersonalityLevel.
// Unknown values fall back to minimal.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "f":
		return PersonalityFull
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "plain", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityMinimal
	}
}

// InitPersonality picks the level from CAUSAL_PERSONALITY, falling back to
// machine output when f is not a terminal.
func InitPersonality(f *os.File) {
	if envLevel := os.Getenv(EnvPersonality); envLevel != "" {
		SetPersonalityLevel(ParsePersonalityLevel(envLevel))
		return
	}
	if !IsTerminal(f) {
		SetPersonalityLevel(PersonalityMachine)
		return
	}
	SetPersonalityLevel(PersonalityFull)
}

// IsTerminal reports whether f is an interactive terminal, including
// Cygwin and MSYS ptys.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ShouldShowColors returns true if we should use colors
func ShouldShowColors() bool {
	return GetPersonality().Level == PersonalityFull
}
